// Package locations turns analysis output into deduplicated, optionally
// geocoded location mentions that keep their source chunks.
package locations

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/akolanti/ChatAnalyzer/internal/analysis"
	"github.com/akolanti/ChatAnalyzer/internal/chunker"
	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/internal/locations/geocoding"
	"github.com/akolanti/ChatAnalyzer/internal/pacing"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

// Store is what extraction reads and writes.
type Store interface {
	analysisModel.ResultStore
	analysisModel.RunStore
	analysisModel.ChunkStore
	findingModel.FindingStore
}

// vague place references worth a context pass
var vagueReference = regexp.MustCompile(`(?i)\b(usual place|usual spot|the place|his place|her place|his house|her house|their place|solito posto|al solito|a casa sua|casa sua|da lui|da lei|sotto casa)\b`)

type Extractor struct {
	caller *analysis.Caller
	store  Store

	geocoder geocoding.Geocoder
	geoPacer *pacing.Controller

	inferContext bool
	window       int
	tolerance    float64
	retries      int
	logger       *logger_i.Logger
}

type Option func(*Extractor)

// WithGeocoder resolves unresolved mentions through g, paced by pacer.
func WithGeocoder(g geocoding.Geocoder, pacer *pacing.Controller) Option {
	return func(e *Extractor) {
		e.geocoder = g
		e.geoPacer = pacer
	}
}

func WithContextInference(enabled bool) Option {
	return func(e *Extractor) { e.inferContext = enabled }
}

func WithRetryCeiling(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.retries = n
		}
	}
}

func New(caller *analysis.Caller, store Store, opts ...Option) *Extractor {
	e := &Extractor{
		caller:    caller,
		store:     store,
		window:    config.ContextWindowChars,
		tolerance: config.DedupTolerance,
		retries:   config.RetryCeiling,
		logger:    logger_i.NewLogger("locations"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Report summarises one extraction pass.
type Report struct {
	RunId        string                         `json:"run_id"`
	Mentions     []findingModel.LocationMention `json:"mentions"`
	Malformed    []MalformedLine                `json:"-"`
	FailedChunks []int                          `json:"failed_chunks,omitempty"`
	Geocoded     int                            `json:"geocoded"`
	Unresolved   int                            `json:"unresolved"`
}

// ExtractRun reads the Done results of a run, extracts and merges their
// locations, geocodes what is still unresolved and stores the mentions.
// A chunk whose extraction call fails is reported, not fatal.
func (e *Extractor) ExtractRun(ctx context.Context, runId string) (Report, error) {
	report := Report{RunId: runId}
	run, found, err := e.store.GetRun(ctx, runId)
	if err != nil {
		return report, fmt.Errorf("loading run %s: %w", runId, err)
	}
	if !found {
		return report, fmt.Errorf("%w: %s", analysis.ErrRunNotFound, runId)
	}
	results, err := e.store.ListResults(ctx, runId)
	if err != nil {
		return report, fmt.Errorf("loading results: %w", err)
	}
	chunks, err := e.store.ListChunks(ctx, run.ChunkSetKey())
	if err != nil {
		return report, fmt.Errorf("loading chunks: %w", err)
	}
	chunkByIndex := make(map[int]analysisModel.Chunk, len(chunks))
	for _, ch := range chunks {
		chunkByIndex[ch.Index] = ch
	}

	logger := e.logger.With("runId", runId)
	var queue *geocodeQueue
	if e.geocoder != nil {
		queue = startGeocoding(ctx, e.geocoder, e.geoPacer, e.retries, logger)
	}

	var mentions []findingModel.LocationMention
	for _, result := range results {
		if !result.IsDone() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		chunk := chunkByIndex[result.ChunkIndex]
		extracted, malformed, err := e.extractChunk(ctx, result, chunk)
		if err != nil {
			var callErr *llm.CallError
			if errors.As(err, &callErr) && callErr.Aborts() {
				if queue != nil {
					queue.finish()
				}
				return report, fmt.Errorf("extraction aborted: %w", err)
			}
			logger.Warn("extraction failed", "chunk", result.ChunkIndex, "error", err)
			report.FailedChunks = append(report.FailedChunks, result.ChunkIndex)
			continue
		}
		report.Malformed = append(report.Malformed, malformed...)
		for _, m := range extracted {
			if queue != nil && m.Point == nil {
				queue.enqueue(m.Normalized, m.Text)
			}
		}
		mentions = append(mentions, extracted...)
	}

	if queue != nil {
		resolved := queue.finish()
		now := time.Now().UTC()
		for i := range mentions {
			if mentions[i].Point != nil {
				continue
			}
			if res, ok := resolved[mentions[i].Normalized]; ok {
				p := res.Point
				mentions[i].Point = &p
				mentions[i].Address = res.Address
				mentions[i].GeocodedBy = e.geocoder.Name()
				mentions[i].GeocodedAt = now
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	merged := Deduplicate(mentions, e.tolerance)
	assignIds(runId, merged)
	for _, m := range merged {
		if m.GeocodedBy != "" {
			report.Geocoded++
		}
		if !m.Resolved() {
			report.Unresolved++
		}
	}
	report.Mentions = merged

	if err := e.store.SaveLocations(ctx, runId, merged); err != nil {
		return report, fmt.Errorf("saving locations: %w", err)
	}
	logger.Info("locations extracted", "raw", len(mentions), "merged", len(merged),
		"malformed", len(report.Malformed), "geocoded", report.Geocoded, "failedChunks", len(report.FailedChunks))
	return report, nil
}

// extractChunk runs the explicit pass and, when enabled and the output has
// vague references, the context pass over one result.
func (e *Extractor) extractChunk(ctx context.Context, result analysisModel.AnalysisResult, chunk analysisModel.Chunk) ([]findingModel.LocationMention, []MalformedLine, error) {
	answer, err := e.caller.Call(ctx, llm.Request{Prompt: llm.LocationExtractionPrompt, Text: result.Output})
	if err != nil {
		return nil, nil, err
	}
	parsed, malformed := ParseOutput(answer)
	for _, m := range malformed {
		e.logger.Debug("malformed extraction line", "chunk", result.ChunkIndex, "reason", m.Reason, "line", m.Line)
	}

	messages := normalizedMessages(chunk)
	var out []findingModel.LocationMention
	for _, f := range parsed {
		out = append(out, e.mention(f, result.ChunkIndex, messages, false, ""))
	}

	if !e.inferContext {
		return out, malformed, nil
	}
	ref := vagueReference.FindString(result.Output)
	if ref == "" {
		return out, malformed, nil
	}
	window := contextWindow(chunk.Text, ref, e.window)
	text := "ANALYSIS:\n" + result.Output + "\n\nPRECEDING CHAT TEXT:\n" + window
	inferred, err := e.caller.Call(ctx, llm.Request{Prompt: llm.LocationContextPrompt, Text: text})
	if err != nil {
		//the explicit mentions of this chunk still count
		e.logger.Warn("context inference failed", "chunk", result.ChunkIndex, "error", err)
		return out, malformed, nil
	}
	guesses, badGuesses := ParseOutput(inferred)
	malformed = append(malformed, badGuesses...)
	for _, f := range guesses {
		f.Category = findingModel.InferredPlace
		f.Confidence = min(max(f.Confidence, config.InferredMinConfidence), config.InferredMaxConfidence)
		out = append(out, e.mention(f, result.ChunkIndex, messages, true, ref))
	}
	return out, malformed, nil
}

type normalizedMessage struct {
	findingModel.Message
	normalized string
}

func normalizedMessages(chunk analysisModel.Chunk) []normalizedMessage {
	msgs := chunker.SplitMessages(chunk.Text, chunk.Index, chunk.Start)
	out := make([]normalizedMessage, len(msgs))
	for i, m := range msgs {
		out[i] = normalizedMessage{Message: m, normalized: Normalize(m.Text)}
	}
	return out
}

func (e *Extractor) mention(f ParsedFinding, chunkIndex int, messages []normalizedMessage, inferred bool, reference string) findingModel.LocationMention {
	m := findingModel.LocationMention{
		Text:         f.Text,
		Normalized:   Normalize(f.Text),
		Category:     f.Category,
		Confidence:   f.Confidence,
		Point:        f.Point,
		Inferred:     inferred,
		Context:      reference,
		ChunkIndices: []int{chunkIndex},
	}
	//attribute the mention to the first message that contains it
	for _, msg := range messages {
		if m.Normalized != "" && strings.Contains(msg.normalized, m.Normalized) {
			m.Sender = msg.Sender
			m.Timestamp = msg.Timestamp
			break
		}
	}
	return m
}

// contextWindow is up to size bytes of chunk text ending with the first
// occurrence of ref, or the chunk's tail when ref is not in the text.
func contextWindow(text string, ref string, size int) string {
	end := len(text)
	if i := strings.Index(strings.ToLower(text), strings.ToLower(ref)); i >= 0 {
		end = min(i+len(ref), len(text))
	}
	start := max(end-size, 0)
	for start < end && !utf8.RuneStart(text[start]) {
		start++
	}
	return text[start:end]
}
