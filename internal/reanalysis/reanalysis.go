package reanalysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/akolanti/ChatAnalyzer/internal/analysis"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type KeywordMode string

const (
	MatchAny KeywordMode = "any"
	MatchAll KeywordMode = "all"
)

var (
	ErrNoKeywords = errors.New("no keywords given")
	ErrNoMatches  = errors.New("no chunk matches the keywords")
)

type Request struct {
	ParentRunId string
	Keywords    []string
	Mode        KeywordMode
	Prompt      string
}

// Engine re-runs a narrower pass over the chunks of an earlier run. The new
// run gets its own id; the parent's results are only read, never written.
type Engine struct {
	orchestrator *analysis.Orchestrator
	chunks       analysisModel.ChunkStore
	runs         analysisModel.RunStore
	logger       *logger_i.Logger
}

func NewEngine(orchestrator *analysis.Orchestrator, chunks analysisModel.ChunkStore, runs analysisModel.RunStore) *Engine {
	return &Engine{
		orchestrator: orchestrator,
		chunks:       chunks,
		runs:         runs,
		logger:       logger_i.NewLogger("reanalysis"),
	}
}

func (e *Engine) Reanalyze(ctx context.Context, req Request) (analysisModel.RunState, analysisModel.RunReport, error) {
	var run analysisModel.RunState
	keywords := cleanKeywords(req.Keywords)
	if len(keywords) == 0 {
		return run, analysisModel.RunReport{}, ErrNoKeywords
	}
	if req.Mode == "" {
		req.Mode = MatchAny
	}

	parent, found, err := e.runs.GetRun(ctx, req.ParentRunId)
	if err != nil {
		return run, analysisModel.RunReport{}, fmt.Errorf("loading run %s: %w", req.ParentRunId, err)
	}
	if !found {
		return run, analysisModel.RunReport{}, fmt.Errorf("%w: %s", analysis.ErrRunNotFound, req.ParentRunId)
	}
	chunks, err := e.chunks.ListChunks(ctx, parent.ChunkSetKey())
	if err != nil {
		return run, analysisModel.RunReport{}, fmt.Errorf("loading chunks of %s: %w", parent.Id, err)
	}
	chunks = restrictTo(chunks, parent.ChunkIndices)

	matched := MatchChunks(chunks, keywords, req.Mode)
	e.logger.Info("keyword filter", "parentRunId", parent.Id, "keywords", keywords, "mode", req.Mode,
		"matched", len(matched), "of", len(chunks))
	if len(matched) == 0 {
		return run, analysisModel.RunReport{}, ErrNoMatches
	}

	doc := analysisModel.Document{Id: parent.DocumentId, Name: parent.DocumentName}
	run = e.orchestrator.NewRun(analysisModel.RunKindReanalysis, doc, req.Prompt, matched, nil)
	run.ParentRunId = parent.Id
	run.ChunkSetId = parent.ChunkSetKey()
	run.Keywords = keywords
	run.KeywordMode = string(req.Mode)

	return e.orchestrator.Execute(ctx, run, chunks)
}

// MatchChunks returns the indices of chunks whose text contains any (or
// all) of the keywords, ignoring case and accents.
func MatchChunks(chunks []analysisModel.Chunk, keywords []string, mode KeywordMode) []int {
	fold := newFolder()
	folded := make([]string, 0, len(keywords))
	for _, kw := range cleanKeywords(keywords) {
		folded = append(folded, fold(kw))
	}
	if len(folded) == 0 {
		return nil
	}

	var matched []int
	for _, ch := range chunks {
		text := fold(ch.Text)
		hits := 0
		for _, kw := range folded {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if (mode == MatchAll && hits == len(folded)) || (mode != MatchAll && hits > 0) {
			matched = append(matched, ch.Index)
		}
	}
	return matched
}

// newFolder strips combining marks and folds case, so "Minàccia" and
// "minaccia" compare equal.
func newFolder() func(string) string {
	strip := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	caser := cases.Fold()
	return func(s string) string {
		out, _, err := transform.String(strip, s)
		if err != nil {
			out = s
		}
		return caser.String(out)
	}
}

func cleanKeywords(keywords []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}

func restrictTo(chunks []analysisModel.Chunk, indices []int) []analysisModel.Chunk {
	if len(indices) == 0 {
		return chunks
	}
	keep := make(map[int]bool, len(indices))
	for _, idx := range indices {
		keep[idx] = true
	}
	var out []analysisModel.Chunk
	for _, ch := range chunks {
		if keep[ch.Index] {
			out = append(out, ch)
		}
	}
	return out
}
