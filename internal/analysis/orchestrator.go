package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/internal/metrics"
	"github.com/akolanti/ChatAnalyzer/internal/pacing"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

var ErrRunNotFound = errors.New("run not found")

// Orchestrator drives the chunk loop of one provider. Every state change of
// a chunk is written to the ResultStore before the next step, so a crash
// loses at most the chunk in flight.
type Orchestrator struct {
	provider  llm.Provider
	pacer     *pacing.Controller
	results   analysisModel.ResultStore
	runs      analysisModel.RunStore
	estimator pacing.TokenEstimator

	retryCeiling int
	media        *MediaResolver
	onChunk      func(analysisModel.AnalysisResult)
	now          func() time.Time

	logger *logger_i.Logger
}

type Option func(*Orchestrator)

// WithRetryCeiling bounds retries per chunk after the first attempt.
func WithRetryCeiling(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.retryCeiling = n
		}
	}
}

func WithEstimator(e pacing.TokenEstimator) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.estimator = e
		}
	}
}

// WithMedia enables image payloads for vision capable providers.
func WithMedia(m *MediaResolver) Option {
	return func(o *Orchestrator) { o.media = m }
}

// WithProgress registers a callback for every persisted chunk transition.
func WithProgress(fn func(analysisModel.AnalysisResult)) Option {
	return func(o *Orchestrator) { o.onChunk = fn }
}

func New(provider llm.Provider, pacer *pacing.Controller, results analysisModel.ResultStore, runs analysisModel.RunStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:     provider,
		pacer:        pacer,
		results:      results,
		runs:         runs,
		estimator:    pacing.CharEstimator{},
		retryCeiling: config.RetryCeiling,
		now:          time.Now,
		logger:       logger_i.NewLogger("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Provider() llm.Provider { return o.provider }

// NewRun describes a run over the given chunk indices. It is not persisted
// until Execute.
func (o *Orchestrator) NewRun(kind analysisModel.RunKind, doc analysisModel.Document, prompt string, chunkIndices []int, excluded []int) analysisModel.RunState {
	now := o.now()
	if prompt == "" {
		prompt = llm.ForensicPrompt
	}
	indices := append([]int(nil), chunkIndices...)
	sort.Ints(indices)
	return analysisModel.RunState{
		Id:            analysisModel.NewRunId(kind, now),
		Kind:          kind,
		DocumentId:    doc.Id,
		DocumentName:  doc.Name,
		PromptVariant: llm.PromptVariant(prompt),
		Prompt:        prompt,
		Provider:      o.provider.Name(),
		Model:         o.provider.Model(),
		ChunkIndices:  indices,
		Excluded:      normalizeIndices(excluded),
		Status:        analysisModel.RunStatusRunning,
		CreatedAt:     now,
	}
}

// Resume reloads a run and executes it again. Chunks already done with a
// matching content hash are skipped without a provider call.
func (o *Orchestrator) Resume(ctx context.Context, runId string, chunks []analysisModel.Chunk) (analysisModel.RunState, analysisModel.RunReport, error) {
	run, found, err := o.runs.GetRun(ctx, runId)
	if err != nil {
		return run, analysisModel.RunReport{}, fmt.Errorf("loading run %s: %w", runId, err)
	}
	if !found {
		return run, analysisModel.RunReport{}, fmt.Errorf("%w: %s", ErrRunNotFound, runId)
	}
	if run.Provider != "" && run.Provider != o.provider.Name() {
		o.logger.Warn("resuming with a different provider", "runId", runId, "was", run.Provider, "now", o.provider.Name())
	}
	run.Status = analysisModel.RunStatusRunning
	run.Outcome = ""
	run.ArchivedAt = time.Time{}
	return o.Execute(ctx, run, chunks)
}

// Execute processes every chunk of the run in index order and archives the
// run with its outcome. Per chunk failures never stop the loop; only an
// aborting failure (bad credentials) or cancellation does.
func (o *Orchestrator) Execute(ctx context.Context, run analysisModel.RunState, chunks []analysisModel.Chunk) (analysisModel.RunState, analysisModel.RunReport, error) {
	start := o.now()
	log := o.logger.With("runId", run.Id, "traceId", ctx.Value(config.TRACE_ID_KEY))
	report := analysisModel.RunReport{RunId: run.Id}

	byIndex := make(map[int]analysisModel.Chunk, len(chunks))
	for _, ch := range chunks {
		byIndex[ch.Index] = ch
	}
	excluded := make(map[int]bool, len(run.Excluded))
	for _, idx := range run.Excluded {
		excluded[idx] = true
	}

	if err := o.runs.SaveRun(ctx, run); err != nil {
		return run, report, fmt.Errorf("saving run state: %w", err)
	}
	log.Info("run started", "kind", run.Kind, "chunks", len(run.ChunkIndices), "excluded", len(run.Excluded), "provider", run.Provider)

	var abort *llm.CallError
	for i, idx := range run.ChunkIndices {
		if excluded[idx] {
			report.Excluded = append(report.Excluded, idx)
			continue
		}
		if abort != nil || ctx.Err() != nil {
			report.Pending = append(report.Pending, run.ChunkIndices[i:]...)
			report.Pending = withoutIndices(report.Pending, excluded)
			break
		}

		chunk, ok := byIndex[idx]
		if !ok {
			//the chunk set no longer has this index: nothing to analyse
			report.Failed = append(report.Failed, analysisModel.FailedChunk{Index: idx, Class: string(llm.Fatal), Reason: "chunk not found in document"})
			continue
		}

		outcome, err := o.processChunk(ctx, run, chunk)
		if err != nil {
			return run, report, err
		}
		report.Calls += outcome.calls
		switch outcome.result.Status {
		case analysisModel.ChunkDone:
			report.Done = append(report.Done, idx)
			if outcome.resumed {
				report.Resumed = append(report.Resumed, idx)
			}
			if idx > run.HighestCompleted {
				run.HighestCompleted = idx
				if err := o.runs.SaveRun(ctx, run); err != nil {
					return run, report, fmt.Errorf("saving run state: %w", err)
				}
			}
		case analysisModel.ChunkFailed:
			report.Failed = append(report.Failed, analysisModel.FailedChunk{
				Index:  idx,
				Class:  outcome.result.ErrorClass,
				Reason: outcome.result.ErrorReason,
			})
			if outcome.abort != nil {
				abort = outcome.abort
			}
		default:
			//abandoned on cancellation, stays resumable
			report.Pending = append(report.Pending, idx)
		}
	}

	switch {
	case abort != nil:
		report.Outcome = analysisModel.OutcomeAborted
		report.AbortReason = abort.Error()
	case ctx.Err() != nil:
		report.Outcome = analysisModel.OutcomeAborted
		report.AbortReason = "cancelled: " + ctx.Err().Error()
	case len(report.Failed) > 0:
		report.Outcome = analysisModel.OutcomePartial
	default:
		report.Outcome = analysisModel.OutcomeSucceeded
	}
	report.Elapsed = o.now().Sub(start)

	run.Status = analysisModel.RunStatusArchived
	run.Outcome = report.Outcome
	run.ArchivedAt = o.now()
	//the run state must be archived even when the caller's context is gone
	if err := o.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		return run, report, fmt.Errorf("archiving run: %w", err)
	}
	metrics.CaptureRunOutcome(string(run.Kind), string(report.Outcome))
	log.Info("run finished", "outcome", report.Outcome, "done", len(report.Done), "failed", len(report.Failed),
		"pending", len(report.Pending), "calls", report.Calls, "elapsed", report.Elapsed)
	return run, report, nil
}

type chunkOutcome struct {
	result  analysisModel.AnalysisResult
	calls   int
	resumed bool
	abort   *llm.CallError
}

// processChunk runs the Pending -> InFlight -> {Done, Retrying, Failed}
// machine for one chunk. An error is returned only when the store fails.
func (o *Orchestrator) processChunk(ctx context.Context, run analysisModel.RunState, chunk analysisModel.Chunk) (chunkOutcome, error) {
	log := o.logger.With("runId", run.Id, "chunk", chunk.Label())

	existing, found, err := o.results.GetResult(ctx, run.Id, chunk.Index)
	if err != nil {
		return chunkOutcome{}, fmt.Errorf("checking %s: %w", chunk.Label(), err)
	}
	if found && existing.IsDone() && existing.ChunkHash == chunk.Hash {
		log.Debug("already done, skipping")
		return chunkOutcome{result: existing, resumed: true}, nil
	}

	result := analysisModel.AnalysisResult{
		RunId:         run.Id,
		ChunkIndex:    chunk.Index,
		ChunkHash:     chunk.Hash,
		Provider:      o.provider.Name(),
		Model:         o.provider.Model(),
		PromptVariant: run.PromptVariant,
		Status:        analysisModel.ChunkPending,
	}
	if err := o.persist(ctx, &result); err != nil {
		return chunkOutcome{}, err
	}

	req := llm.Request{Prompt: run.Prompt, Text: chunk.Text}
	if o.media != nil && o.provider.SupportsVision() {
		req.Images = o.media.Load(chunk.ImageRefs)
	}
	tokens := o.estimator.EstimateTokens(run.Prompt + chunk.Text)
	out := chunkOutcome{}

	for attempt := 1; ; attempt++ {
		if _, err := o.pacer.Wait(ctx, tokens); err != nil {
			log.Info("abandoned while waiting", "status", result.Status)
			out.result = result
			return out, nil
		}

		result.Status = analysisModel.ChunkInFlight
		result.Attempts = attempt
		if err := o.persist(ctx, &result); err != nil {
			return out, err
		}

		callStart := time.Now()
		text, callErr := o.provider.Analyze(ctx, req)
		metrics.CaptureExecutionMetrics(o.provider.Name(), time.Since(callStart))
		out.calls++

		if callErr == nil {
			result.Status = analysisModel.ChunkDone
			result.Output = text
			result.ErrorClass, result.ErrorReason = "", ""
			o.pacer.OnSuccess(tokens)
			//a result that arrives after cancellation is still written
			if err := o.persist(context.WithoutCancel(ctx), &result); err != nil {
				return out, err
			}
			log.Debug("chunk done", "attempts", attempt)
			out.result = result
			return out, nil
		}

		classified := llm.Classify(callErr)
		result.ErrorClass = string(classified.Class)
		result.ErrorReason = classified.Error()

		if ctx.Err() != nil {
			//cancelled mid call: leave it resumable
			result.Status = analysisModel.ChunkPending
			_ = o.persist(context.WithoutCancel(ctx), &result)
			out.result = result
			return out, nil
		}

		if classified.Class == llm.Fatal {
			result.Status = analysisModel.ChunkFailed
			if err := o.persist(ctx, &result); err != nil {
				return out, err
			}
			log.Error("chunk failed", "class", classified.Class, "error", classified)
			if classified.Aborts() {
				out.abort = classified
			}
			out.result = result
			return out, nil
		}

		if classified.Class == llm.RateLimited {
			o.pacer.OnRateLimited(classified.RetryAfter, tokens)
		}

		if attempt > o.retryCeiling {
			result.Status = analysisModel.ChunkFailed
			result.ErrorReason = fmt.Sprintf("retry ceiling reached after %d attempts: %s", attempt, classified.Error())
			if err := o.persist(ctx, &result); err != nil {
				return out, err
			}
			log.Error("chunk failed", "class", classified.Class, "attempts", attempt)
			out.result = result
			return out, nil
		}

		result.Status = analysisModel.ChunkRetrying
		if err := o.persist(ctx, &result); err != nil {
			return out, err
		}
		log.Warn("retrying chunk", "class", classified.Class, "attempt", attempt, "error", classified)
	}
}

func (o *Orchestrator) persist(ctx context.Context, result *analysisModel.AnalysisResult) error {
	result.Timestamp = o.now()
	if err := o.results.SaveResult(ctx, *result); err != nil {
		return fmt.Errorf("persisting %s of run %s: %w", analysisModel.ChunkLabel(result.ChunkIndex), result.RunId, err)
	}
	metrics.CaptureChunkOutcome(result.Provider, string(result.Status))
	if o.onChunk != nil {
		o.onChunk(*result)
	}
	return nil
}

func normalizeIndices(indices []int) []int {
	if len(indices) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(indices))
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}

func withoutIndices(indices []int, drop map[int]bool) []int {
	out := indices[:0]
	for _, idx := range indices {
		if !drop[idx] {
			out = append(out, idx)
		}
	}
	return out
}
