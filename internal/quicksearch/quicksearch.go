package quicksearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/analysis"
	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

var (
	ErrEmptyQuestion = errors.New("question is empty")
	ErrNoAnalysis    = errors.New("run has no completed analysis to search")
)

// Engine answers questions from stored analysis text with exactly one model
// call. Chunks are never reprocessed. When the analyses do not hold the
// answer the model's best effort is returned as is.
type Engine struct {
	caller   *analysis.Caller
	results  analysisModel.ResultStore
	runs     analysisModel.RunStore
	log      analysisModel.SearchLog
	maxChars int
	now      func() time.Time
	logger   *logger_i.Logger
}

func NewEngine(caller *analysis.Caller, results analysisModel.ResultStore, runs analysisModel.RunStore, log analysisModel.SearchLog) *Engine {
	return &Engine{
		caller:   caller,
		results:  results,
		runs:     runs,
		log:      log,
		maxChars: config.QuickSearchMaxChars,
		now:      time.Now,
		logger:   logger_i.NewLogger("quick_search"),
	}
}

func (e *Engine) Ask(ctx context.Context, runId string, question string) (analysisModel.SearchAnswer, error) {
	var answer analysisModel.SearchAnswer
	question = strings.TrimSpace(question)
	if question == "" {
		return answer, ErrEmptyQuestion
	}

	parent, found, err := e.runs.GetRun(ctx, runId)
	if err != nil {
		return answer, fmt.Errorf("loading run %s: %w", runId, err)
	}
	if !found {
		return answer, fmt.Errorf("%w: %s", analysis.ErrRunNotFound, runId)
	}
	results, err := e.results.ListResults(ctx, runId)
	if err != nil {
		return answer, fmt.Errorf("loading results of %s: %w", runId, err)
	}

	material, used, available := e.material(results)
	if len(used) == 0 {
		return answer, ErrNoAnalysis
	}

	start := e.now()
	search := analysisModel.RunState{
		Id:            analysisModel.NewRunId(analysisModel.RunKindQuickSearch, start),
		Kind:          analysisModel.RunKindQuickSearch,
		ParentRunId:   parent.Id,
		DocumentId:    parent.DocumentId,
		ChunkSetId:    parent.ChunkSetKey(),
		DocumentName:  parent.DocumentName,
		PromptVariant: "quick-search",
		Prompt:        question,
		Provider:      e.caller.Provider().Name(),
		Model:         e.caller.Provider().Model(),
		ChunkIndices:  used,
		Status:        analysisModel.RunStatusRunning,
		CreatedAt:     start,
	}

	prompt := llm.QuickSearchPrompt + "\n\nQUESTION: " + question
	text, callErr := e.caller.CallOnce(ctx, llm.Request{Prompt: prompt, Text: material})

	search.Status = analysisModel.RunStatusArchived
	search.ArchivedAt = e.now()
	if callErr != nil {
		search.Outcome = analysisModel.OutcomeAborted
		if err := e.runs.SaveRun(context.WithoutCancel(ctx), search); err != nil {
			e.logger.Error("saving failed search run", "error", err)
		}
		return answer, fmt.Errorf("quick search: %w", callErr)
	}
	search.Outcome = analysisModel.OutcomeSucceeded
	search.Summary = text
	if err := e.runs.SaveRun(ctx, search); err != nil {
		return answer, fmt.Errorf("saving search run: %w", err)
	}

	answer = analysisModel.SearchAnswer{
		RunId:        parent.Id,
		SearchRunId:  search.Id,
		Question:     question,
		Answer:       text,
		ChunkIndices: used,
		Available:    available,
		AskedAt:      start,
	}
	if err := e.log.AppendAnswer(ctx, answer); err != nil {
		return answer, fmt.Errorf("saving answer: %w", err)
	}
	e.logger.Info("question answered", "runId", parent.Id, "searchRunId", search.Id, "sections", len(used), "available", available)
	return answer, nil
}

// material joins done analyses in chunk order until the budget is used. It
// also returns how many analyses were available, so callers can tell when
// some were left out.
func (e *Engine) material(results []analysisModel.AnalysisResult) (string, []int, int) {
	var b strings.Builder
	var used []int
	available := 0
	full := false
	for _, r := range results {
		if !r.IsDone() || strings.TrimSpace(r.Output) == "" {
			continue
		}
		available++
		if full {
			continue
		}
		section := llm.LabelledSection(analysisModel.ChunkLabel(r.ChunkIndex), r.Output)
		if e.maxChars > 0 && b.Len()+len(section) > e.maxChars && len(used) > 0 {
			full = true
			continue
		}
		b.WriteString(section)
		used = append(used, r.ChunkIndex)
	}
	if full {
		e.logger.Warn("analysis text over budget, later chunks left out", "included", len(used), "available", available)
	}
	return b.String(), used, available
}

func (e *Engine) History(ctx context.Context, runId string) ([]analysisModel.SearchAnswer, error) {
	return e.log.ListAnswers(ctx, runId)
}
