package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

// Section is one labelled piece of text fed into a summary.
type Section struct {
	Label string
	Text  string
}

// Summarizer condenses many sections into one text. Above the threshold
// (or the character budget) it summarises fixed size groups first and then
// the group summaries, recursively.
type Summarizer struct {
	caller    *Caller
	threshold int
	groupSize int
	maxChars  int
	logger    *logger_i.Logger
}

func NewSummarizer(caller *Caller) *Summarizer {
	return &Summarizer{
		caller:    caller,
		threshold: config.HierarchicalThreshold,
		groupSize: config.HierarchicalGroupSize,
		maxChars:  config.SummaryMaxChars,
		logger:    logger_i.NewLogger("summarizer"),
	}
}

func (s *Summarizer) Summarize(ctx context.Context, prompt string, sections []Section) (string, error) {
	if len(sections) == 0 {
		return "", nil
	}
	if len(sections) <= s.threshold && totalChars(sections) <= s.maxChars {
		return s.caller.Call(ctx, llm.Request{Prompt: prompt, Text: joinSections(sections)})
	}
	if len(sections) == 1 {
		//one section over the budget: cut it rather than loop
		only := sections[0]
		only.Text = llm.Truncate(only.Text, s.maxChars)
		return s.caller.Call(ctx, llm.Request{Prompt: prompt, Text: joinSections([]Section{only})})
	}

	//always at least two groups so the recursion shrinks
	groupSize := max(s.groupSize, 1)
	if groupSize >= len(sections) {
		groupSize = (len(sections) + 1) / 2
	}
	var partials []Section
	for start := 0; start < len(sections); start += groupSize {
		end := min(start+groupSize, len(sections))
		group := sections[start:end]
		label := fmt.Sprintf("%s .. %s", group[0].Label, group[len(group)-1].Label)
		s.logger.Debug("summarising group", "group", label, "sections", len(group))

		text, err := s.Summarize(ctx, prompt, group)
		if err != nil {
			return "", fmt.Errorf("summarising %s: %w", label, err)
		}
		partials = append(partials, Section{Label: label, Text: text})
	}
	return s.Summarize(ctx, prompt, partials)
}

// SummarizeRun builds the final report of a run from its done results and
// stores it on the run state.
func (s *Summarizer) SummarizeRun(ctx context.Context, results analysisModel.ResultStore, runs analysisModel.RunStore, runId string) (string, error) {
	run, found, err := runs.GetRun(ctx, runId)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, runId)
	}
	list, err := results.ListResults(ctx, runId)
	if err != nil {
		return "", err
	}
	var sections []Section
	for _, r := range list {
		if r.IsDone() {
			sections = append(sections, Section{Label: analysisModel.ChunkLabel(r.ChunkIndex), Text: r.Output})
		}
	}
	if len(sections) == 0 {
		return "", nil
	}
	summary, err := s.Summarize(ctx, llm.SummaryPrompt, sections)
	if err != nil {
		return "", err
	}
	run.Summary = summary
	if err := runs.SaveRun(ctx, run); err != nil {
		return "", fmt.Errorf("saving summary: %w", err)
	}
	s.logger.Info("run summary stored", "runId", runId, "sections", len(sections))
	return summary, nil
}

func joinSections(sections []Section) string {
	var b strings.Builder
	for _, sec := range sections {
		b.WriteString(llm.LabelledSection(sec.Label, sec.Text))
	}
	return b.String()
}

func totalChars(sections []Section) int {
	n := 0
	for _, sec := range sections {
		n += len(sec.Text)
	}
	return n
}
