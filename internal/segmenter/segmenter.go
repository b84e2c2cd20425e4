package segmenter

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/akolanti/ChatAnalyzer/internal/analysis"
	"github.com/akolanti/ChatAnalyzer/internal/chunker"
	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

// Segmenter groups the message stream of a whole document into
// conversations. Boundaries come from chat headers: two or more header
// signals start a conversation, exactly one asks the model when that is
// enabled, none continues the current conversation. Every doubt resolves
// to merging.
type Segmenter struct {
	runs     analysisModel.RunStore
	chunks   analysisModel.ChunkStore
	findings findingModel.FindingStore

	caller     *analysis.Caller
	summarizer *analysis.Summarizer
	aiHeaders  bool
	probeChars int

	logger *logger_i.Logger
}

type Option func(*Segmenter)

// WithAIHeaderDetection lets the model decide single signal header
// candidates.
func WithAIHeaderDetection(enabled bool) Option {
	return func(s *Segmenter) { s.aiHeaders = enabled }
}

// caller may be nil: segmentation is then purely rule based and summaries
// are skipped.
func New(runs analysisModel.RunStore, chunks analysisModel.ChunkStore, findings findingModel.FindingStore, caller *analysis.Caller, opts ...Option) *Segmenter {
	s := &Segmenter{
		runs:       runs,
		chunks:     chunks,
		findings:   findings,
		caller:     caller,
		probeChars: config.HeaderProbeChars,
		logger:     logger_i.NewLogger("segmenter"),
	}
	if caller != nil {
		s.summarizer = analysis.NewSummarizer(caller)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SegmentRun segments the chunks of a run, optionally summarises every
// conversation and stores the result under the run id.
func (s *Segmenter) SegmentRun(ctx context.Context, runId string, summarize bool) ([]findingModel.Conversation, error) {
	run, found, err := s.runs.GetRun(ctx, runId)
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runId, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", analysis.ErrRunNotFound, runId)
	}
	chunks, err := s.chunks.ListChunks(ctx, run.ChunkSetKey())
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	if len(run.ChunkIndices) > 0 {
		keep := make(map[int]bool, len(run.ChunkIndices))
		for _, idx := range run.ChunkIndices {
			keep[idx] = true
		}
		var inRun []analysisModel.Chunk
		for _, ch := range chunks {
			if keep[ch.Index] {
				inRun = append(inRun, ch)
			}
		}
		chunks = inRun
	}

	conversations, err := s.Segment(ctx, runId, chunks)
	if err != nil {
		return nil, err
	}
	if summarize {
		conversations = s.Summarize(ctx, conversations)
	}
	if err := s.findings.SaveConversations(ctx, runId, conversations); err != nil {
		return nil, fmt.Errorf("saving conversations: %w", err)
	}
	return conversations, nil
}

// Segment assigns every message of every chunk to exactly one conversation.
func (s *Segmenter) Segment(ctx context.Context, runId string, chunks []analysisModel.Chunk) ([]findingModel.Conversation, error) {
	ordered := append([]analysisModel.Chunk(nil), chunks...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	var conversations []*findingModel.Conversation
	var current *findingModel.Conversation
	open := func(header *findingModel.ChatHeader) {
		current = &findingModel.Conversation{
			Id:     fmt.Sprintf("conv_%03d", len(conversations)+1),
			RunId:  runId,
			Header: header,
		}
		conversations = append(conversations, current)
	}

	for _, ch := range ordered {
		for _, msg := range chunker.SplitMessages(ch.Text, ch.Index, ch.Start) {
			if msg.Sender == "" {
				isHeader, header, err := s.detectHeader(ctx, msg.Text)
				if err != nil {
					return nil, err
				}
				msg.IsHeader = isHeader
				if isHeader {
					open(&header)
				}
			}
			if current == nil {
				//text before the first header
				open(nil)
			}
			current.Messages = append(current.Messages, msg)
		}
	}

	out := make([]findingModel.Conversation, 0, len(conversations))
	for _, c := range conversations {
		finish(c)
		out = append(out, *c)
	}
	s.logger.Info("segmentation done", "runId", runId, "chunks", len(ordered), "conversations", len(out))
	return out, nil
}

func (s *Segmenter) detectHeader(ctx context.Context, text string) (bool, findingModel.ChatHeader, error) {
	score := headerScore(text)
	switch {
	case score >= 2:
		return true, parseHeader(text), nil
	case score == 1 && s.aiHeaders && s.caller != nil:
		probe := llm.Truncate(text, s.probeChars)
		answer, err := s.caller.Call(ctx, llm.Request{Prompt: llm.HeaderDetectionPrompt, Text: probe})
		if err != nil {
			if ctx.Err() != nil {
				return false, findingModel.ChatHeader{}, ctx.Err()
			}
			s.logger.Warn("header check failed, merging", "error", err)
			return false, findingModel.ChatHeader{}, nil
		}
		isHeader, aiHeader := aiHeaderDecision(answer)
		if !isHeader {
			return false, findingModel.ChatHeader{}, nil
		}
		return true, mergeHeader(parseHeader(text), aiHeader), nil
	default:
		return false, findingModel.ChatHeader{}, nil
	}
}

// finish fills participants, kind and chunk references from the messages.
func finish(c *findingModel.Conversation) {
	counts := make(map[string]int)
	var order []string
	chunkSet := make(map[int]bool)
	for _, m := range c.Messages {
		chunkSet[m.ChunkIndex] = true
		if m.Sender == "" {
			continue
		}
		if counts[m.Sender] == 0 {
			order = append(order, m.Sender)
		}
		counts[m.Sender]++
	}

	c.Participants = stableParticipants(c.Header, order, counts)
	if len(c.Participants) == 2 {
		c.Kind = findingModel.OneToOne
	} else {
		c.Kind = findingModel.Group
	}

	c.ChunkIndices = c.ChunkIndices[:0]
	for idx := range chunkSet {
		c.ChunkIndices = append(c.ChunkIndices, idx)
	}
	sort.Ints(c.ChunkIndices)
}

// stableParticipants are the header's participants plus anyone who sent at
// least two messages. Without repeat senders every sender counts.
func stableParticipants(header *findingModel.ChatHeader, senders []string, counts map[string]int) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		key := strings.ToLower(strings.TrimSpace(p))
		if key != "" && !seen[key] {
			seen[key] = true
			out = append(out, p)
		}
	}
	if header != nil {
		for _, p := range header.Participants {
			add(p)
		}
	}
	repeat := false
	for _, sender := range senders {
		if counts[sender] >= 2 {
			repeat = true
			add(sender)
		}
	}
	if !repeat {
		for _, sender := range senders {
			add(sender)
		}
	}
	return out
}

// Summarize asks for one summary per conversation. A failure is recorded on
// that conversation and the others still get theirs.
func (s *Segmenter) Summarize(ctx context.Context, conversations []findingModel.Conversation) []findingModel.Conversation {
	if s.summarizer == nil {
		return conversations
	}
	for i := range conversations {
		if ctx.Err() != nil {
			conversations[i].SummaryError = ctx.Err().Error()
			continue
		}
		summary, err := s.summarizer.Summarize(ctx, llm.ConversationSummaryPrompt, conversationSections(conversations[i]))
		if err != nil {
			s.logger.Warn("conversation summary failed", "conversation", conversations[i].Id, "error", err)
			conversations[i].SummaryError = err.Error()
			continue
		}
		conversations[i].Summary = summary
	}
	return conversations
}

// conversationSections keeps the conversation's text per chunk so long
// conversations summarise hierarchically.
func conversationSections(c findingModel.Conversation) []analysis.Section {
	var sections []analysis.Section
	for _, m := range c.Messages {
		label := analysisModel.ChunkLabel(m.ChunkIndex)
		if n := len(sections); n > 0 && sections[n-1].Label == label {
			sections[n-1].Text += m.Text
			continue
		}
		sections = append(sections, analysis.Section{Label: label, Text: m.Text})
	}
	return sections
}
