package mcpserver

import (
	"context"
	"errors"
	"strings"

	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type QuickSearchInput struct {
	RunId    string `json:"run_id" jsonschema:"the analysis run to search"`
	Question string `json:"question" jsonschema:"the question to answer from the run's stored analyses"`
}

type QuickSearchOutput struct {
	Answer       string `json:"answer"`
	ChunkIndices []int  `json:"chunk_indices"`
	Available    int    `json:"available"`
	Note         string `json:"note,omitempty"`
}

type ListLocationsInput struct {
	RunId         string `json:"run_id" jsonschema:"the analysis run"`
	MinConfidence int    `json:"min_confidence,omitempty" jsonschema:"drop mentions below this confidence (0-100)"`
	ResolvedOnly  bool   `json:"resolved_only,omitempty" jsonschema:"only mentions with coordinates"`
}

type LocationOutput struct {
	Id         string   `json:"id"`
	Text       string   `json:"text"`
	Category   string   `json:"category"`
	Confidence int      `json:"confidence"`
	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
	Address    string   `json:"address,omitempty"`
	Inferred   bool     `json:"inferred"`
	Sender     string   `json:"sender,omitempty"`
	Timestamp  string   `json:"timestamp,omitempty"`
	Chunks     []int    `json:"chunks"`
}

type ListLocationsOutput struct {
	Locations []LocationOutput `json:"locations"`
	Count     int              `json:"count"`
}

type ListConversationsInput struct {
	RunId string `json:"run_id" jsonschema:"the analysis run"`
}

type ConversationOutput struct {
	Id           string   `json:"id"`
	Kind         string   `json:"kind"`
	Participants []string `json:"participants"`
	Messages     int      `json:"messages"`
	StartTime    string   `json:"start_time,omitempty"`
	Chunks       []int    `json:"chunks"`
	Summary      string   `json:"summary,omitempty"`
}

type ListConversationsOutput struct {
	Conversations []ConversationOutput `json:"conversations"`
	Count         int                  `json:"count"`
}

type ListRunsInput struct{}

type RunOutput struct {
	Id       string `json:"id"`
	Kind     string `json:"kind"`
	Document string `json:"document"`
	Status   string `json:"status"`
	Outcome  string `json:"outcome,omitempty"`
	Chunks   int    `json:"chunks"`
}

type ListRunsOutput struct {
	Runs []RunOutput `json:"runs"`
}

var errMissingRunId = errors.New("run_id is required")

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "quick_search",
		Description: "Answer a question from a run's stored chunk analyses with one model call, citing chunk labels",
	}, s.handleQuickSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_locations",
		Description: "List the deduplicated location mentions extracted from a run",
	}, s.handleListLocations)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_conversations",
		Description: "List the conversations a run's chat export was segmented into",
	}, s.handleListConversations)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List analysis runs, newest first",
	}, s.handleListRuns)
}

func (s *Server) handleQuickSearch(ctx context.Context, _ *mcp.CallToolRequest, input QuickSearchInput) (*mcp.CallToolResult, QuickSearchOutput, error) {
	if strings.TrimSpace(input.RunId) == "" {
		return nil, QuickSearchOutput{}, errMissingRunId
	}
	answer, err := s.analyst.Search(ctx, input.RunId, input.Question)
	if err != nil {
		return nil, QuickSearchOutput{}, err
	}
	return nil, QuickSearchOutput{
		Answer:       answer.Answer,
		ChunkIndices: answer.ChunkIndices,
		Available:    answer.Available,
		Note:         answer.Coverage(),
	}, nil
}

func (s *Server) handleListLocations(ctx context.Context, _ *mcp.CallToolRequest, input ListLocationsInput) (*mcp.CallToolResult, ListLocationsOutput, error) {
	if strings.TrimSpace(input.RunId) == "" {
		return nil, ListLocationsOutput{}, errMissingRunId
	}
	mentions, err := s.analyst.StoredLocations(ctx, input.RunId)
	if err != nil {
		return nil, ListLocationsOutput{}, err
	}
	out := ListLocationsOutput{Locations: []LocationOutput{}}
	for _, m := range mentions {
		if m.Confidence < input.MinConfidence || (input.ResolvedOnly && !m.Resolved()) {
			continue
		}
		out.Locations = append(out.Locations, toLocationOutput(m))
	}
	out.Count = len(out.Locations)
	return nil, out, nil
}

func (s *Server) handleListConversations(ctx context.Context, _ *mcp.CallToolRequest, input ListConversationsInput) (*mcp.CallToolResult, ListConversationsOutput, error) {
	if strings.TrimSpace(input.RunId) == "" {
		return nil, ListConversationsOutput{}, errMissingRunId
	}
	convs, err := s.analyst.StoredConversations(ctx, input.RunId)
	if err != nil {
		return nil, ListConversationsOutput{}, err
	}
	out := ListConversationsOutput{Conversations: make([]ConversationOutput, 0, len(convs)), Count: len(convs)}
	for _, c := range convs {
		conv := ConversationOutput{
			Id:           c.Id,
			Kind:         string(c.Kind),
			Participants: c.Participants,
			Messages:     len(c.Messages),
			Chunks:       c.ChunkIndices,
			Summary:      c.Summary,
		}
		if c.Header != nil {
			conv.StartTime = c.Header.StartTime
		}
		out.Conversations = append(out.Conversations, conv)
	}
	return nil, out, nil
}

func (s *Server) handleListRuns(ctx context.Context, _ *mcp.CallToolRequest, _ ListRunsInput) (*mcp.CallToolResult, ListRunsOutput, error) {
	runs, err := s.analyst.Runs(ctx)
	if err != nil {
		return nil, ListRunsOutput{}, err
	}
	out := ListRunsOutput{Runs: make([]RunOutput, 0, len(runs))}
	for _, r := range runs {
		out.Runs = append(out.Runs, RunOutput{
			Id:       r.Id,
			Kind:     string(r.Kind),
			Document: r.DocumentName,
			Status:   string(r.Status),
			Outcome:  string(r.Outcome),
			Chunks:   len(r.ChunkIndices),
		})
	}
	return nil, out, nil
}

func toLocationOutput(m findingModel.LocationMention) LocationOutput {
	out := LocationOutput{
		Id:         m.Id,
		Text:       m.Text,
		Category:   string(m.Category),
		Confidence: m.Confidence,
		Address:    m.Address,
		Inferred:   m.Inferred,
		Sender:     m.Sender,
		Timestamp:  m.Timestamp,
		Chunks:     m.ChunkIndices,
	}
	if m.Point != nil {
		lat, lon := m.Point.Lat, m.Point.Lon
		out.Lat, out.Lon = &lat, &lon
	}
	return out
}
