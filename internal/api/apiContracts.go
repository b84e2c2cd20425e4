package api

import (
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
)

type JobExternalStatus string

const (
	JobStatusError JobExternalStatus = "Error"
)

type JobResponse struct {
	Id        string            `json:"id" example:"3f1c2a8e-8d4b-4a53-9a43-0f6e4c1b7d21"`
	Type      string            `json:"type" example:"Analyze"`
	Step      string            `json:"step,omitempty" example:"ChunkAnalysis"`
	Result    Result            `json:"result"`
	Error     *JobOutgoingError `json:"error,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
}

type JobOutgoingError struct {
	Code    int    `json:"code" example:"404"`
	Message string `json:"message" example:"run not found"`
	Retry   bool   `json:"can_retry" example:"false"`
}

type Result struct {
	Status string          `json:"status"`
	RunId  string          `json:"run_id,omitempty" example:"run_20230312T100000_1a2b3c4d"`
	Report *RunReport      `json:"report,omitempty"`
	Search *SearchResponse `json:"search,omitempty"`
}

type RunReport struct {
	Outcome        string        `json:"outcome" example:"PARTIAL"`
	Done           []int         `json:"done"`
	Resumed        []int         `json:"resumed,omitempty"`
	Excluded       []int         `json:"excluded,omitempty"`
	Pending        []int         `json:"pending,omitempty"`
	Failed         []FailedChunk `json:"failed,omitempty"`
	AbortReason    string        `json:"abort_reason,omitempty"`
	Calls          int           `json:"calls"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
}

type FailedChunk struct {
	Index  int    `json:"index" example:"7"`
	Class  string `json:"class" example:"Fatal"`
	Reason string `json:"reason" example:"content filtered"`
}

type SearchResponse struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Searched  int    `json:"searched"`
	Available int    `json:"available"`
	Note      string `json:"note,omitempty"`
}

type InitJobResponse struct {
	Id        string `json:"id"`
	StatusURL string `json:"status_url"`
}

type RunResponse struct {
	Id               string    `json:"id"`
	Kind             string    `json:"kind"`
	ParentRunId      string    `json:"parent_run_id,omitempty"`
	DocumentName     string    `json:"document_name"`
	ChunkSetId       string    `json:"chunk_set_id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptVariant    string    `json:"prompt_variant"`
	Keywords         []string  `json:"keywords,omitempty"`
	Chunks           int       `json:"chunks"`
	HighestCompleted int       `json:"highest_completed"`
	Status           string    `json:"status"`
	Outcome          string    `json:"outcome,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type RunListResponse struct {
	Runs []RunResponse `json:"runs"`
}

type ResultsResponse struct {
	RunId   string                         `json:"run_id"`
	Results []analysisModel.AnalysisResult `json:"results"`
}

type ConversationsResponse struct {
	RunId         string                      `json:"run_id"`
	Conversations []findingModel.Conversation `json:"conversations"`
}

type LocationsResponse struct {
	RunId     string                         `json:"run_id"`
	Locations []findingModel.LocationMention `json:"locations"`
}

type SearchHistoryResponse struct {
	RunId   string                       `json:"run_id"`
	Answers []analysisModel.SearchAnswer `json:"answers"`
}

// requests---------------------

type ReanalyzeRequest struct {
	Keywords []string `json:"keywords" validate:"required"`
	Mode     string   `json:"mode,omitempty" example:"any"`
	Prompt   string   `json:"prompt,omitempty"`
}

type SearchRequest struct {
	Question string `json:"question" validate:"required"`
}
