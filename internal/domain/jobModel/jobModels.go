package jobModel

import (
	"context"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
)

type JobStatus string
type InternalStatus string

type JobType string

const (
	JobStatusQueued   JobStatus = "QUEUED"
	JobStatusRunning  JobStatus = "RUNNING"
	JobStatusComplete JobStatus = "COMPLETE"
	JobStatusError    JobStatus = "Error"

	JobInit       InternalStatus = "Init"
	SourceLoad    InternalStatus = "SourceLoad"
	Chunking      InternalStatus = "Chunking"
	ChunkAnalysis InternalStatus = "ChunkAnalysis"
	Summarizing   InternalStatus = "Summarizing"
	Segmenting    InternalStatus = "Segmenting"
	Extracting    InternalStatus = "Extracting"
	Geocoding     InternalStatus = "Geocoding"
	LLMCall       InternalStatus = "LLM"
	Error         InternalStatus = "Error"

	Complete InternalStatus = "Complete"

	JobTypeAnalyze       JobType = "Analyze"
	JobTypeResume        JobType = "Resume"
	JobTypeReanalyze     JobType = "Reanalyze"
	JobTypeQuickSearch   JobType = "QuickSearch"
	JobTypeConversations JobType = "Conversations"
	JobTypeLocations     JobType = "Locations"
)

type Job struct {
	Id          string         `json:"id"`
	TraceId     string         `json:"trace_id"`
	JobType     JobType        `json:"job_type"`
	JobPayload  JobPayload     `json:"job_payload"`
	Error       JobError       `json:"error,omitempty"`
	CreatedTime time.Time      `json:"created_time"`
	EndTime     time.Time      `json:"end_time,omitempty"`
	Status      JobStatus      `json:"status"`
	CurrentStep InternalStatus `json:"current_step"`
}

type JobError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

type JobPayload struct {
	DocumentName string `json:"document_name,omitempty"`
	DocumentPath string `json:"document_path,omitempty"`

	RunId       string   `json:"run_id,omitempty"`
	Prompt      string   `json:"prompt,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	KeywordMode string   `json:"keyword_mode,omitempty"`
	Exclude     []int    `json:"exclude,omitempty"`

	Question     string `json:"question,omitempty"`
	Answer       string `json:"answer,omitempty"`
	ChunkIndices []int  `json:"chunk_indices,omitempty"`
	Available    int    `json:"available,omitempty"`

	Report *analysisModel.RunReport `json:"report,omitempty"`
}

type JobStore interface {
	GetJob(ctx context.Context, jobId string) (Job, bool)
	SaveJob(ctx context.Context, job Job) error
	DeleteJob(ctx context.Context, jobID string)
}
