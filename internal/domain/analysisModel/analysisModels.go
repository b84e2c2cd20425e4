package analysisModel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ChunkStatus string
type RunKind string
type RunStatus string
type RunOutcome string
type DocType string

const (
	ChunkPending  ChunkStatus = "PENDING"
	ChunkInFlight ChunkStatus = "IN_FLIGHT"
	ChunkRetrying ChunkStatus = "RETRYING"
	ChunkDone     ChunkStatus = "DONE"
	ChunkFailed   ChunkStatus = "FAILED"

	RunKindOriginal    RunKind = "original"
	RunKindReanalysis  RunKind = "reanalysis"
	RunKindQuickSearch RunKind = "quick-search"

	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusArchived RunStatus = "ARCHIVED"

	OutcomeSucceeded RunOutcome = "SUCCEEDED"
	OutcomePartial   RunOutcome = "PARTIAL"
	OutcomeAborted   RunOutcome = "ABORTED"

	PDF  DocType = "PDF"
	DOCX DocType = "DOCX"
	TXT  DocType = "TXT"
	ERR  DocType = "ERROR"
)

// Document is the already extracted source text.
type Document struct {
	Id          string    `json:"id"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	ContentType DocType   `json:"content_type"`
	Text        string    `json:"-"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// Chunk is immutable once produced by the chunker.
type Chunk struct {
	Index        int      `json:"index"`
	Text         string   `json:"text"`
	Start        int      `json:"start"`
	End          int      `json:"end"`
	ImageRefs    []string `json:"image_refs,omitempty"`
	Hash         string   `json:"hash"`
	MessageCount int      `json:"message_count"`
}

// Label is the zero padded name used for sort stable artifacts.
func (c Chunk) Label() string {
	return ChunkLabel(c.Index)
}

func ChunkLabel(index int) string {
	return fmt.Sprintf("chunk_%03d", index)
}

// AnalysisResult is the persisted per chunk state, keyed by (RunId, ChunkIndex).
type AnalysisResult struct {
	RunId         string      `json:"run_id"`
	ChunkIndex    int         `json:"chunk_index"`
	ChunkHash     string      `json:"chunk_hash"`
	Provider      string      `json:"provider"`
	Model         string      `json:"model"`
	PromptVariant string      `json:"prompt_variant"`
	Output        string      `json:"output,omitempty"`
	Status        ChunkStatus `json:"status"`
	Attempts      int         `json:"attempts"`
	ErrorClass    string      `json:"error_class,omitempty"`
	ErrorReason   string      `json:"error_reason,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

func (r AnalysisResult) IsDone() bool {
	return r.Status == ChunkDone
}

type RunState struct {
	Id               string     `json:"id"`
	Kind             RunKind    `json:"kind"`
	ParentRunId      string     `json:"parent_run_id,omitempty"`
	DocumentId       string     `json:"document_id"`
	ChunkSetId       string     `json:"chunk_set_id,omitempty"`
	DocumentName     string     `json:"document_name,omitempty"`
	PromptVariant    string     `json:"prompt_variant"`
	Prompt           string     `json:"prompt,omitempty"`
	Provider         string     `json:"provider"`
	Model            string     `json:"model"`
	Keywords         []string   `json:"keywords,omitempty"`
	KeywordMode      string     `json:"keyword_mode,omitempty"`
	ChunkIndices     []int      `json:"chunk_indices"`
	Excluded         []int      `json:"excluded,omitempty"`
	HighestCompleted int        `json:"highest_completed"`
	Status           RunStatus  `json:"status"`
	Outcome          RunOutcome `json:"outcome,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ArchivedAt       time.Time  `json:"archived_at,omitempty"`
}

// ChunkSetKey is the id of the chunk set the run analyzes. Runs stored
// before chunk sets existed used the document id.
func (r RunState) ChunkSetKey() string {
	if r.ChunkSetId != "" {
		return r.ChunkSetId
	}
	return r.DocumentId
}

// NewRunId is timestamped so ids sort by creation, with a random suffix for
// runs started in the same second.
func NewRunId(kind RunKind, now time.Time) string {
	prefix := "run"
	switch kind {
	case RunKindReanalysis:
		prefix = "rerun"
	case RunKindQuickSearch:
		prefix = "search"
	}
	return fmt.Sprintf("%s_%s_%s", prefix, now.UTC().Format("20060102T150405"), uuid.NewString()[:8])
}

type FailedChunk struct {
	Index  int    `json:"index"`
	Class  string `json:"class"`
	Reason string `json:"reason"`
}

// RunReport is the end of run status report.
type RunReport struct {
	RunId       string        `json:"run_id"`
	Outcome     RunOutcome    `json:"outcome"`
	Done        []int         `json:"done"`
	Resumed     []int         `json:"resumed,omitempty"`
	Excluded    []int         `json:"excluded,omitempty"`
	Failed      []FailedChunk `json:"failed,omitempty"`
	Pending     []int         `json:"pending,omitempty"`
	AbortReason string        `json:"abort_reason,omitempty"`
	Calls       int           `json:"calls"`
	Elapsed     time.Duration `json:"elapsed"`
}

// SearchAnswer is one quick search exchange.
type SearchAnswer struct {
	RunId        string    `json:"run_id"`
	SearchRunId  string    `json:"search_run_id"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	ChunkIndices []int     `json:"chunk_indices"`
	Available    int       `json:"available"`
	AskedAt      time.Time `json:"asked_at"`
}

// Coverage notes how many of the run's analyses the answer was drawn from
// when some had to be left out. Empty when all were searched.
func (a SearchAnswer) Coverage() string {
	if a.Available <= len(a.ChunkIndices) {
		return ""
	}
	return fmt.Sprintf("%d of %d analyses searched", len(a.ChunkIndices), a.Available)
}

type ResultStore interface {
	SaveResult(ctx context.Context, result AnalysisResult) error
	GetResult(ctx context.Context, runId string, chunkIndex int) (AnalysisResult, bool, error)
	ListResults(ctx context.Context, runId string) ([]AnalysisResult, error)
}

type RunStore interface {
	SaveRun(ctx context.Context, run RunState) error
	GetRun(ctx context.Context, runId string) (RunState, bool, error)
	ListRuns(ctx context.Context) ([]RunState, error)
}

// ChunkStore keeps chunk sets by content addressed id. A saved set is never
// replaced, so every run keeps reading the chunks it analyzed.
type ChunkStore interface {
	SaveChunks(ctx context.Context, chunkSetId string, chunks []Chunk) error
	ListChunks(ctx context.Context, chunkSetId string) ([]Chunk, error)
}

type SearchLog interface {
	AppendAnswer(ctx context.Context, answer SearchAnswer) error
	ListAnswers(ctx context.Context, runId string) ([]SearchAnswer, error)
}
