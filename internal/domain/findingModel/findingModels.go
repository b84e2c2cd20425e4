package findingModel

import (
	"context"
	"time"
)

type ConversationKind string
type LocationCategory string

const (
	OneToOne ConversationKind = "1:1"
	Group    ConversationKind = "group"

	ExplicitCoordinate LocationCategory = "explicit_coordinate"
	ExplicitAddress    LocationCategory = "explicit_address"
	InferredPlace      LocationCategory = "inferred_place"
)

// Message is one message unit with a back reference to its chunk.
type Message struct {
	ChunkIndex int    `json:"chunk_index"`
	Ordinal    int    `json:"ordinal"`
	Offset     int    `json:"offset"`
	Sender     string `json:"sender,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	Text       string `json:"text"`
	IsHeader   bool   `json:"is_header,omitempty"`
}

type ChatHeader struct {
	StartTime    string   `json:"start_time,omitempty"`
	LastActivity string   `json:"last_activity,omitempty"`
	Account      string   `json:"account,omitempty"`
	Identifier   string   `json:"identifier,omitempty"`
	Attachments  int      `json:"attachments,omitempty"`
	BodyFile     string   `json:"body_file,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

type Conversation struct {
	Id           string           `json:"id"`
	RunId        string           `json:"run_id"`
	Header       *ChatHeader      `json:"header,omitempty"`
	Participants []string         `json:"participants"`
	Kind         ConversationKind `json:"kind"`
	Messages     []Message        `json:"messages"`
	ChunkIndices []int            `json:"chunk_indices"`
	Summary      string           `json:"summary,omitempty"`
	SummaryError string           `json:"summary_error,omitempty"`
}

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type LocationMention struct {
	Id           string           `json:"id"`
	RunId        string           `json:"run_id"`
	Text         string           `json:"text"`
	Normalized   string           `json:"normalized"`
	Category     LocationCategory `json:"category"`
	Confidence   int              `json:"confidence"`
	Point        *Point           `json:"point,omitempty"`
	Address      string           `json:"address,omitempty"`
	Inferred     bool             `json:"inferred"`
	Sender       string           `json:"sender,omitempty"`
	Timestamp    string           `json:"timestamp,omitempty"`
	Context      string           `json:"context,omitempty"`
	ChunkIndices []int            `json:"chunk_indices"`
	GeocodedBy   string           `json:"geocoded_by,omitempty"`
	GeocodedAt   time.Time        `json:"geocoded_at,omitempty"`
}

func (m LocationMention) Resolved() bool {
	return m.Point != nil
}

type FindingStore interface {
	SaveConversations(ctx context.Context, runId string, conversations []Conversation) error
	ListConversations(ctx context.Context, runId string) ([]Conversation, error)
	SaveLocations(ctx context.Context, runId string, mentions []LocationMention) error
	ListLocations(ctx context.Context, runId string) ([]LocationMention, error)
}
