package llm

import (
	"context"
	"strings"
)

// Image is one image payload for a vision capable call.
type Image struct {
	Name     string
	MimeType string
	Data     []byte
}

// Request is a single analysis call. Prompt carries the instructions and
// Text the material to analyse (a chunk, prior analysis, a conversation).
type Request struct {
	Prompt string
	Text   string
	Images []Image
}

// Provider is the one capability every backend exposes. Implementations
// never retry: failures come back as *CallError so the caller owns policy.
type Provider interface {
	Name() string
	Model() string
	Metered() bool
	SupportsVision() bool
	Analyze(ctx context.Context, req Request) (string, error)
}

// UserContent is the text sent as the user turn.
func UserContent(req Request) string {
	if strings.TrimSpace(req.Text) == "" {
		return req.Prompt
	}
	var b strings.Builder
	b.WriteString(req.Prompt)
	b.WriteString("\n\n=== MATERIAL ===\n")
	b.WriteString(req.Text)
	return b.String()
}
