package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

// Chunker splits extracted document text into bounded chunks that never cut
// a message in half.
type Chunker struct {
	maxChars    int
	maxMessages int
	logger      *logger_i.Logger
}

type Option func(*Chunker)

// WithMaxChars bounds a chunk's length in bytes. Values below 1 are ignored.
func WithMaxChars(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

// WithMaxMessages bounds the number of message units per chunk. 0 disables it.
func WithMaxMessages(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.maxMessages = n
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxChars: config.DefaultChunkMaxChars,
		logger:   logger_i.NewLogger("chunker"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split produces the ordered chunks of text. Chunk indices start at 1. The
// result is deterministic, so re-splitting the same text yields the same
// chunks and hashes. Empty text yields no chunks.
func (c *Chunker) Split(text string) []analysisModel.Chunk {
	if text == "" {
		return []analysisModel.Chunk{}
	}

	var units []unit
	for _, u := range splitUnits(text) {
		if !u.isMessage && u.end-u.start > c.maxChars {
			units = append(units, splitLines(text, u)...)
			continue
		}
		units = append(units, u)
	}

	var chunks []analysisModel.Chunk
	start, end, messages := -1, -1, 0
	flush := func() {
		if start < 0 {
			return
		}
		chunks = append(chunks, c.newChunk(text, len(chunks)+1, start, end, messages))
		start, end, messages = -1, -1, 0
	}

	for _, u := range units {
		size := u.end - u.start
		if start >= 0 {
			overChars := end-start+size > c.maxChars
			overMessages := c.maxMessages > 0 && u.isMessage && messages >= c.maxMessages
			if overChars || overMessages {
				flush()
			}
		}
		if start < 0 {
			start = u.start
		}
		end = u.end
		if u.isMessage {
			messages++
		}
		if size > c.maxChars {
			c.logger.Debug("oversized unit kept whole", "offset", u.start, "size", size)
			flush()
		}
	}
	flush()

	c.logger.Debug("document split", "chunks", len(chunks), "bytes", len(text))
	return chunks
}

func (c *Chunker) newChunk(text string, index, start, end, messages int) analysisModel.Chunk {
	body := text[start:end]
	return analysisModel.Chunk{
		Index:        index,
		Text:         body,
		Start:        start,
		End:          end,
		ImageRefs:    ExtractImageRefs(body),
		Hash:         Hash(body),
		MessageCount: messages,
	}
}

// Hash is the content hash used to recognise identical reruns.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SetId names a chunk set by its document and the hashes of its chunks. The
// same text split under different bounds gets a different id.
func SetId(documentId string, chunks []analysisModel.Chunk) string {
	h := sha256.New()
	for _, ch := range chunks {
		fmt.Fprintf(h, "%d:%s\n", ch.Index, ch.Hash)
	}
	return documentId + "_" + hex.EncodeToString(h.Sum(nil))[:12]
}

// Join concatenates chunks in index order.
func Join(chunks []analysisModel.Chunk) string {
	n := 0
	for _, ch := range chunks {
		n += len(ch.Text)
	}
	buf := make([]byte, 0, n)
	for _, ch := range chunks {
		buf = append(buf, ch.Text...)
	}
	return string(buf)
}
