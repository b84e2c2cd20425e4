package chunker

import (
	"regexp"
	"strings"

	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
)

var (
	//"12/03/2023, 14:22 - Mario: ..." and "[12/03/2023, 14:22:01] Mario: ..."
	dayFirstStart = regexp.MustCompile(`^\[?\d{1,2}[/.\-]\d{1,2}[/.\-]\d{2,4},?\s+\d{1,2}:\d{2}`)
	isoStart      = regexp.MustCompile(`^\[?\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}`)
	headerStart   = regexp.MustCompile(`^Start Time:\s*\d`)

	senderLine = regexp.MustCompile(`^\[?([0-9/.\-]+,?\s+[0-9:]+(?:\s?[APap][Mm])?)\]?\s*(?:-\s*)?([^:\n]{1,60}):\s`)
)

// unit is the atomic piece the chunker never splits.
type unit struct {
	start     int
	end       int
	isMessage bool
	isHeader  bool
}

func isBoundary(line string) (message bool, header bool) {
	if headerStart.MatchString(line) {
		return true, true
	}
	if dayFirstStart.MatchString(line) || isoStart.MatchString(line) {
		return true, false
	}
	return false, false
}

// splitUnits cuts text at message boundaries. Text before the first
// boundary becomes a non-message unit. Units cover text without gaps. The
// chunker and SplitMessages share it, so both agree on where messages start.
func splitUnits(text string) []unit {
	var units []unit
	current := unit{start: 0}
	offset := 0
	for offset < len(text) {
		lineEnd := strings.IndexByte(text[offset:], '\n')
		next := len(text)
		if lineEnd >= 0 {
			next = offset + lineEnd + 1
		}
		line := strings.TrimRight(text[offset:next], "\r\n")

		if message, header := isBoundary(line); message {
			if offset > current.start {
				current.end = offset
				units = append(units, current)
			}
			current = unit{start: offset, isMessage: true, isHeader: header}
		}
		offset = next
	}
	if len(text) > current.start {
		current.end = len(text)
		units = append(units, current)
	}
	return units
}

// splitLines breaks a non message unit into line sized units.
func splitLines(text string, u unit) []unit {
	var out []unit
	start := u.start
	for start < u.end {
		i := strings.IndexByte(text[start:u.end], '\n')
		end := u.end
		if i >= 0 {
			end = start + i + 1
		}
		out = append(out, unit{start: start, end: end})
		start = end
	}
	return out
}

// SplitMessages returns the message units of a chunk with back references
// to the chunk. offset is the chunk's start offset in the source.
func SplitMessages(text string, chunkIndex int, offset int) []findingModel.Message {
	units := splitUnits(text)
	messages := make([]findingModel.Message, 0, len(units))
	for i, u := range units {
		body := text[u.start:u.end]
		msg := findingModel.Message{
			ChunkIndex: chunkIndex,
			Ordinal:    i + 1,
			Offset:     offset + u.start,
			Text:       body,
			IsHeader:   u.isHeader,
		}
		if m := senderLine.FindStringSubmatch(body); m != nil {
			msg.Timestamp = strings.TrimSpace(m[1])
			msg.Sender = strings.TrimSpace(m[2])
		}
		messages = append(messages, msg)
	}
	return messages
}
