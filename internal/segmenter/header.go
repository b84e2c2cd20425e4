package segmenter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/tidwall/gjson"
)

// forensic export chat headers (Cellebrite, UFED, Oxygen style)
var headerSignals = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Start Time:\s*\d`),
	regexp.MustCompile(`(?i)Participants:`),
	regexp.MustCompile(`(?i)Identifier:\s*[a-f0-9]{10,}`),
}

var (
	startTimeField    = regexp.MustCompile(`(?m)Start Time:[ \t]*(.+)$`)
	lastActivityField = regexp.MustCompile(`(?m)Last Activity:[ \t]*(.+)$`)
	accountField      = regexp.MustCompile(`(?m)Account:[ \t]*(.+)$`)
	identifierField   = regexp.MustCompile(`(?i)Identifier:\s*([a-f0-9]+)`)
	attachmentsField  = regexp.MustCompile(`(?i)Number of attachments:\s*(\d+)`)
	bodyFileField     = regexp.MustCompile(`(?i)Body file:\s*(\S+\.txt)`)
	participantsLine  = regexp.MustCompile(`(?i)^\s*Participants:[ \t]*(.*)$`)
	headerKeyLine     = regexp.MustCompile(`(?i)^\s*(Start Time|Last Activity|Account|Identifier|Number of attachments|Body file|Source|Deleted)\s*:`)
	ownerMarker       = regexp.MustCompile(`(?i)\s*[\(\[]?\s*owner\s*[\)\]]?\s*$`)
)

// headerScore counts how many of the three header signals appear.
func headerScore(text string) int {
	score := 0
	for _, re := range headerSignals {
		if re.MatchString(text) {
			score++
		}
	}
	return score
}

func parseHeader(text string) findingModel.ChatHeader {
	var h findingModel.ChatHeader
	if m := startTimeField.FindStringSubmatch(text); m != nil {
		h.StartTime = strings.TrimSpace(m[1])
	}
	if m := lastActivityField.FindStringSubmatch(text); m != nil {
		h.LastActivity = strings.TrimSpace(m[1])
	}
	if m := accountField.FindStringSubmatch(text); m != nil {
		h.Account = strings.TrimSpace(m[1])
	}
	if m := identifierField.FindStringSubmatch(text); m != nil {
		h.Identifier = m[1]
	}
	if m := attachmentsField.FindStringSubmatch(text); m != nil {
		h.Attachments, _ = strconv.Atoi(m[1])
	}
	if m := bodyFileField.FindStringSubmatch(text); m != nil {
		h.BodyFile = m[1]
	}
	h.Participants = parseParticipants(text)
	return h
}

// parseParticipants reads either an inline comma list or one participant
// per line after "Participants:" until the next header key or blank line.
func parseParticipants(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = strings.TrimSpace(ownerMarker.ReplaceAllString(strings.TrimSpace(p), ""))
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	in := false
	for _, line := range lines {
		if !in {
			m := participantsLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			in = true
			if inline := strings.TrimSpace(m[1]); inline != "" {
				for _, p := range strings.Split(inline, ",") {
					add(p)
				}
				return out
			}
			continue
		}
		if headerKeyLine.MatchString(line) || (strings.TrimSpace(line) == "" && len(out) > 0) {
			break
		}
		add(line)
	}
	return out
}

// aiHeaderDecision reads the model's {"is_chat_header": ..., "metadata": {...}}
// answer. Anything unparseable counts as "not a header".
func aiHeaderDecision(answer string) (bool, findingModel.ChatHeader) {
	var h findingModel.ChatHeader
	start := strings.IndexByte(answer, '{')
	end := strings.LastIndexByte(answer, '}')
	if start < 0 || end <= start {
		return false, h
	}
	doc := answer[start : end+1]
	if !gjson.Valid(doc) {
		return false, h
	}
	result := gjson.Parse(doc)
	if !result.Get("is_chat_header").Bool() {
		return false, h
	}
	meta := result.Get("metadata")
	h.StartTime = nonNull(meta.Get("start_time").String())
	h.LastActivity = nonNull(meta.Get("last_activity").String())
	h.Account = nonNull(meta.Get("account").String())
	h.Identifier = nonNull(meta.Get("identifier").String())
	h.BodyFile = nonNull(meta.Get("body_file").String())
	h.Attachments = int(meta.Get("num_attachments").Int())
	meta.Get("participants").ForEach(func(_, p gjson.Result) bool {
		name := p.String()
		if p.IsObject() {
			name = p.Get("name").String()
			if name == "" {
				name = p.Get("id").String()
			}
		}
		if name = nonNull(name); name != "" {
			h.Participants = append(h.Participants, name)
		}
		return true
	})
	return true, h
}

func nonNull(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

// mergeHeader fills empty fields of a from b.
func mergeHeader(a, b findingModel.ChatHeader) findingModel.ChatHeader {
	if a.StartTime == "" {
		a.StartTime = b.StartTime
	}
	if a.LastActivity == "" {
		a.LastActivity = b.LastActivity
	}
	if a.Account == "" {
		a.Account = b.Account
	}
	if a.Identifier == "" {
		a.Identifier = b.Identifier
	}
	if a.Attachments == 0 {
		a.Attachments = b.Attachments
	}
	if a.BodyFile == "" {
		a.BodyFile = b.BodyFile
	}
	if len(a.Participants) == 0 {
		a.Participants = b.Participants
	}
	return a
}
