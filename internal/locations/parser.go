package locations

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/tidwall/gjson"
)

// ParsedFinding is one well formed line of extraction output.
type ParsedFinding struct {
	Category   findingModel.LocationCategory
	Confidence int
	Text       string
	Point      *findingModel.Point
}

// MalformedLine is dropped from the findings but kept for the run log.
type MalformedLine struct {
	Line   string
	Reason string
}

var coordinatePair = regexp.MustCompile(`(-?\d{1,2}(?:\.\d+)?)\s*[,;\s]\s*(-?\d{1,3}(?:\.\d+)?)`)

// ParseOutput reads extraction output in any of the accepted forms: pipe
// lines, one JSON object per line or a single {"locations": [...]}
// document. It never fails; bad lines come back as MalformedLine.
func ParseOutput(output string) ([]ParsedFinding, []MalformedLine) {
	trimmed := strings.TrimSpace(stripFences(output))
	if trimmed == "" || strings.EqualFold(trimmed, "NONE") {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		if list := gjson.Get(trimmed, "locations"); list.IsArray() {
			var findings []ParsedFinding
			var malformed []MalformedLine
			list.ForEach(func(_, item gjson.Result) bool {
				f, err := parseObject(item)
				if err != "" {
					malformed = append(malformed, MalformedLine{Line: item.Raw, Reason: err})
				} else {
					findings = append(findings, f)
				}
				return true
			})
			return findings, malformed
		}
	}

	var findings []ParsedFinding
	var malformed []MalformedLine
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		if line == "" || strings.EqualFold(line, "NONE") {
			continue
		}
		var f ParsedFinding
		var reason string
		if strings.HasPrefix(line, "{") {
			if !gjson.Valid(line) {
				reason = "invalid json"
			} else {
				f, reason = parseObject(gjson.Parse(line))
			}
		} else {
			f, reason = parsePipe(line)
		}
		if reason != "" {
			malformed = append(malformed, MalformedLine{Line: line, Reason: reason})
			continue
		}
		findings = append(findings, f)
	}
	return findings, malformed
}

func parsePipe(line string) (ParsedFinding, string) {
	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return ParsedFinding{}, "expected category | confidence | text"
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	category, ok := parseCategory(parts[0])
	if !ok {
		return ParsedFinding{}, "unknown category " + parts[0]
	}
	confidence, err := strconv.Atoi(strings.TrimSuffix(parts[1], "%"))
	if err != nil || confidence < 0 || confidence > 100 {
		return ParsedFinding{}, "confidence must be 0-100"
	}
	f := ParsedFinding{Category: category, Confidence: confidence, Text: parts[2]}
	if f.Text == "" {
		return ParsedFinding{}, "empty text"
	}
	if len(parts) > 3 && parts[3] != "" {
		f.Point = parsePoint(parts[3])
		if f.Point == nil {
			return ParsedFinding{}, "bad coordinates " + parts[3]
		}
	}
	resolveCoordinates(&f)
	return f, ""
}

func parseObject(obj gjson.Result) (ParsedFinding, string) {
	if !obj.IsObject() {
		return ParsedFinding{}, "not an object"
	}
	category, ok := parseCategory(obj.Get("category").String())
	if !ok {
		return ParsedFinding{}, "unknown category " + obj.Get("category").String()
	}
	confidence := obj.Get("confidence")
	if !confidence.Exists() || confidence.Int() < 0 || confidence.Int() > 100 {
		return ParsedFinding{}, "confidence must be 0-100"
	}
	text := strings.TrimSpace(obj.Get("text").String())
	if text == "" {
		return ParsedFinding{}, "empty text"
	}
	f := ParsedFinding{Category: category, Confidence: int(confidence.Int()), Text: text}
	lat, lon := obj.Get("lat"), obj.Get("lon")
	if !lon.Exists() {
		lon = obj.Get("lng")
	}
	if lat.Exists() && lon.Exists() {
		p := findingModel.Point{Lat: lat.Float(), Lon: lon.Float()}
		if !validPoint(p) {
			return ParsedFinding{}, "coordinates out of range"
		}
		f.Point = &p
	}
	resolveCoordinates(&f)
	return f, ""
}

func parseCategory(s string) (findingModel.LocationCategory, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coordinates", "coordinate", "gps", string(findingModel.ExplicitCoordinate):
		return findingModel.ExplicitCoordinate, true
	case "address", string(findingModel.ExplicitAddress):
		return findingModel.ExplicitAddress, true
	case "place", "inferred", "deduced", string(findingModel.InferredPlace):
		return findingModel.InferredPlace, true
	}
	return "", false
}

func parsePoint(s string) *findingModel.Point {
	m := coordinatePair.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	lat, err1 := strconv.ParseFloat(m[1], 64)
	lon, err2 := strconv.ParseFloat(m[2], 64)
	p := findingModel.Point{Lat: lat, Lon: lon}
	if err1 != nil || err2 != nil || !validPoint(p) {
		return nil
	}
	return &p
}

// resolveCoordinates lets explicit coordinates in the text stand in for a
// geocoding call.
func resolveCoordinates(f *ParsedFinding) {
	if f.Point == nil && f.Category == findingModel.ExplicitCoordinate {
		f.Point = parsePoint(f.Text)
	}
}

func validPoint(p findingModel.Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}
