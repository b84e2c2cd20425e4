package locations

import (
	"math"
	"strings"
	"unicode"

	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize folds case, accents, punctuation and whitespace so that
// "Stazione Centrale, Milano" and "stazione  centrale milano" compare equal.
func Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}
	stripped = folder.String(stripped)

	var b strings.Builder
	space := false
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// near reports whether two points are within tolerance degrees on both axes.
func near(a, b *findingModel.Point, tolerance float64) bool {
	if a == nil || b == nil {
		return false
	}
	return math.Abs(a.Lat-b.Lat) <= tolerance && math.Abs(a.Lon-b.Lon) <= tolerance
}
