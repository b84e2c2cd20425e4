package locations

import (
	"testing"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mention(text string, confidence int, chunks ...int) findingModel.LocationMention {
	return findingModel.LocationMention{
		Text:         text,
		Category:     findingModel.ExplicitAddress,
		Confidence:   confidence,
		ChunkIndices: chunks,
	}
}

func TestDeduplicate_NormalizedTextMerges(t *testing.T) {
	merged := Deduplicate([]findingModel.LocationMention{
		mention("Stazione Centrale, Milano", 55, 3),
		mention("stazione centrale milano", 80, 9),
	}, config.DedupTolerance)

	require.Len(t, merged, 1)
	assert.Equal(t, 80, merged[0].Confidence)
	assert.Equal(t, []int{3, 9}, merged[0].ChunkIndices)
	assert.Equal(t, "stazione centrale milano", merged[0].Text)
}

func TestDeduplicate_NearPointsMerge(t *testing.T) {
	a := mention("Duomo", 40, 1)
	a.Point = &findingModel.Point{Lat: 45.4641, Lon: 9.1919}
	b := mention("Piazza del Duomo, Milano", 70, 2)
	b.Point = &findingModel.Point{Lat: 45.4645, Lon: 9.1915}
	far := mention("Navigli", 90, 2)
	far.Point = &findingModel.Point{Lat: 45.4520, Lon: 9.1750}

	merged := Deduplicate([]findingModel.LocationMention{a, b, far}, config.DedupTolerance)
	require.Len(t, merged, 2)
	assert.Equal(t, "Piazza del Duomo, Milano", merged[0].Text)
	assert.Equal(t, []int{1, 2}, merged[0].ChunkIndices)
	assert.Equal(t, "Navigli", merged[1].Text)
}

func TestDeduplicate_TransitiveAndProvenance(t *testing.T) {
	//a matches b by text, b matches c by point: all three are one place
	a := mention("Bar Sport", 20, 1)
	b := mention("bar sport", 50, 4)
	b.Point = &findingModel.Point{Lat: 41.9, Lon: 12.5}
	c := mention("Bar dello Sport", 35, 7)
	c.Point = &findingModel.Point{Lat: 41.9005, Lon: 12.5005}
	c.Inferred = true

	merged := Deduplicate([]findingModel.LocationMention{a, b, c}, config.DedupTolerance)
	require.Len(t, merged, 1)
	assert.Equal(t, 50, merged[0].Confidence)
	assert.Equal(t, []int{1, 4, 7}, merged[0].ChunkIndices)
	assert.False(t, merged[0].Inferred)
}

func TestDeduplicate_LeavesInputAlone(t *testing.T) {
	in := []findingModel.LocationMention{mention("A", 1, 1), mention("a", 2, 2)}
	_ = Deduplicate(in, config.DedupTolerance)
	assert.Empty(t, in[0].Normalized)
	assert.Equal(t, []int{1}, in[0].ChunkIndices)
}
