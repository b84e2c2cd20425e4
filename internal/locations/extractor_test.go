package locations

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/analysis"
	"github.com/akolanti/ChatAnalyzer/internal/chunker"
	"github.com/akolanti/ChatAnalyzer/internal/data/store"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/internal/llm/llmtest"
	"github.com/akolanti/ChatAnalyzer/internal/locations/geocoding"
	"github.com/akolanti/ChatAnalyzer/internal/metrics"
	"github.com/akolanti/ChatAnalyzer/internal/pacing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockGeocoder struct {
	OnGeocode func(ctx context.Context, query string) (geocoding.Result, error)

	mu      sync.Mutex
	queries []string
}

func (m *MockGeocoder) Name() string               { return "mockgeo" }
func (m *MockGeocoder) MinInterval() time.Duration { return time.Millisecond }

func (m *MockGeocoder) Geocode(ctx context.Context, query string) (geocoding.Result, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	return m.OnGeocode(ctx, query)
}

func (m *MockGeocoder) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

func fastPacer(name string) *pacing.Controller {
	return pacing.NewController(pacing.Profile{
		Provider:   name,
		Floor:      time.Millisecond,
		Factor:     2,
		MinStep:    time.Millisecond,
		Ceiling:    10 * time.Millisecond,
		DecayAfter: 5,
	})
}

const chat = "12/03/2023, 10:00 - Mario: ci vediamo alla Stazione Centrale, Milano\n" +
	"12/03/2023, 10:05 - Luigi: ok stazione centrale milano, poi al solito posto\n"

// seedRun stores a two chunk run whose results mention the same station.
func seedRun(t *testing.T) *store.InMemoryAnalysisStore {
	t.Helper()
	ctx := context.Background()
	st := store.InitInMemoryAnalysisStore()
	chunks := chunker.New(chunker.WithMaxMessages(1)).Split(chat)
	require.Len(t, chunks, 2)
	require.NoError(t, st.SaveChunks(ctx, "doc_1", chunks))
	require.NoError(t, st.SaveRun(ctx, analysisModel.RunState{Id: "run_1", DocumentId: "doc_1", ChunkIndices: []int{1, 2}}))

	outputs := []string{
		"LOCATIONS: Stazione Centrale, Milano (Mario)",
		"LOCATIONS: stazione centrale milano; al solito posto (vague)",
	}
	for i, out := range outputs {
		require.NoError(t, st.SaveResult(ctx, analysisModel.AnalysisResult{
			RunId: "run_1", ChunkIndex: i + 1, ChunkHash: chunks[i].Hash, Status: analysisModel.ChunkDone, Output: out,
		}))
	}
	return st
}

func extractionProvider() *llmtest.Provider {
	return &llmtest.Provider{OnAnalyze: func(ctx context.Context, call int, req llm.Request) (string, error) {
		switch {
		case req.Prompt == llm.LocationContextPrompt:
			return "inferred | 90 | Bar Roma, Milano", nil
		case strings.Contains(req.Text, "(Mario)"):
			return "address | 55 | Stazione Centrale, Milano\ngarbage line", nil
		default:
			return "address | 80 | stazione centrale milano\ncoordinates | 90 | 45.4642, 9.1900", nil
		}
	}}
}

func TestExtractRun_MergesGeocodesAndInfers(t *testing.T) {
	st := seedRun(t)
	geo := &MockGeocoder{OnGeocode: func(ctx context.Context, query string) (geocoding.Result, error) {
		if Normalize(query) == "stazione centrale milano" {
			return geocoding.Result{Point: findingModel.Point{Lat: 45.4862, Lon: 9.2046}, Address: "Piazza Duca d'Aosta, Milano"}, nil
		}
		return geocoding.Result{}, geocoding.ErrNotFound
	}}
	provider := extractionProvider()
	caller := analysis.NewCaller(provider, fastPacer("mock"), pacing.CharEstimator{}, 0)
	e := New(caller, st, WithGeocoder(geo, fastPacer("mockgeo")), WithContextInference(true))

	report, err := e.ExtractRun(context.Background(), "run_1")
	require.NoError(t, err)

	//two extraction calls plus one context pass for the vague chunk
	assert.Equal(t, 3, provider.Calls())
	//the station is looked up once for both mentions
	assert.ElementsMatch(t, []string{"Stazione Centrale, Milano", "Bar Roma, Milano"}, geo.Queries())
	assert.Len(t, report.Malformed, 1)

	require.Len(t, report.Mentions, 3)
	station := report.Mentions[0]
	assert.Equal(t, "loc_001", station.Id)
	assert.Equal(t, 80, station.Confidence)
	assert.Equal(t, []int{1, 2}, station.ChunkIndices)
	require.NotNil(t, station.Point)
	assert.InDelta(t, 45.4862, station.Point.Lat, 1e-9)
	assert.Equal(t, "mockgeo", station.GeocodedBy)
	assert.Equal(t, "Luigi", station.Sender)

	coordinate := report.Mentions[1]
	assert.Equal(t, findingModel.ExplicitCoordinate, coordinate.Category)
	require.NotNil(t, coordinate.Point)
	assert.Empty(t, coordinate.GeocodedBy)

	guess := report.Mentions[2]
	assert.True(t, guess.Inferred)
	assert.Equal(t, findingModel.InferredPlace, guess.Category)
	assert.Equal(t, 60, guess.Confidence)
	assert.NotEmpty(t, guess.Context)
	assert.False(t, guess.Resolved(), "not found keeps the mention without coordinates")

	assert.Equal(t, 1, report.Geocoded)
	assert.Equal(t, 1, report.Unresolved)

	stored, err := st.ListLocations(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Equal(t, report.Mentions, stored)
}

func TestExtractRun_FailedChunkIsIsolated(t *testing.T) {
	st := seedRun(t)
	provider := &llmtest.Provider{OnAnalyze: func(ctx context.Context, call int, req llm.Request) (string, error) {
		if strings.Contains(req.Text, "(Mario)") {
			return "", llm.NewFatal(400, "content filtered", nil)
		}
		return "address | 80 | stazione centrale milano", nil
	}}
	caller := analysis.NewCaller(provider, fastPacer("mock"), pacing.CharEstimator{}, 0)

	report, err := New(caller, st).ExtractRun(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, report.FailedChunks)
	require.Len(t, report.Mentions, 1)
	assert.Equal(t, []int{2}, report.Mentions[0].ChunkIndices)
	assert.Equal(t, 1, report.Unresolved)
}

func TestExtractRun_AbortsOnRejectedCredentials(t *testing.T) {
	st := seedRun(t)
	provider := &llmtest.Provider{OnAnalyze: func(ctx context.Context, call int, req llm.Request) (string, error) {
		return "", llm.NewFatal(401, "bad key", llm.ErrUnauthorized)
	}}
	caller := analysis.NewCaller(provider, fastPacer("mock"), pacing.CharEstimator{}, 2)

	_, err := New(caller, st).ExtractRun(context.Background(), "run_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrUnauthorized))
	assert.Equal(t, 1, provider.Calls())
}

func TestExtractRun_GeocoderRateLimitRetries(t *testing.T) {
	st := seedRun(t)
	var calls int
	var mu sync.Mutex
	geo := &MockGeocoder{OnGeocode: func(ctx context.Context, query string) (geocoding.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return geocoding.Result{}, llm.NewRateLimited(0, "slow down")
		}
		return geocoding.Result{Point: findingModel.Point{Lat: 45.4862, Lon: 9.2046}}, nil
	}}
	geoPacer := fastPacer("mockgeo")
	caller := analysis.NewCaller(extractionProvider(), fastPacer("mock"), pacing.CharEstimator{}, 0)
	throttled := metrics.RateLimitedTotal.WithLabelValues("mockgeo")
	before := testutil.ToFloat64(throttled)

	report, err := New(caller, st, WithGeocoder(geo, geoPacer)).ExtractRun(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, report.Mentions[0].Resolved())
	assert.Greater(t, geoPacer.Adaptive(), time.Duration(0))
	//one throttling signal is counted once
	assert.Equal(t, 1.0, testutil.ToFloat64(throttled)-before)
}

func TestExtractRun_UnknownRun(t *testing.T) {
	caller := analysis.NewCaller(&llmtest.Provider{}, fastPacer("mock"), pacing.CharEstimator{}, 0)
	_, err := New(caller, store.InitInMemoryAnalysisStore()).ExtractRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, analysis.ErrRunNotFound))
}

func TestContextWindow(t *testing.T) {
	text := strings.Repeat("è", 20) + " ci vediamo al solito posto domani"
	w := contextWindow(text, "solito posto", 20)
	assert.True(t, strings.HasSuffix(w, "solito posto"))
	assert.LessOrEqual(t, len(w), 20)

	assert.Equal(t, "domani", contextWindow("a domani", "missing", 6))
}
