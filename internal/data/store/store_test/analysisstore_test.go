package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/data/redisStore"
	"github.com/akolanti/ChatAnalyzer/internal/data/store"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]store.AnalysisStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sqlite, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "analysis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]store.AnalysisStore{
		"memory": store.InitInMemoryAnalysisStore(),
		"redis":  store.NewRedisAnalysisStore(redisStore.NewTestStore(client)),
		"sqlite": sqlite,
	}
}

func TestAnalysisStore_Results(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Millisecond)

			for _, idx := range []int{3, 1, 2} {
				require.NoError(t, s.SaveResult(ctx, analysisModel.AnalysisResult{
					RunId: "run_a", ChunkIndex: idx, ChunkHash: "h", Status: analysisModel.ChunkPending, Timestamp: now,
				}))
			}
			require.NoError(t, s.SaveResult(ctx, analysisModel.AnalysisResult{
				RunId: "run_b", ChunkIndex: 1, Status: analysisModel.ChunkDone, Output: "other run", Timestamp: now,
			}))

			//transition overwrites the same (run, chunk) record
			require.NoError(t, s.SaveResult(ctx, analysisModel.AnalysisResult{
				RunId: "run_a", ChunkIndex: 2, ChunkHash: "h", Status: analysisModel.ChunkDone, Output: "found", Attempts: 2, Timestamp: now,
			}))

			got, found, err := s.GetResult(ctx, "run_a", 2)
			require.NoError(t, err)
			require.True(t, found)
			assert.True(t, got.IsDone())
			assert.Equal(t, "found", got.Output)
			assert.Equal(t, 2, got.Attempts)
			assert.True(t, now.Equal(got.Timestamp))

			_, found, err = s.GetResult(ctx, "run_a", 9)
			require.NoError(t, err)
			assert.False(t, found)

			list, err := s.ListResults(ctx, "run_a")
			require.NoError(t, err)
			require.Len(t, list, 3)
			for i, r := range list {
				assert.Equal(t, i+1, r.ChunkIndex)
			}

			empty, err := s.ListResults(ctx, "missing")
			require.NoError(t, err)
			assert.Empty(t, empty)
		})
	}
}

func TestAnalysisStore_Runs(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

			older := analysisModel.RunState{Id: "run_1", Kind: analysisModel.RunKindOriginal, DocumentId: "doc", Status: analysisModel.RunStatusRunning, ChunkIndices: []int{1, 2}, CreatedAt: base}
			newer := analysisModel.RunState{Id: "run_2", Kind: analysisModel.RunKindReanalysis, ParentRunId: "run_1", DocumentId: "doc", Status: analysisModel.RunStatusRunning, Keywords: []string{"minaccia"}, CreatedAt: base.Add(time.Hour)}
			require.NoError(t, s.SaveRun(ctx, older))
			require.NoError(t, s.SaveRun(ctx, newer))

			older.Status = analysisModel.RunStatusArchived
			older.Outcome = analysisModel.OutcomePartial
			older.HighestCompleted = 2
			require.NoError(t, s.SaveRun(ctx, older))

			got, found, err := s.GetRun(ctx, "run_1")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, analysisModel.RunStatusArchived, got.Status)
			assert.Equal(t, analysisModel.OutcomePartial, got.Outcome)
			assert.Equal(t, 2, got.HighestCompleted)

			runs, err := s.ListRuns(ctx)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, "run_2", runs[0].Id)
			assert.Equal(t, []string{"minaccia"}, runs[0].Keywords)

			_, found, err = s.GetRun(ctx, "nope")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestAnalysisStore_Chunks(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			chunks := []analysisModel.Chunk{
				{Index: 1, Text: "a", Hash: "ha", End: 1},
				{Index: 2, Text: "b", Hash: "hb", Start: 1, End: 2, ImageRefs: []string{"IMG-20230312-WA0001.jpg"}},
			}
			require.NoError(t, s.SaveChunks(ctx, "doc_1_aaa", chunks))
			//saving again never duplicates
			require.NoError(t, s.SaveChunks(ctx, "doc_1_aaa", chunks))

			got, err := s.ListChunks(ctx, "doc_1_aaa")
			require.NoError(t, err)
			assert.Equal(t, chunks, got)

			//a stored set is never replaced
			require.NoError(t, s.SaveChunks(ctx, "doc_1_aaa", []analysisModel.Chunk{{Index: 1, Text: "ab", Hash: "hab", End: 2}}))
			got, err = s.ListChunks(ctx, "doc_1_aaa")
			require.NoError(t, err)
			assert.Equal(t, chunks, got)

			//another chunking of the same document lives beside it
			rechunked := []analysisModel.Chunk{{Index: 1, Text: "ab", Hash: "hab", End: 2}}
			require.NoError(t, s.SaveChunks(ctx, "doc_1_bbb", rechunked))
			got, err = s.ListChunks(ctx, "doc_1_bbb")
			require.NoError(t, err)
			assert.Equal(t, rechunked, got)
			got, err = s.ListChunks(ctx, "doc_1_aaa")
			require.NoError(t, err)
			assert.Len(t, got, 2)

			none, err := s.ListChunks(ctx, "doc_2")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestAnalysisStore_SearchLog(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, q := range []string{"first?", "second?"} {
				require.NoError(t, s.AppendAnswer(ctx, analysisModel.SearchAnswer{
					RunId: "run_1", SearchRunId: "search_" + q, Question: q, Answer: "a", ChunkIndices: []int{1}, AskedAt: time.Now(),
				}))
			}
			answers, err := s.ListAnswers(ctx, "run_1")
			require.NoError(t, err)
			require.Len(t, answers, 2)
			assert.Equal(t, "first?", answers[0].Question)
			assert.Equal(t, "second?", answers[1].Question)
		})
	}
}

func TestAnalysisStore_Findings(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conversations := []findingModel.Conversation{
				{Id: "conv_1", RunId: "run_1", Participants: []string{"A", "B"}, Kind: findingModel.OneToOne, ChunkIndices: []int{1, 2}},
				{Id: "conv_2", RunId: "run_1", Participants: []string{"A", "B", "C"}, Kind: findingModel.Group, ChunkIndices: []int{2}},
			}
			require.NoError(t, s.SaveConversations(ctx, "run_1", conversations))
			require.NoError(t, s.SaveConversations(ctx, "run_1", conversations[:1]))

			gotConv, err := s.ListConversations(ctx, "run_1")
			require.NoError(t, err)
			require.Len(t, gotConv, 1)
			assert.Equal(t, findingModel.OneToOne, gotConv[0].Kind)

			mentions := []findingModel.LocationMention{
				{Id: "loc_1", RunId: "run_1", Text: "Stazione Centrale, Milano", Confidence: 80, ChunkIndices: []int{1, 3}, Point: &findingModel.Point{Lat: 45.48, Lon: 9.2}},
				{Id: "loc_2", RunId: "run_1", Text: "il solito posto", Inferred: true, Category: findingModel.InferredPlace, Confidence: 40, ChunkIndices: []int{2}},
			}
			require.NoError(t, s.SaveLocations(ctx, "run_1", mentions))
			gotLoc, err := s.ListLocations(ctx, "run_1")
			require.NoError(t, err)
			require.Len(t, gotLoc, 2)
			assert.Equal(t, []int{1, 3}, gotLoc[0].ChunkIndices)
			assert.True(t, gotLoc[0].Resolved())
			assert.False(t, gotLoc[1].Resolved())

			none, err := s.ListLocations(ctx, "run_2")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "analysis.db")
	ctx := context.Background()

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveResult(ctx, analysisModel.AnalysisResult{RunId: "r", ChunkIndex: 1, Status: analysisModel.ChunkDone, Output: "kept"}))
	require.NoError(t, s.Close())

	//migrations are not reapplied and data survives
	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, found, err := s.GetResult(ctx, "r", 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "kept", got.Output)
}
