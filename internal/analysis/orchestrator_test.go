package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/chunker"
	"github.com/akolanti/ChatAnalyzer/internal/data/store"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/internal/llm/llmtest"
	"github.com/akolanti/ChatAnalyzer/internal/pacing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPacer() *pacing.Controller {
	return pacing.NewController(pacing.Profile{
		Provider:   "mock",
		Factor:     2,
		MinStep:    time.Millisecond,
		Ceiling:    20 * time.Millisecond,
		DecayAfter: 5,
	})
}

func testChunks(n int) []analysisModel.Chunk {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "12/03/2023, 10:%02d - Mario: messaggio %d\n", i, i)
	}
	return chunker.New(chunker.WithMaxMessages(1)).Split(b.String())
}

func indicesOf(chunks []analysisModel.Chunk) []int {
	out := make([]int, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Index
	}
	return out
}

var testDoc = analysisModel.Document{Id: "doc_test", Name: "export.txt"}

func TestExecute_AllDone(t *testing.T) {
	st := store.InitInMemoryAnalysisStore()
	provider := &llmtest.Provider{}
	o := New(provider, fastPacer(), st, st)
	chunks := testChunks(4)

	run := o.NewRun(analysisModel.RunKindOriginal, testDoc, "", indicesOf(chunks), nil)
	run, report, err := o.Execute(context.Background(), run, chunks)
	require.NoError(t, err)

	assert.Equal(t, analysisModel.OutcomeSucceeded, report.Outcome)
	assert.Equal(t, []int{1, 2, 3, 4}, report.Done)
	assert.Equal(t, 4, report.Calls)
	assert.Equal(t, 4, run.HighestCompleted)
	assert.Equal(t, llm.ForensicPromptVariant, run.PromptVariant)

	saved, found, err := st.GetRun(context.Background(), run.Id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, analysisModel.RunStatusArchived, saved.Status)
	assert.Equal(t, analysisModel.OutcomeSucceeded, saved.Outcome)

	results, err := st.ListResults(context.Background(), run.Id)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, analysisModel.ChunkDone, r.Status)
		assert.Equal(t, chunks[i].Hash, r.ChunkHash)
		assert.Equal(t, "mock", r.Provider)
		assert.Contains(t, r.Output, chunks[i].Text)
	}
}

func TestResume_DoneChunksMakeNoCalls(t *testing.T) {
	st := store.InitInMemoryAnalysisStore()
	provider := &llmtest.Provider{}
	o := New(provider, fastPacer(), st, st)
	chunks := testChunks(5)

	run := o.NewRun(analysisModel.RunKindOriginal, testDoc, "", indicesOf(chunks), nil)
	_, _, err := o.Execute(context.Background(), run, chunks)
	require.NoError(t, err)
	require.Equal(t, 5, provider.Calls())

	provider.Reset()
	_, report, err := o.Resume(context.Background(), run.Id, chunks)
	require.NoError(t, err)
	assert.Equal(t, 0, provider.Calls())
	assert.Equal(t, 0, report.Calls)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, report.Resumed)
	assert.Equal(t, analysisModel.OutcomeSucceeded, report.Outcome)
}

func TestResume_AfterCancellation(t *testing.T) {
	st := store.InitInMemoryAnalysisStore()
	ctx, cancel := context.WithCancel(context.Background())
	provider := &llmtest.Provider{
		OnAnalyze: func(c context.Context, call int, req llm.Request) (string, error) {
			if call == 3 {
				//the process dies while chunk 3 is in flight
				cancel()
				return "", c.Err()
			}
			return "ok", nil
		},
	}
	o := New(provider, fastPacer(), st, st)
	chunks := testChunks(5)

	run := o.NewRun(analysisModel.RunKindOriginal, testDoc, "", indicesOf(chunks), nil)
	_, report, err := o.Execute(ctx, run, chunks)
	require.NoError(t, err)
	assert.Equal(t, analysisModel.OutcomeAborted, report.Outcome)
	assert.Equal(t, []int{1, 2}, report.Done)
	assert.Equal(t, []int{3, 4, 5}, report.Pending)

	third, found, err := st.GetResult(context.Background(), run.Id, 3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, analysisModel.ChunkPending, third.Status)

	provider.Reset()
	provider.OnAnalyze = nil
	_, report, err = o.Resume(context.Background(), run.Id, chunks)
	require.NoError(t, err)
	assert.Equal(t, 3, provider.Calls())
	assert.Equal(t, []int{1, 2}, report.Resumed)
	assert.Equal(t, analysisModel.OutcomeSucceeded, report.Outcome)
}

func TestResume_ChangedChunkIsReanalysed(t *testing.T) {
	st := store.InitInMemoryAnalysisStore()
	provider := &llmtest.Provider{}
	o := New(provider, fastPacer(), st, st)
	chunks := testChunks(3)

	run := o.NewRun(analysisModel.RunKindOriginal, testDoc, "", indicesOf(chunks), nil)
	_, _, err := o.Execute(context.Background(), run, chunks)
	require.NoError(t, err)

	chunks[1].Text += "edited"
	chunks[1].Hash = chunker.Hash(chunks[1].Text)
	provider.Reset()
	_, report, err := o.Resume(context.Background(), run.Id, chunks)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.Calls())
	assert.Equal(t, []int{1, 3}, report.Resumed)
}

func TestExecute_RateLimitedThenDone(t *testing.T) {
	st := store.InitInMemoryAnalysisStore()
	pacer := fastPacer()
	chunks := testChunks(6)
	tokens := pacing.CharEstimator{}.EstimateTokens(llm.ForensicPrompt + chunks[4].Text)
	before := pacer.Delay(tokens)

	var chunk5Attempts int
	var mu sync.Mutex
	provider := &llmtest.Provider{
		OnAnalyze: func(ctx context.Context, call int, req llm.Request) (string, error) {
			if req.Text == chunks[4].Text {
				mu.Lock()
				defer mu.Unlock()
				chunk5Attempts++
				if chunk5Attempts == 1 {
					return "", llm.NewRateLimited(0, "tokens per minute exceeded")
				}
			}
			return "ok", nil
		},
	}
	var transitions []analysisModel.ChunkStatus
	o := New(provider, pacer, st, st, WithProgress(func(r analysisModel.AnalysisResult) {
		if r.ChunkIndex == 5 {
			transitions = append(transitions, r.Status)
		}
	}))

	run := o.NewRun(analysisModel.RunKindOriginal, testDoc, "", indicesOf(chunks), nil)
	_, report, err := o.Execute(context.Background(), run, chunks)
	require.NoError(t, err)

	assert.Equal(t, analysisModel.OutcomeSucceeded, report.Outcome)
	assert.Contains(t, report.Done, 5)
	assert.Equal(t, 7, report.Calls)

	fifth, _, err := st.GetResult(context.Background(), run.Id, 5)
	require.NoError(t, err)
	assert.Equal(t, analysisModel.ChunkDone, fifth.Status)
	assert.Equal(t, 2, fifth.Attempts)
	assert.Equal(t, []analysisModel.ChunkStatus{
		analysisModel.ChunkPending,
		analysisModel.ChunkInFlight,
		analysisModel.ChunkRetrying,
		analysisModel.ChunkInFlight,
		analysisModel.ChunkDone,
	}, transitions)

	assert.Greater(t, pacer.Delay(tokens), before)
}

func TestExecute_FailuresAreIsolated(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		calls    int
		outcome  analysisModel.RunOutcome
		failed   []int
		done     []int
		pending  []int
		ceiling  int
		failOnly int
	}{
		{
			name:     "transient exhausts retries",
			err:      llm.NewTransient(503, "overloaded", nil),
			ceiling:  2,
			failOnly: 2,
			calls:    3 + 3,
			outcome:  analysisModel.OutcomePartial,
			failed:   []int{2},
			done:     []int{1, 3, 4},
		},
		{
			name:     "fatal does not retry",
			err:      llm.NewFatal(400, "context length exceeded", nil),
			ceiling:  3,
			failOnly: 3,
			calls:    4,
			outcome:  analysisModel.OutcomePartial,
			failed:   []int{3},
			done:     []int{1, 2, 4},
		},
		{
			name:     "unauthorized aborts the run",
			err:      llm.FromHTTPStatus(401, nil, "invalid x-api-key"),
			ceiling:  3,
			failOnly: 1,
			calls:    1,
			outcome:  analysisModel.OutcomeAborted,
			failed:   []int{1},
			pending:  []int{2, 3, 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.InitInMemoryAnalysisStore()
			chunks := testChunks(4)
			provider := &llmtest.Provider{
				OnAnalyze: func(ctx context.Context, call int, req llm.Request) (string, error) {
					if req.Text == chunks[tt.failOnly-1].Text {
						return "", tt.err
					}
					return "ok", nil
				},
			}
			o := New(provider, fastPacer(), st, st, WithRetryCeiling(tt.ceiling))

			run := o.NewRun(analysisModel.RunKindOriginal, testDoc, "", indicesOf(chunks), nil)
			_, report, err := o.Execute(context.Background(), run, chunks)
			require.NoError(t, err)

			assert.Equal(t, tt.outcome, report.Outcome)
			assert.Equal(t, tt.calls, provider.Calls())
			assert.Equal(t, tt.done, report.Done)
			assert.Equal(t, tt.pending, report.Pending)
			var failed []int
			for _, f := range report.Failed {
				failed = append(failed, f.Index)
				assert.NotEmpty(t, f.Reason)
			}
			assert.Equal(t, tt.failed, failed)
		})
	}
}

func TestExecute_ExclusionList(t *testing.T) {
	st := store.InitInMemoryAnalysisStore()
	provider := &llmtest.Provider{}
	o := New(provider, fastPacer(), st, st)
	chunks := testChunks(4)

	run := o.NewRun(analysisModel.RunKindOriginal, testDoc, "", indicesOf(chunks), []int{3, 2, 3})
	assert.Equal(t, []int{2, 3}, run.Excluded)

	_, report, err := o.Execute(context.Background(), run, chunks)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, report.Done)
	assert.Equal(t, []int{2, 3}, report.Excluded)
	assert.Equal(t, 2, provider.Calls())
	assert.Equal(t, analysisModel.OutcomeSucceeded, report.Outcome)
}

type MockResultStore struct {
	OnSaveResult func(ctx context.Context, result analysisModel.AnalysisResult) error
	inner        *store.InMemoryAnalysisStore
}

func (m *MockResultStore) SaveResult(ctx context.Context, result analysisModel.AnalysisResult) error {
	if m.OnSaveResult != nil {
		if err := m.OnSaveResult(ctx, result); err != nil {
			return err
		}
	}
	return m.inner.SaveResult(ctx, result)
}

func (m *MockResultStore) GetResult(ctx context.Context, runId string, chunkIndex int) (analysisModel.AnalysisResult, bool, error) {
	return m.inner.GetResult(ctx, runId, chunkIndex)
}

func (m *MockResultStore) ListResults(ctx context.Context, runId string) ([]analysisModel.AnalysisResult, error) {
	return m.inner.ListResults(ctx, runId)
}

func TestExecute_StoreFailureStopsRun(t *testing.T) {
	inner := store.InitInMemoryAnalysisStore()
	diskFull := errors.New("disk full")
	results := &MockResultStore{
		inner: inner,
		OnSaveResult: func(ctx context.Context, r analysisModel.AnalysisResult) error {
			if r.ChunkIndex == 2 && r.Status == analysisModel.ChunkDone {
				return diskFull
			}
			return nil
		},
	}
	o := New(&llmtest.Provider{}, fastPacer(), results, inner)
	chunks := testChunks(3)

	run := o.NewRun(analysisModel.RunKindOriginal, testDoc, "", indicesOf(chunks), nil)
	_, _, err := o.Execute(context.Background(), run, chunks)
	require.ErrorIs(t, err, diskFull)

	first, _, _ := inner.GetResult(context.Background(), run.Id, 1)
	assert.True(t, first.IsDone())
}

func TestExecute_VisionImages(t *testing.T) {
	dir := t.TempDir()
	png := []byte("\x89PNG\r\n\x1a\n0000000000000000")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "IMG-20230312-WA0001.jpg"), png, 0600))

	doc := "12/03/2023, 10:00 - A: IMG-20230312-WA0001.jpg (file attached)\n" +
		"12/03/2023, 10:01 - A: IMG-20230312-WA0002.jpg (file attached)\n"
	chunks := chunker.New().Split(doc)
	require.Len(t, chunks, 1)

	st := store.InitInMemoryAnalysisStore()
	provider := &llmtest.Provider{Vision: true}
	o := New(provider, fastPacer(), st, st, WithMedia(NewMediaResolver(dir, 4)))

	run := o.NewRun(analysisModel.RunKindOriginal, testDoc, "", indicesOf(chunks), nil)
	_, _, err := o.Execute(context.Background(), run, chunks)
	require.NoError(t, err)

	reqs := provider.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Images, 1, "missing media is skipped")
	assert.Equal(t, "image/png", reqs[0].Images[0].MimeType)
}

func TestResume_UnknownRun(t *testing.T) {
	st := store.InitInMemoryAnalysisStore()
	o := New(&llmtest.Provider{}, fastPacer(), st, st)
	_, _, err := o.Resume(context.Background(), "run_missing", nil)
	assert.ErrorIs(t, err, ErrRunNotFound)
}
