package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/akolanti/ChatAnalyzer/internal/app"
	"github.com/akolanti/ChatAnalyzer/internal/data/store"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/internal/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t        *testing.T
	provider *llmtest.Provider
	store    *store.InMemoryAnalysisStore
	config   string
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:        t,
		provider: &llmtest.Provider{},
		store:    store.InitInMemoryAnalysisStore(),
		config:   filepath.Join(t.TempDir(), "config.yaml"),
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	root := NewRootCmd(app.WithProvider(h.provider), app.WithStore(h.store))
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", h.config, "--store", "memory"}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeExport(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(&b, "12/03/2023, 10:%02d - Mario: ci vediamo alla stazione %d\n", i, i)
	}
	path := filepath.Join(t.TempDir(), "export.txt")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestAnalyzeThenQuery(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("analyze", writeExport(t), "--summary=false")
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCEEDED")
	assert.Contains(t, out, "1 of 1 chunks")

	out, err = h.run("runs", "--json")
	require.NoError(t, err)
	var runs []analysisModel.RunState
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs, 1)
	runId := runs[0].Id

	h.provider.Reset()
	out, err = h.run("search", runId, "where", "do", "they", "meet?")
	require.NoError(t, err)
	assert.Contains(t, out, "analysis of:")
	assert.Equal(t, 1, h.provider.Calls())

	out, err = h.run("search", runId, "--history", "--json")
	require.NoError(t, err)
	var answers []analysisModel.SearchAnswer
	require.NoError(t, json.Unmarshal([]byte(out), &answers))
	require.Len(t, answers, 1)
	assert.Equal(t, "where do they meet?", answers[0].Question)

	out, err = h.run("conversations", runId)
	require.NoError(t, err)
	assert.Contains(t, out, "conv_001")
	assert.Contains(t, out, "Mario")
}

func TestAnalyze_AbortedRunFails(t *testing.T) {
	h := newHarness(t)
	h.provider.OnAnalyze = func(ctx context.Context, call int, req llm.Request) (string, error) {
		return "", llm.NewFatal(401, "invalid api key", llm.ErrUnauthorized)
	}

	out, err := h.run("analyze", writeExport(t), "--summary=false")
	assert.ErrorIs(t, err, ErrRunAborted)
	assert.Contains(t, out, "ABORTED")
	assert.Contains(t, out, "chunk_001")
	assert.Equal(t, 1, h.provider.Calls())
}

func TestUnknownRun(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("summary", "run_missing")
	assert.Error(t, err)
	_, err = h.run("locations", "run_missing", "--stored")
	assert.Error(t, err)
}

func TestReanalyze_RequiresKeyword(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("reanalyze", "run_x")
	assert.Error(t, err)
}

func TestBadFlags(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("--provider", "mystery", "runs")
	assert.Error(t, err)
	_, err = h.run("analyze", writeExport(t), "--exclude", "2,x")
	assert.Error(t, err)
}

func TestParseIndices(t *testing.T) {
	got, err := parseIndices(" 3, 5,9 ")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 9}, got)

	got, err = parseIndices("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseIndices("0")
	assert.Error(t, err)
}

func TestRenderReport_ListsFailedChunks(t *testing.T) {
	var buf bytes.Buffer
	run := analysisModel.RunState{Id: "run_1", DocumentName: "chat.txt", ChunkIndices: []int{1, 2, 3}}
	renderReport(&buf, run, analysisModel.RunReport{
		Outcome: analysisModel.OutcomePartial,
		Done:    []int{1, 3},
		Failed:  []analysisModel.FailedChunk{{Index: 2, Class: "Fatal", Reason: "content filtered"}},
	})
	out := buf.String()
	assert.Contains(t, out, "PARTIAL")
	assert.Contains(t, out, "2 of 3 chunks")
	assert.Contains(t, out, "chunk_002")
	assert.Contains(t, out, "content filtered")
	assert.Contains(t, out, "resume run_1")
}
