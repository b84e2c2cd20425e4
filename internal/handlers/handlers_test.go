package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/akolanti/ChatAnalyzer/internal/analysis"
	"github.com/akolanti/ChatAnalyzer/internal/api"
	"github.com/akolanti/ChatAnalyzer/internal/data/store"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/jobModel"
	"github.com/akolanti/ChatAnalyzer/internal/job"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockRunReader struct {
	OnStoredLocations func(ctx context.Context, runId string) ([]findingModel.LocationMention, error)
}

func (m *MockRunReader) Run(ctx context.Context, runId string) (analysisModel.RunState, error) {
	if runId != "run_1" {
		return analysisModel.RunState{}, fmt.Errorf("%w: %s", analysis.ErrRunNotFound, runId)
	}
	return analysisModel.RunState{Id: runId, Kind: analysisModel.RunKindOriginal, ChunkIndices: []int{1, 2, 3}}, nil
}

func (m *MockRunReader) Runs(ctx context.Context) ([]analysisModel.RunState, error) {
	run, _ := m.Run(ctx, "run_1")
	return []analysisModel.RunState{run}, nil
}

func (m *MockRunReader) Results(ctx context.Context, runId string) ([]analysisModel.AnalysisResult, error) {
	return nil, nil
}

func (m *MockRunReader) SavedConversations(ctx context.Context, runId string) ([]findingModel.Conversation, error) {
	return nil, nil
}

func (m *MockRunReader) StoredLocations(ctx context.Context, runId string) ([]findingModel.LocationMention, error) {
	if _, err := m.Run(ctx, runId); err != nil {
		return nil, err
	}
	return m.OnStoredLocations(ctx, runId)
}

func (m *MockRunReader) SearchHistory(ctx context.Context, runId string) ([]analysisModel.SearchAnswer, error) {
	return nil, nil
}

var (
	testService *job.Service
	testReader  = &MockRunReader{}
)

func TestMain(m *testing.M) {
	testService = job.InitJobService(job.ServiceConfig{
		JobChannel:        make(chan jobModel.Job, 100),
		DispatcherChannel: make(chan bool, 100),
		JobStore:          store.InitInMemoryJobStore(),
	})
	InitJobHandler(testService, testReader)
	os.Exit(m.Run())
}

func router() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/status/{id}", GetStatusHandler)
	r.Get("/runs", GetRunsHandler)
	r.Post("/runs", PostAnalyzeHandler)
	r.Get("/runs/{id}", GetRunHandler)
	r.Get("/runs/{id}/locations", GetLocationsHandler)
	r.Post("/runs/{id}/resume", PostResumeHandler)
	r.Post("/runs/{id}/reanalyze", PostReanalyzeHandler)
	r.Post("/runs/{id}/search", PostSearchHandler)
	return r
}

func do(t *testing.T, method string, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router().ServeHTTP(rec, req)
	return rec
}

func nextJob(t *testing.T) jobModel.Job {
	t.Helper()
	select {
	case j := <-testService.JobChannel:
		return j
	default:
		t.Fatal("no job queued")
		return jobModel.Job{}
	}
}

func TestPostSearch_QueuesJobAndStatusIsVisible(t *testing.T) {
	rec := do(t, http.MethodPost, "/runs/run_1/search", `{"question":"who threatened whom?"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var init api.InitJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &init))
	assert.Equal(t, "/status/"+init.Id, init.StatusURL)

	queued := nextJob(t)
	assert.Equal(t, init.Id, queued.Id)
	assert.Equal(t, jobModel.JobTypeQuickSearch, queued.JobType)
	assert.Equal(t, "run_1", queued.JobPayload.RunId)
	assert.Equal(t, "who threatened whom?", queued.JobPayload.Question)

	rec = do(t, http.MethodGet, init.StatusURL, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status api.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, string(jobModel.JobTypeQuickSearch), status.Type)
	assert.Equal(t, string(jobModel.JobStatusQueued), status.Result.Status)
}

func TestJobEndpoints_Validation(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"unknown run", "/runs/run_9/resume", "", http.StatusNotFound},
		{"resume", "/runs/run_1/resume", "", http.StatusAccepted},
		{"empty question", "/runs/run_1/search", `{"question":"  "}`, http.StatusBadRequest},
		{"bad json", "/runs/run_1/search", `{`, http.StatusBadRequest},
		{"no keywords", "/runs/run_1/reanalyze", `{"keywords":[" "]}`, http.StatusBadRequest},
		{"bad mode", "/runs/run_1/reanalyze", `{"keywords":["pistola"],"mode":"most"}`, http.StatusBadRequest},
		{"reanalyze", "/runs/run_1/reanalyze", `{"keywords":["pistola","soldi"],"mode":"all"}`, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			if tt.code == http.StatusAccepted {
				nextJob(t)
			}
		})
	}
}

func TestPostReanalyze_Payload(t *testing.T) {
	rec := do(t, http.MethodPost, "/runs/run_1/reanalyze", `{"keywords":["pistola"],"prompt":"focus on weapons"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	queued := nextJob(t)
	assert.Equal(t, jobModel.JobTypeReanalyze, queued.JobType)
	assert.Equal(t, []string{"pistola"}, queued.JobPayload.Keywords)
	assert.Equal(t, "focus on weapons", queued.JobPayload.Prompt)
	//long running jobs ask the dispatcher for a worker
	assert.NotEmpty(t, testService.DispatcherChannel)
	for len(testService.DispatcherChannel) > 0 {
		<-testService.DispatcherChannel
	}
}

func TestPostAnalyze_Upload(t *testing.T) {
	t.Chdir(t.TempDir())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("document", "chat.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte("12/03/2023, 10:00 - A: ciao\n"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("exclude", "2,4"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/runs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	queued := nextJob(t)
	assert.Equal(t, jobModel.JobTypeAnalyze, queued.JobType)
	assert.Equal(t, "chat.txt", queued.JobPayload.DocumentName)
	assert.Equal(t, []int{2, 4}, queued.JobPayload.Exclude)
	data, err := os.ReadFile(queued.JobPayload.DocumentPath)
	require.NoError(t, err)
	assert.Equal(t, "12/03/2023, 10:00 - A: ciao\n", string(data))
}

func TestPostAnalyze_BadExclude(t *testing.T) {
	t.Chdir(t.TempDir())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("exclude", "two"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/runs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadEndpoints(t *testing.T) {
	testReader.OnStoredLocations = func(ctx context.Context, runId string) ([]findingModel.LocationMention, error) {
		return []findingModel.LocationMention{{Id: "loc_001", RunId: runId, Text: "Stazione Centrale", Confidence: 80}}, nil
	}

	rec := do(t, http.MethodGet, "/runs/run_1/locations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var locs api.LocationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locs))
	require.Len(t, locs.Locations, 1)
	assert.Equal(t, "Stazione Centrale", locs.Locations[0].Text)

	rec = do(t, http.MethodGet, "/runs/run_2/locations", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, http.MethodGet, "/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs api.RunListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, 3, runs.Runs[0].Chunks)

	rec = do(t, http.MethodGet, "/status/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
