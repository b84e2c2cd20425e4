package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/adapter"
	"github.com/akolanti/ChatAnalyzer/internal/adapter/utils"
	"github.com/akolanti/ChatAnalyzer/internal/api"
	"github.com/akolanti/ChatAnalyzer/internal/domain/jobModel"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

var logRH *logger_i.Logger

type newJobData struct {
	id      string
	traceId string
	jobType jobModel.JobType
	payload jobModel.JobPayload
}

func GetHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// PostAnalyzeHandler uploads a chat export and queues a fresh analysis run.
// @Summary      Analyze a chat export
// @Description  Receives a document via multipart/form-data, saves it to a temporary directory, and queues an analysis job over every chunk.
// @Tags         Runs
// @Accept       multipart/form-data
// @Produce      json
// @Param        document  formData  file    true   "The exported chat (txt, pdf or docx)"
// @Param        prompt    formData  string  false  "Custom analysis prompt, the forensic prompt when empty"
// @Param        exclude   formData  string  false  "Comma separated chunk indices to exclude"
// @Success      202  {object}  api.InitJobResponse  "Job successfully created"
// @Failure      400  {object}  api.JobResponse      "Missing file, bad exclude list or file too large"
// @Failure      500  {object}  api.JobResponse      "Storage or write error"
// @Router       /runs [post]
func PostAnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		logRH.Warn("Invalid Context by request ", "remote", r.RemoteAddr)
		return
	}

	targetDir, errString := getTargetDirectory()
	if errString != "" {
		logRH.Error("Couldn't get target directory :", "err", errString)
		WriteErrorResponse(w, http.StatusInternalServerError, "", errString)
		return
	}

	const maxUploadSize = 64 << 20 //64mb
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "", "File too large or bad request")
		return
	}

	exclude, err := parseIndexList(r.FormValue("exclude"))
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "", err.Error())
		return
	}

	fileReader, fileMetadata, err := r.FormFile("document")
	if err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "", "Could not retrieve file")
		return
	}
	defer fileReader.Close()

	docName := filepath.Base(fileMetadata.Filename)
	tempFilePath := filepath.Join(targetDir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), docName))
	destinationFileWriter, err := os.Create(tempFilePath)
	if err != nil {
		WriteErrorResponse(w, http.StatusInternalServerError, docName, "Storage error")
		return
	}
	defer destinationFileWriter.Close()

	if _, err := io.Copy(destinationFileWriter, fileReader); err != nil {
		WriteErrorResponse(w, http.StatusInternalServerError, docName, "Write error")
		return
	}

	queueJob(w, r, jobModel.JobTypeAnalyze, jobModel.JobPayload{
		DocumentName: docName,
		DocumentPath: tempFilePath,
		Prompt:       r.FormValue("prompt"),
		Exclude:      exclude,
	})
}

// PostResumeHandler queues a resume of an interrupted run.
// @Summary      Resume a run
// @Description  Continues an existing run from its first chunk without a stored result. Completed chunks are never sent again.
// @Tags         Runs
// @Produce      json
// @Param        id   path      string  true  "Run ID"
// @Success      202  {object}  api.InitJobResponse
// @Failure      404  {object}  api.JobResponse  "Run not found"
// @Router       /runs/{id}/resume [post]
func PostResumeHandler(w http.ResponseWriter, r *http.Request) {
	runId, ok := existingRun(w, r)
	if !ok {
		return
	}
	queueJob(w, r, jobModel.JobTypeResume, jobModel.JobPayload{RunId: runId})
}

// PostReanalyzeHandler queues a keyword reanalysis of a run's chunks.
// @Summary      Reanalyze by keyword
// @Description  Selects the parent run's chunks matching the keywords and analyses them in a new child run.
// @Tags         Runs
// @Accept       json
// @Produce      json
// @Param        id       path      string                true  "Parent run ID"
// @Param        request  body      api.ReanalyzeRequest  true  "Keywords, match mode (any or all) and optional prompt"
// @Success      202  {object}  api.InitJobResponse
// @Failure      400  {object}  api.JobResponse  "Missing keywords or bad mode"
// @Failure      404  {object}  api.JobResponse  "Run not found"
// @Router       /runs/{id}/reanalyze [post]
func PostReanalyzeHandler(w http.ResponseWriter, r *http.Request) {
	runId, ok := existingRun(w, r)
	if !ok {
		return
	}
	var requestData api.ReanalyzeRequest
	if !decodeBody(w, r, runId, &requestData) {
		return
	}
	if !validReanalyzeRequest(requestData) {
		logRH.Warn("Bad reanalyze request", "runId", runId, "request", requestData)
		WriteErrorResponse(w, http.StatusBadRequest, runId, "keywords are required and mode must be any or all")
		return
	}
	queueJob(w, r, jobModel.JobTypeReanalyze, jobModel.JobPayload{
		RunId:       runId,
		Keywords:    requestData.Keywords,
		KeywordMode: requestData.Mode,
		Prompt:      requestData.Prompt,
	})
}

// PostSearchHandler queues a quick search question against a run.
// @Summary      Quick search
// @Description  Answers a question from the run's stored analyses with a single model call.
// @Tags         Runs
// @Accept       json
// @Produce      json
// @Param        id       path      string             true  "Run ID"
// @Param        request  body      api.SearchRequest  true  "Question"
// @Success      202  {object}  api.InitJobResponse
// @Failure      400  {object}  api.JobResponse  "Empty question"
// @Failure      404  {object}  api.JobResponse  "Run not found"
// @Router       /runs/{id}/search [post]
func PostSearchHandler(w http.ResponseWriter, r *http.Request) {
	runId, ok := existingRun(w, r)
	if !ok {
		return
	}
	var requestData api.SearchRequest
	if !decodeBody(w, r, runId, &requestData) {
		return
	}
	if strings.TrimSpace(requestData.Question) == "" {
		WriteErrorResponse(w, http.StatusBadRequest, runId, "question is required")
		return
	}
	queueJob(w, r, jobModel.JobTypeQuickSearch, jobModel.JobPayload{RunId: runId, Question: requestData.Question})
}

// PostConversationsHandler queues conversation segmentation with summaries.
// @Summary      Segment conversations
// @Tags         Findings
// @Produce      json
// @Param        id   path      string  true  "Run ID"
// @Success      202  {object}  api.InitJobResponse
// @Failure      404  {object}  api.JobResponse  "Run not found"
// @Router       /runs/{id}/conversations [post]
func PostConversationsHandler(w http.ResponseWriter, r *http.Request) {
	runId, ok := existingRun(w, r)
	if !ok {
		return
	}
	queueJob(w, r, jobModel.JobTypeConversations, jobModel.JobPayload{RunId: runId})
}

// PostLocationsHandler queues location extraction and geocoding.
// @Summary      Extract locations
// @Tags         Findings
// @Produce      json
// @Param        id   path      string  true  "Run ID"
// @Success      202  {object}  api.InitJobResponse
// @Failure      404  {object}  api.JobResponse  "Run not found"
// @Router       /runs/{id}/locations [post]
func PostLocationsHandler(w http.ResponseWriter, r *http.Request) {
	runId, ok := existingRun(w, r)
	if !ok {
		return
	}
	queueJob(w, r, jobModel.JobTypeLocations, jobModel.JobPayload{RunId: runId})
}

// GetStatusHandler godoc
// @Summary      Get job status
// @Description  Retrieves the current status of a specific job using its ID.
// @Tags         Job Status
// @Produce      json
// @Param        id   path      string  true  "Job ID"
// @Success      200  {object}  api.JobResponse   "Successful retrieval of job status"
// @Failure      404  {object}  api.JobResponse   "Job not found (returns Error object within JobResponse)"
// @Router       /status/{id} [get]
func GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	idString := utils.GetChiURLParam(r, "id")
	result, isFound := validateId(idString, traceOf(r))

	logRH.Debug("Get Status Request:", "URL path", r.URL.Path)
	if !isFound {
		WriteErrorResponse(w, http.StatusNotFound, idString, "Job not found")
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToAPIResponse(result))
}

// GetRunsHandler lists every run.
// @Summary      List runs
// @Tags         Runs
// @Produce      json
// @Success      200  {object}  api.RunListResponse
// @Router       /runs [get]
func GetRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	runs, err := reader().Runs(r.Context())
	if err != nil {
		writeReadError(w, "", err)
		return
	}
	res := api.RunListResponse{Runs: make([]api.RunResponse, 0, len(runs))}
	for _, run := range runs {
		res.Runs = append(res.Runs, adapter.ToRunResponse(run))
	}
	writeJsonResponse(w, http.StatusOK, res)
}

// GetRunHandler returns one run.
// @Summary      Get run
// @Tags         Runs
// @Produce      json
// @Param        id   path      string  true  "Run ID"
// @Success      200  {object}  api.RunResponse
// @Failure      404  {object}  api.JobResponse  "Run not found"
// @Router       /runs/{id} [get]
func GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	runId := utils.GetChiURLParam(r, "id")
	run, err := reader().Run(r.Context(), runId)
	if err != nil {
		writeReadError(w, runId, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToRunResponse(run))
}

// GetResultsHandler returns the stored per-chunk results of a run.
// @Summary      List run results
// @Tags         Runs
// @Produce      json
// @Param        id   path      string  true  "Run ID"
// @Success      200  {object}  api.ResultsResponse
// @Failure      404  {object}  api.JobResponse  "Run not found"
// @Router       /runs/{id}/results [get]
func GetResultsHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	runId := utils.GetChiURLParam(r, "id")
	results, err := reader().Results(r.Context(), runId)
	if err != nil {
		writeReadError(w, runId, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, api.ResultsResponse{RunId: runId, Results: results})
}

// GetConversationsHandler returns the stored conversations of a run.
// @Summary      List conversations
// @Tags         Findings
// @Produce      json
// @Param        id   path      string  true  "Run ID"
// @Success      200  {object}  api.ConversationsResponse
// @Failure      404  {object}  api.JobResponse  "Run not found"
// @Router       /runs/{id}/conversations [get]
func GetConversationsHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	runId := utils.GetChiURLParam(r, "id")
	convs, err := reader().SavedConversations(r.Context(), runId)
	if err != nil {
		writeReadError(w, runId, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, api.ConversationsResponse{RunId: runId, Conversations: convs})
}

// GetLocationsHandler returns the stored location mentions of a run.
// @Summary      List locations
// @Tags         Findings
// @Produce      json
// @Param        id   path      string  true  "Run ID"
// @Success      200  {object}  api.LocationsResponse
// @Failure      404  {object}  api.JobResponse  "Run not found"
// @Router       /runs/{id}/locations [get]
func GetLocationsHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	runId := utils.GetChiURLParam(r, "id")
	locs, err := reader().StoredLocations(r.Context(), runId)
	if err != nil {
		writeReadError(w, runId, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, api.LocationsResponse{RunId: runId, Locations: locs})
}

// GetSearchesHandler returns the quick search history of a run.
// @Summary      Quick search history
// @Tags         Runs
// @Produce      json
// @Param        id   path      string  true  "Run ID"
// @Success      200  {object}  api.SearchHistoryResponse
// @Failure      404  {object}  api.JobResponse  "Run not found"
// @Router       /runs/{id}/searches [get]
func GetSearchesHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	runId := utils.GetChiURLParam(r, "id")
	if _, err := reader().Run(r.Context(), runId); err != nil {
		writeReadError(w, runId, err)
		return
	}
	answers, err := reader().SearchHistory(r.Context(), runId)
	if err != nil {
		writeReadError(w, runId, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, api.SearchHistoryResponse{RunId: runId, Answers: answers})
}

func decodeBody(w http.ResponseWriter, r *http.Request, id string, into any) bool {
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logRH.Error("Couldn't close the request body", "error", err)
		}
	}(r.Body)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		logRH.Warn("Bad request body", "error", err)
		WriteErrorResponse(w, http.StatusBadRequest, id, "Bad Request")
		return false
	}
	return true
}

func parseIndexList(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("bad chunk index %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}
