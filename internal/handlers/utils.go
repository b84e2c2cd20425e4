package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/akolanti/ChatAnalyzer/internal/adapter"
	"github.com/akolanti/ChatAnalyzer/internal/adapter/utils"
	"github.com/akolanti/ChatAnalyzer/internal/analysis"
	"github.com/akolanti/ChatAnalyzer/internal/api"
	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/domain/jobModel"
	"github.com/akolanti/ChatAnalyzer/internal/reanalysis"
)

func writeJsonResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but can't send a clean status code now
		logRH.Error("Error encoding response", "error", err)
	}
}

func validateId(id string, traceId string) (result jobModel.Job, isFound bool) {
	if id == "" {
		logRH.Warn("Empty Job ID")
		return jobModel.Job{}, false
	}
	return GetJobStatus(id, traceId)
}

func validateContext(ctx context.Context) bool {
	if handlerInstance == nil {
		return false
	}
	if ctx.Err() != nil {
		logRH.Warn("context error", "error", ctx.Err())
		return false
	}

	select {
	case <-ctx.Done():
		logRH.Warn("context cancelled")
		return false
	default:
		return true
	}
}

func traceOf(r *http.Request) string {
	trace, _ := r.Context().Value(config.TRACE_ID_KEY).(string)
	return trace
}

func WriteErrorResponse(w http.ResponseWriter, httpCode int, id string, error string) {
	writeJsonResponse(w, httpCode, adapter.BadRequest(id, error, httpCode))
}

func writeReadError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, analysis.ErrRunNotFound) {
		WriteErrorResponse(w, http.StatusNotFound, id, "run not found")
		return
	}
	logRH.Error("read failed", "id", id, "error", err)
	WriteErrorResponse(w, http.StatusInternalServerError, id, "Storage error")
}

// existingRun reads the run id path parameter and answers 404 when no such
// run is stored.
func existingRun(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !validateContext(r.Context()) {
		logRH.Warn("Invalid Context by request ", "remote", r.RemoteAddr)
		return "", false
	}
	runId := utils.GetChiURLParam(r, "id")
	if _, err := reader().Run(r.Context(), runId); err != nil {
		writeReadError(w, runId, err)
		return "", false
	}
	return runId, true
}

func validReanalyzeRequest(req api.ReanalyzeRequest) bool {
	valid := 0
	for _, k := range req.Keywords {
		if strings.TrimSpace(k) != "" {
			valid++
		}
	}
	if valid == 0 {
		return false
	}
	switch reanalysis.KeywordMode(req.Mode) {
	case "", reanalysis.MatchAny, reanalysis.MatchAll:
		return true
	}
	return false
}

func getTargetDirectory() (string, string) {
	root, err := os.Getwd()
	if err != nil {
		return "", "Storage Error"
	}

	targetDir := filepath.Join(root, "temporary_data")
	if err := os.MkdirAll(targetDir, 0750); err != nil {
		return "", "Storage Error"
	}
	return targetDir, ""
}

func queueJob(w http.ResponseWriter, r *http.Request, jobType jobModel.JobType, payload jobModel.JobPayload) {
	newJob := newJobData{
		id:      utils.GetNewUUID(),
		traceId: traceOf(r),
		jobType: jobType,
		payload: payload,
	}
	CreateNewJob(newJob)
	writeJsonResponse(w, http.StatusAccepted, adapter.ToInitJobResponse(newJob.id))
}
