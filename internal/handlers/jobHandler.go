package handlers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/jobModel"
	"github.com/akolanti/ChatAnalyzer/internal/job"
	"github.com/akolanti/ChatAnalyzer/internal/metrics"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

var (
	handlerInstance *JobHandler //private singleton
	once            sync.Once
	logJH           *logger_i.Logger
)

// RunReader serves the read-only collections. The pipeline implements it.
type RunReader interface {
	Run(ctx context.Context, runId string) (analysisModel.RunState, error)
	Runs(ctx context.Context) ([]analysisModel.RunState, error)
	Results(ctx context.Context, runId string) ([]analysisModel.AnalysisResult, error)
	SavedConversations(ctx context.Context, runId string) ([]findingModel.Conversation, error)
	StoredLocations(ctx context.Context, runId string) ([]findingModel.LocationMention, error)
	SearchHistory(ctx context.Context, runId string) ([]analysisModel.SearchAnswer, error)
}

type JobHandler struct {
	service *job.Service
	reader  RunReader
}

func InitJobHandler(jobService *job.Service, reader RunReader) {
	once.Do(func() {
		handlerInstance = &JobHandler{service: jobService, reader: reader}

		logJH = logger_i.NewLogger("JobHandler")
		logRH = logger_i.NewLogger("RequestHandler")
		logJH.Info("Starting job handler")
	})
}

func CreateNewJob(newJob newJobData) {
	logJH.With("traceId", newJob.traceId, "job id", newJob.id).Info("To create new job", "type", newJob.jobType)
	handlerInstance.pushToJobChannel(newJob)
}

func GetJobStatus(id string, traceId string) (result jobModel.Job, isFound bool) {
	ctxC := context.WithValue(context.Background(), config.TRACE_ID_KEY, traceId)
	if handlerInstance != nil {
		return handlerInstance.service.JobStore.GetJob(ctxC, id)
	}
	return result, false
}

func reader() RunReader {
	if handlerInstance == nil {
		return nil
	}
	return handlerInstance.reader
}

// private methods
func (h *JobHandler) pushToJobChannel(newJob newJobData) {

	_job := jobModel.Job{}
	_job.Id = newJob.id
	_job.CreatedTime = time.Now()
	_job.TraceId = newJob.traceId
	_job.Status = jobModel.JobStatusQueued
	_job.CurrentStep = jobModel.JobInit
	_job.JobType = newJob.jobType
	_job.JobPayload = newJob.payload

	//queued jobs are visible on /status before a worker picks them up
	ctxC := context.WithValue(context.Background(), config.TRACE_ID_KEY, newJob.traceId)
	if err := h.service.JobStore.SaveJob(ctxC, _job); err != nil {
		logJH.Error("Could not save queued job", "jobId", _job.Id, "error", err)
	}

	//metrics
	metrics.IncrementJobsInQueue()

	h.service.JobChannel <- _job //this is a blocking send to prevent the system from being overwhelmed
	logJH.Info("Created new job", "jobId", _job.Id)

	//a new worker every RequestsPerNewWorkerCount requests, and one for every
	//analysis job since those hold a worker for the whole run
	//idle workers are removed again, so most of the time one worker runs
	accurateCount := atomic.AddInt64(&h.service.RequestCount, 1)
	if accurateCount%config.RequestsPerNewWorkerCount == 0 || isLongRunning(_job.JobType) {
		metrics.StartDispatcherSignalCount() //metrics
		logJH.Debug("Worker count ", "requests", accurateCount)
		h.service.DispatcherChannel <- true
	}
}

func isLongRunning(t jobModel.JobType) bool {
	switch t {
	case jobModel.JobTypeAnalyze, jobModel.JobTypeResume, jobModel.JobTypeReanalyze:
		return true
	}
	return false
}
