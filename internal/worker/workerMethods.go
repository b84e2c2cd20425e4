package worker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	jobmodel "github.com/akolanti/ChatAnalyzer/internal/domain/jobModel"
	"github.com/akolanti/ChatAnalyzer/internal/metrics"
)

func executeJob(job jobmodel.Job) {
	start := time.Now()
	defer func() {
		// Record total time at the end
		metrics.CaptureJobMetrics(string(job.JobType), time.Since(start))
	}()
	ctxTrace := context.WithValue(context.Background(), config.TRACE_ID_KEY, job.TraceId)
	//a whole document run can take hours under provider rate limits
	ctx, cancel := context.WithTimeout(ctxTrace, config.JobTimeout)
	defer cancel()
	jobLogger := logger.With("traceId", job.TraceId, "jobId", job.Id)
	jobLogger.Debug("Processing job", "type", job.JobType)

	saveJobState(ctx, job, jobmodel.JobStatusRunning)

	job = _analysisService.ProcessJob(ctx, job)

	job.EndTime = time.Now()
	if job.Status == jobmodel.JobStatusError {
		jobLogger.Warn("Job failed", "code", job.Error.Code, "message", job.Error.Message)
		saveJobState(ctx, job, jobmodel.JobStatusError)
		return
	}
	saveJobState(ctx, job, jobmodel.JobStatusComplete)
}

func removeWorker(reason string) {

	workerWaitGroup.Done()
	atomic.AddInt64(&currentWorkerCount, -1)
	logger.Info("Removed worker ", "reason", reason, "workerCount", currentWorkerCount)
	metrics.DecrementActiveWorkerCount()

}

func saveJobState(ctx context.Context, job jobmodel.Job, jobStatus jobmodel.JobStatus) {
	job.Status = jobStatus
	//the job record must land even when the run hit its deadline
	if err := _jobService.JobStore.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		logger.Error("Failed to update job status", "err", err)
	}
}
