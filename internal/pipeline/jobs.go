package pipeline

import (
	"context"
	"errors"
	"net/http"

	"github.com/akolanti/ChatAnalyzer/internal/analysis"
	"github.com/akolanti/ChatAnalyzer/internal/domain/jobModel"
	"github.com/akolanti/ChatAnalyzer/internal/license"
	"github.com/akolanti/ChatAnalyzer/internal/llm"
	"github.com/akolanti/ChatAnalyzer/internal/quicksearch"
	"github.com/akolanti/ChatAnalyzer/internal/reanalysis"
)

// Service is the only thing the worker pool knows about.
type Service interface {
	ProcessJob(ctx context.Context, job jobModel.Job) jobModel.Job
}

var _ Service = (*Pipeline)(nil)

// ProcessJob runs one queued job and records its outcome on the job.
func (p *Pipeline) ProcessJob(ctx context.Context, job jobModel.Job) jobModel.Job {
	log := p.logger.WithTrace(ctx).With("jobId", job.Id, "jobType", job.JobType)
	payload := &job.JobPayload
	var err error

	switch job.JobType {
	case jobModel.JobTypeAnalyze:
		job.CurrentStep = jobModel.ChunkAnalysis
		run, report, runErr := p.Analyze(ctx, AnalyzeRequest{
			Path:      payload.DocumentPath,
			Prompt:    payload.Prompt,
			Exclude:   payload.Exclude,
			Summarize: true,
		})
		payload.RunId, payload.Report, err = run.Id, &report, runErr

	case jobModel.JobTypeResume:
		job.CurrentStep = jobModel.ChunkAnalysis
		_, report, runErr := p.Resume(ctx, payload.RunId, true)
		payload.Report, err = &report, runErr

	case jobModel.JobTypeReanalyze:
		job.CurrentStep = jobModel.ChunkAnalysis
		run, report, runErr := p.Reanalyze(ctx, reanalysis.Request{
			ParentRunId: payload.RunId,
			Keywords:    payload.Keywords,
			Mode:        reanalysis.KeywordMode(payload.KeywordMode),
			Prompt:      payload.Prompt,
		})
		if runErr == nil {
			payload.RunId = run.Id
		}
		payload.Report, err = &report, runErr

	case jobModel.JobTypeQuickSearch:
		job.CurrentStep = jobModel.LLMCall
		answer, searchErr := p.Search(ctx, payload.RunId, payload.Question)
		payload.Answer, err = answer.Answer, searchErr
		payload.ChunkIndices, payload.Available = answer.ChunkIndices, answer.Available

	case jobModel.JobTypeConversations:
		job.CurrentStep = jobModel.Segmenting
		_, err = p.Conversations(ctx, payload.RunId, true)

	case jobModel.JobTypeLocations:
		job.CurrentStep = jobModel.Extracting
		_, err = p.Locations(ctx, payload.RunId)

	default:
		err = errors.New("unknown job type " + string(job.JobType))
	}

	if err != nil {
		log.Error("job failed", "step", job.CurrentStep, "error", err)
		job.Status = jobModel.JobStatusError
		job.CurrentStep = jobModel.Error
		job.Error = toJobError(err)
		return job
	}
	job.CurrentStep = jobModel.Complete
	log.Info("job done")
	return job
}

func toJobError(err error) jobModel.JobError {
	jobErr := jobModel.JobError{Code: http.StatusInternalServerError, Message: err.Error()}
	var callErr *llm.CallError
	switch {
	case errors.Is(err, analysis.ErrRunNotFound):
		jobErr.Code = http.StatusNotFound
	case errors.Is(err, ErrLicense), errors.Is(err, license.ErrInvalidLicense):
		jobErr.Code = http.StatusForbidden
	case errors.Is(err, reanalysis.ErrNoKeywords), errors.Is(err, reanalysis.ErrNoMatches),
		errors.Is(err, quicksearch.ErrEmptyQuestion), errors.Is(err, quicksearch.ErrNoAnalysis),
		errors.Is(err, ErrEmptyDocument):
		jobErr.Code = http.StatusBadRequest
	case errors.As(err, &callErr):
		jobErr.Code = http.StatusBadGateway
		jobErr.Retry = callErr.Retryable()
	case errors.Is(err, context.DeadlineExceeded):
		jobErr.Code = http.StatusGatewayTimeout
		jobErr.Retry = true
	}
	return jobErr
}
