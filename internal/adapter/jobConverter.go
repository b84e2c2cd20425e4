package adapter

import (
	"fmt"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/api"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/jobModel"
)

func ToInitJobResponse(id string) api.InitJobResponse {
	return api.InitJobResponse{
		Id:        id,
		StatusURL: fmt.Sprintf("/status/%s", id),
	}
}

func ToAPIResponse(job jobModel.Job) api.JobResponse {

	var errorPtr *api.JobOutgoingError
	if job.Error.Message != "" || job.Error.Code != 0 {
		errorPtr = &api.JobOutgoingError{
			Code:    job.Error.Code,
			Message: job.Error.Message,
			Retry:   job.Error.Retry,
		}
	}

	result := api.Result{
		Status: string(job.Status),
		RunId:  job.JobPayload.RunId,
		Report: ToRunReport(job.JobPayload.Report),
		Search: ToSearchResponse(job.JobPayload),
	}

	return api.JobResponse{
		Id:        job.Id,
		Type:      string(job.JobType),
		Step:      string(job.CurrentStep),
		StartTime: job.CreatedTime,
		EndTime:   job.EndTime,
		Error:     errorPtr,
		Result:    result,
	}
}

func ToRunReport(report *analysisModel.RunReport) *api.RunReport {
	if report == nil || report.RunId == "" {
		return nil
	}
	out := &api.RunReport{
		Outcome:        string(report.Outcome),
		Done:           report.Done,
		Resumed:        report.Resumed,
		Excluded:       report.Excluded,
		Pending:        report.Pending,
		AbortReason:    report.AbortReason,
		Calls:          report.Calls,
		ElapsedSeconds: report.Elapsed.Seconds(),
	}
	for _, f := range report.Failed {
		out.Failed = append(out.Failed, api.FailedChunk{Index: f.Index, Class: f.Class, Reason: f.Reason})
	}
	return out
}

func ToSearchResponse(payload jobModel.JobPayload) *api.SearchResponse {
	if payload.Answer == "" {
		return nil
	}
	answer := analysisModel.SearchAnswer{ChunkIndices: payload.ChunkIndices, Available: payload.Available}
	return &api.SearchResponse{
		Question:  payload.Question,
		Answer:    payload.Answer,
		Searched:  len(payload.ChunkIndices),
		Available: payload.Available,
		Note:      answer.Coverage(),
	}
}

func ToRunResponse(run analysisModel.RunState) api.RunResponse {
	return api.RunResponse{
		Id:               run.Id,
		Kind:             string(run.Kind),
		ParentRunId:      run.ParentRunId,
		DocumentName:     run.DocumentName,
		ChunkSetId:       run.ChunkSetKey(),
		Provider:         run.Provider,
		Model:            run.Model,
		PromptVariant:    run.PromptVariant,
		Keywords:         run.Keywords,
		Chunks:           len(run.ChunkIndices),
		HighestCompleted: run.HighestCompleted,
		Status:           string(run.Status),
		Outcome:          string(run.Outcome),
		Summary:          run.Summary,
		CreatedAt:        run.CreatedAt,
	}
}

func BadRequest(id string, error string, code int) api.JobResponse {
	return api.JobResponse{
		Id:        id,
		StartTime: time.Time{},
		EndTime:   time.Time{},
		Result: api.Result{
			Status: string(api.JobStatusError),
		},
		Error: &api.JobOutgoingError{
			Code:    code,
			Message: error,
			Retry:   false,
		},
	}
}
