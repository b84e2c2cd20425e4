package adapter

import (
	"testing"
	"time"

	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/jobModel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAPIResponse(t *testing.T) {
	tests := []struct {
		name  string
		job   jobModel.Job
		check func(t *testing.T, j jobModel.Job)
	}{
		{
			name: "finished analysis carries the report",
			job: jobModel.Job{
				Id: "j1", JobType: jobModel.JobTypeAnalyze, Status: jobModel.JobStatusComplete, CurrentStep: jobModel.Complete,
				JobPayload: jobModel.JobPayload{RunId: "run_1", Report: &analysisModel.RunReport{
					RunId: "run_1", Outcome: analysisModel.OutcomePartial, Done: []int{1, 3}, Calls: 4, Elapsed: 90 * time.Second,
					Failed: []analysisModel.FailedChunk{{Index: 2, Class: "Fatal", Reason: "content filtered"}},
				}},
			},
			check: func(t *testing.T, j jobModel.Job) {
				res := ToAPIResponse(j)
				assert.Nil(t, res.Error)
				assert.Equal(t, "run_1", res.Result.RunId)
				require.NotNil(t, res.Result.Report)
				assert.Equal(t, "PARTIAL", res.Result.Report.Outcome)
				assert.Equal(t, 90.0, res.Result.Report.ElapsedSeconds)
				require.Len(t, res.Result.Report.Failed, 1)
				assert.Equal(t, 2, res.Result.Report.Failed[0].Index)
				assert.Nil(t, res.Result.Search)
			},
		},
		{
			name: "search answer",
			job: jobModel.Job{Id: "j2", JobType: jobModel.JobTypeQuickSearch, Status: jobModel.JobStatusComplete,
				JobPayload: jobModel.JobPayload{RunId: "run_1", Question: "q", Answer: "a", ChunkIndices: []int{1, 2}, Available: 4}},
			check: func(t *testing.T, j jobModel.Job) {
				res := ToAPIResponse(j)
				require.NotNil(t, res.Result.Search)
				assert.Equal(t, "a", res.Result.Search.Answer)
				assert.Equal(t, 2, res.Result.Search.Searched)
				assert.Equal(t, "2 of 4 analyses searched", res.Result.Search.Note)
				assert.Nil(t, res.Result.Report)
			},
		},
		{
			name: "error",
			job: jobModel.Job{Id: "j3", Status: jobModel.JobStatusError, CurrentStep: jobModel.Error,
				Error: jobModel.JobError{Code: 404, Message: "run not found"}},
			check: func(t *testing.T, j jobModel.Job) {
				res := ToAPIResponse(j)
				require.NotNil(t, res.Error)
				assert.Equal(t, 404, res.Error.Code)
				assert.Equal(t, "Error", res.Result.Status)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.check(t, tt.job) })
	}
}
