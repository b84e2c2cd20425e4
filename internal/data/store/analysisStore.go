package store

import (
	"sort"

	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
)

// AnalysisStore is everything a run persists. Each backend (sqlite, redis,
// in memory) implements all of it.
type AnalysisStore interface {
	analysisModel.ResultStore
	analysisModel.RunStore
	analysisModel.ChunkStore
	analysisModel.SearchLog
	findingModel.FindingStore
	Close() error
}

var (
	_ AnalysisStore = (*InMemoryAnalysisStore)(nil)
	_ AnalysisStore = (*RedisAnalysisStore)(nil)
	_ AnalysisStore = (*SQLiteStore)(nil)
)

func sortResults(results []analysisModel.AnalysisResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].ChunkIndex < results[j].ChunkIndex })
}

// newest first
func sortRuns(runs []analysisModel.RunState) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].Id > runs[j].Id
		}
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
}
