package store

import (
	"context"
	"sync"

	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
)

type resultKey struct {
	runId string
	index int
}

// InMemoryAnalysisStore backs tests and the --store memory mode. Nothing
// survives the process.
type InMemoryAnalysisStore struct {
	lock          *sync.RWMutex
	results       map[resultKey]analysisModel.AnalysisResult
	runs          map[string]analysisModel.RunState
	chunks        map[string][]analysisModel.Chunk
	answers       map[string][]analysisModel.SearchAnswer
	conversations map[string][]findingModel.Conversation
	locations     map[string][]findingModel.LocationMention
}

func InitInMemoryAnalysisStore() *InMemoryAnalysisStore {
	return &InMemoryAnalysisStore{
		lock:          new(sync.RWMutex),
		results:       make(map[resultKey]analysisModel.AnalysisResult),
		runs:          make(map[string]analysisModel.RunState),
		chunks:        make(map[string][]analysisModel.Chunk),
		answers:       make(map[string][]analysisModel.SearchAnswer),
		conversations: make(map[string][]findingModel.Conversation),
		locations:     make(map[string][]findingModel.LocationMention),
	}
}

func (store *InMemoryAnalysisStore) SaveResult(ctx context.Context, result analysisModel.AnalysisResult) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	store.results[resultKey{result.RunId, result.ChunkIndex}] = result
	return nil
}

func (store *InMemoryAnalysisStore) GetResult(ctx context.Context, runId string, chunkIndex int) (analysisModel.AnalysisResult, bool, error) {
	store.lock.RLock()
	defer store.lock.RUnlock()
	result, found := store.results[resultKey{runId, chunkIndex}]
	return result, found, nil
}

func (store *InMemoryAnalysisStore) ListResults(ctx context.Context, runId string) ([]analysisModel.AnalysisResult, error) {
	store.lock.RLock()
	defer store.lock.RUnlock()
	results := make([]analysisModel.AnalysisResult, 0)
	for key, result := range store.results {
		if key.runId == runId {
			results = append(results, result)
		}
	}
	sortResults(results)
	return results, nil
}

func (store *InMemoryAnalysisStore) SaveRun(ctx context.Context, run analysisModel.RunState) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	store.runs[run.Id] = run
	inMemLogger.Debug("saved run", "runId", run.Id, "status", run.Status)
	return nil
}

func (store *InMemoryAnalysisStore) GetRun(ctx context.Context, runId string) (analysisModel.RunState, bool, error) {
	store.lock.RLock()
	defer store.lock.RUnlock()
	run, found := store.runs[runId]
	return run, found, nil
}

func (store *InMemoryAnalysisStore) ListRuns(ctx context.Context) ([]analysisModel.RunState, error) {
	store.lock.RLock()
	defer store.lock.RUnlock()
	runs := make([]analysisModel.RunState, 0, len(store.runs))
	for _, run := range store.runs {
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func (store *InMemoryAnalysisStore) SaveChunks(ctx context.Context, chunkSetId string, chunks []analysisModel.Chunk) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	if _, ok := store.chunks[chunkSetId]; ok {
		return nil
	}
	store.chunks[chunkSetId] = append([]analysisModel.Chunk(nil), chunks...)
	return nil
}

func (store *InMemoryAnalysisStore) ListChunks(ctx context.Context, chunkSetId string) ([]analysisModel.Chunk, error) {
	store.lock.RLock()
	defer store.lock.RUnlock()
	return append([]analysisModel.Chunk{}, store.chunks[chunkSetId]...), nil
}

func (store *InMemoryAnalysisStore) AppendAnswer(ctx context.Context, answer analysisModel.SearchAnswer) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	store.answers[answer.RunId] = append(store.answers[answer.RunId], answer)
	return nil
}

func (store *InMemoryAnalysisStore) ListAnswers(ctx context.Context, runId string) ([]analysisModel.SearchAnswer, error) {
	store.lock.RLock()
	defer store.lock.RUnlock()
	return append([]analysisModel.SearchAnswer{}, store.answers[runId]...), nil
}

func (store *InMemoryAnalysisStore) SaveConversations(ctx context.Context, runId string, conversations []findingModel.Conversation) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	store.conversations[runId] = append([]findingModel.Conversation(nil), conversations...)
	return nil
}

func (store *InMemoryAnalysisStore) ListConversations(ctx context.Context, runId string) ([]findingModel.Conversation, error) {
	store.lock.RLock()
	defer store.lock.RUnlock()
	return append([]findingModel.Conversation{}, store.conversations[runId]...), nil
}

func (store *InMemoryAnalysisStore) SaveLocations(ctx context.Context, runId string, mentions []findingModel.LocationMention) error {
	store.lock.Lock()
	defer store.lock.Unlock()
	store.locations[runId] = append([]findingModel.LocationMention(nil), mentions...)
	return nil
}

func (store *InMemoryAnalysisStore) ListLocations(ctx context.Context, runId string) ([]findingModel.LocationMention, error) {
	store.lock.RLock()
	defer store.lock.RUnlock()
	return append([]findingModel.LocationMention{}, store.locations[runId]...), nil
}

func (store *InMemoryAnalysisStore) Close() error { return nil }
