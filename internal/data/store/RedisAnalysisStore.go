package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/akolanti/ChatAnalyzer/internal/config"
	"github.com/akolanti/ChatAnalyzer/internal/data/redisStore"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

// key layout:
//
//	results:{run}        hash chunk index -> AnalysisResult json
//	run:{run}            RunState json
//	runs                 set of run ids
//	chunks:{document}    []Chunk json
//	searches:{run}       list of SearchAnswer json
//	conversations:{run}  []Conversation json
//	locations:{run}      []LocationMention json
const (
	resultsKeyPrefix       = "results:"
	runKeyPrefix           = "run:"
	runIndexKey            = "runs"
	chunksKeyPrefix        = "chunks:"
	searchesKeyPrefix      = "searches:"
	conversationsKeyPrefix = "conversations:"
	locationsKeyPrefix     = "locations:"
)

type RedisAnalysisStore struct {
	store  *redisStore.Store
	logger *logger_i.Logger
}

func NewRedisAnalysisStore(store *redisStore.Store) *RedisAnalysisStore {
	return &RedisAnalysisStore{
		store:  store,
		logger: logger_i.NewLogger("analysis_store"),
	}
}

func (s *RedisAnalysisStore) SaveResult(ctx context.Context, result analysisModel.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result: %w", err)
	}
	return s.store.HashSet(ctx, resultsKeyPrefix+result.RunId, strconv.Itoa(result.ChunkIndex), data)
}

func (s *RedisAnalysisStore) GetResult(ctx context.Context, runId string, chunkIndex int) (analysisModel.AnalysisResult, bool, error) {
	var result analysisModel.AnalysisResult
	val, err := s.store.HashGet(ctx, resultsKeyPrefix+runId, strconv.Itoa(chunkIndex))
	if s.store.IsNil(err) {
		return result, false, nil
	} else if err != nil {
		return result, false, err
	}
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return result, false, fmt.Errorf("decoding result %s/%d: %w", runId, chunkIndex, err)
	}
	return result, true, nil
}

func (s *RedisAnalysisStore) ListResults(ctx context.Context, runId string) ([]analysisModel.AnalysisResult, error) {
	all, err := s.store.HashGetAll(ctx, resultsKeyPrefix+runId)
	if err != nil {
		return nil, err
	}
	results := make([]analysisModel.AnalysisResult, 0, len(all))
	for field, val := range all {
		var result analysisModel.AnalysisResult
		if err := json.Unmarshal([]byte(val), &result); err != nil {
			s.logger.Error("skipping corrupt result", "runId", runId, "chunk", field, "error", err)
			continue
		}
		results = append(results, result)
	}
	sortResults(results)
	return results, nil
}

func (s *RedisAnalysisStore) SaveRun(ctx context.Context, run analysisModel.RunState) error {
	log := s.logger.With("traceId", ctx.Value(config.TRACE_ID_KEY), "runId", run.Id)
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshalling run: %w", err)
	}
	if err := s.store.Set(ctx, runKeyPrefix+run.Id, data, 0); err != nil {
		return err
	}
	if err := s.store.SetAdd(ctx, runIndexKey, run.Id); err != nil {
		return err
	}
	log.Debug("saved run", "status", run.Status)
	return nil
}

func (s *RedisAnalysisStore) GetRun(ctx context.Context, runId string) (analysisModel.RunState, bool, error) {
	var run analysisModel.RunState
	found, err := s.getJSON(ctx, runKeyPrefix+runId, &run)
	return run, found, err
}

func (s *RedisAnalysisStore) ListRuns(ctx context.Context) ([]analysisModel.RunState, error) {
	ids, err := s.store.SetMembers(ctx, runIndexKey)
	if err != nil {
		return nil, err
	}
	runs := make([]analysisModel.RunState, 0, len(ids))
	for _, id := range ids {
		run, found, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			runs = append(runs, run)
		}
	}
	sortRuns(runs)
	return runs, nil
}

// SaveChunks writes a chunk set only if its id is new.
func (s *RedisAnalysisStore) SaveChunks(ctx context.Context, chunkSetId string, chunks []analysisModel.Chunk) error {
	exists, err := s.store.Exists(ctx, chunksKeyPrefix+chunkSetId)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.setJSON(ctx, chunksKeyPrefix+chunkSetId, chunks)
}

func (s *RedisAnalysisStore) ListChunks(ctx context.Context, chunkSetId string) ([]analysisModel.Chunk, error) {
	chunks := []analysisModel.Chunk{}
	_, err := s.getJSON(ctx, chunksKeyPrefix+chunkSetId, &chunks)
	return chunks, err
}

func (s *RedisAnalysisStore) AppendAnswer(ctx context.Context, answer analysisModel.SearchAnswer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("marshalling answer: %w", err)
	}
	return s.store.ListPush(ctx, searchesKeyPrefix+answer.RunId, data)
}

func (s *RedisAnalysisStore) ListAnswers(ctx context.Context, runId string) ([]analysisModel.SearchAnswer, error) {
	raw, err := s.store.ListGetAll(ctx, searchesKeyPrefix+runId)
	if err != nil {
		return nil, err
	}
	answers := make([]analysisModel.SearchAnswer, 0, len(raw))
	for _, val := range raw {
		var answer analysisModel.SearchAnswer
		if err := json.Unmarshal([]byte(val), &answer); err != nil {
			s.logger.Error("skipping corrupt answer", "runId", runId, "error", err)
			continue
		}
		answers = append(answers, answer)
	}
	return answers, nil
}

func (s *RedisAnalysisStore) SaveConversations(ctx context.Context, runId string, conversations []findingModel.Conversation) error {
	return s.setJSON(ctx, conversationsKeyPrefix+runId, conversations)
}

func (s *RedisAnalysisStore) ListConversations(ctx context.Context, runId string) ([]findingModel.Conversation, error) {
	conversations := []findingModel.Conversation{}
	_, err := s.getJSON(ctx, conversationsKeyPrefix+runId, &conversations)
	return conversations, err
}

func (s *RedisAnalysisStore) SaveLocations(ctx context.Context, runId string, mentions []findingModel.LocationMention) error {
	return s.setJSON(ctx, locationsKeyPrefix+runId, mentions)
}

func (s *RedisAnalysisStore) ListLocations(ctx context.Context, runId string) ([]findingModel.LocationMention, error) {
	mentions := []findingModel.LocationMention{}
	_, err := s.getJSON(ctx, locationsKeyPrefix+runId, &mentions)
	return mentions, err
}

// the client is shared process wide and closed by redisStore on shutdown
func (s *RedisAnalysisStore) Close() error { return nil }

func (s *RedisAnalysisStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling %s: %w", key, err)
	}
	return s.store.Set(ctx, key, data, 0)
}

func (s *RedisAnalysisStore) getJSON(ctx context.Context, key string, v any) (bool, error) {
	val, err := s.store.Get(ctx, key)
	if s.store.IsNil(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}
