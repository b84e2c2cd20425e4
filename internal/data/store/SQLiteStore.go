package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/akolanti/ChatAnalyzer/internal/data/store/migrations"
	"github.com/akolanti/ChatAnalyzer/internal/domain/analysisModel"
	"github.com/akolanti/ChatAnalyzer/internal/domain/findingModel"
	"github.com/akolanti/ChatAnalyzer/pkg/logger_i"
)

// SQLiteStore is the default durable store: one file per analyst profile.
// Each result write is its own statement so a crash after chunk K keeps
// chunks 1..K.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *logger_i.Logger
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	//sqlite serialises writers anyway
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		path:   dbPath,
		logger: logger_i.NewLogger("sqlite_store"),
	}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, formatTime(time.Now())); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		s.logger.Debug("migration applied", "file", name)
	}
	return nil
}

// ==================== results ====================

func (s *SQLiteStore) SaveResult(ctx context.Context, result analysisModel.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (run_id, chunk_index, chunk_hash, status, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, chunk_index) DO UPDATE SET
			chunk_hash = excluded.chunk_hash,
			status = excluded.status,
			updated_at = excluded.updated_at,
			data = excluded.data
	`, result.RunId, result.ChunkIndex, result.ChunkHash, string(result.Status), formatTime(result.Timestamp), string(data))
	if err != nil {
		return fmt.Errorf("saving result %s/%d: %w", result.RunId, result.ChunkIndex, err)
	}
	return nil
}

func (s *SQLiteStore) GetResult(ctx context.Context, runId string, chunkIndex int) (analysisModel.AnalysisResult, bool, error) {
	var result analysisModel.AnalysisResult
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM results WHERE run_id = ? AND chunk_index = ?", runId, chunkIndex).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return result, false, nil
	}
	if err != nil {
		return result, false, fmt.Errorf("getting result %s/%d: %w", runId, chunkIndex, err)
	}
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return result, false, fmt.Errorf("decoding result %s/%d: %w", runId, chunkIndex, err)
	}
	return result, true, nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, runId string) ([]analysisModel.AnalysisResult, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM results WHERE run_id = ? ORDER BY chunk_index", runId)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	results := make([]analysisModel.AnalysisResult, 0)
	err = scanJSONRows(rows, func() any {
		results = append(results, analysisModel.AnalysisResult{})
		return &results[len(results)-1]
	})
	return results, err
}

// ==================== runs ====================

func (s *SQLiteStore) SaveRun(ctx context.Context, run analysisModel.RunState) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshalling run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, parent_run_id, document_id, status, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			data = excluded.data
	`, run.Id, string(run.Kind), run.ParentRunId, run.DocumentId, string(run.Status), formatTime(run.CreatedAt), string(data))
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.Id, err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runId string) (analysisModel.RunState, bool, error) {
	var run analysisModel.RunState
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM runs WHERE id = ?", runId).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return run, false, nil
	}
	if err != nil {
		return run, false, fmt.Errorf("getting run %s: %w", runId, err)
	}
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return run, false, fmt.Errorf("decoding run %s: %w", runId, err)
	}
	return run, true, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]analysisModel.RunState, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM runs ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	runs := make([]analysisModel.RunState, 0)
	err = scanJSONRows(rows, func() any {
		runs = append(runs, analysisModel.RunState{})
		return &runs[len(runs)-1]
	})
	return runs, err
}

// ==================== chunks ====================

// SaveChunks stores a chunk set once. Saving an id that already exists is a
// no-op: the id is content addressed, and runs may still reference it.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunkSetId string, chunks []analysisModel.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ch := range chunks {
		data, err := json.Marshal(ch)
		if err != nil {
			return fmt.Errorf("marshalling chunk %d: %w", ch.Index, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO chunks (chunk_set_id, chunk_index, hash, data) VALUES (?, ?, ?, ?)",
			chunkSetId, ch.Index, ch.Hash, string(data)); err != nil {
			return fmt.Errorf("saving chunk %d: %w", ch.Index, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListChunks(ctx context.Context, chunkSetId string) ([]analysisModel.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM chunks WHERE chunk_set_id = ? ORDER BY chunk_index", chunkSetId)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	chunks := make([]analysisModel.Chunk, 0)
	err = scanJSONRows(rows, func() any {
		chunks = append(chunks, analysisModel.Chunk{})
		return &chunks[len(chunks)-1]
	})
	return chunks, err
}

// ==================== search log ====================

func (s *SQLiteStore) AppendAnswer(ctx context.Context, answer analysisModel.SearchAnswer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("marshalling answer: %w", err)
	}
	_, err = s.db.ExecContext(ctx, "INSERT INTO search_answers (run_id, asked_at, data) VALUES (?, ?, ?)",
		answer.RunId, formatTime(answer.AskedAt), string(data))
	return err
}

func (s *SQLiteStore) ListAnswers(ctx context.Context, runId string) ([]analysisModel.SearchAnswer, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM search_answers WHERE run_id = ? ORDER BY id", runId)
	if err != nil {
		return nil, fmt.Errorf("listing answers: %w", err)
	}
	answers := make([]analysisModel.SearchAnswer, 0)
	err = scanJSONRows(rows, func() any {
		answers = append(answers, analysisModel.SearchAnswer{})
		return &answers[len(answers)-1]
	})
	return answers, err
}

// ==================== findings ====================

func (s *SQLiteStore) SaveConversations(ctx context.Context, runId string, conversations []findingModel.Conversation) error {
	ids := make([]string, len(conversations))
	values := make([]any, len(conversations))
	for i, c := range conversations {
		ids[i], values[i] = c.Id, c
	}
	return s.replaceRows(ctx, "conversations", "conversation_id", runId, ids, values)
}

func (s *SQLiteStore) ListConversations(ctx context.Context, runId string) ([]findingModel.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM conversations WHERE run_id = ? ORDER BY ordinal", runId)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	conversations := make([]findingModel.Conversation, 0)
	err = scanJSONRows(rows, func() any {
		conversations = append(conversations, findingModel.Conversation{})
		return &conversations[len(conversations)-1]
	})
	return conversations, err
}

func (s *SQLiteStore) SaveLocations(ctx context.Context, runId string, mentions []findingModel.LocationMention) error {
	ids := make([]string, len(mentions))
	values := make([]any, len(mentions))
	for i, m := range mentions {
		ids[i], values[i] = m.Id, m
	}
	return s.replaceRows(ctx, "locations", "mention_id", runId, ids, values)
}

func (s *SQLiteStore) ListLocations(ctx context.Context, runId string) ([]findingModel.LocationMention, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT data FROM locations WHERE run_id = ? ORDER BY ordinal", runId)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	mentions := make([]findingModel.LocationMention, 0)
	err = scanJSONRows(rows, func() any {
		mentions = append(mentions, findingModel.LocationMention{})
		return &mentions[len(mentions)-1]
	})
	return mentions, err
}

// replaceRows swaps a run's findings of one kind in a single transaction.
// table and idColumn are package constants, never user input.
func (s *SQLiteStore) replaceRows(ctx context.Context, table string, idColumn string, runId string, ids []string, values []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", runId); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}
	insert := fmt.Sprintf("INSERT INTO %s (run_id, ordinal, %s, data) VALUES (?, ?, ?, ?)", table, idColumn)
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshalling %s row: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, insert, runId, i, ids[i], string(data)); err != nil {
			return fmt.Errorf("saving %s row: %w", table, err)
		}
	}
	return tx.Commit()
}

// scanJSONRows decodes the single data column of every row into the value
// returned by next.
func scanJSONRows(rows *sql.Rows, next func() any) error {
	defer rows.Close()
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}
		if err := json.Unmarshal([]byte(data), next()); err != nil {
			return fmt.Errorf("decoding row: %w", err)
		}
	}
	return rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
