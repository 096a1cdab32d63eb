// Package tracelog mirrors the JSONL interaction log into a local SQLite
// index and exposes full-text search over it, generalizing
// internal/indexer's db.go/bm25.go pattern from source files to orchestration
// traces and spilled tool payloads.
package tracelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ChamsBouzaiene/dodo/internal/engine"
)

// TraceRecord is one turn of an interaction: the full message history and
// tool schema set sent to the model at that point, mirroring the
// --log-messages JSONL record.
type TraceRecord struct {
	TraceID   int64
	SessionID string
	Timestamp int64
	Messages  []engine.ChatMessage
	Functions []engine.ToolSchema
}

// SpillIndexRecord tracks a long-payload spill file so its contents can be
// found again by content, not just by the path the preview mentions.
type SpillIndexRecord struct {
	Hash      string
	Path      string
	CreatedAt int64
	Preview   string
}

// Store provides SQLite-backed storage for trace records and spill file
// metadata.
type Store struct {
	db *sql.DB
}

// Open creates or opens the trace database at dbPath and ensures its schema.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping trace db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("init trace schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS traces (
		trace_id   INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		timestamp  INTEGER NOT NULL,
		messages   TEXT NOT NULL,
		functions  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_traces_session ON traces(session_id);
	CREATE INDEX IF NOT EXISTS idx_traces_timestamp ON traces(timestamp);

	CREATE TABLE IF NOT EXISTS spill_files (
		hash       TEXT PRIMARY KEY,
		path       TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		preview    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_spill_created ON spill_files(created_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// AppendTrace stores one turn's message history and returns its trace ID.
func (s *Store) AppendTrace(ctx context.Context, sessionID string, messages []engine.ChatMessage, functions []engine.ToolSchema) (int64, error) {
	messagesJSON, err := json.Marshal(messages)
	if err != nil {
		return 0, fmt.Errorf("marshal trace messages: %w", err)
	}
	functionsJSON, err := json.Marshal(functions)
	if err != nil {
		return 0, fmt.Errorf("marshal trace functions: %w", err)
	}

	query := `INSERT INTO traces (session_id, timestamp, messages, functions) VALUES (?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, sessionID, time.Now().Unix(), string(messagesJSON), string(functionsJSON))
	if err != nil {
		return 0, fmt.Errorf("insert trace: %w", err)
	}
	return result.LastInsertId()
}

// GetTrace retrieves a single trace record by ID.
func (s *Store) GetTrace(ctx context.Context, traceID int64) (*TraceRecord, error) {
	query := `SELECT trace_id, session_id, timestamp, messages, functions FROM traces WHERE trace_id = ?`
	var r TraceRecord
	var messagesJSON, functionsJSON string
	err := s.db.QueryRowContext(ctx, query, traceID).Scan(&r.TraceID, &r.SessionID, &r.Timestamp, &messagesJSON, &functionsJSON)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(messagesJSON), &r.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal trace messages: %w", err)
	}
	if err := json.Unmarshal([]byte(functionsJSON), &r.Functions); err != nil {
		return nil, fmt.Errorf("unmarshal trace functions: %w", err)
	}
	return &r, nil
}

// ListSession returns every trace recorded for sessionID, oldest first.
func (s *Store) ListSession(ctx context.Context, sessionID string) ([]TraceRecord, error) {
	query := `SELECT trace_id, session_id, timestamp, messages, functions FROM traces WHERE session_id = ? ORDER BY trace_id`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session traces: %w", err)
	}
	defer rows.Close()

	var records []TraceRecord
	for rows.Next() {
		var r TraceRecord
		var messagesJSON, functionsJSON string
		if err := rows.Scan(&r.TraceID, &r.SessionID, &r.Timestamp, &messagesJSON, &functionsJSON); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		if err := json.Unmarshal([]byte(messagesJSON), &r.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal trace messages: %w", err)
		}
		if err := json.Unmarshal([]byte(functionsJSON), &r.Functions); err != nil {
			return nil, fmt.Errorf("unmarshal trace functions: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpsertSpillFile records (or updates the preview for) a spilled payload
// file, keyed by its content hash.
func (s *Store) UpsertSpillFile(ctx context.Context, hash, path, preview string) error {
	query := `
		INSERT INTO spill_files (hash, path, created_at, preview)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			path = excluded.path,
			preview = excluded.preview
	`
	_, err := s.db.ExecContext(ctx, query, hash, path, time.Now().Unix(), preview)
	return err
}

// GetSpillFile retrieves a spill file record by its content hash.
func (s *Store) GetSpillFile(ctx context.Context, hash string) (*SpillIndexRecord, error) {
	query := `SELECT hash, path, created_at, preview FROM spill_files WHERE hash = ?`
	var r SpillIndexRecord
	err := s.db.QueryRowContext(ctx, query, hash).Scan(&r.Hash, &r.Path, &r.CreatedAt, &r.Preview)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
