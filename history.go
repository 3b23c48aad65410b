package main

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// HistoryStore persists operation outcomes in a local SQLite database.
type HistoryStore struct {
	db     *sql.DB
	dbPath string

	mu         sync.Mutex
	stmtInsert *sql.Stmt
}

const historySchemaSQL = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;

CREATE TABLE IF NOT EXISTS operations (
    id TEXT PRIMARY KEY,
    time INTEGER NOT NULL,
    serial TEXT NOT NULL,
    kind TEXT NOT NULL,
    subject TEXT NOT NULL,
    ok INTEGER NOT NULL,
    detail TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_operations_time ON operations(time DESC);
CREATE INDEX IF NOT EXISTS idx_operations_serial ON operations(serial);
`

// OpenHistoryStore opens (creating if needed) the operation history database.
func OpenHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	if _, err := db.Exec(historySchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init history schema: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO operations (id, time, serial, kind, subject, ok, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}

	return &HistoryStore{db: db, dbPath: dbPath, stmtInsert: stmt}, nil
}

// Record inserts one operation outcome.
func (s *HistoryStore) Record(rec OperationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := 0
	if rec.Ok {
		ok = 1
	}
	_, err := s.stmtInsert.Exec(rec.ID, rec.Time.UnixMilli(), rec.Serial, rec.Kind, rec.Subject, ok, rec.Detail)
	return err
}

// List returns the most recent operations, newest first.
func (s *HistoryStore) List(limit int) ([]OperationRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`SELECT id, time, serial, kind, subject, ok, detail FROM operations ORDER BY time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OperationRecord
	for rows.Next() {
		var rec OperationRecord
		var ms int64
		var ok int
		if err := rows.Scan(&rec.ID, &ms, &rec.Serial, &rec.Kind, &rec.Subject, &ok, &rec.Detail); err != nil {
			return nil, err
		}
		rec.Time = time.UnixMilli(ms)
		rec.Ok = ok == 1
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *HistoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stmtInsert != nil {
		s.stmtInsert.Close()
	}
	return s.db.Close()
}

// recordOperation stamps and stores an operation outcome. Best-effort; a
// missing store only logs.
func (a *App) recordOperation(serial, kind, subject string, ok bool, detail string) {
	if a.history == nil {
		return
	}
	rec := OperationRecord{
		ID:      uuid.New().String(),
		Time:    time.Now(),
		Serial:  serial,
		Kind:    kind,
		Subject: subject,
		Ok:      ok,
		Detail:  detail,
	}
	if err := a.history.Record(rec); err != nil {
		Logger.Error().Err(err).Str("kind", kind).Msg("failed to record operation")
	}
}

// ListOperationHistory returns recent operations for the frontend.
func (a *App) ListOperationHistory(limit int) ([]OperationRecord, error) {
	if a.history == nil {
		return nil, fmt.Errorf("operation history is unavailable")
	}
	return a.history.List(limit)
}
