// Package audit persists the append-only proof that actions were
// attempted. Records are never mutated except for the single
// undone/undoneAt flip, which is guarded so exactly one concurrent undo
// can win.
package audit

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"campuspilot/internal/logging"
)

// ErrNotFound is returned when no record with the given id exists.
var ErrNotFound = errors.New("audit record not found")

// Record is one append-only audit entry. TargetID is nil for failed
// attempts and for read-only actions that created nothing.
type Record struct {
	ID         string
	ActorID    string
	ActionType string
	TargetType string
	TargetID   *string
	Payload    string // serialized request+response for replay/debugging
	CreatedAt  time.Time
	Undone     bool
	UndoneAt   *time.Time
}

// Succeeded reports whether the record describes a successful attempt.
// Failed attempts are written with a null target id, which keeps them
// unambiguously distinguishable from successful ones.
func (r *Record) Succeeded() bool {
	return r.TargetID != nil
}

// Store is the SQLite-backed audit log.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (or creates) the audit database at path.
// ":memory:" is supported for tests.
func NewStore(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "audit.NewStore")
	defer timer.Stop()

	logging.Store("Initializing audit store at path: %s", path)

	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_records (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		undone BOOLEAN NOT NULL DEFAULT 0,
		undone_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit_records(actor_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_undone ON audit_records(undone);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	logging.Store("Closing audit store database connection")
	return s.db.Close()
}

// Append writes a new record. Records are append-only; Append never
// overwrites an existing id.
func (s *Store) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logging.StoreDebug("Appending audit record id=%s actor=%s type=%s", rec.ID, rec.ActorID, rec.ActionType)

	_, err := s.db.Exec(
		`INSERT INTO audit_records (id, actor_id, action_type, target_type, target_id, payload, created_at, undone, undone_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, NULL)`,
		rec.ID, rec.ActorID, rec.ActionType, rec.TargetType, rec.TargetID, rec.Payload, rec.CreatedAt.UTC(),
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to append audit record %s: %v", rec.ID, err)
		return err
	}
	return nil
}

// Get retrieves a record by id. Returns ErrNotFound when absent.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT id, actor_id, action_type, target_type, target_id, payload, created_at, undone, undone_at
		 FROM audit_records WHERE id = ?`, id,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByActor returns an actor's records, optionally filtered by the
// undone flag, most recent first, paginated.
func (s *Store) ListByActor(actorID string, undone *bool, limit, offset int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, actor_id, action_type, target_type, target_id, payload, created_at, undone, undone_at
		 FROM audit_records WHERE actor_id = ?`
	args := []interface{}{actorID}
	if undone != nil {
		query += " AND undone = ?"
		args = append(args, *undone)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// MarkUndone flips undone exactly once. The guarded UPDATE makes the
// ACTIVE -> UNDONE transition atomic: the first caller wins (returns
// true), every concurrent loser sees false.
func (s *Store) MarkUndone(id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		"UPDATE audit_records SET undone = 1, undone_at = ? WHERE id = ? AND undone = 0",
		now.UTC(), id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var targetID sql.NullString
	var undoneAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.ActorID, &rec.ActionType, &rec.TargetType,
		&targetID, &rec.Payload, &rec.CreatedAt, &rec.Undone, &undoneAt)
	if err != nil {
		return nil, err
	}
	if targetID.Valid {
		rec.TargetID = &targetID.String
	}
	if undoneAt.Valid {
		t := undoneAt.Time
		rec.UndoneAt = &t
	}
	return &rec, nil
}
