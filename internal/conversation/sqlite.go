package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"campuspilot/internal/logging"
)

// SQLiteStore is the durable backend: a key->JSON document table keyed by
// actor id. The cgo-free driver keeps it usable in every deployment the
// in-memory backend works in.
type SQLiteStore struct {
	db   *sql.DB
	keys keyedMutex // per-actor read-modify-write exclusion
	now  func() time.Time
}

// NewSQLiteStore opens (or creates) the state database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logging.Store("Initializing conversation state store at path: %s", path)

	if dir := filepath.Dir(path); dir != "." {
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
	CREATE TABLE IF NOT EXISTS conversation_state (
		actor_id TEXT PRIMARY KEY,
		state_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) load(ctx context.Context, actorID string) (State, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT state_json FROM conversation_state WHERE actor_id = ?", actorID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		// Malformed persisted record: treat as hard failure so the
		// failover wrapper can degrade to the memory path.
		return State{}, false, fmt.Errorf("malformed state for actor %s: %w", actorID, err)
	}
	return st, true, nil
}

func (s *SQLiteStore) save(ctx context.Context, actorID string, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_state (actor_id, state_json, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(actor_id) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		actorID, string(data), st.UpdatedAt.UTC(),
	)
	return err
}

// Get returns the actor's state, persisting defaults on first contact.
func (s *SQLiteStore) Get(ctx context.Context, actorID string) (State, error) {
	unlock := s.keys.lock(actorID)
	defer unlock()

	st, found, err := s.load(ctx, actorID)
	if err != nil {
		return State{}, err
	}
	if !found {
		st = State{UpdatedAt: s.now()}
		if err := s.save(ctx, actorID, st); err != nil {
			return State{}, err
		}
	}
	return st, nil
}

// Update performs a read-modify-write merge under the actor's key lock.
func (s *SQLiteStore) Update(ctx context.Context, actorID string, patch Patch) (State, error) {
	unlock := s.keys.lock(actorID)
	defer unlock()

	st, _, err := s.load(ctx, actorID)
	if err != nil {
		return State{}, err
	}
	st = st.apply(patch, s.now())
	if err := s.save(ctx, actorID, st); err != nil {
		return State{}, err
	}
	return st, nil
}

// Clear resets the actor's state to defaults.
func (s *SQLiteStore) Clear(ctx context.Context, actorID string) error {
	unlock := s.keys.lock(actorID)
	defer unlock()
	return s.save(ctx, actorID, State{UpdatedAt: s.now()})
}

// keyedMutex provides per-key mutual exclusion without global locking.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
