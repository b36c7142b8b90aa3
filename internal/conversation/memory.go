package conversation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process backend: a map partitioned by actor id
// with per-key locking, so concurrent turns for different actors proceed
// fully in parallel.
type MemoryStore struct {
	mu     sync.RWMutex // guards the map itself
	actors map[string]*actorEntry
	now    func() time.Time
}

type actorEntry struct {
	mu    sync.Mutex // per-actor read-modify-write exclusion
	state State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actors: make(map[string]*actorEntry),
		now:    time.Now,
	}
}

func (m *MemoryStore) entry(actorID string) *actorEntry {
	m.mu.RLock()
	e, ok := m.actors[actorID]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.actors[actorID]; ok {
		return e
	}
	e = &actorEntry{state: State{UpdatedAt: m.now()}}
	m.actors[actorID] = e
	return e
}

// Get returns the actor's state, lazily creating defaults.
func (m *MemoryStore) Get(_ context.Context, actorID string) (State, error) {
	e := m.entry(actorID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// Update merges the patch under the actor's lock.
func (m *MemoryStore) Update(_ context.Context, actorID string, patch Patch) (State, error) {
	e := m.entry(actorID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = e.state.apply(patch, m.now())
	return e.state, nil
}

// Clear resets the actor's state to defaults.
func (m *MemoryStore) Clear(_ context.Context, actorID string) error {
	e := m.entry(actorID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = State{UpdatedAt: m.now()}
	return nil
}
