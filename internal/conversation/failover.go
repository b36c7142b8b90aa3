package conversation

import (
	"context"

	"campuspilot/internal/logging"
)

// FailoverStore wraps a durable primary with an in-memory fallback.
// State persistence is fail-open: a broken durable backend degrades the
// turn to in-process state, it never aborts it.
//
// Writes go to both backends so the memory mirror stays usable the moment
// the primary starts failing. Reads prefer the primary.
type FailoverStore struct {
	primary  Store
	fallback *MemoryStore
}

// NewFailoverStore wraps primary with a fresh in-memory fallback.
func NewFailoverStore(primary Store) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: NewMemoryStore(),
	}
}

// Get reads from the primary, degrading to the memory mirror on error.
func (f *FailoverStore) Get(ctx context.Context, actorID string) (State, error) {
	st, err := f.primary.Get(ctx, actorID)
	if err != nil {
		logging.Get(logging.CategoryState).Warn(
			"durable state read failed for actor %s, using in-memory fallback: %v", actorID, err)
		return f.fallback.Get(ctx, actorID)
	}
	return st, nil
}

// Update writes through to both backends. A primary failure is logged
// and the fallback result is returned.
func (f *FailoverStore) Update(ctx context.Context, actorID string, patch Patch) (State, error) {
	st, err := f.primary.Update(ctx, actorID, patch)
	mirrored, mErr := f.fallback.Update(ctx, actorID, patch)
	if err != nil {
		logging.Get(logging.CategoryState).Warn(
			"durable state write failed for actor %s, using in-memory fallback: %v", actorID, err)
		return mirrored, mErr
	}
	return st, nil
}

// Clear resets both backends.
func (f *FailoverStore) Clear(ctx context.Context, actorID string) error {
	_ = f.fallback.Clear(ctx, actorID)
	if err := f.primary.Clear(ctx, actorID); err != nil {
		logging.Get(logging.CategoryState).Warn(
			"durable state clear failed for actor %s: %v", actorID, err)
	}
	return nil
}
