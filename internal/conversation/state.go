// Package conversation holds the per-actor state carried across turns:
// the last resolved recipient, the last executed action, and at most one
// pending clarification or confirmation.
package conversation

import (
	"context"
	"time"
)

// Recipient is the last resolved message/meeting target for an actor.
type Recipient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// ActionSummary is a weak back-reference to the most recent executed
// action. Deleting the audit trail only loses the back-reference; it never
// breaks conversation state.
type ActionSummary struct {
	AuditID    string    `json:"audit_id"`
	ActionType string    `json:"action_type"`
	Summary    string    `json:"summary"`
	At         time.Time `json:"at"`
}

// PendingKind distinguishes the two pending-turn shapes.
type PendingKind string

const (
	// PendingClarify means an intent is waiting on missing slots.
	PendingClarify PendingKind = "clarify"
	// PendingConfirm means a fully resolved action is waiting on "yes".
	PendingConfirm PendingKind = "confirm"
)

// Pending is the single pending record an actor may carry. A new
// unrelated command supersedes and clears it.
type Pending struct {
	Kind PendingKind `json:"kind"`

	// Clarification: the intent awaiting slots, what is missing, and what
	// has been gathered so far.
	Intent  string            `json:"intent,omitempty"`
	Missing []string          `json:"missing,omitempty"`
	Slots   map[string]string `json:"slots,omitempty"`

	// Confirmation: the fully resolved action awaiting approval.
	ActionType  string            `json:"action_type,omitempty"`
	TargetIDs   []string          `json:"target_ids,omitempty"`
	TargetLabel string            `json:"target_label,omitempty"`
	Payload     map[string]string `json:"payload,omitempty"`
	Summary     string            `json:"summary,omitempty"`
}

// State is one actor's conversation state. Created lazily with all-empty
// defaults; never hard-deleted except by explicit reset.
type State struct {
	LastRecipient *Recipient     `json:"last_recipient,omitempty"`
	LastAction    *ActionSummary `json:"last_action,omitempty"`
	Pending       *Pending       `json:"pending,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Patch is a partial update. Nil fields are untouched; the Clear* flags
// reset a field to empty. UpdatedAt is always refreshed by the store.
type Patch struct {
	LastRecipient *Recipient
	LastAction    *ActionSummary
	Pending       *Pending
	ClearPending  bool
}

// apply merges a patch into a state copy.
func (s State) apply(p Patch, now time.Time) State {
	if p.LastRecipient != nil {
		s.LastRecipient = p.LastRecipient
	}
	if p.LastAction != nil {
		s.LastAction = p.LastAction
	}
	if p.ClearPending {
		s.Pending = nil
	} else if p.Pending != nil {
		s.Pending = p.Pending
	}
	s.UpdatedAt = now
	return s
}

// Store is the per-actor state interface. Get on an unknown actor returns
// (and persists) a freshly initialized default state; absence is not a
// failure mode. Update is a read-modify-write merge with per-actor mutual
// exclusion.
type Store interface {
	Get(ctx context.Context, actorID string) (State, error)
	Update(ctx context.Context, actorID string, patch Patch) (State, error)
	Clear(ctx context.Context, actorID string) error
}
