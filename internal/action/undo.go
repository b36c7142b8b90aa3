package action

import (
	"context"
	"errors"
	"time"

	"campuspilot/internal/audit"
	"campuspilot/internal/logging"
	"campuspilot/internal/records"
)

// Undo failure outcomes. Each is a distinct, user-facing, non-retryable
// result, not an internal error.
var (
	ErrUndoNotFound   = errors.New("NOT_FOUND")
	ErrAlreadyUndone  = errors.New("ALREADY_UNDONE")
	ErrWindowExpired  = errors.New("WINDOW_EXPIRED")
	ErrForbidden      = errors.New("FORBIDDEN")
	ErrNotReversible  = errors.New("NOT_REVERSIBLE")
	ErrReversalFailed = errors.New("REVERSAL_FAILED")
)

// Undoer reverses audited side effects within a fixed window.
// Per-record state machine: ACTIVE -> UNDONE, terminal.
type Undoer struct {
	records records.Client
	audit   *audit.Store
	window  time.Duration
}

// NewUndoer creates an undo engine with the configured window. The
// window is a hard deadline with no extension mechanism.
func NewUndoer(client records.Client, auditStore *audit.Store, window time.Duration) *Undoer {
	return &Undoer{records: client, audit: auditStore, window: window}
}

// Undo validates ownership and the time window, reverses the side effect
// by its most direct inverse, then flips the record. The flip is atomic:
// of two racing undos only one wins, the loser sees ErrAlreadyUndone.
func (u *Undoer) Undo(ctx context.Context, recordID, requestingActorID string, now time.Time) (*audit.Record, error) {
	log := logging.Get(logging.CategoryUndo)

	rec, err := u.audit.Get(recordID)
	if errors.Is(err, audit.ErrNotFound) {
		return nil, ErrUndoNotFound
	}
	if err != nil {
		return nil, err
	}

	if rec.Undone {
		return rec, ErrAlreadyUndone
	}
	if now.Sub(rec.CreatedAt) > u.window {
		log.Info("undo refused for %s: window expired (%s past creation)", recordID, now.Sub(rec.CreatedAt))
		return rec, ErrWindowExpired
	}

	actionType := Type(rec.ActionType)
	if !actionType.Reversible() || rec.TargetID == nil {
		return rec, ErrNotReversible
	}

	if err := u.checkOwnership(ctx, rec, actionType, requestingActorID); err != nil {
		return rec, err
	}

	// Destructive inverse first, flip second: the flip is the commit
	// point, so a failed reversal leaves the record ACTIVE and a retry
	// possible.
	switch actionType {
	case TypeSendMessage:
		err = u.records.DeleteMessage(ctx, *rec.TargetID)
	case TypeScheduleMeeting:
		err = u.records.CancelMeeting(ctx, *rec.TargetID)
	default:
		return rec, ErrNotReversible
	}
	if err != nil {
		log.Error("reversal failed for %s (%s %s): %v", recordID, rec.ActionType, *rec.TargetID, err)
		return rec, errors.Join(ErrReversalFailed, err)
	}

	won, err := u.audit.MarkUndone(recordID, now)
	if err != nil {
		return rec, err
	}
	if !won {
		// A concurrent undo beat us to the flip.
		return rec, ErrAlreadyUndone
	}

	log.Info("undid %s: %s %s reversed by %s", recordID, rec.ActionType, *rec.TargetID, requestingActorID)

	rec.Undone = true
	undoneAt := now
	rec.UndoneAt = &undoneAt
	return rec, nil
}

// checkOwnership verifies the requester against the audit actor and,
// where the domain object carries its own owner field, against the
// domain object itself.
func (u *Undoer) checkOwnership(ctx context.Context, rec *audit.Record, actionType Type, requestingActorID string) error {
	if rec.ActorID != requestingActorID {
		return ErrForbidden
	}

	switch actionType {
	case TypeSendMessage:
		msg, err := u.records.GetMessage(ctx, *rec.TargetID)
		if err != nil {
			// Owner lookup failure blocks the undo rather than allowing
			// an unverified reversal.
			return errors.Join(ErrReversalFailed, err)
		}
		if msg.SenderID != requestingActorID {
			return ErrForbidden
		}
	case TypeScheduleMeeting:
		mtg, err := u.records.GetMeeting(ctx, *rec.TargetID)
		if err != nil {
			return errors.Join(ErrReversalFailed, err)
		}
		if mtg.OrganizerID != requestingActorID {
			return ErrForbidden
		}
	}
	return nil
}
