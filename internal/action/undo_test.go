package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuspilot/internal/audit"
)

const undoWindow = 300 * time.Second

func appendRecord(t *testing.T, s *audit.Store, actionType, actorID string, targetID *string, createdAt time.Time) string {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, s.Append(audit.Record{
		ID:         id,
		ActorID:    actorID,
		ActionType: actionType,
		TargetType: Type(actionType).TargetType(),
		TargetID:   targetID,
		Payload:    "{}",
		CreatedAt:  createdAt,
	}))
	return id
}

func TestUndoSendMessage(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	client := &fakeRecords{messageSender: "parent-1"}
	undoer := NewUndoer(client, auditStore, undoWindow)

	created := time.Now().UTC()
	msgID := "msg-1"
	id := appendRecord(t, auditStore, "send-message", "parent-1", &msgID, created)

	rec, err := undoer.Undo(ctx, id, "parent-1", created.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, rec.Undone)
	require.NotNil(t, rec.UndoneAt)
	assert.Equal(t, []string{"msg-1"}, client.deleted)

	// The audit record itself stays in the log, flagged undone.
	stored, err := auditStore.Get(id)
	require.NoError(t, err)
	assert.True(t, stored.Undone)
}

func TestUndoScheduleMeeting(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	client := &fakeRecords{meetingOrganizer: "parent-1"}
	undoer := NewUndoer(client, auditStore, undoWindow)

	created := time.Now().UTC()
	mtgID := "mtg-1"
	id := appendRecord(t, auditStore, "schedule-meeting", "parent-1", &mtgID, created)

	rec, err := undoer.Undo(ctx, id, "parent-1", created.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, rec.Undone)
	assert.Equal(t, []string{"mtg-1"}, client.cancelled)
}

func TestUndoTwiceFails(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	undoer := NewUndoer(&fakeRecords{messageSender: "parent-1"}, auditStore, undoWindow)

	created := time.Now().UTC()
	msgID := "msg-1"
	id := appendRecord(t, auditStore, "send-message", "parent-1", &msgID, created)

	_, err := undoer.Undo(ctx, id, "parent-1", created.Add(5*time.Second))
	require.NoError(t, err)

	_, err = undoer.Undo(ctx, id, "parent-1", created.Add(10*time.Second))
	assert.ErrorIs(t, err, ErrAlreadyUndone)
}

func TestUndoWindowBoundary(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	client := &fakeRecords{messageSender: "parent-1"}
	undoer := NewUndoer(client, auditStore, undoWindow)

	created := time.Now().UTC()

	// Exactly at the window edge still succeeds.
	msgA := "msg-a"
	idA := appendRecord(t, auditStore, "send-message", "parent-1", &msgA, created)
	_, err := undoer.Undo(ctx, idA, "parent-1", created.Add(undoWindow))
	require.NoError(t, err)

	// One second past the edge is refused.
	msgB := "msg-b"
	idB := appendRecord(t, auditStore, "send-message", "parent-1", &msgB, created)
	_, err = undoer.Undo(ctx, idB, "parent-1", created.Add(undoWindow+time.Second))
	assert.ErrorIs(t, err, ErrWindowExpired)
	assert.NotContains(t, client.deleted, "msg-b")
}

func TestUndoForbiddenForOtherActor(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	client := &fakeRecords{messageSender: "parent-1"}
	undoer := NewUndoer(client, auditStore, undoWindow)

	created := time.Now().UTC()
	msgID := "msg-1"
	id := appendRecord(t, auditStore, "send-message", "parent-1", &msgID, created)

	_, err := undoer.Undo(ctx, id, "parent-2", created.Add(time.Second))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, client.deleted)
}

func TestUndoForbiddenWhenDomainOwnerDiffers(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	// Audit actor matches but the message's own sender does not.
	client := &fakeRecords{messageSender: "someone-else"}
	undoer := NewUndoer(client, auditStore, undoWindow)

	created := time.Now().UTC()
	msgID := "msg-1"
	id := appendRecord(t, auditStore, "send-message", "parent-1", &msgID, created)

	_, err := undoer.Undo(ctx, id, "parent-1", created.Add(time.Second))
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, client.deleted)
}

func TestUndoNotReversible(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	undoer := NewUndoer(&fakeRecords{}, auditStore, undoWindow)

	created := time.Now().UTC()

	// Read-only action.
	readID := appendRecord(t, auditStore, "get-grades", "parent-1", nil, created)
	_, err := undoer.Undo(ctx, readID, "parent-1", created.Add(time.Second))
	assert.ErrorIs(t, err, ErrNotReversible)

	// Failed attempt: reversible type but nothing was created.
	failedID := appendRecord(t, auditStore, "send-message", "parent-1", nil, created)
	_, err = undoer.Undo(ctx, failedID, "parent-1", created.Add(time.Second))
	assert.ErrorIs(t, err, ErrNotReversible)
}

func TestUndoUnknownRecord(t *testing.T) {
	undoer := NewUndoer(&fakeRecords{}, newAuditStore(t), undoWindow)
	_, err := undoer.Undo(context.Background(), "no-such-id", "parent-1", time.Now().UTC())
	assert.ErrorIs(t, err, ErrUndoNotFound)
}

func TestUndoReversalFailureKeepsRecordActive(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	client := &fakeRecords{
		messageSender: "parent-1",
		deleteErr:     errors.New("record system down"),
	}
	undoer := NewUndoer(client, auditStore, undoWindow)

	created := time.Now().UTC()
	msgID := "msg-1"
	id := appendRecord(t, auditStore, "send-message", "parent-1", &msgID, created)

	_, err := undoer.Undo(ctx, id, "parent-1", created.Add(time.Second))
	assert.ErrorIs(t, err, ErrReversalFailed)

	// The flip never happened, so a retry is still possible.
	stored, err := auditStore.Get(id)
	require.NoError(t, err)
	assert.False(t, stored.Undone)

	client.deleteErr = nil
	_, err = undoer.Undo(ctx, id, "parent-1", created.Add(2*time.Second))
	assert.NoError(t, err)
}

func TestUndoOwnerLookupFailureBlocks(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	client := &fakeRecords{lookupErr: errors.New("lookup down")}
	undoer := NewUndoer(client, auditStore, undoWindow)

	created := time.Now().UTC()
	msgID := "msg-1"
	id := appendRecord(t, auditStore, "send-message", "parent-1", &msgID, created)

	_, err := undoer.Undo(ctx, id, "parent-1", created.Add(time.Second))
	assert.ErrorIs(t, err, ErrReversalFailed)
	assert.Empty(t, client.deleted)
}
