package action

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuspilot/internal/audit"
	"campuspilot/internal/records"
)

// fakeRecords is a scriptable capability client for executor and undo
// tests. Zero-value methods succeed with canned objects.
type fakeRecords struct {
	resolveErr error
	sendErr    error
	meetErr    error
	readErr    error
	deleteErr  error
	cancelErr  error
	lookupErr  error

	messageSender    string
	meetingOrganizer string

	deleted   []string
	cancelled []string

	schedule []records.ScheduleEntry
	grades   []records.GradeEntry
	entities []records.Entity
}

func (f *fakeRecords) ResolveRecipients(_ context.Context, name string) ([]records.Recipient, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return []records.Recipient{{ID: "r-1", Name: name, Kind: "educator"}}, nil
}

func (f *fakeRecords) SendMessage(_ context.Context, req records.SendMessageRequest) (*records.SendMessageResponse, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &records.SendMessageResponse{MessageID: "msg-1", RecipientIDs: req.RecipientIDs, Body: req.Body}, nil
}

func (f *fakeRecords) ScheduleMeeting(_ context.Context, req records.ScheduleMeetingRequest) (*records.ScheduleMeetingResponse, error) {
	if f.meetErr != nil {
		return nil, f.meetErr
	}
	return &records.ScheduleMeetingResponse{MeetingID: "mtg-1", ParticipantIDs: req.ParticipantIDs, When: req.When}, nil
}

func (f *fakeRecords) GetSchedule(context.Context, string, string) ([]records.ScheduleEntry, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.schedule, nil
}

func (f *fakeRecords) GetGrades(context.Context, string) ([]records.GradeEntry, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.grades, nil
}

func (f *fakeRecords) QueryEntity(context.Context, string) ([]records.Entity, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.entities, nil
}

func (f *fakeRecords) GetMessage(_ context.Context, id string) (*records.Message, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	sender := f.messageSender
	if sender == "" {
		sender = "parent-1"
	}
	return &records.Message{ID: id, SenderID: sender}, nil
}

func (f *fakeRecords) DeleteMessage(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRecords) GetMeeting(_ context.Context, id string) (*records.Meeting, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	organizer := f.meetingOrganizer
	if organizer == "" {
		organizer = "parent-1"
	}
	return &records.Meeting{ID: id, OrganizerID: organizer}, nil
}

func (f *fakeRecords) CancelMeeting(_ context.Context, id string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func newAuditStore(t *testing.T) *audit.Store {
	t.Helper()
	s, err := audit.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sendRequest() Request {
	return Request{
		Type:    TypeSendMessage,
		ActorID: "parent-1",
		Targets: []records.Recipient{{ID: "t-9", Name: "Jennifer Park", Kind: "educator"}},
		Payload: map[string]string{PayloadContent: "please see me tomorrow"},
	}
}

func TestExecuteSendMessage(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	exec := NewExecutor(&fakeRecords{}, auditStore, true)

	res, err := exec.Execute(ctx, sendRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "msg-1", res.CreatedID)
	require.NotEmpty(t, res.AuditID)

	rec, err := auditStore.Get(res.AuditID)
	require.NoError(t, err)
	assert.Equal(t, "parent-1", rec.ActorID)
	assert.Equal(t, "send-message", rec.ActionType)
	assert.Equal(t, "message", rec.TargetType)
	require.NotNil(t, rec.TargetID)
	assert.Equal(t, "msg-1", *rec.TargetID)
	assert.Contains(t, rec.Payload, "please see me tomorrow")
}

func TestExecuteScheduleMeeting(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	exec := NewExecutor(&fakeRecords{}, auditStore, true)

	res, err := exec.Execute(ctx, Request{
		Type:    TypeScheduleMeeting,
		ActorID: "parent-1",
		Targets: []records.Recipient{{ID: "t-9", Name: "Jennifer Park"}},
		Payload: map[string]string{PayloadDatetime: "thursday at 3pm"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "mtg-1", res.CreatedID)

	rec, err := auditStore.Get(res.AuditID)
	require.NoError(t, err)
	assert.Equal(t, "meeting", rec.TargetType)
	require.NotNil(t, rec.TargetID)
	assert.Equal(t, "mtg-1", *rec.TargetID)
}

func TestExecuteReadOnlyActionsAuditWithoutTarget(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	client := &fakeRecords{
		schedule: []records.ScheduleEntry{{When: "9:00", What: "Math", Where: "Room 4"}},
		grades:   []records.GradeEntry{{Subject: "Math", Grade: "B+"}},
		entities: []records.Entity{{ID: "t-9", Name: "Jennifer Park", Kind: "educator", Summary: "8th grade math"}},
	}
	exec := NewExecutor(client, auditStore, true)

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "schedule",
			req:  Request{Type: TypeGetSchedule, ActorID: "parent-1", Payload: map[string]string{PayloadDatetime: "tomorrow"}},
			want: "9:00 - Math (Room 4)",
		},
		{
			name: "grades",
			req: Request{Type: TypeGetGrades, ActorID: "parent-1",
				Targets: []records.Recipient{{ID: "s-1", Name: "Marcus", Kind: "student"}}},
			want: "Math: B+",
		},
		{
			name: "entity",
			req:  Request{Type: TypeQueryEntity, ActorID: "parent-1", Payload: map[string]string{PayloadQuery: "Jennifer Park"}},
			want: "Jennifer Park (educator): 8th grade math",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := exec.Execute(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, StatusOK, res.Status)
			assert.Equal(t, tt.want, res.Output)
			assert.Empty(t, res.CreatedID)

			rec, err := auditStore.Get(res.AuditID)
			require.NoError(t, err)
			// Reads are audited but create nothing reversible.
			assert.Nil(t, rec.TargetID)
		})
	}
}

func TestExecuteFailureIsAudited(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	client := &fakeRecords{sendErr: &records.APIError{Code: records.CodeRecipientNotFound, Status: 404}}
	exec := NewExecutor(client, auditStore, true)

	res, err := exec.Execute(ctx, sendRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, records.CodeRecipientNotFound, res.Detail)
	require.NotEmpty(t, res.AuditID)

	rec, err := auditStore.Get(res.AuditID)
	require.NoError(t, err)
	assert.Nil(t, rec.TargetID)
	assert.False(t, rec.Succeeded())
	assert.Contains(t, rec.Payload, records.CodeRecipientNotFound)
}

func TestExecuteFailureNotAuditedWhenDisabled(t *testing.T) {
	ctx := context.Background()
	auditStore := newAuditStore(t)
	client := &fakeRecords{sendErr: &records.APIError{Code: records.CodeSystemError, Status: 500}}
	exec := NewExecutor(client, auditStore, false)

	res, err := exec.Execute(ctx, sendRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Empty(t, res.AuditID)

	recs, err := auditStore.ListByActor("parent-1", nil, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestExecuteRejectsUnknownType(t *testing.T) {
	exec := NewExecutor(&fakeRecords{}, newAuditStore(t), true)
	_, err := exec.Execute(context.Background(), Request{Type: Type("drop-tables"), ActorID: "parent-1"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown action type"))
}
