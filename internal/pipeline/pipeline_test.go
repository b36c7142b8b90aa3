package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"campuspilot/internal/action"
	"campuspilot/internal/audit"
	"campuspilot/internal/config"
	"campuspilot/internal/conversation"
	"campuspilot/internal/perception"
	"campuspilot/internal/records"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// fakeClient is a canned record system for pipeline tests. The directory
// maps lowercase names to resolved recipients.
type fakeClient struct {
	directory map[string][]records.Recipient
	resolved  []string
}

func (f *fakeClient) ResolveRecipients(_ context.Context, name string) ([]records.Recipient, error) {
	f.resolved = append(f.resolved, name)
	if rcpts, ok := f.directory[name]; ok {
		return rcpts, nil
	}
	return nil, &records.APIError{Code: records.CodeRecipientNotFound, Status: 404}
}

func (f *fakeClient) SendMessage(_ context.Context, req records.SendMessageRequest) (*records.SendMessageResponse, error) {
	return &records.SendMessageResponse{MessageID: "msg-1", RecipientIDs: req.RecipientIDs, Body: req.Body}, nil
}

func (f *fakeClient) ScheduleMeeting(_ context.Context, req records.ScheduleMeetingRequest) (*records.ScheduleMeetingResponse, error) {
	return &records.ScheduleMeetingResponse{MeetingID: "mtg-1", ParticipantIDs: req.ParticipantIDs, When: req.When}, nil
}

func (f *fakeClient) GetSchedule(context.Context, string, string) ([]records.ScheduleEntry, error) {
	return []records.ScheduleEntry{{When: "9:00", What: "Math"}}, nil
}

func (f *fakeClient) GetGrades(context.Context, string) ([]records.GradeEntry, error) {
	return []records.GradeEntry{{Subject: "Math", Grade: "B+"}}, nil
}

func (f *fakeClient) QueryEntity(context.Context, string) ([]records.Entity, error) {
	return []records.Entity{{ID: "t-9", Name: "Jennifer Park", Kind: "educator"}}, nil
}

func (f *fakeClient) GetMessage(_ context.Context, id string) (*records.Message, error) {
	return &records.Message{ID: id, SenderID: "parent-1"}, nil
}

func (f *fakeClient) DeleteMessage(context.Context, string) error { return nil }

func (f *fakeClient) GetMeeting(_ context.Context, id string) (*records.Meeting, error) {
	return &records.Meeting{ID: id, OrganizerID: "parent-1"}, nil
}

func (f *fakeClient) CancelMeeting(context.Context, string) error { return nil }

// stubOracle returns one fixed result for every inference.
type stubOracle struct {
	result *perception.OracleResult
	calls  int
}

func (s *stubOracle) Infer(context.Context, string, []string) (*perception.OracleResult, error) {
	s.calls++
	return s.result, nil
}

type fixture struct {
	pipeline *Pipeline
	audit    *audit.Store
	states   conversation.Store
	client   *fakeClient
}

func newFixture(t *testing.T, mode string, oracle perception.Oracle) *fixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Autonomy.Mode = mode

	auditStore, err := audit.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { auditStore.Close() })

	client := &fakeClient{directory: map[string][]records.Recipient{
		"jennifer":    {{ID: "t-9", Name: "Jennifer Park", Kind: "educator"}},
		"the parkers": {{ID: "g-1", Name: "Dana Parker", Kind: "guardian"}, {ID: "g-2", Name: "Lee Parker", Kind: "guardian"}},
		"all parents": {{ID: "g-1", Name: "A"}, {ID: "g-2", Name: "B"}, {ID: "g-3", Name: "C"}, {ID: "g-4", Name: "D"}},
	}}

	states := conversation.NewMemoryStore()
	exec := action.NewExecutor(client, auditStore, cfg.Audit.RecordFailures)
	return &fixture{
		pipeline: New(config.NewRuntime(cfg), oracle, states, exec, client),
		audit:    auditStore,
		states:   states,
		client:   client,
	}
}

func (f *fixture) turn(t *testing.T, text string) *TurnOutput {
	t.Helper()
	out, err := f.pipeline.Turn(context.Background(), TurnInput{ActorID: "parent-1", Text: text})
	require.NoError(t, err)
	return out
}

func TestHighConfidenceSendExecutesInAssistMode(t *testing.T) {
	f := newFixture(t, "assist", nil)

	out := f.turn(t, "send a message to jennifer: please see me tomorrow")
	assert.Equal(t, OutcomeExecuted, out.Outcome)
	require.NotEmpty(t, out.AuditID)

	rec, err := f.audit.Get(out.AuditID)
	require.NoError(t, err)
	assert.Equal(t, "send-message", rec.ActionType)
	assert.True(t, rec.Succeeded())
}

func TestManualModeRequiresConfirmation(t *testing.T) {
	f := newFixture(t, "manual", nil)

	out := f.turn(t, "send a message to jennifer: please see me tomorrow")
	assert.Equal(t, OutcomeConfirm, out.Outcome)
	assert.Empty(t, out.AuditID)

	// Nothing lands in the audit log until the user approves.
	recs, err := f.audit.ListByActor("parent-1", nil, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)

	out = f.turn(t, "yes")
	assert.Equal(t, OutcomeExecuted, out.Outcome)
	assert.NotEmpty(t, out.AuditID)
}

func TestConfirmationDeclined(t *testing.T) {
	f := newFixture(t, "manual", nil)

	f.turn(t, "send a message to jennifer: please see me tomorrow")
	out := f.turn(t, "no")
	assert.Equal(t, OutcomeCancelled, out.Outcome)

	recs, err := f.audit.ListByActor("parent-1", nil, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// The pending confirmation is gone; a later yes is just noise.
	out = f.turn(t, "yes")
	assert.Equal(t, OutcomeClarify, out.Outcome)
}

func TestMissingSlotsClarifyThenResume(t *testing.T) {
	f := newFixture(t, "assist", nil)

	out := f.turn(t, "schedule a meeting")
	assert.Equal(t, OutcomeClarify, out.Outcome)
	if diff := cmp.Diff([]string{"recipient", "datetime"}, out.Missing); diff != "" {
		t.Fatalf("missing slots mismatch (-want +got):\n%s", diff)
	}

	// First answer fills the recipient, datetime still missing.
	out = f.turn(t, "the parkers")
	assert.Equal(t, OutcomeClarify, out.Outcome)
	if diff := cmp.Diff([]string{"datetime"}, out.Missing); diff != "" {
		t.Fatalf("missing slots mismatch (-want +got):\n%s", diff)
	}

	// Resumed commands carry reduced confidence, so assist mode asks
	// for confirmation instead of executing.
	out = f.turn(t, "tomorrow morning")
	assert.Equal(t, OutcomeConfirm, out.Outcome)

	out = f.turn(t, "yes")
	assert.Equal(t, OutcomeExecuted, out.Outcome)

	rec, err := f.audit.Get(out.AuditID)
	require.NoError(t, err)
	assert.Equal(t, "schedule-meeting", rec.ActionType)
}

func TestForcedTurnStillClarifiesIncompleteCommand(t *testing.T) {
	f := newFixture(t, "assist", nil)

	out, err := f.pipeline.Turn(context.Background(), TurnInput{
		ActorID: "parent-1",
		Text:    "schedule a meeting",
		Force:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeClarify, out.Outcome)
	if diff := cmp.Diff([]string{"recipient", "datetime"}, out.Missing); diff != "" {
		t.Fatalf("missing slots mismatch (-want +got):\n%s", diff)
	}

	// No degenerate request reached the executor.
	recs, err := f.audit.ListByActor("parent-1", nil, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestForcedCompleteCommandSkipsConfirmation(t *testing.T) {
	f := newFixture(t, "manual", nil)

	out, err := f.pipeline.Turn(context.Background(), TurnInput{
		ActorID: "parent-1",
		Text:    "send a message to jennifer: please see me tomorrow",
		Force:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeExecuted, out.Outcome)
	assert.NotEmpty(t, out.AuditID)
}

func TestPronounResolvesToLastRecipient(t *testing.T) {
	f := newFixture(t, "assist", nil)

	out := f.turn(t, "send a message to jennifer: please see me tomorrow")
	require.Equal(t, OutcomeExecuted, out.Outcome)

	out = f.turn(t, "schedule a meeting with her tomorrow morning")
	assert.Equal(t, OutcomeExecuted, out.Outcome)
	// The stored resolution is reused; no second directory call for her.
	assert.Equal(t, []string{"jennifer"}, f.client.resolved)
}

func TestRecipientCapForcesConfirmation(t *testing.T) {
	f := newFixture(t, "assist", nil)

	out := f.turn(t, "send a message to all parents: picture day is friday")
	assert.Equal(t, OutcomeConfirm, out.Outcome)
}

func TestUnknownRecipientFailsCleanly(t *testing.T) {
	f := newFixture(t, "assist", nil)

	out := f.turn(t, "send a message to zorblax: hello")
	assert.Equal(t, OutcomeError, out.Outcome)
	assert.Equal(t, records.CodeRecipientNotFound, out.Detail)
}

func TestUnparsedInputDegradesToClarification(t *testing.T) {
	f := newFixture(t, "assist", nil)

	out := f.turn(t, "make me a sandwich")
	assert.Equal(t, OutcomeClarify, out.Outcome)
	assert.Empty(t, out.AuditID)
}

func TestOracleFallbackNeverAutoExecutes(t *testing.T) {
	oracle := &stubOracle{result: &perception.OracleResult{
		Intent:     perception.IntentSendMessage,
		Slots:      map[string]string{"recipient": "jennifer", "content": "running late"},
		Confidence: 0.60,
	}}
	f := newFixture(t, "assist", oracle)

	out := f.turn(t, "could you maybe let jennifer know I am running late")
	assert.Equal(t, 1, oracle.calls)
	// Oracle confidence is capped below the assist threshold, so the
	// best it can reach is a confirmation prompt.
	assert.Equal(t, OutcomeConfirm, out.Outcome)

	out = f.turn(t, "yes")
	assert.Equal(t, OutcomeExecuted, out.Outcome)
}

func TestOracleAbstains(t *testing.T) {
	oracle := &stubOracle{result: nil}
	f := newFixture(t, "assist", oracle)

	out := f.turn(t, "blorp")
	assert.Equal(t, 1, oracle.calls)
	assert.Equal(t, OutcomeClarify, out.Outcome)
}

func TestOracleNotCalledWhenExtractorMatches(t *testing.T) {
	oracle := &stubOracle{result: nil}
	f := newFixture(t, "assist", oracle)

	f.turn(t, "send a message to jennifer: hi")
	assert.Equal(t, 0, oracle.calls)
}

func TestGetScheduleIsAuditedAsRead(t *testing.T) {
	f := newFixture(t, "autonomous", nil)

	out := f.turn(t, "what's on my schedule tomorrow")
	require.Equal(t, OutcomeExecuted, out.Outcome)
	assert.Contains(t, out.Reply, "9:00 - Math")

	rec, err := f.audit.Get(out.AuditID)
	require.NoError(t, err)
	assert.Nil(t, rec.TargetID)
}

func TestReset(t *testing.T) {
	f := newFixture(t, "manual", nil)

	f.turn(t, "send a message to jennifer: hi")
	require.NoError(t, f.pipeline.Reset(context.Background(), "parent-1"))

	// After the reset the pending confirmation is gone.
	out := f.turn(t, "yes")
	assert.Equal(t, OutcomeClarify, out.Outcome)
}

func TestStatePersistsAcrossTurns(t *testing.T) {
	f := newFixture(t, "assist", nil)

	f.turn(t, "send a message to jennifer: please see me tomorrow")

	st, err := f.states.Get(context.Background(), "parent-1")
	require.NoError(t, err)
	require.NotNil(t, st.LastRecipient)
	assert.Equal(t, "Jennifer Park", st.LastRecipient.Name)
	require.NotNil(t, st.LastAction)
	assert.WithinDuration(t, time.Now(), st.LastAction.At, 5*time.Second)
}
