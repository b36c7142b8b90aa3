package action

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"campuspilot/internal/audit"
	"campuspilot/internal/logging"
	"campuspilot/internal/records"
)

// Executor performs resolved actions through the record-system client and
// appends an audit record per attempt. The audit append happens strictly
// after the side effect: there is no optimistic audit-before-effect
// ordering, so a timeout can never produce a record claiming success.
type Executor struct {
	records records.Client
	audit   *audit.Store

	// recordFailures controls whether failed attempts are still audited
	// (with a null target id).
	recordFailures bool

	now func() time.Time
}

// NewExecutor wires the executor to its capability client and audit log.
func NewExecutor(client records.Client, auditStore *audit.Store, recordFailures bool) *Executor {
	return &Executor{
		records:        client,
		audit:          auditStore,
		recordFailures: recordFailures,
		now:            time.Now,
	}
}

// auditPayload is the replay/debugging document stored per attempt.
type auditPayload struct {
	Request  interface{} `json:"request"`
	Response interface{} `json:"response,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Execute runs one resolved action. Failures are not retried; the caller
// re-issues or explicitly retries.
func (e *Executor) Execute(ctx context.Context, req Request) (*Result, error) {
	log := logging.Get(logging.CategoryExecutor)
	timer := logging.StartTimer(logging.CategoryExecutor, "Execute")
	defer timer.Stop()

	if !req.Type.Valid() {
		return nil, fmt.Errorf("unknown action type: %q", req.Type)
	}

	log.Info("executing action type=%s actor=%s targets=%d", req.Type, req.ActorID, len(req.Targets))

	switch req.Type {
	case TypeSendMessage:
		return e.sendMessage(ctx, req)
	case TypeScheduleMeeting:
		return e.scheduleMeeting(ctx, req)
	case TypeGetSchedule:
		return e.getSchedule(ctx, req)
	case TypeGetGrades:
		return e.getGrades(ctx, req)
	case TypeQueryEntity:
		return e.queryEntity(ctx, req)
	default:
		// Valid() above makes this unreachable; kept so a new Type
		// constant cannot slip past dispatch silently.
		return nil, fmt.Errorf("unhandled action type: %q", req.Type)
	}
}

func targetIDs(rs []records.Recipient) []string {
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}

func (e *Executor) sendMessage(ctx context.Context, req Request) (*Result, error) {
	capReq := records.SendMessageRequest{
		SenderID:     req.ActorID,
		RecipientIDs: targetIDs(req.Targets),
		Body:         req.Payload[PayloadContent],
	}

	resp, err := e.records.SendMessage(ctx, capReq)
	if err != nil {
		return e.failed(req, capReq, err)
	}
	return e.succeeded(req, capReq, resp, resp.MessageID,
		fmt.Sprintf("message %s sent to %d recipient(s)", resp.MessageID, len(capReq.RecipientIDs)))
}

func (e *Executor) scheduleMeeting(ctx context.Context, req Request) (*Result, error) {
	capReq := records.ScheduleMeetingRequest{
		OrganizerID:    req.ActorID,
		ParticipantIDs: targetIDs(req.Targets),
		When:           req.Payload[PayloadDatetime],
		Topic:          req.Payload[PayloadTopic],
	}

	resp, err := e.records.ScheduleMeeting(ctx, capReq)
	if err != nil {
		return e.failed(req, capReq, err)
	}
	return e.succeeded(req, capReq, resp, resp.MeetingID,
		fmt.Sprintf("meeting %s scheduled for %s", resp.MeetingID, resp.When))
}

func (e *Executor) getSchedule(ctx context.Context, req Request) (*Result, error) {
	capReq := map[string]string{"actor": req.ActorID, "date": req.Payload[PayloadDatetime]}

	entries, err := e.records.GetSchedule(ctx, req.ActorID, req.Payload[PayloadDatetime])
	if err != nil {
		return e.failed(req, capReq, err)
	}

	var sb strings.Builder
	if len(entries) == 0 {
		sb.WriteString("nothing scheduled")
	}
	for i, entry := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(entry.When + " - " + entry.What)
		if entry.Where != "" {
			sb.WriteString(" (" + entry.Where + ")")
		}
	}
	return e.succeededRead(req, capReq, entries, sb.String())
}

func (e *Executor) getGrades(ctx context.Context, req Request) (*Result, error) {
	if len(req.Targets) == 0 {
		return nil, fmt.Errorf("get-grades requires a resolved student target")
	}
	student := req.Targets[0]
	capReq := map[string]string{"student": student.ID}

	grades, err := e.records.GetGrades(ctx, student.ID)
	if err != nil {
		return e.failed(req, capReq, err)
	}

	var sb strings.Builder
	if len(grades) == 0 {
		sb.WriteString("no grades on record for " + student.Name)
	}
	for i, g := range grades {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(g.Subject + ": " + g.Grade)
	}
	return e.succeededRead(req, capReq, grades, sb.String())
}

func (e *Executor) queryEntity(ctx context.Context, req Request) (*Result, error) {
	capReq := map[string]string{"q": req.Payload[PayloadQuery]}

	entities, err := e.records.QueryEntity(ctx, req.Payload[PayloadQuery])
	if err != nil {
		return e.failed(req, capReq, err)
	}

	var sb strings.Builder
	if len(entities) == 0 {
		sb.WriteString("no matching records")
	}
	for i, ent := range entities {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(ent.Name + " (" + ent.Kind + ")")
		if ent.Summary != "" {
			sb.WriteString(": " + ent.Summary)
		}
	}
	return e.succeededRead(req, capReq, entities, sb.String())
}

// succeeded audits a successful side effect and returns ok.
func (e *Executor) succeeded(req Request, capReq, capResp interface{}, createdID, output string) (*Result, error) {
	rec := audit.Record{
		ID:         uuid.NewString(),
		ActorID:    req.ActorID,
		ActionType: string(req.Type),
		TargetType: req.Type.TargetType(),
		TargetID:   &createdID,
		Payload:    marshalPayload(capReq, capResp, ""),
		CreatedAt:  e.now(),
	}
	if err := e.audit.Append(rec); err != nil {
		// The side effect already happened; losing the audit record is
		// worse than failing the turn, so surface it loudly.
		return nil, fmt.Errorf("action succeeded but audit append failed: %w", err)
	}

	return &Result{
		Status:    StatusOK,
		CreatedID: createdID,
		Output:    output,
		AuditID:   rec.ID,
	}, nil
}

// succeededRead audits a read-only action (no created object) and
// returns the rendered output.
func (e *Executor) succeededRead(req Request, capReq, capResp interface{}, output string) (*Result, error) {
	rec := audit.Record{
		ID:         uuid.NewString(),
		ActorID:    req.ActorID,
		ActionType: string(req.Type),
		TargetType: req.Type.TargetType(),
		TargetID:   nil,
		Payload:    marshalPayload(capReq, capResp, ""),
		CreatedAt:  e.now(),
	}
	if err := e.audit.Append(rec); err != nil {
		return nil, fmt.Errorf("action succeeded but audit append failed: %w", err)
	}

	return &Result{
		Status:  StatusOK,
		Output:  output,
		AuditID: rec.ID,
	}, nil
}

// failed maps the capability error to a stable code and, if configured,
// audits the attempt with a null target id.
func (e *Executor) failed(req Request, capReq interface{}, capErr error) (*Result, error) {
	code := records.ErrorCode(capErr)
	logging.Get(logging.CategoryExecutor).Warn(
		"action type=%s actor=%s failed: %s (%v)", req.Type, req.ActorID, code, capErr)

	res := &Result{Status: StatusError, Detail: code}

	if e.recordFailures {
		rec := audit.Record{
			ID:         uuid.NewString(),
			ActorID:    req.ActorID,
			ActionType: string(req.Type),
			TargetType: req.Type.TargetType(),
			TargetID:   nil,
			Payload:    marshalPayload(capReq, nil, code),
			CreatedAt:  e.now(),
		}
		if err := e.audit.Append(rec); err != nil {
			logging.Get(logging.CategoryExecutor).Error("failed to audit failed attempt: %v", err)
		} else {
			res.AuditID = rec.ID
		}
	}

	return res, nil
}

func marshalPayload(req, resp interface{}, errCode string) string {
	data, err := json.Marshal(auditPayload{Request: req, Response: resp, Error: errCode})
	if err != nil {
		return fmt.Sprintf(`{"error":"payload marshal failed: %v"}`, err)
	}
	return string(data)
}
