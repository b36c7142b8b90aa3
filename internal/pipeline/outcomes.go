package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"campuspilot/internal/action"
	"campuspilot/internal/conversation"
	"campuspilot/internal/perception"
	"campuspilot/internal/records"
)

// clarify records the partial command and asks for the missing slots.
func (p *Pipeline) clarify(ctx context.Context, actorID string, cmd perception.ParsedCommand, missing []string) (*TurnOutput, error) {
	pending := &conversation.Pending{
		Kind:    conversation.PendingClarify,
		Intent:  string(cmd.Intent),
		Missing: missing,
		Slots:   cmd.Slots,
	}
	if _, err := p.states.Update(ctx, actorID, conversation.Patch{Pending: pending}); err != nil {
		return nil, err
	}
	return &TurnOutput{
		Outcome: OutcomeClarify,
		Missing: missing,
		Reply:   clarifyPrompt(cmd.Intent, missing),
	}, nil
}

// confirm stages the fully resolved action and asks for a yes/no.
func (p *Pipeline) confirm(ctx context.Context, actorID string, cmd perception.ParsedCommand, rcpts []records.Recipient) (*TurnOutput, error) {
	req := buildRequest(actorID, cmd, rcpts)
	summary := summarize(req)
	pending := &conversation.Pending{
		Kind:        conversation.PendingConfirm,
		ActionType:  string(req.Type),
		TargetIDs:   recipientIDs(rcpts),
		TargetLabel: recipientLabel(rcpts, cmd.Slots),
		Payload:     req.Payload,
		Summary:     summary,
	}
	if _, err := p.states.Update(ctx, actorID, conversation.Patch{Pending: pending}); err != nil {
		return nil, err
	}
	return &TurnOutput{
		Outcome: OutcomeConfirm,
		Reply:   summary + "\nReply \"yes\" to proceed or \"no\" to cancel.",
	}, nil
}

// executeConfirmed rebuilds the staged request and runs it with the
// policy bypassed: the user just said yes.
func (p *Pipeline) executeConfirmed(ctx context.Context, actorID string, pending *conversation.Pending) (*TurnOutput, error) {
	req := action.Request{
		Type:    action.Type(pending.ActionType),
		ActorID: actorID,
		Payload: pending.Payload,
	}
	for _, id := range pending.TargetIDs {
		req.Targets = append(req.Targets, records.Recipient{ID: id, Name: pending.TargetLabel})
	}
	return p.execute(ctx, actorID, req)
}

// execute runs the action and folds the result back into state.
func (p *Pipeline) execute(ctx context.Context, actorID string, req action.Request) (*TurnOutput, error) {
	res, err := p.exec.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	if res.Status == action.StatusError {
		if _, uerr := p.states.Update(ctx, actorID, conversation.Patch{ClearPending: true}); uerr != nil {
			return nil, uerr
		}
		return &TurnOutput{
			Outcome: OutcomeError,
			Detail:  res.Detail,
			AuditID: res.AuditID,
			Reply:   failureReply(res.Detail, recipientLabel(req.Targets, req.Payload)),
		}, nil
	}

	patch := conversation.Patch{
		ClearPending: true,
		LastAction: &conversation.ActionSummary{
			AuditID:    res.AuditID,
			ActionType: string(req.Type),
			Summary:    summarize(req),
			At:         time.Now().UTC(),
		},
	}
	if len(req.Targets) > 0 {
		patch.LastRecipient = &conversation.Recipient{
			ID:   req.Targets[0].ID,
			Name: req.Targets[0].Name,
			Kind: req.Targets[0].Kind,
		}
	}
	if _, err := p.states.Update(ctx, actorID, patch); err != nil {
		return nil, err
	}

	reply := executedReply(req, res)
	return &TurnOutput{Outcome: OutcomeExecuted, AuditID: res.AuditID, Reply: reply}, nil
}

// buildRequest maps a parsed command onto an action request.
func buildRequest(actorID string, cmd perception.ParsedCommand, rcpts []records.Recipient) action.Request {
	payload := map[string]string{}
	switch cmd.Intent {
	case perception.IntentSendMessage:
		payload[action.PayloadContent] = cmd.Slots[perception.SlotContent]
	case perception.IntentScheduleMeeting:
		payload[action.PayloadDatetime] = cmd.Slots[perception.SlotDatetime]
		if topic := cmd.Slots[perception.SlotSubject]; topic != "" {
			payload[action.PayloadTopic] = topic
		}
	case perception.IntentGetSchedule:
		if dt := cmd.Slots[perception.SlotDatetime]; dt != "" {
			payload[action.PayloadDatetime] = dt
		}
	case perception.IntentQueryEntity:
		payload[action.PayloadQuery] = cmd.Slots[perception.SlotEntity]
	}
	return action.Request{
		Type:    action.Type(cmd.Intent),
		ActorID: actorID,
		Targets: rcpts,
		Payload: payload,
	}
}

func summarize(req action.Request) string {
	label := recipientLabel(req.Targets, req.Payload)
	switch req.Type {
	case action.TypeSendMessage:
		return fmt.Sprintf("Send message to %s: %q", label, req.Payload[action.PayloadContent])
	case action.TypeScheduleMeeting:
		return fmt.Sprintf("Schedule meeting with %s at %s", label, req.Payload[action.PayloadDatetime])
	case action.TypeGetSchedule:
		return "Look up your schedule"
	case action.TypeGetGrades:
		return fmt.Sprintf("Look up grades for %s", label)
	case action.TypeQueryEntity:
		return fmt.Sprintf("Look up %s", req.Payload[action.PayloadQuery])
	default:
		return string(req.Type)
	}
}

func executedReply(req action.Request, res *action.Result) string {
	if res.Output != "" {
		return res.Output
	}
	reply := "Done. " + summarize(req)
	if req.Type.Reversible() && res.AuditID != "" {
		reply += fmt.Sprintf("\n(undo with: campuspilot undo %s)", res.AuditID)
	}
	return reply
}

func clarifyPrompt(intent perception.Intent, missing []string) string {
	names := make([]string, len(missing))
	for i, m := range missing {
		names[i] = slotQuestion(m)
	}
	verb := strings.ReplaceAll(string(intent), "-", " ")
	return fmt.Sprintf("To %s I still need: %s.", verb, strings.Join(names, " and "))
}

func slotQuestion(slot string) string {
	switch slot {
	case perception.SlotRecipient:
		return "who it's for"
	case perception.SlotContent:
		return "what to say"
	case perception.SlotDatetime:
		return "a date and time"
	case perception.SlotEntity:
		return "who or what to look up"
	default:
		return slot
	}
}

func recipientIDs(rcpts []records.Recipient) []string {
	ids := make([]string, len(rcpts))
	for i, r := range rcpts {
		ids[i] = r.ID
	}
	return ids
}

func recipientLabel(rcpts []records.Recipient, slots map[string]string) string {
	switch len(rcpts) {
	case 0:
		if slots != nil {
			if r := slots[perception.SlotRecipient]; r != "" {
				return r
			}
		}
		return "them"
	case 1:
		return rcpts[0].Name
	default:
		return fmt.Sprintf("%s and %d others", rcpts[0].Name, len(rcpts)-1)
	}
}
