// Package pipeline wires the conversational action pipeline: fast
// extraction, oracle fallback, state merge, the autonomy decision, and
// execution with audit. One call to Turn handles one inbound utterance.
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"campuspilot/internal/action"
	"campuspilot/internal/config"
	"campuspilot/internal/conversation"
	"campuspilot/internal/logging"
	"campuspilot/internal/perception"
	"campuspilot/internal/policy"
	"campuspilot/internal/records"
)

// Outcome classifies what a turn produced.
type Outcome string

const (
	OutcomeExecuted  Outcome = "executed"
	OutcomeConfirm   Outcome = "confirm"
	OutcomeClarify   Outcome = "clarify"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// TurnInput is one inbound utterance.
type TurnInput struct {
	ActorID string
	Text    string
	// Force marks an explicit confirmation; it short-circuits the
	// autonomy policy to EXECUTE.
	Force bool
}

// TurnOutput is what the caller shows the user.
type TurnOutput struct {
	Outcome Outcome
	Reply   string
	AuditID string
	// Missing names the absent slots on a clarify outcome.
	Missing []string
	// Detail is the stable failure code on an error outcome.
	Detail string
}

// Pipeline processes turns for all actors. Each turn runs on whatever
// goroutine the caller supplies; only capability, oracle, and durable
// state calls may block.
type Pipeline struct {
	limits  *config.Runtime
	oracle  perception.Oracle // nil disables the fallback path
	states  conversation.Store
	exec    *action.Executor
	records records.Client
}

// New assembles a pipeline.
func New(limits *config.Runtime, oracle perception.Oracle, states conversation.Store,
	exec *action.Executor, client records.Client) *Pipeline {
	return &Pipeline{
		limits:  limits,
		oracle:  oracle,
		states:  states,
		exec:    exec,
		records: client,
	}
}

// clarifyResumeConfidence is attached when a clarification answer
// completes a previously parsed intent. It sits below the default assist
// threshold so resumed commands route to CONFIRM rather than silent
// execution.
const clarifyResumeConfidence = 0.75

var (
	affirmRe  = regexp.MustCompile(`(?i)^(yes|y|yep|yeah|ok|okay|confirm|do it|go ahead)[.!]?$`)
	negateRe  = regexp.MustCompile(`(?i)^(no|n|nope|cancel|stop|never ?mind)[.!]?$`)
	pronounRe = regexp.MustCompile(`(?i)^(he|she|they|him|her|them|his|their)$`)
)

// Turn processes one utterance for one actor.
func (p *Pipeline) Turn(ctx context.Context, in TurnInput) (*TurnOutput, error) {
	text := strings.TrimSpace(in.Text)
	actorID := in.ActorID
	log := logging.Get(logging.CategoryPolicy)

	st, err := p.states.Get(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load conversation state: %w", err)
	}

	// A pending confirmation is answered before anything is re-parsed.
	if st.Pending != nil && st.Pending.Kind == conversation.PendingConfirm {
		if affirmRe.MatchString(text) {
			return p.executeConfirmed(ctx, actorID, st.Pending)
		}
		if negateRe.MatchString(text) {
			if _, err := p.states.Update(ctx, actorID, conversation.Patch{ClearPending: true}); err != nil {
				return nil, err
			}
			return &TurnOutput{Outcome: OutcomeCancelled, Reply: "Okay, cancelled: " + st.Pending.Summary}, nil
		}
		// Anything else supersedes the pending confirmation.
	}

	cmd := perception.Parse(text)
	logging.Get(logging.CategoryPerception).Debug(
		"parsed intent=%q confidence=%.2f slots=%v", cmd.Intent, cmd.Confidence, cmd.Slots)

	// Clarification answers: a non-command utterance while slots are
	// pending fills the first missing slot.
	if cmd.Intent == perception.IntentNone &&
		st.Pending != nil && st.Pending.Kind == conversation.PendingClarify && text != "" {
		cmd = resumeClarification(st.Pending, text)
	}

	// Fast extractor abstained entirely: ask the oracle. Its confidence
	// arrives pre-capped below the assist threshold, so its output can
	// route to CONFIRM or CLARIFY but never silently execute.
	if cmd.Intent == perception.IntentNone && p.oracle != nil {
		res, err := p.oracle.Infer(ctx, text, historyFor(st))
		if err != nil {
			logging.Get(logging.CategoryOracle).Warn("oracle unavailable: %v", err)
		} else if res != nil {
			cmd = perception.ParsedCommand{Intent: res.Intent, Slots: res.Slots, Confidence: res.Confidence}
		}
	}

	if cmd.Intent == perception.IntentNone {
		// Degrade to clarification, never guess.
		if _, err := p.states.Update(ctx, actorID, conversation.Patch{ClearPending: true}); err != nil {
			return nil, err
		}
		return &TurnOutput{
			Outcome: OutcomeClarify,
			Reply:   "I didn't recognize that command. I can send messages, schedule meetings, look up schedules, grades, and people.",
		}, nil
	}

	// Pronouns and implicit recipients resolve against the last turn.
	resolvePronoun(&cmd, st.LastRecipient)

	missing := perception.MissingSlots(cmd.Intent, cmd.Slots)

	// Resolve recipients before the decision so the policy sees the
	// actual fan-out count.
	var rcpts []records.Recipient
	if needsRecipients(cmd.Intent) && len(missing) == 0 {
		rcpts, err = p.resolveRecipients(ctx, st, cmd)
		if err != nil {
			code := records.ErrorCode(err)
			if _, uerr := p.states.Update(ctx, actorID, conversation.Patch{ClearPending: true}); uerr != nil {
				return nil, uerr
			}
			return &TurnOutput{
				Outcome: OutcomeError,
				Detail:  code,
				Reply:   failureReply(code, cmd.Slots[perception.SlotRecipient]),
			}, nil
		}
	}

	// Force answers the confirmation question, not the clarification
	// one: an incomplete command still clarifies even when pre-approved.
	force := in.Force && len(missing) == 0

	lim := p.limits.Limits()
	decision := policy.Decide(policy.Input{
		Intent:         string(cmd.Intent),
		Confidence:     cmd.Confidence,
		MissingSlots:   missing,
		RecipientCount: len(rcpts),
		Mode:           policy.Mode(lim.Mode),
		Force:          force,
	}, policy.Limits{
		AssistThreshold:     lim.AssistThreshold,
		AutonomousThreshold: lim.AutonomousThreshold,
		MaxAutoRecipients:   lim.MaxAutoRecipients,
	})
	log.Info("decision=%s intent=%s confidence=%.2f missing=%d recipients=%d mode=%s force=%v",
		decision, cmd.Intent, cmd.Confidence, len(missing), len(rcpts), lim.Mode, force)

	switch decision {
	case policy.Clarify:
		return p.clarify(ctx, actorID, cmd, missing)
	case policy.Confirm:
		return p.confirm(ctx, actorID, cmd, rcpts)
	case policy.Execute:
		return p.execute(ctx, actorID, buildRequest(actorID, cmd, rcpts))
	default:
		return nil, fmt.Errorf("unhandled decision: %q", decision)
	}
}

// Reset clears an actor's conversation state back to defaults.
func (p *Pipeline) Reset(ctx context.Context, actorID string) error {
	return p.states.Clear(ctx, actorID)
}

// resumeClarification merges a free-text answer into the pending intent's
// first missing slot.
func resumeClarification(pending *conversation.Pending, answer string) perception.ParsedCommand {
	slots := make(map[string]string, len(pending.Slots)+1)
	for k, v := range pending.Slots {
		slots[k] = v
	}
	if len(pending.Missing) > 0 {
		slots[pending.Missing[0]] = answer
	}
	return perception.ParsedCommand{
		Intent:     perception.Intent(pending.Intent),
		Slots:      slots,
		Confidence: clarifyResumeConfidence,
	}
}

// resolvePronoun swaps a pronoun recipient slot for the last resolved
// recipient, when there is one.
func resolvePronoun(cmd *perception.ParsedCommand, last *conversation.Recipient) {
	r := cmd.Slots[perception.SlotRecipient]
	if r == "" || last == nil || !pronounRe.MatchString(r) {
		return
	}
	cmd.Slots[perception.SlotRecipient] = last.Name
}

func needsRecipients(intent perception.Intent) bool {
	for _, s := range perception.RequiredSlots(intent) {
		if s == perception.SlotRecipient {
			return true
		}
	}
	return false
}

// resolveRecipients maps the recipient slot to directory entries, using
// the last resolved recipient directly when the names match.
func (p *Pipeline) resolveRecipients(ctx context.Context, st conversation.State, cmd perception.ParsedCommand) ([]records.Recipient, error) {
	name := cmd.Slots[perception.SlotRecipient]
	if st.LastRecipient != nil && strings.EqualFold(st.LastRecipient.Name, name) {
		return []records.Recipient{{
			ID:   st.LastRecipient.ID,
			Name: st.LastRecipient.Name,
			Kind: st.LastRecipient.Kind,
		}}, nil
	}
	return p.records.ResolveRecipients(ctx, name)
}

func historyFor(st conversation.State) []string {
	var h []string
	if st.LastAction != nil {
		h = append(h, "last action: "+st.LastAction.Summary)
	}
	if st.Pending != nil && st.Pending.Kind == conversation.PendingClarify {
		h = append(h, "awaiting: "+strings.Join(st.Pending.Missing, ", ")+" for "+st.Pending.Intent)
	}
	return h
}

func failureReply(code, recipient string) string {
	switch code {
	case records.CodeRecipientNotFound:
		return fmt.Sprintf("I couldn't find anyone matching %q in the directory.", recipient)
	case records.CodeTimeout:
		return "The record system timed out. Nothing was changed; please try again."
	default:
		return "The record system reported an error. Nothing was changed; please try again."
	}
}
