// Package policy implements the autonomy decision function. It is pure:
// no I/O, no state, total over its inputs.
package policy

// Decision is the outcome of an autonomy check.
type Decision string

const (
	// Execute means the action runs immediately.
	Execute Decision = "execute"
	// Confirm means the user must approve before the action runs.
	Confirm Decision = "confirm"
	// Clarify means the action is incomplete and slots must be filled first.
	Clarify Decision = "clarify"
)

// Mode is the configured autonomy mode.
type Mode string

const (
	ModeManual     Mode = "manual"
	ModeAssist     Mode = "assist"
	ModeAutonomous Mode = "autonomous"
)

// Input is everything Decide needs to know about a candidate action.
type Input struct {
	Intent         string
	Confidence     float64
	MissingSlots   []string
	RecipientCount int
	Mode           Mode
	Force          bool
}

// Limits are the configured thresholds and caps. They come from
// configuration, never from code.
type Limits struct {
	AssistThreshold     float64
	AutonomousThreshold float64

	// MaxAutoRecipients exists specifically to keep mass-broadcast
	// actions from auto-firing in assist mode.
	MaxAutoRecipients int
}

// Decide returns exactly one of Execute, Confirm, Clarify.
// Branches are evaluated in strict priority order:
//  1. force overrides everything (an explicit user confirmation)
//  2. missing slots can neither execute nor be confirmed
//  3. manual mode never auto-executes
//  4. assist mode requires high confidence and a bounded recipient set
//  5. autonomous mode requires only the lower confidence bar
//  6. unknown modes fail conservative
func Decide(in Input, lim Limits) Decision {
	if in.Force {
		return Execute
	}
	if len(in.MissingSlots) > 0 {
		return Clarify
	}

	switch in.Mode {
	case ModeManual:
		return Confirm
	case ModeAssist:
		if in.Confidence >= lim.AssistThreshold && in.RecipientCount <= lim.MaxAutoRecipients {
			return Execute
		}
		return Confirm
	case ModeAutonomous:
		if in.Confidence >= lim.AutonomousThreshold {
			return Execute
		}
		return Confirm
	default:
		return Confirm
	}
}
