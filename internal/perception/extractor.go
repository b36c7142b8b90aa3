// Package perception turns raw natural-language commands into structured
// intents. The fast extractor is pure pattern matching over a fixed intent
// corpus; anything it cannot place is deferred to the fallback oracle.
package perception

import (
	"strings"
)

// Intent is a recognized command intent.
type Intent string

const (
	IntentNone            Intent = ""
	IntentSendMessage     Intent = "send-message"
	IntentScheduleMeeting Intent = "schedule-meeting"
	IntentGetSchedule     Intent = "get-schedule"
	IntentGetGrades       Intent = "get-grades"
	IntentQueryEntity     Intent = "query-entity"
)

// Slot names extracted by the corpus patterns.
const (
	SlotRecipient = "recipient"
	SlotContent   = "content"
	SlotDatetime  = "datetime"
	SlotEntity    = "entity"
	SlotSubject   = "subject"
)

// ParsedCommand is the transient result of one extraction. It is produced
// fresh per turn and never mutated.
type ParsedCommand struct {
	Intent     Intent
	Slots      map[string]string
	Confidence float64
}

// maxInputLen bounds the text the patterns run against so extraction cost
// stays constant regardless of input length.
const maxInputLen = 512

// Parse runs the fast extractor over the input text.
// Within an intent the first matching pattern wins; across intents the
// highest-confidence firing intent wins. No match returns
// (IntentNone, empty slots, 0.0) - the normal "defer to oracle" signal,
// not an error.
func Parse(text string) ParsedCommand {
	input := strings.TrimSpace(text)
	if len(input) > maxInputLen {
		input = input[:maxInputLen]
	}

	best := ParsedCommand{Intent: IntentNone, Slots: map[string]string{}}
	if input == "" {
		return best
	}

	for _, entry := range IntentCorpus {
		for _, pat := range entry.Patterns {
			m := pat.re.FindStringSubmatch(input)
			if m == nil {
				continue
			}
			if pat.Confidence > best.Confidence {
				best = ParsedCommand{
					Intent:     entry.Intent,
					Slots:      extractSlots(pat, m),
					Confidence: pat.Confidence,
				}
			}
			// First matching pattern wins within this intent.
			break
		}
	}
	return best
}

// extractSlots pulls named capture groups out of a match, skipping
// empty captures from optional groups.
func extractSlots(pat Pattern, match []string) map[string]string {
	slots := make(map[string]string)
	for i, name := range pat.re.SubexpNames() {
		if i == 0 || name == "" || i >= len(match) {
			continue
		}
		v := strings.TrimSpace(match[i])
		if v != "" {
			slots[name] = v
		}
	}
	return slots
}

// requiredSlots maps each intent to the slots an action cannot run without.
var requiredSlots = map[Intent][]string{
	IntentSendMessage:     {SlotRecipient, SlotContent},
	IntentScheduleMeeting: {SlotRecipient, SlotDatetime},
	IntentGetSchedule:     {},
	IntentGetGrades:       {SlotRecipient},
	IntentQueryEntity:     {SlotEntity},
}

// RequiredSlots returns the slots an intent needs before it can execute.
func RequiredSlots(intent Intent) []string {
	return requiredSlots[intent]
}

// MissingSlots returns the required slots absent from the given slot map,
// in the intent's declared order.
func MissingSlots(intent Intent, slots map[string]string) []string {
	var missing []string
	for _, name := range requiredSlots[intent] {
		if strings.TrimSpace(slots[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// KnownIntents lists every intent the fast extractor can produce.
func KnownIntents() []Intent {
	out := make([]Intent, 0, len(IntentCorpus))
	for _, e := range IntentCorpus {
		out = append(out, e.Intent)
	}
	return out
}

// ValidIntent reports whether a string names a known intent. Used to
// validate oracle output before it enters the pipeline.
func ValidIntent(s string) bool {
	for _, e := range IntentCorpus {
		if string(e.Intent) == s {
			return true
		}
	}
	return false
}
