package perception

import "regexp"

// Pattern is one anchored regex attempt for an intent. Confidence is
// declared per pattern, not computed: pattern authors hand-tune the
// precision rank, tighter patterns first and higher.
type Pattern struct {
	re         *regexp.Regexp
	Confidence float64
}

// IntentEntry groups the ordered pattern attempts for a single intent.
type IntentEntry struct {
	Intent   Intent
	Patterns []Pattern
}

// relative date phrases that carry a datetime without a preposition,
// e.g. "tomorrow morning", "next tuesday".
const relDate = `(?:today|tonight|tomorrow|next\s+\w+)(?:\s+(?:morning|afternoon|evening))?`

// IntentCorpus is the fixed intent set the fast extractor recognizes.
// All patterns are anchored and case-insensitive; none backtrack over
// unbounded alternations.
var IntentCorpus = []IntentEntry{
	{
		Intent: IntentSendMessage,
		Patterns: []Pattern{
			// "send a message to Jennifer: please see me tomorrow"
			// "send message to Jennifer about her attendance"
			{regexp.MustCompile(`(?i)^send\s+(?:a\s+)?message\s+to\s+(?P<recipient>[^:,]+?)\s*(?::\s*|,\s*|\s+about\s+|\s+saying\s+|\s+that\s+)(?P<content>\S.*)$`), 0.95},
			// "message Jennifer: ..." / "text Mr. Davis, ..."
			{regexp.MustCompile(`(?i)^(?:message|text)\s+(?P<recipient>[^:,]+?)\s*(?::\s*|,\s*|\s+about\s+|\s+saying\s+)(?P<content>\S.*)$`), 0.90},
			// "tell Mr. Davis that the bus is late"
			{regexp.MustCompile(`(?i)^tell\s+(?P<recipient>[^,]+?)\s+that\s+(?P<content>\S.*)$`), 0.85},
			// "tell Jennifer practice moved to friday"; single-word
			// recipient only, so it lands below the assist threshold
			{regexp.MustCompile(`(?i)^tell\s+(?P<recipient>[\w.'-]+)\s+(?P<content>\S.*)$`), 0.78},
			// content left for clarification
			{regexp.MustCompile(`(?i)^send\s+(?:a\s+)?message\s+to\s+(?P<recipient>\S.*)$`), 0.85},
			{regexp.MustCompile(`(?i)^send\s+(?:a\s+)?message$`), 0.80},
		},
	},
	{
		Intent: IntentScheduleMeeting,
		Patterns: []Pattern{
			// "schedule a meeting with Alice's parents tomorrow morning"
			{regexp.MustCompile(`(?i)^(?:schedule|book|arrange|set\s+up)\s+(?:a\s+)?meeting\s+with\s+(?P<recipient>.+?)\s+(?P<datetime>` + relDate + `)$`), 0.92},
			// "schedule a meeting with the Smiths on thursday at 3pm"
			{regexp.MustCompile(`(?i)^(?:schedule|book|arrange|set\s+up)\s+(?:a\s+)?meeting\s+with\s+(?P<recipient>.+?)\s+(?:on|at|for)\s+(?P<datetime>\S.*)$`), 0.90},
			// datetime left for clarification
			{regexp.MustCompile(`(?i)^(?:schedule|book|arrange|set\s+up)\s+(?:a\s+)?meeting\s+with\s+(?P<recipient>\S.*)$`), 0.85},
			// everything left for clarification
			{regexp.MustCompile(`(?i)^(?:schedule|book|arrange|set\s+up)\s+(?:a\s+)?meeting$`), 0.80},
		},
	},
	{
		Intent: IntentGetSchedule,
		Patterns: []Pattern{
			// "what's on my schedule tomorrow" / "show me my schedule for friday"
			{regexp.MustCompile(`(?i)^(?:what(?:'s|\s+is)\s+(?:on\s+)?my\s+schedule|show\s+(?:me\s+)?my\s+schedule|my\s+schedule)(?:\s+(?:for\s+|on\s+)?(?P<datetime>\S.*?))?\??$`), 0.90},
			// "do I have any meetings today"
			{regexp.MustCompile(`(?i)^do\s+i\s+have\s+(?:any\s+)?(?:meetings|classes|appointments)(?:\s+(?P<datetime>` + relDate + `))?\??$`), 0.85},
		},
	},
	{
		Intent: IntentGetGrades,
		Patterns: []Pattern{
			// "show grades for Jennifer" / "what are the grades of Marcus"
			{regexp.MustCompile(`(?i)^(?:show|get|pull\s+up|what\s+are)\s+(?:me\s+)?(?:the\s+)?grades?\s+(?:for|of)\s+(?P<recipient>\S.*?)\??$`), 0.90},
			// "Jennifer's grades"
			{regexp.MustCompile(`(?i)^(?:show\s+me\s+)?(?P<recipient>[\w.'-]+(?:\s+[\w.'-]+)?)'s\s+grades?\??$`), 0.88},
			// "how is Jennifer doing in math"
			{regexp.MustCompile(`(?i)^how\s+is\s+(?P<recipient>[\w.'-]+(?:\s+[\w.'-]+)?)\s+doing(?:\s+in\s+(?P<subject>\S.*?))?\??$`), 0.80},
		},
	},
	{
		Intent: IntentQueryEntity,
		Patterns: []Pattern{
			// "who is Jennifer Park"
			{regexp.MustCompile(`(?i)^who\s+is\s+(?P<entity>\S.*?)\??$`), 0.85},
			// "look up Marcus" / "find the Park family"
			{regexp.MustCompile(`(?i)^(?:find|look\s*up|search\s+for)\s+(?P<entity>\S.*)$`), 0.80},
		},
	},
}
