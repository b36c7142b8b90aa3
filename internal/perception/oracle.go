package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"campuspilot/internal/logging"
)

// OracleResult is a best-effort structured reading of a command the fast
// extractor abstained on. Confidence is already capped by the oracle
// implementation; the pipeline must never raise it.
type OracleResult struct {
	Intent     Intent
	Slots      map[string]string
	Confidence float64
}

// Oracle is the external NL fallback boundary. A nil result with a nil
// error means "no structured result" - a normal outcome, not a failure.
type Oracle interface {
	Infer(ctx context.Context, text string, history []string) (*OracleResult, error)
}

// GenAIOracle asks a Gemini model to classify the command. It is allowed
// to be slow and occasionally wrong; every call is bounded by the
// configured timeout and every confidence is clamped to the cap.
type GenAIOracle struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	cap     float64
}

// NewGenAIOracle creates the Gemini-backed oracle.
func NewGenAIOracle(apiKey, model string, timeout time.Duration, confidenceCap float64) (*GenAIOracle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("oracle API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIOracle{
		client:  client,
		model:   model,
		timeout: timeout,
		cap:     confidenceCap,
	}, nil
}

// oracleReply is the JSON document the model is asked to produce.
type oracleReply struct {
	Intent     string            `json:"intent"`
	Slots      map[string]string `json:"slots"`
	Confidence float64           `json:"confidence"`
}

const oraclePrompt = `You classify short commands from school staff into one of these intents:
send-message, schedule-meeting, get-schedule, get-grades, query-entity.

Slots: recipient, content, datetime, entity, subject.

Reply with ONLY a JSON object: {"intent": "...", "slots": {...}, "confidence": 0.0-1.0}.
If the command fits no intent, reply {"intent": "", "slots": {}, "confidence": 0}.`

// Infer asks the model for a structured reading of the command.
func (o *GenAIOracle) Infer(ctx context.Context, text string, history []string) (*OracleResult, error) {
	log := logging.Get(logging.CategoryOracle)
	timer := logging.StartTimer(logging.CategoryOracle, "Infer")
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString(oraclePrompt)
	if len(history) > 0 {
		sb.WriteString("\n\nRecent turns:\n")
		for _, h := range history {
			sb.WriteString("- ")
			sb.WriteString(h)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nCommand: ")
	sb.WriteString(text)

	result, err := o.client.Models.GenerateContent(ctx,
		o.model,
		genai.Text(sb.String()),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		log.Error("oracle call failed: %v", err)
		return nil, fmt.Errorf("oracle call failed: %w", err)
	}

	raw := strings.TrimSpace(result.Text())
	var reply oracleReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		log.Warn("oracle returned unparseable output: %.120s", raw)
		return nil, nil
	}

	if reply.Intent == "" || !ValidIntent(reply.Intent) {
		log.Debug("oracle abstained or returned unknown intent %q", reply.Intent)
		return nil, nil
	}

	conf := reply.Confidence
	if conf > o.cap {
		conf = o.cap
	}
	if conf < 0 {
		conf = 0
	}
	if reply.Slots == nil {
		reply.Slots = map[string]string{}
	}

	log.Info("oracle classified intent=%s confidence=%.2f", reply.Intent, conf)
	return &OracleResult{
		Intent:     Intent(reply.Intent),
		Slots:      reply.Slots,
		Confidence: conf,
	}, nil
}
