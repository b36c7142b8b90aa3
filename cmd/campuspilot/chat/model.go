// Package chat provides the interactive TUI for CampusPilot. The model
// lives here; rendering is in view.go.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"campuspilot/internal/action"
	"campuspilot/internal/audit"
	"campuspilot/internal/config"
	"campuspilot/internal/pipeline"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Config holds everything the chat interface needs from the wired app.
type Config struct {
	ActorID  string
	Pipeline *pipeline.Pipeline
	Undoer   *action.Undoer
	Audit    *audit.Store
	Runtime  *config.Runtime
}

// Message is one entry in the scrollback.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// turnDoneMsg carries a finished pipeline turn back into Update.
type turnDoneMsg struct {
	out *pipeline.TurnOutput
	err error
}

// undoDoneMsg carries a finished undo back into Update.
type undoDoneMsg struct {
	rec *audit.Record
	err error
}

// Model is the bubbletea model for the chat session.
type Model struct {
	cfg     Config
	ctx     context.Context
	input   textinput.Model
	spin    spinner.Model
	history []Message
	busy    bool
	width   int

	// lastAuditID lets "/undo" without an argument target the most
	// recent executed action from this session.
	lastAuditID string

	quitting bool
	err      error
}

// Run starts the chat interface and blocks until the user exits.
func Run(ctx context.Context, cfg Config) error {
	m := newModel(ctx, cfg)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(Model); ok && fm.err != nil {
		return fm.err
	}
	return nil
}

func newModel(ctx context.Context, cfg Config) Model {
	ti := textinput.New()
	ti.Placeholder = `Try "send a message to Jennifer: please see me tomorrow"`
	ti.Focus()
	ti.CharLimit = 512

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		cfg:   cfg,
		ctx:   ctx,
		input: ti,
		spin:  sp,
		history: []Message{{
			Role:    "assistant",
			Content: "Hi! I can send messages, schedule meetings, and look up schedules, grades, and people. Type /help for commands.",
		}},
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			return m.submit()
		}

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case turnDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.history = append(m.history, Message{Role: "assistant", Content: "Something went wrong: " + msg.err.Error()})
			return m, nil
		}
		if msg.out.AuditID != "" {
			m.lastAuditID = msg.out.AuditID
		}
		m.history = append(m.history, Message{Role: "assistant", Content: msg.out.Reply})
		return m, nil

	case undoDoneMsg:
		m.busy = false
		content := ""
		if msg.err != nil {
			content = "Undo failed: " + msg.err.Error()
		} else {
			content = fmt.Sprintf("Undone: %s (performed %s)",
				msg.rec.ActionType, msg.rec.CreatedAt.Format(time.Kitchen))
		}
		m.history = append(m.history, Message{Role: "assistant", Content: content})
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit dispatches the current input line.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()
	m.history = append(m.history, Message{Role: "user", Content: text})

	if strings.HasPrefix(text, "/") {
		return m.handleCommand(text)
	}

	m.busy = true
	return m, tea.Batch(m.spin.Tick, m.turnCmd(text))
}

// turnCmd runs one pipeline turn off the UI goroutine.
func (m Model) turnCmd(text string) tea.Cmd {
	cfg := m.cfg
	ctx := m.ctx
	return func() tea.Msg {
		out, err := cfg.Pipeline.Turn(ctx, pipeline.TurnInput{ActorID: cfg.ActorID, Text: text})
		return turnDoneMsg{out: out, err: err}
	}
}

func (m Model) undoCmd(id string) tea.Cmd {
	cfg := m.cfg
	ctx := m.ctx
	return func() tea.Msg {
		rec, err := cfg.Undoer.Undo(ctx, id, cfg.ActorID, time.Now().UTC())
		return undoDoneMsg{rec: rec, err: err}
	}
}

// handleCommand dispatches slash commands locally.
func (m Model) handleCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit", "/exit":
		m.quitting = true
		return m, tea.Quit

	case "/help":
		m.history = append(m.history, Message{Role: "assistant", Content: helpText})
		return m, nil

	case "/mode":
		lim := m.cfg.Runtime.Limits()
		m.history = append(m.history, Message{Role: "assistant", Content: fmt.Sprintf(
			"Autonomy mode: %s (assist >= %.2f, autonomous >= %.2f, max auto recipients %d)",
			lim.Mode, lim.AssistThreshold, lim.AutonomousThreshold, lim.MaxAutoRecipients)})
		return m, nil

	case "/undo":
		id := m.lastAuditID
		if len(fields) > 1 {
			id = fields[1]
		}
		if id == "" {
			m.history = append(m.history, Message{Role: "assistant", Content: "Nothing to undo yet. Use /undo <audit-id> for older actions."})
			return m, nil
		}
		m.busy = true
		return m, tea.Batch(m.spin.Tick, m.undoCmd(id))

	case "/audit":
		m.history = append(m.history, Message{Role: "assistant", Content: m.renderAudit()})
		return m, nil

	case "/reset":
		if err := m.cfg.Pipeline.Reset(m.ctx, m.cfg.ActorID); err != nil {
			m.history = append(m.history, Message{Role: "assistant", Content: "Reset failed: " + err.Error()})
			return m, nil
		}
		m.lastAuditID = ""
		m.history = append(m.history, Message{Role: "assistant", Content: "Conversation context cleared."})
		return m, nil

	default:
		m.history = append(m.history, Message{Role: "assistant", Content: "Unknown command " + fields[0] + ". Type /help."})
		return m, nil
	}
}

const helpText = `Commands:
  /mode          show the current autonomy mode and thresholds
  /undo [id]     undo the last action, or a specific audit id
  /audit         show your recent audit trail
  /reset         forget conversation context
  /quit          exit

Anything else is treated as a natural-language request.`
