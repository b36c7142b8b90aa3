// This file contains view rendering for the chat TUI.
package chat

import (
	"fmt"
	"strings"
	"time"

	"campuspilot/internal/audit"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("36"))

	bodyStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	lim := m.cfg.Runtime.Limits()
	sb.WriteString(headerStyle.Render(fmt.Sprintf("CampusPilot  %s  mode:%s", m.cfg.ActorID, lim.Mode)))
	sb.WriteString("\n\n")

	for _, msg := range m.history {
		if msg.Role == "user" {
			sb.WriteString(userStyle.Render("You") + "\n")
		} else {
			sb.WriteString(assistantStyle.Render("CampusPilot") + "\n")
		}
		sb.WriteString(bodyStyle.Render(msg.Content))
		sb.WriteString("\n\n")
	}

	if m.busy {
		sb.WriteString(m.spin.View() + mutedStyle.Render(" working...") + "\n")
	}

	sb.WriteString("\n" + m.input.View() + "\n")
	sb.WriteString(mutedStyle.Render("enter to send, /help for commands, esc to quit"))
	return sb.String()
}

// renderAudit formats the actor's recent audit records for the scrollback.
func (m Model) renderAudit() string {
	recs, err := m.cfg.Audit.ListByActor(m.cfg.ActorID, nil, 10, 0)
	if err != nil {
		return "Could not read the audit log: " + err.Error()
	}
	if len(recs) == 0 {
		return "No audit records yet."
	}

	var sb strings.Builder
	sb.WriteString("Recent actions:\n")
	for _, rec := range recs {
		sb.WriteString("  " + formatAuditLine(rec) + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatAuditLine(rec audit.Record) string {
	status := "ok"
	if !rec.Succeeded() {
		status = "failed"
	}
	if rec.Undone {
		status = "undone"
	}
	return fmt.Sprintf("%s  %-18s %-7s %s",
		rec.CreatedAt.Format(time.DateTime), rec.ActionType, status, rec.ID)
}
