package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lookervault/lookervault/cli/reader"
)

// StatusModel is a Bubble Tea model for session status views.
type StatusModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatusModel creates a new status model.
func NewStatusModel(viewType string, data any) StatusModel {
	return StatusModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatusModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatusModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "status_session":
		content = m.renderSession()
	case "status_sessions":
		content = m.renderSessionStats()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatusModel) renderSession() string {
	data, ok := m.data.(*reader.SessionStatusResponse)
	if !ok {
		return "Invalid data type for status_session"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session Status"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Session ID", data.SessionID},
		{"Kind", data.Kind},
		{"Status", data.Status},
		{"Started At", data.StartedAt.Format("2006-01-02 15:04:05")},
	}
	if data.CompletedAt != nil {
		rows = append(rows, []string{"Completed At", data.CompletedAt.Format("2006-01-02 15:04:05")})
	}

	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := row[1]
		if row[0] == "Status" {
			value = StateStyle(data.Status).Render(value)
		} else {
			value = ValueStyle.Render(value)
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}

	b.WriteString("\n")
	boxes := []string{
		m.renderStatBox("Items", int(data.TotalItems), highlightColor),
		m.renderStatBox("Errors", int(data.ErrorCount), errorColor),
		m.renderStatBox("Dead-Lettered", int(data.DLQCount), warningColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	if len(data.Checkpoints) > 0 {
		b.WriteString("\n\n")
		b.WriteString(TitleStyle.Render("Checkpoints"))
		b.WriteString("\n")
		for _, cp := range data.Checkpoints {
			line := fmt.Sprintf("%-16s %6d items  %s",
				cp.ContentType, cp.ItemCount, StateStyle(cp.Status).Render(cp.Status))
			b.WriteString("  " + line + "\n")
		}
	}

	return BoxStyle.Render(b.String())
}

func (m StatusModel) renderSessionStats() string {
	data, ok := m.data.(*reader.SessionStats)
	if !ok {
		return "Invalid data type for status_sessions"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Session Statistics"))
	b.WriteString("\n\n")

	boxes := []string{
		m.renderStatBox("Total", data.Total, highlightColor),
		m.renderStatBox("Running", data.Running, warningColor),
		m.renderStatBox("Completed", data.Completed, successColor),
		m.renderStatBox("Failed", data.Failed, errorColor),
		m.renderStatBox("Cancelled", data.Cancelled, mutedColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	return b.String()
}

func (m StatusModel) renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatusTUI runs the status TUI.
func RunStatusTUI(viewType string, data any) error {
	model := NewStatusModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderStatusStatic renders status data without full TUI (for fallback).
func RenderStatusStatic(viewType string, data any) string {
	model := NewStatusModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
