package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lookervault/lookervault/cli/reader"
)

// DLQModel is a Bubble Tea model for browsing dead-letter entries.
type DLQModel struct {
	viewType string
	entries  []reader.DLQItem
	cursor   int
	expanded bool
	width    int
	height   int
	quitting bool
}

// NewDLQModel creates a new dead-letter browser model.
func NewDLQModel(viewType string, data any) DLQModel {
	entries, _ := data.([]reader.DLQItem)
	return DLQModel{
		viewType: viewType,
		entries:  entries,
	}
}

// Init implements tea.Model.
func (m DLQModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m DLQModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.entries)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Toggle):
			m.expanded = !m.expanded
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m DLQModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Dead-Letter Queue"))
	b.WriteString("\n\n")

	if len(m.entries) == 0 {
		b.WriteString(ValueStyle.Render("(no entries)"))
		help := HelpStyle.Render("Press q or Ctrl+C to quit")
		return b.String() + "\n" + help
	}

	for i, e := range m.entries {
		line := fmt.Sprintf("#%d  %-14s %-28s %s",
			e.ID, e.ContentType, e.ContentID, e.ErrorType)
		if i == m.cursor {
			b.WriteString(SelectedStyle.Render("> " + line))
		} else {
			b.WriteString(ValueStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	if m.expanded {
		b.WriteString("\n")
		b.WriteString(m.renderDetail(m.entries[m.cursor]))
	}

	help := HelpStyle.Render("↑/↓ move · enter detail · q quit")
	return b.String() + "\n" + help
}

func (m DLQModel) renderDetail(e reader.DLQItem) string {
	var b strings.Builder
	rows := [][]string{
		{"Entry", fmt.Sprintf("#%d", e.ID)},
		{"Session", e.SessionID},
		{"Content", e.ContentID},
		{"Error Type", e.ErrorType},
		{"Message", e.ErrorMessage},
		{"Retries", fmt.Sprintf("%d", e.RetryCount)},
		{"Failed At", e.FailedAt.Format("2006-01-02 15:04:05")},
	}
	for _, row := range rows {
		label := LabelStyle.Render(row[0] + ":")
		value := row[1]
		if row[0] == "Error Type" {
			value = ErrorStyle.Render(value)
		} else {
			value = ValueStyle.Render(value)
		}
		b.WriteString(fmt.Sprintf("%s %s\n", label, value))
	}
	return BoxStyle.Render(b.String())
}

// keyMap defines key bindings.
type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	Toggle: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "detail"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RunDLQTUI runs the dead-letter browser.
func RunDLQTUI(viewType string, data any) error {
	model := NewDLQModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderDLQStatic renders dead-letter data without full TUI (for fallback).
func RenderDLQStatic(viewType string, data any) string {
	model := NewDLQModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
