// Package ui provides a terminal UI for following the hook audit log.
// Uses Bubbletea for the live view and lipgloss for styling.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/delaney/hookline/internal/audit"
)

const pollInterval = time.Second

// Model holds the follow-view state.
type Model struct {
	log    *audit.Logger
	filter audit.Filter

	width    int
	height   int
	scroll   int
	pinned   bool // false = follow the tail
	quitting bool

	entries []audit.Entry
	readErr error

	styles *Styles
}

// Styles holds lipgloss styles for the follow view.
type Styles struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Started lipgloss.Style
	Success lipgloss.Style
	Failed  lipgloss.Style
	Timeout lipgloss.Style
	Error   lipgloss.Style

	HelpKey  lipgloss.Style
	HelpText lipgloss.Style
}

func newStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green := lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#b08800", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}
	blue := lipgloss.AdaptiveColor{Light: "#0366d6", Dark: "#58a6ff"}

	return &Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(highlight),
		Muted:   lipgloss.NewStyle().Foreground(subtle),
		Started: lipgloss.NewStyle().Foreground(blue),
		Success: lipgloss.NewStyle().Foreground(green),
		Failed:  lipgloss.NewStyle().Foreground(red),
		Timeout: lipgloss.NewStyle().Foreground(yellow),
		Error:   lipgloss.NewStyle().Foreground(red).Bold(true),

		HelpKey:  lipgloss.NewStyle().Foreground(highlight).Bold(true),
		HelpText: lipgloss.NewStyle().Foreground(subtle),
	}
}

// tickMsg triggers an audit log re-read.
type tickMsg time.Time

// New creates a follow-view model over the audit log.
func New(log *audit.Logger, filter audit.Filter) *Model {
	return &Model{
		log:    log,
		filter: filter,
		width:  80,
		height: 24,
		styles: newStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.EnterAltScreen)
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.entries, m.readErr = m.log.Tail(m.filter)
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		m.pinned = true
		if m.scroll > 0 {
			m.scroll--
		}

	case "down", "j":
		if m.scroll < len(m.entries)-1 {
			m.scroll++
		}

	case "home", "g":
		m.pinned = true
		m.scroll = 0

	case "end", "G":
		m.pinned = false
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Hook Audit Log"))
	if m.filter.Hook != "" {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  hook=%s", m.filter.Hook)))
	}
	if m.filter.Status != "" {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  status=%s", m.filter.Status)))
	}
	b.WriteString("\n\n")

	if m.readErr != nil {
		b.WriteString(m.styles.Error.Render("read error: " + m.readErr.Error()))
		b.WriteString("\n")
	}

	visible := m.height - 5
	if visible < 1 {
		visible = 1
	}
	start := m.scroll
	if !m.pinned && len(m.entries) > visible {
		start = len(m.entries) - visible
	}
	if start > len(m.entries) {
		start = len(m.entries)
	}
	end := start + visible
	if end > len(m.entries) {
		end = len(m.entries)
	}

	for _, e := range m.entries[start:end] {
		b.WriteString(m.renderEntry(e))
		b.WriteString("\n")
	}
	if len(m.entries) == 0 {
		b.WriteString(m.styles.Muted.Render("waiting for hook activity..."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderHelpBar())
	return b.String()
}

func (m Model) renderEntry(e audit.Entry) string {
	line := fmt.Sprintf("%s  %-20s %-8s exit=%-3d %6dms  %s",
		e.Timestamp.Local().Format("15:04:05"),
		truncate(e.Hook, 20),
		e.Status,
		e.ExitCode,
		e.DurationMS,
		truncate(e.EventID, 12),
	)
	if e.Error != "" {
		line += "  " + e.Error
	}
	return m.statusStyle(e.Status).Render(truncate(line, m.width))
}

func (m Model) statusStyle(s audit.Status) lipgloss.Style {
	switch s {
	case audit.StatusStarted:
		return m.styles.Started
	case audit.StatusSuccess:
		return m.styles.Success
	case audit.StatusFailed:
		return m.styles.Failed
	case audit.StatusTimeout:
		return m.styles.Timeout
	case audit.StatusError:
		return m.styles.Error
	default:
		return m.styles.Muted
	}
}

func (m Model) renderHelpBar() string {
	help := []struct{ key, desc string }{
		{"j/k", "scroll"},
		{"G", "follow"},
		{"g", "top"},
		{"q", "quit"},
	}
	parts := make([]string, len(help))
	for i, h := range help {
		parts[i] = m.styles.HelpKey.Render(h.key) + " " + m.styles.HelpText.Render(h.desc)
	}
	return strings.Join(parts, m.styles.HelpText.Render("  |  "))
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
