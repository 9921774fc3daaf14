package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// BackfillEvent reports progress for one re-embedded insight. The worker
// goroutine sends one event per insight and closes the channel when done.
type BackfillEvent struct {
	InsightID int64
	Done      int
	Err       error
}

// BackfillDoneMsg signals that the event channel closed.
type BackfillDoneMsg struct{}

// BackfillModel drives the progress display for `engram backfill`.
type BackfillModel struct {
	Events    <-chan BackfillEvent
	Spinner   spinner.Model
	Total     int
	Done      int
	Failed    int
	LastID    int64
	LastErr   error
	Quitting  bool
	Canceled  bool
	StartedAt time.Time
}

// NewBackfillModel sizes the display for total insights needing embeddings.
func NewBackfillModel(total int, events <-chan BackfillEvent) BackfillModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ColorPrimary)

	return BackfillModel{
		Events:    events,
		Spinner:   s,
		Total:     total,
		StartedAt: time.Now(),
	}
}

func (m BackfillModel) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, listenForBackfill(m.Events))
}

func listenForBackfill(events <-chan BackfillEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return BackfillDoneMsg{}
		}
		return ev
	}
}

func (m BackfillModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Canceled = true
			m.Quitting = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case BackfillEvent:
		m.Done = msg.Done
		m.LastID = msg.InsightID
		if msg.Err != nil {
			m.Failed++
			m.LastErr = msg.Err
		}
		return m, listenForBackfill(m.Events)

	case BackfillDoneMsg:
		m.Quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m BackfillModel) View() string {
	if m.Quitting {
		return ""
	}

	var s strings.Builder
	s.WriteString(" ")
	s.WriteString(m.Spinner.View())
	s.WriteString(fmt.Sprintf(" Re-embedding insights %d/%d", m.Done, m.Total))
	if m.Failed > 0 {
		s.WriteString(" ")
		s.WriteString(StyleError.Render(fmt.Sprintf("(%d failed)", m.Failed)))
	}
	if m.LastID > 0 {
		s.WriteString(StyleSubtle.Render(fmt.Sprintf(" • insight %d", m.LastID)))
	}
	elapsed := time.Since(m.StartedAt).Round(time.Second)
	s.WriteString(StyleSubtle.Render(fmt.Sprintf(" • %s", elapsed)))
	s.WriteString("\n")
	s.WriteString(StyleSubtle.Render(" q cancel"))
	s.WriteString("\n")
	return s.String()
}
