// Package tui shows a live view of a batch render
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/calendarpress/calendar-engine/internal/job"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 250 * time.Millisecond

type tickMsg time.Time

// Monitor is the batch Bubble Tea model. It polls the queue and exits
// once every job is done.
type Monitor struct {
	queue Source
	title string

	width    int
	height   int
	done     bool
	quitting bool

	spinner  spinner.Model
	progress progress.Model
	jobs     JobsModel

	startTime time.Time
}

// NewMonitor creates a monitor for queue
func NewMonitor(queue Source, title string) *Monitor {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	p := progress.New(progress.WithGradient(string(Primary), string(Secondary)))

	m := &Monitor{
		queue:     queue,
		title:     title,
		width:     80,
		height:    24,
		spinner:   s,
		progress:  p,
		jobs:      NewJobsModel(queue),
		startTime: time.Now(),
	}
	m.jobs.SetSize(m.width, m.height)
	return m
}

// Init starts the spinner and the refresh ticker
func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		newJobs, cmd := m.jobs.Update(msg)
		m.jobs = newJobs
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = maxInt(10, msg.Width-20)
		m.jobs.SetSize(msg.Width, msg.Height-4)

	case tickMsg:
		m.jobs.Refresh()
		s := m.queue.Stats()
		if s.Total() > 0 && s.Queued == 0 && s.Rendering == 0 {
			m.done = true
			return m, tea.Quit
		}
		cmds = append(cmds, tickCmd())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the monitor
func (m *Monitor) View() string {
	s := m.queue.Stats()

	var b strings.Builder
	b.WriteString(HeaderStyle.Render(m.title))
	b.WriteString("\n")

	finished := s.Completed + s.Failed
	percent := 0.0
	if s.Total() > 0 {
		percent = float64(finished) / float64(s.Total())
	}

	lead := m.spinner.View()
	if m.done {
		lead = SuccessStyle.Render("✓")
	}
	b.WriteString(fmt.Sprintf("%s %s  %d/%d\n\n", lead, m.progress.ViewAs(percent), finished, s.Total()))
	b.WriteString(statsLine(s))
	b.WriteString("\n\n")
	b.WriteString(m.jobs.View())
	b.WriteString("\n\n")

	if m.done || m.quitting {
		elapsed := time.Since(m.startTime).Truncate(time.Second)
		b.WriteString(TextMuted.Render(fmt.Sprintf("finished in %s", elapsed)))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(HelpBarStyle.Width(maxInt(20, m.width)).Render(m.jobs.Help()))
	b.WriteString("\n")
	return b.String()
}

// Done reports whether every job finished before the monitor exited
func (m *Monitor) Done() bool {
	return m.done
}

// Run shows the monitor until the batch finishes or the user quits
func (m *Monitor) Run() error {
	p := tea.NewProgram(m)
	_, err := p.Run()
	return err
}

// statsLine shows the non-zero status counts
func statsLine(s job.Stats) string {
	var parts []string
	if s.Queued > 0 {
		parts = append(parts, WarningStyle.Render(fmt.Sprintf("%d queued", s.Queued)))
	}
	if s.Rendering > 0 {
		parts = append(parts, InfoStyle.Render(fmt.Sprintf("%d rendering", s.Rendering)))
	}
	if s.Completed > 0 {
		parts = append(parts, SuccessStyle.Render(fmt.Sprintf("%d completed", s.Completed)))
	}
	if s.Failed > 0 {
		parts = append(parts, ErrorStyle.Render(fmt.Sprintf("%d failed", s.Failed)))
	}
	if len(parts) == 0 {
		return TextMuted.Render("waiting for jobs")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(parts, "  "))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
