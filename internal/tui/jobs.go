package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/calendarpress/calendar-engine/internal/job"
	tea "github.com/charmbracelet/bubbletea"
)

// Source is the queue the monitor watches
type Source interface {
	GetAllJobs() []*job.Job
	Stats() job.Stats
	ClearCompleted()
}

// JobsModel lists render jobs with the selected job's details
type JobsModel struct {
	queue        Source
	jobs         []*job.Job
	cursor       int
	scrollOffset int
	width        int
	height       int
	message      string
}

// NewJobsModel creates a new jobs model
func NewJobsModel(queue Source) JobsModel {
	return JobsModel{
		queue: queue,
		jobs:  make([]*job.Job, 0),
	}
}

// SetSize sets the component size
func (m *JobsModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.adjustScroll()
}

// Refresh reloads the job list
func (m *JobsModel) Refresh() {
	m.jobs = m.queue.GetAllJobs()
	if m.cursor >= len(m.jobs) && len(m.jobs) > 0 {
		m.cursor = len(m.jobs) - 1
	}
	m.adjustScroll()
}

// Update handles messages
func (m JobsModel) Update(msg tea.Msg) (JobsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				m.adjustScroll()
			}
		case "down", "j":
			if m.cursor < len(m.jobs)-1 {
				m.cursor++
				m.adjustScroll()
			}
		case "c":
			m.queue.ClearCompleted()
			m.Refresh()
			m.message = "Cleared completed"
		}
	}

	return m, nil
}

// View renders the job list
func (m JobsModel) View() string {
	var b strings.Builder

	b.WriteString(CardTitleStyle.Render("Render Queue"))
	b.WriteString("\n\n")

	if len(m.jobs) == 0 {
		b.WriteString(TextMuted.Render("No calendars queued.\n"))
		return b.String()
	}

	maxJobs := m.visibleRows()
	startIdx := m.scrollOffset
	endIdx := startIdx + maxJobs
	if endIdx > len(m.jobs) {
		endIdx = len(m.jobs)
	}

	for i := startIdx; i < endIdx; i++ {
		j := m.jobs[i]
		cursor := "  "
		style := ListItemStyle
		if i == m.cursor {
			cursor = "▸ "
			style = SelectedItemStyle
		}

		elapsed := ""
		switch {
		case j.Done():
			elapsed = j.FinishedAt.Sub(j.StartedAt).Truncate(100 * time.Millisecond).String()
		case j.Status == job.StatusRendering:
			elapsed = time.Since(j.StartedAt).Truncate(time.Second).String()
		}

		line := fmt.Sprintf("%s%s %-28s %s  %s",
			cursor,
			StatusIcon(j.Status),
			Truncate(filepath.Base(j.Source), 28),
			StatusStyle(j.Status).Render(fmt.Sprintf("%-9s", j.Status)),
			TextMuted.Render(elapsed))

		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	if len(m.jobs) > maxJobs {
		if m.scrollOffset > 0 {
			b.WriteString(TextMuted.Render("  ... (↑ to scroll) ...\n"))
		}
		if endIdx < len(m.jobs) {
			b.WriteString(TextMuted.Render("  ... (↓ to scroll) ...\n"))
		}
	}

	if m.cursor < len(m.jobs) {
		b.WriteString("\n")
		b.WriteString(m.details(m.jobs[m.cursor]))
	}

	if m.message != "" {
		b.WriteString("\n\n")
		b.WriteString(SuccessStyle.Render("✓ " + m.message))
	}

	return b.String()
}

func (m JobsModel) details(j *job.Job) string {
	var b strings.Builder

	b.WriteString(SectionHeaderStyle.Render("DETAILS"))
	b.WriteString("\n")
	b.WriteString(TextMuted.Render("Job: ") + TextNormal.Render(j.ID))
	b.WriteString("\n")
	b.WriteString(TextMuted.Render("Source: ") + TextNormal.Render(j.Source))

	if o := j.Outcome; o.RenderID != "" {
		b.WriteString("\n")
		b.WriteString(TextMuted.Render("Render: ") + TextNormal.Render(o.RenderID))
		for _, f := range o.Files {
			b.WriteString("\n")
			line := fmt.Sprintf("  %-14s %s  %dx%d px  %.0fx%.0f mm  %s",
				f.Role, f.Format, f.WidthPx, f.HeightPx, f.WidthMM, f.HeightMM, f.ColorSpace)
			if f.Fallback {
				b.WriteString(WarningStyle.Render(line + "  (fallback)"))
			} else {
				b.WriteString(TextNormal.Render(line))
			}
		}
		for _, w := range o.Warnings {
			b.WriteString("\n")
			b.WriteString(WarningStyle.Render("! " + w))
		}
	}

	if j.Error != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render(fmt.Sprintf("Error: %v", j.Error)))
	}

	return b.String()
}

// Help returns help text for the list
func (m JobsModel) Help() string {
	return RenderHelp("↑/↓", "select") + "  " +
		RenderHelp("c", "clear done") + "  " +
		RenderHelp("q", "quit")
}

func (m JobsModel) visibleRows() int {
	rows := m.height - 12 // title, details and message
	if rows < 1 {
		rows = 1
	}
	return rows
}

// adjustScroll keeps the cursor visible
func (m *JobsModel) adjustScroll() {
	if len(m.jobs) == 0 {
		m.scrollOffset = 0
		return
	}

	maxVisible := m.visibleRows()

	if m.cursor < m.scrollOffset {
		m.scrollOffset = m.cursor
	}

	visibleEnd := m.scrollOffset + maxVisible
	if m.cursor >= visibleEnd {
		m.scrollOffset = m.cursor - maxVisible + 1
		if m.scrollOffset < 0 {
			m.scrollOffset = 0
		}
	}

	maxOffset := len(m.jobs) - maxVisible
	if maxOffset < 0 {
		maxOffset = 0
	}
	if m.scrollOffset > maxOffset {
		m.scrollOffset = maxOffset
	}
}
