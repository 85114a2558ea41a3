package tui

import (
	"github.com/calendarpress/calendar-engine/internal/job"
	"github.com/charmbracelet/lipgloss"
)

// Colors
var (
	Primary   = lipgloss.Color("#7C3AED") // Purple
	Secondary = lipgloss.Color("#06B6D4") // Cyan
	Success   = lipgloss.Color("#10B981") // Green
	Warning   = lipgloss.Color("#F59E0B") // Amber
	Error     = lipgloss.Color("#EF4444") // Red
	Muted     = lipgloss.Color("#6B7280") // Gray

	BgCard  = lipgloss.Color("#1E293B") // Slate 800
	BgHover = lipgloss.Color("#334155") // Slate 700

	colorTextBright = lipgloss.Color("#F8FAFC") // Slate 50
	colorTextNormal = lipgloss.Color("#CBD5E1") // Slate 300
	colorTextMuted  = lipgloss.Color("#64748B") // Slate 500
)

// Text styles
var (
	TextBright = lipgloss.NewStyle().Foreground(colorTextBright)
	TextNormal = lipgloss.NewStyle().Foreground(colorTextNormal)
	TextMuted  = lipgloss.NewStyle().Foreground(colorTextMuted)
)

// Styles
var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorTextBright).
			Background(Primary).
			Padding(0, 2).
			MarginBottom(1)

	CardTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary).
			MarginBottom(1)

	ListItemStyle = lipgloss.NewStyle().
			Foreground(colorTextNormal).
			PaddingLeft(2)

	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(colorTextBright).
				Background(BgHover).
				Bold(true).
				PaddingLeft(2)

	StatusDone = lipgloss.NewStyle().
			Foreground(Success).
			SetString("●")

	StatusFailed = lipgloss.NewStyle().
			Foreground(Error).
			SetString("●")

	StatusPending = lipgloss.NewStyle().
			Foreground(Warning).
			SetString("●")

	StatusActive = lipgloss.NewStyle().
			Foreground(Secondary).
			SetString("●")

	HelpStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	HelpBarStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Background(BgCard).
			Padding(0, 2)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	InfoStyle = lipgloss.NewStyle().
			Foreground(Secondary)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(Primary)

	SectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted).
				Bold(true).
				MarginBottom(1)
)

func RenderKey(key string) string {
	return HelpKeyStyle.Render(key)
}

func RenderHelp(key, desc string) string {
	return RenderKey(key) + HelpStyle.Render(" "+desc)
}

func StatusIcon(status string) string {
	switch status {
	case job.StatusCompleted:
		return StatusDone.String()
	case job.StatusFailed:
		return StatusFailed.String()
	case job.StatusRendering:
		return StatusActive.String()
	default:
		return StatusPending.String()
	}
}

// StatusStyle colors a job status word
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case job.StatusQueued:
		return lipgloss.NewStyle().Foreground(Warning)
	case job.StatusRendering:
		return lipgloss.NewStyle().Foreground(Secondary)
	case job.StatusCompleted:
		return lipgloss.NewStyle().Foreground(Success)
	case job.StatusFailed:
		return lipgloss.NewStyle().Foreground(Error)
	}
	return TextMuted
}

func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
