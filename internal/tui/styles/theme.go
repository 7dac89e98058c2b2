package styles

import (
	"github.com/allbin/go-serialstream"
	"github.com/allbin/go-serialstream/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Mauve).
			Background(colors.Surface0).
			Padding(0, 1)

	StatusOpenStyle = lipgloss.NewStyle().
			Foreground(colors.Green).
			Bold(true)

	StatusClosedStyle = lipgloss.NewStyle().
				Foreground(colors.Red).
				Bold(true)

	StatusPendingStyle = lipgloss.NewStyle().
				Foreground(colors.Yellow).
				Bold(true)

	ContentBorderStyle = lipgloss.NewStyle().
				BorderTop(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderForeground(colors.Surface1)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colors.Surface2).
			Padding(0, 1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colors.Red)
)

// SessionStateStyle picks the indicator style for a session state
func SessionStateStyle(state serial.State, err error) lipgloss.Style {
	switch {
	case err != nil:
		return StatusClosedStyle
	case state == serial.StateOpen:
		return StatusOpenStyle
	case state == serial.StateUninitialized:
		return StatusPendingStyle
	default:
		return StatusClosedStyle
	}
}

// SessionStateSymbol is the one-character indicator for a session state
func SessionStateSymbol(state serial.State, err error) string {
	switch {
	case err != nil:
		return "✗"
	case state == serial.StateOpen:
		return "●"
	default:
		return "○"
	}
}
