package components

import (
	"fmt"

	"github.com/allbin/go-serialstream"
	"github.com/allbin/go-serialstream/internal/tui/colors"
	"github.com/allbin/go-serialstream/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
)

// BufferUsage is the latest view of a session's buffers and counters
type BufferUsage struct {
	Incoming     int // bytes waiting to be read
	OutgoingFree int // bytes that can be written without waiting
	Capacity     int
	Stats        serial.Stats
}

type StatusBar struct {
	portPath string
	config   serial.Config
	state    serial.State
	err      error
	usage    BufferUsage
	width    int
}

func NewStatusBar(portPath string, config serial.Config) *StatusBar {
	return &StatusBar{
		portPath: portPath,
		config:   config,
		usage:    BufferUsage{Capacity: config.BufferSize, OutgoingFree: config.BufferSize},
	}
}

func (sb *StatusBar) SetWidth(width int) {
	sb.width = width
}

func (sb *StatusBar) SetState(state serial.State, err error) {
	sb.state = state
	sb.err = err
}

func (sb *StatusBar) SetUsage(usage BufferUsage) {
	sb.usage = usage
}

// Framing renders the line settings in the usual 8N1 form
func Framing(c serial.Config) string {
	return fmt.Sprintf("%d%s%s", c.DataBits, c.Parity, c.StopBits)
}

// fillColor shades a buffer gauge by how full it is
func fillColor(used, capacity int) lipgloss.Color {
	if capacity <= 0 {
		return colors.Subtext0
	}
	switch ratio := float64(used) / float64(capacity); {
	case ratio >= 0.9:
		return colors.Danger
	case ratio >= 0.5:
		return colors.Warning
	default:
		return colors.Subtext0
	}
}

func (sb *StatusBar) buffers() string {
	u := sb.usage
	rx := lipgloss.NewStyle().
		Foreground(fillColor(u.Incoming, u.Capacity)).
		Render(fmt.Sprintf("RX %d/%d", u.Incoming, u.Capacity))

	queued := u.Capacity - u.OutgoingFree
	tx := lipgloss.NewStyle().
		Foreground(fillColor(queued, u.Capacity)).
		Render(fmt.Sprintf("TX %d/%d", queued, u.Capacity))

	out := lipgloss.JoinHorizontal(lipgloss.Left, rx, " ", tx)
	if u.Stats.RxDropped > 0 || u.Stats.RetryTimeouts > 0 {
		warn := lipgloss.NewStyle().Foreground(colors.Danger).Bold(true).
			Render(fmt.Sprintf(" drop %d timeout %d", u.Stats.RxDropped, u.Stats.RetryTimeouts))
		out = lipgloss.JoinHorizontal(lipgloss.Left, out, warn)
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(out)
}

// Render draws the bottom bar: mode, port and state on the left; buffers,
// line settings and time on the right
func (sb *StatusBar) Render(insertMode bool, sendingMode, timestamp string) string {
	terminalWidth := sb.width
	if terminalWidth <= 0 {
		terminalWidth = 80
	}

	modeText, modeBg := "NORMAL", colors.Blue
	if insertMode {
		modeText, modeBg = "INSERT", colors.Green
	}
	mode := lipgloss.NewStyle().
		Foreground(colors.Base).
		Background(modeBg).
		Bold(true).
		Padding(0, 1).
		Render(modeText)

	port := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true).
		Padding(0, 1).
		Render(sb.portPath)

	state := styles.SessionStateStyle(sb.state, sb.err).
		Render(styles.SessionStateSymbol(sb.state, sb.err))

	divider := lipgloss.NewStyle().
		Foreground(colors.Surface2).
		Padding(0, 1).
		Render("│")

	left := []string{mode, port, state}
	if insertMode {
		left = append(left, lipgloss.NewStyle().
			Foreground(colors.Peach).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("[%s] Tab to toggle", sendingMode)))
	}
	if sb.err != nil {
		left = append(left, styles.ErrorStyle.Padding(0, 1).Render(sb.err.Error()))
	}
	left = append(left, divider)
	leftSide := lipgloss.JoinHorizontal(lipgloss.Left, left...)

	line := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Padding(0, 1).
		Render(fmt.Sprintf("⚡ %d baud %s %s", sb.config.BaudRate, Framing(sb.config), sb.config.Backend))

	clock := lipgloss.NewStyle().
		Foreground(colors.Subtext1).
		Padding(0, 1).
		Render(timestamp)

	rightSide := lipgloss.JoinHorizontal(lipgloss.Left, sb.buffers(), divider, line, divider, clock)

	spacerWidth := terminalWidth - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if spacerWidth < 1 {
		spacerWidth = 1
	}
	spacer := lipgloss.NewStyle().Width(spacerWidth).Render("")

	return lipgloss.NewStyle().
		Foreground(colors.Text).
		Background(colors.Surface0).
		Width(terminalWidth).
		Render(lipgloss.JoinHorizontal(lipgloss.Left, leftSide, spacer, rightSide))
}
