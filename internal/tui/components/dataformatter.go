package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/allbin/go-serialstream/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
)

// TxStatus tracks a sent line through the outgoing buffer
type TxStatus int

const (
	TxQueued  TxStatus = iota // handed to the session
	TxSent                    // every byte queued
	TxPartial                 // retry budget ran out part way
	TxFailed                  // nothing queued
)

func (s TxStatus) String() string {
	switch s {
	case TxQueued:
		return "TX ○"
	case TxSent:
		return "TX ✓"
	case TxPartial:
		return "TX ◐"
	case TxFailed:
		return "TX ✗"
	default:
		return "TX"
	}
}

func (s TxStatus) color() lipgloss.Color {
	switch s {
	case TxSent:
		return colors.Sent
	case TxPartial:
		return colors.Warning
	case TxFailed:
		return colors.Danger
	default:
		return colors.TX
	}
}

// DataReceivedMsg is one line of the terminal: a chunk drained from the
// session, a line the user sent, or a notice.
type DataReceivedMsg struct {
	ID        int
	Timestamp time.Time
	Data      []byte
	IsTX      bool
	Status    TxStatus
	Notice    bool
}

type DisplayMode struct {
	ShowHex   bool
	ShowASCII bool
}

type DataFormatter struct {
	mode DisplayMode
}

func NewDataFormatter(showHex, showASCII bool) *DataFormatter {
	return &DataFormatter{
		mode: DisplayMode{
			ShowHex:   showHex,
			ShowASCII: showASCII,
		},
	}
}

func (df *DataFormatter) GetDisplayMode() DisplayMode {
	return df.mode
}

func (df *DataFormatter) ToggleHex() {
	df.mode.ShowHex = !df.mode.ShowHex
}

func (df *DataFormatter) ToggleASCII() {
	df.mode.ShowASCII = !df.mode.ShowASCII
}

// asciiOf replaces non-printable bytes with dots so control sequences never
// reach the terminal
func asciiOf(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data))
	for _, b := range data {
		if b >= 32 && b <= 126 {
			sb.WriteByte(b)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

func (df *DataFormatter) FormatMessage(msg DataReceivedMsg) string {
	timestamp := lipgloss.NewStyle().
		Foreground(colors.Subtext0).
		Render(fmt.Sprintf("[%s]", msg.Timestamp.Format("15:04:05.000")))

	if msg.Notice {
		return fmt.Sprintf("%s %s", timestamp,
			lipgloss.NewStyle().Foreground(colors.Overlay0).Italic(true).Render(string(msg.Data)))
	}

	var indicator string
	if msg.IsTX {
		indicator = lipgloss.NewStyle().
			Foreground(msg.Status.color()).
			Bold(true).
			Render("↗ " + msg.Status.String())
	} else {
		indicator = lipgloss.NewStyle().
			Foreground(colors.RX).
			Bold(true).
			Render("↙ RX")
	}

	var parts []string
	if df.mode.ShowHex {
		parts = append(parts, fmt.Sprintf("HEX: % X", msg.Data))
	}
	if df.mode.ShowASCII {
		parts = append(parts, "ASCII: "+asciiOf(msg.Data))
	}
	if !df.mode.ShowHex && !df.mode.ShowASCII {
		parts = append(parts, fmt.Sprintf("BYTES: %d", len(msg.Data)))
	}

	return fmt.Sprintf("%s %s: %s", timestamp, indicator, strings.Join(parts, "  "))
}

func (df *DataFormatter) FormatMessages(messages []DataReceivedMsg) []string {
	formatted := make([]string, len(messages))
	for i, msg := range messages {
		formatted[i] = df.FormatMessage(msg)
	}
	return formatted
}
