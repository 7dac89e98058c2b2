package components

import (
	"fmt"
	"strings"

	"github.com/allbin/go-serialstream/internal/tui/colors"
	"github.com/allbin/go-serialstream/internal/tui/styles"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type SendingMode int

const (
	SendingModeASCII SendingMode = iota
	SendingModeHex
)

func (s SendingMode) String() string {
	if s == SendingModeHex {
		return "HEX"
	}
	return "ASCII"
}

func (s SendingMode) placeholder() string {
	if s == SendingModeHex {
		return "Enter hex (e.g. 48656C6C6F or 48 65 6C 6C 6F)..."
	}
	return "Type message and press Enter to send..."
}

const maxHistory = 100

// history is a bounded list of sent lines with a browsing cursor. A cursor
// of -1 means the user is editing a fresh line, kept in draft.
type history struct {
	lines  []string
	cursor int
	draft  string
}

func (h *history) add(line string) {
	h.cursor, h.draft = -1, ""
	line = strings.TrimSpace(line)
	if line == "" || (len(h.lines) > 0 && h.lines[len(h.lines)-1] == line) {
		return
	}
	h.lines = append(h.lines, line)
	if len(h.lines) > maxHistory {
		h.lines = h.lines[len(h.lines)-maxHistory:]
	}
}

// older steps back from current and returns the line to show
func (h *history) older(current string) (string, bool) {
	if len(h.lines) == 0 {
		return "", false
	}
	switch {
	case h.cursor == -1:
		h.draft = current
		h.cursor = len(h.lines) - 1
	case h.cursor > 0:
		h.cursor--
	}
	return h.lines[h.cursor], true
}

// newer steps forward, ending at the saved draft
func (h *history) newer() (string, bool) {
	if h.cursor == -1 {
		return "", false
	}
	if h.cursor < len(h.lines)-1 {
		h.cursor++
		return h.lines[h.cursor], true
	}
	draft := h.draft
	h.cursor, h.draft = -1, ""
	return draft, true
}

// Input is the single-line send box under the terminal
type Input struct {
	textInput   textinput.Model
	sendingMode SendingMode
	history     history
	width       int
}

func NewInput() *Input {
	ti := textinput.New()
	ti.Placeholder = SendingModeASCII.placeholder()
	ti.CharLimit = 256
	ti.Prompt = ""

	return &Input{
		textInput: ti,
		history:   history{cursor: -1},
	}
}

func (i *Input) SetWidth(width int) {
	i.width = width
	// border, padding, prompt and the byte hint
	i.textInput.Width = max(width-16, 20)
}

func (i *Input) Focus() {
	i.textInput.Focus()
}

func (i *Input) Blur() {
	i.textInput.Blur()
}

func (i *Input) Value() string {
	return i.textInput.Value()
}

func (i *Input) SetValue(value string) {
	i.textInput.SetValue(value)
	i.textInput.CursorEnd()
}

func (i *Input) ToggleSendingMode() {
	if i.sendingMode == SendingModeASCII {
		i.sendingMode = SendingModeHex
	} else {
		i.sendingMode = SendingModeASCII
	}
	i.textInput.Placeholder = i.sendingMode.placeholder()
}

func (i *Input) GetSendingMode() SendingMode {
	return i.sendingMode
}

func (i *Input) Update(msg tea.Msg) (*Input, tea.Cmd) {
	var cmd tea.Cmd
	i.textInput, cmd = i.textInput.Update(msg)
	return i, cmd
}

// byteHint describes how many bytes the current value will queue. Hex input
// with a dangling digit is flagged.
func (i *Input) byteHint() (string, bool) {
	v := i.textInput.Value()
	if i.sendingMode == SendingModeASCII {
		return fmt.Sprintf("%d B", len(v)), true
	}
	digits := len(strings.NewReplacer(" ", "", "0x", "", "0X", "").Replace(v))
	if digits%2 != 0 {
		return "odd digits", false
	}
	return fmt.Sprintf("%d B", digits/2), true
}

func (i *Input) ViewWithMode(isInsertMode bool) string {
	prompt := lipgloss.NewStyle().Foreground(colors.Green).Bold(true).Render(">")
	if i.sendingMode == SendingModeHex {
		prompt = lipgloss.NewStyle().Foreground(colors.Yellow).Bold(true).Render("#")
	}

	body := lipgloss.NewStyle().Foreground(colors.Overlay0).Render("Press 'i' to enter insert mode")
	if isInsertMode {
		body = i.textInput.View()
	}
	line := lipgloss.JoinHorizontal(lipgloss.Left, prompt, " ", body)

	innerWidth := max(i.width-4, 10)
	if isInsertMode {
		hint, ok := i.byteHint()
		hintColor := colors.Subtext0
		if !ok {
			hintColor = colors.Danger
		}
		rendered := lipgloss.NewStyle().Foreground(hintColor).Render(hint)
		gap := max(innerWidth-lipgloss.Width(line)-lipgloss.Width(rendered), 1)
		line = line + strings.Repeat(" ", gap) + rendered
	}

	box := styles.InputStyle.Width(innerWidth)
	if isInsertMode {
		box = box.BorderForeground(colors.Green)
	}
	return box.Render(line)
}

// AddToHistory records a sent line, skipping blanks and repeats
func (i *Input) AddToHistory(line string) {
	i.history.add(line)
}

// NavigateHistoryUp shows the previous sent line
func (i *Input) NavigateHistoryUp() {
	if line, ok := i.history.older(i.textInput.Value()); ok {
		i.SetValue(line)
	}
}

// NavigateHistoryDown shows the next sent line, then the unsent draft
func (i *Input) NavigateHistoryDown() {
	if line, ok := i.history.newer(); ok {
		i.SetValue(line)
	}
}
