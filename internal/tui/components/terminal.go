package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// maxTerminalLines bounds the scrollback kept in memory
const maxTerminalLines = 5000

// Terminal is a scrolling view over the session's traffic
type Terminal struct {
	viewport  viewport.Model
	formatter *DataFormatter
	messages  []DataReceivedMsg
	follow    bool
}

func NewTerminal(width, height int) *Terminal {
	return &Terminal{
		viewport:  viewport.New(width, height),
		formatter: NewDataFormatter(true, true),
		follow:    true,
	}
}

func (t *Terminal) SetSize(width, height int) {
	t.viewport.Width = width
	t.viewport.Height = height
	t.refresh()
}

func (t *Terminal) Width() int {
	return t.viewport.Width
}

// Add appends a message and keeps the view pinned to the bottom while
// following
func (t *Terminal) Add(msg DataReceivedMsg) {
	t.messages = append(t.messages, msg)
	if len(t.messages) > maxTerminalLines {
		t.messages = t.messages[len(t.messages)-maxTerminalLines:]
	}
	t.refresh()
}

// UpdateStatus sets the status of the TX line with the given id
func (t *Terminal) UpdateStatus(id int, status TxStatus) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].IsTX && t.messages[i].ID == id {
			t.messages[i].Status = status
			t.refresh()
			return
		}
	}
}

func (t *Terminal) Messages() []DataReceivedMsg {
	return t.messages
}

func (t *Terminal) Clear() {
	t.messages = nil
	t.viewport.SetContent("")
}

func (t *Terminal) ToggleHex() {
	t.formatter.ToggleHex()
	t.refresh()
}

func (t *Terminal) ToggleASCII() {
	t.formatter.ToggleASCII()
	t.refresh()
}

func (t *Terminal) GetDisplayMode() DisplayMode {
	return t.formatter.GetDisplayMode()
}

func (t *Terminal) GotoTop() {
	t.follow = false
	t.viewport.GotoTop()
}

func (t *Terminal) GotoBottom() {
	t.follow = true
	t.viewport.GotoBottom()
}

func (t *Terminal) ScrollUp() {
	t.follow = false
	t.viewport.LineUp(1)
}

func (t *Terminal) ScrollDown() {
	t.viewport.LineDown(1)
	t.follow = t.viewport.AtBottom()
}

func (t *Terminal) refresh() {
	t.viewport.SetContent(strings.Join(t.formatter.FormatMessages(t.messages), "\n"))
	if t.follow {
		t.viewport.GotoBottom()
	}
}

func (t *Terminal) Update(msg tea.Msg) tea.Cmd {
	// Only resize and mouse messages reach the viewport; keys are ours.
	switch msg.(type) {
	case tea.WindowSizeMsg, tea.MouseMsg:
		var cmd tea.Cmd
		t.viewport, cmd = t.viewport.Update(msg)
		return cmd
	}
	return nil
}

func (t *Terminal) View() string {
	return t.viewport.View()
}
