/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allbin/go-serialstream"
	"github.com/allbin/go-serialstream/internal/tui/components"
	"github.com/allbin/go-serialstream/internal/tui/keys"
	"github.com/allbin/go-serialstream/internal/tui/models"
	"github.com/allbin/go-serialstream/internal/tui/styles"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <port>",
	Short: "Interactive terminal over a buffered session",
	Long: `Open a session on the port and show its traffic in a full-screen terminal.

Received bytes are drained from the incoming buffer on every poll. Lines typed
in insert mode are queued on the outgoing buffer; a line that cannot be queued
within the write retry budget is marked partial or failed.

Example usage:
  serialstream connect /dev/ttyUSB0
  serialstream connect /dev/ttyUSB0 --baud 9600 --eol crlf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		poll, _ := cmd.Flags().GetDuration("poll")
		eol, err := lineEnding(viper.GetString("eol"))
		if err != nil {
			return err
		}
		return runConnectTUI(args[0], poll, eol)
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().Duration("poll", 20*time.Millisecond, "How often the incoming buffer is drained")
	connectCmd.Flags().String("eol", "lf", "Line ending appended to ASCII input: lf, crlf, cr, none")
	_ = viper.BindPFlag("eol", connectCmd.Flags().Lookup("eol"))
}

func lineEnding(s string) (string, error) {
	switch strings.ToLower(s) {
	case "lf":
		return "\n", nil
	case "crlf":
		return "\r\n", nil
	case "cr":
		return "\r", nil
	case "none", "":
		return "", nil
	}
	return "", fmt.Errorf("unknown line ending %q", s)
}

// connectModel represents the Bubble Tea model for the connect command
type connectModel struct {
	*models.SerialModel
	terminal  *components.Terminal
	statusBar *components.StatusBar
	input     *components.Input
	help      help.Model
	keys      keys.ConnectKeys
	poll      time.Duration
	eol       string
}

func runConnectTUI(portPath string, poll time.Duration, eol string) error {
	s, err := openSession(portPath, serial.WithLogger(quietLogger()))
	if err != nil {
		return err
	}

	config := s.Config()
	m := newConnectModel(models.NewSerialModel(portPath, s, config.BufferSize), config, poll, eol)
	m.statusBar.SetState(s.State(), nil)

	_, runErr := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	if err := m.Cleanup(); err != nil && !errors.Is(err, serial.ErrPortClosed) {
		return errors.Join(runErr, err)
	}
	return runErr
}

func newConnectModel(sm *models.SerialModel, config serial.Config, poll time.Duration, eol string) *connectModel {
	if poll <= 0 {
		poll = 20 * time.Millisecond
	}
	return &connectModel{
		SerialModel: sm,
		// Sized by the first WindowSizeMsg
		terminal:  components.NewTerminal(0, 0),
		statusBar: components.NewStatusBar(sm.GetPortPath(), config),
		input:     components.NewInput(),
		help:      help.New(),
		keys:      keys.NewConnectKeys(),
		poll:      poll,
		eol:       eol,
	}
}

func (m *connectModel) Init() tea.Cmd {
	return models.Tick(m.poll)
}

func (m *connectModel) notice(text string) {
	m.terminal.Add(components.DataReceivedMsg{
		Timestamp: time.Now(),
		Data:      []byte(text),
		Notice:    true,
	})
}

// send queues the input line and returns the write command
func (m *connectModel) send() tea.Cmd {
	text := m.input.Value()
	if text == "" {
		return nil
	}

	var data []byte
	switch m.input.GetSendingMode() {
	case components.SendingModeHex:
		b, err := parseHex(text)
		if err != nil {
			m.notice(fmt.Sprintf("Invalid hex input: %v", err))
			return nil
		}
		data = b
	default:
		data = []byte(text + m.eol)
	}

	line, cmd := m.SerialModel.Send(data, time.Now())
	m.terminal.Add(line)
	m.input.AddToHistory(text)
	m.input.SetValue("")
	return cmd
}

func (m *connectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		// Content top border, three-line input box and the status bar
		m.terminal.SetSize(msg.Width, msg.Height-5)
		m.input.SetWidth(msg.Width)
		m.statusBar.SetWidth(msg.Width)
		m.help.Width = msg.Width
		m.SetReady(true)
		cmds = append(cmds, m.terminal.Update(msg))

	case tea.MouseMsg:
		cmds = append(cmds, m.terminal.Update(msg))

	case models.TickMsg:
		if line, ok := m.Drain(time.Time(msg)); ok {
			m.terminal.Add(line)
		}
		m.statusBar.SetUsage(m.Usage())
		m.statusBar.SetState(m.State(), m.GetError())
		if m.State() == serial.StateOpen {
			cmds = append(cmds, models.Tick(m.poll))
		}

	case models.TxResultMsg:
		m.terminal.UpdateStatus(msg.ID, msg.Status())
		if msg.Err != nil {
			if errors.Is(msg.Err, serial.ErrWriteRetryTimeout) {
				m.notice(fmt.Sprintf("Outgoing buffer full: %d of %d bytes queued", msg.N, msg.Total))
			} else {
				m.SetError(msg.Err)
			}
		}

	case tea.KeyMsg:
		if m.IsInInsertMode() {
			switch {
			case key.Matches(msg, m.keys.Escape):
				m.SetInputMode(models.InputModeNormal)
				m.input.Blur()
				return m, nil
			case key.Matches(msg, m.keys.Enter):
				return m, m.send()
			case msg.String() == "up":
				m.input.NavigateHistoryUp()
				return m, nil
			case msg.String() == "down":
				m.input.NavigateHistoryDown()
				return m, nil
			case key.Matches(msg, m.keys.ToggleSend):
				m.input.ToggleSendingMode()
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.InsertMode):
			m.SetInputMode(models.InputModeInsert)
			m.input.Focus()
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Clear):
			m.terminal.Clear()
		case key.Matches(msg, m.keys.ClearBuffer):
			m.ClearBuffer()
			m.notice("Discarded buffered bytes")
		case key.Matches(msg, m.keys.ToggleHex):
			m.terminal.ToggleHex()
		case key.Matches(msg, m.keys.ToggleASCII):
			m.terminal.ToggleASCII()
		case key.Matches(msg, m.keys.ToggleSend):
			m.input.ToggleSendingMode()
		case key.Matches(msg, m.keys.Up):
			m.terminal.ScrollUp()
		case key.Matches(msg, m.keys.Down):
			m.terminal.ScrollDown()
		case key.Matches(msg, m.keys.GotoTop):
			m.terminal.GotoTop()
		case key.Matches(msg, m.keys.GotoBottom):
			m.terminal.GotoBottom()
		}
	}

	if len(cmds) == 0 {
		return m, nil
	}
	return m, tea.Batch(cmds...)
}

func (m *connectModel) View() string {
	content := "Initializing..."
	if m.IsReady() {
		content = m.terminal.View()
	}

	insert := m.IsInInsertMode()
	status := m.statusBar.Render(insert, m.input.GetSendingMode().String(), time.Now().Format("15:04:05"))

	parts := []string{
		styles.ContentBorderStyle.Render(content),
		m.input.ViewWithMode(insert),
		status,
	}
	if m.help.ShowAll {
		parts = append(parts, m.help.View(m.keys))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
