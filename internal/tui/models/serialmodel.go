package models

import (
	"sync"
	"time"

	"github.com/allbin/go-serialstream"
	"github.com/allbin/go-serialstream/internal/tui/components"
	tea "github.com/charmbracelet/bubbletea"
)

// InputMode represents the current input mode (vim-like)
type InputMode int

const (
	InputModeNormal InputMode = iota
	InputModeInsert
)

func (m InputMode) String() string {
	switch m {
	case InputModeInsert:
		return "INSERT"
	default:
		return "NORMAL"
	}
}

// Stream is the part of a session the terminal drives
type Stream interface {
	ReadBytes(maxLen int) []byte
	Write(p []byte) (int, error)
	ClearBuffer()
	Available() int
	AvailableForWrite() int
	State() serial.State
	Stats() serial.Stats
	Close() error
}

var _ Stream = (*serial.Session)(nil)

// TickMsg drives polling of the session
type TickMsg time.Time

// TxResultMsg reports how much of a sent line made it into the outgoing
// buffer
type TxResultMsg struct {
	ID    int
	N     int
	Total int
	Err   error
}

// Status maps the result onto the line status shown in the terminal
func (r TxResultMsg) Status() components.TxStatus {
	switch {
	case r.Err == nil && r.N == r.Total:
		return components.TxSent
	case r.N == 0:
		return components.TxFailed
	default:
		return components.TxPartial
	}
}

type SerialModel struct {
	stream   Stream
	portPath string
	capacity int

	ready     bool
	err       error
	inputMode InputMode
	nextID    int

	mu sync.RWMutex
}

func NewSerialModel(portPath string, stream Stream, capacity int) *SerialModel {
	return &SerialModel{
		stream:    stream,
		portPath:  portPath,
		capacity:  capacity,
		inputMode: InputModeNormal,
	}
}

func (m *SerialModel) GetPortPath() string {
	return m.portPath
}

func (m *SerialModel) IsReady() bool {
	return m.ready
}

func (m *SerialModel) SetReady(ready bool) {
	m.ready = ready
}

func (m *SerialModel) GetError() error {
	return m.err
}

func (m *SerialModel) SetError(err error) {
	m.err = err
}

func (m *SerialModel) State() serial.State {
	return m.stream.State()
}

// Tick schedules the next poll
func Tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// Drain takes everything the session has buffered as one terminal line
func (m *SerialModel) Drain(now time.Time) (components.DataReceivedMsg, bool) {
	data := m.stream.ReadBytes(0)
	if len(data) == 0 {
		return components.DataReceivedMsg{}, false
	}
	return components.DataReceivedMsg{Timestamp: now, Data: data}, true
}

// Usage reports the session's buffers for the status bar
func (m *SerialModel) Usage() components.BufferUsage {
	return components.BufferUsage{
		Incoming:     m.stream.Available(),
		OutgoingFree: m.stream.AvailableForWrite(),
		Capacity:     m.capacity,
		Stats:        m.stream.Stats(),
	}
}

// Send records data as a queued TX line and returns the command that writes
// it. Write may wait on a full outgoing buffer, so it runs off the UI loop.
func (m *SerialModel) Send(data []byte, now time.Time) (components.DataReceivedMsg, tea.Cmd) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()

	line := components.DataReceivedMsg{
		ID:        id,
		Timestamp: now,
		Data:      data,
		IsTX:      true,
		Status:    components.TxQueued,
	}
	payload := append([]byte(nil), data...)
	return line, func() tea.Msg {
		n, err := m.stream.Write(payload)
		return TxResultMsg{ID: id, N: n, Total: len(payload), Err: err}
	}
}

// ClearBuffer discards whatever the session has buffered in both directions
func (m *SerialModel) ClearBuffer() {
	m.stream.ClearBuffer()
}

func (m *SerialModel) GetInputMode() InputMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inputMode
}

func (m *SerialModel) SetInputMode(mode InputMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputMode = mode
}

func (m *SerialModel) IsInInsertMode() bool {
	return m.GetInputMode() == InputModeInsert
}

// Cleanup closes the session; unsent output is discarded
func (m *SerialModel) Cleanup() error {
	return m.stream.Close()
}
