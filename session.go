package serial

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/allbin/go-serialstream/internal/logging"
	"github.com/allbin/go-serialstream/internal/metrics"
	"go.uber.org/atomic"
)

// State is the lifecycle state of a Session
type State int32

const (
	StateUninitialized State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// defaultFlushInterval is used by Flush when no positive interval is given
const defaultFlushInterval = 5 * time.Millisecond

// Session is a buffered, Arduino-style byte stream over a serial device.
//
// A reader goroutine moves bytes from the device into the incoming buffer and
// a writer goroutine moves bytes from the outgoing buffer to the device. Read
// calls never block: they return what is already buffered. Write calls block
// only while the outgoing buffer is full, for at most RetryAttempts polls of
// RetryInterval. When the incoming buffer is full the reader drops bytes.
type Session struct {
	name   string
	config Config
	driver Driver
	logger *slog.Logger

	incoming *RingBuffer
	outgoing *RingBuffer
	timeouts Timeouts // guarded by outgoing's lock

	state     atomic.Int32
	wake      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	stats sessionStats
}

// Open opens device with the given options and starts the session
func Open(device string, opts ...Option) (*Session, error) {
	config, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = device
	}

	d, err := openDriver(device, config)
	if err != nil {
		return nil, err
	}

	s, err := start(d, config)
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	return s, nil
}

// NewSession starts a session over an already opened driver. On error the
// driver is left open and remains the caller's to close; on success Close
// closes it.
func NewSession(d Driver, opts ...Option) (*Session, error) {
	config, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = fmt.Sprintf("%T", d)
	}
	return start(d, config)
}

func start(d Driver, config Config) (*Session, error) {
	if err := d.SetTimeouts(config.Timeouts); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigurationFailed, config.Name, err)
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.L()
	}

	s := &Session{
		name:     config.Name,
		config:   config,
		driver:   d,
		logger:   logger.With("device", config.Name),
		incoming: NewRingBuffer(config.BufferSize),
		outgoing: NewRingBuffer(config.BufferSize),
		timeouts: config.Timeouts,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()

	s.state.Store(int32(StateOpen))
	metrics.SessionOpened(config.Name)
	s.logger.Info("session_open",
		"baud", config.BaudRate,
		"framing", fmt.Sprintf("%d%s%s", config.DataBits, config.Parity, config.StopBits),
		"backend", config.Backend,
		"buffer", config.BufferSize)
	return s, nil
}

// Name returns the label used in logs and metrics
func (s *Session) Name() string {
	return s.name
}

// Config returns the settings the session was opened with
func (s *Session) Config() Config {
	return s.config
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the session counters
func (s *Session) Stats() Stats {
	return s.stats.snapshot()
}

// Available returns the number of bytes ready to read
func (s *Session) Available() int {
	return s.incoming.Len()
}

// AvailableForWrite returns how many bytes can be written without waiting
func (s *Session) AvailableForWrite() int {
	return s.outgoing.Free()
}

// ReadByte pops one byte, or returns ErrUnderflow if nothing is buffered
func (s *Session) ReadByte() (byte, error) {
	return s.incoming.Pop()
}

// ReadBytes returns up to maxLen buffered bytes. A maxLen of zero or less
// means whatever Available reports on entry. One call returns at most the
// buffer capacity.
func (s *Session) ReadBytes(maxLen int) []byte {
	limit := s.limit(maxLen)
	buf := make([]byte, limit)
	n := s.incoming.PopInto(buf)
	return buf[:n]
}

// ReadBytesUntil is like ReadBytes but also stops after consuming term.
// The terminator is not included in the result.
func (s *Session) ReadBytesUntil(term byte, maxLen int) []byte {
	limit := s.limit(maxLen)
	buf := make([]byte, 0, limit)
	for len(buf) < limit {
		b, err := s.incoming.Pop()
		if err != nil || b == term {
			break
		}
		buf = append(buf, b)
	}
	return buf
}

// limit caps a read at maxLen, at what is buffered for maxLen <= 0, and
// never above the buffer capacity
func (s *Session) limit(maxLen int) int {
	if maxLen <= 0 {
		return s.incoming.Len()
	}
	return min(maxLen, s.incoming.Cap())
}

// ReadString drains the incoming buffer, including bytes that arrive while
// it is draining
func (s *Session) ReadString() string {
	var sb strings.Builder
	chunk := make([]byte, 64)
	for {
		n := s.incoming.PopInto(chunk)
		if n == 0 {
			return sb.String()
		}
		sb.Write(chunk[:n])
	}
}

// ReadStringUntil returns bytes up to, not including, term. The terminator is
// consumed. Without a terminator it drains the buffer. It returns
// ErrUnderflow only when nothing was buffered at all.
func (s *Session) ReadStringUntil(term byte) (string, error) {
	b, err := s.incoming.Pop()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for b != term {
		sb.WriteByte(b)
		if b, err = s.incoming.Pop(); err != nil {
			break
		}
	}
	return sb.String(), nil
}

// WriteByte queues c. When the outgoing buffer is full it polls every
// RetryInterval, up to RetryAttempts times, and then gives up with
// ErrWriteRetryTimeout.
func (s *Session) WriteByte(c byte) error {
	if s.State() != StateOpen {
		return ErrSessionClosed
	}

	if err := s.outgoing.Push(c); err == nil {
		s.signalWriter()
		return nil
	}

	for attempt := 0; attempt < s.config.RetryAttempts; attempt++ {
		if !s.sleep(s.config.RetryInterval) {
			return ErrSessionClosed
		}
		if s.outgoing.Free() == 0 {
			continue
		}
		if err := s.outgoing.Push(c); err == nil {
			s.signalWriter()
			return nil
		}
	}

	s.stats.retryTimeouts.Inc()
	metrics.IncRetryTimeout()
	return ErrWriteRetryTimeout
}

// Write queues p one byte at a time. It stops at the first byte that cannot
// be queued and returns how many were; queued bytes are not taken back.
func (s *Session) Write(p []byte) (int, error) {
	for i, c := range p {
		if err := s.WriteByte(c); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// WriteString is Write for a string
func (s *Session) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Print writes the default text form of v
func (s *Session) Print(v any) (int, error) {
	return s.WriteString(fmt.Sprint(v))
}

// Println writes the default text form of v followed by a newline
func (s *Session) Println(v any) (int, error) {
	return s.WriteString(fmt.Sprint(v) + "\n")
}

// Flush blocks until the writer has taken every queued byte, polling every
// pollInterval. It also returns once the session is closed.
func (s *Session) Flush(pollInterval time.Duration) {
	_ = s.FlushContext(context.Background(), pollInterval)
}

// FlushContext is Flush with cancellation. It returns ctx.Err() when ctx ends
// first and ErrSessionClosed when the session closes with bytes still queued.
func (s *Session) FlushContext(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = defaultFlushInterval
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for s.outgoing.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			if s.outgoing.Len() > 0 {
				return ErrSessionClosed
			}
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// ClearBuffer discards everything in both buffers
func (s *Session) ClearBuffer() {
	s.incoming.Clear()
	s.outgoing.Clear()
}

// SetTimeout applies new device timeouts. Both buffers are locked, outgoing
// first, while the driver is reconfigured.
func (s *Session) SetTimeout(t Timeouts) error {
	if err := t.validate(); err != nil {
		return err
	}
	if s.State() != StateOpen {
		return ErrSessionClosed
	}

	var err error
	s.outgoing.withLock(func() {
		s.incoming.withLock(func() {
			if derr := s.driver.SetTimeouts(t); derr != nil {
				err = fmt.Errorf("%w: %s: %w", ErrConfigurationFailed, s.name, derr)
				return
			}
			s.timeouts = t
		})
	})
	if err != nil {
		return err
	}

	s.logger.Debug("session_timeouts",
		"read_interval", t.ReadInterval,
		"read_constant", t.ReadTotalConstant,
		"write_constant", t.WriteTotalConstant)
	return nil
}

// Timeouts returns the timeouts currently applied to the device
func (s *Session) Timeouts() Timeouts {
	var t Timeouts
	s.outgoing.withLock(func() { t = s.timeouts })
	return t
}

// Close stops both goroutines, discards unsent output and closes the driver.
// Calling it again returns the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.incoming.RequestStop()
		s.outgoing.RequestStop()
		close(s.done)
		s.wg.Wait()

		pending := s.outgoing.Len()
		if err := s.driver.Close(); err != nil {
			metrics.IncError(metrics.ErrSerialClose)
			s.closeErr = fmt.Errorf("close %s: %w", s.name, err)
		}
		metrics.SessionClosed(s.name)

		st := s.stats.snapshot()
		s.logger.Info("session_closed",
			"rx_bytes", st.RxBytes,
			"tx_bytes", st.TxBytes,
			"rx_dropped", st.RxDropped,
			"unsent", pending)
	})
	return s.closeErr
}

func (s *Session) signalWriter() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// sleep waits for d and reports false if the session closed first
func (s *Session) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.done:
		return false
	}
}
