package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver is an in-memory device. Bytes queued with inject are returned by
// Read; bytes accepted by Write are recorded and optionally answered through
// respond.
type fakeDriver struct {
	mu       sync.Mutex
	rx       []byte
	tx       []byte
	timeouts Timeouts
	closed   int

	stalled  bool  // Write accepts nothing
	readErr  error // returned by Read while set
	writeErr error // returned by Write while set
	setErr   error // returned by SetTimeouts while set
	respond  func(tx []byte) []byte
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{}
}

func (f *fakeDriver) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.readErr != nil {
		err := f.readErr
		f.mu.Unlock()
		return 0, err
	}
	n := copy(p, f.rx)
	f.rx = f.rx[n:]
	f.mu.Unlock()

	if n == 0 {
		// stand-in for the device read timeout
		time.Sleep(time.Millisecond)
	}
	return n, nil
}

func (f *fakeDriver) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.stalled {
		return 0, nil
	}
	f.tx = append(f.tx, p...)
	if f.respond != nil {
		f.rx = append(f.rx, f.respond(f.tx)...)
	}
	return len(p), nil
}

func (f *fakeDriver) SetTimeouts(t Timeouts) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.timeouts = t
	return nil
}

func (f *fakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeDriver) inject(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx = append(f.rx, data...)
}

func (f *fakeDriver) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.tx)
}

func (f *fakeDriver) set(fn func(f *fakeDriver)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeDriver) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, d Driver, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithName(t.Name())}, opts...)
	s, err := NewSession(d, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitAvailable(t *testing.T, s *Session, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Available() == n },
		time.Second, time.Millisecond, "Available() never reached %d", n)
}

func TestSessionPingPong(t *testing.T) {
	d := newFakeDriver()
	d.respond = func(tx []byte) []byte {
		if bytes.HasSuffix(tx, []byte("PING\n")) {
			return []byte("PONG\n")
		}
		return nil
	}
	s := newTestSession(t, d)

	n, err := s.WriteString("PING\n")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	waitAvailable(t, s, 5)
	line, err := s.ReadStringUntil('\n')
	require.NoError(t, err)
	assert.Equal(t, "PONG", line)
	assert.Equal(t, "PING\n", d.written())

	st := s.Stats()
	assert.Equal(t, uint64(5), st.TxBytes)
	assert.Equal(t, uint64(5), st.RxBytes)
}

func TestSessionReadBytesUntil(t *testing.T) {
	d := newFakeDriver()
	s := newTestSession(t, d)

	d.inject("abc\ndef")
	waitAvailable(t, s, 7)

	assert.Equal(t, []byte("abc"), s.ReadBytesUntil('\n', 10))
	assert.Equal(t, 3, s.Available())
	assert.Equal(t, "def", s.ReadString())
}

func TestSessionReadBytesUntilLimits(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
		left   int
	}{
		{"max before terminator", "abcdef\n", 3, "abc", 4},
		{"terminator first", "\nabc", 5, "", 3},
		{"no terminator drains", "xyz", 10, "xyz", 0},
		{"zero uses available", "ab\ncd", 0, "ab", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDriver()
			s := newTestSession(t, d)
			d.inject(tt.input)
			waitAvailable(t, s, len(tt.input))

			got := s.ReadBytesUntil('\n', tt.maxLen)
			assert.Equal(t, tt.want, string(got))
			assert.Equal(t, tt.left, s.Available())
		})
	}
}

func TestSessionReadBytes(t *testing.T) {
	d := newFakeDriver()
	s := newTestSession(t, d)

	assert.Empty(t, s.ReadBytes(4))

	d.inject("hello")
	waitAvailable(t, s, 5)

	assert.Equal(t, []byte("he"), s.ReadBytes(2))
	assert.Equal(t, []byte("llo"), s.ReadBytes(0))
	assert.Equal(t, 0, s.Available())
}

func TestSessionReadLimitsAboveAvailable(t *testing.T) {
	tests := []struct {
		name   string
		maxLen int
	}{
		{"max int", math.MaxInt},
		{"huge", 1 << 40},
		{"above capacity", 4096},
		{"above available", 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDriver()
			s := newTestSession(t, d, WithBufferSize(64))

			d.inject("abc")
			waitAvailable(t, s, 3)
			assert.Equal(t, []byte("abc"), s.ReadBytes(tt.maxLen))

			d.inject("de\nf")
			waitAvailable(t, s, 4)
			got := s.ReadBytesUntil('\n', tt.maxLen)
			assert.Equal(t, []byte("de"), got)
			assert.LessOrEqual(t, cap(got), 64)
			assert.Equal(t, 1, s.Available())
		})
	}
}

func TestSessionReadByte(t *testing.T) {
	d := newFakeDriver()
	s := newTestSession(t, d)

	_, err := s.ReadByte()
	assert.ErrorIs(t, err, ErrUnderflow)

	d.inject("Z")
	waitAvailable(t, s, 1)
	b, err := s.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte('Z'), b)
}

func TestSessionReadStringUntil(t *testing.T) {
	d := newFakeDriver()
	s := newTestSession(t, d)

	_, err := s.ReadStringUntil('\n')
	assert.ErrorIs(t, err, ErrUnderflow)

	d.inject("partial")
	waitAvailable(t, s, 7)
	got, err := s.ReadStringUntil('\n')
	require.NoError(t, err)
	assert.Equal(t, "partial", got)

	d.inject("\nnext")
	waitAvailable(t, s, 5)
	got, err = s.ReadStringUntil('\n')
	require.NoError(t, err)
	assert.Equal(t, "", got)
	assert.Equal(t, 4, s.Available())
}

func TestSessionIncomingOverflowDrops(t *testing.T) {
	d := newFakeDriver()
	s := newTestSession(t, d, WithBufferSize(4))

	d.inject("0123456789")
	require.Eventually(t, func() bool { return s.Stats().RxDropped == 6 },
		time.Second, time.Millisecond)

	assert.Equal(t, 4, s.Available())
	assert.Equal(t, "0123", s.ReadString())
	assert.Equal(t, uint64(4), s.Stats().RxBytes)
}

func TestSessionReadErrorsAreRetried(t *testing.T) {
	d := newFakeDriver()
	d.readErr = errors.New("line noise")
	s := newTestSession(t, d)

	require.Eventually(t, func() bool { return s.Stats().ReadErrors >= 2 },
		time.Second, time.Millisecond)

	d.set(func(f *fakeDriver) { f.readErr = nil })
	d.inject("ok")
	waitAvailable(t, s, 2)
	assert.Equal(t, "ok", s.ReadString())
	assert.Equal(t, StateOpen, s.State())
}

func TestSessionWriteErrorDropsChunk(t *testing.T) {
	d := newFakeDriver()
	d.writeErr = errors.New("unplugged")
	s := newTestSession(t, d)

	require.NoError(t, s.WriteByte('a'))
	require.Eventually(t, func() bool { return s.Stats().WriteErrors == 1 },
		time.Second, time.Millisecond)

	d.set(func(f *fakeDriver) { f.writeErr = nil })
	require.NoError(t, s.WriteByte('b'))
	require.Eventually(t, func() bool { return d.written() == "b" },
		time.Second, time.Millisecond)
}

func TestSessionWriteRetryTimeout(t *testing.T) {
	d := newFakeDriver()
	d.stalled = true
	s := newTestSession(t, d,
		WithBufferSize(4),
		WithWriteRetry(2*time.Millisecond, 3))

	start := time.Now()
	n, err := s.Write([]byte("0123456789"))
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrWriteRetryTimeout)
	// four fit in the buffer, at most one more once the writer holds a byte
	assert.GreaterOrEqual(t, n, 4)
	assert.LessOrEqual(t, n, 5)
	assert.GreaterOrEqual(t, elapsed, 6*time.Millisecond)
	assert.Equal(t, uint64(1), s.Stats().RetryTimeouts)
	assert.Equal(t, 0, s.AvailableForWrite())
}

func TestSessionWriteRetrySucceedsWhenSpaceFrees(t *testing.T) {
	d := newFakeDriver()
	d.stalled = true
	s := newTestSession(t, d, WithBufferSize(2))

	require.Eventually(t, func() bool {
		_ = s.outgoing.Push('x')
		return s.AvailableForWrite() == 0
	}, time.Second, time.Millisecond)

	go func() {
		time.Sleep(15 * time.Millisecond)
		d.set(func(f *fakeDriver) { f.stalled = false })
	}()

	// default budget is 11 polls of 5ms
	require.NoError(t, s.WriteByte('y'))
	require.Eventually(t, func() bool { return bytes.HasSuffix([]byte(d.written()), []byte("y")) },
		time.Second, time.Millisecond)
	assert.Equal(t, uint64(0), s.Stats().RetryTimeouts)
}

func TestSessionPrint(t *testing.T) {
	d := newFakeDriver()
	s := newTestSession(t, d)

	_, err := s.Print(42)
	require.NoError(t, err)
	_, err = s.Println(3.5)
	require.NoError(t, err)
	_, err = s.Println("done")
	require.NoError(t, err)

	s.Flush(time.Millisecond)
	require.Eventually(t, func() bool { return d.written() == "423.5\ndone\n" },
		time.Second, time.Millisecond)
}

func TestSessionFlush(t *testing.T) {
	d := newFakeDriver()
	s := newTestSession(t, d)

	_, err := s.WriteString("flush me")
	require.NoError(t, err)
	s.Flush(0)
	assert.Equal(t, 0, s.outgoing.Len())
}

func TestSessionFlushContextCancelled(t *testing.T) {
	d := newFakeDriver()
	d.stalled = true
	s := newTestSession(t, d)

	_, err := s.WriteString("stuck")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.FlushContext(ctx, time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSessionClearBuffer(t *testing.T) {
	d := newFakeDriver()
	d.stalled = true
	s := newTestSession(t, d)

	d.inject("incoming")
	waitAvailable(t, s, 8)
	_, err := s.WriteString("outgoing")
	require.NoError(t, err)

	s.ClearBuffer()
	assert.Equal(t, 0, s.Available())
	assert.Equal(t, DefaultBufferSize, s.AvailableForWrite())
}

func TestSessionSetTimeout(t *testing.T) {
	d := newFakeDriver()
	s := newTestSession(t, d)

	want := Timeouts{
		ReadInterval:      time.Millisecond,
		ReadTotalConstant: 2 * time.Millisecond,
	}
	require.NoError(t, s.SetTimeout(want))
	assert.Equal(t, want, s.Timeouts())
	d.set(func(f *fakeDriver) { assert.Equal(t, want, f.timeouts) })

	err := s.SetTimeout(Timeouts{ReadInterval: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	d.set(func(f *fakeDriver) { f.setErr = errors.New("rejected") })
	err = s.SetTimeout(DefaultTimeouts())
	assert.ErrorIs(t, err, ErrConfigurationFailed)
	assert.Equal(t, want, s.Timeouts())
}

func TestSessionClose(t *testing.T) {
	d := newFakeDriver()
	s := newTestSession(t, d)

	d.inject("kept")
	waitAvailable(t, s, 4)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, d.closeCount())

	assert.ErrorIs(t, s.WriteByte('x'), ErrSessionClosed)
	assert.ErrorIs(t, s.SetTimeout(DefaultTimeouts()), ErrSessionClosed)
	assert.Equal(t, "kept", s.ReadString())
}

func TestSessionCloseIsBoundedWithUnsentOutput(t *testing.T) {
	d := newFakeDriver()
	d.stalled = true
	s := newTestSession(t, d, WithBufferSize(8))

	_, err := s.WriteString("pending!")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Close() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close() did not return")
	}
	assert.Equal(t, "", d.written())
}

func TestSessionCloseUnblocksWriter(t *testing.T) {
	d := newFakeDriver()
	d.stalled = true
	s, err := NewSession(d, WithLogger(quietLogger()), WithBufferSize(1),
		WithWriteRetry(50*time.Millisecond, 100))
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := s.WriteString("abc")
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("Write() still blocked after Close()")
	}
}

func TestNewSessionRejectsBadOptions(t *testing.T) {
	d := newFakeDriver()
	_, err := NewSession(d, WithBufferSize(0))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 0, d.closeCount())

	d.setErr = errors.New("no")
	_, err = NewSession(d, WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrConfigurationFailed)
}

func TestOpenUsesDriverHook(t *testing.T) {
	d := newFakeDriver()
	orig := openDriver
	t.Cleanup(func() { openDriver = orig })

	var gotDevice string
	var gotConfig Config
	openDriver = func(device string, config Config) (Driver, error) {
		gotDevice, gotConfig = device, config
		return d, nil
	}

	s, err := Open("/dev/ttyFAKE0", WithBaudRate(115200), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, "/dev/ttyFAKE0", gotDevice)
	assert.Equal(t, 115200, gotConfig.BaudRate)
	assert.Equal(t, "/dev/ttyFAKE0", s.Name())
	assert.Equal(t, StateOpen, s.State())
}

func TestOpenFailures(t *testing.T) {
	orig := openDriver
	t.Cleanup(func() { openDriver = orig })

	openDriver = func(string, Config) (Driver, error) {
		return nil, ErrDeviceOpenFailed
	}
	_, err := Open("/dev/ttyFAKE1", WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrDeviceOpenFailed)

	d := newFakeDriver()
	d.setErr = errors.New("unsupported")
	openDriver = func(string, Config) (Driver, error) { return d, nil }
	_, err = Open("/dev/ttyFAKE1", WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrConfigurationFailed)
	assert.Equal(t, 1, d.closeCount(), "driver must be closed when setup fails")

	_, err = Open("/dev/ttyFAKE1", WithBaudRate(12345))
	assert.ErrorIs(t, err, ErrInvalidBaudRate)
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUninitialized, "uninitialized"},
		{StateOpen, "open"},
		{StateClosed, "closed"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
