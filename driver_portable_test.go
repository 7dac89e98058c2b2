package serial

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bugst "go.bug.st/serial"
)

// fakePort implements the parts of bugst.Port the portable driver uses
type fakePort struct {
	bugst.Port

	mu       sync.Mutex
	rx       []byte
	tx       []byte
	timeouts []time.Duration
	closed   bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	p.mu.Unlock()
	if n == 0 {
		// stand in for the read timeout
		time.Sleep(time.Millisecond)
	}
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tx = append(p.tx, b...)
	return len(b), nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeouts = append(p.timeouts, t)
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func withFakePort(t *testing.T, port *fakePort) {
	t.Helper()
	orig := openPortPortable
	openPortPortable = func(string, *bugst.Mode) (bugst.Port, error) {
		return port, nil
	}
	t.Cleanup(func() { openPortPortable = orig })
}

func TestPortableMode(t *testing.T) {
	config := DefaultConfig()
	config.BaudRate = 9600
	config.DataBits = 7
	config.Parity = ParityMark
	config.StopBits = StopBitsOnePointFive

	mode, err := portableMode(config)
	require.NoError(t, err)
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, 7, mode.DataBits)
	assert.Equal(t, bugst.MarkParity, mode.Parity)
	assert.Equal(t, bugst.OnePointFiveStopBits, mode.StopBits)

	config.Parity = Parity(42)
	_, err = portableMode(config)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPortableDriverReadWrite(t *testing.T) {
	port := &fakePort{rx: []byte("PONG")}
	withFakePort(t, port)

	config := DefaultConfig()
	d, err := openPortable("/dev/ttyFAKE0", config)
	require.NoError(t, err)

	n, err := d.Write([]byte("PING"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "PING", string(port.tx))

	buf := make([]byte, 8)
	n, err = d.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "PONG", string(buf[:n]))

	// Same size, same budget: the timeout is not set again
	_, _ = d.Read(buf)
	assert.Equal(t, []time.Duration{config.Timeouts.ReadTotal(8)}, port.timeouts)

	require.NoError(t, d.SetTimeouts(Timeouts{}))
	_, _ = d.Read(buf)
	assert.Equal(t, idleWait, port.timeouts[len(port.timeouts)-1])

	require.NoError(t, d.Close())
	assert.True(t, port.closed)
	assert.ErrorIs(t, d.Close(), ErrPortClosed)
	_, err = d.Read(buf)
	assert.ErrorIs(t, err, ErrPortClosed)
	_, err = d.Write(buf)
	assert.ErrorIs(t, err, ErrPortClosed)
	assert.ErrorIs(t, d.SetTimeouts(DefaultTimeouts()), ErrPortClosed)
}

func TestPortableOpenError(t *testing.T) {
	orig := openPortPortable
	openPortPortable = func(string, *bugst.Mode) (bugst.Port, error) {
		return nil, errors.New("permission denied")
	}
	t.Cleanup(func() { openPortPortable = orig })

	_, err := openPortable("/dev/ttyFAKE0", DefaultConfig())
	assert.ErrorIs(t, err, ErrDeviceOpenFailed)
	assert.ErrorContains(t, err, "permission denied")
}

func TestSessionOverPortableDriver(t *testing.T) {
	port := &fakePort{rx: []byte("hello")}
	withFakePort(t, port)

	s, err := Open("/dev/ttyFAKE0", WithBackend(BackendPortable), WithLogger(quietLogger()))
	require.NoError(t, err)
	defer s.Close()

	require.Eventually(t, func() bool { return s.Available() == 5 }, time.Second, time.Millisecond)
	assert.Equal(t, "hello", s.ReadString())
	assert.Equal(t, "/dev/ttyFAKE0", s.Name())
}
