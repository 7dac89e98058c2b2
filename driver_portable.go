package serial

import (
	"errors"
	"fmt"
	"sync"
	"time"

	bugst "go.bug.st/serial"
)

// portableDriver wraps go.bug.st/serial for platforms without the native
// termios driver. The library exposes a single read timeout, so each Read
// sets it to ReadTotal(len(p)); the interval timeout is not applied. Writes
// are not bounded by the write timeouts.
type portableDriver struct {
	mu          sync.RWMutex
	port        bugst.Port
	timeouts    Timeouts
	readTimeout time.Duration // last value handed to SetReadTimeout
	closed      bool
}

var _ Driver = (*portableDriver)(nil)

// openPortPortable is a hook for tests
var openPortPortable = func(device string, mode *bugst.Mode) (bugst.Port, error) {
	return bugst.Open(device, mode)
}

func portableMode(config Config) (*bugst.Mode, error) {
	mode := &bugst.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
	}

	switch config.Parity {
	case ParityNone:
		mode.Parity = bugst.NoParity
	case ParityOdd:
		mode.Parity = bugst.OddParity
	case ParityEven:
		mode.Parity = bugst.EvenParity
	case ParityMark:
		mode.Parity = bugst.MarkParity
	case ParitySpace:
		mode.Parity = bugst.SpaceParity
	default:
		return nil, ErrInvalidConfig
	}

	switch config.StopBits {
	case StopBitsOne:
		mode.StopBits = bugst.OneStopBit
	case StopBitsOnePointFive:
		mode.StopBits = bugst.OnePointFiveStopBits
	case StopBitsTwo:
		mode.StopBits = bugst.TwoStopBits
	default:
		return nil, ErrInvalidConfig
	}

	return mode, nil
}

func openPortable(device string, config Config) (Driver, error) {
	mode, err := portableMode(config)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigurationFailed, device, err)
	}

	port, err := openPortPortable(device, mode)
	if err != nil {
		return nil, mapPortError(device, err)
	}

	d := &portableDriver{port: port, timeouts: config.Timeouts}
	return d, nil
}

func mapPortError(device string, err error) error {
	var portErr *bugst.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case bugst.PortNotFound:
			return fmt.Errorf("%w: %w: %s", ErrDeviceOpenFailed, ErrDeviceNotFound, device)
		case bugst.InvalidSpeed, bugst.InvalidDataBits, bugst.InvalidParity,
			bugst.InvalidStopBits, bugst.InvalidTimeoutValue:
			return fmt.Errorf("%w: %s: %w", ErrConfigurationFailed, device, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrDeviceOpenFailed, device, err)
}

// Read returns whatever arrives within ReadTotal(len(p))
func (d *portableDriver) Read(p []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, ErrPortClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	timeout := d.timeouts.ReadTotal(len(p))
	if timeout <= 0 {
		timeout = idleWait
	}
	if timeout != d.readTimeout {
		if err := d.port.SetReadTimeout(timeout); err != nil {
			return 0, err
		}
		d.readTimeout = timeout
	}

	return d.port.Read(p)
}

func (d *portableDriver) Write(p []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, ErrPortClosed
	}
	return d.port.Write(p)
}

func (d *portableDriver) SetTimeouts(t Timeouts) error {
	if err := t.validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrPortClosed
	}
	d.timeouts = t
	d.readTimeout = 0
	return nil
}

func (d *portableDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrPortClosed
	}
	d.closed = true
	return d.port.Close()
}
