package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// nativeDriver talks termios directly. Reads and writes are non-blocking at
// the fd level (VMIN=0, VTIME=0) and bounded with poll(2) using the session
// timeouts.
type nativeDriver struct {
	mu       sync.RWMutex
	fd       int
	timeouts Timeouts
	closed   bool
}

var _ Driver = (*nativeDriver)(nil)

var baudRates = map[int]uint32{
	50:      unix.B50,
	75:      unix.B75,
	110:     unix.B110,
	134:     unix.B134,
	150:     unix.B150,
	200:     unix.B200,
	300:     unix.B300,
	600:     unix.B600,
	1200:    unix.B1200,
	1800:    unix.B1800,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	2500000: unix.B2500000,
	3000000: unix.B3000000,
	3500000: unix.B3500000,
	4000000: unix.B4000000,
}

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	if b, ok := baudRates[rate]; ok {
		return b, nil
	}
	return 0, ErrInvalidBaudRate
}

func openNative(device string, config Config) (Driver, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil, fmt.Errorf("%w: %w: %s", ErrDeviceOpenFailed, ErrDeviceNotFound, device)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceOpenFailed, device, err)
	}

	if err := configurePort(fd, config); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigurationFailed, device, err)
	}

	return &nativeDriver{fd: fd, timeouts: config.Timeouts}, nil
}

// configurePort puts the tty in raw mode with the requested framing
func configurePort(fd int, config Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}

	termios.Cflag = unix.CREAD | unix.CLOCAL
	termios.Iflag = 0
	termios.Oflag = 0
	termios.Lflag = 0

	// Reads return immediately; waiting is done with poll.
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0

	baudRate, err := getBaudRate(config.BaudRate)
	if err != nil {
		return err
	}
	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baudRate
	termios.Ispeed = baudRate
	termios.Ospeed = baudRate

	switch config.DataBits {
	case 5:
		termios.Cflag |= unix.CS5
	case 6:
		termios.Cflag |= unix.CS6
	case 7:
		termios.Cflag |= unix.CS7
	case 8:
		termios.Cflag |= unix.CS8
	default:
		return ErrInvalidConfig
	}

	switch config.StopBits {
	case StopBitsOne:
	case StopBitsTwo:
		termios.Cflag |= unix.CSTOPB
	default:
		// termios has no 1.5 stop bit setting
		return fmt.Errorf("%w: %s stop bits not supported by termios", ErrInvalidConfig, config.StopBits)
	}

	switch config.Parity {
	case ParityNone:
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	case ParityMark:
		termios.Cflag |= unix.PARENB | unix.CMSPAR | unix.PARODD
	case ParitySpace:
		termios.Cflag |= unix.PARENB | unix.CMSPAR
	default:
		return ErrInvalidConfig
	}

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}
	return nil
}

// pollFd waits up to timeout for events on fd
func pollFd(fd int, events int16, timeout time.Duration) (bool, error) {
	ms := int(timeout / time.Millisecond)
	if ms == 0 && timeout > 0 {
		ms = 1
	}
	fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
	for {
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}

// Read reads from the serial port, honouring the total and interval timeouts
func (d *nativeDriver) Read(p []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, ErrPortClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	budget := d.timeouts.ReadTotal(len(p))
	if budget <= 0 {
		budget = idleWait
	}
	deadline := time.Now().Add(budget)

	n := 0
	for n < len(p) {
		wait := time.Until(deadline)
		if n > 0 && d.timeouts.ReadInterval > 0 && d.timeouts.ReadInterval < wait {
			wait = d.timeouts.ReadInterval
		}
		if wait <= 0 {
			break
		}

		ready, err := pollFd(d.fd, unix.POLLIN, wait)
		if err != nil {
			return n, err
		}
		if !ready {
			break
		}

		m, err := unix.Read(d.fd, p[n:])
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, err
		}
		if m == 0 {
			// poll reported readiness but there is nothing: hangup
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		n += m
	}
	return n, nil
}

// Write writes to the serial port within the write timeout. A budget that
// expires with bytes still pending returns os.ErrDeadlineExceeded along with
// the count that made it.
func (d *nativeDriver) Write(data []byte) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return 0, ErrPortClosed
	}

	budget := d.timeouts.WriteTotal(len(data))
	if budget <= 0 {
		budget = idleWait
	}
	deadline := time.Now().Add(budget)

	n := 0
	for n < len(data) {
		wait := time.Until(deadline)
		if wait <= 0 {
			return n, os.ErrDeadlineExceeded
		}
		ready, err := pollFd(d.fd, unix.POLLOUT, wait)
		if err != nil {
			return n, err
		}
		if !ready {
			return n, os.ErrDeadlineExceeded
		}

		m, err := unix.Write(d.fd, data[n:])
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}

// SetTimeouts replaces the timeouts used by subsequent reads and writes
func (d *nativeDriver) SetTimeouts(t Timeouts) error {
	if err := t.validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrPortClosed
	}
	d.timeouts = t
	return nil
}

// Close closes the serial port
func (d *nativeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrPortClosed
	}
	d.closed = true
	return unix.Close(d.fd)
}
