package serial

import (
	"log/slog"
	"time"
)

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "N"
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	case ParityMark:
		return "M"
	case ParitySpace:
		return "S"
	default:
		return "?"
	}
}

// StopBits represents the number of stop bits
type StopBits int

const (
	StopBitsOne StopBits = iota
	StopBitsOnePointFive
	StopBitsTwo
)

func (s StopBits) String() string {
	switch s {
	case StopBitsOne:
		return "1"
	case StopBitsOnePointFive:
		return "1.5"
	case StopBitsTwo:
		return "2"
	default:
		return "?"
	}
}

// Backend selects which driver Open uses to reach the device
type Backend int

const (
	BackendNative   Backend = iota // termios via golang.org/x/sys (Linux)
	BackendPortable                // go.bug.st/serial (any platform it supports)
)

func (b Backend) String() string {
	switch b {
	case BackendNative:
		return "native"
	case BackendPortable:
		return "portable"
	default:
		return "unknown"
	}
}

const (
	DefaultBufferSize     = 1024
	DefaultReadChunkSize  = 1
	DefaultWriteChunkSize = 1
	DefaultRetryInterval  = 5 * time.Millisecond
	DefaultRetryAttempts  = 11
)

// Timeouts mirrors the classic COMMTIMEOUTS model. A read of n bytes gives up
// after ReadTotal(n); once the first byte arrived it also gives up when the
// line stays idle for ReadInterval. A write of n bytes gives up after
// WriteTotal(n).
type Timeouts struct {
	ReadInterval         time.Duration
	ReadTotalMultiplier  time.Duration
	ReadTotalConstant    time.Duration
	WriteTotalConstant   time.Duration
	WriteTotalMultiplier time.Duration
}

// DefaultTimeouts returns the timeouts used when none are configured
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ReadInterval:         50 * time.Millisecond,
		ReadTotalMultiplier:  10 * time.Millisecond,
		ReadTotalConstant:    50 * time.Millisecond,
		WriteTotalConstant:   50 * time.Millisecond,
		WriteTotalMultiplier: 10 * time.Millisecond,
	}
}

// ReadTotal is the total read budget for a request of n bytes
func (t Timeouts) ReadTotal(n int) time.Duration {
	return t.ReadTotalConstant + time.Duration(n)*t.ReadTotalMultiplier
}

// WriteTotal is the total write budget for a request of n bytes
func (t Timeouts) WriteTotal(n int) time.Duration {
	return t.WriteTotalConstant + time.Duration(n)*t.WriteTotalMultiplier
}

func (t Timeouts) validate() error {
	if t.ReadInterval < 0 || t.ReadTotalMultiplier < 0 || t.ReadTotalConstant < 0 ||
		t.WriteTotalConstant < 0 || t.WriteTotalMultiplier < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Config holds the configuration for a serial session
type Config struct {
	BaudRate int
	DataBits int
	StopBits StopBits
	Parity   Parity
	Timeouts Timeouts

	BufferSize     int           // capacity of each ring buffer
	ReadChunkSize  int           // bytes requested from the device per read
	WriteChunkSize int           // bytes handed to the device per write
	RetryInterval  time.Duration // poll interval while the outgoing buffer is full
	RetryAttempts  int           // polls before giving up with ErrWriteRetryTimeout

	Backend Backend
	Name    string       // label for logs and metrics; Open defaults it to the device path
	Logger  *slog.Logger // nil uses the package logger
}

// Option is a functional option for configuring a serial session
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaudRate:       9600,
		DataBits:       8,
		StopBits:       StopBitsOne,
		Parity:         ParityNone,
		Timeouts:       DefaultTimeouts(),
		BufferSize:     DefaultBufferSize,
		ReadChunkSize:  DefaultReadChunkSize,
		WriteChunkSize: DefaultWriteChunkSize,
		RetryInterval:  DefaultRetryInterval,
		RetryAttempts:  DefaultRetryAttempts,
		Backend:        BackendNative,
	}
}

// StandardBaudRates lists the accepted baud rates in ascending order
var StandardBaudRates = []int{
	50, 75, 110, 134, 150, 200, 300, 600, 1200, 1800, 2400, 4800, 9600,
	14400, 19200, 38400, 57600, 115200, 128000, 230400, 256000, 460800,
	500000, 576000, 921600, 1000000, 1152000, 1500000, 2000000, 2500000,
	3000000, 3500000, 4000000,
}

func isStandardBaudRate(rate int) bool {
	for _, r := range StandardBaudRates {
		if r == rate {
			return true
		}
	}
	return false
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if !isStandardBaudRate(rate) {
			return ErrInvalidBaudRate
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits
func WithStopBits(bits StopBits) Option {
	return func(c *Config) error {
		if bits < StopBitsOne || bits > StopBitsTwo {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *Config) error {
		if parity < ParityNone || parity > ParitySpace {
			return ErrInvalidConfig
		}
		c.Parity = parity
		return nil
	}
}

// WithTimeouts sets the device timeouts
func WithTimeouts(t Timeouts) Option {
	return func(c *Config) error {
		if err := t.validate(); err != nil {
			return err
		}
		c.Timeouts = t
		return nil
	}
}

// WithBufferSize sets the capacity of the incoming and outgoing ring buffers
func WithBufferSize(size int) Option {
	return func(c *Config) error {
		if size <= 0 {
			return ErrInvalidConfig
		}
		c.BufferSize = size
		return nil
	}
}

// WithReadChunkSize sets how many bytes the reader requests per device call
func WithReadChunkSize(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return ErrInvalidConfig
		}
		c.ReadChunkSize = n
		return nil
	}
}

// WithWriteChunkSize sets how many bytes the writer hands the device per call
func WithWriteChunkSize(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return ErrInvalidConfig
		}
		c.WriteChunkSize = n
		return nil
	}
}

// WithWriteRetry sets the poll interval and attempt count used by WriteByte
// while the outgoing buffer is full
func WithWriteRetry(interval time.Duration, attempts int) Option {
	return func(c *Config) error {
		if interval <= 0 || attempts <= 0 {
			return ErrInvalidConfig
		}
		c.RetryInterval = interval
		c.RetryAttempts = attempts
		return nil
	}
}

// WithBackend selects the device driver used by Open
func WithBackend(b Backend) Option {
	return func(c *Config) error {
		if b != BackendNative && b != BackendPortable {
			return ErrInvalidConfig
		}
		c.Backend = b
		return nil
	}
}

// WithName sets the label a session uses in logs and metrics
func WithName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return ErrInvalidConfig
		}
		c.Name = name
		return nil
	}
}

// WithLogger routes session logging to l
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) error {
		c.Logger = l
		return nil
	}
}

func buildConfig(opts []Option) (Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return Config{}, err
		}
	}
	return config, nil
}
