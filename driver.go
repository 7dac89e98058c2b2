package serial

import "time"

// idleWait bounds a device wait when the configured budget is zero, so the
// session goroutines keep observing their stop flags.
const idleWait = 10 * time.Millisecond

// Driver performs raw, chunked I/O against a serial device. Sessions use it
// from exactly two goroutines (one reading, one writing) plus SetTimeouts and
// Close, so implementations must allow a Read and a Write to run concurrently.
type Driver interface {
	// Read fills p with whatever arrives within the configured read timeout.
	// It returns 0, nil when nothing arrived and must never block longer than
	// Timeouts.ReadTotal(len(p)).
	Read(p []byte) (int, error)

	// Write hands p to the device and returns how many bytes were accepted
	// within Timeouts.WriteTotal(len(p)).
	Write(p []byte) (int, error)

	// SetTimeouts applies new device timeouts.
	SetTimeouts(t Timeouts) error

	// Close releases the device.
	Close() error
}

// openDriver is a hook for tests (overridden in unit tests).
var openDriver = func(device string, config Config) (Driver, error) {
	switch config.Backend {
	case BackendPortable:
		return openPortable(device, config)
	default:
		return openNative(device, config)
	}
}
