package serial

import "errors"

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound      = errors.New("serial device not found")
	ErrDeviceOpenFailed    = errors.New("failed to open serial device")
	ErrConfigurationFailed = errors.New("serial device rejected configuration")
	ErrInvalidBaudRate     = errors.New("invalid baud rate")
	ErrInvalidConfig       = errors.New("invalid serial configuration")
	ErrPortClosed          = errors.New("serial port is closed")

	// Buffer errors
	ErrOverflow          = errors.New("buffer overflow during push operation")
	ErrUnderflow         = errors.New("buffer empty during pop operation")
	ErrWriteRetryTimeout = errors.New("outgoing buffer stayed full for the whole retry budget")

	// Session errors
	ErrSessionClosed = errors.New("serial session is closed")
)
