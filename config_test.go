package serial

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.BaudRate != 9600 {
		t.Errorf("Expected BaudRate 9600, got %d", config.BaudRate)
	}

	if config.DataBits != 8 {
		t.Errorf("Expected DataBits 8, got %d", config.DataBits)
	}

	if config.StopBits != StopBitsOne {
		t.Errorf("Expected StopBits 1, got %v", config.StopBits)
	}

	if config.Parity != ParityNone {
		t.Errorf("Expected Parity None, got %v", config.Parity)
	}

	if config.BufferSize != 1024 {
		t.Errorf("Expected BufferSize 1024, got %d", config.BufferSize)
	}

	if config.RetryInterval != 5*time.Millisecond || config.RetryAttempts != 11 {
		t.Errorf("Expected 11 retries every 5ms, got %d every %v", config.RetryAttempts, config.RetryInterval)
	}

	if config.Timeouts != DefaultTimeouts() {
		t.Errorf("Expected default timeouts, got %+v", config.Timeouts)
	}
}

func TestFunctionalOptions(t *testing.T) {
	config, err := buildConfig([]Option{
		WithBaudRate(115200),
		WithDataBits(7),
		WithStopBits(StopBitsTwo),
		WithParity(ParityMark),
		WithBufferSize(64),
		WithReadChunkSize(16),
		WithWriteChunkSize(8),
		WithWriteRetry(time.Millisecond, 3),
		WithBackend(BackendPortable),
		WithName("gps"),
	})
	if err != nil {
		t.Fatalf("buildConfig failed: %v", err)
	}

	if config.BaudRate != 115200 {
		t.Errorf("Expected BaudRate 115200, got %d", config.BaudRate)
	}
	if config.DataBits != 7 {
		t.Errorf("Expected DataBits 7, got %d", config.DataBits)
	}
	if config.StopBits != StopBitsTwo {
		t.Errorf("Expected StopBits 2, got %v", config.StopBits)
	}
	if config.Parity != ParityMark {
		t.Errorf("Expected Parity Mark, got %v", config.Parity)
	}
	if config.BufferSize != 64 || config.ReadChunkSize != 16 || config.WriteChunkSize != 8 {
		t.Errorf("Unexpected sizes: buffer %d, read chunk %d, write chunk %d",
			config.BufferSize, config.ReadChunkSize, config.WriteChunkSize)
	}
	if config.RetryInterval != time.Millisecond || config.RetryAttempts != 3 {
		t.Errorf("Expected 3 retries every 1ms, got %d every %v", config.RetryAttempts, config.RetryInterval)
	}
	if config.Backend != BackendPortable {
		t.Errorf("Expected portable backend, got %v", config.Backend)
	}
	if config.Name != "gps" {
		t.Errorf("Expected Name gps, got %q", config.Name)
	}
}

func TestInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want error
	}{
		{"baud rate", WithBaudRate(123456), ErrInvalidBaudRate},
		{"data bits", WithDataBits(9), ErrInvalidConfig},
		{"stop bits", WithStopBits(StopBits(3)), ErrInvalidConfig},
		{"parity", WithParity(Parity(7)), ErrInvalidConfig},
		{"buffer size", WithBufferSize(0), ErrInvalidConfig},
		{"read chunk", WithReadChunkSize(-1), ErrInvalidConfig},
		{"write chunk", WithWriteChunkSize(0), ErrInvalidConfig},
		{"retry interval", WithWriteRetry(0, 11), ErrInvalidConfig},
		{"retry attempts", WithWriteRetry(time.Millisecond, 0), ErrInvalidConfig},
		{"backend", WithBackend(Backend(5)), ErrInvalidConfig},
		{"empty name", WithName(""), ErrInvalidConfig},
		{"negative timeout", WithTimeouts(Timeouts{WriteTotalConstant: -time.Second}), ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			if err := tt.opt(&config); !errors.Is(err, tt.want) {
				t.Errorf("option error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuildConfigStopsAtFirstError(t *testing.T) {
	config, err := buildConfig([]Option{WithBaudRate(57600), WithDataBits(4)})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("buildConfig error = %v, want %v", err, ErrInvalidConfig)
	}
	if config.BaudRate != 0 {
		t.Errorf("Expected zero Config on error, got BaudRate %d", config.BaudRate)
	}
}

func TestTimeoutBudgets(t *testing.T) {
	tm := DefaultTimeouts()

	tests := []struct {
		n         int
		wantRead  time.Duration
		wantWrite time.Duration
	}{
		{0, 50 * time.Millisecond, 50 * time.Millisecond},
		{1, 60 * time.Millisecond, 60 * time.Millisecond},
		{16, 210 * time.Millisecond, 210 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := tm.ReadTotal(tt.n); got != tt.wantRead {
			t.Errorf("ReadTotal(%d) = %v, want %v", tt.n, got, tt.wantRead)
		}
		if got := tm.WriteTotal(tt.n); got != tt.wantWrite {
			t.Errorf("WriteTotal(%d) = %v, want %v", tt.n, got, tt.wantWrite)
		}
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{ParityNone.String(), "N"},
		{ParityOdd.String(), "O"},
		{ParityEven.String(), "E"},
		{ParityMark.String(), "M"},
		{ParitySpace.String(), "S"},
		{StopBitsOne.String(), "1"},
		{StopBitsOnePointFive.String(), "1.5"},
		{StopBitsTwo.String(), "2"},
		{BackendNative.String(), "native"},
		{BackendPortable.String(), "portable"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}
