package cmd

import (
	"testing"
	"time"

	"github.com/allbin/go-serialstream"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func applyOptions(t *testing.T, opts []serial.Option) serial.Config {
	t.Helper()
	c := serial.DefaultConfig()
	for _, opt := range opts {
		require.NoError(t, opt(&c))
	}
	return c
}

func testViper() *viper.Viper {
	v := viper.New()
	defaults := serial.DefaultConfig()
	v.SetDefault("baud", defaults.BaudRate)
	v.SetDefault("data-bits", defaults.DataBits)
	v.SetDefault("parity", "none")
	v.SetDefault("stop-bits", "1")
	v.SetDefault("read-interval", defaults.Timeouts.ReadInterval)
	v.SetDefault("read-constant", defaults.Timeouts.ReadTotalConstant)
	v.SetDefault("read-multiplier", defaults.Timeouts.ReadTotalMultiplier)
	v.SetDefault("write-constant", defaults.Timeouts.WriteTotalConstant)
	v.SetDefault("write-multiplier", defaults.Timeouts.WriteTotalMultiplier)
	v.SetDefault("buffer-size", defaults.BufferSize)
	v.SetDefault("backend", "native")
	return v
}

func TestSessionOptionsDefaults(t *testing.T) {
	opts, err := sessionOptions(testViper())
	require.NoError(t, err)

	c := applyOptions(t, opts)
	defaults := serial.DefaultConfig()
	assert.Equal(t, defaults.BaudRate, c.BaudRate)
	assert.Equal(t, defaults.Timeouts, c.Timeouts)
	assert.Equal(t, defaults.BufferSize, c.BufferSize)
	assert.Equal(t, serial.BackendNative, c.Backend)
}

func TestSessionOptionsOverrides(t *testing.T) {
	v := testViper()
	v.Set("baud", 9600)
	v.Set("data-bits", 7)
	v.Set("parity", "even")
	v.Set("stop-bits", "2")
	v.Set("read-interval", "20ms")
	v.Set("write-constant", 0)
	v.Set("buffer-size", 256)
	v.Set("backend", "portable")

	opts, err := sessionOptions(v)
	require.NoError(t, err)

	c := applyOptions(t, opts)
	assert.Equal(t, 9600, c.BaudRate)
	assert.Equal(t, 7, c.DataBits)
	assert.Equal(t, serial.ParityEven, c.Parity)
	assert.Equal(t, serial.StopBitsTwo, c.StopBits)
	assert.Equal(t, 20*time.Millisecond, c.Timeouts.ReadInterval)
	assert.Equal(t, time.Duration(0), c.Timeouts.WriteTotalConstant)
	assert.Equal(t, 256, c.BufferSize)
	assert.Equal(t, serial.BackendPortable, c.Backend)
}

func TestSessionOptionsRejectsUnknownNames(t *testing.T) {
	for _, key := range []string{"parity", "stop-bits", "backend"} {
		t.Run(key, func(t *testing.T) {
			v := testViper()
			v.Set(key, "bogus")
			_, err := sessionOptions(v)
			assert.ErrorIs(t, err, serial.ErrInvalidConfig)
		})
	}
}

func TestSessionOptionsRejectsBadBaud(t *testing.T) {
	v := testViper()
	v.Set("baud", 12345)

	opts, err := sessionOptions(v)
	require.NoError(t, err)

	c := serial.DefaultConfig()
	var firstErr error
	for _, opt := range opts {
		if err := opt(&c); err != nil {
			firstErr = err
			break
		}
	}
	assert.ErrorIs(t, firstErr, serial.ErrInvalidBaudRate)
}

func TestParseParity(t *testing.T) {
	tests := map[string]serial.Parity{
		"none":  serial.ParityNone,
		"N":     serial.ParityNone,
		"odd":   serial.ParityOdd,
		"Even":  serial.ParityEven,
		"mark":  serial.ParityMark,
		"space": serial.ParitySpace,
		"s":     serial.ParitySpace,
	}
	for in, want := range tests {
		got, err := parseParity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseStopBits(t *testing.T) {
	got, err := parseStopBits("1.5")
	require.NoError(t, err)
	assert.Equal(t, serial.StopBitsOnePointFive, got)

	_, err = parseStopBits("3")
	assert.ErrorIs(t, err, serial.ErrInvalidConfig)
}

func TestLineEnding(t *testing.T) {
	tests := map[string]string{"lf": "\n", "CRLF": "\r\n", "cr": "\r", "none": ""}
	for in, want := range tests {
		got, err := lineEnding(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := lineEnding("nl")
	assert.Error(t, err)
}
