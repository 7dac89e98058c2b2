/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/allbin/go-serialstream"
	"github.com/allbin/go-serialstream/internal/logging"
	"github.com/allbin/go-serialstream/internal/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	logOutput  io.Closer
	metricsSrv *http.Server
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "serialstream",
	Short: "Buffered serial port toolkit",
	Long: `serialstream talks to serial devices through a buffered session: a reader
goroutine fills an incoming ring buffer and a writer goroutine drains an
outgoing one, so sends and receives never block on the wire.

Every setting can come from a flag, a SERIAL_* environment variable
(SERIAL_BAUD, SERIAL_READ_INTERVAL, ...) or a config file given with --config.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return err
		}
		if err := initLogging(); err != nil {
			return err
		}
		if addr := viper.GetString("metrics-addr"); addr != "" {
			metricsSrv = metrics.StartHTTP(addr)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if metricsSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(ctx)
		}
		if logOutput != nil {
			_ = logOutput.Close()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")

	defaults := serial.DefaultConfig()
	f.IntP("baud", "b", defaults.BaudRate, "Baud rate")
	f.Int("data-bits", defaults.DataBits, "Data bits: 5, 6, 7 or 8")
	f.String("parity", "none", "Parity: none, odd, even, mark, space")
	f.String("stop-bits", "1", "Stop bits: 1, 1.5 or 2")
	f.Duration("read-interval", defaults.Timeouts.ReadInterval, "Max idle gap between bytes of one read")
	f.Duration("read-constant", defaults.Timeouts.ReadTotalConstant, "Constant part of the read timeout")
	f.Duration("read-multiplier", defaults.Timeouts.ReadTotalMultiplier, "Per-byte part of the read timeout")
	f.Duration("write-constant", defaults.Timeouts.WriteTotalConstant, "Constant part of the write timeout")
	f.Duration("write-multiplier", defaults.Timeouts.WriteTotalMultiplier, "Per-byte part of the write timeout")
	f.Int("buffer-size", defaults.BufferSize, "Capacity of each ring buffer in bytes")
	f.String("backend", defaults.Backend.String(), "Device driver: native (termios) or portable (go.bug.st/serial)")
	f.String("log-level", "info", "Log level: debug, info, warn, error")
	f.String("log-format", "text", "Log format: text or json")
	f.String("log-file", "", "Write logs to this file instead of stderr")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")

	_ = viper.BindPFlags(f)
	viper.SetEnvPrefix("SERIAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// initConfig reads in config file if one was given
func initConfig() error {
	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}

func initLogging() error {
	level, err := logging.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return err
	}

	var w io.Writer = os.Stderr
	if path := viper.GetString("log-file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logOutput = f
		w = f
	}
	logging.Set(logging.New(viper.GetString("log-format"), level, w))
	return nil
}

// quietLogger is for full-screen commands, where stderr output would tear
// the display. Logs still go to --log-file when set.
func quietLogger() *slog.Logger {
	if viper.GetString("log-file") != "" {
		return logging.L()
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(s) {
	case "none", "n":
		return serial.ParityNone, nil
	case "odd", "o":
		return serial.ParityOdd, nil
	case "even", "e":
		return serial.ParityEven, nil
	case "mark", "m":
		return serial.ParityMark, nil
	case "space", "s":
		return serial.ParitySpace, nil
	}
	return serial.ParityNone, fmt.Errorf("%w: unknown parity %q", serial.ErrInvalidConfig, s)
}

func parseStopBits(s string) (serial.StopBits, error) {
	switch s {
	case "1":
		return serial.StopBitsOne, nil
	case "1.5":
		return serial.StopBitsOnePointFive, nil
	case "2":
		return serial.StopBitsTwo, nil
	}
	return serial.StopBitsOne, fmt.Errorf("%w: unknown stop bits %q", serial.ErrInvalidConfig, s)
}

func parseBackend(s string) (serial.Backend, error) {
	switch strings.ToLower(s) {
	case "native":
		return serial.BackendNative, nil
	case "portable":
		return serial.BackendPortable, nil
	}
	return serial.BackendNative, fmt.Errorf("%w: unknown backend %q", serial.ErrInvalidConfig, s)
}

// sessionOptions turns the resolved settings into session options
func sessionOptions(v *viper.Viper) ([]serial.Option, error) {
	parity, err := parseParity(v.GetString("parity"))
	if err != nil {
		return nil, err
	}
	stopBits, err := parseStopBits(v.GetString("stop-bits"))
	if err != nil {
		return nil, err
	}
	backend, err := parseBackend(v.GetString("backend"))
	if err != nil {
		return nil, err
	}

	return []serial.Option{
		serial.WithBaudRate(v.GetInt("baud")),
		serial.WithDataBits(v.GetInt("data-bits")),
		serial.WithParity(parity),
		serial.WithStopBits(stopBits),
		serial.WithTimeouts(serial.Timeouts{
			ReadInterval:         v.GetDuration("read-interval"),
			ReadTotalConstant:    v.GetDuration("read-constant"),
			ReadTotalMultiplier:  v.GetDuration("read-multiplier"),
			WriteTotalConstant:   v.GetDuration("write-constant"),
			WriteTotalMultiplier: v.GetDuration("write-multiplier"),
		}),
		serial.WithBufferSize(v.GetInt("buffer-size")),
		serial.WithBackend(backend),
	}, nil
}

// openSession opens portPath with the resolved settings plus extra
func openSession(portPath string, extra ...serial.Option) (*serial.Session, error) {
	opts, err := sessionOptions(viper.GetViper())
	if err != nil {
		return nil, err
	}
	s, err := serial.Open(portPath, append(opts, extra...)...)
	if err != nil {
		return nil, err
	}
	metrics.SetReadinessFunc(func() bool { return s.State() == serial.StateOpen })
	return s, nil
}
