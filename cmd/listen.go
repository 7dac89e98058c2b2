/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allbin/go-serialstream/internal/logging"
	"github.com/spf13/cobra"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen <port>",
	Short: "Print received lines as they arrive",
	Long: `Open a session and print each received line, one per output line.

Lines are split on the terminator byte (newline by default), which is not
printed. Non-printable bytes are shown as '·'. A partial line is printed once
no more bytes arrive for --idle.

Example usage:
  serialstream listen /dev/ttyUSB0
  serialstream listen /dev/ttyUSB0 --baud 9600 --terminator 0x0d
  serialstream listen /dev/ttyUSB0 --no-timestamps`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		poll, _ := cmd.Flags().GetDuration("poll")
		idle, _ := cmd.Flags().GetDuration("idle")
		noTimestamps, _ := cmd.Flags().GetBool("no-timestamps")
		termFlag, _ := cmd.Flags().GetString("terminator")

		term, err := parseTerminator(termFlag)
		if err != nil {
			return err
		}

		s, err := openSession(args[0])
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		lines := runListen(ctx, s, cmd.OutOrStdout(), listenOptions{
			term:       term,
			poll:       poll,
			idle:       idle,
			timestamps: !noTimestamps,
		})
		st := s.Stats()
		logging.L().Info("listen_done", "device", args[0], "lines", lines, "rx_bytes", st.RxBytes, "rx_dropped", st.RxDropped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().Duration("poll", 10*time.Millisecond, "How often the incoming buffer is drained")
	listenCmd.Flags().Duration("idle", 250*time.Millisecond, "Print a partial line after this long without data")
	listenCmd.Flags().String("terminator", "\\n", "Line terminator: a single character, \\n, \\r or a hex byte like 0x0d")
	listenCmd.Flags().Bool("no-timestamps", false, "Hide timestamps from output")
}

type listenOptions struct {
	term       byte
	poll       time.Duration
	idle       time.Duration
	timestamps bool
}

func parseTerminator(s string) (byte, error) {
	switch s {
	case "\\n", "\n":
		return '\n', nil
	case "\\r", "\r":
		return '\r', nil
	case "\\0":
		return 0, nil
	}
	if len(s) == 1 {
		return s[0], nil
	}
	b, err := parseHex(s)
	if err != nil || len(b) != 1 {
		return 0, fmt.Errorf("terminator must be a single byte, got %q", s)
	}
	return b[0], nil
}

// runListen prints terminated lines from src until ctx ends and returns how
// many lines it printed
func runListen(ctx context.Context, src byteSource, w io.Writer, opts listenOptions) int {
	if opts.poll <= 0 {
		opts.poll = 10 * time.Millisecond
	}
	ticker := time.NewTicker(opts.poll)
	defer ticker.Stop()

	var pending []byte
	var lastData time.Time
	lines := 0

	emit := func(line []byte, at time.Time) {
		if opts.timestamps {
			fmt.Fprintf(w, "[%s] ", at.Format("15:04:05.000"))
		}
		fmt.Fprintln(w, printable(line, 0))
		lines++
	}

	for {
		select {
		case <-ctx.Done():
			pending = append(pending, src.ReadBytes(0)...)
			for len(pending) > 0 {
				i := bytes.IndexByte(pending, opts.term)
				if i < 0 {
					emit(pending, time.Now())
					break
				}
				emit(pending[:i], time.Now())
				pending = pending[i+1:]
			}
			return lines
		case now := <-ticker.C:
			if data := src.ReadBytes(0); len(data) > 0 {
				pending = append(pending, data...)
				lastData = now
			}
			for {
				i := bytes.IndexByte(pending, opts.term)
				if i < 0 {
					break
				}
				emit(pending[:i], now)
				pending = pending[i+1:]
			}
			if len(pending) > 0 && opts.idle > 0 && now.Sub(lastData) >= opts.idle {
				emit(pending, now)
				pending = nil
			}
		}
	}
}
