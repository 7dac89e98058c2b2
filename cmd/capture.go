/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
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

// byteSource is the part of a session capture needs
type byteSource interface {
	ReadBytes(maxLen int) []byte
}

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <port> [output-file]",
	Short: "Capture serial data to a file",
	Long: `Capture incoming serial data to a file for later parsing.

Drains the session's incoming buffer every --poll interval and writes the
bytes to the output file, or to stdout when no file is given. Runs until
interrupted (Ctrl+C).

The output file is opened in append mode, allowing you to resume captures
without overwriting existing data. If the buffer fills up between polls,
bytes are dropped and reported in the summary; raise --buffer-size or lower
--poll for fast devices.

Example usage:
  serialstream capture /dev/ttyUSB0 data.log
  serialstream capture /dev/ttyUSB0 output.txt --baud 115200
  serialstream capture /dev/ttyUSB0 capture.log --console
  serialstream capture /dev/ttyUSB0 | hexdump -C`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := args[0]
		showConsole, _ := cmd.Flags().GetBool("console")
		poll, _ := cmd.Flags().GetDuration("poll")

		var out io.Writer = cmd.OutOrStdout()
		outputName := "stdout"
		if len(args) == 2 {
			file, err := os.OpenFile(args[1], os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open output file: %w", err)
			}
			defer file.Close()
			out = file
			outputName = args[1]
			if showConsole {
				out = io.MultiWriter(file, os.Stdout)
			}
		}

		s, err := openSession(portPath)
		if err != nil {
			return fmt.Errorf("failed to open port: %w", err)
		}
		defer s.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(os.Stderr, "Capturing data from %s to %s\n", portPath, outputName)
		fmt.Fprintf(os.Stderr, "Press Ctrl+C to stop\n\n")

		start := time.Now()
		written, err := runCapture(ctx, s, out, poll)

		st := s.Stats()
		logging.L().Info("capture_done",
			"device", portPath,
			"bytes", written,
			"dropped", st.RxDropped,
			"read_errors", st.ReadErrors,
			"duration", time.Since(start).Round(time.Millisecond))
		fmt.Fprintf(os.Stderr, "\nCapture complete: %d bytes written in %v (%d dropped)\n",
			written, time.Since(start).Round(time.Millisecond), st.RxDropped)
		return err
	},
}

func init() {
	rootCmd.AddCommand(captureCmd)

	captureCmd.Flags().BoolP("console", "c", false, "Also display incoming data on the console when writing to a file")
	captureCmd.Flags().Duration("poll", 10*time.Millisecond, "How often to drain the incoming buffer")
}

// runCapture copies everything src buffers to out until ctx ends, then drains
// what is left once more.
func runCapture(ctx context.Context, src byteSource, out io.Writer, poll time.Duration) (int64, error) {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var total int64
	drain := func() error {
		data := src.ReadBytes(0)
		if len(data) == 0 {
			return nil
		}
		n, err := out.Write(data)
		total += int64(n)
		if err != nil {
			return fmt.Errorf("write error: %w", err)
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, drain()
		case <-ticker.C:
			if err := drain(); err != nil {
				return total, err
			}
		}
	}
}
