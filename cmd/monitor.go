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

	"github.com/allbin/go-serialstream"
	"github.com/allbin/go-serialstream/internal/logging"
	"github.com/spf13/cobra"
)

var (
	monitorInterval time.Duration
	monitorTimeout  time.Duration
	monitorNoDrain  bool
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <port>",
	Short: "Watch a session's buffers and counters",
	Long: `Open a session and report its counters whenever they change.

By default received bytes are drained and discarded so the counters show line
throughput. With --no-drain the incoming buffer fills up and further bytes are
counted as dropped. Press Ctrl+C to stop.

Examples:
  serialstream monitor /dev/ttyUSB0
  serialstream monitor /dev/ttyUSB0 --interval 500ms --timeout 30s
  serialstream monitor /dev/ttyUSB0 --no-drain`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		portPath := args[0]

		s, err := openSession(portPath)
		if err != nil {
			return err
		}
		defer s.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Monitoring %s (%d baud, buffer %d bytes)\n", portPath, s.Config().BaudRate, s.Config().BufferSize)
		fmt.Fprintln(out, "Press Ctrl+C to stop")

		monitorLoop(ctx, s, out, monitorInterval, monitorTimeout, !monitorNoDrain)
		logging.L().Info("monitor_done", "device", portPath, "rx_bytes", s.Stats().RxBytes)
		return nil
	},
}

// statsSource is the part of a session the monitor reads
type statsSource interface {
	byteSource
	Stats() serial.Stats
	Available() int
	AvailableForWrite() int
}

// monitorLoop prints a line every interval in which the counters moved, and
// a notice once timeout passes without any change
func monitorLoop(ctx context.Context, src statsSource, w io.Writer, interval, timeout time.Duration, drain bool) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := src.Stats()
	printStats(w, "Initial", last, src)
	lastChange := time.Now()
	reported := false

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if drain {
				src.ReadBytes(0)
			}
			cur := src.Stats()
			if cur != last {
				printDelta(w, now, last, cur, src)
				last, lastChange, reported = cur, now, false
				continue
			}
			if timeout > 0 && !reported && now.Sub(lastChange) >= timeout {
				fmt.Fprintf(w, "[%s] No activity for %s\n", now.Format("15:04:05"), timeout)
				reported = true
			}
		}
	}
}

func printStats(w io.Writer, prefix string, st serial.Stats, src statsSource) {
	fmt.Fprintf(w, "[%s] %s state:\n", time.Now().Format("15:04:05"), prefix)
	fmt.Fprintf(w, "  RX:       %d bytes (%d dropped, %d buffered)\n", st.RxBytes, st.RxDropped, src.Available())
	fmt.Fprintf(w, "  TX:       %d bytes (%d free)\n", st.TxBytes, src.AvailableForWrite())
	fmt.Fprintf(w, "  Errors:   read %d, write %d, retry timeouts %d\n", st.ReadErrors, st.WriteErrors, st.RetryTimeouts)
	fmt.Fprintln(w)
}

func printDelta(w io.Writer, now time.Time, prev, cur serial.Stats, src statsSource) {
	fmt.Fprintf(w, "[%s] rx +%d tx +%d", now.Format("15:04:05"), cur.RxBytes-prev.RxBytes, cur.TxBytes-prev.TxBytes)
	if d := cur.RxDropped - prev.RxDropped; d > 0 {
		fmt.Fprintf(w, " dropped +%d", d)
	}
	if d := (cur.ReadErrors + cur.WriteErrors) - (prev.ReadErrors + prev.WriteErrors); d > 0 {
		fmt.Fprintf(w, " errors +%d", d)
	}
	if d := cur.RetryTimeouts - prev.RetryTimeouts; d > 0 {
		fmt.Fprintf(w, " retry timeouts +%d", d)
	}
	fmt.Fprintf(w, " (buffered %d)\n", src.Available())
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", time.Second, "How often the counters are sampled")
	monitorCmd.Flags().DurationVarP(&monitorTimeout, "timeout", "t", 0, "Report inactivity after this long (0 = never)")
	monitorCmd.Flags().BoolVar(&monitorNoDrain, "no-drain", false, "Leave received bytes in the incoming buffer")
}
