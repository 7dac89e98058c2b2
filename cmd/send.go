/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/allbin/go-serialstream"
	"github.com/allbin/go-serialstream/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data] <port>",
	Short: "Send data to a serial port",
	Long: `Send data to a serial port and wait for it to leave the outgoing buffer.

Data can be provided as:
- Command line argument: send "Hello World" /dev/ttyUSB0
- From stdin (pipe): echo "test data" | serialstream send /dev/ttyUSB0
- Interactive mode: serialstream send /dev/ttyUSB0 (prompts for input)

Bytes are queued in the session's outgoing buffer. If the device stops
draining it, queuing gives up after the write retry budget and the
number of bytes that made it is reported.

Example usage:
  serialstream send "Hello World" /dev/ttyUSB0
  serialstream send "AT+GMR" /dev/ttyUSB0 --newline
  serialstream send "02 06 00 03" /dev/ttyUSB0 --hex
  echo "test" | serialstream send /dev/ttyUSB0`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data string
		var portPath string

		if len(args) == 1 {
			portPath = args[0]
			stdin, err := readStdin()
			if err != nil {
				return err
			}
			data = stdin
		} else {
			data = args[0]
			portPath = args[1]
		}

		addNewline, _ := cmd.Flags().GetBool("newline")
		hexMode, _ := cmd.Flags().GetBool("hex")
		flushTimeout, _ := cmd.Flags().GetDuration("flush-timeout")

		payload := []byte(data)
		if hexMode {
			b, err := parseHex(data)
			if err != nil {
				return fmt.Errorf("invalid hex data: %w", err)
			}
			payload = b
		} else if addNewline {
			payload = append(payload, '\n')
		}

		return sendData(cmd.OutOrStdout(), portPath, payload, flushTimeout)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().BoolP("newline", "n", false, "Add newline character to the end of data")
	sendCmd.Flags().BoolP("hex", "x", false, "Interpret data as hexadecimal (e.g., '48656c6c6f' for 'Hello')")
	sendCmd.Flags().Duration("flush-timeout", 5*time.Second, "How long to wait for the outgoing buffer to drain")
}

// readStdin reads piped input, or prompts when stdin is a terminal
func readStdin() (string, error) {
	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return promptForData(), nil
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading from stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

func promptForData() string {
	promptStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(colors.Mauve)

	fmt.Print(promptStyle.Render("Enter data to send: "))

	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}

func sendData(w io.Writer, portPath string, data []byte, flushTimeout time.Duration) error {
	infoStyle := lipgloss.NewStyle().
		Foreground(colors.Mauve).
		Bold(true)

	successStyle := lipgloss.NewStyle().
		Foreground(colors.Green).
		Bold(true)

	errorStyle := lipgloss.NewStyle().
		Foreground(colors.Red).
		Bold(true)

	fmt.Fprintf(w, "%s Opening %s...\n", infoStyle.Render("⚡"), portPath)

	s, err := openSession(portPath)
	if err != nil {
		return fmt.Errorf("%s %w", errorStyle.Render("✗"), err)
	}
	defer s.Close()

	fmt.Fprintf(w, "%s Connected successfully\n", successStyle.Render("✓"))
	fmt.Fprintf(w, "%s Sending %d bytes...\n", infoStyle.Render("📤"), len(data))

	n, err := s.Write(data)
	if err != nil {
		if errors.Is(err, serial.ErrWriteRetryTimeout) {
			return fmt.Errorf("%s device stopped draining after %d of %d bytes: %w",
				errorStyle.Render("✗"), n, len(data), err)
		}
		return fmt.Errorf("%s failed to send data: %w", errorStyle.Render("✗"), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.FlushContext(ctx, 0); err != nil {
		queued := s.Config().BufferSize - s.AvailableForWrite()
		return fmt.Errorf("%s %d of %d bytes still queued: %w", errorStyle.Render("✗"), queued, len(data), err)
	}

	fmt.Fprintf(w, "%s Successfully sent %d bytes\n", successStyle.Render("✓"), n)
	fmt.Fprintf(w, "%s Data: %s\n", infoStyle.Render("📋"), printable(data, 50))
	return nil
}
