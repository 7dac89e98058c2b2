/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/allbin/go-serialstream"
	"github.com/allbin/go-serialstream/internal/tui/colors"
	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List all available serial ports on the system.

This command scans for communication-capable serial devices including:
- USB serial adapters (ttyUSB*)
- USB CDC/ACM devices (ttyACM*)
- Standard serial ports (ttyS*)
- ARM/Raspberry Pi ports (ttyAMA*)
- And other platform-specific serial devices

Virtual terminals and pseudo-terminals are excluded from the listing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serial.ListPorts()
		if err != nil {
			return fmt.Errorf("listing ports: %w", err)
		}

		filterType, _ := cmd.Flags().GetString("filter")
		tableFormat, _ := cmd.Flags().GetBool("table")

		infos, err := filterPorts(ports, filterType)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(infos) == 0 {
			if filterType != "" {
				fmt.Fprintf(out, "No serial ports found matching filter: %s\n", filterType)
			} else {
				fmt.Fprintln(out, "No serial ports found")
			}
			return nil
		}

		if tableFormat {
			renderTable(out, infos)
		} else {
			for _, info := range infos {
				fmt.Fprintln(out, info.Path)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringP("filter", "f", "", "Filter by port type: usb, standard, arm, all")
	listCmd.Flags().BoolP("table", "t", false, "Display output in a styled table format")
}

// filterPorts resolves port info and keeps the ports of the requested kind
func filterPorts(ports []string, filterType string) ([]*serial.PortInfo, error) {
	var want serial.PortKind
	switch strings.ToLower(filterType) {
	case "", "all":
	case "usb":
		want = serial.KindUSB
	case "standard":
		want = serial.KindStandard
	case "arm":
		want = serial.KindARM
	default:
		return nil, fmt.Errorf("unknown filter %q (want usb, standard, arm or all)", filterType)
	}

	var infos []*serial.PortInfo
	for _, port := range ports {
		info, err := serial.GetPortInfo(port)
		if err != nil {
			continue
		}
		if want != "" && info.Kind != want {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

const (
	colPort   = "port"
	colKind   = "kind"
	colDesc   = "description"
	colUSB    = "usb"
	colSerial = "serial"
)

// renderTable renders the port list as a static bubble-table
func renderTable(w io.Writer, infos []*serial.PortInfo) {
	fmt.Fprintf(w, "Found %d serial port(s):\n\n", len(infos))

	rows := make([]table.Row, 0, len(infos))
	for _, info := range infos {
		usb := ""
		if info.VendorID != "" || info.ProductID != "" {
			usb = info.VendorID + ":" + info.ProductID
		}
		rows = append(rows, table.NewRow(table.RowData{
			colPort:   info.Path,
			colKind:   string(info.Kind),
			colDesc:   info.Description,
			colUSB:    usb,
			colSerial: info.SerialNumber,
		}))
	}

	t := table.New([]table.Column{
		table.NewColumn(colPort, "Port", 16),
		table.NewColumn(colKind, "Kind", 10),
		table.NewColumn(colDesc, "Description", 28),
		table.NewColumn(colUSB, "VID:PID", 11),
		table.NewColumn(colSerial, "Serial", 16),
	}).
		WithRows(rows).
		BorderRounded().
		HeaderStyle(lipgloss.NewStyle().Bold(true).Foreground(colors.Mauve)).
		WithBaseStyle(lipgloss.NewStyle().BorderForeground(colors.Surface2).Align(lipgloss.Left))

	fmt.Fprintln(w, t.View())
}
