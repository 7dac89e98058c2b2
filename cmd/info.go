/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"

	"github.com/allbin/go-serialstream"
	"github.com/spf13/cobra"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display detailed information about a serial port including USB metadata.

Examples:
  serialstream info /dev/ttyUSB0
  serialstream info /dev/ttyACM0

For USB devices, this displays vendor/product IDs and the serial number as
reported by the platform port enumerator.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := serial.GetPortInfo(args[0])
		if err != nil {
			return fmt.Errorf("getting port info: %w", err)
		}
		printPortInfo(cmd.OutOrStdout(), info)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printPortInfo(w io.Writer, info *serial.PortInfo) {
	fmt.Fprintf(w, "Port Information: %s\n\n", info.Path)
	fmt.Fprintf(w, "  Name:        %s\n", info.Name)
	fmt.Fprintf(w, "  Kind:        %s\n", info.Kind)
	fmt.Fprintf(w, "  Description: %s\n", info.Description)

	if info.VendorID == "" && info.ProductID == "" && info.SerialNumber == "" {
		return
	}

	fmt.Fprintln(w, "\nUSB Device Information:")
	if info.VendorID != "" {
		fmt.Fprintf(w, "  Vendor ID:    %s\n", info.VendorID)
	}
	if info.ProductID != "" {
		fmt.Fprintf(w, "  Product ID:   %s\n", info.ProductID)
	}
	if info.SerialNumber != "" {
		fmt.Fprintf(w, "  Serial:       %s\n", info.SerialNumber)
	}
	if info.Product != "" {
		fmt.Fprintf(w, "  Product:      %s\n", info.Product)
	}
}
