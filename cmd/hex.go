/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// parseHex converts hex strings to bytes. Supports both:
// - Space-separated: "48 65 6C 6C 6F" or "0x48 0x65"
// - Continuous: "48656C6C6F"
func parseHex(hexStr string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", "0x", "", "0X", "").Replace(strings.TrimSpace(hexStr))
	if clean == "" {
		return nil, fmt.Errorf("empty input")
	}
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even number of digits (got %d)", len(clean))
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

// printable replaces non-printable bytes for display
func printable(data []byte, max int) string {
	suffix := ""
	if max > 0 && len(data) > max {
		data = data[:max]
		suffix = "..."
	}
	return strings.Map(func(r rune) rune {
		if r < 32 || r > 126 {
			return '·'
		}
		return r
	}, string(data)) + suffix
}
