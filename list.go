package serial

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortKind groups serial devices by the hardware behind them
type PortKind string

const (
	KindUSB      PortKind = "usb"
	KindStandard PortKind = "standard"
	KindARM      PortKind = "arm"
	KindOther    PortKind = "other"
)

type portPattern struct {
	re          *regexp.Regexp
	kind        PortKind
	description string
}

var portPatterns = []portPattern{
	{regexp.MustCompile(`^ttyUSB\d+$`), KindUSB, "USB Serial Port"},
	{regexp.MustCompile(`^ttyACM\d+$`), KindUSB, "USB CDC/ACM Device"},
	{regexp.MustCompile(`^ttyS\d+$`), KindStandard, "Standard Serial Port"},
	{regexp.MustCompile(`^ttyAMA\d+$`), KindARM, "ARM Serial Port"},
	{regexp.MustCompile(`^ttymxc\d+$`), KindARM, "i.MX Serial Port"},
	{regexp.MustCompile(`^ttyO\d+$`), KindARM, "OMAP Serial Port"},
	{regexp.MustCompile(`^ttySAC\d+$`), KindARM, "Samsung Serial Port"},
	{regexp.MustCompile(`^ttyTHS\d+$`), KindARM, "Tegra Serial Port"},
}

// detailedPorts is a hook for tests
var detailedPorts = enumerator.GetDetailedPortsList

// ListPorts returns the serial devices under /dev, sorted. Virtual terminals
// and pseudo-terminals are skipped. Where there is no /dev the platform
// enumerator is used instead.
func ListPorts() ([]string, error) {
	ports, err := listPortsIn("/dev")
	if os.IsNotExist(err) {
		return listEnumerated()
	}
	return ports, err
}

func listPortsIn(devDir string) ([]string, error) {
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, entry := range entries {
		if _, ok := classify(entry.Name()); !ok {
			continue
		}
		fullPath := filepath.Join(devDir, entry.Name())
		if isCharacterDevice(fullPath) {
			ports = append(ports, fullPath)
		}
	}

	sort.Strings(ports)
	return ports, nil
}

func listEnumerated() ([]string, error) {
	details, err := detailedPorts()
	if err != nil {
		return nil, err
	}
	ports := make([]string, 0, len(details))
	for _, d := range details {
		ports = append(ports, d.Name)
	}
	sort.Strings(ports)
	return ports, nil
}

// classify matches a device name against the known serial patterns
func classify(name string) (portPattern, bool) {
	for _, p := range portPatterns {
		if p.re.MatchString(name) {
			return p, true
		}
	}
	return portPattern{}, false
}

// isCharacterDevice checks if the given path is a character device
func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// PortInfo describes a serial device
type PortInfo struct {
	Name         string
	Path         string
	Kind         PortKind
	Description  string
	VendorID     string
	ProductID    string
	SerialNumber string
	Product      string
}

// IsUSB reports whether the port sits behind a USB adapter
func (p *PortInfo) IsUSB() bool {
	return p.Kind == KindUSB
}

// GetPortInfo returns information about a port. USB ports are enriched with
// vendor, product and serial number when the enumerator can see them.
func GetPortInfo(portPath string) (*PortInfo, error) {
	if !isCharacterDevice(portPath) {
		return nil, ErrDeviceNotFound
	}

	name := filepath.Base(portPath)
	info := &PortInfo{
		Name:        name,
		Path:        portPath,
		Kind:        KindOther,
		Description: getPortDescription(name),
	}
	if p, ok := classify(name); ok {
		info.Kind = p.kind
	}

	if info.IsUSB() {
		enrichUSBInfo(info)
	}
	return info, nil
}

// getPortDescription provides human-readable descriptions for different port types
func getPortDescription(name string) string {
	if p, ok := classify(name); ok {
		return p.description
	}
	return "Serial Port"
}

// enrichUSBInfo copies USB identifiers from the enumerator. Failures leave
// the fields empty.
func enrichUSBInfo(info *PortInfo) {
	details, err := detailedPorts()
	if err != nil {
		return
	}
	for _, d := range details {
		if !d.IsUSB || (d.Name != info.Path && filepath.Base(d.Name) != info.Name) {
			continue
		}
		info.VendorID = strings.ToLower(d.VID)
		info.ProductID = strings.ToLower(d.PID)
		info.SerialNumber = d.SerialNumber
		info.Product = d.Product
		if d.Product != "" {
			info.Description = d.Product
		}
		return
	}
}
