//go:build !linux

package serial

import "fmt"

func openNative(device string, config Config) (Driver, error) {
	return nil, fmt.Errorf("%w: %s: native backend is linux only, use the portable backend", ErrDeviceOpenFailed, device)
}
