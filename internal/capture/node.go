package capture

import (
	"errors"
	"fmt"
	"os"
)

// CheckDeviceNode verifies that a device node exists and can be opened for
// reading, mapping the failure onto ErrDeviceUnavailable or
// ErrPermissionDenied. Devices call it before building a pipeline so a
// denied camera never half-opens.
func CheckDeviceNode(path string) error {
	if path == "" {
		return fmt.Errorf("%w: no device configured", ErrDeviceUnavailable)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrDeviceUnavailable, path)
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return f.Close()
}
