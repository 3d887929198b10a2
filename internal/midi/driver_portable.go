//go:build !darwin

package midi

import "errors"

// ErrUnsupported is returned on platforms without a hardware driver.
// The console still runs; it just mirrors nothing to hardware.
var ErrUnsupported = errors.New("midi hardware support requires macOS")

// OpenOutput is unavailable on this platform.
func OpenOutput(name string) (Output, error) {
	return nil, ErrUnsupported
}

// OpenInput is unavailable on this platform.
func OpenInput(name string) (Input, error) {
	return nil, ErrUnsupported
}

// ListOutputs reports no devices on this platform.
func ListOutputs() ([]DeviceInfo, error) {
	return nil, nil
}

// ListInputs reports no devices on this platform.
func ListInputs() ([]DeviceInfo, error) {
	return nil, nil
}
