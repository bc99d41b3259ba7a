//go:build !linux && !windows && !darwin

package inject

// OpenDevice always fails on this platform.
func OpenDevice(DeviceConfig) (Device, error) {
	return nil, ErrUnsupported
}
