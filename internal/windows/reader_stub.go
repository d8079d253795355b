//go:build !darwin && !linux

package windows

import "fmt"

// stubReader is used on platforms without window enumeration support. It
// reports a capability refusal so local presence detection degrades cleanly.
type stubReader struct{}

func newReader() Reader {
	return stubReader{}
}

func (stubReader) List() ([]WindowDescriptor, error) {
	return nil, fmt.Errorf("window enumeration not supported on this platform: %w", ErrCapabilityDenied)
}
