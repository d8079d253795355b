// Package windows provides the window-enumeration capability: a snapshot of
// currently open windows with their titles and owning application names.
// Enumeration is platform specific; each platform file supplies newReader.
package windows

import "errors"

// WindowDescriptor describes one open window at poll time. Descriptors are
// ephemeral: a fresh set is produced on every List call and no identity
// persists across polls.
type WindowDescriptor struct {
	Title     string
	OwnerName string
}

// ErrCapabilityDenied is returned when the OS refuses window enumeration
// (missing screen-recording/accessibility permission, no display server).
// Callers should degrade to remote-only signals rather than retry.
var ErrCapabilityDenied = errors.New("window enumeration denied by OS")

// Reader lists open windows. Implementations are not required to be safe for
// concurrent use; the reconciler polls from a single goroutine.
type Reader interface {
	List() ([]WindowDescriptor, error)
}

// NewReader returns the platform reader. Construction never fails; connection
// errors surface from the first List call.
func NewReader() Reader {
	return newReader()
}
