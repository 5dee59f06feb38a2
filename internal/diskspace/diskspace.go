// Package diskspace checks available free space on the filesystem that
// will receive a write, so the caller can fail fast with a classifiable
// QUOTA_EXCEEDED error. Its caller is state.FileStore.Save, which checks
// the volume holding the resume sidecar before writing it.
package diskspace

import "fmt"

// InsufficientSpaceError indicates that there is not enough disk space
// available. Its message is recognized by internal/errs's quota
// strategy ("insufficient disk space"), so callers can return it
// directly into the ErrorCenter without any extra wrapping.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

// IsInsufficientSpaceError checks if an error is an InsufficientSpaceError
func IsInsufficientSpaceError(err error) bool {
	_, ok := err.(*InsufficientSpaceError)
	return ok
}
