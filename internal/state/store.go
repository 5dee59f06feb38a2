// Package state implements resumable persistence: a storage adapter
// interface with an in-memory and a file-backed implementation, the
// latter using an atomic temp-file-plus-rename sidecar pattern.
package state

import (
	"time"

	"github.com/cascadewire/chunkupload/internal/models"
)

// MaxResumeAge bounds how old a persisted FileUpload may be before it
// is considered expired and ignored on load, matching the 7-day window
// S3 multipart uploads and Azure uncommitted blocks are held before
// expiry.
const MaxResumeAge = 7 * 24 * time.Hour

// Store is the storage adapter interface: it persists and retrieves
// FileUpload state so an interrupted upload can resume without
// re-reading or re-hashing completed chunks.
type Store interface {
	Save(upload *models.FileUpload) error
	Load(fileID string) (*models.FileUpload, error)
	Delete(fileID string) error
	List() ([]*models.FileUpload, error)
}

// IsResumable reports whether a loaded upload is still usable as a
// resume point: not terminal, not expired, and not abandoned.
func IsResumable(u *models.FileUpload) bool {
	if u == nil || u.IsTerminal() {
		return false
	}
	if time.Since(u.UpdatedAt) > MaxResumeAge {
		return false
	}
	return true
}
