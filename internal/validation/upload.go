package validation

import (
	"fmt"
	"strings"

	"github.com/cascadewire/chunkupload/internal/errs"
)

// UploadRules gates a file at the start of the upload pipeline's
// validate phase: size limits and MIME/extension allow/deny lists.
type UploadRules struct {
	MinFileSize       int64
	MaxFileSize       int64    // 0 means unbounded
	AllowFileTypes    []string // MIME patterns, "*/*" wildcards allowed
	DisallowFileTypes []string
	AllowEmptyFiles   bool
}

// ValidateUpload checks name/size/mimeType against rules. A deny-list
// match always wins over an allow-list match. An empty AllowFileTypes
// list allows everything not explicitly denied. Every returned error
// wraps errs.ErrValidationFailed, errs.ErrSecurityRejected, or (for a
// rejected empty file) errs.ErrEmptyFileRejected, so the error
// classifier can tell them apart by errors.Is instead of matching
// message text, which the deny-list case in particular would otherwise
// confuse with a security rejection.
func (r UploadRules) ValidateUpload(name string, size int64, mimeType string) error {
	if err := ValidateFilename(name); err != nil {
		return fmt.Errorf("validation: %w: %w", errs.ErrValidationFailed, err)
	}
	if size == 0 && !r.AllowEmptyFiles {
		return fmt.Errorf("validation: %w", errs.ErrEmptyFileRejected)
	}
	if r.MinFileSize > 0 && size < r.MinFileSize {
		return fmt.Errorf("validation: %w: file size %d below minimum %d", errs.ErrValidationFailed, size, r.MinFileSize)
	}
	if r.MaxFileSize > 0 && size > r.MaxFileSize {
		return fmt.Errorf("validation: %w: file size %d exceeds maximum %d", errs.ErrValidationFailed, size, r.MaxFileSize)
	}

	for _, pattern := range r.DisallowFileTypes {
		if mimeMatches(pattern, mimeType) {
			return fmt.Errorf("validation: %w: mime type %q is disallowed by pattern %q", errs.ErrSecurityRejected, mimeType, pattern)
		}
	}
	if len(r.AllowFileTypes) == 0 {
		return nil
	}
	for _, pattern := range r.AllowFileTypes {
		if mimeMatches(pattern, mimeType) {
			return nil
		}
	}
	return fmt.Errorf("validation: %w: mime type %q does not match any allowed pattern", errs.ErrValidationFailed, mimeType)
}

// mimeMatches supports "*/*", "type/*", and exact matches.
func mimeMatches(pattern, mimeType string) bool {
	if pattern == "*/*" || pattern == mimeType {
		return true
	}
	patType, patSub, ok := strings.Cut(pattern, "/")
	if !ok {
		return false
	}
	mimeTypePart, mimeSub, ok := strings.Cut(mimeType, "/")
	if !ok {
		return false
	}
	if patType != "*" && patType != mimeTypePart {
		return false
	}
	return patSub == "*" || patSub == mimeSub
}
