// Package errs implements a typed error taxonomy, an ordered
// strategy-chain classifier, per-kind recovery policy, and a bounded
// recovery-attempt ledger.
package errs

import "errors"

// Sentinel errors components raise so the classifier can recognize
// them with errors.Is ahead of string-matching fallbacks.
var (
	ErrQuotaExceeded        = errors.New("storage quota exceeded")
	ErrValidationFailed     = errors.New("file failed validation")
	ErrSecurityRejected     = errors.New("content disallowed by security policy")
	ErrAborted              = errors.New("operation aborted by caller")
	ErrEnvironmentUnsupported = errors.New("platform capability unavailable")
	ErrWorkerUnavailable    = errors.New("background worker unavailable")
	// ErrEmptyFileRejected is raised for a zero-byte file when
	// UploadRules.AllowEmptyFiles is false. It classifies as KindFile
	// rather than KindValidation: the input itself (an empty file) is
	// the problem, not a rule the caller configured.
	ErrEmptyFileRejected = errors.New("empty file not allowed")
)
