package models

import "time"

// ErrorKind is the taxonomy of upload failures. It classifies
// disposition, not the Go error type.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "NETWORK"
	KindTimeout        ErrorKind = "TIMEOUT"
	KindServer         ErrorKind = "SERVER"
	KindDNS            ErrorKind = "DNS"
	KindConnectionReset ErrorKind = "CONNECTION_RESET"
	KindFile           ErrorKind = "FILE"
	KindValidation     ErrorKind = "VALIDATION"
	KindQuotaExceeded  ErrorKind = "QUOTA_EXCEEDED"
	KindMemory         ErrorKind = "MEMORY"
	KindWorker         ErrorKind = "WORKER"
	KindSecurity       ErrorKind = "SECURITY"
	KindAbort          ErrorKind = "ABORT"
	KindEnvironment    ErrorKind = "ENVIRONMENT"
	KindUnknown        ErrorKind = "UNKNOWN"
)

// Severity ranks how serious an UploadError is for reporting purposes.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// RecoveryAttempt records one recovery strategy invocation against an
// UploadError, forming an append-only ledger.
type RecoveryAttempt struct {
	At       time.Time
	Strategy string
	Success  bool
}

// ChunkInfo identifies the chunk an UploadError originated from, if any.
type ChunkInfo struct {
	Index      int
	RetryCount int
}

// DiagnosticContext is a snapshot of environment signals captured at the
// time an UploadError was classified, useful for post-mortem analysis.
type DiagnosticContext struct {
	NetworkQuality string
	MemoryInUse    uint64
	MemoryLimit    uint64
	CapturedAt     time.Time
}

// UploadError is the taxonomy-tagged, immutable-after-construction error
// record surfaced by ErrorCenter. Only RetryCount and the Ledger grow
// after construction.
type UploadError struct {
	ErrorID       string
	Kind          ErrorKind
	Severity      Severity
	Group         string // e.g. "chunk-upload", "merge", "fingerprint"
	IsRecoverable bool
	RetryCount    int
	Ledger        []RecoveryAttempt
	Diagnostic    DiagnosticContext
	Chunk         *ChunkInfo
	Cause         error
	Message       string
	CreatedAt     time.Time
}

func (e *UploadError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes the original cause for errors.Is/errors.As.
func (e *UploadError) Unwrap() error { return e.Cause }

// AppendAttempt records a recovery attempt on the ledger.
func (e *UploadError) AppendAttempt(strategy string, success bool) {
	e.Ledger = append(e.Ledger, RecoveryAttempt{
		At:       time.Now(),
		Strategy: strategy,
		Success:  success,
	})
}
