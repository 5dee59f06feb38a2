package errs

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"strings"

	"github.com/cascadewire/chunkupload/internal/models"
)

// Strategy classifies a raw error into an UploadError. Strategies are
// tried in chain order; the first whose CanHandle matches owns the
// error.
type Strategy interface {
	Name() string
	CanHandle(raw error) bool
	Kind() models.ErrorKind
	Recoverable() bool
}

type stringMatchStrategy struct {
	name        string
	kind        models.ErrorKind
	recoverable bool
	sentinel    error
	indicators  []string
}

func (s *stringMatchStrategy) Name() string            { return s.name }
func (s *stringMatchStrategy) Kind() models.ErrorKind   { return s.kind }
func (s *stringMatchStrategy) Recoverable() bool        { return s.recoverable }

func (s *stringMatchStrategy) CanHandle(raw error) bool {
	if raw == nil {
		return false
	}
	if s.sentinel != nil && errors.Is(raw, s.sentinel) {
		return true
	}
	errStr := strings.ToLower(raw.Error())
	for _, ind := range s.indicators {
		if strings.Contains(errStr, ind) {
			return true
		}
	}
	return false
}

// timeoutStrategy additionally recognizes context.DeadlineExceeded and
// net.Error.Timeout() ahead of string matching: type-based checks are
// more robust than matching error text.
type timeoutStrategy struct{ stringMatchStrategy }

func (s *timeoutStrategy) CanHandle(raw error) bool {
	if errors.Is(raw, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(raw, &netErr) && netErr.Timeout() {
		return true
	}
	return s.stringMatchStrategy.CanHandle(raw)
}

// fileStrategy additionally recognizes *fs.PathError ahead of string
// matching, so any local os.Open/os.Stat/os.Read failure from
// chunkfile is caught by type regardless of how its message is worded.
type fileStrategy struct{ stringMatchStrategy }

func (s *fileStrategy) CanHandle(raw error) bool {
	var pathErr *fs.PathError
	if errors.As(raw, &pathErr) {
		return true
	}
	return s.stringMatchStrategy.CanHandle(raw)
}

type abortStrategy struct{}

func (abortStrategy) Name() string          { return "abort" }
func (abortStrategy) Kind() models.ErrorKind { return models.KindAbort }
func (abortStrategy) Recoverable() bool     { return false }
func (abortStrategy) CanHandle(raw error) bool {
	return errors.Is(raw, context.Canceled) || errors.Is(raw, ErrAborted)
}

type fallbackStrategy struct{}

func (fallbackStrategy) Name() string            { return "unknown" }
func (fallbackStrategy) Kind() models.ErrorKind   { return models.KindUnknown }
func (fallbackStrategy) Recoverable() bool        { return true }
func (fallbackStrategy) CanHandle(raw error) bool { return true }

// DefaultChain returns the strategy chain in first-match order:
// quota/disk-full, security, validation, file, dns, timeout,
// connection-reset, server(5xx/429), network, worker, memory,
// environment, abort, fallback. There is no credential strategy.
func DefaultChain() []Strategy {
	return []Strategy{
		&stringMatchStrategy{
			name: "quota", kind: models.KindQuotaExceeded, recoverable: false,
			sentinel: ErrQuotaExceeded,
			indicators: []string{
				"no space left on device", "disk full", "out of disk space",
				"insufficient disk space", "not enough space", "enospc",
				"disk quota exceeded", "quotaexceeded",
			},
		},
		&stringMatchStrategy{
			name: "security", kind: models.KindSecurity, recoverable: false,
			sentinel:   ErrSecurityRejected,
			indicators: []string{"disallowed by pattern", "blocked mime", "content not permitted"},
		},
		&stringMatchStrategy{
			name: "validation", kind: models.KindValidation, recoverable: false,
			sentinel: ErrValidationFailed,
			indicators: []string{
				"below minimum", "exceeds maximum", "does not match any allowed pattern",
				"filename cannot", "filename contains null byte",
			},
		},
		&fileStrategy{stringMatchStrategy: stringMatchStrategy{
			name: "file", kind: models.KindFile, recoverable: false,
			sentinel:   ErrEmptyFileRejected,
			indicators: []string{"no such file or directory", "is a directory", "permission denied"},
		}},
		&stringMatchStrategy{
			name: "dns", kind: models.KindDNS, recoverable: true,
			indicators: []string{"no such host", "dns", "name resolution", "lookup"},
		},
		&timeoutStrategy{stringMatchStrategy{
			name: "timeout", kind: models.KindTimeout, recoverable: true,
			indicators: []string{"i/o timeout", "timeout", "operationtimeout", "operation timeout"},
		}},
		&stringMatchStrategy{
			name: "connection-reset", kind: models.KindConnectionReset, recoverable: true,
			indicators: []string{"connection reset", "broken pipe", "use of closed network connection", "eof"},
		},
		&stringMatchStrategy{
			name: "server", kind: models.KindServer, recoverable: true,
			indicators: []string{
				"429", "500", "502", "503", "504", "throttl", "slowdown",
				"serviceunavailable", "service unavailable", "internalerror",
				"requesttimeout", "server busy", "serverbusy",
			},
		},
		&stringMatchStrategy{
			name: "network", kind: models.KindNetwork, recoverable: true,
			indicators: []string{
				"connection refused", "tls handshake", "network", "dial tcp",
				"proxyconnect tcp", "stream error", "http2: server sent goaway",
			},
		},
		&stringMatchStrategy{
			name: "worker", kind: models.KindWorker, recoverable: true,
			indicators: []string{"worker", "panic in goroutine pool"},
		},
		&stringMatchStrategy{
			name: "memory", kind: models.KindMemory, recoverable: true,
			indicators: []string{"out of memory", "cannot allocate memory", "oom"},
		},
		&stringMatchStrategy{
			name: "environment", kind: models.KindEnvironment, recoverable: false,
			sentinel:   ErrEnvironmentUnsupported,
			indicators: []string{"platform capability unavailable", "unsupported platform"},
		},
		abortStrategy{},
		fallbackStrategy{},
	}
}
