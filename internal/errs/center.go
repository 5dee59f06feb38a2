package errs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cascadewire/chunkupload/internal/eventbus"
	"github.com/cascadewire/chunkupload/internal/models"
)

// Context carries diagnostic signals available at classification time.
type Context struct {
	Group          string
	Chunk          *models.ChunkInfo
	NetworkQuality string
	MemoryInUse    uint64
	MemoryLimit    uint64
}

// QueryOpts filters Center.QueryErrors results.
type QueryOpts struct {
	Kind        models.ErrorKind // zero value means any
	Since       time.Time
	Until       time.Time
	Recoverable *bool
}

// Center classifies raw errors into a typed UploadError, applies
// per-kind recovery policy, and keeps a bounded ring-buffer ledger for
// telemetry.
type Center struct {
	mu          sync.Mutex
	chain       []Strategy
	recoveries  map[models.ErrorKind]RecoveryFunc
	maxAttempts map[models.ErrorKind]int
	ring        []*models.UploadError
	ringSize    int
	ringHead    int
	byID        map[string]*models.UploadError
	nextID      uint64
	bus         *eventbus.Bus
}

// New creates an ErrorCenter with the default strategy chain and
// recovery dispositions.
func New(bus *eventbus.Bus) *Center {
	c := &Center{
		chain:       DefaultChain(),
		recoveries:  defaultRecoveries(),
		maxAttempts: defaultMaxAttempts(),
		ring:        make([]*models.UploadError, 0, 100),
		ringSize:    100,
		byID:        make(map[string]*models.UploadError),
		bus:         bus,
	}
	return c
}

// RegisterCustomHandler inserts a strategy at the front of the chain,
// so it is tried before every built-in strategy.
func (c *Center) RegisterCustomHandler(s Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chain = append([]Strategy{s}, c.chain...)
}

// SetRecoveryPolicy overrides the recovery function for kind.
func (c *Center) SetRecoveryPolicy(kind models.ErrorKind, fn RecoveryFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recoveries[kind] = fn
}

// SetMaxAttempts overrides the attempt ceiling for kind.
func (c *Center) SetMaxAttempts(kind models.ErrorKind, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxAttempts[kind] = n
}

// HandleError classifies raw and returns the resulting UploadError,
// recording it in the ring buffer. Classification never panics: an
// unmatched error always falls through to the UNKNOWN strategy.
func (c *Center) HandleError(raw error, ctx Context) *models.UploadError {
	kind, group, recoverable := c.classify(raw, ctx.Group)

	c.mu.Lock()
	c.nextID++
	id := fmt.Sprintf("err-%d", c.nextID)
	c.mu.Unlock()

	uerr := &models.UploadError{
		ErrorID:       id,
		Kind:          kind,
		Severity:      severityFor(kind),
		Group:         group,
		IsRecoverable: recoverable,
		Cause:         raw,
		Message:       friendlyMessage(kind),
		Chunk:         ctx.Chunk,
		CreatedAt:     time.Now(),
		Diagnostic: models.DiagnosticContext{
			NetworkQuality: ctx.NetworkQuality,
			MemoryInUse:    ctx.MemoryInUse,
			MemoryLimit:    ctx.MemoryLimit,
			CapturedAt:     time.Now(),
		},
	}

	c.record(uerr)
	if c.bus != nil {
		c.bus.Emit("error", uerr)
	}
	return uerr
}

func (c *Center) classify(raw error, group string) (kind models.ErrorKind, outGroup string, recoverable bool) {
	c.mu.Lock()
	chain := c.chain
	c.mu.Unlock()

	for _, s := range chain {
		if s.CanHandle(raw) {
			return s.Kind(), group, s.Recoverable()
		}
	}
	return models.KindUnknown, group, true
}

// RetryCapFor classifies raw and returns the configured max-attempts
// ceiling for its kind, for wiring into scheduler.WithRetryCap.
func (c *Center) RetryCapFor(raw error) int {
	kind, _, _ := c.classify(raw, "")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxAttempts[kind]
}

func (c *Center) record(e *models.UploadError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.ring) < c.ringSize {
		c.ring = append(c.ring, e)
	} else {
		c.ring[c.ringHead] = e
		c.ringHead = (c.ringHead + 1) % c.ringSize
	}
	c.byID[e.ErrorID] = e
}

// QueryErrors returns ring-buffer entries matching opts.
func (c *Center) QueryErrors(opts QueryOpts) []*models.UploadError {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*models.UploadError
	for _, e := range c.ring {
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		if !opts.Since.IsZero() && e.CreatedAt.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && e.CreatedAt.After(opts.Until) {
			continue
		}
		if opts.Recoverable != nil && e.IsRecoverable != *opts.Recoverable {
			continue
		}
		out = append(out, e)
	}
	return out
}

// AttemptRecovery consults the recovery policy for err.Kind. It caps
// attempts at the configured ceiling, appends to err's ledger, and
// returns whether the scheduler should retry the work. Recovery never
// re-executes the work itself.
func (c *Center) AttemptRecovery(ctx context.Context, err *models.UploadError) bool {
	c.mu.Lock()
	max := c.maxAttempts[err.Kind]
	fn := c.recoveries[err.Kind]
	c.mu.Unlock()

	if len(err.Ledger) >= max {
		err.AppendAttempt("cap-exceeded", false)
		return false
	}
	if fn == nil {
		err.AppendAttempt("no-policy", false)
		return false
	}

	shouldRetry := fn(ctx, err)
	err.AppendAttempt(string(err.Kind), shouldRetry)
	return shouldRetry
}

func severityFor(kind models.ErrorKind) models.Severity {
	switch kind {
	case models.KindQuotaExceeded, models.KindMemory, models.KindEnvironment:
		return models.SeverityCritical
	case models.KindValidation, models.KindSecurity, models.KindAbort:
		return models.SeverityWarning
	case models.KindUnknown:
		return models.SeverityError
	default:
		return models.SeverityError
	}
}

func friendlyMessage(kind models.ErrorKind) string {
	switch kind {
	case models.KindNetwork:
		return "network connection failed"
	case models.KindTimeout:
		return "the request timed out"
	case models.KindServer:
		return "the server reported an error"
	case models.KindDNS:
		return "the upload host could not be resolved"
	case models.KindConnectionReset:
		return "the connection was reset"
	case models.KindFile:
		return "the local file could not be read"
	case models.KindValidation:
		return "the file failed validation"
	case models.KindQuotaExceeded:
		return "storage quota exceeded"
	case models.KindMemory:
		return "insufficient memory available"
	case models.KindWorker:
		return "background worker failed"
	case models.KindSecurity:
		return "content disallowed by policy"
	case models.KindAbort:
		return "upload was cancelled"
	case models.KindEnvironment:
		return "required platform capability is missing"
	default:
		return "an unexpected error occurred"
	}
}
