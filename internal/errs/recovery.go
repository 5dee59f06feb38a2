package errs

import (
	"context"
	"time"

	"github.com/cascadewire/chunkupload/internal/models"
)

// RecoveryFunc is a per-kind recovery policy: it may sleep for backoff,
// poll for online, or request a main-thread fallback, and returns
// whether the caller (the scheduler) should retry the work. It never
// re-executes the work itself.
type RecoveryFunc func(ctx context.Context, err *models.UploadError) bool

// defaultMaxAttempts gives each error kind an attempt ceiling that
// takes precedence over the scheduler's own `retries` default.
func defaultMaxAttempts() map[models.ErrorKind]int {
	return map[models.ErrorKind]int{
		models.KindNetwork:         8,
		models.KindTimeout:         5,
		models.KindConnectionReset: 5,
		models.KindServer:          6,
		models.KindDNS:             3,
		models.KindWorker:          1,
		models.KindMemory:          3,
		models.KindQuotaExceeded:   0,
		models.KindValidation:      0,
		models.KindSecurity:        0,
		models.KindAbort:           0,
		models.KindFile:            0,
		models.KindEnvironment:     0,
		models.KindUnknown:         1,
	}
}

func defaultRecoveries() map[models.ErrorKind]RecoveryFunc {
	return map[models.ErrorKind]RecoveryFunc{
		models.KindNetwork:         waitForOnlineThenRetry,
		models.KindTimeout:         backoffRetry,
		models.KindConnectionReset: backoffRetry,
		models.KindServer:         longerBackoffRetry,
		models.KindDNS:            backoffRetry,
		models.KindWorker:         retryOnceThenTerminal,
		models.KindMemory:         reduceAndRetry,
		models.KindUnknown:        retryOnceThenTerminal,
	}
}

func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// waitForOnlineThenRetry backs off briefly; the scheduler's own
// offline/online pause handling is what actually waits for
// connectivity, so this policy only needs to avoid a tight loop.
func waitForOnlineThenRetry(ctx context.Context, err *models.UploadError) bool {
	return sleepOrCancel(ctx, 500*time.Millisecond)
}

func backoffRetry(ctx context.Context, err *models.UploadError) bool {
	d := time.Duration(200*(1<<uint(len(err.Ledger)))) * time.Millisecond
	if d > 15*time.Second {
		d = 15 * time.Second
	}
	return sleepOrCancel(ctx, d)
}

// longerBackoffRetry uses a larger base delay for server-side failures.
func longerBackoffRetry(ctx context.Context, err *models.UploadError) bool {
	d := time.Duration(1000*(1<<uint(len(err.Ledger)))) * time.Millisecond
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return sleepOrCancel(ctx, d)
}

func retryOnceThenTerminal(ctx context.Context, err *models.UploadError) bool {
	return len(err.Ledger) == 0
}

// reduceAndRetry signals the caller to retry after requesting a
// concurrency reduction; the actual concurrency cut happens in
// scheduler's adaptive tick, which observes the same memory probe.
func reduceAndRetry(ctx context.Context, err *models.UploadError) bool {
	return sleepOrCancel(ctx, 250*time.Millisecond)
}
