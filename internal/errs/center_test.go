package errs

import (
	"context"
	"errors"
	"testing"

	"github.com/cascadewire/chunkupload/internal/models"
)

func TestHandleErrorClassifiesByKind(t *testing.T) {
	c := New(nil)

	cases := []struct {
		name string
		err  error
		kind models.ErrorKind
	}{
		{"network", errors.New("dial tcp: connection refused"), models.KindNetwork},
		{"timeout", errors.New("context deadline exceeded: i/o timeout"), models.KindTimeout},
		{"server-5xx", errors.New("request failed: 503 service unavailable"), models.KindServer},
		{"dns", errors.New("lookup upload.example.com: no such host"), models.KindDNS},
		{"quota", errors.New("write failed: no space left on device"), models.KindQuotaExceeded},
		{"unknown", errors.New("something bizarre happened"), models.KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uerr := c.HandleError(tc.err, Context{})
			if uerr.Kind != tc.kind {
				t.Fatalf("got kind %s, want %s", uerr.Kind, tc.kind)
			}
		})
	}
}

func TestQuotaExceededIsNotRecoverable(t *testing.T) {
	c := New(nil)
	uerr := c.HandleError(ErrQuotaExceeded, Context{})
	if uerr.IsRecoverable {
		t.Fatalf("expected quota exceeded to be terminal")
	}
}

func TestAttemptRecoveryCapsAtMaxAttempts(t *testing.T) {
	c := New(nil)
	c.SetMaxAttempts(models.KindDNS, 2)
	c.SetRecoveryPolicy(models.KindDNS, func(ctx context.Context, err *models.UploadError) bool { return true })

	uerr := c.HandleError(errors.New("no such host"), Context{})

	if !c.AttemptRecovery(context.Background(), uerr) {
		t.Fatalf("expected first recovery attempt to be allowed")
	}
	if !c.AttemptRecovery(context.Background(), uerr) {
		t.Fatalf("expected second recovery attempt to be allowed")
	}
	if c.AttemptRecovery(context.Background(), uerr) {
		t.Fatalf("expected third recovery attempt to be denied (cap=2)")
	}
	if len(uerr.Ledger) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(uerr.Ledger))
	}
}

func TestQueryErrorsFiltersByKind(t *testing.T) {
	c := New(nil)
	c.HandleError(errors.New("no such host"), Context{})
	c.HandleError(errors.New("503 service unavailable"), Context{})

	results := c.QueryErrors(QueryOpts{Kind: models.KindDNS})
	if len(results) != 1 {
		t.Fatalf("expected 1 DNS error, got %d", len(results))
	}
}

func TestRetryCapForWiresIntoScheduler(t *testing.T) {
	c := New(nil)
	if cap := c.RetryCapFor(errors.New("503 service unavailable")); cap != 6 {
		t.Fatalf("got retry cap %d, want 6 for SERVER kind", cap)
	}
}

func TestCustomHandlerTriedFirst(t *testing.T) {
	c := New(nil)
	c.RegisterCustomHandler(&stringMatchStrategy{
		name: "custom", kind: models.KindFile, recoverable: false,
		indicators: []string{"no such host"},
	})

	uerr := c.HandleError(errors.New("lookup failure: no such host"), Context{})
	if uerr.Kind != models.KindFile {
		t.Fatalf("expected custom handler to win, got kind %s", uerr.Kind)
	}
}
