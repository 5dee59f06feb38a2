package netadapter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cascadewire/chunkupload/internal/eventbus"
	"github.com/cascadewire/chunkupload/internal/logging"
)

func testAdapter(t *testing.T) (*Adapter, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(logging.NewDefaultLogger())
	a, err := New(ProxyConfig{}, bus, logging.NewDefaultLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, bus
}

func TestUploadChunkSendsExactBytes(t *testing.T) {
	var gotBody []byte
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, _ := testAdapter(t)
	resp, err := a.UploadChunk(context.Background(), "file-1", srv.URL, []byte("chunk-bytes"), nil)
	if err != nil {
		t.Fatalf("UploadChunk: %v", err)
	}
	defer resp.Body.Close()

	if gotMethod != http.MethodPost {
		t.Fatalf("method = %q, want POST", gotMethod)
	}
	if string(gotBody) != "chunk-bytes" {
		t.Fatalf("server saw %q, want %q", gotBody, "chunk-bytes")
	}
}

func TestAbortCancelsInFlightRequestsForFile(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	a, _ := testAdapter(t)

	var gotErr error
	done := make(chan struct{})
	go func() {
		_, gotErr = a.UploadChunk(context.Background(), "file-1", srv.URL, []byte("x"), nil)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond) // let the request reach the handler
	a.Abort("file-1")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("upload did not unblock after Abort")
	}
	close(release)

	if gotErr == nil {
		t.Fatalf("expected an error from the aborted request")
	}
}

func TestGetNetworkQualityDegradesOnFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a, _ := testAdapter(t)
	for i := 0; i < 5; i++ {
		resp, _ := a.Request(context.Background(), http.MethodGet, srv.URL, nil, nil)
		if resp != nil {
			resp.Body.Close()
		}
	}

	if q := a.GetNetworkQuality(); q == QualityGood {
		t.Fatalf("expected degraded quality after repeated 500s, got %s", q)
	}
}

func TestQualityDegradationReconfiguresLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a, _ := testAdapter(t)
	for i := 0; i < 6; i++ {
		resp, _ := a.Request(context.Background(), http.MethodGet, srv.URL, nil, nil)
		if resp != nil {
			resp.Body.Close()
		}
	}

	if q := a.GetNetworkQuality(); q == QualityGood {
		t.Fatalf("expected degraded quality, got %s", q)
	}

	// Poor/degraded pacing caps burst well below the Good-quality
	// default, so a run of immediate TryAcquire calls should exhaust
	// it quickly.
	acquired := 0
	for i := 0; i < 64; i++ {
		if a.limiter.TryAcquire() {
			acquired++
		}
	}
	if acquired >= 64 {
		t.Fatalf("expected degraded limiter to cap burst below 64, acquired %d", acquired)
	}
}

func TestRequestSetsCooldownOnThrottleResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a, _ := testAdapter(t)
	resp, err := a.Request(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	resp.Body.Close()

	if a.limiter.CooldownRemaining() <= 0 {
		t.Fatalf("expected a cooldown to be set after a 429 response")
	}
}

func TestNetworkStatusChangeEmittedOnTransition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	a, bus := testAdapter(t)
	var emits atomic.Int32
	bus.On("networkStatusChange", func(payload interface{}) { emits.Add(1) })

	for i := 0; i < 6; i++ {
		resp, _ := a.Request(context.Background(), http.MethodGet, srv.URL, nil, nil)
		if resp != nil {
			resp.Body.Close()
		}
	}

	if emits.Load() == 0 {
		t.Fatalf("expected at least one networkStatusChange emission")
	}
}
