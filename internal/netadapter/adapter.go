// Package netadapter turns a chunk upload request into bytes on the
// wire, tracks rolling network quality, and supports
// scheduler-directed cancellation per file.
package netadapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/cascadewire/chunkupload/internal/eventbus"
	"github.com/cascadewire/chunkupload/internal/logging"
	"github.com/cascadewire/chunkupload/internal/ratelimit"
	"github.com/cascadewire/chunkupload/internal/scheduler"
)

// Quality is a coarse network-health classification derived from
// recent request outcomes.
type Quality string

const (
	QualityGood     Quality = "GOOD"
	QualityDegraded Quality = "DEGRADED"
	QualityPoor     Quality = "POOR"
	QualityOffline  Quality = "OFFLINE"
)

const qualityWindow = 20

// Per-quality pacing: tokens/second and burst size passed to
// ratelimit.Reconfigure when the rolling quality window transitions.
// Good stays effectively unpaced; degraded tiers shed concurrency
// pressure so a shaky link doesn't pile up retries behind it.
var qualityPacing = map[Quality]struct {
	rate, burst float64
}{
	QualityGood:     {rate: 1000, burst: 64},
	QualityDegraded: {rate: 20, burst: 8},
	QualityPoor:     {rate: 4, burst: 2},
	QualityOffline:  {rate: 1, burst: 1},
}

// retryLogger adapts the structured logger to retryablehttp's
// LeveledLogger interface. Retries are owned by the scheduler and
// ErrorCenter, not by this client (RetryMax is always 0), so these
// calls are rare: io-level retries retryablehttp performs before a
// request is even attempted (e.g. DNS lookups) still fire them.
type retryLogger struct{ l *logging.Logger }

func (r retryLogger) Error(msg string, kv ...interface{}) { r.logf(r.l.Error(), msg, kv) }
func (r retryLogger) Info(msg string, kv ...interface{})  { r.logf(r.l.Info(), msg, kv) }
func (r retryLogger) Debug(msg string, kv ...interface{}) { r.logf(r.l.Debug(), msg, kv) }
func (r retryLogger) Warn(msg string, kv ...interface{})  { r.logf(r.l.Warn(), msg, kv) }

func (r retryLogger) logf(ev interface{ Msg(string) }, msg string, kv []interface{}) {
	ev.Msg(fmt.Sprintf("%s %v", msg, kv))
}

// Adapter is the network adapter: one retryablehttp client shared
// across every upload, with per-file cancellation and rolling quality
// tracking layered on top.
type Adapter struct {
	client  *retryablehttp.Client
	bus     *eventbus.Bus
	logger  *logging.Logger
	limiter *ratelimit.Limiter

	mu       sync.Mutex
	cancels  map[string][]context.CancelFunc
	samples  []bool // true = success, for the rolling quality window
	quality  Quality
	sawFirst bool
}

// New builds an Adapter over an HTTP client configured with proxy,
// per NewHTTPClient. RetryMax is always 0: transport-level retries
// would race the scheduler's own retry/backoff bookkeeping. Responses
// with retryable status codes (429, 5xx) are handed back unchanged.
func New(proxy ProxyConfig, bus *eventbus.Bus, logger *logging.Logger) (*Adapter, error) {
	httpClient, err := NewHTTPClient(proxy, logger)
	if err != nil {
		return nil, err
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = httpClient
	rc.RetryMax = 0
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = retryLogger{l: logger}

	good := qualityPacing[QualityGood]

	return &Adapter{
		client:  rc,
		bus:     bus,
		logger:  logger,
		limiter: ratelimit.New(good.rate, good.burst),
		cancels: make(map[string][]context.CancelFunc),
		quality: QualityGood,
	}, nil
}

// Request performs a generic HTTP request (used for precheck/merge
// calls) and records the outcome against the rolling quality window.
// It waits on the pacing limiter first, so a degraded or throttled
// link sheds request rate before the retryablehttp client is ever
// reached.
func (a *Adapter) Request(ctx context.Context, method, url string, body io.Reader, headers nethttp.Header) (*nethttp.Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("netadapter: rate limit wait: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("netadapter: build request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := a.client.Do(req)
	a.recordOutcome(err == nil && resp != nil && resp.StatusCode < 500)
	if resp != nil && (resp.StatusCode == nethttp.StatusTooManyRequests || resp.StatusCode == nethttp.StatusServiceUnavailable) {
		a.limiter.SetCooldown(retryAfterCooldown(resp))
	}
	return resp, err
}

// UploadChunk sends chunk's bytes to url, tracked under fileID so
// Abort(fileID) can cancel it. The caller owns chunk's lifetime; this
// call does not release it back to any pool.
func (a *Adapter) UploadChunk(ctx context.Context, fileID, url string, chunk []byte, headers nethttp.Header) (*nethttp.Response, error) {
	cctx, cancel := context.WithCancel(ctx)
	a.trackCancel(fileID, cancel)
	defer a.untrackCancel(fileID, cancel)

	return a.Request(cctx, nethttp.MethodPost, url, bytes.NewReader(chunk), headers)
}

// Abort cancels every in-flight request registered under fileID.
func (a *Adapter) Abort(fileID string) {
	a.mu.Lock()
	cancels := a.cancels[fileID]
	delete(a.cancels, fileID)
	a.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}

// AbortAll cancels every in-flight request across every file.
func (a *Adapter) AbortAll() {
	a.mu.Lock()
	all := a.cancels
	a.cancels = make(map[string][]context.CancelFunc)
	a.mu.Unlock()

	for _, cancels := range all {
		for _, c := range cancels {
			c()
		}
	}
}

// GetNetworkQuality returns the current rolling quality classification.
func (a *Adapter) GetNetworkQuality() Quality {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.quality
}

func (a *Adapter) trackCancel(fileID string, cancel context.CancelFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancels[fileID] = append(a.cancels[fileID], cancel)
}

func (a *Adapter) untrackCancel(fileID string, cancel context.CancelFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	list := a.cancels[fileID]
	target := reflect.ValueOf(cancel).Pointer()
	for i, c := range list {
		if reflect.ValueOf(c).Pointer() == target {
			a.cancels[fileID] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// recordOutcome folds a request's success/failure into the rolling
// quality window and emits a networkStatusChange event on the first
// recorded outcome and on every later transition.
func (a *Adapter) recordOutcome(success bool) {
	a.mu.Lock()
	a.samples = append(a.samples, success)
	if len(a.samples) > qualityWindow {
		a.samples = a.samples[len(a.samples)-qualityWindow:]
	}

	failures := 0
	for _, s := range a.samples {
		if !s {
			failures++
		}
	}
	ratio := float64(failures) / float64(len(a.samples))

	var next Quality
	switch {
	case len(a.samples) >= 3 && ratio >= 0.9:
		next = QualityOffline
	case ratio >= 0.5:
		next = QualityPoor
	case ratio >= 0.2:
		next = QualityDegraded
	default:
		next = QualityGood
	}

	changed := next != a.quality || !a.sawFirst
	prevOnline := a.quality != QualityOffline
	a.quality = next
	a.sawFirst = true
	a.mu.Unlock()

	if changed {
		pacing := qualityPacing[next]
		a.limiter.Reconfigure(pacing.rate, pacing.burst)

		if a.bus != nil {
			a.bus.Emit("networkStatusChange", scheduler.NetworkStatusChange{
				Online:  next != QualityOffline,
				Quality: string(next),
			})
			_ = prevOnline
		}
	}
}

// defaultThrottleCooldown is used when a 429/503 response carries no
// Retry-After header.
const defaultThrottleCooldown = 2 * time.Second

// retryAfterCooldown reads a Retry-After header (seconds form only;
// HTTP-date is rare enough on chunk upload endpoints not to bother)
// and falls back to defaultThrottleCooldown.
func retryAfterCooldown(resp *nethttp.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return defaultThrottleCooldown
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultThrottleCooldown
}
