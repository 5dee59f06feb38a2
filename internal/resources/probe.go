// Package resources exposes platform memory-estimation heuristics
// (memory_unix.go/memory_windows.go) through the scheduler.ResourceProbe
// interface the adaptive concurrency tick reads, plus a throughput
// monitor the uploader pipeline can consult for scale hints.
package resources

import "github.com/cascadewire/chunkupload/internal/scheduler"

const (
	minSystemMemory = 256 * 1024 * 1024       // 256 MiB
	maxSystemMemory = 16 * 1024 * 1024 * 1024 // 16 GiB
)

// Probe implements scheduler.ResourceProbe over getAvailableMemory.
type Probe struct {
	criticalBytes uint64
	highBytes     uint64
}

// ProbeOption configures a Probe.
type ProbeOption func(*Probe)

// WithThresholds overrides the default critical/high memory
// thresholds (128 MiB / 512 MiB).
func WithThresholds(critical, high uint64) ProbeOption {
	return func(p *Probe) {
		p.criticalBytes = critical
		p.highBytes = high
	}
}

// NewProbe creates a Probe with spec-reasonable default thresholds.
func NewProbe(opts ...ProbeOption) *Probe {
	p := &Probe{
		criticalBytes: 128 * 1024 * 1024,
		highBytes:     512 * 1024 * 1024,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// AvailableMemory exposes the raw estimate, e.g. for
// chunkfile.WithMemoryProbe.
func (p *Probe) AvailableMemory() uint64 {
	return getAvailableMemory()
}

// MemoryPressure classifies current availability against the probe's
// thresholds, satisfying scheduler.ResourceProbe.
func (p *Probe) MemoryPressure() scheduler.MemoryLevel {
	avail := getAvailableMemory()
	switch {
	case avail <= p.criticalBytes:
		return scheduler.MemCritical
	case avail <= p.highBytes:
		return scheduler.MemHigh
	default:
		return scheduler.MemNormal
	}
}
