package resources

import (
	"sync"
	"time"
)

const (
	maxThroughputSamples     = 20
	minScaleUpThroughputMBps = 8.0
	maxScaleUpVarianceMBps   = 2.0
	scaleDownThresholdRatio  = 0.6
)

// Sample is a single throughput measurement.
type Sample struct {
	Timestamp   time.Time
	BytesPerSec float64
}

// ThroughputMonitor tracks per-file throughput history to detect
// saturation (scale up) or degradation (scale down), grounded on the
// teacher's internal/resources.ThroughputMonitor. The uploader
// pipeline consults it as a supplemental scale hint alongside the
// scheduler's own memory/network-driven adaptive concurrency; it does
// not itself change scheduler concurrency.
type ThroughputMonitor struct {
	mu      sync.Mutex
	samples map[string][]Sample
}

// NewThroughputMonitor creates an empty monitor.
func NewThroughputMonitor() *ThroughputMonitor {
	return &ThroughputMonitor{samples: make(map[string][]Sample)}
}

// Record adds a throughput sample for fileID.
func (m *ThroughputMonitor) Record(fileID string, bytesPerSecond float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := append(m.samples[fileID], Sample{Timestamp: time.Now(), BytesPerSec: bytesPerSecond})
	if len(samples) > maxThroughputSamples {
		samples = samples[len(samples)-maxThroughputSamples:]
	}
	m.samples[fileID] = samples
}

// ShouldScaleUp reports whether fileID's recent throughput is high and
// stable enough to justify requesting more concurrency.
func (m *ThroughputMonitor) ShouldScaleUp(fileID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := m.samples[fileID]
	if len(samples) < 3 {
		return false
	}
	avg := average(samples)
	varc := variance(samples, avg)

	avgMBps := avg / (1024 * 1024)
	varianceMBps := varc / (1024 * 1024)
	return avgMBps > minScaleUpThroughputMBps && varianceMBps < maxScaleUpVarianceMBps
}

// ShouldScaleDown reports whether fileID's throughput has dropped
// meaningfully against its own recent history.
func (m *ThroughputMonitor) ShouldScaleDown(fileID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	samples := m.samples[fileID]
	if len(samples) < 6 {
		return false
	}
	recent := samples[len(samples)-3:]
	older := samples[len(samples)-6 : len(samples)-3]

	recentAvg := average(recent)
	olderAvg := average(older)
	return recentAvg < olderAvg*scaleDownThresholdRatio
}

// Cleanup discards samples for a finished file.
func (m *ThroughputMonitor) Cleanup(fileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.samples, fileID)
}

func average(samples []Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.BytesPerSec
	}
	return sum / float64(len(samples))
}

func variance(samples []Sample, avg float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		d := s.BytesPerSec - avg
		sumSquares += d * d
	}
	return sumSquares / float64(len(samples))
}
