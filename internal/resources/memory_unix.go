//go:build darwin || linux

package resources

import "runtime"

// getAvailableMemory returns an estimate of available system memory in
// bytes. Go has no portable way to query host-level free memory, so
// this conservatively estimates from heap allocation against an
// assumed baseline.
func getAvailableMemory() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	const assumedSystemMemory = 4 * 1024 * 1024 * 1024 // 4 GiB default
	currentlyAllocated := m.Alloc

	if assumedSystemMemory > currentlyAllocated {
		available := uint64(float64(assumedSystemMemory-currentlyAllocated) * 0.75)
		if available < minSystemMemory {
			available = minSystemMemory
		}
		if available > maxSystemMemory {
			available = maxSystemMemory
		}
		return available
	}

	return 2 * 1024 * 1024 * 1024 // 2 GiB fallback
}
