package scheduler

import "time"

// recomputeConcurrency runs the adaptive concurrency tick: shrink on
// memory pressure, shrink further on network instability.
// It runs directly on the dispatch goroutine (it is
// only ever called from the select loop in run()), so it touches
// scheduler state without posting through cmdCh.
func (s *Scheduler) recomputeConcurrency() {
	prev := s.dynamicConcurrency
	next := s.baseConcurrency
	reason := ""

	if s.probe != nil {
		switch s.probe.MemoryPressure() {
		case MemCritical:
			s.pauseForRecovery()
			return
		case MemHigh:
			next = maxInt(1, int(float64(next)*0.75))
			reason = "memory-high"
		}
	}

	if transitions := s.countTransitions(); transitions > 3 {
		next = maxInt(1, int(float64(next)*0.6))
		if reason != "" {
			reason += ",network-unstable"
		} else {
			reason = "network-unstable"
		}
	}

	if next != prev {
		s.dynamicConcurrency = next
		s.bus.Emit("concurrencyChange", ConcurrencyChangeEvent{Previous: prev, Current: next, Reason: reason})
		s.dispatch()
	}
}

func (s *Scheduler) pauseForRecovery() {
	if s.recoveryPaused {
		return
	}
	s.recoveryPaused = true
	s.bus.Emit("schedulerPaused", nil)
	time.AfterFunc(2*time.Second, func() {
		s.cmdCh <- func() {
			s.recoveryPaused = false
			s.bus.Emit("schedulerResumed", nil)
			s.dispatch()
		}
	})
}

func (s *Scheduler) countTransitions() int {
	t := 0
	for i := 1; i < len(s.networkSamples); i++ {
		if s.networkSamples[i] != s.networkSamples[i-1] {
			t++
		}
	}
	return t
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
