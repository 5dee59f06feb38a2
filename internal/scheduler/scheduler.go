// Package scheduler implements a bounded-concurrency worker pool with a
// priority queue, per-task retry with backoff, cooperative pause/resume,
// memory- and network-aware dynamic concurrency, and cancellation.
//
// All mutable scheduler state is owned by a single dispatch goroutine;
// every public method communicates with it by posting a closure on an
// internal command channel, so a single logical execution context is
// maintained without a pervasive lock.
package scheduler

import (
	"container/heap"
	"context"
	"time"

	"github.com/cascadewire/chunkupload/internal/eventbus"
	"github.com/cascadewire/chunkupload/internal/logging"
	"github.com/cascadewire/chunkupload/internal/models"
)

// MemoryLevel is the coarse memory-pressure signal a ResourceProbe
// reports, consumed by the adaptive concurrency recompute.
type MemoryLevel string

const (
	MemNormal   MemoryLevel = "normal"
	MemHigh     MemoryLevel = "high"
	MemCritical MemoryLevel = "critical"
)

// ResourceProbe reports current memory pressure to the scheduler.
type ResourceProbe interface {
	MemoryPressure() MemoryLevel
}

// RetryCapFunc returns the maximum retry count for an error, e.g. the
// per-kind ceiling from ErrorCenter, which takes precedence over the
// scheduler's own retries default. Returning <= 0 means "no override,
// use the scheduler default."
type RetryCapFunc func(err error) int

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithResourceProbe wires a memory pressure probe into adaptive
// concurrency recomputation.
func WithResourceProbe(p ResourceProbe) Option {
	return func(s *Scheduler) { s.probe = p }
}

// WithRetryCap wires a per-error-kind retry ceiling lookup.
func WithRetryCap(f RetryCapFunc) Option {
	return func(s *Scheduler) { s.retryCapFor = f }
}

type runningTask struct {
	task      *models.Task
	cancel    context.CancelFunc
	cancelled bool
}

// Scheduler is a bounded-concurrency, priority-ordered task dispatcher.
type Scheduler struct {
	cfg    Config
	bus    *eventbus.Bus
	logger *logging.Logger
	probe  ResourceProbe

	retryCapFor RetryCapFunc

	cmdCh  chan func()
	doneCh chan struct{}

	// loop-owned state; touched only from run().
	ready              taskHeap
	running            map[uint64]*runningTask
	nextID             uint64
	nextSeq            uint64
	dynamicConcurrency int
	baseConcurrency    int
	userPaused         bool
	networkPaused      bool
	recoveryPaused     bool
	pausedTags         map[string]bool
	networkSamples     []bool // true = online
	idleTimer          *time.Timer
	idleActive         bool
	concurrencyTicker  *time.Ticker
	onlineEpoch        uint64
}

// New creates a Scheduler. Call Start before AddTask.
func New(bus *eventbus.Bus, logger *logging.Logger, cfg Config, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	cfg = cfg.withDefaults()
	s := &Scheduler{
		cfg:                cfg,
		bus:                bus,
		logger:             logger,
		cmdCh:              make(chan func(), 256),
		doneCh:             make(chan struct{}),
		running:            make(map[uint64]*runningTask),
		pausedTags:         make(map[string]bool),
		dynamicConcurrency: cfg.Concurrency,
		baseConcurrency:    cfg.Concurrency,
		idleActive:         true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the dispatch loop. It must be called before AddTask.
func (s *Scheduler) Start() {
	go s.run()
	if s.bus != nil {
		s.bus.On("networkStatusChange", func(payload interface{}) {
			evt, ok := payload.(NetworkStatusChange)
			if !ok {
				return
			}
			s.notifyNetwork(evt.Online)
		})
	}
}

// Stop halts the dispatch loop. Queued and running tasks are left as-is.
func (s *Scheduler) Stop() {
	close(s.doneCh)
}

func (s *Scheduler) sync(fn func()) {
	done := make(chan struct{})
	s.cmdCh <- func() {
		fn()
		close(done)
	}
	<-done
}

func (s *Scheduler) run() {
	s.concurrencyTicker = time.NewTicker(s.cfg.ConcurrencyCheckInterval)
	defer s.concurrencyTicker.Stop()
	for {
		select {
		case <-s.doneCh:
			return
		case fn := <-s.cmdCh:
			fn()
		case <-s.concurrencyTicker.C:
			s.recomputeConcurrency()
		}
	}
}

// AddTask queues run for execution and returns its task id.
func (s *Scheduler) AddTask(run models.Executor, priority models.Priority, metadata map[string]string) uint64 {
	var id uint64
	s.sync(func() {
		s.nextID++
		id = s.nextID
		s.nextSeq++
		t := &models.Task{
			ID:       id,
			Run:      run,
			Priority: priority,
			State:    models.TaskPending,
			Metadata: metadata,
			Sequence: s.nextSeq,
		}
		heap.Push(&s.ready, t)
		s.wakeIdle()
		s.bus.Emit("taskQueued", taskEvent(t))
		s.dispatch()
	})
	return id
}

// CancelTask marks a queued or running task cancelled.
func (s *Scheduler) CancelTask(id uint64) {
	s.sync(func() { s.cancelTask(id) })
}

func (s *Scheduler) cancelTask(id uint64) {
	if t := s.ready.removeByID(id); t != nil {
		t.State = models.TaskCancelled
		s.bus.Emit("taskCancelled", taskEvent(t))
		return
	}
	if rt, ok := s.running[id]; ok {
		rt.cancelled = true
		rt.task.State = models.TaskCancelled
		rt.cancel()
		s.bus.Emit("taskCancelled", taskEvent(rt.task))
	}
}

// CancelTasksWithMetadata cancels every queued/running task whose
// Metadata[key] == value (e.g. cancelling all chunks of a fileId).
func (s *Scheduler) CancelTasksWithMetadata(key, value string) {
	s.sync(func() {
		var ids []uint64
		for _, t := range s.ready {
			if t.Metadata[key] == value {
				ids = append(ids, t.ID)
			}
		}
		for _, rt := range s.running {
			if rt.task.Metadata[key] == value {
				ids = append(ids, rt.task.ID)
			}
		}
		for _, id := range ids {
			s.cancelTask(id)
		}
	})
}

// PrioritizeTask raises a queued task id to PriorityCritical, so it
// dispatches ahead of every non-critical task; among critical tasks
// it keeps its insertion order.
func (s *Scheduler) PrioritizeTask(id uint64) {
	s.sync(func() {
		for i, t := range s.ready {
			if t.ID == id {
				t.Priority = models.PriorityCritical
				heap.Fix(&s.ready, i)
				return
			}
		}
	})
}

// Abort cancels every queued and running task and clears timers.
func (s *Scheduler) Abort() {
	s.sync(func() {
		for s.ready.Len() > 0 {
			t := heap.Pop(&s.ready).(*models.Task)
			t.State = models.TaskCancelled
			s.bus.Emit("taskCancelled", taskEvent(t))
		}
		for id := range s.running {
			s.cancelTask(id)
		}
		if s.idleTimer != nil {
			s.idleTimer.Stop()
		}
	})
}

// Pause stops new dispatches; running tasks continue to completion.
func (s *Scheduler) Pause() {
	s.sync(func() {
		s.userPaused = true
		s.bus.Emit("schedulerPaused", nil)
	})
}

// Resume resumes dispatching after Pause.
func (s *Scheduler) Resume() {
	s.sync(func() {
		s.userPaused = false
		s.bus.Emit("schedulerResumed", nil)
		s.dispatch()
	})
}

// PauseGroup stops dispatching new tasks tagged metadata["fileId"]==tag.
// Tasks of that tag already running continue to completion.
func (s *Scheduler) PauseGroup(tag string) {
	s.sync(func() { s.pausedTags[tag] = true })
}

// ResumeGroup resumes dispatching for tag.
func (s *Scheduler) ResumeGroup(tag string) {
	s.sync(func() {
		delete(s.pausedTags, tag)
		s.dispatch()
	})
}

// SetConcurrency sets the dynamic concurrency cap (n >= 1).
func (s *Scheduler) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	s.sync(func() {
		prev := s.dynamicConcurrency
		s.dynamicConcurrency = n
		s.baseConcurrency = n
		if prev != n {
			s.bus.Emit("concurrencyChange", ConcurrencyChangeEvent{Previous: prev, Current: n, Reason: "manual"})
		}
		s.dispatch()
	})
}

// Stats summarizes the current pending and running counts. Terminal
// counts (completed, failed, cancelled) are not kept here; callers
// that reconcile them against a total track those externally.
type Stats struct {
	Pending int
	Running int
}

// Stats returns a snapshot of pending/running task counts.
func (s *Scheduler) Stats() Stats {
	var st Stats
	s.sync(func() {
		st.Pending = s.ready.Len()
		st.Running = len(s.running)
	})
	return st
}

func (s *Scheduler) wakeIdle() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	if !s.idleActive {
		s.idleActive = true
		if s.concurrencyTicker != nil {
			s.concurrencyTicker.Reset(s.cfg.ConcurrencyCheckInterval)
		}
	}
}

func (s *Scheduler) maybeIdle() {
	if s.ready.Len() == 0 && len(s.running) == 0 {
		if s.idleTimer == nil {
			s.idleTimer = time.AfterFunc(s.cfg.MaxIdleTime, func() {
				s.cmdCh <- func() {
					s.idleActive = false
					if s.concurrencyTicker != nil {
						s.concurrencyTicker.Stop()
					}
					s.bus.Emit("schedulerIdleTimeout", nil)
				}
			})
		}
	}
}

func (s *Scheduler) effectivePaused() bool {
	return s.userPaused || s.networkPaused || s.recoveryPaused
}

func (s *Scheduler) dispatch() {
	if s.effectivePaused() {
		return
	}
	for len(s.running) < s.dynamicConcurrency {
		t := s.popReady()
		if t == nil {
			return
		}
		s.startTask(t)
	}
}

// popReady pops the highest-priority ready task whose fileId tag is not
// paused, restoring any skipped tasks to the heap.
func (s *Scheduler) popReady() *models.Task {
	var held []*models.Task
	var found *models.Task
	for s.ready.Len() > 0 {
		t := heap.Pop(&s.ready).(*models.Task)
		if fid := t.Metadata["fileId"]; fid != "" && s.pausedTags[fid] {
			held = append(held, t)
			continue
		}
		found = t
		break
	}
	for _, t := range held {
		heap.Push(&s.ready, t)
	}
	return found
}

func (s *Scheduler) startTask(t *models.Task) {
	ctx, cancel := context.WithCancel(context.Background())
	t.State = models.TaskRunning
	t.StartedAt = time.Now()
	rt := &runningTask{task: t, cancel: cancel}
	s.running[t.ID] = rt
	s.bus.Emit("taskStarted", taskEvent(t))

	go func() {
		err := t.Run(ctx)
		s.cmdCh <- func() { s.onSettled(t.ID, err) }
	}()
}

func (s *Scheduler) onSettled(id uint64, err error) {
	rt, ok := s.running[id]
	if !ok {
		return // already handled by a prior cancellation
	}
	delete(s.running, id)
	t := rt.task
	if rt.cancelled {
		// Cancellation is terminal regardless of eventual settlement;
		// the settlement itself is discarded.
		s.dispatch()
		s.maybeIdle()
		return
	}

	t.EndedAt = time.Now()
	if err == nil {
		t.State = models.TaskCompleted
		s.bus.Emit("taskCompleted", taskEvent(t))
		s.dispatch()
		s.maybeIdle()
		return
	}

	t.LastError = err
	cap := s.retryCap(t, err)
	if t.RetryCount < cap {
		t.RetryCount++
		t.State = models.TaskPending
		delay := calculateBackoff(s.cfg, t.RetryCount-1)
		time.AfterFunc(delay, func() {
			s.cmdCh <- func() { s.requeue(t) }
		})
	} else {
		t.State = models.TaskFailed
		s.bus.Emit("taskFailed", taskEvent(t))
	}
	s.dispatch()
	s.maybeIdle()
}

func (s *Scheduler) requeue(t *models.Task) {
	if t.State == models.TaskCancelled {
		return
	}
	s.nextSeq++
	t.Sequence = s.nextSeq
	heap.Push(&s.ready, t)
	s.dispatch()
}

func (s *Scheduler) retryCap(t *models.Task, err error) int {
	if t.MaxRetries > 0 {
		return t.MaxRetries
	}
	if s.retryCapFor != nil {
		if cap := s.retryCapFor(err); cap > 0 {
			return cap
		}
	}
	return s.cfg.Retries
}

// notifyNetwork drives offline/online pause handling: offline pauses
// immediately; online resumes after a >=1s stability window. It also
// feeds the adaptive-concurrency stability sample window.
func (s *Scheduler) notifyNetwork(online bool) {
	s.cmdCh <- func() {
		s.networkSamples = append(s.networkSamples, online)
		if len(s.networkSamples) > s.cfg.NetworkStabilityWindow {
			s.networkSamples = s.networkSamples[len(s.networkSamples)-s.cfg.NetworkStabilityWindow:]
		}
		if !online {
			if !s.networkPaused {
				s.networkPaused = true
				s.bus.Emit("waitingForNetworkRecovery", nil)
			}
			return
		}
		s.onlineEpoch++
		epoch := s.onlineEpoch
		time.AfterFunc(1*time.Second, func() {
			s.cmdCh <- func() {
				if epoch != s.onlineEpoch {
					return // a later offline/online event superseded this wait
				}
				if s.networkPaused {
					s.networkPaused = false
					s.dispatch()
				}
			}
		})
	}
}
