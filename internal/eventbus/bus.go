// Package eventbus implements a prioritized, synchronous publish/subscribe
// fabric that glues the upload engine's subsystems together and lets
// plugins observe or intercept the pipeline.
//
// Handlers for a single event fire synchronously in descending priority
// order; ties preserve registration order. A handler that panics is
// recovered, logged, and does not prevent remaining handlers from firing.
package eventbus

import (
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cascadewire/chunkupload/internal/logging"
)

// Handler receives an event payload. Used with On/Once/Emit.
type Handler func(payload interface{})

// PipeHandler receives and returns an accumulator. Used with OnPipe/Pipe;
// a handler that panics leaves the prior accumulator value untouched.
type PipeHandler func(acc interface{}) interface{}

type subscription struct {
	id       uint64
	handler  Handler
	once     bool
	priority int
	tag      string
	seq      uint64
}

type pipeSubscription struct {
	id       uint64
	handler  PipeHandler
	priority int
	tag      string
	seq      uint64
}

// Option configures a subscription registered via On/Once/OnPipe.
type Option func(*subscriptionOpts)

type subscriptionOpts struct {
	priority int
	tag      string
}

// WithPriority sets a handler's dispatch priority; larger fires first.
func WithPriority(p int) Option {
	return func(o *subscriptionOpts) { o.priority = p }
}

// WithTag attaches a group-cancellation tag to a handler.
func WithTag(tag string) Option {
	return func(o *subscriptionOpts) { o.tag = tag }
}

// Bus is a namespaced event bus. The zero value is not usable; use New.
type Bus struct {
	mu       sync.Mutex
	subs     map[string][]*subscription
	pipes    map[string][]*pipeSubscription
	nextID   uint64
	nextSeq  uint64
	prefix   string
	parent   *Bus
	logger   *logging.Logger
	dropped  atomic.Uint64
}

// New creates a root event bus. logger may be nil, in which case a
// default library logger is used for recovered-panic diagnostics.
func New(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Bus{
		subs:   make(map[string][]*subscription),
		pipes:  make(map[string][]*pipeSubscription),
		logger: logger,
	}
}

func (b *Bus) qualify(name string) string {
	if b.prefix == "" {
		return name
	}
	return b.prefix + ":" + name
}

// On registers a handler for name, returning an unsubscribe function.
func (b *Bus) On(name string, h Handler, opts ...Option) func() {
	return b.on(name, h, false, opts...)
}

// Once registers a handler that is removed after its first invocation
// within a single Emit call.
func (b *Bus) Once(name string, h Handler, opts ...Option) func() {
	return b.on(name, h, true, opts...)
}

func (b *Bus) on(name string, h Handler, once bool, opts ...Option) func() {
	o := subscriptionOpts{}
	for _, opt := range opts {
		opt(&o)
	}
	name = b.qualify(name)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.nextSeq++
	sub := &subscription{id: id, handler: h, once: once, priority: o.priority, tag: o.tag, seq: b.nextSeq}
	b.subs[name] = append(b.subs[name], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.removeSubLocked(name, id)
	}
}

// OnPipe registers a pipe-chain handler for name.
func (b *Bus) OnPipe(name string, h PipeHandler, opts ...Option) func() {
	o := subscriptionOpts{}
	for _, opt := range opts {
		opt(&o)
	}
	name = b.qualify(name)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.nextSeq++
	sub := &pipeSubscription{id: id, handler: h, priority: o.priority, tag: o.tag, seq: b.nextSeq}
	b.pipes[name] = append(b.pipes[name], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.removePipeLocked(name, id)
	}
}

func (b *Bus) removeSubLocked(name string, id uint64) {
	list := b.subs[name]
	for i, s := range list {
		if s.id == id {
			b.subs[name] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (b *Bus) removePipeLocked(name string, id uint64) {
	list := b.pipes[name]
	for i, s := range list {
		if s.id == id {
			b.pipes[name] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// snapshot returns a priority-desc, registration-order-stable copy of
// the handlers registered for name at the moment of the call. Handlers
// added during the resulting Emit do not see the event already in flight.
func (b *Bus) snapshot(name string) []*subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.subs[name]
	if len(src) == 0 {
		return nil
	}
	out := make([]*subscription, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].priority > out[j].priority
	})
	return out
}

func (b *Bus) pipeSnapshot(name string) []*pipeSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	src := b.pipes[name]
	if len(src) == 0 {
		return nil
	}
	out := make([]*pipeSubscription, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].priority > out[j].priority
	})
	return out
}

// Emit dispatches payload to all handlers registered for name, in
// priority-desc then registration-order. It returns whether there was
// at least one listener. Safe to call from within a handler (nested
// emits complete before the outer Emit returns).
func (b *Bus) Emit(name string, payload interface{}) bool {
	qname := b.qualify(name)
	subs := b.snapshot(qname)
	if len(subs) == 0 {
		return false
	}

	var onceIDs []uint64
	for _, s := range subs {
		b.invoke(name, s, payload)
		if s.once {
			onceIDs = append(onceIDs, s.id)
		}
	}
	if len(onceIDs) > 0 {
		b.mu.Lock()
		for _, id := range onceIDs {
			b.removeSubLocked(qname, id)
		}
		b.mu.Unlock()
	}
	return true
}

func (b *Bus) invoke(name string, s *subscription, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			b.dropped.Add(1)
			b.logger.Errorf("eventbus: handler for %q panicked: %v", name, r)
		}
	}()
	s.handler(payload)
}

// Pipe chains pipe handlers registered for name: each receives the
// accumulator and returns a new one. A panicking handler is recovered
// and the chain keeps the prior accumulator value.
func (b *Bus) Pipe(name string, seed interface{}) interface{} {
	qname := b.qualify(name)
	subs := b.pipeSnapshot(qname)
	acc := seed
	for _, s := range subs {
		acc = b.invokePipe(name, s, acc)
	}
	return acc
}

func (b *Bus) invokePipe(name string, s *pipeSubscription, acc interface{}) (result interface{}) {
	result = acc
	defer func() {
		if r := recover(); r != nil {
			b.dropped.Add(1)
			b.logger.Errorf("eventbus: pipe handler for %q panicked: %v", name, r)
			result = acc
		}
	}()
	return s.handler(acc)
}

// Off removes subscriptions registered for name. If handler is non-nil,
// only subscriptions whose handler has the same underlying function
// pointer are removed (Go cannot compare arbitrary closures for
// equality; this matches the common comparison-by-code-pointer idiom).
func (b *Bus) Off(name string, handler Handler) {
	qname := b.qualify(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	if handler == nil {
		delete(b.subs, qname)
		return
	}
	target := reflect.ValueOf(handler).Pointer()
	list := b.subs[qname]
	kept := list[:0:0]
	for _, s := range list {
		if reflect.ValueOf(s.handler).Pointer() != target {
			kept = append(kept, s)
		}
	}
	b.subs[qname] = kept
}

// OffByTag removes every handler (plain and pipe) across every event
// name carrying tag, returning the number removed.
func (b *Bus) OffByTag(tag string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for name, list := range b.subs {
		kept := list[:0:0]
		for _, s := range list {
			if s.tag == tag {
				count++
				continue
			}
			kept = append(kept, s)
		}
		b.subs[name] = kept
	}
	for name, list := range b.pipes {
		kept := list[:0:0]
		for _, s := range list {
			if s.tag == tag {
				count++
				continue
			}
			kept = append(kept, s)
		}
		b.pipes[name] = kept
	}
	return count
}

// ListenerCount returns the number of plain-emit handlers registered
// for name (pipe handlers are not counted).
func (b *Bus) ListenerCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[b.qualify(name)])
}

// CreateNamespace returns a child bus whose Emit/On calls are
// transparently prefixed with "ns:". The child shares no handler state
// with the parent except through an explicit Bridge call.
func (b *Bus) CreateNamespace(ns string) *Bus {
	prefix := ns
	if b.prefix != "" {
		prefix = b.prefix + ":" + ns
	}
	return &Bus{
		subs:   make(map[string][]*subscription),
		pipes:  make(map[string][]*pipeSubscription),
		prefix: prefix,
		parent: b,
		logger: b.logger,
	}
}

// Bridge forwards every emission of name on this bus to the same name
// on its parent (the bus CreateNamespace was called on), without
// exposing this bus's own namespace prefix to the parent's
// subscribers. A no-op on the root bus, which has no parent.
func (b *Bus) Bridge(name string) func() {
	if b.parent == nil {
		return func() {}
	}
	return b.On(name, func(payload interface{}) {
		b.parent.Emit(name, payload)
	})
}

// DroppedHandlerCount returns how many handler invocations (Emit or
// Pipe) have panicked since the bus was created.
func (b *Bus) DroppedHandlerCount() uint64 {
	return b.dropped.Load()
}
