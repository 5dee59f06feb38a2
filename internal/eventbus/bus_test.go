package eventbus

import (
	"testing"
)

func TestEmitPriorityOrder(t *testing.T) {
	b := New(nil)
	var order []int

	b.On("x", func(payload interface{}) { order = append(order, 1) }, WithPriority(1))
	b.On("x", func(payload interface{}) { order = append(order, 3) }, WithPriority(3))
	b.On("x", func(payload interface{}) { order = append(order, 2) }, WithPriority(2))
	b.On("x", func(payload interface{}) { order = append(order, 20) }, WithPriority(2))

	if had := b.Emit("x", nil); !had {
		t.Fatalf("expected Emit to report listeners present")
	}

	want := []int{3, 2, 20, 1}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestEmitNoListenersReturnsFalse(t *testing.T) {
	b := New(nil)
	if b.Emit("nothing", nil) {
		t.Fatalf("expected false for event with no listeners")
	}
}

func TestOncePrunedAfterFirstEmit(t *testing.T) {
	b := New(nil)
	calls := 0
	b.Once("x", func(payload interface{}) { calls++ })

	b.Emit("x", nil)
	b.Emit("x", nil)

	if calls != 1 {
		t.Fatalf("once handler fired %d times, want 1", calls)
	}
	if b.ListenerCount("x") != 0 {
		t.Fatalf("expected once handler removed after firing")
	}
}

func TestHandlerPanicDoesNotStopRemaining(t *testing.T) {
	b := New(nil)
	second := false

	b.On("x", func(payload interface{}) { panic("boom") }, WithPriority(1))
	b.On("x", func(payload interface{}) { second = true }, WithPriority(0))

	b.Emit("x", nil)

	if !second {
		t.Fatalf("expected second handler to still fire after first panicked")
	}
	if b.DroppedHandlerCount() != 1 {
		t.Fatalf("expected 1 recovered panic, got %d", b.DroppedHandlerCount())
	}
}

func TestOffByTag(t *testing.T) {
	b := New(nil)
	b.On("a", func(payload interface{}) {}, WithTag("plugin-1"))
	b.On("b", func(payload interface{}) {}, WithTag("plugin-1"))
	b.On("a", func(payload interface{}) {}, WithTag("plugin-2"))

	removed := b.OffByTag("plugin-1")
	if removed != 2 {
		t.Fatalf("OffByTag removed %d, want 2", removed)
	}
	if b.ListenerCount("a") != 1 {
		t.Fatalf("expected 1 remaining handler on 'a'")
	}
	if b.ListenerCount("b") != 0 {
		t.Fatalf("expected 0 remaining handlers on 'b'")
	}
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	b := New(nil)
	unsubscribe := b.On("x", func(payload interface{}) {})
	unsubscribe()
	if b.ListenerCount("x") != 0 {
		t.Fatalf("expected handler removed after calling unsubscribe")
	}
}

func TestNamespaceIsolation(t *testing.T) {
	root := New(nil)
	ns := root.CreateNamespace("chunks")

	rootFired := false
	nsFired := false
	root.On("progress", func(payload interface{}) { rootFired = true })
	ns.On("progress", func(payload interface{}) { nsFired = true })

	ns.Emit("progress", nil)

	if nsFired != true {
		t.Fatalf("expected namespaced handler to fire")
	}
	if rootFired {
		t.Fatalf("expected root bus not to observe namespaced emit")
	}
}

func TestBridgeForwardsToParent(t *testing.T) {
	root := New(nil)
	ns := root.CreateNamespace("chunks")

	var seen interface{}
	root.On("progress", func(payload interface{}) { seen = payload })
	ns.Bridge("progress")

	ns.Emit("progress", 42)

	if seen != 42 {
		t.Fatalf("expected bridged payload 42, got %v", seen)
	}
}

func TestPipeChainsAccumulator(t *testing.T) {
	b := New(nil)
	b.OnPipe("afterFingerprint", func(acc interface{}) interface{} {
		return acc.(int) + 1
	}, WithPriority(1))
	b.OnPipe("afterFingerprint", func(acc interface{}) interface{} {
		return acc.(int) * 10
	}, WithPriority(0))

	result := b.Pipe("afterFingerprint", 1)
	if result.(int) != 20 {
		t.Fatalf("got %v, want 20", result)
	}
}

func TestPipePanicKeepsPriorValue(t *testing.T) {
	b := New(nil)
	b.OnPipe("x", func(acc interface{}) interface{} {
		panic("nope")
	}, WithPriority(1))
	b.OnPipe("x", func(acc interface{}) interface{} {
		return acc.(int) + 1
	}, WithPriority(0))

	result := b.Pipe("x", 5)
	if result.(int) != 6 {
		t.Fatalf("got %v, want 6 (panic should keep prior value then next handler applies)", result)
	}
}
