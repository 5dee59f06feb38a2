package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cascadewire/chunkupload/internal/eventbus"
	"github.com/cascadewire/chunkupload/internal/logging"
)

func TestTruncatePathShortensLongPaths(t *testing.T) {
	got := truncatePath("/a/b/c/d/file.txt", 2)
	want := "…/d/file.txt"
	if got != want {
		t.Errorf("truncatePath: got %q, want %q", got, want)
	}
}

func TestTruncatePathLeavesShortPathsAlone(t *testing.T) {
	got := truncatePath("file.txt", 2)
	if got != "file.txt" {
		t.Errorf("truncatePath: got %q, want %q", got, "file.txt")
	}
}

func TestEventProgressEmitsOnStartAndFinish(t *testing.T) {
	bus := eventbus.New(logging.NewDefaultLogger())
	var events []ProgressEvent
	bus.On("progress", func(payload interface{}) {
		events = append(events, payload.(ProgressEvent))
	})

	p := NewEventProgress(bus, 0)
	p.Start(100, "uploading")
	p.Finish()

	if len(events) != 2 {
		t.Fatalf("expected 2 events (start + finish), got %d", len(events))
	}
	if events[0].Percent != 0 {
		t.Errorf("expected 0%% on start, got %f", events[0].Percent)
	}
	if events[len(events)-1].Percent != 100 {
		t.Errorf("expected 100%% on finish, got %f", events[len(events)-1].Percent)
	}
}

func TestEventProgressSuppressesSubThresholdUpdates(t *testing.T) {
	bus := eventbus.New(logging.NewDefaultLogger())
	var events []ProgressEvent
	bus.On("progress", func(payload interface{}) {
		events = append(events, payload.(ProgressEvent))
	})

	p := NewEventProgress(bus, 0)
	p.Start(1000, "uploading")
	events = nil // ignore the Start event

	p.Update(1) // 0.1%, below the 1-point threshold
	if len(events) != 0 {
		t.Errorf("expected sub-threshold update to be suppressed, got %d events", len(events))
	}

	p.Update(20) // 2%, crosses the threshold
	if len(events) != 1 {
		t.Errorf("expected one emitted event once threshold crossed, got %d", len(events))
	}
}

func TestNoOpProgressDoesNothing(t *testing.T) {
	p := NewNoOpProgress()
	p.Start(10, "x")
	p.Update(5)
	p.Finish()
	p.Error(nil)
	p.SetDescription("y")
}

func TestProgressReaderReportsBytesRead(t *testing.T) {
	data := []byte("hello world")
	var lastCurrent int64
	reporter := &recordingReporter{onUpdate: func(current int64) { lastCurrent = current }}

	r := NewProgressReader(bytes.NewReader(data), int64(len(data)), reporter)
	buf := make([]byte, len(data))
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(data) {
		t.Fatalf("expected to read %d bytes, got %d", len(data), n)
	}
	if lastCurrent != int64(len(data)) {
		t.Errorf("expected reporter updated to %d, got %d", len(data), lastCurrent)
	}
	if !strings.Contains(string(buf), "hello") {
		t.Errorf("unexpected buffer contents: %q", buf)
	}
}

type recordingReporter struct {
	onUpdate func(current int64)
}

func (r *recordingReporter) Start(total int64, description string) {}
func (r *recordingReporter) Update(current int64)                  { r.onUpdate(current) }
func (r *recordingReporter) Finish()                                {}
func (r *recordingReporter) Error(err error)                        {}
func (r *recordingReporter) SetDescription(desc string)             {}
