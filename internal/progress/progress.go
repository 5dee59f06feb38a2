// Package progress reports upload progress both to an interactive
// terminal (progress bars) and to the event bus, so a caller embedding
// the upload engine in a non-interactive host can observe the same
// "progress"/"chunkProgress" events a CLI session renders as bars.
package progress

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/cascadewire/chunkupload/internal/eventbus"
)

// Reporter is the interface for reporting progress on a single file,
// independent of whether it ends up on a terminal or the event bus.
type Reporter interface {
	Start(total int64, description string)
	Update(current int64)
	Finish()
	Error(err error)
	SetDescription(desc string)
}

// CLIProgress implements Reporter with a terminal progress bar.
type CLIProgress struct {
	bar *progressbar.ProgressBar
}

// NewCLIProgress creates a new CLI progress reporter.
func NewCLIProgress() *CLIProgress {
	return &CLIProgress{}
}

// Start initializes the progress bar with total size and description.
func (p *CLIProgress) Start(total int64, description string) {
	p.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update updates the progress bar to the current position.
func (p *CLIProgress) Update(current int64) {
	if p.bar != nil {
		_ = p.bar.Set64(current)
	}
}

// Finish completes the progress bar.
func (p *CLIProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Error displays an error message.
func (p *CLIProgress) Error(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}
}

// SetDescription updates the progress bar description.
func (p *CLIProgress) SetDescription(desc string) {
	if p.bar != nil {
		p.bar.Describe(desc)
	}
}

// EventProgress implements Reporter by emitting "progress" events on an
// eventbus.Bus instead of drawing anything, for hosts embedding the
// upload engine (a library caller, a daemon) that want the raw
// percent/loaded/total numbers rather than a rendered bar.
type EventProgress struct {
	bus       *eventbus.Bus
	fileIndex int
	total     int64
	lastPct   float64
}

// NewEventProgress creates a progress reporter that emits events on bus
// for the file at fileIndex.
func NewEventProgress(bus *eventbus.Bus, fileIndex int) *EventProgress {
	return &EventProgress{bus: bus, fileIndex: fileIndex, lastPct: -1}
}

// Start emits the initial zero-progress event.
func (p *EventProgress) Start(total int64, description string) {
	p.total = total
	p.lastPct = -1
	p.emit(0)
}

// Update emits a progress event if the rounded percent changed by at
// least one point since the last emission, matching the pipeline's
// general rule of suppressing sub-threshold progress noise.
func (p *EventProgress) Update(current int64) {
	p.emit(current)
}

func (p *EventProgress) emit(current int64) {
	if p.bus == nil || p.total <= 0 {
		return
	}
	pct := float64(current) / float64(p.total) * 100
	if p.lastPct >= 0 && pct-p.lastPct < 1 && math.Round(pct) == math.Round(p.lastPct) && pct < 100 {
		return
	}
	p.lastPct = pct
	p.bus.Emit("progress", ProgressEvent{
		FileIndex: p.fileIndex,
		Percent:   pct,
		Loaded:    current,
		Total:     p.total,
	})
}

// Finish emits a final 100% progress event.
func (p *EventProgress) Finish() {
	p.lastPct = -1
	p.emit(p.total)
}

// Error emits an "error" event carrying err.
func (p *EventProgress) Error(err error) {
	if err != nil && p.bus != nil {
		p.bus.Emit("error", err)
	}
}

// SetDescription is a no-op for EventProgress; descriptions have no
// event-bus analogue.
func (p *EventProgress) SetDescription(desc string) {}

// NoOpProgress is a progress reporter that does nothing.
type NoOpProgress struct{}

// NewNoOpProgress creates a new no-op progress reporter.
func NewNoOpProgress() *NoOpProgress {
	return &NoOpProgress{}
}

func (p *NoOpProgress) Start(total int64, description string) {}
func (p *NoOpProgress) Update(current int64)                  {}
func (p *NoOpProgress) Finish()                                {}
func (p *NoOpProgress) Error(err error)                        {}
func (p *NoOpProgress) SetDescription(desc string)             {}

// ProgressReader wraps an io.Reader to report progress as it is read.
type ProgressReader struct {
	reader   io.Reader
	reporter Reporter
	total    int64
	current  int64
}

// NewProgressReader creates a new progress-reporting reader.
func NewProgressReader(reader io.Reader, total int64, reporter Reporter) *ProgressReader {
	return &ProgressReader{
		reader:   reader,
		reporter: reporter,
		total:    total,
	}
}

// Read implements io.Reader, reporting progress after each read.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	pr.reporter.Update(pr.current)
	return n, err
}
