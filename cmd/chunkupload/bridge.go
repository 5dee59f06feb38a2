package main

import (
	"sync"

	"github.com/cascadewire/chunkupload/internal/eventbus"
	"github.com/cascadewire/chunkupload/internal/progress"
	"github.com/cascadewire/chunkupload/internal/uploader"
)

// progressBridge forwards internal/uploader's FileID-keyed bus events
// onto the progress.FileBarHandle for whichever file is currently being
// uploaded. runUpload processes files one at a time, so there is only
// ever one active handle to route events to; begin swaps it in before
// each Uploader.Upload call.
type progressBridge struct {
	mu      sync.Mutex
	current progress.FileBarHandle
	unsubs  []func()
}

func newProgressBridge(bus *eventbus.Bus) *progressBridge {
	b := &progressBridge{}
	b.unsubs = []func(){
		bus.On("progress", func(payload interface{}) {
			evt, ok := payload.(uploader.ProgressEvent)
			if !ok {
				return
			}
			if h := b.handle(); h != nil {
				h.UpdateProgress(evt.Percent / 100)
			}
		}),
		bus.On("chunkError", func(payload interface{}) {
			evt, ok := payload.(uploader.ChunkErrorEvent)
			if !ok {
				return
			}
			if h := b.handle(); h != nil && evt.Err != nil {
				h.SetRetry(evt.Err.RetryCount)
			}
		}),
		bus.OnPipe(uploader.HookAfterFingerprint, func(acc interface{}) interface{} {
			if h := b.handle(); h != nil {
				h.ResetStartTime()
			}
			return acc
		}),
	}
	return b
}

func (b *progressBridge) handle() progress.FileBarHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// begin marks bar as the target of subsequent bus events, for the file
// about to be passed to Uploader.Upload.
func (b *progressBridge) begin(bar progress.FileBarHandle) {
	b.mu.Lock()
	b.current = bar
	b.mu.Unlock()
}

func (b *progressBridge) unsubscribe() {
	for _, u := range b.unsubs {
		u()
	}
}
