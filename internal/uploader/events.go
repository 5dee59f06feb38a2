package uploader

import "github.com/cascadewire/chunkupload/internal/models"

// Named pipe interception points for plugin hooks. A registered pipe
// handler receives and returns the named
// accumulator; returning a modified value lets a plugin short-circuit
// or rewrite a phase (e.g. an afterPrecheck handler returning a URL
// triggers the instant-upload path).
const (
	HookBeforeUpload    = "beforeUpload"
	HookAfterFingerprint = "afterFingerprint"
	HookAfterPrecheck   = "afterPrecheck"
	HookBeforeChunk     = "beforeChunk"
	HookAfterChunk      = "afterChunk"
	HookBeforeMerge     = "beforeMerge"
	HookAfterUpload     = "afterUpload"
)

// ChunkSuccessEvent is the payload for the "chunkSuccess" event.
type ChunkSuccessEvent struct {
	FileID string
	Index  int
}

// ChunkErrorEvent is the payload for the "chunkError" event.
type ChunkErrorEvent struct {
	FileID string
	Index  int
	Err    *models.UploadError
}

// AfterUploadEvent is the payload for the "afterUpload" event.
type AfterUploadEvent struct {
	Upload *models.FileUpload
}

// CancelEvent is the payload for the "cancel" event.
type CancelEvent struct {
	FileID string
}

// ProgressEvent is the payload for the "progress" event: the weighted
// sum of per-chunk bytes done over the file's total size.
type ProgressEvent struct {
	FileID  string
	Percent float64
	Loaded  int64
	Total   int64
}

// ChunkProgressEvent is the payload for the "chunkProgress" event.
type ChunkProgressEvent struct {
	FileID     string
	ChunkIndex int
	Progress   float64
}

// Plugin registers pipe/event handlers against an Uploader's bus. A
// plugin that only needs one hook can implement Register by calling
// bus.OnPipe or bus.On directly rather than satisfying this interface.
type Plugin interface {
	Register(u *Uploader)
}
