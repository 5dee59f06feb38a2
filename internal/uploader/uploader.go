// Package uploader implements the upload pipeline: the
// validate -> fingerprint -> precheck -> plan -> upload -> merge -> complete
// state machine that drives one file through chunking, dispatch, retry,
// and resumable persistence. It depends only on the Transport interface,
// the scheduler, the error center, and the event bus, so callers assemble
// the dependency graph explicitly rather than the package constructing
// any of it itself.
package uploader

import (
	"context"
	"fmt"
	"math"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cascadewire/chunkupload/internal/chunkfile"
	"github.com/cascadewire/chunkupload/internal/errs"
	"github.com/cascadewire/chunkupload/internal/eventbus"
	"github.com/cascadewire/chunkupload/internal/logging"
	"github.com/cascadewire/chunkupload/internal/models"
	"github.com/cascadewire/chunkupload/internal/scheduler"
	"github.com/cascadewire/chunkupload/internal/state"
	"github.com/cascadewire/chunkupload/internal/validation"
	"github.com/cascadewire/chunkupload/internal/workerpool"
)

// Config holds the pipeline's policy knobs, distinct from the wiring of
// its collaborators (passed separately to New).
type Config struct {
	Rules          validation.UploadRules
	HashAlgorithm  string // "md5", "sha1", "sha256" (default)
	EnablePrecheck bool
}

// Option configures an Uploader at construction.
type Option func(*Uploader)

// WithWorkerPool offloads fingerprint hashing to pool, falling back to
// synchronous hashing if pool rejects the job.
func WithWorkerPool(pool *workerpool.Pool) Option {
	return func(u *Uploader) { u.workers = pool }
}

// Uploader drives files through the upload pipeline. Its zero value is
// not usable; build one with New.
type Uploader struct {
	cfg       Config
	bus       *eventbus.Bus
	files     *chunkfile.Manager
	transport Transport
	scheduler *scheduler.Scheduler
	errors    *errs.Center
	store     state.Store
	logger    *logging.Logger
	workers   *workerpool.Pool

	mu      sync.Mutex
	active  map[string]*models.FileUpload
	cancel  map[string]context.CancelFunc
	lastPct map[string]float64
}

// New builds an Uploader. scheduler must already have had Start called.
func New(cfg Config, bus *eventbus.Bus, files *chunkfile.Manager, transport Transport, sched *scheduler.Scheduler, center *errs.Center, store state.Store, logger *logging.Logger, opts ...Option) *Uploader {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	u := &Uploader{
		cfg:       cfg,
		bus:       bus,
		files:     files,
		transport: transport,
		scheduler: sched,
		errors:    center,
		store:     store,
		logger:    logger,
		active:    make(map[string]*models.FileUpload),
		cancel:    make(map[string]context.CancelFunc),
		lastPct:   make(map[string]float64),
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Use registers a plugin against this Uploader's bus.
func (u *Uploader) Use(p Plugin) { p.Register(u) }

// Status returns a defensive copy of the tracked FileUpload for fileID,
// or nil if it is not active.
func (u *Uploader) Status(fileID string) *models.FileUpload {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active[fileID].Clone()
}

// Upload drives localPath through the full pipeline and returns the
// terminal FileUpload. Cancellation during validate/fingerprint, before
// a FileID exists, is observed only through ctx; once a FileID exists,
// Cancel(fileID) also takes effect.
func (u *Uploader) Upload(ctx context.Context, localPath string) (*models.FileUpload, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	u.bus.Emit("beforeUpload", localPath)
	localPath = toStr(u.bus.Pipe(HookBeforeUpload, localPath))

	info, mimeType, err := u.statAndType(localPath)
	if err != nil {
		return nil, u.fail(nil, "validate", err)
	}
	if err := u.cfg.Rules.ValidateUpload(info.name, info.size, mimeType); err != nil {
		return nil, u.fail(nil, "validate", err)
	}

	// Phase 2: fingerprint. FileID is derived directly from the content
	// fingerprint so it is stable across resumptions of the same file.
	fingerprint, err := u.fingerprint(ctx, localPath)
	if err != nil {
		return nil, u.fail(nil, "fingerprint", err)
	}
	fingerprint = toStr(u.bus.Pipe(HookAfterFingerprint, fingerprint))
	fileID := fingerprint

	fu, err := u.files.PrepareFile(fileID, localPath)
	if err != nil {
		return nil, u.fail(nil, "fingerprint", err)
	}
	fu.Fingerprint = fingerprint
	fu.MimeType = mimeType
	fu.State = models.StateHashing
	fu.CreatedAt, fu.UpdatedAt = time.Now(), time.Now()

	if resumed, err := u.store.Load(fileID); err == nil && state.IsResumable(resumed) {
		fu.ReceivedChunks = resumed.ReceivedChunks
		fu.BytesDone = resumed.BytesDone
		fu.UploadID = resumed.UploadID
	}

	u.track(fileID, fu, cancel)
	defer u.untrack(fileID)

	// Phase 3: precheck.
	fu.State = models.StatePrechecking
	if u.cfg.EnablePrecheck {
		resp, err := u.transport.Precheck(ctx, fileID, PrecheckRequest{
			Name: fu.Name, Size: fu.Size, Type: fu.MimeType, Fingerprint: fu.Fingerprint,
		})
		if err != nil {
			return nil, u.fail(fu, "precheck", err)
		}
		pipedResp := u.bus.Pipe(HookAfterPrecheck, resp)
		if r, ok := pipedResp.(PrecheckResponse); ok {
			resp = r
		}
		if resp.Exists {
			fu.State = models.StateCompleted
			fu.ResultURL = resp.URL
			fu.BytesDone = fu.Size
			fu.UpdatedAt = time.Now()
			u.bus.Emit("instantUpload:success", AfterUploadEvent{Upload: fu})
			u.persist(fu)
			u.bus.Emit("afterUpload", AfterUploadEvent{Upload: fu})
			u.bus.Pipe(HookAfterUpload, fu)
			return fu, nil
		}
		fu.UploadID = resp.UploadID
		if len(resp.ReceivedChunks) > 0 {
			for _, idx := range resp.ReceivedChunks {
				fu.ReceivedChunks[idx] = true
			}
		}
	}

	// Phase 4: plan.
	chunks := u.files.CreateChunks(fileID, fu.Size, fu.ChunkSize)
	u.persist(fu)

	// Phase 5: upload.
	fu.State = models.StateUploading
	meta := ChunkMeta{UploadID: fu.UploadID, Fingerprint: fu.Fingerprint, TotalChunks: fu.TotalChunks}
	if err := u.runChunks(ctx, fu, localPath, chunks, meta); err != nil {
		return nil, u.fail(fu, "upload", err)
	}

	// Phase 6: merge.
	fu.State = models.StateMerging
	u.persist(fu)
	mergeReq := MergeRequest{UploadID: fu.UploadID, Fingerprint: fu.Fingerprint, Name: fu.Name, TotalChunks: fu.TotalChunks}
	mergeReq = toMergeReq(u.bus.Pipe(HookBeforeMerge, mergeReq))
	resp, err := u.transport.Merge(ctx, fileID, mergeReq)
	if err != nil {
		return nil, u.fail(fu, "merge", err)
	}

	// Phase 7: complete.
	fu.State = models.StateCompleted
	fu.ResultURL = resp.URL
	fu.UpdatedAt = time.Now()
	u.persist(fu)
	u.bus.Emit("afterUpload", AfterUploadEvent{Upload: fu})
	u.bus.Pipe(HookAfterUpload, fu)
	return fu, nil
}

type statInfo struct {
	name string
	size int64
}

// statAndType stats path for its name/size and guesses a MIME type from
// its extension; no pack library does MIME sniffing, so this is the one
// deliberate stdlib-only concern in the pipeline.
func (u *Uploader) statAndType(path string) (statInfo, string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return statInfo{}, "", fmt.Errorf("uploader: stat %s: %w", path, err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return statInfo{name: fi.Name(), size: fi.Size()}, mimeType, nil
}

// fingerprint computes localPath's content hash, offloading to the
// worker pool when one is configured and falling back to synchronous
// computation on any submit or run failure.
func (u *Uploader) fingerprint(ctx context.Context, localPath string) (string, error) {
	algo := u.cfg.HashAlgorithm
	if u.workers == nil {
		return chunkfile.FingerprintFile(localPath, algo)
	}

	results, err := u.workers.Submit(ctx, func(ctx context.Context) (interface{}, error) {
		return chunkfile.FingerprintFile(localPath, algo)
	})
	if err != nil {
		u.logger.Debugf("uploader: worker pool unavailable, hashing inline: %v", err)
		return chunkfile.FingerprintFile(localPath, algo)
	}

	select {
	case res := <-results:
		if res.Err != nil {
			u.logger.Debugf("uploader: worker hash failed, retrying inline: %v", res.Err)
			return chunkfile.FingerprintFile(localPath, algo)
		}
		sum, _ := res.Value.(string)
		return sum, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type chunkOutcome struct {
	index int
	state models.TaskState
	err   error
}

// runChunks dispatches every pending chunk of fu onto the scheduler and
// blocks until all have reached a terminal state, persisting progress
// as each one completes. On the first permanent failure it cancels the
// remaining queued chunks for fu.FileID.
func (u *Uploader) runChunks(ctx context.Context, fu *models.FileUpload, localPath string, chunks []*models.Chunk, meta ChunkMeta) error {
	pending := make([]*models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !fu.ReceivedChunks[c.Index] {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	outcomes := make(chan chunkOutcome, len(pending))
	unsubFns := u.subscribeChunkOutcomes(fu.FileID, outcomes)
	defer func() {
		for _, fn := range unsubFns {
			fn()
		}
	}()

	for _, c := range chunks {
		if fu.ReceivedChunks[c.Index] {
			continue
		}
		chunk := c
		piped := u.bus.Pipe(HookBeforeChunk, chunk)
		if pc, ok := piped.(*models.Chunk); ok {
			chunk = pc
		}

		u.scheduler.AddTask(func(taskCtx context.Context) error {
			buf, err := u.files.ReadChunk(localPath, chunk)
			if err != nil {
				uerr := u.errors.HandleError(err, errs.Context{
					Group: "chunk-upload",
					Chunk: &models.ChunkInfo{Index: chunk.Index, RetryCount: chunk.RetryCount},
				})
				u.bus.Emit("chunkError", ChunkErrorEvent{FileID: fu.FileID, Index: chunk.Index, Err: uerr})
				return err
			}
			defer u.files.ReleaseBuffer(buf)

			u.bus.Emit("chunkProgress", ChunkProgressEvent{FileID: fu.FileID, ChunkIndex: chunk.Index, Progress: 0})
			err = u.transport.UploadChunk(taskCtx, fu.FileID, chunk.Index, meta, *buf)
			if err != nil {
				uerr := u.errors.HandleError(err, errs.Context{
					Group:          "chunk-upload",
					Chunk:          &models.ChunkInfo{Index: chunk.Index, RetryCount: chunk.RetryCount},
					NetworkQuality: u.transport.NetworkQuality(),
				})
				u.bus.Emit("chunkError", ChunkErrorEvent{FileID: fu.FileID, Index: chunk.Index, Err: uerr})
				return err
			}
			u.bus.Emit("chunkProgress", ChunkProgressEvent{FileID: fu.FileID, ChunkIndex: chunk.Index, Progress: 1})
			u.bus.Emit("chunkSuccess", ChunkSuccessEvent{FileID: fu.FileID, Index: chunk.Index})
			u.bus.Pipe(HookAfterChunk, chunk)
			return nil
		}, models.PriorityNormal, map[string]string{
			"fileId":     fu.FileID,
			"chunkIndex": strconv.Itoa(chunk.Index),
		})
	}

	var firstErr error
	remaining := len(pending)
	cancelled := false
	for remaining > 0 {
		select {
		case o := <-outcomes:
			remaining--
			switch o.state {
			case models.TaskCompleted:
				fu.ReceivedChunks[o.index] = true
				fu.BytesDone = sumReceivedBytes(chunks, fu.ReceivedChunks)
				fu.UpdatedAt = time.Now()
				u.reportProgress(fu)
				u.persist(fu)
			case models.TaskFailed:
				if firstErr == nil {
					firstErr = o.err
				}
				if !cancelled {
					cancelled = true
					u.scheduler.CancelTasksWithMetadata("fileId", fu.FileID)
				}
			case models.TaskCancelled:
				if firstErr == nil {
					firstErr = fmt.Errorf("uploader: chunk %d cancelled", o.index)
				}
			}
		case <-ctx.Done():
			u.scheduler.CancelTasksWithMetadata("fileId", fu.FileID)
			return ctx.Err()
		}
	}
	return firstErr
}

// subscribeChunkOutcomes listens for taskCompleted/taskFailed/
// taskCancelled scoped to fileID for the duration of one chunk-dispatch
// phase, translating scheduler.TaskEvent into chunkOutcome values.
func (u *Uploader) subscribeChunkOutcomes(fileID string, out chan<- chunkOutcome) []func() {
	handler := func(state models.TaskState) eventbus.Handler {
		return func(payload interface{}) {
			te, ok := payload.(scheduler.TaskEvent)
			if !ok {
				return
			}
			if te.Metadata["fileId"] != fileID {
				return
			}
			idx, err := strconv.Atoi(te.Metadata["chunkIndex"])
			if err != nil {
				return
			}
			out <- chunkOutcome{index: idx, state: state, err: te.Err}
		}
	}
	return []func(){
		u.bus.On("taskCompleted", handler(models.TaskCompleted)),
		u.bus.On("taskFailed", handler(models.TaskFailed)),
		u.bus.On("taskCancelled", handler(models.TaskCancelled)),
	}
}

// reportProgress emits a "progress" event, but only when the rounded
// percent has moved by at least one point since the last emission for
// this file, or the transfer has just completed, matching the
// threshold EventProgress.emit applies to its own percent stream.
func (u *Uploader) reportProgress(fu *models.FileUpload) {
	pct := fu.Progress() * 100

	u.mu.Lock()
	last, seen := u.lastPct[fu.FileID]
	if seen && pct-last < 1 && math.Round(pct) == math.Round(last) && pct < 100 {
		u.mu.Unlock()
		return
	}
	u.lastPct[fu.FileID] = pct
	u.mu.Unlock()

	u.bus.Emit("progress", ProgressEvent{
		FileID:  fu.FileID,
		Percent: pct,
		Loaded:  fu.BytesDone,
		Total:   fu.Size,
	})
}

func (u *Uploader) persist(fu *models.FileUpload) {
	if u.store == nil {
		return
	}
	if err := u.store.Save(fu); err != nil {
		u.logger.Errorf("uploader: persist state for %s: %v", fu.FileID, err)
	}
}

func (u *Uploader) fail(fu *models.FileUpload, group string, cause error) error {
	uerr := u.errors.HandleError(cause, errs.Context{Group: group})
	if fu != nil {
		fu.State = models.StateFailed
		fu.LastError = uerr
		fu.UpdatedAt = time.Now()
		u.persist(fu)
		u.bus.Emit("afterUpload", AfterUploadEvent{Upload: fu})
	}
	u.bus.Emit("error", uerr)
	return uerr
}

func (u *Uploader) track(fileID string, fu *models.FileUpload, cancel context.CancelFunc) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.active[fileID] = fu
	u.cancel[fileID] = cancel
}

func (u *Uploader) untrack(fileID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.active, fileID)
	delete(u.cancel, fileID)
	delete(u.lastPct, fileID)
}

// Cancel stops fileID's in-flight upload: it cancels queued/running
// chunk tasks, aborts the transport's in-flight requests, and unblocks
// the Upload call via its tracked context.
func (u *Uploader) Cancel(fileID string) {
	u.scheduler.CancelTasksWithMetadata("fileId", fileID)
	u.transport.Abort(fileID)
	u.bus.Emit("cancel", CancelEvent{FileID: fileID})

	u.mu.Lock()
	cancel := u.cancel[fileID]
	if fu, ok := u.active[fileID]; ok {
		fu.State = models.StateCancelled
	}
	u.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Pause stops dispatching new chunk tasks for fileID; tasks already
// running continue to completion.
func (u *Uploader) Pause(fileID string) { u.scheduler.PauseGroup(fileID) }

// Resume resumes dispatching chunk tasks for fileID after Pause.
func (u *Uploader) Resume(fileID string) { u.scheduler.ResumeGroup(fileID) }

func sumReceivedBytes(chunks []*models.Chunk, received map[int]bool) int64 {
	var total int64
	for _, c := range chunks {
		if received[c.Index] {
			total += c.Size()
		}
	}
	return total
}

func toStr(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toMergeReq(v interface{}) MergeRequest {
	if r, ok := v.(MergeRequest); ok {
		return r
	}
	return MergeRequest{}
}
