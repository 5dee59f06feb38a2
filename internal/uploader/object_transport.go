package uploader

import (
	"context"
	"fmt"
	"sync"
)

// Backend is the shape internal/transport/s3.Backend and
// internal/transport/azure.Backend both already satisfy: precheck by
// HeadObject/GetProperties, then initiate/part-upload/complete/abort
// against one object per fileID.
type Backend interface {
	Precheck(ctx context.Context, key string) (exists bool, size int64, err error)
	InitiateUpload(ctx context.Context, key string) error
	UploadChunk(ctx context.Context, index int, data []byte) error
	CompleteUpload(ctx context.Context) error
	AbortUpload(ctx context.Context) error
}

// BackendFactory constructs a fresh Backend for one file's
// object key. Callers wire this to s3.New/azure.New so this package
// never needs to import a cloud SDK directly.
type BackendFactory func(ctx context.Context, key string) (Backend, error)

// objectTransport adapts a per-file object-storage backend to the
// Transport interface. It holds one backend instance per fileID, since
// S3/Azure multipart/block-list state is scoped to a single object.
type objectTransport struct {
	factory BackendFactory

	mu       sync.Mutex
	backends map[string]Backend
}

// NewObjectTransport builds a Transport backed by factory, for the
// "s3" or "azure" Config.Transport selections.
func NewObjectTransport(factory BackendFactory) Transport {
	return &objectTransport{factory: factory, backends: make(map[string]Backend)}
}

func (t *objectTransport) backendFor(ctx context.Context, fileID string) (Backend, error) {
	t.mu.Lock()
	b, ok := t.backends[fileID]
	t.mu.Unlock()
	if ok {
		return b, nil
	}

	b, err := t.factory(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("uploader: create object backend for %s: %w", fileID, err)
	}
	t.mu.Lock()
	t.backends[fileID] = b
	t.mu.Unlock()
	return b, nil
}

func (t *objectTransport) Precheck(ctx context.Context, fileID string, req PrecheckRequest) (PrecheckResponse, error) {
	b, err := t.backendFor(ctx, fileID)
	if err != nil {
		return PrecheckResponse{}, err
	}

	exists, _, err := b.Precheck(ctx, fileID)
	if err != nil {
		return PrecheckResponse{}, fmt.Errorf("uploader: object precheck: %w", err)
	}
	if exists {
		return PrecheckResponse{Exists: true, URL: fileID, UploadID: fileID}, nil
	}

	if err := b.InitiateUpload(ctx, fileID); err != nil {
		return PrecheckResponse{}, fmt.Errorf("uploader: initiate object upload: %w", err)
	}
	return PrecheckResponse{Exists: false, UploadID: fileID}, nil
}

func (t *objectTransport) UploadChunk(ctx context.Context, fileID string, index int, meta ChunkMeta, data []byte) error {
	b, err := t.backendFor(ctx, fileID)
	if err != nil {
		return err
	}
	if err := b.UploadChunk(ctx, index, data); err != nil {
		return fmt.Errorf("uploader: object chunk %d upload: %w", index, err)
	}
	return nil
}

func (t *objectTransport) Merge(ctx context.Context, fileID string, req MergeRequest) (MergeResponse, error) {
	b, err := t.backendFor(ctx, fileID)
	if err != nil {
		return MergeResponse{}, err
	}
	if err := b.CompleteUpload(ctx); err != nil {
		return MergeResponse{}, fmt.Errorf("uploader: complete object upload: %w", err)
	}

	t.mu.Lock()
	delete(t.backends, fileID)
	t.mu.Unlock()
	return MergeResponse{URL: fileID}, nil
}

// Abort best-effort aborts fileID's in-progress object upload. Unlike
// httpTransport, there is no in-flight-request cancellation signal to
// give: the SDK call either hasn't started (nothing to cancel) or is
// already in flight and will be cleaned up server-side by AbortUpload.
func (t *objectTransport) Abort(fileID string) {
	t.mu.Lock()
	b, ok := t.backends[fileID]
	delete(t.backends, fileID)
	t.mu.Unlock()
	if ok {
		_ = b.AbortUpload(context.Background())
	}
}

func (t *objectTransport) AbortAll() {
	t.mu.Lock()
	all := t.backends
	t.backends = make(map[string]Backend)
	t.mu.Unlock()
	for _, b := range all {
		_ = b.AbortUpload(context.Background())
	}
}

// NetworkQuality is unknown for object-storage backends: retry and
// connection-health decisions there are internal to the AWS/Azure SDK
// clients, not observable through this interface.
func (t *objectTransport) NetworkQuality() string { return "UNKNOWN" }
