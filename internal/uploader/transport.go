package uploader

import "context"

// PrecheckRequest is the body of the precheck call.
type PrecheckRequest struct {
	Name        string
	Size        int64
	Type        string
	Fingerprint string
}

// PrecheckResponse is the decoded precheck response. Exists short-
// circuits the pipeline to the instant-upload path; ReceivedChunks (a
// partial match) lets phase 5 skip chunks already on the server.
type PrecheckResponse struct {
	Exists         bool
	URL            string
	UploadID       string
	ReceivedChunks []int
}

// ChunkMeta carries the identifying headers a chunk upload conveys
// alongside its bytes (X-Upload-Id/X-Chunk-Index/X-Chunk-Count/
// X-Fingerprint).
type ChunkMeta struct {
	UploadID    string
	Fingerprint string
	TotalChunks int
}

// MergeRequest is the body of the merge call.
type MergeRequest struct {
	UploadID    string
	Fingerprint string
	Name        string
	TotalChunks int
}

// MergeResponse is the decoded merge response: the final object URL.
type MergeResponse struct {
	URL string
}

// Transport is the network adapter contract, narrowed to the three
// calls the pipeline issues. The Uploader depends only on this
// interface, so a deployment can swap the generic HTTP
// precheck/chunk/merge protocol for a direct object-storage backend
// (internal/transport/s3, internal/transport/azure) without the
// pipeline itself changing.
type Transport interface {
	Precheck(ctx context.Context, fileID string, req PrecheckRequest) (PrecheckResponse, error)
	UploadChunk(ctx context.Context, fileID string, index int, meta ChunkMeta, data []byte) error
	Merge(ctx context.Context, fileID string, req MergeRequest) (MergeResponse, error)
	Abort(fileID string)
	AbortAll()
	NetworkQuality() string
}
