package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
)

// readSeekCloser adapts a bytes.Reader to io.ReadSeekCloser, which
// StageBlock requires.
type readSeekCloser struct {
	*bytes.Reader
}

func (readSeekCloser) Close() error { return nil }

// Backend dispatches chunk uploads as Azure Block Blob StageBlock
// calls. One Backend handles one in-flight blob upload; callers create
// a Backend per file being uploaded.
type Backend struct {
	client *azblob.Client
	cfg    Config

	mu       sync.Mutex
	blobName string
	blockIDs []string
}

// New builds a Backend. When cfg.ServiceURL already carries a SAS
// token (a "?" in the URL), the client is built with no additional
// credential; otherwise AccountName/AccountKey are used to build a
// shared-key credential.
func New(cfg Config) (*Backend, error) {
	if cfg.ServiceURL == "" || cfg.Container == "" {
		return nil, fmt.Errorf("azure: ServiceURL and Container are required")
	}

	var client *azblob.Client
	var err error
	if cfg.AccountName != "" && cfg.AccountKey != "" {
		cred, credErr := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("azure: shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(cfg.ServiceURL, cred, nil)
	} else {
		client, err = azblob.NewClientWithNoCredential(cfg.ServiceURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("azure: new client: %w", err)
	}

	return &Backend{client: client, cfg: cfg}, nil
}

func (b *Backend) blockBlobClient(blobName string) *blockblob.Client {
	return b.client.ServiceClient().NewContainerClient(b.cfg.Container).NewBlockBlobClient(blobName)
}

// Precheck maps to GetProperties: it reports whether blobName already
// exists and, if so, its size.
func (b *Backend) Precheck(ctx context.Context, blobName string) (exists bool, size int64, err error) {
	props, err := b.blockBlobClient(blobName).GetProperties(ctx, nil)
	if err != nil {
		return false, 0, nil // treat any GetProperties error as "not found"
	}
	size = int64(0)
	if props.ContentLength != nil {
		size = *props.ContentLength
	}
	return true, size, nil
}

// InitiateUpload resets the block-ID ledger for a new upload of blobName.
// Azure has no explicit "begin" call; staged blocks remain uncommitted
// until CommitBlockList.
func (b *Backend) InitiateUpload(ctx context.Context, blobName string) error {
	b.mu.Lock()
	b.blobName = blobName
	b.blockIDs = nil
	b.mu.Unlock()
	return nil
}

// blockID derives a deterministic, fixed-length base64 block ID from a
// chunk index, matching what CommitBlockList later references.
func blockID(index int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("block-%010d", index)))
}

// UploadChunk stages one chunk as a block. index is the chunk's dense
// 0-based index.
func (b *Backend) UploadChunk(ctx context.Context, index int, data []byte) error {
	b.mu.Lock()
	blobName := b.blobName
	b.mu.Unlock()
	if blobName == "" {
		return fmt.Errorf("azure: UploadChunk called before InitiateUpload")
	}

	id := blockID(index)
	reader := &readSeekCloser{Reader: bytes.NewReader(data)}
	if _, err := b.blockBlobClient(blobName).StageBlock(ctx, id, reader, nil); err != nil {
		return fmt.Errorf("azure: stage block %d: %w", index, err)
	}

	b.mu.Lock()
	b.blockIDs = append(b.blockIDs, id)
	b.mu.Unlock()
	return nil
}

// CompleteUpload commits the staged blocks into the final blob.
func (b *Backend) CompleteUpload(ctx context.Context) error {
	b.mu.Lock()
	blobName := b.blobName
	ids := make([]string, len(b.blockIDs))
	copy(ids, b.blockIDs)
	b.mu.Unlock()

	if _, err := b.blockBlobClient(blobName).CommitBlockList(ctx, ids, &blockblob.CommitBlockListOptions{}); err != nil {
		return fmt.Errorf("azure: commit block list: %w", err)
	}
	return nil
}

// AbortUpload discards staged-but-uncommitted blocks by simply
// forgetting the block-ID ledger; Azure garbage-collects orphaned
// uncommitted blocks after about a week with no explicit abort call.
func (b *Backend) AbortUpload(ctx context.Context) error {
	b.mu.Lock()
	b.blockIDs = nil
	b.mu.Unlock()
	return nil
}
