package s3

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Backend dispatches chunk uploads as S3 multipart parts. One Backend
// handles one in-flight multipart upload per object key; callers create
// a Backend per file being uploaded.
type Backend struct {
	client *s3.Client
	cfg    Config

	mu        sync.Mutex
	uploadID  string
	objectKey string
	parts     []types.CompletedPart
}

// New builds a Backend backed by a real S3 client for cfg.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("s3: bucket and region are required")
	}

	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = awssdk.String(cfg.Endpoint)
		}
	})

	return &Backend{client: client, cfg: cfg}, nil
}

// Precheck maps to HeadObject: it reports whether objectKey already
// exists and, if so, its size — used by the Uploader's precheck phase
// to detect a prior completed upload under the same fingerprint.
func (b *Backend) Precheck(ctx context.Context, objectKey string) (exists bool, size int64, err error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: awssdk.String(b.cfg.Bucket),
		Key:    awssdk.String(objectKey),
	})
	if err != nil {
		return false, 0, nil // treat any HeadObject error as "not found"
	}
	size = int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return true, size, nil
}

// InitiateUpload starts a new multipart upload for objectKey.
func (b *Backend) InitiateUpload(ctx context.Context, objectKey string) error {
	resp, err := b.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: awssdk.String(b.cfg.Bucket),
		Key:    awssdk.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("s3: create multipart upload: %w", err)
	}

	b.mu.Lock()
	b.uploadID = *resp.UploadId
	b.objectKey = objectKey
	b.parts = nil
	b.mu.Unlock()
	return nil
}

// UploadChunk uploads one chunk as an S3 part. index is the chunk's
// dense 0-based index; S3 part numbers are 1-based, so index+1 is used.
func (b *Backend) UploadChunk(ctx context.Context, index int, data []byte) error {
	b.mu.Lock()
	uploadID, objectKey := b.uploadID, b.objectKey
	b.mu.Unlock()
	if uploadID == "" {
		return fmt.Errorf("s3: UploadChunk called before InitiateUpload")
	}

	partNumber := int32(index + 1)
	partCtx, cancel := context.WithTimeout(ctx, b.cfg.partTimeout())
	defer cancel()

	resp, err := b.client.UploadPart(partCtx, &s3.UploadPartInput{
		Bucket:        awssdk.String(b.cfg.Bucket),
		Key:           awssdk.String(objectKey),
		PartNumber:    awssdk.Int32(partNumber),
		UploadId:      awssdk.String(uploadID),
		Body:          bytes.NewReader(data),
		ContentLength: awssdk.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("s3: upload part %d: %w", partNumber, err)
	}

	b.mu.Lock()
	b.parts = append(b.parts, types.CompletedPart{
		ETag:       resp.ETag,
		PartNumber: awssdk.Int32(partNumber),
	})
	b.mu.Unlock()
	return nil
}

// CompleteUpload finishes the multipart upload, merging all previously
// uploaded parts into the final object.
func (b *Backend) CompleteUpload(ctx context.Context) error {
	b.mu.Lock()
	uploadID, objectKey := b.uploadID, b.objectKey
	parts := make([]types.CompletedPart, len(b.parts))
	copy(parts, b.parts)
	b.mu.Unlock()

	sort.Slice(parts, func(i, j int) bool {
		return *parts[i].PartNumber < *parts[j].PartNumber
	})

	_, err := b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   awssdk.String(b.cfg.Bucket),
		Key:      awssdk.String(objectKey),
		UploadId: awssdk.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		return fmt.Errorf("s3: complete multipart upload: %w", err)
	}
	return nil
}

// AbortUpload cancels an in-progress multipart upload so S3 stops
// billing for the orphaned parts.
func (b *Backend) AbortUpload(ctx context.Context) error {
	b.mu.Lock()
	uploadID, objectKey := b.uploadID, b.objectKey
	b.mu.Unlock()
	if uploadID == "" {
		return nil
	}

	_, err := b.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   awssdk.String(b.cfg.Bucket),
		Key:      awssdk.String(objectKey),
		UploadId: awssdk.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("s3: abort multipart upload: %w", err)
	}
	return nil
}
