// Package chunkfile implements the FileManager component of the
// upload pipeline: computing an optimal chunk size for a file,
// slicing it into dense chunk descriptors, and lazily materializing
// chunk bytes through a pooled buffer so resident memory stays
// bounded by concurrency x chunk size rather than file size.
package chunkfile

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/cascadewire/chunkupload/internal/models"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB

	// MinChunkSize and MaxChunkSize bound every chunk size this
	// manager will produce, regardless of the tiered table below.
	MinChunkSize int64 = 256 * KiB
	MaxChunkSize int64 = 50 * MiB
)

// MemoryProbe reports currently available system memory in bytes. It
// is consulted only for files over 1 GiB, where the optimal chunk
// size scales with available headroom.
type MemoryProbe func() uint64

// Manager prepares files for upload and slices them into chunks.
type Manager struct {
	minChunkSize int64
	maxChunkSize int64
	probe        MemoryProbe
	pool         *BufferPool
}

// Option configures a Manager.
type Option func(*Manager)

// WithChunkSizeBounds overrides the default [MinChunkSize, MaxChunkSize] clamp.
func WithChunkSizeBounds(min, max int64) Option {
	return func(m *Manager) {
		m.minChunkSize = min
		m.maxChunkSize = max
	}
}

// WithMemoryProbe wires an availability probe for the >1 GiB tier.
func WithMemoryProbe(p MemoryProbe) Option {
	return func(m *Manager) { m.probe = p }
}

// NewManager builds a Manager with the default chunk size bounds.
func NewManager(opts ...Option) *Manager {
	m := &Manager{minChunkSize: MinChunkSize, maxChunkSize: MaxChunkSize}
	for _, o := range opts {
		o(m)
	}
	m.pool = NewBufferPool(m.maxChunkSize)
	return m
}

func (m *Manager) clamp(size int64) int64 {
	if size < m.minChunkSize {
		return m.minChunkSize
	}
	if size > m.maxChunkSize {
		return m.maxChunkSize
	}
	return size
}

// GetOptimalChunkSize picks a chunk size from a tiered table:
// < 10 MiB -> 1 MiB, 10-100 MiB -> 2 MiB, 100 MiB-1 GiB -> 5 MiB,
// > 1 GiB -> 10-50 MiB scaled by available memory. Every result is
// clamped to [minChunkSize, maxChunkSize].
func (m *Manager) GetOptimalChunkSize(fileSize int64) int64 {
	switch {
	case fileSize < 10*MiB:
		return m.clamp(1 * MiB)
	case fileSize < 100*MiB:
		return m.clamp(2 * MiB)
	case fileSize < 1*GiB:
		return m.clamp(5 * MiB)
	default:
		size := int64(10 * MiB)
		if m.probe != nil {
			if avail := m.probe(); avail > 0 {
				// Budget roughly a twentieth of available memory per
				// chunk so ~20 chunks could be resident at once.
				if budget := int64(avail / 20); budget > size {
					size = budget
				}
			}
		}
		return m.clamp(size)
	}
}

// PrepareFile stats path and returns a new FileUpload descriptor with
// its chunk plan sized but not yet fingerprinted.
func (m *Manager) PrepareFile(fileID, path string) (*models.FileUpload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("chunkfile: stat %s: %w", path, err)
	}
	chunkSize := m.GetOptimalChunkSize(info.Size())
	totalChunks := int(info.Size() / chunkSize)
	if info.Size()%chunkSize != 0 || info.Size() == 0 {
		totalChunks++
	}
	return &models.FileUpload{
		FileID:         fileID,
		Name:           info.Name(),
		Size:           info.Size(),
		ChunkSize:      chunkSize,
		TotalChunks:    totalChunks,
		ReceivedChunks: make(map[int]bool),
		State:          models.StatePending,
	}, nil
}

// CreateChunks produces the dense, zero-indexed chunk descriptors for
// a file of fileSize bytes sliced at chunkSize. The final chunk may be
// shorter than chunkSize; a zero-length file yields a single
// zero-length chunk so the merge phase always has something to
// acknowledge.
func (m *Manager) CreateChunks(fileID string, fileSize, chunkSize int64) []*models.Chunk {
	if chunkSize <= 0 {
		chunkSize = m.GetOptimalChunkSize(fileSize)
	}
	if fileSize == 0 {
		return []*models.Chunk{{FileID: fileID, Index: 0, Start: 0, End: 0, State: models.ChunkPending}}
	}

	chunks := make([]*models.Chunk, 0, fileSize/chunkSize+1)
	idx := 0
	for start := int64(0); start < fileSize; start += chunkSize {
		end := start + chunkSize
		if end > fileSize {
			end = fileSize
		}
		chunks = append(chunks, &models.Chunk{
			FileID: fileID,
			Index:  idx,
			Start:  start,
			End:    end,
			State:  models.ChunkPending,
		})
		idx++
	}
	return chunks
}

// ReadChunk reads chunk c's bytes from path into a pooled buffer. The
// caller must return the buffer via ReleaseBuffer once it has been
// sent.
func (m *Manager) ReadChunk(path string, c *models.Chunk) (*[]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chunkfile: open %s: %w", path, err)
	}
	defer f.Close()

	buf := m.pool.Get(c.Size())
	if _, err := f.Seek(c.Start, io.SeekStart); err != nil {
		m.pool.Put(buf)
		return nil, fmt.Errorf("chunkfile: seek chunk %d: %w", c.Index, err)
	}
	if _, err := io.ReadFull(f, *buf); err != nil && err != io.EOF {
		m.pool.Put(buf)
		return nil, fmt.Errorf("chunkfile: read chunk %d: %w", c.Index, err)
	}
	return buf, nil
}

// ReleaseBuffer returns buf to the pool.
func (m *Manager) ReleaseBuffer(buf *[]byte) {
	m.pool.Put(buf)
}

// ReleaseFileChunks is a no-op hook kept for parity with other
// FileManager implementations that cache per-file chunk state; this
// manager holds no such cache, so releasing buffers per chunk (via
// ReleaseBuffer) is all that's required.
func (m *Manager) ReleaseFileChunks(fileID string) {}

// Cleanup is a no-op hook for symmetry with ReleaseFileChunks.
func (m *Manager) Cleanup(fileID string) {}

// Fingerprint computes a stable content hash of r using algorithm
// ("md5", "sha1", or "sha256"; empty defaults to "sha256").
func Fingerprint(r io.Reader, algorithm string) (string, error) {
	var h hash.Hash
	switch algorithm {
	case "md5":
		h = md5.New()
	case "sha1":
		h = sha1.New()
	case "sha256", "":
		h = sha256.New()
	default:
		return "", fmt.Errorf("chunkfile: unsupported hash algorithm %q", algorithm)
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("chunkfile: fingerprint: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// FingerprintFile opens path and computes its Fingerprint.
func FingerprintFile(path, algorithm string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("chunkfile: open %s: %w", path, err)
	}
	defer f.Close()
	return Fingerprint(f, algorithm)
}
