package chunkfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestGetOptimalChunkSizeBoundaries(t *testing.T) {
	m := NewManager()

	cases := []struct {
		name     string
		size     int64
		wantSize int64
	}{
		{"tiny", 1 * KiB, 1 * MiB},
		{"just under 10MiB", 10*MiB - 1, 1 * MiB},
		{"exactly 10MiB", 10 * MiB, 2 * MiB},
		{"just under 100MiB", 100*MiB - 1, 2 * MiB},
		{"exactly 100MiB", 100 * MiB, 5 * MiB},
		{"just under 1GiB", 1*GiB - 1, 5 * MiB},
		{"exactly 1GiB", 1 * GiB, 10 * MiB},
		{"huge", 10 * GiB, 10 * MiB},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := m.GetOptimalChunkSize(tc.size)
			if got != tc.wantSize {
				t.Fatalf("GetOptimalChunkSize(%d) = %d, want %d", tc.size, got, tc.wantSize)
			}
		})
	}
}

func TestGetOptimalChunkSizeScalesWithMemoryProbeAboveOneGiB(t *testing.T) {
	m := NewManager(WithMemoryProbe(func() uint64 { return 1000 * MiB }))
	got := m.GetOptimalChunkSize(2 * GiB)
	want := int64(50 * MiB) // memory budget 1000 MiB / 20 lands exactly on maxChunkSize
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestGetOptimalChunkSizeRespectsCustomBounds(t *testing.T) {
	m := NewManager(WithChunkSizeBounds(4*MiB, 8*MiB))
	got := m.GetOptimalChunkSize(1 * KiB) // table says 1 MiB, clamped up to the 4 MiB floor
	if got != 4*MiB {
		t.Fatalf("got %d, want %d", got, 4*MiB)
	}
}

func TestCreateChunksIsDenseAndCoversWholeFile(t *testing.T) {
	m := NewManager()
	const fileSize = 10*MiB + 37
	const chunkSize = 3 * MiB

	chunks := m.CreateChunks("f1", fileSize, chunkSize)

	var total int64
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d, want dense index %d", i, c.Index, i)
		}
		if i > 0 && c.Start != chunks[i-1].End {
			t.Fatalf("gap between chunk %d end %d and chunk %d start %d", i-1, chunks[i-1].End, i, c.Start)
		}
		total += c.Size()
	}
	if total != fileSize {
		t.Fatalf("sum of chunk sizes = %d, want %d", total, fileSize)
	}
	last := chunks[len(chunks)-1]
	if last.End != fileSize {
		t.Fatalf("last chunk end = %d, want %d", last.End, fileSize)
	}
}

func TestCreateChunksExactMultipleProducesNoTrailingEmptyChunk(t *testing.T) {
	m := NewManager()
	chunks := m.CreateChunks("f1", 9*MiB, 3*MiB)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for _, c := range chunks {
		if c.Size() != 3*MiB {
			t.Fatalf("chunk %d has size %d, want %d", c.Index, c.Size(), 3*MiB)
		}
	}
}

func TestCreateChunksZeroByteFileYieldsOneEmptyChunk(t *testing.T) {
	m := NewManager()
	chunks := m.CreateChunks("f1", 0, 1*MiB)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Size() != 0 {
		t.Fatalf("expected zero-length chunk, got size %d", chunks[0].Size())
	}
}

func TestReadChunkReturnsExactRange(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := bytes.Repeat([]byte("abcdefgh"), 1024) // 8 KiB
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write test file: %v", err)
	}

	chunks := m.CreateChunks("f1", int64(len(content)), 2*KiB)
	for _, c := range chunks {
		buf, err := m.ReadChunk(path, c)
		if err != nil {
			t.Fatalf("ReadChunk(%d): %v", c.Index, err)
		}
		want := content[c.Start:c.End]
		if !bytes.Equal(*buf, want) {
			t.Fatalf("chunk %d content mismatch", c.Index)
		}
		m.ReleaseBuffer(buf)
	}
}

func TestFingerprintIsDeterministicAndAlgorithmSelectable(t *testing.T) {
	content := []byte("hello chunked world")

	sha, err := Fingerprint(bytes.NewReader(content), "sha256")
	if err != nil {
		t.Fatalf("sha256 fingerprint: %v", err)
	}
	sha2, err := Fingerprint(bytes.NewReader(content), "sha256")
	if err != nil {
		t.Fatalf("sha256 fingerprint (again): %v", err)
	}
	if sha != sha2 {
		t.Fatalf("fingerprint not deterministic: %s != %s", sha, sha2)
	}

	md5sum, err := Fingerprint(bytes.NewReader(content), "md5")
	if err != nil {
		t.Fatalf("md5 fingerprint: %v", err)
	}
	if md5sum == sha {
		t.Fatalf("md5 and sha256 fingerprints should differ")
	}

	if _, err := Fingerprint(bytes.NewReader(content), "crc32"); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
}

func TestBufferPoolReusesAndClearsBuffers(t *testing.T) {
	p := NewBufferPool(1 * KiB)

	buf := p.Get(512)
	copy(*buf, []byte("secret-chunk-data"))
	p.Put(buf)

	reused := p.Get(512)
	for i, b := range *reused {
		if b != 0 {
			t.Fatalf("reused buffer not cleared at index %d", i)
		}
	}

	big := p.Get(4 * KiB)
	if int64(len(*big)) != 4*KiB {
		t.Fatalf("got len %d, want %d", len(*big), 4*KiB)
	}
}
