package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cascadewire/chunkupload/internal/models"
)

func sampleUpload(id string) *models.FileUpload {
	return &models.FileUpload{
		FileID:         id,
		Name:           "big.bin",
		Size:           100 * 1024 * 1024,
		ChunkSize:      5 * 1024 * 1024,
		TotalChunks:    20,
		ReceivedChunks: map[int]bool{0: true, 1: true},
		State:          models.StateUploading,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

func runStoreContract(t *testing.T, store Store) {
	t.Helper()

	if u, err := store.Load("missing"); err != nil || u != nil {
		t.Fatalf("Load(missing) = (%v, %v), want (nil, nil)", u, err)
	}

	want := sampleUpload("file-1")
	if err := store.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("file-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name != want.Name || got.Size != want.Size || got.TotalChunks != want.TotalChunks {
		t.Fatalf("loaded upload mismatch: got %+v, want %+v", got, want)
	}
	if !got.ReceivedChunks[0] || !got.ReceivedChunks[1] {
		t.Fatalf("ReceivedChunks not round-tripped: %v", got.ReceivedChunks)
	}

	all, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("List returned %d entries, want 1", len(all))
	}

	if err := store.Delete("file-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if u, err := store.Load("file-1"); err != nil || u != nil {
		t.Fatalf("Load after delete = (%v, %v), want (nil, nil)", u, err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestFileStoreContract(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	runStoreContract(t, store)
}

func TestFileStoreSaveIsAtomicViaTempRename(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Save(sampleUpload("file-2")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "file-2"+sidecarSuffix+".tmp")); err == nil {
		t.Fatalf("leftover temp file after successful save")
	}
}

func TestMemoryStoreSaveClonesReceivedChunks(t *testing.T) {
	store := NewMemoryStore()
	u := sampleUpload("file-3")
	if err := store.Save(u); err != nil {
		t.Fatalf("Save: %v", err)
	}
	u.ReceivedChunks[99] = true // mutate caller's copy after saving

	got, err := store.Load("file-3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ReceivedChunks[99] {
		t.Fatalf("MemoryStore.Save did not clone ReceivedChunks, saw caller's post-save mutation")
	}
}

func TestIsResumable(t *testing.T) {
	u := sampleUpload("file-4")
	u.UpdatedAt = time.Now()
	if !IsResumable(u) {
		t.Fatalf("expected fresh, non-terminal upload to be resumable")
	}

	terminal := sampleUpload("file-5")
	terminal.State = models.StateCompleted
	if IsResumable(terminal) {
		t.Fatalf("expected terminal upload to not be resumable")
	}

	stale := sampleUpload("file-6")
	stale.UpdatedAt = time.Now().Add(-8 * 24 * time.Hour)
	if IsResumable(stale) {
		t.Fatalf("expected stale upload beyond MaxResumeAge to not be resumable")
	}
}
