package main

import (
	"path/filepath"
	"testing"

	"github.com/cascadewire/chunkupload/internal/config"
	"github.com/cascadewire/chunkupload/internal/state"
)

func TestBuildStoreDefaultsToMemory(t *testing.T) {
	cfg := &config.Config{StorageType: "memory"}
	store, err := buildStore(cfg)
	if err != nil {
		t.Fatalf("buildStore: %v", err)
	}
	if _, ok := store.(*state.MemoryStore); !ok {
		t.Fatalf("got %T, want *state.MemoryStore", store)
	}
}

func TestBuildStoreIgnoresFileTypeWithoutPersistQueue(t *testing.T) {
	cfg := &config.Config{StorageType: "file", PersistQueue: false}
	store, err := buildStore(cfg)
	if err != nil {
		t.Fatalf("buildStore: %v", err)
	}
	if _, ok := store.(*state.MemoryStore); !ok {
		t.Fatalf("got %T, want *state.MemoryStore when PersistQueue is false", store)
	}
}

func TestBuildStoreFileBacked(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	cfg := &config.Config{StorageType: "file", PersistQueue: true, StateDir: dir}
	store, err := buildStore(cfg)
	if err != nil {
		t.Fatalf("buildStore: %v", err)
	}
	if _, ok := store.(*state.FileStore); !ok {
		t.Fatalf("got %T, want *state.FileStore", store)
	}
}
