package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidateBackfillsDefaults(t *testing.T) {
	cfg := &Config{Endpoint: "https://example.com/upload"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Retries != 3 {
		t.Errorf("expected default retries 3, got %d", cfg.Retries)
	}
	if cfg.HashAlgorithm != "sha256" {
		t.Errorf("expected default hash algorithm sha256, got %q", cfg.HashAlgorithm)
	}
	if cfg.StorageType != "memory" {
		t.Errorf("expected default storage type memory, got %q", cfg.StorageType)
	}
	if cfg.Transport != "http" {
		t.Errorf("expected default transport http, got %q", cfg.Transport)
	}
}

func TestValidateRejectsMissingEndpoint(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); !errors.Is(err, ErrMissingEndpoint) {
		t.Fatalf("expected ErrMissingEndpoint, got %v", err)
	}
}

func TestValidateRejectsBadHashAlgorithm(t *testing.T) {
	cfg := &Config{Endpoint: "e", HashAlgorithm: "crc32"}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidHashAlgo) {
		t.Fatalf("expected ErrInvalidHashAlgo, got %v", err)
	}
}

func TestValidateRejectsInvertedSizeBounds(t *testing.T) {
	cfg := &Config{Endpoint: "e", MinFileSize: 100, MaxFileSize: 10}
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidSizeBounds) {
		t.Fatalf("expected ErrInvalidSizeBounds, got %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retries != 3 {
		t.Errorf("expected defaults for missing file, got retries=%d", cfg.Retries)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	original := &Config{Endpoint: "https://example.com/upload", Retries: 5, HashAlgorithm: "md5"}
	if err := original.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := Save(original, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Endpoint != original.Endpoint || loaded.Retries != original.Retries || loaded.HashAlgorithm != original.HashAlgorithm {
		t.Fatalf("round trip mismatch: got %+v, want %+v", loaded, original)
	}
}

func TestSaveIsAtomicViaTempRename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	cfg := Default()
	cfg.Endpoint = "https://example.com/upload"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected no leftover temp file after Save, stat err = %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load after Save: %v", err)
	}
}
