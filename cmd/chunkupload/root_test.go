package main

import (
	"testing"

	"github.com/cascadewire/chunkupload/internal/config"
)

func TestApplyOverridesOnlyTouchesChangedFlags(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.Flags().Set("endpoint", "https://example.com/upload"); err != nil {
		t.Fatalf("set endpoint: %v", err)
	}
	if err := cmd.Flags().Set("concurrency", "8"); err != nil {
		t.Fatalf("set concurrency: %v", err)
	}

	cfg := &config.Config{
		Endpoint:    "https://old.example.com/upload",
		Concurrency: 2,
		Retries:     5,
	}
	applyOverrides(cmd, cfg)

	if cfg.Endpoint != "https://example.com/upload" {
		t.Errorf("Endpoint = %q, want override", cfg.Endpoint)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", cfg.Concurrency)
	}
	if cfg.Retries != 5 {
		t.Errorf("Retries = %d, want untouched 5", cfg.Retries)
	}
}

func TestApplyOverridesLeavesConfigUntouchedWhenNoFlagsSet(t *testing.T) {
	cmd := newRootCmd()
	cfg := &config.Config{Endpoint: "https://example.com/upload", Transport: "s3"}
	applyOverrides(cmd, cfg)

	if cfg.Endpoint != "https://example.com/upload" {
		t.Errorf("Endpoint changed to %q", cfg.Endpoint)
	}
	if cfg.Transport != "s3" {
		t.Errorf("Transport changed to %q", cfg.Transport)
	}
}

func TestApplyOverridesFileTypeLists(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.Flags().Set("allow-file-type", "image/png"); err != nil {
		t.Fatalf("set allow-file-type: %v", err)
	}
	if err := cmd.Flags().Set("allow-file-type", "image/jpeg"); err != nil {
		t.Fatalf("set allow-file-type: %v", err)
	}

	cfg := &config.Config{Endpoint: "https://example.com/upload"}
	applyOverrides(cmd, cfg)

	if len(cfg.AllowFileTypes) != 2 {
		t.Fatalf("AllowFileTypes = %v, want 2 entries", cfg.AllowFileTypes)
	}
	if cfg.AllowFileTypes[0] != "image/png" || cfg.AllowFileTypes[1] != "image/jpeg" {
		t.Errorf("AllowFileTypes = %v", cfg.AllowFileTypes)
	}
}

func TestResolveConfigRejectsInvalidOverride(t *testing.T) {
	cmd := newRootCmd()
	if err := cmd.Flags().Set("hash-algorithm", "crc32"); err != nil {
		t.Fatalf("set hash-algorithm: %v", err)
	}
	if err := cmd.Flags().Set("config", "/nonexistent/does-not-exist.json"); err != nil {
		t.Fatalf("set config: %v", err)
	}

	if _, err := resolveConfig(cmd); err == nil {
		t.Fatal("expected resolveConfig to reject an invalid hash algorithm")
	}
}
