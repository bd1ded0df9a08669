package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != "http://127.0.0.1:4096" {
		t.Fatalf("unexpected endpoint %q", cfg.Endpoint)
	}
	if cfg.Prefetch.WarmSize != 10 || cfg.Prefetch.Concurrency != 1 {
		t.Fatalf("unexpected prefetch defaults %+v", cfg.Prefetch)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file should have been created: %v", err)
	}
}

func TestLoadOrCreateReadsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `endpoint = "http://10.0.0.5:4096"

[prefetch]
warm_size = 20
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Endpoint != "http://10.0.0.5:4096" {
		t.Fatalf("unexpected endpoint %q", cfg.Endpoint)
	}
	if cfg.Prefetch.WarmSize != 20 {
		t.Fatalf("unexpected warm size %d", cfg.Prefetch.WarmSize)
	}
	// Unset sections fall back to clamped defaults.
	if cfg.Prefetch.Concurrency != 1 || cfg.History.PageSize != 50 {
		t.Fatalf("unexpected fallbacks %+v", cfg)
	}
}

func TestLoadOrCreateRejectsEmptyEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`endpoint = ""`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadOrCreate(path); err == nil {
		t.Fatal("empty endpoint must be rejected")
	}
}
