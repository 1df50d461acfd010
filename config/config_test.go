package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.SequenceWidth != 2 {
		t.Errorf("SequenceWidth = %d, want 2", cfg.SequenceWidth)
	}
	if cfg.MaxDatagramSize != 2048 {
		t.Errorf("MaxDatagramSize = %d, want 2048", cfg.MaxDatagramSize)
	}
	if cfg.TickInterval != 20*time.Millisecond {
		t.Errorf("TickInterval = %v, want 20ms", cfg.TickInterval)
	}
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pygase.yml")
	if err := os.WriteFile(path, []byte("cache_size: 50\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadYAML(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CacheSize != 50 {
		t.Errorf("CacheSize = %d, want 50", cfg.CacheSize)
	}
	if cfg.MaxDatagramSize != 2048 {
		t.Errorf("MaxDatagramSize = %d, want untouched default 2048", cfg.MaxDatagramSize)
	}
}

func TestLoadYAMLMissingFile(t *testing.T) {
	if _, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
