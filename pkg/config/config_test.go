package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}
	if cfg.PTX.Version == "" {
		t.Error("expected a default PTX version")
	}
	if cfg.PTX.TargetSM < 30 {
		t.Errorf("implausible default target: sm_%d", cfg.PTX.TargetSM)
	}
	if cfg.Device.Index != 0 {
		t.Errorf("expected device 0, got %d", cfg.Device.Index)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jit.yaml")
	data := []byte("ptx:\n  target_sm: 80\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PTX.TargetSM != 80 {
		t.Errorf("target_sm = %d, want 80", cfg.PTX.TargetSM)
	}
	// Unset keys keep their defaults.
	if cfg.PTX.Version != DefaultConfig().PTX.Version {
		t.Errorf("version = %q, want default", cfg.PTX.Version)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("does/not/exist.yaml"); err == nil {
		t.Error("missing file accepted")
	}
}
