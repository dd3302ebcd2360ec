package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddress != "127.0.0.1:7890" {
		t.Errorf("ListenAddress = %q, want 127.0.0.1:7890", cfg.ListenAddress)
	}
	if cfg.MaxSessions != 100 {
		t.Errorf("MaxSessions = %d, want 100", cfg.MaxSessions)
	}
	if cfg.MaxPanesPerSession != 20 {
		t.Errorf("MaxPanesPerSession = %d, want 20", cfg.MaxPanesPerSession)
	}
	if cfg.ScrollbackCapacity != 10_000 {
		t.Errorf("ScrollbackCapacity = %d, want 10000", cfg.ScrollbackCapacity)
	}
	if cfg.KillGrace() != 2*time.Second {
		t.Errorf("KillGrace() = %v, want 2s", cfg.KillGrace())
	}
	if cfg.ShutdownDrain() != 5*time.Second {
		t.Errorf("ShutdownDrain() = %v, want 5s", cfg.ShutdownDrain())
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.hjson"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(missing) = %+v, want Default()", cfg)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(\"\") = %+v, want Default()", cfg)
	}
}

func TestLoadHJSONOverridesSpecifiedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "muxd.hjson")
	contents := `{
  # listen on a non-default port for this environment
  listen_address: 0.0.0.0:9000
  max_sessions: 5
}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("ListenAddress = %q, want 0.0.0.0:9000", cfg.ListenAddress)
	}
	if cfg.MaxSessions != 5 {
		t.Errorf("MaxSessions = %d, want 5", cfg.MaxSessions)
	}
	// Fields absent from the file keep their documented defaults.
	if cfg.MaxPanesPerSession != 20 {
		t.Errorf("MaxPanesPerSession = %d, want 20", cfg.MaxPanesPerSession)
	}
	if cfg.DataDir == "" {
		t.Error("DataDir should fall back to the default, not be empty")
	}
}

func TestLoadUnreadableFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	// A directory at the config path makes ReadFile fail with something
	// other than os.IsNotExist, which Load must propagate instead of
	// silently falling back to defaults.
	path := filepath.Join(dir, "muxd.hjson")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load(directory) should fail, got nil error")
	}
}
