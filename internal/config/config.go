// Package config loads the daemon's configuration surface from an HJSON
// file, decoding HJSON→JSON→struct and filling in defaults for anything
// left unspecified.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hjson/hjson-go/v4"
)

// Config is the enumerated configuration surface; no other options are
// honored.
type Config struct {
	ListenAddress       string `json:"listen_address"`
	DataDir             string `json:"data_dir"`
	MaxSessions         int    `json:"max_sessions"`
	MaxPanesPerSession  int    `json:"max_panes_per_session"`
	ScrollbackCapacity  int    `json:"scrollback_capacity"`
	KillGraceMs         int    `json:"kill_grace_ms"`
	ShutdownDrainMs     int    `json:"shutdown_drain_ms"`
}

// KillGrace and ShutdownDrain convert the millisecond fields to
// time.Duration for callers that don't want to repeat the conversion.
func (c Config) KillGrace() time.Duration     { return time.Duration(c.KillGraceMs) * time.Millisecond }
func (c Config) ShutdownDrain() time.Duration { return time.Duration(c.ShutdownDrainMs) * time.Millisecond }

// Default returns the documented defaults for every field.
func Default() Config {
	return Config{
		ListenAddress:      "127.0.0.1:7890",
		DataDir:            defaultDataDir(),
		MaxSessions:        100,
		MaxPanesPerSession: 20,
		ScrollbackCapacity: 10_000,
		KillGraceMs:        2000,
		ShutdownDrainMs:    5000,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".muxd"
	}
	return home + "/.muxd"
}

// Load reads path as HJSON, decodes it into Config via a JSON round-trip
// (the same two-step decode loader.go uses), and fills any field absent
// from the file with its documented default. A missing file is not an
// error: Load returns Default() unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parse hjson: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return cfg, fmt.Errorf("convert to json: %w", err)
	}
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = def.ListenAddress
	}
	if cfg.DataDir == "" {
		cfg.DataDir = def.DataDir
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.MaxPanesPerSession == 0 {
		cfg.MaxPanesPerSession = def.MaxPanesPerSession
	}
	if cfg.ScrollbackCapacity == 0 {
		cfg.ScrollbackCapacity = def.ScrollbackCapacity
	}
	if cfg.KillGraceMs == 0 {
		cfg.KillGraceMs = def.KillGraceMs
	}
	if cfg.ShutdownDrainMs == 0 {
		cfg.ShutdownDrainMs = def.ShutdownDrainMs
	}
}
