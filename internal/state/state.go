// Package state implements atomic serialize/deserialize of sessions and
// their panes to disk: one JSON document per session under
// <data_dir>/state/<session_id>.json, written tmp-then-rename, versioned
// so unknown higher versions fail closed.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spaceterm/muxd/internal/muxerr"
)

// CurrentVersion is the schema version this build writes and the highest
// version it will read.
const CurrentVersion = 1

// PaneRecord is the persisted shape of one pane: restore reproduces
// kind, size, title, and working dir. Scrollback is never persisted.
type PaneRecord struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"` // "terminal" or a custom label
	Command    string            `json:"command"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Cwd        string            `json:"cwd,omitempty"`
	Rows       int               `json:"rows"`
	Cols       int               `json:"cols"`
	Title      string            `json:"title,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
}

// SessionRecord is the persisted shape of a session. Metadata (git
// context, build config, health monitoring) is kept in a separate store
// and is not part of this record.
type SessionRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// File is the on-disk document for one session.
type File struct {
	Version int           `json:"version"`
	Session SessionRecord `json:"session"`
	Panes   []PaneRecord  `json:"panes"`
}

// Store writes/reads session state files under a data directory.
type Store struct {
	dir string
}

func NewStore(dataDir string) *Store {
	return &Store{dir: filepath.Join(dataDir, "state")}
}

func (s *Store) pathFor(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Save atomically writes f for sessionID: write(tmp) → fsync(tmp) →
// rename(tmp→final), so no external reader ever observes a partial file.
func (s *Store) Save(sessionID string, f File) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return muxerr.NewPersistenceError("create state dir", err)
	}
	f.Version = CurrentVersion

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return muxerr.NewPersistenceError("marshal state", err)
	}

	final := s.pathFor(sessionID)
	tmp := final + ".tmp"

	fh, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return muxerr.NewPersistenceError("open tmp state file", err)
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		os.Remove(tmp)
		return muxerr.NewPersistenceError("write tmp state file", err)
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		os.Remove(tmp)
		return muxerr.NewPersistenceError("fsync tmp state file", err)
	}
	if err := fh.Close(); err != nil {
		os.Remove(tmp)
		return muxerr.NewPersistenceError("close tmp state file", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return muxerr.NewPersistenceError("rename state file", err)
	}
	return nil
}

// Load reads the state file for sessionID, failing closed on a missing
// file, malformed JSON, or an incompatible (higher) schema version.
func (s *Store) Load(sessionID string) (*File, error) {
	data, err := os.ReadFile(s.pathFor(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, muxerr.NewPersistenceError("state file missing: "+sessionID, err)
		}
		return nil, muxerr.NewPersistenceError("read state file", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, muxerr.NewPersistenceError("malformed state file: "+sessionID, err)
	}
	if f.Version > CurrentVersion {
		return nil, muxerr.NewIncompatibleVersion(fmt.Sprintf("state file version %d newer than supported %d", f.Version, CurrentVersion))
	}
	return &f, nil
}

// Delete removes the state file for sessionID, if present.
func (s *Store) Delete(sessionID string) error {
	err := os.Remove(s.pathFor(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return muxerr.NewPersistenceError("remove state file", err)
	}
	return nil
}

// ListIDs returns every session id with a persisted state file.
func (s *Store) ListIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, muxerr.NewPersistenceError("list state dir", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			ids = append(ids, name[:len(name)-len(".json")])
		}
	}
	return ids, nil
}
