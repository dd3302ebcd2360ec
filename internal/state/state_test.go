package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaceterm/muxd/internal/muxerr"
)

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	f := File{
		Session: SessionRecord{ID: "s1", Name: "dev", CreatedAt: time.Now(), UpdatedAt: time.Now()},
		Panes: []PaneRecord{
			{ID: "p1", Kind: "terminal", Command: "/bin/sh", Rows: 24, Cols: 80, Title: "build"},
			{ID: "p2", Kind: "terminal", Command: "/bin/sh", Rows: 24, Cols: 80, Title: "run"},
		},
	}
	if err := s.Save("s1", f); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load("s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Session.Name != "dev" || len(got.Panes) != 2 {
		t.Fatalf("unexpected loaded state: %+v", got)
	}
	if got.Version != CurrentVersion {
		t.Fatalf("expected version %d, got %d", CurrentVersion, got.Version)
	}

	// No .tmp file left behind.
	if _, err := os.Stat(filepath.Join(dir, "state", "s1.json.tmp")); err == nil {
		t.Fatalf("expected tmp file to be gone after rename")
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())
	if _, err := s.Load("nope"); err == nil {
		t.Fatalf("expected error loading missing session")
	}
}

func TestStore_IncompatibleVersion(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	f := File{Version: CurrentVersion + 1, Session: SessionRecord{ID: "s1", Name: "x"}}
	// Bypass Save's version stamping to simulate a future writer.
	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "state"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "state", "s1.json"), raw, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err = s.Load("s1")
	if err == nil {
		t.Fatalf("expected IncompatibleVersion error")
	}
	me, ok := muxerr.As(err)
	if !ok || me.Code != muxerr.IncompatibleVersion {
		t.Fatalf("expected IncompatibleVersion, got %v", err)
	}
}

func TestStore_DeleteAndListIDs(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	_ = s.Save("a", File{Session: SessionRecord{ID: "a", Name: "a"}})
	_ = s.Save("b", File{Session: SessionRecord{ID: "b", Name: "b"}})

	ids, err := s.ListIDs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}

	if err := s.Delete("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ids, _ = s.ListIDs()
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("expected only 'b' to remain, got %v", ids)
	}
}
