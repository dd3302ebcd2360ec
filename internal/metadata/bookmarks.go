package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spaceterm/muxd/internal/muxerr"
)

// BookmarkStore persists named references to sessions, one JSON file per
// bookmark under <data_dir>/bookmarks/, with access tracking and
// favorite toggling.
type BookmarkStore struct {
	dir string
	mu  sync.Mutex
}

func NewBookmarkStore(dataDir string) *BookmarkStore {
	return &BookmarkStore{dir: filepath.Join(dataDir, "bookmarks")}
}

func (bs *BookmarkStore) pathFor(name string) string {
	return filepath.Join(bs.dir, sanitizeName(name)+".json")
}

func (bs *BookmarkStore) write(b Bookmark) error {
	if err := os.MkdirAll(bs.dir, 0o755); err != nil {
		return muxerr.NewPersistenceError("create bookmarks dir", err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return muxerr.NewPersistenceError("marshal bookmark", err)
	}
	path := bs.pathFor(b.Name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return muxerr.NewPersistenceError("write bookmark tmp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return muxerr.NewPersistenceError("rename bookmark file", err)
	}
	return nil
}

func (bs *BookmarkStore) readLocked(name string) (Bookmark, error) {
	data, err := os.ReadFile(bs.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Bookmark{}, muxerr.NewNotFound("bookmark", name)
		}
		return Bookmark{}, muxerr.NewPersistenceError("read bookmark", err)
	}
	var b Bookmark
	if err := json.Unmarshal(data, &b); err != nil {
		return Bookmark{}, muxerr.NewPersistenceError("malformed bookmark: "+name, err)
	}
	return b, nil
}

// Create stores a new bookmark pointing at sessionID.
func (bs *BookmarkStore) Create(name, sessionID, description string, tags []string) (Bookmark, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b := Bookmark{
		Name:        name,
		Description: description,
		SessionID:   sessionID,
		Tags:        tags,
		CreatedAt:   time.Now(),
	}
	if err := bs.write(b); err != nil {
		return Bookmark{}, err
	}
	return b, nil
}

// Get reads a bookmark and bumps its access_count/last_accessed.
func (bs *BookmarkStore) Get(name string) (Bookmark, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b, err := bs.readLocked(name)
	if err != nil {
		return Bookmark{}, err
	}
	now := time.Now()
	b.LastAccessed = &now
	b.AccessCount++
	if err := bs.write(b); err != nil {
		return Bookmark{}, err
	}
	return b, nil
}

// Peek reads a bookmark without mutating access stats.
func (bs *BookmarkStore) Peek(name string) (Bookmark, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.readLocked(name)
}

// List returns every stored bookmark without bumping access stats.
func (bs *BookmarkStore) List() ([]Bookmark, error) {
	entries, err := os.ReadDir(bs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, muxerr.NewPersistenceError("list bookmarks dir", err)
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()

	var out []Bookmark
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		b, err := bs.readLocked(name)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Delete removes a bookmark.
func (bs *BookmarkStore) Delete(name string) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	err := os.Remove(bs.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return muxerr.NewNotFound("bookmark", name)
		}
		return muxerr.NewPersistenceError("remove bookmark file", err)
	}
	return nil
}

// ToggleFavorite flips is_favorite and returns the updated bookmark.
func (bs *BookmarkStore) ToggleFavorite(name string) (Bookmark, error) {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	b, err := bs.readLocked(name)
	if err != nil {
		return Bookmark{}, err
	}
	b.IsFavorite = !b.IsFavorite
	if err := bs.write(b); err != nil {
		return Bookmark{}, err
	}
	return b, nil
}
