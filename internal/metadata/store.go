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

// Store persists SessionMetadata one JSON file per session id under
// <data_dir>/metadata/<session_id>.json. A per-entry lock
// makes update's read-modify-write atomic without serializing unrelated
// sessions.
type Store struct {
	dir string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewStore(dataDir string) *Store {
	return &Store{dir: filepath.Join(dataDir, "metadata"), locks: make(map[string]*sync.Mutex)}
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	return m
}

func (s *Store) pathFor(id string) string { return filepath.Join(s.dir, id+".json") }

func (s *Store) writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return muxerr.NewPersistenceError("create metadata dir", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return muxerr.NewPersistenceError("marshal metadata", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return muxerr.NewPersistenceError("write metadata tmp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return muxerr.NewPersistenceError("rename metadata file", err)
	}
	return nil
}

// Create writes a fresh SessionMetadata record with default project
// context/recovery policy.
func (s *Store) Create(id, name string) (SessionMetadata, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now()
	m := SessionMetadata{
		SessionID:      id,
		Name:           name,
		ProjectContext: ProjectContext{EnvironmentType: EnvGeneric},
		Recovery:       SessionRecovery{},
		Attributes:     map[string]string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.writeJSON(s.pathFor(id), m); err != nil {
		return SessionMetadata{}, err
	}
	return m, nil
}

// Get reads a session's metadata.
func (s *Store) Get(id string) (SessionMetadata, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	return s.readLocked(id)
}

func (s *Store) readLocked(id string) (SessionMetadata, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return SessionMetadata{}, muxerr.NewNotFound("metadata", id)
		}
		return SessionMetadata{}, muxerr.NewPersistenceError("read metadata", err)
	}
	var m SessionMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return SessionMetadata{}, muxerr.NewPersistenceError("malformed metadata: "+id, err)
	}
	return m, nil
}

// Mutator mutates in place; Update persists the result under lock.
type Mutator func(*SessionMetadata)

// Update performs a read-modify-write under id's per-entry lock, bumping
// updated_at.
func (s *Store) Update(id string, fn Mutator) (SessionMetadata, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	m, err := s.readLocked(id)
	if err != nil {
		return SessionMetadata{}, err
	}
	fn(&m)
	m.UpdatedAt = time.Now()
	if err := s.writeJSON(s.pathFor(id), m); err != nil {
		return SessionMetadata{}, err
	}
	return m, nil
}

// Delete removes a session's metadata file, if present.
func (s *Store) Delete(id string) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()
	err := os.Remove(s.pathFor(id))
	if err != nil && !os.IsNotExist(err) {
		return muxerr.NewPersistenceError("remove metadata file", err)
	}
	return nil
}

// Search scans all persisted metadata records against q.
func (s *Store) Search(q SearchQuery) ([]SessionMetadata, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, muxerr.NewPersistenceError("list metadata dir", err)
	}

	var out []SessionMetadata
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".json")
		m, err := s.Get(id)
		if err != nil {
			continue
		}
		if matches(m, q) {
			out = append(out, m)
		}
	}
	return out, nil
}

func matches(m SessionMetadata, q SearchQuery) bool {
	if q.NameContains != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(q.NameContains)) {
		return false
	}
	if len(q.AllTags) > 0 && !containsAll(m.Tags, q.AllTags) {
		return false
	}
	if len(q.AnyTags) > 0 && !containsAny(m.Tags, q.AnyTags) {
		return false
	}
	if q.EnvironmentType != "" && m.ProjectContext.EnvironmentType != q.EnvironmentType {
		return false
	}
	if q.CreatedAfter != nil && m.CreatedAt.Before(*q.CreatedAfter) {
		return false
	}
	if q.CreatedBefore != nil && m.CreatedAt.After(*q.CreatedBefore) {
		return false
	}
	if q.UpdatedAfter != nil && m.UpdatedAt.Before(*q.UpdatedAfter) {
		return false
	}
	if q.UpdatedBefore != nil && m.UpdatedAt.After(*q.UpdatedBefore) {
		return false
	}
	if q.AttributeKey != "" {
		v, ok := m.Attributes[q.AttributeKey]
		if !ok || v != q.AttributeValue {
			return false
		}
	}
	return true
}

func containsAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

func containsAny(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}
