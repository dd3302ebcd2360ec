// Package session implements Session and Manager:
// a named, mutex-protected container of panes, and the global registry
// that enforces limits, indexes panes for O(1) cross-session lookup, and
// orchestrates save/restore.
package session

import (
	"sync"
	"time"

	"github.com/spaceterm/muxd/internal/muxerr"
	"github.com/spaceterm/muxd/internal/pane"
)

// Session is a named, mutex-protected ordered collection of panes. It
// never emits notifications itself, and Manager emits no session-level
// notifications (such as session created/deleted) either.
type Session struct {
	ID   string
	mu   sync.Mutex
	name string

	// paneOrder preserves creation order; panes is the lookup table.
	paneOrder []string
	panes     map[string]*pane.Pane

	maxPanes  int
	createdAt time.Time
	updatedAt time.Time
}

func newSession(id, name string, maxPanes int, now time.Time) *Session {
	return &Session{
		ID:        id,
		name:      name,
		panes:     make(map[string]*pane.Pane),
		maxPanes:  maxPanes,
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) Rename(name string) {
	s.mu.Lock()
	s.name = name
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) touch() {
	s.updatedAt = time.Now()
}

// addPane registers an already-constructed pane. Caller (Manager)
// has already enforced the pane limit under the registry lock to keep
// the global-index update and the per-session list mutation atomic.
func (s *Session) addPane(p *pane.Pane) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paneOrder = append(s.paneOrder, p.ID)
	s.panes[p.ID] = p
	s.touch()
}

// removePane delists a pane from this session's ordered list.
func (s *Session) removePane(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.panes[id]; !ok {
		return
	}
	delete(s.panes, id)
	for i, pid := range s.paneOrder {
		if pid == id {
			s.paneOrder = append(s.paneOrder[:i], s.paneOrder[i+1:]...)
			break
		}
	}
	s.touch()
}

// PaneCount returns the current number of panes (for limit checks and
// session.list's pane_count field).
func (s *Session) PaneCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.panes)
}

// ListPanes returns pane handles in creation order.
func (s *Session) ListPanes() []*pane.Pane {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*pane.Pane, 0, len(s.paneOrder))
	for _, id := range s.paneOrder {
		out = append(out, s.panes[id])
	}
	return out
}

// GetPane looks up a pane by id within this session only.
func (s *Session) GetPane(id string) (*pane.Pane, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panes[id]
	return p, ok
}

// atLimit reports whether adding one more pane would violate maxPanes.
// Caller must hold the registry lock (see Manager.CreatePane) so
// the check-then-add is atomic with respect to concurrent creates.
func (s *Session) atLimit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.panes) >= s.maxPanes
}

// NotFoundError is returned by operations given a pane id this session
// doesn't hold.
func NotFoundError(paneID string) error { return muxerr.NewPaneNotFound(paneID) }
