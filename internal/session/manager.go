package session

import (
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spaceterm/muxd/internal/ids"
	"github.com/spaceterm/muxd/internal/metadata"
	"github.com/spaceterm/muxd/internal/muxerr"
	"github.com/spaceterm/muxd/internal/pane"
	"github.com/spaceterm/muxd/internal/ptyio"
	"github.com/spaceterm/muxd/internal/state"
)

// Config bounds the registry and every pane it creates.
type Config struct {
	MaxSessions         int
	MaxPanesPerSession  int
	ScrollbackCapacity  int
	KillGrace           time.Duration
}

// Summary is the point-in-time view used by session.list.
type Summary struct {
	ID        string
	Name      string
	PaneCount int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Manager is the global session registry: it enforces max_sessions,
// derives a global pane index for O(1) find_pane, and orchestrates
// save/restore through the state and metadata stores it owns.
type Manager struct {
	cfg      Config
	provider ptyio.Provider
	logger   *log.Logger

	stateStore *state.Store
	metaStore  *metadata.Store

	mu        sync.Mutex
	sessions  map[string]*Session
	paneIndex map[string]string // paneID -> sessionID

	// killedPanes tombstones a pane id once KillPane has delisted it, so a
	// second pane.kill on the same id still reports success instead of
	// PaneNotFound.
	killedPanes map[string]bool

	healthMonitors map[string]*metadata.HealthMonitor
}

func NewManager(cfg Config, provider ptyio.Provider, stateStore *state.Store, metaStore *metadata.Store, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:            cfg,
		provider:       provider,
		logger:         logger,
		stateStore:     stateStore,
		metaStore:      metaStore,
		sessions:       make(map[string]*Session),
		paneIndex:      make(map[string]string),
		killedPanes:    make(map[string]bool),
		healthMonitors: make(map[string]*metadata.HealthMonitor),
	}
}

// AugmentEnv builds a child process environment by layering clientEnv (as
// "KEY=VALUE" pairs already formatted by the caller) on top of the
// daemon's own environment: env augments, it never replaces it wholesale.
// A client-supplied key overrides the daemon's value for that key.
func AugmentEnv(clientEnv []string) []string {
	base := os.Environ()
	merged := make(map[string]string, len(base)+len(clientEnv))
	order := make([]string, 0, len(base)+len(clientEnv))
	set := func(kv string) {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				k := kv[:i]
				if _, exists := merged[k]; !exists {
					order = append(order, k)
				}
				merged[k] = kv[i+1:]
				return
			}
		}
	}
	for _, kv := range base {
		set(kv)
	}
	for _, kv := range clientEnv {
		set(kv)
	}
	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, k+"="+merged[k])
	}
	return out
}

// CreateSession registers a new, empty session, enforcing max_sessions.
// Metadata is created alongside so every session has a metadata record
// from the moment it's visible.
func (m *Manager) CreateSession(name string) (*Session, error) {
	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return nil, muxerr.NewLimitExceeded("sessions")
	}
	id := ids.NewSessionID()
	now := time.Now()
	sess := newSession(id, name, m.cfg.MaxPanesPerSession, now)
	m.sessions[id] = sess
	m.mu.Unlock()

	if _, err := m.metaStore.Create(id, name); err != nil {
		m.logger.Printf("session %s: metadata create failed: %v", id, err)
	}
	m.RefreshHealthMonitor(id)
	return sess, nil
}

// GetSession returns a session by id.
func (m *Manager) GetSession(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, muxerr.NewSessionNotFound(id)
	}
	return sess, nil
}

// ListSessions returns a point-in-time summary of every session.
func (m *Manager) ListSessions() []Summary {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		out = append(out, Summary{
			ID:        s.ID,
			Name:      s.name,
			PaneCount: len(s.panes),
			CreatedAt: s.createdAt,
			UpdatedAt: s.updatedAt,
		})
		s.mu.Unlock()
	}
	return out
}

// DeleteSession kills all of a session's panes, then removes its
// metadata and state files. Deletion while a pane is mid-write is safe:
// pending writes complete or fail against an already closed PTY, the
// pump observes EOF, and the ring is dropped.
func (m *Manager) DeleteSession(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return muxerr.NewSessionNotFound(id)
	}
	delete(m.sessions, id)
	panes := sess.ListPanes()
	for _, p := range panes {
		delete(m.paneIndex, p.ID)
	}
	m.mu.Unlock()

	for _, p := range panes {
		_ = p.Kill()
	}

	m.mu.Lock()
	hm := m.healthMonitors[id]
	delete(m.healthMonitors, id)
	m.mu.Unlock()
	if hm != nil {
		hm.Stop()
	}

	if err := m.metaStore.Delete(id); err != nil {
		m.logger.Printf("session %s: metadata delete failed: %v", id, err)
	}
	if err := m.stateStore.Delete(id); err != nil {
		m.logger.Printf("session %s: state delete failed: %v", id, err)
	}
	return nil
}

// CreatePane registers a new, unstarted pane under sessionID, enforcing
// max_panes_per_session. The registry-lock check-then-add and the
// global pane index update happen in the same critical section. Callers
// must Start the returned pane and, on Start failure, call DiscardPane
// so no partial registration is observable.
func (m *Manager) CreatePane(sessionID string, kind pane.Kind, sink pane.Sink) (*pane.Pane, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, muxerr.NewSessionNotFound(sessionID)
	}
	if sess.atLimit() {
		m.mu.Unlock()
		return nil, muxerr.NewLimitExceeded("panes")
	}

	id := ids.NewPaneID()
	p := pane.New(id, sessionID, kind, m.provider, sink, m.cfg.ScrollbackCapacity, m.cfg.KillGrace)
	sess.addPane(p)
	m.paneIndex[id] = sessionID
	m.mu.Unlock()

	return p, nil
}

// DiscardPane removes a never-started pane from both the session and the
// global index.
func (m *Manager) DiscardPane(sessionID, paneID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.removePane(paneID)
	}
	delete(m.paneIndex, paneID)
}

// FindPane resolves a pane id across all sessions in O(1) via the global
// index. The session_id parameter other operations accept is
// advisory only; lookup here never needs it.
func (m *Manager) FindPane(paneID string) (sessionID string, p *pane.Pane, err error) {
	m.mu.Lock()
	sessionID, ok := m.paneIndex[paneID]
	if !ok {
		m.mu.Unlock()
		return "", nil, muxerr.NewPaneNotFound(paneID)
	}
	sess := m.sessions[sessionID]
	m.mu.Unlock()

	if sess == nil {
		return "", nil, muxerr.NewPaneNotFound(paneID)
	}
	p, ok = sess.GetPane(paneID)
	if !ok {
		return "", nil, muxerr.NewPaneNotFound(paneID)
	}
	return sessionID, p, nil
}

// KillPane kills a pane and delists it from both the owning session and
// the global index. Idempotent: a paneID already delisted by a prior
// KillPane is tombstoned, so a repeat call still reports success instead
// of PaneNotFound.
func (m *Manager) KillPane(paneID string) error {
	sessionID, p, err := m.FindPane(paneID)
	if err != nil {
		m.mu.Lock()
		tombstoned := m.killedPanes[paneID]
		m.mu.Unlock()
		if tombstoned {
			return nil
		}
		return err
	}

	if err := p.Kill(); err != nil {
		return err
	}

	m.mu.Lock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.removePane(paneID)
	}
	delete(m.paneIndex, paneID)
	m.killedPanes[paneID] = true
	m.mu.Unlock()
	return nil
}

// ListPanes returns every pane in sessionID.
func (m *Manager) ListPanes(sessionID string) ([]*pane.Pane, error) {
	sess, err := m.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.ListPanes(), nil
}

// TotalPaneCount sums pane counts across all sessions (server_status).
func (m *Manager) TotalPaneCount() int {
	total := 0
	for _, s := range m.ListSessions() {
		total += s.PaneCount
	}
	return total
}

// MaxSessions and MaxPanesPerSession expose the configured limits for
// server_status's config block.
func (m *Manager) MaxSessions() int        { return m.cfg.MaxSessions }
func (m *Manager) MaxPanesPerSession() int { return m.cfg.MaxPanesPerSession }

// SaveState persists every session in ids (or all sessions if ids is
// empty) to the state store, returning the ids actually saved. A pane's
// scrollback is never persisted — restore reproduces process shape, not
// output history.
func (m *Manager) SaveState(ids []string) ([]string, error) {
	targets, err := m.resolveTargets(ids)
	if err != nil {
		return nil, err
	}

	var saved []string
	for _, sess := range targets {
		f := state.File{
			Session: state.SessionRecord{
				ID:        sess.ID,
				Name:      sess.Name(),
				CreatedAt: sess.CreatedAt(),
				UpdatedAt: sess.UpdatedAt(),
			},
		}
		for _, p := range sess.ListPanes() {
			snap := p.Snapshot()
			env := make(map[string]string, len(snap.Env))
			for _, kv := range snap.Env {
				for i := 0; i < len(kv); i++ {
					if kv[i] == '=' {
						env[kv[:i]] = kv[i+1:]
						break
					}
				}
			}
			f.Panes = append(f.Panes, state.PaneRecord{
				ID:         snap.ID,
				Kind:       snap.Kind.String(),
				Command:    snap.Command,
				Args:       snap.Args,
				Env:        env,
				Cwd:        snap.WorkingDir,
				Rows:       snap.Rows,
				Cols:       snap.Cols,
				Title:      snap.Title,
				WorkingDir: snap.WorkingDir,
			})
		}
		if err := m.stateStore.Save(sess.ID, f); err != nil {
			return saved, err
		}
		saved = append(saved, sess.ID)
	}
	return saved, nil
}

func (m *Manager) resolveTargets(ids []string) ([]*Session, error) {
	if len(ids) == 0 {
		m.mu.Lock()
		defer m.mu.Unlock()
		out := make([]*Session, 0, len(m.sessions))
		for _, s := range m.sessions {
			out = append(out, s)
		}
		return out, nil
	}
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		sess, err := m.GetSession(id)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

// RestoreResult reports one session's restore outcome.
type RestoreResult struct {
	SessionID string
	Name      string
	PaneCount int
	Err       error
}

// RestoreState recreates sessions and panes from persisted state files.
// When restartCommands is true, each pane is started fresh from its
// saved command/args/env/cwd; a pane that fails to spawn is discarded and
// left out of the session's PaneCount (it is not reported as a session
// failure) and does not abort restoration of the rest — restore is
// best-effort per session/pane, not all-or-nothing. When restartCommands
// is false, panes are recreated and registered but left in the Created
// state, never spawned. sink is used for every recreated pane's
// output/exit events.
func (m *Manager) RestoreState(ids []string, restartCommands bool, sink pane.Sink) []RestoreResult {
	if len(ids) == 0 {
		var err error
		ids, err = m.stateStore.ListIDs()
		if err != nil {
			return []RestoreResult{{Err: err}}
		}
	}

	// Every session restores independently and concurrently: one
	// session's pane spawns never block another session from becoming
	// available.
	results := make([]RestoreResult, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			results[i] = m.restoreOne(id, restartCommands, sink)
			return nil
		})
	}
	g.Wait()
	return results
}

func (m *Manager) restoreOne(id string, restartCommands bool, sink pane.Sink) RestoreResult {
	f, err := m.stateStore.Load(id)
	if err != nil {
		return RestoreResult{SessionID: id, Err: err}
	}

	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return RestoreResult{SessionID: id, Err: muxerr.NewLimitExceeded("sessions")}
	}
	sess := newSession(f.Session.ID, f.Session.Name, m.cfg.MaxPanesPerSession, f.Session.CreatedAt)
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	// Panes within a session also start concurrently — a hung spawn on
	// one pane must not delay the others.
	restored := make([]bool, len(f.Panes))
	var g errgroup.Group
	for i, pr := range f.Panes {
		i, pr := i, pr
		g.Go(func() error {
			restored[i] = m.restorePane(sess, pr, restartCommands, sink)
			return nil
		})
	}
	g.Wait()

	count := 0
	for _, ok := range restored {
		if ok {
			count++
		}
	}
	m.RefreshHealthMonitor(sess.ID)
	return RestoreResult{SessionID: sess.ID, Name: sess.Name(), PaneCount: count}
}

func (m *Manager) restorePane(sess *Session, pr state.PaneRecord, restartCommands bool, sink pane.Sink) bool {
	clientEnv := make([]string, 0, len(pr.Env))
	for k, v := range pr.Env {
		clientEnv = append(clientEnv, k+"="+v)
	}
	kind := pane.TerminalKind()
	if pr.Kind != "" && pr.Kind != "terminal" {
		kind = pane.CustomKind(pr.Kind)
	}

	m.mu.Lock()
	p := pane.New(pr.ID, sess.ID, kind, m.provider, sink, m.cfg.ScrollbackCapacity, m.cfg.KillGrace)
	sess.addPane(p)
	m.paneIndex[pr.ID] = sess.ID
	m.mu.Unlock()

	p.SetTitle(pr.Title)
	p.SetWorkingDir(pr.WorkingDir)

	if !restartCommands {
		return true
	}

	_, err := p.Start(pane.StartRequest{
		Command: pr.Command,
		Args:    pr.Args,
		Env:     AugmentEnv(clientEnv),
		Cwd:     pr.Cwd,
		Size:    pane.Size{Rows: pr.Rows, Cols: pr.Cols},
	})
	if err != nil {
		m.DiscardPane(sess.ID, pr.ID)
		return false
	}
	return true
}

// RefreshHealthMonitor (re)starts sessionID's health monitor to match its
// current metadata: stops any monitor already running, then starts a new
// one if the session's recovery policy has a health_monitor configured.
// A session with no health_monitor set runs no probe. Called after
// session creation, after a session's metadata is updated, and after
// restore recreates a session from persisted state.
func (m *Manager) RefreshHealthMonitor(sessionID string) {
	meta, err := m.metaStore.Get(sessionID)
	if err != nil {
		return
	}

	m.mu.Lock()
	existing := m.healthMonitors[sessionID]
	delete(m.healthMonitors, sessionID)
	m.mu.Unlock()
	if existing != nil {
		existing.Stop()
	}

	if meta.Recovery.HealthMonitor == nil {
		return
	}

	hm := metadata.NewHealthMonitor(sessionID, *meta.Recovery.HealthMonitor, m.handleUnhealthy)
	m.mu.Lock()
	// The session may have been deleted while we were stopping the
	// previous monitor; don't resurrect a monitor for a gone session.
	if _, ok := m.sessions[sessionID]; !ok {
		m.mu.Unlock()
		return
	}
	m.healthMonitors[sessionID] = hm
	m.mu.Unlock()
	hm.Start()
}

// handleUnhealthy is a HealthMonitor's onUnhealthy callback: if the
// session's recovery policy has auto_recover set, it runs the configured
// recovery command sequence; otherwise it only logs the failure.
func (m *Manager) handleUnhealthy(sessionID string, consecutiveFailures int) {
	meta, err := m.metaStore.Get(sessionID)
	if err != nil {
		return
	}
	if !meta.Recovery.AutoRecover {
		m.logger.Printf("session %s: unhealthy (%d consecutive failures), auto_recover disabled", sessionID, consecutiveFailures)
		return
	}
	m.logger.Printf("session %s: unhealthy (%d consecutive failures), running recovery commands", sessionID, consecutiveFailures)
	for i, err := range metadata.RunRecoveryCommands(meta.Recovery.RecoveryCommands) {
		if err != nil {
			m.logger.Printf("session %s: recovery step %d failed: %v", sessionID, i, err)
		}
	}
}

// StopAllHealthMonitors stops every running health monitor; used during
// daemon shutdown so no probe outlives the sessions it watches.
func (m *Manager) StopAllHealthMonitors() {
	m.mu.Lock()
	monitors := make([]*metadata.HealthMonitor, 0, len(m.healthMonitors))
	for _, hm := range m.healthMonitors {
		monitors = append(monitors, hm)
	}
	m.healthMonitors = make(map[string]*metadata.HealthMonitor)
	m.mu.Unlock()

	for _, hm := range monitors {
		hm.Stop()
	}
}

// KillAll kills every pane in every session; used during daemon shutdown
// after the drain deadline.
func (m *Manager) KillAll() {
	m.mu.Lock()
	all := make([]*pane.Pane, 0)
	for _, s := range m.sessions {
		all = append(all, s.ListPanes()...)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range all {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Kill()
		}()
	}
	wg.Wait()
}
