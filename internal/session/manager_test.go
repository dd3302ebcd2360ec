package session

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spaceterm/muxd/internal/metadata"
	"github.com/spaceterm/muxd/internal/muxerr"
	"github.com/spaceterm/muxd/internal/pane"
	"github.com/spaceterm/muxd/internal/ptyio"
	"github.com/spaceterm/muxd/internal/state"
)

type nullSink struct{}

func (nullSink) Output(pane.OutputEvent) {}
func (nullSink) Exit(pane.ExitEvent)     {}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	dir := t.TempDir()
	return NewManager(cfg, ptyio.NewFake(), state.NewStore(dir), metadata.NewStore(dir), log.New(os.Stderr, "", 0))
}

func defaultTestConfig() Config {
	return Config{MaxSessions: 4, MaxPanesPerSession: 2, ScrollbackCapacity: 100, KillGrace: 50 * time.Millisecond}
}

func TestManager_CreateSessionEnforcesMaxSessions(t *testing.T) {
	m := newTestManager(t, Config{MaxSessions: 1, MaxPanesPerSession: 2, ScrollbackCapacity: 10, KillGrace: time.Millisecond})

	_, err := m.CreateSession("a")
	require.NoError(t, err)

	_, err = m.CreateSession("b")
	require.Error(t, err)
	me, ok := muxerr.As(err)
	require.True(t, ok)
	require.Equal(t, muxerr.LimitExceededSessions, me.Code)
}

func TestManager_CreatePaneEnforcesMaxPanesPerSession(t *testing.T) {
	m := newTestManager(t, defaultTestConfig())
	sess, err := m.CreateSession("s")
	require.NoError(t, err)

	_, err = m.CreatePane(sess.ID, pane.TerminalKind(), nullSink{})
	require.NoError(t, err)
	_, err = m.CreatePane(sess.ID, pane.TerminalKind(), nullSink{})
	require.NoError(t, err)

	_, err = m.CreatePane(sess.ID, pane.TerminalKind(), nullSink{})
	require.Error(t, err)
	me, ok := muxerr.As(err)
	require.True(t, ok)
	require.Equal(t, muxerr.LimitExceededPanes, me.Code)
}

// TestManager_RegistryIntegrity covers testable property 1: every pane
// reachable from FindPane resolves back to a session whose pane list
// agrees with the global index.
func TestManager_RegistryIntegrity(t *testing.T) {
	m := newTestManager(t, defaultTestConfig())
	sess, err := m.CreateSession("s")
	require.NoError(t, err)

	p, err := m.CreatePane(sess.ID, pane.TerminalKind(), nullSink{})
	require.NoError(t, err)

	sid, found, err := m.FindPane(p.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, sid)
	require.Same(t, p, found)

	listed, ok := sess.GetPane(p.ID)
	require.True(t, ok)
	require.Same(t, p, listed)

	require.NoError(t, m.KillPane(p.ID))
	_, _, err = m.FindPane(p.ID)
	require.Error(t, err)
	_, ok = sess.GetPane(p.ID)
	require.False(t, ok)
}

// TestManager_KillPaneIdempotent covers testable property 8.
func TestManager_KillPaneIdempotent(t *testing.T) {
	m := newTestManager(t, defaultTestConfig())
	sess, err := m.CreateSession("s")
	require.NoError(t, err)
	p, err := m.CreatePane(sess.ID, pane.TerminalKind(), nullSink{})
	require.NoError(t, err)
	_, err = p.Start(pane.StartRequest{Command: "sh", Size: pane.Size{Rows: 24, Cols: 80}})
	require.NoError(t, err)

	require.NoError(t, m.KillPane(p.ID))
	require.NoError(t, m.KillPane(p.ID)) // tombstoned: still reports success, not PaneNotFound
}

func TestManager_DiscardPaneRemovesUnstartedPane(t *testing.T) {
	m := newTestManager(t, defaultTestConfig())
	sess, err := m.CreateSession("s")
	require.NoError(t, err)
	p, err := m.CreatePane(sess.ID, pane.TerminalKind(), nullSink{})
	require.NoError(t, err)

	m.DiscardPane(sess.ID, p.ID)

	_, _, err = m.FindPane(p.ID)
	require.Error(t, err)
	require.Equal(t, 0, sess.PaneCount())
}

// TestManager_SaveRestoreRoundTrip covers testable property 7.
func TestManager_SaveRestoreRoundTrip(t *testing.T) {
	m := newTestManager(t, defaultTestConfig())
	sess, err := m.CreateSession("dev")
	require.NoError(t, err)

	p1, err := m.CreatePane(sess.ID, pane.TerminalKind(), nullSink{})
	require.NoError(t, err)
	_, err = p1.Start(pane.StartRequest{Command: "sh", Size: pane.Size{Rows: 24, Cols: 80}})
	require.NoError(t, err)
	p1.SetTitle("build")

	p2, err := m.CreatePane(sess.ID, pane.TerminalKind(), nullSink{})
	require.NoError(t, err)
	_, err = p2.Start(pane.StartRequest{Command: "sh", Size: pane.Size{Rows: 24, Cols: 80}})
	require.NoError(t, err)
	p2.SetTitle("run")

	saved, err := m.SaveState([]string{sess.ID})
	require.NoError(t, err)
	require.Equal(t, []string{sess.ID}, saved)

	require.NoError(t, m.DeleteSession(sess.ID))
	for _, s := range m.ListSessions() {
		require.NotEqual(t, sess.ID, s.ID)
	}

	results := m.RestoreState([]string{sess.ID}, true, nullSink{})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Equal(t, "dev", results[0].Name)
	require.Equal(t, 2, results[0].PaneCount)

	restoredPanes, err := m.ListPanes(sess.ID)
	require.NoError(t, err)
	require.Len(t, restoredPanes, 2)
	titles := map[string]bool{}
	for _, p := range restoredPanes {
		titles[p.Snapshot().Title] = true
	}
	require.True(t, titles["build"])
	require.True(t, titles["run"])
}

// TestManager_RestoreStateWithoutRestartCommandsLeavesPanesUnstarted covers
// the restart_commands=false branch of restore: panes are recreated and
// registered but never spawned.
func TestManager_RestoreStateWithoutRestartCommandsLeavesPanesUnstarted(t *testing.T) {
	m := newTestManager(t, defaultTestConfig())
	sess, err := m.CreateSession("dev")
	require.NoError(t, err)

	p1, err := m.CreatePane(sess.ID, pane.TerminalKind(), nullSink{})
	require.NoError(t, err)
	_, err = p1.Start(pane.StartRequest{Command: "sh", Size: pane.Size{Rows: 24, Cols: 80}})
	require.NoError(t, err)
	p1.SetTitle("build")

	_, err = m.SaveState([]string{sess.ID})
	require.NoError(t, err)
	require.NoError(t, m.DeleteSession(sess.ID))

	results := m.RestoreState([]string{sess.ID}, false, nullSink{})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Equal(t, 1, results[0].PaneCount)

	restoredPanes, err := m.ListPanes(sess.ID)
	require.NoError(t, err)
	require.Len(t, restoredPanes, 1)
	snap := restoredPanes[0].Snapshot()
	require.Equal(t, "build", snap.Title)
	require.False(t, snap.HasPid)
	require.False(t, restoredPanes[0].IsAlive())
}

func TestManager_DeleteSessionKillsPanes(t *testing.T) {
	m := newTestManager(t, defaultTestConfig())
	sess, err := m.CreateSession("s")
	require.NoError(t, err)
	p, err := m.CreatePane(sess.ID, pane.TerminalKind(), nullSink{})
	require.NoError(t, err)
	_, err = p.Start(pane.StartRequest{Command: "sh", Size: pane.Size{Rows: 24, Cols: 80}})
	require.NoError(t, err)

	require.NoError(t, m.DeleteSession(sess.ID))
	require.False(t, p.IsAlive())

	_, err = m.GetSession(sess.ID)
	require.Error(t, err)
}
