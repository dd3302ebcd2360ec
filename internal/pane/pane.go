// Package pane implements the Pane state machine and I/O pump:
// Created → Started → Running ⇄ Resizing → Exited, one PTY + one ring per
// pane, write/resize/read/search/kill safe to call from any goroutine.
package pane

import (
	"sync"
	"time"

	"github.com/spaceterm/muxd/internal/muxerr"
	"github.com/spaceterm/muxd/internal/ptyio"
	"github.com/spaceterm/muxd/internal/ring"
)

// Kind distinguishes an ordinary terminal pane from a caller-labeled
// custom one.
type Kind struct {
	Terminal bool
	Custom   string // non-empty iff !Terminal
}

func TerminalKind() Kind   { return Kind{Terminal: true} }
func CustomKind(s string) Kind { return Kind{Custom: s} }

func (k Kind) String() string {
	if k.Terminal {
		return "terminal"
	}
	return k.Custom
}

// State is the pane's lifecycle stage.
type State int

const (
	Created State = iota
	Started
	Running
	Resizing
	Exited
)

// OutputEvent is what the I/O pump enqueues on the owning connection's
// output queue for every successful ring append.
type OutputEvent struct {
	PaneID    string
	Data      []byte
	Timestamp time.Time
}

// ExitEvent is emitted exactly once when a pane transitions to Exited.
type ExitEvent struct {
	PaneID    string
	ExitCode  int
	Timestamp time.Time
}

// Size is a pane's terminal dimensions; both fields are ≥ 1 once started.
type Size struct {
	Rows int
	Cols int
}

// Sink receives pump output and exit notifications. The pane never
// observes the owning connection's lifetime directly: a Sink whose
// underlying channel receiver is gone simply drops sends.
type Sink interface {
	Output(OutputEvent)
	Exit(ExitEvent)
}

// Pane owns one PTY handle, one child process, one Scrollback ring, and
// its I/O-pump goroutine.
type Pane struct {
	ID        string
	SessionID string
	Kind      Kind

	provider ptyio.Provider
	sink     Sink
	ring     *ring.Ring

	// writeMu serializes access to the PTY write end with a short-held
	// lock so concurrent Write calls don't interleave.
	writeMu sync.Mutex

	mu         sync.Mutex // guards everything below
	state      State
	handle     *ptyio.Handle
	pid        int
	size       Size
	title      string
	workingDir string
	command    string
	args       []string
	env        []string
	alive      bool
	exitCode   int
	exitSet    bool

	killGrace time.Duration
	pumpDone  chan struct{}
}

// New constructs a not-yet-started pane. The caller registers it in the
// owning session and the global pane index before calling Start; if Start
// fails, the caller discards the registration so no partial pane is ever
// observable (see session.Manager.CreatePane/DiscardPane).
func New(id, sessionID string, kind Kind, provider ptyio.Provider, sink Sink, scrollbackCapacity int, killGrace time.Duration) *Pane {
	return &Pane{
		ID:        id,
		SessionID: sessionID,
		Kind:      kind,
		provider:  provider,
		sink:      sink,
		ring:      ring.New(scrollbackCapacity),
		state:     Created,
		killGrace: killGrace,
	}
}

// StartRequest carries the parameters for the single allowed Start call.
type StartRequest struct {
	Command string
	Args    []string
	Env     []string
	Cwd     string
	Size    Size
}

// Start spawns the child process under a PTY, transitioning the pane
// from Created to Started. A pane may be started at most once.
func (p *Pane) Start(req StartRequest) (pid int, err error) {
	p.mu.Lock()
	if p.state != Created {
		p.mu.Unlock()
		return 0, muxerr.New(muxerr.InvalidInput, "pane already started")
	}
	p.mu.Unlock()

	rows, cols := req.Size.Rows, req.Size.Cols
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}

	handle, err := p.provider.Spawn(ptyio.SpawnRequest{
		Command: req.Command,
		Args:    req.Args,
		Env:     req.Env,
		Cwd:     req.Cwd,
		Size:    ptyio.Size{Rows: uint16(rows), Cols: uint16(cols)},
	})
	if err != nil {
		return 0, muxerr.NewSpawnFailed(err.Error(), err)
	}

	p.mu.Lock()
	p.handle = handle
	p.pid = handle.Pid
	p.size = Size{Rows: rows, Cols: cols}
	p.workingDir = req.Cwd
	p.command = req.Command
	p.args = req.Args
	p.env = req.Env
	p.alive = true
	p.state = Started
	p.pumpDone = make(chan struct{})
	p.mu.Unlock()

	go p.pump()

	return handle.Pid, nil
}

// pump reads PTY output until EOF/error, appends to the ring, emits
// OutputEvent per append, then waits for the child and emits ExitEvent
// exactly once.
func (p *Pane) pump() {
	defer close(p.pumpDone)

	p.mu.Lock()
	p.state = Running
	handle := p.handle
	p.mu.Unlock()

	buf := make([]byte, 32*1024)
	for {
		n, rerr := handle.Reader.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			p.ring.Push(chunk)
			p.sink.Output(OutputEvent{PaneID: p.ID, Data: chunk, Timestamp: time.Now()})
		}
		if rerr != nil {
			break
		}
	}

	status, _ := p.provider.Wait(handle)

	p.mu.Lock()
	p.alive = false
	p.exitCode = status.Code
	p.exitSet = true
	p.state = Exited
	p.mu.Unlock()

	p.sink.Exit(ExitEvent{PaneID: p.ID, ExitCode: status.Code, Timestamp: time.Now()})
}

// Write sends input to the PTY. Safe from any goroutine; serialized with
// a short-held lock.
func (p *Pane) Write(data []byte) error {
	p.mu.Lock()
	if !p.alive || p.handle == nil {
		p.mu.Unlock()
		return muxerr.NewPaneNotAlive(p.ID)
	}
	handle := p.handle
	p.mu.Unlock()

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := handle.Writer.Write(data)
	if err != nil {
		return muxerr.NewPtyIoError("write", err.Error(), err)
	}
	return nil
}

// Resize changes PTY dimensions. Logical Resizing state is serialized by
// the pane's internal lock and never externally visible as a stall.
func (p *Pane) Resize(rows, cols int) error {
	if rows < 1 || cols < 1 {
		return muxerr.NewInvalidInput("size", "rows and cols must be >= 1")
	}

	p.mu.Lock()
	if !p.alive || p.handle == nil {
		p.mu.Unlock()
		return muxerr.NewPaneNotAlive(p.ID)
	}
	handle := p.handle
	p.state = Resizing
	p.mu.Unlock()

	err := p.provider.Resize(handle, ptyio.Size{Rows: uint16(rows), Cols: uint16(cols)})

	p.mu.Lock()
	if err == nil {
		p.size = Size{Rows: rows, Cols: cols}
	}
	if p.state == Resizing {
		p.state = Running
	}
	p.mu.Unlock()

	if err != nil {
		return muxerr.NewPtyIoError("resize", err.Error(), err)
	}
	return nil
}

// ReadTail returns the last min(lines, total) scrollback lines. lines<=0
// returns an empty slice; lines==0 explicitly returns empty rather than
// the full scrollback.
func (p *Pane) ReadTail(lines int) []string {
	if lines <= 0 {
		return []string{}
	}
	return p.ring.Tail(lines)
}

// Search delegates to the ring, translating a regex compile failure into
// the daemon's InvalidInput taxonomy member.
func (p *Pane) Search(query string, caseSensitive, useRegex bool, maxResults, startLine int) ([]ring.Hit, int, bool, error) {
	hits, total, truncated, err := p.ring.Search(query, caseSensitive, useRegex, maxResults, startLine)
	if err != nil {
		return nil, 0, false, muxerr.NewInvalidInput("query", err.Error())
	}
	return hits, total, truncated, nil
}

// Kill terminates the pane's child process. Idempotent: killing an
// already-Exited pane succeeds without emitting another ExitEvent.
func (p *Pane) Kill() error {
	p.mu.Lock()
	if p.state == Created {
		// Never started; nothing to kill, no pump to wait on.
		p.state = Exited
		p.alive = false
		p.mu.Unlock()
		return nil
	}
	if !p.alive {
		p.mu.Unlock()
		return nil
	}
	handle := p.handle
	grace := p.killGrace
	p.mu.Unlock()

	if err := p.provider.Kill(handle, grace); err != nil {
		return muxerr.NewPtyIoError("kill", err.Error(), err)
	}

	// Wait for the pump to observe EOF and finish the single ExitEvent
	// emission; Kill is synchronous from the caller's point of view.
	p.mu.Lock()
	done := p.pumpDone
	p.mu.Unlock()
	if done != nil {
		<-done
	}
	return nil
}

// Snapshot is a consistent, lock-protected read of pane state for
// pane.info/pane.list and state.save.
type Snapshot struct {
	ID         string
	SessionID  string
	Kind       Kind
	Pid        int
	HasPid     bool
	Rows, Cols int
	Title      string
	WorkingDir string
	Command    string
	Args       []string
	Env        []string
	Alive      bool
	ExitCode   int
	ExitSet    bool
}

func (p *Pane) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		ID:         p.ID,
		SessionID:  p.SessionID,
		Kind:       p.Kind,
		Pid:        p.pid,
		HasPid:     p.pid != 0,
		Rows:       p.size.Rows,
		Cols:       p.size.Cols,
		Title:      p.title,
		WorkingDir: p.workingDir,
		Command:    p.command,
		Args:       p.args,
		Env:        p.env,
		Alive:      p.alive,
		ExitCode:   p.exitCode,
		ExitSet:    p.exitSet,
	}
}

func (p *Pane) SetTitle(title string) {
	p.mu.Lock()
	p.title = title
	p.mu.Unlock()
}

func (p *Pane) SetWorkingDir(dir string) {
	p.mu.Lock()
	p.workingDir = dir
	p.mu.Unlock()
}

func (p *Pane) IsAlive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}
