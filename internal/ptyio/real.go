package ptyio

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// Real is the production Provider: spawns a child under a PTY via
// creack/pty.StartWithSize, resizes it with pty.Setsize, and tears it
// down with a SIGHUP-then-close sequence.
type Real struct{}

// NewReal returns the default PTY provider.
func NewReal() *Real { return &Real{} }

type realHandle struct {
	ptmx *os.File
	cmd  *exec.Cmd

	mu       sync.Mutex
	waited   bool
	status   ExitStatus
	waitErr  error
	waitDone chan struct{}
}

var _ io.Closer = (*realHandle)(nil)

func (h *realHandle) Close() error { return h.ptmx.Close() }

func (p *Real) Spawn(req SpawnRequest) (*Handle, error) {
	cmd := exec.Command(req.Command, req.Args...)
	cmd.Dir = req.Cwd
	cmd.Env = req.Env

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: req.Size.Rows,
		Cols: req.Size.Cols,
	})
	if err != nil {
		return nil, fmt.Errorf("pty start: %w", err)
	}

	rh := &realHandle{ptmx: ptmx, cmd: cmd, waitDone: make(chan struct{})}
	go rh.runWait()

	return &Handle{
		Reader: ptmx,
		Writer: ptmx,
		Pid:    cmd.Process.Pid,
		closer: rh,
	}, nil
}

// runWait blocks in Process.Wait once, caching the result for all callers
// of Wait (os.Process.Wait may only be called once per process).
func (h *realHandle) runWait() {
	state, err := h.cmd.Process.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.waited = true
	h.waitErr = err
	if state != nil {
		h.status = ExitStatus{Code: state.ExitCode()}
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			h.status.Signaled = true
			h.status.Signal = ws.Signal().String()
		}
	}
	close(h.waitDone)
}

func (p *Real) Resize(h *Handle, size Size) error {
	rh, ok := h.closer.(*realHandle)
	if !ok {
		return fmt.Errorf("resize: not a real handle")
	}
	return pty.Setsize(rh.ptmx, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
}

func (p *Real) Wait(h *Handle) (ExitStatus, error) {
	rh, ok := h.closer.(*realHandle)
	if !ok {
		return ExitStatus{}, fmt.Errorf("wait: not a real handle")
	}
	<-rh.waitDone
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return rh.status, rh.waitErr
}

func (p *Real) Kill(h *Handle, grace time.Duration) error {
	rh, ok := h.closer.(*realHandle)
	if !ok {
		return fmt.Errorf("kill: not a real handle")
	}
	if grace <= 0 {
		grace = 2 * time.Second
	}

	// SIGHUP first, escalate to SIGTERM then SIGKILL if the child hasn't
	// exited within the grace period.
	_ = rh.cmd.Process.Signal(syscall.SIGHUP)
	select {
	case <-rh.waitDone:
		_ = rh.ptmx.Close()
		return nil
	case <-time.After(grace / 2):
	}

	_ = rh.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-rh.waitDone:
		_ = rh.ptmx.Close()
		return nil
	case <-time.After(grace / 2):
	}

	_ = rh.cmd.Process.Kill()
	<-rh.waitDone
	_ = rh.ptmx.Close()
	return nil
}
