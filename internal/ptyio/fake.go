package ptyio

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Fake is an in-memory Provider that scripts bytes to deliver instead of
// spawning real processes. Each Spawn call returns a Handle backed by a
// pipe the test can write to via Script and whose exit is
// controlled with Exit.
type Fake struct {
	mu      sync.Mutex
	nextPid int32
	procs   map[*Handle]*fakeProc
	last    *Handle
}

func NewFake() *Fake {
	return &Fake{procs: make(map[*Handle]*fakeProc), nextPid: 1000}
}

// LastHandle returns the most recently Spawn-ed handle, for tests that
// need to Script/Exit the PTY a pane under test is using without
// threading the handle through the pane's own API.
func (p *Fake) LastHandle() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

type fakeProc struct {
	pw       *io.PipeWriter
	in       *bytes.Buffer
	inMu     sync.Mutex
	size     Size
	killed   atomic.Bool
	exitOnce sync.Once
	exitCh   chan ExitStatus
}

type fakeWriter struct{ p *fakeProc }

func (w *fakeWriter) Write(b []byte) (int, error) {
	w.p.inMu.Lock()
	defer w.p.inMu.Unlock()
	return w.p.in.Write(b)
}
func (w *fakeWriter) Close() error { return nil }

func (p *Fake) Spawn(req SpawnRequest) (*Handle, error) {
	pr, pw := io.Pipe()
	proc := &fakeProc{pw: pw, in: &bytes.Buffer{}, size: req.Size, exitCh: make(chan ExitStatus, 1)}
	p.mu.Lock()
	p.nextPid++
	pid := int(p.nextPid)
	h := &Handle{Reader: pr, Writer: &fakeWriter{proc}, Pid: pid, closer: proc}
	p.procs[h] = proc
	p.last = h
	p.mu.Unlock()
	return h, nil
}

func (p *fakeProc) Close() error {
	return p.pw.Close()
}

// Script writes data as if it came from the child's PTY output.
func (p *Fake) Script(h *Handle, data []byte) error {
	p.mu.Lock()
	proc, ok := p.procs[h]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown handle")
	}
	_, err := proc.pw.Write(data)
	return err
}

// Written returns bytes written to the PTY's input (stdin) so far.
func (p *Fake) Written(h *Handle) []byte {
	p.mu.Lock()
	proc, ok := p.procs[h]
	p.mu.Unlock()
	if !ok {
		return nil
	}
	proc.inMu.Lock()
	defer proc.inMu.Unlock()
	out := make([]byte, proc.in.Len())
	copy(out, proc.in.Bytes())
	return out
}

// Exit simulates child-process exit with the given status: closes the
// output pipe (EOF to the pump) and makes Wait return status.
func (p *Fake) Exit(h *Handle, status ExitStatus) {
	p.mu.Lock()
	proc, ok := p.procs[h]
	p.mu.Unlock()
	if !ok {
		return
	}
	proc.exitOnce.Do(func() {
		_ = proc.pw.Close()
		proc.exitCh <- status
	})
}

func (p *Fake) Resize(h *Handle, size Size) error {
	p.mu.Lock()
	proc, ok := p.procs[h]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown handle")
	}
	proc.size = size
	return nil
}

func (p *Fake) Wait(h *Handle) (ExitStatus, error) {
	p.mu.Lock()
	proc, ok := p.procs[h]
	p.mu.Unlock()
	if !ok {
		return ExitStatus{}, fmt.Errorf("unknown handle")
	}
	status := <-proc.exitCh
	proc.exitCh <- status // allow repeated Wait calls to observe it
	return status, nil
}

func (p *Fake) Kill(h *Handle, grace time.Duration) error {
	p.mu.Lock()
	proc, ok := p.procs[h]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown handle")
	}
	if !proc.killed.Swap(true) {
		p.Exit(h, ExitStatus{Code: -1, Signaled: true, Signal: "KILLED"})
	}
	return nil
}
