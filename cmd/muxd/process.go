package main

import (
	"os"
	"path/filepath"
	"strconv"

	ps "github.com/mitchellh/go-ps"
)

const pidFileName = "muxd.pid"

func pidPath(dataDir string) string {
	return filepath.Join(dataDir, pidFileName)
}

func readPid(dataDir string) int {
	data, err := os.ReadFile(pidPath(dataDir))
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return pid
}

func writePid(dataDir string, pid int) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(pidPath(dataDir), []byte(strconv.Itoa(pid)), 0o644)
}

func removePidFile(dataDir string) {
	os.Remove(pidPath(dataDir))
}

// processAlive reports whether pid names a live process, using go-ps
// instead of a bare syscall.Kill(pid, 0) so status can also report the
// process's command name.
func processAlive(pid int) bool {
	p, err := ps.FindProcess(pid)
	return err == nil && p != nil
}

// processName returns the executable name for pid, or "" if it can't be
// found (process gone or platform without /proc support).
func processName(pid int) string {
	p, err := ps.FindProcess(pid)
	if err != nil || p == nil {
		return ""
	}
	return p.Executable()
}
