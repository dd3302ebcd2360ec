package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spaceterm/muxd/internal/config"
	"github.com/spaceterm/muxd/internal/metadata"
	"github.com/spaceterm/muxd/internal/ptyio"
	"github.com/spaceterm/muxd/internal/server"
	"github.com/spaceterm/muxd/internal/session"
	"github.com/spaceterm/muxd/internal/state"
)

const version = "0.1.0"

// runDaemon is the daemon's main loop, invoked either directly with
// --foreground or as the detached child `start` re-execs into.
func runDaemon(cfg config.Config, foreground bool) error {
	logger, closeLog, err := setupLogger(cfg.DataDir, foreground)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Printf("fatal: data dir unwritable: %v", err)
		os.Exit(1)
	}
	if err := writePid(cfg.DataDir, os.Getpid()); err != nil {
		logger.Printf("fatal: cannot write pid file: %v", err)
		os.Exit(1)
	}
	defer removePidFile(cfg.DataDir)

	logger.Printf("muxd starting (pid %d), listen=%s data_dir=%s", os.Getpid(), cfg.ListenAddress, cfg.DataDir)

	provider := ptyio.NewReal()
	stateStore := state.NewStore(cfg.DataDir)
	metaStore := metadata.NewStore(cfg.DataDir)
	templateStore, err := metadata.NewTemplateStore(cfg.DataDir)
	if err != nil {
		logger.Printf("fatal: template store init failed: %v", err)
		os.Exit(1)
	}
	bookmarkStore := metadata.NewBookmarkStore(cfg.DataDir)

	manager := session.NewManager(session.Config{
		MaxSessions:        cfg.MaxSessions,
		MaxPanesPerSession: cfg.MaxPanesPerSession,
		ScrollbackCapacity: cfg.ScrollbackCapacity,
		KillGrace:          cfg.KillGrace(),
	}, provider, stateStore, metaStore, logger)

	srv := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		Version:       version,
		ShutdownDrain: cfg.ShutdownDrain(),
	}, manager, metaStore, templateStore, bookmarkStore, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Printf("received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDrain()+5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		logger.Printf("muxd stopped")
		os.Exit(0)
	}()

	if err := srv.Serve(); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
	return nil
}

// setupLogger matches the ambient logging convention: a *log.Logger with
// date|time|microsecond flags, to a file when detached, to stderr under
// --foreground.
func setupLogger(dataDir string, foreground bool) (*log.Logger, func(), error) {
	if foreground {
		return log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds), func() {}, nil
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	logFile, err := os.OpenFile(filepath.Join(dataDir, "muxd.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := log.New(logFile, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	return logger, func() { logFile.Close() }, nil
}
