// Command muxd is the terminal-multiplexer daemon's entry point: a
// start|stop|restart|run|status CLI over cobra, using a re-exec+Setsid
// detached-daemon model.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spaceterm/muxd/internal/config"
)

var (
	flagListen   string
	flagDataDir  string
	flagConfig   string
	flagForeground bool
)

func main() {
	root := &cobra.Command{
		Use:   "muxd",
		Short: "terminal multiplexer daemon",
	}
	root.PersistentFlags().StringVar(&flagListen, "listen", "", "listen address (overrides config)")
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "daemon data directory (overrides config)")
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to an HJSON config file")

	root.AddCommand(startCmd(), stopCmd(), restartCmd(), runCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() config.Config {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if flagListen != "" {
		cfg.ListenAddress = flagListen
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	return cfg
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "start the daemon, detached",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			return doStart(cfg)
		},
	}
}

func doStart(cfg config.Config) error {
	if pid := readPid(cfg.DataDir); pid != 0 {
		if processAlive(pid) {
			fmt.Printf("daemon already running (pid %d)\n", pid)
			return nil
		}
		removePidFile(cfg.DataDir)
	}

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	runArgs := []string{"run", "--data-dir", cfg.DataDir, "--listen", cfg.ListenAddress}
	cmd := exec.Command(exePath, runArgs...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	cmd.Process.Release()

	for i := 0; i < 50; i++ {
		if pid := readPid(cfg.DataDir); pid != 0 && processAlive(pid) {
			fmt.Printf("daemon started (pid %d)\n", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(os.Stderr, "daemon started but pid file not yet available")
	return nil
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return doStop(loadConfig())
		},
	}
}

func doStop(cfg config.Config) error {
	pid := readPid(cfg.DataDir)
	if pid == 0 || !processAlive(pid) {
		fmt.Println("daemon not running")
		removePidFile(cfg.DataDir)
		return nil
	}
	syscall.Kill(pid, syscall.SIGTERM)
	for i := 0; i < 50; i++ {
		if !processAlive(pid) {
			fmt.Printf("daemon stopped (was pid %d)\n", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(os.Stderr, "daemon did not stop within 5s, sending SIGKILL")
	syscall.Kill(pid, syscall.SIGKILL)
	time.Sleep(200 * time.Millisecond)
	removePidFile(cfg.DataDir)
	return nil
}

func restartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "stop then start the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if err := doStop(cfg); err != nil {
				return err
			}
			return doStart(cfg)
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "run",
		Short:  "run the daemon in this process (used internally by start)",
		Hidden: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(loadConfig(), flagForeground)
		},
	}
	cmd.Flags().BoolVar(&flagForeground, "foreground", false, "log to stderr instead of the data dir's log file")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "report whether the daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			pid := readPid(cfg.DataDir)
			if pid == 0 || !processAlive(pid) {
				fmt.Println("daemon is not running")
				os.Exit(1)
			}
			name := processName(pid)
			if name != "" {
				fmt.Printf("daemon is running (pid %d, %s)\n", pid, name)
			} else {
				fmt.Printf("daemon is running (pid %d)\n", pid)
			}
			return nil
		},
	}
}
