package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/mxchip/internal/chip"
	"github.com/fentz26/mxchip/internal/config"
	"github.com/fentz26/mxchip/internal/logging"
	"github.com/fentz26/mxchip/internal/tui"
)

var chipCmd = &cobra.Command{
	Use:   "chip",
	Short: "Launch the interactive chip navigator",
	RunE:  runChip,
}

var (
	chipRows int
	chipCols int
	chipLock string
)

func init() {
	chipCmd.Flags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the configuration file")
	chipCmd.Flags().IntVar(&chipRows, "rows", 0, "Chip rows (default from config)")
	chipCmd.Flags().IntVar(&chipCols, "cols", 0, "Chip columns (default from config)")
	chipCmd.Flags().StringVar(&chipLock, "lock", "", "Default block lock: both, x, y, none (default from config)")
}

func runChip(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if chipRows > 0 {
		cfg.Chip.Rows = chipRows
	}
	if chipCols > 0 {
		cfg.Chip.Cols = chipCols
	}
	if chipLock != "" {
		cfg.Chip.Lock = chipLock
	}
	lock, err := chip.ParseLock(cfg.Chip.Lock)
	if err != nil {
		return err
	}

	// The terminal belongs to the navigator; log to file only.
	logCfg := cfg.Log
	logCfg.Output = "file"
	logCfg.FilePath = filepath.Join(filepath.Dir(cfg.Database.Path), "tui.log")
	log, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	// 1. Check if Daemon is running
	if !isDaemonRunning(apiAddr) {
		fmt.Println("⚡ mxchip daemon not running. Starting background service...")
		if err := startDaemon(); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
	}

	// 2. Launch TUI
	app, err := tui.New(apiAddr, tui.Options{
		Rows:   cfg.Chip.Rows,
		Cols:   cfg.Chip.Cols,
		Lock:   lock,
		Logger: log,
	})
	if err != nil {
		return err
	}
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func isDaemonRunning(addr string) bool {
	client := http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(addr + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func startDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	// Start "mxchip daemon" in background
	cmd := exec.Command(exe, "daemon", "--config", configPath)
	// Detach process so it survives TUI exit
	configureDaemonProc(cmd)

	// Keep the daemon off the terminal; it logs per its own config.
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}

	// Wait for it to become ready
	fmt.Print("   Waiting for daemon...")
	for i := 0; i < 20; i++ { // Wait up to 5 seconds
		if isDaemonRunning(apiAddr) {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("daemon started but API not reachable at %s", apiAddr)
}
