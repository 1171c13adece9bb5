package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fentz26/mxchip/internal/attributes"
	"github.com/fentz26/mxchip/internal/audit"
	"github.com/fentz26/mxchip/internal/chip"
	"github.com/fentz26/mxchip/internal/config"
	"github.com/fentz26/mxchip/internal/connectors"
	"github.com/fentz26/mxchip/internal/connectors/dryrun"
	"github.com/fentz26/mxchip/internal/connectors/localexec"
	"github.com/fentz26/mxchip/internal/controlplane"
	"github.com/fentz26/mxchip/internal/logging"
	"github.com/fentz26/mxchip/internal/scheduler"
	"github.com/fentz26/mxchip/internal/store"
	"github.com/fentz26/mxchip/internal/taskform"
	"github.com/fentz26/mxchip/internal/tasks"
)

var (
	configPath string
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the mxchip daemon",
	Long:  `Starts the mxchip daemon which serves the HTTP API and dispatches queued tasks to the collector.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the configuration file")
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
}

// loadConfig reads the configuration file and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

func newCollector(cfg config.CollectorConfig) connectors.Connector {
	if cfg.Connector == config.CollectorLocalExec {
		return localexec.New(cfg.LocalExec)
	}
	return dryrun.New(cfg.DryRunDelay)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting mxchip daemon", zap.String("config", configPath))

	// Initialize store
	s, err := store.New(cfg.Database.Path)
	if err != nil {
		return err
	}

	catalog, err := tasks.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		s.Close()
		return err
	}
	lock, err := chip.ParseLock(cfg.Chip.Lock)
	if err != nil {
		s.Close()
		return err
	}

	// Initialize components
	pdr := audit.NewPDRWriter(s)
	collector := newCollector(cfg.Collector)
	log.Info("collector selected", zap.String("connector", collector.Name()))

	service := controlplane.NewService(controlplane.ServiceOptions{
		Store:      s,
		PDR:        pdr,
		Sessions:   chip.NewRegistry(lock),
		Geometry:   cfg.Chip.Geometry,
		Catalog:    catalog,
		Attributes: attributes.NewStore(cfg.Attributes.MaxAge, log),
		Form: taskform.Options{
			TextFields: cfg.Form.TextFields,
			Warnings:   cfg.Warnings,
			Priority:   cfg.Form.Priority,
			RootPath:   cfg.Form.RootPath,
		},
		Logger: log,
	})
	server := controlplane.NewServer(service, cfg.Server.Listen, log)

	// Create and start scheduler
	sched := scheduler.New(s, pdr, collector, &cfg.Scheduler, log)

	// Wire scheduler to server for /workers endpoint
	server.SetScheduler(sched)

	sched.Start()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", zap.Stringer("signal", sig))
	case err := <-serverErr:
		if err != nil {
			log.Error("server error", zap.Error(err))
			sched.Stop()
			s.Close()
			return err
		}
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("stopping scheduler")
	sched.Stop()

	log.Info("closing database connection")
	if err := s.Close(); err != nil {
		log.Warn("database close error", zap.Error(err))
	}

	log.Info("shutdown complete")
	return nil
}
