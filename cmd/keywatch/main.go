package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	slogmulti "github.com/samber/slog-multi"

	"github.com/keywatch/keywatch/internal/api"
	"github.com/keywatch/keywatch/internal/config"
	"github.com/keywatch/keywatch/internal/health"
	"github.com/keywatch/keywatch/internal/metrics"
	"github.com/keywatch/keywatch/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/keywatch.yaml", "path to configuration file")
	flag.Parse()

	// Text to stdout at the configured level, errors also as JSON to stderr.
	level := new(slog.LevelVar)
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	jsonHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})
	slog.SetDefault(slog.New(slogmulti.Fanout(textHandler, jsonHandler)))

	slog.Info("keywatch starting...")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Logging.SlogLevel())
	slog.Info("configuration loaded", "path", *configPath, "level", level.Level())

	if cfg.Database.URI == "" {
		slog.Warn("no database URI configured; store requests will fail until one is set")
	}

	// Initialize components
	m := metrics.New()
	conns := store.NewManager(cfg.Database)
	conns.SetOnConnect(m.ConnectAttempt)
	hc := health.NewChecker(conns, m, cfg.HealthCheck)

	// Start health checker
	hc.Start()

	// Start REST API
	apiServer := api.NewServer(conns, hc, m, *cfg)
	if err := apiServer.Start(); err != nil {
		slog.Error("failed to start API server", "err", err)
		os.Exit(1)
	}

	// Set up config hot-reload. Only the log level applies without a restart.
	configWatcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		level.Set(newCfg.Logging.SlogLevel())
		slog.Info("log level updated", "level", level.Level())
	})
	if err != nil {
		slog.Warn("config hot-reload not available", "err", err)
	}

	slog.Info("keywatch ready", "api_port", cfg.Listen.APIPort)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down...", "signal", sig)

	// Graceful shutdown with timeout
	done := make(chan struct{})
	go func() {
		if configWatcher != nil {
			configWatcher.Stop()
		}
		if err := apiServer.Stop(); err != nil {
			slog.Error("API server shutdown failed", "err", err)
		}
		hc.Stop()
		if err := conns.Close(context.Background()); err != nil {
			slog.Error("closing store failed", "err", err)
		}
		close(done)
	}()

	select {
	case <-done:
		slog.Info("keywatch stopped")
	case <-time.After(shutdownTimeout):
		slog.Error("shutdown timed out, forcing exit", "timeout", shutdownTimeout)
		os.Exit(1)
	}
}
