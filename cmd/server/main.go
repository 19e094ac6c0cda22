package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"provider-host/internal/api"
	"provider-host/internal/config"
	"provider-host/internal/memory"
	"provider-host/internal/observability"
	"provider-host/internal/servers"
	"provider-host/internal/services"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command line flags
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	// Load configuration; Load validates
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg.Logging)
	logrus.Info("Starting provider host...")

	metrics := observability.NewMetrics("provider_host")

	// One engine per storage location, shared by the memory provider and
	// the settings facade
	pool := memory.NewPool(nil, memory.WithObserver(metrics))
	defer func() {
		if err := pool.Close(); err != nil {
			logrus.WithError(err).Error("Failed to close memory stores")
		}
	}()

	lease, err := pool.Acquire(context.Background(), cfg.Memory.Path)
	if err != nil {
		logrus.Fatalf("Failed to open memory store: %v", err)
	}
	defer lease.Release()

	enabled := memory.NewSwitch(cfg.Memory.Enabled)
	registry := servers.NewRegistry(servers.Dependencies{
		Pool:              pool,
		MemorySwitch:      enabled,
		DefaultMemoryPath: cfg.Memory.Path,
		ToolTimeout:       cfg.Tools.Timeout,
		Observer:          metrics,
		CacheObserver:     metrics,
		Logger:            logrus.WithField("component", "servers"),
	})

	providers := services.NewProviderService(registry, cfg.Providers, metrics, nil)
	defer func() {
		if err := providers.Close(); err != nil {
			logrus.WithError(err).Error("Failed to stop providers")
		}
	}()
	if err := providers.Autostart(context.Background()); err != nil {
		logrus.WithError(err).Warn("Some providers failed to start")
	}

	memoryService := services.NewMemoryService(lease, enabled, loader, cfg.Memory.Path, nil)

	server := api.NewServer(cfg, providers, memoryService, metrics, nil)
	server.SetupRoutes()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logrus.WithField("signal", sig.String()).Info("Shutting down...")
	case err := <-errCh:
		if err != nil {
			logrus.WithError(err).Error("HTTP server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Forced shutdown")
	}
	logrus.Info("Provider host stopped")
}

// setupLogging configures the logging system
func setupLogging(cfg config.LoggingConfig) {
	// Level and format were checked by Validate
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	switch cfg.Format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	logrus.SetOutput(os.Stdout)
}
