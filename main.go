package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hectormc-main/casa-playgroundServer/broadcast"
	"github.com/hectormc-main/casa-playgroundServer/config"
	"github.com/hectormc-main/casa-playgroundServer/feature"
	"github.com/hectormc-main/casa-playgroundServer/logger"
	"github.com/hectormc-main/casa-playgroundServer/monitor"
	"github.com/hectormc-main/casa-playgroundServer/persistence"
	"github.com/hectormc-main/casa-playgroundServer/server"
	"github.com/hectormc-main/casa-playgroundServer/session"
	"github.com/hectormc-main/casa-playgroundServer/state"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		// the logger is not configured yet
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	var mon *monitor.Monitor
	if cfg.Metrics.Enabled {
		mon, err = monitor.NewMonitor(cfg.Metrics.Namespace)
		if err != nil {
			logger.Log.Fatalf("Failed to create metrics: %v", err)
		}
	}

	// Initialize storage
	store, err := persistence.Open(cfg.Storage)
	if err != nil {
		logger.Log.Fatalf("Failed to open %s store: %v", cfg.Storage.Driver, err)
	}
	logger.Log.Infof("Using %s store", cfg.Storage.Driver)

	hub := broadcast.NewHub(session.NewManager())
	manager, err := state.NewManager(state.Options{
		Store:          store,
		PersistTimeout: cfg.Persistence.Timeout,
		RetryInterval:  cfg.Persistence.RetryInterval,
		Monitor:        mon,
		Publisher:      hub,
	})
	if err != nil {
		if errors.Is(err, feature.ErrCorruptDefaults) {
			logger.Log.Fatalf("Feature defaults are invalid: %v", err)
		}
		logger.Log.Fatalf("Failed to create state manager: %v", err)
	}
	manager.Load(context.Background())

	stateServer, err := server.NewStateServer(server.Options{
		HTTPAddress: cfg.Server.HTTPAddress,
		RPCAddress:  cfg.Server.RPCAddress,
		State:       manager,
		Hub:         hub,
		Monitor:     mon,
		Heartbeat:   cfg.Server.Heartbeat,
		WatchQueue:  cfg.Server.WatchQueue,
	})
	if err != nil {
		logger.Log.Fatalf("Failed to create server: %v", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- stateServer.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Log.Infof("Received %s, shutting down", s)
	case err := <-serveErr:
		if err != nil {
			logger.Log.Errorf("Server stopped: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := stateServer.Shutdown(ctx); err != nil {
		logger.Log.Warnf("HTTP shutdown: %v", err)
	}
	manager.Close()
	if err := manager.Flush(ctx); err != nil {
		logger.Log.Errorf("Final state save failed: %v", err)
	}
	if err := store.Close(); err != nil {
		logger.Log.Warnf("Closing store: %v", err)
	}
	logger.Log.Info("Shutdown complete")
}
