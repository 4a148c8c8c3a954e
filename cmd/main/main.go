package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finboard/src/config"
	"finboard/src/helpers"
	"finboard/src/interfaces"
	"finboard/src/logger"
	"finboard/src/realtime"
	"finboard/src/server"
	"finboard/src/storage"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	// Setup storage (dashboard layouts only, ticks stay in memory)
	var db interfaces.IDatabase

	switch cfg.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(cfg.MConfig, appLogger)
	default:
		// Default to SQLite
		db, err = storage.NewSQLiteDB(cfg.MConfig, appLogger)
	}

	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
		os.Exit(1)
	}
	// Postgres may still be starting up alongside us, give it a few tries.
	if err := helpers.RetryWithBackoff("db init", 3, 2*time.Second, db.Initialize); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
		os.Exit(1)
	}

	// Provider connection manager
	manager := realtime.NewConnectionManager(cfg.MConfig, appLogger.Named("ConnectionManager"))

	// Server (REST + websocket hub + widget sessions)
	srv := server.NewDashboardServer(cfg.MConfig, manager, db, appLogger.Named("Server"))

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Critical("Server failed: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")
	srv.Stop()
	if err := db.Close(); err != nil {
		appLogger.Warning("Failed to close db: %v", err)
	}
}
