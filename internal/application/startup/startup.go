// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/slatedeck/slatedeck-go/internal/application/container"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/database"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
	"github.com/slatedeck/slatedeck-go/internal/presentation/http/server"
	"github.com/slatedeck/slatedeck-go/pkg/config"
)

// Initialize performs the complete startup sequence
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Step 1: Open the database and ensure the schema exists
	log.Println("Connecting to database...")
	db, err := database.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.NewTableCreator().CreateSchema(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Step 2: Initialize channeled logging
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Step 3: Create dependency injection container
	logger.Startup().Info("Initializing dependency injection container...")
	appContainer := container.NewContainer(db, logger)
	logger.Startup().Info("Dependency injection container created with singleton services")

	// Step 4: Start the background sweeper
	logger.Startup().Info("Starting background sweeper",
		"presenceInterval", config.PresenceSweepInterval,
		"evictionInterval", config.EvictionSweepInterval)
	go appContainer.Sweeper.Start(ctx)

	// Step 5: Start HTTP server
	port := config.Port
	httpServer := server.New(port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
			gracefulShutdown <- syscall.SIGTERM
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	// Stop accepting new connections and sweeping
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	}

	// Flush every dirty document before the process exits. A debounce
	// timer that has not fired yet must not cost us edits.
	logger.Shutdown().Info("Flushing in-memory documents...")
	appContainer.Registry.FlushAll(shutdownCtx)

	logger.Shutdown().Info("Closing database...")
	if err := db.Close(); err != nil {
		logger.Shutdown().Error("Error closing database", "error", err.Error())
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))
	logger.Close()

	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
