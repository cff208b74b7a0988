// Package container provides dependency injection for all singleton services
package container

import (
	"database/sql"

	"github.com/slatedeck/slatedeck-go/internal/application/services"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/messaging"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
	persistence "github.com/slatedeck/slatedeck-go/internal/infrastructure/persistence/collab"
	"github.com/slatedeck/slatedeck-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Collaboration core
	Registry      *collab.Registry
	Hub           *messaging.Hub
	CollabService *services.CollabService
	Sweeper       *collab.Sweeper

	// Repositories
	DocumentRepo  *persistence.DocumentRepository
	SnapshotRepo  *persistence.SnapshotRepository
	DirectoryRepo *persistence.DirectoryRepository
	ActivityRepo  *persistence.ActivityRepository

	// Infrastructure Dependencies
	DB     *sql.DB
	Logger *logging.ChanneledLogger
}

// NewContainer creates and wires all singleton services
func NewContainer(db *sql.DB, logger *logging.ChanneledLogger) *Container {
	documentRepo := persistence.NewDocumentRepository(db, logger)
	snapshotRepo := persistence.NewSnapshotRepository(db, logger)
	directoryRepo := persistence.NewDirectoryRepository(db, logger)
	activityRepo := persistence.NewActivityRepository(db, logger)

	registry := collab.NewRegistry(collab.CRDTFactory{}, snapshotRepo, config.PersistDebounce, logger)
	hub := messaging.NewHub(logger)
	collabService := services.NewCollabService(registry, hub, directoryRepo, activityRepo, documentRepo, logger)

	sweeper := collab.NewSweeper(registry, directoryRepo, activityRepo, &collab.SweepConfig{
		PresenceInterval: config.PresenceSweepInterval,
		StaleAfter:       config.PresenceStaleAfter,
		EvictionInterval: config.EvictionSweepInterval,
		EvictionGrace:    config.EvictionGrace,
		Verbose:          config.SweepVerbose,
	}, logger)

	return &Container{
		Registry:      registry,
		Hub:           hub,
		CollabService: collabService,
		Sweeper:       sweeper,

		DocumentRepo:  documentRepo,
		SnapshotRepo:  snapshotRepo,
		DirectoryRepo: directoryRepo,
		ActivityRepo:  activityRepo,

		DB:     db,
		Logger: logger,
	}
}
