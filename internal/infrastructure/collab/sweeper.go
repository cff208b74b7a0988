package collab

import (
	"context"
	"time"

	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
)

// SweepConfig holds reconciliation sweeper intervals and thresholds,
// sourced from the central config package at wiring time.
type SweepConfig struct {
	PresenceInterval time.Duration // how often stale directory records are reaped
	StaleAfter       time.Duration // directory records older than this are dropped
	EvictionInterval time.Duration // how often idle documents are evicted
	EvictionGrace    time.Duration // how long a session must be empty first
	Verbose          bool
}

// Sweeper runs the two background reconciliation loops: the presence sweep
// that reaps stale session-directory records and refreshes room activity
// aggregates, and the eviction sweep that flushes and discards in-memory
// documents nobody is editing.
type Sweeper struct {
	registry  *Registry
	directory DirectoryStore
	activity  ActivityStore
	config    *SweepConfig
	logger    *logging.ChanneledLogger
}

// NewSweeper creates a reconciliation sweeper with injected configuration.
func NewSweeper(registry *Registry, directory DirectoryStore, activity ActivityStore, config *SweepConfig, logger *logging.ChanneledLogger) *Sweeper {
	return &Sweeper{
		registry:  registry,
		directory: directory,
		activity:  activity,
		config:    config,
		logger:    logger,
	}
}

// Start runs both sweep loops until the context is cancelled. Run as a
// goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	presenceTicker := time.NewTicker(s.config.PresenceInterval)
	defer presenceTicker.Stop()
	evictionTicker := time.NewTicker(s.config.EvictionInterval)
	defer evictionTicker.Stop()

	s.logger.Sweep().Info("Reconciliation sweeper started",
		"presenceInterval", s.config.PresenceInterval,
		"evictionInterval", s.config.EvictionInterval,
		"staleAfter", s.config.StaleAfter,
		"evictionGrace", s.config.EvictionGrace)

	for {
		select {
		case <-ctx.Done():
			s.logger.Sweep().Info("Reconciliation sweeper stopping")
			return
		case <-presenceTicker.C:
			s.SweepPresence(ctx)
		case <-evictionTicker.C:
			s.SweepDocuments(ctx)
		}
	}
}

// SweepPresence deletes session-directory records whose last-seen timestamp
// exceeds the staleness threshold, then rewrites room activity aggregates
// from the authoritative in-memory presence registry.
func (s *Sweeper) SweepPresence(ctx context.Context) {
	start := time.Now()

	reaped, err := s.directory.DeleteStale(ctx, time.Now().UTC().Add(-s.config.StaleAfter))
	if err != nil {
		s.logger.Sweep().Error("Stale directory sweep failed", "error", err.Error())
	}

	var refreshed int
	for _, room := range s.registry.RoomStates() {
		if err := s.activity.UpsertActivity(ctx, room.DocumentID, room.ParticipantCount, room.LastActivity); err != nil {
			s.logger.Sweep().Warn("Room activity refresh failed",
				"documentId", room.DocumentID, "error", err.Error())
			continue
		}
		refreshed++
	}

	if reaped > 0 || s.config.Verbose {
		s.logger.Sweep().Info("Presence sweep finished",
			"staleRecordsReaped", reaped,
			"activityRecordsRefreshed", refreshed,
			"duration", time.Since(start))
	}
}

// SweepDocuments flushes and discards in-memory documents whose sessions
// have been empty since before the grace period, bounding memory growth
// from inactive sessions.
func (s *Sweeper) SweepDocuments(ctx context.Context) {
	start := time.Now()
	evicted := s.registry.EvictIdle(ctx, s.config.EvictionGrace)

	if len(evicted) > 0 || s.config.Verbose {
		s.logger.Sweep().Info("Document eviction sweep finished",
			"evicted", len(evicted),
			"duration", time.Since(start))
	}
}
