// Package services provides application-level orchestration services
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	entities "github.com/slatedeck/slatedeck-go/internal/domain/entities/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/messaging"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
)

// AccessChecker answers the content ownership check consulted before a
// join is accepted for a non-public document.
type AccessChecker interface {
	Authorize(ctx context.Context, documentID, participantID string) error
}

// CollabService is the realtime gateway's message router. It runs on each
// connection's read goroutine: it applies joins, content deltas, cursor
// moves, and leaves against the session registry, fans results out through
// the hub, and mirrors presence into the durable directory best-effort.
//
// The live path (merge + broadcast) and the durable path (snapshot,
// directory, activity) are deliberately independent: durable-store failures
// are logged and retried later, never surfaced to connected editors.
type CollabService struct {
	registry  *collab.Registry
	hub       *messaging.Hub
	directory collab.DirectoryStore
	activity  collab.ActivityStore
	access    AccessChecker
	logger    *logging.ChanneledLogger
}

// NewCollabService creates the gateway service.
func NewCollabService(registry *collab.Registry, hub *messaging.Hub, directory collab.DirectoryStore, activity collab.ActivityStore, access AccessChecker, logger *logging.ChanneledLogger) *CollabService {
	return &CollabService{
		registry:  registry,
		hub:       hub,
		directory: directory,
		activity:  activity,
		access:    access,
		logger:    logger,
	}
}

// HandleMessage routes one inbound wire message. Malformed envelopes and
// messages that violate preconditions are dropped; they never affect other
// connections or sessions.
func (s *CollabService) HandleMessage(client *messaging.Client, raw []byte) {
	var msg entities.Envelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Gateway().Warn("Dropping unparseable message",
			"connId", client.ID.String(), "error", err.Error())
		return
	}
	if msg.DocumentID == "" {
		return
	}

	switch msg.Type {
	case entities.MsgJoin:
		s.handleJoin(client, msg.DocumentID)
	case entities.MsgContentUpdate:
		s.handleContentUpdate(client, msg.DocumentID, msg.Delta)
	case entities.MsgCursorMove:
		s.handleCursorMove(client, msg.DocumentID, msg.Cursor)
	case entities.MsgLeave:
		s.handleLeave(client, msg.DocumentID)
	default:
		s.logger.Gateway().Debug("Ignoring unknown message type",
			"type", msg.Type, "connId", client.ID.String())
	}
}

// HandleDisconnect treats transport-level loss as an implicit leave for
// every session the connection had joined.
func (s *CollabService) HandleDisconnect(client *messaging.Client) {
	for _, documentID := range client.JoinedSessions() {
		s.handleLeave(client, documentID)
	}
	s.logger.Gateway().Info("Connection closed",
		"connId", client.ID.String(), "participantId", client.Participant.ID)
}

func (s *CollabService) handleJoin(client *messaging.Client, documentID string) {
	if client.Joined(documentID) {
		return
	}
	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.access.Authorize(ctx, documentID, client.Participant.ID); err != nil {
		s.sendError(client, documentID, err)
		return
	}

	// Attach before the snapshot is encoded. A delta a peer applies while
	// the snapshot is being taken then reaches the newcomer through
	// fan-out, and a delta applied before the encode is inside the
	// snapshot. The overlap delivers some deltas twice; idempotent merge
	// makes that safe, whereas a gap between snapshot and attach would
	// lose updates.
	s.hub.Attach(documentID, client)

	snapshot, presence, err := s.registry.Join(ctx, documentID, client.Participant)
	if err != nil {
		s.hub.Detach(documentID, client)
		s.sendError(client, documentID, err)
		return
	}

	client.MarkJoined(documentID)

	client.Send((&entities.ServerEvent{
		Type:       entities.EventSyncState,
		DocumentID: documentID,
		Snapshot:   snapshot,
	}).Encode())
	client.Send((&entities.ServerEvent{
		Type:       entities.EventPresenceState,
		DocumentID: documentID,
		Presence:   presence,
	}).Encode())

	var entry *entities.PresenceEntry
	for _, e := range presence {
		if e.Participant.ID == client.Participant.ID {
			entry = e
			break
		}
	}
	s.hub.Broadcast(documentID, (&entities.ServerEvent{
		Type:       entities.EventUserJoined,
		DocumentID: documentID,
		Entry:      entry,
	}).Encode(), client)

	go s.mirrorPresence(documentID, client.Participant)
	go s.refreshActivity(documentID)
}

func (s *CollabService) handleContentUpdate(client *messaging.Client, documentID string, delta []byte) {
	if !client.Joined(documentID) || len(delta) == 0 {
		return
	}

	if err := s.registry.ApplyDelta(documentID, delta); err != nil {
		// A malformed delta degrades nothing: state is untouched and the
		// session continues.
		s.logger.Collab().Warn("Dropping delta",
			"documentId", documentID,
			"participantId", client.Participant.ID,
			"error", err.Error())
		return
	}

	// Peers receive the delta verbatim; convergence does not depend on
	// delivery order, only on each update reaching each peer.
	s.hub.Broadcast(documentID, (&entities.ServerEvent{
		Type:       entities.EventContentUpdate,
		DocumentID: documentID,
		Delta:      delta,
	}).Encode(), client)
}

func (s *CollabService) handleCursorMove(client *messaging.Client, documentID string, cursor *entities.CursorPosition) {
	if !client.Joined(documentID) || cursor == nil {
		return
	}

	if !s.registry.UpdateCursor(documentID, client.Participant.ID, cursor) {
		return
	}

	s.hub.Broadcast(documentID, (&entities.ServerEvent{
		Type:          entities.EventCursorUpdate,
		DocumentID:    documentID,
		ParticipantID: client.Participant.ID,
		Cursor:        cursor,
	}).Encode(), client)

	go s.mirrorPresence(documentID, client.Participant)
}

func (s *CollabService) handleLeave(client *messaging.Client, documentID string) {
	if !client.Joined(documentID) {
		return
	}

	client.MarkLeft(documentID)
	s.hub.Detach(documentID, client)

	removed, empty := s.registry.Leave(documentID, client.Participant.ID)
	if removed {
		s.hub.Broadcast(documentID, (&entities.ServerEvent{
			Type:          entities.EventUserLeft,
			DocumentID:    documentID,
			ParticipantID: client.Participant.ID,
		}).Encode(), client)
	}

	go func() {
		ctx, cancel := s.opContext()
		defer cancel()
		if err := s.directory.DeleteRecord(ctx, documentID, client.Participant.ID); err != nil {
			s.logger.Presence().Warn("Directory delete failed",
				"documentId", documentID, "participantId", client.Participant.ID, "error", err.Error())
		}
	}()
	go s.refreshActivity(documentID)

	if empty {
		// The last participant is gone; make the final burst of edits
		// durable before the eviction sweep can discard the session.
		ctx, cancel := s.opContext()
		defer cancel()
		s.registry.FlushSession(ctx, documentID)
	}
}

// mirrorPresence upserts the participant's session-directory record.
// Best-effort, and always run on its own goroutine: a slow or failed mirror
// never stalls the connection's read loop or affects live presence.
func (s *CollabService) mirrorPresence(documentID string, participant entities.Participant) {
	ctx, cancel := s.opContext()
	defer cancel()

	err := s.directory.UpsertRecord(ctx, &entities.DirectoryRecord{
		DocumentID:    documentID,
		ParticipantID: participant.ID,
		DisplayName:   participant.Name,
		DisplayColor:  participant.Color,
		LastSeen:      time.Now().UTC(),
	})
	if err != nil {
		s.logger.Presence().Warn("Directory upsert failed",
			"documentId", documentID, "participantId", participant.ID, "error", err.Error())
	}
}

// refreshActivity rewrites the room activity aggregate from the
// authoritative in-memory presence registry.
func (s *CollabService) refreshActivity(documentID string) {
	ctx, cancel := s.opContext()
	defer cancel()

	count := len(s.registry.Presence(documentID))
	if err := s.activity.UpsertActivity(ctx, documentID, count, time.Now().UTC()); err != nil {
		s.logger.Presence().Warn("Activity upsert failed",
			"documentId", documentID, "error", err.Error())
	}
}

func (s *CollabService) sendError(client *messaging.Client, documentID string, err error) {
	event := &entities.ServerEvent{
		Type:       entities.EventError,
		DocumentID: documentID,
	}
	switch {
	case errors.Is(err, entities.ErrUnauthorized):
		event.Error = "unauthorized"
	case errors.Is(err, entities.ErrDocumentNotFound):
		event.Error = "not found"
	case errors.Is(err, collab.ErrHydration):
		event.Error = "document unavailable, retry join"
	default:
		event.Error = "join failed"
	}

	s.logger.Gateway().Warn("Join rejected",
		"documentId", documentID,
		"participantId", client.Participant.ID,
		"reason", event.Error)
	client.Send(event.Encode())
}

func (s *CollabService) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}
