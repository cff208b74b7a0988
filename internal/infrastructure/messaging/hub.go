// Package messaging provides the websocket hub for the realtime gateway:
// per-document broadcast groups and the connection read/write pumps.
package messaging

import (
	"sync"

	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
)

// Hub manages document-scoped broadcast groups. Fan-out is at-least-once
// per connected peer with no cross-connection ordering guarantee; the
// mergeable document's convergence property makes that sufficient for
// content updates, and cursor updates are last-write-wins.
type Hub struct {
	rooms  map[string]map[*Client]bool // documentId -> clients
	mu     sync.RWMutex
	logger *logging.ChanneledLogger
}

// NewHub creates a hub. One hub serves the whole gateway; it is injected,
// not a package singleton, so tests can run hubs independently.
func NewHub(logger *logging.ChanneledLogger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]bool),
		logger: logger,
	}
}

// Attach registers a client in a document's broadcast group.
func (h *Hub) Attach(documentID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[documentID] == nil {
		h.rooms[documentID] = make(map[*Client]bool)
	}
	h.rooms[documentID][client] = true

	h.logger.Gateway().Debug("Client attached to room",
		"documentId", documentID, "connId", client.ID.String())
}

// Detach removes a client from a document's broadcast group, dropping the
// group when it empties.
func (h *Hub) Detach(documentID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, exists := h.rooms[documentID]; exists {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, documentID)
		}
	}

	h.logger.Gateway().Debug("Client detached from room",
		"documentId", documentID, "connId", client.ID.String())
}

// RoomSize returns the number of connections in a document's group.
func (h *Hub) RoomSize(documentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[documentID])
}

// Broadcast sends a payload to every connection in a document's group
// except the sender. A client whose send buffer is full gets its transport
// closed: a peer that silently misses a delta would diverge with nothing to
// trigger a resync, whereas a reconnect restores state through the rejoin
// snapshot.
func (h *Hub) Broadcast(documentID string, payload []byte, except *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, exists := h.rooms[documentID]
	if !exists {
		return
	}
	for client := range clients {
		if client == except {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.logger.Gateway().Warn("Client send buffer full, closing connection",
				"documentId", documentID, "connId", client.ID.String())
			client.Close()
		}
	}
}
