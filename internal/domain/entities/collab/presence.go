// Package collab provides domain entities for the realtime collaboration
// engine. It defines participant identity, ephemeral presence state, and the
// wire messages exchanged with editor clients.
package collab

import "time"

// Participant is the verified identity attached to a connection. It is
// supplied by the identity service and trusted as-is by the engine.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Avatar string `json:"avatar,omitempty"`
}

// CursorPosition is the last known pointer position of a participant.
// SlideID narrows the position to a sub-target within the document.
type CursorPosition struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	SlideID string  `json:"slideId,omitempty"`
}

// PresenceEntry is one participant's ephemeral state within a session.
// Only the owning participant's messages mutate it; all peers read it.
type PresenceEntry struct {
	Participant Participant     `json:"participant"`
	Cursor      *CursorPosition `json:"cursor,omitempty"`
	Active      bool            `json:"active"`
	JoinedAt    time.Time       `json:"joinedAt"`
}

// DirectoryRecord is the durable mirror of a PresenceEntry, persisted so
// occupancy survives process restarts and can be queried cross-process.
type DirectoryRecord struct {
	DocumentID    string    `json:"documentId"`
	ParticipantID string    `json:"participantId"`
	DisplayName   string    `json:"displayName"`
	DisplayColor  string    `json:"displayColor"`
	LastSeen      time.Time `json:"lastSeen"`
}

// RoomActivity is the durable per-session aggregate used for operational
// visibility and cleanup heuristics.
type RoomActivity struct {
	DocumentID       string    `json:"documentId"`
	ParticipantCount int       `json:"participantCount"`
	LastActivity     time.Time `json:"lastActivity"`
}

// DocumentRecord is the metadata row for a collaborative document. State
// holds the last persisted full encoding of the mergeable document.
type DocumentRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"ownerId"`
	IsPublic  bool      `json:"isPublic"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
