package collab

import "encoding/json"

// Client-to-server message types.
const (
	MsgJoin          = "join"
	MsgContentUpdate = "contentUpdate"
	MsgCursorMove    = "cursorMove"
	MsgLeave         = "leave"
)

// Server-to-client event types.
const (
	EventSyncState     = "sync-state"
	EventContentUpdate = "contentUpdate"
	EventPresenceState = "presence-state"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventCursorUpdate  = "cursor-update"
	EventError         = "error"
)

// Envelope is the single inbound wire message. Delta carries an opaque
// mergeable-document delta, base64 in JSON.
type Envelope struct {
	Type       string          `json:"type"`
	DocumentID string          `json:"documentId"`
	Delta      []byte          `json:"delta,omitempty"`
	Cursor     *CursorPosition `json:"cursor,omitempty"`
}

// ServerEvent is the single outbound wire message. Fields are populated
// per event type; unset fields are omitted.
type ServerEvent struct {
	Type          string           `json:"type"`
	DocumentID    string           `json:"documentId"`
	Snapshot      []byte           `json:"snapshot,omitempty"`
	Delta         []byte           `json:"delta,omitempty"`
	Presence      []*PresenceEntry `json:"presence,omitempty"`
	Entry         *PresenceEntry   `json:"entry,omitempty"`
	ParticipantID string           `json:"participantId,omitempty"`
	Cursor        *CursorPosition  `json:"cursor,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Encode marshals the event for fan-out. Marshal failure cannot happen for
// these field types, so the error is swallowed to keep call sites simple.
func (e *ServerEvent) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}
