package messaging

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	entities "github.com/slatedeck/slatedeck-go/internal/domain/entities/collab"
	"github.com/slatedeck/slatedeck-go/pkg/config"
)

// MessageHandler processes one inbound message on the client's read
// goroutine. Per-connection message order is preserved end-to-end because
// each connection has exactly one reader.
type MessageHandler func(client *Client, raw []byte)

// CloseHandler runs once when the connection is torn down, before the
// client is forgotten. Transport-level loss and explicit close both land
// here, so disconnect always behaves as an implicit leave.
type CloseHandler func(client *Client)

// Client is one websocket connection with its verified participant
// identity and the set of sessions it has joined. The joined set is only
// touched from the read goroutine, so it needs no lock.
type Client struct {
	ID          uuid.UUID
	Participant entities.Participant

	conn   *websocket.Conn
	send   chan []byte
	joined map[string]bool

	onMessage MessageHandler
	onClose   CloseHandler
}

// NewClient wraps an upgraded websocket connection.
func NewClient(conn *websocket.Conn, participant entities.Participant, onMessage MessageHandler, onClose CloseHandler) *Client {
	return &Client{
		ID:          uuid.New(),
		Participant: participant,
		conn:        conn,
		send:        make(chan []byte, config.WSSendBuffer),
		joined:      make(map[string]bool),
		onMessage:   onMessage,
		onClose:     onClose,
	}
}

// MarkJoined records that this connection is attached to a session.
func (c *Client) MarkJoined(documentID string) { c.joined[documentID] = true }

// MarkLeft records detachment from a session.
func (c *Client) MarkLeft(documentID string) { delete(c.joined, documentID) }

// Joined reports whether this connection is attached to a session.
func (c *Client) Joined(documentID string) bool { return c.joined[documentID] }

// JoinedSessions returns the sessions this connection is attached to.
func (c *Client) JoinedSessions() []string {
	ids := make([]string, 0, len(c.joined))
	for id := range c.joined {
		ids = append(ids, id)
	}
	return ids
}

// Send queues a payload for delivery. Never blocks: a connection whose
// buffer is full is closed instead, and the client recovers anything it
// missed by reconnecting and rejoining for a fresh snapshot.
func (c *Client) Send(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.Close()
	}
}

// Close tears down the transport. The read pump observes the closed
// connection and fires the close handler, so a forced close follows the
// same path as a client-side disconnect.
func (c *Client) Close() {
	c.conn.Close()
}

// Run starts the read and write pumps. Returns when the read pump exits;
// callers use this to hold the HTTP handler goroutine open.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// readPump delivers inbound messages to the handler until the connection
// drops, then fires the close handler exactly once.
func (c *Client) readPump() {
	defer func() {
		c.onClose(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(config.WSMaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(config.WSPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.WSPongTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.onMessage(c, raw)
	}
}

// writePump drains the send queue and keeps the connection alive with
// periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(config.WSPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
