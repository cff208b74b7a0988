// Package handlers provides HTTP and websocket handlers for the
// collaboration engine.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/slatedeck/slatedeck-go/internal/application/services"
	entities "github.com/slatedeck/slatedeck-go/internal/domain/entities/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/messaging"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
	"github.com/slatedeck/slatedeck-go/internal/presentation/http/middleware"
)

// CollabHandlers serves the realtime gateway endpoint and the room
// occupancy API.
type CollabHandlers struct {
	collabService *services.CollabService
	registry      *collab.Registry
	activity      collab.ActivityStore
	upgrader      websocket.Upgrader
	logger        *logging.ChanneledLogger
}

// NewCollabHandlers creates gateway handlers with injected dependencies.
func NewCollabHandlers(collabService *services.CollabService, registry *collab.Registry, activity collab.ActivityStore, logger *logging.ChanneledLogger) *CollabHandlers {
	return &CollabHandlers{
		collabService: collabService,
		registry:      registry,
		activity:      activity,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser origin policy is enforced by the CORS layer and the
			// token check; the upgrade itself accepts any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// GetCollabWS upgrades the connection and runs the gateway pumps until the
// client disconnects. Identity is verified by the middleware before the
// upgrade; the engine trusts it from there.
func (h *CollabHandlers) GetCollabWS(c *gin.Context) {
	participant, ok := middleware.GetParticipant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Gateway().Error("Websocket upgrade failed", "error", err.Error())
		return
	}

	client := messaging.NewClient(conn, *participant,
		h.collabService.HandleMessage,
		h.collabService.HandleDisconnect,
	)

	h.logger.Gateway().Info("Connection established",
		"connId", client.ID.String(), "participantId", participant.ID)

	client.Run()
}

// GetRooms returns occupancy and last activity for every in-memory
// session this process owns.
func (h *CollabHandlers) GetRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.registry.RoomStates()})
}

// GetRoomActivity returns the durable activity record for one room, which
// stays queryable even when the session is not loaded in this process.
func (h *CollabHandlers) GetRoomActivity(c *gin.Context) {
	documentID := c.Param("id")

	activity, err := h.activity.GetActivity(c.Request.Context(), documentID)
	if err != nil {
		if errors.Is(err, entities.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no activity recorded"})
			return
		}
		h.logger.Presence().Error("Activity read failed", "documentId", documentID, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read room activity"})
		return
	}

	c.JSON(http.StatusOK, activity)
}
