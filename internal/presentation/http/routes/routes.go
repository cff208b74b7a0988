// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/slatedeck/slatedeck-go/internal/application/container"
	"github.com/slatedeck/slatedeck-go/internal/presentation/http/handlers"
	"github.com/slatedeck/slatedeck-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	// Initialize handlers
	collabHandlers := handlers.NewCollabHandlers(container.CollabService, container.Registry, container.ActivityRepo, container.Logger)
	documentHandlers := handlers.NewDocumentHandlers(container.DocumentRepo, container.Logger)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// All collaboration routes require an authenticated participant.
	api := r.Group("/api/v1")
	api.Use(middleware.IdentityMiddleware(container.Logger))
	{
		// Document metadata endpoints
		documents := api.Group("/documents")
		{
			documents.POST("", documentHandlers.PostDocument)
			documents.GET("", documentHandlers.GetDocuments)
			documents.GET("/:id", documentHandlers.GetDocument)
		}

		// Realtime collaboration endpoints
		collab := api.Group("/collab")
		{
			collab.GET("/ws", collabHandlers.GetCollabWS)
			collab.GET("/rooms", collabHandlers.GetRooms)
			collab.GET("/rooms/:id/activity", collabHandlers.GetRoomActivity)
		}
	}

	return r
}
