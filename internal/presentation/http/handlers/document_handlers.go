package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	entities "github.com/slatedeck/slatedeck-go/internal/domain/entities/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
	persistence "github.com/slatedeck/slatedeck-go/internal/infrastructure/persistence/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/security"
	"github.com/slatedeck/slatedeck-go/internal/presentation/http/middleware"
)

// DocumentHandlers serves document metadata: create, fetch, list. Content
// itself lives in the mergeable document and flows only through the
// realtime gateway.
type DocumentHandlers struct {
	documents *persistence.DocumentRepository
	logger    *logging.ChanneledLogger
}

// NewDocumentHandlers creates document metadata handlers.
func NewDocumentHandlers(documents *persistence.DocumentRepository, logger *logging.ChanneledLogger) *DocumentHandlers {
	return &DocumentHandlers{documents: documents, logger: logger}
}

// CreateDocumentRequest is the payload for document creation.
type CreateDocumentRequest struct {
	Title    string `json:"title" binding:"required"`
	IsPublic bool   `json:"isPublic"`
}

// PostDocument creates a document record owned by the verified participant.
func (h *DocumentHandlers) PostDocument(c *gin.Context) {
	participant, ok := middleware.GetParticipant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	doc := &entities.DocumentRecord{
		ID:       security.GenerateULID(),
		Title:    req.Title,
		OwnerID:  participant.ID,
		IsPublic: req.IsPublic,
	}
	if err := h.documents.Create(c.Request.Context(), doc); err != nil {
		h.logger.Database().Error("Document create failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create document"})
		return
	}

	h.logger.System().Info("Document created", "documentId", doc.ID, "ownerId", participant.ID)
	c.JSON(http.StatusCreated, doc)
}

// GetDocument returns one document's metadata if the participant may see it.
func (h *DocumentHandlers) GetDocument(c *gin.Context) {
	participant, ok := middleware.GetParticipant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	doc, err := h.documents.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, entities.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read document"})
		return
	}
	if !doc.IsPublic && doc.OwnerID != participant.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
		return
	}

	c.JSON(http.StatusOK, doc)
}

// GetDocuments lists the documents the participant owns.
func (h *DocumentHandlers) GetDocuments(c *gin.Context) {
	participant, ok := middleware.GetParticipant(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	docs, err := h.documents.ListByOwner(c.Request.Context(), participant.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}
	if docs == nil {
		docs = []*entities.DocumentRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs})
}
