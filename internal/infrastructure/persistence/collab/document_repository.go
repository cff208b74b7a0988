package collab

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entities "github.com/slatedeck/slatedeck-go/internal/domain/entities/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
)

// DocumentRepository manages document metadata rows and answers the
// ownership check consulted before a join is accepted.
type DocumentRepository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

func NewDocumentRepository(db *sql.DB, logger *logging.ChanneledLogger) *DocumentRepository {
	return &DocumentRepository{db: db, logger: logger}
}

// Create inserts a new document record with no persisted state yet.
func (r *DocumentRepository) Create(ctx context.Context, doc *entities.DocumentRecord) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, owner_id, is_public, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULL, ?, ?)`,
		doc.ID, doc.Title, doc.OwnerID, doc.IsPublic, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document %s: %w", doc.ID, err)
	}
	return nil
}

// FindByID reads a document's metadata.
func (r *DocumentRepository) FindByID(ctx context.Context, id string) (*entities.DocumentRecord, error) {
	doc := &entities.DocumentRecord{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, owner_id, is_public, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Title, &doc.OwnerID, &doc.IsPublic, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entities.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}
	return doc, nil
}

// ListByOwner returns the documents a participant owns, newest first.
func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]*entities.DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, owner_id, is_public, created_at, updated_at
		 FROM documents WHERE owner_id = ? ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*entities.DocumentRecord
	for rows.Next() {
		doc := &entities.DocumentRecord{}
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.OwnerID, &doc.IsPublic, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Authorize is the content ownership check: a join is accepted when the
// document is public or owned by the participant. Returns
// ErrDocumentNotFound or ErrUnauthorized otherwise.
func (r *DocumentRepository) Authorize(ctx context.Context, documentID, participantID string) error {
	doc, err := r.FindByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.IsPublic || doc.OwnerID == participantID {
		return nil
	}
	r.logger.Auth().Warn("Join rejected by ownership check",
		"documentId", documentID, "participantId", participantID)
	return entities.ErrUnauthorized
}
