// Package collab provides the durable-store repositories backing the
// realtime collaboration engine: document snapshots, the session directory,
// room activity aggregates, and document metadata.
package collab

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
)

// SnapshotRepository persists full document encodings on the documents
// table. Writes land on the live collaboration path only through the
// debounced persister, so they are sized and logged but never fatal there.
type SnapshotRepository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

func NewSnapshotRepository(db *sql.DB, logger *logging.ChanneledLogger) *SnapshotRepository {
	return &SnapshotRepository{db: db, logger: logger}
}

// LoadSnapshot reads the last persisted full encoding for a document. The
// second return value is false when the document row exists but has never
// been persisted, or when no row exists at all.
func (r *SnapshotRepository) LoadSnapshot(ctx context.Context, documentID string) ([]byte, bool, error) {
	var state []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT state FROM documents WHERE id = ?`, documentID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load snapshot for %s: %w", documentID, err)
	}
	if len(state) == 0 {
		return nil, false, nil
	}
	return state, true, nil
}

// SaveSnapshot upserts the document's encoded state and bumps its modified
// timestamp. The upsert keeps persistence safe for sessions whose metadata
// row was created by another process.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, documentID string, state []byte) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, owner_id, is_public, state, created_at, updated_at)
		 VALUES (?, 'Untitled', '', 0, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		documentID, state, now, now)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", documentID, err)
	}
	return nil
}
