package collab

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entities "github.com/slatedeck/slatedeck-go/internal/domain/entities/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
)

// DirectoryRepository is the durable session-directory mirror of the
// in-memory presence registry. Writes are best-effort and last-write-wins;
// the in-memory registry stays authoritative for the owning process.
type DirectoryRepository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

func NewDirectoryRepository(db *sql.DB, logger *logging.ChanneledLogger) *DirectoryRepository {
	return &DirectoryRepository{db: db, logger: logger}
}

// UpsertRecord creates or refreshes a participant's directory record.
// Called on join and on each cursor update; it may lag presence.
func (r *DirectoryRepository) UpsertRecord(ctx context.Context, rec *entities.DirectoryRecord) error {
	lastSeen := rec.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_directory (document_id, participant_id, display_name, display_color, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(document_id, participant_id) DO UPDATE SET
		   display_name = excluded.display_name,
		   display_color = excluded.display_color,
		   last_seen = excluded.last_seen`,
		rec.DocumentID, rec.ParticipantID, rec.DisplayName, rec.DisplayColor, lastSeen)
	if err != nil {
		return fmt.Errorf("failed to upsert directory record: %w", err)
	}
	return nil
}

// DeleteRecord removes a participant's directory record on leave or
// disconnect.
func (r *DirectoryRepository) DeleteRecord(ctx context.Context, documentID, participantID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session_directory WHERE document_id = ? AND participant_id = ?`,
		documentID, participantID)
	if err != nil {
		return fmt.Errorf("failed to delete directory record: %w", err)
	}
	return nil
}

// DeleteStale reaps records whose last-seen timestamp predates the cutoff.
// Covers participants that vanished without an explicit leave.
func (r *DirectoryRepository) DeleteStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM session_directory WHERE last_seen < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale directory records: %w", err)
	}
	reaped, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return reaped, nil
}

// ListByDocument returns the directory records for one document, for
// occupancy queries that must not touch the in-memory registry.
func (r *DirectoryRepository) ListByDocument(ctx context.Context, documentID string) ([]*entities.DirectoryRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT document_id, participant_id, display_name, display_color, last_seen
		 FROM session_directory WHERE document_id = ? ORDER BY participant_id`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory records: %w", err)
	}
	defer rows.Close()

	var records []*entities.DirectoryRecord
	for rows.Next() {
		rec := &entities.DirectoryRecord{}
		if err := rows.Scan(&rec.DocumentID, &rec.ParticipantID, &rec.DisplayName, &rec.DisplayColor, &rec.LastSeen); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
