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

// ActivityRepository maintains the per-room activity aggregate. Advisory
// data only: races between writers resolve last-write-wins.
type ActivityRepository struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

func NewActivityRepository(db *sql.DB, logger *logging.ChanneledLogger) *ActivityRepository {
	return &ActivityRepository{db: db, logger: logger}
}

// UpsertActivity writes the current participant count and last-activity
// timestamp for a room.
func (r *ActivityRepository) UpsertActivity(ctx context.Context, documentID string, participantCount int, lastActivity time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO room_activity (document_id, participant_count, last_activity)
		 VALUES (?, ?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET
		   participant_count = excluded.participant_count,
		   last_activity = excluded.last_activity`,
		documentID, participantCount, lastActivity)
	if err != nil {
		return fmt.Errorf("failed to upsert room activity: %w", err)
	}
	return nil
}

// GetActivity reads one room's activity record.
func (r *ActivityRepository) GetActivity(ctx context.Context, documentID string) (*entities.RoomActivity, error) {
	activity := &entities.RoomActivity{DocumentID: documentID}
	err := r.db.QueryRowContext(ctx,
		`SELECT participant_count, last_activity FROM room_activity WHERE document_id = ?`,
		documentID,
	).Scan(&activity.ParticipantCount, &activity.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entities.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read room activity: %w", err)
	}
	return activity, nil
}
