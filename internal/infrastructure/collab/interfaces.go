// Package collab implements the session registry at the core of the
// realtime collaboration engine: per-document mergeable state, the in-memory
// presence registry, debounced snapshot persistence, and the reconciliation
// sweeper that evicts idle state.
package collab

import (
	"context"
	"errors"
	"time"

	"github.com/slatedeck/slatedeck-go/internal/domain/entities/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/crdt"
)

var (
	// ErrMalformedDelta reports a delta that failed to decode. The session
	// is unaffected; callers drop the delta and log.
	ErrMalformedDelta = errors.New("malformed document delta")

	// ErrHydration reports a durable-store read failure while opening a
	// session. The session is not marked loaded, so a later open retries.
	ErrHydration = errors.New("document hydration failed")

	// ErrNotJoined reports an operation for a participant with no presence
	// entry in the session.
	ErrNotJoined = errors.New("participant not joined")
)

// MergeableDoc is the black-box mergeable document capability the engine
// relies on. The concrete implementation lives in the crdt package.
type MergeableDoc interface {
	ApplyDelta(delta []byte) error
	EncodeFull() []byte
}

// DocFactory constructs and hydrates mergeable documents. Injected so tests
// can substitute deterministic fakes.
type DocFactory interface {
	NewDoc() MergeableDoc
	LoadDoc(full []byte) (MergeableDoc, error)
}

// CRDTFactory is the production DocFactory backed by the crdt package.
type CRDTFactory struct{}

func (CRDTFactory) NewDoc() MergeableDoc { return crdt.New() }

func (CRDTFactory) LoadDoc(full []byte) (MergeableDoc, error) { return crdt.Load(full) }

// SnapshotStore persists full document encodings. Implementations upsert
// the encoded state plus a modified timestamp keyed by document id.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, documentID string) ([]byte, bool, error)
	SaveSnapshot(ctx context.Context, documentID string, state []byte) error
}

// DirectoryStore is the durable session-directory mirror of presence.
// Writes are best-effort and tolerant of races; last-write-wins.
type DirectoryStore interface {
	UpsertRecord(ctx context.Context, rec *collab.DirectoryRecord) error
	DeleteRecord(ctx context.Context, documentID, participantID string) error
	DeleteStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// ActivityStore upserts the per-room activity aggregate.
type ActivityStore interface {
	UpsertActivity(ctx context.Context, documentID string, participantCount int, lastActivity time.Time) error
	GetActivity(ctx context.Context, documentID string) (*collab.RoomActivity, error)
}
