package collab

import (
	"sync"
	"time"

	"github.com/slatedeck/slatedeck-go/internal/domain/entities/collab"
)

// Session is the in-memory unit of collaboration for one document: the
// mergeable document state plus the presence map of connected participants.
// A session is created lazily on first join and discarded from memory (never
// from durable storage) after its presence map has been empty for a grace
// period.
//
// All mutation of doc and presence happens under mu. The mergeable document
// library is not safe for concurrent mutation of one instance, so the
// per-session critical section is required even though merges commute
// logically.
type Session struct {
	ID string

	mu       sync.Mutex
	doc      MergeableDoc
	presence map[string]*collab.PresenceEntry

	lastActivity time.Time
	emptySince   time.Time // zero while the session has participants

	dirty          bool
	persistPending bool
	persistTimer   *time.Timer
}

func newSession(id string, doc MergeableDoc) *Session {
	return &Session{
		ID:           id,
		doc:          doc,
		presence:     make(map[string]*collab.PresenceEntry),
		lastActivity: time.Now().UTC(),
		emptySince:   time.Now().UTC(),
	}
}

// presenceListLocked copies the presence map into a stable slice. Entries
// are copied so callers can serialize them without racing cursor updates.
// Callers hold s.mu.
func (s *Session) presenceListLocked() []*collab.PresenceEntry {
	list := make([]*collab.PresenceEntry, 0, len(s.presence))
	for _, entry := range s.presence {
		copied := *entry
		if entry.Cursor != nil {
			cursor := *entry.Cursor
			copied.Cursor = &cursor
		}
		list = append(list, &copied)
	}
	return list
}

// touchLocked records activity and cancels quiescence. Callers hold s.mu.
func (s *Session) touchLocked() {
	s.lastActivity = time.Now().UTC()
	if len(s.presence) > 0 {
		s.emptySince = time.Time{}
	}
}

// quiescentSinceLocked reports whether the session has been empty since
// before the cutoff. Callers hold s.mu.
func (s *Session) quiescentSinceLocked(cutoff time.Time) bool {
	return len(s.presence) == 0 && !s.emptySince.IsZero() && s.emptySince.Before(cutoff)
}

// stopPersistTimerLocked cancels a pending debounce timer. Callers hold s.mu.
func (s *Session) stopPersistTimerLocked() {
	if s.persistTimer != nil {
		s.persistTimer.Stop()
		s.persistTimer = nil
	}
	s.persistPending = false
}
