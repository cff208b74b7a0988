package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slatedeck/slatedeck-go/internal/domain/entities/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
)

// Registry owns every in-memory session. It is injected into the gateway
// and the sweeper rather than held as a package singleton, so tests can run
// independent registries side by side.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	docs      DocFactory
	snapshots SnapshotStore
	logger    *logging.ChanneledLogger
	debounce  time.Duration
}

// NewRegistry creates a session registry. debounce is the window within
// which repeated persist requests for one session collapse into one write.
func NewRegistry(docs DocFactory, snapshots SnapshotStore, debounce time.Duration, logger *logging.ChanneledLogger) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		docs:      docs,
		snapshots: snapshots,
		logger:    logger,
		debounce:  debounce,
	}
}

// Open returns the in-memory session for a document, constructing and
// hydrating it from the last persisted snapshot if needed. Idempotent: a
// second call for a still-open session returns the same instance. A durable
// read failure returns ErrHydration and leaves nothing cached, so the next
// open retries.
func (r *Registry) Open(ctx context.Context, documentID string) (*Session, error) {
	r.mu.RLock()
	session, exists := r.sessions[documentID]
	r.mu.RUnlock()
	if exists {
		return session, nil
	}

	// Hydrate outside the registry lock so a slow read never blocks
	// unrelated sessions. A racing open may do duplicate work; the loser's
	// document is discarded below.
	state, found, err := r.snapshots.LoadSnapshot(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHydration, err)
	}

	var doc MergeableDoc
	if found && len(state) > 0 {
		doc, err = r.docs.LoadDoc(state)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHydration, err)
		}
	} else {
		doc = r.docs.NewDoc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if session, exists := r.sessions[documentID]; exists {
		return session, nil
	}
	session = newSession(documentID, doc)
	r.sessions[documentID] = session

	r.logger.Collab().Info("Session loaded", "documentId", documentID, "hydrated", found)
	return session, nil
}

// get returns an already-open session.
func (r *Registry) get(documentID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, exists := r.sessions[documentID]
	return session, exists
}

// Join opens the session, inserts or replaces the participant's presence
// entry, and returns the full snapshot plus the complete presence list so
// the caller can hydrate the newcomer in one message.
func (r *Registry) Join(ctx context.Context, documentID string, participant collab.Participant) ([]byte, []*collab.PresenceEntry, error) {
	for {
		session, err := r.Open(ctx, documentID)
		if err != nil {
			return nil, nil, err
		}
		if snapshot, presence, ok := r.tryJoin(documentID, session, participant); ok {
			return snapshot, presence, nil
		}
		// The eviction sweep discarded the session between the open and
		// the presence insert. Open again; the next session is fresh.
	}
}

// tryJoin inserts the presence entry, but only if the session is still the
// one registered for the document. Holding the registry read lock while the
// session lock is taken keeps the eviction sweep from discarding the session
// between the registration check and the insert. Lock order is registry
// before session, matching EvictIdle.
func (r *Registry) tryJoin(documentID string, session *Session, participant collab.Participant) ([]byte, []*collab.PresenceEntry, bool) {
	r.mu.RLock()
	if r.sessions[documentID] != session {
		r.mu.RUnlock()
		return nil, nil, false
	}
	session.mu.Lock()
	r.mu.RUnlock()
	defer session.mu.Unlock()

	session.presence[participant.ID] = &collab.PresenceEntry{
		Participant: participant,
		Active:      true,
		JoinedAt:    time.Now().UTC(),
	}
	session.touchLocked()

	r.logger.Presence().Info("Participant joined",
		"documentId", documentID,
		"participantId", participant.ID,
		"occupancy", len(session.presence))

	return session.doc.EncodeFull(), session.presenceListLocked(), true
}

// ApplyDelta merges an incoming delta into the session's document state and
// schedules a debounced persist. A delta that fails to decode returns
// ErrMalformedDelta and leaves the state untouched; merging an
// already-applied delta is a no-op, which makes at-least-once delivery safe.
func (r *Registry) ApplyDelta(documentID string, delta []byte) error {
	session, exists := r.get(documentID)
	if !exists {
		return ErrNotJoined
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if err := session.doc.ApplyDelta(delta); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDelta, err)
	}

	session.dirty = true
	session.touchLocked()
	r.schedulePersistLocked(session)
	return nil
}

// FullSnapshot returns the full encoding of the session's current state.
func (r *Registry) FullSnapshot(documentID string) ([]byte, error) {
	session, exists := r.get(documentID)
	if !exists {
		return nil, ErrNotJoined
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.doc.EncodeFull(), nil
}

// UpdateCursor mutates only the pointer position of an existing presence
// entry. A message arriving after the participant left is a no-op.
func (r *Registry) UpdateCursor(documentID, participantID string, cursor *collab.CursorPosition) bool {
	session, exists := r.get(documentID)
	if !exists {
		return false
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	entry, present := session.presence[participantID]
	if !present {
		return false
	}
	entry.Cursor = cursor
	entry.Active = true
	session.touchLocked()
	return true
}

// Leave removes the participant's presence entry. The second return value
// reports whether the session is now empty, which starts the quiescence
// grace timer for the eviction sweep.
func (r *Registry) Leave(documentID, participantID string) (removed, empty bool) {
	session, exists := r.get(documentID)
	if !exists {
		return false, false
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if _, present := session.presence[participantID]; !present {
		return false, len(session.presence) == 0
	}
	delete(session.presence, participantID)
	session.lastActivity = time.Now().UTC()

	if len(session.presence) == 0 {
		session.emptySince = time.Now().UTC()
		r.logger.Presence().Info("Session quiescent", "documentId", documentID, "participantId", participantID)
		return true, true
	}
	return true, false
}

// Presence returns a copy of the session's current presence list.
func (r *Registry) Presence(documentID string) []*collab.PresenceEntry {
	session, exists := r.get(documentID)
	if !exists {
		return nil
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.presenceListLocked()
}

// RoomStates reports occupancy and last activity for every in-memory
// session. The sweeper uses it to recompute durable room activity records;
// the occupancy API serves it directly.
func (r *Registry) RoomStates() []collab.RoomActivity {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	states := make([]collab.RoomActivity, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		states = append(states, collab.RoomActivity{
			DocumentID:       s.ID,
			ParticipantCount: len(s.presence),
			LastActivity:     s.lastActivity,
		})
		s.mu.Unlock()
	}
	return states
}

// schedulePersistLocked arms the session's debounce timer if no persist is
// already pending. Repeated calls within the window collapse into a single
// write of the then-current full encoding. Callers hold session.mu.
func (r *Registry) schedulePersistLocked(session *Session) {
	if session.persistPending {
		return
	}
	session.persistPending = true
	session.persistTimer = time.AfterFunc(r.debounce, func() {
		r.flush(context.Background(), session)
	})
}

// flush writes the session's current full encoding if it is dirty. A write
// failure is logged and the session stays dirty, so the next scheduled
// persist retries; the live collaboration path never sees the error.
func (r *Registry) flush(ctx context.Context, session *Session) {
	session.mu.Lock()
	session.persistPending = false
	session.persistTimer = nil
	if !session.dirty {
		session.mu.Unlock()
		return
	}
	state := session.doc.EncodeFull()
	session.dirty = false
	session.mu.Unlock()

	if err := r.snapshots.SaveSnapshot(ctx, session.ID, state); err != nil {
		r.logger.Persist().Error("Snapshot write failed, will retry on next persist",
			"documentId", session.ID, "error", err.Error(), "bytes", len(state))
		session.mu.Lock()
		session.dirty = true
		session.mu.Unlock()
		return
	}

	r.logger.Persist().Debug("Snapshot persisted", "documentId", session.ID, "bytes", len(state))
}

// FlushSession synchronously persists one session, cancelling any pending
// debounce. Used when a session becomes empty so the last burst of edits is
// durable before the state can be evicted.
func (r *Registry) FlushSession(ctx context.Context, documentID string) {
	session, exists := r.get(documentID)
	if !exists {
		return
	}
	session.mu.Lock()
	session.stopPersistTimerLocked()
	session.mu.Unlock()
	r.flush(ctx, session)
}

// FlushAll synchronously persists every dirty session. Called on shutdown.
func (r *Registry) FlushAll(ctx context.Context) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, session := range sessions {
		session.mu.Lock()
		session.stopPersistTimerLocked()
		session.mu.Unlock()
		r.flush(ctx, session)
	}
}

// EvictIdle discards sessions whose presence map has been empty since
// before the grace period, flushing any unsaved state first. A session with
// a failed flush is kept in memory rather than lost. Returns the ids of
// evicted sessions.
func (r *Registry) EvictIdle(ctx context.Context, grace time.Duration) []string {
	cutoff := time.Now().UTC().Add(-grace)

	r.mu.RLock()
	candidates := make([]*Session, 0)
	for _, s := range r.sessions {
		candidates = append(candidates, s)
	}
	r.mu.RUnlock()

	var evicted []string
	for _, session := range candidates {
		session.mu.Lock()
		if !session.quiescentSinceLocked(cutoff) {
			session.mu.Unlock()
			continue
		}
		session.stopPersistTimerLocked()
		session.mu.Unlock()

		r.flush(ctx, session)

		r.mu.Lock()
		session.mu.Lock()
		// A join or a failed flush since the check keeps the session alive.
		if session.quiescentSinceLocked(cutoff) && !session.dirty {
			delete(r.sessions, session.ID)
			evicted = append(evicted, session.ID)
		}
		session.mu.Unlock()
		r.mu.Unlock()
	}

	if len(evicted) > 0 {
		r.logger.Collab().Info("Evicted idle sessions", "count", len(evicted))
	}
	return evicted
}
