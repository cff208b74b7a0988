package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slatedeck/slatedeck-go/internal/application/services"
	entities "github.com/slatedeck/slatedeck-go/internal/domain/entities/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/collab"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/crdt"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/messaging"
	"github.com/slatedeck/slatedeck-go/internal/infrastructure/observability/logging"
	"github.com/slatedeck/slatedeck-go/internal/presentation/http/middleware"
	"github.com/slatedeck/slatedeck-go/pkg/config"
)

const testSecret = "gateway-test-secret"

func newTestLogger(t *testing.T) *logging.ChanneledLogger {
	t.Helper()
	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{
		OutputToFile:    false,
		OutputToConsole: false,
		DefaultLevel:    slog.LevelError + 1,
		ChannelLevels:   make(map[logging.Channel]slog.Level),
	})
	require.NoError(t, err)
	return logger
}

type memorySnapshotStore struct {
	mu     sync.Mutex
	states map[string][]byte
}

func (s *memorySnapshotStore) LoadSnapshot(_ context.Context, documentID string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, found := s.states[documentID]
	return state, found, nil
}

func (s *memorySnapshotStore) SaveSnapshot(_ context.Context, documentID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[documentID] = state
	return nil
}

type memoryDirectoryStore struct {
	mu      sync.Mutex
	records map[string]*entities.DirectoryRecord
}

func (s *memoryDirectoryStore) UpsertRecord(_ context.Context, rec *entities.DirectoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.DocumentID+"/"+rec.ParticipantID] = rec
	return nil
}

func (s *memoryDirectoryStore) DeleteRecord(_ context.Context, documentID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID+"/"+participantID)
	return nil
}

func (s *memoryDirectoryStore) DeleteStale(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (s *memoryDirectoryStore) has(documentID, participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[documentID+"/"+participantID]
	return ok
}

type memoryActivityStore struct {
	mu     sync.Mutex
	counts map[string]int
}

func (s *memoryActivityStore) UpsertActivity(_ context.Context, documentID string, participantCount int, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[documentID] = participantCount
	return nil
}

func (s *memoryActivityStore) GetActivity(_ context.Context, documentID string) (*entities.RoomActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, ok := s.counts[documentID]
	if !ok {
		return nil, entities.ErrDocumentNotFound
	}
	return &entities.RoomActivity{DocumentID: documentID, ParticipantCount: count}, nil
}

// allowAll authorizes every participant for every document.
type allowAll struct{}

func (allowAll) Authorize(context.Context, string, string) error { return nil }

// denyAll rejects every join.
type denyAll struct{}

func (denyAll) Authorize(context.Context, string, string) error {
	return entities.ErrUnauthorized
}

type gatewayFixture struct {
	server    *httptest.Server
	registry  *collab.Registry
	directory *memoryDirectoryStore
	snapshots *memorySnapshotStore
}

func newGatewayFixture(t *testing.T, access services.AccessChecker) *gatewayFixture {
	t.Helper()
	return newGatewayFixtureWith(t, access, collab.CRDTFactory{},
		&memoryDirectoryStore{records: make(map[string]*entities.DirectoryRecord)})
}

func newGatewayFixtureWith(t *testing.T, access services.AccessChecker, docs collab.DocFactory, directory collab.DirectoryStore) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.JWTSecret = testSecret

	logger := newTestLogger(t)
	snapshots := &memorySnapshotStore{states: make(map[string][]byte)}
	activity := &memoryActivityStore{counts: make(map[string]int)}

	registry := collab.NewRegistry(docs, snapshots, time.Hour, logger)
	hub := messaging.NewHub(logger)
	service := services.NewCollabService(registry, hub, directory, activity, access, logger)
	handlers := NewCollabHandlers(service, registry, activity, logger)

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.IdentityMiddleware(logger))
	api.GET("/collab/ws", handlers.GetCollabWS)
	api.GET("/collab/rooms/:id/activity", handlers.GetRoomActivity)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	f := &gatewayFixture{
		server:    server,
		registry:  registry,
		snapshots: snapshots,
	}
	if mem, ok := directory.(*memoryDirectoryStore); ok {
		f.directory = mem
	}
	return f
}

func mintToken(t *testing.T, participantID, name string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"type":  "collab_auth",
		"sub":   participantID,
		"name":  name,
		"color": "#abcdef",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *gatewayFixture) dial(t *testing.T, participantID, name string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") +
		"/api/v1/collab/ws?token=" + mintToken(t, participantID, name)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg entities.Envelope) {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func readEvent(t *testing.T, conn *websocket.Conn) *entities.ServerEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var event entities.ServerEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	return &event
}

func join(t *testing.T, conn *websocket.Conn, documentID string) (*entities.ServerEvent, *entities.ServerEvent) {
	t.Helper()
	send(t, conn, entities.Envelope{Type: entities.MsgJoin, DocumentID: documentID})
	syncState := readEvent(t, conn)
	require.Equal(t, entities.EventSyncState, syncState.Type)
	presence := readEvent(t, conn)
	require.Equal(t, entities.EventPresenceState, presence.Type)
	return syncState, presence
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	f := newGatewayFixture(t, allowAll{})

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/api/v1/collab/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)
}

func TestGatewayJoinDeliversSnapshotAndAnnouncesPeer(t *testing.T) {
	f := newGatewayFixture(t, allowAll{})

	alice := f.dial(t, "alice", "Alice")
	_, alicePresence := join(t, alice, "doc-1")
	assert.Len(t, alicePresence.Presence, 1)

	bob := f.dial(t, "bob", "Bob")
	_, bobPresence := join(t, bob, "doc-1")

	// The newcomer sees both participants; the incumbent is told about the
	// newcomer exactly once.
	assert.Len(t, bobPresence.Presence, 2)

	event := readEvent(t, alice)
	require.Equal(t, entities.EventUserJoined, event.Type)
	require.NotNil(t, event.Entry)
	assert.Equal(t, "bob", event.Entry.Participant.ID)
	assert.Equal(t, "Bob", event.Entry.Participant.Name)
}

func TestGatewayFansOutDeltasAndMergesThem(t *testing.T) {
	f := newGatewayFixture(t, allowAll{})

	alice := f.dial(t, "alice", "Alice")
	join(t, alice, "doc-1")
	bob := f.dial(t, "bob", "Bob")
	join(t, bob, "doc-1")
	readEvent(t, alice) // user-joined for bob

	authored := crdt.New()
	require.NoError(t, authored.Put("headline", "launch plan"))
	delta := authored.EncodeDelta()
	require.NotEmpty(t, delta)

	send(t, alice, entities.Envelope{
		Type:       entities.MsgContentUpdate,
		DocumentID: "doc-1",
		Delta:      delta,
	})

	// The peer receives the delta verbatim.
	event := readEvent(t, bob)
	require.Equal(t, entities.EventContentUpdate, event.Type)
	assert.Equal(t, delta, event.Delta)

	// The server merged it: a late joiner's snapshot carries the edit.
	carol := f.dial(t, "carol", "Carol")
	syncState, _ := join(t, carol, "doc-1")
	merged, err := crdt.Load(syncState.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, authored.Dump(), merged.Dump())
}

func TestGatewayCursorFanOut(t *testing.T) {
	f := newGatewayFixture(t, allowAll{})

	alice := f.dial(t, "alice", "Alice")
	join(t, alice, "doc-1")
	bob := f.dial(t, "bob", "Bob")
	join(t, bob, "doc-1")
	readEvent(t, alice) // user-joined for bob

	send(t, bob, entities.Envelope{
		Type:       entities.MsgCursorMove,
		DocumentID: "doc-1",
		Cursor:     &entities.CursorPosition{X: 120, Y: 48, SlideID: "slide-3"},
	})

	event := readEvent(t, alice)
	require.Equal(t, entities.EventCursorUpdate, event.Type)
	assert.Equal(t, "bob", event.ParticipantID)
	require.NotNil(t, event.Cursor)
	assert.Equal(t, "slide-3", event.Cursor.SlideID)
}

func TestGatewayDisconnectActsAsLeave(t *testing.T) {
	f := newGatewayFixture(t, allowAll{})

	alice := f.dial(t, "alice", "Alice")
	join(t, alice, "doc-1")
	bob := f.dial(t, "bob", "Bob")
	join(t, bob, "doc-1")
	readEvent(t, alice) // user-joined for bob

	require.Eventually(t, func() bool {
		return f.directory.has("doc-1", "bob")
	}, 2*time.Second, 10*time.Millisecond)

	// Abrupt close, no leave message.
	bob.Close()

	event := readEvent(t, alice)
	require.Equal(t, entities.EventUserLeft, event.Type)
	assert.Equal(t, "bob", event.ParticipantID)

	require.Eventually(t, func() bool {
		return !f.directory.has("doc-1", "bob")
	}, 2*time.Second, 10*time.Millisecond)

	presence := f.registry.Presence("doc-1")
	require.Len(t, presence, 1)
	assert.Equal(t, "alice", presence[0].Participant.ID)
}

func TestGatewayExplicitLeaveFlushesEmptySession(t *testing.T) {
	f := newGatewayFixture(t, allowAll{})

	alice := f.dial(t, "alice", "Alice")
	join(t, alice, "doc-1")

	authored := crdt.New()
	require.NoError(t, authored.Put("title", "standup notes"))
	send(t, alice, entities.Envelope{
		Type:       entities.MsgContentUpdate,
		DocumentID: "doc-1",
		Delta:      authored.EncodeDelta(),
	})
	send(t, alice, entities.Envelope{Type: entities.MsgLeave, DocumentID: "doc-1"})

	// The last leave persists the session synchronously, well before the
	// debounce window (an hour here) would have fired.
	require.Eventually(t, func() bool {
		f.snapshots.mu.Lock()
		defer f.snapshots.mu.Unlock()
		return len(f.snapshots.states["doc-1"]) > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGatewayUnauthorizedJoinGetsErrorEvent(t *testing.T) {
	f := newGatewayFixture(t, denyAll{})

	mallory := f.dial(t, "mallory", "Mallory")
	send(t, mallory, entities.Envelope{Type: entities.MsgJoin, DocumentID: "doc-1"})

	event := readEvent(t, mallory)
	require.Equal(t, entities.EventError, event.Type)
	assert.Equal(t, "unauthorized", event.Error)

	assert.Empty(t, f.registry.Presence("doc-1"))
}

func TestGatewayIgnoresDeltaBeforeJoin(t *testing.T) {
	f := newGatewayFixture(t, allowAll{})

	alice := f.dial(t, "alice", "Alice")
	join(t, alice, "doc-1")

	// A second connection sends a delta without joining: dropped.
	mallory := f.dial(t, "mallory", "Mallory")
	authored := crdt.New()
	require.NoError(t, authored.Put("x", "y"))
	send(t, mallory, entities.Envelope{
		Type:       entities.MsgContentUpdate,
		DocumentID: "doc-1",
		Delta:      authored.EncodeDelta(),
	})

	// Alice hears nothing.
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := alice.ReadMessage()
	assert.Error(t, err)
}

// encodeGate lets a test block one snapshot encode so it can interleave
// other work while the encode is in flight. Arm it, wait on started, then
// close release.
type encodeGate struct {
	armed   atomic.Bool
	started chan struct{}
	release chan struct{}
}

func newEncodeGate() *encodeGate {
	return &encodeGate{started: make(chan struct{}), release: make(chan struct{})}
}

type gatedDoc struct {
	inner collab.MergeableDoc
	gate  *encodeGate
}

func (d *gatedDoc) ApplyDelta(delta []byte) error { return d.inner.ApplyDelta(delta) }

func (d *gatedDoc) EncodeFull() []byte {
	if d.gate.armed.CompareAndSwap(true, false) {
		close(d.gate.started)
		<-d.gate.release
	}
	return d.inner.EncodeFull()
}

type gatedFactory struct {
	gate *encodeGate
}

func (f *gatedFactory) NewDoc() collab.MergeableDoc {
	return &gatedDoc{inner: collab.CRDTFactory{}.NewDoc(), gate: f.gate}
}

func (f *gatedFactory) LoadDoc(full []byte) (collab.MergeableDoc, error) {
	doc, err := collab.CRDTFactory{}.LoadDoc(full)
	if err != nil {
		return nil, err
	}
	return &gatedDoc{inner: doc, gate: f.gate}, nil
}

// stalledDirectoryStore hangs every upsert until released, standing in for
// a durable store that has gone slow.
type stalledDirectoryStore struct {
	release chan struct{}
}

func (s *stalledDirectoryStore) UpsertRecord(ctx context.Context, _ *entities.DirectoryRecord) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stalledDirectoryStore) DeleteRecord(context.Context, string, string) error { return nil }

func (s *stalledDirectoryStore) DeleteStale(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestGatewayJoinerSeesEditConcurrentWithSnapshot(t *testing.T) {
	gate := newEncodeGate()
	f := newGatewayFixtureWith(t, allowAll{}, &gatedFactory{gate: gate},
		&memoryDirectoryStore{records: make(map[string]*entities.DirectoryRecord)})

	alice := f.dial(t, "alice", "Alice")
	join(t, alice, "doc-1")

	bob := f.dial(t, "bob", "Bob")
	gate.armed.Store(true)
	send(t, bob, entities.Envelope{Type: entities.MsgJoin, DocumentID: "doc-1"})
	<-gate.started // bob's snapshot encode is in flight

	// Alice edits while the snapshot is being taken. The merge waits on
	// the session lock, so the delta cannot land in that snapshot; the
	// only way it reaches Bob is fan-out to his already-attached
	// connection.
	authored := crdt.New()
	require.NoError(t, authored.Put("headline", "mid-join edit"))
	delta := authored.EncodeDelta()
	send(t, alice, entities.Envelope{
		Type:       entities.MsgContentUpdate,
		DocumentID: "doc-1",
		Delta:      delta,
	})

	time.Sleep(50 * time.Millisecond) // let the edit queue up on the session lock
	close(gate.release)

	var syncState, update *entities.ServerEvent
	for i := 0; i < 6 && (syncState == nil || update == nil); i++ {
		event := readEvent(t, bob)
		switch event.Type {
		case entities.EventSyncState:
			syncState = event
		case entities.EventContentUpdate:
			update = event
		}
	}
	require.NotNil(t, syncState, "joiner never received its snapshot")
	require.NotNil(t, update, "joiner never received the concurrent edit")
	assert.Equal(t, delta, update.Delta)

	merged, err := crdt.Load(syncState.Snapshot)
	require.NoError(t, err)
	require.NoError(t, merged.ApplyDelta(update.Delta))
	assert.Equal(t, authored.Dump(), merged.Dump())
}

func TestGatewaySlowDirectoryDoesNotStallFanOut(t *testing.T) {
	directory := &stalledDirectoryStore{release: make(chan struct{})}
	t.Cleanup(func() { close(directory.release) })
	f := newGatewayFixtureWith(t, allowAll{}, collab.CRDTFactory{}, directory)

	alice := f.dial(t, "alice", "Alice")
	join(t, alice, "doc-1")
	bob := f.dial(t, "bob", "Bob")
	join(t, bob, "doc-1")
	readEvent(t, alice) // user-joined for bob

	// The cursor move kicks off a directory mirror that hangs. The next
	// message on the same connection must still flow to peers promptly.
	send(t, alice, entities.Envelope{
		Type:       entities.MsgCursorMove,
		DocumentID: "doc-1",
		Cursor:     &entities.CursorPosition{X: 3, Y: 7, SlideID: "slide-1"},
	})

	authored := crdt.New()
	require.NoError(t, authored.Put("headline", "still flowing"))
	delta := authored.EncodeDelta()
	send(t, alice, entities.Envelope{
		Type:       entities.MsgContentUpdate,
		DocumentID: "doc-1",
		Delta:      delta,
	})

	cursor := readEvent(t, bob)
	require.Equal(t, entities.EventCursorUpdate, cursor.Type)
	update := readEvent(t, bob)
	require.Equal(t, entities.EventContentUpdate, update.Type)
	assert.Equal(t, delta, update.Delta)
}

func TestGatewayConcurrentEditsConvergeBothWays(t *testing.T) {
	f := newGatewayFixture(t, allowAll{})

	alice := f.dial(t, "alice", "Alice")
	join(t, alice, "doc-1")
	bob := f.dial(t, "bob", "Bob")
	join(t, bob, "doc-1")
	readEvent(t, alice) // user-joined for bob

	aliceDoc := crdt.New()
	require.NoError(t, aliceDoc.Put("fromAlice", "opening slide"))
	aliceDelta := aliceDoc.EncodeDelta()

	bobDoc := crdt.New()
	require.NoError(t, bobDoc.Put("fromBob", "closing slide"))
	bobDelta := bobDoc.EncodeDelta()

	// Both sides edit with no coordination.
	send(t, alice, entities.Envelope{
		Type:       entities.MsgContentUpdate,
		DocumentID: "doc-1",
		Delta:      aliceDelta,
	})
	send(t, bob, entities.Envelope{
		Type:       entities.MsgContentUpdate,
		DocumentID: "doc-1",
		Delta:      bobDelta,
	})

	// Each peer receives the other's delta and merges it locally.
	atBob := readEvent(t, bob)
	require.Equal(t, entities.EventContentUpdate, atBob.Type)
	assert.Equal(t, aliceDelta, atBob.Delta)
	require.NoError(t, bobDoc.ApplyDelta(atBob.Delta))

	atAlice := readEvent(t, alice)
	require.Equal(t, entities.EventContentUpdate, atAlice.Type)
	assert.Equal(t, bobDelta, atAlice.Delta)
	require.NoError(t, aliceDoc.ApplyDelta(atAlice.Delta))

	assert.Equal(t, aliceDoc.Dump(), bobDoc.Dump())

	// The server converged to the same merged state.
	carol := f.dial(t, "carol", "Carol")
	syncState, _ := join(t, carol, "doc-1")
	merged, err := crdt.Load(syncState.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, aliceDoc.Dump(), merged.Dump())
}
