package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dinebot-ai/dinebot-backend/internal/session"
	"github.com/dinebot-ai/dinebot-backend/pkg/config"
	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
)

type appliedIntent struct {
	sessionID string
	kind      session.IntentKind
	payload   json.RawMessage
}

type fakeEngine struct {
	applied []appliedIntent
}

func (f *fakeEngine) ApplyIntent(_ context.Context, sessionID string, kind session.IntentKind, payload json.RawMessage) (*models.SessionEvent, error) {
	f.applied = append(f.applied, appliedIntent{sessionID: sessionID, kind: kind, payload: payload})
	return &models.SessionEvent{SessionID: sessionID}, nil
}

type fakeDedup struct {
	seen map[string]bool
}

func (f *fakeDedup) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeDedup) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func newTestHub(t *testing.T, engine *fakeEngine, dedup dedupStore) *Hub {
	t.Helper()

	hub, err := NewHub(HubParams{
		Engine:   engine,
		Dedup:    dedup,
		DedupTTL: time.Minute,
		Config:   config.RealtimeConfig{},
	})
	require.NoError(t, err)
	return hub
}

func TestInboundUserMessageBecomesSendMessageIntent(t *testing.T) {
	engine := &fakeEngine{}
	hub := newTestHub(t, engine, nil)
	ch := &channel{sessionID: "sess-1", hub: hub}

	hub.handleInbound(context.Background(), ch, []byte(`{
		"type": "user_message",
		"sessionId": "sess-1",
		"content": "I want a pizza"
	}`))

	require.Len(t, engine.applied, 1)
	assert.Equal(t, session.IntentSendMessage, engine.applied[0].kind)
	assert.JSONEq(t, `{"role":"user","content":"I want a pizza"}`, string(engine.applied[0].payload))
}

func TestInboundFormResponseCarriesDecidedIntent(t *testing.T) {
	engine := &fakeEngine{}
	hub := newTestHub(t, engine, nil)
	ch := &channel{sessionID: "sess-1", hub: hub}

	hub.handleInbound(context.Background(), ch, []byte(`{
		"type": "form_response",
		"sessionId": "sess-1",
		"intent": "add_item",
		"payload": {"item_id": "pizza-1", "item_name": "Margherita Pizza", "quantity": 2}
	}`))

	require.Len(t, engine.applied, 1)
	assert.Equal(t, session.IntentAddItem, engine.applied[0].kind)
}

func TestInboundFrameForAnotherSessionDropped(t *testing.T) {
	engine := &fakeEngine{}
	hub := newTestHub(t, engine, nil)
	ch := &channel{sessionID: "sess-1", hub: hub}

	hub.handleInbound(context.Background(), ch, []byte(`{
		"type": "user_message",
		"sessionId": "sess-2",
		"content": "hi"
	}`))

	assert.Empty(t, engine.applied)
}

func TestInboundDuplicateMessageSuppressed(t *testing.T) {
	engine := &fakeEngine{}
	hub := newTestHub(t, engine, &fakeDedup{})
	ch := &channel{sessionID: "sess-1", hub: hub}

	frame := []byte(`{
		"type": "user_message",
		"sessionId": "sess-1",
		"messageId": "msg-1",
		"content": "I want a pizza"
	}`)
	hub.handleInbound(context.Background(), ch, frame)
	hub.handleInbound(context.Background(), ch, frame)

	assert.Len(t, engine.applied, 1, "retried frame applies once")
}

func TestInboundWithoutMessageIDAlwaysApplies(t *testing.T) {
	engine := &fakeEngine{}
	hub := newTestHub(t, engine, &fakeDedup{})
	ch := &channel{sessionID: "sess-1", hub: hub}

	frame := []byte(`{"type": "user_message", "sessionId": "sess-1", "content": "hi"}`)
	hub.handleInbound(context.Background(), ch, frame)
	hub.handleInbound(context.Background(), ch, frame)

	assert.Len(t, engine.applied, 2)
}

func TestServeWSChannelSurvivesHandlerReturn(t *testing.T) {
	engine := &fakeEngine{}
	hub := newTestHub(t, engine, nil)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?sessionId=sess-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The handler has long returned by the time this read happens; the
	// connection must still be alive and deliver the queued status frame.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var status Envelope
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, EnvelopeConnectionStatus, status.Type)
	assert.Equal(t, "connected", status.Status)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, hub.SessionChannels("sess-1"))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return hub.SessionChannels("sess-1") == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestBroadcastFansOutToSessionChannelsOnly(t *testing.T) {
	engine := &fakeEngine{}
	hub := newTestHub(t, engine, nil)

	chA := &channel{id: "a", sessionID: "sess-1", hub: hub, send: make(chan *Envelope, 4)}
	chB := &channel{id: "b", sessionID: "sess-1", hub: hub, send: make(chan *Envelope, 4)}
	chC := &channel{id: "c", sessionID: "sess-2", hub: hub, send: make(chan *Envelope, 4)}
	hub.register(chA)
	hub.register(chB)
	hub.register(chC)

	delivered := hub.Broadcast("sess-1", &Envelope{Type: EnvelopeTypingIndicator, Typing: true})
	assert.Equal(t, 2, delivered)
	assert.Len(t, chA.send, 1)
	assert.Len(t, chB.send, 1)
	assert.Empty(t, chC.send)

	hub.unregister(chA)
	assert.Equal(t, 1, hub.SessionChannels("sess-1"))
	delivered = hub.Broadcast("sess-1", &Envelope{Type: EnvelopeTypingIndicator})
	assert.Equal(t, 1, delivered)
}
