package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dinebot-ai/dinebot-backend/internal/events"
	"github.com/dinebot-ai/dinebot-backend/internal/session"
	"github.com/dinebot-ai/dinebot-backend/pkg/config"
	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"
	"github.com/dinebot-ai/dinebot-backend/pkg/metrics"
)

type intentApplier interface {
	ApplyIntent(ctx context.Context, sessionID string, kind session.IntentKind, payload json.RawMessage) (*models.SessionEvent, error)
}

type dedupStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
}

// HubParams wire the websocket hub.
type HubParams struct {
	Engine   intentApplier
	Dedup    dedupStore
	DedupTTL time.Duration
	Config   config.RealtimeConfig
	Metrics  *metrics.RealtimeMetrics
	Logger   *logger.Logger
}

// Hub tracks the live channels of every session and routes frames between
// the websocket layer and the session engine.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[string]*channel

	engine   intentApplier
	dedup    dedupStore
	dedupTTL time.Duration
	cfg      config.RealtimeConfig
	metrics  *metrics.RealtimeMetrics
	logg     *logger.Logger
	upgrader websocket.Upgrader
}

// NewHub builds the hub.
func NewHub(params HubParams) (*Hub, error) {
	if params.Engine == nil {
		return nil, fmt.Errorf("session engine required")
	}
	cfg := params.Config
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = 64 * 1024
	}

	hub := &Hub{
		channels: make(map[string]map[string]*channel),
		engine:   params.Engine,
		dedup:    params.Dedup,
		dedupTTL: params.DedupTTL,
		cfg:      cfg,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}
	hub.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return hub, nil
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// ServeWS upgrades the request and runs the connection's pumps. The session
// is named by the sessionId query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "sessionId query parameter required", http.StatusBadRequest)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.logg != nil {
			h.logg.Warn(r.Context(), "websocket upgrade failed: "+err.Error())
		}
		return
	}

	ch := &channel{
		id:        uuid.NewString(),
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan *Envelope, sendBufferSize),
		hub:       h,
		logg:      h.logg,
	}
	h.register(ch)

	// The pumps outlive the handler, so they must not inherit the request
	// context: net/http cancels it as soon as ServeWS returns. Teardown is
	// driven by read/write deadlines and unregister instead.
	ctx := context.Background()
	if h.logg != nil {
		ctx = h.logg.WithSessionID(ctx, sessionID)
		ctx = h.logg.WithConnectionID(ctx, ch.id)
		h.logg.Info(ctx, "websocket channel opened")
	}

	ch.enqueue(NewConnectionStatus(sessionID, "connected"))
	go ch.writePump(ctx)
	go ch.readPump(ctx)
}

func (h *Hub) register(ch *channel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[ch.sessionID] == nil {
		h.channels[ch.sessionID] = make(map[string]*channel)
	}
	h.channels[ch.sessionID][ch.id] = ch
	h.metrics.ConnOpened()
}

func (h *Hub) unregister(ch *channel) {
	h.mu.Lock()
	byConn, ok := h.channels[ch.sessionID]
	if ok {
		if _, live := byConn[ch.id]; live {
			delete(byConn, ch.id)
			close(ch.send)
			h.metrics.ConnClosed()
		}
		if len(byConn) == 0 {
			delete(h.channels, ch.sessionID)
		}
	}
	h.mu.Unlock()
}

// Broadcast fans an outbound frame to every live channel of the session.
func (h *Hub) Broadcast(sessionID string, envelope *Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, ch := range h.channels[sessionID] {
		if ch.enqueue(envelope) {
			delivered++
		}
	}
	return delivered
}

// SessionChannels reports the number of live channels for a session.
func (h *Hub) SessionChannels(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[sessionID])
}

// handleInbound routes one raw client frame through validation, the
// duplicate guard, and the session engine.
func (h *Hub) handleInbound(ctx context.Context, ch *channel, raw []byte) {
	envelope, err := ParseClientEnvelope(raw)
	if err != nil {
		if h.logg != nil {
			h.logg.Warn(ctx, "dropping inbound frame: "+err.Error())
		}
		return
	}
	if envelope.SessionID != ch.sessionID {
		if h.logg != nil {
			h.logg.Warn(ctx, "dropping frame addressed to another session")
		}
		return
	}
	h.metrics.MessageIn(string(envelope.Type))

	if h.isDuplicate(ctx, envelope) {
		h.metrics.DuplicateSuppressed()
		return
	}

	kind, payload, err := intentFromEnvelope(envelope)
	if err != nil {
		if h.logg != nil {
			h.logg.Warn(ctx, "dropping inbound frame: "+err.Error())
		}
		return
	}
	if _, err := h.engine.ApplyIntent(ctx, envelope.SessionID, kind, payload); err != nil {
		if h.logg != nil {
			h.logg.Error(ctx, "applying inbound intent", err)
		}
	}
}

// isDuplicate consumes the envelope's messageId against the idempotency
// store. Frames without a messageId, or without a store, always pass.
func (h *Hub) isDuplicate(ctx context.Context, envelope *Envelope) bool {
	if h.dedup == nil || envelope.MessageID == "" {
		return false
	}
	key := h.dedup.IdempotencyKey("realtime", envelope.MessageID)
	fresh, err := h.dedup.SetNX(ctx, key, "1", h.dedupTTL)
	if err != nil {
		// Fail open; a duplicate apply is less harmful than dropping input.
		return false
	}
	return !fresh
}

func intentFromEnvelope(envelope *Envelope) (session.IntentKind, json.RawMessage, error) {
	switch envelope.Type {
	case EnvelopeUserMessage:
		payload, err := json.Marshal(events.MessageSentPayload{Role: "user", Content: envelope.Content})
		if err != nil {
			return "", nil, err
		}
		return session.IntentSendMessage, payload, nil
	case EnvelopeFormResponse:
		kind, err := session.ParseIntentKind(envelope.Intent)
		if err != nil {
			return "", nil, err
		}
		return kind, envelope.Payload, nil
	default:
		return "", nil, fmt.Errorf("envelope type %q carries no intent", envelope.Type)
	}
}
