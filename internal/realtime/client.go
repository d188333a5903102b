package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dinebot-ai/dinebot-backend/pkg/logger"
	"github.com/dinebot-ai/dinebot-backend/pkg/metrics"
)

// ConnState is the client's lifecycle position.
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateDisconnected ConnState = "disconnected"
)

// DefaultReconnectBackoff is the fixed pause between connection attempts.
const DefaultReconnectBackoff = 3 * time.Second

// Conn is the subset of a websocket connection the client consumes.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens a connection to the realtime endpoint.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// GorillaDialer is the production Dialer.
type GorillaDialer struct{}

func (GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return gorillaConn{conn: conn}, nil
}

// gorillaConn narrows *websocket.Conn to the Conn interface. The frame type
// is dropped; every envelope is a text frame.
type gorillaConn struct {
	conn *websocket.Conn
}

func (g gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := g.conn.ReadMessage()
	return data, err
}

func (g gorillaConn) WriteJSON(v any) error {
	return g.conn.WriteJSON(v)
}

func (g gorillaConn) Close() error {
	return g.conn.Close()
}

// ClientParams configure a reconnecting client.
type ClientParams struct {
	URL       string
	SessionID string
	Dialer    Dialer
	Backoff   time.Duration
	Grace     time.Duration
	Metrics   *metrics.RealtimeMetrics
	Logger    *logger.Logger

	// OnAssistantMessage receives one complete assistant message per turn,
	// whether it arrived streamed or as a single frame.
	OnAssistantMessage func(turnID, content string)
	// OnState observes lifecycle changes.
	OnState func(state ConnState)
	// OnEnvelope observes every non-stream frame (quick replies, typing
	// indicators, connection status).
	OnEnvelope func(envelope *Envelope)
}

// Client maintains a single logical connection to the realtime endpoint,
// reconnecting with a fixed backoff until closed. Every attempt carries a
// monotonically increasing number; callbacks from a superseded attempt are
// discarded so a zombie socket can never interleave with its replacement.
type Client struct {
	url       string
	sessionID string
	dialer    Dialer
	backoff   time.Duration
	assembler *StreamAssembler
	metrics   *metrics.RealtimeMetrics
	logg      *logger.Logger

	onAssistant func(turnID, content string)
	onState     func(state ConnState)
	onEnvelope  func(envelope *Envelope)

	mu      sync.Mutex
	attempt uint64
	conn    Conn
	closed  bool
}

// NewClient builds a reconnecting client.
func NewClient(params ClientParams) (*Client, error) {
	if params.URL == "" {
		return nil, fmt.Errorf("endpoint url required")
	}
	if params.SessionID == "" {
		return nil, fmt.Errorf("session id required")
	}
	dialer := params.Dialer
	if dialer == nil {
		dialer = GorillaDialer{}
	}
	backoff := params.Backoff
	if backoff <= 0 {
		backoff = DefaultReconnectBackoff
	}
	return &Client{
		url:         params.URL,
		sessionID:   params.SessionID,
		dialer:      dialer,
		backoff:     backoff,
		assembler:   NewStreamAssembler(params.Grace),
		metrics:     params.Metrics,
		logg:        params.Logger,
		onAssistant: params.OnAssistantMessage,
		onState:     params.OnState,
		onEnvelope:  params.OnEnvelope,
	}, nil
}

// Run drives the connect/read/reconnect loop until the context ends or
// Close is called. It blocks; run it in its own goroutine.
func (c *Client) Run(ctx context.Context) {
	for {
		if c.isClosed() || ctx.Err() != nil {
			return
		}
		attempt := c.beginAttempt()
		c.notifyState(attempt, StateConnecting)

		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			c.notifyState(attempt, StateDisconnected)
			if !c.sleep(ctx) {
				return
			}
			continue
		}
		if !c.adopt(attempt, conn) {
			// A newer attempt or Close won the race while dialing.
			_ = conn.Close()
			c.discardStale()
			continue
		}
		c.notifyState(attempt, StateConnected)

		c.readLoop(attempt, conn)

		c.drop(attempt)
		c.notifyState(attempt, StateDisconnected)
		if !c.sleep(ctx) {
			return
		}
	}
}

// Send writes a frame on the current connection.
func (c *Client) Send(envelope *Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	envelope.SessionID = c.sessionID
	return conn.WriteJSON(envelope)
}

// Close ends the client permanently. Any in-flight callbacks from the live
// attempt become stale and are discarded.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) readLoop(attempt uint64, conn Conn) {
	for {
		raw, err := conn.ReadMessage()
		if !c.isCurrent(attempt) {
			c.discardStale()
			return
		}
		if err != nil {
			return
		}
		c.handleFrame(attempt, raw)
	}
}

func (c *Client) handleFrame(attempt uint64, raw []byte) {
	envelope := &Envelope{}
	if err := json.Unmarshal(raw, envelope); err != nil {
		if c.logg != nil {
			c.logg.Warn(context.Background(), "dropping malformed frame: "+err.Error())
		}
		return
	}
	if !c.isCurrent(attempt) {
		c.discardStale()
		return
	}

	switch envelope.Type {
	case EnvelopeAGUIEvent:
		if envelope.AGUI == nil {
			return
		}
		if content, done := c.assembler.Apply(envelope.AGUI); done && c.onAssistant != nil {
			c.onAssistant(envelope.AGUI.TurnID, content)
		}
	case EnvelopeAIResponse:
		if c.assembler.SuppressFallback(envelope.TurnID) {
			c.metrics.DuplicateSuppressed()
			return
		}
		if c.onAssistant != nil {
			c.onAssistant(envelope.TurnID, envelope.Content)
		}
	default:
		if c.onEnvelope != nil {
			c.onEnvelope(envelope)
		}
	}
}

func (c *Client) beginAttempt() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempt++
	return c.attempt
}

func (c *Client) adopt(attempt uint64, conn Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || attempt != c.attempt {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) drop(attempt uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if attempt == c.attempt && c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) isCurrent(attempt uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && attempt == c.attempt
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) notifyState(attempt uint64, state ConnState) {
	if !c.isCurrent(attempt) {
		c.discardStale()
		return
	}
	if c.onState != nil {
		c.onState(state)
	}
}

func (c *Client) discardStale() {
	c.metrics.StaleDiscarded()
}

func (c *Client) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.backoff):
		return !c.isClosed()
	}
}
