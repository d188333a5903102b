package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dinebot-ai/dinebot-backend/internal/cart"
	"github.com/dinebot-ai/dinebot-backend/internal/checkout"
	"github.com/dinebot-ai/dinebot-backend/internal/conversation"
	"github.com/dinebot-ai/dinebot-backend/internal/events"
	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
)

var engineSchema = []string{
	`CREATE TABLE IF NOT EXISTS session_events (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  payload TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS cart_lines (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  item_name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  special_instructions TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  added_at DATETIME,
  updated_at DATETIME,
  UNIQUE (session_id, item_id)
);`,
	`CREATE TABLE IF NOT EXISTS conversation_states (
  session_id TEXT PRIMARY KEY,
  current_step TEXT NOT NULL DEFAULT 'browsing',
  awaiting_input_for TEXT,
  last_mentioned_item TEXT,
  last_shown_menu TEXT,
  last_activity_at DATETIME NOT NULL,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS checkout_intents (
  session_id TEXT PRIMARY KEY,
  order_type TEXT,
  payment_method TEXT,
  special_instructions TEXT,
  delivery_address TEXT,
  table_number TEXT,
  started_at DATETIME,
  completed_at DATETIME,
  updated_at DATETIME
);`,
}

type engineHarness struct {
	db           *gorm.DB
	engine       Engine
	cartSvc      cart.Service
	conversation conversation.Service
	checkoutSvc  checkout.Service
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	for _, ddl := range engineSchema {
		require.NoError(t, db.Exec(ddl).Error)
	}

	eventsSvc, err := events.NewService(events.NewRepository(db))
	require.NoError(t, err)
	cartSvc, err := cart.NewService(cart.NewRepository(db), nil, 0, nil)
	require.NoError(t, err)
	conversationSvc, err := conversation.NewService(conversation.NewRepository(db), nil)
	require.NoError(t, err)
	checkoutSvc, err := checkout.NewService(checkout.NewRepository(db))
	require.NoError(t, err)

	eng, err := NewEngine(EngineParams{
		Events:       eventsSvc,
		Cart:         cartSvc,
		Conversation: conversationSvc,
		Checkout:     checkoutSvc,
	})
	require.NoError(t, err)

	return &engineHarness{
		db:           db,
		engine:       eng,
		cartSvc:      cartSvc,
		conversation: conversationSvc,
		checkoutSvc:  checkoutSvc,
	}
}

func rawPayload(t *testing.T, payload any) json.RawMessage {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return raw
}

func TestApplyIntentAddItem(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	event, err := h.engine.ApplyIntent(ctx, "sess-1", IntentAddItem, rawPayload(t, events.ItemAddedPayload{
		ItemID:    "pizza-1",
		ItemName:  "Margherita Pizza",
		Quantity:  2,
		UnitPrice: decimal.NewFromInt(299),
	}))
	require.NoError(t, err)
	assert.Equal(t, enums.EventItemAdded, event.EventType)

	view, err := h.engine.CurrentCart(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.True(t, view.Total.Equal(decimal.NewFromInt(598)))

	state, err := h.engine.CurrentState(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, state.LastMentionedItem)
	assert.Equal(t, "pizza-1", *state.LastMentionedItem)
}

func TestApplyIntentRejectsUnknownKind(t *testing.T) {
	h := newEngineHarness(t)

	_, err := h.engine.ApplyIntent(context.Background(), "sess-1", IntentKind("teleport"), nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestApplyIntentRejectsBadPayload(t *testing.T) {
	h := newEngineHarness(t)

	_, err := h.engine.ApplyIntent(context.Background(), "sess-1", IntentAddItem, rawPayload(t, events.ItemAddedPayload{
		ItemID:   "pizza-1",
		ItemName: "Margherita Pizza",
		Quantity: 0,
	}))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	history, err := h.engine.History(context.Background(), "sess-1", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, history, "failed validation appends nothing")
}

func TestApplyIntentStartCheckout(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	_, err := h.engine.ApplyIntent(ctx, "sess-1", IntentStartCheckout, nil)
	require.NoError(t, err)

	state, err := h.engine.CurrentState(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, enums.StepCheckout, state.CurrentStep)

	intent, err := h.checkoutSvc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.NotNil(t, intent)
}

func TestApplyIntentUpdateCheckoutStagesAnswers(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	_, err := h.engine.ApplyIntent(ctx, "sess-1", IntentStartCheckout, nil)
	require.NoError(t, err)

	address := "12 MG Road"
	_, err = h.engine.ApplyIntent(ctx, "sess-1", IntentUpdateCheckout, rawPayload(t, events.CheckoutUpdatedPayload{
		OrderType:       "delivery",
		PaymentMethod:   "upi",
		DeliveryAddress: &address,
	}))
	require.NoError(t, err)

	instructions := "ring the bell"
	_, err = h.engine.ApplyIntent(ctx, "sess-1", IntentUpdateCheckout, rawPayload(t, events.CheckoutUpdatedPayload{
		SpecialInstructions: &instructions,
	}))
	require.NoError(t, err)

	intent, err := h.checkoutSvc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderTypeDelivery, intent.OrderType)
	assert.Equal(t, enums.PaymentMethodUPI, intent.PaymentMethod)
	require.NotNil(t, intent.DeliveryAddress)
	assert.Equal(t, "12 MG Road", *intent.DeliveryAddress)
	require.NotNil(t, intent.SpecialInstructions)
	assert.Equal(t, "ring the bell", *intent.SpecialInstructions)
}

func TestApplyIntentUpdateCheckoutRejectsUnknownOrderType(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	_, err := h.engine.ApplyIntent(ctx, "sess-1", IntentStartCheckout, nil)
	require.NoError(t, err)

	_, err = h.engine.ApplyIntent(ctx, "sess-1", IntentUpdateCheckout, rawPayload(t, events.CheckoutUpdatedPayload{
		OrderType: "drone_drop",
	}))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestApplyIntentMenuShownSupportsOrdinals(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	_, err := h.engine.ApplyIntent(ctx, "sess-1", IntentShowMenu, json.RawMessage(`{
		"items": [
			{"id": "pizza-1", "name": "Margherita Pizza", "position": 1},
			{"id": "pizza-2", "name": "Farmhouse Pizza", "position": 2}
		]
	}`))
	require.NoError(t, err)

	state, err := h.engine.CurrentState(ctx, "sess-1")
	require.NoError(t, err)
	ref, ok := h.conversation.ResolveOrdinal(state, 2)
	require.True(t, ok)
	assert.Equal(t, "pizza-2", ref.ID)
}

func TestCurrentCartRecoversFromEventLog(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	_, err := h.engine.ApplyIntent(ctx, "sess-1", IntentAddItem, rawPayload(t, events.ItemAddedPayload{
		ItemID: "pizza-1", ItemName: "Margherita Pizza", Quantity: 3, UnitPrice: decimal.NewFromInt(299),
	}))
	require.NoError(t, err)

	// Simulate losing the hot tier.
	require.NoError(t, h.db.Exec(`DELETE FROM cart_lines`).Error)

	view, err := h.engine.CurrentCart(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 3, view.Lines[0].Quantity)
	assert.True(t, view.Total.Equal(decimal.NewFromInt(897)))
}

type replayCountingEvents struct {
	events.Service
	derives int
}

func (c *replayCountingEvents) Derive(ctx context.Context, sessionID string) ([]events.DerivedLine, error) {
	c.derives++
	return c.Service.Derive(ctx, sessionID)
}

func TestCurrentCartSkipsReplayWithoutEvents(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	eventsSvc, err := events.NewService(events.NewRepository(h.db))
	require.NoError(t, err)
	counting := &replayCountingEvents{Service: eventsSvc}

	eng, err := NewEngine(EngineParams{
		Events:       counting,
		Cart:         h.cartSvc,
		Conversation: h.conversation,
		Checkout:     h.checkoutSvc,
	})
	require.NoError(t, err)

	view, err := eng.CurrentCart(ctx, "sess-empty")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
	assert.Zero(t, counting.derives, "an eventless session is never replayed")

	_, err = eng.ApplyIntent(ctx, "sess-empty", IntentAddItem, rawPayload(t, events.ItemAddedPayload{
		ItemID: "pizza-1", ItemName: "Margherita Pizza", Quantity: 1, UnitPrice: decimal.NewFromInt(299),
	}))
	require.NoError(t, err)
	require.NoError(t, h.db.Exec(`DELETE FROM cart_lines`).Error)

	view, err = eng.CurrentCart(ctx, "sess-empty")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 1, counting.derives)
}

func TestRecoverSkipsClearedCart(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	_, err := h.engine.ApplyIntent(ctx, "sess-1", IntentAddItem, rawPayload(t, events.ItemAddedPayload{
		ItemID: "pizza-1", ItemName: "Margherita Pizza", Quantity: 1, UnitPrice: decimal.NewFromInt(299),
	}))
	require.NoError(t, err)
	_, err = h.engine.ApplyIntent(ctx, "sess-1", IntentClearCart, nil)
	require.NoError(t, err)

	require.NoError(t, h.db.Exec(`DELETE FROM cart_lines`).Error)

	restored, err := h.engine.Recover(ctx, "sess-1")
	require.NoError(t, err)
	assert.Zero(t, restored, "a cleared cart is not resurrected")

	view, err := h.engine.CurrentCart(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestApplyIntentSerializesPerSession(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	const writers = 8
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.ApplyIntent(ctx, "sess-1", IntentAddItem, rawPayload(t, events.ItemAddedPayload{
				ItemID: "pizza-1", ItemName: "Margherita Pizza", Quantity: 1, UnitPrice: decimal.NewFromInt(299),
			}))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view, err := h.engine.CurrentCart(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, writers, view.Lines[0].Quantity)

	history, err := h.engine.History(ctx, "sess-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, writers)
}

func TestHistoryPagination(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.engine.ApplyIntent(ctx, "sess-1", IntentSendMessage, rawPayload(t, events.MessageSentPayload{
			Role: "user", Content: "hello",
		}))
		require.NoError(t, err)
	}

	page, err := h.engine.History(ctx, "sess-1", 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := h.engine.History(ctx, "sess-1", 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}
