package events

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
)

func setupEventsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	sessionEvents := `
CREATE TABLE IF NOT EXISTS session_events (
  id TEXT PRIMARY KEY,
  session_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  payload TEXT,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(sessionEvents).Error)
	return db
}

func newEventsService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	db := setupEventsTestDB(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc, db
}

func appendAt(t *testing.T, db *gorm.DB, sessionID string, eventType enums.EventType, payload any, at time.Time) {
	t.Helper()

	raw, err := EncodePayload(payload)
	require.NoError(t, err)
	event := &models.SessionEvent{
		ID:        uuid.New(),
		SessionID: sessionID,
		EventType: eventType,
		Payload:   raw,
		CreatedAt: at,
	}
	require.NoError(t, db.Create(event).Error)
}

func TestAppendPersistsEvent(t *testing.T) {
	svc, db := newEventsService(t)
	ctx := context.Background()

	event, err := svc.Append(ctx, "sess-1", enums.EventItemAdded, &ItemAddedPayload{
		ItemID:    "item-7",
		ItemName:  "Margherita Pizza",
		Quantity:  2,
		UnitPrice: decimal.NewFromInt(299),
	})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "sess-1", event.SessionID)
	assert.Equal(t, enums.EventItemAdded, event.EventType)

	var count int64
	require.NoError(t, db.Model(&models.SessionEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAppendRejectsInvalidPayload(t *testing.T) {
	svc, _ := newEventsService(t)
	ctx := context.Background()

	_, err := svc.Append(ctx, "sess-1", enums.EventItemAdded, &ItemAddedPayload{
		ItemID:   "item-7",
		ItemName: "Margherita Pizza",
		Quantity: 0,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestAppendRejectsUnknownEventType(t *testing.T) {
	svc, _ := newEventsService(t)

	_, err := svc.Append(context.Background(), "sess-1", enums.EventType("teleported"), nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestAppendRejectsMissingSession(t *testing.T) {
	svc, _ := newEventsService(t)

	_, err := svc.Append(context.Background(), "", enums.EventCartCleared, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestHistoryNewestFirst(t *testing.T) {
	svc, db := newEventsService(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

	appendAt(t, db, "sess-1", enums.EventSessionStarted, &SessionStartedPayload{}, base)
	appendAt(t, db, "sess-1", enums.EventMenuShown, nil, base.Add(time.Minute))
	appendAt(t, db, "sess-1", enums.EventItemAdded, &ItemAddedPayload{
		ItemID: "item-1", ItemName: "Garlic Bread", Quantity: 1,
	}, base.Add(2*time.Minute))
	appendAt(t, db, "sess-2", enums.EventSessionStarted, &SessionStartedPayload{}, base)

	history, err := svc.History(ctx, "sess-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, enums.EventItemAdded, history[0].EventType)
	assert.Equal(t, enums.EventMenuShown, history[1].EventType)

	rest, err := svc.History(ctx, "sess-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, enums.EventSessionStarted, rest[0].EventType)
}

func TestHistoryBreaksTimestampTiesInInsertionOrder(t *testing.T) {
	svc, db := newEventsService(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := svc.Append(ctx, "sess-1", enums.EventMessageSent, &MessageSentPayload{
			Role: "user", Content: strconv.Itoa(i),
		})
		require.NoError(t, err)
	}

	// Collapse every row onto one timestamp; only the time-ordered id can
	// keep the log in insertion order.
	flat := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.Model(&models.SessionEvent{}).
		Where("session_id = ?", "sess-1").
		Update("created_at", flat).Error)

	history, err := svc.History(ctx, "sess-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 10)
	for i, event := range history {
		var payload MessageSentPayload
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		assert.Equal(t, strconv.Itoa(9-i), payload.Content, "newest first within one timestamp")
	}
}

func TestHasEvents(t *testing.T) {
	svc, db := newEventsService(t)
	ctx := context.Background()

	ok, err := svc.HasEvents(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, ok)

	appendAt(t, db, "sess-1", enums.EventSessionStarted, nil, time.Now())

	ok, err = svc.HasEvents(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeriveMergesRepeatedAdds(t *testing.T) {
	svc, db := newEventsService(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	price := decimal.NewFromInt(299)

	appendAt(t, db, "sess-1", enums.EventItemAdded, &ItemAddedPayload{
		ItemID: "pizza-1", ItemName: "Margherita Pizza", Quantity: 1, UnitPrice: price,
	}, base)
	appendAt(t, db, "sess-1", enums.EventItemAdded, &ItemAddedPayload{
		ItemID: "pizza-1", ItemName: "Margherita Pizza", Quantity: 2, UnitPrice: price,
	}, base.Add(time.Minute))

	lines, err := svc.Derive(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.True(t, lines[0].Active)
	assert.True(t, lines[0].UnitPrice.Mul(decimal.NewFromInt(3)).Equal(decimal.NewFromInt(897)))
}

func TestDeriveUpdateRemoveClear(t *testing.T) {
	svc, db := newEventsService(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

	appendAt(t, db, "sess-1", enums.EventItemAdded, &ItemAddedPayload{
		ItemID: "pizza-1", ItemName: "Margherita Pizza", Quantity: 2, UnitPrice: decimal.NewFromInt(299),
	}, base)
	appendAt(t, db, "sess-1", enums.EventItemAdded, &ItemAddedPayload{
		ItemID: "coke-1", ItemName: "Coke", Quantity: 1, UnitPrice: decimal.NewFromInt(60),
	}, base.Add(time.Minute))
	appendAt(t, db, "sess-1", enums.EventItemUpdated, &ItemUpdatedPayload{
		ItemID: "pizza-1", Quantity: 5,
	}, base.Add(2*time.Minute))
	appendAt(t, db, "sess-1", enums.EventItemRemoved, &ItemRemovedPayload{
		ItemID: "coke-1",
	}, base.Add(3*time.Minute))

	lines, err := svc.Derive(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "pizza-1", lines[0].ItemID)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.True(t, lines[0].Active)
	assert.Equal(t, "coke-1", lines[1].ItemID)
	assert.False(t, lines[1].Active)

	appendAt(t, db, "sess-1", enums.EventCartCleared, &CartClearedPayload{Reason: "user request"}, base.Add(4*time.Minute))

	lines, err = svc.Derive(ctx, "sess-1")
	require.NoError(t, err)
	for _, line := range lines {
		assert.False(t, line.Active)
	}
}

func TestDeriveAddAfterRemoveStartsFresh(t *testing.T) {
	svc, db := newEventsService(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

	appendAt(t, db, "sess-1", enums.EventItemAdded, &ItemAddedPayload{
		ItemID: "pizza-1", ItemName: "Margherita Pizza", Quantity: 4, UnitPrice: decimal.NewFromInt(299),
	}, base)
	appendAt(t, db, "sess-1", enums.EventItemRemoved, &ItemRemovedPayload{ItemID: "pizza-1"}, base.Add(time.Minute))
	appendAt(t, db, "sess-1", enums.EventItemAdded, &ItemAddedPayload{
		ItemID: "pizza-1", ItemName: "Margherita Pizza", Quantity: 1, UnitPrice: decimal.NewFromInt(299),
	}, base.Add(2*time.Minute))

	lines, err := svc.Derive(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.True(t, lines[0].Active)
}

func TestDeriveOrderPlacedDeactivatesEverything(t *testing.T) {
	svc, db := newEventsService(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

	appendAt(t, db, "sess-1", enums.EventItemAdded, &ItemAddedPayload{
		ItemID: "pizza-1", ItemName: "Margherita Pizza", Quantity: 2, UnitPrice: decimal.NewFromInt(299),
	}, base)
	appendAt(t, db, "sess-1", enums.EventOrderPlaced, &OrderPlacedPayload{
		OrderID: uuid.NewString(), TotalAmount: decimal.NewFromInt(598), LineCount: 1,
	}, base.Add(time.Minute))

	lines, err := svc.Derive(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.False(t, lines[0].Active)
}
