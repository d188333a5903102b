package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
	"github.com/dinebot-ai/dinebot-backend/pkg/types"
)

func setupConversationTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	states := `
CREATE TABLE IF NOT EXISTS conversation_states (
  session_id TEXT PRIMARY KEY,
  current_step TEXT NOT NULL DEFAULT 'browsing',
  awaiting_input_for TEXT,
  last_mentioned_item TEXT,
  last_shown_menu TEXT,
  last_activity_at DATETIME NOT NULL,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(states).Error)
	return db
}

type recordedTouch struct {
	sessionID string
	at        time.Time
}

type fakeActivityIndex struct {
	touches []recordedTouch
}

func (f *fakeActivityIndex) TouchActivity(_ context.Context, sessionID string, at time.Time) error {
	f.touches = append(f.touches, recordedTouch{sessionID: sessionID, at: at})
	return nil
}

func newConversationService(t *testing.T) (Service, *gorm.DB, *fakeActivityIndex) {
	t.Helper()

	db := setupConversationTestDB(t)
	index := &fakeActivityIndex{}
	svc, err := NewService(NewRepository(db), index)
	require.NoError(t, err)
	return svc, db, index
}

func TestGetDefaultsToBrowsing(t *testing.T) {
	svc, db, _ := newConversationService(t)

	state, err := svc.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, enums.StepBrowsing, state.CurrentStep)
	assert.Nil(t, state.AwaitingInputFor)

	var count int64
	require.NoError(t, db.Model(&models.ConversationState{}).Count(&count).Error)
	assert.Equal(t, int64(0), count, "a default read persists nothing")
}

func TestTransitionAppliesOptionsAtomically(t *testing.T) {
	svc, _, index := newConversationService(t)
	ctx := context.Background()

	menu := types.MenuRefs{
		{ID: "pizza-1", Name: "Margherita Pizza", Position: 1},
		{ID: "pizza-2", Name: "Farmhouse Pizza", Position: 2},
	}
	state, err := svc.Transition(ctx, "sess-1", enums.StepOrdering,
		WithAwaitingInput("quantity_for_pizza-1"),
		WithLastMentionedItem("pizza-1"),
		WithLastShownMenu(menu),
	)
	require.NoError(t, err)
	assert.Equal(t, enums.StepOrdering, state.CurrentStep)
	require.NotNil(t, state.AwaitingInputFor)
	assert.Equal(t, "quantity_for_pizza-1", *state.AwaitingInputFor)

	reloaded, err := svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, enums.StepOrdering, reloaded.CurrentStep)
	require.Len(t, reloaded.LastShownMenu, 2)
	assert.Equal(t, "pizza-2", reloaded.LastShownMenu[1].ID)

	require.Len(t, index.touches, 1)
	assert.Equal(t, "sess-1", index.touches[0].sessionID)
}

func TestTransitionClearsAwaitingInput(t *testing.T) {
	svc, _, _ := newConversationService(t)
	ctx := context.Background()

	_, err := svc.Transition(ctx, "sess-1", enums.StepAwaitingQuantity, WithAwaitingInput("quantity_for_pizza-1"))
	require.NoError(t, err)

	state, err := svc.Transition(ctx, "sess-1", enums.StepOrdering, ClearAwaitingInput())
	require.NoError(t, err)
	assert.Nil(t, state.AwaitingInputFor)
}

func TestTransitionRejectsDirectOrderPlaced(t *testing.T) {
	svc, _, _ := newConversationService(t)

	_, err := svc.Transition(context.Background(), "sess-1", enums.StepOrderPlaced)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestTransitionRejectsUnknownStep(t *testing.T) {
	svc, _, _ := newConversationService(t)

	_, err := svc.Transition(context.Background(), "sess-1", enums.ConversationStep("daydreaming"))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestMarkOrderPlacedSetsTerminalStep(t *testing.T) {
	svc, db, _ := newConversationService(t)
	ctx := context.Background()

	_, err := svc.Transition(ctx, "sess-1", enums.StepPayment, WithAwaitingInput("payment_confirmation"))
	require.NoError(t, err)

	require.NoError(t, svc.MarkOrderPlaced(ctx, db, "sess-1"))

	state, err := svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, enums.StepOrderPlaced, state.CurrentStep)
	assert.Nil(t, state.AwaitingInputFor)
	assert.True(t, state.CurrentStep.IsTerminal())
}

func TestTouchBumpsActivityOnly(t *testing.T) {
	svc, _, index := newConversationService(t)
	ctx := context.Background()

	_, err := svc.Transition(ctx, "sess-1", enums.StepCheckout)
	require.NoError(t, err)
	before, err := svc.Get(ctx, "sess-1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, svc.Touch(ctx, "sess-1"))

	after, err := svc.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, enums.StepCheckout, after.CurrentStep)
	assert.True(t, after.LastActivityAt.After(before.LastActivityAt))
	assert.Len(t, index.touches, 2)
}

func TestResolveOrdinalAndLastMentioned(t *testing.T) {
	svc, _, _ := newConversationService(t)
	ctx := context.Background()

	menu := types.MenuRefs{
		{ID: "pizza-1", Name: "Margherita Pizza", Position: 1},
		{ID: "pizza-2", Name: "Farmhouse Pizza", Position: 2},
	}
	state, err := svc.Transition(ctx, "sess-1", enums.StepBrowsing,
		WithLastShownMenu(menu), WithLastMentionedItem("pizza-2"))
	require.NoError(t, err)

	ref, ok := svc.ResolveOrdinal(state, 2)
	require.True(t, ok)
	assert.Equal(t, "pizza-2", ref.ID)

	_, ok = svc.ResolveOrdinal(state, 3)
	assert.False(t, ok)

	itemID, ok := svc.ResolveLastMentioned(state)
	require.True(t, ok)
	assert.Equal(t, "pizza-2", itemID)

	_, ok = svc.ResolveLastMentioned(nil)
	assert.False(t, ok)
}
