package conversation

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
	"github.com/dinebot-ai/dinebot-backend/pkg/types"
)

// Service records flow-control transitions for a session. Step decisions are
// made upstream; this layer persists them and answers referential lookups.
type Service interface {
	Get(ctx context.Context, sessionID string) (*models.ConversationState, error)
	Transition(ctx context.Context, sessionID string, step enums.ConversationStep, opts ...TransitionOption) (*models.ConversationState, error)
	MarkOrderPlaced(ctx context.Context, tx *gorm.DB, sessionID string) error
	Touch(ctx context.Context, sessionID string) error
	ResolveOrdinal(state *models.ConversationState, position int) (types.MenuRef, bool)
	ResolveLastMentioned(state *models.ConversationState) (string, bool)
	WithTx(tx *gorm.DB) Service
}

// TransitionOption mutates the state row alongside the step change so the
// referential context lands in the same write.
type TransitionOption func(*models.ConversationState)

// WithAwaitingInput marks the slot the flow is blocked on.
func WithAwaitingInput(token string) TransitionOption {
	return func(state *models.ConversationState) {
		state.AwaitingInputFor = &token
	}
}

// ClearAwaitingInput releases the pending-input slot.
func ClearAwaitingInput() TransitionOption {
	return func(state *models.ConversationState) {
		state.AwaitingInputFor = nil
	}
}

// WithLastMentionedItem records the item a follow-up "that" resolves to.
func WithLastMentionedItem(itemID string) TransitionOption {
	return func(state *models.ConversationState) {
		state.LastMentionedItem = &itemID
	}
}

// WithLastShownMenu records the ordered list an ordinal resolves against.
func WithLastShownMenu(items types.MenuRefs) TransitionOption {
	return func(state *models.ConversationState) {
		state.LastShownMenu = items
	}
}

type activityIndex interface {
	TouchActivity(ctx context.Context, sessionID string, at time.Time) error
}

type service struct {
	repo     Repository
	activity activityIndex
	now      func() time.Time
}

// NewService builds the conversation state service. The activity index may
// be nil; the sweeper then falls back to scanning the database alone.
func NewService(repo Repository, activity activityIndex) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("conversation repository required")
	}
	return &service{repo: repo, activity: activity, now: time.Now}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), activity: s.activity, now: s.now}
}

// Get returns the session's state, defaulting an absent row to browsing
// without persisting anything.
func (s *service) Get(ctx context.Context, sessionID string) (*models.ConversationState, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	state, err := s.repo.Find(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading conversation state")
	}
	if state == nil {
		state = &models.ConversationState{
			SessionID:      sessionID,
			CurrentStep:    enums.StepBrowsing,
			LastActivityAt: s.now().UTC(),
		}
	}
	return state, nil
}

// Transition records the decided step and applies the options in the same
// upsert. The terminal step is reserved for the promotion path.
func (s *service) Transition(ctx context.Context, sessionID string, step enums.ConversationStep, opts ...TransitionOption) (*models.ConversationState, error) {
	if !step.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown conversation step %q", step))
	}
	if step.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order_placed is set by order promotion only")
	}
	state, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state.CurrentStep = step
	state.LastActivityAt = s.now().UTC()
	for _, opt := range opts {
		opt(state)
	}
	if err := s.repo.Upsert(ctx, state); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving conversation state")
	}
	s.touchIndex(ctx, sessionID, state.LastActivityAt)
	return state, nil
}

// MarkOrderPlaced flips the session into the terminal step inside the
// caller's transaction. Only the promotion engine calls this.
func (s *service) MarkOrderPlaced(ctx context.Context, tx *gorm.DB, sessionID string) error {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	state, err := repo.Find(ctx, sessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading conversation state")
	}
	if state == nil {
		state = &models.ConversationState{SessionID: sessionID}
	}
	state.CurrentStep = enums.StepOrderPlaced
	state.AwaitingInputFor = nil
	state.LastActivityAt = s.now().UTC()
	if err := repo.Upsert(ctx, state); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving conversation state")
	}
	return nil
}

// Touch bumps the activity stamp without changing the step.
func (s *service) Touch(ctx context.Context, sessionID string) error {
	state, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	state.LastActivityAt = s.now().UTC()
	if err := s.repo.Upsert(ctx, state); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving conversation state")
	}
	s.touchIndex(ctx, sessionID, state.LastActivityAt)
	return nil
}

// ResolveOrdinal maps "the second one" onto the last menu shown.
func (s *service) ResolveOrdinal(state *models.ConversationState, position int) (types.MenuRef, bool) {
	if state == nil {
		return types.MenuRef{}, false
	}
	return state.LastShownMenu.ByPosition(position)
}

// ResolveLastMentioned maps "that" onto the most recently discussed item.
func (s *service) ResolveLastMentioned(state *models.ConversationState) (string, bool) {
	if state == nil || state.LastMentionedItem == nil || *state.LastMentionedItem == "" {
		return "", false
	}
	return *state.LastMentionedItem, true
}

func (s *service) touchIndex(ctx context.Context, sessionID string, at time.Time) {
	if s.activity == nil {
		return
	}
	// Best effort; the database row is authoritative for the sweeper.
	_ = s.activity.TouchActivity(ctx, sessionID, at)
}
