package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dinebot-ai/dinebot-backend/internal/cart"
	"github.com/dinebot-ai/dinebot-backend/internal/checkout"
	"github.com/dinebot-ai/dinebot-backend/internal/conversation"
	"github.com/dinebot-ai/dinebot-backend/internal/events"
	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"
	"github.com/dinebot-ai/dinebot-backend/pkg/types"
)

// Engine is the session-facing facade: every intent funnels through here so
// the append and its paired derived update happen in arrival order for a
// given session.
type Engine interface {
	ApplyIntent(ctx context.Context, sessionID string, kind IntentKind, payload json.RawMessage) (*models.SessionEvent, error)
	CurrentCart(ctx context.Context, sessionID string) (*CartView, error)
	CurrentState(ctx context.Context, sessionID string) (*models.ConversationState, error)
	History(ctx context.Context, sessionID string, limit, offset int) ([]models.SessionEvent, error)
	Recover(ctx context.Context, sessionID string) (int, error)
}

// CartView is the read model handed to the transport.
type CartView struct {
	Lines []models.CartLine `json:"lines"`
	Total decimal.Decimal   `json:"total"`
}

// EngineParams wires the engine's collaborators.
type EngineParams struct {
	Events       events.Service
	Cart         cart.Service
	Conversation conversation.Service
	Checkout     checkout.Service
	Logger       *logger.Logger
}

type engine struct {
	events       events.Service
	cart         cart.Service
	conversation conversation.Service
	checkout     checkout.Service
	logg         *logger.Logger
	locks        *keyedLocks
}

// NewEngine builds the session engine.
func NewEngine(params EngineParams) (Engine, error) {
	if params.Events == nil {
		return nil, fmt.Errorf("event service required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Conversation == nil {
		return nil, fmt.Errorf("conversation service required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	return &engine{
		events:       params.Events,
		cart:         params.Cart,
		conversation: params.Conversation,
		checkout:     params.Checkout,
		logg:         params.Logger,
		locks:        newKeyedLocks(),
	}, nil
}

// ApplyIntent appends the event for the intent and applies its derived
// update under the session's lock. The event is the source of truth: if the
// derived update fails after the append, the caller gets the error and the
// next read repairs the hot rows from the log.
func (e *engine) ApplyIntent(ctx context.Context, sessionID string, kind IntentKind, payload json.RawMessage) (*models.SessionEvent, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	eventType, err := kind.EventType()
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	decoded, err := events.DecodePayload(eventType, payload)
	if err != nil {
		return nil, err
	}

	release := e.locks.Acquire(sessionID)
	defer release()

	if e.logg != nil {
		ctx = e.logg.WithSessionID(ctx, sessionID)
		ctx = e.logg.WithEventType(ctx, eventType.String())
	}

	event, err := e.events.Append(ctx, sessionID, eventType, decoded)
	if err != nil {
		return nil, err
	}
	if err := e.applyDerived(ctx, sessionID, decoded); err != nil {
		if e.logg != nil {
			e.logg.Error(ctx, "derived update failed after append", err)
		}
		return event, err
	}
	return event, nil
}

func (e *engine) applyDerived(ctx context.Context, sessionID string, decoded any) error {
	switch payload := decoded.(type) {
	case *events.ItemAddedPayload:
		_, err := e.cart.AddOrUpdate(ctx, sessionID, cart.AddItemInput{
			ItemID:              payload.ItemID,
			ItemName:            payload.ItemName,
			Quantity:            payload.Quantity,
			UnitPrice:           payload.UnitPrice,
			SpecialInstructions: payload.SpecialInstructions,
		})
		if err != nil {
			return err
		}
		return e.noteMention(ctx, sessionID, payload.ItemID)
	case *events.ItemUpdatedPayload:
		if _, err := e.cart.UpdateQuantity(ctx, sessionID, payload.ItemID, payload.Quantity); err != nil {
			return err
		}
		return e.conversation.Touch(ctx, sessionID)
	case *events.ItemRemovedPayload:
		if err := e.cart.Remove(ctx, sessionID, payload.ItemID); err != nil {
			return err
		}
		return e.conversation.Touch(ctx, sessionID)
	case *events.CartClearedPayload:
		if err := e.cart.Clear(ctx, sessionID); err != nil {
			return err
		}
		return e.conversation.Touch(ctx, sessionID)
	case *events.ItemViewedPayload:
		return e.noteMention(ctx, sessionID, payload.ItemID)
	case *events.MenuShownPayload:
		return e.noteMenu(ctx, sessionID, payload.Items)
	case *events.CheckoutStartedPayload:
		if _, err := e.checkout.Start(ctx, sessionID); err != nil {
			return err
		}
		_, err := e.conversation.Transition(ctx, sessionID, enums.StepCheckout, conversation.ClearAwaitingInput())
		return err
	case *events.CheckoutUpdatedPayload:
		if err := e.stageCheckout(ctx, sessionID, payload); err != nil {
			return err
		}
		return e.conversation.Touch(ctx, sessionID)
	default:
		return e.conversation.Touch(ctx, sessionID)
	}
}

// stageCheckout writes each answer the payload carries onto the staged
// checkout intent.
func (e *engine) stageCheckout(ctx context.Context, sessionID string, payload *events.CheckoutUpdatedPayload) error {
	if payload.OrderType != "" {
		orderType, err := enums.ParseOrderType(payload.OrderType)
		if err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		if _, err := e.checkout.SetOrderType(ctx, sessionID, orderType); err != nil {
			return err
		}
	}
	if payload.PaymentMethod != "" {
		method, err := enums.ParsePaymentMethod(payload.PaymentMethod)
		if err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		if _, err := e.checkout.SetPaymentMethod(ctx, sessionID, method); err != nil {
			return err
		}
	}
	if payload.DeliveryAddress != nil {
		if _, err := e.checkout.SetDeliveryAddress(ctx, sessionID, *payload.DeliveryAddress); err != nil {
			return err
		}
	}
	if payload.TableNumber != nil {
		if _, err := e.checkout.SetTableNumber(ctx, sessionID, *payload.TableNumber); err != nil {
			return err
		}
	}
	if payload.SpecialInstructions != nil {
		if _, err := e.checkout.SetSpecialInstructions(ctx, sessionID, *payload.SpecialInstructions); err != nil {
			return err
		}
	}
	return nil
}

// noteMention records the referent without disturbing the current step.
// Terminal sessions only get their activity bumped.
func (e *engine) noteMention(ctx context.Context, sessionID, itemID string) error {
	state, err := e.conversation.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if state.CurrentStep.IsTerminal() {
		return e.conversation.Touch(ctx, sessionID)
	}
	_, err = e.conversation.Transition(ctx, sessionID, state.CurrentStep, conversation.WithLastMentionedItem(itemID))
	return err
}

func (e *engine) noteMenu(ctx context.Context, sessionID string, items []types.MenuRef) error {
	state, err := e.conversation.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if state.CurrentStep.IsTerminal() {
		return e.conversation.Touch(ctx, sessionID)
	}
	_, err = e.conversation.Transition(ctx, sessionID, state.CurrentStep, conversation.WithLastShownMenu(types.MenuRefs(items)))
	return err
}

// CurrentCart returns the active lines and total, repairing from the event
// log when the hot rows were lost but the log says the cart had items.
func (e *engine) CurrentCart(ctx context.Context, sessionID string) (*CartView, error) {
	lines, err := e.cart.ActiveLines(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		// A session with no events has nothing to replay; the existence
		// check keeps empty-cart reads off the full log scan.
		has, err := e.events.HasEvents(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if has {
			restored, err := e.Recover(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			if restored > 0 {
				lines, err = e.cart.ActiveLines(ctx, sessionID)
				if err != nil {
					return nil, err
				}
			}
		}
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return &CartView{Lines: lines, Total: total}, nil
}

func (e *engine) CurrentState(ctx context.Context, sessionID string) (*models.ConversationState, error) {
	return e.conversation.Get(ctx, sessionID)
}

func (e *engine) History(ctx context.Context, sessionID string, limit, offset int) ([]models.SessionEvent, error) {
	return e.events.History(ctx, sessionID, limit, offset)
}

// Recover replays the event log into materialized cart rows. It only writes
// when the replay yields active lines, so cleared or promoted carts are not
// resurrected and empty sessions cost nothing.
func (e *engine) Recover(ctx context.Context, sessionID string) (int, error) {
	derived, err := e.events.Derive(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	active := 0
	for _, line := range derived {
		if line.Active {
			active++
		}
	}
	if active == 0 {
		return 0, nil
	}

	restored := make([]cart.RestoredLine, 0, len(derived))
	for _, line := range derived {
		restored = append(restored, cart.RestoredLine{
			ItemID:              line.ItemID,
			ItemName:            line.ItemName,
			Quantity:            line.Quantity,
			UnitPrice:           line.UnitPrice,
			SpecialInstructions: line.SpecialInstructions,
			Active:              line.Active,
		})
	}
	if err := e.cart.RestoreLines(ctx, sessionID, restored); err != nil {
		return 0, err
	}
	if e.logg != nil {
		ctx = e.logg.WithSessionID(ctx, sessionID)
		e.logg.Info(ctx, fmt.Sprintf("recovered %d cart lines from event log", active))
	}
	return active, nil
}
