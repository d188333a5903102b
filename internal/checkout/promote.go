package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dinebot-ai/dinebot-backend/internal/cart"
	"github.com/dinebot-ai/dinebot-backend/internal/events"
	"github.com/dinebot-ai/dinebot-backend/internal/orders"
	"github.com/dinebot-ai/dinebot-backend/internal/payments"
	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"
	"github.com/dinebot-ai/dinebot-backend/pkg/metrics"
)

// DefaultGateway names the payment gateway used for card/upi handoffs.
const DefaultGateway = "razorpay"

// Promoter turns an active cart into a durable order. The whole promotion is
// one transaction; a partially placed order can never be observed.
type Promoter interface {
	Promote(ctx context.Context, input PromoteInput) (uuid.UUID, error)
}

// PromoteInput carries the finalized checkout answers.
type PromoteInput struct {
	SessionID     string
	OrderType     enums.OrderType
	PaymentMethod enums.PaymentMethod
	CustomerID    *uuid.UUID
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stateMarker interface {
	MarkOrderPlaced(ctx context.Context, tx *gorm.DB, sessionID string) error
}

type eventAppender interface {
	AppendTx(ctx context.Context, tx *gorm.DB, sessionID string, eventType enums.EventType, payload any) (*models.SessionEvent, error)
}

type intentCreator interface {
	CreateTx(ctx context.Context, tx *gorm.DB, input payments.CreateInput) (*models.PaymentIntent, error)
}

type intentCompleter interface {
	CompleteTx(ctx context.Context, tx *gorm.DB, sessionID string, done Completion) error
}

type cartCache interface {
	Del(ctx context.Context, keys ...string) error
	CartCacheKey(sessionID string) string
}

// PromoterParams wires the stores the promotion transaction spans. Cache is
// optional; without it reads fall back to the database rows.
type PromoterParams struct {
	Tx           txRunner
	CartRepo     cart.Repository
	OrderRepo    orders.Repository
	CheckoutRepo Repository
	Checkout     intentCompleter
	State        stateMarker
	Events       eventAppender
	Payments     intentCreator
	Cache        cartCache
	Metrics      *metrics.PromotionMetrics
	Logger       *logger.Logger
}

type promoter struct {
	tx           txRunner
	cartRepo     cart.Repository
	orderRepo    orders.Repository
	checkoutRepo Repository
	checkout     intentCompleter
	state        stateMarker
	events       eventAppender
	payments     intentCreator
	cache        cartCache
	metrics      *metrics.PromotionMetrics
	logg         *logger.Logger
	now          func() time.Time
}

// NewPromoter builds the promotion engine.
func NewPromoter(params PromoterParams) (Promoter, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.CartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.OrderRepo == nil {
		return nil, fmt.Errorf("order repository required")
	}
	if params.CheckoutRepo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	if params.State == nil {
		return nil, fmt.Errorf("conversation state marker required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event appender required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment intent creator required")
	}
	return &promoter{
		tx:           params.Tx,
		cartRepo:     params.CartRepo,
		orderRepo:    params.OrderRepo,
		checkoutRepo: params.CheckoutRepo,
		checkout:     params.Checkout,
		state:        params.State,
		events:       params.Events,
		payments:     params.Payments,
		cache:        params.Cache,
		metrics:      params.Metrics,
		logg:         params.Logger,
		now:          time.Now,
	}, nil
}

// Promote freezes the active cart into an order. The cart rows are locked
// for the duration of the transaction so no add/remove can interleave, and a
// second call finds an emptied cart and fails the double-submit guard.
func (p *promoter) Promote(ctx context.Context, input PromoteInput) (uuid.UUID, error) {
	orderID, err := p.promote(ctx, input)
	if err != nil {
		p.observeFailure(err)
		return uuid.Nil, err
	}
	p.dropCartCache(ctx, input.SessionID)
	if p.metrics != nil {
		p.metrics.IncSuccess()
	}
	if p.logg != nil {
		ctx = p.logg.WithSessionID(ctx, input.SessionID)
		p.logg.Info(ctx, "cart promoted to order "+orderID.String())
	}
	return orderID, nil
}

func (p *promoter) promote(ctx context.Context, input PromoteInput) (uuid.UUID, error) {
	if input.SessionID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if !input.OrderType.IsValid() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order type %q", input.OrderType))
	}
	if !input.PaymentMethod.IsValid() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment method %q", input.PaymentMethod))
	}

	var orderID uuid.UUID
	err := p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		lines, err := p.cartRepo.WithTx(tx).FindActiveBySessionForUpdate(ctx, input.SessionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locking cart lines")
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "no active items to order")
		}

		total := decimal.Zero
		for _, line := range lines {
			total = total.Add(line.LineTotal())
		}

		intent, err := p.checkoutRepo.WithTx(tx).Find(ctx, input.SessionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading checkout intent")
		}

		order := &models.Order{
			ID:            uuid.New(),
			SessionID:     input.SessionID,
			CustomerID:    input.CustomerID,
			OrderType:     input.OrderType,
			PaymentMethod: input.PaymentMethod,
			Status:        enums.OrderStatusPlaced,
			TotalAmount:   total,
		}
		if intent != nil {
			order.SpecialInstructions = intent.SpecialInstructions
			order.DeliveryAddress = intent.DeliveryAddress
			order.TableNumber = intent.TableNumber
		}
		if err := p.orderRepo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating order")
		}

		orderLines := make([]models.OrderLine, 0, len(lines))
		for _, line := range lines {
			orderLines = append(orderLines, models.OrderLine{
				ID:                  uuid.New(),
				OrderID:             order.ID,
				ItemID:              line.ItemID,
				ItemName:            line.ItemName,
				Quantity:            line.Quantity,
				UnitPrice:           line.UnitPrice,
				LineTotal:           line.LineTotal(),
				SpecialInstructions: line.SpecialInstructions,
			})
		}
		if err := p.orderRepo.WithTx(tx).CreateOrderLines(ctx, orderLines); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "freezing order lines")
		}

		if err := p.state.MarkOrderPlaced(ctx, tx, input.SessionID); err != nil {
			return err
		}
		if err := p.cartRepo.WithTx(tx).DeactivateAll(ctx, input.SessionID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivating cart lines")
		}

		_, err = p.events.AppendTx(ctx, tx, input.SessionID, enums.EventOrderPlaced, &events.OrderPlacedPayload{
			OrderID:     order.ID.String(),
			TotalAmount: total,
			LineCount:   len(orderLines),
		})
		if err != nil {
			return err
		}

		if err := p.checkout.CompleteTx(ctx, tx, input.SessionID, Completion{
			OrderType:     input.OrderType,
			PaymentMethod: input.PaymentMethod,
			At:            p.now(),
		}); err != nil {
			return err
		}

		if input.PaymentMethod.RequiresGateway() {
			_, err := p.payments.CreateTx(ctx, tx, payments.CreateInput{
				SessionID: input.SessionID,
				OrderID:   &order.ID,
				Gateway:   DefaultGateway,
				Amount:    total,
			})
			if err != nil {
				return err
			}
		}

		orderID = order.ID
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return orderID, nil
}

// dropCartCache runs after the commit deactivates the cart rows so the next
// cart read cannot serve the pre-promotion lines from Redis.
func (p *promoter) dropCartCache(ctx context.Context, sessionID string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Del(ctx, p.cache.CartCacheKey(sessionID)); err != nil && p.logg != nil {
		p.logg.Warn(ctx, "cart cache invalidation failed: "+err.Error())
	}
}

func (p *promoter) observeFailure(err error) {
	if p.metrics == nil {
		return
	}
	code := string(pkgerrors.CodeInternal)
	if typed := pkgerrors.As(err); typed != nil {
		code = string(typed.Code())
	}
	p.metrics.IncFailure(code)
}
