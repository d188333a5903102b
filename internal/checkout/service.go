package checkout

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
)

// Service stages the checkout answers a session collects one message at a
// time before promotion freezes them onto the order.
type Service interface {
	Start(ctx context.Context, sessionID string) (*models.CheckoutIntent, error)
	SetOrderType(ctx context.Context, sessionID string, orderType enums.OrderType) (*models.CheckoutIntent, error)
	SetPaymentMethod(ctx context.Context, sessionID string, method enums.PaymentMethod) (*models.CheckoutIntent, error)
	SetDeliveryAddress(ctx context.Context, sessionID, address string) (*models.CheckoutIntent, error)
	SetTableNumber(ctx context.Context, sessionID, table string) (*models.CheckoutIntent, error)
	SetSpecialInstructions(ctx context.Context, sessionID, instructions string) (*models.CheckoutIntent, error)
	Get(ctx context.Context, sessionID string) (*models.CheckoutIntent, error)
	CompleteTx(ctx context.Context, tx *gorm.DB, sessionID string, done Completion) error
}

// Completion carries the answers frozen onto the intent at promotion time.
type Completion struct {
	OrderType     enums.OrderType
	PaymentMethod enums.PaymentMethod
	At            time.Time
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds the checkout staging service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// Start opens a fresh intent. Re-starting an in-flight checkout resets the
// staged answers, matching a user who backs out and begins again.
func (s *service) Start(ctx context.Context, sessionID string) (*models.CheckoutIntent, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	intent := &models.CheckoutIntent{
		SessionID: sessionID,
		StartedAt: s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "starting checkout")
	}
	return intent, nil
}

func (s *service) SetOrderType(ctx context.Context, sessionID string, orderType enums.OrderType) (*models.CheckoutIntent, error) {
	if !orderType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order type %q", orderType))
	}
	return s.patch(ctx, sessionID, func(intent *models.CheckoutIntent) {
		intent.OrderType = orderType
	})
}

func (s *service) SetPaymentMethod(ctx context.Context, sessionID string, method enums.PaymentMethod) (*models.CheckoutIntent, error) {
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment method %q", method))
	}
	return s.patch(ctx, sessionID, func(intent *models.CheckoutIntent) {
		intent.PaymentMethod = method
	})
}

func (s *service) SetDeliveryAddress(ctx context.Context, sessionID, address string) (*models.CheckoutIntent, error) {
	if address == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address required")
	}
	return s.patch(ctx, sessionID, func(intent *models.CheckoutIntent) {
		intent.DeliveryAddress = &address
	})
}

func (s *service) SetTableNumber(ctx context.Context, sessionID, table string) (*models.CheckoutIntent, error) {
	if table == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table number required")
	}
	return s.patch(ctx, sessionID, func(intent *models.CheckoutIntent) {
		intent.TableNumber = &table
	})
}

func (s *service) SetSpecialInstructions(ctx context.Context, sessionID, instructions string) (*models.CheckoutIntent, error) {
	return s.patch(ctx, sessionID, func(intent *models.CheckoutIntent) {
		intent.SpecialInstructions = &instructions
	})
}

func (s *service) Get(ctx context.Context, sessionID string) (*models.CheckoutIntent, error) {
	intent, err := s.repo.Find(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading checkout intent")
	}
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "checkout has not started")
	}
	return intent, nil
}

// CompleteTx stamps the intent inside the promotion transaction, writing
// back the order type and payment method the promotion actually used.
func (s *service) CompleteTx(ctx context.Context, tx *gorm.DB, sessionID string, done Completion) error {
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	intent, err := repo.Find(ctx, sessionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading checkout intent")
	}
	if intent == nil {
		return nil
	}
	stamped := done.At.UTC()
	intent.CompletedAt = &stamped
	intent.OrderType = done.OrderType
	intent.PaymentMethod = done.PaymentMethod
	if err := repo.Upsert(ctx, intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "completing checkout intent")
	}
	return nil
}

func (s *service) patch(ctx context.Context, sessionID string, mutate func(*models.CheckoutIntent)) (*models.CheckoutIntent, error) {
	intent, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	mutate(intent)
	if err := s.repo.Upsert(ctx, intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving checkout intent")
	}
	return intent, nil
}
