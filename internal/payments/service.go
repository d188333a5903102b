package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"
)

// Service owns the payment intent lifecycle. Both the session path and the
// gateway callback path funnel through Advance, which resolves their race by
// only ever moving status forward.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.PaymentIntent, error)
	CreateTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.PaymentIntent, error)
	Advance(ctx context.Context, id uuid.UUID, status enums.PaymentIntentStatus, metadata json.RawMessage) (*models.PaymentIntent, error)
	FindBySession(ctx context.Context, sessionID string) ([]models.PaymentIntent, error)
}

// CreateInput carries the fields stamped onto a new intent.
type CreateInput struct {
	SessionID      string
	OrderID        *uuid.UUID
	Gateway        string
	GatewayOrderID string
	Amount         decimal.Decimal
	Currency       string
	Metadata       json.RawMessage
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds the payments service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.PaymentIntent, error) {
	return s.create(ctx, s.repo, input)
}

func (s *service) CreateTx(ctx context.Context, tx *gorm.DB, input CreateInput) (*models.PaymentIntent, error) {
	return s.create(ctx, s.repo.WithTx(tx), input)
}

func (s *service) create(ctx context.Context, repo Repository, input CreateInput) (*models.PaymentIntent, error) {
	if input.SessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if input.Gateway == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway required")
	}
	if input.Amount.IsNegative() || input.Amount.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	currency := input.Currency
	if currency == "" {
		currency = "INR"
	}

	intent := &models.PaymentIntent{
		ID:             uuid.New(),
		SessionID:      input.SessionID,
		OrderID:        input.OrderID,
		Gateway:        input.Gateway,
		GatewayOrderID: input.GatewayOrderID,
		Amount:         input.Amount,
		Currency:       currency,
		Status:         enums.PaymentIntentCreated,
		Metadata:       input.Metadata,
	}
	if err := repo.Create(ctx, intent); err != nil {
		s.logWriteFailure(ctx, "creating payment intent", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating payment intent")
	}
	return intent, nil
}

// Advance moves the intent forward. A request that would rewind the status,
// or touch a terminal one, is answered with the current row unchanged so
// late gateway callbacks stay harmless.
func (s *service) Advance(ctx context.Context, id uuid.UUID, status enums.PaymentIntentStatus, metadata json.RawMessage) (*models.PaymentIntent, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment intent status %q", status))
	}
	intent, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading payment intent")
	}
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	if !intent.Status.CanAdvanceTo(status) {
		return intent, nil
	}
	intent.Status = status
	if len(metadata) > 0 {
		intent.Metadata = metadata
	}
	if err := s.repo.Update(ctx, intent); err != nil {
		s.logWriteFailure(ctx, "advancing payment intent", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "advancing payment intent")
	}
	return intent, nil
}

func (s *service) FindBySession(ctx context.Context, sessionID string) ([]models.PaymentIntent, error) {
	out, err := s.repo.FindBySession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading payment intents")
	}
	return out, nil
}

func (s *service) logWriteFailure(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	dump := pkgerrors.Dump(err)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"pg_code":       dump.PGCode,
		"pg_constraint": dump.PGConstraint,
		"pg_table":      dump.PGTable,
		"pg_detail":     dump.PGDetail,
	})
	s.logg.Error(ctx, msg, err)
}
