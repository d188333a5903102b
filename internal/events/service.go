package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
)

// Service is the Event Log contract: append, paginated history, and the
// minimal fold used to rebuild hot cart state after loss.
type Service interface {
	Append(ctx context.Context, sessionID string, eventType enums.EventType, payload any) (*models.SessionEvent, error)
	AppendTx(ctx context.Context, tx *gorm.DB, sessionID string, eventType enums.EventType, payload any) (*models.SessionEvent, error)
	History(ctx context.Context, sessionID string, limit, offset int) ([]models.SessionEvent, error)
	HasEvents(ctx context.Context, sessionID string) (bool, error)
	Derive(ctx context.Context, sessionID string) ([]DerivedLine, error)
}

// DerivedLine is one cart line reconstructed by folding the event log.
type DerivedLine struct {
	ItemID              string
	ItemName            string
	Quantity            int
	UnitPrice           decimal.Decimal
	SpecialInstructions *string
	Active              bool
	AddedAt             time.Time
}

type service struct {
	repo     Repository
	validate *validator.Validate
}

// NewService builds the event log service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("event repository required")
	}
	return &service{
		repo:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (s *service) Append(ctx context.Context, sessionID string, eventType enums.EventType, payload any) (*models.SessionEvent, error) {
	return s.append(ctx, s.repo, sessionID, eventType, payload)
}

func (s *service) AppendTx(ctx context.Context, tx *gorm.DB, sessionID string, eventType enums.EventType, payload any) (*models.SessionEvent, error) {
	return s.append(ctx, s.repo.WithTx(tx), sessionID, eventType, payload)
}

func (s *service) append(ctx context.Context, repo Repository, sessionID string, eventType enums.EventType, payload any) (*models.SessionEvent, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if !eventType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown event type %q", eventType))
	}
	if err := s.validatePayload(payload); err != nil {
		return nil, err
	}
	raw, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	// V7 ids are time-ordered, so the (created_at, id) sort keeps
	// insertion order even when timestamps collide.
	id, err := uuid.NewV7()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating event id")
	}
	event := &models.SessionEvent{
		ID:        id,
		SessionID: sessionID,
		EventType: eventType,
		Payload:   raw,
	}
	if err := repo.Insert(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "appending session event")
	}
	return event, nil
}

func (s *service) validatePayload(payload any) error {
	if payload == nil {
		return nil
	}
	if _, ok := payload.(RawPayload); ok {
		return nil
	}
	if err := s.validate.Struct(payload); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event payload")
	}
	return nil
}

func (s *service) History(ctx context.Context, sessionID string, limit, offset int) ([]models.SessionEvent, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	out, err := s.repo.FindBySessionDesc(ctx, sessionID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading session history")
	}
	return out, nil
}

func (s *service) HasEvents(ctx context.Context, sessionID string) (bool, error) {
	count, err := s.repo.CountBySession(ctx, sessionID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting session events")
	}
	return count > 0, nil
}

// Derive folds the session's log oldest-first into the current cart shape.
// Only cart-affecting events participate; everything else is skipped. An
// order_placed event deactivates every line, matching what promotion does to
// the materialized rows.
func (s *service) Derive(ctx context.Context, sessionID string) ([]DerivedLine, error) {
	log, err := s.repo.FindBySessionAsc(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replaying session events")
	}

	byItem := map[string]*DerivedLine{}
	order := []string{}

	for _, event := range log {
		decoded, err := DecodePayload(event.EventType, event.Payload)
		if err != nil {
			// A malformed historical payload must not poison replay.
			continue
		}
		switch payload := decoded.(type) {
		case *ItemAddedPayload:
			line, ok := byItem[payload.ItemID]
			if ok && line.Active {
				line.Quantity += payload.Quantity
				continue
			}
			if !ok {
				order = append(order, payload.ItemID)
			}
			byItem[payload.ItemID] = &DerivedLine{
				ItemID:              payload.ItemID,
				ItemName:            payload.ItemName,
				Quantity:            payload.Quantity,
				UnitPrice:           payload.UnitPrice,
				SpecialInstructions: payload.SpecialInstructions,
				Active:              true,
				AddedAt:             event.CreatedAt,
			}
		case *ItemUpdatedPayload:
			if line, ok := byItem[payload.ItemID]; ok && line.Active {
				line.Quantity = payload.Quantity
			}
		case *ItemRemovedPayload:
			if line, ok := byItem[payload.ItemID]; ok {
				line.Active = false
			}
		case *CartClearedPayload:
			for _, line := range byItem {
				line.Active = false
			}
		case *OrderPlacedPayload:
			for _, line := range byItem {
				line.Active = false
			}
		}
	}

	out := make([]DerivedLine, 0, len(order))
	for _, itemID := range order {
		out = append(out, *byItem[itemID])
	}
	return out, nil
}
