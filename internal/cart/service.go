package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dinebot-ai/dinebot-backend/pkg/db"
	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
	"github.com/dinebot-ai/dinebot-backend/pkg/logger"
	"github.com/dinebot-ai/dinebot-backend/pkg/redis"
)

// Service exposes the materialized cart operations. All reads reflect the
// database rows; Redis only accelerates ActiveLines and is safe to lose.
type Service interface {
	AddOrUpdate(ctx context.Context, sessionID string, input AddItemInput) (*models.CartLine, error)
	UpdateQuantity(ctx context.Context, sessionID, itemID string, quantity int) (*models.CartLine, error)
	Remove(ctx context.Context, sessionID, itemID string) error
	Clear(ctx context.Context, sessionID string) error
	ActiveLines(ctx context.Context, sessionID string) ([]models.CartLine, error)
	Total(ctx context.Context, sessionID string) (decimal.Decimal, error)
	RestoreLines(ctx context.Context, sessionID string, lines []RestoredLine) error
	WithTx(tx *gorm.DB) Service
}

// AddItemInput carries the fields captured when an item enters the cart.
type AddItemInput struct {
	ItemID              string
	ItemName            string
	Quantity            int
	UnitPrice           decimal.Decimal
	SpecialInstructions *string
}

// RestoredLine is one cart line rebuilt from the event log during recovery.
type RestoredLine struct {
	ItemID              string
	ItemName            string
	Quantity            int
	UnitPrice           decimal.Decimal
	SpecialInstructions *string
	Active              bool
}

type cacheClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartCacheKey(sessionID string) string
}

type service struct {
	repo     Repository
	cache    cacheClient
	cacheTTL time.Duration
	logg     *logger.Logger
}

// NewService builds the cart service. The cache client may be nil; every
// operation degrades to database-only behavior without it.
func NewService(repo Repository, cache *redis.Client, cacheTTL time.Duration, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	svc := &service{repo: repo, cacheTTL: cacheTTL, logg: logg}
	if cache != nil {
		svc.cache = cache
	}
	return svc, nil
}

// WithTx returns a service bound to the transaction. The cache is dropped on
// the transactional copy so uncommitted state never becomes visible.
func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx), logg: s.logg}
}

// AddOrUpdate merges quantity into an existing active line, reactivates a
// removed line with a fresh quantity, or creates a new line. The unit price
// is snapshotted on first add and never changed by a merge.
func (s *service) AddOrUpdate(ctx context.Context, sessionID string, input AddItemInput) (*models.CartLine, error) {
	if sessionID == "" || input.ItemID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id and item id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	line, err := s.repo.FindLine(ctx, sessionID, input.ItemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart line")
	}

	switch {
	case line == nil:
		line = &models.CartLine{
			ID:                  uuid.New(),
			SessionID:           sessionID,
			ItemID:              input.ItemID,
			ItemName:            input.ItemName,
			Quantity:            input.Quantity,
			UnitPrice:           input.UnitPrice,
			SpecialInstructions: input.SpecialInstructions,
			Active:              true,
		}
	case line.Active:
		line.Quantity += input.Quantity
		if input.SpecialInstructions != nil {
			line.SpecialInstructions = input.SpecialInstructions
		}
	default:
		line.Active = true
		line.Quantity = input.Quantity
		line.ItemName = input.ItemName
		line.UnitPrice = input.UnitPrice
		line.SpecialInstructions = input.SpecialInstructions
	}

	if err := s.repo.Save(ctx, line); err != nil {
		if db.IsUniqueViolation(err, "idx_cart_lines_session_item") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "item was added concurrently")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving cart line")
	}
	s.invalidate(ctx, sessionID)
	return line, nil
}

// UpdateQuantity replaces the quantity on an active line.
func (s *service) UpdateQuantity(ctx context.Context, sessionID, itemID string, quantity int) (*models.CartLine, error) {
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	line, err := s.repo.FindLine(ctx, sessionID, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart line")
	}
	if line == nil || !line.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item is not in the cart")
	}
	line.Quantity = quantity
	if err := s.repo.Save(ctx, line); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving cart line")
	}
	s.invalidate(ctx, sessionID)
	return line, nil
}

// Remove deactivates the line. Removing an absent or already removed item is
// a no-op so retried messages stay harmless.
func (s *service) Remove(ctx context.Context, sessionID, itemID string) error {
	line, err := s.repo.FindLine(ctx, sessionID, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart line")
	}
	if line == nil || !line.Active {
		return nil
	}
	line.Active = false
	if err := s.repo.Save(ctx, line); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving cart line")
	}
	s.invalidate(ctx, sessionID)
	return nil
}

// Clear deactivates every active line in the session.
func (s *service) Clear(ctx context.Context, sessionID string) error {
	if err := s.repo.DeactivateAll(ctx, sessionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing cart")
	}
	s.invalidate(ctx, sessionID)
	return nil
}

// ActiveLines returns the session's active lines in add order, reading
// through the Redis cache when one is attached.
func (s *service) ActiveLines(ctx context.Context, sessionID string) ([]models.CartLine, error) {
	if lines, ok := s.cachedLines(ctx, sessionID); ok {
		return lines, nil
	}
	lines, err := s.repo.FindActiveBySession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart lines")
	}
	s.populateCache(ctx, sessionID, lines)
	return lines, nil
}

// Total sums the line totals of the active cart. The figure is computed at
// read time so a quantity edit is reflected immediately.
func (s *service) Total(ctx context.Context, sessionID string) (decimal.Decimal, error) {
	lines, err := s.ActiveLines(ctx, sessionID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.LineTotal())
	}
	return total, nil
}

// RestoreLines rewrites the session's materialized rows from replayed event
// state. Existing rows for the session are dropped first.
func (s *service) RestoreLines(ctx context.Context, sessionID string, lines []RestoredLine) error {
	if err := s.repo.DeleteBySession(ctx, sessionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resetting cart lines")
	}
	for _, restored := range lines {
		line := &models.CartLine{
			ID:                  uuid.New(),
			SessionID:           sessionID,
			ItemID:              restored.ItemID,
			ItemName:            restored.ItemName,
			Quantity:            restored.Quantity,
			UnitPrice:           restored.UnitPrice,
			SpecialInstructions: restored.SpecialInstructions,
			Active:              restored.Active,
		}
		if err := s.repo.Save(ctx, line); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restoring cart line")
		}
	}
	s.invalidate(ctx, sessionID)
	return nil
}

func (s *service) cachedLines(ctx context.Context, sessionID string) ([]models.CartLine, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, s.cache.CartCacheKey(sessionID))
	if err != nil {
		if err != redis.Nil && s.logg != nil {
			s.logg.Warn(ctx, "cart cache read failed: "+err.Error())
		}
		return nil, false
	}
	var lines []models.CartLine
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, false
	}
	return lines, true
}

func (s *service) populateCache(ctx context.Context, sessionID string, lines []models.CartLine) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.CartCacheKey(sessionID), string(raw), s.cacheTTL); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "cart cache write failed: "+err.Error())
	}
}

func (s *service) invalidate(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, s.cache.CartCacheKey(sessionID)); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "cart cache invalidation failed: "+err.Error())
	}
}
