package cart

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
)

// Repository persists the materialized cart lines for a session.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindLine(ctx context.Context, sessionID, itemID string) (*models.CartLine, error)
	FindActiveBySession(ctx context.Context, sessionID string) ([]models.CartLine, error)
	FindActiveBySessionForUpdate(ctx context.Context, sessionID string) ([]models.CartLine, error)
	Save(ctx context.Context, line *models.CartLine) error
	DeactivateAll(ctx context.Context, sessionID string) error
	DeleteBySession(ctx context.Context, sessionID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a cart repository backed by the provided DB handle.
func NewRepository(db *gorm.DB) Repository {
	if db == nil {
		return nil
	}
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindLine returns the line for (session, item) regardless of active flag,
// or nil when no row exists.
func (r *repository) FindLine(ctx context.Context, sessionID, itemID string) (*models.CartLine, error) {
	var line models.CartLine
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND item_id = ?", sessionID, itemID).
		First(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *repository) FindActiveBySession(ctx context.Context, sessionID string) ([]models.CartLine, error) {
	var out []models.CartLine
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND active = ?", sessionID, true).
		Order("added_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindActiveBySessionForUpdate row-locks the active lines so promotion sees
// a frozen cart for the duration of its transaction. SQLite has no row
// locks; its transactions serialize the whole database instead.
func (r *repository) FindActiveBySessionForUpdate(ctx context.Context, sessionID string) ([]models.CartLine, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var out []models.CartLine
	err := query.
		Where("session_id = ? AND active = ?", sessionID, true).
		Order("added_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Save(ctx context.Context, line *models.CartLine) error {
	return r.db.WithContext(ctx).Save(line).Error
}

func (r *repository) DeactivateAll(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.CartLine{}).
		Where("session_id = ? AND active = ?", sessionID, true).
		Update("active", false).Error
}

func (r *repository) DeleteBySession(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.CartLine{}).Error
}
