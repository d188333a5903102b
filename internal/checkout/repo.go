package checkout

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
)

// Repository persists the per-session checkout intent row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, sessionID string) (*models.CheckoutIntent, error)
	Upsert(ctx context.Context, intent *models.CheckoutIntent) error
	Delete(ctx context.Context, sessionID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout intent repository.
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

func (r *repository) Find(ctx context.Context, sessionID string) (*models.CheckoutIntent, error) {
	var intent models.CheckoutIntent
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) Upsert(ctx context.Context, intent *models.CheckoutIntent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"order_type",
				"payment_method",
				"special_instructions",
				"delivery_address",
				"table_number",
				"completed_at",
				"updated_at",
			}),
		}).
		Create(intent).Error
}

func (r *repository) Delete(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.CheckoutIntent{}).Error
}
