package events

import (
	"context"

	"gorm.io/gorm"

	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
)

// Repository persists the append-only session event log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, event *models.SessionEvent) error
	FindBySessionDesc(ctx context.Context, sessionID string, limit, offset int) ([]models.SessionEvent, error)
	FindBySessionAsc(ctx context.Context, sessionID string) ([]models.SessionEvent, error)
	CountBySession(ctx context.Context, sessionID string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an event repository backed by the provided DB handle.
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

func (r *repository) Insert(ctx context.Context, event *models.SessionEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) FindBySessionDesc(ctx context.Context, sessionID string, limit, offset int) ([]models.SessionEvent, error) {
	var out []models.SessionEvent
	query := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) FindBySessionAsc(ctx context.Context, sessionID string) ([]models.SessionEvent, error) {
	var out []models.SessionEvent
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.SessionEvent{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}
