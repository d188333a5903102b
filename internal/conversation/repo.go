package conversation

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dinebot-ai/dinebot-backend/pkg/db/models"
)

// Repository persists the single live conversation state row per session.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Find(ctx context.Context, sessionID string) (*models.ConversationState, error)
	Upsert(ctx context.Context, state *models.ConversationState) error
	FindIdleBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ConversationState, error)
	Delete(ctx context.Context, sessionID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a conversation state repository.
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

func (r *repository) Find(ctx context.Context, sessionID string) (*models.ConversationState, error) {
	var state models.ConversationState
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Upsert writes the whole row, replacing any previous value for the session.
func (r *repository) Upsert(ctx context.Context, state *models.ConversationState) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"current_step",
				"awaiting_input_for",
				"last_mentioned_item",
				"last_shown_menu",
				"last_activity_at",
				"updated_at",
			}),
		}).
		Create(state).Error
}

func (r *repository) FindIdleBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ConversationState, error) {
	var out []models.ConversationState
	query := r.db.WithContext(ctx).
		Where("last_activity_at < ?", cutoff).
		Order("last_activity_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) Delete(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.ConversationState{}).Error
}
