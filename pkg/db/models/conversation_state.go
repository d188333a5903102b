package models

import (
	"time"

	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
	"github.com/dinebot-ai/dinebot-backend/pkg/types"
)

// ConversationState is the single live flow-control record of a session.
// It is overwritten in place; history lives in the event log.
type ConversationState struct {
	SessionID         string                 `gorm:"column:session_id;primaryKey"`
	CurrentStep       enums.ConversationStep `gorm:"column:current_step;type:conversation_step_enum;not null;default:'browsing'"`
	AwaitingInputFor  *string                `gorm:"column:awaiting_input_for"`
	LastMentionedItem *string                `gorm:"column:last_mentioned_item"`
	LastShownMenu     types.MenuRefs         `gorm:"column:last_shown_menu;type:jsonb;serializer:json"`
	LastActivityAt    time.Time              `gorm:"column:last_activity_at;not null;index:idx_conversation_states_activity"`
	UpdatedAt         time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
