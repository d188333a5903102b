package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
)

// SessionEvent is one immutable entry of a session's append-only event log.
// Rows are never updated or deleted; ordering is (created_at, id) insertion
// order within a session. IDs are time-ordered UUIDv7, assigned in Go, so
// the id column breaks created_at ties in insertion order.
type SessionEvent struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SessionID string          `gorm:"column:session_id;not null;index:idx_session_events_session"`
	EventType enums.EventType `gorm:"column:event_type;type:event_type_enum;not null"`
	Payload   json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
