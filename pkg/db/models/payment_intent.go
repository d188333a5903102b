package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
)

// PaymentIntent is the durable record of a gateway handshake. Unlike the
// cart/state rows it survives crashes and is never swept; it is a financial
// audit record.
type PaymentIntent struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID      string                    `gorm:"column:session_id;not null;index:idx_payment_intents_session"`
	OrderID        *uuid.UUID                `gorm:"column:order_id;type:uuid"`
	Gateway        string                    `gorm:"column:gateway;not null"`
	GatewayOrderID string                    `gorm:"column:gateway_order_id"`
	Amount         decimal.Decimal           `gorm:"column:amount;type:numeric(10,2);not null"`
	Currency       string                    `gorm:"column:currency;not null;default:'INR'"`
	Status         enums.PaymentIntentStatus `gorm:"column:status;type:payment_intent_status_enum;not null;default:'created'"`
	Metadata       json.RawMessage           `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
