package models

import (
	"time"

	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
)

// CheckoutIntent stages order-type and payment-method answers collected
// during the checkout step. The row exists only between checkout start and
// promotion; the sweeper reclaims abandoned ones.
type CheckoutIntent struct {
	SessionID           string              `gorm:"column:session_id;primaryKey"`
	OrderType           enums.OrderType     `gorm:"column:order_type;type:order_type_enum"`
	PaymentMethod       enums.PaymentMethod `gorm:"column:payment_method;type:payment_method_enum"`
	SpecialInstructions *string             `gorm:"column:special_instructions"`
	DeliveryAddress     *string             `gorm:"column:delivery_address"`
	TableNumber         *string             `gorm:"column:table_number"`
	StartedAt           time.Time           `gorm:"column:started_at;autoCreateTime"`
	CompletedAt         *time.Time          `gorm:"column:completed_at"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
