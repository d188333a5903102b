package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
)

// Order is the durable header created exactly once per successful promotion.
type Order struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID           string              `gorm:"column:session_id;not null;index:idx_orders_session"`
	CustomerID          *uuid.UUID          `gorm:"column:customer_id;type:uuid"`
	OrderType           enums.OrderType     `gorm:"column:order_type;type:order_type_enum;not null"`
	PaymentMethod       enums.PaymentMethod `gorm:"column:payment_method;type:payment_method_enum;not null"`
	Status              enums.OrderStatus   `gorm:"column:status;type:order_status_enum;not null;default:'placed'"`
	TotalAmount         decimal.Decimal     `gorm:"column:total_amount;type:numeric(10,2);not null"`
	SpecialInstructions *string             `gorm:"column:special_instructions"`
	DeliveryAddress     *string             `gorm:"column:delivery_address"`
	TableNumber         *string             `gorm:"column:table_number"`
	Lines               []OrderLine         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PlacedAt            time.Time           `gorm:"column:placed_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
