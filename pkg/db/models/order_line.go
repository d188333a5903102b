package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine freezes a cart line at promotion time. Quantity and price are
// copied, never re-derived from the catalog afterwards.
type OrderLine struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID             uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index:idx_order_lines_order"`
	ItemID              string          `gorm:"column:item_id;not null"`
	ItemName            string          `gorm:"column:item_name;not null"`
	Quantity            int             `gorm:"column:quantity;not null"`
	UnitPrice           decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	LineTotal           decimal.Decimal `gorm:"column:line_total;type:numeric(10,2);not null"`
	SpecialInstructions *string         `gorm:"column:special_instructions"`
}
