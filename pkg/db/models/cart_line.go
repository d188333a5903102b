package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartLine is the materialized cart entry for one item within a session.
// One row per (session, item); removal flips Active rather than deleting so
// the row stays joinable against the event log. UnitPrice is a snapshot
// taken when the item was added.
type CartLine struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SessionID           string          `gorm:"column:session_id;not null;uniqueIndex:idx_cart_lines_session_item,priority:1"`
	ItemID              string          `gorm:"column:item_id;not null;uniqueIndex:idx_cart_lines_session_item,priority:2"`
	ItemName            string          `gorm:"column:item_name;not null"`
	Quantity            int             `gorm:"column:quantity;not null"`
	UnitPrice           decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	SpecialInstructions *string         `gorm:"column:special_instructions"`
	// Active carries no gorm default; every write sets it explicitly so a
	// restored inactive line reaches the database as false.
	Active    bool      `gorm:"column:active;not null"`
	AddedAt   time.Time `gorm:"column:added_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// LineTotal is quantity times the snapshot unit price.
func (c CartLine) LineTotal() decimal.Decimal {
	return c.UnitPrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
}
