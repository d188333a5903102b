package events

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
	pkgerrors "github.com/dinebot-ai/dinebot-backend/pkg/errors"
	"github.com/dinebot-ai/dinebot-backend/pkg/types"
)

// Payload shapes form a tagged union keyed by the event type. Unknown event
// types carry a RawPayload so forward-compatible producers do not break the
// log; derivation simply ignores what it does not understand.

type ItemViewedPayload struct {
	ItemID   string `json:"item_id" validate:"required"`
	ItemName string `json:"item_name"`
}

type ItemAddedPayload struct {
	ItemID              string          `json:"item_id" validate:"required"`
	ItemName            string          `json:"item_name" validate:"required"`
	Quantity            int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	SpecialInstructions *string         `json:"special_instructions,omitempty"`
}

type ItemRemovedPayload struct {
	ItemID string `json:"item_id" validate:"required"`
}

type ItemUpdatedPayload struct {
	ItemID   string `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type CartClearedPayload struct {
	Reason string `json:"reason,omitempty"`
}

type MenuShownPayload struct {
	Items []types.MenuRef `json:"items" validate:"required,min=1"`
}

type MessageSentPayload struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content"`
}

type SessionStartedPayload struct {
	UserAgent string `json:"user_agent,omitempty"`
}

type CheckoutStartedPayload struct {
	OrderType string `json:"order_type,omitempty"`
}

// CheckoutUpdatedPayload stages one or more checkout answers. Absent fields
// leave the staged value untouched.
type CheckoutUpdatedPayload struct {
	OrderType           string  `json:"order_type,omitempty"`
	PaymentMethod       string  `json:"payment_method,omitempty"`
	DeliveryAddress     *string `json:"delivery_address,omitempty"`
	TableNumber         *string `json:"table_number,omitempty"`
	SpecialInstructions *string `json:"special_instructions,omitempty"`
}

type OrderPlacedPayload struct {
	OrderID     string          `json:"order_id" validate:"required"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	LineCount   int             `json:"line_count"`
}

type PaymentInitiatedPayload struct {
	PaymentIntentID string          `json:"payment_intent_id" validate:"required"`
	Gateway         string          `json:"gateway" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
}

type PaymentCompletedPayload struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

type PaymentFailedPayload struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
	Reason          string `json:"reason,omitempty"`
}

// RawPayload is the catch-all variant for event types this build does not
// know how to interpret.
type RawPayload json.RawMessage

func payloadPrototype(eventType enums.EventType) any {
	switch eventType {
	case enums.EventItemViewed:
		return &ItemViewedPayload{}
	case enums.EventItemAdded:
		return &ItemAddedPayload{}
	case enums.EventItemRemoved:
		return &ItemRemovedPayload{}
	case enums.EventItemUpdated:
		return &ItemUpdatedPayload{}
	case enums.EventCartCleared:
		return &CartClearedPayload{}
	case enums.EventMenuShown:
		return &MenuShownPayload{}
	case enums.EventMessageSent:
		return &MessageSentPayload{}
	case enums.EventSessionStarted:
		return &SessionStartedPayload{}
	case enums.EventCheckoutStarted:
		return &CheckoutStartedPayload{}
	case enums.EventCheckoutUpdated:
		return &CheckoutUpdatedPayload{}
	case enums.EventOrderPlaced:
		return &OrderPlacedPayload{}
	case enums.EventPaymentInitiated:
		return &PaymentInitiatedPayload{}
	case enums.EventPaymentCompleted:
		return &PaymentCompletedPayload{}
	case enums.EventPaymentFailed:
		return &PaymentFailedPayload{}
	default:
		return nil
	}
}

// DecodePayload unmarshals raw into the typed shape for the event type.
// Unknown types return RawPayload unchanged.
func DecodePayload(eventType enums.EventType, raw json.RawMessage) (any, error) {
	proto := payloadPrototype(eventType)
	if proto == nil {
		return RawPayload(raw), nil
	}
	if len(raw) == 0 {
		return proto, nil
	}
	if err := json.Unmarshal(raw, proto); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err,
			fmt.Sprintf("malformed %s payload", eventType))
	}
	return proto, nil
}

// EncodePayload marshals a typed payload for storage.
func EncodePayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(RawPayload); ok {
		return json.RawMessage(raw), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encoding event payload")
	}
	return raw, nil
}
