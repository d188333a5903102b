package enums

import "fmt"

// EventType tags every entry in the append-only session event log.
type EventType string

const (
	EventItemViewed       EventType = "item_viewed"
	EventItemAdded        EventType = "item_added"
	EventItemRemoved      EventType = "item_removed"
	EventItemUpdated      EventType = "item_updated"
	EventCartCleared      EventType = "cart_cleared"
	EventMenuShown        EventType = "menu_shown"
	EventMessageSent      EventType = "message_sent"
	EventSessionStarted   EventType = "session_started"
	EventCheckoutStarted  EventType = "checkout_started"
	EventCheckoutUpdated  EventType = "checkout_updated"
	EventOrderPlaced      EventType = "order_placed"
	EventPaymentInitiated EventType = "payment_initiated"
	EventPaymentCompleted EventType = "payment_completed"
	EventPaymentFailed    EventType = "payment_failed"
)

var validEventTypes = []EventType{
	EventItemViewed,
	EventItemAdded,
	EventItemRemoved,
	EventItemUpdated,
	EventCartCleared,
	EventMenuShown,
	EventMessageSent,
	EventSessionStarted,
	EventCheckoutStarted,
	EventCheckoutUpdated,
	EventOrderPlaced,
	EventPaymentInitiated,
	EventPaymentCompleted,
	EventPaymentFailed,
}

// String implements fmt.Stringer.
func (e EventType) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EventType.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into an EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
