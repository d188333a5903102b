package session

import (
	"fmt"

	"github.com/dinebot-ai/dinebot-backend/pkg/enums"
)

// IntentKind is the vocabulary the transport and the assistant speak when
// driving a session. Each kind maps onto one event type; the paired derived
// update is the engine's job.
type IntentKind string

const (
	IntentStartSession    IntentKind = "start_session"
	IntentSendMessage     IntentKind = "send_message"
	IntentViewItem        IntentKind = "view_item"
	IntentShowMenu        IntentKind = "show_menu"
	IntentAddItem         IntentKind = "add_item"
	IntentUpdateQuantity  IntentKind = "update_quantity"
	IntentRemoveItem      IntentKind = "remove_item"
	IntentClearCart       IntentKind = "clear_cart"
	IntentStartCheckout   IntentKind = "start_checkout"
	IntentUpdateCheckout  IntentKind = "update_checkout"
	IntentInitiatePayment IntentKind = "initiate_payment"
	IntentCompletePayment IntentKind = "complete_payment"
	IntentFailPayment     IntentKind = "fail_payment"
)

var intentEventTypes = map[IntentKind]enums.EventType{
	IntentStartSession:    enums.EventSessionStarted,
	IntentSendMessage:     enums.EventMessageSent,
	IntentViewItem:        enums.EventItemViewed,
	IntentShowMenu:        enums.EventMenuShown,
	IntentAddItem:         enums.EventItemAdded,
	IntentUpdateQuantity:  enums.EventItemUpdated,
	IntentRemoveItem:      enums.EventItemRemoved,
	IntentClearCart:       enums.EventCartCleared,
	IntentStartCheckout:   enums.EventCheckoutStarted,
	IntentUpdateCheckout:  enums.EventCheckoutUpdated,
	IntentInitiatePayment: enums.EventPaymentInitiated,
	IntentCompletePayment: enums.EventPaymentCompleted,
	IntentFailPayment:     enums.EventPaymentFailed,
}

// EventType returns the event type the intent appends.
func (k IntentKind) EventType() (enums.EventType, error) {
	eventType, ok := intentEventTypes[k]
	if !ok {
		return "", fmt.Errorf("unknown intent kind %q", k)
	}
	return eventType, nil
}

// IsValid reports whether the value is a known IntentKind.
func (k IntentKind) IsValid() bool {
	_, ok := intentEventTypes[k]
	return ok
}

// ParseIntentKind converts raw input into an IntentKind.
func ParseIntentKind(value string) (IntentKind, error) {
	kind := IntentKind(value)
	if !kind.IsValid() {
		return "", fmt.Errorf("unknown intent kind %q", value)
	}
	return kind, nil
}
