package enums

import "fmt"

// ConversationStep is the flow-control position of a chat session.
type ConversationStep string

const (
	StepBrowsing         ConversationStep = "browsing"
	StepOrdering         ConversationStep = "ordering"
	StepAwaitingQuantity ConversationStep = "awaiting_quantity"
	StepCheckout         ConversationStep = "checkout"
	StepPayment          ConversationStep = "payment"
	StepOrderPlaced      ConversationStep = "order_placed"
)

var validConversationSteps = []ConversationStep{
	StepBrowsing,
	StepOrdering,
	StepAwaitingQuantity,
	StepCheckout,
	StepPayment,
	StepOrderPlaced,
}

// String implements fmt.Stringer.
func (c ConversationStep) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ConversationStep.
func (c ConversationStep) IsValid() bool {
	for _, candidate := range validConversationSteps {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the step ends the session's ordering flow.
func (c ConversationStep) IsTerminal() bool {
	return c == StepOrderPlaced
}

// ParseConversationStep converts raw input into a ConversationStep.
func ParseConversationStep(value string) (ConversationStep, error) {
	for _, candidate := range validConversationSteps {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid conversation step %q", value)
}
