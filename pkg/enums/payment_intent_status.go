package enums

import "fmt"

// PaymentIntentStatus tracks the gateway handshake lifecycle. Transitions are
// monotonic: a status may only advance along Rank order, never revert. This
// resolves the race between user-driven and gateway-callback writes.
type PaymentIntentStatus string

const (
	PaymentIntentCreated    PaymentIntentStatus = "created"
	PaymentIntentProcessing PaymentIntentStatus = "processing"
	PaymentIntentCompleted  PaymentIntentStatus = "completed"
	PaymentIntentFailed     PaymentIntentStatus = "failed"
	PaymentIntentCancelled  PaymentIntentStatus = "cancelled"
)

var validPaymentIntentStatuses = []PaymentIntentStatus{
	PaymentIntentCreated,
	PaymentIntentProcessing,
	PaymentIntentCompleted,
	PaymentIntentFailed,
	PaymentIntentCancelled,
}

var paymentIntentRank = map[PaymentIntentStatus]int{
	PaymentIntentCreated:    0,
	PaymentIntentProcessing: 1,
	PaymentIntentCompleted:  2,
	PaymentIntentFailed:     2,
	PaymentIntentCancelled:  2,
}

// String implements fmt.Stringer.
func (p PaymentIntentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentIntentStatus.
func (p PaymentIntentStatus) IsValid() bool {
	for _, candidate := range validPaymentIntentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// Rank returns the monotonic ordering position of the status.
func (p PaymentIntentStatus) Rank() int {
	return paymentIntentRank[p]
}

// CanAdvanceTo reports whether moving from p to next is a forward transition.
// Terminal statuses (completed/failed/cancelled) never change again.
func (p PaymentIntentStatus) CanAdvanceTo(next PaymentIntentStatus) bool {
	if !next.IsValid() {
		return false
	}
	if p.Rank() >= paymentIntentRank[PaymentIntentCompleted] {
		return false
	}
	return next.Rank() > p.Rank()
}

// ParsePaymentIntentStatus converts raw input into a PaymentIntentStatus.
func ParsePaymentIntentStatus(value string) (PaymentIntentStatus, error) {
	for _, candidate := range validPaymentIntentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment intent status %q", value)
}
