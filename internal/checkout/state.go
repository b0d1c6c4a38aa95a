package checkout

import (
	"time"

	"github.com/xenking/marketplace-checkout/internal/domain/pricing"
)

// State is the lifecycle position of a checkout attempt.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateFailure    State = "failure"
)

func (s State) String() string { return string(s) }

// IsTerminal reports whether the attempt has resolved.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Event names a state machine input.
type Event string

const (
	EventSubmit  Event = "submit"
	EventSuccess Event = "gateway_success"
	EventFailure Event = "gateway_failure"
	EventRetry   Event = "retry"
	EventReset   Event = "reset"
)

// Transition is delivered to observers after every state change.
type Transition struct {
	From       State
	To         State
	Event      Event
	Generation uint64
	At         time.Time
}

// Order is the immutable outcome of one attempt. ID is empty on failure.
type Order struct {
	ID             string
	Status         OrderStatus
	Breakdown      *pricing.Breakdown
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

// Clone returns a deep copy of o.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Breakdown = o.Breakdown.Clone()
	return &c
}
