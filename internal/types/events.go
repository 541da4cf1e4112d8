package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// EventKind enumerates the observable state changes a position emits.
type EventKind string

const (
	EventDeposit          EventKind = "DEPOSIT"
	EventWithdraw         EventKind = "WITHDRAW"
	EventWithdrawAll      EventKind = "WITHDRAW_ALL"
	EventRebalance        EventKind = "REBALANCE"
	EventDebtRepaid       EventKind = "DEBT_REPAID"
	EventThresholdUpdated EventKind = "THRESHOLD_UPDATED"
	EventRecipientUpdated EventKind = "RECIPIENT_UPDATED"
	EventRateUpdated      EventKind = "MAX_BORROWING_RATE_UPDATED"
)

// Event is one observable state change on a position. Exactly one event is
// emitted per successful mutating operation.
type Event struct {
	PositionID string    `json:"position_id"`
	Kind       EventKind `json:"kind"`
	Actor      string    `json:"actor"`

	// Amount is the amount actually moved by the operation, where one
	// applies (zero-valued otherwise).
	Amount sdkmath.Int `json:"amount,omitempty"`

	// Requested is populated for REBALANCE only: the shortfall
	// (threshold - recipient balance) the operation tried to close.
	// Amount may be less when capacity was insufficient.
	Requested sdkmath.Int `json:"requested,omitempty"`

	// Recipient is the destination account for fund-moving events and the
	// new value for RECIPIENT_UPDATED.
	Recipient string `json:"recipient,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Recorder receives position events. Implementations journal them (database,
// log, test capture); recording failures must not abort the operation that
// produced the event.
type Recorder interface {
	Record(ev Event)
}
