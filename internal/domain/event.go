package domain

import "time"

// OpKind enum for journaled ledger events.
type OpKind string

const (
	OpDeposit      OpKind = "deposit"
	OpWithdraw     OpKind = "withdraw"
	OpMint         OpKind = "mint"
	OpRedeem       OpKind = "redeem"
	OpStake        OpKind = "stake"
	OpUnstake      OpKind = "unstake"
	OpReconciled   OpKind = "reconciled"
	OpDemoEnabled  OpKind = "demo_enabled"
	OpDemoDisabled OpKind = "demo_disabled"
)

// OpEvent is one committed ledger operation as written to the journal
// and streamed to the dashboard.
type OpEvent struct {
	ID       string    `json:"id"`
	Kind     OpKind    `json:"kind"`
	At       time.Time `json:"at"`
	Amount   string    `json:"amount,omitempty"`
	Protocol string    `json:"protocol,omitempty"`
	Message  string    `json:"message,omitempty"`
	Points   string    `json:"points"`
}

// OpEventRecord bundles an event with its journal index.
type OpEventRecord struct {
	Index uint64
	Event OpEvent
}
