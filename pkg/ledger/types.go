package ledger

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("ledger: not found")
	ErrInsufficientFunds = errors.New("ledger: insufficient available balance")
	ErrAlreadyExists    = errors.New("ledger: account already exists")
	ErrEscrowNotPending = errors.New("ledger: escrow is not in PENDING state")
)

// Account holds one agent's or pool's credit balance. Available is
// spendable now; Locked is held against one or more open escrows and
// cannot be spent or withdrawn until released or cancelled. The
// conservation invariant is: Available + Locked is only ever moved
// between accounts, never created or destroyed, except by an explicit
// slashing BURN.
type Account struct {
	ID        string    `json:"id"`
	Available int64     `json:"available"`
	Locked    int64     `json:"locked"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Balance is the sum a caller cares about: what's actually spendable.
func (a Account) Balance() int64 { return a.Available }

// EscrowState is the lifecycle of a held escrow.
type EscrowState string

const (
	EscrowPending  EscrowState = "PENDING"
	EscrowReleased EscrowState = "RELEASED"
	EscrowCancelled EscrowState = "CANCELLED"
	EscrowExpired  EscrowState = "EXPIRED"
)

// Escrow is a hold of funds from one account pending release to another
// (or back to the source on cancellation/expiry), used for auction bid
// bonds, challenge bonds, and cross-shard dependency collateral.
type Escrow struct {
	ID         string      `json:"id"`
	FromAccount string     `json:"from_account"`
	ToAccount  string      `json:"to_account"`
	Amount     int64       `json:"amount"`
	TaskID     string      `json:"task_id,omitempty"`
	State      EscrowState `json:"state"`
	CreatedAt  time.Time   `json:"created_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
	ResolvedAt time.Time   `json:"resolved_at,omitempty"`
}

// Expired reports whether the escrow's TTL has elapsed as of now.
func (e Escrow) Expired(now time.Time) bool {
	return e.State == EscrowPending && !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
