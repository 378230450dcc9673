// Package ledger implements the swarm's economic credit ledger (spec.md
// §4.3): accounts, escrow holds, and stake. MemoryLedger records every
// mutating operation to a hash-chained audit trail so the ledger's history
// can be independently verified; SQLLedger writes no audit entries.
package ledger

import (
	"context"
	"time"
)

// Ledger is the durable interface for account and escrow management.
// Implementations must hold the conservation invariant: Transfer,
// CreateEscrow, ReleaseEscrow, and CancelEscrow only move credit between
// accounts' Available/Locked fields, never create or destroy it; only
// Burn removes credit from the system (used by pkg/slashing).
type Ledger interface {
	CreateAccount(ctx context.Context, id string) (Account, error)
	GetAccount(ctx context.Context, id string) (Account, error)

	// Transfer moves amount from Available funds of `from` directly to
	// `to`'s Available funds. Used for unescrowed payments (e.g. bounty
	// top-ups from an operator account).
	Transfer(ctx context.Context, from, to string, amount int64) error

	// CreateEscrow locks amount out of from's Available into Locked, and
	// opens an Escrow record routing eventual release to `to`.
	CreateEscrow(ctx context.Context, id, from, to string, amount int64, taskID string, ttl time.Duration) (Escrow, error)

	// ReleaseEscrow moves a PENDING escrow's locked funds from `from`'s
	// Locked into `to`'s Available, and marks the escrow RELEASED.
	ReleaseEscrow(ctx context.Context, escrowID string) (Escrow, error)

	// CancelEscrow returns a PENDING escrow's locked funds to `from`'s
	// Available and marks the escrow CANCELLED.
	CancelEscrow(ctx context.Context, escrowID string) (Escrow, error)

	GetEscrow(ctx context.Context, escrowID string) (Escrow, error)

	// ExpireOverdue cancels every PENDING escrow whose TTL elapsed as of
	// now, returning funds to their source accounts. pkg/shard's escrow
	// monitor does not call it; it expires its own artifact escrows.
	ExpireOverdue(ctx context.Context, now time.Time) ([]Escrow, error)

	// Burn destroys amount from account's Locked funds without crediting
	// anywhere else, the irreversible half of a slashing payout.
	Burn(ctx context.Context, account string, amount int64, reason string) error
}
