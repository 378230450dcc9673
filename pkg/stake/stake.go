// Package stake implements locked-for-role staking, unbonding, verifier
// pool membership, and DID-portable reputation (spec.md §4.4), grounded
// on original_source/src/economics/{stake,pools}.py.
package stake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmmesh/substrate/pkg/ledger"
	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

var (
	ErrInsufficientStake = errors.New("stake: insufficient staked balance")
	ErrStakeMismatch     = errors.New("stake: claimed stake exceeds current staked amount")
)

// stakeEntry is one escrow-backed stake lock: the account's own Locked
// funds are moved here via a self-escrow (from == to == account), so the
// conservation invariant lives entirely in pkg/ledger.
type stakeEntry struct {
	escrowID string
	amount   int64
}

type unbondEntry struct {
	escrowID string
	amount   int64
	unlockAt time.Time
}

// Manager locks credits into a role-scoped staked pool per account using
// self-escrows (pkg/ledger's Account.Locked), and handles the
// unstake→unbonding→claim lifecycle on top.
type Manager struct {
	mu           sync.Mutex
	ledger       ledger.Ledger
	unbondPeriod time.Duration
	staked       map[string][]stakeEntry
	unbonding    map[string][]unbondEntry
	clock        func() time.Time
}

func NewManager(l ledger.Ledger, unbondPeriod time.Duration) *Manager {
	return &Manager{
		ledger:       l,
		unbondPeriod: unbondPeriod,
		staked:       make(map[string][]stakeEntry),
		unbonding:    make(map[string][]unbondEntry),
		clock:        time.Now,
	}
}

func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Stake locks n credits from account's available balance into its staked
// pool via a perpetual (ttl=0) self-escrow.
func (m *Manager) Stake(ctx context.Context, account string, n int64) error {
	if n <= 0 {
		return fmt.Errorf("stake: amount must be positive, got %d", n)
	}
	id := "stake-" + uuid.NewString()
	if _, err := m.ledger.CreateEscrow(ctx, id, account, account, n, "stake:"+account, 0); err != nil {
		return fmt.Errorf("stake: lock funds for %s: %w", account, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.staked[account] = append(m.staked[account], stakeEntry{escrowID: id, amount: n})
	return nil
}

// Unstake moves n credits from account's staked pool into unbonding, with
// unlock time now + unbond_period. The underlying self-escrows stay
// pending (funds remain in the account's Locked bucket) until
// ClaimUnbonded releases them after the unbond period.
func (m *Manager) Unstake(ctx context.Context, account string, n int64) error {
	if n <= 0 {
		return fmt.Errorf("stake: amount must be positive, got %d", n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.totalStakedLocked(account) < n {
		return swarmerr.Wrap(swarmerr.InsufficientStake, ErrInsufficientStake)
	}

	remaining := n
	unlockAt := m.clock().Add(m.unbondPeriod)
	var kept []stakeEntry
	for _, e := range m.staked[account] {
		if remaining <= 0 {
			kept = append(kept, e)
			continue
		}
		switch {
		case e.amount <= remaining:
			m.unbonding[account] = append(m.unbonding[account], unbondEntry{
				escrowID: e.escrowID, amount: e.amount, unlockAt: unlockAt,
			})
			remaining -= e.amount
		default:
			// Split: move `remaining` out to unbonding under a fresh escrow,
			// keep the rest staked under a fresh escrow, cancel+recreate the
			// original since ledger escrows are all-or-nothing.
			before := len(m.staked[account])
			if err := m.splitEntryLocked(ctx, account, e, remaining, unlockAt); err != nil {
				return err
			}
			kept = append(kept, m.staked[account][before:]...)
			remaining = 0
		}
	}
	m.staked[account] = kept
	return nil
}

// splitEntryLocked releases e in full back to account's available balance,
// then re-locks (e.amount - take) as a fresh stake entry and `take` as a
// fresh unbonding entry. Caller holds m.mu.
func (m *Manager) splitEntryLocked(ctx context.Context, account string, e stakeEntry, take int64, unlockAt time.Time) error {
	if _, err := m.ledger.ReleaseEscrow(ctx, e.escrowID); err != nil {
		return fmt.Errorf("stake: split release %s: %w", e.escrowID, err)
	}

	keep := e.amount - take
	if keep > 0 {
		keepID := "stake-" + uuid.NewString()
		if _, err := m.ledger.CreateEscrow(ctx, keepID, account, account, keep, "stake:"+account, 0); err != nil {
			return fmt.Errorf("stake: re-lock remainder for %s: %w", account, err)
		}
		m.staked[account] = append(m.staked[account], stakeEntry{escrowID: keepID, amount: keep})
	}

	unbondID := "stake-" + uuid.NewString()
	if _, err := m.ledger.CreateEscrow(ctx, unbondID, account, account, take, "unbond:"+account, 0); err != nil {
		return fmt.Errorf("stake: lock unbonding amount for %s: %w", account, err)
	}
	m.unbonding[account] = append(m.unbonding[account], unbondEntry{escrowID: unbondID, amount: take, unlockAt: unlockAt})
	return nil
}

// ClaimUnbonded releases to account's available balance any unbonding
// entries whose unlock time has passed.
func (m *Manager) ClaimUnbonded(ctx context.Context, account string) (int64, error) {
	m.mu.Lock()
	entries := m.unbonding[account]
	now := m.clock()
	var ready []unbondEntry
	var remaining []unbondEntry
	for _, e := range entries {
		if now.Before(e.unlockAt) {
			remaining = append(remaining, e)
		} else {
			ready = append(ready, e)
		}
	}
	m.unbonding[account] = remaining
	m.mu.Unlock()

	var claimed int64
	for _, e := range ready {
		if _, err := m.ledger.ReleaseEscrow(ctx, e.escrowID); err != nil {
			return claimed, fmt.Errorf("stake: claim unbonded %s: %w", e.escrowID, err)
		}
		claimed += e.amount
	}
	return claimed, nil
}

func (m *Manager) totalStakedLocked(account string) int64 {
	var total int64
	for _, e := range m.staked[account] {
		total += e.amount
	}
	return total
}

// GetStakedAmount returns the account's current live staked balance,
// excluding anything already moved to unbonding.
func (m *Manager) GetStakedAmount(account string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalStakedLocked(account)
}

// Slash burns n credits directly from account's staked pool, partial if
// staked < n (per spec.md §4.4/§4.11). This bypasses the escrow
// bookkeeping deliberately: a slash is punitive destruction of locked
// value, not a lifecycle transition, so it reduces the ledger's Locked
// field directly via Burn rather than resolving individual escrows.
func (m *Manager) Slash(ctx context.Context, account string, n int64, reason string) (int64, error) {
	m.mu.Lock()
	staked := m.totalStakedLocked(account)
	actual := n
	if staked < actual {
		actual = staked
	}

	// Consume stake entries FIFO to keep our bookkeeping in sync with the
	// ledger's reduced Locked balance; entries themselves no longer back
	// real locked funds once burned; drop them whole.
	remaining := actual
	var kept []stakeEntry
	for _, e := range m.staked[account] {
		if remaining <= 0 {
			kept = append(kept, e)
			continue
		}
		if e.amount <= remaining {
			remaining -= e.amount
		} else {
			kept = append(kept, stakeEntry{escrowID: e.escrowID, amount: e.amount - remaining})
			remaining = 0
		}
	}
	m.staked[account] = kept
	m.mu.Unlock()

	if actual <= 0 {
		return 0, nil
	}
	if err := m.ledger.Burn(ctx, account, actual, reason); err != nil {
		return 0, fmt.Errorf("stake: burn slashed funds for %s: %w", account, err)
	}
	return actual, nil
}
