package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/swarmmesh/substrate/pkg/auditlog"
	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

// MemoryLedger is an in-process Ledger, used for single-node deployments,
// tests, and the simulator's deterministic replay harness.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*Account
	escrows  map[string]*Escrow
	audit    auditlog.AuditLog
	clock    func() time.Time
}

func NewMemoryLedger(audit auditlog.AuditLog) *MemoryLedger {
	return &MemoryLedger{
		accounts: make(map[string]*Account),
		escrows:  make(map[string]*Escrow),
		audit:    audit,
		clock:    time.Now,
	}
}

// WithClock overrides the ledger's clock, for deterministic tests and the
// simulator's virtual time.
func (l *MemoryLedger) WithClock(clock func() time.Time) *MemoryLedger {
	l.clock = clock
	return l
}

func (l *MemoryLedger) record(subject, kind string, payload interface{}) {
	if l.audit == nil {
		return
	}
	_, _ = l.audit.Append("ledger", subject, kind, payload, l.clock().UnixNano())
}

func (l *MemoryLedger) CreateAccount(ctx context.Context, id string) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.accounts[id]; exists {
		return Account{}, swarmerr.Wrap(swarmerr.AccountExists, ErrAlreadyExists)
	}
	acc := &Account{ID: id, UpdatedAt: l.clock()}
	l.accounts[id] = acc
	l.record("ledger.account."+id, "CREATE_ACCOUNT", *acc)
	return *acc, nil
}

// Seed credits an account with `available` funds out of thin air. Used
// only at genesis (stake subsidy, operator treasury bootstrap) — normal
// operation never creates credit, only Seed does, and it is not part of
// the Ledger interface so ordinary components cannot call it.
func (l *MemoryLedger) Seed(ctx context.Context, id string, available int64) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc := l.getOrCreateLocked(id)
	acc.Available += available
	acc.UpdatedAt = l.clock()
	l.record("ledger.account."+id, "SEED", map[string]interface{}{"amount": available})
	return *acc, nil
}

func (l *MemoryLedger) GetAccount(ctx context.Context, id string) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return *acc, nil
}

func (l *MemoryLedger) getOrCreateLocked(id string) *Account {
	acc, ok := l.accounts[id]
	if !ok {
		acc = &Account{ID: id, UpdatedAt: l.clock()}
		l.accounts[id] = acc
	}
	return acc
}

func (l *MemoryLedger) Transfer(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: transfer amount must be positive, got %d", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	src, ok := l.accounts[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, from)
	}
	if src.Available < amount {
		return swarmerr.Wrap(swarmerr.InsufficientBalance, ErrInsufficientFunds)
	}
	dst := l.getOrCreateLocked(to)

	src.Available -= amount
	dst.Available += amount
	now := l.clock()
	src.UpdatedAt, dst.UpdatedAt = now, now

	l.record("ledger.transfer", "TRANSFER", map[string]interface{}{
		"from": from, "to": to, "amount": amount,
	})
	return nil
}

func (l *MemoryLedger) CreateEscrow(ctx context.Context, id, from, to string, amount int64, taskID string, ttl time.Duration) (Escrow, error) {
	if amount <= 0 {
		return Escrow{}, fmt.Errorf("ledger: escrow amount must be positive, got %d", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.escrows[id]; exists {
		return Escrow{}, swarmerr.Wrap(swarmerr.AccountExists, fmt.Errorf("%w: escrow %s", ErrAlreadyExists, id))
	}

	src, ok := l.accounts[from]
	if !ok {
		return Escrow{}, fmt.Errorf("%w: %s", ErrNotFound, from)
	}
	if src.Available < amount {
		return Escrow{}, swarmerr.Wrap(swarmerr.InsufficientBalance, ErrInsufficientFunds)
	}
	l.getOrCreateLocked(to)

	now := l.clock()
	src.Available -= amount
	src.Locked += amount
	src.UpdatedAt = now

	esc := &Escrow{
		ID: id, FromAccount: from, ToAccount: to, Amount: amount,
		TaskID: taskID, State: EscrowPending, CreatedAt: now,
	}
	if ttl > 0 {
		esc.ExpiresAt = now.Add(ttl)
	}
	l.escrows[id] = esc

	l.record("ledger.escrow."+id, "CREATE_ESCROW", *esc)
	return *esc, nil
}

func (l *MemoryLedger) ReleaseEscrow(ctx context.Context, escrowID string) (Escrow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	esc, ok := l.escrows[escrowID]
	if !ok {
		return Escrow{}, ErrNotFound
	}
	if esc.State != EscrowPending {
		return Escrow{}, ErrEscrowNotPending
	}

	src := l.accounts[esc.FromAccount]
	dst := l.getOrCreateLocked(esc.ToAccount)
	now := l.clock()

	src.Locked -= esc.Amount
	dst.Available += esc.Amount
	src.UpdatedAt, dst.UpdatedAt = now, now

	esc.State = EscrowReleased
	esc.ResolvedAt = now

	l.record("ledger.escrow."+escrowID, "RELEASE_ESCROW", *esc)
	return *esc, nil
}

func (l *MemoryLedger) CancelEscrow(ctx context.Context, escrowID string) (Escrow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelLocked(escrowID, EscrowCancelled)
}

func (l *MemoryLedger) cancelLocked(escrowID string, terminalState EscrowState) (Escrow, error) {
	esc, ok := l.escrows[escrowID]
	if !ok {
		return Escrow{}, ErrNotFound
	}
	if esc.State != EscrowPending {
		return Escrow{}, ErrEscrowNotPending
	}

	src := l.accounts[esc.FromAccount]
	now := l.clock()

	src.Locked -= esc.Amount
	src.Available += esc.Amount
	src.UpdatedAt = now

	esc.State = terminalState
	esc.ResolvedAt = now

	l.record("ledger.escrow."+escrowID, string(terminalState), *esc)
	return *esc, nil
}

func (l *MemoryLedger) GetEscrow(ctx context.Context, escrowID string) (Escrow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	esc, ok := l.escrows[escrowID]
	if !ok {
		return Escrow{}, ErrNotFound
	}
	return *esc, nil
}

func (l *MemoryLedger) ExpireOverdue(ctx context.Context, now time.Time) ([]Escrow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var expired []Escrow
	for id, esc := range l.escrows {
		if esc.Expired(now) {
			resolved, err := l.cancelLocked(id, EscrowExpired)
			if err != nil {
				return expired, err
			}
			expired = append(expired, resolved)
		}
	}
	return expired, nil
}

func (l *MemoryLedger) Burn(ctx context.Context, account string, amount int64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: burn amount must be positive, got %d", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[account]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, account)
	}
	if acc.Locked < amount {
		return swarmerr.Wrap(swarmerr.InsufficientBalance, ErrInsufficientFunds)
	}
	acc.Locked -= amount
	acc.UpdatedAt = l.clock()

	l.record("ledger.account."+account, "BURN", map[string]interface{}{
		"amount": amount, "reason": reason,
	})
	return nil
}
