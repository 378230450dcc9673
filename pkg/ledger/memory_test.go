package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swarmmesh/substrate/pkg/auditlog"
	"github.com/swarmmesh/substrate/pkg/ledger"
)

func newTestLedger(t *testing.T) (*ledger.MemoryLedger, auditlog.AuditLog) {
	t.Helper()
	al := auditlog.NewMemoryLog()
	return ledger.NewMemoryLedger(al), al
}

func TestTransfer_InsufficientFunds(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.CreateAccount(ctx, "alice")
	_, _ = l.CreateAccount(ctx, "bob")

	err := l.Transfer(ctx, "alice", "bob", 50)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}

func TestTransfer_MovesFunds(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.CreateAccount(ctx, "alice")
	_, _ = l.CreateAccount(ctx, "bob")
	_, err := l.Seed(ctx, "alice", 100)
	require.NoError(t, err)

	require.NoError(t, l.Transfer(ctx, "alice", "bob", 40))

	alice, _ := l.GetAccount(ctx, "alice")
	bob, _ := l.GetAccount(ctx, "bob")
	assert.Equal(t, int64(60), alice.Available)
	assert.Equal(t, int64(40), bob.Available)
}

func TestEscrow_CreateReleaseConservesTotal(t *testing.T) {
	l, al := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.CreateAccount(ctx, "alice")
	_, err := l.Seed(ctx, "alice", 100)
	require.NoError(t, err)

	esc, err := l.CreateEscrow(ctx, "esc-1", "alice", "bob", 40, "task-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ledger.EscrowPending, esc.State)

	alice, _ := l.GetAccount(ctx, "alice")
	assert.Equal(t, int64(60), alice.Available)
	assert.Equal(t, int64(40), alice.Locked)

	released, err := l.ReleaseEscrow(ctx, "esc-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.EscrowReleased, released.State)

	alice, _ = l.GetAccount(ctx, "alice")
	bob, _ := l.GetAccount(ctx, "bob")
	assert.Equal(t, int64(0), alice.Locked)
	assert.Equal(t, int64(40), bob.Available)

	entries, err := al.Entries()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 3)
	assert.NoError(t, al.VerifyChain())
}

func TestEscrow_CancelReturnsFunds(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.CreateAccount(ctx, "alice")
	_, err := l.Seed(ctx, "alice", 100)
	require.NoError(t, err)

	_, err = l.CreateEscrow(ctx, "esc-2", "alice", "bob", 30, "task-2", time.Hour)
	require.NoError(t, err)

	cancelled, err := l.CancelEscrow(ctx, "esc-2")
	require.NoError(t, err)
	assert.Equal(t, ledger.EscrowCancelled, cancelled.State)

	alice, _ := l.GetAccount(ctx, "alice")
	assert.Equal(t, int64(100), alice.Available)
	assert.Equal(t, int64(0), alice.Locked)
}

func TestEscrow_ReleaseTwiceFails(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.CreateAccount(ctx, "alice")
	_, _ = l.Seed(ctx, "alice", 100)
	_, err := l.CreateEscrow(ctx, "esc-5", "alice", "bob", 10, "task-5", time.Hour)
	require.NoError(t, err)

	_, err = l.ReleaseEscrow(ctx, "esc-5")
	require.NoError(t, err)

	_, err = l.ReleaseEscrow(ctx, "esc-5")
	assert.ErrorIs(t, err, ledger.ErrEscrowNotPending)
}

func TestExpireOverdue_ReturnsExpiredEscrows(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	al := auditlog.NewMemoryLog()
	l := ledger.NewMemoryLedger(al).WithClock(clock)
	ctx := context.Background()

	_, _ = l.CreateAccount(ctx, "alice")
	_, err := l.Seed(ctx, "alice", 50)
	require.NoError(t, err)

	_, err = l.CreateEscrow(ctx, "esc-3", "alice", "bob", 20, "task-3", time.Millisecond)
	require.NoError(t, err)

	later := now.Add(time.Second)
	expired, err := l.ExpireOverdue(ctx, later)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, ledger.EscrowExpired, expired[0].State)

	alice, _ := l.GetAccount(ctx, "alice")
	assert.Equal(t, int64(50), alice.Available)
	assert.Equal(t, int64(0), alice.Locked)
}

func TestBurn_RemovesLockedFundsWithoutCrediting(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.CreateAccount(ctx, "alice")
	_, err := l.Seed(ctx, "alice", 100)
	require.NoError(t, err)

	_, err = l.CreateEscrow(ctx, "esc-4", "alice", "bob", 50, "task-4", time.Hour)
	require.NoError(t, err)

	require.NoError(t, l.Burn(ctx, "alice", 50, "slashing: proof failure"))

	alice, _ := l.GetAccount(ctx, "alice")
	assert.Equal(t, int64(0), alice.Locked)
	assert.Equal(t, int64(50), alice.Available)
}

func TestBurn_InsufficientLockedFunds(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.CreateAccount(ctx, "alice")
	_, _ = l.Seed(ctx, "alice", 10)

	err := l.Burn(ctx, "alice", 10, "slashing")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
}
