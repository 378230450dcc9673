package slashing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmmesh/substrate/pkg/auditlog"
	"github.com/swarmmesh/substrate/pkg/ledger"
	"github.com/swarmmesh/substrate/pkg/slashing"
	"github.com/swarmmesh/substrate/pkg/stake"
)

func newStakedManager(t *testing.T, account string, seeded, staked int64) (*ledger.MemoryLedger, *stake.Manager) {
	t.Helper()
	l := ledger.NewMemoryLedger(auditlog.NewMemoryLog())
	ctx := context.Background()
	_, err := l.Seed(ctx, account, seeded)
	require.NoError(t, err)
	m := stake.NewManager(l, time.Hour)
	require.NoError(t, m.Stake(ctx, account, staked))
	return l, m
}

func TestSlasher_FailedChallengeSlashesHalfOfStake(t *testing.T) {
	_, m := newStakedManager(t, "verifier1", 1000, 1000)
	s := slashing.NewSlasher(m)

	amount, err := s.CalculateSlashAmount("verifier1", slashing.ViolationFailedChallenge, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(500), amount)
}

func TestSlasher_MissedHeartbeatMaxSeverityIs10Percent(t *testing.T) {
	_, m := newStakedManager(t, "verifier2", 1000, 1000)
	s := slashing.NewSlasher(m)

	amount, err := s.CalculateSlashAmount("verifier2", slashing.ViolationMissedHeartbeat, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(100), amount)
}

func TestSlasher_PolicyViolationEscalatesWithSeverity(t *testing.T) {
	_, m := newStakedManager(t, "verifier3", 1000, 1000)
	s := slashing.NewSlasher(m)

	amount, err := s.CalculateSlashAmount("verifier3", slashing.ViolationPolicyViolation, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(200), amount) // 0.10 * (1 + 1.0) * 1000 = 200
}

func TestSlasher_ExecuteBurnsCalculatedAmountFromStake(t *testing.T) {
	_, m := newStakedManager(t, "verifier4", 100, 100)
	s := slashing.NewSlasher(m)

	// FAILED_CHALLENGE wants 50% of 100 = 50, which is available.
	ev, err := s.Execute(context.Background(), "verifier4", slashing.ViolationFailedChallenge, 5, "ev-hash")
	require.NoError(t, err)
	assert.Equal(t, int64(50), ev.Amount)
	assert.Equal(t, int64(50), m.GetStakedAmount("verifier4"))
}

func TestSlasher_RejectsOutOfRangeSeverity(t *testing.T) {
	_, m := newStakedManager(t, "verifier5", 100, 100)
	s := slashing.NewSlasher(m)
	_, err := s.CalculateSlashAmount("verifier5", slashing.ViolationPolicyViolation, 11)
	assert.ErrorIs(t, err, slashing.ErrInvalidSeverity)
}
