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

func TestDistributor_SplitsSlashedTotalByIntegerMath(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger(auditlog.NewMemoryLog())
	for _, acc := range []string{"v1", "v2", "challenger", "honest1", "honest2", "honest3", "pool"} {
		_, err := l.Seed(ctx, acc, 1000)
		require.NoError(t, err)
	}
	m := stake.NewManager(l, time.Hour)
	require.NoError(t, m.Stake(ctx, "v1", 1000))
	require.NoError(t, m.Stake(ctx, "v2", 1000))

	s := slashing.NewSlasher(m)
	d := slashing.NewDistributor(l, s)

	attestationLog := []slashing.AttestationRecord{
		{VerifierID: "honest1", TaskID: "task-1"},
		{VerifierID: "honest2", TaskID: "task-1"},
		{VerifierID: "honest3", TaskID: "task-1"},
	}

	result, err := d.SlashVerifiers(ctx, []string{"v1", "v2"}, "ev-hash", "challenger",
		[]string{"honest1", "honest2", "honest3"}, attestationLog, "pool")
	require.NoError(t, err)

	// Each slashed 50% of 1000 = 500; total = 1000.
	assert.Equal(t, int64(1000), result.TotalSlashed)
	assert.Equal(t, int64(500), result.ChallengerPayout)
	assert.Equal(t, int64(400), result.HonestPayout)
	assert.Equal(t, int64(100), result.Burned)
	assert.Equal(t, int64(500)+int64(400)+int64(100), result.TotalSlashed)

	challAcc, err := l.GetAccount(ctx, "challenger")
	require.NoError(t, err)
	assert.Equal(t, int64(1000+500), challAcc.Available)
}

func TestDistributor_DropsFreeRidersNotInAttestationLog(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger(auditlog.NewMemoryLog())
	for _, acc := range []string{"v1", "challenger", "honest1", "faker", "pool"} {
		_, err := l.Seed(ctx, acc, 1000)
		require.NoError(t, err)
	}
	m := stake.NewManager(l, time.Hour)
	require.NoError(t, m.Stake(ctx, "v1", 1000))

	s := slashing.NewSlasher(m)
	d := slashing.NewDistributor(l, s)

	attestationLog := []slashing.AttestationRecord{{VerifierID: "honest1", TaskID: "task-1"}}

	result, err := d.SlashVerifiers(ctx, []string{"v1"}, "ev-hash", "challenger",
		[]string{"honest1", "faker"}, attestationLog, "pool")
	require.NoError(t, err)

	assert.Contains(t, result.DroppedFreeRiders, "faker")
	assert.NotContains(t, result.DroppedFreeRiders, "honest1")
	assert.Contains(t, result.HonestRewards, "honest1")
	assert.NotContains(t, result.HonestRewards, "faker")
}

func TestDistributor_NoVerifiersReturnsZeroResult(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger(auditlog.NewMemoryLog())
	m := stake.NewManager(l, time.Hour)
	s := slashing.NewSlasher(m)
	d := slashing.NewDistributor(l, s)

	result, err := d.SlashVerifiers(ctx, nil, "ev", "challenger", nil, nil, "pool")
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.TotalSlashed)
}
