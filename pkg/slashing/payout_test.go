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

func newPoolWithStakes(t *testing.T, stakes map[string]int64) *stake.Pool {
	t.Helper()
	ctx := context.Background()
	l := ledger.NewMemoryLedger(auditlog.NewMemoryLog())
	m := stake.NewManager(l, time.Hour)
	for acc, amt := range stakes {
		_, err := l.Seed(ctx, acc, amt)
		require.NoError(t, err)
		require.NoError(t, m.Stake(ctx, acc, amt))
	}
	return stake.NewPool(m)
}

func TestNoChallengePayout_SplitsEquallyWithRemainderToFirst(t *testing.T) {
	out := slashing.NoChallengePayout([]string{"c", "a", "b"}, 100)
	// sorted: a, b, c ; 100/3 = 33 each, remainder 1 to "a"
	assert.Equal(t, int64(34), out["a"])
	assert.Equal(t, int64(33), out["b"])
	assert.Equal(t, int64(33), out["c"])
}

func TestNoChallengePayout_EmptyCommitteeReturnsEmpty(t *testing.T) {
	out := slashing.NoChallengePayout(nil, 100)
	assert.Empty(t, out)
}

func TestChallengedPayout_SplitsFiftyFortyTenLeavingBurnUndistributed(t *testing.T) {
	out := slashing.ChallengedPayout("challenger", []string{"v1", "v2"}, 100)
	assert.Equal(t, int64(50), out["challenger"])
	var committeeTotal int64
	for _, m := range []string{"v1", "v2"} {
		committeeTotal += out[m]
	}
	assert.Equal(t, int64(40), committeeTotal)
	// 10% (the burn share) is intentionally absent from the map.
	var total int64
	for _, v := range out {
		total += v
	}
	assert.Equal(t, int64(90), total)
}

func TestRelatedPartyDetector_FlagsSharedOrg(t *testing.T) {
	pool := newPoolWithStakes(t, map[string]int64{"challenger": 100, "v1": 100, "v2": 100})
	require.NoError(t, pool.Register("challenger", 100, nil, stake.Metadata{OrgID: "org-a"}))
	require.NoError(t, pool.Register("v1", 100, nil, stake.Metadata{OrgID: "org-a"}))
	require.NoError(t, pool.Register("v2", 100, nil, stake.Metadata{OrgID: "org-b"}))

	d := slashing.NewRelatedPartyDetector(pool)
	err := d.Check("challenger", []string{"v2"})
	assert.NoError(t, err)

	err = d.Check("challenger", []string{"v1", "v2"})
	assert.ErrorIs(t, err, slashing.ErrRelatedPartyConflict)
}

func TestRelatedPartyDetector_FlagsSharedASN(t *testing.T) {
	pool := newPoolWithStakes(t, map[string]int64{"challenger": 100, "v1": 100})
	require.NoError(t, pool.Register("challenger", 100, nil, stake.Metadata{ASN: "AS100"}))
	require.NoError(t, pool.Register("v1", 100, nil, stake.Metadata{ASN: "AS100"}))

	d := slashing.NewRelatedPartyDetector(pool)
	err := d.Check("challenger", []string{"v1"})
	assert.ErrorIs(t, err, slashing.ErrRelatedPartyConflict)
}

func TestRelatedPartyDetector_UnregisteredChallengerPassesThrough(t *testing.T) {
	pool := newPoolWithStakes(t, map[string]int64{"v1": 100})
	require.NoError(t, pool.Register("v1", 100, nil, stake.Metadata{OrgID: "org-a"}))

	d := slashing.NewRelatedPartyDetector(pool)
	err := d.Check("unregistered-challenger", []string{"v1"})
	assert.NoError(t, err)
}

func TestChallengePeriodElapsed_GatesOnTwiceTheWindow(t *testing.T) {
	completion := time.Unix(0, 0)
	window := time.Hour

	assert.False(t, slashing.ChallengePeriodElapsed(completion.Add(90*time.Minute), completion, window))
	assert.True(t, slashing.ChallengePeriodElapsed(completion.Add(2*time.Hour), completion, window))
}

func TestNextKResult_EscalatesByUpheldCount(t *testing.T) {
	assert.Equal(t, 3, slashing.NextKResult(3, 20, 0))
	assert.Equal(t, 5, slashing.NextKResult(3, 20, 1))
	assert.Equal(t, 6, slashing.NextKResult(3, 20, 2))
	assert.Equal(t, 20, slashing.NextKResult(15, 20, 3))
}
