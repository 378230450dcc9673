package auction_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmmesh/substrate/pkg/auction"
)

func TestAcceptBid_RejectsOverBudget(t *testing.T) {
	c := auction.NewCoordinator()
	c.StartAuction("need1", 100)
	err := c.AcceptBid("need1", auction.Bid{AgentID: "a1", Cost: 150})
	assert.ErrorIs(t, err, auction.ErrOverBudget)
}

func TestAcceptBid_RejectsAfterWindowCloses(t *testing.T) {
	now := time.Now()
	c := auction.NewCoordinator().WithClock(func() time.Time { return now })
	c.StartAuction("need1", 100)

	now = now.Add(31 * time.Second)
	err := c.AcceptBid("need1", auction.Bid{AgentID: "a1", Cost: 50})
	assert.ErrorIs(t, err, auction.ErrWindowClosed)
}

func TestAcceptBid_AntiSnipeExtendsWindow(t *testing.T) {
	now := time.Now()
	c := auction.NewCoordinator().WithClock(func() time.Time { return now })
	c.StartAuction("need1", 100)

	now = now.Add(27 * time.Second) // 3s remaining, under the 5s anti-snipe threshold
	require.NoError(t, c.AcceptBid("need1", auction.Bid{AgentID: "a1", Cost: 50}))

	a, ok := c.Get("need1")
	require.True(t, ok)
	assert.Equal(t, 1, a.Extensions)

	// Window was pushed back 5s, so a bid 4s later (31s elapsed wall-clock,
	// but only 26s against the extended window) should still be accepted.
	now = now.Add(4 * time.Second)
	require.NoError(t, c.AcceptBid("need1", auction.Bid{AgentID: "a2", Cost: 50}))
}

func TestAcceptBid_StopsExtendingAfterMaxExtensions(t *testing.T) {
	now := time.Now()
	c := auction.NewCoordinator().WithClock(func() time.Time { return now })
	c.StartAuction("need1", 100)

	// Each bid lands 3s before the (possibly extended) window ends.
	now = now.Add(27 * time.Second)
	for i := 0; i < 5; i++ {
		_ = c.AcceptBid("need1", auction.Bid{AgentID: "a", Cost: 1})
		now = now.Add(5 * time.Second)
	}
	a, ok := c.Get("need1")
	require.True(t, ok)
	assert.Equal(t, 3, a.Extensions)
}

func TestCloseAuction_NoBidsReturnsNil(t *testing.T) {
	c := auction.NewCoordinator()
	c.StartAuction("need1", 100)
	winner, err := c.CloseAuction("need1")
	require.NoError(t, err)
	assert.Nil(t, winner)
}

func TestCloseAuction_SelectsHighestScore(t *testing.T) {
	c := auction.NewCoordinator()
	c.StartAuction("need1", 100)
	require.NoError(t, c.AcceptBid("need1", auction.Bid{AgentID: "cheap", Cost: 10, Reputation: 0.5}))
	require.NoError(t, c.AcceptBid("need1", auction.Bid{AgentID: "expensive", Cost: 90, Reputation: 0.5}))

	winner, err := c.CloseAuction("need1")
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "cheap", winner.AgentID)
}

func TestCloseAuction_HigherReputationWinsAtEqualCost(t *testing.T) {
	now := time.Now()
	c := auction.NewCoordinator().WithClock(func() time.Time { return now })
	c.StartAuction("need1", 100)

	require.NoError(t, c.AcceptBid("need1", auction.Bid{AgentID: "low-rep", Cost: 50, Reputation: 0.2}))
	now = now.Add(time.Second)
	require.NoError(t, c.AcceptBid("need1", auction.Bid{AgentID: "high-rep", Cost: 50, Reputation: 0.9}))

	winner, err := c.CloseAuction("need1")
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "high-rep", winner.AgentID)
}

func TestCloseAuction_ExactTieBrokenByAgentID(t *testing.T) {
	now := time.Now()
	c := auction.NewCoordinator().WithClock(func() time.Time { return now })
	c.StartAuction("need1", 100)

	// Identical cost, ETA, reputation, and capabilities submitted at the
	// same clock tick: score, reputation, and timestamp all tie, so the
	// canonical chain falls through to lex(agent_id).
	require.NoError(t, c.AcceptBid("need1", auction.Bid{AgentID: "zeta", Cost: 50, Reputation: 0.5}))
	require.NoError(t, c.AcceptBid("need1", auction.Bid{AgentID: "alpha", Cost: 50, Reputation: 0.5}))
	require.NoError(t, c.AcceptBid("need1", auction.Bid{AgentID: "mu", Cost: 50, Reputation: 0.5}))

	winner, err := c.CloseAuction("need1")
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, "alpha", winner.AgentID)
}
