package challenge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmmesh/substrate/pkg/challenge"
	"github.com/swarmmesh/substrate/pkg/stake"
)

func newCoordinator(t *testing.T, accounts map[string]int64) (*challenge.Coordinator, context.Context) {
	t.Helper()
	l := newFundedLedger(t, accounts)
	rep := stake.NewReputationTracker()
	settler := challenge.NewSettler(l, rep)
	return challenge.NewCoordinator(l, settler), context.Background()
}

func TestCoordinator_SubmitRequiresOpenWindow(t *testing.T) {
	c, ctx := newCoordinator(t, map[string]int64{"alice": 1000})
	_, err := c.Submit(ctx, "task-1", "commit-1", "alice", validProof(), challenge.ComplexitySimple)
	assert.ErrorIs(t, err, challenge.ErrWindowNotOpen)
}

func TestCoordinator_SubmitEscrowsBondAndQueues(t *testing.T) {
	c, ctx := newCoordinator(t, map[string]int64{"alice": 1000, "rewardpool": 1000})
	c.OpenWindow("task-1")

	ch, err := c.Submit(ctx, "task-1", "commit-1", "alice", validProof(), challenge.ComplexitySimple)
	require.NoError(t, err)
	assert.Equal(t, challenge.StateQueued, ch.State)
	assert.Equal(t, int64(10), ch.BondAmount) // SCHEMA_VIOLATION base(10) * SIMPLE(1)
}

func TestCoordinator_SubmitInsufficientBalanceRejected(t *testing.T) {
	c, ctx := newCoordinator(t, map[string]int64{"alice": 1})
	c.OpenWindow("task-1")
	_, err := c.Submit(ctx, "task-1", "commit-1", "alice", validProof(), challenge.ComplexitySimple)
	assert.Error(t, err)
}

func TestCoordinator_VerifyDequeuesAndRunsVerifier(t *testing.T) {
	c, ctx := newCoordinator(t, map[string]int64{"alice": 1000})
	c.OpenWindow("task-1")
	proof := validProof()
	proof.Metadata = map[string]interface{}{
		"required_citations": []interface{}{"x"},
		"provided_citations": []interface{}{},
	}
	proof.ProofType = challenge.ProofMissingCitation
	_, err := c.Submit(ctx, "task-1", "commit-1", "alice", proof, challenge.ComplexitySimple)
	require.NoError(t, err)

	ch, result, ok := c.Verify(nil)
	require.True(t, ok)
	assert.Equal(t, challenge.StateVerified, ch.State)
	assert.True(t, result.IsValid)
}

func TestCoordinator_ResolveUpheldSettlesBond(t *testing.T) {
	c, ctx := newCoordinator(t, map[string]int64{"alice": 1000, "pool": 1000})
	c.OpenWindow("task-1")
	ch, err := c.Submit(ctx, "task-1", "commit-1", "alice", validProof(), challenge.ComplexitySimple)
	require.NoError(t, err)
	c.Verify(nil)

	verdicts := []challenge.VerifierVerdict{
		{VerifierID: "v1", Upheld: true, Confidence: 0.9},
		{VerifierID: "v2", Upheld: true, Confidence: 0.9},
	}
	agg, err := c.Resolve(ctx, ch, verdicts, challenge.EscalationNone, "pool")
	require.NoError(t, err)
	assert.True(t, agg.Upheld)
	assert.Equal(t, challenge.StateUpheld, ch.State)
}

func TestCoordinator_ResolveEscalatesOnDisagreement(t *testing.T) {
	c, ctx := newCoordinator(t, map[string]int64{"alice": 1000, "pool": 1000})
	c.OpenWindow("task-1")
	ch, err := c.Submit(ctx, "task-1", "commit-1", "alice", validProof(), challenge.ComplexitySimple)
	require.NoError(t, err)
	c.Verify(nil)

	verdicts := []challenge.VerifierVerdict{
		{VerifierID: "v1", Upheld: true, Confidence: 0.9},
		{VerifierID: "v2", Upheld: false, Confidence: 0.9},
	}
	agg, err := c.Resolve(ctx, ch, verdicts, challenge.EscalationNone, "pool")
	require.NoError(t, err)
	assert.True(t, agg.Escalate)
	assert.Equal(t, challenge.StateEscalated, ch.State)
}
