package challenge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/swarmmesh/substrate/pkg/challenge"
)

func TestAggregate_UnanimousHighConfidenceNoEscalation(t *testing.T) {
	verdicts := []challenge.VerifierVerdict{
		{VerifierID: "v1", Upheld: true, Confidence: 0.9},
		{VerifierID: "v2", Upheld: true, Confidence: 0.95},
		{VerifierID: "v3", Upheld: true, Confidence: 0.85},
	}
	agg := challenge.Aggregate(verdicts, 50, challenge.EscalationNone)
	assert.True(t, agg.Upheld)
	assert.False(t, agg.Escalate)
	assert.False(t, agg.Disagreement)
}

func TestAggregate_DisagreementEscalates(t *testing.T) {
	verdicts := []challenge.VerifierVerdict{
		{VerifierID: "v1", Upheld: true, Confidence: 0.9},
		{VerifierID: "v2", Upheld: false, Confidence: 0.9},
	}
	agg := challenge.Aggregate(verdicts, 50, challenge.EscalationNone)
	assert.True(t, agg.Escalate)
	assert.True(t, agg.Disagreement)
	assert.Equal(t, challenge.EscalationVerifierConsensus, agg.Escalation)
}

func TestAggregate_LowAverageConfidenceEscalates(t *testing.T) {
	verdicts := []challenge.VerifierVerdict{
		{VerifierID: "v1", Upheld: true, Confidence: 0.5},
		{VerifierID: "v2", Upheld: true, Confidence: 0.4},
	}
	agg := challenge.Aggregate(verdicts, 50, challenge.EscalationNone)
	assert.True(t, agg.Escalate)
	assert.Less(t, agg.AverageConfidence, 0.7)
}

func TestAggregate_HighValueBondAlwaysEscalates(t *testing.T) {
	verdicts := []challenge.VerifierVerdict{
		{VerifierID: "v1", Upheld: true, Confidence: 1.0},
		{VerifierID: "v2", Upheld: true, Confidence: 1.0},
	}
	agg := challenge.Aggregate(verdicts, 1000, challenge.EscalationNone)
	assert.True(t, agg.Escalate)
}

func TestAggregate_EscalationClimbsLevels(t *testing.T) {
	verdicts := []challenge.VerifierVerdict{
		{VerifierID: "v1", Upheld: true, Confidence: 0.5},
		{VerifierID: "v2", Upheld: false, Confidence: 0.5},
	}
	agg := challenge.Aggregate(verdicts, 50, challenge.EscalationVerifierConsensus)
	assert.Equal(t, challenge.EscalationHumanReview, agg.Escalation)

	agg2 := challenge.Aggregate(verdicts, 50, challenge.EscalationHumanReview)
	assert.Equal(t, challenge.EscalationGovernanceVote, agg2.Escalation)
}

func TestAggregate_NoVerdictsEscalates(t *testing.T) {
	agg := challenge.Aggregate(nil, 50, challenge.EscalationNone)
	assert.True(t, agg.Escalate)
}
