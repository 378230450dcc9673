package challenge

import "sort"

const highValueBondThreshold = 500

// EscalationLevel orders the committees a disputed verdict climbs
// through, per spec.md §4.10.
type EscalationLevel string

const (
	EscalationNone              EscalationLevel = ""
	EscalationVerifierConsensus EscalationLevel = "VERIFIER_CONSENSUS"
	EscalationHumanReview       EscalationLevel = "HUMAN_REVIEW"
	EscalationGovernanceVote    EscalationLevel = "GOVERNANCE_VOTE"
)

// VerifierVerdict is one committee member's judgment of a verified
// proof, with a confidence score in [0,1].
type VerifierVerdict struct {
	VerifierID string
	Upheld     bool
	Confidence float64
}

// Aggregation is the outcome of combining a committee's verdicts.
type Aggregation struct {
	Upheld            bool
	AverageConfidence float64
	Escalate          bool
	Escalation        EscalationLevel
	Disagreement      bool
}

// Aggregate combines K_result verifier verdicts per spec.md §4.10:
// escalate if verdicts disagree, average confidence < 0.7, or the bond
// is at/above the high-value threshold. currentLevel is the escalation
// stage already reached (EscalationNone if this is the first pass), so
// repeated escalation climbs VERIFIER_CONSENSUS -> HUMAN_REVIEW ->
// GOVERNANCE_VOTE rather than resetting.
func Aggregate(verdicts []VerifierVerdict, bondAmount int64, currentLevel EscalationLevel) Aggregation {
	if len(verdicts) == 0 {
		return Aggregation{Escalate: true, Escalation: nextLevel(currentLevel)}
	}

	upheldCount := 0
	var confidenceSum float64
	for _, v := range verdicts {
		if v.Upheld {
			upheldCount++
		}
		confidenceSum += v.Confidence
	}
	avgConfidence := confidenceSum / float64(len(verdicts))
	disagreement := upheldCount != 0 && upheldCount != len(verdicts)
	majorityUpheld := upheldCount*2 > len(verdicts)

	escalate := disagreement || avgConfidence < 0.7 || bondAmount >= highValueBondThreshold

	agg := Aggregation{
		Upheld:            majorityUpheld,
		AverageConfidence: avgConfidence,
		Disagreement:      disagreement,
		Escalate:          escalate,
	}
	if escalate {
		agg.Escalation = nextLevel(currentLevel)
	}
	return agg
}

func nextLevel(current EscalationLevel) EscalationLevel {
	switch current {
	case EscalationNone:
		return EscalationVerifierConsensus
	case EscalationVerifierConsensus:
		return EscalationHumanReview
	default:
		return EscalationGovernanceVote
	}
}

// sortVerdictsByConfidence is a small helper used by committee
// re-sampling: weakest-confidence verdicts are replaced first when
// escalating to a larger committee.
func sortVerdictsByConfidence(verdicts []VerifierVerdict) []VerifierVerdict {
	out := make([]VerifierVerdict, len(verdicts))
	copy(out, verdicts)
	sort.Slice(out, func(i, j int) bool { return out[i].Confidence < out[j].Confidence })
	return out
}
