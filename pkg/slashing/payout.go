package slashing

import (
	"errors"
	"sort"
	"time"

	"github.com/swarmmesh/substrate/pkg/stake"
	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

var ErrRelatedPartyConflict = errors.New("slashing: payout blocked, related-party conflict")

// NoChallengePayout splits amount equally across committee (sorted for
// determinism), with the integer remainder going to the first member —
// spec.md §4.11's "100% to committee, split equally with remainder to
// first".
func NoChallengePayout(committee []string, amount int64) map[string]int64 {
	out := make(map[string]int64, len(committee))
	if len(committee) == 0 {
		return out
	}
	sorted := append([]string(nil), committee...)
	sort.Strings(sorted)
	share := amount / int64(len(sorted))
	remainder := amount % int64(len(sorted))
	for i, m := range sorted {
		payout := share
		if i == 0 {
			payout += remainder
		}
		out[m] = payout
	}
	return out
}

// ChallengedPayout computes the "with challenger" split: 50% to the
// challenger, 40% split equally across the committee (remainder to the
// first), 10% left undistributed for BountyManager.Distribute to burn.
func ChallengedPayout(challenger string, committee []string, amount int64) map[string]int64 {
	challengerShare := amount * 50 / 100
	committeeTotal := amount * 40 / 100

	out := NoChallengePayout(committee, committeeTotal)
	out[challenger] = out[challenger] + challengerShare
	return out
}

// RelatedPartyDetector cross-references a challenger against a task's
// committee for shared organization or ASN (no identity-hash comparison
// is made), using
// pkg/stake.Pool's verifier metadata (itself grounded on
// original_source/src/economics/pools.py's org_id/asn columns).
type RelatedPartyDetector struct {
	pool *stake.Pool
}

func NewRelatedPartyDetector(pool *stake.Pool) *RelatedPartyDetector {
	return &RelatedPartyDetector{pool: pool}
}

// Check returns ErrRelatedPartyConflict if challenger shares an org or
// ASN with any committee member.
func (d *RelatedPartyDetector) Check(challenger string, committee []string) error {
	challengerRec, ok := d.pool.Get(challenger)
	if !ok {
		return nil // unregistered challenger has no metadata to conflict on
	}
	for _, m := range committee {
		memberRec, ok := d.pool.Get(m)
		if !ok {
			continue
		}
		if challengerRec.Metadata.OrgID != "" && challengerRec.Metadata.OrgID == memberRec.Metadata.OrgID {
			return swarmerr.Wrap(swarmerr.RelatedPartyConflict, ErrRelatedPartyConflict)
		}
		if challengerRec.Metadata.ASN != "" && challengerRec.Metadata.ASN == memberRec.Metadata.ASN {
			return swarmerr.Wrap(swarmerr.RelatedPartyConflict, ErrRelatedPartyConflict)
		}
	}
	return nil
}

// ChallengePeriodElapsed reports whether enough time has passed since
// completionTs for a FINAL task's payout to proceed: spec.md §4.11 gates
// payout until now - completion_ts >= 2*T_challenge.
func ChallengePeriodElapsed(now, completionTs time.Time, challengeWindow time.Duration) bool {
	return now.Sub(completionTs) >= 2*challengeWindow
}

// NextKResult computes the escalated consensus committee size after a
// challenge outcome, per spec.md §4.11: a single upheld challenge adds
// 2 to K; multiple upheld challenges double K, capped at the active
// verifier count.
func NextKResult(currentK, activeVerifiers, upheldCount int) int {
	switch {
	case upheldCount <= 0:
		return currentK
	case upheldCount == 1:
		return currentK + 2
	default:
		k := currentK * 2
		if k > activeVerifiers {
			k = activeVerifiers
		}
		return k
	}
}
