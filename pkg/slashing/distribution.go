package slashing

import (
	"context"
	"fmt"
	"sort"

	"github.com/swarmmesh/substrate/pkg/ledger"
)

// AttestationRecord is one entry from the bus's attestation log, used by
// the free-rider guard to confirm a claimed honest verifier actually
// submitted an ATTEST for the disputed task.
type AttestationRecord struct {
	VerifierID string
	TaskID     string
}

// DistributionResult is the outcome of slashing a losing committee and
// splitting the proceeds, per spec.md §4.11's integer-math split:
// challenger := floor(T*50/100), honest_total := floor(T*40/100),
// burn := T - challenger - honest_total.
type DistributionResult struct {
	TotalSlashed      int64
	ChallengerPayout  int64
	HonestPayout      int64
	Burned            int64
	Events            []SlashEvent
	HonestRewards     map[string]int64
	DroppedFreeRiders []string
}

// Distributor slashes a losing verifier committee and distributes the
// proceeds: 50% to the challenger, 40% split equally across honest
// verifiers, 10% (plus integer remainder) burned. Because pkg/ledger's
// Burn only destroys credit (never re-credits), the challenger/honest
// shares are funded from a pre-seeded rewardPoolAccount via Transfer
// rather than "unburning" the slashed funds — the original Python
// implementation bypasses its ledger's conservation invariant by
// crediting balances directly in SQL, which this port deliberately does
// not replicate (see DESIGN.md).
type Distributor struct {
	ledger  ledger.Ledger
	slasher *Slasher
}

func NewDistributor(l ledger.Ledger, s *Slasher) *Distributor {
	return &Distributor{ledger: l, slasher: s}
}

// SlashVerifiers executes a FAILED_CHALLENGE slash (severity 10, i.e.
// the full 50% fraction) against every verifier in the losing committee,
// filters honestVerifiers against attestationLog (dropping and logging
// any free-rider claims), then distributes the total slashed amount.
func (d *Distributor) SlashVerifiers(ctx context.Context, verifiers []string, challengeEvidence, challenger string, honestVerifiers []string, attestationLog []AttestationRecord, rewardPoolAccount string) (DistributionResult, error) {
	if len(verifiers) == 0 {
		return DistributionResult{HonestRewards: map[string]int64{}}, nil
	}

	var events []SlashEvent
	var total int64
	for _, v := range verifiers {
		ev, err := d.slasher.Execute(ctx, v, ViolationFailedChallenge, 10, challengeEvidence)
		if err != nil {
			return DistributionResult{}, err
		}
		events = append(events, ev)
		total += ev.Amount
	}

	honest, dropped := filterFreeRiders(honestVerifiers, attestationLog)

	challengerPayout := total * 50 / 100
	honestTotal := total * 40 / 100
	burned := total - challengerPayout - honestTotal

	rewards := make(map[string]int64)
	if challengerPayout > 0 {
		if err := d.ledger.Transfer(ctx, rewardPoolAccount, challenger, challengerPayout); err != nil {
			return DistributionResult{}, fmt.Errorf("slashing: pay challenger: %w", err)
		}
	}
	if honestTotal > 0 && len(honest) > 0 {
		sort.Strings(honest) // deterministic ordering for remainder assignment
		share := honestTotal / int64(len(honest))
		remainder := honestTotal % int64(len(honest))
		for i, v := range honest {
			payout := share
			if i == 0 {
				payout += remainder
			}
			if payout > 0 {
				if err := d.ledger.Transfer(ctx, rewardPoolAccount, v, payout); err != nil {
					return DistributionResult{}, fmt.Errorf("slashing: pay honest verifier %s: %w", v, err)
				}
			}
			rewards[v] = payout
		}
	} else {
		// No honest verifiers to pay: their share is effectively burned too.
		burned += honestTotal
		honestTotal = 0
	}

	return DistributionResult{
		TotalSlashed:      total,
		ChallengerPayout:  challengerPayout,
		HonestPayout:      honestTotal,
		Burned:            burned,
		Events:            events,
		HonestRewards:     rewards,
		DroppedFreeRiders: dropped,
	}, nil
}

// filterFreeRiders keeps only the claimed honest verifiers who actually
// appear in the attestation log, per spec.md §4.11's free-rider guard.
// An empty attestationLog is treated as "unverifiable" and passes every
// claim through unfiltered, matching slashing.py's backward-compatible
// fallback.
func filterFreeRiders(claimed []string, attestationLog []AttestationRecord) (honest, dropped []string) {
	if len(attestationLog) == 0 {
		return claimed, nil
	}
	attested := make(map[string]bool, len(attestationLog))
	for _, rec := range attestationLog {
		attested[rec.VerifierID] = true
	}
	for _, v := range claimed {
		if attested[v] {
			honest = append(honest, v)
		} else {
			dropped = append(dropped, v)
		}
	}
	return honest, dropped
}
