package challenge

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/swarmmesh/substrate/pkg/ledger"
	"github.com/swarmmesh/substrate/pkg/stake"
)

// challengeRewardMultiplier is the bond multiple an upheld challenger
// receives as reward, per spec.md §4.10 ("return bond + reward (2×bond)").
const challengeRewardMultiplier = 2

// withdrawnRefundNumerator/Denominator: WITHDRAWN returns 90% of bond,
// burns the remainder.
const (
	withdrawnRefundNumerator   = 90
	withdrawnRefundDenominator = 100
)

// Settler finalizes a challenge's bond once its outcome is decided. Bonds
// are held as self-escrows (from == to == ChallengerID) via pkg/ledger,
// the same trick pkg/stake uses to lock funds without a dedicated vault
// account: ReleaseEscrow moves Locked back to the same account's
// Available, and Burn destroys credit straight out of Locked.
type Settler struct {
	ledger     ledger.Ledger
	reputation *stake.ReputationTracker
}

func NewSettler(l ledger.Ledger, rep *stake.ReputationTracker) *Settler {
	return &Settler{ledger: l, reputation: rep}
}

// SettleUpheld returns the bond plus a 2x reward to the challenger (paid
// from the task's reward pool account) and penalizes every verifier who
// dissented from the eventual UPHELD verdict.
func (s *Settler) SettleUpheld(ctx context.Context, c *Challenge, bondEscrowID, rewardPoolAccount string, dissentingVerifiers []string) error {
	if _, err := s.ledger.ReleaseEscrow(ctx, bondEscrowID); err != nil {
		return fmt.Errorf("challenge: release bond escrow: %w", err)
	}
	reward := c.BondAmount * challengeRewardMultiplier
	if err := s.ledger.Transfer(ctx, rewardPoolAccount, c.ChallengerID, reward); err != nil {
		return fmt.Errorf("challenge: pay challenger reward: %w", err)
	}
	if s.reputation != nil {
		s.reputation.RecordChallenge(c.ChallengerID, c.TaskID, true)
		for _, v := range dissentingVerifiers {
			s.reputation.RecordAttestation(v, c.TaskID, false)
		}
	}
	return nil
}

// SettleRejected burns the challenger's bond directly out of Locked,
// bypassing the escrow record entirely (it stays PENDING and orphaned,
// the same bypass pkg/stake.Manager.Slash uses for punitive destruction
// of locked value) and records a challenge failure against reputation.
func (s *Settler) SettleRejected(ctx context.Context, c *Challenge) error {
	if err := s.ledger.Burn(ctx, c.ChallengerID, c.BondAmount, "challenge_rejected:"+c.ChallengeID); err != nil {
		return fmt.Errorf("challenge: burn rejected bond: %w", err)
	}
	if s.reputation != nil {
		s.reputation.RecordChallenge(c.ChallengerID, c.TaskID, false)
	}
	return nil
}

// SettleWithdrawn returns 90% of the bond to the challenger and burns
// the remaining 10%. The original bond escrow is released in full
// (unlocking it to the challenger's Available), then the burn portion
// is re-locked under a fresh self-escrow and destroyed — mirroring
// pkg/stake.Manager.splitEntryLocked's release-then-relock dance, since
// the ledger has no primitive for resolving one escrow two ways.
func (s *Settler) SettleWithdrawn(ctx context.Context, c *Challenge, bondEscrowID string) error {
	if _, err := s.ledger.ReleaseEscrow(ctx, bondEscrowID); err != nil {
		return fmt.Errorf("challenge: release bond escrow: %w", err)
	}
	burned := c.BondAmount - c.BondAmount*withdrawnRefundNumerator/withdrawnRefundDenominator
	if burned <= 0 {
		return nil
	}
	relockID := "challenge-withdraw-" + uuid.NewString()
	if _, err := s.ledger.CreateEscrow(ctx, relockID, c.ChallengerID, c.ChallengerID, burned, c.TaskID, 0); err != nil {
		return fmt.Errorf("challenge: relock withdrawn burn portion: %w", err)
	}
	if err := s.ledger.Burn(ctx, c.ChallengerID, burned, "challenge_withdrawn:"+c.ChallengeID); err != nil {
		return fmt.Errorf("challenge: burn withdrawn remainder: %w", err)
	}
	return nil
}
