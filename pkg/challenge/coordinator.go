package challenge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/swarmmesh/substrate/pkg/ledger"
	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

var (
	ErrWindowNotOpen = errors.New("challenge: window is not open for this task")
	ErrAbuseDetected = errors.New("challenge: submission rejected by abuse controls")
)

// Coordinator is the single entry point for the challenge lifecycle:
// submission (bond escrow + window + abuse checks), queueing, gas-metered
// verification, verdict aggregation with escalation, and outcome
// settlement. It wires pkg/ledger for bond custody, stake.ReputationTracker
// (via Settler) for reputation effects, and this package's own Queue,
// Verifier, WindowManager, and AbuseTracker.
type Coordinator struct {
	ledger   ledger.Ledger
	windows  *WindowManager
	queue    *Queue
	verifier *Verifier
	abuse    *AbuseTracker
	settler  *Settler

	escrowOf map[string]string // challengeID -> bond escrow ID
}

func NewCoordinator(l ledger.Ledger, settler *Settler) *Coordinator {
	return &Coordinator{
		ledger:   l,
		windows:  NewWindowManager(),
		queue:    NewQueue(),
		verifier: NewVerifier(MaxGasEstimate),
		abuse:    NewAbuseTracker(),
		settler:  settler,
		escrowOf: make(map[string]string),
	}
}

// OpenWindow starts a task's challenge window, called when a COMMIT is
// observed.
func (c *Coordinator) OpenWindow(taskID string) Window {
	return c.windows.Open(taskID, 0)
}

// Submit validates and queues a challenge: the task's window must be
// open, the challenger must not be rate-limited or bursting, the proof
// schema must validate, and the bond must escrow successfully.
func (c *Coordinator) Submit(ctx context.Context, taskID, commitID, challengerID string, proof Proof, complexity Complexity) (*Challenge, error) {
	if !c.windows.IsOpen(taskID) {
		return nil, swarmerr.Wrap(swarmerr.WindowClosed, ErrWindowNotOpen)
	}
	if allowed, reason := c.abuse.RecordSubmission(challengerID); !allowed {
		return nil, fmt.Errorf("%w: %s", ErrAbuseDetected, reason)
	}
	if err := proof.Validate(); err != nil {
		return nil, err
	}

	bond := Bond(proof.ProofType, complexity)
	if bond <= 0 {
		return nil, swarmerr.Wrap(swarmerr.BondTooSmall, ErrBondTooSmall)
	}

	challengeID := "chal-" + uuid.NewString()
	escrowID := "chal-bond-" + uuid.NewString()
	if _, err := c.ledger.CreateEscrow(ctx, escrowID, challengerID, challengerID, bond, taskID, 0); err != nil {
		return nil, fmt.Errorf("challenge: escrow bond: %w", err)
	}

	ch := &Challenge{
		ChallengeID:  challengeID,
		TaskID:       taskID,
		CommitID:     commitID,
		ChallengerID: challengerID,
		Proof:        proof,
		BondAmount:   bond,
	}
	c.queue.Enqueue(ch)
	c.escrowOf[challengeID] = escrowID
	return ch, nil
}

// Verify pops the next queued challenge (highest bond first) and runs
// its deterministic proof verification, transitioning it to VERIFIED.
func (c *Coordinator) Verify(commitData map[string]interface{}) (*Challenge, VerificationResult, bool) {
	ch := c.queue.Dequeue()
	if ch == nil {
		return nil, VerificationResult{}, false
	}
	result := c.verifier.VerifyProof(ch.Proof, commitData)
	ch.State = StateVerified
	return ch, result, true
}

// Resolve aggregates a committee's verdicts for a verified challenge and
// either escalates or settles the final outcome.
func (c *Coordinator) Resolve(ctx context.Context, ch *Challenge, verdicts []VerifierVerdict, currentLevel EscalationLevel, rewardPoolAccount string) (Aggregation, error) {
	agg := Aggregate(verdicts, ch.BondAmount, currentLevel)
	if agg.Escalate {
		ch.State = StateEscalated
		return agg, nil
	}

	escrowID := c.escrowOf[ch.ChallengeID]
	if agg.Upheld {
		ch.State = StateUpheld
		var dissenting []string
		for _, v := range verdicts {
			if !v.Upheld {
				dissenting = append(dissenting, v.VerifierID)
			}
		}
		if err := c.settler.SettleUpheld(ctx, ch, escrowID, rewardPoolAccount, dissenting); err != nil {
			return agg, err
		}
	} else {
		ch.State = StateRejected
		if err := c.settler.SettleRejected(ctx, ch); err != nil {
			return agg, err
		}
	}
	c.abuse.RecordOutcome(ch.ChallengerID, agg.Upheld)
	delete(c.escrowOf, ch.ChallengeID)
	return agg, nil
}

// Withdraw settles a challenger-initiated withdrawal (90% refund, 10%
// burn) before verification completes.
func (c *Coordinator) Withdraw(ctx context.Context, ch *Challenge) error {
	escrowID := c.escrowOf[ch.ChallengeID]
	ch.State = StateWithdrawn
	if err := c.settler.SettleWithdrawn(ctx, ch, escrowID); err != nil {
		return err
	}
	delete(c.escrowOf, ch.ChallengeID)
	return nil
}

func (c *Coordinator) IsLowQualityChallenger(challengerID string) bool {
	return c.abuse.IsLowQuality(challengerID)
}
