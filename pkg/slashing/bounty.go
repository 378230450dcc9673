package slashing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmmesh/substrate/pkg/ledger"
)

// TaskClass scopes a bounty's maximum payout, per spec.md §4.11.
type TaskClass string

const (
	TaskSimple   TaskClass = "SIMPLE"
	TaskComplex  TaskClass = "COMPLEX"
	TaskCritical TaskClass = "CRITICAL"
)

var BountyCaps = map[TaskClass]int64{
	TaskSimple:   10,
	TaskComplex:  100,
	TaskCritical: 1000,
}

// BountyStatus is a bounty's lifecycle stage.
type BountyStatus string

const (
	BountyCreated     BountyStatus = "CREATED"
	BountyEscrowed    BountyStatus = "ESCROWED"
	BountyDistributed BountyStatus = "DISTRIBUTED"
	BountyCancelled   BountyStatus = "CANCELLED"
)

var (
	ErrBountyExceedsCapacity = errors.New("slashing: bounty amount exceeds task class cap")
	ErrBountyNotFound        = errors.New("slashing: bounty not found")
	ErrBountyWrongStatus     = errors.New("slashing: bounty is not in the expected status")
	ErrDistributionExceeds   = errors.New("slashing: distribution total exceeds bounty amount")
)

// BountyRecord is one task's bounty through its full lifecycle.
type BountyRecord struct {
	BountyID      string
	TaskID        string
	Amount        int64
	TaskClass     TaskClass
	CreatorID     string
	EscrowID      string
	CreatedAt     time.Time
	EscrowedAt    time.Time
	DistributedAt time.Time
	Status        BountyStatus
}

// BountyManager tracks bounty creation, escrow, distribution, and
// cancellation. Bounties are held as self-escrows on the creator (the
// same trick pkg/stake and pkg/challenge use), with a default escrow
// duration of 2x the challenge window, per bounties.py's
// "escrow_duration_hours = 2 * challenge_window_hours".
type BountyManager struct {
	mu              sync.Mutex
	ledger          ledger.Ledger
	challengeWindow time.Duration
	bounties        map[string]*BountyRecord
	byTask          map[string]string // taskID -> most recent bountyID
	clock           func() time.Time
}

func NewBountyManager(l ledger.Ledger, challengeWindow time.Duration) *BountyManager {
	if challengeWindow <= 0 {
		challengeWindow = 24 * time.Hour
	}
	return &BountyManager{
		ledger:          l,
		challengeWindow: challengeWindow,
		bounties:        make(map[string]*BountyRecord),
		byTask:          make(map[string]string),
		clock:           time.Now,
	}
}

func (m *BountyManager) WithClock(clock func() time.Time) *BountyManager {
	m.clock = clock
	return m
}

func (m *BountyManager) escrowDuration() time.Duration {
	return 2 * m.challengeWindow
}

// CreateBounty registers a new bounty, validating the amount against
// its task class's cap.
func (m *BountyManager) CreateBounty(taskID string, amount int64, class TaskClass, creatorID string) (string, error) {
	cap, ok := BountyCaps[class]
	if !ok {
		return "", fmt.Errorf("slashing: unknown task class %q", class)
	}
	if amount <= 0 {
		return "", fmt.Errorf("slashing: bounty amount must be positive, got %d", amount)
	}
	if amount > cap {
		return "", fmt.Errorf("%w: %d > %d for %s", ErrBountyExceedsCapacity, amount, cap, class)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := "bounty-" + uuid.NewString()
	rec := &BountyRecord{
		BountyID: id, TaskID: taskID, Amount: amount, TaskClass: class,
		CreatorID: creatorID, CreatedAt: m.clock(), Status: BountyCreated,
	}
	m.bounties[id] = rec
	m.byTask[taskID] = id
	return id, nil
}

// EscrowBounty locks the bounty's funds via a self-escrow on the creator.
func (m *BountyManager) EscrowBounty(ctx context.Context, bountyID string) (string, error) {
	m.mu.Lock()
	rec, ok := m.bounties[bountyID]
	if !ok {
		m.mu.Unlock()
		return "", ErrBountyNotFound
	}
	if rec.Status != BountyCreated {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: bounty %s is %s", ErrBountyWrongStatus, bountyID, rec.Status)
	}
	creatorID, amount, taskID := rec.CreatorID, rec.Amount, rec.TaskID
	m.mu.Unlock()

	escrowID := "bounty-escrow-" + uuid.NewString()
	if _, err := m.ledger.CreateEscrow(ctx, escrowID, creatorID, creatorID, amount, taskID, m.escrowDuration()); err != nil {
		return "", fmt.Errorf("slashing: escrow bounty %s: %w", bountyID, err)
	}

	m.mu.Lock()
	rec.EscrowID = escrowID
	rec.EscrowedAt = m.clock()
	rec.Status = BountyEscrowed
	m.mu.Unlock()
	return escrowID, nil
}

// Distribute pays out an escrowed bounty to recipients (account ->
// amount), burning any undistributed remainder. The self-escrow is
// released in full to the creator's Available balance, then transferred
// out per recipient; any leftover is re-locked and burned, mirroring
// pkg/challenge.Settler.SettleWithdrawn's release-then-relock dance.
func (m *BountyManager) Distribute(ctx context.Context, bountyID string, recipients map[string]int64) error {
	m.mu.Lock()
	rec, ok := m.bounties[bountyID]
	if !ok {
		m.mu.Unlock()
		return ErrBountyNotFound
	}
	if rec.Status != BountyEscrowed {
		m.mu.Unlock()
		return fmt.Errorf("%w: bounty %s is %s", ErrBountyWrongStatus, bountyID, rec.Status)
	}
	escrowID, creatorID, amount, taskID := rec.EscrowID, rec.CreatorID, rec.Amount, rec.TaskID
	m.mu.Unlock()

	var totalDistributed int64
	for _, v := range recipients {
		totalDistributed += v
	}
	if totalDistributed > amount {
		return fmt.Errorf("%w: %d > %d", ErrDistributionExceeds, totalDistributed, amount)
	}

	if len(recipients) == 0 {
		if _, err := m.ledger.CancelEscrow(ctx, escrowID); err != nil {
			return fmt.Errorf("slashing: cancel empty-recipient bounty %s: %w", bountyID, err)
		}
	} else {
		if _, err := m.ledger.ReleaseEscrow(ctx, escrowID); err != nil {
			return fmt.Errorf("slashing: release bounty escrow %s: %w", bountyID, err)
		}
		for recipient, share := range recipients {
			if share <= 0 {
				continue
			}
			if recipient == creatorID {
				continue // already sitting in creator's Available from the release
			}
			if err := m.ledger.Transfer(ctx, creatorID, recipient, share); err != nil {
				return fmt.Errorf("slashing: pay bounty recipient %s: %w", recipient, err)
			}
		}
		if burnAmount := amount - totalDistributed; burnAmount > 0 {
			relockID := "bounty-burn-" + uuid.NewString()
			if _, err := m.ledger.CreateEscrow(ctx, relockID, creatorID, creatorID, burnAmount, taskID, 0); err != nil {
				return fmt.Errorf("slashing: relock bounty burn remainder: %w", err)
			}
			if err := m.ledger.Burn(ctx, creatorID, burnAmount, "bounty_remainder:"+bountyID); err != nil {
				return fmt.Errorf("slashing: burn bounty remainder: %w", err)
			}
		}
	}

	m.mu.Lock()
	rec.DistributedAt = m.clock()
	rec.Status = BountyDistributed
	m.mu.Unlock()
	return nil
}

// Cancel returns escrowed bounty funds to the creator.
func (m *BountyManager) Cancel(ctx context.Context, bountyID string) error {
	m.mu.Lock()
	rec, ok := m.bounties[bountyID]
	if !ok {
		m.mu.Unlock()
		return ErrBountyNotFound
	}
	escrowID, status := rec.EscrowID, rec.Status
	m.mu.Unlock()

	if status == BountyEscrowed && escrowID != "" {
		if _, err := m.ledger.CancelEscrow(ctx, escrowID); err != nil {
			return fmt.Errorf("slashing: cancel bounty %s: %w", bountyID, err)
		}
	}

	m.mu.Lock()
	rec.Status = BountyCancelled
	m.mu.Unlock()
	return nil
}

func (m *BountyManager) Get(bountyID string) (BountyRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.bounties[bountyID]
	if !ok {
		return BountyRecord{}, false
	}
	return *rec, true
}

func (m *BountyManager) GetByTask(taskID string) (BountyRecord, bool) {
	m.mu.Lock()
	id, ok := m.byTask[taskID]
	m.mu.Unlock()
	if !ok {
		return BountyRecord{}, false
	}
	return m.Get(id)
}
