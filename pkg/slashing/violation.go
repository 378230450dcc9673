// Package slashing implements violation penalties and bounty payout
// (spec.md §4.11), grounded on
// original_source/src/economics/{slashing,bounties}.py.
package slashing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/swarmmesh/substrate/pkg/stake"
)

// ViolationType is a slashable offense, per spec.md §4.11.
type ViolationType string

const (
	ViolationFailedChallenge ViolationType = "FAILED_CHALLENGE"
	ViolationMissedHeartbeat ViolationType = "MISSED_HEARTBEAT"
	ViolationPolicyViolation ViolationType = "POLICY_VIOLATION"
)

var ErrInvalidSeverity = errors.New("slashing: severity must be 0-10")

// SlashEvent is an immutable record of one executed slash, carrying an
// evidence hash so the penalty can be independently audited.
type SlashEvent struct {
	EventID      string
	AccountID    string
	Reason       ViolationType
	Amount       int64
	EvidenceHash string
	Severity     int
	At           time.Time
}

// fraction computes the slash fraction of current stake for a
// violation at the given severity (0-10), per spec.md §4.11:
// FAILED_CHALLENGE=0.50, MISSED_HEARTBEAT=0.01*severity (cap 0.10),
// POLICY_VIOLATION=0.10*(1+severity/10).
func fraction(vt ViolationType, severity int) float64 {
	switch vt {
	case ViolationFailedChallenge:
		return 0.5
	case ViolationMissedHeartbeat:
		s := severity
		if s > 10 {
			s = 10
		}
		return float64(s) * 0.01
	case ViolationPolicyViolation:
		return 0.10 * (1.0 + float64(severity)/10.0)
	default:
		return 0
	}
}

// Slasher calculates and executes penalties against staked accounts,
// wiring pkg/stake.Manager's already partial-if-insufficient Slash for
// the actual burn.
type Slasher struct {
	stake *stake.Manager
	clock func() time.Time
}

func NewSlasher(s *stake.Manager) *Slasher {
	return &Slasher{stake: s, clock: time.Now}
}

func (s *Slasher) WithClock(clock func() time.Time) *Slasher {
	s.clock = clock
	return s
}

// CalculateSlashAmount returns the credits to slash for a violation
// against account's current staked balance.
func (s *Slasher) CalculateSlashAmount(accountID string, vt ViolationType, severity int) (int64, error) {
	if severity < 0 || severity > 10 {
		return 0, ErrInvalidSeverity
	}
	staked := s.stake.GetStakedAmount(accountID)
	return int64(float64(staked) * fraction(vt, severity)), nil
}

// Execute slashes accountID for the given violation and returns the
// resulting event (Amount reflects the actual, possibly partial, burn).
func (s *Slasher) Execute(ctx context.Context, accountID string, vt ViolationType, severity int, evidenceHash string) (SlashEvent, error) {
	target, err := s.CalculateSlashAmount(accountID, vt, severity)
	if err != nil {
		return SlashEvent{}, err
	}
	actual := target
	if target > 0 {
		actual, err = s.stake.Slash(ctx, accountID, target, string(vt))
		if err != nil {
			return SlashEvent{}, fmt.Errorf("slashing: execute %s on %s: %w", vt, accountID, err)
		}
	}
	return SlashEvent{
		EventID:      "slash-" + uuid.NewString(),
		AccountID:    accountID,
		Reason:       vt,
		Amount:       actual,
		EvidenceHash: evidenceHash,
		Severity:     severity,
		At:           s.clock(),
	}, nil
}
