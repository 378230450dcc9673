package auction

import (
	"sync"
	"time"
)

const (
	bootstrapThreshold    = 10
	bootstrapSustainTime  = 24 * time.Hour
	bootstrapQuorum       = 1
	minNonBootstrapQuorum = 2
)

// QuorumTracker computes the effective DECIDE quorum from the live active
// verifier count, per spec.md §4.9's bootstrap-mode rule: below 10 active
// verifiers, quorum collapses to 1; otherwise
// K = min(K_target, max(2, floor(0.3*N))). Exiting bootstrap requires the
// count to stay at or above 10 for a full 24h, not just cross it once.
type QuorumTracker struct {
	mu               sync.Mutex
	kTarget          int
	clock            func() time.Time
	sustainedSinceNs int64 // 0 means "not currently sustaining >= threshold"
}

func NewQuorumTracker(kTarget int) *QuorumTracker {
	return &QuorumTracker{kTarget: kTarget, clock: time.Now}
}

func (q *QuorumTracker) WithClock(clock func() time.Time) *QuorumTracker {
	q.clock = clock
	return q
}

// Observe records the current active verifier count and returns the
// effective quorum and whether the system is still in bootstrap mode.
func (q *QuorumTracker) Observe(activeVerifiers int) (quorum int, bootstrap bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock().UnixNano()
	if activeVerifiers < bootstrapThreshold {
		q.sustainedSinceNs = 0
		return bootstrapQuorum, true
	}

	if q.sustainedSinceNs == 0 {
		q.sustainedSinceNs = now
	}
	if time.Duration(now-q.sustainedSinceNs) < bootstrapSustainTime {
		return bootstrapQuorum, true
	}

	k := int(0.3 * float64(activeVerifiers))
	if k < minNonBootstrapQuorum {
		k = minNonBootstrapQuorum
	}
	if k > q.kTarget {
		k = q.kTarget
	}
	return k, false
}

// ChallengeRewardMultiplier returns 2.0 while in bootstrap mode, 1.0
// otherwise, per spec.md §4.9's "challenge rewards are 2x during
// bootstrap".
func ChallengeRewardMultiplier(bootstrap bool) float64 {
	if bootstrap {
		return 2.0
	}
	return 1.0
}
