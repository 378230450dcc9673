package stake

import (
	"sync"
	"time"
)

// Reputation event deltas, grounded on
// original_source/tests/test_reputation_integration.py's assertions.
const (
	DeltaAttestationPass   = 0.05
	DeltaAttestationFailed = -0.3
	DeltaChallengeSuccess  = 0.1
	DeltaChallengeFailed   = -0.2
)

const (
	initialReputation = 0.5
	minReputation      = 0.0
	maxReputation      = 1.0
)

// ReputationEvent is one entry in a DID's reputation history.
type ReputationEvent struct {
	DID       string
	TaskID    string
	Kind      string // "attestation_pass", "attestation_failed", "challenge_success", "challenge_failed"
	Delta     float64
	Resulting float64
	At        time.Time
}

// ReputationTracker maintains reputation scores keyed by DID (not verifier
// instance), so a score survives deregister/re-register at the pool layer
// per spec.md §4.4. Every change updates the running score and is then
// appended, with the resulting score, to a per-DID history.
type ReputationTracker struct {
	mu      sync.Mutex
	scores  map[string]float64
	history map[string][]ReputationEvent
	clock   func() time.Time
}

func NewReputationTracker() *ReputationTracker {
	return &ReputationTracker{
		scores:  make(map[string]float64),
		history: make(map[string][]ReputationEvent),
		clock:   time.Now,
	}
}

func (r *ReputationTracker) WithClock(clock func() time.Time) *ReputationTracker {
	r.clock = clock
	return r
}

// Get returns a DID's current reputation, defaulting new DIDs to
// initialReputation (neutral standing) rather than zero.
func (r *ReputationTracker) Get(did string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(did)
}

func (r *ReputationTracker) getLocked(did string) float64 {
	score, ok := r.scores[did]
	if !ok {
		return initialReputation
	}
	return score
}

func (r *ReputationTracker) apply(did, taskID, kind string, delta float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	score := r.getLocked(did) + delta
	if score < minReputation {
		score = minReputation
	}
	if score > maxReputation {
		score = maxReputation
	}
	r.scores[did] = score
	r.history[did] = append(r.history[did], ReputationEvent{
		DID: did, TaskID: taskID, Kind: kind, Delta: delta, Resulting: score, At: r.clock(),
	})
	return score
}

// RecordAttestation applies DeltaAttestationPass or DeltaAttestationFailed
// depending on verdict.
func (r *ReputationTracker) RecordAttestation(did, taskID string, verdict bool) float64 {
	if verdict {
		return r.apply(did, taskID, "attestation_pass", DeltaAttestationPass)
	}
	return r.apply(did, taskID, "attestation_failed", DeltaAttestationFailed)
}

// RecordChallenge applies DeltaChallengeSuccess or DeltaChallengeFailed
// depending on whether the challenge was upheld against the verifier.
func (r *ReputationTracker) RecordChallenge(did, taskID string, upheld bool) float64 {
	if upheld {
		return r.apply(did, taskID, "challenge_success", DeltaChallengeSuccess)
	}
	return r.apply(did, taskID, "challenge_failed", DeltaChallengeFailed)
}

// History returns a DID's full reputation event history, oldest first.
func (r *ReputationTracker) History(did string) []ReputationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ReputationEvent, len(r.history[did]))
	copy(out, r.history[did])
	return out
}
