package shard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

// ErrEscrowNotFound and ErrEscrowAlreadyReleased mirror spec.md §7's
// error-kind vocabulary (EscrowNotFound, EscrowAlreadyReleased) at this
// layer; every return site below wraps them through pkg/swarmerr so a
// caller three layers up can still classify the failure by Kind without
// importing this package.
var (
	ErrEscrowNotFound        = errors.New("shard: escrow not found")
	ErrEscrowAlreadyReleased = errors.New("shard: escrow already released")
	ErrEscrowExpired         = errors.New("shard: escrow expired")
)

// ArtifactEscrowState is the lifecycle state of a cross-shard artifact
// escrow (P8 Cross-Shard Atomicity).
type ArtifactEscrowState string

const (
	ArtifactPending  ArtifactEscrowState = "PENDING"
	ArtifactReleased ArtifactEscrowState = "RELEASED"
	ArtifactExpired  ArtifactEscrowState = "EXPIRED"
)

// ArtifactEscrow gates a cross-shard artifact on every declared
// dependent shard signaling ready before a TTL deadline.
type ArtifactEscrow struct {
	ID          string
	NeedID      string
	ArtifactRef string
	DepShards   []int
	signaled    map[int]bool
	State       ArtifactEscrowState
	CreatedAt   time.Time
	TTL         time.Duration
}

func newArtifactEscrow(id, needID, artifactRef string, depShards []int, ttl time.Duration, now time.Time) *ArtifactEscrow {
	return &ArtifactEscrow{
		ID:          id,
		NeedID:      needID,
		ArtifactRef: artifactRef,
		DepShards:   append([]int(nil), depShards...),
		signaled:    map[int]bool{},
		State:       ArtifactPending,
		CreatedAt:   now,
		TTL:         ttl,
	}
}

// Deadline is the instant this escrow auto-expires if still pending.
func (e *ArtifactEscrow) Deadline() time.Time { return e.CreatedAt.Add(e.TTL) }

// Ready reports whether every declared dependent shard has signaled.
func (e *ArtifactEscrow) Ready() bool {
	for _, shard := range e.DepShards {
		if !e.signaled[shard] {
			return false
		}
	}
	return true
}

// EscrowManager tracks in-flight ArtifactEscrows and releases or expires
// them as dependent shards signal or TTLs elapse. RunMonitor scans at a
// fixed interval in the background, matching pkg/lease.Manager.RunDaemon's
// heartbeat-scan-daemon shape.
type EscrowManager struct {
	mu      sync.Mutex
	escrows map[string]*ArtifactEscrow
}

func NewEscrowManager() *EscrowManager {
	return &EscrowManager{escrows: map[string]*ArtifactEscrow{}}
}

// CreateEscrow opens a new pending escrow for needID's artifact, gated on
// depShards signaling ready within ttl.
func (m *EscrowManager) CreateEscrow(id, needID, artifactRef string, depShards []int, ttl time.Duration) *ArtifactEscrow {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := newArtifactEscrow(id, needID, artifactRef, depShards, ttl, time.Now())
	m.escrows[id] = e
	return e
}

// SignalReady marks depShard as ready for escrow escrowID. If every
// declared dependency is now ready, the escrow is released.
func (m *EscrowManager) SignalReady(escrowID string, depShard int) (*ArtifactEscrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.escrows[escrowID]
	if !ok {
		return nil, swarmerr.Wrap(swarmerr.EscrowNotFound, ErrEscrowNotFound)
	}
	if e.State != ArtifactPending {
		return e, nil
	}

	e.signaled[depShard] = true
	if e.Ready() {
		e.State = ArtifactReleased
	}
	return e, nil
}

// Release force-releases an escrow, erroring if it is not pending
// (already released, per spec.md §7's "released at most once", or
// already expired).
func (m *EscrowManager) Release(escrowID string) (*ArtifactEscrow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.escrows[escrowID]
	if !ok {
		return nil, swarmerr.Wrap(swarmerr.EscrowNotFound, ErrEscrowNotFound)
	}
	switch e.State {
	case ArtifactReleased:
		return nil, swarmerr.Wrap(swarmerr.EscrowAlreadyReleased, ErrEscrowAlreadyReleased)
	case ArtifactExpired:
		return nil, ErrEscrowExpired
	}
	e.State = ArtifactReleased
	return e, nil
}

// Get returns the escrow for escrowID, or nil if unknown.
func (m *EscrowManager) Get(escrowID string) *ArtifactEscrow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escrows[escrowID]
}

// ScanExpired expires every still-pending escrow whose TTL has elapsed,
// returning the newly expired ones.
func (m *EscrowManager) ScanExpired() []*ArtifactEscrow {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var expired []*ArtifactEscrow
	for _, e := range m.escrows {
		if e.State == ArtifactPending && now.After(e.Deadline()) {
			e.State = ArtifactExpired
			expired = append(expired, e)
		}
	}
	return expired
}

// RunMonitor scans for expired escrows at a fixed interval until ctx is
// cancelled.
func (m *EscrowManager) RunMonitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ScanExpired()
		}
	}
}
