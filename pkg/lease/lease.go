// Package lease implements exclusive task leases with heartbeat-based
// liveness (spec.md §4.8), grounded on
// original_source/src/leases/{manager,heartbeat}.py.
package lease

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swarmmesh/substrate/pkg/plan"
	"github.com/swarmmesh/substrate/pkg/swarmerr"
)

var (
	ErrLeaseNotFound  = errors.New("lease: not found")
	ErrWorkerMismatch = errors.New("lease: held by a different worker")
)

// Record is a single lease. TTL and heartbeat interval are expressed in
// seconds (as published over the bus); timestamps are nanoseconds.
type Record struct {
	LeaseID           string
	TaskID            string
	WorkerID          string
	TTLSeconds        int64
	CreatedNs         int64
	LastHeartbeatNs   int64
	HeartbeatInterval int64
}

func (r Record) expired(nowNs int64) bool {
	return nowNs > r.CreatedNs+r.TTLSeconds*1_000_000_000
}

func (r Record) heartbeatMissed(nowNs int64) bool {
	return nowNs > r.LastHeartbeatNs+r.HeartbeatInterval*1_000_000_000
}

// ReleaseReason identifies why a lease ended.
type ReleaseReason string

const (
	ReasonHeartbeatMiss  ReleaseReason = "heartbeat_miss"
	ReasonTimeout        ReleaseReason = "timeout"
	ReasonVoluntaryYield ReleaseReason = "voluntary_yield"
)

// Manager tracks lease lifecycle in memory and reflects every release
// into the CRDT plan store (ANNOTATE(release) + STATE=DRAFT), the sole
// source of truth other components observe.
type Manager struct {
	mu      sync.Mutex
	leases  map[string]*Record
	plan    *plan.Store
	actorID string // identity stamped on the plan ops this manager writes
	clock   func() time.Time
}

func NewManager(planStore *plan.Store, actorID string) *Manager {
	return &Manager{
		leases:  make(map[string]*Record),
		plan:    planStore,
		actorID: actorID,
		clock:   time.Now,
	}
}

func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// CreateLease grants taskID to workerID exclusively, rejecting the
// request if another worker already holds a non-expired lease on the
// same task (spec.md §4.8's exclusivity invariant).
func (m *Manager) CreateLease(taskID, workerID string, ttlSeconds, hbIntervalSeconds int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock().UnixNano()
	for _, r := range m.leases {
		if r.TaskID == taskID && r.WorkerID != workerID && !r.expired(now) {
			return "", swarmerr.Wrap(swarmerr.WorkerMismatch, fmt.Errorf("%w: task %s held by %s", ErrWorkerMismatch, taskID, r.WorkerID))
		}
	}

	id := uuid.NewString()
	m.leases[id] = &Record{
		LeaseID: id, TaskID: taskID, WorkerID: workerID,
		TTLSeconds: ttlSeconds, CreatedNs: now, LastHeartbeatNs: now,
		HeartbeatInterval: hbIntervalSeconds,
	}
	return id, nil
}

// Heartbeat refreshes a lease's liveness clock.
func (m *Manager) Heartbeat(leaseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.leases[leaseID]
	if !ok {
		return swarmerr.Wrap(swarmerr.LeaseNotFound, ErrLeaseNotFound)
	}
	r.LastHeartbeatNs = m.clock().UnixNano()
	return nil
}

// Get returns a lease by id.
func (m *Manager) Get(leaseID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.leases[leaseID]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// ForWorker returns every lease currently held by workerID.
func (m *Manager) ForWorker(workerID string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, r := range m.leases {
		if r.WorkerID == workerID {
			out = append(out, *r)
		}
	}
	return out
}

// HeldByOther reports whether taskID is currently exclusively held by a
// worker other than requestingWorkerID, with a non-expired lease. Ingress
// uses this to reject a worker's ATTEST against a task it doesn't hold.
func (m *Manager) HeldByOther(taskID, requestingWorkerID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock().UnixNano()
	for _, r := range m.leases {
		if r.TaskID == taskID && r.WorkerID != requestingWorkerID && !r.expired(now) {
			return true
		}
	}
	return false
}

// Release ends a lease for reason, appending ANNOTATE(release=reason) and
// STATE=DRAFT ops to the plan store before forgetting the lease.
func (m *Manager) Release(leaseID string, reason ReleaseReason) error {
	m.mu.Lock()
	r, ok := m.leases[leaseID]
	if !ok {
		m.mu.Unlock()
		return swarmerr.Wrap(swarmerr.LeaseNotFound, ErrLeaseNotFound)
	}
	delete(m.leases, leaseID)
	m.mu.Unlock()

	m.writeReleaseOps(r, reason)
	return nil
}

// Yield is a worker's voluntary release, same effect as Release with
// reason=voluntary_yield.
func (m *Manager) Yield(leaseID string) error {
	return m.Release(leaseID, ReasonVoluntaryYield)
}

func (m *Manager) writeReleaseOps(r *Record, reason ReleaseReason) {
	now := m.clock()
	lamportBase := uint64(now.UnixNano())
	m.plan.AppendOp(plan.PlanOp{
		OpID: uuid.NewString(), ThreadID: r.TaskID, Lamport: lamportBase, ActorID: m.actorID,
		OpType: plan.OpAnnotate, TaskID: r.TaskID,
		Payload: map[string]interface{}{"release": string(reason), "lease_id": r.LeaseID},
		TsNs:    now.UnixNano(),
	})
	m.plan.AppendOp(plan.PlanOp{
		OpID: uuid.NewString(), ThreadID: r.TaskID, Lamport: lamportBase + 1, ActorID: m.actorID,
		OpType: plan.OpState, TaskID: r.TaskID,
		Payload: map[string]interface{}{"state": string(plan.StateDraft)},
		TsNs:    now.UnixNano(),
	})
}

// ScanExpired returns every lease that has crossed its hard TTL or missed
// a heartbeat, releasing each with the matching reason. Intended to be
// called periodically by RunDaemon.
func (m *Manager) ScanExpired() []string {
	m.mu.Lock()
	now := m.clock().UnixNano()
	var toRelease []struct {
		id     string
		reason ReleaseReason
	}
	for id, r := range m.leases {
		switch {
		case r.expired(now):
			toRelease = append(toRelease, struct {
				id     string
				reason ReleaseReason
			}{id, ReasonTimeout})
		case r.heartbeatMissed(now):
			toRelease = append(toRelease, struct {
				id     string
				reason ReleaseReason
			}{id, ReasonHeartbeatMiss})
		}
	}
	m.mu.Unlock()

	var released []string
	for _, x := range toRelease {
		if err := m.Release(x.id, x.reason); err == nil {
			released = append(released, x.id)
		}
	}
	return released
}
