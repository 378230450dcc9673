package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/swarmmesh/substrate/pkg/plan"
)

// SyncState is a peer sync session's current phase, ported from
// sync_protocol.py's string sync_state values.
type SyncState string

const (
	SyncIdle       SyncState = "idle"
	SyncInProgress SyncState = "syncing"
	SyncFailed     SyncState = "failed"
)

// PeerState tracks one remote peer's sync session.
type PeerState struct {
	PeerID     string
	Address    string
	SyncState  SyncState
	OpsSynced  int
	LastSyncNs int64
}

// SyncCallback fetches a peer's current save data (its plan.Store.Save()
// output) on demand — in production this is a request/reply over pkg/bus;
// tests and in-process peers supply it directly.
type SyncCallback func(ctx context.Context) ([]byte, error)

type peerEntry struct {
	state    PeerState
	callback SyncCallback
}

// SyncManager drives CRDT sync of one local plan.Store against a set of
// registered peers, ported from original_source/src/plan/sync_protocol.py's
// SyncManager.
type SyncManager struct {
	store       *plan.Store
	localPeerID string

	mu    sync.Mutex
	peers map[string]*peerEntry
}

func NewSyncManager(store *plan.Store, localPeerID string) *SyncManager {
	return &SyncManager{
		store:       store,
		localPeerID: localPeerID,
		peers:       make(map[string]*peerEntry),
	}
}

// RegisterPeer adds a peer to sync with. Registering the local peer itself
// is a no-op, matching the "cannot sync with self" invariant.
func (m *SyncManager) RegisterPeer(peerID, address string, callback SyncCallback) {
	if peerID == m.localPeerID {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[peerID] = &peerEntry{
		state:    PeerState{PeerID: peerID, Address: address, SyncState: SyncIdle},
		callback: callback,
	}
}

// UnregisterPeer removes peerID from the tracked peer set.
func (m *SyncManager) UnregisterPeer(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, peerID)
}

// GetAllPeers lists registered peer ids.
func (m *SyncManager) GetAllPeers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.peers))
	for id := range m.peers {
		out = append(out, id)
	}
	return out
}

// GetPeerState returns peerID's tracked session state, if registered.
func (m *SyncManager) GetPeerState(peerID string) (PeerState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.peers[peerID]
	if !ok {
		return PeerState{}, false
	}
	return entry.state, true
}

// SyncWithPeer performs a full sync: fetches peerID's save data via its
// callback and merges it into the local store (G-Set union over ops,
// deterministic replay for derived state — see plan.Store.Merge).
func (m *SyncManager) SyncWithPeer(ctx context.Context, peerID string) (bool, error) {
	m.mu.Lock()
	entry, ok := m.peers[peerID]
	m.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("sync: peer %s not registered", peerID)
	}
	if entry.callback == nil {
		return false, fmt.Errorf("sync: peer %s has no sync callback", peerID)
	}

	peerData, err := entry.callback(ctx)
	if err != nil {
		m.markFailed(peerID)
		return false, fmt.Errorf("sync: fetch from peer %s: %w", peerID, err)
	}
	if err := m.store.Merge(peerData); err != nil {
		m.markFailed(peerID)
		return false, fmt.Errorf("sync: merge peer %s: %w", peerID, err)
	}

	m.mu.Lock()
	entry.state.SyncState = SyncIdle
	entry.state.LastSyncNs = time.Now().UnixNano()
	entry.state.OpsSynced++
	m.mu.Unlock()
	return true, nil
}

func (m *SyncManager) markFailed(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.peers[peerID]; ok {
		entry.state.SyncState = SyncFailed
	}
}

// IncrementalSync merges peerData into the local store and returns the
// local store's own save data in exchange, so a caller wiring two peers
// together over a request/reply transport can complete the round trip
// without a second call.
func (m *SyncManager) IncrementalSync(ctx context.Context, peerID string, peerData []byte) ([]byte, error) {
	m.mu.Lock()
	_, ok := m.peers[peerID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sync: peer %s not registered", peerID)
	}

	if err := m.store.Merge(peerData); err != nil {
		return nil, fmt.Errorf("sync: incremental merge from %s: %w", peerID, err)
	}
	return m.store.Save()
}

// SyncAllPeers syncs with every registered peer, continuing past
// individual failures and returning the first error encountered (if any)
// after all peers have been attempted.
func (m *SyncManager) SyncAllPeers(ctx context.Context) error {
	var firstErr error
	for _, peerID := range m.GetAllPeers() {
		if _, err := m.SyncWithPeer(ctx, peerID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetSyncStatus reports the manager's overall state for diagnostics.
func (m *SyncManager) GetSyncStatus() map[string]interface{} {
	m.mu.Lock()
	peerIDs := make([]string, 0, len(m.peers))
	for id := range m.peers {
		peerIDs = append(peerIDs, id)
	}
	m.mu.Unlock()

	totalOps, totalTasks := 0, 0
	if data, err := m.store.Save(); err == nil {
		var doc struct {
			Ops   []json.RawMessage          `json:"ops"`
			Tasks map[string]json.RawMessage `json:"tasks"`
		}
		if json.Unmarshal(data, &doc) == nil {
			totalOps = len(doc.Ops)
			totalTasks = len(doc.Tasks)
		}
	}

	return map[string]interface{}{
		"local_peer_id": m.localPeerID,
		"total_ops":     totalOps,
		"total_tasks":   totalTasks,
		"total_peers":   len(peerIDs),
		"peers":         peerIDs,
	}
}
