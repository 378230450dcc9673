// Package sync implements peer-to-peer state synchronization between swarm
// nodes (spec.md §4.13): CRDT op-log sync over pkg/plan's Store, checkpoint-
// based fast sync for nodes far behind, and peer discovery, grounded on
// original_source/src/plan/{sync_protocol,peer_discovery}.py and
// original_source/src/checkpoint/sync.py.
package sync

import (
	"sync"
	"time"
)

// PeerInfo describes a discovered peer: its address and advertised
// capability tags, ported from peer_discovery.py's PeerInfo.
type PeerInfo struct {
	PeerID       string
	Address      string
	Capabilities []string
	DiscoveredAt time.Time
}

// HasCapability reports whether info advertises tag.
func (info PeerInfo) HasCapability(tag string) bool {
	for _, c := range info.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// PeerDiscovery tracks peers announced on the bus, independent of any
// particular sync session, so SyncManager and the auction/lease subsystems
// can share one discovered-peer directory.
type PeerDiscovery struct {
	localPeerID  string
	localAddress string
	capabilities []string
	mu           sync.RWMutex
	discovered   map[string]PeerInfo
}

// NewPeerDiscovery creates a discovery tracker for the local peer.
func NewPeerDiscovery(localPeerID, localAddress string, capabilities []string) *PeerDiscovery {
	return &PeerDiscovery{
		localPeerID:  localPeerID,
		localAddress: localAddress,
		capabilities: capabilities,
		discovered:   make(map[string]PeerInfo),
	}
}

func (d *PeerDiscovery) LocalPeerID() string    { return d.localPeerID }
func (d *PeerDiscovery) LocalAddress() string   { return d.localAddress }
func (d *PeerDiscovery) Capabilities() []string { return append([]string(nil), d.capabilities...) }

// AddDiscoveredPeer records info, unless it describes the local peer itself.
func (d *PeerDiscovery) AddDiscoveredPeer(info PeerInfo) {
	if info.PeerID == d.localPeerID {
		return
	}
	if info.DiscoveredAt.IsZero() {
		info.DiscoveredAt = time.Now()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.discovered[info.PeerID] = info
}

// GetAllPeers returns every discovered peer.
func (d *PeerDiscovery) GetAllPeers() []PeerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]PeerInfo, 0, len(d.discovered))
	for _, info := range d.discovered {
		out = append(out, info)
	}
	return out
}

// GetPeersWithCapability filters discovered peers advertising tag.
func (d *PeerDiscovery) GetPeersWithCapability(tag string) []PeerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []PeerInfo
	for _, info := range d.discovered {
		if info.HasCapability(tag) {
			out = append(out, info)
		}
	}
	return out
}

// GetDiscoveryStatus summarizes discovery state for diagnostics/status
// endpoints.
func (d *PeerDiscovery) GetDiscoveryStatus() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	peers := make(map[string]interface{}, len(d.discovered))
	for id, info := range d.discovered {
		peers[id] = map[string]interface{}{
			"address":      info.Address,
			"capabilities": info.Capabilities,
		}
	}
	return map[string]interface{}{
		"local_peer_id":    d.localPeerID,
		"discovered_peers": len(d.discovered),
		"peers":            peers,
	}
}
