package shard

import (
	"sync"
	"time"
)

// heartbeatTimeout is the max staleness of a node's last heartbeat before
// health_check considers its shard unhealthy.
const heartbeatTimeout = 30 * time.Second

// NodeInfo is one worker node's registration within a shard.
type NodeInfo struct {
	NodeID          string
	ShardID         int
	Address         string
	Capabilities    []string
	LastHeartbeatNs int64
}

// ShardRegistry tracks which nodes serve which shards and their
// heartbeat-derived health, grounded on
// original_source/tests/test_shard_topology.py's TestShardRegistry.
type ShardRegistry struct {
	mu           sync.RWMutex
	Nodes        map[string]*NodeInfo
	shardMembers map[int]map[string]bool
}

func NewShardRegistry() *ShardRegistry {
	return &ShardRegistry{
		Nodes:        map[string]*NodeInfo{},
		shardMembers: map[int]map[string]bool{},
	}
}

// RegisterShard registers or updates a node's membership and capabilities
// within shardID.
func (r *ShardRegistry) RegisterShard(shardID int, nodeID, address string, capabilities []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Nodes[nodeID] = &NodeInfo{
		NodeID:          nodeID,
		ShardID:         shardID,
		Address:         address,
		Capabilities:    append([]string(nil), capabilities...),
		LastHeartbeatNs: time.Now().UnixNano(),
	}
	if _, ok := r.shardMembers[shardID]; !ok {
		r.shardMembers[shardID] = map[string]bool{}
	}
	r.shardMembers[shardID][nodeID] = true
}

// GetShardNodes returns every node registered to shardID.
func (r *ShardRegistry) GetShardNodes(shardID int) []*NodeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*NodeInfo
	for nodeID := range r.shardMembers[shardID] {
		if n, ok := r.Nodes[nodeID]; ok {
			out = append(out, n)
		}
	}
	return out
}

// UpdateHeartbeat refreshes nodeID's last-seen timestamp.
func (r *ShardRegistry) UpdateHeartbeat(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.Nodes[nodeID]; ok {
		n.LastHeartbeatNs = time.Now().UnixNano()
	}
}

// HealthCheck reports whether shardID has at least one node whose
// heartbeat is within heartbeatTimeout.
func (r *ShardRegistry) HealthCheck(shardID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UnixNano()
	for nodeID := range r.shardMembers[shardID] {
		n, ok := r.Nodes[nodeID]
		if !ok {
			continue
		}
		if time.Duration(now-n.LastHeartbeatNs) <= heartbeatTimeout {
			return true
		}
	}
	return false
}

// UnregisterNode removes nodeID from the registry and its shard.
func (r *ShardRegistry) UnregisterNode(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.Nodes[nodeID]
	if !ok {
		return
	}
	delete(r.Nodes, nodeID)
	if members, ok := r.shardMembers[n.ShardID]; ok {
		delete(members, nodeID)
	}
}

// GetShardCapabilities returns the union of capabilities advertised by
// every node registered to shardID.
func (r *ShardRegistry) GetShardCapabilities(shardID int) map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := map[string]bool{}
	for nodeID := range r.shardMembers[shardID] {
		n, ok := r.Nodes[nodeID]
		if !ok {
			continue
		}
		for _, cap := range n.Capabilities {
			out[cap] = true
		}
	}
	return out
}
