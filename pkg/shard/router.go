package shard

import (
	"fmt"
	"sync"
)

// CrossShardRouter resolves a NEED to its owning shard, routes to a
// healthy endpoint within it, and tracks the NEED's cross-shard
// dependencies, grounded on
// original_source/tests/test_shard_topology.py's TestCrossShardRouter.
type CrossShardRouter struct {
	topology *ShardTopology
	registry *ShardRegistry

	mu            sync.Mutex
	dependencies  map[string][]*DependencyEdge
	endpointCache map[int]string
}

func NewCrossShardRouter(topology *ShardTopology, registry *ShardRegistry) *CrossShardRouter {
	return &CrossShardRouter{
		topology:      topology,
		registry:      registry,
		dependencies:  map[string][]*DependencyEdge{},
		endpointCache: map[int]string{},
	}
}

// GetShardEndpoint returns a healthy node's address for shardID, caching
// the result until the shard is observed unhealthy.
func (r *CrossShardRouter) GetShardEndpoint(shardID int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ep, ok := r.endpointCache[shardID]; ok {
		if r.registry.HealthCheck(shardID) {
			return ep
		}
		delete(r.endpointCache, shardID)
		return ""
	}

	if !r.registry.HealthCheck(shardID) {
		return ""
	}
	nodes := r.registry.GetShardNodes(shardID)
	if len(nodes) == 0 {
		return ""
	}
	ep := nodes[0].Address
	r.endpointCache[shardID] = ep
	return ep
}

// RouteToShard resolves needID to its shard and a healthy endpoint within
// it, erroring if the shard has no healthy nodes.
func (r *CrossShardRouter) RouteToShard(needID string, payload map[string]interface{}) (int, string, error) {
	shardID := r.topology.GetShardForNeed(needID)
	endpoint := r.GetShardEndpoint(shardID)
	if endpoint == "" {
		return shardID, "", fmt.Errorf("shard %d has no healthy nodes", shardID)
	}
	return shardID, endpoint, nil
}

// TrackCrossShardDeps records needID's dependency on each depShard that
// is not needID's own source shard.
func (r *CrossShardRouter) TrackCrossShardDeps(needID string, depShards []int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	source := r.topology.GetShardForNeed(needID)
	for _, dep := range depShards {
		if dep == source {
			continue
		}
		r.dependencies[needID] = append(r.dependencies[needID], &DependencyEdge{
			FromShard: source,
			ToShard:   dep,
			NeedID:    needID,
		})
	}
}

// AddDependencyArtifact records an artifact ref against needID's
// dependency on depShard.
func (r *CrossShardRouter) AddDependencyArtifact(needID string, depShard int, artifactRef string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, dep := range r.dependencies[needID] {
		if dep.ToShard == depShard {
			dep.ArtifactRefs = append(dep.ArtifactRefs, artifactRef)
			return
		}
	}
}

// GetDependencies returns needID's tracked cross-shard dependencies.
func (r *CrossShardRouter) GetDependencies(needID string) []*DependencyEdge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*DependencyEdge(nil), r.dependencies[needID]...)
}

// ClearDependencies discards needID's tracked dependencies, used once its
// NEED fully completes.
func (r *CrossShardRouter) ClearDependencies(needID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.dependencies, needID)
}

// GetShardsWithCapability returns every shard with at least one node
// advertising capability.
func (r *CrossShardRouter) GetShardsWithCapability(capability string) []int {
	var out []int
	seen := map[int]bool{}
	for shardID := range r.registry.shardMembers {
		if seen[shardID] {
			continue
		}
		seen[shardID] = true
		if r.registry.GetShardCapabilities(shardID)[capability] {
			out = append(out, shardID)
		}
	}
	return out
}
