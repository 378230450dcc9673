// Package shard implements cross-shard dependency tracking (spec.md
// §4.15): a dependency DAG over shard IDs with topo-sort and deadlock
// detection, consistent-hash shard topology, a node registry with
// heartbeat-based health, a cross-shard router, and TTL-bound artifact
// escrow (P8 Cross-Shard Atomicity). Grounded on
// original_source/tests/test_cross_shard_deps.py and
// test_shard_topology.py (original_source/src/sharding/ did not survive
// distillation into the retrieval pack).
package shard

import (
	"errors"
	"sort"
)

// ErrCycleDetected mirrors pkg/plan's sentinel for the same failure mode
// one layer up: a cross-shard dependency edge would close a cycle.
var ErrCycleDetected = errors.New("shard: cycle detected")

// DependencyEdge records one cross-shard NEED dependency: shard fromShard
// will not complete until shard toShard signals ready.
type DependencyEdge struct {
	FromShard    int
	ToShard      int
	NeedID       string
	ArtifactRefs []string
}

// DependencyDAG tracks cross-shard completion ordering. Multiple NEEDs may
// induce the same edge; in-degree counts every NEED, not every distinct
// edge, matching test_cross_shard_deps.py's
// test_multiple_needs_same_dependency.
type DependencyDAG struct {
	Edges        []DependencyEdge
	graph        map[int]map[int]bool
	reverseGraph map[int]map[int]bool
	inDegree     map[int]int
	completed    map[int]bool
}

func NewDependencyDAG() *DependencyDAG {
	return &DependencyDAG{
		graph:        map[int]map[int]bool{},
		reverseGraph: map[int]map[int]bool{},
		inDegree:     map[int]int{},
		completed:    map[int]bool{},
	}
}

func (d *DependencyDAG) ensure(shard int) {
	if _, ok := d.graph[shard]; !ok {
		d.graph[shard] = map[int]bool{}
	}
	if _, ok := d.reverseGraph[shard]; !ok {
		d.reverseGraph[shard] = map[int]bool{}
	}
	if _, ok := d.inDegree[shard]; !ok {
		d.inDegree[shard] = 0
	}
}

// AddDependency records that fromShard depends on toShard for needID.
func (d *DependencyDAG) AddDependency(fromShard, toShard int, needID string) {
	d.ensure(fromShard)
	d.ensure(toShard)

	d.Edges = append(d.Edges, DependencyEdge{FromShard: fromShard, ToShard: toShard, NeedID: needID})
	d.graph[fromShard][toShard] = true
	d.reverseGraph[toShard][fromShard] = true
	d.inDegree[fromShard]++
}

// Graph returns the direct-dependency set for a shard (read-only snapshot).
func (d *DependencyDAG) Graph(shard int) map[int]bool { return d.graph[shard] }

// InDegree returns the recorded in-degree (edge count, not distinct
// dependency count) for a shard.
func (d *DependencyDAG) InDegree(shard int) int { return d.inDegree[shard] }

// GetReadyShards returns shards with in-degree 0 that have not yet been
// marked complete, sorted for deterministic iteration.
func (d *DependencyDAG) GetReadyShards() []int {
	var ready []int
	for shard, deg := range d.inDegree {
		if deg == 0 && !d.completed[shard] {
			ready = append(ready, shard)
		}
	}
	sort.Ints(ready)
	return ready
}

// MarkShardComplete marks shard complete and decrements the in-degree of
// every dependent shard, returning those newly made ready (in-degree
// reaches 0).
func (d *DependencyDAG) MarkShardComplete(shard int) []int {
	d.completed[shard] = true

	var newlyReady []int
	dependents := make([]int, 0, len(d.reverseGraph[shard]))
	for dep := range d.reverseGraph[shard] {
		dependents = append(dependents, dep)
	}
	sort.Ints(dependents)

	for _, dep := range dependents {
		edgeCount := 0
		for _, e := range d.Edges {
			if e.FromShard == dep && e.ToShard == shard {
				edgeCount++
			}
		}
		d.inDegree[dep] -= edgeCount
		if d.inDegree[dep] <= 0 && !d.completed[dep] {
			newlyReady = append(newlyReady, dep)
		}
	}
	return newlyReady
}

// GetDependencies returns the distinct set of shards shard depends on.
func (d *DependencyDAG) GetDependencies(shard int) map[int]bool {
	out := make(map[int]bool, len(d.graph[shard]))
	for dep := range d.graph[shard] {
		out[dep] = true
	}
	return out
}

// GetDependents returns the distinct set of shards that depend on shard.
func (d *DependencyDAG) GetDependents(shard int) map[int]bool {
	out := make(map[int]bool, len(d.reverseGraph[shard]))
	for dep := range d.reverseGraph[shard] {
		out[dep] = true
	}
	return out
}

// GetBlockingShards returns the dependencies of shard that have not yet
// completed.
func (d *DependencyDAG) GetBlockingShards(shard int) map[int]bool {
	out := map[int]bool{}
	for dep := range d.graph[shard] {
		if !d.completed[dep] {
			out[dep] = true
		}
	}
	return out
}

// TopoSortShards returns all tracked shards in dependency order (a
// dependency appears before its dependents), or nil if the graph
// contains a cycle.
func (d *DependencyDAG) TopoSortShards() []int {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[int]int{}
	var order []int
	cyclic := false

	var visit func(int)
	visit = func(n int) {
		if cyclic {
			return
		}
		color[n] = gray
		deps := make([]int, 0, len(d.graph[n]))
		for dep := range d.graph[n] {
			deps = append(deps, dep)
		}
		sort.Ints(deps)
		for _, dep := range deps {
			switch color[dep] {
			case white:
				visit(dep)
			case gray:
				cyclic = true
				return
			}
			if cyclic {
				return
			}
		}
		color[n] = black
		order = append(order, n)
	}

	var shards []int
	for s := range d.graph {
		shards = append(shards, s)
	}
	sort.Ints(shards)
	for _, s := range shards {
		if color[s] == white {
			visit(s)
			if cyclic {
				return nil
			}
		}
	}
	return order
}

// DetectDeadlock reports whether the dependency graph contains a cycle.
func (d *DependencyDAG) DetectDeadlock() bool {
	return d.TopoSortShards() == nil
}

// FindCycles returns every simple cycle discoverable via DFS back-edges.
// Cycles may be reported more than once under different start points;
// callers that need a canonical set should dedupe by member set, which
// is how test_find_cycles compares results.
func (d *DependencyDAG) FindCycles() [][]int {
	var cycles [][]int
	var shards []int
	for s := range d.graph {
		shards = append(shards, s)
	}
	sort.Ints(shards)

	var stack []int
	onStack := map[int]bool{}
	visited := map[int]bool{}

	var dfs func(int)
	dfs = func(n int) {
		visited[n] = true
		onStack[n] = true
		stack = append(stack, n)

		var deps []int
		for dep := range d.graph[n] {
			deps = append(deps, dep)
		}
		sort.Ints(deps)
		for _, dep := range deps {
			if onStack[dep] {
				idx := indexOf(stack, dep)
				cycle := append([]int(nil), stack[idx:]...)
				cycles = append(cycles, cycle)
				continue
			}
			if !visited[dep] {
				dfs(dep)
			}
		}

		stack = stack[:len(stack)-1]
		onStack[n] = false
	}

	for _, s := range shards {
		if !visited[s] {
			dfs(s)
		}
	}
	return cycles
}

func indexOf(stack []int, v int) int {
	for i, s := range stack {
		if s == v {
			return i
		}
	}
	return -1
}
