package plan

import "errors"

var (
	// ErrCycleDetected is raised by TopologicalSort when the requested
	// subset contains a cycle. Stored edges are kept a pure DAG: cycle
	// rejection happens here, at query/merge time, never inside LINK's
	// local application (per spec.md §4.5).
	ErrCycleDetected = errors.New("plan: cycle detected")
)
