package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Store is a CRDT plan document: a grow-only ops log plus derived state
// (tasks, edges, annotations) kept consistent under one mutex. All
// mutation flows through AppendOp/Merge; queries never mutate.
type Store struct {
	mu sync.RWMutex

	tasks       map[string]*Task
	edges       map[string][]string // parent -> children, grow-only
	annotations map[string]map[string]annotationEntry
	ops         []PlanOp
	opIDs       map[string]struct{}
	version     int

	taskView  *TaskView
	graphView *GraphView
}

func NewStore() *Store {
	s := &Store{
		tasks:       make(map[string]*Task),
		edges:       make(map[string][]string),
		annotations: make(map[string]map[string]annotationEntry),
		opIDs:       make(map[string]struct{}),
	}
	s.rebuildViewsLocked()
	return s
}

// winsOver reports whether (lamport, actorID) should supersede the current
// winner (curLamport, curActorID): higher lamport wins; on a tie, the
// lexicographically smaller actor_id wins. This makes incremental
// application order-independent, matching the outcome of a full
// lamport-sorted replay (spec.md P2 Deterministic Replay).
func winsOver(lamport uint64, actorID string, curLamport uint64, curActorID string) bool {
	if lamport != curLamport {
		return lamport > curLamport
	}
	return actorID < curActorID
}

// AppendOp applies op to the document. Idempotent: a repeated op_id is a
// no-op (G-Set property).
func (s *Store) AppendOp(op PlanOp) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.opIDs[op.OpID]; seen {
		return
	}
	s.ops = append(s.ops, op)
	s.opIDs[op.OpID] = struct{}{}
	s.version++
	s.applyLocked(op)
	s.rebuildViewsLocked()
}

func (s *Store) applyLocked(op PlanOp) {
	switch op.OpType {
	case OpAddTask:
		if _, exists := s.tasks[op.TaskID]; !exists {
			taskType, _ := op.Payload["type"].(string)
			s.tasks[op.TaskID] = &Task{
				TaskID: op.TaskID, ThreadID: op.ThreadID, TaskType: taskType,
				State: StateDraft, LastLamport: op.Lamport, lastActor: op.ActorID,
			}
		}

	case OpState:
		state, _ := op.Payload["state"].(string)
		t, exists := s.tasks[op.TaskID]
		if !exists {
			s.tasks[op.TaskID] = &Task{
				TaskID: op.TaskID, ThreadID: op.ThreadID, State: TaskState(state),
				LastLamport: op.Lamport, lastActor: op.ActorID,
			}
			return
		}
		if winsOver(op.Lamport, op.ActorID, t.LastLamport, t.lastActor) {
			t.State = TaskState(state)
			t.LastLamport = op.Lamport
			t.lastActor = op.ActorID
		}

	case OpLink:
		parent, _ := op.Payload["parent"].(string)
		child, _ := op.Payload["child"].(string)
		for _, c := range s.edges[parent] {
			if c == child {
				return
			}
		}
		// A LINK that would close a cycle is silently skipped rather than
		// erroring: two concurrent nodes can each add a link that's
		// individually acyclic but together close a loop once merged, and
		// replay must stay a pure function of the ops log with no
		// rejected-op bookkeeping (spec.md P2 Deterministic Replay),
		// mirroring patching.py's _detect_cycle guard on patch apply.
		if s.linkClosesCycle(parent, child) {
			return
		}
		s.edges[parent] = append(s.edges[parent], child)

	case OpAnnotate:
		byKey, ok := s.annotations[op.TaskID]
		if !ok {
			byKey = make(map[string]annotationEntry)
			s.annotations[op.TaskID] = byKey
		}
		for key, value := range op.Payload {
			cur, exists := byKey[key]
			if !exists || winsOver(op.Lamport, op.ActorID, cur.lamport, cur.lastActor) {
				byKey[key] = annotationEntry{value: value, lamport: op.Lamport, lastActor: op.ActorID}
			}
		}
	}
}

// linkClosesCycle reports whether adding the parent->child edge to the
// current (locked) edge set would close a cycle. It builds a tentative
// GraphView with the candidate edge applied and runs it through
// GraphView.DetectCycles — the same DFS-based check views.go exposes for
// diagnostics, here used as the actual merge/apply-time gate rather than
// left as a read-only query, per patching.py's _detect_cycle guard on
// patch apply.
func (s *Store) linkClosesCycle(parent, child string) bool {
	if parent == child {
		return true
	}
	tentative := make(map[string][]string, len(s.edges)+1)
	for p, children := range s.edges {
		tentative[p] = append([]string(nil), children...)
	}
	tentative[parent] = append(tentative[parent], child)
	return (&GraphView{edges: tentative}).DetectCycles()
}

func (s *Store) rebuildViewsLocked() {
	tasksCopy := make(map[string]*Task, len(s.tasks))
	for id, t := range s.tasks {
		cp := *t
		if ann, ok := s.annotations[id]; ok && len(ann) > 0 {
			cp.Annotations = make(map[string]interface{}, len(ann))
			for k, e := range ann {
				cp.Annotations[k] = e.value
			}
		}
		tasksCopy[id] = &cp
	}
	edgesCopy := make(map[string][]string, len(s.edges))
	for p, children := range s.edges {
		cp := make([]string, len(children))
		copy(cp, children)
		edgesCopy[p] = cp
	}
	s.taskView = &TaskView{tasks: tasksCopy}
	s.graphView = &GraphView{edges: edgesCopy}
}

// GetTask returns the current derived task state, including any
// annotations, or false if unknown.
func (s *Store) GetTask(taskID string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.taskView.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// GetEdges returns parent's children.
func (s *Store) GetEdges(parent string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.graphView.edges[parent]...)
}

// GetOpsForThread returns all ops belonging to threadID, sorted by lamport.
func (s *Store) GetOpsForThread(threadID string) []PlanOp {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []PlanOp
	for _, op := range s.ops {
		if op.ThreadID == threadID {
			out = append(out, op)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lamport < out[j].Lamport })
	return out
}

// TaskView returns the current materialized task view, invalidated and
// rebuilt on every mutating call.
func (s *Store) TaskView() *TaskView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.taskView
}

// GraphView returns the current materialized graph view.
func (s *Store) GraphView() *GraphView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graphView
}

type savedDoc struct {
	Tasks       map[string]*Task                  `json:"tasks"`
	Edges       map[string][]string                `json:"edges"`
	Annotations map[string]map[string]interface{} `json:"annotations"`
	Ops         []PlanOp                           `json:"ops"`
	Version     int                                `json:"version"`
}

// Save serializes the document. Derived state is included for
// inspectability, but Load (and Merge) always reconstructs derived state
// by replaying Ops, never by trusting the serialized tasks/edges/
// annotations directly — state is a pure function of the ops log
// (spec.md P2 Deterministic Replay).
func (s *Store) Save() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	annOut := make(map[string]map[string]interface{}, len(s.annotations))
	for taskID, byKey := range s.annotations {
		m := make(map[string]interface{}, len(byKey))
		for k, e := range byKey {
			m[k] = e.value
		}
		annOut[taskID] = m
	}
	doc := savedDoc{
		Tasks:       s.taskView.tasks,
		Edges:       s.edges,
		Annotations: annOut,
		Ops:         s.ops,
		Version:     s.version,
	}
	return json.Marshal(doc)
}

// Load replaces the document with the ops encoded in data, replaying them
// in stored order (AppendOp is idempotent and order-independent for final
// state, so any order reconstructs the same derived state).
func (s *Store) Load(data []byte) error {
	var doc savedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("plan: load: %w", err)
	}

	s.mu.Lock()
	s.tasks = make(map[string]*Task)
	s.edges = make(map[string][]string)
	s.annotations = make(map[string]map[string]annotationEntry)
	s.ops = nil
	s.opIDs = make(map[string]struct{})
	s.version = 0
	s.mu.Unlock()

	for _, op := range doc.Ops {
		s.AppendOp(op)
	}
	return nil
}

// Merge unions peerData's ops into this document by op_id (G-Set union),
// then rebuilds all derived state by replaying the combined log sorted by
// (lamport, actor_id, op_id) — a single deterministic replay path shared
// with Load, per spec.md's Replay Determinism law.
func (s *Store) Merge(peerData []byte) error {
	var peer savedDoc
	if err := json.Unmarshal(peerData, &peer); err != nil {
		return fmt.Errorf("plan: merge: %w", err)
	}

	s.mu.Lock()
	for _, op := range peer.Ops {
		if _, seen := s.opIDs[op.OpID]; !seen {
			s.ops = append(s.ops, op)
			s.opIDs[op.OpID] = struct{}{}
		}
	}
	sort.Slice(s.ops, func(i, j int) bool {
		a, b := s.ops[i], s.ops[j]
		if a.Lamport != b.Lamport {
			return a.Lamport < b.Lamport
		}
		if a.ActorID != b.ActorID {
			return a.ActorID < b.ActorID
		}
		return a.OpID < b.OpID
	})

	s.tasks = make(map[string]*Task)
	s.edges = make(map[string][]string)
	s.annotations = make(map[string]map[string]annotationEntry)
	for _, op := range s.ops {
		s.applyLocked(op)
	}
	s.version++
	s.rebuildViewsLocked()
	s.mu.Unlock()
	return nil
}
