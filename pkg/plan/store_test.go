package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmmesh/substrate/pkg/plan"
)

func addTask(s *plan.Store, opID, threadID, taskID, taskType string, lamport uint64, actor string) {
	s.AppendOp(plan.PlanOp{
		OpID: opID, ThreadID: threadID, Lamport: lamport, ActorID: actor,
		OpType: plan.OpAddTask, TaskID: taskID, Payload: map[string]interface{}{"type": taskType},
	})
}

func setState(s *plan.Store, opID, threadID, taskID, state string, lamport uint64, actor string) {
	s.AppendOp(plan.PlanOp{
		OpID: opID, ThreadID: threadID, Lamport: lamport, ActorID: actor,
		OpType: plan.OpState, TaskID: taskID, Payload: map[string]interface{}{"state": state},
	})
}

func TestAppendOp_AddTaskIsIdempotent(t *testing.T) {
	s := plan.NewStore()
	addTask(s, "op1", "t1", "task1", "research", 1, "alice")
	addTask(s, "op1", "t1", "task1", "research", 1, "alice") // same op_id, no-op

	task, ok := s.GetTask("task1")
	require.True(t, ok)
	assert.Equal(t, plan.StateDraft, task.State)
	assert.Len(t, s.GetOpsForThread("t1"), 1)
}

func TestAppendOp_StateMonotonic_HigherLamportWins(t *testing.T) {
	s := plan.NewStore()
	addTask(s, "op1", "t1", "task1", "research", 1, "alice")
	setState(s, "op2", "t1", "task1", "DECIDED", 5, "alice")
	setState(s, "op3", "t1", "task1", "DRAFT", 3, "alice") // lower lamport, discarded

	task, ok := s.GetTask("task1")
	require.True(t, ok)
	assert.Equal(t, plan.StateDecided, task.State)
	assert.Equal(t, uint64(5), task.LastLamport)
}

func TestAppendOp_Link_AddsEdgeIdempotently(t *testing.T) {
	s := plan.NewStore()
	op := plan.PlanOp{OpID: "op1", ThreadID: "t1", Lamport: 1, ActorID: "alice",
		OpType: plan.OpLink, Payload: map[string]interface{}{"parent": "p1", "child": "c1"}}
	s.AppendOp(op)
	s.AppendOp(op)
	op2 := op
	op2.OpID = "op2"
	s.AppendOp(op2) // same parent/child, different op_id, still idempotent on edge content

	assert.Equal(t, []string{"c1"}, s.GetEdges("p1"))
}

func TestAppendOp_Link_RejectsSelfLoop(t *testing.T) {
	s := plan.NewStore()
	s.AppendOp(plan.PlanOp{OpID: "op1", ThreadID: "t1", Lamport: 1, ActorID: "alice",
		OpType: plan.OpLink, Payload: map[string]interface{}{"parent": "a", "child": "a"}})

	assert.Empty(t, s.GetEdges("a"))
}

func TestAppendOp_Link_RejectsEdgeThatClosesCycle(t *testing.T) {
	s := plan.NewStore()
	s.AppendOp(plan.PlanOp{OpID: "op1", ThreadID: "t1", Lamport: 1, ActorID: "alice",
		OpType: plan.OpLink, Payload: map[string]interface{}{"parent": "a", "child": "b"}})
	s.AppendOp(plan.PlanOp{OpID: "op2", ThreadID: "t1", Lamport: 2, ActorID: "alice",
		OpType: plan.OpLink, Payload: map[string]interface{}{"parent": "b", "child": "c"}})
	// c -> a would close the a -> b -> c -> a cycle; must be silently dropped.
	s.AppendOp(plan.PlanOp{OpID: "op3", ThreadID: "t1", Lamport: 3, ActorID: "alice",
		OpType: plan.OpLink, Payload: map[string]interface{}{"parent": "c", "child": "a"}})

	assert.Equal(t, []string{"b"}, s.GetEdges("a"))
	assert.Equal(t, []string{"c"}, s.GetEdges("b"))
	assert.Empty(t, s.GetEdges("c"))
}

func TestMerge_ConcurrentLinksThatWouldCloseCycleAreDropped(t *testing.T) {
	a := plan.NewStore()
	a.AppendOp(plan.PlanOp{OpID: "op1", ThreadID: "t1", Lamport: 1, ActorID: "actor-a",
		OpType: plan.OpLink, Payload: map[string]interface{}{"parent": "a", "child": "b"}})
	a.AppendOp(plan.PlanOp{OpID: "op2", ThreadID: "t1", Lamport: 2, ActorID: "actor-a",
		OpType: plan.OpLink, Payload: map[string]interface{}{"parent": "b", "child": "c"}})

	// b independently links c -> a at a lower lamport than a's b->c op:
	// acyclic against a's chain as replayed up to that point, but the
	// later-lamport b->c op would then close the loop and must be the one
	// dropped during merge replay.
	b := plan.NewStore()
	b.AppendOp(plan.PlanOp{OpID: "op3", ThreadID: "t1", Lamport: 1, ActorID: "actor-b",
		OpType: plan.OpLink, Payload: map[string]interface{}{"parent": "c", "child": "a"}})

	bBytes, err := b.Save()
	require.NoError(t, err)
	require.NoError(t, a.Merge(bBytes))

	// Replay order is (lamport, actor_id): op1(a->b) then op3(c->a), both
	// lamport 1, "actor-a" < "actor-b"; then op2(b->c) at lamport 2. By the
	// time op2 replays, a->b->?->c->a would close the cycle, so op2 (not
	// op3) is the one silently dropped.
	assert.Equal(t, []string{"b"}, a.GetEdges("a"))
	assert.Equal(t, []string{"a"}, a.GetEdges("c"))
	assert.Empty(t, a.GetEdges("b"), "the cycle-closing link must not survive merge replay")
}

func TestAppendOp_Annotate_LWWTieBreakByActorID(t *testing.T) {
	s := plan.NewStore()
	addTask(s, "op1", "t1", "task1", "research", 1, "alice")
	s.AppendOp(plan.PlanOp{OpID: "op2", ThreadID: "t1", Lamport: 5, ActorID: "zed",
		OpType: plan.OpAnnotate, TaskID: "task1", Payload: map[string]interface{}{"note": "from-zed"}})
	s.AppendOp(plan.PlanOp{OpID: "op3", ThreadID: "t1", Lamport: 5, ActorID: "alice",
		OpType: plan.OpAnnotate, TaskID: "task1", Payload: map[string]interface{}{"note": "from-alice"}})

	task, ok := s.GetTask("task1")
	require.True(t, ok)
	assert.Equal(t, "from-alice", task.Annotations["note"], "tie broken by smaller actor_id")
}

func TestMerge_DivergentMergeConvergesOnHigherLamport(t *testing.T) {
	a := plan.NewStore()
	addTask(a, "op1", "t1", "task1", "research", 1, "actor-a")
	setState(a, "op2", "t1", "task1", "DECIDED", 5, "actor-a")

	b := plan.NewStore()
	addTask(b, "op1", "t1", "task1", "research", 1, "actor-a")
	setState(b, "op3", "t1", "task1", "DRAFT", 10, "actor-b")

	bBytes, err := b.Save()
	require.NoError(t, err)
	require.NoError(t, a.Merge(bBytes))

	task, ok := a.GetTask("task1")
	require.True(t, ok)
	assert.Equal(t, plan.StateDraft, task.State)
	assert.Equal(t, uint64(10), task.LastLamport)
}

func TestSaveLoad_RoundTrips(t *testing.T) {
	s := plan.NewStore()
	addTask(s, "op1", "t1", "task1", "research", 1, "alice")
	setState(s, "op2", "t1", "task1", "DECIDED", 5, "alice")

	data, err := s.Save()
	require.NoError(t, err)

	loaded := plan.NewStore()
	require.NoError(t, loaded.Load(data))

	task, ok := loaded.GetTask("task1")
	require.True(t, ok)
	assert.Equal(t, plan.StateDecided, task.State)
}

func TestTaskView_ReadyRequiresParentsVerifiedOrFinal(t *testing.T) {
	s := plan.NewStore()
	addTask(s, "op1", "t1", "parent", "research", 1, "alice")
	addTask(s, "op2", "t1", "child", "research", 2, "alice")
	s.AppendOp(plan.PlanOp{OpID: "op3", ThreadID: "t1", Lamport: 3, ActorID: "alice",
		OpType: plan.OpLink, Payload: map[string]interface{}{"parent": "parent", "child": "child"}})

	ready := s.TaskView().Ready(s.GraphView())
	readyIDs := map[string]bool{}
	for _, t := range ready {
		readyIDs[t.TaskID] = true
	}
	assert.True(t, readyIDs["parent"], "parent has no parents, is ready")
	assert.False(t, readyIDs["child"], "child blocked by non-verified parent")

	setState(s, "op4", "t1", "parent", "VERIFIED", 4, "alice")
	ready = s.TaskView().Ready(s.GraphView())
	readyIDs = map[string]bool{}
	for _, t := range ready {
		readyIDs[t.TaskID] = true
	}
	assert.True(t, readyIDs["child"], "child unblocked once parent VERIFIED")
}
