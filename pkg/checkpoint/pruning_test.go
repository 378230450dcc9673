package checkpoint_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmmesh/substrate/pkg/cas"
	"github.com/swarmmesh/substrate/pkg/checkpoint"
)

func TestPruningPolicy_Defaults(t *testing.T) {
	p := checkpoint.NewPruningPolicy()
	assert.Equal(t, 10, p.KeepEpochs)
	assert.Equal(t, 100, p.MinOpsPerEpoch)
}

func TestPruningPolicy_ThresholdAndShouldPrune(t *testing.T) {
	p := checkpoint.PruningPolicy{KeepEpochs: 5, MinOpsPerEpoch: 1}
	assert.Equal(t, 15, p.GetPruningThreshold(20))
	assert.True(t, p.ShouldPrune(10, 20))
	assert.False(t, p.ShouldPrune(16, 20))
}

func TestTieredStorage_HotTierAddAndGet(t *testing.T) {
	store, err := cas.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ts := checkpoint.NewTieredStorage(store)

	ts.AddToHot("op-1", map[string]interface{}{"op_id": "op-1", "value": 42})
	v, ok := ts.GetFromHot("op-1")
	require.True(t, ok)
	assert.Equal(t, "op-1", v.(map[string]interface{})["op_id"])
	assert.Equal(t, 1, ts.GetHotTierSize())
}

func TestTieredStorage_MoveToColdAndRetrieve(t *testing.T) {
	store, err := cas.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ts := checkpoint.NewTieredStorage(store)

	ops := []map[string]interface{}{
		{"op_id": "op-1", "value": 1},
		{"op_id": "op-2", "value": 2},
	}
	ts.AddToHot("op-1", ops[0])
	ts.AddToHot("op-2", ops[1])

	moved, err := ts.MoveToCold(context.Background(), ops)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	assert.Equal(t, 0, ts.GetHotTierSize())
	assert.Equal(t, 2, ts.GetColdTierSize())

	_, stillHot := ts.GetFromHot("op-1")
	assert.False(t, stillHot)

	retrieved, err := ts.GetFromCold(context.Background(), "op-1")
	require.NoError(t, err)
	assert.InDelta(t, 1, retrieved["value"], 0.001)
}

func TestTieredStorage_MoveToColdRejectsMissingOpID(t *testing.T) {
	store, err := cas.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ts := checkpoint.NewTieredStorage(store)

	_, err = ts.MoveToCold(context.Background(), []map[string]interface{}{{"value": 1}})
	assert.Error(t, err)
}

func TestPruningManager_PruneEpochSkipsTooRecentEpoch(t *testing.T) {
	store, err := cas.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mgr := checkpoint.NewPruningManager(
		checkpoint.PruningPolicy{KeepEpochs: 5, MinOpsPerEpoch: 1},
		checkpoint.NewTieredStorage(store),
	)

	moved, err := mgr.PruneEpoch(context.Background(), 18, 20, []map[string]interface{}{{"op_id": "op-1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
}

func TestPruningManager_PruneEpochSkipsUnderMinOps(t *testing.T) {
	store, err := cas.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mgr := checkpoint.NewPruningManager(
		checkpoint.PruningPolicy{KeepEpochs: 5, MinOpsPerEpoch: 10},
		checkpoint.NewTieredStorage(store),
	)

	moved, err := mgr.PruneEpoch(context.Background(), 1, 20, []map[string]interface{}{{"op_id": "op-1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
}

func TestPruningManager_PruneEpochMovesWhenEligible(t *testing.T) {
	store, err := cas.NewFileStore(t.TempDir())
	require.NoError(t, err)
	mgr := checkpoint.NewPruningManager(
		checkpoint.PruningPolicy{KeepEpochs: 5, MinOpsPerEpoch: 1},
		checkpoint.NewTieredStorage(store),
	)

	ops := []map[string]interface{}{{"op_id": "op-1"}, {"op_id": "op-2"}, {"op_id": "op-3"}}
	moved, err := mgr.PruneEpoch(context.Background(), 1, 20, ops)
	require.NoError(t, err)
	assert.Equal(t, 3, moved)
}
