package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/swarmmesh/substrate/pkg/cas"
	"github.com/swarmmesh/substrate/pkg/crypto"
)

// PruningPolicy decides which epochs' op logs are eligible for pruning
// once checkpointed, ported from
// original_source/src/checkpoint/pruning.py's PruningPolicy.
type PruningPolicy struct {
	KeepEpochs     int
	MinOpsPerEpoch int
}

const (
	defaultKeepEpochs     = 10
	defaultMinOpsPerEpoch = 100
)

// NewPruningPolicy returns the default policy (keep the most recent 10
// epochs, require at least 100 ops per epoch before pruning is worthwhile).
func NewPruningPolicy() PruningPolicy {
	return PruningPolicy{KeepEpochs: defaultKeepEpochs, MinOpsPerEpoch: defaultMinOpsPerEpoch}
}

// GetPruningThreshold returns the pruning boundary at currentEpoch: epochs
// strictly below it are eligible for pruning, the boundary itself is not.
func (p PruningPolicy) GetPruningThreshold(currentEpoch int) int {
	return currentEpoch - p.KeepEpochs
}

// ShouldPrune reports whether epoch is old enough to prune relative to
// currentEpoch.
func (p PruningPolicy) ShouldPrune(epoch, currentEpoch int) bool {
	return epoch < p.GetPruningThreshold(currentEpoch)
}

// TieredStorage holds recent ops in an in-memory hot tier and older ones
// in a content-addressed cold tier (pkg/cas), ported from
// original_source/src/checkpoint/pruning.py's TieredStorage (a local
// directory there; here, any cas.Store — local disk or cloud).
type TieredStorage struct {
	mu      sync.Mutex
	hot     map[string]interface{}
	cold    cas.Store
	coldIdx map[string]string // op_id -> cas hash, so cold entries stay addressable by op_id
}

func NewTieredStorage(cold cas.Store) *TieredStorage {
	return &TieredStorage{
		hot:     make(map[string]interface{}),
		cold:    cold,
		coldIdx: make(map[string]string),
	}
}

func (t *TieredStorage) AddToHot(opID string, op interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hot[opID] = op
}

func (t *TieredStorage) GetFromHot(opID string) (interface{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.hot[opID]
	return v, ok
}

func (t *TieredStorage) GetHotTierSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.hot)
}

func (t *TieredStorage) GetColdTierSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.coldIdx)
}

// opRecord is the shape every moved entry must carry an "op_id" field for,
// matching test_pruning.py's {"op_id": ..., ...} convention.
type opRecord = map[string]interface{}

// MoveToCold persists ops (each an {"op_id": ..., ...} map) into the cold
// tier and removes their hot-tier entries, returning the count moved.
func (t *TieredStorage) MoveToCold(ctx context.Context, ops []opRecord) (int, error) {
	moved := 0
	for _, op := range ops {
		opID, ok := op["op_id"].(string)
		if !ok || opID == "" {
			return moved, fmt.Errorf("checkpoint: op missing op_id: %v", op)
		}
		blob, err := crypto.CanonicalMarshal(op)
		if err != nil {
			return moved, fmt.Errorf("checkpoint: canonicalize op %s: %w", opID, err)
		}
		hash, err := t.cold.Put(ctx, blob)
		if err != nil {
			return moved, fmt.Errorf("checkpoint: cold-store op %s: %w", opID, err)
		}

		t.mu.Lock()
		t.coldIdx[opID] = hash
		delete(t.hot, opID)
		t.mu.Unlock()
		moved++
	}
	return moved, nil
}

// GetFromCold retrieves a previously moved op by its op_id.
func (t *TieredStorage) GetFromCold(ctx context.Context, opID string) (opRecord, error) {
	t.mu.Lock()
	hash, ok := t.coldIdx[opID]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("checkpoint: op %s not in cold tier", opID)
	}

	blob, err := t.cold.Get(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read cold op %s: %w", opID, err)
	}
	var record opRecord
	if err := json.Unmarshal(blob, &record); err != nil {
		return nil, fmt.Errorf("checkpoint: decode cold op %s: %w", opID, err)
	}
	return record, nil
}

// PruningManager ties a PruningPolicy to a TieredStorage, moving any
// epoch eligible for pruning from hot to cold tier.
type PruningManager struct {
	policy  PruningPolicy
	storage *TieredStorage
}

func NewPruningManager(policy PruningPolicy, storage *TieredStorage) *PruningManager {
	return &PruningManager{policy: policy, storage: storage}
}

// PruneEpoch moves ops (belonging to epoch) to cold storage if epoch is
// old enough relative to currentEpoch and there are at least
// MinOpsPerEpoch of them; otherwise it is a no-op and returns 0.
func (m *PruningManager) PruneEpoch(ctx context.Context, epoch, currentEpoch int, ops []opRecord) (int, error) {
	if !m.policy.ShouldPrune(epoch, currentEpoch) {
		return 0, nil
	}
	if len(ops) < m.policy.MinOpsPerEpoch {
		return 0, nil
	}
	return m.storage.MoveToCold(ctx, ops)
}
