package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Manager persists signed checkpoints to a directory, one JSON file per
// epoch, mirroring original_source/src/checkpoint/__init__.py's
// CheckpointManager (create/sign/store/load/get/list/latest/delete).
type Manager struct {
	dir   string
	mu    sync.Mutex
	clock Clock
}

func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir %s: %w", dir, err)
	}
	return &Manager{dir: dir, clock: time.Now}, nil
}

func (m *Manager) WithClock(clock Clock) *Manager {
	m.clock = clock
	return m
}

// CreateCheckpoint builds an unsigned Checkpoint for epoch, folding
// opHashes into a Merkle root and summarizing planState verbatim.
func (m *Manager) CreateCheckpoint(epoch int, planState map[string]interface{}, opHashes []string) (Checkpoint, error) {
	root, err := BuildMerkleRoot(opHashes)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("checkpoint: build merkle root for epoch %d: %w", epoch, err)
	}
	return Checkpoint{
		Epoch:        epoch,
		MerkleRoot:   root,
		StateSummary: planState,
		TimestampNs:  m.clock().UnixNano(),
		OpCount:      len(opHashes),
	}, nil
}

// SignCheckpoint wraps checkpoint with the given pre-collected signatures.
func (m *Manager) SignCheckpoint(checkpoint Checkpoint, signatures []Signature) SignedCheckpoint {
	return SignedCheckpoint{Checkpoint: checkpoint, Signatures: append([]Signature(nil), signatures...)}
}

func (m *Manager) path(epoch int) string {
	return filepath.Join(m.dir, fmt.Sprintf("checkpoint-%06d.json", epoch))
}

// StoreCheckpoint persists signed to disk and returns the file path.
func (m *Manager) StoreCheckpoint(signed SignedCheckpoint) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := json.MarshalIndent(signed, "", "  ")
	if err != nil {
		return "", fmt.Errorf("checkpoint: marshal epoch %d: %w", signed.Checkpoint.Epoch, err)
	}
	path := m.path(signed.Checkpoint.Epoch)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("checkpoint: write epoch %d: %w", signed.Checkpoint.Epoch, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("checkpoint: commit epoch %d: %w", signed.Checkpoint.Epoch, err)
	}
	return path, nil
}

// LoadCheckpoint reads a SignedCheckpoint from path.
func (m *Manager) LoadCheckpoint(path string) (*SignedCheckpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}
	var signed SignedCheckpoint
	if err := json.Unmarshal(data, &signed); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal %s: %w", path, err)
	}
	return &signed, nil
}

// GetCheckpoint loads the checkpoint stored for epoch, if any.
func (m *Manager) GetCheckpoint(epoch int) (*SignedCheckpoint, error) {
	m.mu.Lock()
	path := m.path(epoch)
	m.mu.Unlock()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: stat epoch %d: %w", epoch, err)
	}
	return m.LoadCheckpoint(path)
}

// ListCheckpoints returns every stored epoch number, ascending.
func (m *Manager) ListCheckpoints() ([]int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list dir %s: %w", m.dir, err)
	}

	var epochs []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "checkpoint-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "checkpoint-"), ".json")
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		epochs = append(epochs, n)
	}
	sort.Ints(epochs)
	return epochs, nil
}

// GetLatestCheckpoint returns the highest-epoch checkpoint, or nil if none
// are stored.
func (m *Manager) GetLatestCheckpoint() (*SignedCheckpoint, error) {
	epochs, err := m.ListCheckpoints()
	if err != nil {
		return nil, err
	}
	if len(epochs) == 0 {
		return nil, nil
	}
	return m.GetCheckpoint(epochs[len(epochs)-1])
}

// DeleteCheckpoint removes the stored checkpoint for epoch, reporting
// whether one existed.
func (m *Manager) DeleteCheckpoint(epoch int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.path(epoch)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checkpoint: stat epoch %d: %w", epoch, err)
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("checkpoint: delete epoch %d: %w", epoch, err)
	}
	return true, nil
}
