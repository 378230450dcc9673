// Package checkpoint implements epoch snapshots of committed state
// (spec.md §4.12): a Merkle root over the epoch's operations, a quorum of
// verifier signatures attesting to it, on-disk persistence, and
// pruning/tiered storage for the op log that backs each epoch. Grounded
// on original_source/src/checkpoint/{__init__,pruning,compression}.py
// (referenced by tests/test_checkpointing.py, tests/test_pruning.py,
// tests/test_compression.py) and pkg/merkle's already-built tree.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/swarmmesh/substrate/pkg/crypto"
	"github.com/swarmmesh/substrate/pkg/merkle"
)

// Checkpoint is one epoch's committed-state snapshot.
type Checkpoint struct {
	Epoch        int                    `json:"epoch"`
	MerkleRoot   string                 `json:"merkle_root"`
	StateSummary map[string]interface{} `json:"state_summary"`
	TimestampNs  int64                  `json:"timestamp_ns"`
	OpCount      int                    `json:"op_count"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// hashInput is the subset of Checkpoint that feeds ComputeHash; map-keyed
// fields are canonicalized with sorted keys so iteration order never
// affects the hash, matching test_checkpointing.py's
// test_compute_hash_deterministic.
type hashInput struct {
	Epoch        int                    `json:"epoch"`
	MerkleRoot   string                 `json:"merkle_root"`
	StateSummary map[string]interface{} `json:"state_summary"`
	TimestampNs  int64                  `json:"timestamp_ns"`
	OpCount      int                    `json:"op_count"`
}

// ComputeHash returns the deterministic content hash of c.
func (c Checkpoint) ComputeHash() (string, error) {
	canon, err := crypto.CanonicalMarshal(hashInput{
		Epoch: c.Epoch, MerkleRoot: c.MerkleRoot, StateSummary: c.StateSummary,
		TimestampNs: c.TimestampNs, OpCount: c.OpCount,
	})
	if err != nil {
		return "", fmt.Errorf("checkpoint: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// Signature is one verifier's attestation over a checkpoint's hash.
type Signature struct {
	VerifierID string `json:"verifier_id"`
	SigHex     string `json:"signature"`
}

// SignedCheckpoint carries a Checkpoint plus the signatures collected
// toward quorum.
type SignedCheckpoint struct {
	Checkpoint Checkpoint  `json:"checkpoint"`
	Signatures []Signature `json:"signatures"`
}

// AddSignature appends one verifier's signature, without deduplicating —
// callers that need at-most-one-per-verifier should check first via
// HasSigned.
func (s *SignedCheckpoint) AddSignature(verifierID, sigHex string) {
	s.Signatures = append(s.Signatures, Signature{VerifierID: verifierID, SigHex: sigHex})
}

// HasSigned reports whether verifierID has already contributed a signature.
func (s *SignedCheckpoint) HasSigned(verifierID string) bool {
	for _, sig := range s.Signatures {
		if sig.VerifierID == verifierID {
			return true
		}
	}
	return false
}

// VerifyQuorum reports whether signatures from at least required distinct
// verifiers have been collected. It counts verifier IDs only; signatures
// are not checked cryptographically (the package-level VerifyQuorum does
// that).
func (s *SignedCheckpoint) VerifyQuorum(required int) bool {
	distinct := make(map[string]bool, len(s.Signatures))
	for _, sig := range s.Signatures {
		distinct[sig.VerifierID] = true
	}
	return len(distinct) >= required
}

// BuildMerkleRoot folds opHashes (epoch's committed operations) into a
// Merkle tree and returns its root, for Manager.CreateCheckpoint.
func BuildMerkleRoot(opHashes []string) (string, error) {
	data := make(map[string]interface{}, len(opHashes))
	for _, h := range opHashes {
		data[h] = h
	}
	tree, err := merkle.Build(data)
	if err != nil {
		return "", err
	}
	return tree.Root, nil
}

// Clock abstracts wall time for deterministic tests.
type Clock func() time.Time
