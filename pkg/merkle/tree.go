// Package merkle builds the Merkle-rooted checkpoint state used by
// pkg/checkpoint: every epoch's committed operations are hashed into
// leaves, folded bottom-up into a single root, and that root is what the
// verifier quorum signs.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/swarmmesh/substrate/pkg/crypto"
)

const (
	leafPrefix = "swarm:checkpoint:leaf:v1"
	nodePrefix = "swarm:checkpoint:node:v1"
)

// Leaf is one committed operation folded into the tree, keyed by its
// op_hash (the envelope/plan-op/ledger-entry hash it commits to).
type Leaf struct {
	OpHash    string
	LeafBytes []byte
	LeafHash  string
}

// Tree is a fully materialized Merkle tree over a checkpoint's leaves.
type Tree struct {
	Leaves []Leaf
	Root   string
	Levels [][]string // level 0 = leaf hashes, last level = [Root]
}

// Build constructs a tree from a map of op_hash -> committed value. Leaves
// are ordered by sorted op_hash so the same operation set always produces
// the same tree regardless of map iteration order.
func Build(data map[string]interface{}) (*Tree, error) {
	opHashes := make([]string, 0, len(data))
	for k := range data {
		opHashes = append(opHashes, k)
	}
	sort.Strings(opHashes)

	leaves := make([]Leaf, len(opHashes))
	for i, opHash := range opHashes {
		canonical, err := crypto.CanonicalMarshal(data[opHash])
		if err != nil {
			return nil, fmt.Errorf("merkle: canonicalize leaf %s: %w", opHash, err)
		}
		leafBytes := buildLeafBytes(opHash, canonical)
		leaves[i] = Leaf{
			OpHash:    opHash,
			LeafBytes: leafBytes,
			LeafHash:  sha256Hex(leafBytes),
		}
	}

	if len(leaves) == 0 {
		return &Tree{Root: sha256Hex([]byte(leafPrefix))}, nil
	}

	tree := &Tree{Leaves: leaves}
	level := extractHashes(leaves)
	for len(level) > 1 {
		tree.Levels = append(tree.Levels, level)
		level = buildNextLevel(level)
	}
	tree.Levels = append(tree.Levels, level)
	tree.Root = level[0]

	return tree, nil
}

func buildLeafBytes(opHash string, canonical []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	buf.WriteString(opHash)
	buf.WriteByte(0)
	buf.Write(canonical)
	return buf.Bytes()
}

func extractHashes(leaves []Leaf) []string {
	hashes := make([]string, len(leaves))
	for i, l := range leaves {
		hashes[i] = l.LeafHash
	}
	return hashes
}

// buildNextLevel folds a level of hashes pairwise, duplicating the last
// hash when the level has odd length (Bitcoin-style duplicate-last-leaf).
func buildNextLevel(hashes []string) []string {
	count := len(hashes)
	if count%2 != 0 {
		hashes = append(hashes, hashes[count-1])
		count++
	}

	next := make([]string, count/2)
	for i := 0; i < count; i += 2 {
		next[i/2] = buildNodeHash(hashes[i], hashes[i+1])
	}
	return next
}

func buildNodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}
