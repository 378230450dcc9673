package shard

import "hash/crc32"

// ShardTopology assigns NEEDs to shards via a stable hash of the NEED ID
// modulo the shard count, grounded on
// original_source/tests/test_shard_topology.py's TestShardTopology.
type ShardTopology struct {
	NumShards int
}

func NewShardTopology(numShards int) *ShardTopology {
	if numShards <= 0 {
		numShards = 1
	}
	return &ShardTopology{NumShards: numShards}
}

// GetShardForNeed deterministically maps needID to a shard in
// [0, NumShards).
func (t *ShardTopology) GetShardForNeed(needID string) int {
	h := crc32.ChecksumIEEE([]byte(needID))
	return int(h % uint32(t.NumShards))
}

// GetBucketRange returns shardID's inclusive [minHash, maxHash] slice when
// the 32-bit hash space is split into NumShards contiguous ranges, covering
// [0, 2^32-1] across all shards with no gaps. GetShardForNeed does not use
// these ranges: it assigns by hash modulo NumShards.
func (t *ShardTopology) GetBucketRange(shardID int) (uint32, uint32) {
	const space = uint64(1) << 32
	bucketSize := space / uint64(t.NumShards)

	minHash := uint64(shardID) * bucketSize
	var maxHash uint64
	if shardID == t.NumShards-1 {
		maxHash = space - 1
	} else {
		maxHash = minHash + bucketSize - 1
	}
	return uint32(minHash), uint32(maxHash)
}
