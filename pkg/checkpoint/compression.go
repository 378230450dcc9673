package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/swarmmesh/substrate/pkg/crypto"
)

// defaultCompressionLevel matches compression.py's DeterministicCompressor
// default (compression_level=3).
const defaultCompressionLevel = 3

// DeterministicCompressor compresses checkpoint state summaries with
// zstd, ported from original_source/src/checkpoint/compression.py.
// Determinism comes from encoding the state as canonical JSON (sorted map
// keys) before compressing — the same state always produces the same
// input bytes regardless of map iteration order, even though zstd's
// framing itself is not a cryptographic commitment.
type DeterministicCompressor struct {
	CompressionLevel int
}

func NewDeterministicCompressor() *DeterministicCompressor {
	return &DeterministicCompressor{CompressionLevel: defaultCompressionLevel}
}

func NewDeterministicCompressorWithLevel(level int) *DeterministicCompressor {
	return &DeterministicCompressor{CompressionLevel: level}
}

func (c *DeterministicCompressor) encoderLevel() zstd.EncoderLevel {
	switch {
	case c.CompressionLevel <= 1:
		return zstd.SpeedFastest
	case c.CompressionLevel <= 3:
		return zstd.SpeedDefault
	case c.CompressionLevel <= 7:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// CompressState canonicalizes state to deterministic JSON and compresses
// it with zstd.
func (c *DeterministicCompressor) CompressState(state map[string]interface{}) ([]byte, error) {
	canon, err := crypto.CanonicalMarshal(state)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: canonicalize state: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(c.encoderLevel()))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: build zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(canon, nil), nil
}

// DecompressState reverses CompressState.
func (c *DeterministicCompressor) DecompressState(compressed []byte) (map[string]interface{}, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: build zstd decoder: %w", err)
	}
	defer dec.Close()

	canon, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: zstd decode: %w", err)
	}

	var state map[string]interface{}
	if err := json.Unmarshal(canon, &state); err != nil {
		return nil, fmt.Errorf("checkpoint: unmarshal decompressed state: %w", err)
	}
	return state, nil
}
