package checkpoint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmmesh/substrate/pkg/checkpoint"
)

func TestDeterministicCompressor_Defaults(t *testing.T) {
	c := checkpoint.NewDeterministicCompressor()
	assert.Equal(t, 3, c.CompressionLevel)
}

func TestDeterministicCompressor_CustomLevel(t *testing.T) {
	c := checkpoint.NewDeterministicCompressorWithLevel(9)
	assert.Equal(t, 9, c.CompressionLevel)
}

func TestDeterministicCompressor_RoundTrip(t *testing.T) {
	c := checkpoint.NewDeterministicCompressor()
	state := map[string]interface{}{
		"tasks":     []interface{}{"t1", "t2", "t3"},
		"committed": true,
		"epoch":     float64(7),
	}

	compressed, err := c.CompressState(state)
	require.NoError(t, err)
	assert.NotEmpty(t, compressed)

	decompressed, err := c.DecompressState(compressed)
	require.NoError(t, err)
	assert.Equal(t, state, decompressed)
}

func TestDeterministicCompressor_EmptyState(t *testing.T) {
	c := checkpoint.NewDeterministicCompressor()
	compressed, err := c.CompressState(map[string]interface{}{})
	require.NoError(t, err)

	decompressed, err := c.DecompressState(compressed)
	require.NoError(t, err)
	assert.Empty(t, decompressed)
}

func TestDeterministicCompressor_DeterministicAcrossMapOrder(t *testing.T) {
	c := checkpoint.NewDeterministicCompressor()
	s1 := map[string]interface{}{"a": 1, "b": 2}
	s2 := map[string]interface{}{"b": 2, "a": 1}

	out1, err := c.CompressState(s1)
	require.NoError(t, err)
	out2, err := c.CompressState(s2)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
}

func TestDeterministicCompressor_LargeState(t *testing.T) {
	c := checkpoint.NewDeterministicCompressor()
	large := make(map[string]interface{}, 1000)
	for i := 0; i < 1000; i++ {
		large[string(rune('a'+(i%26)))+string(rune(i))] = i
	}

	compressed, err := c.CompressState(large)
	require.NoError(t, err)
	assert.Less(t, len(compressed), 0+len(large)*50)

	decompressed, err := c.DecompressState(compressed)
	require.NoError(t, err)
	assert.Len(t, decompressed, len(large))
}
