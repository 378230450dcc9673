package cas_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmmesh/substrate/pkg/cas"
)

func TestFileStore_PutIsIdempotent(t *testing.T) {
	store, err := cas.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	h1, err := store.Put(ctx, []byte("hello swarm"))
	require.NoError(t, err)
	h2, err := store.Put(ctx, []byte("hello swarm"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestFileStore_GetRoundTrips(t *testing.T) {
	store, err := cas.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	hash, err := store.Put(ctx, []byte("payload"))
	require.NoError(t, err)

	got, err := store.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	ok, err := store.Exists(ctx, hash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileStore_GetMissingReturnsNotFound(t *testing.T) {
	store, err := cas.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "0000000000000000000000000000000000000000000000000000000000000000"[:64])
	assert.ErrorIs(t, err, cas.ErrNotFound)
}

func TestFileStore_GetRejectsMalformedHash(t *testing.T) {
	store, err := cas.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "not-a-hash")
	assert.Error(t, err)
}

func TestFileStore_ExistsFalseForUnknownHash(t *testing.T) {
	store, err := cas.NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	unknown := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"
	ok, err := store.Exists(ctx, unknown)
	require.NoError(t, err)
	assert.False(t, ok)
}
