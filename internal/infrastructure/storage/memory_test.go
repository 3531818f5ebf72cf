package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryArchiveStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryArchiveStore()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "a/b.json")
		assert.ErrorIs(t, err, ErrObjectNotFound)
		ok, err := store.Exists(ctx, "a/b.json")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty key", func(t *testing.T) {
		assert.ErrorIs(t, store.Put(ctx, "", nil, "text/plain"), errKeyRequired)
	})

	t.Run("stored copy is isolated from the caller", func(t *testing.T) {
		data := []byte("chain")
		require.NoError(t, store.Put(ctx, "a/b.json", data, "application/json"))
		data[0] = 'X'

		got, err := store.Get(ctx, "a/b.json")
		require.NoError(t, err)
		assert.Equal(t, "chain", string(got))
		assert.Equal(t, "application/json", store.ContentType("a/b.json"))
	})

	t.Run("list filters by prefix", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "a/c.json", []byte("{}"), "application/json"))
		require.NoError(t, store.Put(ctx, "z/d.json", []byte("{}"), "application/json"))

		keys, err := store.List(ctx, "a/")
		require.NoError(t, err)
		assert.Equal(t, []string{"a/b.json", "a/c.json"}, keys)
	})
}
