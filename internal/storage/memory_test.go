package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 0)

	_, err := store.Get(ctx, "users")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "users", []byte(`[{"username":"jdoe"}]`)))

	got, err := store.Get(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, `[{"username":"jdoe"}]`, string(got))

	require.NoError(t, store.Delete(ctx, "users"))
	_, err = store.Get(ctx, "users")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 0)

	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'y'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestMemoryStore_TTLExpiration(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 50*time.Millisecond)

	require.NoError(t, store.Set(ctx, "token", []byte("t")))
	time.Sleep(150 * time.Millisecond)

	_, err := store.Get(ctx, "token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2, 0)

	require.NoError(t, store.Set(ctx, "a", []byte("1")))
	require.NoError(t, store.Set(ctx, "b", []byte("2")))
	require.NoError(t, store.Set(ctx, "c", []byte("3")))

	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := store.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "3", string(got))
}

func TestMemoryStore_Closed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0, 0)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Set(ctx, "k", nil), ErrClosed)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}
