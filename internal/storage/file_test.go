package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = store.Get(ctx, "user")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "user", []byte(`{"username":"jdoe"}`)))
	got, err := store.Get(ctx, "user")
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"jdoe"}`, string(got))

	require.NoError(t, store.Set(ctx, "user", []byte(`{"username":"asmith"}`)))
	got, err = store.Get(ctx, "user")
	require.NoError(t, err)
	assert.JSONEq(t, `{"username":"asmith"}`, string(got))
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "token", []byte("abc")))
	require.NoError(t, first.Close())

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := second.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestFileStore_KeysAreSafeFileNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "../escape", []byte("x")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, dir, filepath.Dir(filepath.Join(dir, entries[0].Name())))
	assert.NotContains(t, entries[0].Name(), "/")
}

func TestFileStore_DeleteMissingKey(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Delete(context.Background(), "nothing"))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "etcd"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestOpen_DefaultsToMemory(t *testing.T) {
	store, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	_, ok := store.(*MemoryStore)
	assert.True(t, ok, "expected a *MemoryStore, got %T", store)
}
