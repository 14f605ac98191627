//go:build integration

package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	key := "it-" + time.Now().Format("150405.000000")

	_, err := store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, key, []byte("v1")))
	require.NoError(t, store.Set(ctx, key, []byte("v2")))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	store, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr, KeyPrefix: "userdirectory-test:"})
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestPostgresStore_Integration(t *testing.T) {
	cfg := PostgresConfigFromEnv()
	if cfg.Host == "" {
		t.Skip("DB_HOST not set")
	}
	store, err := ConnectPostgres(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}
