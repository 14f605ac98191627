// Package storage is the local key-value persistence behind the session and the
// cached user list. Backends: in-memory LRU, files on disk, Redis and Postgres.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound       = errors.New("key not found")
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrClosed         = errors.New("store is closed")
)

// Store is a flat key-value store of raw values
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Backend names accepted by Open
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend
type Config struct {
	Backend    string
	Dir        string
	TTL        time.Duration
	MaxEntries int
	KeyPrefix  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Postgres PostgresConfig
}

// Open builds the store named by cfg.Backend
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(cfg.MaxEntries, cfg.TTL), nil
	case BackendFile:
		return NewFileStore(cfg.Dir)
	case BackendRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL,
		})
	case BackendPostgres:
		return ConnectPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
