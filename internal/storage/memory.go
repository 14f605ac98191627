package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "userdirectory_store_hits_total",
		Help: "Total number of local store reads that found a value.",
	}, []string{"backend"})
	storeMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "userdirectory_store_misses_total",
		Help: "Total number of local store reads that found nothing.",
	}, []string{"backend"})
)

// DefaultMaxEntries bounds the in-memory store when no size is configured
const DefaultMaxEntries = 256

// MemoryStore keeps values in a size-bounded LRU with an optional TTL.
// A zero TTL keeps entries until they are evicted by size.
type MemoryStore struct {
	cache  *expirable.LRU[string, []byte]
	closed atomic.Bool
}

func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		cache: expirable.NewLRU[string, []byte](maxEntries, nil, ttl),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	val, ok := m.cache.Get(key)
	if !ok {
		storeMissesTotal.WithLabelValues(BackendMemory).Inc()
		return nil, ErrNotFound
	}
	storeHitsTotal.WithLabelValues(BackendMemory).Inc()
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if m.closed.Load() {
		return ErrClosed
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.cache.Add(key, stored)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.cache.Remove(key)
	return nil
}

// Close marks the store unusable and drops its entries
func (m *MemoryStore) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.cache.Purge()
	return nil
}
