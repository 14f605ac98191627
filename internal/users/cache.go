package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/WailSalutem-Health-Care/user-directory/internal/storage"
)

// CacheKey is the store key holding the full user list
const CacheKey = "users"

// Cache mirrors the last full user list in local storage so searches avoid a round trip
type Cache struct {
	store storage.Store
}

func NewCache(store storage.Store) *Cache {
	return &Cache{store: store}
}

// CachedUsers returns the cached list, ErrCacheEmpty when nothing was stored yet
func (c *Cache) CachedUsers(ctx context.Context) ([]User, error) {
	raw, err := c.store.Get(ctx, CacheKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrCacheEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached users: %w", err)
	}

	var list []User
	if err := json.Unmarshal(raw, &list); err != nil {
		log.Printf("Discarding unreadable user cache: %v", err)
		return nil, ErrCacheCorrupt
	}
	return list, nil
}

// SetCachedUsers replaces the cached list
func (c *Cache) SetCachedUsers(ctx context.Context, list []User) error {
	if list == nil {
		list = []User{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to marshal users: %w", err)
	}
	if err := c.store.Set(ctx, CacheKey, raw); err != nil {
		return fmt.Errorf("failed to cache users: %w", err)
	}
	return nil
}
