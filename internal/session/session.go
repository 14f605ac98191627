package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/WailSalutem-Health-Care/user-directory/internal/auth"
	"github.com/WailSalutem-Health-Care/user-directory/internal/storage"
	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

// Store keys
const (
	UserKey  = "user"
	TokenKey = "token"
)

var (
	ErrNoUser  = errors.New("no user in session")
	ErrNoToken = errors.New("no token in session")
)

// Store keeps the logged-in user and token in local storage.
type Store struct {
	store storage.Store
	now   func() time.Time
}

func New(store storage.Store) *Store {
	return &Store{store: store, now: time.Now}
}

// User returns the stored session user
func (s *Store) User(ctx context.Context) (*users.User, error) {
	raw, err := s.store.Get(ctx, UserKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoUser
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session user: %w", err)
	}
	var u users.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("failed to decode session user: %w", err)
	}
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, u *users.User) error {
	if u == nil {
		return ErrNoUser
	}
	raw, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal session user: %w", err)
	}
	if err := s.store.Set(ctx, UserKey, raw); err != nil {
		return fmt.Errorf("failed to save session user: %w", err)
	}
	return nil
}

func (s *Store) Token(ctx context.Context) (string, error) {
	raw, err := s.store.Get(ctx, TokenKey)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session token: %w", err)
	}
	return string(raw), nil
}

func (s *Store) SaveToken(ctx context.Context, token string) error {
	if err := s.store.Set(ctx, TokenKey, []byte(token)); err != nil {
		return fmt.Errorf("failed to save session token: %w", err)
	}
	return nil
}

// Logout removes the user, the token and the cached user list.
// Failures are logged; logout always completes.
func (s *Store) Logout(ctx context.Context) {
	for _, key := range []string{UserKey, TokenKey, users.CacheKey} {
		if err := s.store.Delete(ctx, key); err != nil {
			log.Printf("Failed to clear %s from session: %v", key, err)
		}
	}
}

// IsLoggedIn reports whether the stored token is unexpired and belongs to the stored user.
func (s *Store) IsLoggedIn(ctx context.Context) bool {
	token, err := s.Token(ctx)
	if err != nil {
		return false
	}
	pr, expiresAt, err := auth.DecodeUnverified(token)
	if err != nil {
		return false
	}
	if expiresAt.IsZero() || !s.now().Before(expiresAt) {
		return false
	}
	u, err := s.User(ctx)
	if err != nil {
		return false
	}
	if pr.Username != u.Username {
		s.Logout(ctx)
		return false
	}
	return true
}
