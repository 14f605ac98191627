package testutil

import (
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/user-directory/internal/auth"
	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

// NewTestAuthority returns an HS256 authority with a fixed test secret
func NewTestAuthority() *auth.HMACAuthority {
	return auth.NewHMACAuthority(auth.Config{
		Issuer:   "test-issuer",
		Secret:   "test-secret",
		TokenTTL: time.Hour,
	})
}

// GenerateToken signs a token for username with the given role
func GenerateToken(t *testing.T, a *auth.HMACAuthority, username string, role users.Role) string {
	t.Helper()

	token, err := a.Issue(username, string(role), nil)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return token
}
