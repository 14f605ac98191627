package auth

import (
	"os"
	"time"
)

// Config holds token settings shared by the directory stub and its clients
type Config struct {
	Issuer   string
	Secret   string
	TokenTTL time.Duration
}

var (
	DefaultIssuer   = "user-directory"
	DefaultTokenTTL = 8 * time.Hour
)

// LoadConfig reads config from env with sensible defaults.
// You can override with AUTH_ISSUER, STUB_JWT_SECRET and AUTH_TOKEN_TTL.
func LoadConfig() Config {
	issuer := os.Getenv("AUTH_ISSUER")
	if issuer == "" {
		issuer = DefaultIssuer
	}
	secret := os.Getenv("STUB_JWT_SECRET")
	if secret == "" {
		secret = "dev-only-secret"
	}
	ttl := DefaultTokenTTL
	if v := os.Getenv("AUTH_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			ttl = d
		}
	}
	return Config{
		Issuer:   issuer,
		Secret:   secret,
		TokenTTL: ttl,
	}
}
