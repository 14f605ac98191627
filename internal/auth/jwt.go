package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Principal holds identity extracted from a validated token.
type Principal struct {
	Username    string
	Role        string
	Authorities []string
	Claims      jwt.MapClaims
}

var (
	ErrNoToken       = errors.New("no token provided")
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidIssuer = errors.New("invalid issuer")
	ErrMissingSub    = errors.New("missing sub claim")
	ErrTokenExpired  = errors.New("token expired")
)

// Verifier checks bearer tokens
type Verifier interface {
	ParseAndVerifyToken(tokenString string) (*Principal, error)
}

// Issuer signs tokens for authenticated users
type Issuer interface {
	Issue(username, role string, authorities []string) (string, error)
}

// HMACAuthority issues and verifies HS256 tokens with a shared secret
type HMACAuthority struct {
	cfg Config
	now func() time.Time
}

// NewHMACAuthority constructs an authority from config.
func NewHMACAuthority(cfg Config) *HMACAuthority {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &HMACAuthority{cfg: cfg, now: time.Now}
}

var _ Verifier = (*HMACAuthority)(nil)
var _ Issuer = (*HMACAuthority)(nil)

// Issue signs a token whose subject is the username
func (a *HMACAuthority) Issue(username, role string, authorities []string) (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"sub":         username,
		"iss":         a.cfg.Issuer,
		"iat":         now.Unix(),
		"exp":         now.Add(a.cfg.TokenTTL).Unix(),
		"role":        role,
		"authorities": authorities,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.Secret))
}

// ParseAndVerifyToken verifies a bearer token, validates issuer/exp and returns Principal.
func (a *HMACAuthority) ParseAndVerifyToken(tokenString string) (*Principal, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrNoToken
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	parsed, err := parser.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		// enforce HS256
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(a.cfg.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if iss, _ := claims["iss"].(string); iss != a.cfg.Issuer {
		return nil, ErrInvalidIssuer
	}
	if !claims.VerifyExpiresAt(a.now().Unix(), true) {
		return nil, ErrTokenExpired
	}
	return principalFromClaims(claims)
}

// DecodeUnverified reads a token's claims without checking the signature.
// Clients use it to learn the subject and expiry of a token they were handed.
func DecodeUnverified(tokenString string) (*Principal, time.Time, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, time.Time{}, ErrNoToken
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, time.Time{}, ErrInvalidToken
	}
	var expiresAt time.Time
	if exp, ok := claims["exp"].(float64); ok {
		expiresAt = time.Unix(int64(exp), 0)
	}
	pr, err := principalFromClaims(claims)
	if err != nil {
		return nil, time.Time{}, err
	}
	return pr, expiresAt, nil
}

func principalFromClaims(claims jwt.MapClaims) (*Principal, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrMissingSub
	}
	role, _ := claims["role"].(string)

	var authorities []string
	if raw, ok := claims["authorities"].([]interface{}); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				authorities = append(authorities, s)
			}
		}
	}

	return &Principal{
		Username:    sub,
		Role:        role,
		Authorities: authorities,
		Claims:      claims,
	}, nil
}

func normalizeRole(role string) string {
	return strings.TrimPrefix(strings.ToUpper(role), "ROLE_")
}
