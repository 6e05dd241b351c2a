package auth

import (
	"errors"
	"time"

	"mom-admin-api/internal/config"
	"mom-admin-api/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidIssuer = errors.New("invalid token issuer")
	ErrInvalidAud    = errors.New("invalid token audience")
)

// now is a small indirection to allow test stubbing.
var now = time.Now

// Claims represents the JWT claims of an administrator session
type Claims struct {
	Username string            `json:"username"`
	Name     string            `json:"name"`
	Level    models.AdminLevel `json:"level"`
	jwt.RegisteredClaims
}

// Manager issues and validates session tokens.
type Manager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
}

func NewManager(cfg config.JWTConfig) *Manager {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Manager{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
	}
}

// GenerateToken generates a JWT token for the given administrator
func (m *Manager) GenerateToken(username string, cred models.Credential) (string, error) {
	issuedAt := now()
	claims := Claims{
		Username: username,
		Name:     cred.Name,
		Level:    cred.Level,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ValidateToken validates a JWT token and returns the claims
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(now))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != m.issuer {
		return nil, ErrInvalidIssuer
	}
	audValid := false
	for _, aud := range claims.Audience {
		if aud == m.audience {
			audValid = true
			break
		}
	}
	if !audValid {
		return nil, ErrInvalidAud
	}
	return claims, nil
}

// TTL is the lifetime of issued tokens.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
