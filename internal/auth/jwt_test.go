package auth

import (
	"testing"
	"time"

	"mom-admin-api/internal/config"
	"mom-admin-api/internal/models"

	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(config.JWTConfig{
		Secret:   "test-secret",
		Issuer:   "mom-admin-api",
		Audience: "mom-admin-dashboard",
		TTL:      time.Hour,
	})
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := testManager()
	token, err := m.GenerateToken("alice", models.Credential{Name: "Alice", Level: models.LevelOperator})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, "Alice", claims.Name)
	require.Equal(t, models.LevelOperator, claims.Level)
	require.NotEmpty(t, claims.ID)
}

func TestGenerateToken_UniqueIDs(t *testing.T) {
	m := testManager()
	a, err := m.GenerateToken("alice", models.Credential{})
	require.NoError(t, err)
	b, err := m.GenerateToken("alice", models.Credential{})
	require.NoError(t, err)

	ca, err := m.ValidateToken(a)
	require.NoError(t, err)
	cb, err := m.ValidateToken(b)
	require.NoError(t, err)
	require.NotEqual(t, ca.ID, cb.ID)
}

func TestValidateToken_Invalid(t *testing.T) {
	_, err := testManager().ValidateToken("invalid.token")
	require.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	m := testManager()
	token, err := m.GenerateToken("alice", models.Credential{})
	require.NoError(t, err)

	now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	t.Cleanup(func() { now = time.Now })

	_, err = m.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateToken_WrongSecretIssuerAudience(t *testing.T) {
	token, err := testManager().GenerateToken("alice", models.Credential{})
	require.NoError(t, err)

	other := NewManager(config.JWTConfig{Secret: "other", Issuer: "mom-admin-api", Audience: "mom-admin-dashboard"})
	_, err = other.ValidateToken(token)
	require.Error(t, err)

	wrongIssuer := NewManager(config.JWTConfig{Secret: "test-secret", Issuer: "someone-else", Audience: "mom-admin-dashboard"})
	_, err = wrongIssuer.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidIssuer)

	wrongAud := NewManager(config.JWTConfig{Secret: "test-secret", Issuer: "mom-admin-api", Audience: "mobile"})
	_, err = wrongAud.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidAud)
}
