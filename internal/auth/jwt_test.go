package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendsync/internal/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecretKey: "test-secret",
		JWTExpiry:    time.Hour,
	}
}

type memoryBlacklist struct {
	revoked map[string]bool
}

func (b *memoryBlacklist) Add(ctx context.Context, jti string, exp time.Time) error {
	b.revoked[jti] = true
	return nil
}

func (b *memoryBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return b.revoked[jti], nil
}

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := testAuthConfig()

	tokenString, err := GenerateToken("alice", "Alice", cfg)
	require.NoError(t, err)

	claims, err := ValidateToken(context.Background(), tokenString, cfg.JWTSecretKey, nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Identity)
	assert.Equal(t, "Alice", claims.DisplayName)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateTokenWrongKey(t *testing.T) {
	cfg := testAuthConfig()

	tokenString, err := GenerateToken("alice", "Alice", cfg)
	require.NoError(t, err)

	_, err = ValidateToken(context.Background(), tokenString, "other-secret", nil)
	assert.Error(t, err)
}

func TestValidateTokenRevoked(t *testing.T) {
	cfg := testAuthConfig()
	blacklist := &memoryBlacklist{revoked: make(map[string]bool)}

	tokenString, err := GenerateToken("alice", "Alice", cfg)
	require.NoError(t, err)

	claims, err := ValidateToken(context.Background(), tokenString, cfg.JWTSecretKey, blacklist)
	require.NoError(t, err)

	require.NoError(t, blacklist.Add(context.Background(), claims.ID, time.Now().Add(time.Hour)))

	_, err = ValidateToken(context.Background(), tokenString, cfg.JWTSecretKey, blacklist)
	assert.Error(t, err)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, CheckPasswordHash("s3cret", hash))
	assert.False(t, CheckPasswordHash("wrong", hash))
}
