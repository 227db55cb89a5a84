package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisDriver "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlacklist(t *testing.T) (*miniredis.Miniredis, *redisTokenBlacklist) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisDriver.NewClient(&redisDriver.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, &redisTokenBlacklist{client: client}
}

func TestBlacklistAddAndCheck(t *testing.T) {
	_, blacklist := newTestBlacklist(t)

	revoked, err := blacklist.IsBlacklisted(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, blacklist.Add(context.Background(), "jti-1", time.Now().Add(time.Hour)))

	revoked, err = blacklist.IsBlacklisted(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestBlacklistSkipsExpiredTokens(t *testing.T) {
	_, blacklist := newTestBlacklist(t)

	// 原始过期时间已过，不再占用黑名单空间。
	require.NoError(t, blacklist.Add(context.Background(), "jti-old", time.Now().Add(-time.Minute)))

	revoked, err := blacklist.IsBlacklisted(context.Background(), "jti-old")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestBlacklistEntryExpires(t *testing.T) {
	mr, blacklist := newTestBlacklist(t)

	require.NoError(t, blacklist.Add(context.Background(), "jti-2", time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	revoked, err := blacklist.IsBlacklisted(context.Background(), "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}
