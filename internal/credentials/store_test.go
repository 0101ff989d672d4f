package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test", ttl), mr
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)

	require.NoError(t, s.Set(ctx, domain.Credentials{Token: "tok", UserID: "u1"}))
	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", got.Token)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, s.Clear(ctx))
	_, err = s.Get(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestMemoryStore_RejectsEmptyToken(t *testing.T) {
	err := NewMemoryStore().Set(context.Background(), domain.Credentials{UserID: "u1"})
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestRedisStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestRedis(t, 0)

	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)

	require.NoError(t, s.Set(ctx, domain.Credentials{Token: "tok", UserID: "u1"}))
	assert.Equal(t, "tok", mr.HGet(sessionKey("test"), "token"))
	assert.Equal(t, time.Duration(0), mr.TTL(sessionKey("test")))

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Credentials{Token: "tok", UserID: "u1"}, got)

	require.NoError(t, s.Clear(ctx))
	assert.False(t, mr.Exists(sessionKey("test")))
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := setupTestRedis(t, time.Hour)

	require.NoError(t, s.Set(ctx, domain.Credentials{Token: "tok"}))
	assert.Equal(t, time.Hour, mr.TTL(sessionKey("test")))

	mr.FastForward(2 * time.Hour)
	_, err := s.Get(ctx)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestRedisStore_SetReplacesUserID(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestRedis(t, 0)

	require.NoError(t, s.Set(ctx, domain.Credentials{Token: "a", UserID: "u1"}))
	require.NoError(t, s.Set(ctx, domain.Credentials{Token: "b"}))

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Token)
	assert.Empty(t, got.UserID)
}

func TestRedisStore_ConnectionError(t *testing.T) {
	s, mr := setupTestRedis(t, 0)
	mr.Close()

	_, err := s.Get(context.Background())
	require.ErrorContains(t, err, "redis hgetall failed")
}

func TestSessionKey_Format(t *testing.T) {
	assert.Equal(t, "session:default", sessionKey("default"))
}
