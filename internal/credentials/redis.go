package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	fieldToken  = "token"
	fieldUserID = "userId"
)

// RedisStore keeps credentials in a redis hash so that separate CLI
// invocations share one signed in session.
type RedisStore struct {
	client  *redis.Client
	session string
	ttl     time.Duration
}

// NewRedisStore stores credentials under session:<name>. A zero ttl keeps
// the session until Clear.
func NewRedisStore(client *redis.Client, name string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, session: name, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context) (domain.Credentials, error) {
	vals, err := r.client.HGetAll(ctx, r.key()).Result()
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("redis hgetall failed: %w", err)
	}
	token := vals[fieldToken]
	if token == "" {
		return domain.Credentials{}, ErrNoCredentials
	}
	return domain.Credentials{Token: token, UserID: vals[fieldUserID]}, nil
}

func (r *RedisStore) Set(ctx context.Context, creds domain.Credentials) error {
	if creds.Token == "" {
		return ErrEmptyToken
	}
	key := r.key()
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, fieldToken, creds.Token, fieldUserID, creds.UserID)
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key()).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStore) key() string {
	return sessionKey(r.session)
}

func sessionKey(name string) string {
	return fmt.Sprintf("session:%s", name)
}
