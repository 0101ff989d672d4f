package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// CartCache holds the last cart the store applied for a user, so a fresh
// process can render stale contents before its first fetch resolves.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.CartSnapshot, error)
	Set(ctx context.Context, userID string, cart domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")
