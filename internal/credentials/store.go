package credentials

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Store is the process-wide holder of the signed in customer's token.
// No expiry logic lives here; a token is either present or not.
type Store interface {
	Get(ctx context.Context) (domain.Credentials, error)
	Set(ctx context.Context, creds domain.Credentials) error
	Clear(ctx context.Context) error
}

var (
	ErrNoCredentials = errors.New("no credentials stored")
	ErrEmptyToken    = errors.New("token must not be empty")
)

// MemoryStore keeps credentials for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	creds domain.Credentials
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(context.Context) (domain.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.creds.Token == "" {
		return domain.Credentials{}, ErrNoCredentials
	}
	return s.creds, nil
}

func (s *MemoryStore) Set(_ context.Context, creds domain.Credentials) error {
	if creds.Token == "" {
		return ErrEmptyToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = domain.Credentials{}
	return nil
}
