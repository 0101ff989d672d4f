// Package backend is an in-memory implementation of the cart REST API the
// storefront talks to. It backs local development and integration tests.
package backend

import (
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// SessionTTL is how long an issued token stays valid.
	SessionTTL = 24 * time.Hour

	// CleanupInterval is how often expired sessions are dropped.
	CleanupInterval = time.Minute
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrItemNotInCart     = errors.New("product not found in cart")
	ErrCartNotFound      = errors.New("cart not found")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrEmptyItems        = errors.New("no items provided")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrSessionExpired    = errors.New("session expired")
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyCart         = errors.New("cart is empty, nothing to checkout")
	ErrIllegalTransition = errors.New("illegal transition of order status")
	ErrInvalidShipping   = errors.New("party name and address are required")
)

// AddLine is one line of an add-to-cart request. Price is the price the
// client saw; the stored line keeps it as its price snapshot.
type AddLine struct {
	ProductID string
	Quantity  int
	Price     decimal.NullDecimal
}

type session struct {
	userID    string
	expiresAt time.Time
}

type line struct {
	productID string
	quantity  int
	price     decimal.Decimal
}

type cart struct {
	id     string
	userID string
	lines  []line
}

// MemoryStore keeps products, carts, orders and sessions in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]domain.Product // productID -> product
	carts    map[string]*cart          // userID -> cart
	orders   map[string]*domain.Order  // orderID -> order
	sessions map[string]session        // token -> session
	now      func() time.Time

	stopCleanup chan struct{}
	wg          sync.WaitGroup
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		products:    make(map[string]domain.Product),
		carts:       make(map[string]*cart),
		orders:      make(map[string]*domain.Order),
		sessions:    make(map[string]session),
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop()

	return s
}

func (s *MemoryStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.expireSessions()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) expireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for token, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, token)
		}
	}
}

// SetProduct creates or replaces a product, including its stock.
func (s *MemoryStore) SetProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *MemoryStore) Product(id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, ErrProductNotFound
	}
	return p, nil
}

// IssueToken starts a session for userID.
func (s *MemoryStore) IssueToken(userID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.New().String()
	s.sessions[token] = session{userID: userID, expiresAt: s.now().Add(SessionTTL)}
	return token
}

// Authenticate resolves a token to its user.
func (s *MemoryStore) Authenticate(token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[token]
	if !ok {
		return "", ErrUnauthorized
	}
	if s.now().After(sess.expiresAt) {
		return "", ErrSessionExpired
	}
	return sess.userID, nil
}

// Cart returns the user's cart, creating an empty one on first access.
func (s *MemoryStore) Cart(userID string) domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(s.cartLocked(userID))
}

// AddItems merges lines into the user's cart. The whole request fails if any
// product is unknown or would exceed its stock.
func (s *MemoryStore) AddItems(userID string, items []AddLine) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartLocked(userID)

	// First pass: validate against what the cart would hold afterwards
	want := make(map[string]int, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			return ErrInvalidQuantity
		}
		p, ok := s.products[it.ProductID]
		if !ok {
			return ErrProductNotFound
		}
		want[it.ProductID] += it.Quantity
		if held(c, it.ProductID)+want[it.ProductID] > p.Stock {
			return ErrInsufficientStock
		}
	}

	// Second pass: merge
	for _, it := range items {
		price := s.products[it.ProductID].UnitPrice
		if it.Price.Valid {
			price = it.Price.Decimal
		}
		if i := indexOf(c, it.ProductID); i >= 0 {
			c.lines[i].quantity += it.Quantity
			continue
		}
		c.lines = append(c.lines, line{productID: it.ProductID, quantity: it.Quantity, price: price})
	}
	return nil
}

// RemoveItem takes quantity units of productID out of the cart. Removing
// at least the held quantity drops the line.
func (s *MemoryStore) RemoveItem(userID, cartID, productID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ownedCartLocked(userID, cartID)
	if err != nil {
		return err
	}
	i := indexOf(c, productID)
	if i < 0 {
		return ErrItemNotInCart
	}
	if c.lines[i].quantity <= quantity {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
		return nil
	}
	c.lines[i].quantity -= quantity
	return nil
}

// UpdateItems sets quantities. Nothing is applied unless every line is valid.
func (s *MemoryStore) UpdateItems(userID, cartID string, items []domain.ItemQuantity) error {
	if len(items) == 0 {
		return ErrEmptyItems
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ownedCartLocked(userID, cartID)
	if err != nil {
		return err
	}

	for _, it := range items {
		if it.Quantity < 1 {
			return ErrInvalidQuantity
		}
		if indexOf(c, it.ProductRef) < 0 {
			return ErrItemNotInCart
		}
		if p, ok := s.products[it.ProductRef]; ok && it.Quantity > p.Stock {
			return ErrInsufficientStock
		}
	}

	for _, it := range items {
		c.lines[indexOf(c, it.ProductRef)].quantity = it.Quantity
	}
	return nil
}

// Close stops the background cleanup and waits for it to finish
func (s *MemoryStore) Close() error {
	close(s.stopCleanup)
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) cartLocked(userID string) *cart {
	c, ok := s.carts[userID]
	if !ok {
		c = &cart{id: uuid.New().String(), userID: userID}
		s.carts[userID] = c
	}
	return c
}

func (s *MemoryStore) ownedCartLocked(userID, cartID string) (*cart, error) {
	c, ok := s.carts[userID]
	if !ok || c.id != cartID {
		return nil, ErrCartNotFound
	}
	return c, nil
}

func (s *MemoryStore) view(c *cart) domain.Cart {
	out := domain.Cart{ID: c.id, UserID: c.userID, Items: make([]domain.CartItem, 0, len(c.lines))}
	for _, l := range c.lines {
		item := domain.CartItem{ProductRef: l.productID, Quantity: l.quantity, UnitPrice: l.price}
		if p, ok := s.products[l.productID]; ok {
			item.ProductName = p.Name
			item.GSTPercent = p.GSTPercent
		}
		out.Items = append(out.Items, item)
	}
	return out
}

func indexOf(c *cart, productID string) int {
	for i, l := range c.lines {
		if l.productID == productID {
			return i
		}
	}
	return -1
}

func held(c *cart, productID string) int {
	if i := indexOf(c, productID); i >= 0 {
		return c.lines[i].quantity
	}
	return 0
}
