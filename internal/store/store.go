// Package store keeps the local view of the customer's cart consistent with
// the server-side cart. The server is authoritative: every mutation is sent
// first and the local cart is then replaced by a fresh fetch.
package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/credentials"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/pricing"
	"github.com/fjod/go_cart/storefront/internal/remote"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const (
	OpFetchCart          = "fetchCart"
	OpAddItem            = "addItem"
	OpRemoveItem         = "removeItem"
	OpUpdateItemQuantity = "updateItemQuantity"

	cacheWriteTimeout = time.Second
)

// Snapshot is an immutable copy of the store state.
type Snapshot struct {
	Cart        domain.Cart        `json:"cart"`
	Status      domain.StoreStatus `json:"status"`
	Error       *ErrorInfo         `json:"error"`
	Totals      pricing.Totals     `json:"totals"`
	Version     uint64             `json:"version"`
	LastUpdated time.Time          `json:"last_updated"`
}

type CartStore struct {
	service remote.CartService
	creds   credentials.Store
	cache   cache.CartCache
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time

	// one operation talks to the cart service at a time
	slot *semaphore.Weighted
	sfg  singleflight.Group

	// held across a snapshot write, so Reset's delete always lands last
	cacheMu sync.Mutex

	mu          sync.Mutex
	cart        domain.Cart
	status      domain.StoreStatus
	lastErr     *ErrorInfo
	version     uint64
	lastUpdated time.Time
	pending     int
	fetchSeq    uint64 // last sequence handed to a fetch
	appliedSeq  uint64 // fetches at or below this sequence are stale
	generation  uint64 // bumped by Reset; older operations are not applied
	hasFetched  bool
	userID      string // owner of the cart, for the snapshot cache
	subs        map[int]chan Snapshot
	nextSub     int
}

type Option func(*CartStore)

func WithLogger(l *zap.Logger) Option {
	return func(s *CartStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout bounds each operation, including the refetch that follows a mutation.
func WithTimeout(d time.Duration) Option {
	return func(s *CartStore) { s.timeout = d }
}

// WithCache keeps a copy of every applied cart for Hydrate.
func WithCache(c cache.CartCache) Option {
	return func(s *CartStore) { s.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *CartStore) { s.now = now }
}

func NewCartStore(service remote.CartService, creds credentials.Store, opts ...Option) *CartStore {
	s := &CartStore{
		service: service,
		creds:   creds,
		logger:  zap.NewNop(),
		now:     time.Now,
		slot:    semaphore.NewWeighted(1),
		cart:    domain.Cart{Items: []domain.CartItem{}},
		status:  domain.StatusIdle,
		subs:    make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("cart_store")
	return s
}

// FetchCart replaces the local cart with the server's. Concurrent callers
// share one request.
func (s *CartStore) FetchCart(ctx context.Context) error {
	gen := s.begin(OpFetchCart)

	creds, opErr := s.credentials(ctx, OpFetchCart)
	if opErr != nil {
		return s.resolve(OpFetchCart, gen, nil, opErr)
	}

	ch := s.sfg.DoChan("fetch:"+creds.Token, func() (interface{}, error) {
		// the shared request outlives whichever caller started it
		fctx := context.WithoutCancel(ctx)
		release, err := s.acquire(fctx)
		if err != nil {
			return nil, transportFailure(OpFetchCart, err)
		}
		defer release()

		opCtx, cancel := s.opContext(fctx)
		defer cancel()
		return s.fetch(opCtx, OpFetchCart, creds)
	})

	select {
	case <-ctx.Done():
		return s.resolve(OpFetchCart, gen, nil, transportFailure(OpFetchCart, ctx.Err()))
	case res := <-ch:
		if res.Shared {
			s.logger.Debug("fetch coalesced with an in-flight request")
		}
		if res.Err != nil {
			return s.resolve(OpFetchCart, gen, nil, res.Err)
		}
		return s.resolve(OpFetchCart, gen, res.Val.(*fetched), nil)
	}
}

// AddItem sends the item to the server and then refetches the cart. The
// add response itself never becomes local state.
func (s *CartStore) AddItem(ctx context.Context, productRef string, quantity int, unitPrice decimal.Decimal) error {
	gen := s.begin(OpAddItem)

	creds, opErr := s.credentials(ctx, OpAddItem)
	if opErr != nil {
		return s.resolve(OpAddItem, gen, nil, opErr)
	}
	productRef = strings.TrimSpace(productRef)
	switch {
	case productRef == "":
		return s.resolve(OpAddItem, gen, nil, invalid(OpAddItem, nil, "invalid product data"))
	case quantity < 1:
		return s.resolve(OpAddItem, gen, nil, invalid(OpAddItem, nil, "quantity must be at least 1"))
	case unitPrice.IsNegative():
		return s.resolve(OpAddItem, gen, nil, invalid(OpAddItem, nil, "unit price must not be negative"))
	}

	f, err := s.mutate(ctx, OpAddItem, creds, func(ctx context.Context) (remote.Result[remote.Ack], error) {
		return s.service.AddItem(ctx, creds.Token, []remote.AddItem{
			{ProductRef: productRef, Quantity: quantity, UnitPrice: unitPrice},
		})
	})
	return s.resolve(OpAddItem, gen, f, err)
}

// AddProduct is the product page path: it refuses quantities above the
// product's stock before delegating to AddItem.
func (s *CartStore) AddProduct(ctx context.Context, product domain.Product, quantity int) error {
	if product.Stock < 1 || quantity > product.Stock {
		gen := s.begin(OpAddItem)
		msg := "this item is currently out of stock"
		if product.Stock > 0 {
			msg = "only " + strconv.Itoa(product.Stock) + " items available in stock"
		}
		return s.resolve(OpAddItem, gen, nil, invalid(OpAddItem, ErrInsufficientStock, msg))
	}
	return s.AddItem(ctx, product.ID, quantity, product.UnitPrice)
}

// RemoveItem deletes quantity units of productRef from the cart cartID,
// which must be the id of the current local cart.
func (s *CartStore) RemoveItem(ctx context.Context, cartID, productRef string, quantity int) error {
	gen := s.begin(OpRemoveItem)

	creds, opErr := s.credentials(ctx, OpRemoveItem)
	if opErr != nil {
		return s.resolve(OpRemoveItem, gen, nil, opErr)
	}
	if opErr := s.checkCartID(OpRemoveItem, cartID); opErr != nil {
		return s.resolve(OpRemoveItem, gen, nil, opErr)
	}
	if strings.TrimSpace(productRef) == "" {
		return s.resolve(OpRemoveItem, gen, nil, invalid(OpRemoveItem, nil, "invalid product data"))
	}
	if quantity < 1 {
		return s.resolve(OpRemoveItem, gen, nil, invalid(OpRemoveItem, nil, "quantity must be at least 1"))
	}

	f, err := s.mutate(ctx, OpRemoveItem, creds, func(ctx context.Context) (remote.Result[remote.Ack], error) {
		return s.service.RemoveItem(ctx, creds.Token, cartID, remote.RemoveItem{ProductRef: productRef, Quantity: quantity})
	})
	return s.resolve(OpRemoveItem, gen, f, err)
}

// UpdateItemQuantity sets the quantity of each listed item. The batch is
// rejected as a whole if any quantity is below 1; decrementing to zero is a
// RemoveItem.
func (s *CartStore) UpdateItemQuantity(ctx context.Context, cartID string, items []domain.ItemQuantity) error {
	gen := s.begin(OpUpdateItemQuantity)

	creds, opErr := s.credentials(ctx, OpUpdateItemQuantity)
	if opErr != nil {
		return s.resolve(OpUpdateItemQuantity, gen, nil, opErr)
	}
	if opErr := s.checkCartID(OpUpdateItemQuantity, cartID); opErr != nil {
		return s.resolve(OpUpdateItemQuantity, gen, nil, opErr)
	}
	if len(items) == 0 {
		return s.resolve(OpUpdateItemQuantity, gen, nil, invalid(OpUpdateItemQuantity, nil, "no items to update"))
	}
	batch := make([]domain.ItemQuantity, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.ProductRef) == "" {
			return s.resolve(OpUpdateItemQuantity, gen, nil, invalid(OpUpdateItemQuantity, nil, "invalid product data"))
		}
		if it.Quantity < 1 {
			return s.resolve(OpUpdateItemQuantity, gen, nil,
				invalid(OpUpdateItemQuantity, nil, "quantity for "+it.ProductRef+" must be at least 1"))
		}
		batch[i] = it
	}

	f, err := s.mutate(ctx, OpUpdateItemQuantity, creds, func(ctx context.Context) (remote.Result[remote.Ack], error) {
		return s.service.UpdateItemQuantity(ctx, creds.Token, cartID, batch)
	})
	return s.resolve(OpUpdateItemQuantity, gen, f, err)
}

// Reset empties the cart and returns to idle, as on logout. Operations still
// in flight, including the refetch of a pending mutation, are not applied
// once they resolve.
func (s *CartStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	userID := s.userID
	s.userID = ""
	s.cart = domain.Cart{Items: []domain.CartItem{}}
	s.status = domain.StatusIdle
	s.lastErr = nil
	s.lastUpdated = time.Time{}
	s.appliedSeq = s.fetchSeq
	s.generation++
	s.pending = 0
	s.hasFetched = false
	s.version++
	s.notifyLocked()
	s.mu.Unlock()

	if s.cache != nil && userID != "" {
		s.cacheMu.Lock()
		defer s.cacheMu.Unlock()
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.logger.Warn("cart snapshot delete failed", zap.String("user_id", userID), zap.Error(err))
			return err
		}
	}
	return nil
}

// Hydrate loads the last cached cart for the signed in user, if the store
// has not applied a fetched cart yet. Status is left untouched.
func (s *CartStore) Hydrate(ctx context.Context) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	creds, err := s.creds.Get(ctx)
	if err != nil || creds.UserID == "" {
		return false, nil
	}
	snap, err := s.cache.Get(ctx, creds.UserID)
	if errors.Is(err, cache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasFetched {
		return false, nil
	}
	s.cart = snap.Cart.Clone()
	if s.cart.Items == nil {
		s.cart.Items = []domain.CartItem{}
	}
	s.userID = creds.UserID
	s.lastUpdated = snap.CachedAt
	s.version++
	s.notifyLocked()
	return true, nil
}

// Snapshot returns the current state.
func (s *CartStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *CartStore) Status() domain.StoreStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe returns a channel that receives the current snapshot and then
// every later one. Slow readers only ever see the latest snapshot. The
// returned func unsubscribes and closes the channel.
func (s *CartStore) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- s.snapshotLocked()
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

type fetched struct {
	cart   domain.Cart
	seq    uint64
	userID string
}

type mutation func(ctx context.Context) (remote.Result[remote.Ack], error)

// mutate runs send and, if the server accepted it, the mandatory refetch.
// A refetch failure after an accepted mutation is indeterminate.
func (s *CartStore) mutate(ctx context.Context, op string, creds domain.Credentials, send mutation) (*fetched, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, transportFailure(op, err)
	}
	defer release()

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	res, err := send(opCtx)
	if err != nil {
		return nil, transportFailure(op, err)
	}
	if !res.OK {
		return nil, rejected(op, res.Message)
	}

	f, err := s.fetch(opCtx, op, creds)
	if err != nil {
		return nil, indeterminate(op, err)
	}
	return f, nil
}

// fetch must be called with the slot held.
func (s *CartStore) fetch(ctx context.Context, op string, creds domain.Credentials) (*fetched, error) {
	s.mu.Lock()
	s.fetchSeq++
	seq := s.fetchSeq
	s.mu.Unlock()

	res, err := s.service.GetCart(ctx, creds.Token)
	if err != nil {
		return nil, transportFailure(op, err)
	}
	if !res.OK {
		return nil, rejected(op, res.Message)
	}
	cart := res.Value.Clone()
	if cart.Items == nil {
		cart.Items = []domain.CartItem{}
	}
	userID := creds.UserID
	if userID == "" {
		userID = cart.UserID
	}
	return &fetched{cart: cart, seq: seq, userID: userID}, nil
}

func (s *CartStore) credentials(ctx context.Context, op string) (domain.Credentials, *OpError) {
	creds, err := s.creds.Get(ctx)
	if err != nil {
		msg := ErrAuthenticationMissing.Error()
		if !errors.Is(err, credentials.ErrNoCredentials) {
			msg += ": " + err.Error()
		}
		return domain.Credentials{}, &OpError{Op: op, Kind: KindAuthenticationMissing, Message: msg, Err: err}
	}
	if creds.Token == "" {
		return domain.Credentials{}, &OpError{Op: op, Kind: KindAuthenticationMissing, Message: ErrAuthenticationMissing.Error()}
	}
	return creds, nil
}

func (s *CartStore) checkCartID(op, cartID string) *OpError {
	s.mu.Lock()
	current := s.cart.ID
	s.mu.Unlock()
	if cartID == "" || cartID != current {
		return invalid(op, ErrCartMismatch, ErrCartMismatch.Error())
	}
	return nil
}

func (s *CartStore) acquire(ctx context.Context) (func(), error) {
	if err := s.slot.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.slot.Release(1) }, nil
}

func (s *CartStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// begin marks an operation outstanding and returns the generation it
// belongs to.
func (s *CartStore) begin(op string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending++
	s.status = domain.StatusLoading
	s.lastErr = nil
	s.version++
	s.notifyLocked()
	s.logger.Debug("operation started", zap.String("op", op))
	return s.generation
}

// resolve applies the outcome of one operation. The cart is replaced only by
// a fetch newer than the one it came from; status settles once no other
// operation is pending, and then reflects the operation that settled it.
func (s *CartStore) resolve(op string, gen uint64, f *fetched, err error) error {
	var opErr *OpError
	if err != nil && !errors.As(err, &opErr) {
		opErr = transportFailure(op, err)
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("dropping outcome of an operation started before reset", zap.String("op", op))
		if opErr != nil {
			return opErr
		}
		return nil
	}
	applied := false
	if f != nil && f.seq > s.appliedSeq {
		s.cart = f.cart.Clone()
		s.appliedSeq = f.seq
		s.hasFetched = true
		s.userID = f.userID
		s.lastUpdated = s.now()
		applied = true
	}
	if s.pending > 0 {
		s.pending--
	}
	if opErr != nil {
		s.lastErr = &ErrorInfo{Op: op, Kind: opErr.Kind, Message: opErr.Message, At: s.now()}
	}
	if s.pending == 0 {
		if opErr != nil {
			s.status = domain.StatusFailed
		} else {
			s.status = domain.StatusSucceeded
			s.lastErr = nil
		}
	}
	s.version++
	s.notifyLocked()
	s.mu.Unlock()

	if opErr != nil {
		s.logger.Warn("operation failed",
			zap.String("op", op), zap.String("kind", string(opErr.Kind)), zap.String("message", opErr.Message))
		return opErr
	}
	s.logger.Debug("operation succeeded", zap.String("op", op), zap.Bool("applied", applied))
	if applied {
		s.writeCache(gen, f)
	}
	return nil
}

// writeCache stores f as the user's snapshot before the operation returns.
// It skips carts that a newer fetch or a Reset has superseded in the meantime.
func (s *CartStore) writeCache(gen uint64, f *fetched) {
	if s.cache == nil || f.userID == "" {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.mu.Lock()
	current := gen == s.generation && f.seq == s.appliedSeq
	s.mu.Unlock()
	if !current {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
	defer cancel()
	if err := s.cache.Set(ctx, f.userID, f.cart); err != nil {
		s.logger.Warn("cart snapshot write failed", zap.String("user_id", f.userID), zap.Error(err))
	}
}

func (s *CartStore) snapshotLocked() Snapshot {
	var errInfo *ErrorInfo
	if s.lastErr != nil {
		e := *s.lastErr
		errInfo = &e
	}
	cart := s.cart.Clone()
	return Snapshot{
		Cart:        cart,
		Status:      s.status,
		Error:       errInfo,
		Totals:      pricing.CartTotals(cart.Items),
		Version:     s.version,
		LastUpdated: s.lastUpdated,
	}
}

func (s *CartStore) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// drop the stale pending snapshot in favour of this one
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
