package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/credentials"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/remote"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockService behaves like the cart API: adds merge by product, removes are
// quantity-aware and unknown products are refused.
type mockService struct {
	m      sync.Mutex
	cartID string
	items  []domain.CartItem

	getErr    error
	getReject string
	mutateErr error
	reject    string
	// blocks the next GetCart until closed
	getGate chan struct{}
	// blocks the next AddItem until closed
	addGate chan struct{}

	getCalls    int
	addCalls    int
	removeCalls int
	updateCalls int
}

func newMockService() *mockService {
	return &mockService{cartID: "cart-1"}
}

func (m *mockService) GetCart(ctx context.Context, _ string) (remote.Result[domain.Cart], error) {
	m.m.Lock()
	m.getCalls++
	gate := m.getGate
	m.getGate = nil
	m.m.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return remote.Result[domain.Cart]{}, ctx.Err()
		}
	}

	m.m.Lock()
	defer m.m.Unlock()
	if m.getErr != nil {
		return remote.Result[domain.Cart]{}, m.getErr
	}
	if m.getReject != "" {
		return remote.Rejected[domain.Cart](m.getReject), nil
	}
	items := make([]domain.CartItem, len(m.items))
	copy(items, m.items)
	return remote.Success(domain.Cart{ID: m.cartID, UserID: "u1", Items: items}), nil
}

func (m *mockService) AddItem(ctx context.Context, _ string, items []remote.AddItem) (remote.Result[remote.Ack], error) {
	m.m.Lock()
	m.addCalls++
	gate := m.addGate
	m.addGate = nil
	m.m.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return remote.Result[remote.Ack]{}, ctx.Err()
		}
	}

	m.m.Lock()
	defer m.m.Unlock()
	if r, err, done := m.failLocked(); done {
		return r, err
	}
	for _, it := range items {
		merged := false
		for i := range m.items {
			if m.items[i].ProductRef == it.ProductRef {
				m.items[i].Quantity += it.Quantity
				merged = true
			}
		}
		if !merged {
			m.items = append(m.items, domain.CartItem{ProductRef: it.ProductRef, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
		}
	}
	return remote.Success(remote.Ack{}), nil
}

func (m *mockService) RemoveItem(_ context.Context, _, _ string, item remote.RemoveItem) (remote.Result[remote.Ack], error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.removeCalls++
	if r, err, done := m.failLocked(); done {
		return r, err
	}
	for i := range m.items {
		if m.items[i].ProductRef != item.ProductRef {
			continue
		}
		m.items[i].Quantity -= item.Quantity
		if m.items[i].Quantity <= 0 {
			m.items = append(m.items[:i], m.items[i+1:]...)
		}
		return remote.Success(remote.Ack{}), nil
	}
	return remote.Rejected[remote.Ack]("Product not found in cart"), nil
}

func (m *mockService) UpdateItemQuantity(_ context.Context, _, _ string, items []domain.ItemQuantity) (remote.Result[remote.Ack], error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.updateCalls++
	if r, err, done := m.failLocked(); done {
		return r, err
	}
	for _, it := range items {
		for i := range m.items {
			if m.items[i].ProductRef == it.ProductRef {
				m.items[i].Quantity = it.Quantity
			}
		}
	}
	return remote.Success(remote.Ack{}), nil
}

func (m *mockService) failLocked() (remote.Result[remote.Ack], error, bool) {
	if m.mutateErr != nil {
		return remote.Result[remote.Ack]{}, m.mutateErr, true
	}
	if m.reject != "" {
		return remote.Rejected[remote.Ack](m.reject), nil, true
	}
	return remote.Result[remote.Ack]{}, nil, false
}

func (m *mockService) set(fn func(m *mockService)) {
	m.m.Lock()
	defer m.m.Unlock()
	fn(m)
}

func (m *mockService) calls() (get, add, remove, update int) {
	m.m.Lock()
	defer m.m.Unlock()
	return m.getCalls, m.addCalls, m.removeCalls, m.updateCalls
}

func signedIn(t *testing.T) *credentials.MemoryStore {
	creds := credentials.NewMemoryStore()
	require.NoError(t, creds.Set(context.Background(), domain.Credentials{Token: "tok", UserID: "u1"}))
	return creds
}

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func pendingOps(s *CartStore) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func TestFetchCart_AppliesServerCart(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 2, UnitPrice: price(100)}}
	s := NewCartStore(svc, signedIn(t))

	require.NoError(t, s.FetchCart(context.Background()))

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusSucceeded, snap.Status)
	assert.Nil(t, snap.Error)
	assert.Equal(t, "cart-1", snap.Cart.ID)
	assert.Equal(t, 2, snap.Totals.Items)
	assert.True(t, price(200).Equal(snap.Totals.Price))
	assert.False(t, snap.LastUpdated.IsZero())
}

func TestFetchCart_Rejected(t *testing.T) {
	svc := newMockService()
	svc.getReject = "failed to fetch cart items"
	s := NewCartStore(svc, signedIn(t))

	err := s.FetchCart(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteRejected)

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusFailed, snap.Status)
	require.NotNil(t, snap.Error)
	assert.Equal(t, KindRemoteRejected, snap.Error.Kind)
	assert.Equal(t, "failed to fetch cart items", snap.Error.Message)
	assert.Equal(t, OpFetchCart, snap.Error.Op)
}

func TestFetchCart_NetworkFailureKeepsCart(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 1, UnitPrice: price(10)}}
	s := NewCartStore(svc, signedIn(t))
	require.NoError(t, s.FetchCart(context.Background()))

	svc.set(func(m *mockService) { m.getErr = remote.ErrTransport })
	err := s.FetchCart(context.Background())
	assert.ErrorIs(t, err, ErrNetworkFailure)
	assert.ErrorIs(t, err, remote.ErrTransport)
	assert.Equal(t, KindNetworkFailure, KindOf(err))

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusFailed, snap.Status)
	assert.Len(t, snap.Cart.Items, 1)
}

func TestAddItem_RepeatedAddsMerge(t *testing.T) {
	svc := newMockService()
	s := NewCartStore(svc, signedIn(t))
	ctx := context.Background()

	require.NoError(t, s.AddItem(ctx, "P1", 1, price(50)))
	require.NoError(t, s.AddItem(ctx, "P1", 2, price(50)))

	snap := s.Snapshot()
	require.Len(t, snap.Cart.Items, 1)
	assert.Equal(t, 3, snap.Cart.Items[0].Quantity)
	assert.Equal(t, 3, snap.Totals.Items)
	assert.True(t, price(150).Equal(snap.Totals.Price))

	get, add, _, _ := svc.calls()
	assert.Equal(t, 2, add)
	assert.Equal(t, 2, get, "every accepted mutation is followed by a refetch")
}

func TestAddItem_InvalidInputMakesNoCalls(t *testing.T) {
	tests := []struct {
		name     string
		ref      string
		quantity int
		price    decimal.Decimal
	}{
		{"empty ref", "", 1, price(1)},
		{"blank ref", "   ", 1, price(1)},
		{"zero quantity", "P1", 0, price(1)},
		{"negative quantity", "P1", -2, price(1)},
		{"negative price", "P1", 1, price(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockService()
			s := NewCartStore(svc, signedIn(t))

			err := s.AddItem(context.Background(), tt.ref, tt.quantity, tt.price)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, domain.StatusFailed, s.Status())

			get, add, _, _ := svc.calls()
			assert.Zero(t, get)
			assert.Zero(t, add)
		})
	}
}

func TestAddItem_RejectedLeavesCartUntouched(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 1, UnitPrice: price(10)}}
	s := NewCartStore(svc, signedIn(t))
	require.NoError(t, s.FetchCart(context.Background()))

	svc.set(func(m *mockService) { m.reject = "Product not found" })
	err := s.AddItem(context.Background(), "X", 1, price(1))
	assert.ErrorIs(t, err, ErrRemoteRejected)

	snap := s.Snapshot()
	assert.Equal(t, "Product not found", snap.Error.Message)
	assert.Len(t, snap.Cart.Items, 1)

	get, _, _, _ := svc.calls()
	assert.Equal(t, 1, get, "a refused mutation is not followed by a refetch")
}

func TestAddItem_IndeterminateWhenRefetchFails(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 1, UnitPrice: price(10)}}
	s := NewCartStore(svc, signedIn(t))
	require.NoError(t, s.FetchCart(context.Background()))
	before := s.Snapshot().Cart

	svc.set(func(m *mockService) { m.getErr = remote.ErrTransport })
	err := s.AddItem(context.Background(), "P2", 1, price(5))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndeterminateMutation)
	assert.ErrorIs(t, err, remote.ErrTransport)

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusFailed, snap.Status)
	assert.Equal(t, KindIndeterminateMutation, snap.Error.Kind)
	assert.Equal(t, before, snap.Cart, "the local cart must not guess the outcome")

	// the server did take the item; the next fetch shows it
	svc.set(func(m *mockService) { m.getErr = nil })
	require.NoError(t, s.FetchCart(context.Background()))
	assert.Len(t, s.Snapshot().Cart.Items, 2)
}

func TestOperations_WithoutCredentialsMakeNoCalls(t *testing.T) {
	svc := newMockService()
	s := NewCartStore(svc, credentials.NewMemoryStore())
	ctx := context.Background()

	errs := []error{
		s.FetchCart(ctx),
		s.AddItem(ctx, "P1", 1, price(1)),
		s.RemoveItem(ctx, "cart-1", "P1", 1),
		s.UpdateItemQuantity(ctx, "cart-1", []domain.ItemQuantity{{ProductRef: "P1", Quantity: 2}}),
	}
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrAuthenticationMissing)
		assert.Equal(t, KindAuthenticationMissing, KindOf(err))
	}

	get, add, remove, update := svc.calls()
	assert.Zero(t, get+add+remove+update)

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusFailed, snap.Status)
	assert.Equal(t, KindAuthenticationMissing, snap.Error.Kind)
}

func TestRemoveItem_DecrementsAndDeletes(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 3, UnitPrice: price(10)}}
	s := NewCartStore(svc, signedIn(t))
	ctx := context.Background()
	require.NoError(t, s.FetchCart(ctx))

	require.NoError(t, s.RemoveItem(ctx, "cart-1", "P1", 1))
	item, ok := s.Snapshot().Cart.Item("P1")
	require.True(t, ok)
	assert.Equal(t, 2, item.Quantity)

	require.NoError(t, s.RemoveItem(ctx, "cart-1", "P1", 2))
	snap := s.Snapshot()
	assert.True(t, snap.Cart.IsEmpty())
	assert.Equal(t, 0, snap.Totals.Items)
	assert.True(t, snap.Totals.Price.IsZero())
}

func TestRemoveItem_UnknownProductIsRejected(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 1, UnitPrice: price(10)}}
	s := NewCartStore(svc, signedIn(t))
	ctx := context.Background()
	require.NoError(t, s.FetchCart(ctx))
	before := s.Snapshot().Cart

	err := s.RemoveItem(ctx, "cart-1", "NOPE", 1)
	assert.ErrorIs(t, err, ErrRemoteRejected)
	assert.Equal(t, before, s.Snapshot().Cart)
}

func TestRemoveItem_CartMismatch(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 1, UnitPrice: price(10)}}
	s := NewCartStore(svc, signedIn(t))
	require.NoError(t, s.FetchCart(context.Background()))

	err := s.RemoveItem(context.Background(), "other-cart", "P1", 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, ErrCartMismatch)

	_, _, remove, _ := svc.calls()
	assert.Zero(t, remove)
}

func TestRemoveItem_BeforeFirstFetch(t *testing.T) {
	svc := newMockService()
	s := NewCartStore(svc, signedIn(t))

	err := s.RemoveItem(context.Background(), "", "P1", 1)
	assert.ErrorIs(t, err, ErrCartMismatch)
}

func TestUpdateItemQuantity_SetsQuantity(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{
		{ProductRef: "P1", Quantity: 1, UnitPrice: price(10)},
		{ProductRef: "P2", Quantity: 1, UnitPrice: price(5)},
	}
	s := NewCartStore(svc, signedIn(t))
	ctx := context.Background()
	require.NoError(t, s.FetchCart(ctx))

	require.NoError(t, s.UpdateItemQuantity(ctx, "cart-1", []domain.ItemQuantity{
		{ProductRef: "P1", Quantity: 4},
		{ProductRef: "P2", Quantity: 2},
	}))

	snap := s.Snapshot()
	assert.Equal(t, 6, snap.Totals.Items)
	assert.True(t, price(50).Equal(snap.Totals.Price))
}

func TestUpdateItemQuantity_RejectsBatchBelowOne(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{
		{ProductRef: "P1", Quantity: 3, UnitPrice: price(10)},
		{ProductRef: "P2", Quantity: 1, UnitPrice: price(5)},
	}
	s := NewCartStore(svc, signedIn(t))
	ctx := context.Background()
	require.NoError(t, s.FetchCart(ctx))

	err := s.UpdateItemQuantity(ctx, "cart-1", []domain.ItemQuantity{
		{ProductRef: "P1", Quantity: 2},
		{ProductRef: "P2", Quantity: 0},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = s.UpdateItemQuantity(ctx, "cart-1", nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, _, update := svc.calls()
	assert.Zero(t, update)
	item, _ := s.Snapshot().Cart.Item("P1")
	assert.Equal(t, 3, item.Quantity, "no part of a refused batch is applied")
}

func TestAddProduct_StockCheck(t *testing.T) {
	svc := newMockService()
	s := NewCartStore(svc, signedIn(t))
	ctx := context.Background()

	err := s.AddProduct(ctx, domain.Product{ID: "P1", UnitPrice: price(10), Stock: 2}, 3)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, "addItem: only 2 items available in stock", err.Error())

	err = s.AddProduct(ctx, domain.Product{ID: "P1", UnitPrice: price(10)}, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, "this item is currently out of stock", s.Snapshot().Error.Message)

	require.NoError(t, s.AddProduct(ctx, domain.Product{ID: "P1", UnitPrice: price(10), Stock: 2}, 2))
	assert.Equal(t, 2, s.Snapshot().Totals.Items)

	_, add, _, _ := svc.calls()
	assert.Equal(t, 1, add)
}

func TestFetchCart_ConcurrentCallsShareRequest(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 1, UnitPrice: price(10)}}
	gate := make(chan struct{})
	svc.getGate = gate
	s := NewCartStore(svc, signedIn(t))

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.FetchCart(context.Background())
		}(i)
	}

	assert.Eventually(t, func() bool {
		get, _, _, _ := svc.calls()
		return get == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.StatusLoading, s.Status())
	close(gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, domain.StatusSucceeded, s.Status())
	assert.Len(t, s.Snapshot().Cart.Items, 1)
}

func TestStatus_StaysLoadingUntilAllOperationsSettle(t *testing.T) {
	svc := newMockService()
	gate := make(chan struct{})
	svc.getGate = gate
	s := NewCartStore(svc, signedIn(t))

	done := make(chan error, 1)
	go func() { done <- s.FetchCart(context.Background()) }()
	assert.Eventually(t, func() bool {
		get, _, _, _ := svc.calls()
		return get == 1
	}, time.Second, 5*time.Millisecond)

	// a fast local failure while the fetch is outstanding
	err := s.AddItem(context.Background(), "", 1, price(1))
	require.ErrorIs(t, err, ErrInvalidInput)
	snap := s.Snapshot()
	assert.Equal(t, domain.StatusLoading, snap.Status)
	require.NotNil(t, snap.Error)

	close(gate)
	require.NoError(t, <-done)
	snap = s.Snapshot()
	assert.Equal(t, domain.StatusSucceeded, snap.Status)
	assert.Nil(t, snap.Error)
}

func TestStatus_FailureSettledBySuccessIsConsistent(t *testing.T) {
	svc := newMockService()
	svc.reject = "out of stock"
	gate := make(chan struct{})
	svc.addGate = gate
	s := NewCartStore(svc, signedIn(t))
	ctx := context.Background()

	addDone := make(chan error, 1)
	go func() { addDone <- s.AddItem(ctx, "P1", 1, price(10)) }()
	assert.Eventually(t, func() bool {
		_, add, _, _ := svc.calls()
		return add == 1
	}, time.Second, 5*time.Millisecond)

	fetchDone := make(chan error, 1)
	go func() { fetchDone <- s.FetchCart(ctx) }()
	assert.Eventually(t, func() bool { return pendingOps(s) == 2 }, time.Second, 5*time.Millisecond)

	close(gate)
	assert.ErrorIs(t, <-addDone, ErrRemoteRejected)
	require.NoError(t, <-fetchDone)

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusSucceeded, snap.Status)
	assert.Nil(t, snap.Error)
}

func TestStatus_SettlesFailedWhenLastOperationFails(t *testing.T) {
	svc := newMockService()
	s := NewCartStore(svc, signedIn(t))
	ctx := context.Background()
	require.NoError(t, s.FetchCart(ctx))

	svc.set(func(m *mockService) { m.reject = "out of stock" })
	require.Error(t, s.AddItem(ctx, "P1", 1, price(10)))

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusFailed, snap.Status)
	require.NotNil(t, snap.Error)
	assert.Equal(t, "out of stock", snap.Error.Message)
}

func TestFetchCart_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 1, UnitPrice: price(10)}}
	gate := make(chan struct{})
	svc.getGate = gate
	s := NewCartStore(svc, signedIn(t))

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	doneA := make(chan error, 1)
	go func() { doneA <- s.FetchCart(ctxA) }()
	assert.Eventually(t, func() bool {
		get, _, _, _ := svc.calls()
		return get == 1
	}, time.Second, 5*time.Millisecond)

	doneB := make(chan error, 1)
	go func() { doneB <- s.FetchCart(context.Background()) }()
	assert.Eventually(t, func() bool { return pendingOps(s) == 2 }, time.Second, 5*time.Millisecond)

	cancelA()
	errA := <-doneA
	assert.ErrorIs(t, errA, ErrNetworkFailure)
	assert.ErrorIs(t, errA, context.Canceled)

	close(gate)
	require.NoError(t, <-doneB)

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusSucceeded, snap.Status)
	assert.Len(t, snap.Cart.Items, 1)
}

func TestOperations_AreSerialized(t *testing.T) {
	svc := newMockService()
	s := NewCartStore(svc, signedIn(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.AddItem(ctx, "P1", 1, price(10)))
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusSucceeded, snap.Status)
	assert.Equal(t, 10, snap.Totals.Items)
	assert.True(t, price(100).Equal(snap.Totals.Price))
}

func TestWithTimeout_BoundsOperation(t *testing.T) {
	svc := newMockService()
	svc.getGate = make(chan struct{})
	s := NewCartStore(svc, signedIn(t), WithTimeout(20*time.Millisecond))

	err := s.FetchCart(context.Background())
	assert.ErrorIs(t, err, ErrNetworkFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "request timed out", s.Snapshot().Error.Message)
}

func TestReset_DiscardsInFlightFetch(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 1, UnitPrice: price(10)}}
	gate := make(chan struct{})
	svc.getGate = gate
	s := NewCartStore(svc, signedIn(t))

	done := make(chan error, 1)
	go func() { done <- s.FetchCart(context.Background()) }()
	assert.Eventually(t, func() bool {
		get, _, _, _ := svc.calls()
		return get == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Reset(context.Background()))
	close(gate)
	require.NoError(t, <-done)

	assert.True(t, s.Snapshot().Cart.IsEmpty(), "a fetch started before reset is stale")
}

func TestReset_DropsRefetchOfInFlightMutation(t *testing.T) {
	rc, mr := newRedisCache(t)
	svc := newMockService()
	gate := make(chan struct{})
	svc.addGate = gate
	creds := signedIn(t)
	s := NewCartStore(svc, creds, WithCache(rc))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.AddItem(ctx, "P1", 1, price(10)) }()
	assert.Eventually(t, func() bool {
		_, add, _, _ := svc.calls()
		return add == 1
	}, time.Second, 5*time.Millisecond)

	// logout while the add is still on the wire
	require.NoError(t, creds.Clear(ctx))
	require.NoError(t, s.Reset(ctx))
	close(gate)
	require.NoError(t, <-done)

	snap := s.Snapshot()
	assert.Equal(t, domain.StatusIdle, snap.Status)
	assert.True(t, snap.Cart.IsEmpty())
	assert.Empty(t, snap.Cart.ID)
	assert.False(t, mr.Exists("cart:u1"), "a logged out cart must not be cached")

	get, _, _, _ := svc.calls()
	assert.Equal(t, 1, get, "the mutation still refetched")
}

func TestReset_ClearsState(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 1, UnitPrice: price(10)}}
	s := NewCartStore(svc, signedIn(t))
	require.NoError(t, s.FetchCart(context.Background()))

	require.NoError(t, s.Reset(context.Background()))
	snap := s.Snapshot()
	assert.Equal(t, domain.StatusIdle, snap.Status)
	assert.Nil(t, snap.Error)
	assert.True(t, snap.Cart.IsEmpty())
	assert.Empty(t, snap.Cart.ID)
	assert.True(t, snap.LastUpdated.IsZero())
}

func TestSubscribe_ReceivesLatestSnapshot(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 2, UnitPrice: price(3)}}
	s := NewCartStore(svc, signedIn(t))

	ch, unsubscribe := s.Subscribe()
	first := <-ch
	assert.Equal(t, domain.StatusIdle, first.Status)

	require.NoError(t, s.FetchCart(context.Background()))

	// begin and resolve both published; only the latest is buffered
	latest := <-ch
	assert.Equal(t, domain.StatusSucceeded, latest.Status)
	assert.Equal(t, 2, latest.Totals.Items)
	assert.Equal(t, s.Snapshot().Version, latest.Version)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}

func TestSnapshot_IsACopy(t *testing.T) {
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 2, UnitPrice: price(3)}}
	s := NewCartStore(svc, signedIn(t))
	require.NoError(t, s.FetchCart(context.Background()))

	snap := s.Snapshot()
	snap.Cart.Items[0].Quantity = 99
	item, _ := s.Snapshot().Cart.Item("P1")
	assert.Equal(t, 2, item.Quantity)
}

func newRedisCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisCache(client), mr
}

func TestHydrate_FromCachedSnapshot(t *testing.T) {
	rc, _ := newRedisCache(t)
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 2, UnitPrice: price(7)}}
	creds := signedIn(t)

	first := NewCartStore(svc, creds, WithCache(rc))
	require.NoError(t, first.FetchCart(context.Background()))
	_, err := rc.Get(context.Background(), "u1")
	require.NoError(t, err, "the snapshot is written before FetchCart returns")

	second := NewCartStore(svc, creds, WithCache(rc))
	ok, err := second.Hydrate(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	snap := second.Snapshot()
	assert.Equal(t, domain.StatusIdle, snap.Status)
	assert.Equal(t, 2, snap.Totals.Items)
	assert.True(t, price(14).Equal(snap.Totals.Price))
}

func TestHydrate_MissAndAfterFetch(t *testing.T) {
	rc, _ := newRedisCache(t)
	svc := newMockService()
	s := NewCartStore(svc, signedIn(t), WithCache(rc))

	ok, err := s.Hydrate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.FetchCart(context.Background()))
	ok, err = s.Hydrate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "a fetched cart is never replaced by the cache")
}

func TestHydrate_WithoutCache(t *testing.T) {
	s := NewCartStore(newMockService(), signedIn(t))
	ok, err := s.Hydrate(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReset_DeletesCachedSnapshot(t *testing.T) {
	rc, mr := newRedisCache(t)
	svc := newMockService()
	svc.items = []domain.CartItem{{ProductRef: "P1", Quantity: 1, UnitPrice: price(1)}}
	s := NewCartStore(svc, signedIn(t), WithCache(rc))
	require.NoError(t, s.FetchCart(context.Background()))
	require.True(t, mr.Exists("cart:u1"))

	require.NoError(t, s.Reset(context.Background()))
	assert.False(t, mr.Exists("cart:u1"))
}

func TestAddItem_CachesSnapshotBeforeReturning(t *testing.T) {
	rc, _ := newRedisCache(t)
	svc := newMockService()
	s := NewCartStore(svc, signedIn(t), WithCache(rc))

	require.NoError(t, s.AddItem(context.Background(), "P1", 3, price(5)))

	snap, err := rc.Get(context.Background(), "u1")
	require.NoError(t, err)
	item, ok := snap.Cart.Item("P1")
	require.True(t, ok)
	assert.Equal(t, 3, item.Quantity)
}

func TestOpError_Format(t *testing.T) {
	err := error(&OpError{Op: OpAddItem, Kind: KindRemoteRejected, Message: "Product not found"})
	assert.Equal(t, "addItem: Product not found", err.Error())
	assert.True(t, errors.Is(err, ErrRemoteRejected))
	assert.False(t, errors.Is(err, ErrNetworkFailure))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}
