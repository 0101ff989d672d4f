package backend

import (
	"sort"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/pricing"
	"github.com/google/uuid"
)

// ProceedToCheckout freezes the user's cart into a PENDING order priced with
// GST. Proceeding again with the same cart refreshes that pending order
// instead of opening a second one.
func (s *MemoryStore) ProceedToCheckout(userID, cartID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.ownedCartLocked(userID, cartID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(c.lines) == 0 {
		return domain.Order{}, ErrEmptyCart
	}

	summary := pricing.Summarize(s.view(c).Items)
	names := make(map[string]string, len(c.lines))
	for _, l := range c.lines {
		names[l.productID] = s.products[l.productID].Name
	}
	lines := make([]domain.OrderLine, 0, len(summary.Lines))
	for _, l := range summary.Lines {
		lines = append(lines, domain.OrderLine{
			ProductRef:  l.ProductRef,
			ProductName: names[l.ProductRef],
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TotalPrice:  l.Total,
		})
	}

	now := s.now()
	o := s.pendingOrderLocked(cartID)
	if o == nil {
		o = &domain.Order{
			ID:        uuid.New().String(),
			CartID:    cartID,
			UserID:    userID,
			Status:    domain.OrderStatusPending,
			CreatedAt: now,
		}
		s.orders[o.ID] = o
	}
	o.Items = lines
	o.TotalAmount = summary.Total
	o.UpdatedAt = now
	return cloneOrder(o), nil
}

// PlaceOrder moves a PENDING order to PROCESSING. Stock for every line is
// taken at once or not at all, and the user's cart is emptied.
func (s *MemoryStore) PlaceOrder(userID, orderID string, req domain.PlaceOrderRequest) (domain.Placement, error) {
	if strings.TrimSpace(req.Shipping.Party.PartyName) == "" || strings.TrimSpace(req.Shipping.Party.Address) == "" {
		return domain.Placement{}, ErrInvalidShipping
	}
	method := req.PaymentMethod
	if method == "" {
		method = domain.PaymentCreditCard
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return domain.Placement{}, ErrOrderNotFound
	}
	if !domain.CanTransitionTo(o.Status, domain.OrderStatusProcessing) {
		return domain.Placement{}, ErrIllegalTransition
	}

	for _, l := range o.Items {
		p, ok := s.products[l.ProductRef]
		if !ok {
			return domain.Placement{}, ErrProductNotFound
		}
		if l.Quantity > p.Stock {
			return domain.Placement{}, ErrInsufficientStock
		}
	}
	for _, l := range o.Items {
		p := s.products[l.ProductRef]
		p.Stock -= l.Quantity
		s.products[l.ProductRef] = p
	}

	shipping := req.Shipping
	o.Shipping = &shipping
	o.PaymentMethod = method
	if method != domain.PaymentCashOnDelivery {
		o.PaymentID = uuid.New().String()
	}
	o.Status = domain.OrderStatusProcessing
	o.UpdatedAt = s.now()

	if c, ok := s.carts[userID]; ok && c.id == o.CartID {
		c.lines = nil
	}
	return domain.Placement{OrderID: o.ID, PaymentID: o.PaymentID, Status: o.Status}, nil
}

// SetOrderStatus advances an order, for fulfilment tooling and tests.
func (s *MemoryStore) SetOrderStatus(orderID string, status domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	if !domain.CanTransitionTo(o.Status, status) {
		return ErrIllegalTransition
	}
	o.Status = status
	o.UpdatedAt = s.now()
	return nil
}

// Orders lists the user's orders, newest first.
func (s *MemoryStore) Orders(userID string) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Order, 0)
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) Order(userID, orderID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return domain.Order{}, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *MemoryStore) pendingOrderLocked(cartID string) *domain.Order {
	for _, o := range s.orders {
		if o.CartID == cartID && o.Status == domain.OrderStatusPending {
			return o
		}
	}
	return nil
}

func cloneOrder(o *domain.Order) domain.Order {
	out := *o
	out.Items = append([]domain.OrderLine(nil), o.Items...)
	if o.Shipping != nil {
		shipping := *o.Shipping
		out.Shipping = &shipping
	}
	return out
}
