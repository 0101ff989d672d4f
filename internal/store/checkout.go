package store

import (
	"context"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/remote"
	"go.uber.org/zap"
)

const (
	OpListOrders = "listOrders"
	OpGetOrder   = "getOrder"
	OpPlaceOrder = "placeOrder"
)

// Checkout turns the cart held by a CartStore into orders. It shares the
// store's credentials, timeout and request slot, so an order is never placed
// while a cart mutation is in flight.
type Checkout struct {
	orders remote.OrderService
	cart   *CartStore
	logger *zap.Logger
}

func NewCheckout(orders remote.OrderService, cart *CartStore) *Checkout {
	return &Checkout{orders: orders, cart: cart, logger: cart.logger.Named("checkout")}
}

// PlaceOrder checks out the current cart and places the resulting order. The
// cart is refetched afterwards; a failed refetch is logged and does not undo
// the placement.
func (c *Checkout) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.Placement, error) {
	creds, opErr := c.cart.credentials(ctx, OpPlaceOrder)
	if opErr != nil {
		return domain.Placement{}, opErr
	}
	party := req.Shipping.Party
	if strings.TrimSpace(party.PartyName) == "" || strings.TrimSpace(party.Address) == "" {
		return domain.Placement{}, invalid(OpPlaceOrder, nil, "party name and address are required")
	}
	switch req.PaymentMethod {
	case "", domain.PaymentCreditCard, domain.PaymentCashOnDelivery:
	default:
		return domain.Placement{}, invalid(OpPlaceOrder, nil, "unsupported payment method "+req.PaymentMethod)
	}

	snap := c.cart.Snapshot()
	if snap.Cart.ID == "" || len(snap.Cart.Items) == 0 {
		return domain.Placement{}, invalid(OpPlaceOrder, ErrEmptyCart, ErrEmptyCart.Error())
	}

	placed, err := c.place(ctx, creds, snap.Cart.ID, req)
	if err != nil {
		c.logger.Warn("order placement failed",
			zap.String("cart_id", snap.Cart.ID), zap.String("kind", string(KindOf(err))), zap.Error(err))
		return domain.Placement{}, err
	}
	c.logger.Info("order placed", zap.String("order_id", placed.OrderID), zap.String("cart_id", snap.Cart.ID))

	if err := c.cart.FetchCart(ctx); err != nil {
		c.logger.Warn("cart refresh after order placement failed", zap.Error(err))
	}
	return placed, nil
}

func (c *Checkout) place(ctx context.Context, creds domain.Credentials, cartID string, req domain.PlaceOrderRequest) (domain.Placement, error) {
	release, err := c.cart.acquire(ctx)
	if err != nil {
		return domain.Placement{}, transportFailure(OpPlaceOrder, err)
	}
	defer release()

	opCtx, cancel := c.cart.opContext(ctx)
	defer cancel()

	order, err := c.orders.ProceedToCheckout(opCtx, creds.Token, cartID)
	if err != nil {
		return domain.Placement{}, transportFailure(OpPlaceOrder, err)
	}
	if !order.OK {
		return domain.Placement{}, rejected(OpPlaceOrder, order.Message)
	}

	placed, err := c.orders.PlaceOrder(opCtx, creds.Token, order.Value.ID, req)
	if err != nil {
		return domain.Placement{}, transportFailure(OpPlaceOrder, err)
	}
	if !placed.OK {
		return domain.Placement{}, rejected(OpPlaceOrder, placed.Message)
	}
	return placed.Value, nil
}

// ListOrders returns the signed in user's orders as the server orders them.
func (c *Checkout) ListOrders(ctx context.Context) ([]domain.Order, error) {
	creds, opErr := c.cart.credentials(ctx, OpListOrders)
	if opErr != nil {
		return nil, opErr
	}
	opCtx, cancel := c.cart.opContext(ctx)
	defer cancel()

	res, err := c.orders.ListOrders(opCtx, creds.Token)
	if err != nil {
		return nil, transportFailure(OpListOrders, err)
	}
	if !res.OK {
		return nil, rejected(OpListOrders, res.Message)
	}
	return res.Value, nil
}

func (c *Checkout) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	creds, opErr := c.cart.credentials(ctx, OpGetOrder)
	if opErr != nil {
		return domain.Order{}, opErr
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, invalid(OpGetOrder, nil, "order id is required")
	}
	opCtx, cancel := c.cart.opContext(ctx)
	defer cancel()

	res, err := c.orders.GetOrder(opCtx, creds.Token, orderID)
	if err != nil {
		return domain.Order{}, transportFailure(OpGetOrder, err)
	}
	if !res.OK {
		return domain.Order{}, rejected(OpGetOrder, res.Message)
	}
	return res.Value, nil
}
