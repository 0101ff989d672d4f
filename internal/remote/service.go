// Package remote is the boundary to the cart REST API. Whatever envelope a
// given endpoint uses, callers only ever see Result values and transport errors.
package remote

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// CartService is the remote cart resource. Every call needs a bearer token.
// A non-nil error means no usable answer arrived (transport failure or an
// unreadable response); a server-side refusal is a Result with OK false.
type CartService interface {
	GetCart(ctx context.Context, token string) (Result[domain.Cart], error)
	AddItem(ctx context.Context, token string, items []AddItem) (Result[Ack], error)
	RemoveItem(ctx context.Context, token, cartID string, item RemoveItem) (Result[Ack], error)
	UpdateItemQuantity(ctx context.Context, token, cartID string, items []domain.ItemQuantity) (Result[Ack], error)
}

// ProductService looks up catalog entries, used to check stock before adding.
type ProductService interface {
	GetProduct(ctx context.Context, token, productID string) (Result[domain.Product], error)
}

// OrderService turns a cart into an order and reads order history.
// Checkout is two steps: ProceedToCheckout freezes the cart into a PENDING
// order, PlaceOrder ships and pays for it.
type OrderService interface {
	ListOrders(ctx context.Context, token string) (Result[[]domain.Order], error)
	GetOrder(ctx context.Context, token, orderID string) (Result[domain.Order], error)
	ProceedToCheckout(ctx context.Context, token, cartID string) (Result[domain.Order], error)
	PlaceOrder(ctx context.Context, token, orderID string, req domain.PlaceOrderRequest) (Result[domain.Placement], error)
}

// Result is the normalized answer of the cart API.
type Result[T any] struct {
	Value   T
	OK      bool
	Message string
}

// Ack is the value of mutations whose response body is deliberately ignored.
type Ack struct{}

func Success[T any](v T) Result[T] {
	return Result[T]{Value: v, OK: true}
}

func Rejected[T any](message string) Result[T] {
	return Result[T]{Message: message}
}

type AddItem struct {
	ProductRef string
	Quantity   int
	UnitPrice  decimal.Decimal
}

// RemoveItem carries the quantity too: the backend's delete is quantity-aware.
type RemoveItem struct {
	ProductRef string
	Quantity   int
}

var (
	ErrTransport          = errors.New("cart service unreachable")
	ErrUnexpectedResponse = errors.New("unexpected response from cart service")
	ErrInvalidCartID      = errors.New("invalid cart id")
	ErrInvalidOrderID     = errors.New("invalid order id")
)
