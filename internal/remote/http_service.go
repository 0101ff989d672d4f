package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.uber.org/zap"
)

const (
	pathGetCart = "/carts/getCart/ByToken"
	pathAddItem = "/carts/addToCart"
)

func pathRemoveItem(cartID string) string { return "/carts/delete/" + cartID }
func pathUpdateCart(cartID string) string { return "/carts/" + cartID }
func pathProduct(productID string) string { return "/products/" + productID }

// HTTPCartService talks to the cart REST API.
type HTTPCartService struct {
	c      *Client
	logger *zap.Logger
}

func NewHTTPCartService(c *Client, logger *zap.Logger) *HTTPCartService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPCartService{c: c, logger: logger.Named("remote")}
}

type addItemLine struct {
	ProductID string      `json:"productId"`
	Quantity  int         `json:"quantity"`
	Price     json.Number `json:"price"`
}

type addItemRequest struct {
	Items []addItemLine `json:"items"`
}

type removeItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type quantityLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateCartRequest struct {
	Items []quantityLine `json:"items"`
}

func (s *HTTPCartService) GetCart(ctx context.Context, token string) (Result[domain.Cart], error) {
	env, status, err := s.call(ctx, http.MethodGet, pathGetCart, token, nil)
	if err != nil {
		return Result[domain.Cart]{}, err
	}
	if !env.ok(status) {
		return Rejected[domain.Cart](env.message(status, "failed to fetch cart items")), nil
	}
	if isNullJSON(env.Data) {
		return Rejected[domain.Cart]("failed to fetch cart items"), nil
	}

	cart, err := decodeCart(env.Data, s.logger)
	if err != nil {
		return Result[domain.Cart]{}, fmt.Errorf("%w: decode cart: %w", ErrUnexpectedResponse, err)
	}
	return Success(cart), nil
}

func (s *HTTPCartService) AddItem(ctx context.Context, token string, items []AddItem) (Result[Ack], error) {
	req := addItemRequest{Items: make([]addItemLine, 0, len(items))}
	for _, it := range items {
		req.Items = append(req.Items, addItemLine{
			ProductID: it.ProductRef,
			Quantity:  it.Quantity,
			Price:     json.Number(it.UnitPrice.String()),
		})
	}
	return s.ack(ctx, http.MethodPost, pathAddItem, token, req, "failed to add to cart")
}

func (s *HTTPCartService) RemoveItem(ctx context.Context, token, cartID string, item RemoveItem) (Result[Ack], error) {
	if err := checkCartID(cartID); err != nil {
		return Result[Ack]{}, err
	}
	req := removeItemRequest{ProductID: item.ProductRef, Quantity: item.Quantity}
	return s.ack(ctx, http.MethodDelete, pathRemoveItem(cartID), token, req, "failed to remove from cart")
}

func (s *HTTPCartService) UpdateItemQuantity(ctx context.Context, token, cartID string, items []domain.ItemQuantity) (Result[Ack], error) {
	if err := checkCartID(cartID); err != nil {
		return Result[Ack]{}, err
	}
	req := updateCartRequest{Items: make([]quantityLine, 0, len(items))}
	for _, it := range items {
		req.Items = append(req.Items, quantityLine{ProductID: it.ProductRef, Quantity: it.Quantity})
	}
	return s.ack(ctx, http.MethodPut, pathUpdateCart(cartID), token, req, "failed to update cart")
}

// GetProduct fetches one catalog entry, stock included.
func (s *HTTPCartService) GetProduct(ctx context.Context, token, productID string) (Result[domain.Product], error) {
	if productID == "" || strings.ContainsAny(productID, "/?#") {
		return Rejected[domain.Product]("invalid product id"), nil
	}
	env, status, err := s.call(ctx, http.MethodGet, pathProduct(productID), token, nil)
	if err != nil {
		return Result[domain.Product]{}, err
	}
	if !env.ok(status) || isNullJSON(env.Data) {
		return Rejected[domain.Product](env.message(status, "failed to fetch product")), nil
	}

	p, err := decodeProduct(env.Data)
	if err != nil {
		return Result[domain.Product]{}, fmt.Errorf("%w: decode product: %w", ErrUnexpectedResponse, err)
	}
	return Success(p), nil
}

func (s *HTTPCartService) ack(ctx context.Context, method, path, token string, body any, fallback string) (Result[Ack], error) {
	env, status, err := s.call(ctx, method, path, token, body)
	if err != nil {
		return Result[Ack]{}, err
	}
	if !env.ok(status) {
		return Rejected[Ack](env.message(status, fallback)), nil
	}
	return Success(Ack{}), nil
}

func (s *HTTPCartService) call(ctx context.Context, method, path, token string, body any) (envelope, int, error) {
	data, status, err := s.c.Do(ctx, method, path, token, body)
	if err != nil {
		s.logger.Warn("cart api call failed",
			zap.String("method", method), zap.String("path", path), zap.Error(err))
		return envelope{}, 0, err
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("cart api returned a non-json body",
			zap.String("method", method), zap.String("path", path), zap.Int("status", status))
		return envelope{}, status, fmt.Errorf("%w: %s %s: status %d", ErrUnexpectedResponse, method, path, status)
	}

	s.logger.Debug("cart api call",
		zap.String("method", method), zap.String("path", path),
		zap.Int("status", status), zap.Bool("success", env.ok(status)))
	return env, status, nil
}

func checkCartID(cartID string) error {
	if cartID == "" || strings.ContainsAny(cartID, "/?#") {
		return fmt.Errorf("%w: %q", ErrInvalidCartID, cartID)
	}
	return nil
}

func isNullJSON(raw json.RawMessage) bool {
	t := strings.TrimSpace(string(raw))
	return t == "" || t == "null"
}
