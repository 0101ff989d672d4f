package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// OrderHandler exposes checkout and order history.
type OrderHandler struct {
	checkout *store.Checkout
	cart     *store.CartStore
	timeout  time.Duration
	logger   *zap.Logger
}

func NewOrderHandler(c *store.Checkout, cart *store.CartStore, timeout time.Duration, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{checkout: c, cart: cart, timeout: timeout, logger: logger.Named("http")}
}

type PlaceOrderRequestDTO struct {
	PartyName     string `json:"party_name"`
	ContactNo     string `json:"contact_no"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	Country       string `json:"country"`
	State         string `json:"state"`
	City          string `json:"city"`
	ZipCode       string `json:"zip_code"`
	PaymentMethod string `json:"payment_method"`
}

type PlaceOrderResponse struct {
	Placement domain.Placement `json:"placement"`
	Cart      store.Snapshot   `json:"cart"`
}

type OrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.checkout.ListOrders(ctx)
	if err != nil {
		handleStoreError(w, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	respondJSON(w, http.StatusOK, OrdersResponse{Orders: orders})
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.checkout.GetOrder(ctx, chi.URLParam(r, "order_id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// PlaceOrder checks out the current cart. The response carries the cart
// as refetched after placement.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PlaceOrderRequestDTO
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	placed, err := h.checkout.PlaceOrder(ctx, domain.PlaceOrderRequest{
		Shipping: domain.ShippingDetails{
			Party: domain.PartyDetails{
				PartyName: req.PartyName,
				ContactNo: req.ContactNo,
				Email:     req.Email,
				Address:   req.Address,
			},
			Country: req.Country,
			State:   req.State,
			City:    req.City,
			ZipCode: req.ZipCode,
		},
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, PlaceOrderResponse{Placement: placed, Cart: h.cart.Snapshot()})
}
