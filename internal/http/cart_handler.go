package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/credentials"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/pricing"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxRequestBodySize = 1 << 20 // 1MB

// CartHandler exposes the cart store to the storefront UI.
type CartHandler struct {
	store   *store.CartStore
	creds   credentials.Store
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(s *store.CartStore, creds credentials.Store, timeout time.Duration, logger *zap.Logger) *CartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartHandler{
		store:   s,
		creds:   creds,
		timeout: timeout,
		logger:  logger.Named("http"),
	}
}

type AddItemRequestDTO struct {
	ProductRef string           `json:"product_ref"`
	Quantity   int              `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unit_price"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type SessionRequestDTO struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

type BadgeResponse struct {
	TotalItems int `json:"total_items"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *CartHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.store.FetchCart(ctx); err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	// a missing price would be stored as zero
	if req.UnitPrice == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "unit_price is required")
		return
	}

	if err := h.store.AddItem(ctx, req.ProductRef, req.Quantity, *req.UnitPrice); err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, h.store.Snapshot())
}

// UpdateQuantity sets the quantity of one line. Zero removes the line, the
// way the cart page's minus button does at quantity one.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productRef := chi.URLParam(r, "product_ref")

	var req UpdateQuantityRequestDTO
	if err := decodeBody(w, r, &req); err != nil || req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "quantity is required")
		return
	}

	cart := h.store.Snapshot().Cart
	var err error
	if *req.Quantity == 0 {
		held := 1
		if item, ok := cart.Item(productRef); ok {
			held = item.Quantity
		}
		err = h.store.RemoveItem(ctx, cart.ID, productRef, held)
	} else {
		err = h.store.UpdateItemQuantity(ctx, cart.ID, []domain.ItemQuantity{
			{ProductRef: productRef, Quantity: *req.Quantity},
		})
	}
	if err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.store.Snapshot())
}

// RemoveItem deletes the whole line unless ?quantity= asks for fewer units.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productRef := chi.URLParam(r, "product_ref")
	cart := h.store.Snapshot().Cart

	quantity := 1
	if item, ok := cart.Item(productRef); ok {
		quantity = item.Quantity
	}
	if q := r.URL.Query().Get("quantity"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be an integer")
			return
		}
		quantity = n
	}

	if err := h.store.RemoveItem(ctx, cart.ID, productRef, quantity); err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *CartHandler) Summary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, pricing.Summarize(h.store.Snapshot().Cart.Items))
}

func (h *CartHandler) Badge(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, BadgeResponse{TotalItems: h.store.Snapshot().Totals.Items})
}

// SignIn stores the customer's credentials and loads their cart.
func (h *CartHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SessionRequestDTO
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	prev, _ := h.creds.Get(ctx)
	if err := h.creds.Set(ctx, domain.Credentials{Token: req.Token, UserID: req.UserID}); err != nil {
		if errors.Is(err, credentials.ErrEmptyToken) {
			respondError(w, http.StatusBadRequest, "invalid_token", err.Error())
			return
		}
		h.logger.Error("store credentials failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "could not store credentials")
		return
	}

	// another customer's cart must not survive the switch
	if prev.Token != "" && prev.UserID != req.UserID {
		if err := h.store.Reset(ctx); err != nil {
			h.logger.Warn("reset before sign in failed", zap.Error(err))
		}
	}
	if _, err := h.store.Hydrate(ctx); err != nil {
		h.logger.Warn("hydrate from snapshot cache failed", zap.Error(err))
	}
	if err := h.store.FetchCart(ctx); err != nil {
		handleStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.store.Snapshot())
}

// SignOut drops the credentials and empties the local cart.
func (h *CartHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.creds.Clear(ctx); err != nil {
		h.logger.Error("clear credentials failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "could not clear credentials")
		return
	}
	if err := h.store.Reset(ctx); err != nil {
		h.logger.Warn("reset on sign out failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream pushes a server-sent event for every store snapshot until the
// client goes away.
func (h *CartHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}

	snapshots, unsubscribe := h.store.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, open := <-snapshots:
			if !open {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				h.logger.Error("encode snapshot failed", zap.Error(err))
				return
			}
			if _, err := fmt.Fprintf(w, "event: cart\nid: %d\ndata: %s\n\n", snap.Version, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func handleStoreError(w http.ResponseWriter, err error) {
	var opErr *store.OpError
	if !errors.As(err, &opErr) {
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	var httpStatus int
	switch opErr.Kind {
	case store.KindAuthenticationMissing:
		httpStatus = http.StatusUnauthorized
	case store.KindInvalidInput:
		httpStatus = http.StatusBadRequest
	case store.KindRemoteRejected:
		httpStatus = http.StatusUnprocessableEntity
	case store.KindIndeterminateMutation:
		httpStatus = http.StatusBadGateway
	default:
		httpStatus = http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			httpStatus = http.StatusGatewayTimeout
		}
	}

	respondJSON(w, httpStatus, ErrorResponse{
		Error:   opErr.Message,
		Code:    string(opErr.Kind),
		Details: opErr.Op,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
