package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxRequestBodySize = 1 << 20 // 1MB

type userIDKey struct{}

// Handler serves the cart and order REST API. Like the API it stands in for,
// the getCart, update and order endpoints answer with isSuccess while add and
// delete answer with success.
type Handler struct {
	store  *MemoryStore
	logger *zap.Logger
}

func NewHandler(store *MemoryStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger.Named("backend")}
}

// Routes returns the router with all endpoints mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/users/token", h.IssueToken)
	r.Get("/products/{productID}", h.GetProduct)

	r.Route("/carts", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Get("/getCart/ByToken", h.GetCart)
		r.Post("/addToCart", h.AddToCart)
		r.Delete("/delete/{cartID}", h.RemoveFromCart)
		r.Put("/{cartID}", h.UpdateCart)
	})
	r.Route("/orders", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Get("/", h.ListOrders)
		r.Get("/{orderID}", h.GetOrder)
		r.Post("/proceedToCheckout/{cartID}", h.ProceedToCheckout)
		r.Post("/placeOrder/{orderID}", h.PlaceOrder)
	})
	return r
}

type wireHSN struct {
	GSTPercentage decimal.NullDecimal `json:"gstPercentage"`
}

type wireProduct struct {
	ID          string          `json:"_id"`
	ProductName string          `json:"productName"`
	BasicPrice  decimal.Decimal `json:"basicPrice"`
	Stock       int             `json:"stock"`
	HSNNumber   wireHSN         `json:"hsnNumber"`
}

type wireLine struct {
	ProductID wireProduct     `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type wireCart struct {
	ID     string     `json:"_id"`
	UserID string     `json:"userId"`
	Items  []wireLine `json:"items"`
}

type addToCartRequest struct {
	Items []struct {
		ProductID string              `json:"productId"`
		Quantity  int                 `json:"quantity"`
		Price     decimal.NullDecimal `json:"price"`
	} `json:"items"`
}

type removeFromCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type updateCartRequest struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

type issueTokenRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeBody(w, r, &req); err != nil || strings.TrimSpace(req.UserID) == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{"isSuccess": false, "message": "userId is required"})
		return
	}
	token := h.store.IssueToken(req.UserID)
	respondJSON(w, http.StatusCreated, map[string]any{
		"isSuccess": true,
		"data":      map[string]string{"token": token, "userId": req.UserID},
	})
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Product(chi.URLParam(r, "productID"))
	if err != nil {
		respondJSON(w, statusFor(err), map[string]any{"isSuccess": false, "message": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"isSuccess": true, "data": toWireProduct(p)})
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c := h.store.Cart(userID(r.Context()))

	out := wireCart{ID: c.ID, UserID: c.UserID, Items: make([]wireLine, 0, len(c.Items))}
	for _, it := range c.Items {
		p, err := h.store.Product(it.ProductRef)
		if err != nil {
			p = domain.Product{ID: it.ProductRef, Name: it.ProductName, GSTPercent: it.GSTPercent}
		}
		out.Items = append(out.Items, wireLine{ProductID: toWireProduct(p), Quantity: it.Quantity, Price: it.UnitPrice})
	}
	respondJSON(w, http.StatusOK, map[string]any{"isSuccess": true, "message": "Cart fetched successfully", "data": out})
}

func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid JSON body"})
		return
	}
	lines := make([]AddLine, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, AddLine{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	if err := h.store.AddItems(userID(r.Context()), lines); err != nil {
		respondJSON(w, statusFor(err), map[string]any{"success": false, "message": err.Error()})
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Item added to cart"})
}

func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	var req removeFromCartRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid JSON body"})
		return
	}
	err := h.store.RemoveItem(userID(r.Context()), chi.URLParam(r, "cartID"), req.ProductID, req.Quantity)
	if err != nil {
		respondJSON(w, statusFor(err), map[string]any{"success": false, "message": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Item removed from cart"})
}

func (h *Handler) UpdateCart(w http.ResponseWriter, r *http.Request) {
	var req updateCartRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"isSuccess": false, "message": "invalid JSON body"})
		return
	}
	items := make([]domain.ItemQuantity, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.ItemQuantity{ProductRef: it.ProductID, Quantity: it.Quantity})
	}
	if err := h.store.UpdateItems(userID(r.Context()), chi.URLParam(r, "cartID"), items); err != nil {
		respondJSON(w, statusFor(err), map[string]any{"isSuccess": false, "message": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"isSuccess": true, "message": "Cart updated successfully"})
}

// authenticate accepts the token from either the Authorization bearer header
// or x-access-token.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token == "" {
			token = r.Header.Get("x-access-token")
		}
		uid, err := h.store.Authenticate(token)
		if err != nil {
			respondJSON(w, http.StatusUnauthorized, map[string]any{"isSuccess": false, "success": false, "message": err.Error()})
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey{}, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", r.Header.Get("X-Request-ID")),
			zap.Duration("duration", time.Since(start)))
	})
}

func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

func toWireProduct(p domain.Product) wireProduct {
	return wireProduct{
		ID:          p.ID,
		ProductName: p.Name,
		BasicPrice:  p.UnitPrice,
		Stock:       p.Stock,
		HSNNumber:   wireHSN{GSTPercentage: p.GSTPercent},
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrItemNotInCart), errors.Is(err, ErrCartNotFound),
		errors.Is(err, ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
