package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// NewRouter mounts the storefront API. The event stream sits outside the
// request timeout. Order routes are mounted only when orders is non-nil.
func NewRouter(h *CartHandler, orders *OrderHandler, logger *zap.Logger, timeout time.Duration) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger.Named("access")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Post("/refresh", h.Refresh)
				r.Post("/items", h.AddItem)
				r.Put("/items/{product_ref}", h.UpdateQuantity)
				r.Delete("/items/{product_ref}", h.RemoveItem)
				r.Get("/summary", h.Summary)
				r.Get("/badge", h.Badge)
			})
			r.Post("/session", h.SignIn)
			r.Delete("/session", h.SignOut)

			if orders != nil {
				r.Route("/orders", func(r chi.Router) {
					r.Get("/", orders.ListOrders)
					r.Post("/", orders.PlaceOrder)
					r.Get("/{order_id}", orders.GetOrder)
				})
			}
		})
		r.Get("/cart/stream", h.Stream)
	})

	return otelhttp.NewHandler(r, "storefront")
}
