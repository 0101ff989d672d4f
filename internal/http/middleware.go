package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/remote"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDMiddleware tags each request with an id, reusing the caller's
// X-Request-ID when present. Calls to the cart API made while serving the
// request carry the same id.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(remote.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := remote.WithRequestID(r.Context(), requestID)
		w.Header().Set(remote.HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggerMiddleware writes one structured line per request.
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", remote.RequestID(r.Context())),
				zap.Duration("duration", time.Since(start)))
		})
	}
}
