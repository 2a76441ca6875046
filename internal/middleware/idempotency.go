package middleware

import (
	"context"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ayush/research-catalog/backend/internal/auth"
)

// IdempotencyHeader carries a client-chosen key for a mutation.
const IdempotencyHeader = "Idempotency-Key"

// KeyClaimer records a key and reports whether it was new. Release forgets
// a key so the request it guarded can be retried.
type KeyClaimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Idempotency drops mutations whose Idempotency-Key was already used by
// the same caller. Requests without the header pass through. If the key
// store is down the request is refused, since applying it could double
// count. A key is kept only when the guarded handler answers 2xx; any
// other outcome releases it.
func Idempotency(keys KeyClaimer, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			scoped := auth.UserID(r.Context()) + ":" + r.Method + ":" + r.URL.Path + ":" + key

			fresh, err := keys.Claim(r.Context(), scoped)
			if err != nil {
				log.Warn("idempotency store unavailable", zap.Error(err))
				w.Header().Set("Retry-After", "1")
				http.Error(w, `{"error":"idempotency store unavailable"}`, http.StatusServiceUnavailable)
				return
			}
			if !fresh {
				http.Error(w, `{"error":"request already applied"}`, http.StatusConflict)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if status := ww.Status(); status == 0 || (status >= 200 && status < 300) {
				return
			}
			if err := keys.Release(context.WithoutCancel(r.Context()), scoped); err != nil {
				log.Warn("idempotency key not released", zap.Int("status", ww.Status()), zap.Error(err))
			}
		})
	}
}
