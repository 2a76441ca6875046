package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayush/research-catalog/backend/internal/auth"
	"github.com/ayush/research-catalog/backend/internal/models"
)

// SessionLookup resolves a session id to a user id ("" if unknown).
type SessionLookup interface {
	Lookup(ctx context.Context, sid string) (string, error)
}

// UserLookup loads a user by id.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// GrantLookup lists the restricted artifacts a viewer was granted.
type GrantLookup interface {
	Grants(ctx context.Context, viewerID string) ([]string, error)
}

// Identify resolves the session cookie into a viewer identity on the
// request context. Requests without a valid session proceed anonymously.
func Identify(sessions SessionLookup, users UserLookup, grants GrantLookup, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			userID, err := sessions.Lookup(ctx, cookie.Value)
			if err != nil {
				log.Warn("session lookup failed", zap.Error(err))
			}
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.GetUserByID(ctx, userID)
			if err != nil || user == nil {
				log.Warn("session user missing", zap.String("user_id", userID), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			var granted []string
			if grants != nil {
				if granted, err = grants.Grants(ctx, userID); err != nil {
					log.Warn("grant lookup failed", zap.String("user_id", userID), zap.Error(err))
				}
			}

			ctx = auth.WithViewer(ctx, userID, user.Viewer(granted))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that Identify left anonymous.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.UserID(r.Context()) == "" {
			http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
