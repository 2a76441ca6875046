package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/auth"
	"github.com/ayush/research-catalog/backend/internal/models"
)

type stubSessions map[string]string

func (s stubSessions) Lookup(_ context.Context, sid string) (string, error) { return s[sid], nil }

type stubUsers map[string]models.User

func (s stubUsers) GetUserByID(_ context.Context, id string) (*models.User, error) {
	u, ok := s[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	return &u, nil
}

type stubGrants map[string][]string

func (s stubGrants) Grants(_ context.Context, id string) ([]string, error) { return s[id], nil }

func captureViewer(got *models.Viewer, userID *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = auth.ViewerFrom(r.Context())
		*userID = auth.UserID(r.Context())
	})
}

func TestIdentify(t *testing.T) {
	mw := Identify(
		stubSessions{"good": "u1", "orphan": "ghost"},
		stubUsers{"u1": {ID: "u1", Institution: "UNILAG"}},
		stubGrants{"u1": {"restricted-1"}},
		zap.NewNop(),
	)

	tests := []struct {
		name   string
		cookie string
		want   models.Viewer
		userID string
	}{
		{"no cookie", "", models.Viewer{}, ""},
		{"unknown session", "stale", models.Viewer{}, ""},
		{"deleted user", "orphan", models.Viewer{}, ""},
		{"signed in", "good", models.Viewer{ID: "u1", Institution: "UNILAG", Grants: []string{"restricted-1"}}, "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: tt.cookie})
			}
			var got models.Viewer
			var userID string
			mw(captureViewer(&got, &userID)).ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.userID, userID)
		})
	}
}

func TestRequireAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	RequireAuth(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(auth.WithViewer(req.Context(), "u1", models.Viewer{ID: "u1"}))
	rec = httptest.NewRecorder()
	RequireAuth(ok).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type memKeys struct {
	seen map[string]bool
	err  error
}

func (m *memKeys) Claim(_ context.Context, key string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *memKeys) Release(_ context.Context, key string) error {
	delete(m.seen, key)
	return nil
}

func TestIdempotency(t *testing.T) {
	keys := &memKeys{seen: make(map[string]bool)}
	calls := 0
	h := Idempotency(keys, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	send := func(path, key string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if key != "" {
			req.Header.Set(IdempotencyHeader, key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("/api/artifacts/a/views", ""))
	assert.Equal(t, http.StatusOK, send("/api/artifacts/a/views", ""))
	assert.Equal(t, http.StatusOK, send("/api/artifacts/a/views", "k1"))
	assert.Equal(t, http.StatusConflict, send("/api/artifacts/a/views", "k1"))
	assert.Equal(t, http.StatusOK, send("/api/artifacts/b/views", "k1"), "keys are scoped per route")
	assert.Equal(t, 4, calls)

	keys.err = errors.New("redis down")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/artifacts/a/views", nil)
	req.Header.Set(IdempotencyHeader, "k2")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, 4, calls)
}

func TestIdempotencyReleasesKeyOnFailure(t *testing.T) {
	keys := &memKeys{seen: make(map[string]bool)}
	status := http.StatusForbidden
	applied := 0
	h := Idempotency(keys, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "nope", status)
			return
		}
		applied++
		w.Write([]byte(`{"favorited":true}`))
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/artifacts/a/favorite", nil)
		req = req.WithContext(auth.WithViewer(req.Context(), "bob", models.Viewer{ID: "bob"}))
		req.Header.Set(IdempotencyHeader, "k1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for _, failing := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusServiceUnavailable} {
		status = failing
		assert.Equal(t, failing, send())
		assert.Empty(t, keys.seen, "failed request must not burn its key")
	}

	status = http.StatusOK
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusConflict, send())
	assert.Equal(t, 1, applied)
}
