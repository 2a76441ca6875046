package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ayush/research-catalog/backend/internal/models"
)

const (
	SessionTTL    = 24 * time.Hour
	SessionCookie = "session_id"
)

// SessionStore keeps "session:<id>" -> user id in Redis. Sessions slide:
// every successful lookup extends the TTL.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: SessionTTL}
}

func sessionKey(sid string) string { return "session:" + sid }

// Create opens a session for userID and returns its id.
func (s *SessionStore) Create(ctx context.Context, userID string) (string, error) {
	sid := uuid.New().String()
	if err := s.rdb.Set(ctx, sessionKey(sid), userID, s.ttl).Err(); err != nil {
		return "", err
	}
	return sid, nil
}

// Lookup returns the user behind a session and refreshes its TTL. An
// unknown or expired session yields "" and no error.
func (s *SessionStore) Lookup(ctx context.Context, sid string) (string, error) {
	userID, err := s.rdb.GetEx(ctx, sessionKey(sid), s.ttl).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return userID, err
}

// Delete ends a session.
func (s *SessionStore) Delete(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, sessionKey(sid)).Err()
}

type ctxKey int

const (
	userKey ctxKey = iota
	viewerKey
)

// WithViewer attaches the caller identity to ctx. userID is empty for
// anonymous callers.
func WithViewer(ctx context.Context, userID string, viewer models.Viewer) context.Context {
	ctx = context.WithValue(ctx, userKey, userID)
	return context.WithValue(ctx, viewerKey, viewer)
}

// UserID returns the signed-in user id, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey).(string)
	return id
}

// ViewerFrom returns the caller identity; the zero Viewer if none.
func ViewerFrom(ctx context.Context) models.Viewer {
	v, _ := ctx.Value(viewerKey).(models.Viewer)
	return v
}
