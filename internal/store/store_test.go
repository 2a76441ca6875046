package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/ayush/research-catalog/backend/internal/apperr"
)

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "artifacts/abc/paper.pdf", ArtifactKey("abc", "paper.pdf"))
	assert.Equal(t, "artifacts/abc/paper.pdf", ArtifactKey("abc", "../../etc/paper.pdf"))
}

func TestNotFoundMapsNoRows(t *testing.T) {
	err := notFound(fmt.Errorf("scan: %w", pgx.ErrNoRows), "user", "u1")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	other := errors.New("connection refused")
	assert.Same(t, other, notFound(other, "user", "u1"))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}
