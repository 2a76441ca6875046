package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/models"
)

// PostgresStore persists users and catalog artifacts in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the users and artifacts tables if they don't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username    VARCHAR(50)  UNIQUE NOT NULL,
			email       VARCHAR(255) UNIQUE NOT NULL,
			institution VARCHAR(255) NOT NULL DEFAULT '',
			password    VARCHAR(255) NOT NULL,
			created_at  TIMESTAMPTZ  DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS artifacts (
			id                  TEXT PRIMARY KEY,
			title               TEXT        NOT NULL,
			abstract            TEXT        NOT NULL,
			authors             JSONB       NOT NULL DEFAULT '[]',
			institution         TEXT        NOT NULL DEFAULT '',
			department          TEXT        NOT NULL DEFAULT '',
			research_field      TEXT        NOT NULL,
			document_type       TEXT        NOT NULL,
			keywords            JSONB       NOT NULL DEFAULT '[]',
			publish_date        TIMESTAMPTZ NOT NULL,
			last_updated        TIMESTAMPTZ NOT NULL,
			file_type           TEXT        NOT NULL DEFAULT '',
			file_size_bytes     BIGINT      NOT NULL DEFAULT 0,
			page_count          INTEGER     NOT NULL DEFAULT 0,
			language            TEXT        NOT NULL DEFAULT '',
			access_level        TEXT        NOT NULL,
			version             INTEGER     NOT NULL DEFAULT 1,
			previous_version_id TEXT        NOT NULL DEFAULT '',
			doi                 TEXT        NOT NULL DEFAULT '',
			license             TEXT        NOT NULL DEFAULT '',
			file_key            TEXT        NOT NULL DEFAULT '',
			publisher_id        TEXT        NOT NULL DEFAULT '',
			created_at          TIMESTAMPTZ DEFAULT NOW()
		);
		ALTER TABLE artifacts ADD COLUMN IF NOT EXISTS publisher_id TEXT NOT NULL DEFAULT '';
		CREATE INDEX IF NOT EXISTS artifacts_institution_idx ON artifacts (institution);
	`)
	return err
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, email, institution, hashedPassword string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, email, institution, password)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, username, email, institution, created_at`,
		username, email, institution, hashedPassword,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Institution, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Conflict("user %q already exists", email)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, institution, password, created_at FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Institution, &u.Password, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "user", email)
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, email, institution, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Institution, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(kind, id)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
