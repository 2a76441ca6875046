package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ayush/research-catalog/backend/internal/models"
)

const artifactColumns = `id, title, abstract, authors, institution, department, research_field,
	document_type, keywords, publish_date, last_updated, file_type, file_size_bytes,
	page_count, language, access_level, version, previous_version_id, doi, license, file_key, publisher_id`

// SaveArtifact inserts or replaces an artifact row.
func (s *PostgresStore) SaveArtifact(ctx context.Context, a models.ResearchArtifact) error {
	authors := a.Authors
	if authors == nil {
		authors = []models.AuthorRef{}
	}
	keywords := a.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO artifacts (`+artifactColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			abstract = EXCLUDED.abstract,
			authors = EXCLUDED.authors,
			institution = EXCLUDED.institution,
			department = EXCLUDED.department,
			research_field = EXCLUDED.research_field,
			document_type = EXCLUDED.document_type,
			keywords = EXCLUDED.keywords,
			publish_date = EXCLUDED.publish_date,
			last_updated = EXCLUDED.last_updated,
			file_type = EXCLUDED.file_type,
			file_size_bytes = EXCLUDED.file_size_bytes,
			page_count = EXCLUDED.page_count,
			language = EXCLUDED.language,
			access_level = EXCLUDED.access_level,
			version = EXCLUDED.version,
			previous_version_id = EXCLUDED.previous_version_id,
			doi = EXCLUDED.doi,
			license = EXCLUDED.license,
			file_key = EXCLUDED.file_key,
			publisher_id = EXCLUDED.publisher_id`,
		a.ID, a.Title, a.Abstract, authors, a.Institution, a.Department, a.ResearchField,
		a.DocumentType, keywords, a.PublishDate, a.LastUpdated, a.FileType, a.FileSizeBytes,
		a.PageCount, a.Language, string(a.AccessLevel), a.Version, a.PreviousVersionID,
		a.DOI, a.License, a.FileKey, a.PublisherID,
	)
	if err != nil {
		return fmt.Errorf("save artifact %s: %w", a.ID, err)
	}
	return nil
}

// DeleteArtifact removes an artifact row. Deleting a missing row is not an error.
func (s *PostgresStore) DeleteArtifact(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM artifacts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete artifact %s: %w", id, err)
	}
	return nil
}

// ListArtifacts returns every artifact in insertion order.
func (s *PostgresStore) ListArtifacts(ctx context.Context) ([]models.ResearchArtifact, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+artifactColumns+` FROM artifacts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanArtifact)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return out, nil
}

func scanArtifact(row pgx.CollectableRow) (models.ResearchArtifact, error) {
	var a models.ResearchArtifact
	var level string
	err := row.Scan(
		&a.ID, &a.Title, &a.Abstract, &a.Authors, &a.Institution, &a.Department, &a.ResearchField,
		&a.DocumentType, &a.Keywords, &a.PublishDate, &a.LastUpdated, &a.FileType, &a.FileSizeBytes,
		&a.PageCount, &a.Language, &level, &a.Version, &a.PreviousVersionID,
		&a.DOI, &a.License, &a.FileKey, &a.PublisherID,
	)
	a.AccessLevel = models.AccessLevel(level)
	a.PublishDate = a.PublishDate.UTC()
	a.LastUpdated = a.LastUpdated.UTC()
	return a, err
}
