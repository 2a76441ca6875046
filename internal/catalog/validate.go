package catalog

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/discovery"
	"github.com/ayush/research-catalog/backend/internal/models"
)

// MaxKeywordLen bounds a keyword's length in characters.
const MaxKeywordLen = 64

const (
	defaultLanguage     = "English"
	defaultDocumentType = "Research Paper"
)

// NormalizeKeywords trims keywords, drops blanks and removes duplicates
// under discovery.FoldKey (case and diacritics ignored), keeping the first
// spelling seen.
func NormalizeKeywords(keywords []string) ([]string, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if utf8.RuneCountInString(k) > MaxKeywordLen {
			return nil, apperr.Validation("keyword %q exceeds %d characters", k, MaxKeywordLen)
		}
		key := discovery.FoldKey(k)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
	}
	return out, nil
}

// normalize validates a and fills server-side defaults. It returns a copy.
func normalize(a models.ResearchArtifact, now time.Time) (models.ResearchArtifact, error) {
	a = a.Clone()

	a.Title = strings.TrimSpace(a.Title)
	a.Abstract = strings.TrimSpace(a.Abstract)
	if a.Title == "" {
		return a, apperr.Validation("title is required")
	}
	if a.Abstract == "" {
		return a, apperr.Validation("abstract is required")
	}
	if len(a.Authors) == 0 {
		return a, apperr.Validation("at least one author is required")
	}
	for i := range a.Authors {
		a.Authors[i].Name = strings.TrimSpace(a.Authors[i].Name)
		if a.Authors[i].Name == "" {
			return a, apperr.Validation("author %d has no name", i+1)
		}
	}

	field, ok := models.CanonicalField(a.ResearchField)
	if !ok {
		return a, apperr.Validation("research field %q is not in the controlled list", a.ResearchField)
	}
	a.ResearchField = field

	if strings.TrimSpace(a.DocumentType) == "" {
		a.DocumentType = defaultDocumentType
	} else if dt, ok := models.CanonicalDocumentType(a.DocumentType); ok {
		a.DocumentType = dt
	} else {
		return a, apperr.Validation("document type %q is not recognised", a.DocumentType)
	}

	if a.AccessLevel == "" {
		a.AccessLevel = models.AccessPublic
	}
	if !a.AccessLevel.Valid() {
		return a, apperr.Validation("access level %q is not recognised", a.AccessLevel)
	}

	kws, err := NormalizeKeywords(a.Keywords)
	if err != nil {
		return a, err
	}
	a.Keywords = kws

	if a.Version < 0 {
		return a, apperr.Validation("version must be positive")
	}
	if a.Version == 0 {
		a.Version = 1
	}
	if a.FileSizeBytes < 0 || a.PageCount < 0 {
		return a, apperr.Validation("file size and page count must not be negative")
	}
	if strings.TrimSpace(a.Language) == "" {
		a.Language = defaultLanguage
	}

	if a.PublishDate.IsZero() {
		a.PublishDate = now.UTC().Truncate(24 * time.Hour)
	}
	if a.LastUpdated.Before(a.PublishDate) {
		a.LastUpdated = a.PublishDate
	}

	a.Institution = strings.TrimSpace(a.Institution)
	a.Department = strings.TrimSpace(a.Department)
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return a, nil
}
