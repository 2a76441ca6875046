// Package catalog owns the canonical set of research artifacts.
//
// The in-memory map is the read path. Writes go to the optional Persister
// first, under a timeout, and only become visible once it succeeds.
package catalog

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/metrics"
	"github.com/ayush/research-catalog/backend/internal/models"
)

// Persister stores artifacts durably. Implemented by store.PostgresStore.
type Persister interface {
	SaveArtifact(ctx context.Context, a models.ResearchArtifact) error
	DeleteArtifact(ctx context.Context, id string) error
}

// Store is the Catalog Store.
type Store struct {
	mu        sync.RWMutex
	artifacts map[string]models.ResearchArtifact
	order     []string
	successor map[string]string // previousVersionId -> newer version id

	// wmu serializes writers so persistence I/O never holds mu.
	wmu sync.Mutex

	persister Persister
	timeout   time.Duration
	onPut     []func(models.ResearchArtifact)
	onDelete  []func(id string)
	now       func() time.Time
	log       *zap.Logger
}

// NewStore returns an empty Store. persister may be nil for a purely
// in-memory catalog.
func NewStore(persister Persister, timeout time.Duration, log *zap.Logger) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{
		artifacts: make(map[string]models.ResearchArtifact),
		successor: make(map[string]string),
		persister: persister,
		timeout:   timeout,
		now:       time.Now,
		log:       log,
	}
}

// Subscribe registers callbacks run after every visible write. Either may
// be nil. Callbacks run with writers serialized, in write order.
func (s *Store) Subscribe(onPut func(models.ResearchArtifact), onDelete func(id string)) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if onPut != nil {
		s.onPut = append(s.onPut, onPut)
	}
	if onDelete != nil {
		s.onDelete = append(s.onDelete, onDelete)
	}
}

// Put validates and stores a new artifact, returning its id. Put always
// starts a lineage: later versions go through PublishVersion.
func (s *Store) Put(ctx context.Context, a models.ResearchArtifact) (string, error) {
	if a.PreviousVersionID != "" || a.Version > 1 {
		return "", apperr.Validation("new artifacts start at version 1; publish later versions against their predecessor")
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.putLocked(ctx, a)
}

func (s *Store) putLocked(ctx context.Context, a models.ResearchArtifact) (string, error) {
	a, err := normalize(a, s.now())
	if err != nil {
		return "", err
	}
	if _, err := s.Get(a.ID); err == nil {
		return "", apperr.Conflict("artifact %q already exists", a.ID)
	}
	if err := s.persist(ctx, "save artifact", func(ctx context.Context) error {
		return s.persister.SaveArtifact(ctx, a)
	}); err != nil {
		return "", err
	}
	s.insert(a)
	s.log.Info("artifact stored",
		zap.String("id", a.ID),
		zap.String("field", a.ResearchField),
		zap.Int("version", a.Version),
	)
	return a.ID, nil
}

// Get returns the artifact with the given id.
func (s *Store) Get(id string) (models.ResearchArtifact, error) {
	s.mu.RLock()
	a, ok := s.artifacts[id]
	s.mu.RUnlock()
	if !ok {
		return models.ResearchArtifact{}, apperr.NotFound("artifact", id)
	}
	return a.Clone(), nil
}

// List returns every artifact in insertion order.
func (s *Store) List() []models.ResearchArtifact {
	return s.filter(func(models.ResearchArtifact) bool { return true })
}

// ListByInstitution returns the artifacts of an institution, matched
// case-insensitively.
func (s *Store) ListByInstitution(institution string) []models.ResearchArtifact {
	institution = strings.TrimSpace(institution)
	return s.filter(func(a models.ResearchArtifact) bool {
		return strings.EqualFold(a.Institution, institution)
	})
}

// ListByField returns the artifacts of a research field.
func (s *Store) ListByField(field string) []models.ResearchArtifact {
	field, ok := models.CanonicalField(field)
	if !ok {
		return nil
	}
	return s.filter(func(a models.ResearchArtifact) bool { return a.ResearchField == field })
}

func (s *Store) filter(keep func(models.ResearchArtifact) bool) []models.ResearchArtifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ResearchArtifact
	for _, id := range s.order {
		if a := s.artifacts[id]; keep(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Len returns the number of stored artifacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artifacts)
}

// UpdateAccessLevel changes an artifact's access level and bumps lastUpdated.
func (s *Store) UpdateAccessLevel(ctx context.Context, id string, level models.AccessLevel) (models.ResearchArtifact, error) {
	if !level.Valid() {
		return models.ResearchArtifact{}, apperr.Validation("access level %q is not recognised", level)
	}
	return s.update(ctx, id, func(a *models.ResearchArtifact) error {
		a.AccessLevel = level
		a.LastUpdated = s.now().UTC()
		return nil
	})
}

// Touch sets an artifact's lastUpdated. It may not precede publishDate.
func (s *Store) Touch(ctx context.Context, id string, at time.Time) (models.ResearchArtifact, error) {
	return s.update(ctx, id, func(a *models.ResearchArtifact) error {
		if at.Before(a.PublishDate) {
			return apperr.Validation("lastUpdated %s precedes publishDate %s",
				at.Format(time.DateOnly), a.PublishDate.Format(time.DateOnly))
		}
		a.LastUpdated = at
		return nil
	})
}

// AttachFile records the stored file behind an artifact.
func (s *Store) AttachFile(ctx context.Context, id, key, fileType string, size int64) (models.ResearchArtifact, error) {
	if key == "" {
		return models.ResearchArtifact{}, apperr.Validation("file key is required")
	}
	return s.update(ctx, id, func(a *models.ResearchArtifact) error {
		a.FileKey = key
		a.FileType = fileType
		a.FileSizeBytes = size
		a.LastUpdated = s.now().UTC()
		return nil
	})
}

func (s *Store) update(ctx context.Context, id string, edit func(*models.ResearchArtifact) error) (models.ResearchArtifact, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	a, err := s.Get(id)
	if err != nil {
		return a, err
	}
	if err := edit(&a); err != nil {
		return a, err
	}
	a, err = normalize(a, s.now())
	if err != nil {
		return a, err
	}
	if err := s.persist(ctx, "update artifact", func(ctx context.Context) error {
		return s.persister.SaveArtifact(ctx, a)
	}); err != nil {
		return a, err
	}
	s.insert(a)
	return a.Clone(), nil
}

// PublishVersion stores a as the next version of previousID. Only the
// newest version of a lineage may be superseded.
func (s *Store) PublishVersion(ctx context.Context, previousID string, a models.ResearchArtifact) (string, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	prev, err := s.Get(previousID)
	if err != nil {
		return "", err
	}
	s.mu.RLock()
	next, superseded := s.successor[previousID]
	s.mu.RUnlock()
	if superseded {
		return "", apperr.Conflict("artifact %q already superseded by %q", previousID, next)
	}
	a.Version = prev.Version + 1
	a.PreviousVersionID = previousID
	if a.PublisherID == "" {
		a.PublisherID = prev.PublisherID
	}
	return s.putLocked(ctx, a)
}

// Lineage returns the version chain containing id, oldest first. Back
// references to artifacts no longer present end the walk.
func (s *Store) Lineage(id string) ([]models.ResearchArtifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, ok := s.artifacts[id]
	if !ok {
		return nil, apperr.NotFound("artifact", id)
	}
	chain := []models.ResearchArtifact{start.Clone()}
	for cur := start; cur.PreviousVersionID != ""; {
		prev, ok := s.artifacts[cur.PreviousVersionID]
		if !ok {
			break
		}
		chain = append(chain, prev.Clone())
		cur = prev
	}
	slices.Reverse(chain)
	for cur := id; ; {
		next, ok := s.successor[cur]
		if !ok {
			break
		}
		a, ok := s.artifacts[next]
		if !ok {
			break
		}
		chain = append(chain, a.Clone())
		cur = next
	}
	return chain, nil
}

// Delete removes an artifact. Subscribers cascade the removal.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	a, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := s.persist(ctx, "delete artifact", func(ctx context.Context) error {
		return s.persister.DeleteArtifact(ctx, id)
	}); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.artifacts, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	delete(s.successor, id)
	if a.PreviousVersionID != "" && s.successor[a.PreviousVersionID] == id {
		delete(s.successor, a.PreviousVersionID)
	}
	n := len(s.artifacts)
	s.mu.Unlock()

	metrics.CatalogArtifacts.Set(float64(n))
	for _, fn := range s.onDelete {
		fn(id)
	}
	s.log.Info("artifact deleted", zap.String("id", id))
	return nil
}

// Restore loads already-persisted artifacts without writing them back.
// Used at startup to rebuild memory from PostgreSQL.
func (s *Store) Restore(artifacts []models.ResearchArtifact) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for _, a := range artifacts {
		s.insert(a.Clone())
	}
	s.log.Info("catalog restored", zap.Int("artifacts", len(artifacts)))
}

// insert makes a visible and notifies subscribers. Callers hold wmu.
func (s *Store) insert(a models.ResearchArtifact) {
	s.mu.Lock()
	if _, exists := s.artifacts[a.ID]; !exists {
		s.order = append(s.order, a.ID)
	}
	s.artifacts[a.ID] = a
	if a.PreviousVersionID != "" {
		s.successor[a.PreviousVersionID] = a.ID
	}
	n := len(s.artifacts)
	s.mu.Unlock()

	metrics.CatalogArtifacts.Set(float64(n))
	for _, fn := range s.onPut {
		fn(a.Clone())
	}
}

func (s *Store) persist(ctx context.Context, op string, fn func(context.Context) error) error {
	if s.persister == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.log.Warn("catalog persistence failed", zap.String("op", op), zap.Error(err))
		return apperr.Unavailable(op, err)
	}
	return nil
}
