// Package engagement owns per-artifact counters and comment threads.
//
// Every mutation on an artifact runs under that artifact's lock, so a
// concurrent reader never sees a partial update. Different artifacts do
// not contend. Records are created on first mutation only.
package engagement

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/metrics"
	"github.com/ayush/research-catalog/backend/internal/models"
)

// Catalog resolves artifacts. Implemented by catalog.Store.
type Catalog interface {
	Get(id string) (models.ResearchArtifact, error)
}

// Authorizer gates mutations. Implemented by access.Policy.
type Authorizer interface {
	Check(artifact models.ResearchArtifact, viewer models.Viewer) error
}

// Persister stores engagement records. Implemented by store.MongoStore.
type Persister interface {
	SaveRecord(ctx context.Context, rec models.EngagementRecord) error
	DeleteRecord(ctx context.Context, artifactID string) error
}

type entry struct {
	mu    sync.Mutex
	rec   models.EngagementRecord
	index map[string]int // comment id -> position in rec.Comments
	dirty bool
}

func newEntry(artifactID string) *entry {
	return &entry{
		rec:   models.EngagementRecord{ArtifactID: artifactID, Favorites: make(map[string]bool)},
		index: make(map[string]int),
	}
}

// snapshot returns a deep copy of the record. Callers hold e.mu.
func (e *entry) snapshot() models.EngagementRecord {
	rec := e.rec
	rec.Comments = slices.Clone(e.rec.Comments)
	rec.Favorites = make(map[string]bool, len(e.rec.Favorites))
	for k, v := range e.rec.Favorites {
		rec.Favorites[k] = v
	}
	return rec
}

// Ledger is the Engagement Ledger.
type Ledger struct {
	catalog Catalog
	policy  Authorizer

	mu       sync.RWMutex
	records  map[string]*entry
	comments map[string]string // comment id -> artifact id
	removed  map[string]struct{}

	flushMu   sync.Mutex
	persister Persister
	timeout   time.Duration

	now func() time.Time
	log *zap.Logger
}

// NewLedger returns an empty Ledger. persister may be nil.
func NewLedger(catalog Catalog, policy Authorizer, persister Persister, timeout time.Duration, log *zap.Logger) *Ledger {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Ledger{
		catalog:   catalog,
		policy:    policy,
		records:   make(map[string]*entry),
		comments:  make(map[string]string),
		removed:   make(map[string]struct{}),
		persister: persister,
		timeout:   timeout,
		now:       time.Now,
		log:       log,
	}
}

// open resolves the artifact, checks viewer access and returns the
// artifact's entry, creating it if needed. A nil viewer is the system
// itself and skips the access check.
func (l *Ledger) open(artifactID string, viewer *models.Viewer) (*entry, error) {
	a, err := l.catalog.Get(artifactID)
	if err != nil {
		return nil, err
	}
	if viewer != nil {
		if err := l.policy.Check(a, *viewer); err != nil {
			return nil, err
		}
	}

	l.mu.RLock()
	e := l.records[artifactID]
	l.mu.RUnlock()
	if e != nil {
		return e, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e = l.records[artifactID]; e == nil {
		// Re-check under l.mu so a concurrent delete cannot leave an orphan.
		if _, err := l.catalog.Get(artifactID); err != nil {
			return nil, err
		}
		e = newEntry(artifactID)
		l.records[artifactID] = e
	}
	return e, nil
}

func (l *Ledger) lookup(artifactID string) *entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.records[artifactID]
}

func (l *Ledger) touch(e *entry, op string) {
	e.dirty = true
	e.rec.UpdatedAt = l.now().UTC()
	metrics.EngagementMutations.WithLabelValues(op).Inc()
}

// RecordView adds one view. It is not idempotent: every call counts.
func (l *Ledger) RecordView(artifactID string, viewer models.Viewer) (int64, error) {
	e, err := l.open(artifactID, &viewer)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.ViewCount++
	l.touch(e, "view")
	return e.rec.ViewCount, nil
}

// RecordDownload adds one download. Viewers who cannot read the artifact
// get apperr.ErrForbidden.
func (l *Ledger) RecordDownload(artifactID string, viewer models.Viewer) (int64, error) {
	e, err := l.open(artifactID, &viewer)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.DownloadCount++
	l.touch(e, "download")
	return e.rec.DownloadCount, nil
}

// RecordCitation adds one citation. Citations are reported by the system,
// not by a viewer, so no access check applies.
func (l *Ledger) RecordCitation(artifactID string) (int64, error) {
	e, err := l.open(artifactID, nil)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.CitationCount++
	l.touch(e, "citation")
	return e.rec.CitationCount, nil
}

// ToggleFavorite flips viewer's favorite flag and returns the new flag and
// favorite count. The count moves only on an actual flag transition.
func (l *Ledger) ToggleFavorite(artifactID string, viewer models.Viewer) (bool, int64, error) {
	if viewer.ID == "" {
		return false, 0, apperr.Validation("favorites require a signed-in viewer")
	}
	e, err := l.open(artifactID, &viewer)
	if err != nil {
		return false, 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rec.Favorites[viewer.ID] {
		delete(e.rec.Favorites, viewer.ID)
		e.rec.FavoriteCount--
	} else {
		e.rec.Favorites[viewer.ID] = true
		e.rec.FavoriteCount++
	}
	l.touch(e, "favorite")
	return e.rec.Favorites[viewer.ID], e.rec.FavoriteCount, nil
}

// AddComment appends a comment to the artifact's thread. parentID, when
// set, must name an existing comment on the same artifact.
func (l *Ledger) AddComment(artifactID string, viewer models.Viewer, author models.AuthorRef, body, parentID string) (models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Comment{}, apperr.Validation("comment body is empty")
	}
	author.Name = strings.TrimSpace(author.Name)
	if author.Name == "" {
		return models.Comment{}, apperr.Validation("comment author is required")
	}
	e, err := l.open(artifactID, &viewer)
	if err != nil {
		return models.Comment{}, err
	}
	c, err := l.appendComment(e, author, body, parentID)
	if err != nil {
		return models.Comment{}, err
	}
	if err := l.registerComment(e, c); err != nil {
		return models.Comment{}, err
	}
	return c, nil
}

// registerComment makes c reachable by id. It runs after e.mu is released
// since lock order is always l.mu, then e.mu. If the artifact was forgotten
// in between, the comment went to a dropped entry and is not registered.
func (l *Ledger) registerComment(e *entry, c models.Comment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.records[c.ArtifactID] != e {
		return apperr.NotFound("artifact", c.ArtifactID)
	}
	l.comments[c.ID] = c.ArtifactID
	return nil
}

func (l *Ledger) appendComment(e *entry, author models.AuthorRef, body, parentID string) (models.Comment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if parentID != "" {
		if _, ok := e.index[parentID]; !ok {
			return models.Comment{}, apperr.Validation("parent comment %q is not on artifact %q", parentID, e.rec.ArtifactID)
		}
	}

	created := l.now().UTC()
	if n := len(e.rec.Comments); n > 0 {
		// Keep the thread strictly ordered so a parent always predates its replies.
		if last := e.rec.Comments[n-1].CreatedAt; !created.After(last) {
			created = last.Add(time.Nanosecond)
		}
	}
	c := models.Comment{
		ID:         uuid.New().String(),
		ArtifactID: e.rec.ArtifactID,
		Author:     author,
		Body:       body,
		CreatedAt:  created,
		ParentID:   parentID,
	}
	e.index[c.ID] = len(e.rec.Comments)
	e.rec.Comments = append(e.rec.Comments, c)
	l.touch(e, "comment")
	return c, nil
}

// LikeComment adds one like to a comment.
func (l *Ledger) LikeComment(commentID string, viewer models.Viewer) (models.Comment, error) {
	l.mu.RLock()
	artifactID, ok := l.comments[commentID]
	l.mu.RUnlock()
	if !ok {
		return models.Comment{}, apperr.NotFound("comment", commentID)
	}
	e, err := l.open(artifactID, &viewer)
	if err != nil {
		return models.Comment{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	i, ok := e.index[commentID]
	if !ok {
		return models.Comment{}, apperr.NotFound("comment", commentID)
	}
	e.rec.Comments[i].LikeCount++
	l.touch(e, "like")
	return e.rec.Comments[i], nil
}

// Get returns the engagement record of an artifact. An artifact nobody
// has interacted with yields a zero record; none is created.
func (l *Ledger) Get(artifactID string) (models.EngagementRecord, error) {
	if _, err := l.catalog.Get(artifactID); err != nil {
		return models.EngagementRecord{}, err
	}
	e := l.lookup(artifactID)
	if e == nil {
		return models.EngagementRecord{ArtifactID: artifactID}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), nil
}

// Counters returns the artifact's counters, zero if it has no record.
func (l *Ledger) Counters(artifactID string) models.Counters {
	e := l.lookup(artifactID)
	if e == nil {
		return models.Counters{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Counters
}

// Comments returns the artifact's thread in creation order.
func (l *Ledger) Comments(artifactID string) []models.Comment {
	e := l.lookup(artifactID)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.rec.Comments)
}

// IsFavorite reports viewerID's favorite flag on an artifact.
func (l *Ledger) IsFavorite(artifactID, viewerID string) bool {
	e := l.lookup(artifactID)
	if e == nil || viewerID == "" {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Favorites[viewerID]
}

// MigrateLineage copies the counters and favorite flags of fromID into
// toID. Comments stay with fromID. Used when a new version should carry
// its predecessor's engagement history.
func (l *Ledger) MigrateLineage(fromID, toID string) error {
	if fromID == toID {
		return apperr.Validation("cannot migrate an artifact onto itself")
	}
	src := l.lookup(fromID)
	if src == nil {
		if _, err := l.catalog.Get(fromID); err != nil {
			return err
		}
		return nil
	}
	dst, err := l.open(toID, nil)
	if err != nil {
		return err
	}

	// Lock in id order so concurrent migrations cannot deadlock.
	first, second := src, dst
	if toID < fromID {
		first, second = dst, src
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	dst.rec.ViewCount += src.rec.ViewCount
	dst.rec.DownloadCount += src.rec.DownloadCount
	dst.rec.CitationCount += src.rec.CitationCount
	for viewer := range src.rec.Favorites {
		dst.rec.Favorites[viewer] = true
	}
	dst.rec.FavoriteCount = int64(len(dst.rec.Favorites))
	l.touch(dst, "migrate")

	l.log.Info("engagement migrated",
		zap.String("from", fromID),
		zap.String("to", toID),
		zap.Int64("views", dst.rec.ViewCount),
	)
	return nil
}

// Forget drops an artifact's record and its comments. It is the cascade
// for catalog deletes.
func (l *Ledger) Forget(artifactID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.records[artifactID]
	if !ok {
		return
	}
	e.mu.Lock()
	for _, c := range e.rec.Comments {
		delete(l.comments, c.ID)
	}
	e.mu.Unlock()
	delete(l.records, artifactID)
	l.removed[artifactID] = struct{}{}
}
