// Package research wires the catalog core into the HTTP API: the Service
// composes the Catalog Store, Engagement Ledger, Access Policy and
// Discovery Engine, and Handler exposes it over chi.
package research

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ayush/research-catalog/backend/internal/access"
	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/catalog"
	"github.com/ayush/research-catalog/backend/internal/discovery"
	"github.com/ayush/research-catalog/backend/internal/engagement"
	"github.com/ayush/research-catalog/backend/internal/metrics"
	"github.com/ayush/research-catalog/backend/internal/models"
)

// FileStore defines the interface for artifact file storage.
type FileStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, int64, string, error)
	Remove(ctx context.Context, key string) error
}

// KeyFunc names the object that stores an artifact's file.
type KeyFunc func(artifactID, filename string) string

// File is an open artifact document ready to stream.
type File struct {
	io.ReadCloser
	Name        string
	Size        int64
	ContentType string
}

// Service is the application facade over the catalog core.
type Service struct {
	catalog *catalog.Store
	ledger  *engagement.Ledger
	policy  *access.Policy
	engine  *discovery.Engine
	files   FileStore
	fileKey KeyFunc
	timeout time.Duration
	log     *zap.Logger
}

func NewService(
	cat *catalog.Store,
	ledger *engagement.Ledger,
	policy *access.Policy,
	engine *discovery.Engine,
	files FileStore,
	fileKey KeyFunc,
	timeout time.Duration,
	log *zap.Logger,
) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		catalog: cat, ledger: ledger, policy: policy, engine: engine,
		files: files, fileKey: fileKey, timeout: timeout, log: log,
	}
}

// readable fetches an artifact the viewer is allowed to read.
func (s *Service) readable(id string, viewer models.Viewer) (models.ResearchArtifact, error) {
	a, err := s.catalog.Get(id)
	if err != nil {
		return a, err
	}
	return a, s.policy.Check(a, viewer)
}

// owned fetches an artifact the viewer published. Ownership is checked
// before readability so a publisher can reopen an artifact they restricted.
func (s *Service) owned(id string, viewer models.Viewer) (models.ResearchArtifact, error) {
	a, err := s.catalog.Get(id)
	if err != nil {
		return a, err
	}
	if viewer.ID == "" || a.PublisherID != viewer.ID {
		return a, apperr.Forbidden(id)
	}
	return a, nil
}

// Search runs a faceted search.
func (s *Service) Search(viewer models.Viewer, req models.SearchRequest) models.SearchResponse {
	start := time.Now()
	resp := s.engine.Search(viewer, req)
	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	metrics.Searches.WithLabelValues(discovery.NormalizeSort(req.SortBy)).Inc()
	return resp
}

// Publish stores a new artifact. The publisher's institution is used when
// the artifact names none.
func (s *Service) Publish(ctx context.Context, viewer models.Viewer, a models.ResearchArtifact) (models.ResearchArtifact, error) {
	if strings.TrimSpace(a.Institution) == "" {
		a.Institution = viewer.Institution
	}
	a.FileKey = ""
	a.PublisherID = viewer.ID
	a.PreviousVersionID = ""
	a.Version = 0
	id, err := s.catalog.Put(ctx, a)
	if err != nil {
		return models.ResearchArtifact{}, err
	}
	s.log.Info("artifact published", zap.String("id", id), zap.String("publisher", viewer.ID))
	return s.catalog.Get(id)
}

// UploadFile stores the document behind an artifact and records its type
// and size on the artifact. A replaced file is removed afterwards.
func (s *Service) UploadFile(ctx context.Context, viewer models.Viewer, id, filename, contentType string, r io.Reader, size int64) (models.ResearchArtifact, error) {
	a, err := s.owned(id, viewer)
	if err != nil {
		return a, err
	}
	if size <= 0 {
		return a, apperr.Validation("file is empty")
	}
	key := s.fileKey(id, filename)

	uctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.files.Upload(uctx, key, r, size, contentType); err != nil {
		s.log.Warn("file upload failed", zap.String("id", id), zap.Error(err))
		return a, apperr.Unavailable("upload file", err)
	}

	updated, err := s.catalog.AttachFile(ctx, id, key, fileType(filename), size)
	if err != nil {
		s.removeFile(key)
		return a, err
	}
	if a.FileKey != "" && a.FileKey != key {
		s.removeFile(a.FileKey)
	}
	return updated, nil
}

func (s *Service) removeFile(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.files.Remove(ctx, key); err != nil {
		s.log.Warn("file cleanup failed", zap.String("key", key), zap.Error(err))
	}
}

// fileType is the display type of a file, from its extension ("PDF").
func fileType(filename string) string {
	return strings.ToUpper(strings.TrimPrefix(path.Ext(filename), "."))
}

// Artifact returns the full artifact with its engagement, as seen by viewer.
func (s *Service) Artifact(viewer models.Viewer, id string) (models.ArtifactDetail, error) {
	a, err := s.readable(id, viewer)
	if err != nil {
		return models.ArtifactDetail{}, err
	}
	rec, err := s.ledger.Get(id)
	if err != nil {
		return models.ArtifactDetail{}, err
	}
	comments := rec.Comments
	if comments == nil {
		comments = []models.Comment{}
	}
	return models.ArtifactDetail{
		Artifact:  a,
		Counters:  rec.Counters,
		Comments:  comments,
		Favorited: viewer.ID != "" && s.ledger.IsFavorite(id, viewer.ID),
	}, nil
}

// PublishVersion publishes req.Artifact as the next version of prevID,
// optionally carrying over its engagement.
func (s *Service) PublishVersion(ctx context.Context, viewer models.Viewer, prevID string, req models.VersionRequest) (models.ResearchArtifact, error) {
	prev, err := s.owned(prevID, viewer)
	if err != nil {
		return prev, err
	}
	next := req.Artifact
	if strings.TrimSpace(next.Institution) == "" {
		next.Institution = prev.Institution
	}
	if next.AccessLevel == "" {
		next.AccessLevel = prev.AccessLevel
	}
	next.ID = ""
	next.FileKey = ""
	next.PublisherID = viewer.ID

	id, err := s.catalog.PublishVersion(ctx, prevID, next)
	if err != nil {
		return models.ResearchArtifact{}, err
	}
	if req.MigrateEngagement {
		if err := s.ledger.MigrateLineage(prevID, id); err != nil {
			return models.ResearchArtifact{}, fmt.Errorf("migrate engagement: %w", err)
		}
	}
	s.log.Info("version published",
		zap.String("id", id),
		zap.String("previous", prevID),
		zap.Bool("migrated", req.MigrateEngagement),
	)
	return s.catalog.Get(id)
}

// Lineage returns the readable versions of id's lineage, oldest first.
func (s *Service) Lineage(viewer models.Viewer, id string) ([]models.ResearchArtifact, error) {
	if _, err := s.readable(id, viewer); err != nil {
		return nil, err
	}
	chain, err := s.catalog.Lineage(id)
	if err != nil {
		return nil, err
	}
	out := chain[:0]
	for _, a := range chain {
		if s.policy.CanRead(a, viewer) {
			out = append(out, a)
		}
	}
	return out, nil
}

// SetAccessLevel changes who may read an artifact. Publisher only.
func (s *Service) SetAccessLevel(ctx context.Context, viewer models.Viewer, id string, level models.AccessLevel) (models.ResearchArtifact, error) {
	if _, err := s.owned(id, viewer); err != nil {
		return models.ResearchArtifact{}, err
	}
	return s.catalog.UpdateAccessLevel(ctx, id, level)
}

// Delete removes an artifact and its stored file. Publisher only.
func (s *Service) Delete(ctx context.Context, viewer models.Viewer, id string) error {
	a, err := s.owned(id, viewer)
	if err != nil {
		return err
	}
	if err := s.catalog.Delete(ctx, id); err != nil {
		return err
	}
	if a.FileKey != "" {
		s.removeFile(a.FileKey)
	}
	return nil
}

func (s *Service) Related(viewer models.Viewer, id string, limit int) ([]models.ArtifactSummary, error) {
	return s.engine.Related(id, viewer, limit)
}

func (s *Service) Trending(viewer models.Viewer, limit int) []models.KeywordCount {
	return s.engine.TrendingKeywords(viewer, limit)
}

func (s *Service) Recent(viewer models.Viewer, limit int) []models.ArtifactSummary {
	return s.engine.Recent(viewer, limit)
}

func (s *Service) RecordView(viewer models.Viewer, id string) (int64, error) {
	return s.ledger.RecordView(id, viewer)
}

func (s *Service) RecordCitation(id string) (int64, error) {
	return s.ledger.RecordCitation(id)
}

// Download opens an artifact's file and counts the download. Nothing is
// counted if the file cannot be opened.
func (s *Service) Download(ctx context.Context, viewer models.Viewer, id string) (*File, error) {
	a, err := s.catalog.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanDownload(a, viewer) {
		return nil, apperr.Forbidden(id)
	}
	if a.FileKey == "" {
		return nil, apperr.NotFound("file for artifact", id)
	}

	rc, size, contentType, err := s.openFile(ctx, a.FileKey)
	if err != nil {
		s.log.Warn("file open failed", zap.String("id", id), zap.Error(err))
		return nil, apperr.Unavailable("open file", err)
	}
	if _, err := s.ledger.RecordDownload(id, viewer); err != nil {
		rc.Close()
		return nil, err
	}
	return &File{ReadCloser: rc, Name: path.Base(a.FileKey), Size: size, ContentType: contentType}, nil
}

// openFile bounds only the open; the body streams under the caller's ctx.
func (s *Service) openFile(ctx context.Context, key string) (io.ReadCloser, int64, string, error) {
	type opened struct {
		rc          io.ReadCloser
		size        int64
		contentType string
		err         error
	}
	done := make(chan opened, 1)
	go func() {
		rc, size, ct, err := s.files.Open(ctx, key)
		done <- opened{rc, size, ct, err}
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case o := <-done:
		return o.rc, o.size, o.contentType, o.err
	case <-timer.C:
		go func() {
			if o := <-done; o.err == nil {
				o.rc.Close()
			}
		}()
		return nil, 0, "", context.DeadlineExceeded
	}
}

func (s *Service) ToggleFavorite(viewer models.Viewer, id string) (models.FavoriteResponse, error) {
	on, n, err := s.ledger.ToggleFavorite(id, viewer)
	if err != nil {
		return models.FavoriteResponse{}, err
	}
	return models.FavoriteResponse{Favorited: on, FavoriteCount: n}, nil
}

// Comments returns the thread of an artifact the viewer can read.
func (s *Service) Comments(viewer models.Viewer, id string) ([]models.Comment, error) {
	if _, err := s.readable(id, viewer); err != nil {
		return nil, err
	}
	c := s.ledger.Comments(id)
	if c == nil {
		c = []models.Comment{}
	}
	return c, nil
}

func (s *Service) AddComment(viewer models.Viewer, author models.AuthorRef, id string, req models.CommentRequest) (models.Comment, error) {
	return s.ledger.AddComment(id, viewer, author, req.Body, req.ParentID)
}

func (s *Service) LikeComment(viewer models.Viewer, commentID string) (models.Comment, error) {
	return s.ledger.LikeComment(commentID, viewer)
}
