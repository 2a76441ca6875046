package discovery

import (
	"cmp"
	"slices"
	"time"

	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/models"
)

const trendingWindow = recencyWindow * 24 * time.Hour

// Related returns readable artifacts that share keywords with id, most
// shared keywords first.
func (e *Engine) Related(id string, viewer models.Viewer, limit int) ([]models.ArtifactSummary, error) {
	s := e.snap.Load()
	src, ok := s.docs[id]
	if !ok {
		return nil, apperr.NotFound("artifact", id)
	}
	if !e.policy.CanRead(src.artifact, viewer) {
		return nil, apperr.Forbidden(id)
	}

	want := make(map[string]struct{}, len(src.keywords))
	for _, k := range src.keywords {
		want[k] = struct{}{}
	}

	type related struct {
		doc    *doc
		shared int
	}
	var found []related
	for otherID, d := range s.docs {
		if otherID == id || !e.policy.CanRead(d.artifact, viewer) {
			continue
		}
		n := 0
		for _, k := range d.keywords {
			if _, ok := want[k]; ok {
				n++
			}
		}
		if n > 0 {
			found = append(found, related{doc: d, shared: n})
		}
	}
	slices.SortFunc(found, func(a, b related) int {
		if c := cmp.Compare(b.shared, a.shared); c != 0 {
			return c
		}
		return newest(a.doc, b.doc)
	})

	out := make([]models.ArtifactSummary, 0, min(len(found), e.limit(limit)))
	for _, r := range found[:min(len(found), e.limit(limit))] {
		out = append(out, summarize(r.doc.artifact, e.countersFor(r.doc.artifact.ID)))
	}
	return out, nil
}

// TrendingKeywords counts keywords across readable artifacts published in
// the last year. The spelling shown is the one on the newest artifact.
func (e *Engine) TrendingKeywords(viewer models.Viewer, limit int) []models.KeywordCount {
	s := e.snap.Load()
	since := e.now().Add(-trendingWindow)

	docs := make([]*doc, 0, len(s.docs))
	for _, d := range s.docs {
		if d.artifact.PublishDate.Before(since) || !e.policy.CanRead(d.artifact, viewer) {
			continue
		}
		docs = append(docs, d)
	}
	slices.SortFunc(docs, newest)

	counts := make(map[string]*models.KeywordCount)
	var order []*models.KeywordCount
	for _, d := range docs {
		for i, key := range d.keywords {
			kc, ok := counts[key]
			if !ok {
				kc = &models.KeywordCount{Keyword: d.spelling[i]}
				counts[key] = kc
				order = append(order, kc)
			}
			kc.Count++
		}
	}
	slices.SortFunc(order, func(a, b *models.KeywordCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(Fold(a.Keyword), Fold(b.Keyword))
	})

	n := min(len(order), e.limit(limit))
	out := make([]models.KeywordCount, 0, n)
	for _, kc := range order[:n] {
		out = append(out, *kc)
	}
	return out
}

// Recent returns the newest readable artifacts.
func (e *Engine) Recent(viewer models.Viewer, limit int) []models.ArtifactSummary {
	s := e.snap.Load()
	docs := make([]*doc, 0, len(s.docs))
	for _, d := range s.docs {
		if e.policy.CanRead(d.artifact, viewer) {
			docs = append(docs, d)
		}
	}
	slices.SortFunc(docs, newest)

	n := min(len(docs), e.limit(limit))
	out := make([]models.ArtifactSummary, 0, n)
	for _, d := range docs[:n] {
		out = append(out, summarize(d.artifact, e.countersFor(d.artifact.ID)))
	}
	return out
}

func (e *Engine) limit(n int) int {
	if n <= 0 {
		return e.cfg.DefaultPageSize
	}
	return min(n, e.cfg.MaxPageSize)
}
