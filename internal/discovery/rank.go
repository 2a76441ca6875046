package discovery

import (
	"cmp"
	"math"
	"time"

	"github.com/ayush/research-catalog/backend/internal/models"
)

// Sort modes accepted in SearchRequest.SortBy.
const (
	SortRelevance = "relevance"
	SortDate      = "date"
	SortDownloads = "downloads"
	SortViews     = "views"
)

const (
	coverageWeight = 3.0
	recencyWindow  = 365
)

type hit struct {
	doc      *doc
	counters models.Counters
	coverage float64
	score    float64
}

func recencyBoost(published, now time.Time) float64 {
	p := published.UTC().Truncate(24 * time.Hour)
	today := now.UTC().Truncate(24 * time.Hour)
	days := int(today.Sub(p).Hours() / 24)
	boost := 1 - float64(days)/recencyWindow
	return math.Max(0, math.Min(1, boost))
}

func (h *hit) rank(now time.Time) {
	h.score = h.coverage*coverageWeight +
		math.Log1p(float64(h.counters.ViewCount)) +
		math.Log1p(float64(h.counters.DownloadCount)) +
		recencyBoost(h.doc.artifact.PublishDate, now)
}

// newest orders by publish date descending, then id ascending.
func newest(a, b *doc) int {
	if c := b.artifact.PublishDate.Compare(a.artifact.PublishDate); c != 0 {
		return c
	}
	return cmp.Compare(a.artifact.ID, b.artifact.ID)
}

// comparator returns a total order for the sort mode. Unknown modes rank
// by relevance.
func comparator(sortBy string) func(a, b *hit) int {
	switch sortBy {
	case SortDate:
		return func(a, b *hit) int { return newest(a.doc, b.doc) }
	case SortDownloads:
		return byCounter(func(c models.Counters) int64 { return c.DownloadCount })
	case SortViews:
		return byCounter(func(c models.Counters) int64 { return c.ViewCount })
	default:
		return func(a, b *hit) int {
			if c := cmp.Compare(b.score, a.score); c != 0 {
				return c
			}
			return newest(a.doc, b.doc)
		}
	}
}

func byCounter(get func(models.Counters) int64) func(a, b *hit) int {
	return func(a, b *hit) int {
		if c := cmp.Compare(get(b.counters), get(a.counters)); c != 0 {
			return c
		}
		return newest(a.doc, b.doc)
	}
}

// NormalizeSort maps a requested sort mode onto a supported one. Unknown
// modes become SortRelevance.
func NormalizeSort(s string) string {
	switch s := FoldKey(s); s {
	case SortDate, SortDownloads, SortViews:
		return s
	default:
		return SortRelevance
	}
}
