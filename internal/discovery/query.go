package discovery

import (
	"slices"
	"strings"
	"unicode"

	"github.com/ayush/research-catalog/backend/internal/models"
)

const excerptRunes = 200

// filter is a parsed facet selection. A nil category selects everything.
type filter [numFacets]map[string]struct{}

// parseFilters keeps only categories and values the snapshot knows about.
func (s *snapshot) parseFilters(raw map[string][]string) filter {
	var f filter
	for name, values := range raw {
		cat, ok := ParseFacet(name)
		if !ok {
			continue
		}
		for _, v := range values {
			key := FoldKey(v)
			if _, known := s.facets[cat][key]; !known {
				continue
			}
			if f[cat] == nil {
				f[cat] = make(map[string]struct{})
			}
			f[cat][key] = struct{}{}
		}
	}
	return f
}

// misses returns how many categories reject d, and the last one that did.
func (f filter) misses(d *doc) (int, Facet) {
	n, last := 0, Facet(0)
	for cat, sel := range f {
		if sel == nil {
			continue
		}
		if _, ok := sel[d.facetKeys[cat]]; !ok {
			n++
			last = Facet(cat)
		}
	}
	return n, last
}

// match returns the ids whose bag covers every query token by prefix, with
// the coverage fraction for each. Empty text matches every document.
func (s *snapshot) match(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		out := make(map[string]float64, len(s.docs))
		for id := range s.docs {
			out[id] = 0
		}
		return out
	}

	var sums map[string]float64
	for _, q := range tokens {
		// shortest matching token length per document
		shortest := make(map[string]int)
		i, _ := slices.BinarySearch(s.vocab, q)
		for ; i < len(s.vocab) && strings.HasPrefix(s.vocab[i], q); i++ {
			n := len([]rune(s.vocab[i]))
			for _, id := range s.postings[s.vocab[i]] {
				if cur, ok := shortest[id]; !ok || n < cur {
					shortest[id] = n
				}
			}
		}
		ql := float64(len([]rune(q)))
		if sums == nil {
			sums = make(map[string]float64, len(shortest))
			for id, n := range shortest {
				sums[id] = ql / float64(n)
			}
			continue
		}
		for id, sum := range sums {
			n, ok := shortest[id]
			if !ok {
				delete(sums, id)
				continue
			}
			sums[id] = sum + ql/float64(n)
		}
		if len(sums) == 0 {
			break
		}
	}
	for id := range sums {
		sums[id] /= float64(len(tokens))
	}
	return sums
}

// Search runs a faceted query as seen by viewer.
func (e *Engine) Search(viewer models.Viewer, req models.SearchRequest) models.SearchResponse {
	s := e.snap.Load()
	now := e.now()

	tokens := slices.Compact(slices.Sorted(slices.Values(Tokenize(req.Text))))
	filters := s.parseFilters(req.Filters)
	sortBy := NormalizeSort(req.SortBy)

	facets := make(map[string]map[string]int, numFacets)
	for _, name := range facetNames {
		facets[name] = make(map[string]int)
	}
	count := func(d *doc, cat int) {
		if d.facetKeys[cat] == "" {
			return
		}
		display := s.facets[cat][d.facetKeys[cat]].display
		facets[facetNames[cat]][display]++
	}

	var hits []*hit
	for id, coverage := range s.match(tokens) {
		d := s.docs[id]
		if !e.policy.CanRead(d.artifact, viewer) {
			continue
		}
		switch n, cat := filters.misses(d); n {
		case 0:
			for c := range numFacets {
				count(d, int(c))
			}
			hits = append(hits, &hit{doc: d, coverage: coverage})
		case 1:
			count(d, int(cat))
		}
	}

	for _, h := range hits {
		h.counters = e.countersFor(h.doc.artifact.ID)
		h.rank(now)
	}
	slices.SortFunc(hits, comparator(sortBy))

	page, size := e.pageBounds(req.Page, req.PageSize)
	start, end := pageSlice(page, size, len(hits))
	results := make([]models.ArtifactSummary, 0, end-start)
	for _, h := range hits[start:end] {
		results = append(results, summarize(h.doc.artifact, h.counters))
	}

	return models.SearchResponse{
		Results:     results,
		TotalCount:  len(hits),
		FacetCounts: facets,
		Page:        page,
		PageSize:    size,
	}
}

func (e *Engine) pageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	switch {
	case size <= 0:
		size = e.cfg.DefaultPageSize
	case size > e.cfg.MaxPageSize:
		size = e.cfg.MaxPageSize
	}
	return page, size
}

// pageSlice returns the [start, end) window of page over n hits. Pages past
// the last one yield an empty window without multiplying page by size.
func pageSlice(page, size, n int) (int, int) {
	pages := (n + size - 1) / size
	if page > pages {
		return n, n
	}
	start := (page - 1) * size
	return start, min(start+size, n)
}

func (e *Engine) countersFor(id string) models.Counters {
	if e.counters == nil {
		return models.Counters{}
	}
	return e.counters.Counters(id)
}

func summarize(a models.ResearchArtifact, c models.Counters) models.ArtifactSummary {
	return models.ArtifactSummary{
		ID:              a.ID,
		Title:           a.Title,
		AbstractExcerpt: Excerpt(a.Abstract, excerptRunes),
		Authors:         slices.Clone(a.Authors),
		Institution:     a.Institution,
		PublishDate:     a.PublishDate,
		Keywords:        slices.Clone(a.Keywords),
		ViewCount:       c.ViewCount,
		DownloadCount:   c.DownloadCount,
		FileType:        a.FileType,
	}
}

// Excerpt shortens s to at most limit runes, cutting at a word boundary
// when one exists, and marks the cut with an ellipsis.
func Excerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	cut := r[:limit]
	if i := lastSpace(cut); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(string(cut), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) + "…"
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == ' ' {
			return i
		}
	}
	return -1
}
