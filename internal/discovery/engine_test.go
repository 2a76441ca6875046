package discovery

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ayush/research-catalog/backend/internal/access"
	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/models"
)

var today = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

type fakeCounters struct {
	mu sync.Mutex
	m  map[string]models.Counters
}

func (f *fakeCounters) Counters(id string) models.Counters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.m[id]
}

func (f *fakeCounters) set(id string, views, downloads int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[id] = models.Counters{ViewCount: views, DownloadCount: downloads}
}

func newTestEngine(t *testing.T) (*Engine, *fakeCounters) {
	t.Helper()
	c := &fakeCounters{m: make(map[string]models.Counters)}
	e := NewEngine(c, access.NewPolicy(nil), Config{DefaultPageSize: 20, MaxPageSize: 100}, zap.NewNop())
	e.now = func() time.Time { return today }
	return e, c
}

func artifact(id, title string, mutate func(*models.ResearchArtifact)) models.ResearchArtifact {
	a := models.ResearchArtifact{
		ID:            id,
		Title:         title,
		Abstract:      "A study.",
		Authors:       []models.AuthorRef{{Name: "Dr. Adebayo Johnson"}},
		Institution:   "UNILAG",
		ResearchField: "Agriculture",
		DocumentType:  "Research Paper",
		PublishDate:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		AccessLevel:   models.AccessPublic,
		FileType:      "PDF",
	}
	if mutate != nil {
		mutate(&a)
	}
	return a
}

func ids(resp models.SearchResponse) []string {
	out := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, r.ID)
	}
	return out
}

func TestSearchMachineScenario(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Index(artifact("ml", "ML in Agriculture", func(a *models.ResearchArtifact) {
		a.Keywords = []string{"Machine Learning", "Agriculture"}
	}))

	resp := e.Search(models.Viewer{}, models.SearchRequest{Text: "machine"})
	assert.Equal(t, []string{"ml"}, ids(resp))
	assert.Equal(t, 1, resp.TotalCount)

	resp = e.Search(models.Viewer{}, models.SearchRequest{Text: "xyz123"})
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
	assert.Zero(t, resp.TotalCount)
}

func TestSearchPrefixAndAndSemantics(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Index(artifact("a", "Solar Energy Adoption", nil))
	e.Index(artifact("b", "Solar Panels in Lagos", nil))
	e.Index(artifact("c", "Université de Lagos Energy Report", nil))

	tests := []struct {
		text string
		want []string
	}{
		{"sol", []string{"a", "b"}},
		{"solar ener", []string{"a"}},
		{"LAGOS", []string{"b", "c"}},
		{"universite", []string{"c"}},
		{"adebayo", []string{"a", "b", "c"}},
		{"solar, lagos!", []string{"b"}},
		{"solarx", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			resp := e.Search(models.Viewer{}, models.SearchRequest{Text: tt.text, SortBy: SortDate})
			assert.ElementsMatch(t, tt.want, ids(resp))
		})
	}
}

func TestSearchExcludesUnreadable(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Index(artifact("open", "Open paper", nil))
	e.Index(artifact("inst", "Campus paper", func(a *models.ResearchArtifact) {
		a.AccessLevel = models.AccessInstitutional
	}))
	e.Index(artifact("secret", "Restricted paper", func(a *models.ResearchArtifact) {
		a.AccessLevel = models.AccessRestricted
	}))

	ui := models.Viewer{ID: "bob", Institution: "UI"}
	resp := e.Search(ui, models.SearchRequest{Text: "paper"})
	assert.Equal(t, []string{"open"}, ids(resp))
	assert.Equal(t, 1, resp.FacetCounts["institution"]["UNILAG"], "facet counts respect access")

	unilag := models.Viewer{ID: "alice", Institution: "unilag "}
	resp = e.Search(unilag, models.SearchRequest{Text: "paper"})
	assert.ElementsMatch(t, []string{"open", "inst"}, ids(resp))

	granted := models.Viewer{ID: "carol", Grants: []string{"secret"}}
	resp = e.Search(granted, models.SearchRequest{Text: "paper"})
	assert.ElementsMatch(t, []string{"open", "secret"}, ids(resp))
}

func TestEmptyQueryReturnsReadableCatalog(t *testing.T) {
	e, _ := newTestEngine(t)
	for i := range 30 {
		e.Index(artifact(fmt.Sprintf("p%02d", i), "Paper", func(a *models.ResearchArtifact) {
			if i%3 == 0 {
				a.AccessLevel = models.AccessInstitutional
				a.Institution = "OAU"
			}
		}))
	}

	resp := e.Search(models.Viewer{Institution: "UI"}, models.SearchRequest{PageSize: 100})
	assert.Equal(t, 20, resp.TotalCount)
	assert.Len(t, resp.Results, 20)
	for _, r := range resp.Results {
		assert.Equal(t, "UNILAG", r.Institution)
	}
}

func TestSearchOrderingIsDeterministic(t *testing.T) {
	e, c := newTestEngine(t)
	for i := range 25 {
		id := fmt.Sprintf("doc-%02d", i)
		e.Index(artifact(id, "Crop yield study", func(a *models.ResearchArtifact) {
			a.PublishDate = time.Date(2024, 1, 1+i%4, 0, 0, 0, 0, time.UTC)
		}))
		c.set(id, int64(i%3), 0)
	}

	for _, sortBy := range []string{SortRelevance, SortDate, SortDownloads, SortViews, "bogus"} {
		req := models.SearchRequest{Text: "crop", SortBy: sortBy, PageSize: 7}
		var first []string
		for page := 1; page <= 4; page++ {
			req.Page = page
			first = append(first, ids(e.Search(models.Viewer{}, req))...)
		}
		var again []string
		for page := 1; page <= 4; page++ {
			req.Page = page
			again = append(again, ids(e.Search(models.Viewer{}, req))...)
		}
		assert.Equal(t, first, again, sortBy)
		assert.Len(t, first, 25, "pages partition the results for %s", sortBy)
	}
}

func TestSortModes(t *testing.T) {
	e, c := newTestEngine(t)
	e.Index(artifact("old-popular", "Soil health", func(a *models.ResearchArtifact) {
		a.PublishDate = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	e.Index(artifact("new-quiet", "Soil health", func(a *models.ResearchArtifact) {
		a.PublishDate = time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC)
	}))
	e.Index(artifact("mid", "Soil microbes", func(a *models.ResearchArtifact) {
		a.PublishDate = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	}))
	c.set("old-popular", 900, 10)
	c.set("new-quiet", 1, 500)
	c.set("mid", 50, 50)

	search := func(sortBy string) []string {
		return ids(e.Search(models.Viewer{}, models.SearchRequest{Text: "soil", SortBy: sortBy}))
	}
	assert.Equal(t, []string{"new-quiet", "mid", "old-popular"}, search(SortDate))
	assert.Equal(t, []string{"old-popular", "mid", "new-quiet"}, search(SortViews))
	assert.Equal(t, []string{"new-quiet", "mid", "old-popular"}, search(SortDownloads))
	assert.Equal(t, search(SortRelevance), search("nonsense"))
	assert.Equal(t, search(SortDate), search(" Date "))
}

func TestRelevanceTieBreaks(t *testing.T) {
	e, _ := newTestEngine(t)
	same := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"b", "a", "c"} {
		e.Index(artifact(id, "Identical", func(a *models.ResearchArtifact) { a.PublishDate = same }))
	}
	e.Index(artifact("z", "Identical", func(a *models.ResearchArtifact) {
		a.PublishDate = same.AddDate(0, 0, 1)
	}))

	resp := e.Search(models.Viewer{}, models.SearchRequest{Text: "identical"})
	assert.Equal(t, []string{"z", "a", "b", "c"}, ids(resp))
}

func TestRelevancePrefersFullerCoverage(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Index(artifact("exact", "Rice farming", nil))
	e.Index(artifact("partial", "Ricewater farming", nil))

	resp := e.Search(models.Viewer{}, models.SearchRequest{Text: "rice"})
	assert.Equal(t, []string{"exact", "partial"}, ids(resp))
}

func TestRecencyBoost(t *testing.T) {
	tests := []struct {
		name      string
		published time.Time
		want      float64
	}{
		{"today", today.Truncate(24 * time.Hour), 1},
		{"future", today.AddDate(0, 0, 3), 1},
		{"half year", today.AddDate(0, 0, -73), 0.8},
		{"year old", today.AddDate(0, 0, -365), 0},
		{"ancient", today.AddDate(-5, 0, 0), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, recencyBoost(tt.published, today), 1e-9)
		})
	}
}

func TestFacetFiltersAndCounts(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Index(artifact("a", "Water study", nil))
	e.Index(artifact("b", "Water study", func(a *models.ResearchArtifact) { a.Institution = "UI" }))
	e.Index(artifact("c", "Water study", func(a *models.ResearchArtifact) {
		a.Institution = "UI"
		a.ResearchField = "Engineering"
	}))
	e.Index(artifact("d", "Water study", func(a *models.ResearchArtifact) {
		a.PublishDate = time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)
		a.DocumentType = "Thesis"
	}))

	resp := e.Search(models.Viewer{}, models.SearchRequest{
		Filters: map[string][]string{
			"Institution": {"ui"},
			"field":       {"agriculture", "Medicine"},
		},
		SortBy: SortDate,
	})
	assert.Equal(t, []string{"b"}, ids(resp))

	// Each category counts matches under the other categories' filters only.
	assert.Equal(t, map[string]int{"UNILAG": 2, "UI": 1}, resp.FacetCounts["institution"])
	assert.Equal(t, map[string]int{"Agriculture": 1, "Engineering": 1}, resp.FacetCounts["field"])
	assert.Equal(t, map[string]int{"2024": 1}, resp.FacetCounts["year"])
	assert.Equal(t, map[string]int{"Research Paper": 1}, resp.FacetCounts["type"])
}

func TestFacetCountsPartitionTotal(t *testing.T) {
	e, _ := newTestEngine(t)
	institutions := []string{"UNILAG", "UI", "OAU"}
	for i := range 12 {
		e.Index(artifact(fmt.Sprintf("x%d", i), "Malaria vaccine", func(a *models.ResearchArtifact) {
			a.Institution = institutions[i%3]
			a.PublishDate = time.Date(2021+i%4, 2, 1, 0, 0, 0, 0, time.UTC)
		}))
	}

	resp := e.Search(models.Viewer{}, models.SearchRequest{Text: "malaria"})
	for cat, values := range resp.FacetCounts {
		sum := 0
		for _, n := range values {
			sum += n
		}
		assert.Equal(t, resp.TotalCount, sum, cat)
	}
}

func TestUnknownFacetsAreIgnored(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Index(artifact("a", "Paper", nil))
	e.Index(artifact("b", "Paper", func(a *models.ResearchArtifact) { a.Institution = "UI" }))

	resp := e.Search(models.Viewer{}, models.SearchRequest{Filters: map[string][]string{
		"color":       {"blue"},
		"institution": {"Hogwarts"},
	}})
	assert.Equal(t, 2, resp.TotalCount)

	resp = e.Search(models.Viewer{}, models.SearchRequest{Filters: map[string][]string{
		"institution": {"Hogwarts", "UI"},
	}})
	assert.Equal(t, []string{"b"}, ids(resp))
}

func TestPagination(t *testing.T) {
	e, _ := newTestEngine(t)
	for i := range 45 {
		e.Index(artifact(fmt.Sprintf("p%02d", i), "Paper", nil))
	}

	resp := e.Search(models.Viewer{}, models.SearchRequest{})
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 20, resp.PageSize)
	assert.Len(t, resp.Results, 20)
	assert.Equal(t, 45, resp.TotalCount)

	resp = e.Search(models.Viewer{}, models.SearchRequest{Page: 3})
	assert.Len(t, resp.Results, 5)

	resp = e.Search(models.Viewer{}, models.SearchRequest{Page: 9})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Equal(t, 45, resp.TotalCount)

	resp = e.Search(models.Viewer{}, models.SearchRequest{PageSize: 1000})
	assert.Equal(t, 100, resp.PageSize)
	assert.Len(t, resp.Results, 45)
}

func TestPaginationHugePage(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Index(artifact("a", "Paper", nil))

	for _, page := range []int{math.MaxInt / 50, math.MaxInt} {
		resp := e.Search(models.Viewer{}, models.SearchRequest{Page: page, PageSize: 100})
		assert.NotNil(t, resp.Results)
		assert.Empty(t, resp.Results)
		assert.Equal(t, 1, resp.TotalCount)
	}

	empty, _ := newTestEngine(t)
	resp := empty.Search(models.Viewer{}, models.SearchRequest{Page: 2})
	assert.Empty(t, resp.Results)
}

func TestReindexAndRemove(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Index(artifact("a", "Cassava processing", nil))
	e.Index(artifact("a", "Yam storage", nil))

	assert.Empty(t, ids(e.Search(models.Viewer{}, models.SearchRequest{Text: "cassava"})))
	assert.Equal(t, []string{"a"}, ids(e.Search(models.Viewer{}, models.SearchRequest{Text: "yam"})))
	assert.Equal(t, 1, e.Len())

	e.Remove("a")
	e.Remove("a")
	assert.Zero(t, e.Len())
	resp := e.Search(models.Viewer{}, models.SearchRequest{})
	assert.Zero(t, resp.TotalCount)
	assert.Empty(t, resp.FacetCounts["institution"])
}

func TestSearchSeesConsistentSnapshots(t *testing.T) {
	e, _ := newTestEngine(t)
	// Every indexed pair shares a token, and pairs are added and removed
	// together, so a torn index would show an odd total.
	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			a := artifact(fmt.Sprintf("w%d-a", i), "pairtoken one", nil)
			b := artifact(fmt.Sprintf("w%d-b", i), "pairtoken two", nil)
			e.Index(a)
			e.Index(b)
			e.Remove(a.ID)
			e.Remove(b.ID)
		}
		close(done)
	}()

	for {
		select {
		case <-done:
			wg.Wait()
			return
		default:
		}
		resp := e.Search(models.Viewer{}, models.SearchRequest{Text: "pairtoken"})
		assert.LessOrEqual(t, resp.TotalCount, 2)
		assert.Len(t, resp.Results, resp.TotalCount)
	}
}

func TestSummary(t *testing.T) {
	e, c := newTestEngine(t)
	long := strings.Repeat("word ", 60)
	e.Index(artifact("a", "Summary", func(a *models.ResearchArtifact) {
		a.Abstract = long
		a.Keywords = []string{"Data"}
	}))
	c.set("a", 892, 245)

	resp := e.Search(models.Viewer{}, models.SearchRequest{Text: "summary"})
	require.Len(t, resp.Results, 1)
	s := resp.Results[0]
	assert.Equal(t, int64(892), s.ViewCount)
	assert.Equal(t, int64(245), s.DownloadCount)
	assert.Equal(t, "PDF", s.FileType)
	assert.Equal(t, []string{"Data"}, s.Keywords)
	assert.True(t, strings.HasSuffix(s.AbstractExcerpt, "word…"))
	assert.LessOrEqual(t, len([]rune(s.AbstractExcerpt)), excerptRunes+1)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short abstract", Excerpt("  short\n abstract ", 200))
	assert.Equal(t, "alpha beta…", Excerpt("alpha beta, gamma", 12))
	assert.Equal(t, "abcdefghij…", Excerpt("abcdefghijklmnop", 10))
}

func TestRelated(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Index(artifact("src", "Crop AI", func(a *models.ResearchArtifact) {
		a.Keywords = []string{"AI", "Crop Disease", "Agriculture"}
	}))
	e.Index(artifact("two", "Vision", func(a *models.ResearchArtifact) {
		a.Keywords = []string{"ai", "crop disease"}
	}))
	e.Index(artifact("one", "Farming", func(a *models.ResearchArtifact) {
		a.Keywords = []string{"Agriculture"}
	}))
	e.Index(artifact("none", "Energy", func(a *models.ResearchArtifact) {
		a.Keywords = []string{"Solar"}
	}))
	e.Index(artifact("hidden", "Private", func(a *models.ResearchArtifact) {
		a.Keywords = []string{"AI", "Crop Disease", "Agriculture"}
		a.AccessLevel = models.AccessRestricted
	}))

	got, err := e.Related("src", models.Viewer{}, 10)
	require.NoError(t, err)
	var gotIDs []string
	for _, s := range got {
		gotIDs = append(gotIDs, s.ID)
	}
	assert.Equal(t, []string{"two", "one"}, gotIDs)

	_, err = e.Related("missing", models.Viewer{}, 10)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = e.Related("hidden", models.Viewer{}, 10)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestTrendingKeywords(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Index(artifact("a", "One", func(a *models.ResearchArtifact) {
		a.Keywords = []string{"Machine Learning", "Agriculture"}
	}))
	e.Index(artifact("b", "Two", func(a *models.ResearchArtifact) {
		a.Keywords = []string{"machine learning"}
		a.PublishDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	}))
	e.Index(artifact("old", "Three", func(a *models.ResearchArtifact) {
		a.Keywords = []string{"Agriculture", "Fisheries"}
		a.PublishDate = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}))

	got := e.TrendingKeywords(models.Viewer{}, 10)
	assert.Equal(t, []models.KeywordCount{
		{Keyword: "machine learning", Count: 2},
		{Keyword: "Agriculture", Count: 1},
	}, got)
	assert.Len(t, e.TrendingKeywords(models.Viewer{}, 1), 1)
}

func TestRecent(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Index(artifact("old", "Old", func(a *models.ResearchArtifact) {
		a.PublishDate = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	e.Index(artifact("new", "New", func(a *models.ResearchArtifact) {
		a.PublishDate = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	}))
	e.Index(artifact("inst", "Inst", func(a *models.ResearchArtifact) {
		a.PublishDate = time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
		a.AccessLevel = models.AccessInstitutional
	}))

	got := e.Recent(models.Viewer{Institution: "UI"}, 5)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[1].ID)
}
