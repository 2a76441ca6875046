// Package discovery indexes the catalog and answers faceted searches.
//
// The index is an immutable snapshot behind an atomic pointer. Writers
// build a modified copy and swap it in, so a search in flight always
// reads one consistent snapshot and never takes a lock.
package discovery

import (
	"maps"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ayush/research-catalog/backend/internal/models"
)

// Facet is a filterable attribute category.
type Facet int

const (
	FacetInstitution Facet = iota
	FacetYear
	FacetField
	FacetType
	numFacets
)

var facetNames = [numFacets]string{"institution", "year", "field", "type"}

func (f Facet) String() string { return facetNames[f] }

// ParseFacet maps a category name to a Facet.
func ParseFacet(name string) (Facet, bool) {
	key := FoldKey(name)
	for i, n := range facetNames {
		if n == key {
			return Facet(i), true
		}
	}
	return 0, false
}

// CounterSource supplies engagement counters. Implemented by engagement.Ledger.
type CounterSource interface {
	Counters(artifactID string) models.Counters
}

// ReadPolicy decides visibility. Implemented by access.Policy.
type ReadPolicy interface {
	CanRead(artifact models.ResearchArtifact, viewer models.Viewer) bool
}

type doc struct {
	artifact  models.ResearchArtifact
	tokens    []string
	keywords  []string // folded, unique
	spelling  []string // keywords as written, parallel to keywords
	facets    [numFacets]string
	facetKeys [numFacets]string
}

func newDoc(a models.ResearchArtifact) *doc {
	d := &doc{artifact: a.Clone()}

	fields := []string{a.Title, a.Abstract}
	fields = append(fields, a.Keywords...)
	for _, au := range a.Authors {
		fields = append(fields, au.Name)
	}
	d.tokens = bag(fields...)

	for _, k := range a.Keywords {
		key := FoldKey(k)
		if key == "" || slices.Contains(d.keywords, key) {
			continue
		}
		d.keywords = append(d.keywords, key)
		d.spelling = append(d.spelling, k)
	}

	d.facets = [numFacets]string{
		FacetInstitution: a.Institution,
		FacetYear:        strconv.Itoa(a.PublishDate.Year()),
		FacetField:       a.ResearchField,
		FacetType:        a.DocumentType,
	}
	for i, v := range d.facets {
		d.facetKeys[i] = FoldKey(v)
	}
	return d
}

type facetValue struct {
	display string
	docs    int
}

type snapshot struct {
	docs     map[string]*doc
	vocab    []string            // sorted
	postings map[string][]string // token -> sorted artifact ids
	facets   [numFacets]map[string]facetValue
}

func emptySnapshot() *snapshot {
	s := &snapshot{
		docs:     make(map[string]*doc),
		postings: make(map[string][]string),
	}
	for i := range s.facets {
		s.facets[i] = make(map[string]facetValue)
	}
	return s
}

// clone copies the containers. Posting slices stay shared and are
// replaced, never mutated, by add and remove.
func (s *snapshot) clone() *snapshot {
	c := &snapshot{
		docs:     maps.Clone(s.docs),
		vocab:    slices.Clone(s.vocab),
		postings: maps.Clone(s.postings),
	}
	for i := range s.facets {
		c.facets[i] = maps.Clone(s.facets[i])
	}
	return c
}

func (s *snapshot) add(d *doc) {
	id := d.artifact.ID
	s.docs[id] = d
	for _, tok := range d.tokens {
		old, ok := s.postings[tok]
		if !ok {
			i, _ := slices.BinarySearch(s.vocab, tok)
			s.vocab = slices.Insert(s.vocab, i, tok)
		}
		i, found := slices.BinarySearch(old, id)
		if found {
			continue
		}
		s.postings[tok] = slices.Insert(slices.Clone(old), i, id)
	}
	for f, key := range d.facetKeys {
		if key == "" {
			continue
		}
		v := s.facets[f][key]
		if v.docs == 0 {
			v.display = d.facets[f]
		}
		v.docs++
		s.facets[f][key] = v
	}
}

func (s *snapshot) remove(d *doc) {
	id := d.artifact.ID
	delete(s.docs, id)
	for _, tok := range d.tokens {
		ids := slices.DeleteFunc(slices.Clone(s.postings[tok]), func(x string) bool { return x == id })
		if len(ids) > 0 {
			s.postings[tok] = ids
			continue
		}
		delete(s.postings, tok)
		if i, ok := slices.BinarySearch(s.vocab, tok); ok {
			s.vocab = slices.Delete(s.vocab, i, i+1)
		}
	}
	for f, key := range d.facetKeys {
		if key == "" {
			continue
		}
		v := s.facets[f][key]
		if v.docs <= 1 {
			delete(s.facets[f], key)
			continue
		}
		v.docs--
		s.facets[f][key] = v
	}
}

// Config sizes result pages.
type Config struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Engine is the Discovery Engine.
type Engine struct {
	snap     atomic.Pointer[snapshot]
	wmu      sync.Mutex
	counters CounterSource
	policy   ReadPolicy
	cfg      Config
	now      func() time.Time
	log      *zap.Logger
}

// NewEngine returns an Engine over an empty index.
func NewEngine(counters CounterSource, policy ReadPolicy, cfg Config, log *zap.Logger) *Engine {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = max(100, cfg.DefaultPageSize)
	}
	e := &Engine{counters: counters, policy: policy, cfg: cfg, now: time.Now, log: log}
	e.snap.Store(emptySnapshot())
	return e
}

// Index adds or replaces an artifact. The catalog calls it on every write.
func (e *Engine) Index(a models.ResearchArtifact) {
	d := newDoc(a)

	e.wmu.Lock()
	defer e.wmu.Unlock()
	next := e.snap.Load().clone()
	if old, ok := next.docs[a.ID]; ok {
		next.remove(old)
	}
	next.add(d)
	e.snap.Store(next)

	e.log.Debug("artifact indexed", zap.String("id", a.ID), zap.Int("tokens", len(d.tokens)))
}

// Remove drops an artifact from the index.
func (e *Engine) Remove(id string) {
	e.wmu.Lock()
	defer e.wmu.Unlock()
	cur := e.snap.Load()
	old, ok := cur.docs[id]
	if !ok {
		return
	}
	next := cur.clone()
	next.remove(old)
	e.snap.Store(next)
}

// Len returns the number of indexed artifacts.
func (e *Engine) Len() int {
	return len(e.snap.Load().docs)
}
