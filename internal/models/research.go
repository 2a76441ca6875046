package models

import (
	"slices"
	"strings"
	"time"
)

// AccessLevel is the visibility tier of an artifact.
type AccessLevel string

const (
	AccessPublic        AccessLevel = "public"
	AccessInstitutional AccessLevel = "institutional"
	AccessRestricted    AccessLevel = "restricted"
)

// Valid reports whether l is one of the known access levels.
func (l AccessLevel) Valid() bool {
	switch l {
	case AccessPublic, AccessInstitutional, AccessRestricted:
		return true
	}
	return false
}

// ResearchFields is the controlled list an artifact's field must come from.
var ResearchFields = []string{
	"Computer Science",
	"Medicine",
	"Engineering",
	"Agriculture",
	"Social Sciences",
	"Natural Sciences",
	"Law",
	"Education",
	"Economics",
	"Environmental Science",
}

// DocumentTypes lists the accepted document types. They feed the "type" facet.
var DocumentTypes = []string{
	"Research Paper",
	"Thesis",
	"Dissertation",
	"Conference Paper",
	"Book Chapter",
}

// CanonicalField returns the controlled spelling of field, matched
// case-insensitively, and whether it is in the list.
func CanonicalField(field string) (string, bool) {
	return canonical(ResearchFields, field)
}

// CanonicalDocumentType is CanonicalField for document types.
func CanonicalDocumentType(t string) (string, bool) {
	return canonical(DocumentTypes, t)
}

func canonical(list []string, v string) (string, bool) {
	v = strings.TrimSpace(v)
	i := slices.IndexFunc(list, func(s string) bool { return strings.EqualFold(s, v) })
	if i < 0 {
		return "", false
	}
	return list[i], true
}

// AuthorRef is a display reference to an author. Two refs with the same
// name are not assumed to be the same person.
type AuthorRef struct {
	Name        string `json:"name"        bson:"name"        yaml:"name"`
	Affiliation string `json:"affiliation" bson:"affiliation" yaml:"affiliation"`
	Email       string `json:"email"       bson:"email"       yaml:"email"`
}

// ResearchArtifact is a single published research item. PublisherID is the
// user allowed to change, version or delete it; operator imports leave it
// empty.
type ResearchArtifact struct {
	ID                string      `json:"id"                          yaml:"id"`
	Title             string      `json:"title"                       yaml:"title"`
	Abstract          string      `json:"abstract"                    yaml:"abstract"`
	Authors           []AuthorRef `json:"authors"                     yaml:"authors"`
	Institution       string      `json:"institution"                 yaml:"institution"`
	Department        string      `json:"department"                  yaml:"department"`
	ResearchField     string      `json:"researchField"               yaml:"researchField"`
	DocumentType      string      `json:"documentType"                yaml:"documentType"`
	Keywords          []string    `json:"keywords"                    yaml:"keywords"`
	PublishDate       time.Time   `json:"publishDate"                 yaml:"publishDate"`
	LastUpdated       time.Time   `json:"lastUpdated"                 yaml:"lastUpdated"`
	FileType          string      `json:"fileType"                    yaml:"fileType"`
	FileSizeBytes     int64       `json:"fileSizeBytes"               yaml:"fileSizeBytes"`
	PageCount         int         `json:"pageCount"                   yaml:"pageCount"`
	Language          string      `json:"language"                    yaml:"language"`
	AccessLevel       AccessLevel `json:"accessLevel"                 yaml:"accessLevel"`
	Version           int         `json:"version"                     yaml:"version"`
	PreviousVersionID string      `json:"previousVersionId,omitempty" yaml:"previousVersionId,omitempty"`
	DOI               string      `json:"doi,omitempty"               yaml:"doi,omitempty"`
	License           string      `json:"license,omitempty"           yaml:"license,omitempty"`
	PublisherID       string      `json:"publisherId,omitempty"       yaml:"publisherId,omitempty"`
	FileKey           string      `json:"-"                           yaml:"-"`
}

// Clone returns a deep copy so callers never share slices with the store.
func (a ResearchArtifact) Clone() ResearchArtifact {
	a.Authors = slices.Clone(a.Authors)
	a.Keywords = slices.Clone(a.Keywords)
	return a
}

// ArtifactSummary is the search-result view of an artifact.
type ArtifactSummary struct {
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	AbstractExcerpt string      `json:"abstractExcerpt"`
	Authors         []AuthorRef `json:"authors"`
	Institution     string      `json:"institution"`
	PublishDate     time.Time   `json:"publishDate"`
	Keywords        []string    `json:"keywords"`
	ViewCount       int64       `json:"viewCount"`
	DownloadCount   int64       `json:"downloadCount"`
	FileType        string      `json:"fileType"`
}

// Comment is one entry in an artifact's discussion thread.
type Comment struct {
	ID         string    `json:"id"                 bson:"id"`
	ArtifactID string    `json:"artifactId"         bson:"artifact_id"`
	Author     AuthorRef `json:"authorRef"          bson:"author"`
	Body       string    `json:"body"               bson:"body"`
	CreatedAt  time.Time `json:"createdAt"          bson:"created_at"`
	LikeCount  int64     `json:"likeCount"          bson:"like_count"`
	ParentID   string    `json:"parentId,omitempty" bson:"parent_id,omitempty"`
}

// Counters are the numeric engagement totals of one artifact.
type Counters struct {
	ViewCount     int64 `json:"viewCount"     bson:"view_count"`
	DownloadCount int64 `json:"downloadCount" bson:"download_count"`
	CitationCount int64 `json:"citationCount" bson:"citation_count"`
	FavoriteCount int64 `json:"favoriteCount" bson:"favorite_count"`
}

// EngagementRecord is the engagement state of one artifact.
type EngagementRecord struct {
	ArtifactID string    `json:"artifactId" bson:"_id"`
	Counters   `bson:",inline"`
	Comments   []Comment `json:"comments"   bson:"comments"`
	// Favorites holds the per-viewer favorite flags. Only true flags are kept.
	Favorites map[string]bool `json:"-"          bson:"favorites"`
	UpdatedAt time.Time       `json:"-"          bson:"updated_at"`
}

// Viewer is the caller identity supplied by the auth collaborator.
// The zero Viewer is anonymous.
type Viewer struct {
	ID          string   `json:"id"`
	Institution string   `json:"institution"`
	Grants      []string `json:"grants,omitempty"`
}

// HasGrant reports whether the viewer was explicitly granted artifactID.
func (v Viewer) HasGrant(artifactID string) bool {
	return slices.Contains(v.Grants, artifactID)
}

// SearchRequest is the JSON body for POST /api/search.
type SearchRequest struct {
	Text     string              `json:"text"`
	Filters  map[string][]string `json:"filters"`
	SortBy   string              `json:"sortBy"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
}

// SearchResponse is a page of search results with facet counts.
type SearchResponse struct {
	Results     []ArtifactSummary         `json:"results"`
	TotalCount  int                       `json:"totalCount"`
	FacetCounts map[string]map[string]int `json:"facetCounts"`
	Page        int                       `json:"page"`
	PageSize    int                       `json:"pageSize"`
}

// CommentRequest is the JSON body for POST /api/artifacts/{id}/comments.
type CommentRequest struct {
	Body     string `json:"body"`
	ParentID string `json:"parentId,omitempty"`
}

// AccessRequest is the JSON body for PATCH /api/artifacts/{id}/access.
type AccessRequest struct {
	AccessLevel AccessLevel `json:"accessLevel"`
}

// VersionRequest is the JSON body for POST /api/artifacts/{id}/versions.
type VersionRequest struct {
	Artifact          ResearchArtifact `json:"artifact"`
	MigrateEngagement bool             `json:"migrateEngagement"`
}

// FavoriteResponse is returned by the favorite toggle.
type FavoriteResponse struct {
	Favorited     bool  `json:"favorited"`
	FavoriteCount int64 `json:"favoriteCount"`
}

// CounterResponse is returned by counter increments.
type CounterResponse struct {
	ArtifactID string `json:"artifactId"`
	Count      int64  `json:"count"`
}

// ArtifactDetail is the detail-page view: metadata plus engagement.
type ArtifactDetail struct {
	Artifact  ResearchArtifact `json:"artifact"`
	Counters  Counters         `json:"engagement"`
	Comments  []Comment        `json:"comments"`
	Favorited bool             `json:"favorited"`
}

// KeywordCount is one trending keyword.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}
