// Package access decides whether a viewer may read or download an artifact.
package access

import (
	"strings"

	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/models"
)

// GrantFunc reports whether viewer holds an explicit grant for a
// restricted artifact. The grant list lives with the auth collaborator.
type GrantFunc func(artifact models.ResearchArtifact, viewer models.Viewer) bool

// ViewerGrants is the default GrantFunc: it trusts the grants attached to
// the viewer by the auth layer.
func ViewerGrants(artifact models.ResearchArtifact, viewer models.Viewer) bool {
	return viewer.HasGrant(artifact.ID)
}

// Policy evaluates access levels.
type Policy struct {
	granted GrantFunc
}

// NewPolicy returns a Policy. A nil granted falls back to ViewerGrants.
func NewPolicy(granted GrantFunc) *Policy {
	if granted == nil {
		granted = ViewerGrants
	}
	return &Policy{granted: granted}
}

// CanRead reports whether viewer may read artifact.
func (p *Policy) CanRead(artifact models.ResearchArtifact, viewer models.Viewer) bool {
	switch artifact.AccessLevel {
	case models.AccessPublic:
		return true
	case models.AccessInstitutional:
		return sameInstitution(viewer.Institution, artifact.Institution)
	case models.AccessRestricted:
		return p.granted(artifact, viewer)
	default:
		return false
	}
}

// CanDownload defers to CanRead: no artifact has download-only restrictions.
func (p *Policy) CanDownload(artifact models.ResearchArtifact, viewer models.Viewer) bool {
	return p.CanRead(artifact, viewer)
}

// Check returns apperr.ErrForbidden when viewer may not read artifact.
func (p *Policy) Check(artifact models.ResearchArtifact, viewer models.Viewer) error {
	if !p.CanRead(artifact, viewer) {
		return apperr.Forbidden(artifact.ID)
	}
	return nil
}

func sameInstitution(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
