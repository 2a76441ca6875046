package research

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ayush/research-catalog/backend/internal/apperr"
	"github.com/ayush/research-catalog/backend/internal/auth"
	"github.com/ayush/research-catalog/backend/internal/models"
)

const maxJSONBody = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto its HTTP status. Transient failures carry
// Retry-After; unexpected ones are logged and hidden.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	case http.StatusInternalServerError:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

// UserLookup resolves the signed-in user for comment attribution.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Handler holds research catalog HTTP handlers.
type Handler struct {
	svc       *Service
	users     UserLookup
	maxUpload int64
	log       *zap.Logger
}

func NewHandler(svc *Service, users UserLookup, maxUpload int64, log *zap.Logger) *Handler {
	return &Handler{svc: svc, users: users, maxUpload: maxUpload, log: log}
}

// Routes mounts the catalog API on r. Mutations that need an identity are
// wrapped in requireAuth; idem guards non-idempotent counters.
func (h *Handler) Routes(r chi.Router, requireAuth, idem func(http.Handler) http.Handler) {
	r.Post("/search", h.Search)
	r.Route("/artifacts", func(r chi.Router) {
		r.Get("/trending", h.Trending)
		r.Get("/recent", h.Recent)
		r.With(requireAuth).Post("/", h.Publish)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/lineage", h.Lineage)
			r.Get("/related", h.Related)
			r.Get("/comments", h.Comments)
			r.Get("/download", h.Download)
			r.With(idem).Post("/views", h.RecordView)
			r.With(idem).Post("/citations", h.RecordCitation)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Put("/file", h.UploadFile)
				r.Post("/versions", h.PublishVersion)
				r.Patch("/access", h.SetAccess)
				r.Delete("/", h.Delete)
				r.With(idem).Post("/favorite", h.ToggleFavorite)
				r.With(idem).Post("/comments", h.AddComment)
			})
		})
	})
	r.With(requireAuth, idem).Post("/comments/{id}/likes", h.LikeComment)
}

func limitParam(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

// Search runs a faceted catalog search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Search(auth.ViewerFrom(r.Context()), req))
}

func (h *Handler) Trending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Trending(auth.ViewerFrom(r.Context()), limitParam(r)))
}

func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Recent(auth.ViewerFrom(r.Context()), limitParam(r)))
}

// Publish creates an artifact from JSON metadata.
func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	var a models.ResearchArtifact
	if err := decode(w, r, &a); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.svc.Publish(r.Context(), auth.ViewerFrom(r.Context()), a)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// UploadFile accepts a multipart "file" field and stores it as the
// artifact's document.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "file too large"})
			return
		}
		h.writeError(w, r, apperr.Validation("multipart field %q is required", "file"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	updated, err := h.svc.UploadFile(r.Context(), auth.ViewerFrom(r.Context()),
		chi.URLParam(r, "id"), header.Filename, contentType, file, header.Size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Get returns the artifact detail view.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.Artifact(auth.ViewerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) PublishVersion(w http.ResponseWriter, r *http.Request) {
	var req models.VersionRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.svc.PublishVersion(r.Context(), auth.ViewerFrom(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) Lineage(w http.ResponseWriter, r *http.Request) {
	chain, err := h.svc.Lineage(auth.ViewerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

func (h *Handler) SetAccess(w http.ResponseWriter, r *http.Request) {
	var req models.AccessRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	updated, err := h.svc.SetAccessLevel(r.Context(), auth.ViewerFrom(r.Context()), chi.URLParam(r, "id"), req.AccessLevel)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes an artifact and its files.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), auth.ViewerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"message":"deleted"}`))
}

func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	related, err := h.svc.Related(auth.ViewerFrom(r.Context()), chi.URLParam(r, "id"), limitParam(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, related)
}

func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.svc.RecordView(auth.ViewerFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.CounterResponse{ArtifactID: id, Count: n})
}

func (h *Handler) RecordCitation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.svc.RecordCitation(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.CounterResponse{ArtifactID: id, Count: n})
}

// Download counts a download and streams the artifact's file.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.Download(r.Context(), auth.ViewerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	if f.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	}
	if _, err := io.Copy(w, f); err != nil {
		h.log.Warn("download interrupted", zap.String("path", r.URL.Path), zap.Error(err))
	}
}

func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.ToggleFavorite(auth.ViewerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Comments(w http.ResponseWriter, r *http.Request) {
	thread, err := h.svc.Comments(auth.ViewerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// AddComment posts a comment as the signed-in user.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req models.CommentRequest
	if err := decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.users.GetUserByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	author := models.AuthorRef{Name: user.Username, Affiliation: user.Institution}

	c, err := h.svc.AddComment(auth.ViewerFrom(r.Context()), author, chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) LikeComment(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.LikeComment(auth.ViewerFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
