package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/artspark/backend/internal/middleware"
	"github.com/artspark/backend/internal/models"
	"github.com/artspark/backend/internal/repository"
)

// ImageCatalog is the catalog surface the gallery endpoints need.
type ImageCatalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Image, error)
	SetVisibility(ctx context.Context, id, ownerID uuid.UUID, isPublic bool) error
	Delete(ctx context.Context, id, callerID uuid.UUID, allowAdmin bool) error
	ListPublic(ctx context.Context, limit, offset int) ([]*models.Image, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Image, error)
}

type ImagesHandler struct {
	images ImageCatalog
}

func NewImagesHandler(images ImageCatalog) *ImagesHandler {
	return &ImagesHandler{images: images}
}

// Feed handles GET /v1/images/feed: public images, newest first.
func (h *ImagesHandler) Feed(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	list, err := h.images.ListPublic(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": list})
}

// Mine handles GET /v1/images/mine: the caller's own images, any visibility.
func (h *ImagesHandler) Mine(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	limit, offset := pagination(r)
	list, err := h.images.ListByOwner(r.Context(), acc.ID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load images")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": list})
}

// Get handles GET /v1/images/{id}. Private images are visible only to their
// owner; a hidden image answers 404, not 403.
func (h *ImagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image id")
		return
	}
	img, err := h.images.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	acc := middleware.AccountFromCtx(r.Context())
	if !img.IsPublic && (acc == nil || (img.OwnerID != acc.ID && !acc.IsAdmin)) {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	writeJSON(w, http.StatusOK, img)
}

type visibilityRequest struct {
	IsPublic bool `json:"is_public"`
}

// SetVisibility handles PATCH /v1/images/{id}/visibility.
func (h *ImagesHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image id")
		return
	}
	var req visibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.images.SetVisibility(r.Context(), id, acc.ID, req.IsPublic); err != nil {
		respondCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_public": req.IsPublic})
}

// Delete handles DELETE /v1/images/{id}.
func (h *ImagesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image id")
		return
	}
	if err := h.images.Delete(r.Context(), id, acc.ID, acc.IsAdmin); err != nil {
		respondCatalogError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "image not found")
	case errors.Is(err, repository.ErrForbidden):
		writeError(w, http.StatusForbidden, "you do not own this image")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
