package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/artspark/backend/internal/middleware"
	"github.com/artspark/backend/internal/models"
	"github.com/artspark/backend/internal/repository"
)

const maxCommentLen = 1000

// CommentStore covers comment persistence for the social endpoints.
type CommentStore interface {
	Create(ctx context.Context, c *models.Comment) error
	ListByImageID(ctx context.Context, imageID uuid.UUID) ([]*models.Comment, error)
	Delete(ctx context.Context, id, callerID uuid.UUID) error
}

// LikeStore covers like persistence for the social endpoints.
type LikeStore interface {
	Like(ctx context.Context, imageID, accountID uuid.UUID) error
	Unlike(ctx context.Context, imageID, accountID uuid.UUID) error
}

type SocialHandler struct {
	comments CommentStore
	likes    LikeStore
	images   ImageCatalog
}

func NewSocialHandler(comments CommentStore, likes LikeStore, images ImageCatalog) *SocialHandler {
	return &SocialHandler{comments: comments, likes: likes, images: images}
}

type commentRequest struct {
	Body string `json:"body"`
}

// CreateComment handles POST /v1/images/{id}/comments.
func (h *SocialHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	imageID, ok := h.visibleImageID(w, r, acc.ID, acc.IsAdmin)
	if !ok {
		return
	}
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" || len(body) > maxCommentLen {
		writeError(w, http.StatusBadRequest, "comment must be 1-1000 characters")
		return
	}
	c := &models.Comment{
		ID:         uuid.New(),
		ImageID:    imageID,
		AccountID:  acc.ID,
		Body:       body,
		AuthorName: acc.DisplayName,
	}
	if err := h.comments.Create(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save comment")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListComments handles GET /v1/images/{id}/comments.
func (h *SocialHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	var callerID uuid.UUID
	isAdmin := false
	if acc != nil {
		callerID, isAdmin = acc.ID, acc.IsAdmin
	}
	imageID, ok := h.visibleImageID(w, r, callerID, isAdmin)
	if !ok {
		return
	}
	list, err := h.comments.ListByImageID(r.Context(), imageID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load comments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": list})
}

// DeleteComment handles DELETE /v1/comments/{id}. Allowed for the comment's
// author and the image's owner.
func (h *SocialHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid comment id")
		return
	}
	if err := h.comments.Delete(r.Context(), id, acc.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "comment not found")
		case errors.Is(err, repository.ErrForbidden):
			writeError(w, http.StatusForbidden, "not your comment")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Like handles POST /v1/images/{id}/like. Liking twice is fine.
func (h *SocialHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, true)
}

// Unlike handles DELETE /v1/images/{id}/like.
func (h *SocialHandler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.toggleLike(w, r, false)
}

func (h *SocialHandler) toggleLike(w http.ResponseWriter, r *http.Request, like bool) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	imageID, ok := h.visibleImageID(w, r, acc.ID, acc.IsAdmin)
	if !ok {
		return
	}
	var err error
	if like {
		err = h.likes.Like(r.Context(), imageID, acc.ID)
	} else {
		err = h.likes.Unlike(r.Context(), imageID, acc.ID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// visibleImageID parses {id} and checks the caller may see the image. Private
// images answer 404 for everyone but their owner.
func (h *SocialHandler) visibleImageID(w http.ResponseWriter, r *http.Request, callerID uuid.UUID, isAdmin bool) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid image id")
		return uuid.Nil, false
	}
	img, err := h.images.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "image not found")
		return uuid.Nil, false
	}
	if !img.IsPublic && img.OwnerID != callerID && !isAdmin {
		writeError(w, http.StatusNotFound, "image not found")
		return uuid.Nil, false
	}
	return id, true
}
