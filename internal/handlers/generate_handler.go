package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/artspark/backend/internal/generation"
	"github.com/artspark/backend/internal/ledger"
	"github.com/artspark/backend/internal/middleware"
	"github.com/artspark/backend/internal/models"
	"github.com/artspark/backend/internal/registry"
	"github.com/artspark/backend/internal/services"
)

// GenerationRunner executes one generation to a terminal state.
type GenerationRunner interface {
	Run(ctx context.Context, accountID uuid.UUID, req services.GenerateRequest) (*services.GenerateResult, error)
}

// TaskReader fetches task state for the status endpoint.
type TaskReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.GenerationTask, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.GenerationTask, error)
}

type GenerateHandler struct {
	runner   GenerationRunner
	tasks    TaskReader
	registry *registry.Registry
	logger   *slog.Logger
}

func NewGenerateHandler(runner GenerationRunner, tasks TaskReader, reg *registry.Registry, logger *slog.Logger) *GenerateHandler {
	return &GenerateHandler{runner: runner, tasks: tasks, registry: reg, logger: logger}
}

type generateRequest struct {
	Model       string `json:"model"`
	Prompt      string `json:"prompt"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Steps       int    `json:"steps,omitempty"`
	IsPublic    bool   `json:"is_public,omitempty"`
}

type generateResponse struct {
	TaskID       uuid.UUID `json:"task_id"`
	ImageID      uuid.UUID `json:"image_id"`
	ImageURL     string    `json:"image_url"`
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
	Balance      string    `json:"balance"`
}

// Create handles POST /v1/generations. The call is synchronous: it returns
// once the task reaches a terminal state.
func (h *GenerateHandler) Create(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// The model-check middleware already parsed and validated the model id.
	if m := middleware.ModelFromCtx(r.Context()); m != "" {
		req.Model = m
	}

	res, err := h.runner.Run(r.Context(), acc.ID, services.GenerateRequest{
		ModelID:     req.Model,
		Prompt:      req.Prompt,
		Width:       req.Width,
		Height:      req.Height,
		AspectRatio: req.AspectRatio,
		Steps:       req.Steps,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		h.respondGenerateError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, generateResponse{
		TaskID:       res.TaskID,
		ImageID:      res.ImageID,
		ImageURL:     res.ImageURL,
		ThumbnailURL: res.ThumbnailURL,
		Balance:      res.Balance.StringFixed(4),
	})
}

// respondGenerateError maps orchestrator failures onto HTTP statuses. The
// distinctions matter to clients: 402 means top up, 400 means fix the request,
// 502 means the provider refused and the debit came back.
func (h *GenerateHandler) respondGenerateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusPaymentRequired, "insufficient credits")
	case errors.Is(err, registry.ErrUnknownModel),
		errors.Is(err, registry.ErrInvalidParams),
		errors.Is(err, services.ErrInvalidPrompt):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, generation.ErrGenerationFailed):
		writeError(w, http.StatusBadGateway, "image generation failed; credits refunded")
	case errors.Is(err, services.ErrCompensationFailed):
		writeError(w, http.StatusInternalServerError, "generation failed; refund pending manual review")
	case errors.Is(err, services.ErrPersistenceFailed):
		writeError(w, http.StatusInternalServerError, "image saved but could not be recorded; support has been notified")
	default:
		h.logger.Error("generation request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Get handles GET /v1/generations/{id}.
func (h *GenerateHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	task, err := h.tasks.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if task.AccountID != acc.ID && !acc.IsAdmin {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ListModels handles GET /v1/models. Public: clients need prices before login.
func (h *GenerateHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": h.registry.List()})
}
