package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/artspark/backend/internal/middleware"
	"github.com/artspark/backend/internal/models"
)

// EntryReader lists ledger history for the statement endpoint.
type EntryReader interface {
	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.LedgerEntry, error)
}

// TaskHistoryReader lists past generation tasks.
type TaskHistoryReader interface {
	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*models.GenerationTask, error)
}

// Handler serves the account dashboard: balance, ledger statement and
// generation history.
type Handler struct {
	entries EntryReader
	tasks   TaskHistoryReader
}

func NewHandler(entries EntryReader, tasks TaskHistoryReader) *Handler {
	return &Handler{entries: entries, tasks: tasks}
}

// Me handles GET /v1/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account": acc,
		"balance": acc.Balance.StringFixed(4),
	})
}

// Ledger handles GET /v1/me/ledger: the account statement, newest first.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.entries.ListByAccountID(r.Context(), acc.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load ledger")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Generations handles GET /v1/me/generations.
func (h *Handler) Generations(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	tasks, err := h.tasks.ListByAccountID(r.Context(), acc.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load generations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
