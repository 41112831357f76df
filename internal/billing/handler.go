package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/artspark/backend/internal/ledger"
	"github.com/artspark/backend/internal/middleware"
)

// Crediter applies a completed purchase to the balance, idempotent by the
// payment provider's reference.
type Crediter interface {
	Purchase(ctx context.Context, accountID uuid.UUID, reference string, amount decimal.Decimal) (decimal.Decimal, error)
}

// Handler sells credit packs: it creates hosted checkout sessions and settles
// them from the payment provider's webhook.
type Handler struct {
	credits         Crediter
	checkoutBaseURL string
	logger          *slog.Logger
}

func NewHandler(credits Crediter, checkoutBaseURL string, logger *slog.Logger) *Handler {
	return &Handler{credits: credits, checkoutBaseURL: checkoutBaseURL, logger: logger}
}

// ListPacks handles GET /v1/billing/packs.
func (h *Handler) ListPacks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"packs": Packs()})
}

type checkoutRequest struct {
	PackID string `json:"pack_id"`
}

type checkoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateCheckout handles POST /v1/billing/checkout. The session id doubles as
// the ledger reference once the webhook settles it.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	pack, ok := PackByID(req.PackID)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown pack %q", req.PackID))
		return
	}

	sessionID := fmt.Sprintf("cs_%s", uuid.New())
	h.logger.Info("checkout session created",
		"session_id", sessionID, "account_id", acc.ID, "pack_id", pack.ID, "amount", pack.PriceUS)

	writeJSON(w, http.StatusCreated, checkoutResponse{
		SessionID:   sessionID,
		CheckoutURL: fmt.Sprintf("%s/pay/%s?account=%s&pack=%s", h.checkoutBaseURL, sessionID, acc.ID, pack.ID),
	})
}

type webhookEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	AccountID string `json:"account_id"`
	PackID    string `json:"pack_id"`
}

// Webhook handles POST /v1/billing/webhook from the payment provider.
// Replayed deliveries are absorbed by the ledger's reference idempotency.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var ev webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if ev.Type != "checkout.completed" {
		// Acknowledge events we don't act on so the provider stops retrying.
		w.WriteHeader(http.StatusOK)
		return
	}
	accountID, err := uuid.Parse(ev.AccountID)
	if err != nil || ev.SessionID == "" {
		writeError(w, http.StatusBadRequest, "malformed event")
		return
	}
	pack, ok := PackByID(ev.PackID)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown pack %q", ev.PackID))
		return
	}

	balance, err := h.credits.Purchase(r.Context(), accountID, ev.SessionID, pack.Credits)
	if err != nil {
		if ledger.IsDuplicate(err) {
			h.logger.Info("webhook replay ignored", "session_id", ev.SessionID)
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("purchase credit failed", "session_id", ev.SessionID, "account_id", accountID, "error", err)
		writeError(w, http.StatusInternalServerError, "credit failed")
		return
	}

	h.logger.Info("purchase settled",
		"session_id", ev.SessionID, "account_id", accountID, "credits", pack.Credits, "balance", balance)
	writeJSON(w, http.StatusOK, map[string]string{"balance": balance.StringFixed(4)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
