package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/artspark/backend/internal/generation"
	"github.com/artspark/backend/internal/ledger"
	"github.com/artspark/backend/internal/middleware"
	"github.com/artspark/backend/internal/registry"
	"github.com/artspark/backend/internal/services"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 16 * 1024
)

// GenerationRunner executes one generation to a terminal state.
type GenerationRunner interface {
	Run(ctx context.Context, accountID uuid.UUID, req services.GenerateRequest) (*services.GenerateResult, error)
}

// Handler drives generations over a WebSocket so the client sees progress
// instead of one long-hanging POST.
type Handler struct {
	runner   GenerationRunner
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(runner GenerationRunner, logger *slog.Logger) *Handler {
	return &Handler{
		runner: runner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// CORS is enforced at the HTTP layer before the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Serve handles GET /v1/ws/generate. The connection must already be
// authenticated; the
// session middleware runs before the upgrade.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", "account_id", acc.ID, "error", err)
			}
			return
		}
		if msg.Type != msgGenerate {
			h.send(conn, errorEvent{Type: eventError, Code: "bad_request", Message: "unknown message type"})
			continue
		}
		h.runGeneration(r.Context(), conn, acc.ID, msg)
	}
}

// runGeneration emits a status event, runs the task, and finishes with
// exactly one terminal event.
func (h *Handler) runGeneration(ctx context.Context, conn *websocket.Conn, accountID uuid.UUID, msg inboundMessage) {
	h.send(conn, statusEvent{Type: eventStatus, Message: "Generating..."})

	res, err := h.runner.Run(ctx, accountID, services.GenerateRequest{
		ModelID:     msg.Model,
		Prompt:      msg.Prompt,
		Width:       msg.Width,
		Height:      msg.Height,
		AspectRatio: msg.AspectRatio,
		Steps:       msg.Steps,
		IsPublic:    msg.IsPublic,
	})
	if err != nil {
		h.send(conn, terminalError(err))
		return
	}

	h.send(conn, imageResultEvent{
		Type:         eventImageResult,
		TaskID:       res.TaskID.String(),
		ImageID:      res.ImageID.String(),
		ImageURL:     res.ImageURL,
		ThumbnailURL: res.ThumbnailURL,
		Balance:      res.Balance.StringFixed(4),
	})
}

// terminalError maps a generation failure to the wire event. Codes mirror the
// HTTP surface so clients share the handling.
func terminalError(err error) errorEvent {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return errorEvent{Type: eventError, Code: "insufficient_funds", Message: "insufficient credits"}
	case errors.Is(err, registry.ErrUnknownModel),
		errors.Is(err, registry.ErrInvalidParams),
		errors.Is(err, services.ErrInvalidPrompt):
		return errorEvent{Type: eventError, Code: "bad_request", Message: err.Error()}
	case errors.Is(err, generation.ErrGenerationFailed):
		return errorEvent{Type: eventError, Code: "provider_failed", Message: "image generation failed; credits refunded"}
	case errors.Is(err, services.ErrCompensationFailed):
		return errorEvent{Type: eventError, Code: "internal", Message: "generation failed; refund pending manual review"}
	default:
		return errorEvent{Type: eventError, Code: "internal", Message: "internal error"}
	}
}

func (h *Handler) send(conn *websocket.Conn, v any) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		h.logger.Warn("websocket write failed", "error", err)
	}
}
