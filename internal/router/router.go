package router

import (
	"net/http"

	"github.com/artspark/backend/internal/auth"
	"github.com/artspark/backend/internal/billing"
	"github.com/artspark/backend/internal/dashboard"
)

// Middleware is the standard wrapping shape used across the API.
type Middleware func(http.Handler) http.Handler

// New returns the session-facing part of the API: auth, account dashboard and
// billing. Generation and gallery routes are registered separately because
// they carry extra middleware.
func New(
	authHandler *auth.Handler,
	dashHandler *dashboard.Handler,
	billingHandler *billing.Handler,
	session Middleware,
) *http.ServeMux {
	mux := http.NewServeMux()

	// Public: session bootstrap.
	mux.HandleFunc("POST /v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /v1/auth/login", authHandler.Login)

	// Account dashboard.
	mux.Handle("GET /v1/me", session(http.HandlerFunc(dashHandler.Me)))
	mux.Handle("GET /v1/me/ledger", session(http.HandlerFunc(dashHandler.Ledger)))
	mux.Handle("GET /v1/me/generations", session(http.HandlerFunc(dashHandler.Generations)))

	// Billing. The webhook is called by the payment provider, not a session.
	mux.HandleFunc("GET /v1/billing/packs", billingHandler.ListPacks)
	mux.Handle("POST /v1/billing/checkout", session(http.HandlerFunc(billingHandler.CreateCheckout)))
	mux.HandleFunc("POST /v1/billing/webhook", billingHandler.Webhook)

	return mux
}
