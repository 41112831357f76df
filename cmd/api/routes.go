package main

import (
	"net/http"

	"github.com/artspark/backend/internal/handlers"
	"github.com/artspark/backend/internal/realtime"
	"github.com/artspark/backend/internal/router"
)

// RegisterGenerationRoutes adds the generation and gallery endpoints.
// Middleware chain on POST /v1/generations: SessionAuth -> ModelCheck ->
// handler, so unknown models are rejected before any balance is touched.
func RegisterGenerationRoutes(
	mux *http.ServeMux,
	gh *handlers.GenerateHandler,
	ih *handlers.ImagesHandler,
	sh *handlers.SocialHandler,
	ws *realtime.Handler,
	session router.Middleware,
	modelCheck router.Middleware,
) {
	// Model catalog is public so clients can show prices before login.
	mux.HandleFunc("GET /v1/models", gh.ListModels)

	mux.Handle("POST /v1/generations", session(modelCheck(http.HandlerFunc(gh.Create))))
	mux.Handle("GET /v1/generations/{id}", session(http.HandlerFunc(gh.Get)))

	// Gallery. The public feed and single-image reads work without a session;
	// private images stay hidden either way.
	mux.HandleFunc("GET /v1/images/feed", ih.Feed)
	mux.Handle("GET /v1/images/mine", session(http.HandlerFunc(ih.Mine)))
	mux.HandleFunc("GET /v1/images/{id}", ih.Get)
	mux.Handle("PATCH /v1/images/{id}/visibility", session(http.HandlerFunc(ih.SetVisibility)))
	mux.Handle("DELETE /v1/images/{id}", session(http.HandlerFunc(ih.Delete)))

	// Social.
	mux.HandleFunc("GET /v1/images/{id}/comments", sh.ListComments)
	mux.Handle("POST /v1/images/{id}/comments", session(http.HandlerFunc(sh.CreateComment)))
	mux.Handle("DELETE /v1/comments/{id}", session(http.HandlerFunc(sh.DeleteComment)))
	mux.Handle("POST /v1/images/{id}/like", session(http.HandlerFunc(sh.Like)))
	mux.Handle("DELETE /v1/images/{id}/like", session(http.HandlerFunc(sh.Unlike)))

	// Realtime generation channel.
	mux.Handle("GET /v1/ws/generate", session(http.HandlerFunc(ws.Serve)))
}
