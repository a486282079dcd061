package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the REST and websocket endpoints.
func NewRouter(rest *RESTHandler, ws *WSHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)
	r.Get("/variants", rest.ListVariants)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", rest.StartSession)
		r.Get("/{id}", rest.GetSession)
		r.Delete("/{id}", rest.ExitSession)
		r.Get("/{id}/image.png", rest.RenderImage)
		r.Post("/{id}/submit", rest.Submit)
		r.Post("/{id}/advance", rest.Advance)
		r.Post("/{id}/claim", rest.Claim)
	})
	return r
}
