package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter assembles the HTTP surface: health, websocket, static assets and
// the profile-scoped pages. static may be nil.
func NewRouter(app *App, static http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/ws", app.WS)
	if static != nil {
		r.Handle("/static/*", static)
	}

	r.Group(func(r chi.Router) {
		r.Use(app.ProfileMiddleware)
		RegisterPageRoutes(app, r)
	})
	return r
}
