package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	gomponents "maragu.dev/gomponents"

	"github.com/cfilipov/blogd/internal/bootstrap"
	"github.com/cfilipov/blogd/internal/page"
	"github.com/cfilipov/blogd/internal/posts"
	"github.com/cfilipov/blogd/internal/prefstore"
	"github.com/cfilipov/blogd/internal/theme"
	"github.com/cfilipov/blogd/internal/ui"
)

// ColorSchemeHint is the client hint that carries the system color scheme.
const ColorSchemeHint = "Sec-CH-Prefers-Color-Scheme"

// httpSource is the store source for writes made by plain HTTP requests.
// No tab uses it, so every tab of the profile is notified.
const httpSource = "http"

// ThemeResponse is the body of GET /api/theme.
type ThemeResponse struct {
	Mode     string `json:"mode"`
	Resolved string `json:"resolved"`
}

// RegisterPageRoutes mounts the HTML pages and the theme endpoints. r must
// already run ProfileMiddleware.
func RegisterPageRoutes(app *App, r chi.Router) {
	r.Get("/", app.handleIndex)
	r.Get("/posts/{slug}", app.handlePost)
	r.Post("/theme", app.handleThemeCycle)
	r.Get("/api/theme", app.handleThemeGet)
}

// requestRoot prerenders the <html> marker for the request's profile and
// client hint, so the first paint is already in the right mode.
func (app *App) requestRoot(r *http.Request) ui.Root {
	pref := prefstore.NewBridge(app.Prefs, ProfileFrom(r.Context()), httpSource, nil).Read()
	signal := theme.ParseSignal(r.Header.Get(ColorSchemeHint))

	doc := page.NewDocument()
	bootstrap.Prerender(doc, pref, signal)
	attrs := doc.Attrs()
	attrs[bootstrap.SignalAttribute] = signal.String()
	return ui.Root{Classes: doc.Classes(), Attrs: attrs}
}

func writeHTML(w http.ResponseWriter, status int, n gomponents.Node) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Accept-CH", ColorSchemeHint)
	h.Set("Critical-CH", ColorSchemeHint)
	h.Add("Vary", ColorSchemeHint)
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := n.Render(w); err != nil {
		slog.Warn("render page", "err", err)
	}
}

func (app *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	hero, more, ok := app.Posts.Split()
	writeHTML(w, http.StatusOK, ui.IndexPage(app.requestRoot(r), hero, more, ok))
}

func (app *App) handlePost(w http.ResponseWriter, r *http.Request) {
	p, err := app.Posts.Get(chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, posts.ErrNotFound) {
			writeHTML(w, http.StatusNotFound, ui.NotFoundPage(app.requestRoot(r)))
			return
		}
		slog.Error("get post", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusOK, ui.PostPage(app.requestRoot(r), p))
}

// handleThemeCycle advances the preference for clients without scripting
// and sends them back where they came from.
func (app *App) handleThemeCycle(w http.ResponseWriter, r *http.Request) {
	if err := app.saveProfile(r.Context()); err != nil {
		slog.Error("save profile", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	bridge := prefstore.NewBridge(app.Prefs, ProfileFrom(r.Context()), httpSource, nil)
	next := bridge.Read().Next()
	if err := bridge.Write(next); err != nil {
		slog.Warn("cycle theme", "profile", bridge.Origin(), "err", err)
	}
	http.Redirect(w, r, backTarget(r), http.StatusSeeOther)
}

// backTarget is the same-site path of the Referer, or "/".
func backTarget(r *http.Request) string {
	ref, err := url.Parse(r.Referer())
	if err != nil || !strings.HasPrefix(ref.Path, "/") || strings.HasPrefix(ref.Path, "//") ||
		(ref.Host != "" && ref.Host != r.Host) {
		return "/"
	}
	if ref.RawQuery != "" {
		return ref.Path + "?" + ref.RawQuery
	}
	return ref.Path
}

func (app *App) handleThemeGet(w http.ResponseWriter, r *http.Request) {
	pref := prefstore.NewBridge(app.Prefs, ProfileFrom(r.Context()), httpSource, nil).Read()
	resolved := theme.Resolve(pref, theme.ParseSignal(r.Header.Get(ColorSchemeHint)))

	w.Header().Set("Content-Type", "application/json")
	w.Header().Add("Vary", ColorSchemeHint)
	if err := json.NewEncoder(w).Encode(ThemeResponse{Mode: pref.String(), Resolved: resolved.String()}); err != nil {
		slog.Debug("encode theme", "err", err)
	}
}
