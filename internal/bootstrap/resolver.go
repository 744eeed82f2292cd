// Package bootstrap applies the resolved theme to a document as early as
// possible and keeps it current as the system color scheme changes.
package bootstrap

import (
	"log/slog"

	"github.com/cfilipov/blogd/internal/page"
	"github.com/cfilipov/blogd/internal/theme"
)

// NoTransitionCSS disables every transition while the marker flips.
const NoTransitionCSS = "*,*:after,*:before{transition:none !important;}"

// PreferenceReader is the part of the store the resolver needs.
type PreferenceReader interface {
	Read() theme.Preference
}

// Resolver owns the only code path that toggles the dark marker of a
// document. It depends on nothing but the document, the media query and the
// store, so it can run before the switch exists.
type Resolver struct {
	doc   *page.Document
	media *page.MediaQuery
	prefs PreferenceReader

	cancelMedia func()
}

func New(doc *page.Document, media *page.MediaQuery, prefs PreferenceReader) *Resolver {
	return &Resolver{doc: doc, media: media, prefs: prefs}
}

// Apply suppresses transitions, writes the marker and the raw mode
// attribute, and restores transitions on the next frame.
func (r *Resolver) Apply() {
	styleID := r.doc.InjectStyle(NoTransitionCSS)

	pref := r.prefs.Read()
	resolved := theme.Resolve(pref, r.media.Signal())
	setMarker(r.doc, pref, resolved)

	r.doc.RequestFrame(func() {
		r.doc.RemoveStyle(styleID)
	})
	slog.Debug("theme applied", "mode", pref, "resolved", resolved, "signal", r.media.Signal())
}

// Install publishes Apply in reg, runs it now or on content loaded, and
// re-runs it on every system scheme change until Close.
func (r *Resolver) Install(reg *Registry) {
	reg.Publish(r.Apply)

	if r.doc.ReadyState() == page.Loading {
		r.doc.OnContentLoaded(r.Apply)
	} else {
		r.Apply()
	}

	r.cancelMedia = r.media.OnChange(func(theme.Signal) { r.Apply() })
}

// Close drops the media listener. Only called when the context goes away.
func (r *Resolver) Close() {
	if r.cancelMedia != nil {
		r.cancelMedia()
		r.cancelMedia = nil
	}
}

// Prerender writes the marker into a document that has not been painted yet,
// so no transition suppression is needed.
func Prerender(doc *page.Document, pref theme.Preference, signal theme.Signal) theme.Resolved {
	resolved := theme.Resolve(pref, signal)
	setMarker(doc, pref, resolved)
	return resolved
}

func setMarker(doc *page.Document, pref theme.Preference, resolved theme.Resolved) {
	doc.ToggleClass(theme.DarkClass, resolved == theme.ResolvedDark)
	doc.SetAttribute(theme.ModeAttribute, pref.String())
}
