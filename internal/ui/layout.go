// Package ui renders the blog's HTML with gomponents.
package ui

import (
	"maps"
	"slices"
	"strings"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"github.com/cfilipov/blogd/internal/bootstrap"
	"github.com/cfilipov/blogd/internal/themeswitch"
)

const (
	SiteTitle = "Blog."

	stylesheetHref = "/static/app.css"
	runtimeSrc     = "/static/app.js"
)

// Root is the prerendered state of the <html> element.
type Root struct {
	Classes []string
	Attrs   map[string]string
}

// Document wraps body in the full page shell. The bootstrap script is the
// first thing in <head> so the marker is settled before stylesheets apply.
func Document(title string, root Root, body ...gomponents.Node) gomponents.Node {
	if title == "" {
		title = SiteTitle
	} else {
		title = title + " | " + SiteTitle
	}

	attrs := make([]gomponents.Node, 0, len(root.Attrs)+2)
	attrs = append(attrs, html.Lang("en"))
	if len(root.Classes) > 0 {
		attrs = append(attrs, html.Class(strings.Join(root.Classes, " ")))
	}
	for _, name := range slices.Sorted(maps.Keys(root.Attrs)) {
		attrs = append(attrs, gomponents.Attr(name, root.Attrs[name]))
	}

	return html.Doctype(
		html.HTML(
			gomponents.Group(attrs),
			html.Head(
				html.Meta(html.Charset("utf-8")),
				html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
				html.Meta(html.Name("color-scheme"), html.Content("light dark")),
				html.Script(gomponents.Raw(bootstrap.InlineScript())),
				html.TitleEl(gomponents.Text(title)),
				html.Link(html.Rel("stylesheet"), html.Href(stylesheetHref)),
				html.Script(html.Src(runtimeSrc), html.Defer()),
			),
			html.Body(
				siteHeader(),
				html.Main(html.Class("container"), gomponents.Group(body)),
				html.Footer(html.Class("footer"),
					html.P(gomponents.Text("Statically generated with Go.")),
				),
			),
		),
	)
}

// siteHeader carries the switch slot. Without scripting the placeholder
// stays disabled and the form below cycles the preference instead.
func siteHeader() gomponents.Node {
	return html.Header(
		html.Class("site-header"),
		html.H1(html.Class("site-title"), html.A(html.Href("/"), gomponents.Text(SiteTitle))),
		themeswitch.PlaceholderButton(),
		html.NoScript(
			html.Form(
				html.Method("post"),
				html.Action("/theme"),
				html.Button(html.Type("submit"), html.Class("switch-fallback"), gomponents.Text("Change theme")),
			),
		),
	)
}
