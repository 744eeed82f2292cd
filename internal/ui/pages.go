package ui

import (
	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"github.com/cfilipov/blogd/internal/posts"
)

// IndexPage shows the newest post as the hero followed by the rest.
func IndexPage(root Root, hero posts.Post, more []posts.Post, ok bool) gomponents.Node {
	return Document("", root, Stories(hero, more, ok))
}

// PostPage shows a single post.
func PostPage(root Root, p posts.Post) gomponents.Node {
	return Document(p.Title, root,
		html.Article(
			html.Class("post"),
			PostHeader(p),
			PostBody(p),
		),
	)
}

// NotFoundPage is served for unknown slugs.
func NotFoundPage(root Root) gomponents.Node {
	return Document("Not Found", root,
		html.H1(html.Class("page-title"), gomponents.Text("404")),
		html.P(gomponents.Text("This page could not be found.")),
		html.P(html.A(html.Href("/"), gomponents.Text("Back home"))),
	)
}
