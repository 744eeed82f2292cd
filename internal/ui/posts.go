package ui

import (
	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"github.com/cfilipov/blogd/internal/posts"
)

// StoriesID is the element replaced when the post list changes.
const StoriesID = "stories"

func postHref(slug string) string {
	return "/posts/" + slug
}

// Avatar shows an author's picture and name.
func Avatar(a posts.Author) gomponents.Node {
	return html.Div(
		html.Class("avatar"),
		gomponents.If(a.Picture != "",
			html.Img(html.Src(a.Picture), html.Class("avatar-img"), html.Alt(a.Name)),
		),
		html.Span(html.Class("avatar-name"), gomponents.Text(a.Name)),
	)
}

// DateLabel renders a post date, or nothing for undated posts.
func DateLabel(p posts.Post) gomponents.Node {
	formatted := p.FormattedDate()
	if formatted == "" {
		return nil
	}
	return html.Span(html.Class("date"), gomponents.Text(formatted))
}

// CoverImage links to the post when slug is set.
func CoverImage(title, src, slug string) gomponents.Node {
	if src == "" {
		return nil
	}
	img := html.Img(html.Src(src), html.Alt("Cover Image for "+title), html.Class("cover"))
	if slug == "" {
		return html.Div(html.Class("cover-wrap"), img)
	}
	return html.Div(html.Class("cover-wrap"),
		html.A(html.Href(postHref(slug)), html.Aria("label", title), img),
	)
}

// HeroPost is the featured newest post on the index page.
func HeroPost(p posts.Post) gomponents.Node {
	return html.Section(
		html.Class("hero card"),
		CoverImage(p.Title, p.CoverImage, p.Slug),
		html.Div(
			html.Class("hero-grid"),
			html.Div(
				html.H3(html.Class("hero-title"), html.A(html.Href(postHref(p.Slug)), gomponents.Text(p.Title))),
				html.Div(html.Class("muted"), DateLabel(p)),
			),
			html.Div(
				html.P(html.Class("excerpt"), gomponents.Text(p.Excerpt)),
				html.Div(html.Class("byline"), Avatar(p.Author)),
			),
		),
	)
}

// PostPreview is one card in the More Stories grid.
func PostPreview(p posts.Post) gomponents.Node {
	return html.Div(
		html.Class("preview card"),
		CoverImage(p.Title, p.CoverImage, p.Slug),
		html.Div(
			html.Class("preview-body"),
			html.H3(html.Class("preview-title"), html.A(html.Href(postHref(p.Slug)), gomponents.Text(p.Title))),
			html.Div(html.Class("muted"), DateLabel(p)),
			html.P(html.Class("excerpt"), gomponents.Text(p.Excerpt)),
			html.Div(html.Class("byline"), Avatar(p.Author)),
		),
	)
}

// MoreStories lists every post after the hero.
func MoreStories(more []posts.Post) gomponents.Node {
	if len(more) == 0 {
		return nil
	}
	return html.Section(
		html.Class("more-stories"),
		html.H2(html.Class("section-title"), gomponents.Text("More Stories")),
		html.Div(
			html.Class("grid"),
			gomponents.Map(more, PostPreview),
		),
	)
}

// Stories is the hero plus More Stories. It always renders its wrapper so
// live updates have a target.
func Stories(hero posts.Post, more []posts.Post, ok bool) gomponents.Node {
	if !ok {
		return html.Div(html.ID(StoriesID),
			html.P(html.Class("muted empty"), gomponents.Text("No posts yet.")),
		)
	}
	return html.Div(html.ID(StoriesID), HeroPost(hero), MoreStories(more))
}

// PostHeader is the title block of a single post page.
func PostHeader(p posts.Post) gomponents.Node {
	return html.Header(
		html.Class("post-header"),
		html.H1(html.Class("post-title"), gomponents.Text(p.Title)),
		html.Div(html.Class("byline"), Avatar(p.Author)),
		CoverImage(p.Title, p.CoverImage, ""),
		html.Div(html.Class("muted"), DateLabel(p)),
	)
}

// PostBody shows the post source as preformatted text.
func PostBody(p posts.Post) gomponents.Node {
	return html.Article(
		html.Class("post-body"),
		html.Pre(gomponents.Text(p.Body)),
	)
}
