package themeswitch

import (
	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"github.com/cfilipov/blogd/internal/theme"
)

// ElementID is the id of the switch button in the page.
const ElementID = "theme-switch"

// PlaceholderButton is what every pre-attachment render pass produces, so
// the server render and the first client render agree.
func PlaceholderButton() gomponents.Node {
	return html.Button(
		html.ID(ElementID),
		html.Class("switch"),
		html.Type("button"),
		html.Disabled(),
		html.Aria("label", "Theme switcher loading"),
	)
}

// Render returns the placeholder until the switch is Ready.
func (s *Switch) Render() gomponents.Node {
	if s.state != Ready {
		return PlaceholderButton()
	}
	label := NextLabel(s.mode.Next())
	return html.Button(
		html.ID(ElementID),
		html.Class("switch"),
		html.Type("button"),
		html.Data("mode", s.mode.String()),
		html.Aria("label", label),
		html.Title(label),
	)
}

// NextLabel is the accessible name announcing the mode a click switches to.
func NextLabel(next theme.Preference) string {
	return "Switch to " + next.String() + " mode"
}
