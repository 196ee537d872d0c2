package presence

import (
	"context"
	"io"
	"slices"
	"strconv"

	"github.com/a-h/templ"
	g "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"
)

// PresenceRenderer turns a roster into HTML. The admin page and the CLI's
// HTML export accept one so callers can restyle the list.
type PresenceRenderer func(users []string) templ.Component

// DefaultRenderer renders OnlineList.
func DefaultRenderer(users []string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return OnlineList(users).Render(w)
	})
}

// OnlineList renders users alphabetically under a heading with the count.
// The input slice is not modified.
func OnlineList(users []string) g.Node {
	sorted := slices.Sorted(slices.Values(users))
	return Div(ID("online-users"), Class("roster"),
		H3(g.Text("Online "), Span(Class("count"), g.Text(strconv.Itoa(len(sorted))))),
		g.If(len(sorted) == 0, P(Class("empty"), g.Text("Nobody is online"))),
		g.If(len(sorted) > 0, Ul(
			g.Map(sorted, func(u string) g.Node {
				return Li(Class("user"), Data("user", u), g.Text("@"+u))
			}),
		)),
	)
}
