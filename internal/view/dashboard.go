// Package view renders dashboard state as HTML with gomponents. The same
// nodes serve the reference backend's admin page and the CLI's HTML export.
package view

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/a-h/templ"
	g "maragu.dev/gomponents"
	c "maragu.dev/gomponents/components"
	. "maragu.dev/gomponents/html"

	"github.com/nfrund/livedash/internal/app"
	"github.com/nfrund/livedash/internal/botlog"
	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/presence"
)

// maxBadge is the largest count the bell badge prints before "99+".
const maxBadge = 99

// Badge renders the unread count, or nothing when the feed is empty.
func Badge(count int) g.Node {
	if count == 0 {
		return nil
	}
	label := strconv.Itoa(count)
	if count > maxBadge {
		label = strconv.Itoa(maxBadge) + "+"
	}
	return Span(Class("badge"), Aria("label", fmt.Sprintf("%d notifications", count)), g.Text(label))
}

// Bell renders the notification bell with its badge and dropdown list.
func Bell(items []domain.Notification) g.Node {
	return Div(ID("notification-bell"), Class("bell"),
		Button(Type("button"), Class("bell-toggle"), g.Text("🔔"), Badge(len(items))),
		Div(Class("bell-dropdown"),
			g.If(len(items) == 0, P(Class("empty"), g.Text("No notifications"))),
			g.If(len(items) > 0, Ul(
				g.Map(items, notificationItem),
			)),
		),
	)
}

func notificationItem(n domain.Notification) g.Node {
	return Li(Class("notification notification-"+string(n.Kind)), Data("id", n.ID),
		Span(Class("notification-text"), g.Text(n.Text)),
		g.If(n.Timestamp > 0, g.El("time",
			g.Attr("datetime", time.UnixMilli(n.Timestamp).UTC().Format(time.RFC3339)),
			g.Text(time.UnixMilli(n.Timestamp).UTC().Format("15:04")),
		)),
	)
}

// Toasts renders the currently visible toasts.
func Toasts(toasts []domain.Notification) g.Node {
	return Div(ID("toasts"), Class("toasts"),
		g.Map(toasts, func(n domain.Notification) g.Node {
			return Div(Class("toast toast-"+string(n.Kind)), Role("status"), g.Text(n.Text))
		}),
	)
}

// Banner renders the system broadcast banner when it is visible.
func Banner(text string, visible bool) g.Node {
	if !visible {
		return nil
	}
	return Div(ID("system-banner"), Class("banner"), Role("alert"), g.Text(text))
}

// Roster renders the online list through the presence renderer so custom
// renderers compose the same way.
func Roster(online []string, render presence.PresenceRenderer) g.Node {
	if render == nil {
		render = presence.DefaultRenderer
	}
	return templNode(render(online))
}

// templNode embeds a templ component in a gomponents tree. gomponents does
// not carry a context, so the component renders with a background one.
func templNode(component templ.Component) g.Node {
	return g.NodeFunc(func(w io.Writer) error {
		return component.Render(context.Background(), w)
	})
}

// Thread renders the messages exchanged with counterpart as seen by self.
func Thread(self, counterpart string, msgs []domain.ChatMessage) g.Node {
	return Section(ID("thread-"+counterpart), Class("thread"),
		H3(g.Text("@"+counterpart)),
		g.If(len(msgs) == 0, P(Class("empty"), g.Text("No messages yet"))),
		Ol(Class("messages"),
			g.Map(msgs, func(m domain.ChatMessage) g.Node {
				side := "theirs"
				if m.From == self {
					side = "mine"
				}
				return Li(Class("message message-"+side),
					Span(Class("author"), g.Text(m.From)),
					Span(Class("text"), g.Text(m.Text)),
				)
			}),
		),
	)
}

// BotLog renders the output of one bot script.
func BotLog(script string, lines []botlog.Line) g.Node {
	return Section(Class("botlog"), Data("script", script),
		H3(g.Text(script)),
		Pre(g.Map(lines, func(l botlog.Line) g.Node {
			return g.Group([]g.Node{g.Text(l.Output), g.Text("\n")})
		})),
	)
}

// Dashboard renders a whole snapshot as a standalone page.
func Dashboard(snap app.Snapshot) g.Node {
	counterparts := sortedKeys(snap.Threads)
	scripts := sortedKeys(snap.BotLines)

	title := "livedash"
	if snap.Identity.LoggedIn() {
		title = "livedash: @" + snap.Identity.Key
	}

	return c.HTML5(c.HTML5Props{
		Title:    title,
		Language: "en",
		Body: []g.Node{
			Header(
				H1(g.Text(title)),
				Span(Class("connection connection-"+snap.Connection.String()), g.Text(snap.Connection.String())),
				Bell(snap.Notifications),
			),
			Banner(snap.Banner, snap.BannerVisible),
			Toasts(snap.Toasts),
			Main(
				Roster(snap.Online, nil),
				g.Map(counterparts, func(k string) g.Node {
					return Thread(snap.Identity.Key, k, snap.Threads[k])
				}),
				g.Map(scripts, func(s string) g.Node {
					return BotLog(s, snap.BotLines[s])
				}),
			),
		},
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
