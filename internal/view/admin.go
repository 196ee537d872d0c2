package view

import (
	g "maragu.dev/gomponents"
	hx "maragu.dev/gomponents-htmx"
	c "maragu.dev/gomponents/components"
	. "maragu.dev/gomponents/html"
)

// AdminData is what the admin page shows.
type AdminData struct {
	User    string
	Online  []string
	Bots    []string
	Running []string
	Flashes FlashData
}

const htmxScript = "https://unpkg.com/htmx.org@2.0.4"

// AdminPage renders the reference backend's admin page. The broadcast form
// and bot buttons post with htmx and swap the result into #admin-result; the
// presence list refreshes itself every few seconds.
func AdminPage(data AdminData) g.Node {
	return c.HTML5(c.HTML5Props{
		Title:    "livedash admin",
		Language: "en",
		Head:     []g.Node{Script(Src(htmxScript))},
		Body: []g.Node{
			H1(g.Text("Admin")),
			P(g.Text("Signed in as @" + data.User)),
			Flashes(data.Flashes),
			Div(ID("admin-result")),
			BroadcastForm(),
			BotList(data.Bots, data.Running),
			Div(
				hx.Get("/admin/presence"),
				hx.Trigger("every 5s"),
				hx.Swap("innerHTML"),
				Roster(data.Online, nil),
			),
		},
	})
}

// BroadcastForm posts a system message. Without htmx it falls back to a
// regular form post and a flash on redirect.
func BroadcastForm() g.Node {
	return Form(ID("broadcast-form"), Method("post"), Action("/admin/broadcast"),
		hx.Post("/admin/broadcast"),
		hx.Target("#admin-result"),
		hx.Swap("innerHTML"),
		Label(For("broadcast-text"), g.Text("System message")),
		Input(ID("broadcast-text"), Type("text"), Name("text"), Required(), Placeholder("Maintenance at 22:00")),
		Button(Type("submit"), g.Text("Broadcast")),
	)
}

// BotList renders one start button per available bot script.
func BotList(bots, running []string) g.Node {
	active := make(map[string]bool, len(running))
	for _, r := range running {
		active[r] = true
	}
	return Section(ID("bots"),
		H2(g.Text("Bots")),
		g.If(len(bots) == 0, P(Class("empty"), g.Text("No bot scripts found"))),
		Ul(g.Map(bots, func(name string) g.Node {
			return Li(
				Span(Class("bot-name"), g.Text(name)),
				Button(Type("button"),
					hx.Post("/admin/bots/"+name+"/start"),
					hx.Target("#admin-result"),
					g.If(active[name], Disabled()),
					g.If(active[name], g.Text("Running")),
					g.If(!active[name], g.Text("Start")),
				),
			)
		})),
	)
}

// Result renders the outcome of an admin action for the #admin-result slot.
func Result(message string, failed bool) g.Node {
	class := "result result-ok"
	if failed {
		class = "result result-error"
	}
	return Div(Class(class), Role("status"), g.Text(message))
}
