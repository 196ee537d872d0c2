// Package render formats client state for the terminal.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nfrund/livedash/internal/app"
	"github.com/nfrund/livedash/internal/botlog"
	"github.com/nfrund/livedash/internal/domain"
)

// Define styles using lipgloss
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")).
			Margin(1, 0, 0, 0)

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("214")).
			Padding(0, 1)

	blockStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	onlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	mineStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// botLines is how many recent lines of each bot are shown.
const botLines = 5

func title(s string) string {
	return cases.Title(language.English).String(s)
}

func clock(t time.Time) string {
	return t.Format("15:04:05")
}

// Dashboard renders a full snapshot.
func Dashboard(snap app.Snapshot) string {
	var b strings.Builder

	id := snap.Identity
	name := id.DisplayName
	if name == "" {
		name = id.Key
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("livedash: %s (@%s)", name, id.Key)))
	b.WriteString("  " + metaStyle.Render(title(snap.Connection.String())))
	b.WriteString("\n")

	if snap.BannerVisible {
		b.WriteString("\n" + bannerStyle.Render(snap.Banner) + "\n")
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("Online (%d)", len(snap.Online))) + "\n")
	b.WriteString(Online(snap.Online))

	b.WriteString(headerStyle.Render(fmt.Sprintf("Notifications (%d)", len(snap.Notifications))) + "\n")
	b.WriteString(Notifications(snap.Notifications))

	for _, c := range sortedKeys(snap.Threads) {
		b.WriteString(headerStyle.Render("Chat with @"+c) + "\n")
		b.WriteString(blockStyle.Render(strings.TrimRight(Messages(id.Key, snap.Threads[c]), "\n")) + "\n")
	}

	for _, script := range sortedKeys(snap.BotLines) {
		b.WriteString(headerStyle.Render("Bot "+script) + "\n")
		b.WriteString(BotLines(snap.BotLines[script], botLines))
	}
	return b.String()
}

// Online renders one line per online identity.
func Online(keys []string) string {
	if len(keys) == 0 {
		return metaStyle.Render("nobody online") + "\n"
	}
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(onlineStyle.Render("●") + " @" + k + "\n")
	}
	return b.String()
}

// Notifications renders the feed newest first.
func Notifications(items []domain.Notification) string {
	if len(items) == 0 {
		return metaStyle.Render("no notifications") + "\n"
	}
	var b strings.Builder
	for _, n := range items {
		fmt.Fprintf(&b, "%s %s %s\n",
			metaStyle.Render(clock(n.CreatedAt)),
			kindLabel(n.Kind),
			n.Text)
	}
	return b.String()
}

func kindLabel(k domain.NotificationKind) string {
	return "[" + title(string(k)) + "]"
}

// Messages renders a thread oldest first. Lines sent by self are marked.
func Messages(self string, msgs []domain.ChatMessage) string {
	if len(msgs) == 0 {
		return metaStyle.Render("no messages") + "\n"
	}
	var b strings.Builder
	for _, m := range msgs {
		from := "@" + m.From
		if m.From == self {
			from = mineStyle.Render(from)
		}
		fmt.Fprintf(&b, "%s %s: %s\n", metaStyle.Render(clock(time.UnixMilli(m.Timestamp))), from, m.Text)
	}
	return b.String()
}

// BotLines renders the last limit lines; limit <= 0 renders all of them.
func BotLines(lines []botlog.Line, limit int) string {
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "%s %s\n", metaStyle.Render(clock(l.ReceivedAt)), l.Output)
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
