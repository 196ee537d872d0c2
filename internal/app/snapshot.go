package app

import (
	"github.com/nfrund/livedash/internal/botlog"
	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/transport"
)

// Snapshot is a read of every store, taken for rendering.
type Snapshot struct {
	Identity      domain.Identity
	Connection    transport.State
	Online        []string
	Notifications []domain.Notification
	Toasts        []domain.Notification
	Banner        string
	BannerVisible bool
	Threads       map[string][]domain.ChatMessage
	BotLines      map[string][]botlog.Line
}

// Snapshot copies the current state of every store. Each store is read under
// its own lock, so a snapshot is consistent per store.
func (s *Shell) Snapshot() Snapshot {
	snap := Snapshot{
		Identity:      s.mux.Identity(),
		Connection:    s.socket.State(),
		Online:        s.roster.Online(),
		Notifications: s.feed.Items(),
		Toasts:        s.feed.Toasts(),
		Threads:       make(map[string][]domain.ChatMessage),
		BotLines:      make(map[string][]botlog.Line),
	}
	snap.Banner, snap.BannerVisible = s.feed.Banner()
	for _, c := range s.chat.Threads() {
		snap.Threads[c] = s.chat.Messages(c)
	}
	for _, script := range s.bots.Scripts() {
		snap.BotLines[script] = s.bots.Lines(script)
	}
	return snap
}
