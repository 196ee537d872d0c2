package multiplexer_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/livedash/internal/botlog"
	"github.com/nfrund/livedash/internal/chat"
	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/multiplexer"
	"github.com/nfrund/livedash/internal/notify"
	"github.com/nfrund/livedash/internal/presence"
	"github.com/nfrund/livedash/internal/transport"
)

type nopBackend struct{}

func (nopBackend) Messages(context.Context, string) ([]domain.ChatMessage, error) { return nil, nil }
func (nopBackend) Conversations(context.Context) ([]domain.Conversation, error)   { return nil, nil }

type nopEmitter struct{}

func (nopEmitter) Emit(string, any) error { return nil }

type fixture struct {
	socket *transport.Socket
	roster *presence.Roster
	feed   *notify.Feed
	chat   *chat.Store
	bots   *botlog.Store
	mux    *multiplexer.Mux
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		socket: transport.New("ws://127.0.0.1:1/socket"),
		roster: presence.NewRoster(),
		feed:   notify.New(notify.WithToastDuration(time.Hour)),
		chat:   chat.New(nopBackend{}, nopEmitter{}),
		bots:   botlog.New(),
	}
	t.Cleanup(f.feed.Close)
	f.mux = multiplexer.New(f.socket, f.roster, f.feed, f.chat, multiplexer.WithBotLog(f.bots))
	return f
}

func alice() domain.Identity {
	return domain.Identity{Key: "alice", DisplayName: "Alice"}
}

func TestBind_SubscribesInboundEvents(t *testing.T) {
	f := newFixture(t)

	f.mux.Bind(domain.Identity{})
	assert.Zero(t, f.socket.Handlers("dm"), "anonymous identities are not bound")

	f.mux.Bind(alice())
	for _, name := range []string{"user_online", "user_offline", "system_message", "friend_request", "dm", "chat_message", "bot_log"} {
		assert.Equal(t, 1, f.socket.Handlers(name), name)
	}
	assert.Zero(t, f.socket.Handlers("connect_user"), "outbound events are not subscribed")

	f.mux.Bind(domain.Identity{Key: "alice", DisplayName: "Alice Updated"})
	assert.Equal(t, 1, f.socket.Handlers("dm"), "rebinding the same key adds no handlers")
	assert.Equal(t, "Alice Updated", f.mux.Identity().DisplayName)

	f.mux.Bind(domain.Identity{Key: "bob"})
	assert.Equal(t, 1, f.socket.Handlers("dm"), "switching identity replaces handlers")
	assert.Equal(t, "bob", f.mux.Identity().Key)

	f.mux.Unbind()
	assert.Zero(t, f.socket.Handlers("dm"))
}

func TestDispatch_Presence(t *testing.T) {
	f := newFixture(t)
	f.mux.Bind(alice())

	ctx := context.Background()
	assert.Equal(t, multiplexer.RouteRoster, f.mux.Dispatch(ctx, "user_online", json.RawMessage(`{"usertag":"bob"}`)))
	f.mux.Dispatch(ctx, "user_online", json.RawMessage(`"carol"`))
	assert.Equal(t, []string{"bob", "carol"}, f.roster.Online())

	f.mux.Dispatch(ctx, "user_offline", json.RawMessage(`{"usertag":"bob"}`))
	assert.Equal(t, []string{"carol"}, f.roster.Online())
}

func TestDispatch_SystemBroadcast(t *testing.T) {
	f := newFixture(t)
	f.mux.Bind(alice())

	route := f.mux.Dispatch(context.Background(), "system_message", json.RawMessage(`{"text":"Maintenance"}`))
	assert.Equal(t, multiplexer.RouteFeed, route)

	items := f.feed.Items()
	require.Len(t, items, 1)
	assert.Equal(t, domain.NotificationSystem, items[0].Kind)
	assert.Equal(t, "Maintenance", items[0].Text)

	text, visible := f.feed.Banner()
	assert.True(t, visible)
	assert.Equal(t, "Maintenance", text)
}

func TestDispatch_FriendRequestAddressing(t *testing.T) {
	f := newFixture(t)
	f.mux.Bind(alice())

	ctx := context.Background()
	assert.Equal(t, multiplexer.RouteDropped,
		f.mux.Dispatch(ctx, "friend_request", json.RawMessage(`{"from":"bob","to":"carol"}`)))
	assert.Zero(t, f.feed.Len())

	assert.Equal(t, multiplexer.RouteFeed,
		f.mux.Dispatch(ctx, "friend_request", json.RawMessage(`{"from":"bob","to":"alice"}`)))
	items := f.feed.Items()
	require.Len(t, items, 1)
	assert.Equal(t, domain.NotificationFriendRequest, items[0].Kind)
	assert.Equal(t, "bob", items[0].From)
	assert.Contains(t, items[0].Text, "@bob")
}

func TestDispatch_ChatRouting(t *testing.T) {
	f := newFixture(t)
	f.mux.Bind(alice())
	ctx := context.Background()

	t.Run("no thread goes to the feed", func(t *testing.T) {
		route := f.mux.Dispatch(ctx, "dm", json.RawMessage(`{"from":"bob","to":"alice","text":"yo","timestamp":1000}`))
		assert.Equal(t, multiplexer.RouteFeed, route)
		assert.Equal(t, 1, f.feed.Len())
		assert.Equal(t, "bob", f.feed.Items()[0].From)
	})

	t.Run("open and viewed thread skips the feed", func(t *testing.T) {
		require.NoError(t, f.chat.Open(ctx, "bob"))
		f.chat.SetViewing("bob", true)

		route := f.mux.Dispatch(ctx, "dm", json.RawMessage(`{"from":"bob","to":"alice","text":"again","timestamp":2000}`))
		assert.Equal(t, multiplexer.RouteThread, route)
		assert.Equal(t, 1, f.feed.Len())

		msgs := f.chat.Messages("bob")
		require.Len(t, msgs, 1)
		assert.Equal(t, "again", msgs[0].Text)
	})

	t.Run("echo of own message goes to the thread only", func(t *testing.T) {
		route := f.mux.Dispatch(ctx, "chat_message", json.RawMessage(`{"from":"alice","to":"bob","text":"mine","timestamp":3000}`))
		assert.Equal(t, multiplexer.RouteThread, route)
		assert.Len(t, f.chat.Messages("bob"), 2)
		assert.Equal(t, 1, f.feed.Len())
	})

	t.Run("open but hidden thread gets both", func(t *testing.T) {
		f.chat.SetViewing("bob", false)
		route := f.mux.Dispatch(ctx, "dm", json.RawMessage(`{"from":"bob","to":"alice","text":"hidden","timestamp":4000}`))
		assert.Equal(t, multiplexer.RouteBoth, route)
		assert.Equal(t, 2, f.feed.Len())
	})

	t.Run("foreign messages are dropped", func(t *testing.T) {
		route := f.mux.Dispatch(ctx, "dm", json.RawMessage(`{"from":"bob","to":"carol","text":"psst","timestamp":5000}`))
		assert.Equal(t, multiplexer.RouteDropped, route)
		assert.Equal(t, 2, f.feed.Len())
		assert.Len(t, f.chat.Messages("bob"), 3)
	})
}

func TestDispatch_OnlyFocusedThreadSkipsFeed(t *testing.T) {
	f := newFixture(t)
	f.mux.Bind(alice())
	ctx := context.Background()

	require.NoError(t, f.chat.Open(ctx, "bob"))
	require.NoError(t, f.chat.Open(ctx, "carol"))

	route := f.mux.Dispatch(ctx, "dm", json.RawMessage(`{"from":"bob","to":"alice","text":"behind","timestamp":1000}`))
	assert.Equal(t, multiplexer.RouteBoth, route, "bob's thread is open but not in front")
	require.Equal(t, 1, f.feed.Len())
	assert.Equal(t, "bob", f.feed.Items()[0].From)

	route = f.mux.Dispatch(ctx, "dm", json.RawMessage(`{"from":"carol","to":"alice","text":"front","timestamp":2000}`))
	assert.Equal(t, multiplexer.RouteThread, route)
	assert.Equal(t, 1, f.feed.Len())
}

func TestDispatch_RedeliveredChatWithoutTimestampDedupes(t *testing.T) {
	f := newFixture(t)
	f.mux.Bind(alice())
	ctx := context.Background()
	require.NoError(t, f.chat.Open(ctx, "bob"))

	frame := json.RawMessage(`{"from":"bob","to":"alice","text":"once"}`)
	assert.Equal(t, multiplexer.RouteThread, f.mux.Dispatch(ctx, "dm", frame))
	assert.Equal(t, multiplexer.RouteDropped, f.mux.Dispatch(ctx, "dm", frame))

	msgs := f.chat.Messages("bob")
	require.Len(t, msgs, 1)
	assert.Zero(t, msgs[0].Timestamp)
}

func TestDispatch_BotLog(t *testing.T) {
	f := newFixture(t)
	f.mux.Bind(alice())

	route := f.mux.Dispatch(context.Background(), "bot_log", json.RawMessage(`{"script":"greeter","output":"started"}`))
	assert.Equal(t, multiplexer.RouteBotLog, route)
	lines := f.bots.Lines("greeter")
	require.Len(t, lines, 1)
	assert.Equal(t, "greeter", lines[0].Script)
	assert.Equal(t, "started", lines[0].Output)
}

func TestDispatch_MalformedIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.mux.Bind(alice())
	ctx := context.Background()

	tests := []struct {
		event string
		data  string
	}{
		{"dm", `not json`},
		{"friend_request", `{"from":"bob"}`},
		{"system_message", `{}`},
		{"user_online", `42`},
		{"nonsense", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			assert.Equal(t, multiplexer.RouteDropped, f.mux.Dispatch(ctx, tt.event, json.RawMessage(tt.data)))
		})
	}
	assert.Zero(t, f.feed.Len())
	assert.Zero(t, f.roster.Len())

	f.mux.Dispatch(ctx, "system_message", json.RawMessage(`{"text":"still working"}`))
	assert.Equal(t, 1, f.feed.Len())
}

func TestUnbind_DropsEvents(t *testing.T) {
	f := newFixture(t)
	f.mux.Bind(alice())
	f.mux.Unbind()

	route := f.mux.Dispatch(context.Background(), "system_message", json.RawMessage(`{"text":"late"}`))
	assert.Equal(t, multiplexer.RouteDropped, route)
	assert.Zero(t, f.feed.Len())
	assert.False(t, f.mux.Identity().LoggedIn())
}
