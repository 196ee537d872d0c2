package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/livedash/internal/app"
	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/testutils"
)

const wait = 3 * time.Second

func startShell(t *testing.T, b *testutils.Backend, user string) *app.Shell {
	t.Helper()
	shell, err := app.New(app.Dependencies{Config: b.ClientConfig(b.Login(t, user).CookieHeader())})
	require.NoError(t, err)
	t.Cleanup(shell.Shutdown)
	require.NoError(t, shell.Start(context.Background()))
	return shell
}

func findNotification(items []domain.Notification, kind domain.NotificationKind, from string) (domain.Notification, bool) {
	for _, n := range items {
		if n.Kind == kind && n.From == from {
			return n, true
		}
	}
	return domain.Notification{}, false
}

func TestShellAgainstBackend(t *testing.T) {
	ctx := context.Background()
	b := testutils.StartBackend(t)
	bob := b.Connect(t, "bob")

	shell := startShell(t, b, "alice")
	assert.Equal(t, "alice", shell.Identity().Key)

	require.Eventually(t, func() bool { return shell.Roster().IsOnline("bob") }, wait, 10*time.Millisecond)
	require.Eventually(t, func() bool { return b.Tracker.IsOnline("alice") }, wait, 10*time.Millisecond,
		"shell announces itself once connected")

	b.Connect(t, "carol")
	require.Eventually(t, func() bool { return shell.Roster().IsOnline("carol") }, wait, 10*time.Millisecond)
	assert.Subset(t, shell.Roster().Online(), []string{"bob", "carol"})

	// A message with no open thread lands in the feed only.
	bob.Emit("dm", map[string]string{"to": "alice", "text": "yo"})
	require.Eventually(t, func() bool {
		_, ok := findNotification(shell.Feed().Items(), domain.NotificationChatMessage, "bob")
		return ok
	}, wait, 10*time.Millisecond)
	n, _ := findNotification(shell.Feed().Items(), domain.NotificationChatMessage, "bob")
	assert.Equal(t, "New message from @bob", n.Text)
	assert.False(t, shell.Chat().IsOpen("bob"))

	require.NoError(t, shell.OpenChat(ctx, "bob"))
	msgs := shell.Chat().Messages("bob")
	require.Len(t, msgs, 1, "history shows the message once")
	assert.Equal(t, "yo", msgs[0].Text)

	// Our own message comes back through the backend into the open thread.
	require.NoError(t, shell.SendMessage(ctx, "bob", "hey"))
	require.Eventually(t, func() bool { return len(shell.Chat().Messages("bob")) == 2 }, wait, 10*time.Millisecond)
	assert.Equal(t, "hey", shell.Chat().Messages("bob")[1].Text)
	assert.Len(t, shell.Feed().Items(), 1, "own messages do not notify")

	bob.Emit("friend_request", map[string]string{"to": "alice"})
	require.Eventually(t, func() bool {
		_, ok := findNotification(shell.Feed().Items(), domain.NotificationFriendRequest, "bob")
		return ok
	}, wait, 10*time.Millisecond)

	bob.Leave()
	require.Eventually(t, func() bool { return !shell.Roster().IsOnline("bob") }, wait, 10*time.Millisecond)
}

func TestShellBroadcastRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	b := testutils.StartBackend(t)

	alice := startShell(t, b, "alice")
	assert.ErrorIs(t, alice.Broadcast(ctx, "hello"), domain.ErrForbidden)

	admin := startShell(t, b, "admin")
	assert.ErrorIs(t, admin.Broadcast(ctx, "   "), domain.ErrEmptyMessage)

	require.Eventually(t, func() bool {
		return b.Tracker.IsOnline("alice") && b.Tracker.IsOnline("admin")
	}, wait, 10*time.Millisecond)
	require.NoError(t, admin.Broadcast(ctx, "maintenance at noon"))
	require.Eventually(t, func() bool {
		text, visible := alice.Feed().Banner()
		return visible && text == "maintenance at noon"
	}, wait, 10*time.Millisecond)
}

func TestShellFriendRequestReachesTarget(t *testing.T) {
	ctx := context.Background()
	b := testutils.StartBackend(t)

	bob := startShell(t, b, "bob")
	alice := startShell(t, b, "alice")
	require.Eventually(t, func() bool {
		return b.Tracker.IsOnline("bob") && b.Tracker.IsOnline("alice")
	}, wait, 10*time.Millisecond)

	require.NoError(t, alice.SendFriendRequest(ctx, "bob"))
	require.Eventually(t, func() bool {
		_, ok := findNotification(bob.Feed().Items(), domain.NotificationFriendRequest, "alice")
		return ok
	}, wait, 10*time.Millisecond)
	_, ok := findNotification(alice.Feed().Items(), domain.NotificationFriendRequest, "alice")
	assert.False(t, ok, "requests for someone else are dropped")

	require.NoError(t, bob.AcceptFriend(ctx, "alice"))
	friends, err := alice.Friends(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, friends)

	assert.ErrorIs(t, alice.SendFriendRequest(ctx, "alice"), domain.ErrInvalidPayload)
}

func TestShellLogout(t *testing.T) {
	ctx := context.Background()
	b := testutils.StartBackend(t)
	shell := startShell(t, b, "alice")

	require.NoError(t, shell.Logout(ctx))
	assert.False(t, shell.Identity().LoggedIn())
	assert.ErrorIs(t, shell.SendMessage(ctx, "bob", "hi"), domain.ErrNotLoggedIn)
	assert.Empty(t, shell.Feed().Items())
}

func TestShellRosterReseededAfterRelogin(t *testing.T) {
	ctx := context.Background()
	b := testutils.StartBackend(t)
	bob := b.Connect(t, "bob")

	shell := startShell(t, b, "alice")
	require.Eventually(t, func() bool { return shell.Roster().IsOnline("bob") }, wait, 10*time.Millisecond)

	require.NoError(t, shell.Logout(ctx))
	assert.Zero(t, shell.Roster().Len(), "the roster belongs to the session")

	// Presence changes while logged out are never seen live.
	bob.Leave()
	require.Eventually(t, func() bool { return !b.Tracker.IsOnline("bob") }, wait, 10*time.Millisecond)
	b.Connect(t, "carol")

	_, err := shell.Login(ctx, "alice", testutils.Password)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return shell.Roster().IsOnline("carol") && !shell.Roster().IsOnline("bob")
	}, wait, 10*time.Millisecond, "roster is reseeded from the backend snapshot")
}

func TestShellStartWithoutSession(t *testing.T) {
	b := testutils.StartBackend(t)
	shell, err := app.New(app.Dependencies{Config: b.ClientConfig("")})
	require.NoError(t, err)
	t.Cleanup(shell.Shutdown)

	assert.ErrorIs(t, shell.Start(context.Background()), domain.ErrNotLoggedIn)

	id, err := shell.Login(context.Background(), "carol", testutils.Password)
	require.NoError(t, err)
	assert.Equal(t, "carol", id.Key)
	require.Eventually(t, func() bool { return b.Tracker.IsOnline("carol") }, wait, 10*time.Millisecond)
}
