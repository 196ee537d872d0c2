package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_CountsConnections(t *testing.T) {
	pub := &mockPublisher{}
	tr := NewTracker(pub, WithOfflineDebounce(0))
	t.Cleanup(tr.Shutdown)

	tr.Connect("bob", "tab-1", "")
	tr.Connect("bob", "tab-2", "")
	assert.Equal(t, 2, tr.Connections("bob"))
	assert.Equal(t, []string{TopicUserOnline.Name()}, pub.topics(), "second tab is not a transition")

	tr.Disconnect("tab-1")
	assert.True(t, tr.IsOnline("bob"), "one tab closing keeps the identity online")
	assert.Len(t, pub.topics(), 1)

	tr.Disconnect("tab-2")
	assert.False(t, tr.IsOnline("bob"))
	assert.Equal(t, []string{TopicUserOnline.Name(), TopicUserOffline.Name()}, pub.topics())

	var last Transition
	pub.last(t, &last)
	assert.Equal(t, "bob", last.Key)
}

func TestTracker_DisconnectUnknownClient(t *testing.T) {
	pub := &mockPublisher{}
	tr := NewTracker(pub, WithOfflineDebounce(0))
	t.Cleanup(tr.Shutdown)

	tr.Disconnect("nope")
	tr.Connect("", "c1", "")
	tr.Connect("bob", "", "")
	assert.Empty(t, pub.topics())
	assert.Empty(t, tr.OnlineUsers())
}

func TestTracker_DebounceAbsorbsReload(t *testing.T) {
	pub := &mockPublisher{}
	tr := NewTracker(pub, WithOfflineDebounce(50*time.Millisecond))
	t.Cleanup(tr.Shutdown)

	tr.Connect("alice", "c1", "")
	tr.Disconnect("c1")
	assert.True(t, tr.IsOnline("alice"), "still online while debouncing")
	assert.Equal(t, []string{"alice"}, tr.OnlineUsers())

	tr.Connect("alice", "c2", "")
	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, []string{TopicUserOnline.Name()}, pub.topics(), "reload produces no offline/online pair")
	assert.Equal(t, 1, tr.Connections("alice"))
}

func TestTracker_DebouncedOffline(t *testing.T) {
	pub := &mockPublisher{}
	tr := NewTracker(pub, WithOfflineDebounce(20*time.Millisecond))
	t.Cleanup(tr.Shutdown)

	tr.Connect("alice", "c1", "")
	tr.Disconnect("c1")

	require.Eventually(t, func() bool {
		return len(pub.topics()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, TopicUserOffline.Name(), pub.topics()[1])
	assert.Empty(t, tr.OnlineUsers())
}

func TestTracker_StaleCleanup(t *testing.T) {
	pub := &mockPublisher{}
	tr := NewTracker(pub, WithOfflineDebounce(0), WithStaleThreshold(time.Millisecond))
	t.Cleanup(tr.Shutdown)

	tr.Connect("alice", "c1", "")
	time.Sleep(5 * time.Millisecond)
	tr.cleanupStale()

	assert.False(t, tr.IsOnline("alice"))
	_, ok := tr.KeyFor("c1")
	assert.False(t, ok)
}

func TestTracker_TouchKeepsConnectionFresh(t *testing.T) {
	tr := NewTracker(nil, WithOfflineDebounce(0), WithStaleThreshold(50*time.Millisecond))
	t.Cleanup(tr.Shutdown)

	tr.Connect("alice", "c1", "")
	time.Sleep(30 * time.Millisecond)
	tr.Touch("c1")
	time.Sleep(30 * time.Millisecond)
	tr.cleanupStale()

	assert.True(t, tr.IsOnline("alice"))
	key, ok := tr.KeyFor("c1")
	assert.True(t, ok)
	assert.Equal(t, "alice", key)
}
