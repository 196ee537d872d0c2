package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/livedash/internal/pubsub"
)

// mockPublisher records every message published to it.
type mockPublisher struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

func (m *mockPublisher) Publish(_ context.Context, msg pubsub.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.messages))
	for i, msg := range m.messages {
		out[i] = msg.Topic
	}
	return out
}

func (m *mockPublisher) last(t *testing.T, v any) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages)
	require.NoError(t, json.Unmarshal(m.messages[len(m.messages)-1].Payload, v))
}

type fetcherFunc func(ctx context.Context) ([]string, error)

func (f fetcherFunc) OnlineUsers(ctx context.Context) ([]string, error) { return f(ctx) }

func TestRoster_MarkOnlineIsIdempotent(t *testing.T) {
	keys := []string{"u1", "bob", "Bob", "with space", "ünï"}
	for _, k := range keys {
		once := NewRoster()
		once.MarkOnline(k)

		twice := NewRoster()
		assert.True(t, twice.MarkOnline(k))
		assert.False(t, twice.MarkOnline(k), "second add is not a change")

		assert.Equal(t, once.Online(), twice.Online(), "key %q", k)
		assert.Equal(t, 1, twice.Len())
	}
}

func TestRoster_OfflineRemoval(t *testing.T) {
	r := NewRoster()
	r.MarkOnline("u1")
	assert.True(t, r.MarkOffline("u1"))
	assert.Empty(t, r.Online())

	assert.False(t, r.MarkOffline("u2"), "removing an absent key is a no-op")
	assert.Equal(t, 0, r.Len())
}

func TestRoster_KeysAreNotFolded(t *testing.T) {
	r := NewRoster()
	r.MarkOnline("bob")
	r.MarkOnline("Bob")
	assert.Equal(t, []string{"Bob", "bob"}, r.Online())
	assert.False(t, r.MarkOnline(""), "empty key is no identity")
}

func TestRoster_SeedMergesWithLiveAdds(t *testing.T) {
	pub := &mockPublisher{}
	r := NewRoster(WithPublisher(pub))

	r.MarkOnline("carol")
	r.Seed(context.Background(), fetcherFunc(func(context.Context) ([]string, error) {
		return []string{"bob", "carol", ""}, nil
	}))

	assert.Equal(t, []string{"bob", "carol"}, r.Online())
	assert.True(t, r.IsOnline("bob"))

	var last RosterChanged
	pub.last(t, &last)
	assert.Equal(t, "seed", last.Change)
	assert.Equal(t, []string{"bob", "carol"}, last.Online)

	calls := 0
	r.Seed(context.Background(), fetcherFunc(func(context.Context) ([]string, error) {
		calls++
		return []string{"dave"}, nil
	}))
	assert.Zero(t, calls, "seed runs once")
}

func TestRoster_SeedFailureIsSwallowed(t *testing.T) {
	r := NewRoster()
	r.MarkOnline("carol")
	r.Seed(context.Background(), fetcherFunc(func(context.Context) ([]string, error) {
		return nil, errors.New("connection refused")
	}))
	assert.Equal(t, []string{"carol"}, r.Online())
}

func TestRoster_PublishesOnlyEffectiveChanges(t *testing.T) {
	pub := &mockPublisher{}
	r := NewRoster(WithPublisher(pub))

	r.MarkOnline("bob")
	r.MarkOnline("bob")
	r.MarkOffline("carol")
	r.MarkOffline("bob")

	assert.Equal(t, []string{TopicRosterChanged.Name(), TopicRosterChanged.Name()}, pub.topics())

	var last RosterChanged
	pub.last(t, &last)
	assert.Equal(t, "offline", last.Change)
	assert.Equal(t, "bob", last.Key)
	assert.Empty(t, last.Online)
}

func TestRoster_SeedDoesNotUndoLiveOffline(t *testing.T) {
	r := NewRoster()
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		r.Seed(context.Background(), fetcherFunc(func(context.Context) ([]string, error) {
			<-release
			return []string{"bob", "carol"}, nil
		}))
	}()

	// bob comes and goes while the snapshot is in flight.
	r.MarkOnline("bob")
	r.MarkOffline("bob")
	close(release)
	<-done

	assert.Equal(t, []string{"carol"}, r.Online())
	assert.False(t, r.IsOnline("bob"), "a stale snapshot must not resurrect bob")

	// Once seeded, live events apply as usual.
	r.MarkOnline("bob")
	assert.Equal(t, []string{"bob", "carol"}, r.Online())
}

func TestRoster_ResetRearmsSeed(t *testing.T) {
	pub := &mockPublisher{}
	r := NewRoster(WithPublisher(pub))
	r.Seed(context.Background(), fetcherFunc(func(context.Context) ([]string, error) {
		return []string{"bob"}, nil
	}))
	require.Equal(t, []string{"bob"}, r.Online())

	r.Reset()
	assert.Zero(t, r.Len())
	var last RosterChanged
	pub.last(t, &last)
	assert.Equal(t, "reset", last.Change)
	assert.Empty(t, last.Online)

	r.Seed(context.Background(), fetcherFunc(func(context.Context) ([]string, error) {
		return []string{"carol"}, nil
	}))
	assert.Equal(t, []string{"carol"}, r.Online())
}

func TestRoster_ResetDiscardsSnapshotInFlight(t *testing.T) {
	r := NewRoster()
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		r.Seed(context.Background(), fetcherFunc(func(context.Context) ([]string, error) {
			<-release
			return []string{"bob"}, nil
		}))
	}()

	require.Eventually(t, func() bool {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.seeded
	}, time.Second, 5*time.Millisecond)
	r.Reset()
	close(release)
	<-done

	assert.Zero(t, r.Len())
}
