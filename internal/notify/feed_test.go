package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/pubsub"
)

type countingClearer struct {
	calls atomic.Int32
	err   error
}

func (c *countingClearer) ClearNotifications(context.Context) error {
	c.calls.Add(1)
	return c.err
}

type mockPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (m *mockPublisher) Publish(_ context.Context, msg pubsub.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topics = append(m.topics, msg.Topic)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) count(topic string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func ids(list []domain.Notification) []string {
	out := make([]string, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}

func TestFeed_PrependOrdering(t *testing.T) {
	f := New()
	t.Cleanup(f.Close)

	f.Append(domain.Notification{ID: "n1", Kind: domain.NotificationSystem, Text: "first"})
	f.Append(domain.Notification{ID: "n2", Kind: domain.NotificationSystem, Text: "second"})

	assert.Equal(t, []string{"n2", "n1"}, ids(f.Items()))
}

func TestFeed_GeneratesIDsAndTimestamps(t *testing.T) {
	now := time.UnixMilli(5_000)
	f := New(WithClock(func() time.Time { return now }))
	t.Cleanup(f.Close)

	require.True(t, f.Append(domain.Notification{Kind: domain.NotificationChatMessage, From: "bob"}))
	require.True(t, f.Append(domain.Notification{Kind: domain.NotificationChatMessage, From: "bob"}))

	items := f.Items()
	require.Len(t, items, 2)
	assert.NotEmpty(t, items[0].ID)
	assert.NotEqual(t, items[0].ID, items[1].ID)
	assert.Equal(t, int64(5_000), items[0].Timestamp)
	assert.Equal(t, now, items[0].CreatedAt)
}

func TestFeed_DuplicateIDIgnored(t *testing.T) {
	f := New()
	t.Cleanup(f.Close)

	assert.True(t, f.Append(domain.Notification{ID: "n1"}))
	assert.False(t, f.Append(domain.Notification{ID: "n1", Text: "replayed"}))
	assert.Equal(t, 1, f.Len())
	assert.Len(t, f.Toasts(), 1, "a duplicate does not pop twice")
}

func TestFeed_CapDropsOldest(t *testing.T) {
	f := New(WithCap(3))
	t.Cleanup(f.Close)

	for i := 1; i <= 5; i++ {
		f.Append(domain.Notification{ID: fmt.Sprintf("n%d", i)})
	}
	assert.Equal(t, []string{"n5", "n4", "n3"}, ids(f.Items()))

	assert.True(t, f.Append(domain.Notification{ID: "n1"}), "evicted ids may return")
}

func TestFeed_DefaultCap(t *testing.T) {
	f := New()
	t.Cleanup(f.Close)
	for i := 0; i < DefaultCap+10; i++ {
		f.Append(domain.Notification{})
	}
	assert.Equal(t, DefaultCap, f.Len())
}

func TestFeed_ClearEmptiesAndCallsBackendOnce(t *testing.T) {
	clearer := &countingClearer{}
	f := New(WithClearer(clearer))
	t.Cleanup(f.Close)

	f.Append(domain.Notification{ID: "a"})
	f.Append(domain.Notification{ID: "b"})
	f.Append(domain.Notification{ID: "c"})

	f.Clear(context.Background())
	assert.Empty(t, f.Items())
	f.Wait()
	assert.Equal(t, int32(1), clearer.calls.Load())

	f.Clear(context.Background())
	f.Wait()
	assert.Equal(t, int32(1), clearer.calls.Load(), "clearing an empty feed does not call the backend")
}

func TestFeed_ClearFailureIsSwallowed(t *testing.T) {
	clearer := &countingClearer{err: errors.New("boom")}
	f := New(WithClearer(clearer))
	t.Cleanup(f.Close)

	f.Append(domain.Notification{ID: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	f.Clear(ctx)
	cancel()
	f.Wait()

	assert.Equal(t, int32(1), clearer.calls.Load())
	assert.Empty(t, f.Items())
}

func TestFeed_ToastExpires(t *testing.T) {
	pub := &mockPublisher{}
	f := New(WithToastDuration(20*time.Millisecond), WithPublisher(pub))
	t.Cleanup(f.Close)

	f.Append(domain.Notification{ID: "n1"})
	assert.Equal(t, []string{"n1"}, ids(f.Toasts()))

	require.Eventually(t, func() bool { return len(f.Toasts()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.Len(), "the feed outlives the toast")
	assert.Equal(t, 1, pub.count(TopicToastShown.Name()))
	assert.Equal(t, 1, pub.count(TopicToastExpired.Name()))
}

func TestFeed_ReappendAfterClearRestartsToast(t *testing.T) {
	pub := &mockPublisher{}
	f := New(WithToastDuration(100*time.Millisecond), WithPublisher(pub))
	t.Cleanup(f.Close)

	f.Append(domain.Notification{ID: "n1"})
	time.Sleep(60 * time.Millisecond)
	f.Clear(context.Background())
	require.True(t, f.Append(domain.Notification{ID: "n1"}))
	time.Sleep(60 * time.Millisecond)

	assert.Equal(t, []string{"n1"}, ids(f.Toasts()), "the first timer no longer owns the toast")
	assert.Zero(t, pub.count(TopicToastExpired.Name()))

	require.Eventually(t, func() bool { return len(f.Toasts()) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, pub.count(TopicToastExpired.Name()))
}

func TestFeed_CloseCancelsTimers(t *testing.T) {
	pub := &mockPublisher{}
	f := New(WithToastDuration(20*time.Millisecond), WithBannerDuration(20*time.Millisecond), WithPublisher(pub))

	f.Append(domain.Notification{ID: "n1"})
	f.ShowBanner("maintenance")
	f.Close()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, pub.count(TopicToastExpired.Name()))
	assert.Equal(t, 1, pub.count(TopicBannerChanged.Name()), "only the show, never the hide")
	assert.Empty(t, f.Toasts())
	assert.False(t, f.Append(domain.Notification{ID: "late"}))
}

func TestFeed_BannerReplacesAndRestarts(t *testing.T) {
	f := New(WithBannerDuration(60 * time.Millisecond))
	t.Cleanup(f.Close)

	f.ShowBanner("first")
	time.Sleep(40 * time.Millisecond)
	f.ShowBanner("second")
	time.Sleep(40 * time.Millisecond)

	text, visible := f.Banner()
	assert.True(t, visible, "the second banner restarted the timer")
	assert.Equal(t, "second", text)

	require.Eventually(t, func() bool {
		_, visible := f.Banner()
		return !visible
	}, time.Second, 5*time.Millisecond)
}

func TestFeed_SeedKeepsNewestFirst(t *testing.T) {
	f := New()
	t.Cleanup(f.Close)

	f.Seed([]domain.Notification{
		{ID: "new", Timestamp: 2000},
		{ID: "old", Timestamp: 1000},
	})
	items := f.Items()
	assert.Equal(t, []string{"new", "old"}, ids(items))
	assert.Equal(t, time.UnixMilli(2000), items[0].CreatedAt)
}

func TestFeed_ResetSkipsBackend(t *testing.T) {
	clearer := &countingClearer{}
	f := New(WithClearer(clearer), WithToastDuration(time.Hour))
	defer f.Close()

	f.Append(domain.Notification{ID: "a", Text: "one"})
	f.ShowBanner("hello")
	f.Reset()
	f.Wait()

	assert.Zero(t, f.Len())
	assert.Empty(t, f.Toasts())
	_, visible := f.Banner()
	assert.False(t, visible)
	assert.Zero(t, clearer.calls.Load())

	assert.True(t, f.Append(domain.Notification{ID: "a", Text: "one again"}), "reset forgets ids")
}
