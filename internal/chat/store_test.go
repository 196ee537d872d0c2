package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/events"
)

// fakeBackend serves canned history. When gate is set, Messages blocks until
// it is closed so tests can interleave live deliveries with the fetch.
type fakeBackend struct {
	history map[string][]domain.ChatMessage
	err     error
	gate    chan struct{}
	started chan struct{}
}

func (f *fakeBackend) Messages(ctx context.Context, counterpart string) ([]domain.ChatMessage, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.history[counterpart], nil
}

func (f *fakeBackend) Conversations(context.Context) ([]domain.Conversation, error) {
	return []domain.Conversation{{Key: "bob", LastMessage: "yo"}}, nil
}

type emitted struct {
	event   string
	payload any
}

type fakeEmitter struct {
	mu   sync.Mutex
	sent []emitted
}

func (f *fakeEmitter) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, emitted{event, payload})
	return nil
}

func msg(from, to, text string, ts int64) domain.ChatMessage {
	return domain.ChatMessage{From: from, To: to, Text: text, Timestamp: ts}
}

func texts(list []domain.ChatMessage) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.Text
	}
	return out
}

func TestStore_LiveAppendGoesToOneThread(t *testing.T) {
	s := New(&fakeBackend{}, &fakeEmitter{})
	require.NoError(t, s.Open(context.Background(), "bob"))
	require.NoError(t, s.Open(context.Background(), "carol"))

	assert.True(t, s.Deliver("bob", msg("bob", "me", "hi", 100)))

	assert.Equal(t, []string{"hi"}, texts(s.Messages("bob")))
	assert.Empty(t, s.Messages("carol"))
}

func TestStore_DeliverIgnoresClosedAndReplayed(t *testing.T) {
	s := New(&fakeBackend{}, &fakeEmitter{})

	assert.False(t, s.Deliver("bob", msg("bob", "me", "hi", 100)), "no open thread")

	require.NoError(t, s.Open(context.Background(), "bob"))
	assert.True(t, s.Deliver("bob", msg("bob", "me", "hi", 100)))
	assert.False(t, s.Deliver("bob", msg("bob", "me", "hi", 100)), "replay")
	assert.True(t, s.Deliver("bob", msg("bob", "me", "hi", 101)), "same text, new timestamp")
	assert.Len(t, s.Messages("bob"), 2)
}

func TestStore_HistoryReconcilesWithLiveMessages(t *testing.T) {
	backend := &fakeBackend{
		history: map[string][]domain.ChatMessage{
			"bob": {
				msg("me", "bob", "earlier", 10),
				msg("bob", "me", "yo", 1000),
			},
		},
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	s := New(backend, &fakeEmitter{})

	done := make(chan error, 1)
	go func() { done <- s.Open(context.Background(), "bob") }()
	<-backend.started

	// These arrive while the history request is in flight.
	s.Deliver("bob", msg("bob", "me", "yo", 1000))
	s.Deliver("bob", msg("bob", "me", "newer", 2000))
	close(backend.gate)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"earlier", "yo", "newer"}, texts(s.Messages("bob")))
	assert.True(t, s.Loaded("bob"))
}

func TestStore_HistoryFailureKeepsLiveMessages(t *testing.T) {
	backend := &fakeBackend{
		err:     errors.New("502"),
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	s := New(backend, &fakeEmitter{})

	done := make(chan error, 1)
	go func() { done <- s.Open(context.Background(), "bob") }()
	<-backend.started
	s.Deliver("bob", msg("bob", "me", "live", 1))
	close(backend.gate)

	err := <-done
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load history with bob")
	assert.Equal(t, []string{"live"}, texts(s.Messages("bob")))
	assert.False(t, s.Loaded("bob"))
}

func TestStore_CloseDuringLoadDiscards(t *testing.T) {
	backend := &fakeBackend{
		history: map[string][]domain.ChatMessage{"bob": {msg("bob", "me", "old", 1)}},
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	s := New(backend, &fakeEmitter{})

	done := make(chan error, 1)
	go func() { done <- s.Open(context.Background(), "bob") }()
	<-backend.started
	s.Close("bob")
	close(backend.gate)

	require.NoError(t, <-done)
	assert.False(t, s.IsOpen("bob"))
	assert.Nil(t, s.Messages("bob"))
}

func TestStore_Send(t *testing.T) {
	em := &fakeEmitter{}
	s := New(&fakeBackend{}, em)
	ctx := context.Background()

	assert.ErrorIs(t, s.Send(ctx, "bob", "   ", nil), domain.ErrEmptyMessage)
	assert.ErrorIs(t, s.Send(ctx, "", "hi", nil), domain.ErrInvalidPayload)

	embed := json.RawMessage(`{"type":"post","id":7}`)
	require.NoError(t, s.Send(ctx, "bob", "  hi there ", embed))
	require.Len(t, em.sent, 1)
	assert.Equal(t, events.TopicDM.Name(), em.sent[0].event)
	assert.Equal(t, events.OutgoingDM{To: "bob", Text: "hi there", Embed: embed}, em.sent[0].payload)

	require.NoError(t, s.Open(ctx, "bob"))
	assert.Empty(t, s.Messages("bob"), "no optimistic insert")
}

func TestStore_ViewingAndThreads(t *testing.T) {
	s := New(&fakeBackend{}, &fakeEmitter{})
	assert.False(t, s.Viewing("bob"))

	require.NoError(t, s.Open(context.Background(), "carol"))
	require.NoError(t, s.Open(context.Background(), "bob"))
	assert.True(t, s.Viewing("bob"))
	assert.False(t, s.Viewing("carol"), "opening bob moves focus away from carol")
	assert.Equal(t, []string{"bob", "carol"}, s.Threads())

	s.SetViewing("carol", true)
	assert.True(t, s.Viewing("carol"))
	assert.False(t, s.Viewing("bob"))

	s.SetViewing("bob", false)
	assert.False(t, s.Viewing("bob"))
	assert.True(t, s.IsOpen("bob"))

	s.CloseAll()
	assert.Empty(t, s.Threads())

	list, err := s.Conversations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bob", list[0].Key)
}
