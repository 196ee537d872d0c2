// Package chat keeps the direct-message threads the user has open. Threads
// are keyed by counterpart and populated from a history fetch plus live
// deliveries from the multiplexer.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/events"
	"github.com/nfrund/livedash/internal/pubsub"
)

// Backend is the REST surface the store needs.
type Backend interface {
	Messages(ctx context.Context, counterpart string) ([]domain.ChatMessage, error)
	Conversations(ctx context.Context) ([]domain.Conversation, error)
}

// Emitter sends socket events.
type Emitter interface {
	Emit(event string, payload any) error
}

type thread struct {
	messages []domain.ChatMessage
	seen     map[string]struct{}
	viewing  bool
	loaded   bool
}

func newThread() *thread {
	return &thread{seen: make(map[string]struct{})}
}

// add appends msg unless its identity tuple is already in the thread.
func (t *thread) add(msg domain.ChatMessage) bool {
	k := msg.Key()
	if _, dup := t.seen[k]; dup {
		return false
	}
	t.seen[k] = struct{}{}
	t.messages = append(t.messages, msg)
	return true
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	threads  map[string]*thread
	backend  Backend
	emitter  Emitter
	notifier pubsub.Notifier
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher publishes chat.thread.changed on pub.
func WithPublisher(pub pubsub.Publisher) Option {
	return func(s *Store) { s.notifier = pubsub.NewNotifier(pub, s.logger.Warn) }
}

// New creates a store that fetches history from backend and sends through
// emitter.
func New(backend Backend, emitter Emitter, opts ...Option) *Store {
	s := &Store{
		threads: make(map[string]*thread),
		backend: backend,
		emitter: emitter,
		logger:  slog.Default().With("component", "chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates the thread with counterpart if needed, marks it as the one
// being viewed and loads its history. At most one thread is viewed at a time. History is reconciled with anything delivered live while
// the fetch was in flight: history comes first, live messages it lacks follow.
// When the fetch fails the live messages stay and the error is returned.
func (s *Store) Open(ctx context.Context, counterpart string) error {
	if counterpart == "" {
		return fmt.Errorf("open chat: %w", domain.ErrInvalidPayload)
	}

	s.mu.Lock()
	t, ok := s.threads[counterpart]
	if !ok {
		t = newThread()
		s.threads[counterpart] = t
	}
	for _, other := range s.threads {
		other.viewing = false
	}
	t.viewing = true
	s.mu.Unlock()

	if !ok {
		s.publish(counterpart, "opened", 0)
	}

	history, err := s.backend.Messages(ctx, counterpart)
	if err != nil {
		return fmt.Errorf("load history with %s: %w", counterpart, err)
	}

	s.mu.Lock()
	if s.threads[counterpart] != t {
		// Closed while loading.
		s.mu.Unlock()
		return nil
	}
	merged := newThread()
	merged.viewing = t.viewing
	merged.loaded = true
	for _, m := range history {
		merged.add(m)
	}
	for _, m := range t.messages {
		merged.add(m)
	}
	*t = *merged
	count := len(t.messages)
	s.mu.Unlock()

	s.logger.Debug("Chat history loaded", "counterpart", counterpart, "history", len(history), "total", count)
	s.publish(counterpart, "history", count)
	return nil
}

// Deliver appends a live message to the thread with counterpart when that
// thread is open. Replayed messages are ignored. It reports whether the
// thread changed.
func (s *Store) Deliver(counterpart string, msg domain.ChatMessage) bool {
	s.mu.Lock()
	t, ok := s.threads[counterpart]
	if !ok || !t.add(msg) {
		s.mu.Unlock()
		return false
	}
	count := len(t.messages)
	s.mu.Unlock()

	s.publish(counterpart, "message", count)
	return true
}

// Send emits a direct message. The message shows up in the thread only when
// the backend echoes it back.
func (s *Store) Send(ctx context.Context, counterpart, text string, embed json.RawMessage) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyMessage
	}
	if counterpart == "" {
		return fmt.Errorf("send message: %w", domain.ErrInvalidPayload)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.emitter.Emit(events.TopicDM.Name(), events.OutgoingDM{To: counterpart, Text: text, Embed: embed})
}

// Close discards the thread with counterpart.
func (s *Store) Close(counterpart string) {
	s.mu.Lock()
	_, ok := s.threads[counterpart]
	delete(s.threads, counterpart)
	s.mu.Unlock()

	if ok {
		s.publish(counterpart, "closed", 0)
	}
}

// CloseAll discards every thread.
func (s *Store) CloseAll() {
	for _, c := range s.Threads() {
		s.Close(c)
	}
}

// SetViewing marks whether the user is looking at an open thread. Viewing one
// thread unfocuses the others.
func (s *Store) SetViewing(counterpart string, viewing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[counterpart]
	if !ok {
		return
	}
	if viewing {
		for _, other := range s.threads {
			other.viewing = false
		}
	}
	t.viewing = viewing
}

// Messages returns a copy of the thread with counterpart.
func (s *Store) Messages(counterpart string) []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[counterpart]
	if !ok {
		return nil
	}
	out := make([]domain.ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// IsOpen reports whether a thread with counterpart is open.
func (s *Store) IsOpen(counterpart string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.threads[counterpart]
	return ok
}

// Loaded reports whether the thread's history has been fetched.
func (s *Store) Loaded(counterpart string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[counterpart]
	return ok && t.loaded
}

// Viewing reports whether the user is looking at the thread with counterpart.
func (s *Store) Viewing(counterpart string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[counterpart]
	return ok && t.viewing
}

// Threads returns the open counterparts, sorted.
func (s *Store) Threads() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.threads))
	for c := range s.threads {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Conversations lists the session's conversations for the messages page.
func (s *Store) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	list, err := s.backend.Conversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return list, nil
}

func (s *Store) publish(counterpart, reason string, count int) {
	pubsub.Emit(context.Background(), s.notifier, TopicThreadChanged,
		ThreadChanged{Counterpart: counterpart, Reason: reason, Count: count})
}
