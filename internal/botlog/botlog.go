// Package botlog buffers the output lines that running bot scripts stream
// over the bot_log event.
package botlog

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nfrund/livedash/internal/pubsub"
)

// DefaultCap is the number of lines kept per script.
const DefaultCap = 500

// Line is one line of script output.
type Line struct {
	Script     string    `json:"script"`
	Output     string    `json:"output"`
	ReceivedAt time.Time `json:"received_at"`
}

// Appended is published for every stored line.
type Appended struct {
	Line
	Total int `json:"total"`
}

var TopicAppended = pubsub.NewEvent[Appended]("botlog.line.appended",
	"A bot script produced a line of output")

type buffer struct {
	lines   []Line
	running bool
}

// Store keeps a capped buffer per script.
type Store struct {
	mu       sync.RWMutex
	scripts  map[string]*buffer
	cap      int
	now      func() time.Time
	notifier pubsub.Notifier
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithCap sets the per-script line cap.
func WithCap(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.cap = n
		}
	}
}

// WithPublisher publishes botlog.line.appended on pub.
func WithPublisher(pub pubsub.Publisher) Option {
	return func(s *Store) { s.notifier = pubsub.NewNotifier(pub, s.logger.Warn) }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		scripts: make(map[string]*buffer),
		cap:     DefaultCap,
		now:     time.Now,
		logger:  slog.Default().With("component", "botlog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append stores one line for script and marks the script as running.
func (s *Store) Append(script, output string) {
	if script == "" {
		return
	}
	line := Line{Script: script, Output: output, ReceivedAt: s.now()}

	s.mu.Lock()
	b, ok := s.scripts[script]
	if !ok {
		b = &buffer{}
		s.scripts[script] = b
	}
	b.running = true
	b.lines = append(b.lines, line)
	if over := len(b.lines) - s.cap; over > 0 {
		b.lines = slices.Delete(b.lines, 0, over)
	}
	total := len(b.lines)
	s.mu.Unlock()

	pubsub.Emit(context.Background(), s.notifier, TopicAppended, Appended{Line: line, Total: total})
}

// Lines returns the buffered output of script, oldest first.
func (s *Store) Lines(script string) []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.scripts[script]
	if !ok {
		return nil
	}
	return slices.Clone(b.lines)
}

// Scripts returns the scripts that produced output, sorted.
func (s *Store) Scripts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.scripts))
	for name := range s.scripts {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Running reports whether script has produced output in this session.
func (s *Store) Running(script string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.scripts[script]
	return ok && b.running
}

// Reset drops the buffer of script.
func (s *Store) Reset(script string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scripts, script)
}
