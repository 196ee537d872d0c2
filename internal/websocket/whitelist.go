package websocket

import (
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/nfrund/livedash/internal/events"
)

var (
	// ErrEventAlreadyExists is returned when trying to add a duplicate event
	ErrEventAlreadyExists = errors.New("event already exists in whitelist")
	// ErrInvalidEvent is returned when an empty event is provided
	ErrInvalidEvent = errors.New("event cannot be empty")
)

// EventWhitelist contains the set of wire events that clients are allowed to
// emit. Frames with any other event name are dropped at the socket.
type EventWhitelist struct {
	mu      sync.RWMutex
	allowed []string
}

// NewEventWhitelist creates a new whitelist with the given allowed events
func NewEventWhitelist(allowed ...string) *EventWhitelist {
	// Filter out any empty events
	valid := make([]string, 0, len(allowed))
	for _, name := range allowed {
		if name != "" {
			valid = append(valid, name)
		}
	}
	return &EventWhitelist{allowed: valid}
}

// IsAllowed checks if an event is in the whitelist in a thread-safe manner
func (w *EventWhitelist) IsAllowed(event string) bool {
	if event == "" {
		return false
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	return slices.Contains(w.allowed, event)
}

// Add adds an event to the whitelist in a thread-safe manner.
// Returns an error if the event is empty or already exists.
func (w *EventWhitelist) Add(event string) error {
	if event == "" {
		slog.Warn("attempted to add empty event to whitelist")
		return ErrInvalidEvent
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if slices.Contains(w.allowed, event) {
		slog.Debug("event already in whitelist", "event", event)
		return ErrEventAlreadyExists
	}

	w.allowed = append(w.allowed, event)
	slog.Info("added event to whitelist", "event", event)
	return nil
}

// DefaultEventWhitelist allows every wire event a client may send.
func DefaultEventWhitelist() *EventWhitelist {
	var names []string
	for _, t := range events.Wire() {
		if t.Direction().Sends() {
			names = append(names, t.Name())
		}
	}
	return NewEventWhitelist(names...)
}
