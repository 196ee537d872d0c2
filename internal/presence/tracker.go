package presence

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nfrund/livedash/internal/pubsub"
)

const (
	// OfflineDebounceDelay is the time to wait before marking a user as offline after their last connection closes.
	// This handles page reloads and slow network conditions gracefully.
	// Can be overridden using WithOfflineDebounce() option.
	OfflineDebounceDelay = 5 * time.Second

	// DefaultStaleThreshold is the time after which a connection that has not
	// been touched is dropped by the cleanup loop.
	DefaultStaleThreshold = 2 * time.Minute

	cleanupInterval = 30 * time.Second
)

// Connection is one open socket of an identity.
type Connection struct {
	Key       string    `json:"usertag"`
	ClientID  string    `json:"client_id"`
	Since     time.Time `json:"since"`
	LastSeen  time.Time `json:"last_seen"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// Tracker is the backend side of presence. Unlike the client Roster it
// counts connections per identity, so closing one of two tabs keeps the
// identity online. Transitions are published on the bus.
type Tracker struct {
	mu        sync.RWMutex
	presences map[string]map[string]Connection // key -> clientID -> Connection
	clients   map[string]string                // clientID -> key
	publisher pubsub.Publisher
	logger    *slog.Logger

	// Cleanup mechanism
	cleanupTicker  *time.Ticker
	stopCleanup    chan struct{}
	stopOnce       sync.Once
	staleThreshold time.Duration

	// Debouncing for offline events
	offlineDebounce      map[string]*time.Timer // key -> debounce timer
	offlineDebounceDelay time.Duration
}

// TrackerOption is a function that configures a Tracker.
type TrackerOption func(*Tracker)

// WithStaleThreshold sets a custom stale threshold.
func WithStaleThreshold(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.staleThreshold = d
	}
}

// WithOfflineDebounce sets a custom debounce delay for offline events.
// Set to 0 to disable debouncing (useful for testing).
func WithOfflineDebounce(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.offlineDebounceDelay = d
	}
}

// Now returns the current time in UTC
func Now() time.Time {
	return time.Now().UTC()
}

// NewTracker creates a presence tracker publishing transitions on publisher.
func NewTracker(publisher pubsub.Publisher, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		presences:            make(map[string]map[string]Connection),
		clients:              make(map[string]string),
		publisher:            publisher,
		logger:               slog.Default().With("service", "presence"),
		cleanupTicker:        time.NewTicker(cleanupInterval),
		stopCleanup:          make(chan struct{}),
		staleThreshold:       DefaultStaleThreshold,
		offlineDebounce:      make(map[string]*time.Timer),
		offlineDebounceDelay: OfflineDebounceDelay,
	}

	for _, opt := range opts {
		opt(t)
	}

	go t.startCleanup()
	return t
}

// Connect records a connection. The first connection of an identity, when it
// was not in an offline debounce, publishes presence.user.online.
func (t *Tracker) Connect(key, clientID, userAgent string) {
	if key == "" || clientID == "" {
		return
	}

	t.mu.Lock()
	if prev, ok := t.clients[clientID]; ok && prev != key {
		t.removeClientLocked(prev, clientID)
	}
	t.clients[clientID] = key

	// Cancel any pending offline debounce; the user never appeared offline.
	debounced := false
	if timer, exists := t.offlineDebounce[key]; exists {
		timer.Stop()
		delete(t.offlineDebounce, key)
		debounced = true
		t.logger.Info("Cancelled offline debounce due to reconnection", "usertag", key, "client_id", clientID)
	}

	cameOnline := false
	if t.presences[key] == nil {
		t.presences[key] = make(map[string]Connection)
		cameOnline = !debounced
	}
	if _, exists := t.presences[key][clientID]; exists {
		c := t.presences[key][clientID]
		c.LastSeen = Now()
		t.presences[key][clientID] = c
		t.mu.Unlock()
		return
	}

	now := Now()
	t.presences[key][clientID] = Connection{
		Key:       key,
		ClientID:  clientID,
		Since:     now,
		LastSeen:  now,
		UserAgent: userAgent,
	}
	count := len(t.presences[key])
	t.mu.Unlock()

	if cameOnline {
		t.logger.Info("User came online", "usertag", key, "client_id", clientID)
		t.publish(TopicUserOnline, Transition{Key: key, ClientID: clientID, Connections: count})
		return
	}
	t.logger.Debug("Adding additional connection for user", "usertag", key, "connections", count)
}

// Touch refreshes the last-seen time of a connection.
func (t *Tracker) Touch(clientID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key, ok := t.clients[clientID]
	if !ok {
		return
	}
	if c, ok := t.presences[key][clientID]; ok {
		c.LastSeen = Now()
		t.presences[key][clientID] = c
	}
}

// Disconnect removes a connection. When it was the identity's last one the
// offline transition is published after the debounce delay.
func (t *Tracker) Disconnect(clientID string) {
	t.mu.Lock()
	key, ok := t.clients[clientID]
	if !ok {
		t.mu.Unlock()
		return
	}
	offline := t.removeClientLocked(key, clientID)
	t.mu.Unlock()

	if offline {
		t.logger.Info("User went offline", "usertag", key)
		t.publish(TopicUserOffline, Transition{Key: key, ClientID: clientID})
	}
}

// removeClientLocked drops one connection and reports whether the identity
// went offline immediately (debounce disabled).
func (t *Tracker) removeClientLocked(key, clientID string) bool {
	delete(t.clients, clientID)
	conns, exists := t.presences[key]
	if !exists {
		return false
	}
	delete(conns, clientID)
	t.logger.Info("Client disconnected", "usertag", key, "client_id", clientID, "remaining_connections", len(conns))
	if len(conns) > 0 {
		return false
	}

	delete(t.presences, key)
	if t.offlineDebounceDelay == 0 {
		return true
	}

	if timer, exists := t.offlineDebounce[key]; exists {
		timer.Stop()
	}
	t.logger.Debug("User has no more connections, scheduling offline event",
		"usertag", key, "debounce_delay", t.offlineDebounceDelay)
	t.offlineDebounce[key] = time.AfterFunc(t.offlineDebounceDelay, func() {
		t.handleDebouncedOffline(key)
	})
	return false
}

// handleDebouncedOffline is called after the debounce period to mark a user as offline
func (t *Tracker) handleDebouncedOffline(key string) {
	t.mu.Lock()
	if _, pending := t.offlineDebounce[key]; !pending {
		// Cancelled by a reconnect that raced the timer.
		t.mu.Unlock()
		return
	}
	delete(t.offlineDebounce, key)
	if len(t.presences[key]) > 0 {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.logger.Info("User went offline after debounce period", "usertag", key)
	t.publish(TopicUserOffline, Transition{Key: key})
}

// IsOnline reports whether key has at least one connection or is still
// within its offline debounce.
func (t *Tracker) IsOnline(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, debouncing := t.offlineDebounce[key]
	return len(t.presences[key]) > 0 || debouncing
}

// Connections returns the number of open connections of key.
func (t *Tracker) Connections(key string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.presences[key])
}

// OnlineUsers returns the identities considered online, sorted.
func (t *Tracker) OnlineUsers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]string, 0, len(t.presences)+len(t.offlineDebounce))
	for key, conns := range t.presences {
		if len(conns) > 0 {
			result = append(result, key)
		}
	}
	for key := range t.offlineDebounce {
		if len(t.presences[key]) == 0 {
			result = append(result, key)
		}
	}
	slices.Sort(result)
	return result
}

// KeyFor returns the identity behind a client connection.
func (t *Tracker) KeyFor(clientID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key, ok := t.clients[clientID]
	return key, ok
}

func (t *Tracker) publish(event pubsub.Event[Transition], tr Transition) {
	if t.publisher == nil {
		return
	}
	if err := pubsub.Publish(context.Background(), t.publisher, event, tr); err != nil {
		t.logger.Error("Failed to publish presence transition", "topic", event.Name(), "error", err)
	}
}

// startCleanup runs periodic cleanup of stale connections
func (t *Tracker) startCleanup() {
	for {
		select {
		case <-t.cleanupTicker.C:
			t.cleanupStale()
		case <-t.stopCleanup:
			t.cleanupTicker.Stop()
			return
		}
	}
}

// cleanupStale removes connections that haven't been touched recently.
func (t *Tracker) cleanupStale() {
	threshold := Now().Add(-t.staleThreshold)

	t.mu.RLock()
	var stale []string
	for _, conns := range t.presences {
		for clientID, c := range conns {
			if c.LastSeen.Before(threshold) {
				stale = append(stale, clientID)
			}
		}
	}
	t.mu.RUnlock()

	if len(stale) == 0 {
		return
	}
	t.logger.Info("Cleaning up stale connections", "connections", len(stale))
	for _, clientID := range stale {
		t.Disconnect(clientID)
	}
}

// Shutdown stops the cleanup loop and all debounce timers.
func (t *Tracker) Shutdown() {
	t.stopOnce.Do(func() {
		close(t.stopCleanup)
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	for key, timer := range t.offlineDebounce {
		timer.Stop()
		delete(t.offlineDebounce, key)
	}
}
