package presence

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/nfrund/livedash/internal/pubsub"
)

// Fetcher returns the presence snapshot.
type Fetcher interface {
	OnlineUsers(ctx context.Context) ([]string, error)
}

// Roster is the client's set of online identity keys. Membership is a set,
// not a counter: repeated online events for one key collapse, and one offline
// event removes the key.
type Roster struct {
	mu     sync.RWMutex
	online map[string]struct{}
	seeded bool
	// touched collects keys changed by live events until the snapshot lands;
	// those keys are newer than the snapshot and it must not overwrite them.
	touched map[string]struct{}
	// epoch invalidates a snapshot still in flight when Reset runs.
	epoch    uint64
	notifier pubsub.Notifier
	logger   *slog.Logger
}

// RosterOption configures a Roster.
type RosterOption func(*Roster)

// WithPublisher publishes presence.roster.changed on pub.
func WithPublisher(pub pubsub.Publisher) RosterOption {
	return func(r *Roster) {
		r.notifier = pubsub.NewNotifier(pub, r.logger.Warn)
	}
}

// NewRoster creates an empty roster.
func NewRoster(opts ...RosterOption) *Roster {
	r := &Roster{
		online:  make(map[string]struct{}),
		touched: make(map[string]struct{}),
		logger:  slog.Default().With("component", "presence"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Seed merges the backend snapshot into the roster. It runs once per Reset;
// failures are logged and leave the roster as it is. Keys that live events
// changed before the snapshot arrived keep their live state.
func (r *Roster) Seed(ctx context.Context, f Fetcher) {
	r.mu.Lock()
	if r.seeded {
		r.mu.Unlock()
		return
	}
	r.seeded = true
	epoch := r.epoch
	r.mu.Unlock()

	keys, err := f.OnlineUsers(ctx)

	r.mu.Lock()
	if r.epoch != epoch {
		r.mu.Unlock()
		r.logger.Debug("Discarding presence snapshot from a previous session")
		return
	}
	touched := r.touched
	r.touched = nil
	if err != nil {
		r.mu.Unlock()
		r.logger.Warn("Presence snapshot failed", "error", err)
		return
	}
	for _, k := range keys {
		if _, live := touched[k]; k != "" && !live {
			r.online[k] = struct{}{}
		}
	}
	online := r.sortedLocked()
	r.mu.Unlock()

	r.logger.Debug("Presence roster seeded", "count", len(online))
	pubsub.Emit(ctx, r.notifier, TopicRosterChanged, RosterChanged{Change: "seed", Online: online})
}

// MarkOnline adds key. It reports whether the roster changed.
func (r *Roster) MarkOnline(key string) bool {
	if key == "" {
		return false
	}
	r.mu.Lock()
	r.touchLocked(key)
	if _, ok := r.online[key]; ok {
		r.mu.Unlock()
		return false
	}
	r.online[key] = struct{}{}
	online := r.sortedLocked()
	r.mu.Unlock()

	pubsub.Emit(context.Background(), r.notifier, TopicRosterChanged,
		RosterChanged{Change: "online", Key: key, Online: online})
	return true
}

// MarkOffline removes key. Removing an absent key is a no-op.
func (r *Roster) MarkOffline(key string) bool {
	r.mu.Lock()
	r.touchLocked(key)
	if _, ok := r.online[key]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.online, key)
	online := r.sortedLocked()
	r.mu.Unlock()

	pubsub.Emit(context.Background(), r.notifier, TopicRosterChanged,
		RosterChanged{Change: "offline", Key: key, Online: online})
	return true
}

// Reset empties the roster and rearms Seed, for a new session. A snapshot
// still in flight is discarded when it lands.
func (r *Roster) Reset() {
	r.mu.Lock()
	had := len(r.online) > 0
	r.online = make(map[string]struct{})
	r.touched = make(map[string]struct{})
	r.seeded = false
	r.epoch++
	r.mu.Unlock()

	if had {
		pubsub.Emit(context.Background(), r.notifier, TopicRosterChanged,
			RosterChanged{Change: "reset", Online: []string{}})
	}
}

func (r *Roster) touchLocked(key string) {
	if r.touched != nil {
		r.touched[key] = struct{}{}
	}
}

// Online returns the online keys in sorted order.
func (r *Roster) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

// IsOnline reports whether key is in the roster.
func (r *Roster) IsOnline(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.online[key]
	return ok
}

// Len returns the roster size.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.online)
}

func (r *Roster) sortedLocked() []string {
	out := make([]string, 0, len(r.online))
	for k := range r.online {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
