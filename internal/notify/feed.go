// Package notify holds the notification feed: a capped newest-first list of
// alerts, the transient toasts that pop for each new entry, and the system
// banner.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/pubsub"
)

const (
	DefaultCap            = 50
	DefaultToastDuration  = 3 * time.Second
	DefaultBannerDuration = 5 * time.Second
)

// Clearer persists the "seen" state on the backend.
type Clearer interface {
	ClearNotifications(ctx context.Context) error
}

// Feed is safe for concurrent use. Timers run on their own goroutines.
type Feed struct {
	mu      sync.Mutex
	items   []domain.Notification // newest first
	ids     map[string]struct{}
	toasts  []domain.Notification
	timers  map[string]toastTimer
	tSeq    uint64
	banner  string
	visible bool
	bTimer  *time.Timer
	bSeq    uint64
	closed  bool

	cap            int
	toastDuration  time.Duration
	bannerDuration time.Duration
	clearer        Clearer
	notifier       pubsub.Notifier
	now            func() time.Time
	newID          func() string
	logger         *slog.Logger
	pending        sync.WaitGroup
}

type toastTimer struct {
	timer *time.Timer
	seq   uint64
}

// Option configures a Feed.
type Option func(*Feed)

// WithCap bounds the feed; appends beyond it drop the oldest entries.
func WithCap(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.cap = n
		}
	}
}

// WithToastDuration sets how long each toast stays up.
func WithToastDuration(d time.Duration) Option {
	return func(f *Feed) { f.toastDuration = d }
}

// WithBannerDuration sets how long the system banner stays up.
func WithBannerDuration(d time.Duration) Option {
	return func(f *Feed) { f.bannerDuration = d }
}

// WithClearer sets the backend call fired by Clear.
func WithClearer(c Clearer) Option {
	return func(f *Feed) { f.clearer = c }
}

// WithPublisher publishes feed changes on pub.
func WithPublisher(pub pubsub.Publisher) Option {
	return func(f *Feed) { f.notifier = pubsub.NewNotifier(pub, f.logger.Warn) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// New creates an empty feed.
func New(opts ...Option) *Feed {
	f := &Feed{
		ids:            make(map[string]struct{}),
		timers:         make(map[string]toastTimer),
		cap:            DefaultCap,
		toastDuration:  DefaultToastDuration,
		bannerDuration: DefaultBannerDuration,
		now:            time.Now,
		newID:          uuid.NewString,
		logger:         slog.Default().With("component", "notify"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Append prepends n and pops it as a toast. An empty ID is generated; a
// duplicate ID is ignored. It reports whether n was added.
func (f *Feed) Append(n domain.Notification) bool {
	f.mu.Lock()
	added := f.appendLocked(&n)
	count := len(f.items)
	f.mu.Unlock()

	if !added {
		return false
	}
	ctx := context.Background()
	pubsub.Emit(ctx, f.notifier, TopicFeedChanged, FeedChanged{Count: count, Newest: n.ID})
	pubsub.Emit(ctx, f.notifier, TopicToastShown, n)
	return true
}

// Seed loads notifications returned by the status query, given newest first.
func (f *Feed) Seed(list []domain.Notification) {
	for i := len(list) - 1; i >= 0; i-- {
		f.Append(list[i])
	}
}

func (f *Feed) appendLocked(n *domain.Notification) bool {
	if f.closed {
		return false
	}
	if n.ID == "" {
		n.ID = f.newID()
	}
	if _, dup := f.ids[n.ID]; dup {
		return false
	}
	if n.CreatedAt.IsZero() {
		if n.Timestamp > 0 {
			n.CreatedAt = time.UnixMilli(n.Timestamp)
		} else {
			n.CreatedAt = f.now()
		}
	}
	n.Timestamp = n.CreatedAt.UnixMilli()

	f.items = append([]domain.Notification{*n}, f.items...)
	f.ids[n.ID] = struct{}{}
	for len(f.items) > f.cap {
		oldest := f.items[len(f.items)-1]
		f.items = f.items[:len(f.items)-1]
		delete(f.ids, oldest.ID)
	}

	id := n.ID
	// A toast still up from before a Clear restarts with the new entry.
	if old, ok := f.timers[id]; ok {
		old.timer.Stop()
		f.dropToastLocked(id)
	}
	f.tSeq++
	seq := f.tSeq
	f.toasts = append([]domain.Notification{*n}, f.toasts...)
	f.timers[id] = toastTimer{
		timer: time.AfterFunc(f.toastDuration, func() { f.expire(id, seq) }),
		seq:   seq,
	}
	return true
}

func (f *Feed) expire(id string, seq uint64) {
	f.mu.Lock()
	if t, ok := f.timers[id]; !ok || t.seq != seq {
		f.mu.Unlock()
		return
	}
	delete(f.timers, id)
	f.dropToastLocked(id)
	f.mu.Unlock()

	pubsub.Emit(context.Background(), f.notifier, TopicToastExpired, ToastExpired{ID: id})
}

// Items returns the feed, newest first.
func (f *Feed) Items() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Notification, len(f.items))
	copy(out, f.items)
	return out
}

// Len returns the badge count.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Toasts returns the notifications currently popped, newest first.
func (f *Feed) Toasts() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Notification, len(f.toasts))
	copy(out, f.toasts)
	return out
}

// ShowBanner displays text as the system banner. A new banner replaces the
// current one and restarts the timer.
func (f *Feed) ShowBanner(text string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.bTimer != nil {
		f.bTimer.Stop()
	}
	f.bSeq++
	seq := f.bSeq
	f.banner, f.visible = text, true
	f.bTimer = time.AfterFunc(f.bannerDuration, func() { f.hideBanner(seq) })
	f.mu.Unlock()

	pubsub.Emit(context.Background(), f.notifier, TopicBannerChanged, BannerChanged{Text: text, Visible: true})
}

func (f *Feed) hideBanner(seq uint64) {
	f.mu.Lock()
	if seq != f.bSeq || !f.visible {
		f.mu.Unlock()
		return
	}
	f.visible = false
	f.bTimer = nil
	text := f.banner
	f.mu.Unlock()

	pubsub.Emit(context.Background(), f.notifier, TopicBannerChanged, BannerChanged{Text: text, Visible: false})
}

// Banner returns the banner text and whether it is visible.
func (f *Feed) Banner() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.visible {
		return "", false
	}
	return f.banner, true
}

// Clear empties the feed and fires one best-effort backend clear in the
// background. Clearing an empty feed does not call the backend. Failures are
// logged, never returned.
func (f *Feed) Clear(ctx context.Context) {
	f.mu.Lock()
	had := len(f.items)
	f.items = nil
	f.ids = make(map[string]struct{})
	f.mu.Unlock()

	if had == 0 {
		return
	}
	pubsub.Emit(ctx, f.notifier, TopicFeedChanged, FeedChanged{Count: 0})

	if f.clearer == nil {
		return
	}
	f.pending.Add(1)
	go func() {
		defer f.pending.Done()
		if err := f.clearer.ClearNotifications(context.WithoutCancel(ctx)); err != nil {
			f.logger.Warn("Notification clear failed", "error", err)
		}
	}()
}

// Reset drops every notification and toast without telling the backend. It is
// used when the session switches to another identity.
func (f *Feed) Reset() {
	f.mu.Lock()
	had := len(f.items)
	f.items = nil
	f.ids = make(map[string]struct{})
	f.stopTimersLocked()
	f.mu.Unlock()

	if had > 0 {
		pubsub.Emit(context.Background(), f.notifier, TopicFeedChanged, FeedChanged{Count: 0})
	}
}

// Wait blocks until background clear calls have returned.
func (f *Feed) Wait() {
	f.pending.Wait()
}

// Close cancels every toast and banner timer. Later appends are ignored.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.stopTimersLocked()
}

func (f *Feed) dropToastLocked(id string) {
	for i, t := range f.toasts {
		if t.ID == id {
			f.toasts = append(f.toasts[:i:i], f.toasts[i+1:]...)
			return
		}
	}
}

func (f *Feed) stopTimersLocked() {
	for id, t := range f.timers {
		t.timer.Stop()
		delete(f.timers, id)
	}
	f.toasts = nil
	if f.bTimer != nil {
		f.bTimer.Stop()
		f.bTimer = nil
	}
	f.visible = false
}
