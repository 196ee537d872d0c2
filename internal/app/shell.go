// Package app assembles the session-scoped client: the transport, the stores
// fed by it and the actions surfaces call.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nfrund/livedash/internal/api"
	"github.com/nfrund/livedash/internal/botlog"
	"github.com/nfrund/livedash/internal/chat"
	"github.com/nfrund/livedash/internal/config"
	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/events"
	"github.com/nfrund/livedash/internal/multiplexer"
	"github.com/nfrund/livedash/internal/notify"
	"github.com/nfrund/livedash/internal/presence"
	"github.com/nfrund/livedash/internal/pubsub"
	"github.com/nfrund/livedash/internal/session"
	"github.com/nfrund/livedash/internal/transport"
)

// Shell owns every component of one client session.
type Shell struct {
	injector *do.RootScope
	logger   *slog.Logger
	ownsBus  bool

	cfg      *config.Config
	bus      pubsub.Bus
	client   *api.Client
	socket   *transport.Socket
	roster   *presence.Roster
	feed     *notify.Feed
	chat     *chat.Store
	bots     *botlog.Store
	mux      *multiplexer.Mux
	sessions *session.Provider

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	shutdown bool
	wg       sync.WaitGroup
}

// New builds a shell. Nothing touches the network until Start.
func New(deps Dependencies) (*Shell, error) {
	if deps.Config == nil {
		deps.Config = config.Defaults()
	}
	if err := deps.Config.Validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("livedash")
	}
	ownsBus := deps.Bus == nil
	if ownsBus {
		deps.Bus = pubsub.NewWatermillBridgeWithTracer(deps.Tracer)
	}

	injector := do.New()
	register(injector, deps)

	s := &Shell{
		injector: injector,
		logger:   deps.Logger.With("component", "shell"),
		ownsBus:  ownsBus,
		cfg:      deps.Config,
		bus:      deps.Bus,
	}

	var err error
	if s.client, err = do.Invoke[*api.Client](injector); err != nil {
		return nil, fmt.Errorf("build api client: %w", err)
	}
	if s.socket, err = do.Invoke[*transport.Socket](injector); err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	s.roster = do.MustInvoke[*presence.Roster](injector)
	s.feed = do.MustInvoke[*notify.Feed](injector)
	s.chat = do.MustInvoke[*chat.Store](injector)
	s.bots = do.MustInvoke[*botlog.Store](injector)
	s.mux = do.MustInvoke[*multiplexer.Mux](injector)
	s.sessions = do.MustInvoke[*session.Provider](injector)

	s.socket.OnState(func(st transport.State) {
		if st == transport.StateConnected {
			s.sessions.Announce()
		}
	})
	return s, nil
}

// Start connects the transport, resolves the identity and binds the
// multiplexer. A session without a user returns domain.ErrNotLoggedIn; the
// shell stays usable for Login.
func (s *Shell) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return transport.ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	runCtx := s.ctx
	s.mu.Unlock()

	if err := s.loadCookie(runCtx); err != nil {
		return err
	}
	s.socket.SetCookie(s.sessions.Cookie())
	if err := s.socket.Connect(runCtx); err != nil {
		return fmt.Errorf("connect transport: %w", err)
	}

	st, err := s.sessions.Resolve(ctx)
	if err != nil {
		return err
	}
	s.bind(st)
	return nil
}

func (s *Shell) loadCookie(ctx context.Context) error {
	switch {
	case s.cfg.CookieFile != "":
		err := s.sessions.WatchCookieFile(ctx, s.cfg.CookieFile, func(string) {
			if err := s.Rebind(ctx); err != nil && !errors.Is(err, domain.ErrNotLoggedIn) {
				s.logger.Warn("Rebind after cookie change failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("load cookie file: %w", err)
		}
	case s.cfg.Cookie != "":
		s.sessions.SetCookie(s.cfg.Cookie)
	}
	return nil
}

// bind attaches the multiplexer to st's identity and seeds the stores.
func (s *Shell) bind(st api.Status) {
	s.mux.Bind(st.Identity)
	s.feed.Seed(st.Notifications)

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.roster.Seed(ctx, s.client)
	}()
}

// Login authenticates, reconnects the transport with the new cookie and
// rebinds to the new identity.
func (s *Shell) Login(ctx context.Context, username, password string) (domain.Identity, error) {
	prev := s.mux.Identity()
	if _, err := s.sessions.Login(ctx, username, password); err != nil {
		return domain.Identity{}, err
	}
	st := s.sessions.Status()
	s.switchIdentity(prev, st)
	return st.Identity, nil
}

// Logout ends the session and detaches every handler.
func (s *Shell) Logout(ctx context.Context) error {
	err := s.sessions.Logout(ctx)
	s.switchIdentity(s.mux.Identity(), api.Status{})
	return err
}

// Rebind re-resolves the identity, for example after the cookie changed.
// Binding the same identity again is a no-op for the handlers.
func (s *Shell) Rebind(ctx context.Context) error {
	prev := s.mux.Identity()
	st, err := s.sessions.Resolve(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotLoggedIn) {
		return err
	}
	s.switchIdentity(prev, st)
	return err
}

// switchIdentity moves the shell from prev to the identity in st. Threads,
// notifications and the roster belong to a session and are dropped when the
// identity changes; the roster is reseeded on bind.
func (s *Shell) switchIdentity(prev domain.Identity, st api.Status) {
	next := st.Identity
	if prev.Key == next.Key && next.LoggedIn() {
		s.mux.Bind(next)
		return
	}

	s.logger.Info("Session identity changed", "from", prev.Key, "to", next.Key)
	s.mux.Unbind()
	s.chat.CloseAll()
	s.feed.Reset()
	s.roster.Reset()

	s.socket.SetCookie(s.sessions.Cookie())
	s.socket.Reconnect()

	if next.LoggedIn() {
		s.bind(st)
	}
}

func (s *Shell) self() (domain.Identity, error) {
	id := s.mux.Identity()
	if !id.LoggedIn() {
		return id, domain.ErrNotLoggedIn
	}
	return id, nil
}

// SendMessage emits a direct message to counterpart.
func (s *Shell) SendMessage(ctx context.Context, counterpart, text string) error {
	if _, err := s.self(); err != nil {
		return err
	}
	return s.chat.Send(ctx, counterpart, text, nil)
}

// OpenChat opens (or focuses) the thread with counterpart and loads history.
func (s *Shell) OpenChat(ctx context.Context, counterpart string) error {
	if _, err := s.self(); err != nil {
		return err
	}
	return s.chat.Open(ctx, counterpart)
}

// CloseChat discards the thread with counterpart.
func (s *Shell) CloseChat(counterpart string) {
	s.chat.Close(counterpart)
}

// ClearNotifications empties the feed; the backend call is best effort.
func (s *Shell) ClearNotifications(ctx context.Context) {
	s.feed.Clear(ctx)
}

// Broadcast sends a system message to every session. Only admins may.
func (s *Shell) Broadcast(_ context.Context, text string) error {
	id, err := s.self()
	if err != nil {
		return err
	}
	if !id.Admin() {
		return fmt.Errorf("broadcast as %s: %w", id.Key, domain.ErrForbidden)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyMessage
	}
	return s.socket.Emit(events.TopicSystemMessage.Name(), events.OutgoingBroadcast{Text: text})
}

// SendFriendRequest asks the backend to send a friend request to target. The
// backend announces it with a friend_request event.
func (s *Shell) SendFriendRequest(ctx context.Context, target string) error {
	id, err := s.self()
	if err != nil {
		return err
	}
	target = strings.TrimSpace(target)
	if target == "" || target == id.Key {
		return fmt.Errorf("friend request to %q: %w", target, domain.ErrInvalidPayload)
	}
	if err := s.client.AddFriend(ctx, target); err != nil {
		return fmt.Errorf("friend request to %s: %w", target, err)
	}
	return nil
}

// AcceptFriend accepts a pending request from requester.
func (s *Shell) AcceptFriend(ctx context.Context, requester string) error {
	if _, err := s.self(); err != nil {
		return err
	}
	return s.client.AcceptFriend(ctx, requester)
}

// RemoveFriend removes tag from the friend list.
func (s *Shell) RemoveFriend(ctx context.Context, tag string) error {
	if _, err := s.self(); err != nil {
		return err
	}
	return s.client.RemoveFriend(ctx, tag)
}

// Friends lists the current identity's friends.
func (s *Shell) Friends(ctx context.Context) ([]string, error) {
	if _, err := s.self(); err != nil {
		return nil, err
	}
	return s.client.Friends(ctx)
}

// FriendRequests lists pending incoming requests.
func (s *Shell) FriendRequests(ctx context.Context) ([]string, error) {
	if _, err := s.self(); err != nil {
		return nil, err
	}
	return s.client.FriendRequests(ctx)
}

// Conversations lists the message threads for the messages page.
func (s *Shell) Conversations(ctx context.Context) ([]domain.Conversation, error) {
	if _, err := s.self(); err != nil {
		return nil, err
	}
	return s.chat.Conversations(ctx)
}

// Identity returns the bound identity.
func (s *Shell) Identity() domain.Identity { return s.mux.Identity() }

// Socket returns the transport.
func (s *Shell) Socket() *transport.Socket { return s.socket }

// Roster returns the presence roster.
func (s *Shell) Roster() *presence.Roster { return s.roster }

// Feed returns the notification feed.
func (s *Shell) Feed() *notify.Feed { return s.feed }

// Chat returns the chat thread store.
func (s *Shell) Chat() *chat.Store { return s.chat }

// BotLog returns the bot log store.
func (s *Shell) BotLog() *botlog.Store { return s.bots }

// Bus returns the change bus surfaces subscribe to.
func (s *Shell) Bus() pubsub.Subscriber { return s.bus }

// Shutdown stops every timer and goroutine and closes the transport. It is
// safe to call more than once.
func (s *Shell) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.mux.Unbind()
	s.feed.Close()
	s.chat.CloseAll()
	if err := s.socket.Close(); err != nil {
		s.logger.Warn("Transport close failed", "error", err)
	}
	s.wg.Wait()
	s.feed.Wait()
	if s.ownsBus {
		if err := s.bus.Close(); err != nil {
			s.logger.Warn("Bus close failed", "error", err)
		}
	}
	s.injector.Shutdown()
	s.logger.Info("Shell shut down")
}
