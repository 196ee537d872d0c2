// Package server is the reference backend: an echo app with cookie sessions,
// the REST endpoints the dashboard client calls, and a websocket hub at the
// socket path that fans presence, chat, friend requests, broadcasts and bot
// output out to every connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/livedash/internal/bots"
	"github.com/nfrund/livedash/internal/config"
	"github.com/nfrund/livedash/internal/database"
	"github.com/nfrund/livedash/internal/events"
	"github.com/nfrund/livedash/internal/handlers"
	appmiddleware "github.com/nfrund/livedash/internal/middleware"
	"github.com/nfrund/livedash/internal/presence"
	"github.com/nfrund/livedash/internal/pubsub"
	"github.com/nfrund/livedash/internal/rendering"
	"github.com/nfrund/livedash/internal/websocket"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E       *echo.Echo
	Cfg     *config.Config
	Store   *database.Store
	Hub     *websocket.Hub
	Tracker *presence.Tracker
	Bots    *bots.Runner

	bus     pubsub.Bus
	logger  *slog.Logger
	cancel  context.CancelFunc
	stopped sync.Once
}

// Option configures a Server.
type Option func(*options)

type options struct {
	users     []database.User
	fs        afero.Fs
	tracer    trace.Tracer
	loginRate float64
}

// WithUsers replaces database.DefaultUsers.
func WithUsers(users []database.User) Option {
	return func(o *options) { o.users = users }
}

// WithFs sets the filesystem bot scripts are loaded from.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithTracer traces bus deliveries.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithLoginRate sets the login attempts allowed per second per IP.
func WithLoginRate(perSecond float64) Option {
	return func(o *options) { o.loginRate = perSecond }
}

// New creates a new Server instance and starts its bus subscriptions.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	o := options{users: database.DefaultUsers(), fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}

	// Publishes block until handled so each socket's activity is applied in
	// the order it happened.
	bus := pubsub.NewOrderedWatermillBridge(o.tracer)

	s := &Server{
		Cfg:     cfg,
		Store:   database.NewStore(o.users),
		Tracker: presence.NewTracker(bus, presence.WithOfflineDebounce(cfg.DevServer.OfflineDebounce)),
		bus:     bus,
		logger:  slog.Default().With("component", "server"),
	}
	s.Hub = websocket.NewHub(bus)
	s.Bots = bots.New(o.fs, cfg.DevServer.BotsDir, s.emitBotLog)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if err := s.subscribe(ctx); err != nil {
		cancel()
		_ = bus.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()
	e.Renderer = rendering.New()
	e.Use(middleware.RequestID())
	e.Use(appmiddleware.Logger)
	e.Use(middleware.Recover())

	// Configure and use session middleware
	store := sessions.NewCookieStore([]byte(cfg.DevServer.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	e.Use(session.Middleware(store))

	s.E = e
	s.RegisterRoutes(o.loginRate)
	return s, nil
}

func (s *Server) emitBotLog(script, output string) {
	if err := s.Hub.Broadcast(events.TopicBotLog.Name(), events.BotLog{Script: script, Output: output}); err != nil {
		s.logger.Error("Failed to broadcast bot output", "script", script, "error", err)
	}
}

// Handler returns the HTTP handler, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.E
}

// Shutdown stops accepting requests, closes every socket and stops the bots.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopped.Do(func() {
		if shutdownErr := s.E.Shutdown(ctx); shutdownErr != nil && !errors.Is(shutdownErr, http.ErrServerClosed) {
			err = shutdownErr
		}
		s.Bots.Shutdown()
		s.Hub.Close()
		s.cancel()
		s.Tracker.Shutdown()
		if closeErr := s.bus.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}
