package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/nfrund/livedash/internal/api"
	"github.com/nfrund/livedash/internal/app"
	"github.com/nfrund/livedash/internal/config"
	"github.com/nfrund/livedash/internal/logging"
	"github.com/nfrund/livedash/internal/pubsub"
	"github.com/nfrund/livedash/internal/session"
)

// effectTimeout bounds how long one-shot commands wait for the backend to
// echo what they sent.
const effectTimeout = 5 * time.Second

// loadConfig reads .env and the environment, applies the flags and validates.
func loadConfig() (*config.Config, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	if flagCookie != "" {
		cfg.Cookie = flagCookie
	}
	if flagCookieFile != "" {
		cfg.CookieFile = flagCookieFile
	}
	if flagSocketPath != "" {
		cfg.SocketPath = flagSocketPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// shellSession is one started shell plus the tracing cleanup.
type shellSession struct {
	*app.Shell
	logger  *slog.Logger
	cleanup func()
}

func (s *shellSession) Close() {
	s.Shell.Shutdown()
	s.cleanup()
}

// startShell builds and starts a shell; the result must be closed.
func startShell(ctx context.Context) (*shellSession, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithWriter(os.Stderr)

	tracer, cleanup, err := pubsub.SetupOTel(ctx, cfg.Tracing, version)
	if err != nil {
		return nil, fmt.Errorf("set up tracing: %w", err)
	}

	shell, err := app.New(app.Dependencies{Config: cfg, Logger: logger, Tracer: tracer})
	if err != nil {
		cleanup()
		return nil, err
	}
	s := &shellSession{Shell: shell, logger: logger, cleanup: cleanup}
	if err := shell.Start(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// awaitSocket waits until the transport is connected.
func (s *shellSession) awaitSocket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, effectTimeout)
	defer cancel()
	if err := s.Socket().AwaitConnected(ctx); err != nil {
		return fmt.Errorf("connect to backend: %w", err)
	}
	return nil
}

// restClient is an API client for commands that need no socket.
func restClient() (*api.Client, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logging.NewWithWriter(os.Stderr)

	client, err := api.New(cfg.BaseURL, api.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		return nil, nil, err
	}
	cookie := cfg.Cookie
	if cfg.CookieFile != "" {
		if cookie, err = session.ReadCookieFile(afero.NewOsFs(), cfg.CookieFile); err != nil {
			return nil, nil, err
		}
	}
	client.SetCookie(cookie)
	return client, cfg, nil
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(ctx context.Context, cond func() bool) bool {
	ctx, cancel := context.WithTimeout(ctx, effectTimeout)
	defer cancel()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return false
		case <-tick.C:
		}
	}
	return true
}
