// Package session resolves who the current session belongs to and keeps the
// session cookie current.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/nfrund/livedash/internal/api"
	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/events"
)

// Backend is the subset of the REST client the provider needs.
type Backend interface {
	Status(ctx context.Context) (api.Status, error)
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	SetCookie(raw string)
	CookieHeader() string
}

// Announcer emits the presence announcement.
type Announcer interface {
	Emit(event string, payload any) error
}

// Provider owns the current identity.
type Provider struct {
	backend   Backend
	announcer Announcer
	fs        afero.Fs
	logger    *slog.Logger

	mu       sync.RWMutex
	identity domain.Identity
	status   api.Status
}

// Option configures a Provider.
type Option func(*Provider)

// WithFs sets the filesystem cookie files are read from.
func WithFs(fs afero.Fs) Option {
	return func(p *Provider) { p.fs = fs }
}

// WithLogger sets the provider's logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates a provider. announcer may be nil, in which case Resolve does not
// announce presence.
func New(backend Backend, announcer Announcer, opts ...Option) *Provider {
	p := &Provider{
		backend:   backend,
		announcer: announcer,
		fs:        afero.NewOsFs(),
		logger:    slog.Default().With("component", "session"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve issues one status query and stores the result. A session without a
// user yields domain.ErrNotLoggedIn together with the (empty) status. A
// resolved identity is announced with connect_user.
func (p *Provider) Resolve(ctx context.Context) (api.Status, error) {
	st, err := p.backend.Status(ctx)
	if err != nil {
		return api.Status{}, fmt.Errorf("resolve session: %w", err)
	}

	p.mu.Lock()
	p.status = st
	p.identity = st.Identity
	p.mu.Unlock()

	if !st.LoggedIn || !st.Identity.LoggedIn() {
		p.logger.Debug("Session is not logged in")
		return st, domain.ErrNotLoggedIn
	}

	p.logger.Info("Session resolved", "usertag", st.Identity.Key, "admin", st.Identity.Admin())
	p.announce(st.Identity.Key)
	return st, nil
}

// Announce repeats the presence announcement for the current identity. The
// shell calls it on every reconnect.
func (p *Provider) Announce() {
	if id := p.Identity(); id.LoggedIn() {
		p.announce(id.Key)
	}
}

func (p *Provider) announce(key string) {
	if p.announcer == nil {
		return
	}
	if err := p.announcer.Emit(events.TopicConnectUser.Name(), events.ConnectUser{Key: key}); err != nil {
		p.logger.Debug("Presence announce failed", "usertag", key, "error", err)
	}
}

// Login posts credentials and re-resolves the session.
func (p *Provider) Login(ctx context.Context, username, password string) (domain.Identity, error) {
	if strings.TrimSpace(username) == "" {
		return domain.Identity{}, fmt.Errorf("login: %w: username required", domain.ErrInvalidPayload)
	}
	if err := p.backend.Login(ctx, username, password); err != nil {
		return domain.Identity{}, fmt.Errorf("login %s: %w", username, err)
	}
	st, err := p.Resolve(ctx)
	if err != nil {
		return domain.Identity{}, err
	}
	return st.Identity, nil
}

// Logout ends the session. The identity is cleared even when the request fails.
func (p *Provider) Logout(ctx context.Context) error {
	err := p.backend.Logout(ctx)

	p.mu.Lock()
	p.identity = domain.Identity{}
	p.status = api.Status{}
	p.mu.Unlock()

	if err != nil && !errors.Is(err, domain.ErrNotLoggedIn) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Identity returns the last resolved identity.
func (p *Provider) Identity() domain.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

// Status returns the last status response.
func (p *Provider) Status() api.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// Cookie returns the session cookie header for the socket handshake.
func (p *Provider) Cookie() string {
	return p.backend.CookieHeader()
}

// SetCookie installs a raw cookie header.
func (p *Provider) SetCookie(raw string) {
	p.backend.SetCookie(raw)
}

// LoadCookieFile reads a cookie file and installs its contents. Lines starting
// with '#' and blank lines are ignored; the remaining lines are joined as one
// Cookie header.
func (p *Provider) LoadCookieFile(path string) (string, error) {
	cookie, err := p.readCookieFile(path)
	if err != nil {
		return "", err
	}
	p.backend.SetCookie(cookie)
	return cookie, nil
}

func (p *Provider) readCookieFile(path string) (string, error) {
	return ReadCookieFile(p.fs, path)
}

// ReadCookieFile reads a cookie file in the format LoadCookieFile accepts.
func ReadCookieFile(fs afero.Fs, path string) (string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("read cookie file: %w", err)
	}
	return parseCookieFile(string(data)), nil
}

func parseCookieFile(s string) string {
	var parts []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts = append(parts, strings.TrimSuffix(line, ";"))
	}
	return strings.Join(parts, "; ")
}
