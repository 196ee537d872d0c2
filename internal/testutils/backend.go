package testutils

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nfrund/livedash/internal/api"
	"github.com/nfrund/livedash/internal/config"
	"github.com/nfrund/livedash/internal/server"
)

// Password is the password of every default account.
const Password = "password"

// Backend is a reference backend running on httptest.
type Backend struct {
	*server.Server
	HTTP *httptest.Server
	Cfg  *config.Config
}

// StartBackend starts a reference backend with the default accounts. The
// offline debounce is disabled so presence transitions are immediate.
func StartBackend(t *testing.T, opts ...server.Option) *Backend {
	t.Helper()

	cfg := config.Defaults()
	cfg.DevServer.OfflineDebounce = 0
	opts = append([]server.Option{server.WithLoginRate(1000)}, opts...)

	srv, err := server.New(cfg, opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	cfg.BaseURL = ts.URL

	b := &Backend{Server: srv, HTTP: ts, Cfg: cfg}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})
	return b
}

// URL is the backend's base URL.
func (b *Backend) URL() string {
	return b.HTTP.URL
}

// Login returns an API client logged in as user.
func (b *Backend) Login(t *testing.T, user string) *api.Client {
	t.Helper()
	client, err := api.New(b.URL())
	require.NoError(t, err)
	require.NoError(t, client.Login(context.Background(), user, Password))
	return client
}

// ClientConfig returns a client configuration pointing at the backend with
// cookie as the session.
func (b *Backend) ClientConfig(cookie string) *config.Config {
	cfg := config.Defaults()
	cfg.BaseURL = b.URL()
	cfg.Cookie = cookie
	cfg.ToastDuration = time.Hour
	cfg.BannerDuration = time.Hour
	return cfg
}
