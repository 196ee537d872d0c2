package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/livedash/internal/api"
	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/events"
)

type mockBackend struct {
	mu       sync.Mutex
	status   api.Status
	err      error
	loginErr error
	logins   int
	logouts  int
	cookie   string
}

func (m *mockBackend) Status(context.Context) (api.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.err
}

func (m *mockBackend) Login(_ context.Context, username, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins++
	if m.loginErr != nil {
		return m.loginErr
	}
	m.status = api.Status{LoggedIn: true, Identity: domain.Identity{Key: username}}
	return nil
}

func (m *mockBackend) Logout(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logouts++
	return nil
}

func (m *mockBackend) SetCookie(raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookie = raw
}

func (m *mockBackend) CookieHeader() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cookie
}

type emitted struct {
	event   string
	payload any
}

type mockAnnouncer struct {
	mu    sync.Mutex
	calls []emitted
}

func (m *mockAnnouncer) Emit(event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, emitted{event, payload})
	return nil
}

func TestResolve_LoggedIn(t *testing.T) {
	backend := &mockBackend{status: api.Status{
		LoggedIn: true,
		Identity: domain.Identity{Key: "alice", DisplayName: "Alice", AnimatedColors: []string{}},
	}}
	ann := &mockAnnouncer{}
	p := New(backend, ann)

	st, err := p.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", st.Identity.Key)
	assert.Equal(t, "alice", p.Identity().Key)

	require.Len(t, ann.calls, 1)
	assert.Equal(t, "connect_user", ann.calls[0].event)
	assert.Equal(t, events.ConnectUser{Key: "alice"}, ann.calls[0].payload)
}

func TestResolve_NotLoggedIn(t *testing.T) {
	ann := &mockAnnouncer{}
	p := New(&mockBackend{}, ann)

	_, err := p.Resolve(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotLoggedIn)
	assert.False(t, p.Identity().LoggedIn())
	assert.Empty(t, ann.calls, "anonymous sessions are not announced")
}

func TestResolve_BackendError(t *testing.T) {
	p := New(&mockBackend{err: errors.New("connection refused")}, nil)
	_, err := p.Resolve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve session")
}

func TestLoginAndLogout(t *testing.T) {
	backend := &mockBackend{}
	ann := &mockAnnouncer{}
	p := New(backend, ann)
	ctx := context.Background()

	_, err := p.Login(ctx, "  ", "pw")
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	assert.Zero(t, backend.logins)

	id, err := p.Login(ctx, "bob", "pw")
	require.NoError(t, err)
	assert.Equal(t, "bob", id.Key)
	assert.Len(t, ann.calls, 1)

	require.NoError(t, p.Logout(ctx))
	assert.Equal(t, 1, backend.logouts)
	assert.False(t, p.Identity().LoggedIn())
}

func TestLogin_Failure(t *testing.T) {
	backend := &mockBackend{loginErr: &api.StatusError{Method: "POST", Path: "/api/auth/login", Code: 401}}
	p := New(backend, nil)

	_, err := p.Login(context.Background(), "bob", "wrong")
	assert.ErrorIs(t, err, domain.ErrNotLoggedIn)
}

func TestLoadCookieFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cookie.txt", []byte("# exported\nsession=abc;\n\ntheme=dark\n"), 0o600))

	backend := &mockBackend{}
	p := New(backend, nil, WithFs(fs))

	cookie, err := p.LoadCookieFile("/cookie.txt")
	require.NoError(t, err)
	assert.Equal(t, "session=abc; theme=dark", cookie)
	assert.Equal(t, cookie, p.Cookie())

	_, err = p.LoadCookieFile("/missing.txt")
	assert.Error(t, err)
}

func TestWatchCookieFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cookie")
	require.NoError(t, os.WriteFile(path, []byte("session=one"), 0o600))

	backend := &mockBackend{}
	p := New(backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan string, 4)
	require.NoError(t, p.WatchCookieFile(ctx, path, func(c string) { changes <- c }))
	assert.Equal(t, "session=one", backend.CookieHeader())

	require.NoError(t, os.WriteFile(path, []byte("session=two"), 0o600))

	select {
	case c := <-changes:
		assert.Equal(t, "session=two", c)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for cookie change")
	}
	assert.Equal(t, "session=two", backend.CookieHeader())
}

func TestWatchCookieFile_MissingFile(t *testing.T) {
	p := New(&mockBackend{}, nil)
	err := p.WatchCookieFile(context.Background(), filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}

func TestAnnounce(t *testing.T) {
	backend := &mockBackend{}
	ann := &mockAnnouncer{}
	p := New(backend, ann)

	p.Announce()
	assert.Empty(t, ann.calls, "nothing to announce before resolve")

	backend.status = api.Status{LoggedIn: true, Identity: domain.Identity{Key: "carol"}}
	_, err := p.Resolve(context.Background())
	require.NoError(t, err)
	p.Announce()
	assert.Len(t, ann.calls, 2)
}
