package testutils

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/livedash/internal/transport"
)

// RawSocket is a bare websocket connection to the backend, for driving the
// other side of a conversation in tests.
type RawSocket struct {
	*websocket.Conn
	t *testing.T
}

// Dial opens a socket with cookie as the session.
func (b *Backend) Dial(t *testing.T, cookie string) *RawSocket {
	t.Helper()
	url := "ws" + strings.TrimPrefix(b.URL(), "http") + b.Cfg.SocketPath
	header := http.Header{}
	if cookie != "" {
		header.Set("Cookie", cookie)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &RawSocket{Conn: conn, t: t}
}

// Connect dials as user, announces presence and waits until the backend
// counts the new connection.
func (b *Backend) Connect(t *testing.T, user string) *RawSocket {
	t.Helper()
	before := b.Tracker.Connections(user)
	sock := b.Dial(t, b.Login(t, user).CookieHeader())
	sock.Emit("connect_user", map[string]string{"usertag": user})
	require.Eventually(t, func() bool {
		return b.Tracker.Connections(user) > before
	}, 3*time.Second, 10*time.Millisecond, "%s never came online", user)
	return sock
}

// Emit writes one frame.
func (s *RawSocket) Emit(event string, payload any) {
	s.t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(s.t, err)
	frame, err := json.Marshal(transport.Frame{Event: event, Data: data})
	require.NoError(s.t, err)
	require.NoError(s.t, s.WriteMessage(websocket.TextMessage, frame))
}

// Next reads frames until one named event arrives and returns its data.
func (s *RawSocket) Next(event string) json.RawMessage {
	s.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(s.t, s.SetReadDeadline(deadline))
		_, raw, err := s.ReadMessage()
		require.NoError(s.t, err, "waiting for %s", event)
		var f transport.Frame
		require.NoError(s.t, json.Unmarshal(raw, &f))
		if f.Event == event {
			return f.Data
		}
	}
}

// Leave closes the socket cleanly.
func (s *RawSocket) Leave() {
	_ = s.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	_ = s.Close()
}
