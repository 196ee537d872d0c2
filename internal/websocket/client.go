package websocket

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Client represents a single connected WebSocket client.
type Client struct {
	ID        string
	UserAgent string
	// Session is the usertag of the session cookie the socket was opened
	// with, or "" for anonymous sockets.
	Session string

	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	key  string
}

// Key returns the identity the client announced, falling back to Session.
func (c *Client) Key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.key != "" {
		return c.key
	}
	return c.Session
}

// SetKey records the identity announced with connect_user.
func (c *Client) SetKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = key
}

// SendMessage safely sends a message to the client's send channel.
// It uses a read lock to ensure the channel is not closed concurrently.
func (c *Client) SendMessage(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// If the channel is nil, it means the client is disconnected.
	if c.send == nil {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		slog.Warn("Client send channel full, dropping message", "client_id", c.ID)
		return false
	}
}

// Close safely closes the client's send channel.
// It uses a write lock to prevent other operations during closing.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.send != nil {
		close(c.send)
		c.send = nil // Set to nil to prevent further use
	}
}
