// Package websocket is the server side of the real-time channel: it upgrades
// requests, keeps one read and one write pump per connection, publishes
// socket activity on the bus and fans frames out to connected clients.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nfrund/livedash/internal/pubsub"
)

// --- Configuration Constants ---
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// ErrHubClosed is returned by Serve after Close.
var ErrHubClosed = errors.New("websocket hub closed")

// Hub manages all WebSocket connections and routes socket activity to the
// bus.
type Hub struct {
	publisher pubsub.Publisher
	clients   *ClientManager
	whitelist *EventWhitelist
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithWhitelist replaces DefaultEventWhitelist.
func WithWhitelist(w *EventWhitelist) HubOption {
	return func(h *Hub) { h.whitelist = w }
}

// WithLogger sets the hub's logger.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates a hub that publishes activity on pub.
func NewHub(pub pubsub.Publisher, opts ...HubOption) *Hub {
	h := &Hub{
		publisher: pub,
		clients:   NewClientManager(),
		whitelist: DefaultEventWhitelist(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The reference backend serves local tools; origins are not checked.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: slog.Default().With("component", "websocket"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Clients exposes the connection registry.
func (h *Hub) Clients() *ClientManager {
	return h.clients
}

// Serve upgrades the request and runs the connection until it closes.
// session is the usertag of the request's session cookie, or "".
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, session string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return ErrHubClosed
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return err
	}

	client := &Client{
		ID:        uuid.NewString(),
		Session:   session,
		UserAgent: r.UserAgent(),
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}
	h.clients.Add(client)
	h.logger.Info("Client registered", "client_id", client.ID, "session", session)
	h.publish(Activity{Kind: ActivityReady, ClientID: client.ID, Session: session, UserAgent: client.UserAgent})

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(client)
	}()
	reason := h.readPump(client)

	h.clients.Remove(client.ID)
	<-done
	h.logger.Info("Client unregistered", "client_id", client.ID, "reason", reason)
	h.publish(Activity{Kind: ActivityClosed, ClientID: client.ID, Session: session, Reason: reason})
	return nil
}

// readPump reads frames and publishes the whitelisted ones.
func (h *Hub) readPump(client *Client) string {
	defer client.conn.Close()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "client_closed"
			}
			if websocket.IsUnexpectedCloseError(err) {
				h.logger.Debug("WebSocket read error", "client_id", client.ID, "error", err)
			}
			return "read_error"
		}
		_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))

		frame, err := Decode(raw)
		if err != nil {
			h.logger.Debug("Dropping malformed frame", "client_id", client.ID, "error", err)
			continue
		}
		if !h.whitelist.IsAllowed(frame.Event) {
			h.logger.Debug("Dropping frame with disallowed event", "client_id", client.ID, "event", frame.Event)
			continue
		}
		h.publish(Activity{
			Kind:     ActivityFrame,
			ClientID: client.ID,
			Session:  client.Session,
			Event:    frame.Event,
			Data:     frame.Data,
		})
	}
}

// writePump sends queued frames and keeps the connection alive with pings.
func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The manager closed the channel.
				_ = client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("WebSocket write error", "client_id", client.ID, "error", err)
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Broadcast sends event to every connected client.
func (h *Hub) Broadcast(event string, payload any) error {
	msg, err := Encode(event, payload)
	if err != nil {
		return err
	}
	clients := h.clients.GetAll()
	h.logger.Debug("Broadcasting to all clients", "event", event, "clients", len(clients))
	for _, c := range clients {
		c.SendMessage(msg)
	}
	return nil
}

// SendTo sends event to every connection of key and reports how many
// connections it was queued on.
func (h *Hub) SendTo(key, event string, payload any) (int, error) {
	msg, err := Encode(event, payload)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, c := range h.clients.GetByUser(key) {
		if c.SendMessage(msg) {
			sent++
		}
	}
	return sent, nil
}

// Close disconnects every client and waits for their pumps to finish.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	for _, c := range h.clients.GetAll() {
		h.clients.Remove(c.ID)
	}
	h.wg.Wait()
}

func (h *Hub) publish(a Activity) {
	if h.publisher == nil {
		return
	}
	if err := pubsub.Publish(context.Background(), h.publisher, TopicActivity, a); err != nil {
		h.logger.Error("Failed to publish socket activity", "kind", a.Kind, "client_id", a.ClientID, "error", err)
	}
}
