// Package transport provides the single shared real-time channel to the
// dashboard backend: a JSON-framed websocket that redials on failure and keeps
// its subscriptions across reconnects.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// ErrClosed is returned by Emit and Connect after Close.
var ErrClosed = errors.New("transport: socket closed")

// Frame is the envelope of every message on the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives the raw data of one named event. Handlers run on the
// socket's dispatch goroutine, one at a time, in arrival order.
type Handler func(ctx context.Context, data json.RawMessage)

// Subscription identifies one registered handler.
type Subscription struct {
	event string
	id    uint64
}

// Event returns the event name the subscription listens to.
func (s Subscription) Event() string { return s.event }

// State is the lifecycle state of the socket.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	defaultMinBackoff  = 500 * time.Millisecond
	defaultMaxBackoff  = 10 * time.Second
	defaultDialTimeout = 10 * time.Second
	writeWait          = 10 * time.Second
	readLimit          = 1 << 20
	sendBuffer         = 64
	inboxBuffer        = 256
)

type handlerEntry struct {
	id uint64
	fn Handler
}

// item is one unit of work for the dispatch goroutine.
type item struct {
	frame       []byte
	state       State
	stateChange bool
}

// Socket is an auto-reconnecting websocket client.
type Socket struct {
	url         string
	httpClient  *http.Client
	minBackoff  time.Duration
	maxBackoff  time.Duration
	dialTimeout time.Duration
	logger      *slog.Logger

	mu         sync.RWMutex
	header     http.Header
	handlers   map[string][]handlerEntry
	stateHooks []func(State)
	nextID     uint64
	state      State
	up         chan struct{}
	started    bool
	closed     bool

	ctx      context.Context
	cancel   context.CancelFunc
	dropConn context.CancelFunc
	send     chan []byte
	inbox    chan item
	wg       sync.WaitGroup
}

// Option configures a Socket.
type Option func(*Socket)

// WithHeader adds headers to every dial request.
func WithHeader(h http.Header) Option {
	return func(s *Socket) {
		for k, vs := range h {
			for _, v := range vs {
				s.header.Add(k, v)
			}
		}
	}
}

// WithCookie attaches a session cookie header to every dial request.
func WithCookie(cookie string) Option {
	return func(s *Socket) {
		if cookie != "" {
			s.header.Set("Cookie", cookie)
		}
	}
}

// WithBackoff sets the redial backoff bounds.
func WithBackoff(minDelay, maxDelay time.Duration) Option {
	return func(s *Socket) {
		if minDelay > 0 {
			s.minBackoff = minDelay
		}
		if maxDelay >= s.minBackoff {
			s.maxBackoff = maxDelay
		}
	}
}

// WithHTTPClient sets the client used for the websocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Socket) { s.httpClient = c }
}

// WithLogger sets the socket's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Socket) { s.logger = l }
}

// New creates a socket for the given ws(s):// or http(s):// URL. It does not
// dial until Connect.
func New(rawURL string, opts ...Option) *Socket {
	s := &Socket{
		url:         rawURL,
		minBackoff:  defaultMinBackoff,
		maxBackoff:  defaultMaxBackoff,
		dialTimeout: defaultDialTimeout,
		logger:      slog.Default().With("component", "transport"),
		header:      make(http.Header),
		handlers:    make(map[string][]handlerEntry),
		up:          make(chan struct{}),
		send:        make(chan []byte, sendBuffer),
		inbox:       make(chan item, inboxBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SocketURL turns the backend base URL and the socket path into a websocket URL.
func SocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String(), nil
}

// SetCookie replaces the cookie used by subsequent dials.
func (s *Socket) SetCookie(cookie string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cookie == "" {
		s.header.Del("Cookie")
		return
	}
	s.header.Set("Cookie", cookie)
}

// Connect starts the connection supervisor. It returns immediately; the dial
// happens in the background and is retried until Close or until ctx is done.
// Calling Connect again is a no-op.
func (s *Socket) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.dispatch()
	go s.supervise()
	return nil
}

// AwaitConnected blocks until the socket is connected or ctx is done.
func (s *Socket) AwaitConnected(ctx context.Context) error {
	s.mu.RLock()
	up, closed := s.up, s.closed
	s.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	select {
	case <-up:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (s *Socket) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// On registers a handler for a named event. Several handlers may listen to
// the same event; each gets its own Subscription.
func (s *Socket) On(event string, h Handler) Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sub := Subscription{event: event, id: s.nextID}
	s.handlers[event] = append(s.handlers[event], handlerEntry{id: sub.id, fn: h})
	return sub
}

// Off removes exactly the handler behind sub. Unknown subscriptions are ignored.
func (s *Socket) Off(sub Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.handlers[sub.event]
	for i, e := range entries {
		if e.id == sub.id {
			s.handlers[sub.event] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(s.handlers[sub.event]) == 0 {
		delete(s.handlers, sub.event)
	}
}

// Handlers returns the number of handlers registered for event.
func (s *Socket) Handlers(event string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers[event])
}

// OnState registers a lifecycle hook. Hooks run on the dispatch goroutine.
func (s *Socket) OnState(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateHooks = append(s.stateHooks, fn)
}

// Emit sends a named event. Delivery is fire-and-forget: while the socket is
// not connected the frame is dropped. Only marshal errors and ErrClosed are
// returned.
func (s *Socket) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event, err)
	}

	s.mu.RLock()
	closed, state := s.closed, s.state
	s.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if state != StateConnected {
		s.logger.Debug("Socket not connected, dropping frame", "event", event, "state", state)
		return nil
	}

	select {
	case s.send <- frame:
	default:
		s.logger.Warn("Socket send buffer full, dropping frame", "event", event)
	}
	return nil
}

// Reconnect drops the current connection so the supervisor redials at once
// with the current headers. It is a no-op while not connected.
func (s *Socket) Reconnect() {
	s.mu.RLock()
	drop := s.dropConn
	s.mu.RUnlock()
	if drop != nil {
		drop()
	}
}

// Close stops the supervisor, closes the connection and waits for the
// dispatch goroutine to finish. It is safe to call more than once.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = StateClosed
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

func (s *Socket) supervise() {
	defer s.wg.Done()

	backoff := s.minBackoff
	for s.ctx.Err() == nil {
		s.setState(StateConnecting)
		conn, err := s.dial()
		if err != nil {
			s.logger.Debug("Socket dial failed", "url", s.url, "error", err, "retry_in", backoff)
			s.setState(StateDisconnected)
			if !sleep(s.ctx, backoff) {
				return
			}
			backoff = min(backoff*2, s.maxBackoff)
			continue
		}

		backoff = s.minBackoff
		s.serve(conn)
	}
}

func (s *Socket) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.dialTimeout)
	defer cancel()

	s.mu.RLock()
	header := s.header.Clone()
	s.mu.RUnlock()

	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{
		HTTPClient: s.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// serve runs one connection until it fails or the socket is closed.
func (s *Socket) serve(conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.dropConn = cancel
	s.mu.Unlock()
	s.setState(StateConnected)
	s.logger.Info("Socket connected", "url", s.url)

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writePump(connCtx, conn)
	}()

	err := s.readPump(connCtx, conn)
	dropped := connCtx.Err() != nil
	cancel()
	<-writeDone
	conn.Close(websocket.StatusNormalClosure, "client closing")
	s.drainSend()

	s.mu.Lock()
	s.dropConn = nil
	s.mu.Unlock()

	if s.ctx.Err() != nil {
		return
	}
	status := websocket.CloseStatus(err)
	if dropped {
		s.logger.Info("Socket reconnecting", "url", s.url)
	} else if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, io.EOF) {
		s.logger.Info("Socket closed by server", "url", s.url)
	} else {
		s.logger.Warn("Socket read error", "url", s.url, "error", err)
	}
	s.setState(StateDisconnected)
}

func (s *Socket) readPump(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		select {
		case s.inbox <- item{frame: data}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Socket) writePump(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				s.logger.Warn("Socket write error", "error", err)
				conn.CloseNow()
				return
			}
		}
	}
}

// drainSend discards frames queued for a connection that is gone.
func (s *Socket) drainSend() {
	for {
		select {
		case <-s.send:
		default:
			return
		}
	}
}

func (s *Socket) setState(st State) {
	s.mu.Lock()
	if s.closed || s.state == st {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = st
	if st == StateConnected {
		close(s.up)
	} else if prev == StateConnected {
		s.up = make(chan struct{})
	}
	s.mu.Unlock()

	select {
	case s.inbox <- item{state: st, stateChange: true}:
	case <-s.ctx.Done():
	}
}

func (s *Socket) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case it := <-s.inbox:
			if it.stateChange {
				s.notifyState(it.state)
				continue
			}
			s.deliver(it.frame)
		}
	}
}

func (s *Socket) deliver(raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
		s.logger.Debug("Ignoring malformed frame", "error", err, "size", len(raw))
		return
	}

	s.mu.RLock()
	entries := make([]handlerEntry, len(s.handlers[f.Event]))
	copy(entries, s.handlers[f.Event])
	s.mu.RUnlock()

	if len(entries) == 0 {
		s.logger.Debug("No handler for event", "event", f.Event)
		return
	}
	for _, e := range entries {
		s.invoke(f.Event, e.fn, f.Data)
	}
}

func (s *Socket) invoke(event string, h Handler, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Socket handler panicked", "event", event, "panic", r)
		}
	}()
	h(s.ctx, data)
}

func (s *Socket) notifyState(st State) {
	s.mu.RLock()
	hooks := make([]func(State), len(s.stateHooks))
	copy(hooks, s.stateHooks)
	s.mu.RUnlock()

	for _, fn := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Socket state hook panicked", "state", st, "panic", r)
				}
			}()
			fn(st)
		}()
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
