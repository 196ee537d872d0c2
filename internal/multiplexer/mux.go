// Package multiplexer is the only place inbound socket events are
// interpreted. Each event is decoded into its tagged variant, checked against
// the bound identity and routed to exactly the stores it concerns.
package multiplexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/events"
	"github.com/nfrund/livedash/internal/topicmgr"
	"github.com/nfrund/livedash/internal/transport"
)

// Socket is the subscription half of the transport.
type Socket interface {
	On(event string, h transport.Handler) transport.Subscription
	Off(sub transport.Subscription)
}

// Roster receives presence changes.
type Roster interface {
	MarkOnline(key string) bool
	MarkOffline(key string) bool
}

// Feed receives notifications and banners.
type Feed interface {
	Append(n domain.Notification) bool
	ShowBanner(text string)
}

// Threads receives chat messages for open threads.
type Threads interface {
	IsOpen(counterpart string) bool
	Viewing(counterpart string) bool
	Deliver(counterpart string, msg domain.ChatMessage) bool
}

// BotLog receives bot script output.
type BotLog interface {
	Append(script, output string)
}

// Route names where an event ended up. It is attached to the dispatch span.
type Route string

const (
	RouteRoster  Route = "roster"
	RouteFeed    Route = "feed"
	RouteThread  Route = "thread"
	RouteBoth    Route = "feed+thread"
	RouteBotLog  Route = "botlog"
	RouteDropped Route = "dropped"
)

// Mux routes inbound events for one bound identity.
type Mux struct {
	socket  Socket
	roster  Roster
	feed    Feed
	threads Threads
	botlog  BotLog
	decoder *events.Decoder
	tracer  trace.Tracer
	logger  *slog.Logger

	mu    sync.RWMutex
	self  domain.Identity
	subs  []transport.Subscription
	bound bool
}

// Option configures a Mux.
type Option func(*Mux)

// WithBotLog routes bot_log events to b.
func WithBotLog(b BotLog) Option {
	return func(m *Mux) { m.botlog = b }
}

// WithTracer wraps every routed event in a span.
func WithTracer(t trace.Tracer) Option {
	return func(m *Mux) { m.tracer = t }
}

// WithDecoder replaces the default payload decoder.
func WithDecoder(d *events.Decoder) Option {
	return func(m *Mux) { m.decoder = d }
}

// New creates an unbound multiplexer.
func New(socket Socket, roster Roster, feed Feed, threads Threads, opts ...Option) *Mux {
	m := &Mux{
		socket:  socket,
		roster:  roster,
		feed:    feed,
		threads: threads,
		decoder: events.NewDecoder(),
		tracer:  noop.NewTracerProvider().Tracer("livedash"),
		logger:  slog.Default().With("component", "multiplexer"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// inbound lists the wire events the multiplexer listens to.
func inbound() []topicmgr.Topic {
	var out []topicmgr.Topic
	for _, t := range events.Wire() {
		if t.Direction().Receives() {
			out = append(out, t)
		}
	}
	return out
}

// Bind subscribes the handlers for id. Binding the identity already bound is
// a no-op apart from refreshing its profile fields; binding a different one
// replaces every handler. An identity without a key leaves the mux unbound.
func (m *Mux) Bind(id domain.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bound && m.self.Key == id.Key {
		m.self = id
		return
	}
	m.unbindLocked()
	if !id.LoggedIn() {
		return
	}

	m.self = id
	m.bound = true
	for _, t := range inbound() {
		m.subs = append(m.subs, m.socket.On(t.Name(), m.handler(t.Name())))
	}
	m.logger.Info("Multiplexer bound", "usertag", id.Key, "events", len(m.subs))
}

// Unbind removes every handler.
func (m *Mux) Unbind() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unbindLocked()
}

func (m *Mux) unbindLocked() {
	for _, sub := range m.subs {
		m.socket.Off(sub)
	}
	if m.bound {
		m.logger.Info("Multiplexer unbound", "usertag", m.self.Key)
	}
	m.subs = nil
	m.self = domain.Identity{}
	m.bound = false
}

// Identity returns the bound identity.
func (m *Mux) Identity() domain.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.self
}

func (m *Mux) handler(name string) transport.Handler {
	return func(ctx context.Context, data json.RawMessage) {
		m.Dispatch(ctx, name, data)
	}
}

// Dispatch decodes and routes one event. Handlers registered by Bind call it;
// it is exported for replaying recorded frames.
func (m *Mux) Dispatch(ctx context.Context, name string, data json.RawMessage) Route {
	ctx, span := m.tracer.Start(ctx, "multiplexer.dispatch."+name,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.name", name),
			attribute.Int("event.payload_size_bytes", len(data)),
		),
	)
	defer span.End()

	ev, err := m.decoder.Decode(name, data)
	if err != nil {
		m.logger.Debug("Dropping malformed event", "event", name, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed payload")
		return RouteDropped
	}

	route := m.route(ctx, ev)
	span.SetAttributes(
		attribute.String("event.kind", ev.Kind().String()),
		attribute.String("event.route", string(route)),
	)
	return route
}

func (m *Mux) route(_ context.Context, ev events.Event) Route {
	self := m.Identity().Key
	if self == "" {
		return RouteDropped
	}

	switch e := ev.(type) {
	case events.Presence:
		if e.Online {
			m.roster.MarkOnline(e.Key)
		} else {
			m.roster.MarkOffline(e.Key)
		}
		return RouteRoster

	case events.SystemBroadcast:
		m.feed.Append(domain.Notification{Kind: domain.NotificationSystem, Text: e.Text})
		m.feed.ShowBanner(e.Text)
		return RouteFeed

	case events.FriendRequest:
		if e.To != self {
			return RouteDropped
		}
		m.feed.Append(domain.Notification{
			Kind: domain.NotificationFriendRequest,
			Text: fmt.Sprintf("Friend request from @%s", e.From),
			From: e.From,
		})
		return RouteFeed

	case events.Chat:
		return m.routeChat(self, e.ChatMessage)

	case events.BotLog:
		if m.botlog == nil {
			return RouteDropped
		}
		m.botlog.Append(e.Script, e.Output)
		return RouteBotLog
	}

	m.logger.Debug("Unhandled event kind", "kind", ev.Kind())
	return RouteDropped
}

func (m *Mux) routeChat(self string, msg domain.ChatMessage) Route {
	if !msg.Involves(self) {
		return RouteDropped
	}

	counterpart := msg.Counterpart(self)
	toThread := m.threads.IsOpen(counterpart) && m.threads.Deliver(counterpart, msg)

	toFeed := false
	if msg.To == self && msg.From != self && !m.threads.Viewing(msg.From) {
		toFeed = m.feed.Append(domain.Notification{
			Kind: domain.NotificationChatMessage,
			Text: fmt.Sprintf("New message from @%s", msg.From),
			From: msg.From,
		})
	}

	switch {
	case toThread && toFeed:
		return RouteBoth
	case toThread:
		return RouteThread
	case toFeed:
		return RouteFeed
	default:
		return RouteDropped
	}
}
