package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/livedash/internal/api"
	"github.com/nfrund/livedash/internal/botlog"
	"github.com/nfrund/livedash/internal/chat"
	"github.com/nfrund/livedash/internal/config"
	"github.com/nfrund/livedash/internal/multiplexer"
	"github.com/nfrund/livedash/internal/notify"
	"github.com/nfrund/livedash/internal/presence"
	"github.com/nfrund/livedash/internal/pubsub"
	"github.com/nfrund/livedash/internal/session"
	"github.com/nfrund/livedash/internal/transport"
)

// Dependencies are the externally supplied pieces of a shell. Zero values get
// defaults: a private watermill bus, a no-op tracer and slog.Default.
type Dependencies struct {
	Config        *config.Config
	Logger        *slog.Logger
	Bus           pubsub.Bus
	Tracer        trace.Tracer
	HTTPClient    *http.Client
	SocketOptions []transport.Option
}

// register wires every session-scoped service into the injector. Services are
// lazy; the shell invokes them in dependency order.
func register(i do.Injector, deps Dependencies) {
	do.ProvideValue(i, deps.Config)
	do.ProvideValue(i, deps.Logger)
	do.ProvideValue(i, deps.Tracer)
	do.ProvideValue[pubsub.Bus](i, deps.Bus)

	do.Provide(i, func(i do.Injector) (*api.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		opts := []api.Option{api.WithLogger(deps.Logger.With("component", "api"))}
		if deps.HTTPClient != nil {
			opts = append(opts, api.WithHTTPClient(deps.HTTPClient))
		}
		opts = append(opts, api.WithTimeout(cfg.HTTPTimeout))
		return api.New(cfg.BaseURL, opts...)
	})

	do.Provide(i, func(i do.Injector) (*transport.Socket, error) {
		cfg := do.MustInvoke[*config.Config](i)
		url, err := transport.SocketURL(cfg.BaseURL, cfg.SocketPath)
		if err != nil {
			return nil, fmt.Errorf("socket url: %w", err)
		}
		opts := []transport.Option{transport.WithLogger(deps.Logger.With("component", "transport"))}
		if deps.HTTPClient != nil {
			opts = append(opts, transport.WithHTTPClient(deps.HTTPClient))
		}
		opts = append(opts, deps.SocketOptions...)
		return transport.New(url, opts...), nil
	})

	do.Provide(i, func(i do.Injector) (*presence.Roster, error) {
		return presence.NewRoster(presence.WithPublisher(do.MustInvoke[pubsub.Bus](i))), nil
	})

	do.Provide(i, func(i do.Injector) (*notify.Feed, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return notify.New(
			notify.WithCap(cfg.NotificationCap),
			notify.WithToastDuration(cfg.ToastDuration),
			notify.WithBannerDuration(cfg.BannerDuration),
			notify.WithClearer(do.MustInvoke[*api.Client](i)),
			notify.WithPublisher(do.MustInvoke[pubsub.Bus](i)),
		), nil
	})

	do.Provide(i, func(i do.Injector) (*chat.Store, error) {
		return chat.New(
			do.MustInvoke[*api.Client](i),
			do.MustInvoke[*transport.Socket](i),
			chat.WithPublisher(do.MustInvoke[pubsub.Bus](i)),
		), nil
	})

	do.Provide(i, func(i do.Injector) (*botlog.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return botlog.New(
			botlog.WithCap(cfg.BotLogCap),
			botlog.WithPublisher(do.MustInvoke[pubsub.Bus](i)),
		), nil
	})

	do.Provide(i, func(i do.Injector) (*multiplexer.Mux, error) {
		return multiplexer.New(
			do.MustInvoke[*transport.Socket](i),
			do.MustInvoke[*presence.Roster](i),
			do.MustInvoke[*notify.Feed](i),
			do.MustInvoke[*chat.Store](i),
			multiplexer.WithBotLog(do.MustInvoke[*botlog.Store](i)),
			multiplexer.WithTracer(do.MustInvoke[trace.Tracer](i)),
		), nil
	})

	do.Provide(i, func(i do.Injector) (*session.Provider, error) {
		return session.New(
			do.MustInvoke[*api.Client](i),
			do.MustInvoke[*transport.Socket](i),
			session.WithLogger(deps.Logger.With("component", "session")),
		), nil
	})
}
