package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nfrund/livedash/cmd/livedash/internal/render"
	"github.com/nfrund/livedash/internal/botlog"
	"github.com/nfrund/livedash/internal/chat"
	"github.com/nfrund/livedash/internal/notify"
	"github.com/nfrund/livedash/internal/presence"
	"github.com/nfrund/livedash/internal/pubsub"
	"github.com/nfrund/livedash/internal/storage"
	"github.com/nfrund/livedash/internal/transport"
	"github.com/nfrund/livedash/internal/view"
)

var (
	watchHTML  string
	watchPlain bool
)

const clearScreen = "\033[H\033[2J"

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show the live dashboard",
	Long: `Show presence, notifications, open chats and bot output, redrawn on every
change. Lines typed on stdin run console commands; type help for the list.

With --html the dashboard is also rendered as an HTML page to the given file
after every change.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := startShell(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		w := &watcher{
			shell: s,
			out:   cmd.OutOrStdout(),
			store: storage.NewOsStore(),
			dirty: make(chan struct{}, 1),
		}
		if err := w.subscribe(ctx); err != nil {
			return err
		}
		return w.run(ctx, cmd.InOrStdin())
	},
}

type watcher struct {
	shell  *shellSession
	out    io.Writer
	store  storage.Store
	dirty  chan struct{}
	status string
}

func (w *watcher) poke() {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}

func redrawOn[T any](ctx context.Context, sub pubsub.Subscriber, event pubsub.Event[T], poke func()) error {
	return pubsub.Subscribe(ctx, sub, event, func(context.Context, T) error {
		poke()
		return nil
	})
}

func (w *watcher) subscribe(ctx context.Context) error {
	bus := w.shell.Bus()
	subs := []func() error{
		func() error { return redrawOn(ctx, bus, presence.TopicRosterChanged, w.poke) },
		func() error { return redrawOn(ctx, bus, notify.TopicFeedChanged, w.poke) },
		func() error { return redrawOn(ctx, bus, notify.TopicToastExpired, w.poke) },
		func() error { return redrawOn(ctx, bus, notify.TopicBannerChanged, w.poke) },
		func() error { return redrawOn(ctx, bus, chat.TopicThreadChanged, w.poke) },
		func() error { return redrawOn(ctx, bus, botlog.TopicAppended, w.poke) },
	}
	for _, sub := range subs {
		if err := sub(); err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
	}
	w.shell.Socket().OnState(func(transport.State) { w.poke() })
	return nil
}

func (w *watcher) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	w.draw(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.dirty:
			w.draw(ctx)
		case line := <-lines:
			status, err := runLine(ctx, w.shell, line)
			if err != nil {
				status = "error: " + err.Error()
			}
			w.status = status
			w.draw(ctx)
		}
	}
}

func (w *watcher) draw(ctx context.Context) {
	snap := w.shell.Snapshot()

	var frame bytes.Buffer
	if !watchPlain {
		frame.WriteString(clearScreen)
	}
	frame.WriteString(render.Dashboard(snap))
	if w.status != "" {
		frame.WriteString("\n" + w.status + "\n")
	}
	_, _ = w.out.Write(frame.Bytes())

	if watchHTML == "" {
		return
	}
	var html bytes.Buffer
	if err := view.Dashboard(snap).Render(&html); err != nil {
		w.shell.logger.Warn("Render HTML dashboard failed", "error", err)
		return
	}
	if _, err := w.store.Save(ctx, watchHTML, &html); err != nil {
		w.shell.logger.Warn("Write HTML dashboard failed", "path", watchHTML, "error", err)
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchHTML, "html", "", "Also write the dashboard as HTML to this file")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", !isTerminal(os.Stdout), "Append frames instead of clearing the screen")
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
