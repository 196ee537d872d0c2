package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	flagBaseURL    string
	flagCookie     string
	flagCookieFile string
	flagSocketPath string
)

var rootCmd = &cobra.Command{
	Use:   "livedash",
	Short: "Real-time dashboard client",
	Long: `livedash connects to a dashboard backend over one websocket and keeps
presence, notifications, chat threads and bot output in sync.

Configuration comes from .env and LIVEDASH_* environment variables; the
flags below override them.

Use "livedash [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command. Interrupts cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagBaseURL, "base-url", "", "Backend base URL (LIVEDASH_BASE_URL)")
	pf.StringVar(&flagCookie, "cookie", "", "Session cookie header value (LIVEDASH_COOKIE)")
	pf.StringVar(&flagCookieFile, "cookie-file", "", "File holding the session cookie, watched for changes (LIVEDASH_COOKIE_FILE)")
	pf.StringVar(&flagSocketPath, "socket-path", "", "Websocket path on the backend (LIVEDASH_SOCKET_PATH)")
}
