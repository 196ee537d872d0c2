package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nfrund/livedash/internal/logging"
	"github.com/nfrund/livedash/internal/pubsub"
	"github.com/nfrund/livedash/internal/server"
)

var devserverAddr string

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run the reference backend",
	Long: `Run the bundled reference backend: cookie sessions, the REST endpoints the
client calls, the websocket hub and an admin page at /admin.

Default accounts are alice, bob, carol and admin, all with the password
"password".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logging.NewWithWriter(os.Stderr)

		ctx := cmd.Context()
		tracer, cleanup, err := pubsub.SetupOTel(ctx, cfg.Tracing, version)
		if err != nil {
			return fmt.Errorf("set up tracing: %w", err)
		}
		defer cleanup()

		srv, err := server.New(cfg, server.WithTracer(tracer))
		if err != nil {
			return err
		}
		addr := cfg.DevServer.Addr
		if devserverAddr != "" {
			addr = devserverAddr
		}
		return srv.Run(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)
	devserverCmd.Flags().StringVar(&devserverAddr, "addr", "", "Listen address (DEVSERVER_ADDR)")
}
