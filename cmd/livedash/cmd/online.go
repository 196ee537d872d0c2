package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/livedash/cmd/livedash/internal/render"
)

var onlineCmd = &cobra.Command{
	Use:   "online",
	Short: "List the identities that are online",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _, err := restClient()
		if err != nil {
			return err
		}
		keys, err := client.OnlineUsers(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetch online users: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), render.Online(keys))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(onlineCmd)
}
