package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var broadcastCmd = &cobra.Command{
	Use:   "broadcast <text...>",
	Short: "Send a system message to every session (admins only)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		text := strings.TrimSpace(strings.Join(args, " "))

		s, err := startShell(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.awaitSocket(ctx); err != nil {
			return err
		}

		if err := s.Broadcast(ctx, text); err != nil {
			return err
		}
		// The backend sends the broadcast to this session too.
		if !waitFor(ctx, func() bool {
			banner, visible := s.Feed().Banner()
			return visible && banner == text
		}) {
			return fmt.Errorf("broadcast was not confirmed by the backend")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Broadcast sent")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(broadcastCmd)
}
