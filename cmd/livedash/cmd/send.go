package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <to> <text...>",
	Short: "Send a direct message",
	Long: `Send a direct message and wait until the backend echoes it back into the
thread, so a zero exit status means the message was stored.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		to, text := args[0], strings.Join(args[1:], " ")

		s, err := startShell(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.awaitSocket(ctx); err != nil {
			return err
		}

		if err := s.OpenChat(ctx, to); err != nil {
			return err
		}
		before := len(s.Chat().Messages(to))
		if err := s.SendMessage(ctx, to, text); err != nil {
			return err
		}
		if !waitFor(ctx, func() bool { return len(s.Chat().Messages(to)) > before }) {
			return fmt.Errorf("message to @%s was not confirmed by the backend", to)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent to @%s\n", to)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
