package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/livedash/cmd/livedash/internal/render"
	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/storage"
)

var historyExport string

var historyCmd = &cobra.Command{
	Use:   "history <counterpart>",
	Short: "Show the message history with one identity",
	Long: `Show the message history with one identity.

Examples:
  livedash history bob                      # print the thread
  livedash history bob --export bob.txt     # save a plain text transcript
  livedash history bob --export bob.json    # save a JSON transcript`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		counterpart := args[0]

		client, _, err := restClient()
		if err != nil {
			return err
		}
		st, err := client.Status(ctx)
		if err != nil {
			return err
		}
		if !st.LoggedIn || !st.Identity.LoggedIn() {
			return domain.ErrNotLoggedIn
		}
		msgs, err := client.Messages(ctx, counterpart)
		if err != nil {
			return fmt.Errorf("load history with %s: %w", counterpart, err)
		}

		if historyExport == "" {
			fmt.Fprint(cmd.OutOrStdout(), render.Messages(st.Identity.Key, msgs))
			return nil
		}
		n, err := storage.Export(ctx, storage.NewOsStore(), historyExport, storage.Transcript{
			Self:        st.Identity.Key,
			Counterpart: counterpart,
			Messages:    msgs,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d messages to %s (%d bytes)\n", len(msgs), historyExport, n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVarP(&historyExport, "export", "o", "", "Write a transcript to this file (.json for JSON, anything else for text)")
}
