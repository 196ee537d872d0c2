package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nfrund/livedash/cmd/livedash/internal/render"
	"github.com/nfrund/livedash/internal/events"
	"github.com/nfrund/livedash/internal/topicmgr"
)

var (
	eventsFormat string
	eventsScope  string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List the event catalogue",
	Long: `List the socket events exchanged with the backend and, optionally, the
internal bus topics the stores publish.

Examples:
  livedash events                    # socket events as a table
  livedash events --scope all        # socket events and bus topics
  livedash events --format json      # machine-readable output`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, err := catalogue(eventsScope)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch eventsFormat {
		case "json":
			return render.TopicsJSON(out, topics)
		case "table":
			fmt.Fprint(out, render.TopicsTable(topics))
			return nil
		default:
			return fmt.Errorf("unsupported output format %q, use table or json", eventsFormat)
		}
	},
}

// catalogue returns the topics for scope: wire, bus or all.
func catalogue(scope string) ([]topicmgr.Topic, error) {
	bus := func() []topicmgr.Topic {
		topics := topicmgr.Default().ListByScope(topicmgr.ScopeBus)
		sort.Slice(topics, func(i, j int) bool { return topics[i].Name() < topics[j].Name() })
		return topics
	}
	switch strings.ToLower(scope) {
	case "wire", "":
		return events.Wire(), nil
	case "bus":
		return bus(), nil
	case "all":
		return append(events.Wire(), bus()...), nil
	}
	return nil, fmt.Errorf("invalid scope %q, valid scopes: wire, bus, all", scope)
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVarP(&eventsFormat, "format", "f", "table", "Output format (table, json)")
	eventsCmd.Flags().StringVarP(&eventsScope, "scope", "s", "wire", "Which topics to list (wire, bus, all)")
}
