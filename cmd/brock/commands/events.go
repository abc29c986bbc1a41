package commands

import (
	"fmt"
	"time"

	"github.com/dyluth/brock/internal/printer"
	"github.com/dyluth/brock/internal/timespec"
	"github.com/dyluth/brock/internal/watch"
	"github.com/dyluth/brock/pkg/ledger"
	"github.com/spf13/cobra"
)

func newEventsCmd(a *app) *cobra.Command {
	var (
		output string
		since  string
		until  string
		follow bool
		types  []string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Replay and follow the ledger event outbox",
		Long: `Print ledger events in commit order.

The outbox is replayed from --since (default: the beginning). With --follow
the command keeps streaming new events until interrupted.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Everything from the last hour, then keep following
  brock events --since 1h --follow

  # Only votes, as JSON
  brock events --type VoteCast -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			formatter, err := watch.NewFormatter(output, cmd.OutOrStdout())
			if err != nil {
				return printer.Error(
					"invalid output format",
					fmt.Sprintf("Unknown format: %s", output),
					[]string{"Valid formats: default, json"},
				)
			}

			sinceT, untilT, err := timespec.ParseRange(since, until, time.Now())
			if err != nil {
				return printer.Error(
					"invalid time filter",
					err.Error(),
					[]string{"Use duration format like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z'"},
				)
			}

			opts := watch.StreamOptions{
				Since:  sinceT,
				Until:  untilT,
				Follow: follow,
			}
			if len(types) > 0 {
				opts.Types = make(map[ledger.EventType]bool, len(types))
				for _, t := range types {
					opts.Types[ledger.EventType(t)] = true
				}
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			return watch.StreamEvents(ctx, s.client, opts, formatter)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", watch.FormatDefault, "Output format (default or json)")
	cmd.Flags().StringVar(&since, "since", "", "Replay events after time (duration or RFC3339)")
	cmd.Flags().StringVar(&until, "until", "", "Stop at events before time (duration or RFC3339)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new events")
	cmd.Flags().StringSliceVar(&types, "type", nil, "Only show these event types (repeatable)")
	return cmd
}
