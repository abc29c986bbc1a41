package commands

import (
	"fmt"
	"time"

	"github.com/dyluth/brock/pkg/ledger"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show swarm and threat registry counters",
		Long: `Show the state of a ledger instance: the swarm registry counters,
the threat counter and the latest outbox entry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Instance:  %s\n", s.cfg.Instance)
			fmt.Fprintf(w, "Redis:     %s\n", s.cfg.RedisURL)

			registry, err := s.client.Swarm(ctx)
			switch {
			case err == nil:
				fmt.Fprintf(w, "Authority: %s\n", registry.Authority)
				fmt.Fprintf(w, "Since:     %s\n", time.UnixMilli(registry.InitializedAtMs).UTC().Format(time.RFC3339))
				fmt.Fprintf(w, "Agents:    %d\n", registry.TotalAgents)
				fmt.Fprintf(w, "Coordinations: %d total, %d active\n", registry.TotalCoordinations, registry.ActiveCoordinations)
			case ledger.IsNotFound(err):
				fmt.Fprintln(w, "Swarm:     not initialized (run: brock init)")
			default:
				return fmt.Errorf("failed to read swarm registry: %w", err)
			}

			counter, err := s.client.ThreatCounter(ctx)
			switch {
			case err == nil:
				fmt.Fprintf(w, "Threats:   %d\n", counter.Count)
			case ledger.IsNotFound(err):
				fmt.Fprintln(w, "Threats:   counter not initialized")
			default:
				return fmt.Errorf("failed to read threat counter: %w", err)
			}

			last, err := s.client.LastEventID(ctx)
			if err != nil {
				return fmt.Errorf("failed to read event outbox: %w", err)
			}
			fmt.Fprintf(w, "Last event: %s\n", last)

			return nil
		},
	}
}
