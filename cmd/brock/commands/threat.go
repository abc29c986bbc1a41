package commands

import (
	"fmt"
	"time"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/printer"
	"github.com/dyluth/brock/internal/report"
	"github.com/dyluth/brock/internal/threat"
	"github.com/dyluth/brock/pkg/ledger"
	"github.com/spf13/cobra"
)

func newThreatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threat",
		Short: "Report, confirm and watchlist threats",
	}

	cmd.AddCommand(
		newThreatInitCmd(a),
		newThreatRegisterCmd(a),
		newThreatConfirmCmd(a),
		newThreatFalsePositiveCmd(a),
		newThreatStatusCmd(a),
		newThreatShowCmd(a),
		newThreatListCmd(a),
		newWatchlistAddCmd(a),
		newWatchlistCheckCmd(a),
	)
	return cmd
}

func newThreatInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the threat counter with the caller as its authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpInitializeThreatCounter)
			if err != nil {
				return err
			}
			counter, err := s.threats.InitializeCounter(ctx, caller)
			if err != nil {
				return printer.Rejection("initialize threat counter", err)
			}

			printer.Success("Initialized threat counter (authority %s)\n", counter.Authority)
			return nil
		},
	}
}

func newThreatRegisterCmd(a *app) *cobra.Command {
	var (
		threatType  string
		severity    uint8
		address     string
		description string
		evidence    string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Report a new threat",
		Long: `Report a detection. Threat IDs are allocated sequentially from 0.

Example:
  brock threat register --type Honeypot --severity 80 --address 0xabc... \
    --description "sell tax set to 100%" --evidence $(sha256sum trace.json | cut -c1-64)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			req := threat.RegisterRequest{
				ThreatType:    ledger.ThreatType(threatType),
				Severity:      severity,
				TargetAddress: address,
				Description:   description,
			}
			if evidence != "" {
				h, err := parseHashArg("evidence", evidence)
				if err != nil {
					return err
				}
				req.EvidenceHash = h
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpRegisterThreat)
			if err != nil {
				return err
			}

			t, err := s.threats.Register(ctx, caller, req)
			if err != nil {
				return printer.Rejection("register threat", err)
			}

			printer.Success("Registered threat %d (%s, severity %d)\n", t.ID, t.ThreatType, t.Severity)
			return nil
		},
	}

	cmd.Flags().StringVar(&threatType, "type", "", "Threat type (RugPull, Honeypot, DrainAttack, ...)")
	cmd.Flags().Uint8Var(&severity, "severity", 50, "Severity from 0 to 100")
	cmd.Flags().StringVar(&address, "address", "", "Target address (optional)")
	cmd.Flags().StringVar(&description, "description", "", "Description (at most 500 bytes)")
	cmd.Flags().StringVar(&evidence, "evidence", "", "Evidence fingerprint (64 hex characters)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newThreatConfirmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm THREAT_ID",
		Short: "Confirm another agent's threat report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID("threat", args[0])
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpConfirmThreat)
			if err != nil {
				return err
			}

			t, err := s.threats.Confirm(ctx, caller, id)
			if err != nil {
				return printer.Rejection("confirm threat", err)
			}

			printer.Success("Confirmed threat %d (%d confirmations, %s)\n", t.ID, len(t.ConfirmedBy), t.Status)
			return nil
		},
	}
}

func newThreatFalsePositiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "false-positive THREAT_ID",
		Short: "Vote that a threat is a false positive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID("threat", args[0])
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpMarkFalsePositive)
			if err != nil {
				return err
			}

			t, err := s.threats.MarkFalsePositive(ctx, caller, id)
			if err != nil {
				return printer.Rejection("mark false positive", err)
			}

			printer.Success("Recorded false-positive vote on threat %d (%d votes, %s)\n",
				t.ID, len(t.FalsePositiveVotes), t.Status)
			return nil
		},
	}
}

func newThreatStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status THREAT_ID STATUS",
		Short: "Set a threat's status (threat counter authority only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID("threat", args[0])
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpUpdateThreatStatus)
			if err != nil {
				return err
			}

			t, err := s.threats.UpdateStatus(ctx, caller, id, ledger.ThreatStatus(args[1]))
			if err != nil {
				return printer.Rejection("update threat status", err)
			}

			printer.Success("Threat %d is now %s\n", t.ID, t.Status)
			return nil
		},
	}
}

func newThreatShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show THREAT_ID",
		Short: "Show a threat as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID("threat", args[0])
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			t, err := s.threats.Threat(ctx, id)
			if err != nil {
				return printer.Rejection("show threat", err)
			}
			return report.FormatSingleJSON(cmd.OutOrStdout(), t)
		},
	}
}

func newThreatListCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered threats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			threats, err := s.threats.Threats(ctx)
			if err != nil {
				return fmt.Errorf("failed to list threats: %w", err)
			}

			if format == report.OutputFormatJSONL {
				return report.FormatJSONL(cmd.OutOrStdout(), threats)
			}
			report.FormatThreats(cmd.OutOrStdout(), threats, s.cfg.Instance, time.Now())
			return nil
		},
	}

	addOutputFlag(cmd, &output)
	return cmd
}

func newWatchlistAddCmd(a *app) *cobra.Command {
	var (
		reason   string
		threatID uint64
	)

	cmd := &cobra.Command{
		Use:   "watchlist-add ADDRESS",
		Short: "Flag an address as known-malicious",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var linked *uint64
			if cmd.Flags().Changed("threat") {
				linked = &threatID
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpAddToWatchlist)
			if err != nil {
				return err
			}

			entry, err := s.threats.AddToWatchlist(ctx, caller, args[0], reason, linked)
			if err != nil {
				return printer.Rejection("add to watchlist", err)
			}

			printer.Success("Watchlisted %s\n", entry.Address)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the address is watchlisted (at most 200 bytes)")
	cmd.Flags().Uint64Var(&threatID, "threat", 0, "Link the entry to an existing threat")
	return cmd
}

func newWatchlistCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watchlist-check ADDRESS",
		Short: "Check whether an address is watchlisted",
		Long: `Check whether an address is on the active watchlist. The entry is
printed as JSON when present.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			listed, err := s.threats.CheckWatchlist(ctx, args[0])
			if err != nil {
				return printer.Rejection("check watchlist", err)
			}
			if !listed {
				printer.Info("%s is not watchlisted\n", args[0])
				return nil
			}

			entry, err := s.threats.WatchlistEntry(ctx, args[0])
			if err != nil {
				return printer.Rejection("check watchlist", err)
			}
			printer.Warning("%s is watchlisted\n", args[0])
			return report.FormatSingleJSON(cmd.OutOrStdout(), entry)
		},
	}
}
