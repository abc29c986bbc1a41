package commands

import (
	"fmt"
	"time"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/printer"
	"github.com/dyluth/brock/internal/report"
	"github.com/dyluth/brock/internal/swarm"
	"github.com/dyluth/brock/internal/watch"
	"github.com/dyluth/brock/pkg/ledger"
	"github.com/spf13/cobra"
)

func newCoordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "coord",
		Aliases: []string{"coordination"},
		Short:   "Propose, vote on and execute joint responses",
		Long: `Manage coordinations: joint responses to a threat that eligible agents
join and vote on.

A coordination resolves when every participant has voted. It is Approved
when strictly more than half voted for it; a tie rejects.`,
	}

	cmd.AddCommand(
		newCoordInitiateCmd(a),
		newCoordJoinCmd(a),
		newCoordVoteCmd(a),
		newCoordExecuteCmd(a),
		newCoordCloseCmd(a),
		newCoordShowCmd(a),
		newCoordListCmd(a),
		newCoordWaitCmd(a),
		newCoordOutcomeCmd(a),
	)
	return cmd
}

func newCoordInitiateCmd(a *app) *cobra.Command {
	var (
		threatID     uint64
		capabilities []string
		plan         string
		urgency      string
	)

	cmd := &cobra.Command{
		Use:   "initiate",
		Short: "Open a coordination for a threat",
		Long: `Open a Pending coordination. Agents holding at least one of the
required capabilities may join it.

Example:
  brock coord initiate --threat 4 --capability ThreatDetection --urgency High \
    --plan "pause the pool and blocklist the drainer"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpInitiateCoordination)
			if err != nil {
				return err
			}

			req := swarm.InitiateRequest{
				ThreatID:   threatID,
				ActionPlan: plan,
				Urgency:    ledger.Urgency(urgency),
			}
			for _, c := range capabilities {
				req.RequiredCapabilities = append(req.RequiredCapabilities, ledger.Capability(c))
			}

			coord, err := s.swarm.Initiate(ctx, caller, req)
			if err != nil {
				return printer.Rejection("initiate coordination", err)
			}

			printer.Success("Initiated coordination %d for threat %d\n", coord.ID, coord.ThreatID)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&threatID, "threat", 0, "Threat ID the response addresses")
	cmd.Flags().StringSliceVar(&capabilities, "capability", nil, "Required capability (repeatable, 1 to 5)")
	cmd.Flags().StringVar(&plan, "plan", "", "Action plan (at most 1000 bytes)")
	cmd.Flags().StringVar(&urgency, "urgency", string(ledger.UrgencyMedium), "Low, Medium, High or Critical")
	_ = cmd.MarkFlagRequired("threat")
	return cmd
}

func newCoordJoinCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "join COORDINATION_ID",
		Short: "Join a pending coordination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID("coordination", args[0])
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpJoinCoordination)
			if err != nil {
				return err
			}

			coord, err := s.swarm.Join(ctx, caller, id)
			if err != nil {
				return printer.Rejection("join coordination", err)
			}

			printer.Success("Joined coordination %d (%d participants)\n", coord.ID, len(coord.ParticipatingAgents))
			return nil
		},
	}
}

func newCoordVoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "vote COORDINATION_ID approve|reject",
		Short: "Cast the caller's vote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID("coordination", args[0])
			if err != nil {
				return err
			}

			var approve bool
			switch args[1] {
			case "approve":
				approve = true
			case "reject":
			default:
				return printer.Error(
					"invalid vote",
					fmt.Sprintf("Unknown vote: %s", args[1]),
					[]string{"Valid votes: approve, reject"},
				)
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpVoteOnCoordination)
			if err != nil {
				return err
			}

			coord, err := s.swarm.Vote(ctx, caller, id, approve)
			if err != nil {
				return printer.Rejection("vote", err)
			}

			printer.Success("Vote recorded (%d for, %d against, %d participants)\n",
				coord.VotesFor, coord.VotesAgainst, len(coord.ParticipatingAgents))
			if coord.Status != ledger.CoordinationStatusPending {
				printer.Info("Coordination %d resolved: %s\n", coord.ID, coord.Status)
			}
			return nil
		},
	}
}

func newCoordExecuteCmd(a *app) *cobra.Command {
	var result string

	cmd := &cobra.Command{
		Use:   "execute COORDINATION_ID",
		Short: "Mark an approved coordination executed",
		Long: `Mark an Approved coordination Executed and record the fingerprint of
its result. Only the swarm authority or the initiator may execute.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID("coordination", args[0])
			if err != nil {
				return err
			}
			resultHash, err := parseHashArg("result", result)
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpExecuteCoordination)
			if err != nil {
				return err
			}

			coord, err := s.swarm.Execute(ctx, caller, id, resultHash)
			if err != nil {
				return printer.Rejection("execute coordination", err)
			}

			printer.Success("Executed coordination %d\n", coord.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&result, "result", "", "Result fingerprint (64 hex characters)")
	_ = cmd.MarkFlagRequired("result")
	return cmd
}

func newCoordCloseCmd(a *app) *cobra.Command {
	var (
		status string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "close COORDINATION_ID",
		Short: "Close a coordination as Failed or Cancelled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID("coordination", args[0])
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpCloseCoordination)
			if err != nil {
				return err
			}

			coord, err := s.swarm.Close(ctx, caller, id, ledger.CoordinationStatus(status), reason)
			if err != nil {
				return printer.Rejection("close coordination", err)
			}

			printer.Success("Closed coordination %d as %s\n", coord.ID, coord.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", string(ledger.CoordinationStatusCancelled), "Failed or Cancelled")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the coordination was closed")
	return cmd
}

func newCoordShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show COORDINATION_ID",
		Short: "Show a coordination as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID("coordination", args[0])
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			coord, err := s.swarm.Coordination(ctx, id)
			if err != nil {
				return printer.Rejection("show coordination", err)
			}
			return report.FormatSingleJSON(cmd.OutOrStdout(), coord)
		},
	}
}

func newCoordListCmd(a *app) *cobra.Command {
	var (
		output string
		status string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List coordinations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			if status != "" {
				if err := ledger.CoordinationStatus(status).Validate(); err != nil {
					return printer.Error("invalid status filter", err.Error(), nil)
				}
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			all, err := s.swarm.Coordinations(ctx)
			if err != nil {
				return fmt.Errorf("failed to list coordinations: %w", err)
			}

			coords := all[:0]
			for _, c := range all {
				if status == "" || c.Status == ledger.CoordinationStatus(status) {
					coords = append(coords, c)
				}
			}

			if format == report.OutputFormatJSONL {
				return report.FormatJSONL(cmd.OutOrStdout(), coords)
			}
			report.FormatCoordinations(cmd.OutOrStdout(), coords, s.cfg.Instance, time.Now())
			return nil
		},
	}

	addOutputFlag(cmd, &output)
	cmd.Flags().StringVar(&status, "status", "", "Only show coordinations with this status")
	return cmd
}

func newCoordWaitCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait COORDINATION_ID",
		Short: "Wait until a coordination leaves Pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID("coordination", args[0])
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			printer.Step("Waiting for coordination %d to resolve...\n", id)
			coord, err := watch.PollForResolution(ctx, s.client, id, timeout)
			if err != nil {
				return printer.Error("coordination did not resolve", err.Error(), nil)
			}

			printer.Success("Coordination %d resolved: %s (%d for, %d against)\n",
				coord.ID, coord.Status, coord.VotesFor, coord.VotesAgainst)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Give up after this long")
	return cmd
}

func newCoordOutcomeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "outcome COORDINATION_ID success|failure",
		Short: "Report an executed coordination's outcome to every participant (authority only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := parseID("coordination", args[0])
			if err != nil {
				return err
			}
			success, err := parseOutcome(args[1])
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpReportOutcome)
			if err != nil {
				return err
			}

			agents, err := s.swarm.ReportOutcome(ctx, caller, id, success)
			if err != nil {
				return printer.Rejection("report outcome", err)
			}

			printer.Success("Reported %s for coordination %d\n", args[1], id)
			for _, agent := range agents {
				printer.Info("  %s reputation %d\n", watch.Short(agent.AgentID), agent.ReputationScore)
			}
			return nil
		},
	}
}
