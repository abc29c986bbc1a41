package commands

import (
	"fmt"
	"time"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/printer"
	"github.com/dyluth/brock/internal/report"
	"github.com/dyluth/brock/pkg/ledger"
	"github.com/spf13/cobra"
)

func newAgentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Register and inspect swarm agents",
	}

	cmd.AddCommand(
		newAgentRegisterCmd(a),
		newAgentHeartbeatCmd(a),
		newAgentDeactivateCmd(a),
		newAgentShowCmd(a),
		newAgentListCmd(a),
		newAgentReputationCmd(a),
	)
	return cmd
}

func newAgentRegisterCmd(a *app) *cobra.Command {
	var (
		agentType    string
		capabilities []string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the key's identity as a swarm agent",
		Long: `Register the caller's identity as an agent with a type and up to 10
capabilities. Each identity can register once.

Examples:
  brock agent register --type Sentinel --capability TransactionMonitoring
  brock agent register --type Guardian --capability ThreatDetection,FundRecovery`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpRegisterAgent)
			if err != nil {
				return err
			}

			caps := make([]ledger.Capability, len(capabilities))
			for i, c := range capabilities {
				caps[i] = ledger.Capability(c)
			}

			agent, err := s.swarm.Register(ctx, caller, ledger.AgentType(agentType), caps)
			if err != nil {
				return printer.Rejection("register agent", err)
			}

			printer.Success("Registered %s agent %s\n", agent.AgentType, agent.AgentID)
			return nil
		},
	}

	cmd.Flags().StringVar(&agentType, "type", "", "Agent type (Sentinel, Scanner, Guardian, ...)")
	cmd.Flags().StringSliceVar(&capabilities, "capability", nil, "Capability tag (repeatable)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newAgentHeartbeatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Refresh the caller's last-active timestamp",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpHeartbeat)
			if err != nil {
				return err
			}
			if err := s.swarm.Heartbeat(ctx, caller); err != nil {
				return printer.Rejection("heartbeat", err)
			}

			printer.Success("Heartbeat recorded\n")
			return nil
		},
	}
}

func newAgentDeactivateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate AGENT_ID",
		Short: "Mark an agent inactive (the agent itself or the swarm authority)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			agentID, err := s.resolveAgent(ctx, args[0])
			if err != nil {
				return err
			}
			caller, err := s.caller(identity.OpDeactivateAgent)
			if err != nil {
				return err
			}
			if err := s.swarm.Deactivate(ctx, caller, agentID); err != nil {
				return printer.Rejection("deactivate agent", err)
			}

			printer.Success("Deactivated agent %s\n", agentID)
			return nil
		},
	}
}

func newAgentShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [AGENT_ID]",
		Short: "Show an agent record as JSON (defaults to the caller)",
		Long: `Show an agent record as pretty-printed JSON.

AGENT_ID may be a unique prefix of at least 6 characters. Without it the
caller's own identity is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			var shortID string
			if len(args) > 0 {
				shortID = args[0]
			}
			agentID, err := s.resolveAgent(ctx, shortID)
			if err != nil {
				return err
			}

			agent, err := s.swarm.Agent(ctx, agentID)
			if err != nil {
				return printer.Rejection("show agent", err)
			}
			return report.FormatSingleJSON(cmd.OutOrStdout(), agent)
		},
	}
}

func newAgentListCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
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

			agents, err := s.swarm.Agents(ctx)
			if err != nil {
				return fmt.Errorf("failed to list agents: %w", err)
			}

			if format == report.OutputFormatJSONL {
				return report.FormatJSONL(cmd.OutOrStdout(), agents)
			}
			report.FormatAgents(cmd.OutOrStdout(), agents, s.cfg.Instance, time.Now())
			return nil
		},
	}

	addOutputFlag(cmd, &output)
	return cmd
}

func newAgentReputationCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reputation AGENT_ID success|failure",
		Short: "Record an action outcome against an agent's reputation (authority only)",
		Long: `Record one action outcome for an agent. Success adds 1 to the
reputation score up to 100; failure subtracts 5 down to 0.

Only the swarm authority may update reputation directly.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			success, err := parseOutcome(args[1])
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			agentID, err := s.resolveAgent(ctx, args[0])
			if err != nil {
				return err
			}
			caller, err := s.caller(identity.OpUpdateReputation)
			if err != nil {
				return err
			}

			agent, err := s.swarm.UpdateReputation(ctx, caller, agentID, success)
			if err != nil {
				return printer.Rejection("update reputation", err)
			}

			printer.Success("Agent %s reputation is now %d\n", agent.AgentID, agent.ReputationScore)
			return nil
		},
	}
}

func addOutputFlag(cmd *cobra.Command, output *string) {
	cmd.Flags().StringVarP(output, "output", "o", string(report.OutputFormatDefault), "Output format: default or jsonl")
}

func parseOutputFormat(s string) (report.OutputFormat, error) {
	format, err := report.ParseOutputFormat(s)
	if err != nil {
		return "", printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", s),
			[]string{"Valid formats: default, jsonl"},
		)
	}
	return format, nil
}
