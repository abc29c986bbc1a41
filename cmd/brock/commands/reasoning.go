package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/printer"
	"github.com/dyluth/brock/internal/reasoning"
	"github.com/dyluth/brock/internal/report"
	"github.com/dyluth/brock/pkg/ledger"
	"github.com/spf13/cobra"
)

func newReasoningCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reasoning",
		Short: "Commit to and reveal the reasoning behind an action",
		Long: `Commit-reveal reasoning: an agent first commits the SHA-256 of its
reasoning together with the action it will take on a threat, and later reveals
the text. The ledger checks the text against the commitment.`,
	}

	cmd.AddCommand(
		newReasoningCommitCmd(a),
		newReasoningRevealCmd(a),
		newReasoningVerifyCmd(a),
		newReasoningStatsCmd(a),
	)
	return cmd
}

// reasoningText reads --text or --file. Exactly one must be given.
func reasoningText(text, file string) (string, error) {
	switch {
	case text != "" && file != "":
		return "", printer.Error("conflicting flags", "Use either --text or --file, not both.", nil)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", printer.Error("failed to read reasoning file", err.Error(), nil)
		}
		return string(data), nil
	case text != "":
		return text, nil
	default:
		return "", printer.Error("reasoning text required", "Pass the reasoning with --text or --file.", nil)
	}
}

// reasoningAgent accepts any full identity, since committing reasoning does
// not require swarm registration, and falls back to short-ID resolution.
func reasoningAgent(ctx context.Context, s *session, arg string) (string, error) {
	if id := strings.ToLower(arg); identity.ValidIdentity(id) {
		return id, nil
	}
	return s.resolveAgent(ctx, arg)
}

func newReasoningCommitCmd(a *app) *cobra.Command {
	var (
		action string
		hash   string
		text   string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "commit THREAT_ID",
		Short: "Commit to reasoning and an action for a threat",
		Long: `Commit the hash of your reasoning and the action you will take on a
threat. Pass the precomputed hash with --hash, or the text with --text/--file
to have it hashed locally; the text itself is not sent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			threatID, err := parseID("threat", args[0])
			if err != nil {
				return err
			}

			var reasoningHash ledger.Hash
			if hash != "" {
				if reasoningHash, err = parseHashArg("hash", hash); err != nil {
					return err
				}
			} else {
				t, err := reasoningText(text, file)
				if err != nil {
					return err
				}
				reasoningHash = reasoning.HashReasoning(t)
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpCommitReasoning)
			if err != nil {
				return err
			}

			commit, err := s.reasoning.Commit(ctx, caller, threatID, reasoningHash, ledger.ActionType(action))
			if err != nil {
				return printer.Rejection("commit reasoning", err)
			}

			printer.Success("Committed %s on threat %d\n", commit.ActionType, commit.ThreatID)
			fmt.Fprintln(cmd.OutOrStdout(), commit.ReasoningHash)
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "Ignore, Monitor, Warn, Block, Coordinate or Recover")
	cmd.Flags().StringVar(&hash, "hash", "", "SHA-256 of the reasoning (64 hex characters)")
	cmd.Flags().StringVar(&text, "text", "", "Reasoning text to hash")
	cmd.Flags().StringVar(&file, "file", "", "File containing the reasoning text to hash")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func newReasoningRevealCmd(a *app) *cobra.Command {
	var (
		text string
		file string
	)

	cmd := &cobra.Command{
		Use:   "reveal THREAT_ID",
		Short: "Reveal committed reasoning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			threatID, err := parseID("threat", args[0])
			if err != nil {
				return err
			}
			t, err := reasoningText(text, file)
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			caller, err := s.caller(identity.OpRevealReasoning)
			if err != nil {
				return err
			}

			commit, err := s.reasoning.Reveal(ctx, caller, threatID, t)
			if err != nil {
				return printer.Rejection("reveal reasoning", err)
			}

			printer.Success("Revealed reasoning for threat %d\n", commit.ThreatID)
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Reasoning text")
	cmd.Flags().StringVar(&file, "file", "", "File containing the reasoning text")
	return cmd
}

func newReasoningVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify AGENT_ID THREAT_ID",
		Short: "Check revealed reasoning against its commitment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			threatID, err := parseID("threat", args[1])
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			agentID, err := reasoningAgent(ctx, s, args[0])
			if err != nil {
				return err
			}

			ok, err := s.reasoning.Verify(ctx, agentID, threatID)
			if err != nil {
				return printer.Rejection("verify reasoning", err)
			}
			if !ok {
				return printer.Error(
					"reasoning does not match its commitment",
					fmt.Sprintf("The revealed text for threat %d no longer hashes to the committed value.", threatID),
					nil,
				)
			}

			printer.Success("Reasoning for threat %d matches its commitment\n", threatID)
			return nil
		},
	}
}

func newReasoningStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [AGENT_ID]",
		Short: "Show an agent's commit and reveal counts (defaults to the caller)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			var agentID string
			if len(args) > 0 {
				agentID, err = reasoningAgent(ctx, s, args[0])
			} else {
				agentID, err = s.resolveAgent(ctx, "")
			}
			if err != nil {
				return err
			}

			stats, err := s.reasoning.Stats(ctx, agentID)
			if err != nil {
				return fmt.Errorf("failed to read reasoning stats: %w", err)
			}
			return report.FormatSingleJSON(cmd.OutOrStdout(), stats)
		},
	}
}
