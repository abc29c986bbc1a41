// Package reasoning implements the commit-reveal reasoning ledger. An agent
// commits the SHA-256 of its reasoning before acting on a threat and reveals
// the text afterwards, so the reasoning cannot be rewritten after the fact.
package reasoning

import (
	"context"
	"crypto/sha256"
	"fmt"
	"unicode/utf8"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/swarm"
	"github.com/dyluth/brock/pkg/ledger"
	"go.uber.org/zap"
)

// InitialAccuracy is the accuracy score of an agent with no history.
const InitialAccuracy = 100

// Service is the reasoning ledger.
type Service struct {
	runner   *swarm.Runner
	client   *ledger.Client
	instance string
}

// NewService creates the reasoning ledger on top of a runner.
func NewService(runner *swarm.Runner) *Service {
	return &Service{
		runner:   runner,
		client:   runner.Client(),
		instance: runner.Client().InstanceName(),
	}
}

// HashReasoning returns the commitment for a reasoning text.
func HashReasoning(text string) ledger.Hash {
	return ledger.Hash(sha256.Sum256([]byte(text)))
}

// Commit binds the caller to a reasoning hash for a threat. Each agent can
// commit once per threat.
func (s *Service) Commit(ctx context.Context, caller identity.Caller, threatID uint64, reasoningHash ledger.Hash, action ledger.ActionType) (*ledger.ReasoningCommit, error) {
	if err := action.Validate(); err != nil {
		return nil, swarm.ErrInvalidActionType.With(err.Error())
	}

	agentID := caller.Identity
	keys := []string{
		ledger.ReasoningKey(s.instance, agentID, threatID),
		ledger.ReasoningStatsKey(s.instance, agentID),
	}

	var commit *ledger.ReasoningCommit
	err := s.runner.Run(ctx, identity.OpCommitReasoning, caller, keys, func(tx *ledger.Tx) error {
		if _, err := tx.Reasoning(agentID, threatID); err == nil {
			return swarm.ErrAlreadyCommitted.With(fmt.Sprintf("reasoning for threat %d", threatID))
		} else if !ledger.IsNotFound(err) {
			return err
		}

		stats, err := statsOrDefault(tx, agentID)
		if err != nil {
			return err
		}
		stats.TotalCommits++
		tx.PutReasoningStats(stats)

		commit = &ledger.ReasoningCommit{
			AgentID:       agentID,
			ThreatID:      threatID,
			ReasoningHash: reasoningHash,
			ActionType:    action,
			CommittedAtMs: tx.NowMs(),
		}
		tx.PutReasoning(commit)
		return tx.Emit(ledger.EventReasoningCommitted, commit)
	}, zap.String("agent_id", agentID), zap.Uint64("threat_id", threatID), zap.String("action", string(action)))
	if err != nil {
		return nil, err
	}
	return commit, nil
}

// Reveal publishes the caller's reasoning text for a threat. The text must
// hash to the committed value.
func (s *Service) Reveal(ctx context.Context, caller identity.Caller, threatID uint64, text string) (*ledger.ReasoningCommit, error) {
	if n := utf8.RuneCountInString(text); n == 0 || n > ledger.MaxReasoningLength {
		return nil, swarm.ErrInvalidReasoningLength.With(
			fmt.Sprintf("reasoning must be 1 to %d characters, got %d", ledger.MaxReasoningLength, n))
	}

	agentID := caller.Identity
	keys := []string{
		ledger.ReasoningKey(s.instance, agentID, threatID),
		ledger.ReasoningStatsKey(s.instance, agentID),
	}

	var commit *ledger.ReasoningCommit
	err := s.runner.Run(ctx, identity.OpRevealReasoning, caller, keys, func(tx *ledger.Tx) error {
		var err error
		commit, err = requireCommit(tx, agentID, threatID)
		if err != nil {
			return err
		}
		if commit.Revealed {
			return swarm.ErrAlreadyRevealed.With(fmt.Sprintf("reasoning for threat %d", threatID))
		}
		if HashReasoning(text) != commit.ReasoningHash {
			return swarm.ErrHashMismatch
		}

		commit.Revealed = true
		commit.RevealedAtMs = tx.NowMs()
		commit.ReasoningText = text
		tx.PutReasoning(commit)

		stats, err := statsOrDefault(tx, agentID)
		if err != nil {
			return err
		}
		stats.TotalReveals++
		tx.PutReasoningStats(stats)

		return tx.Emit(ledger.EventReasoningRevealed, ledger.ReasoningRevealedPayload{
			AgentID:  agentID,
			ThreatID: threatID,
			Verified: true,
		})
	}, zap.String("agent_id", agentID), zap.Uint64("threat_id", threatID))
	if err != nil {
		return nil, err
	}
	return commit, nil
}

// Verify recomputes the hash of the revealed text and compares it with the
// commitment.
func (s *Service) Verify(ctx context.Context, agentID string, threatID uint64) (bool, error) {
	commit, err := s.Record(ctx, agentID, threatID)
	if err != nil {
		return false, err
	}
	if !commit.Revealed {
		return false, swarm.ErrNotRevealed.With(fmt.Sprintf("reasoning for threat %d", threatID))
	}
	return HashReasoning(commit.ReasoningText) == commit.ReasoningHash, nil
}

// Record returns an agent's commitment for a threat, or ErrCommitNotFound.
func (s *Service) Record(ctx context.Context, agentID string, threatID uint64) (*ledger.ReasoningCommit, error) {
	commit, err := s.client.Reasoning(ctx, agentID, threatID)
	if ledger.IsNotFound(err) {
		return nil, swarm.ErrCommitNotFound.With(fmt.Sprintf("no reasoning committed for threat %d", threatID))
	}
	return commit, err
}

// Stats returns an agent's commit-reveal statistics. Agents that never
// committed report zero counts at the initial accuracy.
func (s *Service) Stats(ctx context.Context, agentID string) (*ledger.ReasoningStats, error) {
	stats, err := s.client.ReasoningStats(ctx, agentID)
	if ledger.IsNotFound(err) {
		return newStats(agentID), nil
	}
	return stats, err
}

func requireCommit(tx *ledger.Tx, agentID string, threatID uint64) (*ledger.ReasoningCommit, error) {
	commit, err := tx.Reasoning(agentID, threatID)
	if ledger.IsNotFound(err) {
		return nil, swarm.ErrCommitNotFound.With(fmt.Sprintf("no reasoning committed for threat %d", threatID))
	}
	return commit, err
}

func statsOrDefault(tx *ledger.Tx, agentID string) (*ledger.ReasoningStats, error) {
	stats, err := tx.ReasoningStats(agentID)
	if ledger.IsNotFound(err) {
		return newStats(agentID), nil
	}
	return stats, err
}

func newStats(agentID string) *ledger.ReasoningStats {
	return &ledger.ReasoningStats{AgentID: agentID, AccuracyScore: InitialAccuracy}
}
