package swarm

import (
	"context"
	"fmt"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/pkg/ledger"
	"go.uber.org/zap"
)

// NextReputation returns the score after one outcome report: +1 capped at
// 100 on success, -5 floored at 0 on failure.
func NextReputation(score uint8, success bool) uint8 {
	if success {
		if int(score)+ledger.SuccessReward > ledger.MaxReputation {
			return ledger.MaxReputation
		}
		return score + ledger.SuccessReward
	}
	if score < ledger.FailurePenalty {
		return 0
	}
	return score - ledger.FailurePenalty
}

// applyOutcome updates an agent's counters and score for one report.
func applyOutcome(agent *ledger.AgentRecord, success bool) {
	agent.TotalActions++
	if success {
		agent.SuccessfulActions++
	}
	agent.ReputationScore = NextReputation(agent.ReputationScore, success)
}

// UpdateReputation applies one outcome report to an agent. Only the swarm
// authority reports outcomes; the report is not tied to any coordination.
func (s *Service) UpdateReputation(ctx context.Context, caller identity.Caller, agentID string, success bool) (*ledger.AgentRecord, error) {
	keys := []string{ledger.SwarmKey(s.instance), ledger.AgentKey(s.instance, agentID)}

	var agent *ledger.AgentRecord
	err := s.runner.Run(ctx, identity.OpUpdateReputation, caller, keys, func(tx *ledger.Tx) error {
		registry, err := requireSwarm(tx)
		if err != nil {
			return err
		}
		if !isAuthority(registry, caller.Identity) {
			return ErrUnauthorized.With("only the swarm authority may report outcomes")
		}

		agent, err = RequireAgent(tx, agentID)
		if err != nil {
			return err
		}

		applyOutcome(agent, success)
		if err := tx.PutAgent(agent); err != nil {
			return err
		}

		return tx.Emit(ledger.EventReputationUpdated, ledger.ReputationUpdatedPayload{
			AgentID:  agentID,
			NewScore: agent.ReputationScore,
			Success:  success,
		})
	}, zap.String("agent_id", agentID), zap.Bool("success", success))
	if err != nil {
		return nil, err
	}

	s.runner.Metrics().SetAgentReputation(agent.AgentID, agent.ReputationScore)
	return agent, nil
}

// ReportOutcome applies one outcome report to every participant of an
// Executed coordination in a single transaction. A coordination's outcome can
// be reported once.
func (s *Service) ReportOutcome(ctx context.Context, caller identity.Caller, coordinationID uint64, success bool) ([]*ledger.AgentRecord, error) {
	keys := []string{ledger.SwarmKey(s.instance), ledger.CoordinationKey(s.instance, coordinationID)}

	var agents []*ledger.AgentRecord
	err := s.runner.Run(ctx, identity.OpReportOutcome, caller, keys, func(tx *ledger.Tx) error {
		agents = nil

		registry, err := requireSwarm(tx)
		if err != nil {
			return err
		}
		if !isAuthority(registry, caller.Identity) {
			return ErrUnauthorized.With("only the swarm authority may report outcomes")
		}

		coord, err := requireCoordination(tx, coordinationID)
		if err != nil {
			return err
		}
		if coord.Status != ledger.CoordinationStatusExecuted {
			return ErrNotExecuted.With(fmt.Sprintf("coordination %d is %s", coordinationID, coord.Status))
		}
		if coord.OutcomeReported {
			return ErrAlreadyReported.With(fmt.Sprintf("coordination %d", coordinationID))
		}

		agentKeys := make([]string, len(coord.ParticipatingAgents))
		for i, id := range coord.ParticipatingAgents {
			agentKeys[i] = ledger.AgentKey(s.instance, id)
		}
		if len(agentKeys) > 0 {
			if err := tx.Watch(agentKeys...); err != nil {
				return err
			}
		}

		for _, id := range coord.ParticipatingAgents {
			agent, err := RequireAgent(tx, id)
			if err != nil {
				return err
			}
			applyOutcome(agent, success)
			if err := tx.PutAgent(agent); err != nil {
				return err
			}
			if err := tx.Emit(ledger.EventReputationUpdated, ledger.ReputationUpdatedPayload{
				AgentID:  id,
				NewScore: agent.ReputationScore,
				Success:  success,
			}); err != nil {
				return err
			}
			agents = append(agents, agent)
		}

		coord.OutcomeReported = true
		return tx.PutCoordination(coord)
	}, coordinationField(coordinationID), zap.Bool("success", success))
	if err != nil {
		return nil, err
	}

	for _, agent := range agents {
		s.runner.Metrics().SetAgentReputation(agent.AgentID, agent.ReputationScore)
	}
	return agents, nil
}
