package swarm

import (
	"context"
	"fmt"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/pkg/ledger"
	"go.uber.org/zap"
)

// Register creates the caller's agent record. The agent ID is always the
// caller's identity, so only the key holder can register it.
func (s *Service) Register(ctx context.Context, caller identity.Caller, agentType ledger.AgentType, capabilities []ledger.Capability) (*ledger.AgentRecord, error) {
	if len(capabilities) > ledger.MaxAgentCapabilities {
		return nil, ErrTooManyCapabilities.With(
			fmt.Sprintf("%d capabilities exceeds the limit of %d", len(capabilities), ledger.MaxAgentCapabilities))
	}
	if err := agentType.Validate(); err != nil {
		return nil, ErrInvalidAgentType.With(err.Error())
	}
	for _, c := range capabilities {
		if err := c.Validate(); err != nil {
			return nil, ErrInvalidCapability.With(err.Error())
		}
	}

	agentID := caller.Identity
	keys := []string{ledger.SwarmKey(s.instance), ledger.AgentKey(s.instance, agentID)}

	var agent *ledger.AgentRecord
	err := s.runner.Run(ctx, identity.OpRegisterAgent, caller, keys, func(tx *ledger.Tx) error {
		registry, err := requireSwarm(tx)
		if err != nil {
			return err
		}

		if _, err := tx.Agent(agentID); err == nil {
			return ErrAlreadyRegistered.With(agentID)
		} else if !ledger.IsNotFound(err) {
			return err
		}

		agent = &ledger.AgentRecord{
			AgentID:         agentID,
			AgentType:       agentType,
			Capabilities:    append([]ledger.Capability{}, capabilities...),
			RegisteredAtMs:  tx.NowMs(),
			LastActiveMs:    tx.NowMs(),
			Active:          true,
			ReputationScore: ledger.InitialReputation,
		}
		if err := tx.PutAgent(agent); err != nil {
			return err
		}

		registry.TotalAgents++
		tx.PutSwarm(registry)

		return tx.Emit(ledger.EventAgentRegistered, agent)
	}, zap.String("agent_id", agentID), zap.String("agent_type", string(agentType)))
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// Heartbeat refreshes the caller's last_active timestamp. It emits no event.
func (s *Service) Heartbeat(ctx context.Context, caller identity.Caller) error {
	agentID := caller.Identity

	return s.runner.Run(ctx, identity.OpHeartbeat, caller, []string{ledger.AgentKey(s.instance, agentID)}, func(tx *ledger.Tx) error {
		agent, err := RequireAgent(tx, agentID)
		if err != nil {
			return err
		}
		agent.LastActiveMs = tx.NowMs()
		return tx.PutAgent(agent)
	}, zap.String("agent_id", agentID))
}

// Deactivate marks an agent inactive. The agent itself or the swarm authority
// may do this. Inactive agents keep their record and past coordinations but
// can no longer join or vote.
func (s *Service) Deactivate(ctx context.Context, caller identity.Caller, agentID string) error {
	keys := []string{ledger.SwarmKey(s.instance), ledger.AgentKey(s.instance, agentID)}

	return s.runner.Run(ctx, identity.OpDeactivateAgent, caller, keys, func(tx *ledger.Tx) error {
		registry, err := requireSwarm(tx)
		if err != nil {
			return err
		}
		if caller.Identity != agentID && !isAuthority(registry, caller.Identity) {
			return ErrUnauthorized.With("only the agent or the swarm authority may deactivate it")
		}

		agent, err := RequireAgent(tx, agentID)
		if err != nil {
			return err
		}
		if !agent.Active {
			return ErrAgentInactive.With(agentID)
		}

		agent.Active = false
		if err := tx.PutAgent(agent); err != nil {
			return err
		}

		return tx.Emit(ledger.EventAgentDeactivated, ledger.AgentDeactivatedPayload{
			AgentID:       agentID,
			DeactivatedBy: caller.Identity,
		})
	}, zap.String("agent_id", agentID))
}

// Agent returns one agent record, or ErrAgentNotFound.
func (s *Service) Agent(ctx context.Context, agentID string) (*ledger.AgentRecord, error) {
	agent, err := s.client.Agent(ctx, agentID)
	if ledger.IsNotFound(err) {
		return nil, ErrAgentNotFound.With(agentID)
	}
	return agent, err
}

// Agents returns every agent record.
func (s *Service) Agents(ctx context.Context) ([]*ledger.AgentRecord, error) {
	return s.client.Agents(ctx)
}
