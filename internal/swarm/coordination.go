package swarm

import (
	"context"
	"fmt"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/pkg/ledger"
	"go.uber.org/zap"
)

// InitiateRequest describes a proposed joint response to a threat.
type InitiateRequest struct {
	ThreatID             uint64
	RequiredCapabilities []ledger.Capability
	ActionPlan           string
	Urgency              ledger.Urgency
}

// Validate checks the request against the record limits.
func (r InitiateRequest) Validate() error {
	switch {
	case len(r.RequiredCapabilities) == 0:
		return ErrNoRequiredCapabilities
	case len(r.RequiredCapabilities) > ledger.MaxRequiredCapabilities:
		return ErrTooManyRequiredCapabilities.With(
			fmt.Sprintf("%d capabilities exceeds the limit of %d", len(r.RequiredCapabilities), ledger.MaxRequiredCapabilities))
	case len(r.ActionPlan) > ledger.MaxActionPlanLength:
		return ErrActionPlanTooLong.With(
			fmt.Sprintf("%d bytes exceeds the limit of %d", len(r.ActionPlan), ledger.MaxActionPlanLength))
	}
	for _, c := range r.RequiredCapabilities {
		if err := c.Validate(); err != nil {
			return ErrInvalidCapability.With(err.Error())
		}
	}
	if err := r.Urgency.Validate(); err != nil {
		return ErrInvalidUrgency.With(err.Error())
	}
	return nil
}

// Initiate opens a Pending coordination. Its ID is the current
// total_coordinations counter, which is then incremented together with
// active_coordinations. Any authenticated identity may initiate.
func (s *Service) Initiate(ctx context.Context, caller identity.Caller, req InitiateRequest) (*ledger.Coordination, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var coord *ledger.Coordination
	err := s.runner.Run(ctx, identity.OpInitiateCoordination, caller, []string{ledger.SwarmKey(s.instance)}, func(tx *ledger.Tx) error {
		registry, err := requireSwarm(tx)
		if err != nil {
			return err
		}

		// The watched counter serializes ID allocation, so the new key
		// itself needs no watch.
		coord = &ledger.Coordination{
			ID:                   registry.TotalCoordinations,
			ThreatID:             req.ThreatID,
			Initiator:            caller.Identity,
			RequiredCapabilities: append([]ledger.Capability{}, req.RequiredCapabilities...),
			ActionPlan:           req.ActionPlan,
			Urgency:              req.Urgency,
			Status:               ledger.CoordinationStatusPending,
			ParticipatingAgents:  []string{},
			Voters:               []string{},
			InitiatedAtMs:        tx.NowMs(),
		}
		if err := tx.PutCoordination(coord); err != nil {
			return err
		}

		registry.TotalCoordinations++
		registry.ActiveCoordinations++
		tx.PutSwarm(registry)

		return tx.Emit(ledger.EventCoordinationInitiated, coord)
	}, zap.Uint64("threat_id", req.ThreatID), zap.String("urgency", string(req.Urgency)))
	if err != nil {
		return nil, err
	}
	return coord, nil
}

// Join adds the caller's agent to a Pending coordination. The agent must be
// active and share at least one capability with the coordination.
func (s *Service) Join(ctx context.Context, caller identity.Caller, coordinationID uint64) (*ledger.Coordination, error) {
	agentID := caller.Identity
	keys := []string{
		ledger.CoordinationKey(s.instance, coordinationID),
		ledger.AgentKey(s.instance, agentID),
	}

	var coord *ledger.Coordination
	err := s.runner.Run(ctx, identity.OpJoinCoordination, caller, keys, func(tx *ledger.Tx) error {
		agent, err := RequireAgent(tx, agentID)
		if err != nil {
			return err
		}
		if !agent.Active {
			return ErrAgentInactive.With(agentID)
		}

		coord, err = requireCoordination(tx, coordinationID)
		if err != nil {
			return err
		}
		if coord.Status != ledger.CoordinationStatusPending {
			return ErrNotPending.With(fmt.Sprintf("coordination %d is %s", coordinationID, coord.Status))
		}
		if !agent.HasAnyCapability(coord.RequiredCapabilities) {
			return ErrMissingCapabilities.With(fmt.Sprintf("agent has none of %v", coord.RequiredCapabilities))
		}
		if coord.IsParticipant(agentID) {
			return ErrAlreadyJoined.With(agentID)
		}
		if len(coord.ParticipatingAgents) >= ledger.MaxParticipants {
			return ErrParticipantLimitReached.With(
				fmt.Sprintf("coordination %d already has %d participants", coordinationID, ledger.MaxParticipants))
		}

		coord.ParticipatingAgents = append(coord.ParticipatingAgents, agentID)
		if err := tx.PutCoordination(coord); err != nil {
			return err
		}

		agent.LastActiveMs = tx.NowMs()
		if err := tx.PutAgent(agent); err != nil {
			return err
		}

		return tx.Emit(ledger.EventAgentJoinedCoordination, ledger.AgentJoinedPayload{
			CoordinationID:   coordinationID,
			AgentID:          agentID,
			ParticipantCount: len(coord.ParticipatingAgents),
		})
	}, coordinationField(coordinationID), zap.String("agent_id", agentID))
	if err != nil {
		return nil, err
	}
	return coord, nil
}

// Vote records the caller's vote and resolves the coordination once every
// participant has voted. Each participant votes at most once.
func (s *Service) Vote(ctx context.Context, caller identity.Caller, coordinationID uint64, approve bool) (*ledger.Coordination, error) {
	agentID := caller.Identity
	keys := []string{
		ledger.CoordinationKey(s.instance, coordinationID),
		ledger.AgentKey(s.instance, agentID),
		ledger.SwarmKey(s.instance),
	}

	var coord *ledger.Coordination
	err := s.runner.Run(ctx, identity.OpVoteOnCoordination, caller, keys, func(tx *ledger.Tx) error {
		var err error
		coord, err = requireCoordination(tx, coordinationID)
		if err != nil {
			return err
		}
		if !coord.IsParticipant(agentID) {
			return ErrNotParticipant.With(agentID)
		}
		if coord.Status != ledger.CoordinationStatusPending {
			return ErrNotPending.With(fmt.Sprintf("coordination %d is %s", coordinationID, coord.Status))
		}
		if coord.HasVoted(agentID) {
			return ErrAlreadyVoted.With(agentID)
		}

		agent, err := RequireAgent(tx, agentID)
		if err != nil {
			return err
		}
		if !agent.Active {
			return ErrAgentInactive.With(agentID)
		}

		resolved := tally(coord, agentID, approve, tx.NowMs())
		if err := tx.PutCoordination(coord); err != nil {
			return err
		}

		agent.LastActiveMs = tx.NowMs()
		if err := tx.PutAgent(agent); err != nil {
			return err
		}

		if err := tx.Emit(ledger.EventVoteCast, ledger.VoteCastPayload{
			CoordinationID: coordinationID,
			Voter:          agentID,
			Approve:        approve,
			VotesFor:       coord.VotesFor,
			VotesAgainst:   coord.VotesAgainst,
		}); err != nil {
			return err
		}

		if !resolved {
			return nil
		}

		resolution := ledger.CoordinationResolvedPayload{
			CoordinationID: coordinationID,
			Status:         coord.Status,
			VotesFor:       coord.VotesFor,
			VotesAgainst:   coord.VotesAgainst,
		}
		if coord.Status == ledger.CoordinationStatusApproved {
			return tx.Emit(ledger.EventCoordinationApproved, resolution)
		}

		// Rejected is terminal, so the coordination stops counting as active
		registry, err := requireSwarm(tx)
		if err != nil {
			return err
		}
		registry.ActiveCoordinations = saturatingDec(registry.ActiveCoordinations)
		tx.PutSwarm(registry)

		return tx.Emit(ledger.EventCoordinationRejected, resolution)
	}, coordinationField(coordinationID), zap.String("agent_id", agentID), zap.Bool("approve", approve))
	if err != nil {
		return nil, err
	}
	return coord, nil
}

// Execute marks an Approved coordination as Executed and records the result
// fingerprint. Only the swarm authority or the initiator may execute.
func (s *Service) Execute(ctx context.Context, caller identity.Caller, coordinationID uint64, resultHash ledger.Hash) (*ledger.Coordination, error) {
	keys := []string{
		ledger.CoordinationKey(s.instance, coordinationID),
		ledger.SwarmKey(s.instance),
	}

	var coord *ledger.Coordination
	err := s.runner.Run(ctx, identity.OpExecuteCoordination, caller, keys, func(tx *ledger.Tx) error {
		registry, err := requireSwarm(tx)
		if err != nil {
			return err
		}
		coord, err = requireCoordination(tx, coordinationID)
		if err != nil {
			return err
		}
		if !isAuthority(registry, caller.Identity) && coord.Initiator != caller.Identity {
			return ErrUnauthorized.With("only the swarm authority or the initiator may execute")
		}
		if coord.Status != ledger.CoordinationStatusApproved {
			return ErrNotApproved.With(fmt.Sprintf("coordination %d is %s", coordinationID, coord.Status))
		}

		h := resultHash
		coord.Status = ledger.CoordinationStatusExecuted
		coord.ExecutedAtMs = tx.NowMs()
		coord.ResultHash = &h
		if err := tx.PutCoordination(coord); err != nil {
			return err
		}

		registry.ActiveCoordinations = saturatingDec(registry.ActiveCoordinations)
		tx.PutSwarm(registry)

		return tx.Emit(ledger.EventCoordinationExecuted, ledger.CoordinationExecutedPayload{
			CoordinationID: coordinationID,
			ExecutedBy:     caller.Identity,
			ResultHash:     resultHash,
		})
	}, coordinationField(coordinationID))
	if err != nil {
		return nil, err
	}
	return coord, nil
}

// Close ends a Pending or Approved coordination administratively as Failed
// or Cancelled. Only the swarm authority or the initiator may close.
func (s *Service) Close(ctx context.Context, caller identity.Caller, coordinationID uint64, status ledger.CoordinationStatus, reason string) (*ledger.Coordination, error) {
	if status != ledger.CoordinationStatusFailed && status != ledger.CoordinationStatusCancelled {
		return nil, ErrInvalidCloseStatus.With(fmt.Sprintf("cannot close as %q, use Failed or Cancelled", status))
	}
	if len(reason) > ledger.MaxCloseReasonLength {
		return nil, ErrReasonTooLong.With(
			fmt.Sprintf("%d bytes exceeds the limit of %d", len(reason), ledger.MaxCloseReasonLength))
	}

	keys := []string{
		ledger.CoordinationKey(s.instance, coordinationID),
		ledger.SwarmKey(s.instance),
	}

	var coord *ledger.Coordination
	err := s.runner.Run(ctx, identity.OpCloseCoordination, caller, keys, func(tx *ledger.Tx) error {
		registry, err := requireSwarm(tx)
		if err != nil {
			return err
		}
		coord, err = requireCoordination(tx, coordinationID)
		if err != nil {
			return err
		}
		if !isAuthority(registry, caller.Identity) && coord.Initiator != caller.Identity {
			return ErrUnauthorized.With("only the swarm authority or the initiator may close")
		}
		if coord.Status.IsTerminal() {
			return ErrAlreadyClosed.With(fmt.Sprintf("coordination %d is %s", coordinationID, coord.Status))
		}

		coord.Status = status
		coord.ClosedReason = reason
		coord.ResolvedAtMs = tx.NowMs()
		if err := tx.PutCoordination(coord); err != nil {
			return err
		}

		registry.ActiveCoordinations = saturatingDec(registry.ActiveCoordinations)
		tx.PutSwarm(registry)

		return tx.Emit(ledger.EventCoordinationClosed, ledger.CoordinationClosedPayload{
			CoordinationID: coordinationID,
			Status:         status,
			Reason:         reason,
			ClosedBy:       caller.Identity,
		})
	}, coordinationField(coordinationID), zap.String("status", string(status)))
	if err != nil {
		return nil, err
	}
	return coord, nil
}

// Coordination returns one coordination, or ErrCoordinationNotFound.
func (s *Service) Coordination(ctx context.Context, coordinationID uint64) (*ledger.Coordination, error) {
	coord, err := s.client.Coordination(ctx, coordinationID)
	if ledger.IsNotFound(err) {
		return nil, ErrCoordinationNotFound.With(fmt.Sprintf("coordination %d", coordinationID))
	}
	return coord, err
}

// Coordinations returns every coordination in ID order.
func (s *Service) Coordinations(ctx context.Context) ([]*ledger.Coordination, error) {
	return s.client.Coordinations(ctx)
}
