package threat

import (
	"context"
	"fmt"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/swarm"
	"github.com/dyluth/brock/pkg/ledger"
	"go.uber.org/zap"
)

// Confirm records the caller's independent confirmation of a threat. The
// detector cannot confirm its own report. The confirmation that brings an
// Active threat to EscalationConfirmations moves it to Confirmed.
func (s *Service) Confirm(ctx context.Context, caller identity.Caller, threatID uint64) (*ledger.Threat, error) {
	var threat *ledger.Threat

	err := s.runner.Run(ctx, identity.OpConfirmThreat, caller, []string{ledger.ThreatKey(s.instance, threatID)}, func(tx *ledger.Tx) error {
		var err error
		threat, err = requireThreat(tx, threatID)
		if err != nil {
			return err
		}

		switch {
		case threat.DetectedBy == caller.Identity:
			return swarm.ErrCannotConfirmOwn
		case threat.IsConfirmedBy(caller.Identity):
			return swarm.ErrAlreadyConfirmed.With(fmt.Sprintf("threat %d", threatID))
		case len(threat.ConfirmedBy) >= ledger.MaxThreatConfirmations:
			return swarm.ErrTooManyConfirmations.With(
				fmt.Sprintf("threat %d already has %d confirmations", threatID, len(threat.ConfirmedBy)))
		}

		threat.ConfirmedBy = append(threat.ConfirmedBy, caller.Identity)
		escalated := len(threat.ConfirmedBy) >= ledger.EscalationConfirmations &&
			threat.Status == ledger.ThreatStatusActive
		if escalated {
			threat.Status = ledger.ThreatStatusConfirmed
		}

		if err := tx.PutThreat(threat); err != nil {
			return err
		}

		if escalated {
			if err := tx.Emit(ledger.EventThreatEscalated, ledger.ThreatStatusChangedPayload{
				ThreatID:  threatID,
				OldStatus: ledger.ThreatStatusActive,
				NewStatus: ledger.ThreatStatusConfirmed,
				ChangedBy: caller.Identity,
			}); err != nil {
				return err
			}
		}
		return tx.Emit(ledger.EventThreatConfirmed, ledger.ThreatConfirmedPayload{
			ThreatID:           threatID,
			ConfirmedBy:        caller.Identity,
			TotalConfirmations: len(threat.ConfirmedBy),
		})
	}, threatField(threatID))
	if err != nil {
		return nil, err
	}
	return threat, nil
}

// MarkFalsePositive records the caller's vote that a threat is not real. The
// vote that reaches FalsePositiveVoteQuorum moves the threat to FalsePositive.
func (s *Service) MarkFalsePositive(ctx context.Context, caller identity.Caller, threatID uint64) (*ledger.Threat, error) {
	var threat *ledger.Threat

	err := s.runner.Run(ctx, identity.OpMarkFalsePositive, caller, []string{ledger.ThreatKey(s.instance, threatID)}, func(tx *ledger.Tx) error {
		var err error
		threat, err = requireThreat(tx, threatID)
		if err != nil {
			return err
		}
		if threat.HasFalsePositiveVote(caller.Identity) {
			return swarm.ErrAlreadyVoted.With(fmt.Sprintf("false positive vote on threat %d", threatID))
		}

		threat.FalsePositiveVotes = append(threat.FalsePositiveVotes, caller.Identity)
		old := threat.Status
		flipped := len(threat.FalsePositiveVotes) >= ledger.FalsePositiveVoteQuorum &&
			old != ledger.ThreatStatusFalsePositive
		if flipped {
			threat.Status = ledger.ThreatStatusFalsePositive
		}

		if err := tx.PutThreat(threat); err != nil {
			return err
		}
		if !flipped {
			return nil
		}
		return tx.Emit(ledger.EventThreatStatusChanged, ledger.ThreatStatusChangedPayload{
			ThreatID:  threatID,
			OldStatus: old,
			NewStatus: ledger.ThreatStatusFalsePositive,
			ChangedBy: caller.Identity,
		})
	}, threatField(threatID))
	if err != nil {
		return nil, err
	}
	return threat, nil
}

// UpdateStatus sets a threat's status. Only the counter authority may call it.
func (s *Service) UpdateStatus(ctx context.Context, caller identity.Caller, threatID uint64, status ledger.ThreatStatus) (*ledger.Threat, error) {
	if err := status.Validate(); err != nil {
		return nil, swarm.ErrInvalidThreatStatus.With(err.Error())
	}

	keys := []string{ledger.ThreatCounterKey(s.instance), ledger.ThreatKey(s.instance, threatID)}

	var threat *ledger.Threat
	err := s.runner.Run(ctx, identity.OpUpdateThreatStatus, caller, keys, func(tx *ledger.Tx) error {
		counter, err := requireCounter(tx)
		if err != nil {
			return err
		}
		if counter.Authority != caller.Identity {
			return swarm.ErrUnauthorized.With("only the threat counter authority may change status")
		}

		threat, err = requireThreat(tx, threatID)
		if err != nil {
			return err
		}

		old := threat.Status
		threat.Status = status
		if err := tx.PutThreat(threat); err != nil {
			return err
		}
		return tx.Emit(ledger.EventThreatStatusChanged, ledger.ThreatStatusChangedPayload{
			ThreatID:  threatID,
			OldStatus: old,
			NewStatus: status,
			ChangedBy: caller.Identity,
		})
	}, threatField(threatID), zap.String("status", string(status)))
	if err != nil {
		return nil, err
	}
	return threat, nil
}
