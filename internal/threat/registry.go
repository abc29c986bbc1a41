package threat

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/swarm"
	"github.com/dyluth/brock/pkg/ledger"
	"go.uber.org/zap"
)

// MaxAddressLength bounds watchlist and target addresses.
const MaxAddressLength = 128

// Service is the threat registry.
type Service struct {
	runner   *swarm.Runner
	client   *ledger.Client
	instance string
}

// NewService creates the registry on top of a runner.
func NewService(runner *swarm.Runner) *Service {
	return &Service{
		runner:   runner,
		client:   runner.Client(),
		instance: runner.Client().InstanceName(),
	}
}

// RegisterRequest describes a new detection.
type RegisterRequest struct {
	ThreatType    ledger.ThreatType
	Severity      uint8
	TargetAddress string // Optional
	Description   string
	EvidenceHash  ledger.Hash
}

// Validate checks the request against the record limits.
func (r RegisterRequest) Validate() error {
	if err := r.ThreatType.Validate(); err != nil {
		return swarm.ErrInvalidThreatType.With(err.Error())
	}
	if r.Severity > ledger.MaxSeverity {
		return swarm.ErrInvalidSeverity.With(fmt.Sprintf("severity %d is above %d", r.Severity, ledger.MaxSeverity))
	}
	if len(r.Description) > ledger.MaxDescriptionLength {
		return swarm.ErrDescriptionTooLong.With(
			fmt.Sprintf("%d bytes exceeds the limit of %d", len(r.Description), ledger.MaxDescriptionLength))
	}
	if r.TargetAddress != "" {
		if err := ValidateAddress(r.TargetAddress); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAddress rejects addresses that cannot be used as a ledger key.
func ValidateAddress(address string) error {
	if address == "" {
		return swarm.ErrInvalidAddress.With("address is empty")
	}
	if len(address) > MaxAddressLength {
		return swarm.ErrInvalidAddress.With(fmt.Sprintf("address is longer than %d bytes", MaxAddressLength))
	}
	if strings.IndexFunc(address, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(":*?[]", r)
	}) >= 0 {
		return swarm.ErrInvalidAddress.With(fmt.Sprintf("address %q contains a reserved character", address))
	}
	return nil
}

// InitializeCounter creates the threat counter with the caller as its
// authority. It can succeed only once per instance.
func (s *Service) InitializeCounter(ctx context.Context, caller identity.Caller) (*ledger.ThreatCounter, error) {
	var counter *ledger.ThreatCounter

	err := s.runner.Run(ctx, identity.OpInitializeThreatCounter, caller, []string{ledger.ThreatCounterKey(s.instance)}, func(tx *ledger.Tx) error {
		if _, err := tx.ThreatCounter(); err == nil {
			return swarm.ErrAlreadyInitialized.With("threat counter already exists")
		} else if !ledger.IsNotFound(err) {
			return err
		}

		counter = &ledger.ThreatCounter{Authority: caller.Identity}
		tx.PutThreatCounter(counter)
		return tx.Emit(ledger.EventThreatCounterInitialized, counter)
	})
	if err != nil {
		return nil, err
	}
	return counter, nil
}

// Register records a detection by the caller. The threat ID is the current
// counter value.
func (s *Service) Register(ctx context.Context, caller identity.Caller, req RegisterRequest) (*ledger.Threat, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var threat *ledger.Threat
	err := s.runner.Run(ctx, identity.OpRegisterThreat, caller, []string{ledger.ThreatCounterKey(s.instance)}, func(tx *ledger.Tx) error {
		counter, err := requireCounter(tx)
		if err != nil {
			return err
		}

		threat = &ledger.Threat{
			ID:            counter.Count,
			ThreatType:    req.ThreatType,
			Severity:      req.Severity,
			TargetAddress: req.TargetAddress,
			Description:   req.Description,
			EvidenceHash:  req.EvidenceHash,
			DetectedAtMs:  tx.NowMs(),
			DetectedBy:    caller.Identity,
			Status:        ledger.ThreatStatusActive,
		}
		if err := tx.PutThreat(threat); err != nil {
			return err
		}

		counter.Count++
		tx.PutThreatCounter(counter)

		return tx.Emit(ledger.EventThreatRegistered, threat)
	}, zap.String("threat_type", string(req.ThreatType)), zap.Uint8("severity", req.Severity))
	if err != nil {
		return nil, err
	}
	return threat, nil
}

// Threat returns a threat by ID, or ErrThreatNotFound.
func (s *Service) Threat(ctx context.Context, threatID uint64) (*ledger.Threat, error) {
	threat, err := s.client.Threat(ctx, threatID)
	if ledger.IsNotFound(err) {
		return nil, swarm.ErrThreatNotFound.With(fmt.Sprintf("threat %d", threatID))
	}
	return threat, err
}

// Threats returns every registered threat in ID order.
func (s *Service) Threats(ctx context.Context) ([]*ledger.Threat, error) {
	return s.client.Threats(ctx)
}

// Counter returns the threat counter, or ErrNotInitialized.
func (s *Service) Counter(ctx context.Context) (*ledger.ThreatCounter, error) {
	counter, err := s.client.ThreatCounter(ctx)
	if ledger.IsNotFound(err) {
		return nil, swarm.ErrNotInitialized.With("threat counter is not initialized")
	}
	return counter, err
}

func requireCounter(tx *ledger.Tx) (*ledger.ThreatCounter, error) {
	counter, err := tx.ThreatCounter()
	if ledger.IsNotFound(err) {
		return nil, swarm.ErrNotInitialized.With("threat counter is not initialized")
	}
	return counter, err
}

func requireThreat(tx *ledger.Tx, id uint64) (*ledger.Threat, error) {
	threat, err := tx.Threat(id)
	if ledger.IsNotFound(err) {
		return nil, swarm.ErrThreatNotFound.With(fmt.Sprintf("threat %d", id))
	}
	return threat, err
}

func threatField(id uint64) zap.Field {
	return zap.Uint64("threat_id", id)
}
