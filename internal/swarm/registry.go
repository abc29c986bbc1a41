package swarm

import (
	"context"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/pkg/ledger"
	"go.uber.org/zap"
)

// Service is the coordination consensus engine.
type Service struct {
	runner   *Runner
	client   *ledger.Client
	instance string
}

// NewService creates the engine on top of a runner.
func NewService(runner *Runner) *Service {
	return &Service{
		runner:   runner,
		client:   runner.Client(),
		instance: runner.Client().InstanceName(),
	}
}

// Initialize creates the swarm registry with the caller as authority.
// It can succeed only once per instance.
func (s *Service) Initialize(ctx context.Context, caller identity.Caller) (*ledger.SwarmRegistry, error) {
	var registry *ledger.SwarmRegistry

	err := s.runner.Run(ctx, identity.OpInitializeSwarm, caller, []string{ledger.SwarmKey(s.instance)}, func(tx *ledger.Tx) error {
		_, err := tx.Swarm()
		if err == nil {
			return ErrAlreadyInitialized
		}
		if !ledger.IsNotFound(err) {
			return err
		}

		registry = &ledger.SwarmRegistry{
			Authority:       caller.Identity,
			InitializedAtMs: tx.NowMs(),
		}
		tx.PutSwarm(registry)
		return tx.Emit(ledger.EventSwarmInitialized, registry)
	})
	if err != nil {
		return nil, err
	}
	return registry, nil
}

// Registry returns the swarm registry, or ErrNotInitialized.
func (s *Service) Registry(ctx context.Context) (*ledger.SwarmRegistry, error) {
	registry, err := s.client.Swarm(ctx)
	if ledger.IsNotFound(err) {
		return nil, ErrNotInitialized
	}
	return registry, err
}

// isAuthority reports whether identity controls the swarm.
func isAuthority(registry *ledger.SwarmRegistry, id string) bool {
	return registry.Authority == id
}

func coordinationField(id uint64) zap.Field {
	return zap.Uint64("coordination_id", id)
}
