package swarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/brock/internal/identity"
	"github.com/dyluth/brock/internal/metrics"
	"github.com/dyluth/brock/pkg/ledger"
	"go.uber.org/zap"
)

// Runner executes identity-gated ledger transactions and records their
// outcome in logs and metrics. The swarm, threat and reasoning services all
// mutate the ledger through one.
type Runner struct {
	client  *ledger.Client
	auth    identity.Authorizer
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewRunner creates a runner. logger and collector may be nil.
func NewRunner(client *ledger.Client, auth identity.Authorizer, logger *zap.Logger, collector *metrics.Collector) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		client:  client,
		auth:    auth,
		logger:  logger.With(zap.String("instance", client.InstanceName())),
		metrics: collector,
	}
}

// Client returns the ledger client.
func (r *Runner) Client() *ledger.Client {
	return r.client
}

// Logger returns the runner's logger.
func (r *Runner) Logger() *zap.Logger {
	return r.logger
}

// Metrics returns the collector, which may be nil.
func (r *Runner) Metrics() *metrics.Collector {
	return r.metrics
}

// Run authorizes caller for op and then applies fn in a ledger transaction
// watching keys. fields are attached to the log line of the outcome.
func (r *Runner) Run(ctx context.Context, op identity.Operation, caller identity.Caller, keys []string, fn func(tx *ledger.Tx) error, fields ...zap.Field) error {
	start := time.Now()

	err := r.auth.Authorize(ctx, op, caller)
	if err != nil {
		err = ErrUnauthorized.Wrap(err)
	} else {
		err = r.client.Update(ctx, keys, fn)
	}

	var typed *Error
	if err != nil && !errors.As(err, &typed) {
		err = fmt.Errorf("%s failed: %w", op, err)
	}

	r.observe(op, caller, time.Since(start), err, fields)
	return err
}

func (r *Runner) observe(op identity.Operation, caller identity.Caller, duration time.Duration, err error, fields []zap.Field) {
	r.metrics.RecordOperation(string(op), CodeOf(err), duration)

	fields = append(fields,
		zap.String("operation", string(op)),
		zap.String("caller", caller.Identity),
		zap.Duration("duration", duration),
	)

	switch {
	case err == nil:
		r.logger.Info("operation committed", fields...)
	case KindOf(err) == KindInternal:
		r.logger.Error("operation failed", append(fields, zap.Error(err))...)
	default:
		r.logger.Debug("operation rejected", append(fields,
			zap.String("code", CodeOf(err)),
			zap.String("kind", KindOf(err).String()),
		)...)
	}
}

// requireSwarm reads the registry inside a transaction, mapping absence to
// ErrNotInitialized.
func requireSwarm(tx *ledger.Tx) (*ledger.SwarmRegistry, error) {
	swarm, err := tx.Swarm()
	if ledger.IsNotFound(err) {
		return nil, ErrNotInitialized
	}
	return swarm, err
}

// RequireAgent reads an agent inside a transaction, mapping absence to
// ErrAgentNotFound.
func RequireAgent(tx *ledger.Tx, agentID string) (*ledger.AgentRecord, error) {
	agent, err := tx.Agent(agentID)
	if ledger.IsNotFound(err) {
		return nil, ErrAgentNotFound.With(agentID)
	}
	return agent, err
}

func requireCoordination(tx *ledger.Tx, id uint64) (*ledger.Coordination, error) {
	coord, err := tx.Coordination(id)
	if ledger.IsNotFound(err) {
		return nil, ErrCoordinationNotFound.With(fmt.Sprintf("coordination %d", id))
	}
	return coord, err
}

// saturatingDec decrements without wrapping below zero.
func saturatingDec(v uint64) uint64 {
	if v == 0 {
		return 0
	}
	return v - 1
}
