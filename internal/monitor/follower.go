package monitor

import (
	"context"
	"time"

	"github.com/dyluth/brock/internal/metrics"
	"github.com/dyluth/brock/pkg/ledger"
	"go.uber.org/zap"
)

// DefaultBlock is how long one outbox read waits for new entries.
const DefaultBlock = 2 * time.Second

// Follower tails the event outbox and mirrors it into metrics. It resumes
// after the newest entry present at startup, so a restart does not recount
// history.
type Follower struct {
	client    *ledger.Client
	collector *metrics.Collector
	logger    *zap.Logger
	block     time.Duration
	retry     time.Duration
	onEvent   func(*ledger.Event)
}

// NewFollower creates a follower. collector may be nil.
func NewFollower(client *ledger.Client, collector *metrics.Collector, logger *zap.Logger) *Follower {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Follower{
		client:    client,
		collector: collector,
		logger:    logger.With(zap.String("component", "follower")),
		block:     DefaultBlock,
		retry:     time.Second,
	}
}

// SetBlock overrides DefaultBlock.
func (f *Follower) SetBlock(d time.Duration) {
	f.block = d
}

// OnEvent registers a callback invoked for each event after metrics are
// updated.
func (f *Follower) OnEvent(fn func(*ledger.Event)) {
	f.onEvent = fn
}

// Snapshot sets every gauge from current ledger state.
func (f *Follower) Snapshot(ctx context.Context) error {
	if err := f.refreshSwarm(ctx); err != nil {
		return err
	}

	agents, err := f.client.Agents(ctx)
	if err != nil {
		return err
	}
	for _, a := range agents {
		f.collector.SetAgentReputation(a.AgentID, a.ReputationScore)
	}
	return nil
}

// Run follows the outbox until ctx is cancelled. Read errors are logged and
// retried.
func (f *Follower) Run(ctx context.Context) error {
	lastID, err := f.client.LastEventID(ctx)
	if err != nil {
		return err
	}
	if err := f.Snapshot(ctx); err != nil {
		return err
	}

	f.logger.Info("following ledger events", zap.String("from", lastID))

	for {
		events, err := f.client.ReadEventsAfter(ctx, lastID, f.block)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			f.logger.Warn("failed to read ledger events", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(f.retry):
			}
			continue
		}

		if len(events) == 0 {
			continue
		}
		for _, e := range events {
			f.handle(e)
			lastID = e.StreamID
		}
		if err := f.refreshSwarm(ctx); err != nil {
			f.logger.Warn("failed to refresh swarm gauges", zap.Error(err))
		}
	}
}

func (f *Follower) handle(e *ledger.Event) {
	f.collector.RecordEvent(e.Type)

	switch e.Type {
	case ledger.EventReputationUpdated:
		var p ledger.ReputationUpdatedPayload
		if err := e.Decode(&p); err != nil {
			f.logger.Warn("malformed event", zap.String("event_id", e.ID), zap.Error(err))
			break
		}
		f.collector.SetAgentReputation(p.AgentID, p.NewScore)
	case ledger.EventAgentRegistered:
		var a ledger.AgentRecord
		if err := e.Decode(&a); err != nil {
			f.logger.Warn("malformed event", zap.String("event_id", e.ID), zap.Error(err))
			break
		}
		f.collector.SetAgentReputation(a.AgentID, a.ReputationScore)
	}

	f.logger.Debug("ledger event",
		zap.String("event_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.String("stream_id", e.StreamID),
	)

	if f.onEvent != nil {
		f.onEvent(e)
	}
}

func (f *Follower) refreshSwarm(ctx context.Context) error {
	registry, err := f.client.Swarm(ctx)
	if ledger.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	f.collector.SetSwarm(registry)
	return nil
}
