// Package metrics exposes Prometheus collectors for ledger operations, the
// event outbox and swarm-wide gauges.
package metrics

import (
	"time"

	"github.com/dyluth/brock/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// OutcomeOK labels a committed operation.
const OutcomeOK = "ok"

// Collector holds every Brock metric. A nil *Collector is valid and records
// nothing, so services can run without metrics.
type Collector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	eventsTotal       *prometheus.CounterVec

	registeredAgents    prometheus.Gauge
	activeCoordinations prometheus.Gauge
	totalCoordinations  prometheus.Gauge
	agentReputation     *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.operationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of ledger operations by outcome",
		},
		[]string{"operation", "outcome"}, // outcome: ok or the error code
	)

	c.operationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation duration in seconds, including transaction retries",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	c.eventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of ledger events observed",
		},
		[]string{"type"},
	)

	c.registeredAgents = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "registered_agents",
		Help:      "Number of agents registered in the swarm",
	})

	c.activeCoordinations = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_coordinations",
		Help:      "Number of coordinations that are pending or approved",
	})

	c.totalCoordinations = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "coordinations_total",
		Help:      "Number of coordinations ever initiated",
	})

	c.agentReputation = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_reputation_score",
			Help:      "Current reputation score of each agent",
		},
		[]string{"agent_id"},
	)

	return c
}

// RecordOperation records one operation attempt.
func (c *Collector) RecordOperation(operation, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.operationsTotal.WithLabelValues(operation, outcome).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEvent counts one observed event.
func (c *Collector) RecordEvent(eventType ledger.EventType) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(string(eventType)).Inc()
}

// SetSwarm refreshes the swarm gauges from the registry singleton.
func (c *Collector) SetSwarm(s *ledger.SwarmRegistry) {
	if c == nil || s == nil {
		return
	}
	c.registeredAgents.Set(float64(s.TotalAgents))
	c.activeCoordinations.Set(float64(s.ActiveCoordinations))
	c.totalCoordinations.Set(float64(s.TotalCoordinations))
}

// SetAgentReputation records an agent's current score.
func (c *Collector) SetAgentReputation(agentID string, score uint8) {
	if c == nil {
		return
	}
	c.agentReputation.WithLabelValues(agentID).Set(float64(score))
	c.logger.Debug("reputation gauge updated",
		zap.String("agent_id", agentID),
		zap.Uint8("score", score),
	)
}
