package metrics

import (
	"testing"
	"time"

	"github.com/dyluth/brock/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func newTestCollector(t *testing.T) *Collector {
	return NewCollector("brock", prometheus.NewRegistry(), zaptest.NewLogger(t))
}

func TestRecordOperation(t *testing.T) {
	c := newTestCollector(t)

	c.RecordOperation("vote_on_coordination", OutcomeOK, 3*time.Millisecond)
	c.RecordOperation("vote_on_coordination", OutcomeOK, 4*time.Millisecond)
	c.RecordOperation("vote_on_coordination", "AlreadyVoted", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operationsTotal.WithLabelValues("vote_on_coordination", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operationsTotal.WithLabelValues("vote_on_coordination", "AlreadyVoted")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.operationDuration))
}

func TestRecordEvent(t *testing.T) {
	c := newTestCollector(t)

	c.RecordEvent(ledger.EventVoteCast)
	c.RecordEvent(ledger.EventVoteCast)
	c.RecordEvent(ledger.EventCoordinationApproved)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("VoteCast")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("CoordinationApproved")))
}

func TestSwarmGauges(t *testing.T) {
	c := newTestCollector(t)

	c.SetSwarm(&ledger.SwarmRegistry{TotalAgents: 7, ActiveCoordinations: 2, TotalCoordinations: 5})
	assert.Equal(t, 7.0, testutil.ToFloat64(c.registeredAgents))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.activeCoordinations))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.totalCoordinations))

	c.SetAgentReputation("agent-1", 95)
	assert.Equal(t, 95.0, testutil.ToFloat64(c.agentReputation.WithLabelValues("agent-1")))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordOperation("x", OutcomeOK, time.Second)
		c.RecordEvent(ledger.EventVoteCast)
		c.SetSwarm(&ledger.SwarmRegistry{})
		c.SetAgentReputation("a", 1)
	})
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		newTestCollector(t)
		newTestCollector(t)
	})
}
