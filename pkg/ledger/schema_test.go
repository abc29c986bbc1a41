package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordKeys(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"swarm", SwarmKey("prod"), "brock:prod:swarm"},
		{"agent", AgentKey("prod", "ab12"), "brock:prod:agent:ab12"},
		{"agent pattern", AgentKeyPattern("prod"), "brock:prod:agent:*"},
		{"coordination", CoordinationKey("prod", 42), "brock:prod:coordination:42"},
		{"threat counter", ThreatCounterKey("prod"), "brock:prod:threat_counter"},
		{"threat", ThreatKey("prod", 7), "brock:prod:threat:7"},
		{"watchlist", WatchlistKey("prod", "0xdead"), "brock:prod:watchlist:0xdead"},
		{"reasoning", ReasoningKey("prod", "ab12", 7), "brock:prod:reasoning:ab12:7"},
		{"reasoning stats", ReasoningStatsKey("prod", "ab12"), "brock:prod:reasoning_stats:ab12"},
		{"event stream", EventStreamKey("prod"), "brock:prod:events"},
		{"events channel", EventsChannel("prod"), "brock:prod:ledger_events"},
		{"prefix", KeyPrefix("prod"), "brock:prod:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.got)
		})
	}
}

func TestInstanceNameNamespacing(t *testing.T) {
	assert.NotEqual(t, SwarmKey("a"), SwarmKey("b"))
	assert.NotEqual(t, AgentKey("a", "x"), AgentKey("b", "x"))
	assert.NotEqual(t, CoordinationKey("a", 1), CoordinationKey("b", 1))
	assert.NotEqual(t, EventStreamKey("a"), EventStreamKey("b"))
}

// Keys for distinct records never collide, including across entity types that
// share an ID space.
func TestKeysAreCollisionFree(t *testing.T) {
	seen := map[string]bool{}
	add := func(key string) {
		assert.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}

	add(SwarmKey("i"))
	add(ThreatCounterKey("i"))
	add(EventStreamKey("i"))
	for id := uint64(0); id < 20; id++ {
		add(CoordinationKey("i", id))
		add(ThreatKey("i", id))
		add(ReasoningKey("i", "agent", id))
	}
	add(AgentKey("i", "agent"))
	add(ReasoningStatsKey("i", "agent"))
	add(WatchlistKey("i", "agent"))
}
