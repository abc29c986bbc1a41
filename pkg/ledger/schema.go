package ledger

import (
	"fmt"
	"strconv"
)

// Redis key pattern helpers
//
// Every record lives at a key derived only from stable identifiers, so any
// caller can recompute where a record is stored. Keys are namespaced by
// instance name so several swarms can share one Redis server.
//
// Key pattern: brock:{instance_name}:{entity}[:{id}]

// KeyPrefix returns the namespace prefix shared by all keys of an instance.
func KeyPrefix(instanceName string) string {
	return fmt.Sprintf("brock:%s:", instanceName)
}

// SwarmKey returns the Redis key of the swarm registry singleton.
// Pattern: brock:{instance_name}:swarm
func SwarmKey(instanceName string) string {
	return fmt.Sprintf("brock:%s:swarm", instanceName)
}

// AgentKey returns the Redis key for an agent record.
// Pattern: brock:{instance_name}:agent:{agent_id}
func AgentKey(instanceName, agentID string) string {
	return fmt.Sprintf("brock:%s:agent:%s", instanceName, agentID)
}

// AgentKeyPattern returns the SCAN pattern matching every agent record.
func AgentKeyPattern(instanceName string) string {
	return fmt.Sprintf("brock:%s:agent:*", instanceName)
}

// CoordinationKey returns the Redis key for a coordination.
// Pattern: brock:{instance_name}:coordination:{coordination_id}
func CoordinationKey(instanceName string, coordinationID uint64) string {
	return fmt.Sprintf("brock:%s:coordination:%s", instanceName, strconv.FormatUint(coordinationID, 10))
}

// ThreatCounterKey returns the Redis key of the threat counter singleton.
// Pattern: brock:{instance_name}:threat_counter
func ThreatCounterKey(instanceName string) string {
	return fmt.Sprintf("brock:%s:threat_counter", instanceName)
}

// ThreatKey returns the Redis key for a threat.
// Pattern: brock:{instance_name}:threat:{threat_id}
func ThreatKey(instanceName string, threatID uint64) string {
	return fmt.Sprintf("brock:%s:threat:%s", instanceName, strconv.FormatUint(threatID, 10))
}

// WatchlistKey returns the Redis key for a watchlist entry.
// Pattern: brock:{instance_name}:watchlist:{address}
func WatchlistKey(instanceName, address string) string {
	return fmt.Sprintf("brock:%s:watchlist:%s", instanceName, address)
}

// ReasoningKey returns the Redis key for a reasoning commit.
// There is at most one commit per (agent, threat) pair.
// Pattern: brock:{instance_name}:reasoning:{agent_id}:{threat_id}
func ReasoningKey(instanceName, agentID string, threatID uint64) string {
	return fmt.Sprintf("brock:%s:reasoning:%s:%s", instanceName, agentID, strconv.FormatUint(threatID, 10))
}

// ReasoningStatsKey returns the Redis key for an agent's reasoning stats.
// Pattern: brock:{instance_name}:reasoning_stats:{agent_id}
func ReasoningStatsKey(instanceName, agentID string) string {
	return fmt.Sprintf("brock:%s:reasoning_stats:%s", instanceName, agentID)
}

// EventStreamKey returns the Redis stream holding the event outbox.
// Pattern: brock:{instance_name}:events
func EventStreamKey(instanceName string) string {
	return fmt.Sprintf("brock:%s:events", instanceName)
}

// EventsChannel returns the Pub/Sub channel used for live event fan-out.
// Pattern: brock:{instance_name}:ledger_events
func EventsChannel(instanceName string) string {
	return fmt.Sprintf("brock:%s:ledger_events", instanceName)
}
