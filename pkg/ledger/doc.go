// Package ledger provides type-safe Go definitions, the Redis key schema and a
// transactional client for the Brock coordination ledger.
//
// # Overview
//
// The ledger is the shared, durable state that every Brock component (the
// brock CLI, the brockd daemon and the agents themselves) reads and writes.
// It holds the swarm registry, one record per registered agent, one record per
// coordinated threat response, and the collaborator records of the threat
// registry and the reasoning ledger.
//
// # Core Concepts
//
// Records are Redis hashes stored at deterministic keys derived from stable
// identifiers. Any caller can recompute the key of a record it wants to read
// without a directory lookup.
//
// Every mutation runs inside Client.Update: the keys the operation reads are
// WATCHed, the closure validates and stages writes on a Tx, and the staged
// writes plus the operation's events are committed in one MULTI/EXEC. Either
// all of it lands or none of it does.
//
// Events form a typed outbox. Each committed event is appended to a Redis
// stream (total order, replayable) and published on a Pub/Sub channel for live
// observers.
//
// # Multi-Instance Support
//
// All keys and channels are namespaced by instance name so several swarms can
// share one Redis server without interference.
//
// # Usage Example
//
//	client, err := ledger.NewClient(&redis.Options{Addr: "localhost:6379"}, "default")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Update(ctx, []string{ledger.SwarmKey("default")}, func(tx *ledger.Tx) error {
//		swarm, err := tx.Swarm()
//		if err != nil {
//			return err
//		}
//		swarm.TotalAgents++
//		tx.PutSwarm(swarm)
//		return tx.Emit(ledger.EventSwarmInitialized, swarm)
//	})
//
// # Redis Schema
//
// All keys follow the pattern: brock:{instance_name}:{entity}[:{id}]
//
// Swarm registry: brock:{instance_name}:swarm
// Agents: brock:{instance_name}:agent:{agent_id}
// Coordinations: brock:{instance_name}:coordination:{coordination_id}
// Threat counter: brock:{instance_name}:threat_counter
// Threats: brock:{instance_name}:threat:{threat_id}
// Watchlist: brock:{instance_name}:watchlist:{address}
// Reasoning commits: brock:{instance_name}:reasoning:{agent_id}:{threat_id}
// Reasoning stats: brock:{instance_name}:reasoning_stats:{agent_id}
//
// Event stream: brock:{instance_name}:events
// Event channel: brock:{instance_name}:ledger_events
package ledger
