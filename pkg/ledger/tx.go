package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Tx is the view of the ledger inside one Update closure.
//
// Reads go through the WATCHed connection and see committed state only; a
// record written with a Put method is not visible to later reads in the same
// closure. Writes and events are buffered and sent in a single MULTI/EXEC when
// the closure returns nil.
type Tx struct {
	ctx    context.Context
	client *Client
	rtx    *redis.Tx
	nowMs  int64
	writes []stagedWrite
	events []*Event
}

type stagedWrite struct {
	key  string
	hash map[string]interface{}
}

// Context returns the context the transaction runs under.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// NowMs returns the transaction timestamp in Unix milliseconds. It is fixed for
// the duration of one attempt so every record and event it writes agrees.
func (tx *Tx) NowMs() int64 {
	return tx.nowMs
}

// InstanceName returns the instance namespace.
func (tx *Tx) InstanceName() string {
	return tx.client.instanceName
}

// Watch adds keys to the watched set. Use it before reading a record whose key
// is only known after an earlier read.
func (tx *Tx) Watch(keys ...string) error {
	if err := tx.rtx.Watch(tx.ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to watch keys: %w", err)
	}
	return nil
}

// Swarm reads the swarm registry singleton.
func (tx *Tx) Swarm() (*SwarmRegistry, error) {
	return getSwarm(tx.ctx, tx.rtx, tx.InstanceName())
}

// PutSwarm stages a write of the swarm registry.
func (tx *Tx) PutSwarm(s *SwarmRegistry) {
	tx.stage(SwarmKey(tx.InstanceName()), SwarmToHash(s))
}

// Agent reads an agent record.
func (tx *Tx) Agent(agentID string) (*AgentRecord, error) {
	return getAgent(tx.ctx, tx.rtx, tx.InstanceName(), agentID)
}

// PutAgent stages a write of an agent record.
func (tx *Tx) PutAgent(a *AgentRecord) error {
	hash, err := AgentToHash(a)
	if err != nil {
		return fmt.Errorf("failed to serialize agent: %w", err)
	}
	tx.stage(AgentKey(tx.InstanceName(), a.AgentID), hash)
	return nil
}

// Coordination reads a coordination.
func (tx *Tx) Coordination(coordinationID uint64) (*Coordination, error) {
	return getCoordination(tx.ctx, tx.rtx, tx.InstanceName(), coordinationID)
}

// PutCoordination stages a write of a coordination.
func (tx *Tx) PutCoordination(c *Coordination) error {
	hash, err := CoordinationToHash(c)
	if err != nil {
		return fmt.Errorf("failed to serialize coordination: %w", err)
	}
	tx.stage(CoordinationKey(tx.InstanceName(), c.ID), hash)
	return nil
}

// ThreatCounter reads the threat counter singleton.
func (tx *Tx) ThreatCounter() (*ThreatCounter, error) {
	return getThreatCounter(tx.ctx, tx.rtx, tx.InstanceName())
}

// PutThreatCounter stages a write of the threat counter.
func (tx *Tx) PutThreatCounter(tc *ThreatCounter) {
	tx.stage(ThreatCounterKey(tx.InstanceName()), ThreatCounterToHash(tc))
}

// Threat reads a threat.
func (tx *Tx) Threat(threatID uint64) (*Threat, error) {
	return getThreat(tx.ctx, tx.rtx, tx.InstanceName(), threatID)
}

// PutThreat stages a write of a threat.
func (tx *Tx) PutThreat(t *Threat) error {
	hash, err := ThreatToHash(t)
	if err != nil {
		return fmt.Errorf("failed to serialize threat: %w", err)
	}
	tx.stage(ThreatKey(tx.InstanceName(), t.ID), hash)
	return nil
}

// Watchlist reads a watchlist entry.
func (tx *Tx) Watchlist(address string) (*WatchlistEntry, error) {
	return getWatchlist(tx.ctx, tx.rtx, tx.InstanceName(), address)
}

// PutWatchlist stages a write of a watchlist entry.
func (tx *Tx) PutWatchlist(w *WatchlistEntry) {
	tx.stage(WatchlistKey(tx.InstanceName(), w.Address), WatchlistToHash(w))
}

// Reasoning reads a reasoning commit.
func (tx *Tx) Reasoning(agentID string, threatID uint64) (*ReasoningCommit, error) {
	return getReasoning(tx.ctx, tx.rtx, tx.InstanceName(), agentID, threatID)
}

// PutReasoning stages a write of a reasoning commit.
func (tx *Tx) PutReasoning(r *ReasoningCommit) {
	tx.stage(ReasoningKey(tx.InstanceName(), r.AgentID, r.ThreatID), ReasoningToHash(r))
}

// ReasoningStats reads an agent's reasoning statistics.
func (tx *Tx) ReasoningStats(agentID string) (*ReasoningStats, error) {
	return getReasoningStats(tx.ctx, tx.rtx, tx.InstanceName(), agentID)
}

// PutReasoningStats stages a write of reasoning statistics.
func (tx *Tx) PutReasoningStats(s *ReasoningStats) {
	tx.stage(ReasoningStatsKey(tx.InstanceName(), s.AgentID), ReasoningStatsToHash(s))
}

// Emit stages an event for the outbox. The payload is JSON-encoded now so a
// marshalling failure aborts the transaction before anything is written.
func (tx *Tx) Emit(eventType EventType, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	tx.events = append(tx.events, &Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		TimestampMs: tx.nowMs,
		Payload:     raw,
	})
	return nil
}

// Events returns the events staged so far.
func (tx *Tx) Events() []*Event {
	return tx.events
}

func (tx *Tx) stage(key string, hash map[string]interface{}) {
	tx.writes = append(tx.writes, stagedWrite{key: key, hash: hash})
}

// commit sends every staged write and event in one MULTI/EXEC.
func (tx *Tx) commit() error {
	if len(tx.writes) == 0 && len(tx.events) == 0 {
		return nil
	}

	published := make([][]byte, len(tx.events))
	for i, e := range tx.events {
		eventJSON, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		published[i] = eventJSON
	}

	stream := EventStreamKey(tx.InstanceName())
	channel := EventsChannel(tx.InstanceName())

	_, err := tx.rtx.TxPipelined(tx.ctx, func(pipe redis.Pipeliner) error {
		for _, w := range tx.writes {
			pipe.HSet(tx.ctx, w.key, w.hash)
		}
		for i, e := range tx.events {
			pipe.XAdd(tx.ctx, &redis.XAddArgs{
				Stream: stream,
				Values: eventToStreamValues(e),
			})
			pipe.Publish(tx.ctx, channel, published[i])
		}
		return nil
	})
	return err
}

func getSwarm(ctx context.Context, r hashReader, instanceName string) (*SwarmRegistry, error) {
	hash, err := readHash(ctx, r, SwarmKey(instanceName))
	if err != nil {
		return nil, err
	}
	s, err := HashToSwarm(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize swarm registry: %w", err)
	}
	return s, nil
}

func getAgent(ctx context.Context, r hashReader, instanceName, agentID string) (*AgentRecord, error) {
	hash, err := readHash(ctx, r, AgentKey(instanceName, agentID))
	if err != nil {
		return nil, err
	}
	a, err := HashToAgent(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize agent: %w", err)
	}
	return a, nil
}

func getCoordination(ctx context.Context, r hashReader, instanceName string, id uint64) (*Coordination, error) {
	hash, err := readHash(ctx, r, CoordinationKey(instanceName, id))
	if err != nil {
		return nil, err
	}
	c, err := HashToCoordination(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize coordination: %w", err)
	}
	return c, nil
}

func getThreatCounter(ctx context.Context, r hashReader, instanceName string) (*ThreatCounter, error) {
	hash, err := readHash(ctx, r, ThreatCounterKey(instanceName))
	if err != nil {
		return nil, err
	}
	tc, err := HashToThreatCounter(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize threat counter: %w", err)
	}
	return tc, nil
}

func getThreat(ctx context.Context, r hashReader, instanceName string, id uint64) (*Threat, error) {
	hash, err := readHash(ctx, r, ThreatKey(instanceName, id))
	if err != nil {
		return nil, err
	}
	t, err := HashToThreat(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize threat: %w", err)
	}
	return t, nil
}

func getWatchlist(ctx context.Context, r hashReader, instanceName, address string) (*WatchlistEntry, error) {
	hash, err := readHash(ctx, r, WatchlistKey(instanceName, address))
	if err != nil {
		return nil, err
	}
	w, err := HashToWatchlist(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize watchlist entry: %w", err)
	}
	return w, nil
}

func getReasoning(ctx context.Context, r hashReader, instanceName, agentID string, threatID uint64) (*ReasoningCommit, error) {
	hash, err := readHash(ctx, r, ReasoningKey(instanceName, agentID, threatID))
	if err != nil {
		return nil, err
	}
	rc, err := HashToReasoning(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize reasoning commit: %w", err)
	}
	return rc, nil
}

func getReasoningStats(ctx context.Context, r hashReader, instanceName, agentID string) (*ReasoningStats, error) {
	hash, err := readHash(ctx, r, ReasoningStatsKey(instanceName, agentID))
	if err != nil {
		return nil, err
	}
	s, err := HashToReasoningStats(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize reasoning stats: %w", err)
	}
	return s, nil
}
