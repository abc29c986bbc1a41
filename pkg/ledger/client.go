package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxAttempts bounds how often Update re-runs a transaction whose
// watched keys were modified concurrently.
const DefaultMaxAttempts = 16

// ErrConflict is returned by Update when every attempt lost the optimistic
// race for its watched keys.
var ErrConflict = errors.New("ledger transaction conflict: retries exhausted")

// Client provides instance-scoped Redis operations for the ledger.
// All keys, streams and channels are namespaced with the instance name.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string
	maxAttempts  int
	now          func() time.Time
}

// NewClient creates a new ledger client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: swarm instance identifier (must not be empty)
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
		maxAttempts:  DefaultMaxAttempts,
		now:          time.Now,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// InstanceName returns the namespace this client operates in.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// SetClock replaces the time source used for record and event timestamps.
// Intended for tests.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// SetMaxAttempts overrides DefaultMaxAttempts. Values below 1 are ignored.
func (c *Client) SetMaxAttempts(n int) {
	if n >= 1 {
		c.maxAttempts = n
	}
}

// NowMs returns the client clock in Unix milliseconds.
func (c *Client) NowMs() int64 {
	return c.now().UnixMilli()
}

// Update runs fn inside an optimistic transaction.
//
// The keys are WATCHed before fn runs; fn reads records through the Tx, validates
// them and stages writes and events. When fn returns nil the staged writes, the
// XADD of every event to the outbox stream and the matching PUBLISHes are sent in
// one MULTI/EXEC. If a watched key changed in the meantime EXEC aborts and the
// whole closure is re-run, up to the configured number of attempts, after which
// ErrConflict is returned. When fn returns an error nothing is written.
func (c *Client) Update(ctx context.Context, keys []string, fn func(tx *Tx) error) error {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		err := c.rdb.Watch(ctx, func(rtx *redis.Tx) error {
			tx := &Tx{ctx: ctx, client: c, rtx: rtx, nowMs: c.NowMs()}
			if err := fn(tx); err != nil {
				return err
			}
			return tx.commit()
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

// hashReader is satisfied by both *redis.Client and *redis.Tx.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// readHash returns redis.Nil when the key does not exist.
func readHash(ctx context.Context, r hashReader, key string) (map[string]string, error) {
	hash, err := r.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from Redis: %w", key, err)
	}
	// HGetAll returns an empty map for non-existent keys
	if len(hash) == 0 {
		return nil, redis.Nil
	}
	return hash, nil
}

// Swarm retrieves the swarm registry singleton.
// Returns redis.Nil if the swarm is not initialized; use IsNotFound() to check.
func (c *Client) Swarm(ctx context.Context) (*SwarmRegistry, error) {
	return getSwarm(ctx, c.rdb, c.instanceName)
}

// Agent retrieves an agent record by identity.
func (c *Client) Agent(ctx context.Context, agentID string) (*AgentRecord, error) {
	return getAgent(ctx, c.rdb, c.instanceName, agentID)
}

// Coordination retrieves a coordination by ID.
func (c *Client) Coordination(ctx context.Context, coordinationID uint64) (*Coordination, error) {
	return getCoordination(ctx, c.rdb, c.instanceName, coordinationID)
}

// ThreatCounter retrieves the threat counter singleton.
func (c *Client) ThreatCounter(ctx context.Context) (*ThreatCounter, error) {
	return getThreatCounter(ctx, c.rdb, c.instanceName)
}

// Threat retrieves a threat by ID.
func (c *Client) Threat(ctx context.Context, threatID uint64) (*Threat, error) {
	return getThreat(ctx, c.rdb, c.instanceName, threatID)
}

// Watchlist retrieves the watchlist entry for an address.
func (c *Client) Watchlist(ctx context.Context, address string) (*WatchlistEntry, error) {
	return getWatchlist(ctx, c.rdb, c.instanceName, address)
}

// Reasoning retrieves an agent's reasoning commit for a threat.
func (c *Client) Reasoning(ctx context.Context, agentID string, threatID uint64) (*ReasoningCommit, error) {
	return getReasoning(ctx, c.rdb, c.instanceName, agentID, threatID)
}

// ReasoningStats retrieves an agent's reasoning statistics.
func (c *Client) ReasoningStats(ctx context.Context, agentID string) (*ReasoningStats, error) {
	return getReasoningStats(ctx, c.rdb, c.instanceName, agentID)
}

// Agents returns every agent record sorted by registration time.
// Uses SCAN so it never blocks Redis on large swarms.
func (c *Client) Agents(ctx context.Context) ([]*AgentRecord, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, AgentKeyPattern(c.instanceName), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan agent keys: %w", err)
	}

	hashes, err := c.readHashes(ctx, keys)
	if err != nil {
		return nil, err
	}

	agents := make([]*AgentRecord, 0, len(hashes))
	for _, hash := range hashes {
		agent, err := HashToAgent(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize agent: %w", err)
		}
		agents = append(agents, agent)
	}

	sort.Slice(agents, func(i, j int) bool {
		if agents[i].RegisteredAtMs != agents[j].RegisteredAtMs {
			return agents[i].RegisteredAtMs < agents[j].RegisteredAtMs
		}
		return agents[i].AgentID < agents[j].AgentID
	})
	return agents, nil
}

// AgentIDsWithPrefix returns the IDs of agents whose identity starts with
// prefix. The prefix must not contain glob characters.
func (c *Client) AgentIDsWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	base := AgentKey(c.instanceName, "")

	var ids []string
	iter := c.rdb.Scan(ctx, 0, base+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(base):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan agent keys: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

// Coordinations returns every coordination in ID order.
// IDs are dense, so the swarm counter bounds the range.
func (c *Client) Coordinations(ctx context.Context) ([]*Coordination, error) {
	swarm, err := c.Swarm(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	keys := make([]string, 0, swarm.TotalCoordinations)
	for id := uint64(0); id < swarm.TotalCoordinations; id++ {
		keys = append(keys, CoordinationKey(c.instanceName, id))
	}

	hashes, err := c.readHashes(ctx, keys)
	if err != nil {
		return nil, err
	}

	coordinations := make([]*Coordination, 0, len(hashes))
	for _, hash := range hashes {
		coord, err := HashToCoordination(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize coordination: %w", err)
		}
		coordinations = append(coordinations, coord)
	}
	return coordinations, nil
}

// Threats returns every registered threat in ID order.
func (c *Client) Threats(ctx context.Context) ([]*Threat, error) {
	counter, err := c.ThreatCounter(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	keys := make([]string, 0, counter.Count)
	for id := uint64(0); id < counter.Count; id++ {
		keys = append(keys, ThreatKey(c.instanceName, id))
	}

	hashes, err := c.readHashes(ctx, keys)
	if err != nil {
		return nil, err
	}

	threats := make([]*Threat, 0, len(hashes))
	for _, hash := range hashes {
		threat, err := HashToThreat(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize threat: %w", err)
		}
		threats = append(threats, threat)
	}
	return threats, nil
}

// readHashes fetches many hashes in one pipeline, skipping missing keys.
func (c *Client) readHashes(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read records from Redis: %w", err)
	}

	hashes := make([]map[string]string, 0, len(keys))
	for _, cmd := range cmds {
		if hash := cmd.Val(); len(hash) > 0 {
			hashes = append(hashes, hash)
		}
	}
	return hashes, nil
}

// ReadEvents returns outbox entries between two stream IDs (inclusive).
// Use "-" and "+" for the open ends; count <= 0 means no limit.
func (c *Client) ReadEvents(ctx context.Context, start, end string, count int64) ([]*Event, error) {
	stream := EventStreamKey(c.instanceName)

	var msgs []redis.XMessage
	var err error
	if count > 0 {
		msgs, err = c.rdb.XRangeN(ctx, stream, start, end, count).Result()
	} else {
		msgs, err = c.rdb.XRange(ctx, stream, start, end).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read event stream: %w", err)
	}

	return messagesToEvents(msgs)
}

// ReadEventsAfter blocks up to block for outbox entries newer than lastID.
// Returns an empty slice when the wait times out. A negative block returns
// immediately; zero blocks until an entry arrives. Use "$" to only see entries
// appended after the call, or "0" to start from the beginning.
func (c *Client) ReadEventsAfter(ctx context.Context, lastID string, block time.Duration) ([]*Event, error) {
	streams, err := c.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{EventStreamKey(c.instanceName), lastID},
		Block:   block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read event stream: %w", err)
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return messagesToEvents(msgs)
}

// LastEventID returns the stream ID of the newest outbox entry, or "0" when
// the outbox is empty. Passing it to ReadEventsAfter resumes after that entry.
func (c *Client) LastEventID(ctx context.Context) (string, error) {
	msgs, err := c.rdb.XRevRangeN(ctx, EventStreamKey(c.instanceName), "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("failed to read event stream: %w", err)
	}
	if len(msgs) == 0 {
		return "0", nil
	}
	return msgs[0].ID, nil
}

// StreamIDAt returns the smallest stream ID at or after the given time,
// for use as the start of ReadEvents.
func StreamIDAt(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10) + "-0"
}

// StreamIDBefore returns the largest stream ID strictly before the given time,
// for use as the end of ReadEvents.
func StreamIDBefore(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli()-1, 10) + "-" + strconv.FormatUint(math.MaxUint64, 10)
}

func messagesToEvents(msgs []redis.XMessage) ([]*Event, error) {
	events := make([]*Event, 0, len(msgs))
	for _, msg := range msgs {
		event, err := streamMessageToEvent(msg)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Use this to check if a getter returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
