package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-instance", client.InstanceName())
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestPing(t *testing.T) {
	client, _ := setupTestClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestUpdateCommitsWritesAndEvents(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()
	client.SetClock(func() time.Time { return time.UnixMilli(1700000000000) })

	swarm := &SwarmRegistry{Authority: "root", InitializedAtMs: 1700000000000}
	err := client.Update(ctx, []string{SwarmKey("test-instance")}, func(tx *Tx) error {
		_, err := tx.Swarm()
		require.True(t, IsNotFound(err))

		tx.PutSwarm(swarm)
		return tx.Emit(EventSwarmInitialized, swarm)
	})
	require.NoError(t, err)

	stored, err := client.Swarm(ctx)
	require.NoError(t, err)
	assert.Equal(t, swarm, stored)
	assert.Equal(t, "root", mr.HGet(SwarmKey("test-instance"), "authority"))

	events, err := client.ReadEvents(ctx, "-", "+", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventSwarmInitialized, events[0].Type)
	assert.Equal(t, int64(1700000000000), events[0].TimestampMs)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEmpty(t, events[0].StreamID)

	var payload SwarmRegistry
	require.NoError(t, events[0].Decode(&payload))
	assert.Equal(t, "root", payload.Authority)
}

func TestUpdateAbortsOnError(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()
	errRejected := errors.New("rejected")

	err := client.Update(ctx, []string{SwarmKey("test-instance")}, func(tx *Tx) error {
		tx.PutSwarm(&SwarmRegistry{Authority: "root"})
		if err := tx.Emit(EventSwarmInitialized, nil); err != nil {
			return err
		}
		return errRejected
	})
	assert.ErrorIs(t, err, errRejected)

	assert.False(t, mr.Exists(SwarmKey("test-instance")), "no record should be written")
	assert.False(t, mr.Exists(EventStreamKey("test-instance")), "no event should be appended")
}

func TestUpdateRetriesOnConflict(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()
	key := SwarmKey("test-instance")

	require.NoError(t, client.Update(ctx, []string{key}, func(tx *Tx) error {
		tx.PutSwarm(&SwarmRegistry{Authority: "root"})
		return nil
	}))

	t.Run("re-runs the closure after a concurrent write", func(t *testing.T) {
		attempts := 0
		err := client.Update(ctx, []string{key}, func(tx *Tx) error {
			attempts++
			swarm, err := tx.Swarm()
			if err != nil {
				return err
			}
			if attempts == 1 {
				// Another writer touches the watched key before EXEC
				mr.HSet(key, "total_agents", "5")
			}
			swarm.TotalAgents++
			tx.PutSwarm(swarm)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, attempts)

		swarm, err := client.Swarm(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(6), swarm.TotalAgents, "second attempt must see the concurrent write")
	})

	t.Run("gives up with ErrConflict", func(t *testing.T) {
		client.SetMaxAttempts(3)
		defer client.SetMaxAttempts(DefaultMaxAttempts)

		attempts := 0
		err := client.Update(ctx, []string{key}, func(tx *Tx) error {
			attempts++
			mr.HSet(key, "total_agents", "7")
			tx.PutSwarm(&SwarmRegistry{Authority: "root"})
			return nil
		})
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, 3, attempts)
	})
}

func TestUpdateReadOnlyClosureWritesNothing(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	err := client.Update(ctx, []string{SwarmKey("test-instance")}, func(tx *Tx) error {
		_, err := tx.Swarm()
		if IsNotFound(err) {
			return nil
		}
		return err
	})
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())
}

func TestEventsKeepCommitOrder(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := client.Update(ctx, nil, func(tx *Tx) error {
			if err := tx.Emit(EventVoteCast, VoteCastPayload{CoordinationID: uint64(i)}); err != nil {
				return err
			}
			return tx.Emit(EventAgentJoinedCoordination, AgentJoinedPayload{CoordinationID: uint64(i)})
		})
		require.NoError(t, err)
	}

	events, err := client.ReadEvents(ctx, "-", "+", 0)
	require.NoError(t, err)
	require.Len(t, events, 6)

	for i, e := range events {
		var p struct {
			CoordinationID uint64 `json:"coordination_id"`
		}
		require.NoError(t, e.Decode(&p))
		assert.Equal(t, uint64(i/2), p.CoordinationID)
		if i%2 == 0 {
			assert.Equal(t, EventVoteCast, e.Type)
		} else {
			assert.Equal(t, EventAgentJoinedCoordination, e.Type)
		}
	}

	limited, err := client.ReadEvents(ctx, "-", "+", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	after, err := client.ReadEventsAfter(ctx, events[3].StreamID, -1)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, events[4].ID, after[0].ID)

	last, err := client.LastEventID(ctx)
	require.NoError(t, err)
	assert.Equal(t, events[5].StreamID, last)
}

func TestLastEventIDOnEmptyOutbox(t *testing.T) {
	client, _ := setupTestClient(t)

	last, err := client.LastEventID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0", last)
}

func TestListAgentsAndCoordinations(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("empty ledger", func(t *testing.T) {
		coords, err := client.Coordinations(ctx)
		require.NoError(t, err)
		assert.Empty(t, coords)

		agents, err := client.Agents(ctx)
		require.NoError(t, err)
		assert.Empty(t, agents)
	})

	err := client.Update(ctx, nil, func(tx *Tx) error {
		tx.PutSwarm(&SwarmRegistry{Authority: "root", TotalAgents: 2, TotalCoordinations: 2, ActiveCoordinations: 2})
		for i, id := range []string{"later", "earlier"} {
			if err := tx.PutAgent(&AgentRecord{
				AgentID:        id,
				AgentType:      AgentTypeSentinel,
				RegisteredAtMs: int64(200 - i*100),
				Active:         true,
			}); err != nil {
				return err
			}
		}
		for id := uint64(0); id < 2; id++ {
			if err := tx.PutCoordination(&Coordination{
				ID:                   id,
				Initiator:            "root",
				RequiredCapabilities: []Capability{CapabilityThreatDetection},
				Urgency:              UrgencyHigh,
				Status:               CoordinationStatusPending,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	agents, err := client.Agents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "earlier", agents[0].AgentID)
	assert.Equal(t, "later", agents[1].AgentID)

	coords, err := client.Coordinations(ctx)
	require.NoError(t, err)
	require.Len(t, coords, 2)
	assert.Equal(t, uint64(0), coords[0].ID)
	assert.Equal(t, uint64(1), coords[1].ID)
}

func TestGettersReturnNotFound(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	_, err := client.Agent(ctx, "nobody")
	assert.True(t, IsNotFound(err))
	_, err = client.Coordination(ctx, 99)
	assert.True(t, IsNotFound(err))
	_, err = client.Threat(ctx, 99)
	assert.True(t, IsNotFound(err))
	_, err = client.Watchlist(ctx, "0x0")
	assert.True(t, IsNotFound(err))
	_, err = client.Reasoning(ctx, "nobody", 1)
	assert.True(t, IsNotFound(err))
	_, err = client.ReasoningStats(ctx, "nobody")
	assert.True(t, IsNotFound(err))
	_, err = client.ThreatCounter(ctx)
	assert.True(t, IsNotFound(err))
}

func TestSubscribeEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("receives committed events", func(t *testing.T) {
		sub, err := client.SubscribeEvents(ctx)
		require.NoError(t, err)
		defer sub.Close()

		err = client.Update(ctx, nil, func(tx *Tx) error {
			return tx.Emit(EventReputationUpdated, ReputationUpdatedPayload{AgentID: "a", NewScore: 99})
		})
		require.NoError(t, err)

		select {
		case received := <-sub.Events():
			assert.Equal(t, EventReputationUpdated, received.Type)
			var p ReputationUpdatedPayload
			require.NoError(t, received.Decode(&p))
			assert.Equal(t, uint8(99), p.NewScore)
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for event")
		}
	})

	t.Run("cleanup on Close", func(t *testing.T) {
		sub, err := client.SubscribeEvents(ctx)
		require.NoError(t, err)

		assert.NoError(t, sub.Close())
		// Calling Close again should be safe
		assert.NoError(t, sub.Close())
	})

	t.Run("cleanup on context cancellation", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)

		sub, err := client.SubscribeEvents(cancelCtx)
		require.NoError(t, err)

		cancel()

		select {
		case _, ok := <-sub.Events():
			assert.False(t, ok, "channel should be closed")
		case <-time.After(1 * time.Second):
			t.Fatal("timeout waiting for channel close")
		}
	})
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(redis.Nil))
	assert.False(t, IsNotFound(errors.New("boom")))
	assert.False(t, IsNotFound(nil))
}

func TestStreamIDBounds(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	assert.Equal(t, "1700000000123-0", StreamIDAt(at))
	assert.Equal(t, "1700000000122-18446744073709551615", StreamIDBefore(at))
}
