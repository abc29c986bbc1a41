//go:build integration

// Package testutil starts real Redis servers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/dyluth/brock/pkg/ledger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RedisImage is the server the integration suite runs against.
const RedisImage = "redis:7-alpine"

// StartRedis starts a Redis container and returns its URL. The container is
// terminated when the test finishes.
func StartRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        RedisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisC.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate Redis container: %v", err)
		}
	})

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

// NewLedgerClient starts a Redis container and connects a ledger client for
// instance to it.
func NewLedgerClient(t *testing.T, instance string) *ledger.Client {
	t.Helper()

	opts, err := redis.ParseURL(StartRedis(t))
	require.NoError(t, err)

	client, err := ledger.NewClient(opts, instance)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Ping(context.Background()), "Redis not reachable")
	return client
}
