package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a connected cache.
func setupRedis(t *testing.T) (*RedisCache, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60*time.Second),
			wait.ForListeningPort("6379/tcp"),
		),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	cache, err := NewRedisCache(ctx, RedisConfig{
		Addrs:     []string{fmt.Sprintf("%s:%s", host, port.Port())},
		KeyPrefix: "test:",
	})
	require.NoError(t, err)

	cleanup := func() {
		cache.Close()
		_ = container.Terminate(ctx)
	}

	return cache, cleanup
}

func TestRedisCache_SeenAndExpiry(t *testing.T) {
	cache, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	key := "processed:evm:0xabc:0"

	seen, err := cache.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cache.MarkSeen(ctx, key, time.Second))

	seen, err = cache.Seen(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)

	ttl, err := cache.client.TTL(ctx, "test:"+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	assert.Eventually(t, func() bool {
		seen, err := cache.Seen(ctx, key)
		return err == nil && !seen
	}, 5*time.Second, 100*time.Millisecond)
}
