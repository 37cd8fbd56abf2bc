//go:build integration
// +build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/zetareticula/kvfeast/internal/onlinestore"
	"github.com/zetareticula/kvfeast/internal/store"
	"github.com/zetareticula/kvfeast/internal/store/redis"
)

func startRedis(t *testing.T, ctx context.Context) store.Config {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections"),
			wait.ForListeningPort("6379/tcp"),
		).WithDeadline(time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return store.Config{Host: host, Port: port.Int(), TimeoutMs: 2000}
}

func TestRedis_OnlineStore(t *testing.T) {
	conn := startRedis(t, context.Background())

	runOnlineRoundTrip(t, newTypedStore(t, onlinestore.TypeRedis, conn, "feast", "profiles"))
}

func TestRedis_StoreClient(t *testing.T) {
	ctx := context.Background()
	conn := startRedis(t, ctx)

	c, err := store.Open(ctx, onlinestore.TypeRedis, redis.Dial, conn)
	require.NoError(t, err)
	runClientRoundTrip(t, c, "feast", "clients")
}

func TestRedis_ProjectionWithoutBin(t *testing.T) {
	ctx := context.Background()
	conn := startRedis(t, ctx)

	c, err := store.Open(ctx, onlinestore.TypeRedis, redis.Dial, conn)
	require.NoError(t, err)
	defer c.Close()

	key := store.StringKey("partial")
	require.NoError(t, c.Put(ctx, "feast", "clients", key, store.Record{"other": int64(1)}))

	// The hash exists, so the empty projection is a record, not a miss.
	rec, err := c.Get(ctx, "feast", "clients", key, "fv")
	require.NoError(t, err)
	assert.Empty(t, rec)

	_, err = c.Get(ctx, "feast", "clients", store.StringKey("missing"), "fv")
	assert.True(t, store.IsNotFound(err))
}

func TestRedis_ConnectFailure(t *testing.T) {
	s := newTypedStore(t, onlinestore.TypeRedis, store.Config{Host: "127.0.0.1", Port: 1, TimeoutMs: 200}, "feast", "profiles")

	_, err := s.OnlineWriteBatch(context.Background(), driverStats, nil, nil)
	assert.Error(t, err)
}
