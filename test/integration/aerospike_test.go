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

	v1 "github.com/zetareticula/kvfeast/api/v1"
	"github.com/zetareticula/kvfeast/internal/codec"
	"github.com/zetareticula/kvfeast/internal/onlinestore"
	"github.com/zetareticula/kvfeast/internal/store"
	"github.com/zetareticula/kvfeast/internal/store/aerospike"
)

// The server image ships with a namespace named "test".
const testNamespace = "test"

var driverStats = v1.FeatureView{
	Name: "driver_stats",
	Features: []v1.Field{
		{Name: "avg_daily_trips", Type: v1.ValueTypeInt64},
		{Name: "conv_rate", Type: v1.ValueTypeFloat},
		{Name: "string_feature", Type: v1.ValueTypeString},
		{Name: "trip_ids", Type: v1.ValueTypeInt64List},
	},
}

// startAerospike starts a single node and returns its connection settings.
func startAerospike(t *testing.T, ctx context.Context) store.Config {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "aerospike/aerospike-server:7.1.0.0",
		ExposedPorts: []string{"3000/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("service ready: soon there will be cake!"),
			wait.ForListeningPort("3000/tcp"),
		).WithDeadline(2 * time.Minute),
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
	port, err := container.MappedPort(ctx, "3000/tcp")
	require.NoError(t, err)

	return store.Config{Host: host, Port: port.Int(), TimeoutMs: 2000}
}

func newOnlineStore(t *testing.T, conn store.Config, mode string) *onlinestore.OnlineStore {
	t.Helper()
	cfg := onlinestore.DefaultConfig()
	cfg.Connection = conn
	cfg.Key.Mode = mode
	cfg.FeatureViews[driverStats.Name] = onlinestore.FeatureViewConfig{
		Namespace: testNamespace,
		SetName:   "profiles_" + mode,
		ShortName: "driveSt",
	}
	s, err := onlinestore.New(cfg)
	require.NoError(t, err)
	return s
}

func driverRow(id string, trips int64) v1.WriteItem {
	return v1.WriteItem{
		EntityKey: v1.NewEntityKey("driver_id", v1.StringValue(id)),
		Values: map[string]v1.Value{
			"avg_daily_trips": v1.Int64Value(trips),
			"conv_rate":       v1.FloatValue(0.5),
			"string_feature":  v1.StringValue("test"),
			"trip_ids":        v1.Int64ListValue([]int64{7, 8}),
		},
		EventTime: time.Now().UTC(),
	}
}

func TestAerospike_OnlineStore(t *testing.T) {
	ctx := context.Background()
	conn := startAerospike(t, ctx)

	for _, mode := range []string{codec.ModeDigest, codec.ModeScalar} {
		t.Run(mode, func(t *testing.T) {
			s := newOnlineStore(t, conn, mode)

			written := 0
			report, err := s.OnlineWriteBatch(ctx, driverStats, []v1.WriteItem{
				driverRow("1004", 539),
				driverRow("1005", 12),
			}, func(n int) { written += n })
			require.NoError(t, err)
			require.NoError(t, report.Err())
			assert.Equal(t, 2, written)

			keys := []v1.EntityKey{
				v1.NewEntityKey("driver_id", v1.StringValue("1004")),
				v1.NewEntityKey("driver_id", v1.StringValue("4242")),
				v1.NewEntityKey("driver_id", v1.StringValue("1005")),
			}
			results, err := s.OnlineRead(ctx, driverStats, keys, []string{"avg_daily_trips", "string_feature", "conv_rate", "trip_ids"})
			require.NoError(t, err)
			require.Len(t, results, 3)

			require.Equal(t, v1.ReadFound, results[0].Status, "err: %v", results[0].Err)
			assert.Nil(t, results[0].EventTime)
			assert.Equal(t, v1.Int64Value(539), results[0].Features["avg_daily_trips"])
			assert.Equal(t, v1.StringValue("test"), results[0].Features["string_feature"])
			assert.Equal(t, v1.FloatValue(0.5), results[0].Features["conv_rate"])
			assert.Equal(t, v1.Int64ListValue([]int64{7, 8}), results[0].Features["trip_ids"])

			assert.Equal(t, v1.ReadNotFound, results[1].Status)
			assert.Equal(t, v1.ReadFound, results[2].Status)
			assert.Equal(t, v1.Int64Value(12), results[2].Features["avg_daily_trips"])

			removed, err := s.OnlineDelete(ctx, driverStats, keys)
			require.NoError(t, err)
			assert.Equal(t, 3, removed.Written)

			results, err = s.OnlineRead(ctx, driverStats, keys[:1], nil)
			require.NoError(t, err)
			assert.Equal(t, v1.ReadNotFound, results[0].Status)
		})
	}
}

func TestAerospike_StoreClient(t *testing.T) {
	ctx := context.Background()
	conn := startAerospike(t, ctx)

	c, err := store.Open(ctx, "aerospike", aerospike.Dial, conn)
	require.NoError(t, err)
	defer c.Close()

	key := store.StringKey("client-1")
	require.NoError(t, c.Put(ctx, testNamespace, "clients", key, store.Record{"fv": map[string]any{"a": int64(1)}}))

	ok, err := c.Exists(ctx, testNamespace, "clients", key)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := c.Get(ctx, testNamespace, "clients", key, "fv")
	require.NoError(t, err)
	assert.Contains(t, rec, "fv")

	_, err = c.Get(ctx, testNamespace, "clients", store.StringKey("missing"))
	assert.True(t, store.IsNotFound(err))

	require.NoError(t, c.Remove(ctx, testNamespace, "clients", key))
	require.NoError(t, c.Remove(ctx, testNamespace, "clients", key))
	ok, err = c.Exists(ctx, testNamespace, "clients", key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestAerospike_ConnectFailure(t *testing.T) {
	s := newOnlineStore(t, store.Config{Host: "127.0.0.1", Port: 1, TimeoutMs: 200}, codec.ModeDigest)

	_, err := s.OnlineWriteBatch(context.Background(), driverStats, []v1.WriteItem{driverRow("1004", 1)}, nil)
	assert.Error(t, err)
}
