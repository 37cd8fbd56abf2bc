//go:build integration
// +build integration

package integration

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/zetareticula/kvfeast/api/v1"
	"github.com/zetareticula/kvfeast/internal/onlinestore"
	"github.com/zetareticula/kvfeast/internal/store"
)

// newTypedStore builds an online store of the given type with driver_stats
// placed in namespace and set.
func newTypedStore(t *testing.T, typ string, conn store.Config, namespace, set string) *onlinestore.OnlineStore {
	t.Helper()
	cfg := onlinestore.DefaultConfig()
	cfg.Type = typ
	cfg.Connection = conn
	cfg.FeatureViews[driverStats.Name] = onlinestore.FeatureViewConfig{
		Namespace: namespace,
		SetName:   set,
	}
	s, err := onlinestore.New(cfg)
	require.NoError(t, err)
	return s
}

// runOnlineRoundTrip writes two rows, reads them back around a missing key
// and removes them.
func runOnlineRoundTrip(t *testing.T, s *onlinestore.OnlineStore) {
	ctx := context.Background()

	nan := driverRow("1005", 12)
	nan.Values["conv_rate"] = v1.FloatValue(float32(math.NaN()))

	written := 0
	report, err := s.OnlineWriteBatch(ctx, driverStats, []v1.WriteItem{driverRow("1004", 539), nan}, func(n int) { written += n })
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Equal(t, 2, written)

	keys := []v1.EntityKey{
		v1.NewEntityKey("driver_id", v1.StringValue("1004")),
		v1.NewEntityKey("driver_id", v1.StringValue("4242")),
		v1.NewEntityKey("driver_id", v1.StringValue("1005")),
	}
	results, err := s.OnlineRead(ctx, driverStats, keys, []string{"avg_daily_trips", "conv_rate", "string_feature", "trip_ids"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.Equal(t, v1.ReadFound, results[0].Status, "err: %v", results[0].Err)
	assert.Nil(t, results[0].EventTime)
	assert.Equal(t, v1.Int64Value(539), results[0].Features["avg_daily_trips"])
	assert.Equal(t, v1.FloatValue(0.5), results[0].Features["conv_rate"])
	assert.Equal(t, v1.StringValue("test"), results[0].Features["string_feature"])
	assert.Equal(t, v1.Int64ListValue([]int64{7, 8}), results[0].Features["trip_ids"])

	assert.Equal(t, v1.ReadNotFound, results[1].Status)

	require.Equal(t, v1.ReadFound, results[2].Status, "err: %v", results[2].Err)
	rate, ok := results[2].Features["conv_rate"].Interface().(float32)
	require.True(t, ok)
	assert.True(t, math.IsNaN(float64(rate)))

	removed, err := s.OnlineDelete(ctx, driverStats, keys)
	require.NoError(t, err)
	assert.Equal(t, 3, removed.Written)

	results, err = s.OnlineRead(ctx, driverStats, keys, nil)
	require.NoError(t, err)
	for i, r := range results {
		assert.Equal(t, v1.ReadNotFound, r.Status, "key %d", i)
	}
}

// runClientRoundTrip drives a store client directly. A record lacking the
// projected bin is left out of GetMany.
func runClientRoundTrip(t *testing.T, c *store.Client, namespace, set string) {
	ctx := context.Background()

	withBin := store.StringKey("client-1")
	otherBin := store.StringKey("client-2")
	require.NoError(t, c.Put(ctx, namespace, set, withBin, store.Record{
		"fv": map[string]any{"a": int64(1), "rate": float32(0.25)},
	}))
	require.NoError(t, c.Put(ctx, namespace, set, otherBin, store.Record{
		"other": map[string]any{"b": "x"},
	}))

	ok, err := c.Exists(ctx, namespace, set, withBin)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := c.Get(ctx, namespace, set, withBin, "fv")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "rate": float32(0.25)}, rec["fv"])

	rec, err = c.Get(ctx, namespace, set, otherBin)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": "x"}, rec["other"])

	_, err = c.Get(ctx, namespace, set, store.StringKey("missing"))
	assert.True(t, store.IsNotFound(err))

	missing := store.StringKey("missing")
	recs, err := c.GetMany(ctx, namespace, set, []store.PrimaryKey{withBin, missing, otherBin}, "fv")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Contains(t, recs, withBin)

	recs, err = c.GetMany(ctx, namespace, set, []store.PrimaryKey{withBin, missing, otherBin})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Contains(t, recs[otherBin], "other")

	for _, key := range []store.PrimaryKey{withBin, otherBin, missing} {
		require.NoError(t, c.Remove(ctx, namespace, set, key))
	}
	ok, err = c.Exists(ctx, namespace, set, withBin)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
