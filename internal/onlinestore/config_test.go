package onlinestore_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zetareticula/kvfeast/internal/onlinestore"
	"github.com/zetareticula/kvfeast/internal/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "online_store.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
type: aerospike
connection:
  host: aerospike.local
  port: 3100
  timeout_ms: 200
key:
  mode: scalar
  join_key: driver_id
feature_views:
  driver_stats:
    namespace: aura_universal_user_profile
    set_name: profiles
    short_name: driveSt
`)

	cfg, err := onlinestore.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, onlinestore.TypeAerospike, cfg.Type)
	assert.Equal(t, store.Config{Host: "aerospike.local", Port: 3100, TimeoutMs: 200}, cfg.Connection)
	assert.Equal(t, "scalar", cfg.Key.Mode)
	assert.Equal(t, "driver_id", cfg.Key.JoinKey)
	// Unset keys keep their defaults.
	assert.Equal(t, 2, cfg.Key.SerializationVersion)
	assert.Equal(t, "murmur3", cfg.Key.Digest)

	fv, err := cfg.FeatureView("driver_stats")
	require.NoError(t, err)
	assert.Equal(t, "aura_universal_user_profile", fv.Namespace)
	assert.Equal(t, "profiles", fv.SetName)
	assert.Equal(t, "driveSt", fv.StorageName("driver_stats"))
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := writeConfig(t, `
type: dynamo
key:
  digest: sha1
feature_views:
  driver_stats:
    set_name: profiles
`)

	_, err := onlinestore.LoadConfig(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, onlinestore.ErrInvalidConfig)
	assert.Contains(t, err.Error(), `unknown type "dynamo"`)
	assert.Contains(t, err.Error(), "key.digest")
	assert.Contains(t, err.Error(), `feature view "driver_stats"`)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := onlinestore.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = onlinestore.LoadConfig(writeConfig(t, "type: [aerospike"))
	assert.Error(t, err)
}

func TestConfig_Merge(t *testing.T) {
	cfg := onlinestore.DefaultConfig()
	cfg.FeatureViews["a"] = onlinestore.FeatureViewConfig{Namespace: "ns", SetName: "s1"}

	cfg.Merge(&onlinestore.Config{
		Type:       onlinestore.TypeRedis,
		Connection: store.Config{Port: 6379, Password: "secret"},
		Key:        onlinestore.KeyConfig{Digest: "blake3"},
		FeatureViews: map[string]onlinestore.FeatureViewConfig{
			"b": {Namespace: "ns", SetName: "s2"},
		},
	})

	assert.Equal(t, onlinestore.TypeRedis, cfg.Type)
	assert.Equal(t, "localhost", cfg.Connection.Host)
	assert.Equal(t, 6379, cfg.Connection.Port)
	assert.Equal(t, "secret", cfg.Connection.Password)
	assert.Equal(t, 1000, cfg.Connection.TimeoutMs)
	assert.Equal(t, "digest", cfg.Key.Mode)
	assert.Equal(t, "blake3", cfg.Key.Digest)
	assert.Len(t, cfg.FeatureViews, 2)
	require.NoError(t, cfg.Validate())

	cfg.Merge(nil)
	assert.Equal(t, onlinestore.TypeRedis, cfg.Type)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, onlinestore.DefaultConfig().Validate())

	cfg := onlinestore.DefaultConfig()
	cfg.Connection.Host = ""
	cfg.Connection.Port = 0
	cfg.Key.Mode = "hash"
	cfg.Key.SerializationVersion = 4
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection.host")
	assert.Contains(t, err.Error(), "connection.port")
	assert.Contains(t, err.Error(), `key.mode "hash"`)
	assert.Contains(t, err.Error(), "serialization_version")

	mem := onlinestore.DefaultConfig()
	mem.Type = onlinestore.TypeMemory
	mem.Connection = store.Config{}
	assert.NoError(t, mem.Validate())
}

func TestConfig_ValidateAerospikeBinName(t *testing.T) {
	cfg := onlinestore.DefaultConfig()
	cfg.FeatureViews["driver_hourly_stats"] = onlinestore.FeatureViewConfig{Namespace: "ns", SetName: "profiles"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `feature view "driver_hourly_stats"`)
	assert.Contains(t, err.Error(), "short_name")

	cfg.FeatureViews["driver_hourly_stats"] = onlinestore.FeatureViewConfig{Namespace: "ns", SetName: "profiles", ShortName: "drvHourly"}
	assert.NoError(t, cfg.Validate())

	cfg.FeatureViews["driver_hourly_stats"] = onlinestore.FeatureViewConfig{Namespace: "ns", SetName: "profiles"}
	cfg.Type = onlinestore.TypeRedis
	assert.NoError(t, cfg.Validate())
}

func TestConfig_FeatureViewNotConfigured(t *testing.T) {
	_, err := onlinestore.DefaultConfig().FeatureView("unknown_view")

	var cerr *onlinestore.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "unknown_view", cerr.FeatureView)
	assert.ErrorIs(t, err, onlinestore.ErrFeatureViewNotConfigured)
	assert.Contains(t, err.Error(), "unknown_view")
}

func TestFeatureViewConfig_StorageName(t *testing.T) {
	assert.Equal(t, "driver_stats", onlinestore.FeatureViewConfig{}.StorageName("driver_stats"))
	assert.Equal(t, "driveSt", onlinestore.FeatureViewConfig{ShortName: "driveSt"}.StorageName("driver_stats"))
}
