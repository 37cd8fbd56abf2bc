package onlinestore

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/zetareticula/kvfeast/internal/codec"
	"github.com/zetareticula/kvfeast/internal/entitykey"
	"github.com/zetareticula/kvfeast/internal/store"
)

// Supported store types.
const (
	TypeAerospike = "aerospike"
	TypeRedis     = "redis"
	TypeCassandra = "cassandra"
	TypeMemory    = "memory"
)

// MaxAerospikeBinName is the longest bin name an Aerospike server accepts.
const MaxAerospikeBinName = 15

// KeyConfig selects how entity keys become primary keys.
type KeyConfig struct {
	Mode                 string `yaml:"mode"`
	SerializationVersion int    `yaml:"serialization_version"`
	Digest               string `yaml:"digest"`
	JoinKey              string `yaml:"join_key,omitempty"`
}

// FeatureViewConfig places one feature view in the store.
type FeatureViewConfig struct {
	Namespace string `yaml:"namespace"`
	SetName   string `yaml:"set_name"`
	ShortName string `yaml:"short_name,omitempty"`
}

// StorageName is the bin the feature view's features are written under: the
// short name when set, else the view name.
func (c FeatureViewConfig) StorageName(view string) string {
	if c.ShortName != "" {
		return c.ShortName
	}
	return view
}

// Config is the online store configuration.
type Config struct {
	Type         string                       `yaml:"type"`
	Connection   store.Config                 `yaml:"connection"`
	Key          KeyConfig                    `yaml:"key"`
	FeatureViews map[string]FeatureViewConfig `yaml:"feature_views"`
}

// DefaultConfig returns a config for a local Aerospike node with digest keys.
func DefaultConfig() *Config {
	return &Config{
		Type: TypeAerospike,
		Connection: store.Config{
			Host:      "localhost",
			Port:      3000,
			TimeoutMs: 1000,
		},
		Key: KeyConfig{
			Mode:                 codec.ModeDigest,
			SerializationVersion: entitykey.DefaultSerializationVersion,
			Digest:               entitykey.DigestMurmur3,
		},
		FeatureViews: map[string]FeatureViewConfig{},
	}
}

// LoadConfig reads a YAML file over the defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Merge applies the non-zero fields of other over c. Feature view entries
// are added or replaced by name.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Type != "" {
		c.Type = other.Type
	}

	conn := other.Connection
	if conn.Host != "" {
		c.Connection.Host = conn.Host
	}
	if conn.Port != 0 {
		c.Connection.Port = conn.Port
	}
	if conn.TimeoutMs != 0 {
		c.Connection.TimeoutMs = conn.TimeoutMs
	}
	if conn.Username != "" {
		c.Connection.Username = conn.Username
	}
	if conn.Password != "" {
		c.Connection.Password = conn.Password
	}
	if conn.MinTries != 0 {
		c.Connection.MinTries = conn.MinTries
	}
	if conn.RetryDelayMs != 0 {
		c.Connection.RetryDelayMs = conn.RetryDelayMs
	}

	if other.Key.Mode != "" {
		c.Key.Mode = other.Key.Mode
	}
	if other.Key.SerializationVersion != 0 {
		c.Key.SerializationVersion = other.Key.SerializationVersion
	}
	if other.Key.Digest != "" {
		c.Key.Digest = other.Key.Digest
	}
	if other.Key.JoinKey != "" {
		c.Key.JoinKey = other.Key.JoinKey
	}

	if len(other.FeatureViews) > 0 && c.FeatureViews == nil {
		c.FeatureViews = make(map[string]FeatureViewConfig, len(other.FeatureViews))
	}
	for name, fv := range other.FeatureViews {
		c.FeatureViews[name] = fv
	}
}

// Validate reports every problem found, aggregated.
func (c *Config) Validate() error {
	var errs []error

	switch c.Type {
	case TypeAerospike, TypeRedis, TypeCassandra:
		if c.Connection.Host == "" {
			errs = append(errs, fmt.Errorf("%w: connection.host is required for %s", ErrInvalidConfig, c.Type))
		}
		if c.Connection.Port <= 0 {
			errs = append(errs, fmt.Errorf("%w: connection.port must be positive, got %d", ErrInvalidConfig, c.Connection.Port))
		}
	case TypeMemory:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown type %q", ErrInvalidConfig, c.Type))
	}
	if c.Connection.TimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("%w: connection.timeout_ms must not be negative", ErrInvalidConfig))
	}

	switch c.Key.Mode {
	case "", codec.ModeDigest, codec.ModeScalar:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown key.mode %q", ErrInvalidConfig, c.Key.Mode))
	}
	if v := c.Key.SerializationVersion; v < 0 || v > 3 {
		errs = append(errs, fmt.Errorf("%w: key.serialization_version must be 1, 2 or 3, got %d", ErrInvalidConfig, v))
	}
	if _, err := entitykey.DigestFunc(c.Key.Digest); err != nil {
		errs = append(errs, fmt.Errorf("%w: key.digest: %v", ErrInvalidConfig, err))
	}

	names := make([]string, 0, len(c.FeatureViews))
	for name := range c.FeatureViews {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fv := c.FeatureViews[name]
		if fv.Namespace == "" {
			errs = append(errs, &ConfigError{FeatureView: name, Err: fmt.Errorf("%w: namespace is required", ErrInvalidConfig)})
		}
		if fv.SetName == "" {
			errs = append(errs, &ConfigError{FeatureView: name, Err: fmt.Errorf("%w: set_name is required", ErrInvalidConfig)})
		}
		if bin := fv.StorageName(name); c.Type == TypeAerospike && len(bin) > MaxAerospikeBinName {
			errs = append(errs, &ConfigError{FeatureView: name, Err: fmt.Errorf("%w: bin name %q exceeds %d bytes, set short_name", ErrInvalidConfig, bin, MaxAerospikeBinName)})
		}
	}

	return utilerrors.NewAggregate(errs)
}

// FeatureView returns the placement of the named feature view.
func (c *Config) FeatureView(name string) (FeatureViewConfig, error) {
	fv, ok := c.FeatureViews[name]
	if !ok {
		return FeatureViewConfig{}, &ConfigError{FeatureView: name, Err: ErrFeatureViewNotConfigured}
	}
	return fv, nil
}
