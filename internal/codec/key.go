// Package codec translates between feature-store values and store records:
// entity keys to primary keys, feature maps to bins and back.
package codec

import (
	"errors"
	"fmt"

	v1 "github.com/zetareticula/kvfeast/api/v1"
	"github.com/zetareticula/kvfeast/internal/entitykey"
	"github.com/zetareticula/kvfeast/internal/store"
)

// Key derivation modes.
const (
	ModeDigest = "digest"
	ModeScalar = "scalar"
)

// Errors returned when an entity key cannot become a primary key.
var (
	// ErrCompositeKey is returned by ScalarStrategy for a multi-value key
	// without a configured join key.
	ErrCompositeKey = errors.New("scalar key mode needs a join key to pick from a composite entity key")

	// ErrMissingJoin is returned when the configured join key is absent.
	ErrMissingJoin = errors.New("join key not present in entity key")

	// ErrUnsupportedPK is returned for values other than strings and ints.
	ErrUnsupportedPK = errors.New("entity value cannot be used as a primary key")

	// ErrUnknownMode is returned by NewKeyStrategy.
	ErrUnknownMode = errors.New("unknown key mode")
)

// KeyStrategy derives the primary key of an entity. Reads and writes must
// use the same strategy; a mismatch is not detectable here.
type KeyStrategy interface {
	StorageKey(key v1.EntityKey) (store.PrimaryKey, error)
}

// ScalarStrategy uses one entity value directly as the primary key. It is
// the legacy layout and only works when each entity has a single value, or
// when JoinKey names the value to use.
type ScalarStrategy struct {
	JoinKey string
}

// StorageKey returns the selected string or integer value as the key.
func (s ScalarStrategy) StorageKey(key v1.EntityKey) (store.PrimaryKey, error) {
	var val v1.Value
	switch {
	case s.JoinKey != "":
		v, ok := key.Lookup(s.JoinKey)
		if !ok {
			return store.PrimaryKey{}, fmt.Errorf("%w: %q in %s", ErrMissingJoin, s.JoinKey, key)
		}
		val = v
	case len(key.EntityValues) == 1:
		val = key.EntityValues[0]
	default:
		return store.PrimaryKey{}, fmt.Errorf("%w: %s", ErrCompositeKey, key)
	}

	switch x := val.Interface().(type) {
	case string:
		return store.StringKey(x), nil
	case int64:
		return store.IntKey(x), nil
	case int32:
		return store.IntKey(int64(x)), nil
	}
	return store.PrimaryKey{}, fmt.Errorf("%w: %s", ErrUnsupportedPK, val.Type())
}

// DigestStrategy uses the entity id of the serialized key, which is stable
// for any number of join keys.
type DigestStrategy struct {
	Version int
	ID      entitykey.IDFunc
}

// StorageKey returns the hex entity id, defaulting to murmur3 and the
// current serialization version.
func (s DigestStrategy) StorageKey(key v1.EntityKey) (store.PrimaryKey, error) {
	id := s.ID
	if id == nil {
		id = entitykey.Murmur3ID
	}
	version := s.Version
	if version == 0 {
		version = entitykey.DefaultSerializationVersion
	}
	sk, err := id(key, version)
	if err != nil {
		return store.PrimaryKey{}, err
	}
	return store.StringKey(sk), nil
}

// NewKeyStrategy selects a strategy by mode. An empty mode selects digest.
func NewKeyStrategy(mode string, version int, id entitykey.IDFunc, joinKey string) (KeyStrategy, error) {
	switch mode {
	case "", ModeDigest:
		return DigestStrategy{Version: version, ID: id}, nil
	case ModeScalar:
		return ScalarStrategy{JoinKey: joinKey}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// DeriveStorageKey is a convenience for strategy.StorageKey.
func DeriveStorageKey(key v1.EntityKey, strategy KeyStrategy) (store.PrimaryKey, error) {
	return strategy.StorageKey(key)
}
