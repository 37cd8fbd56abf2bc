// Package entitykey serializes entity keys into the feature-store byte format
// and derives stable entity ids from them.
package entitykey

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/spaolacci/murmur3"
	"github.com/zeebo/blake3"

	v1 "github.com/zetareticula/kvfeast/api/v1"
)

// DefaultSerializationVersion is the entity key format written by current
// feature-store releases.
const DefaultSerializationVersion = 2

// Digest names accepted by DigestFunc.
const (
	DigestMurmur3 = "murmur3"
	DigestBlake3  = "blake3"
)

// Errors returned by Serialize and DigestFunc.
var (
	ErrMismatchedKey    = errors.New("join keys and entity values differ in length")
	ErrUnsupportedValue = errors.New("unsupported entity value type")
	ErrUnknownDigest    = errors.New("unknown digest")
)

// IDFunc derives an opaque, stable identifier from an entity key and a
// serialization version.
type IDFunc func(key v1.EntityKey, version int) (string, error)

type pair struct {
	name string
	val  v1.Value
}

// Serialize encodes key in the feature-store entity key format. Pairs are
// sorted by join key, so the output does not depend on the caller's order.
// Version 3 and later prefix the join key count and each join key's length.
func Serialize(key v1.EntityKey, version int) ([]byte, error) {
	if len(key.JoinKeys) != len(key.EntityValues) {
		return nil, ErrMismatchedKey
	}

	pairs := make([]pair, len(key.JoinKeys))
	for i := range key.JoinKeys {
		pairs[i] = pair{name: key.JoinKeys[i], val: key.EntityValues[i]}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].name < pairs[j].name })

	var buf bytes.Buffer
	if version > 2 {
		writeUint32(&buf, uint32(len(pairs)))
	}
	for _, p := range pairs {
		writeUint32(&buf, uint32(v1.ValueTypeString))
		if version > 2 {
			writeUint32(&buf, uint32(len(p.name)))
		}
		buf.WriteString(p.name)
	}
	for _, p := range pairs {
		payload, typ, err := serializeValue(p.val, version)
		if err != nil {
			return nil, fmt.Errorf("join key %q: %w", p.name, err)
		}
		writeUint32(&buf, uint32(typ))
		writeUint32(&buf, uint32(len(payload)))
		buf.Write(payload)
	}
	return buf.Bytes(), nil
}

func serializeValue(val v1.Value, version int) ([]byte, v1.ValueType, error) {
	switch x := val.Interface().(type) {
	case string:
		return []byte(x), v1.ValueTypeString, nil
	case []byte:
		return x, v1.ValueTypeBytes, nil
	case int32:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(x))
		return b, v1.ValueTypeInt32, nil
	case int64:
		if version <= 1 {
			if x < math.MinInt32 || x > math.MaxInt32 {
				return nil, 0, fmt.Errorf("int64 %d does not fit serialization version 1", x)
			}
			b := make([]byte, 4)
			binary.LittleEndian.PutUint32(b, uint32(int32(x)))
			return b, v1.ValueTypeInt64, nil
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(x))
		return b, v1.ValueTypeInt64, nil
	}
	return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedValue, val.Type())
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// Murmur3ID hashes the serialized key with murmur3 x64 128 and returns the
// hex encoding of h1 and h2 in little-endian order, the same id the feature
// store computes for its own online stores.
func Murmur3ID(key v1.EntityKey, version int) (string, error) {
	data, err := Serialize(key, version)
	if err != nil {
		return "", err
	}
	h1, h2 := murmur3.Sum128(data)
	var out [16]byte
	binary.LittleEndian.PutUint64(out[:8], h1)
	binary.LittleEndian.PutUint64(out[8:], h2)
	return hex.EncodeToString(out[:]), nil
}

// Blake3ID hashes the serialized key with BLAKE3-256.
func Blake3ID(key v1.EntityKey, version int) (string, error) {
	data, err := Serialize(key, version)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DigestFunc resolves a digest name to its IDFunc. An empty name selects
// murmur3.
func DigestFunc(name string) (IDFunc, error) {
	switch name {
	case "", DigestMurmur3:
		return Murmur3ID, nil
	case DigestBlake3:
		return Blake3ID, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDigest, name)
}
