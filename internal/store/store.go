// Package store is the boundary between the online store adapter and the
// external key-value database. Backends translate calls into one database's
// client library; Client wraps a Backend with logging, metrics, timeouts and
// error classification.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// PrimaryKey addresses one record within a namespace and set. It is either a
// string or an int64 and is comparable, so it can key a map.
type PrimaryKey struct {
	str   string
	num   int64
	isInt bool
}

// StringKey returns a string primary key.
func StringKey(s string) PrimaryKey { return PrimaryKey{str: s} }

// IntKey returns an integer primary key.
func IntKey(i int64) PrimaryKey { return PrimaryKey{num: i, isInt: true} }

// IsInt reports whether the key is an integer key.
func (k PrimaryKey) IsInt() bool { return k.isInt }

// Value returns the key as string or int64, for client libraries that accept
// either.
func (k PrimaryKey) Value() any {
	if k.isInt {
		return k.num
	}
	return k.str
}

func (k PrimaryKey) String() string {
	if k.isInt {
		return strconv.FormatInt(k.num, 10)
	}
	return k.str
}

// Record maps bin names to values. The online store writes one bin per
// feature view whose value is a map[string]any of feature natives.
type Record map[string]any

// Backend is implemented by each supported database.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Put upserts the given bins; bins not present in rec are left untouched.
	Put(ctx context.Context, namespace, set string, key PrimaryKey, rec Record) error
	// Get returns the record, restricted to bins when any are given.
	// Returns ErrNotFound when the key does not exist.
	Get(ctx context.Context, namespace, set string, key PrimaryKey, bins ...string) (Record, error)
	// GetMany returns one record per key in request order, nil for keys
	// without a record.
	GetMany(ctx context.Context, namespace, set string, keys []PrimaryKey, bins ...string) ([]Record, error)
	// Exists reports whether the key has a record.
	Exists(ctx context.Context, namespace, set string, key PrimaryKey) (bool, error)
	// Remove deletes the record. Missing keys are not an error.
	Remove(ctx context.Context, namespace, set string, key PrimaryKey) error
	// Close releases the connection.
	Close() error
}

// Config holds connection parameters shared by all backends.
type Config struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	TimeoutMs    int    `yaml:"timeout_ms"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	MinTries     int    `yaml:"min_tries,omitempty"`
	RetryDelayMs int    `yaml:"retry_delay_ms,omitempty"`
}

// Addr returns host:port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Timeout returns the per-call I/O timeout, zero when unset.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RetryDelay returns the pause between attempts for backends that retry.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// Tries returns the number of attempts, at least one.
func (c Config) Tries() int {
	if c.MinTries < 1 {
		return 1
	}
	return c.MinTries
}

// DialFunc connects a backend. Connection errors are returned to the caller.
type DialFunc func(ctx context.Context, cfg Config) (Backend, error)

var (
	// ErrNotFound is returned when a key has no record.
	ErrNotFound = errors.New("record not found")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("store client closed")
)

// OpError reports a failed store call. It never wraps ErrNotFound: a missing
// key is an outcome, not a failure.
type OpError struct {
	Op        string
	Backend   string
	Namespace string
	Set       string
	Key       string
	Err       error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s %s %s/%s: %v", e.Backend, e.Op, e.Namespace, e.Set, e.Err)
	}
	return fmt.Sprintf("%s %s %s/%s key %s: %v", e.Backend, e.Op, e.Namespace, e.Set, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the key has no record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
