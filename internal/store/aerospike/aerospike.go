// Package aerospike implements store.Backend on Aerospike. Namespaces and
// sets map one to one; the record's bins are written natively, with nested
// feature maps stored as Aerospike maps.
package aerospike

import (
	"context"
	"errors"
	"time"

	as "github.com/aerospike/aerospike-client-go/v7"
	"github.com/aerospike/aerospike-client-go/v7/types"

	"github.com/zetareticula/kvfeast/internal/store"
)

// AerospikeStore wraps an Aerospike client.
type AerospikeStore struct {
	client  *as.Client
	timeout time.Duration
}

// Dial connects to the cluster seed at cfg.Host:cfg.Port.
func Dial(ctx context.Context, cfg store.Config) (store.Backend, error) {
	policy := as.NewClientPolicy()
	policy.User = cfg.Username
	policy.Password = cfg.Password
	if cfg.TimeoutMs > 0 {
		policy.Timeout = cfg.Timeout()
	}

	client, err := as.NewClientWithPolicyAndHost(policy, as.NewHost(cfg.Host, cfg.Port))
	if err != nil {
		return nil, err
	}
	return &AerospikeStore{client: client, timeout: cfg.Timeout()}, nil
}

func (s *AerospikeStore) Name() string { return "aerospike" }

// deadline returns the total timeout for one call: the context deadline when
// there is one, else the configured timeout.
func (s *AerospikeStore) deadline(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if d, ok := ctx.Deadline(); ok {
		remaining := time.Until(d)
		if remaining <= 0 {
			return 0, context.DeadlineExceeded
		}
		return remaining, nil
	}
	return s.timeout, nil
}

func (s *AerospikeStore) readPolicy(ctx context.Context) (*as.BasePolicy, error) {
	timeout, err := s.deadline(ctx)
	if err != nil {
		return nil, err
	}
	p := as.NewPolicy()
	p.TotalTimeout = timeout
	return p, nil
}

func (s *AerospikeStore) writePolicy(ctx context.Context) (*as.WritePolicy, error) {
	timeout, err := s.deadline(ctx)
	if err != nil {
		return nil, err
	}
	p := as.NewWritePolicy(0, 0)
	p.TotalTimeout = timeout
	p.SendKey = true
	return p, nil
}

func (s *AerospikeStore) batchPolicy(ctx context.Context) (*as.BatchPolicy, error) {
	timeout, err := s.deadline(ctx)
	if err != nil {
		return nil, err
	}
	p := as.NewBatchPolicy()
	p.TotalTimeout = timeout
	return p, nil
}

func newKey(namespace, set string, key store.PrimaryKey) (*as.Key, error) {
	k, err := as.NewKey(namespace, set, key.Value())
	if err != nil {
		return nil, err
	}
	return k, nil
}

func isNotFound(err as.Error) bool {
	return err != nil && err.Matches(types.KEY_NOT_FOUND_ERROR)
}

// Put writes the bins of rec; other bins of the record are kept.
func (s *AerospikeStore) Put(ctx context.Context, namespace, set string, key store.PrimaryKey, rec store.Record) error {
	policy, err := s.writePolicy(ctx)
	if err != nil {
		return err
	}
	k, err := newKey(namespace, set, key)
	if err != nil {
		return err
	}

	bins := make(as.BinMap, len(rec))
	for bin, val := range rec {
		bins[bin] = toNative(val)
	}
	if aerr := s.client.Put(policy, k, bins); aerr != nil {
		return aerr
	}
	return nil
}

// Get reads one record.
func (s *AerospikeStore) Get(ctx context.Context, namespace, set string, key store.PrimaryKey, bins ...string) (store.Record, error) {
	policy, err := s.readPolicy(ctx)
	if err != nil {
		return nil, err
	}
	k, err := newKey(namespace, set, key)
	if err != nil {
		return nil, err
	}

	rec, aerr := s.client.Get(policy, k, bins...)
	if isNotFound(aerr) {
		return nil, store.ErrNotFound
	}
	if aerr != nil {
		return nil, aerr
	}
	if rec == nil {
		return nil, store.ErrNotFound
	}
	return store.Record(rec.Bins), nil
}

// GetMany issues one batch read. Aerospike returns nil entries for missing
// keys, aligned with the request.
func (s *AerospikeStore) GetMany(ctx context.Context, namespace, set string, keys []store.PrimaryKey, bins ...string) ([]store.Record, error) {
	policy, err := s.batchPolicy(ctx)
	if err != nil {
		return nil, err
	}

	asKeys := make([]*as.Key, len(keys))
	for i, key := range keys {
		if asKeys[i], err = newKey(namespace, set, key); err != nil {
			return nil, err
		}
	}

	records, aerr := s.client.BatchGet(policy, asKeys, bins...)
	if aerr != nil && !isNotFound(aerr) {
		return nil, aerr
	}

	out := make([]store.Record, len(keys))
	for i, rec := range records {
		if i < len(out) && rec != nil && rec.Bins != nil {
			out[i] = store.Record(rec.Bins)
		}
	}
	return out, nil
}

// Exists checks record metadata only.
func (s *AerospikeStore) Exists(ctx context.Context, namespace, set string, key store.PrimaryKey) (bool, error) {
	policy, err := s.readPolicy(ctx)
	if err != nil {
		return false, err
	}
	k, err := newKey(namespace, set, key)
	if err != nil {
		return false, err
	}

	ok, aerr := s.client.Exists(policy, k)
	if aerr != nil {
		return false, aerr
	}
	return ok, nil
}

// Remove deletes the record; a missing key is not an error.
func (s *AerospikeStore) Remove(ctx context.Context, namespace, set string, key store.PrimaryKey) error {
	policy, err := s.writePolicy(ctx)
	if err != nil {
		return err
	}
	k, err := newKey(namespace, set, key)
	if err != nil {
		return err
	}

	if _, aerr := s.client.Delete(policy, k); aerr != nil && !isNotFound(aerr) {
		return aerr
	}
	return nil
}

// Close closes the client if it is still connected.
func (s *AerospikeStore) Close() error {
	if s.client == nil {
		return errors.New("aerospike client was never connected")
	}
	if s.client.IsConnected() {
		s.client.Close()
	}
	return nil
}

// toNative converts typed slices and nested maps into the []any and
// map[string]any shapes the client packs without reflection.
func toNative(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = toNative(item)
		}
		return out
	case []string:
		return anySlice(x)
	case [][]byte:
		return anySlice(x)
	case []bool:
		return anySlice(x)
	case []int32:
		return anySlice(x)
	case []int64:
		return anySlice(x)
	case []float32:
		return anySlice(x)
	case []float64:
		return anySlice(x)
	}
	return v
}

func anySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
