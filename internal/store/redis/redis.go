package redis

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/zetareticula/kvfeast/internal/store"
)

// RedisStore implements store.Backend on Redis hashes. A record lives at
// "<namespace>:<set>:<key>"; each bin is one hash field holding the bin value
// in store.MarshalBin encoding.
type RedisStore struct {
	client *redis.Client
}

// Dial connects to Redis and verifies the connection with PING.
func Dial(ctx context.Context, cfg store.Config) (store.Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Username:     cfg.Username,
		Password:     cfg.Password,
		DialTimeout:  cfg.Timeout(),
		ReadTimeout:  cfg.Timeout(),
		WriteTimeout: cfg.Timeout(),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisStore(client), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Name() string { return "redis" }

func recordKey(namespace, set string, key store.PrimaryKey) string {
	return fmt.Sprintf("%s:%s:%s", namespace, set, key)
}

// Put writes each bin as a hash field; other fields are untouched.
func (r *RedisStore) Put(ctx context.Context, namespace, set string, key store.PrimaryKey, rec store.Record) error {
	if len(rec) == 0 {
		return nil
	}
	values := make([]any, 0, len(rec)*2)
	for bin, val := range rec {
		data, err := store.MarshalBin(val)
		if err != nil {
			return fmt.Errorf("bin %q: %w", bin, err)
		}
		values = append(values, bin, data)
	}
	return r.client.HSet(ctx, recordKey(namespace, set, key), values...).Err()
}

// Get reads the hash, or only the requested fields.
func (r *RedisStore) Get(ctx context.Context, namespace, set string, key store.PrimaryKey, bins ...string) (store.Record, error) {
	rk := recordKey(namespace, set, key)
	if len(bins) == 0 {
		fields, err := r.client.HGetAll(ctx, rk).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			return nil, store.ErrNotFound
		}
		return decodeFields(fields)
	}

	vals, err := r.client.HMGet(ctx, rk, bins...).Result()
	if err != nil {
		return nil, err
	}
	rec, err := decodeProjected(bins, vals)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// A projection with no hits cannot tell a missing key from a record
		// without those bins.
		n, err := r.client.Exists(ctx, rk).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, store.ErrNotFound
		}
		return store.Record{}, nil
	}
	return rec, nil
}

// GetMany pipelines one read per key.
func (r *RedisStore) GetMany(ctx context.Context, namespace, set string, keys []store.PrimaryKey, bins ...string) ([]store.Record, error) {
	pipe := r.client.Pipeline()
	all := make([]*redis.StringStringMapCmd, len(keys))
	projected := make([]*redis.SliceCmd, len(keys))
	for i, key := range keys {
		rk := recordKey(namespace, set, key)
		if len(bins) == 0 {
			all[i] = pipe.HGetAll(ctx, rk)
		} else {
			projected[i] = pipe.HMGet(ctx, rk, bins...)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	out := make([]store.Record, len(keys))
	for i := range keys {
		var (
			rec store.Record
			err error
		)
		if len(bins) == 0 {
			fields, cmdErr := all[i].Result()
			if cmdErr != nil {
				return nil, cmdErr
			}
			if len(fields) == 0 {
				continue
			}
			rec, err = decodeFields(fields)
		} else {
			vals, cmdErr := projected[i].Result()
			if cmdErr != nil {
				return nil, cmdErr
			}
			rec, err = decodeProjected(bins, vals)
		}
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", keys[i], err)
		}
		out[i] = rec
	}
	return out, nil
}

// Exists reports whether the hash exists.
func (r *RedisStore) Exists(ctx context.Context, namespace, set string, key store.PrimaryKey) (bool, error) {
	n, err := r.client.Exists(ctx, recordKey(namespace, set, key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remove deletes the hash.
func (r *RedisStore) Remove(ctx context.Context, namespace, set string, key store.PrimaryKey) error {
	return r.client.Del(ctx, recordKey(namespace, set, key)).Err()
}

// Close closes the Redis client connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func decodeFields(fields map[string]string) (store.Record, error) {
	rec := make(store.Record, len(fields))
	for bin, raw := range fields {
		val, err := store.UnmarshalBin([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("bin %q: %w", bin, err)
		}
		rec[bin] = val
	}
	return rec, nil
}

// decodeProjected returns nil when none of the bins were present.
func decodeProjected(bins []string, vals []any) (store.Record, error) {
	var rec store.Record
	for i, raw := range vals {
		s, ok := raw.(string)
		if !ok || i >= len(bins) {
			continue
		}
		val, err := store.UnmarshalBin([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("bin %q: %w", bins[i], err)
		}
		if rec == nil {
			rec = make(store.Record, len(bins))
		}
		rec[bins[i]] = val
	}
	return rec, nil
}
