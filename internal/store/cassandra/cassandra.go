package cassandra

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/gocql/gocql"

	"github.com/zetareticula/kvfeast/internal/store"
)

// CassandraStore implements store.Backend on a Cassandra (or Scylla) cluster.
// The namespace is the keyspace and the set is the table. Each table has the
// layout
//
//	CREATE TABLE <namespace>.<set> (key text, bin text, value blob, PRIMARY KEY (key, bin))
//
// so a record is one partition and each bin one row holding the bin value in
// store.MarshalBin encoding.
type CassandraStore struct {
	session    *gocql.Session
	tries      int
	retryDelay time.Duration
}

var identifier = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Dial creates a session against the cluster.
func Dial(ctx context.Context, cfg store.Config) (store.Backend, error) {
	cluster := gocql.NewCluster(cfg.Host)
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	cluster.Consistency = gocql.Quorum
	cluster.NumConns = 2
	if cfg.TimeoutMs > 0 {
		cluster.Timeout = cfg.Timeout()
		cluster.ConnectTimeout = cfg.Timeout()
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	return &CassandraStore{session: session, tries: cfg.Tries(), retryDelay: cfg.RetryDelay()}, nil
}

func (s *CassandraStore) Name() string { return "cassandra" }

func table(namespace, set string) (string, error) {
	if !identifier.MatchString(namespace) || !identifier.MatchString(set) {
		return "", fmt.Errorf("invalid keyspace or table name %q.%q", namespace, set)
	}
	return namespace + "." + set, nil
}

// retry runs fn up to s.tries times, pausing retryDelay between attempts.
// Not-found results are returned immediately.
func (s *CassandraStore) retry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < s.tries; i++ {
		err = fn()
		if err == nil || err == store.ErrNotFound {
			return err
		}
		if i+1 < s.tries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}
	}
	return err
}

// Put upserts one row per bin in an unlogged batch.
func (s *CassandraStore) Put(ctx context.Context, namespace, set string, key store.PrimaryKey, rec store.Record) error {
	tbl, err := table(namespace, set)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("INSERT INTO %s (key, bin, value) VALUES (?, ?, ?)", tbl)

	batch := s.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for bin, val := range rec {
		data, err := store.MarshalBin(val)
		if err != nil {
			return fmt.Errorf("bin %q: %w", bin, err)
		}
		batch.Query(stmt, key.String(), bin, data)
	}
	if batch.Size() == 0 {
		return nil
	}
	return s.retry(ctx, func() error {
		return s.session.ExecuteBatch(batch)
	})
}

// Get reads the partition for key.
func (s *CassandraStore) Get(ctx context.Context, namespace, set string, key store.PrimaryKey, bins ...string) (store.Record, error) {
	recs, err := s.GetMany(ctx, namespace, set, []store.PrimaryKey{key}, bins...)
	if err != nil {
		return nil, err
	}
	if recs[0] == nil {
		return nil, store.ErrNotFound
	}
	return recs[0], nil
}

// GetMany reads all partitions with one IN query.
func (s *CassandraStore) GetMany(ctx context.Context, namespace, set string, keys []store.PrimaryKey, bins ...string) ([]store.Record, error) {
	tbl, err := table(namespace, set)
	if err != nil {
		return nil, err
	}

	index := make(map[string][]int, len(keys))
	ids := make([]string, 0, len(keys))
	for i, key := range keys {
		id := key.String()
		if _, seen := index[id]; !seen {
			ids = append(ids, id)
		}
		index[id] = append(index[id], i)
	}

	stmt := fmt.Sprintf("SELECT key, bin, value FROM %s WHERE key IN ?", tbl)
	args := []any{ids}
	if len(bins) > 0 {
		stmt += " AND bin IN ?"
		args = append(args, bins)
	}

	var out []store.Record
	err = s.retry(ctx, func() error {
		out = make([]store.Record, len(keys))
		iter := s.session.Query(stmt, args...).WithContext(ctx).Iter()

		var (
			id, bin string
			data    []byte
		)
		for iter.Scan(&id, &bin, &data) {
			val, err := store.UnmarshalBin(data)
			if err != nil {
				_ = iter.Close()
				return fmt.Errorf("key %s bin %q: %w", id, bin, err)
			}
			for _, i := range index[id] {
				if out[i] == nil {
					out[i] = make(store.Record)
				}
				out[i][bin] = val
			}
		}
		return iter.Close()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Exists reports whether the partition has any row.
func (s *CassandraStore) Exists(ctx context.Context, namespace, set string, key store.PrimaryKey) (bool, error) {
	tbl, err := table(namespace, set)
	if err != nil {
		return false, err
	}

	var found bool
	err = s.retry(ctx, func() error {
		var id string
		err := s.session.Query(fmt.Sprintf("SELECT key FROM %s WHERE key = ? LIMIT 1", tbl),
			key.String()).WithContext(ctx).Scan(&id)
		if err == gocql.ErrNotFound {
			found = false
			return nil
		}
		found = err == nil
		return err
	})
	return found, err
}

// Remove deletes the partition.
func (s *CassandraStore) Remove(ctx context.Context, namespace, set string, key store.PrimaryKey) error {
	tbl, err := table(namespace, set)
	if err != nil {
		return err
	}
	return s.retry(ctx, func() error {
		return s.session.Query(fmt.Sprintf("DELETE FROM %s WHERE key = ?", tbl),
			key.String()).WithContext(ctx).Exec()
	})
}

// Close closes the session.
func (s *CassandraStore) Close() error {
	s.session.Close()
	return nil
}

