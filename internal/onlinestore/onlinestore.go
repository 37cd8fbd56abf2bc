// Package onlinestore serves feature values from a key-value store. Each
// feature view maps to a namespace and set; each entity becomes one record
// whose bin, named after the feature view, holds the feature map.
package onlinestore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	v1 "github.com/zetareticula/kvfeast/api/v1"
	"github.com/zetareticula/kvfeast/internal/codec"
	"github.com/zetareticula/kvfeast/internal/entitykey"
	"github.com/zetareticula/kvfeast/internal/store"
	"github.com/zetareticula/kvfeast/internal/store/aerospike"
	"github.com/zetareticula/kvfeast/internal/store/cassandra"
	"github.com/zetareticula/kvfeast/internal/store/memory"
	"github.com/zetareticula/kvfeast/internal/store/redis"
)

var dialers = map[string]store.DialFunc{
	TypeAerospike: aerospike.Dial,
	TypeRedis:     redis.Dial,
	TypeCassandra: cassandra.Dial,
}

// Option configures an OnlineStore.
type Option func(*OnlineStore)

// WithLogger sets the logger used by the store and its clients.
func WithLogger(logger logr.Logger) Option {
	return func(s *OnlineStore) { s.logger = logger }
}

// WithRegisterer enables metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *OnlineStore) { s.reg = reg }
}

// WithDialer replaces the dialer chosen by the config type.
func WithDialer(dial store.DialFunc) Option {
	return func(s *OnlineStore) { s.dial = dial }
}

// WithEntityIDFunc replaces the digest used for entity ids in digest key
// mode.
func WithEntityIDFunc(id entitykey.IDFunc) Option {
	return func(s *OnlineStore) { s.id = id }
}

// OnlineStore writes and reads feature rows. It holds no connection: every
// call opens a client and closes it before returning.
type OnlineStore struct {
	cfg          *Config
	logger       logr.Logger
	reg          prometheus.Registerer
	dial         store.DialFunc
	id           entitykey.IDFunc
	keys         codec.KeyStrategy
	metrics      *Metrics
	storeMetrics *store.Metrics
}

// New validates cfg and builds an OnlineStore. A nil cfg uses DefaultConfig.
func New(cfg *Config, opts ...Option) (*OnlineStore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &OnlineStore{cfg: cfg, logger: logr.Discard()}
	for _, opt := range opts {
		opt(s)
	}

	if s.dial == nil {
		if cfg.Type == TypeMemory {
			s.dial = memory.New().Dial
		} else {
			s.dial = dialers[cfg.Type]
		}
	}
	if s.id == nil {
		id, err := entitykey.DigestFunc(cfg.Key.Digest)
		if err != nil {
			return nil, err
		}
		s.id = id
	}

	keys, err := codec.NewKeyStrategy(cfg.Key.Mode, cfg.Key.SerializationVersion, s.id, cfg.Key.JoinKey)
	if err != nil {
		return nil, err
	}
	s.keys = keys

	if s.metrics, err = NewMetrics(s.reg); err != nil {
		return nil, err
	}
	if s.storeMetrics, err = store.NewMetrics(s.reg); err != nil {
		return nil, err
	}

	s.logger = s.logger.WithName("online-store")
	s.logger.Info("initializing online store", "type", cfg.Type, "keyMode", cfg.Key.Mode, "featureViews", len(cfg.FeatureViews))
	return s, nil
}

// Config returns the store configuration.
func (s *OnlineStore) Config() *Config {
	return s.cfg
}

func (s *OnlineStore) open(ctx context.Context) (*store.Client, error) {
	client, err := store.Open(ctx, s.cfg.Type, s.dial, s.cfg.Connection,
		store.WithLogger(s.logger), store.WithMetrics(s.storeMetrics))
	if err != nil {
		s.logger.Error(err, "failed to open store client")
		return nil, err
	}
	return client, nil
}

// OnlineWriteBatch upserts one record per item. Items are independent: a
// failed item is recorded in the report and the batch continues. progress,
// when non-nil, is called with 1 after each item that was written. The
// returned error covers configuration and connection failures only.
func (s *OnlineStore) OnlineWriteBatch(ctx context.Context, view v1.FeatureView, items []v1.WriteItem, progress func(int)) (*v1.WriteReport, error) {
	start := time.Now()
	logger := s.logger.WithValues("featureView", view.Name)

	fv, err := s.cfg.FeatureView(view.Name)
	if err != nil {
		logger.Error(err, "cannot write feature view")
		return nil, err
	}

	logger.Info("starting online write", "items", len(items))
	client, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	defer s.metrics.since(view.Name, "write", start)

	name := fv.StorageName(view.Name)
	report := &v1.WriteReport{Outcomes: make([]v1.WriteOutcome, 0, len(items))}
	for i, item := range items {
		pk, err := codec.DeriveStorageKey(item.EntityKey, s.keys)
		if err != nil {
			logger.Error(err, "cannot derive storage key", "index", i, "entityKey", item.EntityKey.String())
			report.Record(i, item.EntityKey.String(), err)
			continue
		}

		rec := codec.BuildRecord(name, codec.EncodeFeatureValues(item.Values))
		if err := client.Put(ctx, fv.Namespace, fv.SetName, pk, rec); err != nil {
			report.Record(i, pk.String(), err)
			continue
		}
		report.Record(i, pk.String(), nil)
		if progress != nil {
			progress(1)
		}
	}

	s.metrics.written(view.Name, report)
	logger.Info("finished online write", "written", report.Written, "failed", report.Failed, "duration", time.Since(start))
	return report, nil
}

// OnlineRead returns one result per key, in the order of keys. Features are
// restricted to requested, or all stored features when requested is empty.
// EventTime is always nil: records carry no timestamp. The returned error
// covers configuration and connection failures only; per-key failures are
// reported in the result slot.
func (s *OnlineStore) OnlineRead(ctx context.Context, view v1.FeatureView, keys []v1.EntityKey, requested []string) ([]v1.ReadResult, error) {
	start := time.Now()
	logger := s.logger.WithValues("featureView", view.Name)

	fv, err := s.cfg.FeatureView(view.Name)
	if err != nil {
		logger.Error(err, "cannot read feature view")
		return nil, err
	}

	results := make([]v1.ReadResult, len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	logger.Info("starting online read", "keys", len(keys))
	client, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	defer s.metrics.since(view.Name, "read", start)

	pks := make([]store.PrimaryKey, len(keys))
	derived := make([]bool, len(keys))
	lookup := make([]store.PrimaryKey, 0, len(keys))
	for i, key := range keys {
		pk, err := codec.DeriveStorageKey(key, s.keys)
		if err != nil {
			logger.Error(err, "cannot derive storage key", "index", i, "entityKey", key.String())
			results[i] = v1.ReadResult{Status: v1.ReadFailed, Err: err}
			continue
		}
		pks[i] = pk
		derived[i] = true
		lookup = append(lookup, pk)
	}

	name := fv.StorageName(view.Name)
	records, err := client.GetMany(ctx, fv.Namespace, fv.SetName, lookup, name)
	schema := view.Schema()
	for i := range keys {
		if !derived[i] {
			continue
		}
		if err != nil {
			results[i] = v1.ReadResult{Status: v1.ReadFailed, Err: err}
			continue
		}
		rec, ok := records[pks[i]]
		if !ok {
			continue
		}
		features, found, derr := codec.DecodeResult(name, rec, requested, schema)
		switch {
		case derr != nil:
			logger.Error(derr, "cannot decode record", "index", i, "key", pks[i].String())
			results[i] = v1.ReadResult{Status: v1.ReadFailed, Err: fmt.Errorf("decode key %s: %w", pks[i], derr)}
		case found:
			results[i] = v1.ReadResult{Status: v1.ReadFound, Features: features}
		}
	}

	s.metrics.read(view.Name, results)
	logger.Info("finished online read", "keys", len(keys), "duration", time.Since(start))
	return results, nil
}

// OnlineDelete removes the records of keys from the feature view's set.
// Like writes, keys are independent and failures are reported per key.
func (s *OnlineStore) OnlineDelete(ctx context.Context, view v1.FeatureView, keys []v1.EntityKey) (*v1.WriteReport, error) {
	logger := s.logger.WithValues("featureView", view.Name)

	fv, err := s.cfg.FeatureView(view.Name)
	if err != nil {
		logger.Error(err, "cannot delete from feature view")
		return nil, err
	}

	client, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	report := &v1.WriteReport{Outcomes: make([]v1.WriteOutcome, 0, len(keys))}
	for i, key := range keys {
		pk, err := codec.DeriveStorageKey(key, s.keys)
		if err != nil {
			report.Record(i, key.String(), err)
			continue
		}
		report.Record(i, pk.String(), client.Remove(ctx, fv.Namespace, fv.SetName, pk))
	}
	logger.Info("finished online delete", "removed", report.Written, "failed", report.Failed)
	return report, nil
}

// Update is called when feature views are applied. Records are created on
// write, so there is nothing to provision.
func (s *OnlineStore) Update(ctx context.Context, toDelete, toKeep []v1.FeatureView) error {
	s.logger.Info("update invoked", "delete", viewNames(toDelete), "keep", viewNames(toKeep))
	return nil
}

// Teardown is called when feature views are removed. Stored records are left
// in place.
func (s *OnlineStore) Teardown(ctx context.Context, views []v1.FeatureView) error {
	s.logger.Info("teardown invoked", "featureViews", viewNames(views))
	return nil
}

func viewNames(views []v1.FeatureView) []string {
	names := make([]string, len(views))
	for i, v := range views {
		names[i] = v.Name
	}
	return names
}
