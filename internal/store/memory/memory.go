// Package memory implements an in-process store backend. It keeps records
// across client connections, so the online store can open and close clients
// per call against it, and it can inject faults per operation and key.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/zetareticula/kvfeast/internal/store"
)

// FaultFunc is consulted before every operation; a non-nil error fails that
// operation for that key.
type FaultFunc func(op string, key store.PrimaryKey) error

type setKey struct {
	namespace string
	set       string
}

// Store is an in-memory backend. It is safe for concurrent use.
type Store struct {
	data   map[setKey]map[store.PrimaryKey]store.Record
	fault  FaultFunc
	dials  int
	closes int
	mu     sync.RWMutex
}

// New creates an empty store.
func New() *Store {
	return &Store{
		data: make(map[setKey]map[store.PrimaryKey]store.Record),
	}
}

// SetFault installs fn as the fault hook; nil removes it.
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = fn
}

// Dial returns s itself; it satisfies store.DialFunc.
func (s *Store) Dial(ctx context.Context, cfg store.Config) (store.Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	return s, nil
}

// Dials returns how many times Dial was called.
func (s *Store) Dials() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dials
}

// Closes returns how many times Close was called.
func (s *Store) Closes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closes
}

// Len returns the number of records in a set.
func (s *Store) Len(namespace, set string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[setKey{namespace, set}])
}

func (s *Store) Name() string { return "memory" }

func (s *Store) check(op string, key store.PrimaryKey) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op, key)
}

// Put merges rec into the stored record.
func (s *Store) Put(ctx context.Context, namespace, set string, key store.PrimaryKey, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(store.OpPut, key); err != nil {
		return err
	}

	sk := setKey{namespace, set}
	records, ok := s.data[sk]
	if !ok {
		records = make(map[store.PrimaryKey]store.Record)
		s.data[sk] = records
	}
	existing, ok := records[key]
	if !ok {
		existing = make(store.Record, len(rec))
		records[key] = existing
	}
	for bin, val := range rec {
		existing[bin] = copyValue(val)
	}
	return nil
}

// Get retrieves a record, projected on bins when given.
func (s *Store) Get(ctx context.Context, namespace, set string, key store.PrimaryKey, bins ...string) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(store.OpGet, key); err != nil {
		return nil, err
	}
	rec, ok := s.data[setKey{namespace, set}][key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return project(rec, bins), nil
}

// GetMany retrieves records in request order, nil for missing keys.
func (s *Store) GetMany(ctx context.Context, namespace, set string, keys []store.PrimaryKey, bins ...string) ([]store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.data[setKey{namespace, set}]
	out := make([]store.Record, len(keys))
	for i, key := range keys {
		if err := s.check(store.OpGetMany, key); err != nil {
			return nil, err
		}
		if rec, ok := records[key]; ok {
			out[i] = project(rec, bins)
		}
	}
	return out, nil
}

// Exists reports whether key has a record.
func (s *Store) Exists(ctx context.Context, namespace, set string, key store.PrimaryKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(store.OpExists, key); err != nil {
		return false, err
	}
	_, ok := s.data[setKey{namespace, set}][key]
	return ok, nil
}

// Remove deletes key; missing keys are ignored.
func (s *Store) Remove(ctx context.Context, namespace, set string, key store.PrimaryKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(store.OpRemove, key); err != nil {
		return err
	}
	delete(s.data[setKey{namespace, set}], key)
	return nil
}

// Close counts the call; data survives so later connections see it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func project(rec store.Record, bins []string) store.Record {
	if len(bins) == 0 {
		out := make(store.Record, len(rec))
		for bin, val := range rec {
			out[bin] = copyValue(val)
		}
		return out
	}
	out := make(store.Record, len(bins))
	for _, bin := range bins {
		if val, ok := rec[bin]; ok {
			out[bin] = copyValue(val)
		}
	}
	return out
}

func copyValue(v any) any {
	if m, ok := v.(map[string]any); ok {
		return maps.Clone(m)
	}
	return v
}
