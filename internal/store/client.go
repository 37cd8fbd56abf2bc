package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
)

// Operation names used in logs, metrics and OpError.
const (
	OpPut     = "put"
	OpGet     = "get"
	OpGetMany = "get_many"
	OpExists  = "exists"
	OpRemove  = "remove"
	OpClose   = "close"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger. The client adds its backend name and a
// per-client id to every line.
func WithLogger(logger logr.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithTimeout bounds every call. Zero leaves deadlines to the caller's
// context and the backend's own policy.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// Client is the store boundary used by the online store. Every failure is
// logged here with its key and cause, and returned as an *OpError; missing
// keys are reported as ErrNotFound and are not logged as failures.
type Client struct {
	backend Backend
	logger  logr.Logger
	metrics *Metrics
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// Open dials a backend and wraps it in a Client. Connection errors are not
// shielded: they are returned so the caller can abort the whole call.
func Open(ctx context.Context, name string, dial DialFunc, cfg Config, opts ...ClientOption) (*Client, error) {
	c := &Client{logger: logr.Discard(), timeout: cfg.Timeout()}
	for _, opt := range opts {
		opt(c)
	}

	backend, err := dial(ctx, cfg)
	c.metrics.Connected(name, err)
	if err != nil {
		return nil, fmt.Errorf("connect %s at %s: %w", name, cfg.Addr(), err)
	}

	c.backend = backend
	c.logger = c.logger.WithValues("backend", backend.Name(), "client", uuid.NewString())
	c.logger.Info("store client connected", "addr", cfg.Addr())
	return c, nil
}

// NewClient wraps an already connected backend.
func NewClient(backend Backend, opts ...ClientOption) *Client {
	c := &Client{backend: backend, logger: logr.Discard()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithValues("backend", backend.Name(), "client", uuid.NewString())
	return c
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) call(ctx context.Context, op, namespace, set, key string, fn func(ctx context.Context) error) error {
	if c.isClosed() {
		return &OpError{Op: op, Backend: c.backend.Name(), Namespace: namespace, Set: set, Key: key, Err: ErrClosed}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	c.metrics.observe(c.backend.Name(), op, start, err)

	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}

	c.logger.Error(err, "store call failed", "op", op, "namespace", namespace, "set", set, "key", key)
	return &OpError{Op: op, Backend: c.backend.Name(), Namespace: namespace, Set: set, Key: key, Err: err}
}

// Put upserts the bins of rec under key.
func (c *Client) Put(ctx context.Context, namespace, set string, key PrimaryKey, rec Record) error {
	return c.call(ctx, OpPut, namespace, set, key.String(), func(ctx context.Context) error {
		return c.backend.Put(ctx, namespace, set, key, rec)
	})
}

// Get returns the record for key, restricted to bins when given.
func (c *Client) Get(ctx context.Context, namespace, set string, key PrimaryKey, bins ...string) (Record, error) {
	var rec Record
	err := c.call(ctx, OpGet, namespace, set, key.String(), func(ctx context.Context) error {
		var err error
		rec, err = c.backend.Get(ctx, namespace, set, key, bins...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetMany fetches keys in one call. Keys without a record are absent from
// the returned map.
func (c *Client) GetMany(ctx context.Context, namespace, set string, keys []PrimaryKey, bins ...string) (map[PrimaryKey]Record, error) {
	result := make(map[PrimaryKey]Record, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	var recs []Record
	err := c.call(ctx, OpGetMany, namespace, set, fmt.Sprintf("%d keys", len(keys)), func(ctx context.Context) error {
		var err error
		recs, err = c.backend.GetMany(ctx, namespace, set, keys, bins...)
		return err
	})
	if err != nil {
		return nil, err
	}

	for i, rec := range recs {
		if i < len(keys) && rec != nil {
			result[keys[i]] = rec
		}
	}
	c.logger.Info("found records", "count", len(result), "requested", len(keys), "namespace", namespace, "set", set)
	return result, nil
}

// Exists reports whether key has a record.
func (c *Client) Exists(ctx context.Context, namespace, set string, key PrimaryKey) (bool, error) {
	var ok bool
	err := c.call(ctx, OpExists, namespace, set, key.String(), func(ctx context.Context) error {
		var err error
		ok, err = c.backend.Exists(ctx, namespace, set, key)
		return err
	})
	return ok, err
}

// Remove deletes key. Removing a missing key succeeds.
func (c *Client) Remove(ctx context.Context, namespace, set string, key PrimaryKey) error {
	err := c.call(ctx, OpRemove, namespace, set, key.String(), func(ctx context.Context) error {
		return c.backend.Remove(ctx, namespace, set, key)
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// Close releases the connection. It is safe to call more than once and on a
// nil or never-connected client.
func (c *Client) Close() error {
	if c == nil || c.backend == nil {
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.backend.Close(); err != nil {
		c.logger.Error(err, "failed to close store client")
		return &OpError{Op: OpClose, Backend: c.backend.Name(), Err: err}
	}
	c.logger.Info("store client closed")
	return nil
}
