package store

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks store client calls. A nil *Metrics records nothing.
type Metrics struct {
	operations  *prometheus.CounterVec
	failures    *prometheus.CounterVec
	misses      *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	connections *prometheus.CounterVec
}

// NewMetrics creates store metrics and registers them with reg. A nil reg
// disables metrics. Collectors already registered by an earlier call are
// reused, so several stores may share one registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvfeast",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store client calls",
		}, []string{"backend", "op"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvfeast",
			Subsystem: "store",
			Name:      "failures_total",
			Help:      "Store client calls that failed in transport",
		}, []string{"backend", "op"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvfeast",
			Subsystem: "store",
			Name:      "not_found_total",
			Help:      "Point reads for keys without a record",
		}, []string{"backend", "op"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kvfeast",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store client call latency",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 18),
		}, []string{"backend", "op"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvfeast",
			Subsystem: "store",
			Name:      "connections_total",
			Help:      "Connection attempts by result",
		}, []string{"backend", "result"}),
	}

	var err error
	if m.operations, err = Register(reg, m.operations); err != nil {
		return nil, err
	}
	if m.failures, err = Register(reg, m.failures); err != nil {
		return nil, err
	}
	if m.misses, err = Register(reg, m.misses); err != nil {
		return nil, err
	}
	if m.latency, err = Register(reg, m.latency); err != nil {
		return nil, err
	}
	if m.connections, err = Register(reg, m.connections); err != nil {
		return nil, err
	}
	return m, nil
}

// Register registers c with reg. When an equal collector is already
// registered, the existing one is returned instead.
func Register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observe(backend, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(backend, op).Inc()
	m.latency.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
	case IsNotFound(err):
		m.misses.WithLabelValues(backend, op).Inc()
	default:
		m.failures.WithLabelValues(backend, op).Inc()
	}
}

// Connected records a connection attempt.
func (m *Metrics) Connected(backend string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.connections.WithLabelValues(backend, result).Inc()
}
