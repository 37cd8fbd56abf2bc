package onlinestore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	v1 "github.com/zetareticula/kvfeast/api/v1"
	"github.com/zetareticula/kvfeast/internal/store"
)

// Metrics tracks batch calls. A nil *Metrics records nothing.
type Metrics struct {
	items   *prometheus.CounterVec
	reads   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewMetrics creates online store metrics on reg. A nil reg disables them.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvfeast",
			Subsystem: "online_store",
			Name:      "write_items_total",
			Help:      "Items of batch writes by result",
		}, []string{"feature_view", "result"}),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kvfeast",
			Subsystem: "online_store",
			Name:      "read_results_total",
			Help:      "Slots of batch reads by status",
		}, []string{"feature_view", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kvfeast",
			Subsystem: "online_store",
			Name:      "batch_duration_seconds",
			Help:      "Batch write and read latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 18),
		}, []string{"feature_view", "op"}),
	}

	var err error
	if m.items, err = store.Register(reg, m.items); err != nil {
		return nil, err
	}
	if m.reads, err = store.Register(reg, m.reads); err != nil {
		return nil, err
	}
	if m.latency, err = store.Register(reg, m.latency); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) written(view string, report *v1.WriteReport) {
	if m == nil || report == nil {
		return
	}
	m.items.WithLabelValues(view, "written").Add(float64(report.Written))
	m.items.WithLabelValues(view, "failed").Add(float64(report.Failed))
}

func (m *Metrics) read(view string, results []v1.ReadResult) {
	if m == nil {
		return
	}
	for _, r := range results {
		m.reads.WithLabelValues(view, r.Status.String()).Inc()
	}
}

func (m *Metrics) since(view, op string, start time.Time) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(view, op).Observe(time.Since(start).Seconds())
}
