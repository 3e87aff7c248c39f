// Package metrics exports transfer and delete counters to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "uploads"

// Transfer results.
const (
	ResultUploaded    = "uploaded"
	ResultPassthrough = "passthrough"
	ResultFallback    = "fallback"
	ResultFailed      = "failed"
)

// ResultDeleted labels a successful delete; failed deletes use ResultFailed.
const ResultDeleted = "deleted"

// Metrics holds the module's collectors.
type Metrics struct {
	transfers     *prometheus.CounterVec
	deletes       *prometheus.CounterVec
	orphans       prometheus.Counter
	uploadedBytes prometheus.Counter
	duration      *prometheus.HistogramVec
}

// New registers the collectors with reg. A nil reg yields a nil *Metrics.
// Collectors already registered by another client are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Items processed by single and bulk transfers, by outcome.",
		}, []string{"result"}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletes_total",
			Help:      "Object deletions attempted, by outcome.",
		}, []string{"result"}),
		orphans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphans_failed_total",
			Help:      "Replaced objects whose reconciliation delete failed.",
		}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes written to object storage.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of public operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	var err error
	if m.transfers, err = register(reg, m.transfers); err != nil {
		return nil, err
	}
	if m.deletes, err = register(reg, m.deletes); err != nil {
		return nil, err
	}
	if m.orphans, err = register(reg, m.orphans); err != nil {
		return nil, err
	}
	if m.uploadedBytes, err = register(reg, m.uploadedBytes); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register metrics collector: %w", err)
	}
	return c, nil
}

// Transfer counts one item outcome.
func (m *Metrics) Transfer(result string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(result).Inc()
}

// Uploaded records bytes written by a successful upload.
func (m *Metrics) Uploaded(size int64) {
	if m == nil || size <= 0 {
		return
	}
	m.uploadedBytes.Add(float64(size))
}

// Delete counts one delete outcome.
func (m *Metrics) Delete(err error) {
	if m == nil {
		return
	}
	result := ResultDeleted
	if err != nil {
		result = ResultFailed
	}
	m.deletes.WithLabelValues(result).Inc()
}

// Orphans counts reconciliation deletes that failed.
func (m *Metrics) Orphans(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphans.Add(float64(n))
}

// Observe records how long operation took since start.
func (m *Metrics) Observe(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
