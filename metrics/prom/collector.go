// Package prom exports ledger metrics to Prometheus.
//
// Collector implements paretodb.MetricsCollector:
//
//	reg := prometheus.NewRegistry()
//	l := paretodb.New(paretodb.WithMetricsCollector(prom.NewCollector(reg)))
//	prom.RegisterCounters(reg, l)
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/paretodb"
)

const namespace = "paretodb"

// Collector records ledger operations as Prometheus metrics.
type Collector struct {
	// OpsTotal counts operations by op (insert, update, load) and status (ok, error).
	OpsTotal *prometheus.CounterVec

	// RowsTotal counts rows written by op (insert, update).
	RowsTotal *prometheus.CounterVec

	// NewlyValidTotal counts rows that received their first complete objective vector.
	NewlyValidTotal prometheus.Counter

	// DurationSeconds measures operation latency by op.
	DurationSeconds *prometheus.HistogramVec

	// LockWaitSeconds measures the wait for the exclusive row store lock.
	LockWaitSeconds prometheus.Histogram

	// CorrectionsTotal counts corrections by kind (status, stats) and status.
	CorrectionsTotal *prometheus.CounterVec
}

var _ paretodb.MetricsCollector = (*Collector)(nil)

// NewCollector creates the metrics and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		OpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Ledger operations by op and status",
		}, []string{"op", "status"}),
		RowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written by op",
		}, []string{"op"}),
		NewlyValidTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_newly_valid_total",
			Help:      "Rows that became valid through an update",
		}),
		DurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"op"}),
		LockWaitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the exclusive row store lock",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		CorrectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_total",
			Help:      "Status and counter corrections by kind and status",
		}, []string{"kind", "status"}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Collector) observe(op string, duration time.Duration, err error) {
	c.OpsTotal.WithLabelValues(op, status(err)).Inc()
	c.DurationSeconds.WithLabelValues(op).Observe(duration.Seconds())
}

func (c *Collector) RecordInsert(rows int, duration time.Duration, err error) {
	c.observe("insert", duration, err)
	if err == nil {
		c.RowsTotal.WithLabelValues("insert").Add(float64(rows))
	}
}

func (c *Collector) RecordUpdate(rows, newlyValid int, duration time.Duration, err error) {
	c.observe("update", duration, err)
	if err == nil {
		c.RowsTotal.WithLabelValues("update").Add(float64(rows))
		c.NewlyValidTotal.Add(float64(newlyValid))
	}
}

func (c *Collector) RecordLoad(_ int, duration time.Duration, err error) {
	c.observe("load", duration, err)
}

func (c *Collector) RecordLockWait(duration time.Duration) {
	c.LockWaitSeconds.Observe(duration.Seconds())
}

func (c *Collector) RecordCorrection(kind string, err error) {
	c.CorrectionsTotal.WithLabelValues(kind, status(err)).Inc()
}

// CountersSource reads the shared counters. *paretodb.Ledger implements it.
type CountersSource interface {
	Counters() (paretodb.Counters, error)
}

// RegisterCounters exports the ledger's shared counters as gauges read on
// every scrape. Read errors report -1.
func RegisterCounters(reg prometheus.Registerer, src CountersSource) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	gauge := func(name, help string, pick func(paretodb.Counters) int64) {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 {
			c, err := src.Counters()
			if err != nil {
				return -1
			}
			return float64(pick(c))
		})
	}

	gauge("samples", "Rows in the ledger (n_sample)", func(c paretodb.Counters) int64 { return c.NSample })
	gauge("valid_samples", "Rows with complete objectives (n_valid_sample)", func(c paretodb.Counters) int64 { return c.NValidSample })
	gauge("initial_samples", "Valid seeded rows (n_init_sample)", func(c paretodb.Counters) int64 { return c.NInitSample })
}
