package paretodb

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// See metrics/prom for a Prometheus implementation.
type MetricsCollector interface {
	// RecordInsert is called after each batch insert (including seeding).
	RecordInsert(rows int, duration time.Duration, err error)

	// RecordUpdate is called after each objective update.
	// newlyValid is the number of rows that became valid.
	RecordUpdate(rows, newlyValid int, duration time.Duration, err error)

	// RecordLoad is called after each load.
	RecordLoad(rows int, duration time.Duration, err error)

	// RecordLockWait is called with the time spent waiting for the exclusive lock.
	RecordLockWait(duration time.Duration)

	// RecordCorrection is called after CorrectStatus ("status") or CorrectStats ("stats").
	RecordCorrection(kind string, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordUpdate(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordLoad(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordLockWait(time.Duration)                {}
func (NoopMetricsCollector) RecordCorrection(string, error)              {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertRows       atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	UpdateCount      atomic.Int64
	UpdateRows       atomic.Int64
	UpdateNewlyValid atomic.Int64
	UpdateErrors     atomic.Int64
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
	LockWaitNanos    atomic.Int64
	Corrections      atomic.Int64
	CorrectionErrors atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(rows int, duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
		return
	}
	b.InsertRows.Add(int64(rows))
}

// RecordUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpdate(rows, newlyValid int, duration time.Duration, err error) {
	b.UpdateCount.Add(1)
	if err != nil {
		b.UpdateErrors.Add(1)
		return
	}
	b.UpdateRows.Add(int64(rows))
	b.UpdateNewlyValid.Add(int64(newlyValid))
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(rows int, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordLockWait implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLockWait(duration time.Duration) {
	b.LockWaitNanos.Add(duration.Nanoseconds())
}

// RecordCorrection implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCorrection(kind string, err error) {
	b.Corrections.Add(1)
	if err != nil {
		b.CorrectionErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:      b.InsertCount.Load(),
		InsertRows:       b.InsertRows.Load(),
		InsertErrors:     b.InsertErrors.Load(),
		InsertAvgNanos:   b.getAvgInsertNanos(),
		UpdateCount:      b.UpdateCount.Load(),
		UpdateRows:       b.UpdateRows.Load(),
		UpdateNewlyValid: b.UpdateNewlyValid.Load(),
		UpdateErrors:     b.UpdateErrors.Load(),
		LoadCount:        b.LoadCount.Load(),
		LoadErrors:       b.LoadErrors.Load(),
		LockWaitNanos:    b.LockWaitNanos.Load(),
		Corrections:      b.Corrections.Load(),
		CorrectionErrors: b.CorrectionErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgInsertNanos() int64 {
	count := b.InsertCount.Load()
	if count == 0 {
		return 0
	}
	return b.InsertTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertCount      int64
	InsertRows       int64
	InsertErrors     int64
	InsertAvgNanos   int64
	UpdateCount      int64
	UpdateRows       int64
	UpdateNewlyValid int64
	UpdateErrors     int64
	LoadCount        int64
	LoadErrors       int64
	LockWaitNanos    int64
	Corrections      int64
	CorrectionErrors int64
}
