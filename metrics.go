package handleheap

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    createCounter     prometheus.Counter
//	    collectHistogram  prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordCreate(words int, duration time.Duration, err error) {
//	    p.createCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordCreate is called after each CreateVar or CreateArr.
	// words is the payload size requested, err is nil if successful.
	RecordCreate(words int, duration time.Duration, err error)

	// RecordFree is called after each explicit Free.
	RecordFree(err error)

	// RecordCollect is called after each completed collection cycle.
	// swept is the number of handles reclaimed.
	RecordCollect(swept int, compacted bool, duration time.Duration)

	// RecordNarrowing is called when a written value does not fit its
	// element type and is stored truncated.
	RecordNarrowing()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCreate(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordFree(error)                       {}
func (NoopMetricsCollector) RecordCollect(int, bool, time.Duration) {}
func (NoopMetricsCollector) RecordNarrowing()                       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CreateCount       atomic.Int64
	CreateErrors      atomic.Int64
	CreateWords       atomic.Int64
	CreateTotalNanos  atomic.Int64
	FreeCount         atomic.Int64
	FreeErrors        atomic.Int64
	CollectCount      atomic.Int64
	CollectTotalNanos atomic.Int64
	SweptHandles      atomic.Int64
	Compactions       atomic.Int64
	Narrowings        atomic.Int64
}

// RecordCreate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCreate(words int, duration time.Duration, err error) {
	b.CreateCount.Add(1)
	b.CreateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CreateErrors.Add(1)
		return
	}
	b.CreateWords.Add(int64(words))
}

// RecordFree implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFree(err error) {
	b.FreeCount.Add(1)
	if err != nil {
		b.FreeErrors.Add(1)
	}
}

// RecordCollect implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCollect(swept int, compacted bool, duration time.Duration) {
	b.CollectCount.Add(1)
	b.CollectTotalNanos.Add(duration.Nanoseconds())
	b.SweptHandles.Add(int64(swept))
	if compacted {
		b.Compactions.Add(1)
	}
}

// RecordNarrowing implements MetricsCollector.
func (b *BasicMetricsCollector) RecordNarrowing() {
	b.Narrowings.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CreateCount:     b.CreateCount.Load(),
		CreateErrors:    b.CreateErrors.Load(),
		CreateWords:     b.CreateWords.Load(),
		CreateAvgNanos:  avg(b.CreateTotalNanos.Load(), b.CreateCount.Load()),
		FreeCount:       b.FreeCount.Load(),
		FreeErrors:      b.FreeErrors.Load(),
		CollectCount:    b.CollectCount.Load(),
		CollectAvgNanos: avg(b.CollectTotalNanos.Load(), b.CollectCount.Load()),
		SweptHandles:    b.SweptHandles.Load(),
		Compactions:     b.Compactions.Load(),
		Narrowings:      b.Narrowings.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector values.
type BasicMetricsStats struct {
	CreateCount     int64
	CreateErrors    int64
	CreateWords     int64
	CreateAvgNanos  int64
	FreeCount       int64
	FreeErrors      int64
	CollectCount    int64
	CollectAvgNanos int64
	SweptHandles    int64
	Compactions     int64
	Narrowings      int64
}
