// Package metrics provides Prometheus instrumentation for event recording.
//
// # Basic Usage
//
//	reg := prometheus.NewRegistry()
//	collector := metrics.NewCollector(reg, "run-42")
//
//	w, err := columnar.NewWriter(columnar.WriterConfig{..., Metrics: collector})
//
// A nil *Collector is valid and records nothing.
//
// # Metric Types
//
// Counter: rows appended, append failures, chunks flushed, bytes written
// Histogram: flush latency in seconds
// Gauge: throughput of the most recent event loop window, process CPU and
// resident memory
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crystal"

// Collector groups the writer and event loop metrics of one run. All
// metrics carry a constant "run" label.
type Collector struct {
	RowsAppended   prometheus.Counter
	AppendFailures prometheus.Counter
	ChunksFlushed  prometheus.Counter
	BytesWritten   prometheus.Counter
	FlushLatency   prometheus.Histogram
	Throughput     prometheus.Gauge
	CPUPercent     prometheus.Gauge
	MemoryRSS      prometheus.Gauge

	startTime time.Time
}

// NewCollector registers the run's metrics on reg. Registering two
// collectors for the same run label on one registry panics, as with
// promauto.
//
// Example:
//
//	collector := metrics.NewCollector(prometheus.DefaultRegisterer, cfg.RunID)
//	defer logger.Info("run finished", zap.Duration("uptime", collector.Uptime()))
func NewCollector(reg prometheus.Registerer, run string) *Collector {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"run": run}

	return &Collector{
		RowsAppended: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "rows_appended_total",
			Help:        "Events accepted by the writer",
			ConstLabels: labels,
		}),
		AppendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "append_failures_total",
			Help:        "Events rejected by the writer or lost in a failed flush",
			ConstLabels: labels,
		}),
		ChunksFlushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "chunks_flushed_total",
			Help:        "Row groups written",
			ConstLabels: labels,
		}),
		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "bytes_written_total",
			Help:        "Bytes written to the output file",
			ConstLabels: labels,
		}),
		FlushLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "flush_duration_seconds",
			Help:        "Time to encode and write one row group",
			ConstLabels: labels,
			Buckets: []float64{
				0.0001, // 100μs
				0.001,  // 1ms
				0.01,   // 10ms
				0.1,    // 100ms
				1,      // 1s
				10,     // 10s
			},
		}),
		Throughput: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "throughput_events_per_second",
			Help:        "Events per second over the most recent reporting window",
			ConstLabels: labels,
		}),
		CPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "cpu_percent",
			Help:        "Average process CPU usage since the run started",
			ConstLabels: labels,
		}),
		MemoryRSS: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "resident_memory_bytes",
			Help:        "Resident set size of the process at the last sample",
			ConstLabels: labels,
		}),
		startTime: time.Now(),
	}
}

// Uptime returns the time since the collector was created.
func (c *Collector) Uptime() time.Duration {
	if c == nil {
		return 0
	}
	return time.Since(c.startTime)
}

// RowAppended counts one accepted event.
func (c *Collector) RowAppended() {
	if c == nil {
		return
	}
	c.RowsAppended.Inc()
}

// AppendFailed counts n events that did not make it into the file.
func (c *Collector) AppendFailed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.AppendFailures.Add(float64(n))
}

// ChunkFlushed records one written row group.
func (c *Collector) ChunkFlushed(d time.Duration) {
	if c == nil {
		return
	}
	c.ChunksFlushed.Inc()
	c.FlushLatency.Observe(d.Seconds())
}

// AddBytes records n bytes written to the output file.
func (c *Collector) AddBytes(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.BytesWritten.Add(float64(n))
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's name.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. The timer can be
// stopped multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks events per second over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	gauge     prometheus.Gauge // nil disables export
}

// NewThroughputTracker creates a tracker that publishes to the collector's
// throughput gauge. A nil collector gives a tracker that only computes.
func NewThroughputTracker(c *Collector) *ThroughputTracker {
	t := &ThroughputTracker{lastReset: time.Now()}
	if c != nil {
		t.gauge = c.Throughput
	}
	return t
}

// Increment adds n to the event count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns events/second since the previous reset, publishes it
// and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	if t.gauge != nil {
		t.gauge.Set(throughput)
	}

	return throughput
}
