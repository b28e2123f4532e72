// Package pipeline drives events from a source into an event file.
//
// # Overview
//
// A Pipeline pulls events one at a time from a Source and appends them to a
// Sink, normally a *columnar.Writer. The loop is synchronous: the writer is
// not safe for concurrent use and the row order on disk is the order events
// are produced.
//
// # Basic Usage
//
//	w, err := columnar.NewWriter(wcfg)
//	if err != nil {
//	    return err
//	}
//	p := pipeline.New(source, w, pipeline.Config{Events: 1000}, logger, collector)
//	stats, err := p.Run(ctx)
//
// # Error Handling
//
// A rejected append is logged with its event index and the loop continues.
// A source error stops the loop. The sink is closed on every exit path and a
// close error is logged at error level and returned.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/ajitpratap0/crystal/pkg/formats/columnar"
	"github.com/ajitpratap0/crystal/pkg/logger"
	"github.com/ajitpratap0/crystal/pkg/metrics"
	"github.com/ajitpratap0/crystal/pkg/observability"
)

// Source produces events. Next returns ok=false once the source is
// exhausted.
type Source interface {
	Next(ctx context.Context) (e columnar.EventRecord, ok bool, err error)
}

// Sink consumes events. *columnar.Writer implements it.
type Sink interface {
	Append(e columnar.EventRecord) error
	Close() error
}

// Config holds the event loop settings.
type Config struct {
	Events      int           // events to pull from the source
	ReportEvery time.Duration // progress log interval, 0 disables
}

// DefaultConfig returns a Config for n events with progress every 10s.
func DefaultConfig(n int) Config {
	return Config{
		Events:      n,
		ReportEvery: 10 * time.Second,
	}
}

// Stats summarises one run.
type Stats struct {
	Events     int64 // events pulled from the source
	Appended   int64
	Failed     int64
	Duration   time.Duration
	Throughput float64 // events per second over the whole run
}

// Pipeline is a synchronous source-to-sink event loop.
type Pipeline struct {
	source  Source
	sink    Sink
	config  Config
	logger  *zap.Logger
	metrics *metrics.Collector
	tracker *metrics.ThroughputTracker
	monitor *metrics.ResourceMonitor // nil when the platform cannot report
}

// New creates a pipeline. A nil logger means logger.Get(); a nil collector
// disables metrics.
func New(source Source, sink Sink, config Config, log *zap.Logger, collector *metrics.Collector) *Pipeline {
	p := &Pipeline{
		source:  source,
		sink:    sink,
		config:  config,
		logger:  logger.OrGlobal(log).With(zap.String(string(logger.ComponentKey), "pipeline")),
		metrics: collector,
		tracker: metrics.NewThroughputTracker(collector),
	}
	monitor, err := metrics.NewResourceMonitor()
	if err != nil {
		p.logger.Debug("resource monitoring unavailable", zap.Error(err))
	} else {
		p.monitor = monitor
	}
	return p
}

// resourceFields samples process resources, publishes them and returns
// them as log fields.
func (p *Pipeline) resourceFields() []zap.Field {
	if p.monitor == nil {
		return nil
	}
	u := p.monitor.Sample()
	p.metrics.ObserveResources(u)
	return []zap.Field{
		zap.Float64("cpu_percent", u.CPUPercent),
		zap.Uint64("rss_bytes", u.MemoryRSS),
		zap.Int32("threads", u.ThreadCount),
	}
}

// Run pulls up to Config.Events events and appends them. It stops early when
// the source is exhausted, the source fails, or ctx is cancelled; the sink
// is closed in every case. The returned error is the source or context
// error if any, otherwise the close error.
func (p *Pipeline) Run(ctx context.Context) (stats Stats, err error) {
	if p.config.Events < 0 {
		return stats, crystalerrors.Newf(crystalerrors.ErrorTypeConfig,
			"event count cannot be negative, got %d", p.config.Events).
			WithDetail("events", p.config.Events)
	}

	ctx, span := observability.StartSpan(ctx, "pipeline.run")
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	lastReport := start
	p.logger.Info("starting event loop", zap.Int("events", p.config.Events))

	loopErr := p.loop(ctx, &stats, &lastReport)

	closeErr := p.sink.Close()
	if closeErr != nil {
		p.logger.Error("failed to close event file", logger.ErrorFields(closeErr)...)
	}

	stats.Duration = time.Since(start)
	if secs := stats.Duration.Seconds(); secs > 0 {
		stats.Throughput = float64(stats.Events) / secs
	}

	fields := []zap.Field{
		zap.Int64("events", stats.Events),
		zap.Int64("appended", stats.Appended),
		zap.Int64("failed", stats.Failed),
		zap.Duration("duration", stats.Duration),
		zap.Float64("throughput_eps", stats.Throughput),
	}
	fields = append(fields, p.resourceFields()...)
	if loopErr != nil {
		p.logger.Warn("event loop stopped early", append(fields, logger.ErrorFields(loopErr)...)...)
		return stats, loopErr
	}
	p.logger.Info("event loop completed", fields...)
	return stats, closeErr
}

func (p *Pipeline) loop(ctx context.Context, stats *Stats, lastReport *time.Time) error {
	for i := 0; i < p.config.Events; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		e, ok, err := p.source.Next(ctx)
		if err != nil {
			return crystalerrors.Wrap(err, crystalerrors.ErrorTypeInternal, "event source failed").
				WithDetail("event", i)
		}
		if !ok {
			p.logger.Info("event source exhausted", zap.Int("event", i))
			return nil
		}
		stats.Events++

		if err := p.sink.Append(e); err != nil {
			stats.Failed++
			p.logger.Warn("failed to append event",
				append([]zap.Field{zap.Int("event", i)}, logger.ErrorFields(err)...)...)
		} else {
			stats.Appended++
		}
		p.tracker.Increment(1)

		if p.config.ReportEvery > 0 && time.Since(*lastReport) >= p.config.ReportEvery {
			*lastReport = time.Now()
			fields := []zap.Field{
				zap.Int64("events", stats.Events),
				zap.Float64("throughput_eps", p.tracker.GetAndReset()),
			}
			p.logger.Info("progress", append(fields, p.resourceFields()...)...)
		}
	}
	return nil
}
