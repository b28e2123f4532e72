package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/ajitpratap0/crystal/pkg/formats/columnar"
	"github.com/ajitpratap0/crystal/pkg/metrics"
)

// sliceSource yields a fixed list of events, then fails with err if set.
type sliceSource struct {
	events []columnar.EventRecord
	err    error
	next   int
}

func (s *sliceSource) Next(ctx context.Context) (columnar.EventRecord, bool, error) {
	if s.next >= len(s.events) {
		if s.err != nil {
			return columnar.EventRecord{}, false, s.err
		}
		return columnar.EventRecord{}, false, nil
	}
	e := s.events[s.next]
	s.next++
	return e, true, nil
}

type recordingSink struct {
	appended []columnar.EventRecord
	rejectAt map[int]bool
	calls    int
	closed   int
	closeErr error
}

func (s *recordingSink) Append(e columnar.EventRecord) error {
	defer func() { s.calls++ }()
	if s.rejectAt[s.calls] {
		return crystalerrors.New(crystalerrors.ErrorTypeValidation, "rejected")
	}
	s.appended = append(s.appended, e)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed++
	return s.closeErr
}

func events(n int) []columnar.EventRecord {
	out := make([]columnar.EventRecord, n)
	for i := range out {
		out[i] = columnar.EventRecord{
			Position: columnar.Position{X: float32(i)},
			Counts:   columnar.ChannelCounts{0: uint32(i)},
		}
	}
	return out
}

func TestRunAppendsAllEvents(t *testing.T) {
	src := &sliceSource{events: events(5)}
	sink := &recordingSink{}

	stats, err := New(src, sink, Config{Events: 5}, zaptest.NewLogger(t), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.Events)
	assert.Equal(t, int64(5), stats.Appended)
	assert.Zero(t, stats.Failed)
	assert.Equal(t, events(5), sink.appended)
	assert.Equal(t, 1, sink.closed)
}

func TestRunStopsAtEventCount(t *testing.T) {
	src := &sliceSource{events: events(10)}
	sink := &recordingSink{}

	stats, err := New(src, sink, Config{Events: 3}, zaptest.NewLogger(t), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Events)
	assert.Len(t, sink.appended, 3)
}

func TestRunStopsWhenSourceExhausted(t *testing.T) {
	src := &sliceSource{events: events(2)}
	sink := &recordingSink{}

	stats, err := New(src, sink, Config{Events: 100}, zaptest.NewLogger(t), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Events)
	assert.Equal(t, 1, sink.closed)
}

func TestRunZeroEvents(t *testing.T) {
	sink := &recordingSink{}
	stats, err := New(&sliceSource{events: events(3)}, sink, Config{}, zaptest.NewLogger(t), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Events)
	assert.Equal(t, 1, sink.closed)
}

func TestRunNegativeEvents(t *testing.T) {
	sink := &recordingSink{}
	_, err := New(&sliceSource{}, sink, Config{Events: -1}, zaptest.NewLogger(t), nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, crystalerrors.IsType(err, crystalerrors.ErrorTypeConfig))
	assert.Zero(t, sink.closed)
}

func TestRunLogsFailedAppendAndContinues(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	src := &sliceSource{events: events(4)}
	sink := &recordingSink{rejectAt: map[int]bool{1: true}}

	stats, err := New(src, sink, Config{Events: 4}, zap.New(core), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.Events)
	assert.Equal(t, int64(3), stats.Appended)
	assert.Equal(t, int64(1), stats.Failed)

	failed := logs.FilterMessage("failed to append event").All()
	require.Len(t, failed, 1)
	assert.Equal(t, int64(1), failed[0].ContextMap()["event"])
}

func TestRunReturnsCloseError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	closeErr := errors.New("disk full")
	sink := &recordingSink{closeErr: closeErr}

	_, err := New(&sliceSource{events: events(1)}, sink, Config{Events: 1}, zap.New(core), nil).Run(context.Background())
	require.ErrorIs(t, err, closeErr)
	assert.Equal(t, 1, logs.FilterMessage("failed to close event file").Len())
}

func TestRunSourceError(t *testing.T) {
	boom := errors.New("boom")
	sink := &recordingSink{}

	stats, err := New(&sliceSource{events: events(2), err: boom}, sink, Config{Events: 5}, zaptest.NewLogger(t), nil).
		Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.True(t, crystalerrors.IsType(err, crystalerrors.ErrorTypeInternal))

	event, ok := err.(*crystalerrors.Error).Detail("event")
	require.True(t, ok)
	assert.Equal(t, 2, event)
	assert.Equal(t, int64(2), stats.Appended)
	assert.Equal(t, 1, sink.closed)
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &recordingSink{}

	stats, err := New(&sliceSource{events: events(3)}, sink, Config{Events: 3}, zaptest.NewLogger(t), nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Events)
	assert.Equal(t, 1, sink.closed)
}

func TestRunIntoEventFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run"+columnar.FileExtension)
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg, "pipeline-test")

	cfg := columnar.DefaultWriterConfig(path, 2)
	cfg.ChunkSize = 2
	cfg.Logger = zaptest.NewLogger(t)
	cfg.Metrics = collector
	w, err := columnar.NewWriter(cfg)
	require.NoError(t, err)

	in := []columnar.EventRecord{
		{Position: columnar.Position{X: 1}, Counts: columnar.ChannelCounts{0: 3}},
		{Position: columnar.Position{X: 2}, Counts: columnar.ChannelCounts{7: 1}}, // out of range
		{Position: columnar.Position{X: 3}, Counts: columnar.ChannelCounts{1: 5}},
	}
	stats, err := New(&sliceSource{events: in}, w, Config{Events: 3}, zaptest.NewLogger(t), collector).
		Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Appended)
	assert.Equal(t, int64(1), stats.Failed)

	got, err := columnar.ReadAll(context.Background(), path, columnar.ReaderConfig{Channels: 2})
	require.NoError(t, err)
	assert.Equal(t, []columnar.EventRecord{
		{Position: columnar.Position{X: 1}, Counts: columnar.ChannelCounts{0: 3, 1: 0}},
		{Position: columnar.Position{X: 3}, Counts: columnar.ChannelCounts{0: 0, 1: 5}},
	}, got)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.RowsAppended))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.AppendFailures))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(42)
	assert.Equal(t, 42, cfg.Events)
	assert.Positive(t, cfg.ReportEvery)
}
