package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestEndSpanStatus(t *testing.T) {
	rec := withRecorder(t)

	_, ok := StartSpan(context.Background(), "writer.flush", attribute.Int("rows", 3))
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "writer.close")
	EndSpan(failed, errors.New("disk full"))

	spans := rec.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "writer.flush", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.Int("rows", 3))

	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "disk full", spans[1].Status().Description)
	assert.Len(t, spans[1].Events(), 1)
}

func TestInitTracing(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var out safeBuffer
	cfg := DefaultTracingConfig()
	cfg.Output = &out

	shutdown, err := InitTracing(cfg)
	require.NoError(t, err)

	_, span := StartSpan(context.Background(), "reader.read_all")
	EndSpan(span, nil)

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "reader.read_all")
}
