package columnar

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/crystal/pkg/compression"
	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/ajitpratap0/crystal/pkg/logger"
	"github.com/ajitpratap0/crystal/pkg/metadata"
	"github.com/ajitpratap0/crystal/pkg/metrics"
	"github.com/ajitpratap0/crystal/pkg/observability"
	"github.com/ajitpratap0/crystal/pkg/schema"
)

// Writer appends events to a Parquet file.
//
// A Writer is not safe for concurrent use. Always call Close; a deferred
// EnsureClosed covers early returns:
//
//	w, err := columnar.NewWriter(cfg)
//	if err != nil {
//		return err
//	}
//	defer w.EnsureClosed()
//	...
//	return w.Close()
type Writer struct {
	path      string
	chunkSize int
	spec      compression.Spec
	schema    *arrow.Schema
	metadata  map[string]string
	logger    *zap.Logger
	metrics   *metrics.Collector

	file *os.File
	sink *countingWriter
	fw   *pqarrow.FileWriter
	buf  *rowBuffer

	rowsWritten   int64
	chunksWritten int
	bytesReported int64

	closed   bool
	closeErr error
}

// NewWriter creates the output file and prepares it for appends. Schema and
// metadata are fixed for the lifetime of the file.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	log := logger.OrGlobal(cfg.Logger).With(
		zap.String(string(logger.ComponentKey), "writer"),
		zap.String(string(logger.FileKey), cfg.Path),
	)

	if cfg.Path == "" {
		return nil, crystalerrors.New(crystalerrors.ErrorTypeConfig, "output path is empty")
	}
	if cfg.Channels < 0 {
		return nil, crystalerrors.Newf(crystalerrors.ErrorTypeConfig, "negative channel count %d", cfg.Channels).
			WithDetail("channels", cfg.Channels)
	}
	if cfg.ChunkSize < 1 {
		return nil, crystalerrors.Newf(crystalerrors.ErrorTypeConfig, "chunk size must be at least 1, got %d", cfg.ChunkSize).
			WithDetail("chunk_size", cfg.ChunkSize)
	}

	spec := compression.DefaultSpec
	if cfg.Compression != "" {
		var err error
		if spec, err = compression.ParseSpec(cfg.Compression); err != nil {
			return nil, err
		}
	}

	md, err := assembleMetadata(cfg.Sources, log)
	if err != nil {
		return nil, err
	}

	keys, values := metadata.Split(md)
	arrowMeta := arrow.NewMetadata(keys, values)
	sc := schema.BuildWithMetadata(cfg.Channels, cfg.Interactions, &arrowMeta)

	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, crystalerrors.Wrap(err, crystalerrors.ErrorTypeFile, "failed to create output file").
			WithDetail("path", cfg.Path)
	}

	mem := memory.NewGoAllocator()
	props := parquet.NewWriterProperties(append(spec.WriterProperties(),
		parquet.WithAllocator(mem),
		parquet.WithMaxRowGroupLength(int64(cfg.ChunkSize)),
		parquet.WithCreatedBy("crystal"),
	)...)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(mem),
		pqarrow.WithStoreSchema(),
	)

	sink := &countingWriter{w: f}
	fw, err := pqarrow.NewFileWriter(sc, sink, props, arrowProps)
	if err != nil {
		f.Close()
		os.Remove(cfg.Path)
		return nil, crystalerrors.Wrap(err, crystalerrors.ErrorTypeFile, "failed to create Parquet writer").
			WithDetail("path", cfg.Path)
	}

	w := &Writer{
		path:      cfg.Path,
		chunkSize: cfg.ChunkSize,
		spec:      spec,
		schema:    sc,
		metadata:  md,
		logger:    log,
		metrics:   cfg.Metrics,
		file:      f,
		sink:      sink,
		fw:        fw,
		buf:       newRowBuffer(mem, sc, schema.LayoutOf(cfg.Channels, cfg.Interactions), cfg.ChunkSize),
	}

	log.Debug("writer opened",
		zap.Int("channels", cfg.Channels),
		zap.Bool("interactions", cfg.Interactions),
		zap.Stringer("compression", spec),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.Int("metadata_keys", len(md)))

	return w, nil
}

func assembleMetadata(src metadata.Sources, log *zap.Logger) (map[string]string, error) {
	for name, m := range map[string]map[string]string{
		metadata.SourceConfig:     src.Config,
		metadata.SourceCLI:        src.CLI,
		metadata.SourceProvenance: src.Provenance,
	} {
		if _, ok := m[metadata.ReservedSchemaKey]; ok {
			return nil, crystalerrors.Newf(crystalerrors.ErrorTypeConfig,
				"metadata key %q is reserved", metadata.ReservedSchemaKey).
				WithDetail("source", name)
		}
	}

	md, collisions := src.Assemble()
	for _, c := range collisions {
		log.Info("metadata key overridden",
			zap.String("key", c.Key),
			zap.Strings("sources", c.Sources),
			zap.String("winner", c.Winner))
	}
	return md, nil
}

// Append buffers e as one row and writes the chunk once ChunkSize rows are
// buffered. A validation error leaves the buffer unchanged. A flush error
// is returned from the Append that triggered it.
func (w *Writer) Append(e EventRecord) error {
	if w.closed {
		return crystalerrors.New(crystalerrors.ErrorTypeWrite, "append to closed writer").
			WithDetail("path", w.path)
	}

	if err := w.buf.append(e); err != nil {
		w.metrics.AppendFailed(1)
		return err
	}
	w.metrics.RowAppended()

	if w.buf.len() >= w.chunkSize {
		return w.Flush()
	}
	return nil
}

// Flush writes the buffered rows as one row group. It does nothing when the
// buffer is empty, which is always the case once the writer is closed. The
// buffer is empty afterwards even on error.
func (w *Writer) Flush() error {
	if w.closed {
		return nil
	}
	return w.flush(context.Background())
}

func (w *Writer) flush(ctx context.Context) (err error) {
	rows := w.buf.len()
	if rows == 0 {
		return nil
	}

	_, span := observability.StartSpan(ctx, "writer.flush",
		attribute.String("path", w.path),
		attribute.Int("rows", rows),
		attribute.Int("chunk", w.chunksWritten))
	defer func() { observability.EndSpan(span, err) }()

	timer := metrics.NewTimer("flush")
	rec := w.buf.take()
	defer rec.Release()

	if err := w.fw.Write(rec); err != nil {
		w.metrics.AppendFailed(rows)
		return crystalerrors.Wrap(err, crystalerrors.ErrorTypeWrite, "failed to write row group").
			WithDetail("path", w.path).
			WithDetail("rows", rows).
			WithDetail("chunk", w.chunksWritten)
	}

	w.rowsWritten += int64(rows)
	w.chunksWritten++
	w.metrics.ChunkFlushed(timer.Stop())
	w.reportBytes()

	w.logger.Debug("chunk flushed",
		zap.Int("rows", rows),
		zap.Int("chunk", w.chunksWritten-1),
		zap.Int64("bytes", w.sink.n))
	return nil
}

// Close flushes the remaining rows, writes the footer and closes the file.
// Both the final flush and the close are attempted; the first error is
// returned. Calling Close again returns the same result.
func (w *Writer) Close() (err error) {
	if w.closed {
		return w.closeErr
	}
	w.closed = true

	_, span := observability.StartSpan(context.Background(), "writer.close",
		attribute.String("path", w.path))
	defer func() { observability.EndSpan(span, err) }()

	flushErr := w.flush(context.Background())
	if flushErr != nil {
		w.logger.Error("final flush failed", logger.ErrorFields(flushErr)...)
	}

	var closeErr error
	if cerr := w.fw.Close(); cerr != nil {
		closeErr = crystalerrors.Wrap(cerr, crystalerrors.ErrorTypeWrite, "failed to finalize Parquet file").
			WithDetail("path", w.path)
	}
	if cerr := w.file.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) && closeErr == nil {
		closeErr = crystalerrors.Wrap(cerr, crystalerrors.ErrorTypeWrite, "failed to close output file").
			WithDetail("path", w.path)
	}
	w.buf.release()
	w.reportBytes()

	if closeErr != nil {
		w.logger.Error("close failed", logger.ErrorFields(closeErr)...)
	}

	w.closeErr = flushErr
	if w.closeErr == nil {
		w.closeErr = closeErr
	}

	if w.closeErr == nil {
		w.logger.Info("writer closed",
			zap.Int64("rows", w.rowsWritten),
			zap.Int("chunks", w.chunksWritten),
			zap.Int64("bytes", w.sink.n))
	}
	return w.closeErr
}

// EnsureClosed closes the writer if Close was never called, logging any
// error. It never panics. Intended for defer.
func (w *Writer) EnsureClosed() {
	if w == nil || w.closed {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while closing writer", zap.Any("panic", r))
		}
	}()

	w.logger.Warn("writer was not closed explicitly, closing")
	if err := w.Close(); err != nil {
		w.logger.Error("deferred close failed", logger.ErrorFields(err)...)
	}
}

func (w *Writer) reportBytes() {
	w.metrics.AddBytes(w.sink.n - w.bytesReported)
	w.bytesReported = w.sink.n
}

// RowsWritten returns the number of rows written to row groups.
func (w *Writer) RowsWritten() int64 { return w.rowsWritten }

// RowsBuffered returns the number of rows waiting for the next flush.
func (w *Writer) RowsBuffered() int { return w.buf.len() }

// ChunksWritten returns the number of row groups written.
func (w *Writer) ChunksWritten() int { return w.chunksWritten }

// BytesWritten returns the number of bytes written to the file so far.
func (w *Writer) BytesWritten() int64 { return w.sink.n }

// Schema returns the file's Arrow schema, including its metadata.
func (w *Writer) Schema() *arrow.Schema { return w.schema }

// Metadata returns the assembled key/value metadata. The reserved schema
// key is added by the Parquet layer and is not part of the map.
func (w *Writer) Metadata() map[string]string {
	out := make(map[string]string, len(w.metadata))
	for k, v := range w.metadata {
		out[k] = v
	}
	return out
}

// Compression returns the parsed compression spec.
func (w *Writer) Compression() compression.Spec { return w.spec }

// Path returns the output path.
func (w *Writer) Path() string { return w.path }

// countingWriter counts the bytes passed to the file. It is not an
// io.Closer; Writer.Close closes the file.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
