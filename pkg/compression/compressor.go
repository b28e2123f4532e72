package compression

import (
	"bytes"
	"io"
	"sync"

	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor compresses whole buffers and streams with the algorithm and
// level of a Spec. Parquet output uses the codecs built into the Parquet
// writer; Compressor serves data leaving the Parquet container, such as
// exported rows. All implementations are safe for concurrent use.
type Compressor interface {
	// Compress compresses data and returns the compressed bytes.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data and returns the original bytes.
	Decompress(data []byte) ([]byte, error)

	// NewWriter returns a writer compressing into dst. Close flushes the
	// trailer but does not close dst.
	NewWriter(dst io.Writer) (io.WriteCloser, error)

	// NewReader returns a reader decompressing src.
	NewReader(src io.Reader) (io.ReadCloser, error)

	// Spec returns the spec the compressor was built from.
	Spec() Spec
}

// NewCompressor creates a compressor for spec.
//
// Example:
//
//	spec, _ := compression.ParseSpec("zstd-3")
//	comp, err := compression.NewCompressor(spec)
//	w, err := comp.NewWriter(file)
//	defer w.Close()
func NewCompressor(spec Spec) (Compressor, error) {
	base := baseCompressor{spec: spec}

	switch spec.Algorithm {
	case None:
		return &noneCompressor{base}, nil
	case Gzip:
		return newGzipCompressor(base), nil
	case Snappy:
		return &snappyCompressor{base}, nil
	case Brotli:
		return &brotliCompressor{base}, nil
	case LZ4:
		return &lz4Compressor{baseCompressor: base, level: mapLZ4Level(spec.Level)}, nil
	case Zstd:
		return newZstdCompressor(base)
	default:
		return nil, crystalerrors.New(crystalerrors.ErrorTypeConfig, "unsupported compression algorithm").
			WithDetail("offending", string(spec.Algorithm))
	}
}

type baseCompressor struct {
	spec Spec
}

func (bc *baseCompressor) Spec() Spec {
	return bc.spec
}

// compressWith runs data through a fresh writer from newWriter.
func compressWith(data []byte, newWriter func(io.Writer) (io.WriteCloser, error)) ([]byte, error) {
	var buf bytes.Buffer
	w, err := newWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decompressWith drains a reader from newReader over data.
func decompressWith(data []byte, newReader func(io.Reader) (io.ReadCloser, error)) ([]byte, error) {
	r, err := newReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil { //nolint:gosec // G110: input is our own export output
		return nil, err
	}
	return buf.Bytes(), nil
}

// nopWriteCloser adapts writers whose Close must not close dst.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// None compressor (no compression)
type noneCompressor struct {
	baseCompressor
}

func (nc *noneCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (nc *noneCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

func (nc *noneCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{dst}, nil
}

func (nc *noneCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(src), nil
}

// Gzip compressor
type gzipCompressor struct {
	baseCompressor
	writerPool sync.Pool
}

func newGzipCompressor(base baseCompressor) *gzipCompressor {
	gc := &gzipCompressor{baseCompressor: base}
	level := base.spec.Level
	gc.writerPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, level)
		return w
	}
	return gc
}

// pooledGzipWriter returns its gzip.Writer to the pool on Close.
type pooledGzipWriter struct {
	*gzip.Writer
	pool *sync.Pool
}

func (w *pooledGzipWriter) Close() error {
	err := w.Writer.Close()
	w.pool.Put(w.Writer)
	return err
}

func (gc *gzipCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	w := gc.writerPool.Get().(*gzip.Writer)
	w.Reset(dst)
	return &pooledGzipWriter{Writer: w, pool: &gc.writerPool}, nil
}

func (gc *gzipCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(src)
}

func (gc *gzipCompressor) Compress(data []byte) ([]byte, error) {
	return compressWith(data, gc.NewWriter)
}

func (gc *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	return decompressWith(data, gc.NewReader)
}

// Snappy compressor
type snappyCompressor struct {
	baseCompressor
}

func (sc *snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (sc *snappyCompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

func (sc *snappyCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(dst), nil
}

func (sc *snappyCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(snappy.NewReader(src)), nil
}

// Brotli compressor
type brotliCompressor struct {
	baseCompressor
}

func (bc *brotliCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return brotli.NewWriterLevel(dst, bc.spec.Level), nil
}

func (bc *brotliCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(brotli.NewReader(src)), nil
}

func (bc *brotliCompressor) Compress(data []byte) ([]byte, error) {
	return compressWith(data, bc.NewWriter)
}

func (bc *brotliCompressor) Decompress(data []byte) ([]byte, error) {
	return decompressWith(data, bc.NewReader)
}

// LZ4 compressor
type lz4Compressor struct {
	baseCompressor
	level lz4.CompressionLevel
}

func (lc *lz4Compressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	w := lz4.NewWriter(dst)
	if err := w.Apply(lz4.CompressionLevelOption(lc.level)); err != nil {
		return nil, err
	}
	return w, nil
}

func (lc *lz4Compressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(src)), nil
}

func (lc *lz4Compressor) Compress(data []byte) ([]byte, error) {
	return compressWith(data, lc.NewWriter)
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	return decompressWith(data, lc.NewReader)
}

// Zstd compressor
type zstdCompressor struct {
	baseCompressor
	options     []zstd.EOption
	encoderPool sync.Pool
	decoderPool sync.Pool
}

func newZstdCompressor(base baseCompressor) (*zstdCompressor, error) {
	zc := &zstdCompressor{
		baseCompressor: base,
		options:        []zstd.EOption{zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(base.spec.Level))},
	}

	zc.encoderPool.New = func() interface{} {
		enc, _ := zstd.NewWriter(nil, zc.options...)
		return enc
	}

	zc.decoderPool.New = func() interface{} {
		dec, _ := zstd.NewReader(nil)
		return dec
	}

	return zc, nil
}

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := zc.encoderPool.Get().(*zstd.Encoder)
	defer zc.encoderPool.Put(enc)

	return enc.EncodeAll(data, nil), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	dec := zc.decoderPool.Get().(*zstd.Decoder)
	defer zc.decoderPool.Put(dec)

	return dec.DecodeAll(data, nil)
}

func (zc *zstdCompressor) NewWriter(dst io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(dst, zc.options...)
}

func (zc *zstdCompressor) NewReader(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// mapLZ4Level maps a spec level onto the lz4 frame levels; anything above 9
// uses the strongest level.
func mapLZ4Level(level int) lz4.CompressionLevel {
	switch {
	case level <= 0:
		return lz4.Fast
	case level >= len(lz4Levels):
		return lz4.Level9
	default:
		return lz4Levels[level]
	}
}
