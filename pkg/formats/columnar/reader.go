package columnar

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/ajitpratap0/crystal/pkg/observability"
	"github.com/ajitpratap0/crystal/pkg/schema"
)

const readBatchSize = 64 * 1024

// Reader reads an event file written by Writer. Readers are independent
// and may be used concurrently on distinct files; a single Reader is not
// safe for concurrent use.
type Reader struct {
	path     string
	pf       *file.Reader
	fr       *pqarrow.FileReader
	schema   *arrow.Schema
	metadata map[string]string
}

// OpenReader opens path and loads its footer.
func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, crystalerrors.Wrap(err, crystalerrors.ErrorTypeNotFound, "event file not found").
				WithDetail("path", path)
		}
		return nil, crystalerrors.Wrap(err, crystalerrors.ErrorTypeRead, "cannot stat event file").
			WithDetail("path", path)
	}

	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, crystalerrors.Wrap(err, crystalerrors.ErrorTypeRead, "failed to open Parquet file").
			WithDetail("path", path)
	}

	mem := memory.NewGoAllocator()
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: readBatchSize}, mem)
	if err != nil {
		pf.Close()
		return nil, crystalerrors.Wrap(err, crystalerrors.ErrorTypeRead, "failed to create Arrow reader").
			WithDetail("path", path)
	}

	sc, err := fr.Schema()
	if err != nil {
		pf.Close()
		return nil, crystalerrors.Wrap(err, crystalerrors.ErrorTypeRead, "failed to read Arrow schema").
			WithDetail("path", path)
	}

	kv := pf.MetaData().KeyValueMetadata()
	md := make(map[string]string, kv.Len())
	keys, values := kv.Keys(), kv.Values()
	for i := range keys {
		md[keys[i]] = values[i]
	}

	return &Reader{path: path, pf: pf, fr: fr, schema: sc, metadata: md}, nil
}

// Schema returns the stored schema.
func (r *Reader) Schema() *arrow.Schema { return r.schema }

// Metadata returns the stored key/value metadata, including the serialized
// schema under metadata.ReservedSchemaKey.
func (r *Reader) Metadata() map[string]string {
	out := make(map[string]string, len(r.metadata))
	for k, v := range r.metadata {
		out[k] = v
	}
	return out
}

// NumRows returns the number of stored events.
func (r *Reader) NumRows() int64 { return r.pf.NumRows() }

// NumRowGroups returns the number of stored chunks.
func (r *Reader) NumRowGroups() int { return r.pf.NumRowGroups() }

// Close releases the file.
func (r *Reader) Close() error {
	if err := r.pf.Close(); err != nil {
		return crystalerrors.Wrap(err, crystalerrors.ErrorTypeRead, "failed to close Parquet file").
			WithDetail("path", r.path)
	}
	return nil
}

// Check verifies that the stored schema equals the schema cfg produces.
func (r *Reader) Check(cfg ReaderConfig) error {
	if cfg.Channels < 0 {
		return crystalerrors.Newf(crystalerrors.ErrorTypeConfig, "negative channel count %d", cfg.Channels).
			WithDetail("channels", cfg.Channels)
	}
	expected := schema.Build(cfg.Channels, cfg.Interactions)
	if err := schema.Diff(expected, r.schema); err != nil {
		return crystalerrors.Wrap(err, crystalerrors.ErrorTypeSchemaMismatch,
			"stored schema does not match the configured layout").
			WithDetail("path", r.path).
			WithDetail("difference", err.Error()).
			WithDetail("channels", cfg.Channels).
			WithDetail("interactions", cfg.Interactions)
	}
	return nil
}

// Scan checks the schema and calls fn for every stored event in write
// order. Scan stops at the first error fn returns and returns it.
func (r *Reader) Scan(ctx context.Context, cfg ReaderConfig, fn func(EventRecord) error) (err error) {
	ctx, span := observability.StartSpan(ctx, "reader.scan",
		attribute.String("path", r.path),
		attribute.Int64("rows", r.NumRows()))
	defer func() { observability.EndSpan(span, err) }()

	if err := r.Check(cfg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rr, err := r.fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return crystalerrors.Wrap(err, crystalerrors.ErrorTypeRead, "failed to create record reader").
			WithDetail("path", r.path)
	}
	defer rr.Release()

	layout := schema.LayoutOf(cfg.Channels, cfg.Interactions)
	var row int64
	for rr.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		dec := newRecordDecoder(rr.Record(), layout)
		for i := 0; i < dec.rows; i++ {
			if err := fn(dec.event(i)); err != nil {
				return err
			}
			row++
		}
	}
	// the record reader reports io.EOF once every row group is consumed
	if err := rr.Err(); err != nil && !errors.Is(err, io.EOF) {
		return crystalerrors.Wrap(err, crystalerrors.ErrorTypeRead, "failed to read row group").
			WithDetail("path", r.path).
			WithDetail("row", row)
	}
	return nil
}

// ReadAll checks the schema and returns every stored event in write order.
// Counts hold every channel, zeros included; Interactions is non-nil when
// the interactions column is enabled.
func (r *Reader) ReadAll(ctx context.Context, cfg ReaderConfig) ([]EventRecord, error) {
	events := make([]EventRecord, 0, r.NumRows())
	err := r.Scan(ctx, cfg, func(e EventRecord) error {
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ReadAll opens path and returns every stored event.
func ReadAll(ctx context.Context, path string, cfg ReaderConfig) ([]EventRecord, error) {
	r, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll(ctx, cfg)
}

// ReadMetadata returns the key/value metadata of path without reading rows.
func ReadMetadata(path string) (map[string]string, error) {
	r, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.metadata, nil
}

// recordDecoder converts the rows of one record back into events.
type recordDecoder struct {
	rows    int
	x, y, z *array.Float32

	list              *array.List
	ix, iy, iz, iedep *array.Float32
	itype             *array.Uint16

	counts []*array.Uint32
}

func newRecordDecoder(rec arrow.Record, layout schema.Layout) *recordDecoder {
	d := &recordDecoder{
		rows:   int(rec.NumRows()),
		x:      rec.Column(0).(*array.Float32),
		y:      rec.Column(1).(*array.Float32),
		z:      rec.Column(2).(*array.Float32),
		counts: make([]*array.Uint32, layout.Channels),
	}
	if layout.Interactions >= 0 {
		d.list = rec.Column(layout.Interactions).(*array.List)
		items := d.list.ListValues().(*array.Struct)
		d.ix = items.Field(0).(*array.Float32)
		d.iy = items.Field(1).(*array.Float32)
		d.iz = items.Field(2).(*array.Float32)
		d.iedep = items.Field(3).(*array.Float32)
		d.itype = items.Field(4).(*array.Uint16)
	}
	for i := range d.counts {
		d.counts[i] = rec.Column(layout.ChannelColumnIndex(i)).(*array.Uint32)
	}
	return d
}

func (d *recordDecoder) event(row int) EventRecord {
	e := EventRecord{
		Position: Position{X: d.x.Value(row), Y: d.y.Value(row), Z: d.z.Value(row)},
		Counts:   make(ChannelCounts, len(d.counts)),
	}

	if d.list != nil {
		start, end := d.list.ValueOffsets(row)
		e.Interactions = make([]Interaction, 0, end-start)
		for j := int(start); j < int(end); j++ {
			e.Interactions = append(e.Interactions, Interaction{
				X:    d.ix.Value(j),
				Y:    d.iy.Value(j),
				Z:    d.iz.Value(j),
				Edep: d.iedep.Value(j),
				Type: d.itype.Value(j),
			})
		}
	}

	for i, col := range d.counts {
		e.Counts[i] = col.Value(row)
	}
	return e
}
