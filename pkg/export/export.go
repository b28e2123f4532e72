// Package export converts event files into JSON for tools that cannot read
// Parquet. Output is line-delimited by default and can be stream
// compressed with any compression spec.
package export

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/ajitpratap0/crystal/pkg/compression"
	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/ajitpratap0/crystal/pkg/formats/columnar"
	"github.com/ajitpratap0/crystal/pkg/json"
	"github.com/ajitpratap0/crystal/pkg/logger"
)

// Row is the JSON form of one event. Counts are dense, indexed by channel.
type Row struct {
	X            float32       `json:"x"`
	Y            float32       `json:"y"`
	Z            float32       `json:"z"`
	Counts       []uint32      `json:"counts"`
	Interactions []Interaction `json:"interactions,omitempty"`
}

// Interaction is the JSON form of one interaction.
type Interaction struct {
	X    float32 `json:"x"`
	Y    float32 `json:"y"`
	Z    float32 `json:"z"`
	Edep float32 `json:"edep"`
	Type uint16  `json:"type"`
}

// Options configure an export.
type Options struct {
	// Compression is a compression spec applied to the whole stream; empty
	// means uncompressed.
	Compression string
	// Array writes one JSON array instead of JSON lines.
	Array  bool
	Logger *zap.Logger
}

// Result summarizes an export.
type Result struct {
	Rows int
}

// NewRow converts e into its JSON form over n channels.
func NewRow(e columnar.EventRecord, n int) (Row, error) {
	dense, err := e.Counts.Dense(n)
	if err != nil {
		return Row{}, err
	}
	row := Row{X: e.Position.X, Y: e.Position.Y, Z: e.Position.Z, Counts: dense}
	if len(e.Interactions) > 0 {
		row.Interactions = make([]Interaction, len(e.Interactions))
		for i, in := range e.Interactions {
			row.Interactions[i] = Interaction(in)
		}
	}
	return row, nil
}

// Event converts r back into an event record.
func (r Row) Event() columnar.EventRecord {
	e := columnar.EventRecord{
		Position: columnar.Position{X: r.X, Y: r.Y, Z: r.Z},
		Counts:   columnar.DenseCounts(r.Counts).Counts(),
	}
	for _, in := range r.Interactions {
		e.Interactions = append(e.Interactions, columnar.Interaction(in))
	}
	return e
}

// Write streams every event of r to w. The schema of r is checked against
// cfg first.
func Write(ctx context.Context, r *columnar.Reader, cfg columnar.ReaderConfig, w io.Writer, opts Options) (Result, error) {
	log := logger.OrGlobal(opts.Logger).With(zap.String(string(logger.ComponentKey), "export"))

	spec := compression.Spec{Algorithm: compression.None}
	if opts.Compression != "" {
		var err error
		if spec, err = compression.ParseSpec(opts.Compression); err != nil {
			return Result{}, err
		}
	}
	comp, err := compression.NewCompressor(spec)
	if err != nil {
		return Result{}, err
	}
	cw, err := comp.NewWriter(w)
	if err != nil {
		return Result{}, crystalerrors.Wrap(err, crystalerrors.ErrorTypeWrite, "failed to create compressed stream").
			WithDetail("compression", spec.String())
	}

	enc := json.NewStreamingEncoder(cw, opts.Array)
	scanErr := r.Scan(ctx, cfg, func(e columnar.EventRecord) error {
		row, err := NewRow(e, cfg.Channels)
		if err != nil {
			return err
		}
		if err := enc.Encode(row); err != nil {
			return crystalerrors.Wrap(err, crystalerrors.ErrorTypeWrite, "failed to write row").
				WithDetail("row", enc.Count())
		}
		return nil
	})

	res := Result{Rows: enc.Count()}
	if scanErr != nil {
		cw.Close()
		return res, scanErr
	}
	if err := enc.Close(); err != nil {
		cw.Close()
		return res, crystalerrors.Wrap(err, crystalerrors.ErrorTypeWrite, "failed to finish JSON stream")
	}
	if err := cw.Close(); err != nil {
		return res, crystalerrors.Wrap(err, crystalerrors.ErrorTypeWrite, "failed to finish compressed stream").
			WithDetail("compression", spec.String())
	}

	log.Debug("export finished", zap.Int("rows", res.Rows), zap.Stringer("compression", spec))
	return res, nil
}

// ReadRows decodes JSON lines written by Write from src, decompressing with
// the given spec.
func ReadRows(src io.Reader, compressionSpec string) ([]Row, error) {
	spec := compression.Spec{Algorithm: compression.None}
	if compressionSpec != "" {
		var err error
		if spec, err = compression.ParseSpec(compressionSpec); err != nil {
			return nil, err
		}
	}
	comp, err := compression.NewCompressor(spec)
	if err != nil {
		return nil, err
	}
	cr, err := comp.NewReader(src)
	if err != nil {
		return nil, crystalerrors.Wrap(err, crystalerrors.ErrorTypeRead, "failed to open compressed stream")
	}
	defer cr.Close()

	var rows []Row
	dec := json.NewDecoder(cr)
	for dec.More() {
		var row Row
		if err := dec.Decode(&row); err != nil {
			return nil, crystalerrors.Wrap(err, crystalerrors.ErrorTypeRead, "failed to decode row").
				WithDetail("row", len(rows))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
