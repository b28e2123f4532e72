// Package crystal records simulated scintillator-crystal events to columnar
// event files and reads them back.
//
// Each event becomes one Parquet row: the primary position, one photon count
// per SiPM channel and, optionally, the list of interactions the primary had in
// the crystal. The run configuration, command line and build provenance are
// stored as key/value metadata in the file footer.
//
// # Packages
//
//   - pkg/formats/columnar: the event writer and reader
//   - pkg/schema: the Arrow schema for a channel count
//   - pkg/compression: compression spec parsing and stream compressors
//   - pkg/metadata: metadata assembly and git provenance
//   - pkg/config: run configuration, YAML loading and overrides
//   - pkg/export: JSON-lines export of event rows
//   - internal/pipeline: the event loop from a source to a writer
//   - internal/synth: a synthetic event source for the crystal
//
// # Quick Start
//
//	cfg := config.NewRunConfig()
//	sources := metadata.Sources{Config: cfg.AsMap()}
//	w, err := columnar.NewWriter(columnar.WriterConfig{
//	    Path:        cfg.Output.Outfile,
//	    Channels:    cfg.NChannels(),
//	    Compression: cfg.Output.Compression,
//	    ChunkSize:   cfg.Output.ChunkSize,
//	    Sources:     sources,
//	})
//	if err != nil {
//	    return err
//	}
//	defer w.EnsureClosed()
//
//	src, err := synth.New(cfg, 1000, logger)
//	if err != nil {
//	    return err
//	}
//	stats, err := pipeline.New(src, w, pipeline.DefaultConfig(1000), logger, nil).Run(ctx)
//
// The crystal command wraps the same steps:
//
//	crystal simulate -n 1000 --outfile run.parquet --compression zstd-5
//	crystal inspect run.parquet
//	crystal export run.parquet --out run.jsonl.zst --compression zstd
package crystal
