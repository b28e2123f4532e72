// Package columnar writes simulated events to Parquet files and reads them
// back.
//
// A file holds one row per event: the primary position, an optional list of
// interactions and one count column per detector channel (see package
// schema for the layout). Rows are buffered and written in chunks, one
// Parquet row group per chunk. The file's key/value metadata carries the run
// configuration, the invocation and the build provenance, plus the
// serialized Arrow schema under metadata.ReservedSchemaKey.
//
// Parquet stores schema and metadata in the footer, so a file is readable
// only after Close.
package columnar

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/crystal/pkg/metadata"
	"github.com/ajitpratap0/crystal/pkg/metrics"
)

// FileExtension is the conventional suffix of event files.
const FileExtension = ".parquet"

// DefaultChunkSize is the number of rows buffered per row group.
const DefaultChunkSize = 200

// WriterConfig configures a Writer
type WriterConfig struct {
	// Path of the output file. An existing file is truncated.
	Path string
	// Channels is the number of detector channels N.
	Channels int
	// Interactions enables the interactions column.
	Interactions bool
	// Compression is a compression spec such as "zstd-5". Empty selects
	// compression.DefaultSpec.
	Compression string
	// ChunkSize is the number of rows per row group; must be at least 1.
	ChunkSize int
	// Sources supply the file's key/value metadata.
	Sources metadata.Sources
	// Logger defaults to the global logger.
	Logger *zap.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
}

// DefaultWriterConfig returns a config writing to path with the default
// chunk size and compression.
func DefaultWriterConfig(path string, channels int) WriterConfig {
	return WriterConfig{
		Path:      path,
		Channels:  channels,
		ChunkSize: DefaultChunkSize,
	}
}

// ReaderConfig describes the layout a reader expects, derived from the
// current run configuration.
type ReaderConfig struct {
	Channels     int
	Interactions bool
}
