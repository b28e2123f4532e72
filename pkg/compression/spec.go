// Package compression parses compression specs of the form
// "algorithm[-level]" and maps them onto Parquet column codecs and onto
// stream compressors for exported data.
//
// # Grammar
//
//	spec      = algorithm [ "-" level ]
//	algorithm = "none" | "snappy" | "gzip" | "brotli" | "zstd" | "lz4"   (case-insensitive)
//	level     = integer
//
// Algorithms with levels default to their maximal-effort setting when the
// level is omitted. An unusable spec is a configuration error: the run has
// not started yet and there is nothing to recover.
//
// # Basic Usage
//
//	spec, err := compression.ParseSpec("zstd-5")
//	if err != nil {
//	    logger.Fatal("bad compression spec", logger.ErrorFields(err)...)
//	}
//	props := parquet.NewWriterProperties(spec.WriterProperties()...)
package compression

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None stores data uncompressed
	None Algorithm = "none"
	// Snappy represents snappy compression
	Snappy Algorithm = "snappy"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Brotli represents brotli compression
	Brotli Algorithm = "brotli"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// LZ4 represents lz4 compression
	LZ4 Algorithm = "lz4"
	// BZ2 is recognized but has no Parquet codec
	BZ2 Algorithm = "bz2"
	// LZO is recognized but has no Go implementation
	LZO Algorithm = "lzo"
)

// levelRange describes the accepted levels of an algorithm and the level
// used when a spec omits one.
type levelRange struct {
	min, max, def int
}

type algorithmInfo struct {
	levels    *levelRange
	available bool
	codec     compress.Compression
}

var algorithms = map[Algorithm]algorithmInfo{
	None:   {available: true, codec: compress.Codecs.Uncompressed},
	Snappy: {available: true, codec: compress.Codecs.Snappy},
	Gzip:   {available: true, codec: compress.Codecs.Gzip, levels: &levelRange{min: 1, max: 9, def: 6}},
	Brotli: {available: true, codec: compress.Codecs.Brotli, levels: &levelRange{min: 0, max: 11, def: 11}},
	Zstd:   {available: true, codec: compress.Codecs.Zstd, levels: &levelRange{min: 1, max: 22, def: 9}},
	LZ4:    {available: true, codec: compress.Codecs.Lz4Raw, levels: &levelRange{min: 1, max: 12, def: 9}},
	BZ2:    {available: false},
	LZO:    {available: false},
}

// Algorithms returns the algorithms a spec may name, in a fixed order.
func Algorithms() []Algorithm {
	return []Algorithm{None, Snappy, Gzip, Brotli, Zstd, LZ4}
}

// Spec is a parsed compression spec.
type Spec struct {
	Algorithm Algorithm
	Level     int  // meaningful only when HasLevel is set
	HasLevel  bool // false for algorithms without levels
}

// String renders the canonical "algorithm[-level]" form.
func (s Spec) String() string {
	if !s.HasLevel {
		return string(s.Algorithm)
	}
	return string(s.Algorithm) + "-" + strconv.Itoa(s.Level)
}

// Codec returns the Parquet column codec for the spec.
func (s Spec) Codec() compress.Compression {
	return algorithms[s.Algorithm].codec
}

// WriterProperties returns the Parquet writer options selecting the spec's
// codec and level.
func (s Spec) WriterProperties() []parquet.WriterProperty {
	opts := []parquet.WriterProperty{parquet.WithCompression(s.Codec())}
	if s.HasLevel {
		opts = append(opts, parquet.WithCompressionLevel(s.Level))
	}
	return opts
}

// DefaultSpec is used when a configuration leaves the spec empty.
var DefaultSpec = Spec{Algorithm: Snappy}

// ParseSpec parses spec. Every failure is a crystalerrors.ErrorTypeConfig
// error whose "offending" detail holds the exact substring at fault.
func ParseSpec(spec string) (Spec, error) {
	if spec == "" {
		return Spec{}, configError("empty compression spec", spec, spec)
	}

	parts := strings.Split(spec, "-")
	if len(parts) > 2 {
		return Spec{}, configError("too many '-' separators in compression spec", spec, spec)
	}

	token := parts[0]
	alg := Algorithm(strings.ToLower(token))
	info, ok := algorithms[alg]
	if !ok {
		return Spec{}, configError("unrecognized compression algorithm '"+token+"'", spec, token)
	}
	if !info.available {
		return Spec{}, configError("compression algorithm '"+token+"' is not available for parquet output", spec, token)
	}

	out := Spec{Algorithm: alg}
	if info.levels != nil {
		out.Level = info.levels.def
		out.HasLevel = true
	}

	if len(parts) == 1 {
		return out, nil
	}

	levelText := parts[1]
	if info.levels == nil {
		return Spec{}, configError("compression algorithm '"+token+"' does not take a level", spec, levelText)
	}

	level, err := strconv.Atoi(levelText)
	if err != nil {
		return Spec{}, configError("could not parse compression level '"+levelText+"'", spec, levelText)
	}
	if level < info.levels.min || level > info.levels.max {
		return Spec{}, configError("compression level '"+levelText+"' out of range", spec, levelText).
			WithDetail("min", info.levels.min).
			WithDetail("max", info.levels.max)
	}

	out.Level = level
	return out, nil
}

func configError(msg, spec, offending string) *crystalerrors.Error {
	return crystalerrors.New(crystalerrors.ErrorTypeConfig, msg).
		WithDetail("spec", spec).
		WithDetail("offending", offending)
}
