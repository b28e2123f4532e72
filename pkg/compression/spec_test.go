package compression

import (
	"testing"

	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpec(t *testing.T) {
	tests := []struct {
		spec     string
		expected Spec
	}{
		{"zstd-5", Spec{Algorithm: Zstd, Level: 5, HasLevel: true}},
		{"zstd", Spec{Algorithm: Zstd, Level: 9, HasLevel: true}},
		{"ZSTD-22", Spec{Algorithm: Zstd, Level: 22, HasLevel: true}},
		{"snappy", Spec{Algorithm: Snappy}},
		{"Snappy", Spec{Algorithm: Snappy}},
		{"none", Spec{Algorithm: None}},
		{"gzip", Spec{Algorithm: Gzip, Level: 6, HasLevel: true}},
		{"gzip-1", Spec{Algorithm: Gzip, Level: 1, HasLevel: true}},
		{"brotli", Spec{Algorithm: Brotli, Level: 11, HasLevel: true}},
		{"brotli-0", Spec{Algorithm: Brotli, Level: 0, HasLevel: true}},
		{"lz4", Spec{Algorithm: LZ4, Level: 9, HasLevel: true}},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseSpec(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseSpec_Errors(t *testing.T) {
	tests := []struct {
		spec      string
		offending string
		message   string
	}{
		{"bogus", "bogus", "unrecognized compression algorithm"},
		{"Bogus-3", "Bogus", "unrecognized compression algorithm"},
		{"gzip-x", "x", "could not parse compression level"},
		{"zstd-", "", "could not parse compression level"},
		{"zstd-1-2", "zstd-1-2", "too many '-'"},
		{"", "", "empty compression spec"},
		{"gzip-10", "10", "out of range"},
		{"zstd-0", "0", "out of range"},
		{"snappy-3", "3", "does not take a level"},
		{"lzo", "lzo", "not available"},
		{"BZ2-9", "BZ2", "not available"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			_, err := ParseSpec(tt.spec)
			require.Error(t, err)
			assert.True(t, crystalerrors.IsType(err, crystalerrors.ErrorTypeConfig))
			assert.Contains(t, err.Error(), tt.message)

			var e *crystalerrors.Error
			require.ErrorAs(t, err, &e)
			offending, ok := e.Detail("offending")
			require.True(t, ok)
			assert.Equal(t, tt.offending, offending)
		})
	}
}

func TestSpec_String(t *testing.T) {
	for _, s := range []string{"zstd-5", "snappy", "none", "gzip-6", "lz4-12"} {
		spec, err := ParseSpec(s)
		require.NoError(t, err)
		assert.Equal(t, s, spec.String())
	}

	spec, err := ParseSpec("GZIP")
	require.NoError(t, err)
	assert.Equal(t, "gzip-6", spec.String())
}

func TestSpec_Codec(t *testing.T) {
	tests := map[string]compress.Compression{
		"none":   compress.Codecs.Uncompressed,
		"snappy": compress.Codecs.Snappy,
		"gzip":   compress.Codecs.Gzip,
		"brotli": compress.Codecs.Brotli,
		"zstd":   compress.Codecs.Zstd,
		"lz4":    compress.Codecs.Lz4Raw,
	}

	for s, codec := range tests {
		spec, err := ParseSpec(s)
		require.NoError(t, err)
		assert.Equal(t, codec, spec.Codec(), s)
	}
}

func TestSpec_WriterProperties(t *testing.T) {
	spec, err := ParseSpec("zstd-5")
	require.NoError(t, err)
	assert.Len(t, spec.WriterProperties(), 2)

	spec, err = ParseSpec("snappy")
	require.NoError(t, err)
	assert.Len(t, spec.WriterProperties(), 1)
}

func TestAlgorithms_AllParse(t *testing.T) {
	for _, alg := range Algorithms() {
		spec, err := ParseSpec(string(alg))
		require.NoError(t, err, alg)
		assert.Equal(t, alg, spec.Algorithm)
	}
}
