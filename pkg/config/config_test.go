package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := NewRunConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 4, cfg.NChannels())
	assert.Nil(t, cfg.Detector.ScintYield)
	assert.Nil(t, cfg.Detector.Reflectivity)
}

func TestAsMap(t *testing.T) {
	cfg := NewRunConfig()
	m := cfg.AsMap()

	expected := map[string]string{
		"debug":               "0",
		"physics_verbosity":   "0",
		"particle_energy":     "511.000000 keV",
		"fixed_energy":        "1",
		"chunk_size":          "1024",
		"sipm_thickness":      "0.550000 mm",
		"sipm_size":           "6.000000 mm",
		"sipm_threshold":      "1",
		"event_threshold":     "1",
		"reflector_thickness": "0.250000 mm",
		"n_sipms_x":           "2",
		"n_sipms_y":           "2",
		"scint":               "CsI",
		"seed":                "123456789",
		"scint_depth":         "37.200000 mm",
		"scint_yield":         "NULL",
		"reflectivity":        "NULL",
		"absorbent_opposite":  "false",
		"generator":           "gammas_from_outside_crystal",
		"outfile":             "crystal-out.parquet",
		"compression":         "snappy",
		"interactions":        "false",
		"x_0":                 "-3.000000",
		"x_1":                 "-3.000000",
		"x_2":                 "3.000000",
		"x_3":                 "3.000000",
		"y_0":                 "-3.000000",
		"y_1":                 "3.000000",
		"y_2":                 "-3.000000",
		"y_3":                 "3.000000",
	}
	assert.Equal(t, expected, m)
}

func TestAsMapOptionalValues(t *testing.T) {
	cfg := NewRunConfig()
	yield, refl := 123.0, 0.0
	cfg.Detector.ScintYield = &yield
	cfg.Detector.Reflectivity = &refl

	m := cfg.AsMap()
	assert.Equal(t, "123.000000", m["scint_yield"])
	assert.Equal(t, "0.000000", m["reflectivity"])
}

func TestChannelPositions(t *testing.T) {
	cfg := NewRunConfig()
	cfg.Detector.NSiPMsX, cfg.Detector.NSiPMsY = 3, 1
	cfg.Detector.SiPMSize = 2

	assert.Equal(t, []ChannelPosition{{-2, 0}, {0, 0}, {2, 0}}, cfg.ChannelPositions())

	cfg.Detector.NSiPMsX = 0
	assert.Empty(t, cfg.ChannelPositions())
	assert.Equal(t, 0, cfg.NChannels())
}

func TestScintSize(t *testing.T) {
	x, y, z := NewRunConfig().ScintSize()
	assert.Equal(t, 12.0, x)
	assert.Equal(t, 12.0, y)
	assert.Equal(t, 37.2, z)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*RunConfig)
		offending string
	}{
		{"bad compression", func(c *RunConfig) { c.Output.Compression = "gzip-x" }, "x"},
		{"empty compression", func(c *RunConfig) { c.Output.Compression = "" }, ""},
		{"no outfile", func(c *RunConfig) { c.Output.Outfile = "" }, ""},
		{"zero chunk", func(c *RunConfig) { c.Output.ChunkSize = 0 }, ""},
		{"negative grid", func(c *RunConfig) { c.Detector.NSiPMsY = -1 }, ""},
		{"zero sipm size", func(c *RunConfig) { c.Detector.SiPMSize = 0 }, ""},
		{"unknown scint", func(c *RunConfig) { c.Detector.Scint = "NaI" }, "NaI"},
		{"unknown generator", func(c *RunConfig) { c.Source.Generator = "muons" }, "muons"},
		{"reflectivity range", func(c *RunConfig) { r := 1.5; c.Detector.Reflectivity = &r }, ""},
		{"sample rate", func(c *RunConfig) { c.Observability.TraceSampleRate = 2 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewRunConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, crystalerrors.IsType(err, crystalerrors.ErrorTypeConfig))

			if tt.offending != "" {
				var e *crystalerrors.Error
				require.ErrorAs(t, err, &e)
				got, ok := e.Detail("offending")
				require.True(t, ok)
				assert.Equal(t, tt.offending, got)
			}
		})
	}
}

func TestZeroChannelsIsValid(t *testing.T) {
	cfg := NewRunConfig()
	cfg.Detector.NSiPMsX = 0
	assert.NoError(t, cfg.Validate())
}

func TestSet(t *testing.T) {
	cfg := NewRunConfig()

	require.NoError(t, cfg.Set("scint_depth", "13 mm"))
	assert.Equal(t, 13.0, cfg.Detector.ScintDepth)

	require.NoError(t, cfg.Set("sipm_size", "1.2cm"))
	assert.InDelta(t, 12.0, cfg.Detector.SiPMSize, 1e-9)

	require.NoError(t, cfg.Set("particle_energy", "1.2 MeV"))
	assert.InDelta(t, 1200.0, cfg.Source.ParticleEnergy, 1e-9)

	require.NoError(t, cfg.Set("scint_yield", "123"))
	require.NotNil(t, cfg.Detector.ScintYield)
	assert.Equal(t, 123.0, *cfg.Detector.ScintYield)
	require.NoError(t, cfg.Set("scint_yield", "NULL"))
	assert.Nil(t, cfg.Detector.ScintYield)

	require.NoError(t, cfg.Set("scint", "bgo"))
	assert.Equal(t, ScintBGO, cfg.Detector.Scint)

	require.NoError(t, cfg.Set("n_sipms_xy", "5"))
	assert.Equal(t, 25, cfg.NChannels())

	require.NoError(t, cfg.Set("seed", "9876"))
	assert.Equal(t, int64(9876), cfg.Source.Seed)

	require.NoError(t, cfg.Set("interactions", "true"))
	assert.True(t, cfg.Output.Interactions)
}

func TestSetErrors(t *testing.T) {
	cfg := NewRunConfig()

	tests := []struct{ key, value, offending string }{
		{"bogus_key", "1", "bogus_key"},
		{"scint_depth", "13 furlongs", "13 furlongs"},
		{"n_sipms_x", "two", "two"},
		{"scint", "NaI", "NaI"},
		{"sipm_threshold", "-1", "-1"},
	}
	for _, tt := range tests {
		err := cfg.Set(tt.key, tt.value)
		require.Error(t, err, tt.key)
		assert.True(t, crystalerrors.IsType(err, crystalerrors.ErrorTypeConfig))

		var e *crystalerrors.Error
		require.ErrorAs(t, err, &e)
		got, _ := e.Detail("offending")
		assert.Equal(t, tt.offending, got)
	}
}

func TestApply(t *testing.T) {
	cfg := NewRunConfig()
	require.NoError(t, cfg.Apply([]string{"n_sipms_y=19", "outfile /tmp/x.parquet", " seed = 42 "}))
	assert.Equal(t, 19, cfg.Detector.NSiPMsY)
	assert.Equal(t, "/tmp/x.parquet", cfg.Output.Outfile)
	assert.Equal(t, int64(42), cfg.Source.Seed)

	assert.Error(t, cfg.Apply([]string{"noValue"}))
}

func TestCLIArgs(t *testing.T) {
	m := CLIArgs{
		Events: "2",
		Early:  []string{"outfile=/tmp/out.parquet", "scint_depth=13 mm"},
	}.AsMap()

	assert.Equal(t, "2", m["-n"])
	assert.Contains(t, m["-e"], "outfile=/tmp/out.parquet")
	assert.Contains(t, m["-e"], "scint_depth=13 mm")
	assert.Equal(t, NotSet, m["-l"])
	assert.Equal(t, NotSet, m["-m"])
	assert.Equal(t, NotSet, m["-g"])
	assert.Len(t, m, 5)
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CRYSTAL_TEST_OUTDIR", "/data")

	path := filepath.Join(dir, "run.yaml")
	content := `
run_id: test-run
detector:
  n_sipms_x: 4
  scint_yield: 8000
output:
  outfile: ${CRYSTAL_TEST_OUTDIR}/run.parquet
  compression: zstd-5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "test-run", cfg.RunID)
	assert.Equal(t, 4, cfg.Detector.NSiPMsX)
	assert.Equal(t, 2, cfg.Detector.NSiPMsY, "default kept")
	require.NotNil(t, cfg.Detector.ScintYield)
	assert.Equal(t, 8000.0, *cfg.Detector.ScintYield)
	assert.Equal(t, "/data/run.parquet", cfg.Output.Outfile)
	assert.Equal(t, "zstd-5", cfg.Output.Compression)

	out := filepath.Join(dir, "saved.yaml")
	require.NoError(t, Save(out, cfg))
	again, err := LoadRunConfig(out)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadRunConfig(filepath.Join(dir, "missing.yaml"))
	assert.True(t, crystalerrors.IsType(err, crystalerrors.ErrorTypeNotFound))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("output: [unclosed"), 0o644))
	_, err = LoadRunConfig(bad)
	assert.True(t, crystalerrors.IsType(err, crystalerrors.ErrorTypeConfig))

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("output:\n  compression: bogus\n"), 0o644))
	_, err = LoadRunConfig(invalid)
	assert.True(t, crystalerrors.IsType(err, crystalerrors.ErrorTypeConfig))
}
