package synth

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/crystal/internal/pipeline"
	"github.com/ajitpratap0/crystal/pkg/config"
	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/ajitpratap0/crystal/pkg/formats/columnar"
	"github.com/ajitpratap0/crystal/pkg/testutil"
)

func drain(t *testing.T, g *Generator) []columnar.EventRecord {
	t.Helper()
	var out []columnar.EventRecord
	for {
		e, ok, err := g.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func newGenerator(t *testing.T, cfg *config.RunConfig, n int) *Generator {
	t.Helper()
	require.NoError(t, cfg.Validate())
	g, err := New(cfg, n, zaptest.NewLogger(t))
	require.NoError(t, err)
	return g
}

func TestDeterministicForSeed(t *testing.T) {
	a := drain(t, newGenerator(t, config.NewRunConfig(), 50))
	b := drain(t, newGenerator(t, config.NewRunConfig(), 50))
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)

	other := config.NewRunConfig()
	other.Source.Seed = 7
	c := drain(t, newGenerator(t, other, 50))
	assert.NotEqual(t, a, c)
}

func TestCountsAreSparseAndInRange(t *testing.T) {
	cfg := config.NewRunConfig()
	cfg.Detector.NSiPMsX, cfg.Detector.NSiPMsY = 3, 4
	n := cfg.NChannels()

	for _, e := range drain(t, newGenerator(t, cfg, 200)) {
		for ch, v := range e.Counts {
			assert.GreaterOrEqual(t, ch, 0)
			assert.Less(t, ch, n)
			assert.NotZero(t, v, "zero counts are omitted")
		}
		assert.Nil(t, e.Interactions)
	}
}

func TestInteractions(t *testing.T) {
	cfg := config.NewRunConfig()
	cfg.Output.Interactions = true
	sx, sy, sz := cfg.ScintSize()

	events := drain(t, newGenerator(t, cfg, 200))
	require.NotEmpty(t, events)
	for _, e := range events {
		require.NotNil(t, e.Interactions)
		var edep float64
		for _, in := range e.Interactions {
			assert.LessOrEqual(t, math.Abs(float64(in.X)), sx/2+1e-3)
			assert.LessOrEqual(t, math.Abs(float64(in.Y)), sy/2+1e-3)
			assert.GreaterOrEqual(t, float64(in.Z), -sz-1e-3)
			assert.LessOrEqual(t, float64(in.Z), 0.0)
			assert.Contains(t, []uint16{TypePhotoelectric, TypeCompton}, in.Type)
			edep += float64(in.Edep)
		}
		assert.LessOrEqual(t, edep, cfg.Source.ParticleEnergy+1e-3)
		if len(e.Interactions) > 0 {
			first := e.Interactions[0]
			assert.Equal(t, columnar.Position{X: first.X, Y: first.Y, Z: first.Z}, e.Position)
		}
	}
}

func TestGenerators(t *testing.T) {
	for _, name := range []string{config.GeneratorOutsideCrystal, config.GeneratorAfar, config.GeneratorInsideCrystal} {
		t.Run(name, func(t *testing.T) {
			cfg := config.NewRunConfig()
			cfg.Source.Generator = name
			sx, sy, sz := cfg.ScintSize()

			g := newGenerator(t, cfg, 100)
			for _, e := range drain(t, g) {
				assert.LessOrEqual(t, math.Abs(float64(e.Position.X)), sx/2+1e-3)
				assert.LessOrEqual(t, math.Abs(float64(e.Position.Y)), sy/2+1e-3)
				assert.GreaterOrEqual(t, float64(e.Position.Z), -sz-1e-3)
				assert.LessOrEqual(t, float64(e.Position.Z), 0.0)
			}
			stats := g.Stats()
			assert.Equal(t, int64(100), stats.Simulated)
			assert.Positive(t, stats.Detected)
		})
	}
}

func TestStatsAndThresholds(t *testing.T) {
	cfg := config.NewRunConfig()
	cfg.Detector.EventThreshold = 0
	g := newGenerator(t, cfg, 30)
	events := drain(t, g)

	stats := g.Stats()
	assert.Len(t, events, 30)
	assert.Equal(t, int64(30), stats.Stored)
	assert.Equal(t, 100.0, stats.StoredFraction())

	var photons uint64
	perChannel := make([]uint64, cfg.NChannels())
	for _, e := range events {
		for ch, v := range e.Counts {
			photons += uint64(v)
			perChannel[ch] += uint64(v)
		}
	}
	assert.Equal(t, photons, stats.Photons)
	assert.Equal(t, perChannel, stats.PerChannel)
}

func TestUnreachableEventThreshold(t *testing.T) {
	cfg := config.NewRunConfig()
	cfg.Detector.EventThreshold = cfg.NChannels() + 1
	g := newGenerator(t, cfg, 20)

	assert.Empty(t, drain(t, g))
	stats := g.Stats()
	assert.Equal(t, int64(20), stats.Simulated)
	assert.Zero(t, stats.Stored)
	assert.Zero(t, stats.StoredFraction())
}

func TestStatsCopy(t *testing.T) {
	g := newGenerator(t, config.NewRunConfig(), 5)
	drain(t, g)
	s := g.Stats()
	s.PerChannel[0] = math.MaxUint64
	assert.NotEqual(t, uint64(math.MaxUint64), g.Stats().PerChannel[0])
}

func TestNewErrors(t *testing.T) {
	_, err := New(config.NewRunConfig(), -1, zaptest.NewLogger(t))
	assert.True(t, crystalerrors.IsType(err, crystalerrors.ErrorTypeConfig))

	cfg := config.NewRunConfig()
	cfg.Source.Generator = "muons"
	_, err = New(cfg, 1, zaptest.NewLogger(t))
	assert.True(t, crystalerrors.IsType(err, crystalerrors.ErrorTypeConfig))

	cfg = config.NewRunConfig()
	cfg.Source.SourcePos = -10
	_, err = New(cfg, 1, zaptest.NewLogger(t))
	assert.True(t, crystalerrors.IsType(err, crystalerrors.ErrorTypeConfig))

	cfg = config.NewRunConfig()
	cfg.Detector.Scint = "NaI"
	_, err = New(cfg, 1, zaptest.NewLogger(t))
	assert.True(t, crystalerrors.IsType(err, crystalerrors.ErrorTypeConfig))
}

func TestCancelledContext(t *testing.T) {
	g := newGenerator(t, config.NewRunConfig(), 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := g.Next(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestYieldOverride(t *testing.T) {
	dim := config.NewRunConfig()
	low := 100.0
	dim.Detector.ScintYield = &low
	dim.Detector.EventThreshold = 0

	bright := config.NewRunConfig()
	bright.Detector.EventThreshold = 0

	gd, gb := newGenerator(t, dim, 50), newGenerator(t, bright, 50)
	drain(t, gd)
	drain(t, gb)
	assert.Less(t, gd.Stats().Photons, gb.Stats().Photons)
}

func TestSimulatedRunRoundTrip(t *testing.T) {
	cfg := config.NewRunConfig()
	cfg.Output.Interactions = true
	cfg.Output.ChunkSize = 7
	n := cfg.NChannels()

	expected := drain(t, newGenerator(t, cfg, 40))

	ctx := testutil.TestContext(t)
	path := testutil.EventFile(t, "run")
	wcfg := columnar.DefaultWriterConfig(path, n)
	wcfg.Interactions = true
	wcfg.ChunkSize = cfg.Output.ChunkSize
	wcfg.Logger = testutil.TestLogger(t)
	w, err := columnar.NewWriter(wcfg)
	require.NoError(t, err)

	src := newGenerator(t, cfg, 40)
	stats, err := pipeline.New(src, w, pipeline.Config{Events: 40}, testutil.TestLogger(t), nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(expected)), stats.Appended)

	got, err := columnar.ReadAll(ctx, path, columnar.ReaderConfig{Channels: n, Interactions: true})
	require.NoError(t, err)
	require.Len(t, got, len(expected))
	for i := range expected {
		want, err := columnar.Densify(expected[i], n, true)
		require.NoError(t, err)
		assert.Equal(t, want, got[i], "event %d", i)
	}
}
