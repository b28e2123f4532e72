// Package synth generates synthetic detector events from a run
// configuration.
//
// The model is coarse: primary gammas are tracked through the
// crystal with exponential attenuation, each deposit produces scintillation
// photons in proportion to the material yield, and photons are shared among
// the SiPMs by direct solid angle plus a diffuse reflected component. It is
// meant to drive the event file machinery with realistic shapes, not to be
// physically accurate.
//
// The crystal occupies x in [-sx/2, sx/2], y in [-sy/2, sy/2] and z in
// [-depth, 0]. The SiPM grid sits on the z = 0 face.
package synth

import (
	"context"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/ajitpratap0/crystal/pkg/config"
	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/ajitpratap0/crystal/pkg/formats/columnar"
	"github.com/ajitpratap0/crystal/pkg/logger"
)

// energySmearing is the relative sigma applied to the primary energy when
// fixed_energy is off.
const energySmearing = 0.05

// RunStats accumulates counts over every simulated primary.
type RunStats struct {
	Simulated  int64    // primaries simulated
	Detected   int64    // primaries with at least one counted photon
	Stored     int64    // primaries that passed the event threshold
	Photons    uint64   // photons counted over every primary
	PerChannel []uint64 // photons counted per channel
}

// StoredFraction returns the percentage of simulated primaries that were
// stored.
func (s RunStats) StoredFraction() float64 {
	if s.Simulated == 0 {
		return 0
	}
	return 100 * float64(s.Stored) / float64(s.Simulated)
}

// Generator simulates primaries and yields the ones that pass the event
// threshold. It implements pipeline.Source and is not safe for concurrent
// use.
type Generator struct {
	rng    *rand.Rand
	logger *zap.Logger

	generator string
	energy    float64 // keV
	fixed     bool
	sourceZ   float64

	halfX, halfY, depth float64
	sipmSize            float64
	channels            []config.ChannelPosition

	mat          material
	yield        float64 // photons per keV
	reflectivity float64
	absorbent    bool

	sipmThreshold  uint32
	eventThreshold int
	interactions   bool

	primaries int
	stats     RunStats
}

// New creates a generator that simulates at most primaries primaries. cfg
// must already be valid.
func New(cfg *config.RunConfig, primaries int, log *zap.Logger) (*Generator, error) {
	if primaries < 0 {
		return nil, crystalerrors.Newf(crystalerrors.ErrorTypeConfig,
			"number of primaries cannot be negative, got %d", primaries).
			WithDetail("primaries", primaries)
	}
	scint, ok := config.CanonicalScint(cfg.Detector.Scint)
	if !ok {
		return nil, crystalerrors.Newf(crystalerrors.ErrorTypeConfig, "unknown scintillator %q", cfg.Detector.Scint).
			WithDetail("offending", cfg.Detector.Scint)
	}
	mat := materials[scint]

	sx, sy, sz := cfg.ScintSize()
	g := &Generator{
		rng:            rand.New(rand.NewSource(cfg.Source.Seed)),
		logger:         logger.OrGlobal(log).With(zap.String(string(logger.ComponentKey), "synth")),
		generator:      cfg.Source.Generator,
		energy:         cfg.Source.ParticleEnergy,
		fixed:          cfg.Source.FixedEnergy,
		sourceZ:        cfg.Source.SourcePos,
		halfX:          sx / 2,
		halfY:          sy / 2,
		depth:          sz,
		sipmSize:       cfg.Detector.SiPMSize,
		channels:       cfg.ChannelPositions(),
		mat:            mat,
		yield:          mat.yield / 1000,
		reflectivity:   mat.reflectivity,
		absorbent:      cfg.Detector.AbsorbentOpposite,
		sipmThreshold:  cfg.Detector.SiPMThreshold,
		eventThreshold: cfg.Detector.EventThreshold,
		interactions:   cfg.Output.Interactions,
		primaries:      primaries,
	}
	if y := cfg.Detector.ScintYield; y != nil {
		g.yield = *y / 1000
	}
	if r := cfg.Detector.Reflectivity; r != nil {
		g.reflectivity = *r
	}
	g.stats.PerChannel = make([]uint64, len(g.channels))

	switch g.generator {
	case config.GeneratorOutsideCrystal, config.GeneratorAfar, config.GeneratorInsideCrystal:
	default:
		return nil, crystalerrors.Newf(crystalerrors.ErrorTypeConfig, "unknown generator %q", g.generator).
			WithDetail("offending", g.generator)
	}
	if g.generator == config.GeneratorOutsideCrystal && g.sourceZ >= -g.depth {
		return nil, crystalerrors.Newf(crystalerrors.ErrorTypeConfig,
			"source_pos %f must lie before the crystal entry face at %f", g.sourceZ, -g.depth).
			WithDetail("field", "source_pos")
	}

	g.logger.Debug("generator ready",
		zap.String("generator", g.generator),
		zap.String("scint", scint),
		zap.Int("channels", len(g.channels)),
		zap.Int("primaries", primaries),
		zap.Int64("seed", cfg.Source.Seed))
	return g, nil
}

// Stats returns the statistics accumulated so far.
func (g *Generator) Stats() RunStats {
	s := g.stats
	s.PerChannel = append([]uint64(nil), g.stats.PerChannel...)
	return s
}

// Next simulates primaries until one passes the event threshold and returns
// it. It returns ok=false once every primary has been simulated.
func (g *Generator) Next(ctx context.Context) (columnar.EventRecord, bool, error) {
	for g.stats.Simulated < int64(g.primaries) {
		if err := ctx.Err(); err != nil {
			return columnar.EventRecord{}, false, err
		}
		e, hits := g.simulate()
		if hits >= g.eventThreshold {
			g.stats.Stored++
			return e, true, nil
		}
	}
	return columnar.EventRecord{}, false, nil
}

// simulate runs one primary and returns its event and the number of SiPMs
// above threshold.
func (g *Generator) simulate() (columnar.EventRecord, int) {
	g.stats.Simulated++

	energy := g.energy
	if !g.fixed {
		energy = math.Max(0, energy*(1+energySmearing*g.rng.NormFloat64()))
	}

	start, dir, atVertex := g.primary()
	var deposits []columnar.Interaction
	if g.inside(start) {
		deposits = g.track(start, dir, energy, atVertex)
	}

	pos := start
	if len(deposits) > 0 {
		pos = vec{float64(deposits[0].X), float64(deposits[0].Y), float64(deposits[0].Z)}
	}
	e := columnar.EventRecord{
		Position: columnar.Position{X: float32(pos.x), Y: float32(pos.y), Z: float32(pos.z)},
		Counts:   columnar.ChannelCounts{},
	}
	if g.interactions {
		e.Interactions = deposits
		if e.Interactions == nil {
			e.Interactions = []columnar.Interaction{}
		}
	}

	expected := make([]float64, len(g.channels))
	for _, d := range deposits {
		g.light(d, expected)
	}

	var total uint64
	hits := 0
	for ch, mean := range expected {
		n := g.sample(mean)
		if n == 0 {
			continue
		}
		e.Counts[ch] = n
		total += uint64(n)
		g.stats.PerChannel[ch] += uint64(n)
		if n > g.sipmThreshold {
			hits++
		}
	}
	g.stats.Photons += total
	if total > 0 {
		g.stats.Detected++
	}
	return e, hits
}

// primary returns the point where the gamma enters the crystal, its
// direction, and whether it interacts at that point.
func (g *Generator) primary() (vec, vec, bool) {
	switch g.generator {
	case config.GeneratorAfar:
		return vec{g.uniform(g.halfX), g.uniform(g.halfY), -g.depth}, vec{0, 0, 1}, false

	case config.GeneratorInsideCrystal:
		p := vec{g.uniform(g.halfX), g.uniform(g.halfY), -g.depth * g.rng.Float64()}
		return p, g.isotropic(), true

	default:
		// Cone from (0, 0, sourceZ) whose opening matches the larger
		// half-width of the entry face.
		dist := -g.depth - g.sourceZ
		maxTheta := math.Atan(math.Max(g.halfX, g.halfY) / dist)
		cosTheta := 1 - g.rng.Float64()*(1-math.Cos(maxTheta))
		sinTheta := math.Sqrt(1 - cosTheta*cosTheta)
		phi := 2 * math.Pi * g.rng.Float64()
		dir := vec{sinTheta * math.Cos(phi), sinTheta * math.Sin(phi), cosTheta}
		t := dist / dir.z
		return vec{dir.x * t, dir.y * t, -g.depth}, dir, false
	}
}

// track follows the gamma through the crystal and returns its deposits in
// order.
func (g *Generator) track(p, dir vec, energy float64, atVertex bool) []columnar.Interaction {
	var deposits []columnar.Interaction
	for step := 0; step < maxSteps && energy > 0; step++ {
		if step > 0 || !atVertex {
			p = p.add(dir.scale(g.rng.ExpFloat64() * g.mat.attenuation))
			if !g.inside(p) {
				break
			}
		}

		typ, edep := TypeCompton, energy*0.5*g.rng.Float64()
		if energy < 50 || g.rng.Float64() < g.mat.photoFrac {
			typ, edep = TypePhotoelectric, energy
		}
		energy -= edep
		deposits = append(deposits, columnar.Interaction{
			X: float32(p.x), Y: float32(p.y), Z: float32(p.z),
			Edep: float32(edep),
			Type: typ,
		})
		dir = g.isotropic()
	}
	return deposits
}

// light adds the mean number of counted photons per channel for one
// deposit.
func (g *Generator) light(d columnar.Interaction, expected []float64) {
	photons := float64(d.Edep) * g.yield * photonDetectionEfficiency
	if photons <= 0 || len(expected) == 0 {
		return
	}

	h := math.Max(-float64(d.Z), 1e-3)
	area := g.sipmSize * g.sipmSize
	direct := make([]float64, len(expected))
	var directSum float64
	for i, c := range g.channels {
		dx, dy := float64(d.X)-c.X, float64(d.Y)-c.Y
		r2 := dx*dx + dy*dy + h*h
		direct[i] = math.Min(0.5, area*h/(4*math.Pi*r2*math.Sqrt(r2)))
		directSum += direct[i]
	}

	diffuse := math.Max(0, 1-directSum) * g.reflectivity / (1 + g.reflectivity)
	if g.absorbent {
		diffuse /= 2
	}
	perChannel := diffuse / float64(len(expected))
	for i := range expected {
		expected[i] += photons * (direct[i] + perChannel)
	}
}

// sample draws a count with the given mean using a normal approximation.
func (g *Generator) sample(mean float64) uint32 {
	if mean <= 0 {
		return 0
	}
	n := math.Round(mean + math.Sqrt(mean)*g.rng.NormFloat64())
	if n <= 0 {
		return 0
	}
	return uint32(n)
}

func (g *Generator) inside(p vec) bool {
	return math.Abs(p.x) <= g.halfX && math.Abs(p.y) <= g.halfY && p.z >= -g.depth && p.z <= 0
}

// uniform returns a value in [-half, half).
func (g *Generator) uniform(half float64) float64 {
	return (2*g.rng.Float64() - 1) * half
}

func (g *Generator) isotropic() vec {
	z := 2*g.rng.Float64() - 1
	s := math.Sqrt(1 - z*z)
	phi := 2 * math.Pi * g.rng.Float64()
	return vec{s * math.Cos(phi), s * math.Sin(phi), z}
}

type vec struct{ x, y, z float64 }

func (v vec) add(o vec) vec       { return vec{v.x + o.x, v.y + o.y, v.z + o.z} }
func (v vec) scale(f float64) vec     { return vec{v.x * f, v.y * f, v.z * f} }
