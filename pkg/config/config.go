// Package config defines the run configuration of a simulation: the source,
// the detector geometry and the output file.
//
// The configuration is organized into logical sections:
//   - Source: primary particle, generator and random seed
//   - Detector: scintillator and SiPM grid
//   - Output: file path, compression, chunking and optional columns
//   - Logging: log level and encoding
//   - Observability: tracing
//
// Example usage:
//
//	cfg := config.NewRunConfig()
//	cfg.Detector.NSiPMsX = 4
//	cfg.Output.Compression = "zstd-5"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ajitpratap0/crystal/pkg/compression"
	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
	"github.com/ajitpratap0/crystal/pkg/logger"
)

// Scintillator names
const (
	ScintLYSO = "LYSO"
	ScintBGO  = "BGO"
	ScintCsI  = "CsI"
)

// Generator names
const (
	GeneratorOutsideCrystal = "gammas_from_outside_crystal"
	GeneratorAfar           = "gammas_from_afar"
	GeneratorInsideCrystal  = "gammas_inside_crystal"
)

// Null is stored in metadata for optional values that are not set.
const Null = "NULL"

// RunConfig is the complete configuration of one simulation run. Lengths
// are in millimetres and energies in keV.
type RunConfig struct {
	// RunID labels logs and metrics of this run
	RunID string `yaml:"run_id" json:"run_id"`
	// Debug enables debug output of the simulation
	Debug bool `yaml:"debug" json:"debug"`
	// PhysicsVerbosity is passed through to the physics engine
	PhysicsVerbosity int `yaml:"physics_verbosity" json:"physics_verbosity"`

	Source        SourceConfig        `yaml:"source" json:"source"`
	Detector      DetectorConfig      `yaml:"detector" json:"detector"`
	Output        OutputConfig        `yaml:"output" json:"output"`
	Logging       logger.Config       `yaml:"logging" json:"logging"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// SourceConfig describes the primary particles.
type SourceConfig struct {
	// ParticleEnergy of each primary gamma in keV
	ParticleEnergy float64 `yaml:"particle_energy" json:"particle_energy"`
	// FixedEnergy disables energy smearing of the primary
	FixedEnergy bool `yaml:"fixed_energy" json:"fixed_energy"`
	// Generator selects the primary vertex distribution
	Generator string `yaml:"generator" json:"generator"`
	// SourcePos is the z coordinate of the source in mm
	SourcePos float64 `yaml:"source_pos" json:"source_pos"`
	// Seed of the random number generator
	Seed int64 `yaml:"seed" json:"seed"`
}

// DetectorConfig describes the crystal and its SiPM read-out grid.
type DetectorConfig struct {
	Scint              string   `yaml:"scint" json:"scint"`
	ScintDepth         float64  `yaml:"scint_depth" json:"scint_depth"`
	ScintYield         *float64 `yaml:"scint_yield,omitempty" json:"scint_yield,omitempty"`   // photons/MeV, material default if nil
	Reflectivity       *float64 `yaml:"reflectivity,omitempty" json:"reflectivity,omitempty"` // material default if nil
	ReflectorThickness float64  `yaml:"reflector_thickness" json:"reflector_thickness"`
	AbsorbentOpposite  bool     `yaml:"absorbent_opposite" json:"absorbent_opposite"`
	SiPMSize           float64  `yaml:"sipm_size" json:"sipm_size"`
	SiPMThickness      float64  `yaml:"sipm_thickness" json:"sipm_thickness"`
	NSiPMsX            int      `yaml:"n_sipms_x" json:"n_sipms_x"`
	NSiPMsY            int      `yaml:"n_sipms_y" json:"n_sipms_y"`
	// SiPMThreshold is the minimum count for a SiPM to be considered hit
	SiPMThreshold uint32 `yaml:"sipm_threshold" json:"sipm_threshold"`
	// EventThreshold is the minimum number of hit SiPMs for an event to be stored
	EventThreshold int `yaml:"event_threshold" json:"event_threshold"`
}

// OutputConfig describes the event file.
type OutputConfig struct {
	Outfile      string `yaml:"outfile" json:"outfile"`
	Compression  string `yaml:"compression" json:"compression"`
	ChunkSize    int    `yaml:"chunk_size" json:"chunk_size"`
	Interactions bool   `yaml:"interactions" json:"interactions"`
}

// ObservabilityConfig enables tracing.
type ObservabilityConfig struct {
	Trace bool `yaml:"trace" json:"trace"`
	// TraceSampleRate is the fraction of traces recorded
	TraceSampleRate float64 `yaml:"trace_sample_rate" json:"trace_sample_rate"`
}

// NewRunConfig returns the default configuration: a 2x2 grid of 6 mm SiPMs
// on a 37.2 mm CsI crystal, irradiated with 511 keV gammas.
func NewRunConfig() *RunConfig {
	return &RunConfig{
		RunID:            "crystal",
		Debug:            false,
		PhysicsVerbosity: 0,
		Source: SourceConfig{
			ParticleEnergy: 511,
			FixedEnergy:    true,
			Generator:      GeneratorOutsideCrystal,
			SourcePos:      -50,
			Seed:           123456789,
		},
		Detector: DetectorConfig{
			Scint:              ScintCsI,
			ScintDepth:         37.2,
			ReflectorThickness: 0.25,
			AbsorbentOpposite:  false,
			SiPMSize:           6,
			SiPMThickness:      0.55,
			NSiPMsX:            2,
			NSiPMsY:            2,
			SiPMThreshold:      1,
			EventThreshold:     1,
		},
		Output: OutputConfig{
			Outfile:     "crystal-out.parquet",
			Compression: compression.DefaultSpec.String(),
			ChunkSize:   1024,
		},
		Logging: logger.DefaultConfig(),
		Observability: ObservabilityConfig{
			TraceSampleRate: 1.0,
		},
	}
}

// Validate checks every field and returns the first problem as an
// crystalerrors.ErrorTypeConfig error.
func (c *RunConfig) Validate() error {
	if _, err := compression.ParseSpec(c.Output.Compression); err != nil {
		return err
	}
	if c.Output.Outfile == "" {
		return invalid("outfile", "is required")
	}
	if c.Output.ChunkSize < 1 {
		return invalid("chunk_size", "must be positive")
	}
	if c.Detector.NSiPMsX < 0 {
		return invalid("n_sipms_x", "cannot be negative")
	}
	if c.Detector.NSiPMsY < 0 {
		return invalid("n_sipms_y", "cannot be negative")
	}
	if c.Detector.SiPMSize <= 0 {
		return invalid("sipm_size", "must be positive")
	}
	if c.Detector.SiPMThickness <= 0 {
		return invalid("sipm_thickness", "must be positive")
	}
	if c.Detector.ScintDepth <= 0 {
		return invalid("scint_depth", "must be positive")
	}
	if c.Detector.ReflectorThickness < 0 {
		return invalid("reflector_thickness", "cannot be negative")
	}
	if c.Detector.EventThreshold < 0 {
		return invalid("event_threshold", "cannot be negative")
	}
	if r := c.Detector.Reflectivity; r != nil && (*r < 0 || *r > 1) {
		return invalid("reflectivity", "must be within [0, 1]")
	}
	if y := c.Detector.ScintYield; y != nil && *y < 0 {
		return invalid("scint_yield", "cannot be negative")
	}
	if _, ok := CanonicalScint(c.Detector.Scint); !ok {
		return invalid("scint", "must be one of LYSO, BGO, CsI").WithDetail("offending", c.Detector.Scint)
	}
	if c.Source.ParticleEnergy <= 0 {
		return invalid("particle_energy", "must be positive")
	}
	if !knownGenerator(c.Source.Generator) {
		return invalid("generator", "is not a known generator").WithDetail("offending", c.Source.Generator)
	}
	if c.Observability.TraceSampleRate < 0 || c.Observability.TraceSampleRate > 1 {
		return invalid("trace_sample_rate", "must be within [0, 1]")
	}
	return nil
}

func invalid(field, problem string) *crystalerrors.Error {
	return crystalerrors.Newf(crystalerrors.ErrorTypeConfig, "%s %s", field, problem).
		WithDetail("field", field)
}

// CanonicalScint returns the canonical spelling of a scintillator name,
// matched case-insensitively.
func CanonicalScint(name string) (string, bool) {
	for _, s := range []string{ScintLYSO, ScintBGO, ScintCsI} {
		if strings.EqualFold(name, s) {
			return s, true
		}
	}
	return "", false
}

func knownGenerator(name string) bool {
	switch name {
	case GeneratorOutsideCrystal, GeneratorAfar, GeneratorInsideCrystal:
		return true
	}
	return false
}

// NChannels returns the number of SiPMs.
func (c *RunConfig) NChannels() int {
	return c.Detector.NSiPMsX * c.Detector.NSiPMsY
}

// ChannelPosition is the centre of one SiPM in the crystal face plane.
type ChannelPosition struct {
	X, Y float64
}

// ChannelPositions returns the centre of every SiPM, indexed by channel.
// Channel i sits at column i / n_sipms_y and row i % n_sipms_y of a grid
// centred on the origin.
func (c *RunConfig) ChannelPositions() []ChannelPosition {
	nx, ny := c.Detector.NSiPMsX, c.Detector.NSiPMsY
	size := c.Detector.SiPMSize
	out := make([]ChannelPosition, 0, nx*ny)
	for ix := 0; ix < nx; ix++ {
		for iy := 0; iy < ny; iy++ {
			out = append(out, ChannelPosition{
				X: (float64(ix) - float64(nx-1)/2) * size,
				Y: (float64(iy) - float64(ny-1)/2) * size,
			})
		}
	}
	return out
}

// ScintSize returns the crystal dimensions in mm.
func (c *RunConfig) ScintSize() (x, y, z float64) {
	return float64(c.Detector.NSiPMsX) * c.Detector.SiPMSize,
		float64(c.Detector.NSiPMsY) * c.Detector.SiPMSize,
		c.Detector.ScintDepth
}

// AsMap renders every tunable as a string for the event file metadata,
// plus x_<i> and y_<i> for every channel position.
func (c *RunConfig) AsMap() map[string]string {
	positions := c.ChannelPositions()
	m := make(map[string]string, 22+2*len(positions))

	m["debug"] = formatBool01(c.Debug)
	m["physics_verbosity"] = strconv.Itoa(c.PhysicsVerbosity)

	m["particle_energy"] = formatEnergy(c.Source.ParticleEnergy)
	m["fixed_energy"] = formatBool01(c.Source.FixedEnergy)
	m["generator"] = c.Source.Generator
	m["seed"] = strconv.FormatInt(c.Source.Seed, 10)

	d := c.Detector
	m["scint"] = d.Scint
	m["scint_depth"] = formatLength(d.ScintDepth)
	m["scint_yield"] = formatOptional(d.ScintYield)
	m["reflectivity"] = formatOptional(d.Reflectivity)
	m["reflector_thickness"] = formatLength(d.ReflectorThickness)
	m["absorbent_opposite"] = strconv.FormatBool(d.AbsorbentOpposite)
	m["sipm_size"] = formatLength(d.SiPMSize)
	m["sipm_thickness"] = formatLength(d.SiPMThickness)
	m["n_sipms_x"] = strconv.Itoa(d.NSiPMsX)
	m["n_sipms_y"] = strconv.Itoa(d.NSiPMsY)
	m["sipm_threshold"] = strconv.FormatUint(uint64(d.SiPMThreshold), 10)
	m["event_threshold"] = strconv.Itoa(d.EventThreshold)

	m["outfile"] = c.Output.Outfile
	m["compression"] = c.Output.Compression
	m["chunk_size"] = strconv.Itoa(c.Output.ChunkSize)
	m["interactions"] = strconv.FormatBool(c.Output.Interactions)

	for i, p := range positions {
		m[fmt.Sprintf("x_%d", i)] = fmt.Sprintf("%f", p.X)
		m[fmt.Sprintf("y_%d", i)] = fmt.Sprintf("%f", p.Y)
	}
	return m
}

func formatLength(mm float64) string  { return fmt.Sprintf("%f mm", mm) }
func formatEnergy(keV float64) string { return fmt.Sprintf("%f keV", keV) }

func formatBool01(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatOptional(v *float64) string {
	if v == nil {
		return Null
	}
	return fmt.Sprintf("%f", *v)
}
