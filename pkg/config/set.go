package config

import (
	"strconv"
	"strings"

	"github.com/ajitpratap0/crystal/pkg/crystalerrors"
)

// Set assigns one tunable by its metadata key, e.g. Set("scint_depth",
// "13 mm"). Lengths accept an optional mm or cm unit and energies an
// optional keV or MeV unit. "n_sipms_xy" sets both grid dimensions; "NULL"
// clears scint_yield and reflectivity.
func (c *RunConfig) Set(key, value string) error {
	value = strings.TrimSpace(value)
	var err error

	switch key {
	case "debug":
		c.Debug, err = parseBool(value)
	case "physics_verbosity":
		c.PhysicsVerbosity, err = strconv.Atoi(value)

	case "particle_energy":
		c.Source.ParticleEnergy, err = parseEnergy(value)
	case "fixed_energy":
		c.Source.FixedEnergy, err = parseBool(value)
	case "generator":
		c.Source.Generator = value
	case "source_pos":
		c.Source.SourcePos, err = parseLength(value)
	case "seed":
		c.Source.Seed, err = strconv.ParseInt(value, 10, 64)

	case "scint":
		if s, ok := CanonicalScint(value); ok {
			c.Detector.Scint = s
		} else {
			err = strconv.ErrSyntax
		}
	case "scint_depth":
		c.Detector.ScintDepth, err = parseLength(value)
	case "scint_yield":
		c.Detector.ScintYield, err = parseOptional(value)
	case "reflectivity":
		c.Detector.Reflectivity, err = parseOptional(value)
	case "reflector_thickness":
		c.Detector.ReflectorThickness, err = parseLength(value)
	case "absorbent_opposite":
		c.Detector.AbsorbentOpposite, err = parseBool(value)
	case "sipm_size":
		c.Detector.SiPMSize, err = parseLength(value)
	case "sipm_thickness":
		c.Detector.SiPMThickness, err = parseLength(value)
	case "n_sipms_x":
		c.Detector.NSiPMsX, err = strconv.Atoi(value)
	case "n_sipms_y":
		c.Detector.NSiPMsY, err = strconv.Atoi(value)
	case "n_sipms_xy":
		var n int
		if n, err = strconv.Atoi(value); err == nil {
			c.Detector.NSiPMsX, c.Detector.NSiPMsY = n, n
		}
	case "sipm_threshold":
		var n uint64
		n, err = strconv.ParseUint(value, 10, 32)
		c.Detector.SiPMThreshold = uint32(n)
	case "event_threshold":
		c.Detector.EventThreshold, err = strconv.Atoi(value)

	case "outfile":
		c.Output.Outfile = value
	case "compression":
		c.Output.Compression = value
	case "chunk_size":
		c.Output.ChunkSize, err = strconv.Atoi(value)
	case "interactions":
		c.Output.Interactions, err = parseBool(value)

	default:
		return crystalerrors.Newf(crystalerrors.ErrorTypeConfig, "unknown setting %q", key).
			WithDetail("offending", key)
	}

	if err != nil {
		return crystalerrors.Wrap(err, crystalerrors.ErrorTypeConfig, "invalid value for "+key).
			WithDetail("field", key).
			WithDetail("offending", value)
	}
	return nil
}

// Apply runs Set for every "key=value" or "key value" assignment in order.
func (c *RunConfig) Apply(assignments []string) error {
	for _, a := range assignments {
		key, value, ok := strings.Cut(strings.TrimSpace(a), "=")
		if !ok {
			key, value, ok = strings.Cut(strings.TrimSpace(a), " ")
		}
		if !ok {
			return crystalerrors.Newf(crystalerrors.ErrorTypeConfig, "setting %q has no value", a).
				WithDetail("offending", a)
		}
		if err := c.Set(strings.TrimSpace(key), value); err != nil {
			return err
		}
	}
	return nil
}

func parseBool(s string) (bool, error) {
	return strconv.ParseBool(s)
}

func parseLength(s string) (float64, error) {
	return parseWithUnit(s, map[string]float64{"": 1, "mm": 1, "cm": 10, "m": 1000})
}

func parseEnergy(s string) (float64, error) {
	return parseWithUnit(s, map[string]float64{"": 1, "keV": 1, "MeV": 1000, "eV": 0.001})
}

func parseWithUnit(s string, units map[string]float64) (float64, error) {
	s = strings.TrimSpace(s)
	end := len(s)
	for end > 0 && isUnitChar(s[end-1]) {
		end--
	}
	scale, ok := units[s[end:]]
	if !ok {
		return 0, strconv.ErrSyntax
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s[:end]), 64)
	if err != nil {
		return 0, err
	}
	return v * scale, nil
}

func isUnitChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func parseOptional(s string) (*float64, error) {
	if strings.EqualFold(s, Null) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
