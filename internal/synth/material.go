package synth

import "github.com/ajitpratap0/crystal/pkg/config"

// material holds the optical and attenuation properties used for one
// scintillator.
type material struct {
	attenuation  float64 // gamma attenuation length in mm at 511 keV
	yield        float64 // photons per MeV
	reflectivity float64 // wrapping reflectivity
	photoFrac    float64 // probability that an interaction is photoelectric
}

var materials = map[string]material{
	config.ScintLYSO: {attenuation: 11.4, yield: 32000, reflectivity: 0.98, photoFrac: 0.34},
	config.ScintBGO:  {attenuation: 10.4, yield: 8500, reflectivity: 0.98, photoFrac: 0.44},
	config.ScintCsI:  {attenuation: 22.9, yield: 50000, reflectivity: 0.98, photoFrac: 0.22},
}

// Interaction type codes written to the interactions column.
const (
	TypePhotoelectric uint16 = 1
	TypeCompton       uint16 = 2
)

// photonDetectionEfficiency is the fraction of photons reaching a SiPM face
// that are counted.
const photonDetectionEfficiency = 0.4

// maxSteps bounds the number of interactions followed per primary.
const maxSteps = 8
