package enkf

import (
	"math"
	"math/rand/v2"

	"github.com/banshee-data/firefront/internal/config"
	"github.com/banshee-data/firefront/internal/units"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewRand returns the seeded generator a run draws every random number
// from. The same seed always yields the same sequence.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// standardNormal returns a N(0, 1) sampler backed by rng.
func standardNormal(rng *rand.Rand) distuv.Normal {
	return distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
}

// WindPrior describes the per-member wind draws: speed in m/s, direction
// as a compass bearing in degrees.
type WindPrior struct {
	SpeedMean      float64
	SpeedSigma     float64
	DirectionMean  float64
	DirectionSigma float64
}

// WindPriorFromConfig reads the wind prior. The config getters already
// return speeds in m/s.
func WindPriorFromConfig(c *config.AssimilationConfig) WindPrior {
	return WindPrior{
		SpeedMean:      c.GetWindSpeedMean(),
		SpeedSigma:     c.GetWindSpeedSigma(),
		DirectionMean:  c.GetWindDirectionMean(),
		DirectionSigma: c.GetWindDirectionSigma(),
	}
}

// SampleWinds draws m winds from the prior. Speeds are clamped at zero and
// directions wrapped into [0, 360).
func SampleWinds(rng *rand.Rand, prior WindPrior, m int) []units.Wind {
	norm := standardNormal(rng)
	winds := make([]units.Wind, m)
	for i := range winds {
		speed := prior.SpeedMean + prior.SpeedSigma*norm.Rand()
		dir := prior.DirectionMean + prior.DirectionSigma*norm.Rand()
		winds[i] = units.Wind{
			Speed:     math.Max(0, speed),
			Direction: units.WrapDegrees(dir),
		}
	}
	return winds
}

// ConstantWinds returns m copies of w.
func ConstantWinds(w units.Wind, m int) []units.Wind {
	winds := make([]units.Wind, m)
	for i := range winds {
		winds[i] = w
	}
	return winds
}
