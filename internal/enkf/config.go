package enkf

import (
	"fmt"
	"runtime"
	"time"

	"github.com/banshee-data/firefront/internal/config"
	"github.com/banshee-data/firefront/internal/state"
)

// Config holds the fixed parameters of a filter.
type Config struct {
	Codec        state.Codec
	EnsembleSize int
	// Workers bounds concurrent forward-model runs; 0 means GOMAXPROCS.
	Workers int
	// ObservationSigma is the standard deviation of the observation
	// perturbations, in metres.
	ObservationSigma float64
	// Duration is the forecast window passed to the forward model.
	Duration time.Duration
	// MemberTimeout bounds one forward-model run; 0 disables it.
	MemberTimeout time.Duration
	// CovarianceFloor is added to the diagonal of the updated covariance.
	CovarianceFloor   float64
	PinvTolerance     float64
	IdentityTolerance float64
}

// ConfigFromAssimilation builds a Config from the JSON configuration.
func ConfigFromAssimilation(c *config.AssimilationConfig) Config {
	return Config{
		Codec: state.Codec{
			Vertices:  c.GetVertexCount(),
			CarryWind: c.GetCarryWindState(),
		},
		EnsembleSize:      c.GetEnsembleSize(),
		Workers:           c.GetWorkers(),
		ObservationSigma:  c.GetObservationSigma(),
		Duration:          c.GetWindowDuration(),
		MemberTimeout:     c.GetMemberTimeout(),
		CovarianceFloor:   c.GetCovarianceFloor(),
		PinvTolerance:     c.GetPinvTolerance(),
		IdentityTolerance: c.GetIdentityTolerance(),
	}
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return ConfigFromAssimilation(config.EmptyAssimilationConfig())
}

// Validate checks the configuration; failures wrap ErrConfiguration.
func (c Config) Validate() error {
	if err := c.Codec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	switch {
	case c.EnsembleSize < 2:
		return fmt.Errorf("%w: ensemble size %d, need at least 2", ErrConfiguration, c.EnsembleSize)
	case c.Workers < 0:
		return fmt.Errorf("%w: negative worker count %d", ErrConfiguration, c.Workers)
	case c.ObservationSigma < 0:
		return fmt.Errorf("%w: negative observation sigma %g", ErrConfiguration, c.ObservationSigma)
	case c.Duration < 0:
		return fmt.Errorf("%w: negative forecast duration %s", ErrConfiguration, c.Duration)
	case c.MemberTimeout < 0:
		return fmt.Errorf("%w: negative member timeout %s", ErrConfiguration, c.MemberTimeout)
	case c.CovarianceFloor < 0:
		return fmt.Errorf("%w: negative covariance floor %g", ErrConfiguration, c.CovarianceFloor)
	case c.PinvTolerance <= 0 || c.IdentityTolerance <= 0:
		return fmt.Errorf("%w: tolerances must be positive", ErrConfiguration)
	}
	return nil
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}
