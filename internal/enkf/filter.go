package enkf

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/firefront/internal/forward"
	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/banshee-data/firefront/internal/state"
	"github.com/banshee-data/firefront/internal/timeutil"
	"gonum.org/v1/gonum/mat"
)

// Filter runs complete assimilation steps with a fixed configuration.
type Filter struct {
	cfg   Config
	clock timeutil.Clock
}

// NewFilter validates cfg and returns a Filter using the real clock.
func NewFilter(cfg Config) (*Filter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Filter{cfg: cfg, clock: timeutil.RealClock{}}, nil
}

// SetClock replaces the clock used for step timings.
func (f *Filter) SetClock(c timeutil.Clock) {
	f.clock = c
}

// Config returns the filter configuration.
func (f *Filter) Config() Config {
	return f.cfg
}

// StepStats summarises a completed step for logging and persistence.
type StepStats struct {
	Members  int
	Failed   int
	Warnings int
	Elapsed  time.Duration
}

// Stats summarises r.
func (r *Result) Stats() StepStats {
	_, m := r.Forecast.Dims()
	return StepStats{
		Members:  m,
		Failed:   len(r.Failures),
		Warnings: len(r.Warnings),
		Elapsed:  r.Elapsed,
	}
}

// Step runs ensemble generation, forecast and analysis for one window.
// On error no partial result is returned.
func (f *Filter) Step(ctx context.Context, rng *rand.Rand, model forward.Model, in Inputs) (*Result, error) {
	start := f.clock.Now()
	s, err := NewStep(f.cfg, in)
	if err != nil {
		return nil, err
	}
	if err := s.GenerateEnsemble(rng); err != nil {
		return nil, err
	}
	if err := s.Forecast(ctx, model); err != nil {
		return nil, err
	}
	res, err := s.Analyze()
	if err != nil {
		return nil, err
	}
	res.Elapsed = f.clock.Since(start)
	st := res.Stats()
	logf("step complete: %d members, %d failed, %d warnings in %s", st.Members, st.Failed, st.Warnings, st.Elapsed)
	return res, nil
}

// InitialCovariance builds a diagonal P0 with positionSigma^2 on every
// coordinate and windSigma^2 on the wind entries when the codec carries
// wind.
func InitialCovariance(c state.Codec, positionSigma, windSigma float64) (*mat.SymDense, error) {
	if positionSigma <= 0 || (c.CarryWind && windSigma <= 0) {
		return nil, fmt.Errorf("%w: covariance sigmas must be positive", ErrConfiguration)
	}
	dim := c.Dim()
	p := mat.NewSymDense(dim, nil)
	for i := 0; i < c.ObsDim(); i++ {
		p.SetSym(i, i, positionSigma*positionSigma)
	}
	for i := c.ObsDim(); i < dim; i++ {
		p.SetSym(i, i, windSigma*windSigma)
	}
	return p, nil
}

// WindWeightedCovariance is InitialCovariance with each vertex's position
// sigma raised by perimeter.WindUncertainties: vertices facing into the
// wind get up to 1.5*positionSigma, downwind vertices keep positionSigma.
func WindWeightedCovariance(c state.Codec, prior perimeter.Perimeter, windDirection, positionSigma, windSigma float64) (*mat.SymDense, error) {
	p, err := InitialCovariance(c, positionSigma, windSigma)
	if err != nil {
		return nil, err
	}
	if len(prior) != c.Vertices {
		return nil, fmt.Errorf("%w: prior has %d vertices, want %d", ErrConfiguration, len(prior), c.Vertices)
	}
	for i, u := range perimeter.WindUncertainties(prior, windDirection, positionSigma) {
		s := positionSigma + u
		p.SetSym(2*i, 2*i, s*s)
		p.SetSym(2*i+1, 2*i+1, s*s)
	}
	return p, nil
}
