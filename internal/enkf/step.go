package enkf

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/firefront/internal/forward"
	"github.com/banshee-data/firefront/internal/monitoring"
	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/banshee-data/firefront/internal/state"
	"github.com/banshee-data/firefront/internal/units"
	"github.com/banshee-data/firefront/internal/validity"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

var logf = monitoring.Component("enkf")

// Phase is the position of a Step in its lifecycle.
type Phase int

const (
	PhaseInitialized Phase = iota
	PhaseEnsembleGenerated
	PhaseForecastComplete
	PhaseAnalysisComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialized:
		return "initialized"
	case PhaseEnsembleGenerated:
		return "ensemble-generated"
	case PhaseForecastComplete:
		return "forecast-complete"
	case PhaseAnalysisComplete:
		return "analysis-complete"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Inputs are the per-step data.
type Inputs struct {
	// Prior is the previous analysis mean, x0. Its perimeter must be
	// counter-clockwise.
	Prior state.Vector
	// Covariance is P0, which must be positive definite.
	Covariance *mat.SymDense
	// Winds holds one wind per member.
	Winds []units.Wind
	// Observation is the observed perimeter at the end of the window.
	Observation perimeter.Perimeter
}

// Result is the outcome of a completed step.
type Result struct {
	// Mean is the analysis mean after repair, resampling and alignment.
	Mean state.Vector
	// Perimeter is the vertex ring of Mean.
	Perimeter perimeter.Perimeter
	// Covariance is the updated covariance, Ex*Ex^T/M plus the floor.
	Covariance *mat.SymDense
	// Observation is the encoded, aligned observation y_true.
	Observation state.Vector
	// Forecast holds zkphat, one column per member, failures backfilled.
	Forecast *mat.Dense
	// Analysis holds xkphat, one column per member.
	Analysis *mat.Dense
	Gain     *mat.Dense
	Failures []MemberFailure
	Warnings []error
	// Elapsed is set by Filter.Step.
	Elapsed time.Duration
}

// Step is one assimilation cycle. Its methods must be called in order:
// GenerateEnsemble, Forecast, Analyze. A Step is not safe for concurrent use.
type Step struct {
	cfg   Config
	in    Inputs
	ref   perimeter.Perimeter
	obs   state.Vector
	phase Phase

	ensemble *mat.Dense // xkhat, dim x M
	perturb  *mat.Dense // observation perturbations, obsDim x M
	forecast *mat.Dense // zkphat, dim x M
	failures []MemberFailure
}

// NewStep validates cfg and in and encodes the observation against the
// prior perimeter.
func NewStep(cfg Config, in Inputs) (*Step, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := cfg.Codec
	if len(in.Prior) != c.Dim() {
		return nil, fmt.Errorf("%w: prior has %d entries, want %d", ErrConfiguration, len(in.Prior), c.Dim())
	}
	if in.Covariance == nil || in.Covariance.SymmetricDim() != c.Dim() {
		return nil, fmt.Errorf("%w: covariance must be %dx%d", ErrConfiguration, c.Dim(), c.Dim())
	}
	if len(in.Winds) != cfg.EnsembleSize {
		return nil, fmt.Errorf("%w: %d winds for %d members", ErrConfiguration, len(in.Winds), cfg.EnsembleSize)
	}

	ref, err := c.Points(in.Prior)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if ref.SignedArea() <= 0 {
		return nil, fmt.Errorf("%w: prior perimeter is not counter-clockwise", ErrConfiguration)
	}

	obs, _, err := c.EncodeAligned(in.Observation, nil, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: observation: %v", ErrConfiguration, err)
	}

	return &Step{
		cfg:   cfg,
		in:    in,
		ref:   ref,
		obs:   c.Positions(obs),
		phase: PhaseInitialized,
	}, nil
}

// Phase reports how far the step has progressed.
func (s *Step) Phase() Phase {
	return s.phase
}

func (s *Step) expect(p Phase, op string) error {
	if s.phase != p {
		return fmt.Errorf("%s in phase %s, want %s: %w", op, s.phase, p, ErrPhase)
	}
	return nil
}

// GenerateEnsemble draws the analysis ensemble xkhat[m] = x0 + L*z_m, with
// L the lower Cholesky factor of P0, and the observation perturbations
// for every member. It is the only phase that consumes randomness.
func (s *Step) GenerateEnsemble(rng *rand.Rand) error {
	if err := s.expect(PhaseInitialized, "generate ensemble"); err != nil {
		return err
	}
	c := s.cfg.Codec
	dim, obsDim, m := c.Dim(), c.ObsDim(), s.cfg.EnsembleSize

	var chol mat.Cholesky
	if ok := chol.Factorize(s.in.Covariance); !ok {
		return fmt.Errorf("%w: covariance is not positive definite", ErrConfiguration)
	}
	var l mat.TriDense
	chol.LTo(&l)

	norm := standardNormal(rng)
	z := mat.NewDense(dim, m, nil)
	for j := 0; j < m; j++ {
		for i := 0; i < dim; i++ {
			z.Set(i, j, norm.Rand())
		}
	}
	perturb := mat.NewDense(obsDim, m, nil)
	for j := 0; j < m; j++ {
		for i := 0; i < obsDim; i++ {
			perturb.Set(i, j, s.cfg.ObservationSigma*norm.Rand())
		}
	}

	ens := mat.NewDense(dim, m, nil)
	ens.Mul(&l, z)
	for j := 0; j < m; j++ {
		col := mat.Col(nil, j, ens)
		for i := range col {
			col[i] += s.in.Prior[i]
		}
		c.SetWind(col, s.in.Winds[j])
		ens.SetCol(j, col)
	}

	s.ensemble = ens
	s.perturb = perturb
	s.phase = PhaseEnsembleGenerated
	return nil
}

// Forecast advances every member through model on a bounded worker pool.
// A member whose decode, model run, repair or encode fails is recorded as a
// MemberFailure and later backfilled with the mean of the successful
// members. Cancelling ctx aborts the step.
func (s *Step) Forecast(ctx context.Context, model forward.Model) error {
	if err := s.expect(PhaseEnsembleGenerated, "forecast"); err != nil {
		return err
	}
	model = forward.WithTimeout(model, s.cfg.MemberTimeout)
	m := s.cfg.EnsembleSize

	cols := make([]state.Vector, m)
	errs := make([]error, m)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.workers())
	for j := 0; j < m; j++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			col, err := s.runMember(gctx, model, j)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				errs[j] = err
				return nil
			}
			cols[j] = col
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("forecast aborted: %w", err)
	}

	var failures []MemberFailure
	var ok []state.Vector
	for j, err := range errs {
		if err != nil {
			f := MemberFailure{Member: j, Err: err}
			failures = append(failures, f)
			logf("%v", f)
			continue
		}
		ok = append(ok, cols[j])
	}
	if len(ok) == 0 {
		joined := make([]error, 0, len(failures)+1)
		joined = append(joined, ErrTotalForecastFailure)
		for _, f := range failures {
			joined = append(joined, f)
		}
		return fmt.Errorf("forecast with %d members: %w", m, errors.Join(joined...))
	}

	if len(failures) > 0 {
		mean := rowMean(state.Stack(ok))
		for _, f := range failures {
			cols[f.Member] = state.Vector(mean)
		}
	}

	s.forecast = state.Stack(cols)
	s.failures = failures
	s.phase = PhaseForecastComplete
	return nil
}

// runMember decodes member j, runs the model and re-encodes the result
// aligned to the prior perimeter.
func (s *Step) runMember(ctx context.Context, model forward.Model, j int) (state.Vector, error) {
	c := s.cfg.Codec
	x := state.Column(s.ensemble, j)
	initial, err := c.Decode(x)
	if err != nil {
		return nil, err
	}
	w := s.in.Winds[j]
	g, err := model.Forward(ctx, initial, w.Speed, w.Direction, s.cfg.Duration)
	if err != nil {
		return nil, err
	}
	p, err := validity.Repair(g)
	if err != nil {
		return nil, fmt.Errorf("forecast geometry: %w", err)
	}
	var wind *units.Wind
	if carried, ok := c.Wind(x); ok {
		wind = &carried
	}
	z, _, err := c.EncodeAligned(p, wind, s.ref)
	if err != nil {
		return nil, err
	}
	return z, nil
}

// Analyze corrects the forecast ensemble towards the observation.
//
// Each member is compared with its own perturbed observation, so the
// observation ensemble is ykhat[m] = H*zkphat[m] - eps_m, where H selects
// the position entries. With deviations Ez and Ey from the ensemble means,
// Pzy = Ez*Ey^T/M, Py = Ey*Ey^T/M and K = Pzy*pinv(Py). The analysis
// members are xkphat[m] = zkphat[m] + K*(y_true - ykhat[m]) and their
// mean, zbar + K*(y_true - ybar), is repaired and re-encoded before it is
// returned.
func (s *Step) Analyze() (*Result, error) {
	if err := s.expect(PhaseForecastComplete, "analyze"); err != nil {
		return nil, err
	}
	c := s.cfg.Codec
	obsDim, m := c.ObsDim(), s.cfg.EnsembleSize
	z := s.forecast

	y := mat.NewDense(obsDim, m, nil)
	y.Sub(z.Slice(0, obsDim, 0, m), s.perturb)

	zbar := rowMean(z)
	ybar := rowMean(y)
	ez := deviations(z, zbar)
	ey := deviations(y, ybar)

	pzy := crossCovariance(ez, ey)
	py := crossCovariance(ey, ey)
	pyInv, err := pinv(py, s.cfg.PinvTolerance)
	if err != nil {
		return nil, fmt.Errorf("invert Py: %w", err)
	}
	var warnings []error
	if r := identityResidual(py, pyInv); !(r <= s.cfg.IdentityTolerance) {
		w := &NumericalWarning{Residual: r, Tolerance: s.cfg.IdentityTolerance}
		warnings = append(warnings, w)
		logf("warning: %v", w)
	}

	var gain mat.Dense
	gain.Mul(pzy, pyInv)

	// innovations y_true - ykhat[m], one column per member
	innov := mat.NewDense(obsDim, m, nil)
	innov.Apply(func(i, _ int, v float64) float64 { return s.obs[i] - v }, y)
	var correction mat.Dense
	correction.Mul(&gain, innov)
	var analysis mat.Dense
	analysis.Add(z, &correction)

	meanInnov := make([]float64, obsDim)
	for i := range meanInnov {
		meanInnov[i] = s.obs[i] - ybar[i]
	}
	var shift mat.VecDense
	shift.MulVec(&gain, mat.NewVecDense(obsDim, meanInnov))
	raw := make(state.Vector, len(zbar))
	for i := range raw {
		raw[i] = zbar[i] + shift.AtVec(i)
	}

	mean, p, err := s.finishMean(raw)
	if err != nil {
		return nil, err
	}

	cov := sampleCovariance(deviations(&analysis, rowMean(&analysis)), s.cfg.CovarianceFloor)

	s.phase = PhaseAnalysisComplete
	return &Result{
		Mean:        mean,
		Perimeter:   p,
		Covariance:  cov,
		Observation: s.obs,
		Forecast:    z,
		Analysis:    &analysis,
		Gain:        &gain,
		Failures:    s.failures,
		Warnings:    warnings,
	}, nil
}

// finishMean repairs the raw analysis mean and re-encodes it with the codec's
// vertex count, aligned to the prior perimeter.
func (s *Step) finishMean(raw state.Vector) (state.Vector, perimeter.Perimeter, error) {
	c := s.cfg.Codec
	if pts, err := c.Points(raw); err == nil && !validity.IsSimple(pts) {
		logf("analysis mean self-intersects, keeping its largest loop")
	}
	repaired, err := c.Decode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("analysis mean: %w", err)
	}
	var wind *units.Wind
	if w, ok := c.Wind(raw); ok {
		wind = &w
	}
	mean, _, err := c.EncodeAligned(repaired, wind, s.ref)
	if err != nil {
		return nil, nil, fmt.Errorf("analysis mean: %w", err)
	}
	if c.CarryWind {
		// keep the updated wind components exactly rather than via the
		// speed/bearing round trip
		mean[len(mean)-2], mean[len(mean)-1] = raw[len(raw)-2], raw[len(raw)-1]
	}
	p, err := c.Points(mean)
	if err != nil {
		return nil, nil, err
	}
	return mean, p, nil
}
