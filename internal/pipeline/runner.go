// Package pipeline runs an assimilation over an observation series: one
// filter step per observation after the first, with metrics, persistence
// and reporting after every step.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/firefront/internal/enkf"
	"github.com/banshee-data/firefront/internal/forward"
	"github.com/banshee-data/firefront/internal/metrics"
	"github.com/banshee-data/firefront/internal/monitoring"
	"github.com/banshee-data/firefront/internal/observation"
	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/banshee-data/firefront/internal/report"
	"github.com/banshee-data/firefront/internal/runstore"
	"github.com/banshee-data/firefront/internal/state"
	"github.com/banshee-data/firefront/internal/timeutil"
	"github.com/banshee-data/firefront/internal/units"
)

var logf = monitoring.Component("pipeline")

// ErrTooFewObservations is returned when a series cannot support a step.
var ErrTooFewObservations = errors.New("series needs at least two observations")

// Options controls a run.
type Options struct {
	SeriesID string
	// MaxSteps caps the number of filter steps; 0 runs the whole series.
	MaxSteps      int
	Seed          uint64
	PositionSigma float64
	WindSigma     float64
	WindPrior     enkf.WindPrior
	// WindWeighted builds P0 with enkf.WindWeightedCovariance.
	WindWeighted bool
	RMSVertices  int
	// OutputDir receives step plots, the trajectory plot, the analysis
	// GeoJSON and the diagnostics page. Empty disables all file output.
	OutputDir string
	// PlotMembers draws every forecast member on the step plots.
	PlotMembers bool
}

// StepOutcome is the result of one filter step of a run.
type StepOutcome struct {
	Index            int
	Observation      observation.Observation
	Result           *enkf.Result
	RMS              float64
	AreaDifference   float64
	CentroidDistance float64
}

// Summary is the outcome of a run. On error it holds the steps completed
// before the failure.
type Summary struct {
	RunID string
	Steps []StepOutcome
}

// Runner drives a filter over an observation series.
type Runner struct {
	filter *enkf.Filter
	source observation.Source
	model  forward.Model
	store  *runstore.Store
	clock  timeutil.Clock
	opts   Options
}

// NewRunner returns a runner. store may be nil to skip persistence.
func NewRunner(f *enkf.Filter, src observation.Source, model forward.Model, store *runstore.Store, opts Options) (*Runner, error) {
	switch {
	case f == nil || src == nil || model == nil:
		return nil, fmt.Errorf("%w: filter, source and model are required", enkf.ErrConfiguration)
	case opts.SeriesID == "":
		return nil, fmt.Errorf("%w: series ID is required", enkf.ErrConfiguration)
	case opts.MaxSteps < 0:
		return nil, fmt.Errorf("%w: negative step limit %d", enkf.ErrConfiguration, opts.MaxSteps)
	}
	if opts.RMSVertices <= 0 {
		opts.RMSVertices = metrics.DefaultRMSVertices
	}
	return &Runner{
		filter: f,
		source: src,
		model:  model,
		store:  store,
		clock:  timeutil.RealClock{},
		opts:   opts,
	}, nil
}

// SetClock replaces the clock used for run timestamps and step timing.
func (r *Runner) SetClock(c timeutil.Clock) {
	r.clock = c
	r.filter.SetClock(c)
}

// Run assimilates the series. The first observation seeds the prior; each
// later observation is assimilated in turn, the analysis mean and
// covariance of one step becoming the prior of the next.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	indices, err := r.source.Indices(ctx, r.opts.SeriesID)
	if err != nil {
		return nil, err
	}
	if len(indices) < 2 {
		return nil, fmt.Errorf("series %q has %d observations: %w", r.opts.SeriesID, len(indices), ErrTooFewObservations)
	}
	if r.opts.MaxSteps > 0 && len(indices) > r.opts.MaxSteps+1 {
		indices = indices[:r.opts.MaxSteps+1]
	}

	series := make([]observation.Observation, len(indices))
	for i, idx := range indices {
		if series[i], err = r.source.Observation(ctx, r.opts.SeriesID, idx); err != nil {
			return nil, err
		}
	}
	extent := plotExtent(series)

	prior, cov, err := r.initialState(series[0].Perimeter)
	if err != nil {
		return nil, err
	}
	cfg := r.filter.Config()
	initial, err := cfg.Codec.Points(prior)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	if r.store != nil {
		run, err := r.store.CreateRun(ctx, r.opts.SeriesID, r.opts.Seed, runRecord{Filter: cfg, Options: r.opts}, r.clock.Now())
		if err != nil {
			return nil, err
		}
		sum.RunID = run.ID
	}
	if r.opts.OutputDir != "" {
		if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	logf("run %s: series %q, %d steps, %d members", sum.RunID, r.opts.SeriesID, len(indices)-1, cfg.EnsembleSize)

	rng := enkf.NewRand(r.opts.Seed)
	windPrior := r.opts.WindPrior
	for step, obs := range series[1:] {
		winds := enkf.SampleWinds(rng, windPrior, cfg.EnsembleSize)
		res, err := r.filter.Step(ctx, rng, r.model, enkf.Inputs{
			Prior:       prior,
			Covariance:  cov,
			Winds:       winds,
			Observation: obs.Perimeter,
		})
		if err != nil {
			return sum, fmt.Errorf("step %d (observation %d): %w", step, obs.Index, err)
		}

		out, err := r.score(step, obs, res)
		if err != nil {
			return sum, err
		}
		sum.Steps = append(sum.Steps, out)
		logf("step %d: rms %.3f m, area difference %.1f m², centroid distance %.3f m", step, out.RMS, out.AreaDifference, out.CentroidDistance)

		if err := r.record(ctx, sum.RunID, out); err != nil {
			return sum, err
		}
		if err := r.plotStep(cfg.Codec, prior, out, extent); err != nil {
			return sum, err
		}

		prior, cov = res.Mean, res.Covariance
		if w, ok := cfg.Codec.Wind(res.Mean); ok {
			windPrior.SpeedMean, windPrior.DirectionMean = w.Speed, w.Direction
		}
	}

	if err := r.writeOutputs(ctx, sum, initial); err != nil {
		return sum, err
	}
	return sum, nil
}

// plotExtent is the bounding box of every observation in the run, padded
// by a tenth of its larger side.
func plotExtent(series []observation.Observation) orb.Bound {
	b := observation.Bound(series)
	return b.Pad(0.1 * math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]))
}

type runRecord struct {
	Filter  enkf.Config
	Options Options
}

func (r *Runner) initialState(p perimeter.Perimeter) (state.Vector, *mat.SymDense, error) {
	c := r.filter.Config().Codec
	mean := units.Wind{Speed: r.opts.WindPrior.SpeedMean, Direction: r.opts.WindPrior.DirectionMean}
	var wind *units.Wind
	if c.CarryWind {
		wind = &mean
	}
	prior, err := c.Encode(p, wind)
	if err != nil {
		return nil, nil, fmt.Errorf("initial observation: %w", err)
	}

	var cov *mat.SymDense
	if r.opts.WindWeighted {
		ring, err := c.Points(prior)
		if err != nil {
			return nil, nil, err
		}
		cov, err = enkf.WindWeightedCovariance(c, ring, mean.Direction, r.opts.PositionSigma, r.opts.WindSigma)
		if err != nil {
			return nil, nil, err
		}
	} else {
		cov, err = enkf.InitialCovariance(c, r.opts.PositionSigma, r.opts.WindSigma)
		if err != nil {
			return nil, nil, err
		}
	}
	return prior, cov, nil
}

func (r *Runner) score(step int, obs observation.Observation, res *enkf.Result) (StepOutcome, error) {
	rms, err := metrics.RMS(res.Perimeter, obs.Perimeter, r.opts.RMSVertices)
	if err != nil {
		return StepOutcome{}, fmt.Errorf("step %d rms: %w", step, err)
	}
	return StepOutcome{
		Index:            step,
		Observation:      obs,
		Result:           res,
		RMS:              rms,
		AreaDifference:   metrics.SymmetricAreaDifference(res.Perimeter, obs.Perimeter),
		CentroidDistance: metrics.CentroidDistance(res.Perimeter, obs.Perimeter),
	}, nil
}

func (r *Runner) record(ctx context.Context, runID string, out StepOutcome) error {
	if r.store == nil {
		return nil
	}
	st := out.Result.Stats()
	rec := runstore.StepRecord{
		RunID:            runID,
		Index:            out.Index,
		ObservationIndex: out.Observation.Index,
		ObservedAt:       out.Observation.Timestamp,
		Members:          st.Members,
		Failed:           st.Failed,
		Warnings:         st.Warnings,
		RMS:              out.RMS,
		AreaDifference:   out.AreaDifference,
		CentroidDistance: out.CentroidDistance,
		Elapsed:          st.Elapsed,
		Mean:             out.Result.Mean,
	}
	for _, f := range out.Result.Failures {
		rec.Failures = append(rec.Failures, runstore.MemberFailure{Member: f.Member, Error: f.Err.Error()})
	}
	return r.store.RecordStep(ctx, rec)
}

func (r *Runner) plotStep(c state.Codec, prior state.Vector, out StepOutcome, extent orb.Bound) error {
	if r.opts.OutputDir == "" {
		return nil
	}
	priorRing, err := c.Points(prior)
	if err != nil {
		return err
	}
	overlay := report.Overlay{
		Title:       fmt.Sprintf("%s step %d (observation %d)", r.opts.SeriesID, out.Index, out.Observation.Index),
		Extent:      &extent,
		Prior:       priorRing,
		Observation: out.Observation.Perimeter,
		Analysis:    out.Result.Perimeter,
	}
	if r.opts.PlotMembers {
		_, m := out.Result.Forecast.Dims()
		for j := 0; j < m; j++ {
			ring, err := c.Points(state.Column(out.Result.Forecast, j))
			if err != nil {
				return err
			}
			overlay.Members = append(overlay.Members, ring)
		}
	}
	path := filepath.Join(r.opts.OutputDir, fmt.Sprintf("step_%03d.png", out.Index))
	return report.SaveStepPlot(path, overlay)
}

// writeOutputs writes the end-of-run artefacts: the analysis series as
// GeoJSON, the vertex trajectory plot and, with a store, the diagnostics
// page built from the stored steps.
func (r *Runner) writeOutputs(ctx context.Context, sum *Summary, initial perimeter.Perimeter) error {
	if r.opts.OutputDir == "" || len(sum.Steps) == 0 {
		return nil
	}

	analyses := make([]observation.Observation, len(sum.Steps))
	for i, s := range sum.Steps {
		analyses[i] = observation.Observation{
			SeriesID:  r.opts.SeriesID,
			Index:     s.Observation.Index,
			Timestamp: s.Observation.Timestamp,
			Perimeter: s.Result.Perimeter,
		}
	}
	data, err := observation.EncodeGeoJSON(analyses, func(i int, props geojson.Properties) {
		s := sum.Steps[i]
		props["step"] = s.Index
		props["rms"] = s.RMS
		props["area_difference"] = s.AreaDifference
		props["failed_members"] = len(s.Result.Failures)
		if sum.RunID != "" {
			props["run_id"] = sum.RunID
		}
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(r.opts.OutputDir, "analysis.geojson"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write analysis GeoJSON: %w", err)
	}

	sequence := append([]perimeter.Perimeter{initial}, observation.Perimeters(analyses)...)
	if err := report.SaveTrajectoryPlot(filepath.Join(r.opts.OutputDir, "trajectories.png"), r.opts.SeriesID+" vertex trajectories", sequence); err != nil {
		return err
	}

	var points []report.StepPoint
	if r.store != nil {
		recs, err := r.store.Steps(ctx, sum.RunID)
		if err != nil {
			return err
		}
		points = report.PointsFromRecords(recs)
	} else {
		for _, s := range sum.Steps {
			st := s.Result.Stats()
			points = append(points, report.StepPoint{
				Index:            s.Index,
				RMS:              s.RMS,
				AreaDifference:   s.AreaDifference,
				CentroidDistance: s.CentroidDistance,
				Members:          st.Members,
				Failed:           st.Failed,
			})
		}
	}
	return report.SaveDiagnostics(filepath.Join(r.opts.OutputDir, "diagnostics.html"), sum.RunID, points)
}
