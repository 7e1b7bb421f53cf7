package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/firefront/internal/enkf"
	"github.com/banshee-data/firefront/internal/forward"
	"github.com/banshee-data/firefront/internal/monitoring"
	"github.com/banshee-data/firefront/internal/observation"
	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/banshee-data/firefront/internal/runstore"
	"github.com/banshee-data/firefront/internal/state"
	"github.com/banshee-data/firefront/internal/testutil"
	"github.com/banshee-data/firefront/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

var base = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

// driftingSeries is a 100 m square moving 10 m east per observation.
func driftingSeries(n int) *observation.MemorySource {
	src := observation.NewMemorySource()
	for i := 0; i < n; i++ {
		src.Add(observation.Observation{
			SeriesID:  "fire",
			Index:     i,
			Timestamp: base.Add(time.Duration(i) * 30 * time.Minute),
			Perimeter: perimeter.Perimeter(testutil.Square(float64(10*i), 0, 100, 16)),
		})
	}
	return src
}

func testFilter(t *testing.T) *enkf.Filter {
	t.Helper()
	cfg := enkf.DefaultConfig()
	cfg.Codec = state.Codec{Vertices: 16}
	cfg.EnsembleSize = 40
	cfg.ObservationSigma = 1
	cfg.Duration = 30 * time.Minute
	f, err := enkf.NewFilter(cfg)
	require.NoError(t, err)
	return f
}

func testOptions() Options {
	return Options{
		SeriesID:      "fire",
		Seed:          7,
		PositionSigma: 2,
		WindSigma:     1,
		WindPrior:     enkf.WindPrior{SpeedMean: 4.5, SpeedSigma: 1, DirectionMean: 90, DirectionSigma: 10},
	}
}

func TestRunAssimilatesSeries(t *testing.T) {
	t.Parallel()

	r, err := NewRunner(testFilter(t), driftingSeries(4), forward.Translate{DX: 10}, nil, testOptions())
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Steps, 3)
	assert.Empty(t, sum.RunID)

	for i, s := range sum.Steps {
		assert.Equal(t, i, s.Index)
		assert.Equal(t, i+1, s.Observation.Index)
		assert.Less(t, s.RMS, 5.0, "step %d", i)
		assert.Less(t, s.CentroidDistance, 3.0, "step %d", i)
		assert.Empty(t, s.Result.Failures)
	}
}

func TestRunDeterministic(t *testing.T) {
	t.Parallel()

	run := func() *Summary {
		r, err := NewRunner(testFilter(t), driftingSeries(3), forward.Translate{DX: 10}, nil, testOptions())
		require.NoError(t, err)
		sum, err := r.Run(context.Background())
		require.NoError(t, err)
		return sum
	}
	a, b := run(), run()
	require.Len(t, b.Steps, len(a.Steps))
	for i := range a.Steps {
		assert.Equal(t, a.Steps[i].Result.Mean, b.Steps[i].Result.Mean)
	}
}

func TestRunMaxSteps(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.MaxSteps = 1
	r, err := NewRunner(testFilter(t), driftingSeries(5), forward.Translate{DX: 10}, nil, opts)
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, sum.Steps, 1)
}

func TestRunWindWeighted(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.WindWeighted = true
	r, err := NewRunner(testFilter(t), driftingSeries(3), forward.Translate{DX: 10}, nil, opts)
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, sum.Steps, 2)
}

func TestRunPersistsAndReports(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := runstore.Open(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	opts := testOptions()
	opts.OutputDir = filepath.Join(dir, "out")
	opts.PlotMembers = true
	r, err := NewRunner(testFilter(t), driftingSeries(3), forward.Translate{DX: 10}, store, opts)
	require.NoError(t, err)
	clock := timeutil.NewMockClock(base)
	r.SetClock(clock)

	ctx := context.Background()
	sum, err := r.Run(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sum.RunID)

	run, err := store.GetRun(ctx, sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, "fire", run.SeriesID)
	assert.Equal(t, uint64(7), run.Seed)
	assert.True(t, base.Equal(run.StartedAt))

	recs, err := store.Steps(ctx, sum.RunID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for i, rec := range recs {
		assert.Equal(t, i, rec.Index)
		assert.Equal(t, i+1, rec.ObservationIndex)
		assert.Equal(t, 40, rec.Members)
		assert.InDelta(t, sum.Steps[i].RMS, rec.RMS, 1e-9)
		assert.Len(t, rec.Mean, 32)
	}

	for _, name := range []string{"step_000.png", "step_001.png", "trajectories.png", "diagnostics.html", "analysis.geojson"} {
		info, err := os.Stat(filepath.Join(opts.OutputDir, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}

	data, err := os.ReadFile(filepath.Join(opts.OutputDir, "analysis.geojson"))
	require.NoError(t, err)
	analyses, err := observation.ParseGeoJSON(data, "")
	require.NoError(t, err)
	require.Len(t, analyses, 2)
	assert.Equal(t, "fire", analyses[0].SeriesID)
	assert.Equal(t, 2, analyses[1].Index)
}

func TestRunTotalFailure(t *testing.T) {
	t.Parallel()

	failing := forward.FailWhen(forward.Identity, func(float64, float64) bool { return true })
	r, err := NewRunner(testFilter(t), driftingSeries(3), failing, nil, testOptions())
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	assert.ErrorIs(t, err, enkf.ErrTotalForecastFailure)
	require.NotNil(t, sum)
	assert.Empty(t, sum.Steps)
}

func TestRunSeriesErrors(t *testing.T) {
	t.Parallel()

	t.Run("too few", func(t *testing.T) {
		t.Parallel()
		r, err := NewRunner(testFilter(t), driftingSeries(1), forward.Identity, nil, testOptions())
		require.NoError(t, err)
		_, err = r.Run(context.Background())
		assert.ErrorIs(t, err, ErrTooFewObservations)
	})

	t.Run("unknown series", func(t *testing.T) {
		t.Parallel()
		opts := testOptions()
		opts.SeriesID = "other"
		r, err := NewRunner(testFilter(t), driftingSeries(3), forward.Identity, nil, opts)
		require.NoError(t, err)
		_, err = r.Run(context.Background())
		assert.ErrorIs(t, err, observation.ErrNotFound)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		r, err := NewRunner(testFilter(t), driftingSeries(3), forward.Identity, nil, testOptions())
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = r.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewRunnerValidation(t *testing.T) {
	t.Parallel()

	f := testFilter(t)
	src := driftingSeries(2)

	_, err := NewRunner(nil, src, forward.Identity, nil, testOptions())
	assert.ErrorIs(t, err, enkf.ErrConfiguration)

	opts := testOptions()
	opts.SeriesID = ""
	_, err = NewRunner(f, src, forward.Identity, nil, opts)
	assert.ErrorIs(t, err, enkf.ErrConfiguration)

	opts = testOptions()
	opts.MaxSteps = -1
	_, err = NewRunner(f, src, forward.Identity, nil, opts)
	assert.ErrorIs(t, err, enkf.ErrConfiguration)
}

func TestRunCarriesWind(t *testing.T) {
	t.Parallel()

	cfg := enkf.DefaultConfig()
	cfg.Codec = state.Codec{Vertices: 16, CarryWind: true}
	cfg.EnsembleSize = 40
	cfg.ObservationSigma = 1
	f, err := enkf.NewFilter(cfg)
	require.NoError(t, err)

	r, err := NewRunner(f, driftingSeries(3), forward.Translate{DX: 10}, nil, testOptions())
	require.NoError(t, err)

	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sum.Steps, 2)
	for _, s := range sum.Steps {
		require.Len(t, s.Result.Mean, 34)
		w, ok := cfg.Codec.Wind(s.Result.Mean)
		require.True(t, ok)
		assert.GreaterOrEqual(t, w.Speed, 0.0)
	}
}

func TestPlotExtentCoversSeries(t *testing.T) {
	t.Parallel()

	src := driftingSeries(3)
	var series []observation.Observation
	for i := 0; i < 3; i++ {
		o, err := src.Observation(context.Background(), "fire", i)
		require.NoError(t, err)
		series = append(series, o)
	}

	b := plotExtent(series)
	// Squares span x in [-50, 70] and y in [-50, 50]; padding is 12 m.
	assert.InDelta(t, -62.0, b.Min[0], 1e-9)
	assert.InDelta(t, 82.0, b.Max[0], 1e-9)
	assert.InDelta(t, -62.0, b.Min[1], 1e-9)
	assert.InDelta(t, 62.0, b.Max[1], 1e-9)
}
