package runstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// running again is a no-op
	require.NoError(t, s.MigrateUp())

	require.NoError(t, s.MigrateDown())
	version, _, err = s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

func TestReopenKeepsData(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	run, err := s.CreateRun(context.Background(), "ridge", 3, map[string]int{"ensemble_size": 10}, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "ridge", got.SeriesID)
}

func TestRunRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 8, 1, 12, 0, 0, 123456789, time.UTC)

	run, err := s.CreateRun(ctx, "ridge", 42, map[string]interface{}{"vertex_count": 20}, started)
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, uint64(42), got.Seed)
	assert.True(t, started.Equal(got.StartedAt))
	assert.JSONEq(t, `{"vertex_count":20}`, string(got.Config))

	_, err = s.GetRun(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStepRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	run, err := s.CreateRun(ctx, "ridge", 1, nil, time.Now())
	require.NoError(t, err)

	steps := []StepRecord{
		{
			RunID:            run.ID,
			Index:            0,
			ObservationIndex: 1,
			ObservedAt:       time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC),
			Members:          50,
			Failed:           2,
			RMS:              3.5,
			AreaDifference:   120.25,
			CentroidDistance: 1.5,
			Elapsed:          1500 * time.Millisecond,
			Mean:             []float64{0, 0, 1, 0, 1, 1},
			Failures: []MemberFailure{
				{Member: 4, Error: "fire simulation failed"},
				{Member: 17, Error: "fire simulation timed out"},
			},
		},
		{
			RunID:            run.ID,
			Index:            1,
			ObservationIndex: 2,
			Members:          50,
			Warnings:         1,
			Mean:             []float64{2, 2, 3, 2, 3, 3},
		},
	}
	for _, rec := range steps {
		require.NoError(t, s.RecordStep(ctx, rec))
	}

	got, err := s.Steps(ctx, run.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(steps, got, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}

	// duplicate step index
	assert.Error(t, s.RecordStep(ctx, steps[0]))

	// unknown run
	none, err := s.Steps(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCreateRunRejectsUnencodableConfig(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	_, err := s.CreateRun(context.Background(), "x", 1, map[string]interface{}{"f": func() {}}, time.Now())
	assert.Error(t, err)
}
