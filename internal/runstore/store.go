// Package runstore persists assimilation runs and per-step results in
// SQLite.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Store wraps the run database.
type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the database at path and applies any
// pending migrations.
func Open(path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite", path+sep+"_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Run describes one assimilation run.
type Run struct {
	ID        string
	SeriesID  string
	Seed      uint64
	Config    json.RawMessage
	StartedAt time.Time
}

// MemberFailure is the stored form of a failed ensemble member.
type MemberFailure struct {
	Member int
	Error  string
}

// StepRecord is the stored outcome of one assimilation step.
type StepRecord struct {
	RunID            string
	Index            int
	ObservationIndex int
	ObservedAt       time.Time
	Members          int
	Failed           int
	Warnings         int
	RMS              float64
	AreaDifference   float64
	CentroidDistance float64
	Elapsed          time.Duration
	Mean             []float64
	Failures         []MemberFailure
}

// CreateRun registers a new run and returns it with a fresh ID. cfg is
// stored as JSON.
func (s *Store) CreateRun(ctx context.Context, seriesID string, seed uint64, cfg interface{}, startedAt time.Time) (Run, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return Run{}, fmt.Errorf("failed to encode run config: %w", err)
	}
	run := Run{
		ID:        uuid.NewString(),
		SeriesID:  seriesID,
		Seed:      seed,
		Config:    raw,
		StartedAt: startedAt.UTC(),
	}
	_, err = s.ExecContext(ctx,
		`INSERT INTO runs (run_id, series_id, seed, config_json, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SeriesID, int64(run.Seed), string(raw), run.StartedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Run{}, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// GetRun loads a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var (
		run     Run
		seed    int64
		cfg     string
		started string
	)
	err := s.QueryRowContext(ctx,
		`SELECT run_id, series_id, seed, config_json, started_at FROM runs WHERE run_id = ?`, id,
	).Scan(&run.ID, &run.SeriesID, &seed, &cfg, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to query run: %w", err)
	}
	run.Seed = uint64(seed)
	run.Config = json.RawMessage(cfg)
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("run %s: bad started_at %q: %w", id, started, err)
	}
	return run, nil
}

// RecordStep stores a step and its member failures in one transaction.
func (s *Store) RecordStep(ctx context.Context, rec StepRecord) error {
	mean, err := json.Marshal(rec.Mean)
	if err != nil {
		return fmt.Errorf("failed to encode mean: %w", err)
	}
	var observed sql.NullString
	if !rec.ObservedAt.IsZero() {
		observed = sql.NullString{String: rec.ObservedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO steps (
			run_id, step_index, observation_index, observed_at,
			members, failed, warnings,
			rms, area_difference, centroid_distance,
			elapsed_ms, mean_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Index, rec.ObservationIndex, observed,
		rec.Members, rec.Failed, rec.Warnings,
		rec.RMS, rec.AreaDifference, rec.CentroidDistance,
		rec.Elapsed.Milliseconds(), string(mean))
	if err != nil {
		return fmt.Errorf("failed to insert step %d: %w", rec.Index, err)
	}

	for _, f := range rec.Failures {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO member_failures (run_id, step_index, member, error) VALUES (?, ?, ?, ?)`,
			rec.RunID, rec.Index, f.Member, f.Error)
		if err != nil {
			return fmt.Errorf("failed to insert member failure: %w", err)
		}
	}

	return tx.Commit()
}

// Steps returns every step of a run in index order, with failures.
func (s *Store) Steps(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT step_index, observation_index, observed_at,
			members, failed, warnings,
			rms, area_difference, centroid_distance,
			elapsed_ms, mean_json
		FROM steps WHERE run_id = ? ORDER BY step_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		var (
			rec      = StepRecord{RunID: runID}
			observed sql.NullString
			elapsed  int64
			mean     string
		)
		if err := rows.Scan(&rec.Index, &rec.ObservationIndex, &observed,
			&rec.Members, &rec.Failed, &rec.Warnings,
			&rec.RMS, &rec.AreaDifference, &rec.CentroidDistance,
			&elapsed, &mean); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if observed.Valid {
			if rec.ObservedAt, err = time.Parse(time.RFC3339Nano, observed.String); err != nil {
				return nil, fmt.Errorf("step %d: bad observed_at: %w", rec.Index, err)
			}
		}
		rec.Elapsed = time.Duration(elapsed) * time.Millisecond
		if err := json.Unmarshal([]byte(mean), &rec.Mean); err != nil {
			return nil, fmt.Errorf("step %d: bad mean: %w", rec.Index, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Failures, err = s.failures(ctx, runID, out[i].Index); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) failures(ctx context.Context, runID string, step int) ([]MemberFailure, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT member, error FROM member_failures WHERE run_id = ? AND step_index = ? ORDER BY member`,
		runID, step)
	if err != nil {
		return nil, fmt.Errorf("failed to query member failures: %w", err)
	}
	defer rows.Close()

	var out []MemberFailure
	for rows.Next() {
		var f MemberFailure
		if err := rows.Scan(&f.Member, &f.Error); err != nil {
			return nil, fmt.Errorf("failed to scan member failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
