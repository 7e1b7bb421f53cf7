// Package forward defines the fire-spread simulator interface the filter
// drives and a few deterministic implementations of it.
package forward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/banshee-data/firefront/internal/units"
	"github.com/paulmach/orb"
)

var (
	// ErrSimulationFailed marks a simulator run that produced no usable
	// perimeter.
	ErrSimulationFailed = errors.New("fire simulation failed")
	// ErrTimeout marks a simulator run cut off by its time limit.
	ErrTimeout = errors.New("fire simulation timed out")
)

// Model advances a perimeter under a constant wind for a duration.
//
// Implementations must be deterministic for identical inputs and safe to
// call from several goroutines at once. Wind direction is a compass
// bearing in degrees; speed is in m/s. The returned geometry may be any
// areal orb geometry and need not be simple.
type Model interface {
	Forward(ctx context.Context, initial perimeter.Perimeter, windSpeed, windDirection float64, duration time.Duration) (orb.Geometry, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, initial perimeter.Perimeter, windSpeed, windDirection float64, duration time.Duration) (orb.Geometry, error)

// Forward calls f.
func (f ModelFunc) Forward(ctx context.Context, initial perimeter.Perimeter, windSpeed, windDirection float64, duration time.Duration) (orb.Geometry, error) {
	return f(ctx, initial, windSpeed, windDirection, duration)
}

// Translate shifts every vertex by a fixed offset regardless of wind and
// duration.
type Translate struct {
	DX, DY float64
}

// Forward implements Model.
func (t Translate) Forward(ctx context.Context, initial perimeter.Perimeter, _, _ float64, _ time.Duration) (orb.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return initial.Translate(t.DX, t.DY).Polygon(), nil
}

// Identity returns the initial perimeter unchanged.
var Identity Model = Translate{}

// WindDrift is a simple elliptical-spread stand-in for a simulator: every
// vertex moves outward from the vertex mean at SpreadRate and the whole
// perimeter is advected downwind at WindFactor times the wind speed.
// Rates are in m/s.
type WindDrift struct {
	SpreadRate float64
	WindFactor float64
}

// Forward implements Model.
func (w WindDrift) Forward(ctx context.Context, initial perimeter.Perimeter, windSpeed, windDirection float64, duration time.Duration) (orb.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(initial) < 3 {
		return nil, fmt.Errorf("drift %d-vertex perimeter: %w", len(initial), ErrSimulationFailed)
	}
	secs := duration.Seconds()
	wx, wy := units.Wind{Speed: windSpeed, Direction: windDirection}.Components()
	dx, dy := wx*w.WindFactor*secs, wy*w.WindFactor*secs
	grow := w.SpreadRate * secs

	out := make(perimeter.Perimeter, len(initial))
	for i, v := range perimeter.OutwardVectors(initial) {
		p := initial[i]
		out[i] = orb.Point{p[0] + grow*v[0] + dx, p[1] + grow*v[1] + dy}
	}
	return out.Polygon(), nil
}

// FailWhen wraps m so that runs whose wind matches fail with
// ErrSimulationFailed. It is used to inject member failures.
func FailWhen(m Model, fail func(windSpeed, windDirection float64) bool) Model {
	return ModelFunc(func(ctx context.Context, initial perimeter.Perimeter, windSpeed, windDirection float64, duration time.Duration) (orb.Geometry, error) {
		if fail(windSpeed, windDirection) {
			return nil, fmt.Errorf("wind %.2f m/s at %.1f deg: %w", windSpeed, windDirection, ErrSimulationFailed)
		}
		return m.Forward(ctx, initial, windSpeed, windDirection, duration)
	})
}

// WithTimeout bounds every call to m by limit. A run that overruns returns
// ErrTimeout; cancellation of the caller's context is passed through as is.
// A non-positive limit returns m unchanged.
func WithTimeout(m Model, limit time.Duration) Model {
	if limit <= 0 {
		return m
	}
	type result struct {
		geom orb.Geometry
		err  error
	}
	return ModelFunc(func(ctx context.Context, initial perimeter.Perimeter, windSpeed, windDirection float64, duration time.Duration) (orb.Geometry, error) {
		runCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan result, 1)
		go func() {
			g, err := m.Forward(runCtx, initial, windSpeed, windDirection, duration)
			done <- result{g, err}
		}()

		select {
		case r := <-done:
			if r.err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("after %s: %w", limit, ErrTimeout)
			}
			return r.geom, r.err
		case <-runCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("after %s: %w", limit, ErrTimeout)
		}
	})
}
