// Package observation supplies observed fire perimeters to the filter.
package observation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/firefront/internal/perimeter"
)

// ErrNotFound is returned for an unknown series or time index.
var ErrNotFound = errors.New("observation not found")

// Observation is one observed perimeter in a time series.
type Observation struct {
	SeriesID  string
	Index     int
	Timestamp time.Time
	Perimeter perimeter.Perimeter
}

// Source looks up observations by series and time index.
type Source interface {
	Observation(ctx context.Context, seriesID string, index int) (Observation, error)
	// Indices lists the time indices available for a series in ascending
	// order.
	Indices(ctx context.Context, seriesID string) ([]int, error)
}

// MemorySource is an in-memory Source, safe for concurrent use.
type MemorySource struct {
	mu     sync.RWMutex
	series map[string][]Observation
}

// NewMemorySource returns a source holding obs.
func NewMemorySource(obs ...Observation) *MemorySource {
	s := &MemorySource{series: make(map[string][]Observation)}
	for _, o := range obs {
		s.Add(o)
	}
	return s
}

// Add stores o, replacing any observation with the same series and index.
func (s *MemorySource) Add(o Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.series[o.SeriesID]
	i := sort.Search(len(list), func(i int) bool { return list[i].Index >= o.Index })
	if i < len(list) && list[i].Index == o.Index {
		list[i] = o
		return
	}
	list = append(list, Observation{})
	copy(list[i+1:], list[i:])
	list[i] = o
	s.series[o.SeriesID] = list
}

// Observation implements Source.
func (s *MemorySource) Observation(ctx context.Context, seriesID string, index int) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.series[seriesID]
	if !ok {
		return Observation{}, fmt.Errorf("series %q: %w", seriesID, ErrNotFound)
	}
	i := sort.Search(len(list), func(i int) bool { return list[i].Index >= index })
	if i == len(list) || list[i].Index != index {
		return Observation{}, fmt.Errorf("series %q index %d: %w", seriesID, index, ErrNotFound)
	}
	o := list[i]
	o.Perimeter = o.Perimeter.Clone()
	return o, nil
}

// Indices implements Source.
func (s *MemorySource) Indices(ctx context.Context, seriesID string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.series[seriesID]
	if !ok {
		return nil, fmt.Errorf("series %q: %w", seriesID, ErrNotFound)
	}
	out := make([]int, len(list))
	for i, o := range list {
		out[i] = o.Index
	}
	return out, nil
}

// Series lists the series IDs held by the source, sorted.
func (s *MemorySource) Series() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.series))
	for id := range s.series {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
