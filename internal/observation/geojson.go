package observation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/banshee-data/firefront/internal/validity"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature property keys.
const (
	PropSeriesID  = "series_id"
	PropTimeIndex = "time_index"
	PropTimestamp = "timestamp"
)

const maxFileSize = 64 * 1024 * 1024 // 64MB

// ParseGeoJSON reads a FeatureCollection of observed perimeters. Each
// feature's geometry is repaired to its largest simple polygon. Features
// without a series_id property fall back to defaultSeries.
func ParseGeoJSON(data []byte, defaultSeries string) ([]Observation, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}

	obs := make([]Observation, 0, len(fc.Features))
	for i, f := range fc.Features {
		p, err := validity.Repair(f.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		o := Observation{
			SeriesID:  f.Properties.MustString(PropSeriesID, defaultSeries),
			Index:     f.Properties.MustInt(PropTimeIndex, i),
			Perimeter: p,
		}
		if ts := f.Properties.MustString(PropTimestamp, ""); ts != "" {
			t, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return nil, fmt.Errorf("feature %d: invalid timestamp %q: %w", i, ts, err)
			}
			o.Timestamp = t
		}
		obs = append(obs, o)
	}
	return obs, nil
}

// LoadGeoJSON reads a .geojson or .json file into a MemorySource.
func LoadGeoJSON(path, defaultSeries string) (*MemorySource, error) {
	cleanPath := filepath.Clean(path)
	switch ext := filepath.Ext(cleanPath); ext {
	case ".geojson", ".json":
	default:
		return nil, fmt.Errorf("observation file must have .geojson or .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat observation file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("observation file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read observation file: %w", err)
	}
	obs, err := ParseGeoJSON(data, defaultSeries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return NewMemorySource(obs...), nil
}

// Feature converts a perimeter to a GeoJSON polygon feature carrying the
// series, index and, when set, timestamp properties.
func Feature(o Observation) *geojson.Feature {
	f := geojson.NewFeature(o.Perimeter.Polygon())
	f.Properties[PropSeriesID] = o.SeriesID
	f.Properties[PropTimeIndex] = o.Index
	if !o.Timestamp.IsZero() {
		f.Properties[PropTimestamp] = o.Timestamp.UTC().Format(time.RFC3339)
	}
	return f
}

// EncodeGeoJSON writes observations as a FeatureCollection. extra, when
// non-nil, is called for each feature so callers can attach properties.
func EncodeGeoJSON(obs []Observation, extra func(i int, props geojson.Properties)) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for i, o := range obs {
		f := Feature(o)
		if extra != nil {
			extra(i, f.Properties)
		}
		fc.Append(f)
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	return data, nil
}

// Bound returns the bounding box of all observations in a series.
func Bound(obs []Observation) orb.Bound {
	var b orb.Bound
	for i, o := range obs {
		pb := o.Perimeter.Ring().Bound()
		if i == 0 {
			b = pb
			continue
		}
		b = b.Union(pb)
	}
	return b
}

// Perimeters extracts the perimeters of obs in order.
func Perimeters(obs []Observation) []perimeter.Perimeter {
	out := make([]perimeter.Perimeter, len(obs))
	for i, o := range obs {
		out[i] = o.Perimeter
	}
	return out
}
