package observation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/firefront/internal/perimeter"
	"github.com/banshee-data/firefront/internal/testutil"
	"github.com/banshee-data/firefront/internal/validity"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCollection = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"series_id": "ridge", "time_index": 1, "timestamp": "2026-08-01T12:30:00Z"},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[20,0],[20,20],[0,20],[0,0]]]}
    },
    {
      "type": "Feature",
      "properties": {"series_id": "ridge", "time_index": 0},
      "geometry": {"type": "MultiPolygon", "coordinates": [
        [[[0,0],[1,0],[1,1],[0,0]]],
        [[[0,0],[0,10],[10,10],[10,0],[0,0]]]
      ]}
    },
    {
      "type": "Feature",
      "properties": {},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[4,4],[4,-4],[-2,2],[-2,-2],[0,0]]]}
    }
  ]
}`

func TestParseGeoJSON(t *testing.T) {
	t.Parallel()

	obs, err := ParseGeoJSON([]byte(sampleCollection), "default")
	require.NoError(t, err)
	require.Len(t, obs, 3)

	assert.Equal(t, "ridge", obs[0].SeriesID)
	assert.Equal(t, 1, obs[0].Index)
	assert.Equal(t, time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC), obs[0].Timestamp)
	assert.InDelta(t, 400.0, obs[0].Perimeter.Area(), 1e-9)

	// largest part of the multipolygon, reoriented counter-clockwise
	assert.Equal(t, 0, obs[1].Index)
	assert.True(t, obs[1].Timestamp.IsZero())
	assert.InDelta(t, 100.0, obs[1].Perimeter.Area(), 1e-9)
	assert.Equal(t, orb.CCW, obs[1].Perimeter.Orientation())

	// defaults and self-intersection repair
	assert.Equal(t, "default", obs[2].SeriesID)
	assert.Equal(t, 2, obs[2].Index)
	assert.InDelta(t, 16.0, obs[2].Perimeter.Area(), 1e-9)
}

func TestParseGeoJSONErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseGeoJSON([]byte(`not json`), "s")
	assert.Error(t, err)

	_, err = ParseGeoJSON([]byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}]}`), "s")
	assert.ErrorIs(t, err, validity.ErrDegenerateGeometry)

	_, err = ParseGeoJSON([]byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"timestamp":"yesterday"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`), "s")
	assert.ErrorContains(t, err, "invalid timestamp")
}

func TestEncodeGeoJSONRoundTrip(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 7, 4, 8, 0, 0, 0, time.UTC)
	in := []Observation{
		{SeriesID: "s", Index: 0, Timestamp: ts, Perimeter: perimeter.Perimeter(testutil.Square(0, 0, 10, 8))},
		{SeriesID: "s", Index: 1, Perimeter: perimeter.Perimeter(testutil.RegularPolygon(5, 5, 20, 12))},
	}

	data, err := EncodeGeoJSON(in, func(i int, props geojson.Properties) {
		props["rms"] = float64(i) + 0.5
	})
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, 1.5, fc.Features[1].Properties.MustFloat64("rms"))

	out, err := ParseGeoJSON(data, "")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, ts, out[0].Timestamp)
	for i := range in {
		assert.Equal(t, in[i].SeriesID, out[i].SeriesID)
		assert.Equal(t, in[i].Index, out[i].Index)
		testutil.AssertPointsClose(t, in[i].Perimeter, out[i].Perimeter, 1e-9)
	}
}

func TestLoadGeoJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "obs.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sampleCollection), 0o644))

	src, err := LoadGeoJSON(path, "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "ridge"}, src.Series())

	_, err = LoadGeoJSON(filepath.Join(dir, "obs.txt"), "default")
	assert.ErrorContains(t, err, "extension")

	_, err = LoadGeoJSON(filepath.Join(dir, "missing.geojson"), "default")
	assert.Error(t, err)
}

func TestBound(t *testing.T) {
	t.Parallel()

	obs := []Observation{
		{Perimeter: perimeter.Perimeter(testutil.Square(0, 0, 2, 4))},
		{Perimeter: perimeter.Perimeter(testutil.Square(10, 10, 2, 4))},
	}
	b := Bound(obs)
	assert.Equal(t, orb.Point{-1, -1}, b.Min)
	assert.Equal(t, orb.Point{11, 11}, b.Max)
	assert.Len(t, Perimeters(obs), 2)
}
