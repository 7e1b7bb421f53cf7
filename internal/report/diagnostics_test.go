package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/firefront/internal/runstore"
)

func samplePoints() []StepPoint {
	return []StepPoint{
		{Index: 0, RMS: 12.5, AreaDifference: 900, CentroidDistance: 10, Members: 50},
		{Index: 1, RMS: 6.1, AreaDifference: 410, CentroidDistance: 4, Members: 50, Failed: 2},
		{Index: 2, RMS: 3.2, AreaDifference: 120, CentroidDistance: 1.5, Members: 50},
	}
}

func TestWriteDiagnostics(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteDiagnostics(&buf, "run-1", samplePoints()))

	html := buf.String()
	assert.Contains(t, html, "Analysis error")
	assert.Contains(t, html, "Symmetric area difference")
	assert.Contains(t, html, "Failed ensemble members")
	assert.Contains(t, html, "run run-1, 3 steps")
}

func TestWriteDiagnosticsEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.Error(t, WriteDiagnostics(&buf, "run-1", nil))
	assert.Zero(t, buf.Len())
}

func TestSaveDiagnostics(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "diag.html")
	require.NoError(t, SaveDiagnostics(path, "run-2", samplePoints()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<html")
}

func TestPointsFromRecords(t *testing.T) {
	t.Parallel()

	recs := []runstore.StepRecord{
		{RunID: "r", Index: 3, Members: 20, Failed: 1, RMS: 2, AreaDifference: 7, CentroidDistance: 0.5, Elapsed: time.Second},
	}
	got := PointsFromRecords(recs)
	assert.Equal(t, []StepPoint{{Index: 3, RMS: 2, AreaDifference: 7, CentroidDistance: 0.5, Members: 20, Failed: 1}}, got)
}
