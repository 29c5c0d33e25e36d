package csv

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/resampler/internal/adapter/store"
)

var _ store.SwathLoader = (*PointStore)(nil)

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestPointStore_Load(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "buoys.csv", "# buoy observations\nlatitude, longitude, sst, wave_m\n35.0, 139.5, 18.2, 1.1\n35.1, 139.6, , 0.9\n35.2, 139.7, NaN, 1.4\n")

	s := NewPointStore(dir)
	swath, err := s.LoadSwath("buoys.csv")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, swath.Shape())
	assert.Equal(t, []string{PointDim}, swath.Dims())

	lons, lats, err := swath.LonLats()
	require.NoError(t, err)
	assert.Equal(t, []float64{139.5, 139.6, 139.7}, lons)
	assert.Equal(t, []float64{35.0, 35.1, 35.2}, lats)

	cols, err := s.Columns("buoys.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"sst", "wave_m"}, cols)

	sst, err := s.LoadVariable("buoys.csv", "sst")
	require.NoError(t, err)
	assert.Equal(t, []string{PointDim}, sst.Dims())
	v := sst.Float64s()
	assert.Equal(t, 18.2, v[0])
	assert.True(t, math.IsNaN(v[1]))
	assert.True(t, math.IsNaN(v[2]))
	assert.Equal(t, 1, sst.CountFinite())

	_, err = s.LoadVariable("buoys.csv", "salinity")
	assert.ErrorContains(t, err, "salinity")
}

func TestPointStore_Errors(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "nolat.csv", "lon,value\n1,2\n")
	writeCSV(t, dir, "bad.csv", "lon,lat,value\n1,2,abc\n")
	writeCSV(t, dir, "empty.csv", "lon,lat,value\n")
	writeCSV(t, dir, "ragged.csv", "lon,lat,value\n1,2\n")

	s := NewPointStore(dir)
	tests := []struct {
		name string
		want string
	}{
		{"nolat.csv", "expected lon and lat"},
		{"bad.csv", "line 2: invalid value"},
		{"empty.csv", "no points"},
		{"ragged.csv", "failed to read CSV record"},
		{"missing.csv", "failed to open"},
		{"../etc/passwd", "invalid dataset name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.LoadSwath(tt.name)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestPointStore_ListDatasets(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", "lon,lat\n0,0\n")
	writeCSV(t, dir, "notes.txt", "hello")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

	got, err := NewPointStore(dir).ListDatasets()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv"}, got)
}
