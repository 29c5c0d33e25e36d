package ncfile

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/fhs/go-netcdf/netcdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/resampler/internal/domain"
)

// helper to create a regular 2x3 lat/lon grid with a float32 "sst" variable
// whose _FillValue is -999.
func createGridNC(t *testing.T, path string, sst []float32) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	defer f.Close()

	latDim, _ := f.AddDim("lat", 2)
	lonDim, _ := f.AddDim("lon", 3)
	vlat, _ := f.AddVar("lat", netcdf.DOUBLE, []netcdf.Dim{latDim})
	vlon, _ := f.AddVar("lon", netcdf.DOUBLE, []netcdf.Dim{lonDim})
	vsst, _ := f.AddVar("sst", netcdf.FLOAT, []netcdf.Dim{latDim, lonDim})
	if err := vsst.Attr("_FillValue").WriteFloat32s([]float32{-999}); err != nil {
		t.Fatalf("write fill: %v", err)
	}

	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}

	if err := vlat.WriteFloat64s([]float64{35.0, 36.0}); err != nil {
		t.Fatalf("write lat: %v", err)
	}
	if err := vlon.WriteFloat64s([]float64{139.0, 140.0, 141.0}); err != nil {
		t.Fatalf("write lon: %v", err)
	}
	if err := vsst.WriteFloat32s(sst); err != nil {
		t.Fatalf("write sst: %v", err)
	}
}

// helper to create a 1-D point swath with an int16 "flag" variable.
func createPointsNC(t *testing.T, path string) {
	t.Helper()
	f, err := netcdf.CreateFile(path, netcdf.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	defer f.Close()

	obs, _ := f.AddDim("obs", 3)
	vlat, _ := f.AddVar("latitude", netcdf.DOUBLE, []netcdf.Dim{obs})
	vlon, _ := f.AddVar("longitude", netcdf.DOUBLE, []netcdf.Dim{obs})
	vflag, _ := f.AddVar("flag", netcdf.SHORT, []netcdf.Dim{obs})
	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}
	_ = vlat.WriteFloat64s([]float64{0, 0.1, 0.2})
	_ = vlon.WriteFloat64s([]float64{10, 10, 10})
	_ = vflag.WriteInt16s([]int16{1, 2, 3})
}

func TestLoadSwath_RegularGridExpands(t *testing.T) {
	dir := t.TempDir()
	createGridNC(t, filepath.Join(dir, "grid.nc"), []float32{1, 2, 3, 4, 5, 6})

	s := NewStore(dir)
	swath, err := s.LoadSwath("grid.nc")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, swath.Shape())
	assert.Equal(t, []string{"lat", "lon"}, swath.Dims())

	lons, lats, err := swath.LonLats()
	require.NoError(t, err)
	assert.Equal(t, []float64{139, 140, 141, 139, 140, 141}, lons)
	assert.Equal(t, []float64{35, 35, 35, 36, 36, 36}, lats)

	again, err := s.LoadSwath("grid.nc")
	require.NoError(t, err)
	assert.Same(t, swath, again)
}

func TestLoadSwath_PointsUseSharedDim(t *testing.T) {
	dir := t.TempDir()
	createPointsNC(t, filepath.Join(dir, "points.nc"))

	s := NewStore(dir)
	swath, err := s.LoadSwath("points.nc")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, swath.Shape())
	assert.Equal(t, []string{"obs"}, swath.Dims())

	flag, err := s.LoadVariable("points.nc", "flag")
	require.NoError(t, err)
	assert.Equal(t, domain.Int16, flag.DType())
	v, err := domain.Values[int16](flag)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3}, v)
}

func TestLoadVariable_FillBecomesNaN(t *testing.T) {
	dir := t.TempDir()
	createGridNC(t, filepath.Join(dir, "grid.nc"), []float32{1, -999, 3, 4, 5, -999})

	arr, err := NewStore(dir).LoadVariable("grid.nc", "sst")
	require.NoError(t, err)
	assert.Equal(t, domain.Float32, arr.DType())
	assert.Equal(t, []string{"lat", "lon"}, arr.Dims())
	v, err := domain.Values[float32](arr)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(v[1])))
	assert.True(t, math.IsNaN(float64(v[5])))
	assert.Equal(t, float32(4), v[3])
	assert.Equal(t, 4, arr.CountFinite())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	_, err := s.LoadSwath("missing.nc")
	assert.Error(t, err)

	_, err = s.LoadSwath("../outside.nc")
	assert.ErrorContains(t, err, "outside the data directory")

	createGridNC(t, filepath.Join(dir, "grid.nc"), []float32{1, 2, 3, 4, 5, 6})
	_, err = s.LoadVariable("grid.nc", "chlorophyll")
	assert.ErrorContains(t, err, "chlorophyll")

	custom := NewStoreWithConfig(dir, FileConfig{LonVarNames: []string{"nav_lon"}, LatVarNames: []string{"nav_lat"}})
	_, err = custom.LoadSwath("grid.nc")
	assert.ErrorContains(t, err, "longitude variable not found")
}

func TestWriteResult_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	target, err := domain.NewArea("ll", "", "+proj=longlat +datum=WGS84 +no_defs", 3, 2, [4]float64{0, 0, 3, 2})
	require.NoError(t, err)

	arr := domain.MustArray([]int16{1, 2, 3, 4, 5, 32767}, []int{2, 3}, "y", "x")
	out := filepath.Join(dir, "out", "result.nc")
	require.NoError(t, WriteResult(out, "flag", arr, target, 32767))

	s := NewStore(dir)
	swath, err := s.LoadSwath(out)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, swath.Shape())
	assert.Equal(t, []string{"y", "x"}, swath.Dims())
	lons, _, err := swath.LonLats()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 1.5, 2.5, 0.5, 1.5, 2.5}, lons, 1e-6)

	got, err := s.LoadVariable(out, "flag")
	require.NoError(t, err)
	assert.Equal(t, domain.Int16, got.DType())
	v, err := domain.Values[int16](got)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4, 5, 32767}, v)
}

func TestWriteResult_ExtraDimsAndFloatFill(t *testing.T) {
	dir := t.TempDir()
	target, err := domain.NewSwath([]float64{0, 1}, []float64{0, 0}, []int{2}, domain.WithDims("point"))
	require.NoError(t, err)

	arr := domain.MustArray([]float64{1, math.NaN(), 3, 4}, []int{2, 2}, "point", "band")
	out := filepath.Join(dir, "bands.nc")
	require.NoError(t, WriteResult(out, "rad", arr, target, math.NaN()))

	got, err := NewStore(dir).LoadVariable(out, "rad")
	require.NoError(t, err)
	assert.Equal(t, []string{"point", "band"}, got.Dims())
	assert.Equal(t, 3, got.CountFinite())
}

func TestWriteResult_ConflictingDimSize(t *testing.T) {
	target, err := domain.NewSwath([]float64{0, 1}, []float64{0, 0}, []int{2}, domain.WithDims("point"))
	require.NoError(t, err)
	arr := domain.MustArray([]float64{1, 2, 3}, []int{3}, "point")
	err = WriteResult(filepath.Join(t.TempDir(), "bad.nc"), "v", arr, target, math.NaN())
	assert.ErrorContains(t, err, "dimension point")
}
