package usecase

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/resampler/internal/adapter/store/areas"
	"go.ngs.io/resampler/internal/adapter/store/csv"
	"go.ngs.io/resampler/internal/domain"
	"go.ngs.io/resampler/internal/observability"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func floats(values []*float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}

func newTestUseCase(t *testing.T, dataDir string, registry *areas.Registry) (*ResampleUseCase, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	uc := NewResampleUseCase(Loaders{CSV: csv.NewPointStore(dataDir)}, registry, Options{
		ChunkSize: 2,
		CacheSize: 4,
		MaxPoints: 1000,
		Clock:     clockwork.NewFakeClockAt(fixedNow),
		Metrics:   metrics,
	})
	t.Cleanup(uc.Close)
	return uc, metrics
}

// Source points every 0.1 degree along the equator; targets near the first
// two and one far away.
func equatorRequest() ResampleRequest {
	return ResampleRequest{
		Source: GeometrySpec{Lons: []float64{0, 0.1, 0.2}, Lats: []float64{0, 0, 0}},
		Target: GeometrySpec{Lons: []float64{0.01, 0.11, 0.5}, Lats: []float64{0, 0, 0}},
		Data: DataSpec{
			Values: []*float64{ptr(1.0), nil, ptr(3.0)},
			Shape:  []int{3},
		},
		RadiusOfInfluence: ptr(20000.0),
	}
}

func TestExecute_Inline(t *testing.T) {
	uc, metrics := newTestUseCase(t, t.TempDir(), nil)

	resp, err := uc.Execute(context.Background(), equatorRequest())
	require.NoError(t, err)

	assert.Equal(t, []int{3}, resp.Shape)
	assert.Equal(t, "float64", resp.DType)
	assert.Nil(t, resp.FillValue)
	if diff := cmp.Diff([]float64{1, math.NaN(), math.NaN()}, floats(resp.Values), cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 20000.0, resp.Meta.RadiusM)
	assert.False(t, resp.Meta.AutoRadius)
	assert.False(t, resp.Meta.CacheHit)
	assert.Equal(t, 3, resp.Meta.SourcePoints)
	assert.Equal(t, 3, resp.Meta.TargetPoints)
	assert.InDelta(t, 2.0/3.0, resp.Meta.ValidFraction, 1e-12)
	assert.Equal(t, "2024-06-01T12:00:00Z", resp.Meta.ComputedAt)
	assert.Equal(t, int64(0), resp.Meta.DurationMS)

	again, err := uc.Execute(context.Background(), equatorRequest())
	require.NoError(t, err)
	assert.True(t, again.Meta.CacheHit)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ResamplerCache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ResamplerCache.WithLabelValues("hit")))
}

func TestExecute_MaskInvalidData(t *testing.T) {
	uc, _ := newTestUseCase(t, t.TempDir(), nil)
	req := equatorRequest()
	req.MaskInvalidData = true

	resp, err := uc.Execute(context.Background(), req)
	require.NoError(t, err)
	// The NaN source sample is skipped; the next nearest one is 0.09 degrees away.
	if diff := cmp.Diff([]float64{1, 3, math.NaN()}, floats(resp.Values), cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	req.MaskInvalidData = false
	req.Mask = &MaskSpec{Valid: []bool{false, true, true}}
	resp, err = uc.Execute(context.Background(), req)
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{math.NaN(), math.NaN(), math.NaN()}, floats(resp.Values), cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_IntegerFillWidens(t *testing.T) {
	uc, _ := newTestUseCase(t, t.TempDir(), nil)
	req := equatorRequest()
	req.Data = DataSpec{
		Values: []*float64{ptr(1.0), ptr(2.0), ptr(3.0)},
		Shape:  []int{3},
		DType:  "uint8",
	}
	req.FillValue = ptr(-1.0)

	resp, err := uc.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "int16", resp.DType)
	assert.Equal(t, []float64{1, 2, -1}, floats(resp.Values))
	require.NotNil(t, resp.FillValue)
	assert.Equal(t, -1.0, *resp.FillValue)
}

func TestExecute_AutoRadiusFallsBack(t *testing.T) {
	uc, _ := newTestUseCase(t, t.TempDir(), nil)
	req := equatorRequest()
	req.RadiusOfInfluence = nil

	resp, err := uc.Execute(context.Background(), req)
	require.NoError(t, err)
	// One-dimensional swaths have no resolution estimate.
	assert.Equal(t, 10000.0, resp.Meta.RadiusM)
	assert.True(t, resp.Meta.AutoRadius)
}

func TestExecute_ExtraDimsAndCoords(t *testing.T) {
	uc, _ := newTestUseCase(t, t.TempDir(), nil)
	req := equatorRequest()
	req.Source.Dims = []string{"obs"}
	req.Data = DataSpec{
		Values: []*float64{ptr(1.0), ptr(10.0), ptr(2.0), ptr(20.0), ptr(3.0), ptr(30.0)},
		Shape:  []int{3, 2},
		Dims:   []string{"obs", "band"},
		Coords: map[string]any{"band": []any{"red", "nir"}},
	}

	resp, err := uc.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, resp.Shape)
	assert.Equal(t, []string{"obs", "band"}, resp.Dims)
	assert.Equal(t, []any{"red", "nir"}, resp.Coords["band"])
	if diff := cmp.Diff([]float64{1, 10, 2, 20, math.NaN(), math.NaN()}, floats(resp.Values), cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_CSVDatasetOntoArea(t *testing.T) {
	dir := t.TempDir()
	content := "lon,lat,sst\n0.5,1.5,10\n1.5,1.5,11\n2.5,1.5,12\n0.5,0.5,20\n1.5,0.5,21\n2.5,0.5,22\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "grid.csv"), []byte(content), 0o644))
	registry, err := areas.NewRegistry([]areas.Definition{{
		ID:         "ll",
		Projection: "+proj=longlat +datum=WGS84 +no_defs",
		Width:      3,
		Height:     2,
		Extent:     []float64{0, 0, 3, 2},
	}})
	require.NoError(t, err)
	uc, _ := newTestUseCase(t, dir, registry)

	resp, err := uc.Execute(context.Background(), ResampleRequest{
		Source:            GeometrySpec{Dataset: &DatasetRef{File: "grid.csv"}},
		Target:            GeometrySpec{AreaID: "ll"},
		Data:              DataSpec{Dataset: &DatasetRef{Variable: "sst"}},
		RadiusOfInfluence: ptr(5000.0),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, resp.Shape)
	assert.Equal(t, []string{"y", "x"}, resp.Dims)
	assert.Equal(t, []float64{10, 11, 12, 20, 21, 22}, floats(resp.Values))
	assert.Equal(t, 1.0, resp.Meta.ValidFraction)

	list := uc.Areas()
	require.Len(t, list, 1)
	assert.Equal(t, "ll", list[0].ID)
}

func TestExecute_Errors(t *testing.T) {
	uc, metrics := newTestUseCase(t, t.TempDir(), nil)

	tests := []struct {
		name   string
		mutate func(*ResampleRequest)
		check  func(t *testing.T, err error)
	}{
		{"no source", func(r *ResampleRequest) { r.Source = GeometrySpec{} }, isInvalid},
		{"two targets", func(r *ResampleRequest) { r.Target.AreaID = "ll" }, isInvalid},
		{"no data", func(r *ResampleRequest) { r.Data = DataSpec{} }, isInvalid},
		{"negative radius", func(r *ResampleRequest) { r.RadiusOfInfluence = ptr(-5.0) }, isInvalid},
		{"both masks", func(r *ResampleRequest) {
			r.Mask = &MaskSpec{Valid: []bool{true, true, true}}
			r.MaskInvalidData = true
		}, isInvalid},
		{"bad dtype", func(r *ResampleRequest) { r.Data.DType = "complex128" }, isInvalid},
		{"unsupported file", func(r *ResampleRequest) {
			r.Source = GeometrySpec{Dataset: &DatasetRef{File: "swath.tif"}}
		}, isInvalid},
		{"too many points", func(r *ResampleRequest) {
			r.Target = GeometrySpec{Lons: make([]float64, 1001), Lats: make([]float64, 1001)}
		}, isInvalid},
		{"unknown area", func(r *ResampleRequest) { r.Target = GeometrySpec{AreaID: "nowhere"} }, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrNotFound)
		}},
		{"data shape", func(r *ResampleRequest) {
			r.Data = DataSpec{Values: []*float64{ptr(1.0), ptr(2.0)}, Shape: []int{2}}
		}, isShapeMismatch},
		{"mask shape", func(r *ResampleRequest) { r.Mask = &MaskSpec{Valid: []bool{true}} }, isShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := equatorRequest()
			tt.mutate(&req)
			_, err := uc.Execute(context.Background(), req)
			require.Error(t, err)
			assert.True(t, IsClientError(err), "client error expected, got %v", err)
			tt.check(t, err)
		})
	}
	assert.Equal(t, float64(len(tests)), testutil.ToFloat64(metrics.Requests.WithLabelValues("invalid")))
}

func isInvalid(t *testing.T, err error) {
	t.Helper()
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func isShapeMismatch(t *testing.T, err error) {
	t.Helper()
	var sm *domain.ShapeMismatchError
	assert.True(t, errors.As(err, &sm), "shape mismatch expected, got %v", err)
	assert.True(t, strings.Contains(err.Error(), "shape"))
}

func TestExecute_CanceledContext(t *testing.T) {
	uc, metrics := newTestUseCase(t, t.TempDir(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := uc.Execute(ctx, equatorRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsClientError(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Requests.WithLabelValues("error")))

	// The resampler stays cached and the cancellation is not replayed.
	resp, err := uc.Execute(context.Background(), equatorRequest())
	require.NoError(t, err)
	assert.True(t, resp.Meta.CacheHit)
	if diff := cmp.Diff([]float64{1, math.NaN(), math.NaN()}, floats(resp.Values), cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_MixedRadiiKeepSeparateMappings(t *testing.T) {
	uc, metrics := newTestUseCase(t, t.TempDir(), nil)

	wide := equatorRequest()
	narrow := equatorRequest()
	narrow.RadiusOfInfluence = ptr(500.0)

	first, err := uc.Execute(context.Background(), wide)
	require.NoError(t, err)
	tight, err := uc.Execute(context.Background(), narrow)
	require.NoError(t, err)
	again, err := uc.Execute(context.Background(), wide)
	require.NoError(t, err)

	assert.False(t, first.Meta.CacheHit)
	assert.False(t, tight.Meta.CacheHit)
	assert.True(t, again.Meta.CacheHit)

	assert.Equal(t, 0.0, tight.Meta.ValidFraction)
	assert.Equal(t, 500.0, tight.Meta.RadiusM)
	assert.InDelta(t, 2.0/3.0, again.Meta.ValidFraction, 1e-12)
	assert.Equal(t, 20000.0, again.Meta.RadiusM)
	if diff := cmp.Diff(floats(first.Values), floats(again.Values), cmpopts.EquateNaNs()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ResamplerCache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ResamplerCache.WithLabelValues("hit")))
}
