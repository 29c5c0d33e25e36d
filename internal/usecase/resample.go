package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"
	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"

	"go.ngs.io/resampler/internal/adapter/store"
	"go.ngs.io/resampler/internal/adapter/store/areas"
	"go.ngs.io/resampler/internal/domain"
	"go.ngs.io/resampler/internal/lazy"
	"go.ngs.io/resampler/internal/observability"
	"go.ngs.io/resampler/internal/resample"
)

var (
	// ErrInvalidRequest marks errors caused by the request content.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound marks references to unknown areas.
	ErrNotFound = errors.New("not found")
)

// ResampleRequest encapsulates a resample request.
type ResampleRequest struct {
	Source GeometrySpec `json:"source"`
	Target GeometrySpec `json:"target"`
	Data   DataSpec     `json:"data"`

	// RadiusOfInfluence in metres; estimated from the geometries if nil.
	RadiusOfInfluence *float64 `json:"radius_of_influence,omitempty"`
	FillValue         *float64 `json:"fill_value,omitempty"`

	// Mask marks usable source samples (mutually exclusive with MaskInvalidData).
	Mask *MaskSpec `json:"mask,omitempty"`
	// MaskInvalidData excludes source samples whose data is NaN.
	MaskInvalidData bool `json:"mask_invalid_data,omitempty"`
}

// GeometrySpec selects a geometry: inline lon/lat, a dataset file, a
// registered area or an inline area definition.
type GeometrySpec struct {
	Lons  []float64 `json:"lons,omitempty"`
	Lats  []float64 `json:"lats,omitempty"`
	Shape []int     `json:"shape,omitempty"`
	Dims  []string  `json:"dims,omitempty"`

	Dataset *DatasetRef       `json:"dataset,omitempty"`
	AreaID  string            `json:"area_id,omitempty"`
	Area    *areas.Definition `json:"area,omitempty"`
}

// DatasetRef names a file under the data directory and optionally one of
// its variables.
type DatasetRef struct {
	File     string `json:"file"`
	Variable string `json:"variable,omitempty"`
}

// DataSpec is the array to resample. Null values are NaN.
type DataSpec struct {
	Values []*float64     `json:"values,omitempty"`
	Shape  []int          `json:"shape,omitempty"`
	Dims   []string       `json:"dims,omitempty"`
	DType  string         `json:"dtype,omitempty"`
	Coords map[string]any `json:"coords,omitempty"`

	Dataset *DatasetRef `json:"dataset,omitempty"`
}

// MaskSpec is a source validity mask in source row-major order.
type MaskSpec struct {
	Valid []bool `json:"valid"`
}

// ResampleResponse contains the resampled array.
type ResampleResponse struct {
	Shape     []int          `json:"shape"`
	Dims      []string       `json:"dims,omitempty"`
	DType     string         `json:"dtype"`
	Coords    map[string]any `json:"coords,omitempty"`
	Values    []*float64     `json:"values"`
	FillValue *float64       `json:"fill_value"`
	Meta      ResampleMeta   `json:"meta"`
}

// ResampleMeta describes how a response was computed.
type ResampleMeta struct {
	RadiusM       float64 `json:"radius_m"`
	AutoRadius    bool    `json:"auto_radius"`
	CacheHit      bool    `json:"cache_hit"`
	SourcePoints  int     `json:"source_points"`
	TargetPoints  int     `json:"target_points"`
	ValidFraction float64 `json:"valid_fraction"`
	ComputedAt    string  `json:"computed_at"`
	DurationMS    int64   `json:"duration_ms"`
}

// Loaders are the dataset stores, chosen by file extension.
type Loaders struct {
	NetCDF store.SwathLoader
	CSV    store.SwathLoader
}

// Options configure a ResampleUseCase. Zero values select defaults.
type Options struct {
	Scheduler *lazy.Scheduler
	ChunkSize int
	CacheSize int
	CacheTTL  time.Duration
	MaxPoints int
	Clock     clockwork.Clock
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// ResampleUseCase orchestrates resampling requests. Resamplers are cached
// by geometry fingerprints so repeated requests reuse neighbour mappings.
type ResampleUseCase struct {
	loaders   Loaders
	registry  *areas.Registry
	scheduler *lazy.Scheduler
	chunkSize int
	ttl       time.Duration
	maxPoints int
	clock     clockwork.Clock
	metrics   *observability.Metrics
	logger    *slog.Logger

	cache    *ccache.Cache[*resample.NearestNeighbor]
	inflight singleflight.Group
}

// NewResampleUseCase creates a new resample use case. registry may be nil.
func NewResampleUseCase(loaders Loaders, registry *areas.Registry, opts Options) *ResampleUseCase {
	uc := &ResampleUseCase{
		loaders:   loaders,
		registry:  registry,
		scheduler: opts.Scheduler,
		chunkSize: opts.ChunkSize,
		ttl:       opts.CacheTTL,
		maxPoints: opts.MaxPoints,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if uc.scheduler == nil {
		uc.scheduler = lazy.NewScheduler(0)
	}
	if uc.chunkSize <= 0 {
		uc.chunkSize = resample.DefaultChunkSize
	}
	if uc.ttl <= 0 {
		uc.ttl = 30 * time.Minute
	}
	if uc.clock == nil {
		uc.clock = clockwork.NewRealClock()
	}
	if uc.logger == nil {
		uc.logger = slog.Default()
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 64
	}
	uc.cache = ccache.New(ccache.Configure[*resample.NearestNeighbor]().MaxSize(int64(size)).ItemsToPrune(1))
	return uc
}

// Close stops the cache's background worker.
func (uc *ResampleUseCase) Close() {
	uc.cache.Stop()
}

// Scheduler returns the scheduler shared by every cached resampler.
func (uc *ResampleUseCase) Scheduler() *lazy.Scheduler { return uc.scheduler }

// Areas lists the registered target areas.
func (uc *ResampleUseCase) Areas() []areas.Definition {
	if uc.registry == nil {
		return []areas.Definition{}
	}
	return uc.registry.List()
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Validate checks that the request is well formed.
func (r *ResampleRequest) Validate(maxPoints int) error {
	if err := r.Source.validate("source", maxPoints); err != nil {
		return err
	}
	if err := r.Target.validate("target", maxPoints); err != nil {
		return err
	}
	hasValues := len(r.Data.Values) > 0
	hasDataset := r.Data.Dataset != nil
	if hasValues == hasDataset {
		return invalidf("data needs exactly one of values or dataset")
	}
	if hasDataset && r.Data.Dataset.Variable == "" {
		return invalidf("data dataset needs a variable")
	}
	if hasDataset && r.Data.Dataset.File == "" && r.Source.Dataset == nil {
		return invalidf("data dataset needs a file when the source is inline")
	}
	if hasValues && len(r.Data.Shape) == 0 {
		return invalidf("data shape is required with values")
	}

	if roi := r.RadiusOfInfluence; roi != nil && (math.IsNaN(*roi) || math.IsInf(*roi, 0) || *roi <= 0) {
		return invalidf("radius_of_influence must be a positive number of metres")
	}
	if r.Mask != nil && r.MaskInvalidData {
		return invalidf("mask and mask_invalid_data are mutually exclusive")
	}
	return nil
}

func (g *GeometrySpec) validate(role string, maxPoints int) error {
	kinds := 0
	if len(g.Lons) > 0 || len(g.Lats) > 0 {
		kinds++
		if maxPoints > 0 && len(g.Lons) > maxPoints {
			return invalidf("%s has %d points, at most %d allowed", role, len(g.Lons), maxPoints)
		}
	}
	if g.Dataset != nil {
		kinds++
		if g.Dataset.File == "" {
			return invalidf("%s dataset needs a file", role)
		}
	}
	if g.AreaID != "" {
		kinds++
	}
	if g.Area != nil {
		kinds++
		if maxPoints > 0 && g.Area.Width*g.Area.Height > maxPoints {
			return invalidf("%s has %d points, at most %d allowed", role, g.Area.Width*g.Area.Height, maxPoints)
		}
	}
	if kinds != 1 {
		return invalidf("%s needs exactly one of lons/lats, dataset, area_id or area", role)
	}
	return nil
}

// Execute resamples the request's data onto its target geometry.
func (uc *ResampleUseCase) Execute(ctx context.Context, req ResampleRequest) (*ResampleResponse, error) {
	start := uc.clock.Now()
	resp, err := uc.execute(ctx, req, start)
	uc.observe(start, resp, err)
	return resp, err
}

func (uc *ResampleUseCase) execute(ctx context.Context, req ResampleRequest, start time.Time) (*ResampleResponse, error) {
	if err := req.Validate(uc.maxPoints); err != nil {
		return nil, err
	}

	src, err := uc.resolveGeometry(req.Source, "source")
	if err != nil {
		return nil, err
	}
	dst, err := uc.resolveGeometry(req.Target, "target")
	if err != nil {
		return nil, err
	}
	data, err := uc.resolveData(req.Data, req.Source)
	if err != nil {
		return nil, err
	}

	var mask *domain.Mask
	switch {
	case req.Mask != nil:
		if mask, err = domain.NewMask(req.Mask.Valid, src.Shape(), src.Dims()...); err != nil {
			return nil, &domain.ShapeMismatchError{Subject: "mask", Want: src.Shape(), Got: []int{len(req.Mask.Valid)}}
		}
	case req.MaskInvalidData:
		mask = domain.MaskFinite(data)
	}

	nn, hit, err := uc.resampler(src, dst, req.RadiusOfInfluence, mask)
	if err != nil {
		return nil, err
	}

	mapping, err := nn.Precompute(resample.PrecomputeParams{RadiusOfInfluence: req.RadiusOfInfluence, Mask: mask})
	if err != nil {
		return nil, err
	}
	result, err := nn.ResampleWith(mapping, data, req.FillValue)
	if err != nil {
		return nil, err
	}

	out, err := result.Materialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resample: %w", err)
	}
	arrays, err := mapping.Materialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute neighbours: %w", err)
	}
	radius, err := mapping.Radius(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve radius: %w", err)
	}

	now := uc.clock.Now()
	resp := &ResampleResponse{
		Shape:     result.Shape(),
		Dims:      result.Dims(),
		DType:     result.DType().String(),
		Coords:    result.Coords(),
		Values:    nullable(out.Float64s()),
		FillValue: nullableOne(result.FillValue()),
		Meta: ResampleMeta{
			RadiusM:       radius,
			AutoRadius:    req.RadiusOfInfluence == nil,
			CacheHit:      hit,
			SourcePoints:  domain.Size(src),
			TargetPoints:  domain.Size(dst),
			ValidFraction: arrays.ValidFraction(),
			ComputedAt:    now.UTC().Format(time.RFC3339),
			DurationMS:    now.Sub(start).Milliseconds(),
		},
	}
	return resp, nil
}

// resamplerKey identifies a resampler by its geometries and the parameters
// of the one mapping it holds.
func resamplerKey(src, dst domain.Geometry, radius *float64, mask *domain.Mask) (string, error) {
	fs, err := domain.Fingerprint(src)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint source: %w", err)
	}
	fd, err := domain.Fingerprint(dst)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint target: %w", err)
	}
	roi := "auto"
	if radius != nil {
		roi = strconv.FormatFloat(*radius, 'g', -1, 64)
	}
	masked := "-"
	if mask != nil {
		masked = fmt.Sprintf("%016x", xxhash.Sum64(mask.Bytes()))
	}
	return fmt.Sprintf("%016x:%016x:%s:%s", fs, fd, roi, masked), nil
}

// resampler returns the cached resampler for (src, dst) and the mapping
// parameters, building it once when concurrent requests miss together.
func (uc *ResampleUseCase) resampler(src, dst domain.Geometry, radius *float64, mask *domain.Mask) (*resample.NearestNeighbor, bool, error) {
	key, err := resamplerKey(src, dst, radius, mask)
	if err != nil {
		return nil, false, err
	}

	if item := uc.cache.Get(key); item != nil && !item.Expired() {
		uc.countCache("hit")
		return item.Value(), true, nil
	}
	uc.countCache("miss")

	v, err, _ := uc.inflight.Do(key, func() (any, error) {
		if item := uc.cache.Get(key); item != nil && !item.Expired() {
			return item.Value(), nil
		}
		nn, err := resample.NewNearestNeighbor(src, dst,
			resample.WithScheduler(uc.scheduler),
			resample.WithChunkSize(uc.chunkSize),
			resample.WithLogger(uc.logger))
		if err != nil {
			return nil, err
		}
		uc.cache.Set(key, nn, uc.ttl)
		uc.logger.Debug("cached resampler", "key", key, "source_shape", src.Shape(), "target_shape", dst.Shape())
		return nn, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*resample.NearestNeighbor), false, nil
}

func (uc *ResampleUseCase) resolveGeometry(g GeometrySpec, role string) (domain.Geometry, error) {
	switch {
	case g.Dataset != nil:
		loader, err := uc.loaderFor(g.Dataset.File)
		if err != nil {
			return nil, err
		}
		swath, err := loader.LoadSwath(g.Dataset.File)
		if err != nil {
			return nil, fmt.Errorf("%w: %s dataset: %v", ErrInvalidRequest, role, err)
		}
		return swath, nil
	case g.AreaID != "":
		if uc.registry == nil {
			return nil, fmt.Errorf("%w: area %s (no area registry configured)", ErrNotFound, g.AreaID)
		}
		a, ok := uc.registry.Get(g.AreaID)
		if !ok {
			return nil, fmt.Errorf("%w: area %s", ErrNotFound, g.AreaID)
		}
		return a, nil
	case g.Area != nil:
		reg, err := areas.NewRegistry([]areas.Definition{*g.Area})
		if err != nil {
			return nil, fmt.Errorf("%w: %s area: %v", ErrInvalidRequest, role, err)
		}
		a, _ := reg.Get(g.Area.ID)
		return a, nil
	}

	shape := g.Shape
	if len(shape) == 0 {
		shape = []int{len(g.Lons)}
	}
	var opts []domain.GeometryOption
	if g.Dims != nil {
		opts = append(opts, domain.WithDims(g.Dims...))
	}
	swath, err := domain.NewSwath(g.Lons, g.Lats, shape, opts...)
	if err != nil {
		if domain.IsShapeMismatch(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRequest, role, err)
	}
	return swath, nil
}

func (uc *ResampleUseCase) resolveData(d DataSpec, source GeometrySpec) (*domain.Array, error) {
	if d.Dataset != nil {
		file := d.Dataset.File
		if file == "" {
			file = source.Dataset.File
		}
		loader, err := uc.loaderFor(file)
		if err != nil {
			return nil, err
		}
		arr, err := loader.LoadVariable(file, d.Dataset.Variable)
		if err != nil {
			return nil, fmt.Errorf("%w: data dataset: %v", ErrInvalidRequest, err)
		}
		if len(d.Coords) > 0 {
			arr = arr.WithCoords(d.Coords)
		}
		return arr, nil
	}

	dt := domain.Float64
	if d.DType != "" {
		var err error
		if dt, err = domain.ParseDType(d.DType); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	values := make([]float64, len(d.Values))
	for i, v := range d.Values {
		if v == nil {
			values[i] = math.NaN()
			continue
		}
		values[i] = *v
	}
	arr, err := domain.NewArrayFromFloat64s(dt, values, d.Shape, d.Dims...)
	if err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrInvalidRequest, err)
	}
	if len(d.Coords) > 0 {
		arr = arr.WithCoords(d.Coords)
	}
	return arr, nil
}

func (uc *ResampleUseCase) loaderFor(file string) (store.SwathLoader, error) {
	var loader store.SwathLoader
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		loader = uc.loaders.CSV
	case ".nc", ".nc4", ".netcdf":
		loader = uc.loaders.NetCDF
	default:
		return nil, invalidf("unsupported dataset file %q (expected .nc or .csv)", file)
	}
	if loader == nil {
		return nil, invalidf("no loader configured for %q", file)
	}
	return loader, nil
}

func (uc *ResampleUseCase) countCache(result string) {
	if uc.metrics != nil {
		uc.metrics.ResamplerCache.WithLabelValues(result).Inc()
	}
}

func (uc *ResampleUseCase) observe(start time.Time, resp *ResampleResponse, err error) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.RequestDuration.Observe(uc.clock.Since(start).Seconds())
	switch {
	case err == nil:
		uc.metrics.Requests.WithLabelValues("ok").Inc()
		uc.metrics.TargetPoints.Observe(float64(resp.Meta.TargetPoints))
		uc.metrics.ValidFraction.Observe(resp.Meta.ValidFraction)
	case IsClientError(err):
		uc.metrics.Requests.WithLabelValues("invalid").Inc()
	default:
		uc.metrics.Requests.WithLabelValues("error").Inc()
	}
}

// IsClientError reports whether err was caused by the request rather than
// the service.
func IsClientError(err error) bool {
	var unsupported *domain.UnsupportedNeighborCountError
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrNotFound) ||
		domain.IsShapeMismatch(err) ||
		errors.As(err, &unsupported)
}

func nullable(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		out[i] = nullableOne(values[i])
	}
	return out
}

func nullableOne(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
