// Package resample implements radius-bounded nearest neighbour resampling
// between geometries. Neighbour mappings and results are deferred values:
// nothing is computed until Materialize is called.
package resample

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"

	"go.ngs.io/resampler/internal/domain"
	"go.ngs.io/resampler/internal/lazy"
)

// DefaultChunkSize is the number of flat samples per chunk.
const DefaultChunkSize = 4096

// State is the lifecycle state of a NearestNeighbor resampler.
type State int

// Resampler states.
const (
	StateUninitialized State = iota
	StateNeighborsComputed
)

func (s State) String() string {
	if s == StateNeighborsComputed {
		return "neighbors_computed"
	}
	return "uninitialized"
}

// Option configures a NearestNeighbor.
type Option func(*NearestNeighbor)

// WithScheduler sets the scheduler that evaluates deferred values.
func WithScheduler(s *lazy.Scheduler) Option {
	return func(r *NearestNeighbor) {
		if s != nil {
			r.scheduler = s
		}
	}
}

// WithChunkSize sets the number of flat samples per chunk.
func WithChunkSize(n int) Option {
	return func(r *NearestNeighbor) {
		if n > 0 {
			r.chunkSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *NearestNeighbor) {
		if l != nil {
			r.logger = l
		}
	}
}

// PrecomputeParams are the inputs of a neighbour mapping.
type PrecomputeParams struct {
	// RadiusOfInfluence in metres; nil estimates it from the geometries.
	RadiusOfInfluence *float64
	// Mask marks usable source samples; nil means all are usable.
	Mask *domain.Mask
	// Neighbours is the neighbour count; zero means 1.
	Neighbours int
}

// ResampleParams are the per-call inputs of Resample.
type ResampleParams struct {
	RadiusOfInfluence *float64
	MaskArea          *domain.Mask
	// FillValue replaces target samples without a neighbour. Nil means NaN
	// for floats and the type maximum for integers.
	FillValue *float64
}

type mappingKey struct {
	auto       bool
	radius     float64
	hasMask    bool
	mask       uint64
	neighbours int
}

// NearestNeighbor resamples data from a source geometry onto a target
// geometry. It caches one neighbour mapping at a time and is safe for
// concurrent use.
type NearestNeighbor struct {
	source    domain.Geometry
	target    domain.Geometry
	scheduler *lazy.Scheduler
	chunkSize int
	logger    *slog.Logger

	mu      sync.Mutex
	mapping *NeighborMapping
	key     mappingKey
}

// NewNearestNeighbor binds a source and target geometry.
func NewNearestNeighbor(source, target domain.Geometry, opts ...Option) (*NearestNeighbor, error) {
	if err := validateGeometry("source", source); err != nil {
		return nil, err
	}
	if err := validateGeometry("target", target); err != nil {
		return nil, err
	}
	r := &NearestNeighbor{
		source:    source,
		target:    target,
		chunkSize: DefaultChunkSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.scheduler == nil {
		r.scheduler = lazy.NewScheduler(0)
	}
	return r, nil
}

// SourceGeometry returns the source geometry.
func (r *NearestNeighbor) SourceGeometry() domain.Geometry { return r.source }

// TargetGeometry returns the target geometry.
func (r *NearestNeighbor) TargetGeometry() domain.Geometry { return r.target }

// Scheduler returns the scheduler evaluating this resampler's values.
func (r *NearestNeighbor) Scheduler() *lazy.Scheduler { return r.scheduler }

// State reports whether a neighbour mapping is cached.
func (r *NearestNeighbor) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapping == nil {
		return StateUninitialized
	}
	return StateNeighborsComputed
}

// Mapping returns the cached neighbour mapping, or nil.
func (r *NearestNeighbor) Mapping() *NeighborMapping {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mapping
}

// Precompute describes the neighbour mapping for p and caches it. A cached
// mapping with the same radius, mask and neighbour count is returned as is.
func (r *NearestNeighbor) Precompute(p PrecomputeParams) (*NeighborMapping, error) {
	neighbours := p.Neighbours
	if neighbours == 0 {
		neighbours = 1
	}
	if neighbours != 1 {
		return nil, &domain.UnsupportedNeighborCountError{Requested: neighbours}
	}
	if roi := p.RadiusOfInfluence; roi != nil && (math.IsNaN(*roi) || *roi <= 0) {
		return nil, fmt.Errorf("radius of influence must be positive, got %v", *roi)
	}
	if err := validateMask(p.Mask, r.source); err != nil {
		return nil, err
	}

	key := mappingKey{auto: p.RadiusOfInfluence == nil, neighbours: neighbours}
	if p.RadiusOfInfluence != nil {
		key.radius = *p.RadiusOfInfluence
	}
	if p.Mask != nil {
		key.hasMask = true
		key.mask = xxhash.Sum64(p.Mask.Bytes())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapping != nil && r.key == key {
		return r.mapping, nil
	}
	radius := describeRadius(r.scheduler, p.RadiusOfInfluence, r.source, r.target, r.logger)
	r.mapping = describeNeighbors(r.scheduler, r.source, r.target, p.Mask, radius, r.chunkSize)
	r.key = key
	r.logger.Debug("described neighbour mapping",
		"source_shape", r.source.Shape(),
		"target_shape", r.target.Shape(),
		"auto_radius", key.auto,
		"masked", key.hasMask,
		"chunks", len(r.mapping.chunks))
	return r.mapping, nil
}

// Resample describes data resampled onto the target geometry, computing a
// neighbour mapping first if none is cached for these parameters.
func (r *NearestNeighbor) Resample(data *domain.Array, p ResampleParams) (*Result, error) {
	start, err := locateSpatialAxes(data, r.source)
	if err != nil {
		return nil, err
	}
	mapping, err := r.Precompute(PrecomputeParams{
		RadiusOfInfluence: p.RadiusOfInfluence,
		Mask:              p.MaskArea,
		Neighbours:        1,
	})
	if err != nil {
		return nil, err
	}
	return describeApply(r.scheduler, mapping, data, start, r.target, p.FillValue)
}

// ResampleWith describes data resampled through a mapping returned by an
// earlier Precompute, whatever mapping the resampler has cached since.
func (r *NearestNeighbor) ResampleWith(mapping *NeighborMapping, data *domain.Array, fill *float64) (*Result, error) {
	if mapping == nil {
		return nil, errors.New("nil neighbour mapping")
	}
	if !slices.Equal(mapping.sourceShape, r.source.Shape()) || !slices.Equal(mapping.targetShape, r.target.Shape()) {
		return nil, fmt.Errorf("neighbour mapping %v -> %v does not belong to resampler %v -> %v",
			mapping.sourceShape, mapping.targetShape, r.source.Shape(), r.target.Shape())
	}
	start, err := locateSpatialAxes(data, r.source)
	if err != nil {
		return nil, err
	}
	return describeApply(r.scheduler, mapping, data, start, r.target, fill)
}
