package domain

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// GeometryKind tags the geometry variant.
type GeometryKind int

// Geometry variants.
const (
	KindSwath GeometryKind = iota + 1
	KindArea
)

func (k GeometryKind) String() string {
	switch k {
	case KindSwath:
		return "swath"
	case KindArea:
		return "area"
	}
	return "unknown"
}

// Geometry is a shaped set of geolocations.
type Geometry interface {
	Kind() GeometryKind
	// Shape is the spatial shape; it never changes after construction.
	Shape() []int
	// Dims returns the spatial dimension names, or nil when the geometry
	// has no naming convention and is matched by position.
	Dims() []string
	// LonLats returns flat row-major longitudes and latitudes in degrees.
	LonLats() (lons, lats []float64, err error)
	// GeocentricResolution estimates the ground spacing of adjacent samples
	// in metres.
	GeocentricResolution() (float64, error)
}

// Size returns the number of samples in g.
func Size(g Geometry) int {
	n := 1
	for _, s := range g.Shape() {
		n *= s
	}
	return n
}

// GeometryOption configures a geometry at construction.
type GeometryOption func(*geometryOptions)

type geometryOptions struct {
	dims      []string
	dimsSet   bool
	estimator ResolutionEstimator
}

// WithDims overrides the default dimension names. Pass no names to make the
// geometry positional.
func WithDims(dims ...string) GeometryOption {
	return func(o *geometryOptions) {
		o.dims = dims
		o.dimsSet = true
	}
}

// WithResolutionEstimator replaces the default resolution estimator.
func WithResolutionEstimator(e ResolutionEstimator) GeometryOption {
	return func(o *geometryOptions) {
		o.estimator = e
	}
}

func buildOptions(shape []int, opts []GeometryOption) (geometryOptions, error) {
	o := geometryOptions{estimator: AdjacentSpacing{}}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.dimsSet {
		o.dims = defaultDims(len(shape))
	}
	if len(o.dims) != 0 && len(o.dims) != len(shape) {
		return o, fmt.Errorf("%d dimension names given for %d dimensions", len(o.dims), len(shape))
	}
	return o, nil
}

func defaultDims(rank int) []string {
	if rank == 2 {
		return []string{"y", "x"}
	}
	return nil
}

func validateGeometryShape(shape []int) error {
	if len(shape) == 0 {
		return &ShapeMismatchError{Subject: "geometry", Detail: "geometry shape is empty"}
	}
	for i, s := range shape {
		if s <= 0 {
			return &ShapeMismatchError{Subject: "geometry", Got: slices.Clone(shape),
				Detail: fmt.Sprintf("dimension %d has size %d", i, s)}
		}
	}
	return nil
}

// Swath is a geometry given by explicit per-sample longitudes and latitudes.
type Swath struct {
	lons, lats []float64
	shape      []int
	opts       geometryOptions
}

// NewSwath creates a Swath. lons and lats are flat row-major arrays of the
// given shape. One-dimensional swaths are positional by default; 2-D ones
// use ("y", "x").
func NewSwath(lons, lats []float64, shape []int, opts ...GeometryOption) (*Swath, error) {
	if err := validateGeometryShape(shape); err != nil {
		return nil, err
	}
	n := 1
	for _, s := range shape {
		n *= s
	}
	if len(lons) != n {
		return nil, &ShapeMismatchError{Subject: "lons", Want: slices.Clone(shape), Got: []int{len(lons)}}
	}
	if len(lats) != n {
		return nil, &ShapeMismatchError{Subject: "lats", Want: slices.Clone(shape), Got: []int{len(lats)}}
	}
	o, err := buildOptions(shape, opts)
	if err != nil {
		return nil, err
	}
	return &Swath{lons: lons, lats: lats, shape: slices.Clone(shape), opts: o}, nil
}

// Kind returns KindSwath.
func (s *Swath) Kind() GeometryKind { return KindSwath }

// Shape returns a copy of the swath shape.
func (s *Swath) Shape() []int { return slices.Clone(s.shape) }

// Dims returns the dimension names.
func (s *Swath) Dims() []string { return slices.Clone(s.opts.dims) }

// LonLats returns the swath coordinates.
func (s *Swath) LonLats() ([]float64, []float64, error) { return s.lons, s.lats, nil }

// GeocentricResolution delegates to the configured estimator.
func (s *Swath) GeocentricResolution() (float64, error) { return s.opts.estimator.Estimate(s) }

// Fingerprint hashes the kind, shape, dimension names and coordinates of g.
// Equal fingerprints identify geometries that resample identically.
func Fingerprint(g Geometry) (uint64, error) {
	lons, lats, err := g.LonLats()
	if err != nil {
		return 0, err
	}
	h := xxhash.New()
	var buf [8]byte
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}
	write(uint64(g.Kind()))
	for _, s := range g.Shape() {
		write(uint64(s))
	}
	for _, d := range g.Dims() {
		_, _ = h.WriteString(d)
		write(0)
	}
	for i := range lons {
		write(math.Float64bits(lons[i]))
		write(math.Float64bits(lats[i]))
	}
	return h.Sum64(), nil
}
