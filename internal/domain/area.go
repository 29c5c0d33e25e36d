package domain

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/ctessum/geom/proj"
)

// lonLatProj is the geographic reference all areas are projected into.
const lonLatProj = "+proj=longlat +datum=WGS84 +no_defs"

// Area is a regular grid in a projected coordinate system. Pixel (row, col)
// has its centre at (xll + (col+0.5)*dx, yur - (row+0.5)*dy): row 0 is the
// northern edge of the extent.
type Area struct {
	id          string
	description string
	projection  string
	width       int
	height      int
	extent      [4]float64
	opts        geometryOptions

	once       sync.Once
	lons, lats []float64
	err        error
}

// NewArea creates an Area from a proj4 definition, a pixel count and an
// extent given as (lower-left x, lower-left y, upper-right x, upper-right y)
// in projection units.
func NewArea(id, description, projection string, width, height int, extent [4]float64, opts ...GeometryOption) (*Area, error) {
	shape := []int{height, width}
	if err := validateGeometryShape(shape); err != nil {
		return nil, fmt.Errorf("area %s: %w", id, err)
	}
	if !(extent[2] > extent[0]) || !(extent[3] > extent[1]) {
		return nil, fmt.Errorf("area %s: extent %v must have upper-right above and right of lower-left", id, extent)
	}
	if _, err := proj.Parse(projection); err != nil {
		return nil, fmt.Errorf("area %s: invalid projection %q: %w", id, projection, err)
	}
	o, err := buildOptions(shape, opts)
	if err != nil {
		return nil, fmt.Errorf("area %s: %w", id, err)
	}
	return &Area{
		id:          id,
		description: description,
		projection:  projection,
		width:       width,
		height:      height,
		extent:      extent,
		opts:        o,
	}, nil
}

// Kind returns KindArea.
func (a *Area) Kind() GeometryKind { return KindArea }

// ID returns the area identifier.
func (a *Area) ID() string { return a.id }

// Description returns the human-readable description.
func (a *Area) Description() string { return a.description }

// Projection returns the proj4 definition.
func (a *Area) Projection() string { return a.projection }

// Extent returns the area extent in projection units.
func (a *Area) Extent() [4]float64 { return a.extent }

// Shape returns (height, width).
func (a *Area) Shape() []int { return []int{a.height, a.width} }

// Dims returns the dimension names, ("y", "x") by default.
func (a *Area) Dims() []string { return slices.Clone(a.opts.dims) }

// PixelSize returns the pixel width and height in projection units.
func (a *Area) PixelSize() (dx, dy float64) {
	return (a.extent[2] - a.extent[0]) / float64(a.width), (a.extent[3] - a.extent[1]) / float64(a.height)
}

// LonLats computes the pixel-centre longitudes and latitudes once and
// returns them on every call. Pixels the projection cannot invert are NaN.
func (a *Area) LonLats() ([]float64, []float64, error) {
	a.once.Do(func() {
		a.lons, a.lats, a.err = a.computeLonLats()
	})
	return a.lons, a.lats, a.err
}

func (a *Area) computeLonLats() ([]float64, []float64, error) {
	src, err := proj.Parse(a.projection)
	if err != nil {
		return nil, nil, fmt.Errorf("area %s: while parsing projection: %w", a.id, err)
	}
	dst, err := proj.Parse(lonLatProj)
	if err != nil {
		return nil, nil, fmt.Errorf("area %s: while parsing lon/lat projection: %w", a.id, err)
	}
	trans, err := src.NewTransform(dst)
	if err != nil {
		return nil, nil, fmt.Errorf("area %s: while creating transform: %w", a.id, err)
	}

	dx, dy := a.PixelSize()
	n := a.width * a.height
	lons := make([]float64, n)
	lats := make([]float64, n)
	for row := 0; row < a.height; row++ {
		y := a.extent[3] - (float64(row)+0.5)*dy
		for col := 0; col < a.width; col++ {
			x := a.extent[0] + (float64(col)+0.5)*dx
			i := row*a.width + col
			lon, lat, err := trans(x, y)
			if err != nil || !ValidLonLat(lon, lat) {
				lons[i], lats[i] = math.NaN(), math.NaN()
				continue
			}
			lons[i], lats[i] = lon, lat
		}
	}
	return lons, lats, nil
}

// GeocentricResolution delegates to the configured estimator.
func (a *Area) GeocentricResolution() (float64, error) { return a.opts.estimator.Estimate(a) }
