package domain

import (
	"fmt"
)

// ResolutionEstimator estimates the geocentric resolution of a geometry in
// metres.
type ResolutionEstimator interface {
	Estimate(g Geometry) (float64, error)
}

// ResolutionFunc adapts a function to ResolutionEstimator.
type ResolutionFunc func(g Geometry) (float64, error)

// Estimate calls f(g).
func (f ResolutionFunc) Estimate(g Geometry) (float64, error) { return f(g) }

// AdjacentSpacing estimates resolution as the mean distance between
// neighbouring samples along the central row and the central column, taking
// the larger of the two. Pairs with a degenerate position are skipped.
type AdjacentSpacing struct{}

// Estimate implements ResolutionEstimator.
func (AdjacentSpacing) Estimate(g Geometry) (float64, error) {
	shape := g.Shape()
	if len(shape) < 2 {
		return 0, fmt.Errorf("%w: can't determine resolution for 1D %s", ErrResolutionUnavailable, g.Kind())
	}
	lons, lats, err := g.LonLats()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrResolutionUnavailable, err)
	}

	// Treat trailing axes as columns and everything before as rows.
	cols := shape[len(shape)-1]
	rows := len(lons) / cols

	alongRow, okRow := meanSpacing(lons, lats, (rows/2)*cols, 1, cols)
	alongCol, okCol := meanSpacing(lons, lats, cols/2, cols, rows)
	switch {
	case okRow && okCol:
		return max(alongRow, alongCol), nil
	case okRow:
		return alongRow, nil
	case okCol:
		return alongCol, nil
	}
	return 0, fmt.Errorf("%w: no adjacent valid samples in %s of shape %v", ErrResolutionUnavailable, g.Kind(), shape)
}

// meanSpacing averages distances between n consecutive samples starting at
// start and separated by stride.
func meanSpacing(lons, lats []float64, start, stride, n int) (float64, bool) {
	var sum float64
	var count int
	for k := 1; k < n; k++ {
		i, j := start+(k-1)*stride, start+k*stride
		a, b := Geocentric(lons[i], lats[i]), Geocentric(lons[j], lats[j])
		if IsUnreachable(a) || IsUnreachable(b) {
			continue
		}
		sum += a.Distance(b)
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}
