package resample

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"

	"go.ngs.io/resampler/internal/domain"
	"go.ngs.io/resampler/internal/lazy"
)

// chunkRange is a half-open range of flat indices.
type chunkRange struct {
	start, end int
}

func (r chunkRange) len() int { return r.end - r.start }

// splitRange cuts [0, n) into consecutive ranges of at most size elements.
func splitRange(n, size int) []chunkRange {
	if size <= 0 {
		size = n
	}
	ranges := make([]chunkRange, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		ranges = append(ranges, chunkRange{start: start, end: min(start+size, n)})
	}
	return ranges
}

// describeFlatten describes the geocentric positions of the samples of g in
// r. Degenerate lon/lat pairs become domain.Unreachable so flat indices stay
// aligned with the geometry.
func describeFlatten(s *lazy.Scheduler, g domain.Geometry, role string, r chunkRange) *lazy.Value[[]r3.Vector] {
	name := fmt.Sprintf("flatten %s[%d:%d]", role, r.start, r.end)
	return lazy.Describe(s, name, func(context.Context) ([]r3.Vector, error) {
		lons, lats, err := g.LonLats()
		if err != nil {
			return nil, err
		}
		n := domain.Size(g)
		if len(lons) != n || len(lats) != n {
			return nil, &domain.ShapeMismatchError{
				Subject: role + " lon/lat",
				Want:    g.Shape(),
				Got:     []int{len(lons)},
			}
		}
		points := make([]r3.Vector, r.len())
		for i := range points {
			points[i] = domain.Geocentric(lons[r.start+i], lats[r.start+i])
		}
		return points, nil
	})
}

// UnravelIndex converts a flat row-major index into a multi-index of shape.
func UnravelIndex(flat int, shape []int) []int {
	idx := make([]int, len(shape))
	for k := len(shape) - 1; k >= 0; k-- {
		idx[k] = flat % shape[k]
		flat /= shape[k]
	}
	return idx
}
