package resample

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"

	"go.ngs.io/resampler/internal/domain"
)

// indexedPoint is a geocentric source position tagged with its flat index.
type indexedPoint struct {
	r3.Vector
	index int
}

// Compare implements kdtree.Comparable.
func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	}
	panic("resample: illegal dimension")
}

// Dims implements kdtree.Comparable.
func (p indexedPoint) Dims() int { return 3 }

// Distance returns the squared euclidean distance.
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	return p.Sub(c.(indexedPoint).Vector).Norm2()
}

type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p indexedPoints) Len() int                              { return len(p) }
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p indexedPoints) Pivot(d kdtree.Dim) int {
	return plane{indexedPoints: p, Dim: d}.Pivot()
}

// plane sorts indexedPoints along one axis for tree construction.
type plane struct {
	kdtree.Dim
	indexedPoints
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.indexedPoints[i].X < p.indexedPoints[j].X
	case 1:
		return p.indexedPoints[i].Y < p.indexedPoints[j].Y
	case 2:
		return p.indexedPoints[i].Z < p.indexedPoints[j].Z
	}
	panic("resample: illegal dimension")
}

func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfRandoms(p, 100)) }

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.indexedPoints = p.indexedPoints[start:end]
	return p
}

func (p plane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}

// chunkIndex is the k-d tree over the usable points of one source chunk.
type chunkIndex struct {
	tree  *kdtree.Tree
	count int
}

// buildChunkIndex indexes the points of a source chunk starting at flat
// index start. Unreachable points and points the mask marks unusable are
// left out of the tree.
func buildChunkIndex(points []r3.Vector, start int, mask *domain.Mask) *chunkIndex {
	usable := make(indexedPoints, 0, len(points))
	for i, p := range points {
		idx := start + i
		if domain.IsUnreachable(p) || (mask != nil && !mask.Valid(idx)) {
			continue
		}
		usable = append(usable, indexedPoint{Vector: p, index: idx})
	}
	if len(usable) == 0 {
		return &chunkIndex{}
	}
	return &chunkIndex{tree: kdtree.New(usable, false), count: len(usable)}
}

// candidate is a source point found for a target.
type candidate struct {
	index int
	dist2 float64
}

// before orders candidates by distance, then by flat index.
func (c candidate) before(o candidate) bool {
	if c.dist2 != o.dist2 {
		return c.dist2 < o.dist2
	}
	return c.index < o.index
}

// nearest returns the closest indexed point within sqrt(limit2) of q.
func (c *chunkIndex) nearest(q r3.Vector, limit2 float64) (candidate, bool) {
	if c.tree == nil {
		return candidate{}, false
	}
	k := &nearestKeeper{limit: limit2}
	c.tree.NearestSet(k, indexedPoint{Vector: q, index: -1})
	best, ok := k.best.Comparable.(indexedPoint)
	if !ok || k.best.Dist > limit2 {
		return candidate{}, false
	}
	return candidate{index: best.index, dist2: k.best.Dist}, true
}

// nearestKeeper is a kdtree.Keeper retaining the single closest point within
// limit, preferring the lowest flat index among equidistant points.
type nearestKeeper struct {
	best  kdtree.ComparableDist
	limit float64
}

func (k *nearestKeeper) Keep(c kdtree.ComparableDist) {
	if c.Comparable == nil || c.Dist > k.limit {
		return
	}
	if k.best.Comparable == nil {
		k.best = c
		return
	}
	cand := candidate{index: c.Comparable.(indexedPoint).index, dist2: c.Dist}
	best := candidate{index: k.best.Comparable.(indexedPoint).index, dist2: k.best.Dist}
	if cand.before(best) {
		k.best = c
	}
}

// Max reports a bound slightly above the current best so that subtrees
// holding equidistant points are still visited.
func (k *nearestKeeper) Max() kdtree.ComparableDist {
	if k.best.Comparable == nil {
		return kdtree.ComparableDist{Dist: math.Nextafter(k.limit, math.Inf(1))}
	}
	return kdtree.ComparableDist{Comparable: k.best.Comparable, Dist: math.Nextafter(k.best.Dist, math.Inf(1))}
}

func (k *nearestKeeper) Len() int {
	if k.best.Comparable == nil {
		return 0
	}
	return 1
}

func (k *nearestKeeper) Less(i, j int) bool { return false }
func (k *nearestKeeper) Swap(i, j int)      {}
func (k *nearestKeeper) Push(x any)         { k.Keep(x.(kdtree.ComparableDist)) }

func (k *nearestKeeper) Pop() any {
	c := k.best
	k.best = kdtree.ComparableDist{}
	return c
}
