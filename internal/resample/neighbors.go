package resample

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/golang/geo/r3"

	"go.ngs.io/resampler/internal/domain"
	"go.ngs.io/resampler/internal/lazy"
)

// NoNeighbor is the source index of target samples without a usable source
// sample in range.
const NoNeighbor = -1

// NeighborArrays is a materialized neighbour mapping, one entry per target
// sample in row-major order.
type NeighborArrays struct {
	SourceIndex []int
	Valid       []bool
	// Distance is the chord distance in metres, NaN where not valid.
	Distance []float64

	sourceShape []int
}

// SourceCell returns the source multi-index mapped to target sample i.
func (a *NeighborArrays) SourceCell(i int) ([]int, bool) {
	if !a.Valid[i] {
		return nil, false
	}
	return UnravelIndex(a.SourceIndex[i], a.sourceShape), true
}

// ValidFraction returns the share of target samples that found a neighbour.
func (a *NeighborArrays) ValidFraction() float64 {
	if len(a.Valid) == 0 {
		return 0
	}
	n := 0
	for _, v := range a.Valid {
		if v {
			n++
		}
	}
	return float64(n) / float64(len(a.Valid))
}

// neighborChunk is the mapping of one target chunk.
type neighborChunk struct {
	sourceIndex []int
	valid       []bool
	distance    []float64
}

// NeighborMapping is an unevaluated target to source mapping. It is never
// modified after construction and may be applied to any number of arrays.
type NeighborMapping struct {
	sourceShape []int
	targetShape []int
	sourceSize  int
	targetSize  int
	neighbours  int

	radius *lazy.Value[float64]
	ranges []chunkRange
	chunks []*lazy.Value[*neighborChunk]
	merged *lazy.Value[*NeighborArrays]
}

// SourceShape returns the source geometry shape.
func (m *NeighborMapping) SourceShape() []int { return slices.Clone(m.sourceShape) }

// TargetShape returns the target geometry shape.
func (m *NeighborMapping) TargetShape() []int { return slices.Clone(m.targetShape) }

// Neighbours returns the neighbour count.
func (m *NeighborMapping) Neighbours() int { return m.neighbours }

// Radius materializes the radius of influence, in metres.
func (m *NeighborMapping) Radius(ctx context.Context) (float64, error) {
	return m.radius.Materialize(ctx)
}

// Materialize evaluates the mapping.
func (m *NeighborMapping) Materialize(ctx context.Context) (*NeighborArrays, error) {
	return m.merged.Materialize(ctx)
}

// describeNeighbors builds the deferred mapping from dst to src. Each
// source chunk gets its own tree; every target chunk queries all trees and
// keeps the closest candidate.
func describeNeighbors(s *lazy.Scheduler, src, dst domain.Geometry, mask *domain.Mask, radius *lazy.Value[float64], chunkSize int) *NeighborMapping {
	m := &NeighborMapping{
		sourceShape: src.Shape(),
		targetShape: dst.Shape(),
		sourceSize:  domain.Size(src),
		targetSize:  domain.Size(dst),
		neighbours:  1,
		radius:      radius,
	}

	srcRanges := splitRange(m.sourceSize, chunkSize)
	indexes := make([]*lazy.Value[*chunkIndex], len(srcRanges))
	for i, r := range srcRanges {
		points := describeFlatten(s, src, "source", r)
		indexes[i] = lazy.Then(points, fmt.Sprintf("index source[%d:%d]", r.start, r.end),
			func(_ context.Context, pts []r3.Vector) (*chunkIndex, error) {
				return buildChunkIndex(pts, r.start, mask), nil
			})
	}
	sourceIndex := lazy.All(s, "source index", indexes)

	m.ranges = splitRange(m.targetSize, chunkSize)
	m.chunks = make([]*lazy.Value[*neighborChunk], len(m.ranges))
	for i, r := range m.ranges {
		points := describeFlatten(s, dst, "target", r)
		m.chunks[i] = lazy.Describe(s, fmt.Sprintf("neighbours target[%d:%d]", r.start, r.end),
			func(ctx context.Context) (*neighborChunk, error) {
				trees, err := sourceIndex.Materialize(ctx)
				if err != nil {
					return nil, err
				}
				roi, err := radius.Materialize(ctx)
				if err != nil {
					return nil, err
				}
				pts, err := points.Materialize(ctx)
				if err != nil {
					return nil, err
				}
				return queryChunk(pts, trees, roi), nil
			})
	}

	m.merged = lazy.Then(lazy.All(s, "neighbours", m.chunks), "neighbour mapping",
		func(_ context.Context, parts []*neighborChunk) (*NeighborArrays, error) {
			out := &NeighborArrays{
				SourceIndex: make([]int, 0, m.targetSize),
				Valid:       make([]bool, 0, m.targetSize),
				Distance:    make([]float64, 0, m.targetSize),
				sourceShape: m.SourceShape(),
			}
			for _, p := range parts {
				out.SourceIndex = append(out.SourceIndex, p.sourceIndex...)
				out.Valid = append(out.Valid, p.valid...)
				out.Distance = append(out.Distance, p.distance...)
			}
			return out, nil
		})
	return m
}

// queryChunk finds, for every target point, the closest candidate over all
// source trees.
func queryChunk(points []r3.Vector, trees []*chunkIndex, radius float64) *neighborChunk {
	out := &neighborChunk{
		sourceIndex: make([]int, len(points)),
		valid:       make([]bool, len(points)),
		distance:    make([]float64, len(points)),
	}
	limit2 := radius * radius
	for i, q := range points {
		out.sourceIndex[i] = NoNeighbor
		out.distance[i] = math.NaN()
		if domain.IsUnreachable(q) {
			continue
		}
		var best candidate
		found := false
		for _, tree := range trees {
			c, ok := tree.nearest(q, limit2)
			if ok && (!found || c.before(best)) {
				best, found = c, true
			}
		}
		if found {
			out.sourceIndex[i] = best.index
			out.valid[i] = true
			out.distance[i] = math.Sqrt(best.dist2)
		}
	}
	return out
}
