package resample

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.ngs.io/resampler/internal/domain"
	"go.ngs.io/resampler/internal/lazy"
)

// Result is an unevaluated resampled array. Its metadata is known up front;
// values are computed on Materialize.
type Result struct {
	dtype  domain.DType
	shape  []int
	dims   []string
	coords map[string]any
	fill   float64
	values *lazy.Value[*domain.Array]
}

// DType returns the element type of the result.
func (r *Result) DType() domain.DType { return r.dtype }

// Shape returns the result shape.
func (r *Result) Shape() []int { return slices.Clone(r.shape) }

// Dims returns the result dimension names, or nil if unnamed.
func (r *Result) Dims() []string { return slices.Clone(r.dims) }

// Coords returns the coordinate labels carried over from the input.
func (r *Result) Coords() map[string]any { return maps.Clone(r.coords) }

// FillValue returns the value used for target samples without a neighbour.
func (r *Result) FillValue() float64 { return r.fill }

// Materialize computes the resampled array.
func (r *Result) Materialize(ctx context.Context) (*domain.Array, error) {
	return r.values.Materialize(ctx)
}

// layout describes how a data array wraps the spatial block: outer axes
// before it and inner axes after it.
type layout struct {
	outer, inner int
	sourceSize   int
	targetSize   int
	outputShape  []int
	outputDims   []string
}

func newLayout(data *domain.Array, start int, m *NeighborMapping, target domain.Geometry) layout {
	shape := data.Shape()
	end := start + len(m.sourceShape)
	l := layout{outer: 1, inner: 1, sourceSize: m.sourceSize, targetSize: m.targetSize}
	for _, n := range shape[:start] {
		l.outer *= n
	}
	for _, n := range shape[end:] {
		l.inner *= n
	}
	l.outputShape = slices.Concat(shape[:start], m.targetShape, shape[end:])

	if dims := data.Dims(); len(dims) > 0 {
		targetDims := target.Dims()
		if len(targetDims) == 0 {
			targetDims = make([]string, len(m.targetShape))
			for k := range targetDims {
				targetDims[k] = fmt.Sprintf("target_dim_%d", k)
			}
			if len(m.targetShape) == len(m.sourceShape) {
				copy(targetDims, dims[start:end])
			}
		}
		l.outputDims = slices.Concat(dims[:start], targetDims, dims[end:])
	}
	return l
}

// describeApply describes gathering data through m, with fill in target
// samples that have no neighbour. The element type is widened only when
// fill does not fit.
func describeApply(s *lazy.Scheduler, m *NeighborMapping, data *domain.Array, start int, target domain.Geometry, fill *float64) (*Result, error) {
	dt := data.DType()
	fillValue := dt.DefaultFill()
	if fill != nil {
		fillValue = *fill
		dt = dt.Widen(fillValue)
	}
	l := newLayout(data, start, m, target)
	res := &Result{
		dtype:  dt,
		shape:  l.outputShape,
		dims:   l.outputDims,
		coords: data.Coords(),
		fill:   fillValue,
	}

	switch dt {
	case domain.Int8:
		res.values = describeGather[int8](s, m, data, l, fillValue, res.coords)
	case domain.Int16:
		res.values = describeGather[int16](s, m, data, l, fillValue, res.coords)
	case domain.Int32:
		res.values = describeGather[int32](s, m, data, l, fillValue, res.coords)
	case domain.Int64:
		res.values = describeGather[int64](s, m, data, l, fillValue, res.coords)
	case domain.Uint8:
		res.values = describeGather[uint8](s, m, data, l, fillValue, res.coords)
	case domain.Uint16:
		res.values = describeGather[uint16](s, m, data, l, fillValue, res.coords)
	case domain.Uint32:
		res.values = describeGather[uint32](s, m, data, l, fillValue, res.coords)
	case domain.Uint64:
		res.values = describeGather[uint64](s, m, data, l, fillValue, res.coords)
	case domain.Float32:
		res.values = describeGather[float32](s, m, data, l, fillValue, res.coords)
	case domain.Float64:
		res.values = describeGather[float64](s, m, data, l, fillValue, res.coords)
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dt)
	}
	return res, nil
}

func describeGather[T domain.Number](s *lazy.Scheduler, m *NeighborMapping, data *domain.Array, l layout, fill float64, coords map[string]any) *lazy.Value[*domain.Array] {
	dt := domain.DTypeOf[T]()
	source := lazy.Describe(s, "astype "+dt.String(), func(context.Context) ([]T, error) {
		converted, err := data.Astype(dt)
		if err != nil {
			return nil, err
		}
		return domain.Values[T](converted)
	})
	fillT := domain.FillAs[T](fill)

	blocks := make([]*lazy.Value[[]T], len(m.chunks))
	for i, chunk := range m.chunks {
		r := m.ranges[i]
		blocks[i] = lazy.Describe(s, fmt.Sprintf("gather target[%d:%d]", r.start, r.end),
			func(ctx context.Context) ([]T, error) {
				nc, err := chunk.Materialize(ctx)
				if err != nil {
					return nil, err
				}
				values, err := source.Materialize(ctx)
				if err != nil {
					return nil, err
				}
				return gatherBlock(values, nc, l, fillT), nil
			})
	}

	return lazy.Then(lazy.All(s, "gather", blocks), "assemble",
		func(_ context.Context, parts [][]T) (*domain.Array, error) {
			out := make([]T, l.outer*l.targetSize*l.inner)
			for i, part := range parts {
				r := m.ranges[i]
				n := r.len() * l.inner
				for o := 0; o < l.outer; o++ {
					copy(out[(o*l.targetSize+r.start)*l.inner:], part[o*n:(o+1)*n])
				}
			}
			a, err := domain.NewArray(out, l.outputShape, l.outputDims...)
			if err != nil {
				return nil, err
			}
			return a.WithCoords(coords), nil
		})
}

// gatherBlock copies the mapped source values of one target chunk, laid out
// as [outer][chunk][inner].
func gatherBlock[T domain.Number](values []T, nc *neighborChunk, l layout, fill T) []T {
	n := len(nc.sourceIndex)
	out := make([]T, l.outer*n*l.inner)
	for o := 0; o < l.outer; o++ {
		for t := 0; t < n; t++ {
			dst := (o*n + t) * l.inner
			if !nc.valid[t] {
				for k := 0; k < l.inner; k++ {
					out[dst+k] = fill
				}
				continue
			}
			src := (o*l.sourceSize + nc.sourceIndex[t]) * l.inner
			copy(out[dst:dst+l.inner], values[src:src+l.inner])
		}
	}
	return out
}
