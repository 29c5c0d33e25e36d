package domain

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// Array is an immutable N-D numeric array stored flat in row-major order.
// Dimension names are optional; when present there is one per axis.
// Coordinate labels are keyed by dimension name and carried verbatim.
type Array struct {
	dtype  DType
	values any // []T for the Go type matching dtype.
	shape  []int
	dims   []string
	coords map[string]any
}

// NewArray creates an Array over values with the given shape and optional
// dimension names. The values slice is not copied.
func NewArray[T Number](values []T, shape []int, dims ...string) (*Array, error) {
	if err := checkShape(len(values), shape, dims); err != nil {
		return nil, err
	}
	return &Array{
		dtype:  dtypeOf[T](),
		values: values,
		shape:  slices.Clone(shape),
		dims:   slices.Clone(dims),
	}, nil
}

// MustArray is like NewArray but panics on error. Intended for literals.
func MustArray[T Number](values []T, shape []int, dims ...string) *Array {
	a, err := NewArray(values, shape, dims...)
	if err != nil {
		panic(err)
	}
	return a
}

func checkShape(n int, shape []int, dims []string) error {
	if len(shape) == 0 {
		return fmt.Errorf("array shape must have at least one dimension")
	}
	size := 1
	for i, s := range shape {
		if s <= 0 {
			return fmt.Errorf("array dimension %d has non-positive size %d", i, s)
		}
		size *= s
	}
	if size != n {
		return fmt.Errorf("array shape %v holds %d elements, got %d values", shape, size, n)
	}
	if len(dims) != 0 && len(dims) != len(shape) {
		return fmt.Errorf("array has %d dimension names for %d dimensions", len(dims), len(shape))
	}
	return nil
}

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Shape returns a copy of the array shape.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

// Dims returns a copy of the dimension names, or nil if unnamed.
func (a *Array) Dims() []string { return slices.Clone(a.dims) }

// Named reports whether the array carries dimension names.
func (a *Array) Named() bool { return len(a.dims) > 0 }

// Coords returns a shallow copy of the coordinate labels.
func (a *Array) Coords() map[string]any { return maps.Clone(a.coords) }

// Len returns the number of elements.
func (a *Array) Len() int {
	n := 1
	for _, s := range a.shape {
		n *= s
	}
	return n
}

// Raw returns the backing slice as an untyped value.
func (a *Array) Raw() any { return a.values }

// WithCoord returns a copy of a with labels attached to dimension dim.
func (a *Array) WithCoord(dim string, labels any) *Array {
	out := *a
	out.coords = maps.Clone(a.coords)
	if out.coords == nil {
		out.coords = make(map[string]any)
	}
	out.coords[dim] = labels
	return &out
}

// WithCoords returns a copy of a carrying the given coordinate labels.
func (a *Array) WithCoords(coords map[string]any) *Array {
	out := *a
	out.coords = maps.Clone(coords)
	return &out
}

// Values returns the typed backing slice of a. It fails if T does not match
// the array's dtype.
func Values[T Number](a *Array) ([]T, error) {
	v, ok := a.values.([]T)
	if !ok {
		return nil, fmt.Errorf("array holds %s, not %s", a.dtype, dtypeOf[T]())
	}
	return v, nil
}

// Float64s returns the values converted to float64.
func (a *Array) Float64s() []float64 {
	switch v := a.values.(type) {
	case []float64:
		return slices.Clone(v)
	case []float32:
		return toFloat64s(v)
	case []int8:
		return toFloat64s(v)
	case []int16:
		return toFloat64s(v)
	case []int32:
		return toFloat64s(v)
	case []int64:
		return toFloat64s(v)
	case []uint8:
		return toFloat64s(v)
	case []uint16:
		return toFloat64s(v)
	case []uint32:
		return toFloat64s(v)
	case []uint64:
		return toFloat64s(v)
	}
	return nil
}

func toFloat64s[T Number](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func fromFloat64s[T Number](in []float64) []T {
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = fromFloat[T](v)
	}
	return out
}

// Astype returns a converted to dt. It returns a itself when the type
// already matches. Conversions go through float64, which is exact for every
// widening Widen can produce.
func (a *Array) Astype(dt DType) (*Array, error) {
	if dt == a.dtype {
		return a, nil
	}
	f := a.Float64s()
	var values any
	switch dt {
	case Int8:
		values = fromFloat64s[int8](f)
	case Int16:
		values = fromFloat64s[int16](f)
	case Int32:
		values = fromFloat64s[int32](f)
	case Int64:
		values = fromFloat64s[int64](f)
	case Uint8:
		values = fromFloat64s[uint8](f)
	case Uint16:
		values = fromFloat64s[uint16](f)
	case Uint32:
		values = fromFloat64s[uint32](f)
	case Uint64:
		values = fromFloat64s[uint64](f)
	case Float32:
		values = fromFloat64s[float32](f)
	case Float64:
		values = f
	default:
		return nil, fmt.Errorf("cannot convert %s to %s", a.dtype, dt)
	}
	out := *a
	out.dtype = dt
	out.values = values
	return &out, nil
}

// NewArrayFromFloat64s builds an Array of type dt from float64 values.
func NewArrayFromFloat64s(dt DType, values []float64, shape []int, dims ...string) (*Array, error) {
	a, err := NewArray(values, shape, dims...)
	if err != nil {
		return nil, err
	}
	return a.Astype(dt)
}

// CountFinite returns the number of elements that are not NaN.
func (a *Array) CountFinite() int {
	if !a.dtype.IsFloat() {
		return a.Len()
	}
	n := 0
	for _, v := range a.Float64s() {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}
