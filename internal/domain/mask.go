package domain

import (
	"math"
	"slices"
)

// Mask marks which samples of a geometry may be used. True means usable.
type Mask struct {
	valid []bool
	shape []int
	dims  []string
}

// NewMask creates a Mask over valid with the given shape and optional
// dimension names.
func NewMask(valid []bool, shape []int, dims ...string) (*Mask, error) {
	if err := checkShape(len(valid), shape, dims); err != nil {
		return nil, err
	}
	return &Mask{
		valid: valid,
		shape: slices.Clone(shape),
		dims:  slices.Clone(dims),
	}, nil
}

// MaskFinite derives a Mask from a, marking NaN elements unusable. Integer
// arrays are fully usable.
func MaskFinite(a *Array) *Mask {
	valid := make([]bool, a.Len())
	if a.DType().IsFloat() {
		for i, v := range a.Float64s() {
			valid[i] = !math.IsNaN(v)
		}
	} else {
		for i := range valid {
			valid[i] = true
		}
	}
	return &Mask{valid: valid, shape: a.Shape(), dims: a.Dims()}
}

// Shape returns a copy of the mask shape.
func (m *Mask) Shape() []int { return slices.Clone(m.shape) }

// Dims returns a copy of the dimension names, or nil if unnamed.
func (m *Mask) Dims() []string { return slices.Clone(m.dims) }

// Valid reports whether flat index i is usable.
func (m *Mask) Valid(i int) bool { return m.valid[i] }

// Len returns the number of elements.
func (m *Mask) Len() int { return len(m.valid) }

// Bytes returns one byte per element (1 usable, 0 not), for hashing.
func (m *Mask) Bytes() []byte {
	b := make([]byte, len(m.valid))
	for i, v := range m.valid {
		if v {
			b[i] = 1
		}
	}
	return b
}
