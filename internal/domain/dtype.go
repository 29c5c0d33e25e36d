package domain

import (
	"fmt"
	"math"
	"strings"
)

// DType identifies the element type of an Array.
type DType int

// Supported element types.
const (
	InvalidDType DType = iota
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
)

// Number is the set of Go element types an Array can hold.
type Number interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

var dtypeNames = map[DType]string{
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
}

// String returns the numpy-style name of the type (e.g. "float32").
func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// ParseDType parses a type name such as "uint8" or "float64".
func ParseDType(name string) (DType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for d, n := range dtypeNames {
		if n == name {
			return d, nil
		}
	}
	return InvalidDType, fmt.Errorf("unknown dtype %q", name)
}

// IsFloat reports whether d is a floating point type.
func (d DType) IsFloat() bool {
	return d == Float32 || d == Float64
}

// Valid reports whether d is one of the supported element types.
func (d DType) Valid() bool {
	_, ok := dtypeNames[d]
	return ok
}

// intRange returns the inclusive integer range of d. The upper bound of the
// 64-bit types is returned as the first float64 outside the range.
func (d DType) intRange() (lo, hi float64, exclusiveHi bool) {
	switch d {
	case Int8:
		return math.MinInt8, math.MaxInt8, false
	case Int16:
		return math.MinInt16, math.MaxInt16, false
	case Int32:
		return math.MinInt32, math.MaxInt32, false
	case Int64:
		return math.MinInt64, 1 << 63, true
	case Uint8:
		return 0, math.MaxUint8, false
	case Uint16:
		return 0, math.MaxUint16, false
	case Uint32:
		return 0, math.MaxUint32, false
	case Uint64:
		return 0, 1 << 64, true
	}
	return 0, 0, false
}

// CanHold reports whether v can be stored in d without changing its value.
// Float types accept NaN and infinities; float32 rejects finite values
// outside its range.
func (d DType) CanHold(v float64) bool {
	switch d {
	case Float64:
		return true
	case Float32:
		return math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) <= math.MaxFloat32
	case InvalidDType:
		return false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return false
	}
	lo, hi, exclusive := d.intRange()
	if exclusive {
		return v >= lo && v < hi
	}
	return v >= lo && v <= hi
}

// DefaultFill is the fill value used when the caller supplies none: NaN for
// floats and the type's maximum for integers.
func (d DType) DefaultFill() float64 {
	if d.IsFloat() {
		return math.NaN()
	}
	// For the 64-bit types this is one past the maximum; FillAs saturates it.
	_, hi, _ := d.intRange()
	return hi
}

var widenLadder = map[DType][]DType{
	Int8:    {Int16, Int32, Int64, Float64},
	Int16:   {Int32, Int64, Float64},
	Int32:   {Int64, Float64},
	Int64:   {Float64},
	Uint8:   {Int16, Uint16, Int32, Int64, Float64},
	Uint16:  {Int32, Uint32, Int64, Float64},
	Uint32:  {Int64, Uint64, Float64},
	Uint64:  {Float64},
	Float32: {Float64},
}

// Widen returns the narrowest type, starting from d, able to hold both every
// value of d and fill. It returns d itself when no widening is needed.
func (d DType) Widen(fill float64) DType {
	if d.CanHold(fill) {
		return d
	}
	for _, next := range widenLadder[d] {
		if next.CanHold(fill) {
			return next
		}
	}
	return Float64
}

// fromFloat converts v to T, saturating integer conversions at the type
// bounds.
func fromFloat[T Number](v float64) T {
	var zero T
	switch any(zero).(type) {
	case float32, float64:
		return T(v)
	}
	d := dtypeOf[T]()
	lo, hi, exclusive := d.intRange()
	switch {
	case math.IsNaN(v):
		return zero
	case v <= lo:
		return T(lo)
	case exclusive && v >= hi:
		return maxOf[T]()
	case !exclusive && v >= hi:
		return T(hi)
	}
	return T(v)
}

func maxOf[T Number]() T {
	var v any
	switch dtypeOf[T]() {
	case Int64:
		v = int64(math.MaxInt64)
	case Uint64:
		v = uint64(math.MaxUint64)
	default:
		_, hi, _ := dtypeOf[T]().intRange()
		return T(hi)
	}
	return v.(T)
}

// FillAs converts a fill value to T with integer saturation, so the float64
// form of the int64/uint64 maxima maps back onto the exact type maximum.
func FillAs[T Number](fill float64) T {
	return fromFloat[T](fill)
}

func dtypeOf[T Number]() DType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return InvalidDType
}

// DTypeOf returns the DType corresponding to the Go type T.
func DTypeOf[T Number]() DType {
	return dtypeOf[T]()
}
