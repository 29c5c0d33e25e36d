package resample

import (
	"errors"
	"fmt"
	"slices"

	"go.ngs.io/resampler/internal/domain"
)

func validateGeometry(role string, g domain.Geometry) error {
	if g == nil {
		return fmt.Errorf("%s geometry is nil", role)
	}
	shape := g.Shape()
	if len(shape) == 0 {
		return &domain.ShapeMismatchError{Subject: role + " geometry", Detail: "shape is empty"}
	}
	for _, n := range shape {
		if n <= 0 {
			return &domain.ShapeMismatchError{Subject: role + " geometry", Got: shape, Detail: "shape has an empty dimension"}
		}
	}
	if dims := g.Dims(); len(dims) != 0 && len(dims) != len(shape) {
		return &domain.ShapeMismatchError{Subject: role + " geometry", Got: shape,
			Detail: fmt.Sprintf("%d dimension names for %d dimensions", len(dims), len(shape))}
	}
	return nil
}

// validateMask checks that mask covers the source geometry exactly.
func validateMask(mask *domain.Mask, src domain.Geometry) error {
	if mask == nil {
		return nil
	}
	want, got := src.Shape(), mask.Shape()
	if !slices.Equal(want, got) {
		return &domain.ShapeMismatchError{Subject: "mask", Dim: firstDiffering(src.Dims(), want, got), Want: want, Got: got}
	}
	srcDims, maskDims := src.Dims(), mask.Dims()
	if len(srcDims) > 0 && len(maskDims) > 0 && !slices.Equal(srcDims, maskDims) {
		return &domain.ShapeMismatchError{Subject: "mask", Want: want, Got: got,
			Detail: fmt.Sprintf("dimensions %v do not match geometry dimensions %v", maskDims, srcDims)}
	}
	return nil
}

func firstDiffering(dims []string, want, got []int) string {
	if len(want) != len(got) {
		return ""
	}
	for k := range want {
		if want[k] != got[k] {
			if k < len(dims) {
				return dims[k]
			}
			return fmt.Sprintf("axis %d", k)
		}
	}
	return ""
}

// locateSpatialAxes returns the axis of data where the source geometry's
// spatial dimensions begin. Named data matched against a named geometry is
// located by name; otherwise the spatial dimensions are the leading axes.
func locateSpatialAxes(data *domain.Array, src domain.Geometry) (int, error) {
	if data == nil {
		return 0, errors.New("data array is nil")
	}
	shape, srcShape := data.Shape(), src.Shape()
	dataDims, srcDims := data.Dims(), src.Dims()
	if len(shape) < len(srcShape) {
		return 0, &domain.ShapeMismatchError{Subject: "data", Want: srcShape, Got: shape,
			Detail: fmt.Sprintf("data has %d dimensions, geometry needs %d", len(shape), len(srcShape))}
	}

	start := 0
	if len(dataDims) > 0 && len(srcDims) > 0 {
		start = slices.Index(dataDims, srcDims[0])
		if start < 0 {
			return 0, &domain.ShapeMismatchError{Subject: "data", Dim: srcDims[0], Want: srcShape, Got: shape,
				Detail: fmt.Sprintf("data dimensions %v lack spatial dimension %q", dataDims, srcDims[0])}
		}
		for k, name := range srcDims {
			if start+k >= len(dataDims) || dataDims[start+k] != name {
				return 0, &domain.ShapeMismatchError{Subject: "data", Dim: name, Want: srcShape, Got: shape,
					Detail: fmt.Sprintf("data dimensions %v must contain %v in order", dataDims, srcDims)}
			}
		}
	}

	for k, want := range srcShape {
		if shape[start+k] != want {
			dim := fmt.Sprintf("axis %d", start+k)
			if len(dataDims) > 0 {
				dim = dataDims[start+k]
			}
			return 0, &domain.ShapeMismatchError{Subject: "data", Dim: dim, Want: srcShape, Got: shape}
		}
	}
	return start, nil
}
