package domain

import (
	"errors"
	"fmt"
)

// ErrResolutionUnavailable is returned by resolution estimators that cannot
// produce an estimate for a geometry.
var ErrResolutionUnavailable = errors.New("geocentric resolution unavailable")

// ShapeMismatchError reports data, mask or geometry dimensions that disagree.
type ShapeMismatchError struct {
	// Subject is what was checked, e.g. "data" or "mask".
	Subject string
	// Dim names the disagreeing dimension; empty when the rank differs.
	Dim  string
	Want []int
	Got  []int
	// Detail is an optional free-form explanation.
	Detail string
}

func (e *ShapeMismatchError) Error() string {
	msg := fmt.Sprintf("'%s' shape %v does not match geometry shape %v", e.Subject, e.Got, e.Want)
	if e.Dim != "" {
		msg += fmt.Sprintf(" (dimension %q)", e.Dim)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// UnsupportedNeighborCountError is returned when more than one neighbour is
// requested.
type UnsupportedNeighborCountError struct {
	Requested int
}

func (e *UnsupportedNeighborCountError) Error() string {
	return fmt.Sprintf("neighbours=%d is not supported, only a single nearest neighbour can be resampled", e.Requested)
}

// IsShapeMismatch reports whether err wraps a ShapeMismatchError.
func IsShapeMismatch(err error) bool {
	var target *ShapeMismatchError
	return errors.As(err, &target)
}
