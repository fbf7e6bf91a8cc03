package index

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyVector is returned when a zero-length vector is inserted or queried.
	ErrEmptyVector = errors.New("vector must not be empty")

	// ErrZeroVector is returned when a zero-norm vector is used with the
	// cosine metric, where direction is required.
	ErrZeroVector = errors.New("zero-norm vector has no direction")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// ErrDimensionMismatch indicates that a vector's length disagrees with the
// dimensionality established by the index.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrUnsupportedDistanceType indicates an unrecognized distance metric name.
// It is returned at construction time only.
type ErrUnsupportedDistanceType struct {
	Space string
}

func (e *ErrUnsupportedDistanceType) Error() string {
	return fmt.Sprintf("unsupported distance metric: %q", e.Space)
}

// ErrNodeNotFound indicates that no node exists for the given ID.
type ErrNodeNotFound struct {
	ID uint32
}

func (e *ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node not found: %d", e.ID)
}
