package annlite

import (
	"errors"
	"fmt"

	"github.com/annlite/annlite/index"
)

var (
	// ErrNotFound is returned when an item is not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidEFValue is returned when the explore factor (ef) is less
	// than the value of k.
	ErrInvalidEFValue = errors.New("explore factor (ef) must be at least the value of k")

	// ErrClosed is returned when operations are attempted on a closed
	// database.
	ErrClosed = errors.New("database is closed")

	// ErrEmptyVector is returned when an empty vector is inserted or used
	// as a query.
	ErrEmptyVector = errors.New("vector must not be empty")

	// ErrZeroVector is returned under the cosine space when a vector has
	// zero magnitude and no direction.
	ErrZeroVector = errors.New("zero vector has no direction under cosine")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrUnsupportedSpace indicates an unrecognized distance space name.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrUnsupportedSpace struct {
	Space string
	cause error
}

func (e *ErrUnsupportedSpace) Error() string {
	return fmt.Sprintf("unsupported space: %q", e.Space)
}

func (e *ErrUnsupportedSpace) Unwrap() error { return e.cause }

// translateError maps index-level errors onto the public error surface.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var nf *index.ErrNodeNotFound
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	var us *index.ErrUnsupportedDistanceType
	if errors.As(err, &us) {
		return &ErrUnsupportedSpace{Space: us.Space, cause: err}
	}

	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}
	if errors.Is(err, index.ErrEmptyVector) {
		return fmt.Errorf("%w: %w", ErrEmptyVector, err)
	}
	if errors.Is(err, index.ErrZeroVector) {
		return fmt.Errorf("%w: %w", ErrZeroVector, err)
	}

	return err
}
