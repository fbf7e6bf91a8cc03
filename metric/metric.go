// Package metric provides the distance functions used for vector comparison.
//
// The Func variants are unchecked hot-path kernels: they assume equal-length,
// validated inputs. The checked variants return errors and are meant for use
// at API boundaries.
package metric

import (
	"errors"

	"github.com/annlite/annlite/internal/math32"
)

var (
	// ErrVectorSizeMismatch is returned by checked functions when the two
	// vectors have different lengths.
	ErrVectorSizeMismatch = errors.New("vector sizes do not match")

	// ErrZeroMagnitude is returned by checked cosine functions when either
	// vector has zero L2 norm.
	ErrZeroMagnitude = errors.New("vector has zero magnitude")
)

// Func is a function type for unchecked distance calculation.
type Func func(a, b []float32) float32

// Dot calculates the dot product of two vectors.
func Dot(a, b []float32) float32 {
	return math32.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
func SquaredL2(a, b []float32) float32 {
	return math32.SquaredL2(a, b)
}

// Euclidean calculates the L2 norm of the difference of two vectors.
func Euclidean(a, b []float32) float32 {
	return math32.Sqrt(math32.SquaredL2(a, b))
}

// CosineDistance calculates 1 - cosineSimilarity(a, b).
// Zero-norm inputs must be rejected by the caller beforehand; if either
// magnitude is zero the result is undefined.
func CosineDistance(a, b []float32) float32 {
	return 1 - math32.Dot(a, b)/(math32.Norm(a)*math32.Norm(b))
}

// Magnitude calculates the L2 norm (length) of v.
func Magnitude(v []float32) float32 {
	return math32.Norm(v)
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// It fails if the vector sizes differ or either vector has zero norm.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrVectorSizeMismatch
	}

	na := math32.Norm(a)
	nb := math32.Norm(b)
	if na == 0 || nb == 0 {
		return 0, ErrZeroMagnitude
	}

	return math32.Dot(a, b) / (na * nb), nil
}

// Distance calculates the checked distance between two vectors using fn.
// It fails if the vector sizes differ.
func Distance(fn Func, a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrVectorSizeMismatch
	}
	return fn(a, b), nil
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm := math32.Norm(v)
	if norm == 0 {
		return false
	}
	math32.ScaleInPlace(v, 1/norm)
	return true
}
