// Package index provides the shared contract types for vector search indexes.
package index

import (
	"context"
	"encoding/gob"
	"fmt"

	"github.com/annlite/annlite/metric"
)

// DistanceType represents the distance metric used for vector comparison.
type DistanceType int

const (
	// DistanceTypeEuclidean is the L2 norm of the difference of two vectors.
	DistanceTypeEuclidean DistanceType = iota

	// DistanceTypeCosine is 1 - cosine similarity. Zero-norm vectors are
	// rejected at the validation boundary since their direction is undefined.
	DistanceTypeCosine
)

// String returns a string representation of the DistanceType.
func (dt DistanceType) String() string {
	switch dt {
	case DistanceTypeEuclidean:
		return "euclidean"
	case DistanceTypeCosine:
		return "cosine"
	default:
		return fmt.Sprintf("unknown(%d)", int(dt))
	}
}

// ParseDistanceType maps a metric name ("euclidean", "cosine") to its
// DistanceType. Unrecognized names fail with ErrUnsupportedDistanceType.
func ParseDistanceType(space string) (DistanceType, error) {
	switch space {
	case "euclidean":
		return DistanceTypeEuclidean, nil
	case "cosine":
		return DistanceTypeCosine, nil
	default:
		return 0, &ErrUnsupportedDistanceType{Space: space}
	}
}

// DistanceFunc calculates the distance between two equal-length vectors.
// Implementations assume inputs have been validated.
type DistanceFunc = metric.Func

// NewDistanceFunc returns the distance function for the given distance type.
func NewDistanceFunc(dt DistanceType) (DistanceFunc, error) {
	switch dt {
	case DistanceTypeEuclidean:
		return metric.Euclidean, nil
	case DistanceTypeCosine:
		return metric.CosineDistance, nil
	default:
		return nil, &ErrUnsupportedDistanceType{Space: dt.String()}
	}
}

// SearchResult represents a single search hit.
type SearchResult struct {
	// ID is the identifier of the matched node.
	ID uint32

	// Distance is the distance between the query vector and the result vector.
	Distance float32
}

// SearchOptions controls a KNN search.
type SearchOptions struct {
	// EF is the size of the dynamic candidate list at the base layer.
	// If 0, the index default (at least k) is used.
	EF int

	// Filter restricts results to IDs for which it returns true.
	// The graph is still traversed through filtered-out nodes.
	Filter func(id uint32) bool
}

// Index is the contract implemented by the vector indexes in this module.
//
// Implementations are safe for concurrent reads, but Insert must not run
// concurrently with any other operation; callers provide the write exclusion
// (see the root package facade).
type Index interface {
	gob.GobEncoder
	gob.GobDecoder

	// Insert adds a vector to the index and returns its assigned ID.
	Insert(ctx context.Context, v []float32) (uint32, error)

	// KNNSearch returns the k approximate nearest neighbors of q,
	// ascending by distance. An empty index yields an empty result.
	KNNSearch(ctx context.Context, q []float32, k int, opts *SearchOptions) ([]SearchResult, error)

	// BruteSearch returns the k exact nearest neighbors of q by linear scan.
	BruteSearch(ctx context.Context, q []float32, k int, filter func(id uint32) bool) ([]SearchResult, error)

	// VectorByID returns the stored vector for the given ID.
	VectorByID(id uint32) ([]float32, error)

	// VectorCount returns the number of indexed vectors.
	VectorCount() int

	// Dimension returns the vector dimensionality, or 0 if it has not been
	// established yet.
	Dimension() int
}

// LevelStats describes one layer of a layered graph index.
type LevelStats struct {
	Level          int
	Nodes          int
	Connections    int
	AvgConnections int
}

// Stats is a point-in-time snapshot of index shape.
type Stats struct {
	Nodes    int
	MaxLevel int
	Levels   []LevelStats
}
