// Package flat provides an exact, linear-scan vector index. It trades query
// time for perfect recall and serves as the ground-truth reference for the
// approximate indexes.
package flat

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/annlite/annlite/index"
	"github.com/annlite/annlite/internal/queue"
	"github.com/annlite/annlite/metric"
)

// Compile-time check
var _ index.Index = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the vector dimensionality. If 0, it is established by the
	// first inserted vector.
	Dimension int

	// DistanceType selects the distance metric.
	DistanceType index.DistanceType
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	DistanceType: index.DistanceTypeEuclidean,
}

// Flat is an exact index backed by a plain vector slice. Like the HNSW index
// it is single-writer; the caller provides exclusion between Insert and reads.
type Flat struct {
	dimension    int
	vectors      [][]float32
	distanceFunc index.DistanceFunc
	opts         Options
}

// New creates a new flat index.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	distanceFunc, err := index.NewDistanceFunc(opts.DistanceType)
	if err != nil {
		return nil, err
	}

	return &Flat{
		dimension:    opts.Dimension,
		distanceFunc: distanceFunc,
		opts:         opts,
	}, nil
}

func (f *Flat) validate(v []float32) error {
	if len(v) == 0 {
		return index.ErrEmptyVector
	}
	if f.dimension != 0 && len(v) != f.dimension {
		return &index.ErrDimensionMismatch{Expected: f.dimension, Actual: len(v)}
	}
	if f.opts.DistanceType == index.DistanceTypeCosine && metric.Magnitude(v) == 0 {
		return index.ErrZeroVector
	}
	return nil
}

// Insert adds a vector and returns its assigned ID.
func (f *Flat) Insert(ctx context.Context, v []float32) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := f.validate(v); err != nil {
		return 0, err
	}
	if f.dimension == 0 {
		f.dimension = len(v)
	}

	vec := make([]float32, len(v))
	copy(vec, v)

	id := uint32(len(f.vectors))
	f.vectors = append(f.vectors, vec)
	return id, nil
}

// KNNSearch returns the k exact nearest neighbors of q. SearchOptions.EF is
// ignored; the scan is always exhaustive.
func (f *Flat) KNNSearch(ctx context.Context, q []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, error) {
	var filter func(id uint32) bool
	if opts != nil {
		filter = opts.Filter
	}
	return f.BruteSearch(ctx, q, k, filter)
}

// BruteSearch performs the linear scan over all stored vectors.
func (f *Flat) BruteSearch(ctx context.Context, q []float32, k int, filter func(id uint32) bool) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if len(f.vectors) == 0 {
		return nil, nil
	}
	if err := f.validate(q); err != nil {
		return nil, err
	}

	top := queue.NewMax(k)
	for id, vec := range f.vectors {
		if filter != nil && !filter(uint32(id)) {
			continue
		}

		d := f.distanceFunc(q, vec)
		if top.Len() < k {
			top.Push(queue.Item{Node: uint32(id), Distance: d})
			continue
		}
		if worst, _ := top.Top(); d < worst.Distance {
			top.Pop()
			top.Push(queue.Item{Node: uint32(id), Distance: d})
		}
	}

	res := make([]index.SearchResult, top.Len())
	for i := top.Len() - 1; i >= 0; i-- {
		item, _ := top.Pop()
		res[i] = index.SearchResult{ID: item.Node, Distance: item.Distance}
	}
	return res, nil
}

// VectorByID returns the stored vector for the given ID.
func (f *Flat) VectorByID(id uint32) ([]float32, error) {
	if int(id) >= len(f.vectors) {
		return nil, &index.ErrNodeNotFound{ID: id}
	}
	return f.vectors[id], nil
}

// VectorCount returns the number of indexed vectors.
func (f *Flat) VectorCount() int { return len(f.vectors) }

// Dimension returns the established dimensionality, or 0 if no vector has
// been inserted into an auto-dimension index yet.
func (f *Flat) Dimension() int { return f.dimension }

type persistedFlat struct {
	Dimension    int
	DistanceType int
	Vectors      [][]float32
}

// GobEncode implements gob.GobEncoder.
func (f *Flat) GobEncode() ([]byte, error) {
	pf := persistedFlat{
		Dimension:    f.dimension,
		DistanceType: int(f.opts.DistanceType),
		Vectors:      f.vectors,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(pf); err != nil {
		return nil, fmt.Errorf("flat: encode index: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (f *Flat) GobDecode(data []byte) error {
	var pf persistedFlat
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&pf); err != nil {
		return fmt.Errorf("flat: decode index: %w", err)
	}

	rebuilt, err := New(func(o *Options) {
		o.Dimension = pf.Dimension
		o.DistanceType = index.DistanceType(pf.DistanceType)
	})
	if err != nil {
		return err
	}
	rebuilt.vectors = pf.Vectors

	*f = *rebuilt
	return nil
}
