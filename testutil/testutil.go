// Package testutil provides helpers for tests and benchmarks: seeded random
// vector generation, exact nearest-neighbor ground truth, and recall
// computation.
package testutil

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/annlite/annlite/metric"
)

// RNG is a seeded random number generator, safe for concurrent use.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed int64
}

// NewRNG creates a new RNG with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset restores the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Float32 returns a pseudo-random number in [0, 1).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// Intn returns a non-negative pseudo-random number in [0, n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// FillUniform fills dst with random values in [0, 1).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// FillGaussian fills dst with standard normal values.
func (r *RNG) FillGaussian(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = float32(r.rand.NormFloat64())
	}
}

// UniformVectors returns n vectors of the given dimension with uniform
// components in [0, 1).
func (r *RNG) UniformVectors(n, dim int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = make([]float32, dim)
		r.FillUniform(vecs[i])
	}
	return vecs
}

// GaussianVectors returns n vectors of the given dimension with standard
// normal components.
func (r *RNG) GaussianVectors(n, dim int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		vecs[i] = make([]float32, dim)
		r.FillGaussian(vecs[i])
	}
	return vecs
}

// SearchResult is an exact-search hit used as ground truth.
type SearchResult struct {
	ID       uint32
	Distance float32
}

// ExactTopK computes the k nearest vectors to query by exhaustive scan,
// ascending by distance with ties broken by smaller ID.
func ExactTopK(query []float32, dataset [][]float32, k int, distance metric.Func) []SearchResult {
	results := make([]SearchResult, 0, len(dataset))
	for id, v := range dataset {
		results = append(results, SearchResult{ID: uint32(id), Distance: distance(query, v)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})

	if k < len(results) {
		results = results[:k]
	}
	return results
}

// Recall returns the fraction of exact results present in the approximate
// results.
func Recall(approx []uint32, exact []SearchResult) float64 {
	if len(exact) == 0 {
		return 1
	}

	found := 0
	set := make(map[uint32]struct{}, len(approx))
	for _, id := range approx {
		set[id] = struct{}{}
	}
	for _, r := range exact {
		if _, ok := set[r.ID]; ok {
			found++
		}
	}
	return float64(found) / float64(len(exact))
}
