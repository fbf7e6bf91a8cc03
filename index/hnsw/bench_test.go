package hnsw

import (
	"context"
	"testing"

	"github.com/annlite/annlite/index"
	"github.com/annlite/annlite/testutil"
)

func benchGraph(b *testing.B, n, dim int) (*HNSW, [][]float32) {
	b.Helper()

	rng := testutil.NewRNG(1)
	vectors := rng.UniformVectors(n, dim)

	h, err := New(seeded(1))
	if err != nil {
		b.Fatalf("new: %v", err)
	}
	for _, v := range vectors {
		if _, err := h.Insert(context.Background(), v); err != nil {
			b.Fatalf("insert: %v", err)
		}
	}

	queries := rng.UniformVectors(256, dim)
	return h, queries
}

func BenchmarkInsert(b *testing.B) {
	rng := testutil.NewRNG(1)
	vectors := rng.UniformVectors(10_000, 64)

	h, err := New(seeded(1))
	if err != nil {
		b.Fatalf("new: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := h.Insert(context.Background(), vectors[i%len(vectors)]); err != nil {
			b.Fatalf("insert: %v", err)
		}
	}
}

func BenchmarkKNNSearch(b *testing.B) {
	h, queries := benchGraph(b, 10_000, 64)
	opts := &index.SearchOptions{EF: 64}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := h.KNNSearch(context.Background(), queries[i%len(queries)], 10, opts); err != nil {
			b.Fatalf("search: %v", err)
		}
	}
}

func BenchmarkBruteSearch(b *testing.B) {
	h, queries := benchGraph(b, 10_000, 64)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := h.BruteSearch(context.Background(), queries[i%len(queries)], 10, nil); err != nil {
			b.Fatalf("search: %v", err)
		}
	}
}
