package annlite

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annlite/annlite/blobstore"
	"github.com/annlite/annlite/metadata"
	"github.com/annlite/annlite/persistence"
)

// fixture returns a database preloaded with five 3-dimensional vectors.
func fixture(t *testing.T, optFns ...func(o *Options)) *AnnLite {
	t.Helper()

	optFns = append([]func(o *Options){WithSeed(42)}, optFns...)
	db, err := New(3, optFns...)
	require.NoError(t, err)

	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0.5, 0.5, 0},
		{0.3, 0.3, 0.3},
	}
	for i, v := range vectors {
		id, err := db.Insert(context.Background(), v, nil)
		require.NoError(t, err)
		require.Equal(t, uint32(i), id)
	}
	return db
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		db, err := New(0)
		require.NoError(t, err)
		assert.Equal(t, 0, db.Dimension())
		assert.Equal(t, 0, db.Len())
	})

	t.Run("unsupported space", func(t *testing.T) {
		_, err := New(3, func(o *Options) { o.Space = "manhattan" })
		require.Error(t, err)

		var us *ErrUnsupportedSpace
		require.ErrorAs(t, err, &us)
		assert.Equal(t, "manhattan", us.Space)
	})
}

func TestInsert(t *testing.T) {
	ctx := context.Background()

	t.Run("dimension established by first insert", func(t *testing.T) {
		db, err := New(0)
		require.NoError(t, err)

		_, err = db.Insert(ctx, []float32{1, 2, 3, 4}, nil)
		require.NoError(t, err)
		assert.Equal(t, 4, db.Dimension())

		_, err = db.Insert(ctx, []float32{1, 2}, nil)
		var dm *ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 4, dm.Expected)
		assert.Equal(t, 2, dm.Actual)
	})

	t.Run("empty vector", func(t *testing.T) {
		db := fixture(t)

		_, err := db.Insert(ctx, nil, nil)
		require.ErrorIs(t, err, ErrEmptyVector)
		assert.Equal(t, 5, db.Len())
	})

	t.Run("zero vector under cosine", func(t *testing.T) {
		db, err := New(3, WithCosine())
		require.NoError(t, err)

		_, err = db.Insert(ctx, []float32{0, 0, 0}, nil)
		require.ErrorIs(t, err, ErrZeroVector)
		assert.Equal(t, 0, db.Len())
	})
}

func TestKNNSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("ordering and score sign", func(t *testing.T) {
		db := fixture(t)

		results, err := db.KNNSearch(ctx, []float32{0.3, 0.3, 0.3}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, uint32(4), results[0].Node.ID)
		assert.Equal(t, float32(0), results[0].Score)
		assert.Equal(t, uint32(3), results[1].Node.ID)

		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
		}
	})

	t.Run("empty database", func(t *testing.T) {
		db, err := New(3)
		require.NoError(t, err)

		results, err := db.KNNSearch(ctx, []float32{1, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("invalid k", func(t *testing.T) {
		db := fixture(t)

		_, err := db.KNNSearch(ctx, []float32{1, 0, 0}, 0)
		require.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("fewer vectors than k", func(t *testing.T) {
		db := fixture(t)

		results, err := db.KNNSearch(ctx, []float32{1, 0, 0}, 100)
		require.NoError(t, err)
		assert.Len(t, results, 5)
	})

	t.Run("id filter", func(t *testing.T) {
		db := fixture(t)

		results, err := db.KNNSearch(ctx, []float32{0.3, 0.3, 0.3}, 5, func(o *KNNSearchOptions) {
			o.Filter = func(id uint32) bool { return id%2 == 0 }
		})
		require.NoError(t, err)
		for _, r := range results {
			assert.Zero(t, r.Node.ID%2)
		}
	})

	t.Run("exact scan", func(t *testing.T) {
		db := fixture(t)

		results, err := db.KNNSearch(ctx, []float32{0.3, 0.3, 0.3}, 2, func(o *KNNSearchOptions) {
			o.Exact = true
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, uint32(4), results[0].Node.ID)
	})
}

func TestSearchBuilder(t *testing.T) {
	ctx := context.Background()

	t.Run("knn and ef", func(t *testing.T) {
		db := fixture(t)

		results, err := db.Search([]float32{0.3, 0.3, 0.3}).KNN(2).EF(16).Execute(ctx)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, uint32(4), results[0].Node.ID)
	})

	t.Run("ef below k", func(t *testing.T) {
		db := fixture(t)

		_, err := db.Search([]float32{0.3, 0.3, 0.3}).KNN(5).EF(2).Execute(ctx)
		require.ErrorIs(t, err, ErrInvalidEFValue)
	})

	t.Run("default top n", func(t *testing.T) {
		db := fixture(t)

		results, err := db.Search([]float32{1, 0, 0}).Execute(ctx)
		require.NoError(t, err)
		assert.Len(t, results, 5)
	})

	t.Run("filter", func(t *testing.T) {
		db := fixture(t)

		results, err := db.Search([]float32{0.3, 0.3, 0.3}).
			KNN(5).
			Filter(func(id uint32) bool { return id < 2 }).
			Execute(ctx)
		require.NoError(t, err)
		for _, r := range results {
			assert.Less(t, r.Node.ID, uint32(2))
		}
	})
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()

	db, err := New(2, WithSeed(7))
	require.NoError(t, err)

	docs := []metadata.Metadata{
		{"color": "red", "size": 1},
		{"color": "blue", "size": 2},
		{"color": "red", "size": 3},
		nil,
	}
	for i, doc := range docs {
		_, err := db.Insert(ctx, []float32{float32(i), float32(i)}, doc)
		require.NoError(t, err)
	}

	t.Run("node view carries metadata", func(t *testing.T) {
		node, err := db.Node(0)
		require.NoError(t, err)
		assert.Equal(t, "red", node.Metadata["color"])

		node, err = db.Node(3)
		require.NoError(t, err)
		assert.Nil(t, node.Metadata)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := db.Node(99)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("where filter", func(t *testing.T) {
		results, err := db.Search([]float32{0, 0}).
			KNN(4).
			Where(metadata.Eq("color", "red")).
			Execute(ctx)
		require.NoError(t, err)

		ids := make([]uint32, 0, len(results))
		for _, r := range results {
			ids = append(ids, r.Node.ID)
		}
		assert.ElementsMatch(t, []uint32{0, 2}, ids)
	})

	t.Run("conjunction", func(t *testing.T) {
		results, err := db.Search([]float32{0, 0}).
			KNN(4).
			Where(metadata.Eq("color", "red"), metadata.Eq("size", 3)).
			Execute(ctx)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint32(2), results[0].Node.ID)
	})
}

func TestBatchInsert(t *testing.T) {
	ctx := context.Background()

	db, err := New(2, WithSeed(1))
	require.NoError(t, err)

	result := db.BatchInsert(ctx, []BatchInsertItem{
		{Vector: []float32{1, 0}},
		{Vector: []float32{1, 2, 3}}, // wrong dimension
		{Vector: []float32{0, 1}, Metadata: metadata.Metadata{"tag": "b"}},
	})

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 3)
	assert.NoError(t, result.Errors[0])
	assert.Error(t, result.Errors[1])
	assert.NoError(t, result.Errors[2])

	assert.Equal(t, 2, db.Len())

	node, err := db.Node(result.IDs[2])
	require.NoError(t, err)
	assert.Equal(t, "b", node.Metadata["tag"])
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()

	build := func(t *testing.T, optFns ...func(o *Options)) *AnnLite {
		t.Helper()

		db, err := New(2, append([]func(o *Options){WithSeed(11)}, optFns...)...)
		require.NoError(t, err)

		for i := 0; i < 50; i++ {
			_, err := db.Insert(ctx, []float32{float32(i), float32(50 - i)}, metadata.Metadata{"i": i})
			require.NoError(t, err)
		}
		return db
	}

	verify := func(t *testing.T, restored *AnnLite, original *AnnLite) {
		t.Helper()

		require.Equal(t, original.Len(), restored.Len())
		require.Equal(t, original.Dimension(), restored.Dimension())

		query := []float32{25, 25}
		want, err := original.KNNSearch(ctx, query, 10)
		require.NoError(t, err)
		got, err := restored.KNNSearch(ctx, query, 10)
		require.NoError(t, err)
		assert.Equal(t, want, got)

		node, err := restored.Node(7)
		require.NoError(t, err)
		assert.Equal(t, 7, node.Metadata["i"])
	}

	t.Run("writer round trip", func(t *testing.T) {
		db := build(t)

		var buf bytes.Buffer
		require.NoError(t, db.SaveSnapshot(ctx, &buf))

		restored, err := LoadSnapshot(ctx, &buf)
		require.NoError(t, err)
		verify(t, restored, db)
	})

	t.Run("file round trip", func(t *testing.T) {
		db := build(t)
		path := filepath.Join(t.TempDir(), "index.annlite")

		require.NoError(t, db.SaveSnapshotToFile(ctx, path))

		restored, err := LoadSnapshotFromFile(ctx, path)
		require.NoError(t, err)
		verify(t, restored, db)
	})

	t.Run("blob round trip", func(t *testing.T) {
		db := build(t)
		store := blobstore.NewMemoryStore()

		require.NoError(t, db.SaveSnapshotToBlob(ctx, store, "snapshots/index"))

		restored, err := LoadSnapshotFromBlob(ctx, store, "snapshots/index")
		require.NoError(t, err)
		verify(t, restored, db)
	})

	t.Run("exact index round trip", func(t *testing.T) {
		db := build(t, func(o *Options) { o.Exact = true })

		var buf bytes.Buffer
		require.NoError(t, db.SaveSnapshot(ctx, &buf))

		restored, err := LoadSnapshot(ctx, &buf)
		require.NoError(t, err)
		verify(t, restored, db)
	})

	t.Run("uncompressed", func(t *testing.T) {
		db := build(t, func(o *Options) { o.Compression = persistence.CompressionNone })

		var buf bytes.Buffer
		require.NoError(t, db.SaveSnapshot(ctx, &buf))

		restored, err := LoadSnapshot(ctx, &buf)
		require.NoError(t, err)
		verify(t, restored, db)
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	db := fixture(t)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err := db.Insert(ctx, []float32{1, 0, 0}, nil)
	require.ErrorIs(t, err, ErrClosed)

	_, err = db.KNNSearch(ctx, []float32{1, 0, 0}, 1)
	require.ErrorIs(t, err, ErrClosed)

	_, err = db.Node(0)
	require.ErrorIs(t, err, ErrClosed)

	err = db.SaveSnapshot(ctx, &bytes.Buffer{})
	require.ErrorIs(t, err, ErrClosed)
}

func TestExactIndex(t *testing.T) {
	ctx := context.Background()

	db, err := New(2, func(o *Options) { o.Exact = true })
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		_, err := db.Insert(ctx, []float32{float32(i), 0}, nil)
		require.NoError(t, err)
	}

	results, err := db.KNNSearch(ctx, []float32{7.2, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, uint32(7), results[0].Node.ID)

	stats := db.Stats()
	assert.Equal(t, 20, stats.Nodes)
	assert.Equal(t, 0, stats.MaxLevel)
}

func TestStats(t *testing.T) {
	db := fixture(t)

	stats := db.Stats()
	assert.Equal(t, 5, stats.Nodes)
	assert.NotEmpty(t, stats.Levels)
	assert.Equal(t, 5, stats.Levels[0].Nodes)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()

	metrics := &BasicMetricsCollector{}
	db, err := New(2, WithMetrics(metrics), WithSeed(3))
	require.NoError(t, err)

	_, err = db.Insert(ctx, []float32{1, 2}, nil)
	require.NoError(t, err)
	_, err = db.Insert(ctx, nil, nil)
	require.Error(t, err)

	_, err = db.KNNSearch(ctx, []float32{1, 2}, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(2), metrics.InsertCount.Load())
	assert.Equal(t, int64(1), metrics.InsertErrors.Load())
	assert.Equal(t, int64(1), metrics.SearchCount.Load())
	assert.Equal(t, int64(0), metrics.SearchErrors.Load())
}

func TestConcurrentSearches(t *testing.T) {
	ctx := context.Background()
	db := fixture(t)

	var wg sync.WaitGroup
	errCh := make(chan error, 16)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			q := []float32{float32(i) / 16, 0.3, 0.3}
			if _, err := db.KNNSearch(ctx, q, 3); err != nil {
				errCh <- fmt.Errorf("search %d: %w", i, err)
			}
		}(i)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Error(err)
	}
}

func TestLoadSnapshotRejectsGarbage(t *testing.T) {
	garbage := bytes.Repeat([]byte("not a snapshot"), 4)
	_, err := LoadSnapshot(context.Background(), bytes.NewReader(garbage))
	require.ErrorIs(t, err, persistence.ErrInvalidMagic)
}
