// Package annlite provides an embeddable approximate nearest neighbor
// database built on a Hierarchical Navigable Small World (HNSW) graph, with
// optional metadata filtering, binary snapshots, and pluggable blob storage.
package annlite

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/annlite/annlite/blobstore"
	"github.com/annlite/annlite/codec"
	"github.com/annlite/annlite/index"
	"github.com/annlite/annlite/index/flat"
	"github.com/annlite/annlite/index/hnsw"
	"github.com/annlite/annlite/metadata"
	"github.com/annlite/annlite/persistence"
	"github.com/annlite/annlite/resource"
)

// Index type names stored in snapshot manifests.
const (
	indexTypeHNSW = "hnsw"
	indexTypeFlat = "flat"
)

// NodeView is a read-only view of a stored vector.
type NodeView struct {
	// ID is the identifier assigned at insertion.
	ID uint32

	// Vector is the stored vector. Callers must not modify it.
	Vector []float32

	// Metadata is the metadata attached at insertion, or nil.
	Metadata metadata.Metadata

	// Level is the node's top layer in the HNSW graph. Diagnostic only;
	// always 0 for the exact index.
	Level int
}

// SearchResult represents a single search hit.
type SearchResult struct {
	// Node is the matched vector.
	Node NodeView

	// Score is the negated distance to the query. Results are ordered by
	// descending score; a score of 0 is an exact match.
	Score float32
}

// BatchInsertItem is one vector plus its metadata for BatchInsert.
type BatchInsertItem struct {
	Vector   []float32
	Metadata metadata.Metadata
}

// BatchInsertResult reports the outcome of a BatchInsert per item.
type BatchInsertResult struct {
	// IDs holds the assigned ID for each item. The value is only
	// meaningful where the corresponding Errors entry is nil.
	IDs []uint32

	// Errors holds the per-item insertion error, nil on success.
	Errors []error

	// Failed is the number of items that were not inserted.
	Failed int
}

// AnnLite is an embeddable vector database.
//
// All methods are safe for concurrent use. Writes take the exclusive lock;
// searches and reads share it.
type AnnLite struct {
	mu     sync.RWMutex
	closed bool

	idx       index.Index
	indexType string
	meta      *metadata.Store

	opts    Options
	logger  *Logger
	metrics MetricsCollector
}

// New creates a database for vectors of the given dimensionality. A
// dimension of 0 defers it to the first inserted vector.
func New(dimension int, optFns ...func(o *Options)) (*AnnLite, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &AnnLite{
		meta:    metadata.NewStore(),
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if a.logger == nil {
		a.logger = NoopLogger()
	}
	if a.metrics == nil {
		a.metrics = NoopMetricsCollector{}
	}

	dt, err := index.ParseDistanceType(opts.Space)
	if err != nil {
		return nil, translateError(err)
	}

	if opts.Exact {
		idx, err := flat.New(func(o *flat.Options) {
			o.Dimension = dimension
			o.DistanceType = dt
		})
		if err != nil {
			return nil, translateError(err)
		}
		a.idx, a.indexType = idx, indexTypeFlat
		return a, nil
	}

	idx, err := hnsw.New(func(o *hnsw.Options) {
		o.Dimension = dimension
		o.DistanceType = dt
		if opts.M > 0 {
			o.M = opts.M
		}
		if opts.MMax0 > 0 {
			o.MMax0 = opts.MMax0
		}
		if opts.EFConstruction > 0 {
			o.EFConstruction = opts.EFConstruction
		}
		o.Heuristic = opts.Heuristic
		o.RandomSeed = opts.RandomSeed
	})
	if err != nil {
		return nil, translateError(err)
	}

	a.idx, a.indexType = idx, indexTypeHNSW
	return a, nil
}

// Insert adds a vector with optional metadata and returns its assigned ID.
// The vector is validated before any state changes; a failed insert leaves
// the database untouched.
func (a *AnnLite) Insert(ctx context.Context, vector []float32, meta metadata.Metadata) (uint32, error) {
	start := time.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	id, err := a.insertLocked(ctx, vector, meta)

	a.logger.LogInsert(ctx, id, len(vector), err)
	a.metrics.RecordInsert(time.Since(start), err)

	return id, err
}

func (a *AnnLite) insertLocked(ctx context.Context, vector []float32, meta metadata.Metadata) (uint32, error) {
	if a.closed {
		return 0, ErrClosed
	}

	id, err := a.idx.Insert(ctx, vector)
	if err != nil {
		return 0, translateError(err)
	}

	if meta != nil {
		a.meta.Set(id, meta)
	}
	return id, nil
}

// BatchInsert inserts the items in order under a single write lock. Items
// that fail validation are skipped; the remaining items are still inserted.
func (a *AnnLite) BatchInsert(ctx context.Context, items []BatchInsertItem) BatchInsertResult {
	start := time.Now()

	result := BatchInsertResult{
		IDs:    make([]uint32, len(items)),
		Errors: make([]error, len(items)),
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, item := range items {
		id, err := a.insertLocked(ctx, item.Vector, item.Metadata)
		result.IDs[i] = id
		result.Errors[i] = err

		if err != nil {
			result.Failed++
		}
	}

	a.logger.LogBatchInsert(ctx, len(items), result.Failed)
	a.metrics.RecordBatchInsert(len(items), result.Failed, time.Since(start))

	return result
}

// KNNSearchOptions controls a KNN search.
type KNNSearchOptions struct {
	// EF overrides the candidate list size for this query. Must be at
	// least the requested number of neighbors. If 0, the configured
	// EFSearch (or EFConstruction) is used, raised to k if smaller.
	EF int

	// Exact forces an exhaustive scan instead of the graph search.
	Exact bool

	// Filter restricts results to IDs for which it returns true.
	Filter func(id uint32) bool

	// Metadata restricts results to nodes whose metadata matches every
	// filter in the set.
	Metadata metadata.FilterSet
}

// KNNSearch returns the topN nearest neighbors of query in descending score
// order, where score is the negated distance. Fewer than topN results are
// returned when the database holds fewer matching vectors.
func (a *AnnLite) KNNSearch(ctx context.Context, query []float32, topN int, optFns ...func(o *KNNSearchOptions)) ([]SearchResult, error) {
	start := time.Now()

	var opts KNNSearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	results, err := a.searchLocked(ctx, query, topN, &opts)

	a.logger.LogSearch(ctx, topN, len(results), err)
	a.metrics.RecordSearch(topN, time.Since(start), err)

	return results, err
}

func (a *AnnLite) searchLocked(ctx context.Context, query []float32, topN int, opts *KNNSearchOptions) ([]SearchResult, error) {
	if a.closed {
		return nil, ErrClosed
	}

	filter := a.composeFilter(opts)

	var (
		hits []index.SearchResult
		err  error
	)

	if opts.Exact {
		hits, err = a.idx.BruteSearch(ctx, query, topN, filter)
	} else {
		ef, eferr := a.effectiveEF(opts.EF, topN)
		if eferr != nil {
			return nil, eferr
		}
		hits, err = a.idx.KNNSearch(ctx, query, topN, &index.SearchOptions{EF: ef, Filter: filter})
	}
	if err != nil {
		return nil, translateError(err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		node, err := a.nodeLocked(hit.ID)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Node: node, Score: -hit.Distance})
	}
	return results, nil
}

// composeFilter conjoins the metadata predicate with the caller's filter.
func (a *AnnLite) composeFilter(opts *KNNSearchOptions) func(id uint32) bool {
	pred := a.meta.Predicate(opts.Metadata)
	if pred == nil {
		return opts.Filter
	}
	if opts.Filter == nil {
		return pred
	}

	user := opts.Filter
	return func(id uint32) bool {
		return pred(id) && user(id)
	}
}

func (a *AnnLite) effectiveEF(explicit, k int) (int, error) {
	if explicit > 0 {
		if explicit < k {
			return 0, fmt.Errorf("%w: ef %d is less than k %d", ErrInvalidEFValue, explicit, k)
		}
		return explicit, nil
	}

	ef := a.opts.EFSearch
	if ef == 0 {
		ef = a.opts.EFConstruction
	}
	if ef == 0 {
		ef = hnsw.DefaultEFConstruction
	}
	if ef < k {
		ef = k
	}
	return ef, nil
}

// Node returns a read-only view of the vector with the given ID.
func (a *AnnLite) Node(id uint32) (NodeView, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return NodeView{}, ErrClosed
	}
	return a.nodeLocked(id)
}

func (a *AnnLite) nodeLocked(id uint32) (NodeView, error) {
	vector, err := a.idx.VectorByID(id)
	if err != nil {
		return NodeView{}, translateError(err)
	}

	node := NodeView{ID: id, Vector: vector}
	if doc, ok := a.meta.Get(id); ok {
		node.Metadata = doc
	}
	if leveler, ok := a.idx.(interface{ Level(id uint32) (int, error) }); ok {
		if level, err := leveler.Level(id); err == nil {
			node.Level = level
		}
	}
	return node, nil
}

// Len returns the number of stored vectors.
func (a *AnnLite) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.idx.VectorCount()
}

// Dimension returns the vector dimensionality, or 0 if no vector has been
// inserted into a dimensionless database yet.
func (a *AnnLite) Dimension() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.idx.Dimension()
}

// Stats returns a point-in-time snapshot of index shape.
func (a *AnnLite) Stats() index.Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if s, ok := a.idx.(interface{ Stats() index.Stats }); ok {
		return s.Stats()
	}
	return index.Stats{Nodes: a.idx.VectorCount()}
}

// Close marks the database closed. Subsequent operations fail with
// ErrClosed. Close is idempotent.
func (a *AnnLite) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	return nil
}

// SaveSnapshot writes the full database state to w.
func (a *AnnLite) SaveSnapshot(ctx context.Context, w io.Writer) error {
	start := time.Now()
	err := a.saveSnapshot(ctx, w)

	a.logger.LogSnapshot(ctx, "save", "", err)
	a.metrics.RecordSnapshot(time.Since(start), err)

	return err
}

func (a *AnnLite) saveSnapshot(ctx context.Context, w io.Writer) error {
	snap, err := a.snapshot()
	if err != nil {
		return err
	}

	return persistence.Write(resource.NewRateLimitedWriter(ctx, w, a.opts.Resource), snap, func(o *persistence.Options) {
		o.Compression = a.opts.Compression
		o.Codec = a.snapshotCodec()
	})
}

// snapshot captures the serialized state under the read lock.
func (a *AnnLite) snapshot() (*persistence.Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, ErrClosed
	}

	idxBytes, err := a.idx.GobEncode()
	if err != nil {
		return nil, fmt.Errorf("annlite: encode index: %w", err)
	}

	metaBytes, err := a.meta.GobEncode()
	if err != nil {
		return nil, fmt.Errorf("annlite: encode metadata: %w", err)
	}

	return &persistence.Snapshot{
		IndexType: a.indexType,
		Index:     idxBytes,
		Metadata:  metaBytes,
	}, nil
}

func (a *AnnLite) snapshotCodec() codec.Codec {
	if a.opts.Codec != nil {
		return a.opts.Codec
	}
	return codec.Default
}

// SaveSnapshotToFile writes the database state to the given path, using a
// temp file and rename so a crash never leaves a truncated snapshot.
func (a *AnnLite) SaveSnapshotToFile(ctx context.Context, path string) error {
	start := time.Now()

	snap, err := a.snapshot()
	if err == nil {
		err = persistence.SaveToFile(path, snap, func(o *persistence.Options) {
			o.Compression = a.opts.Compression
			o.Codec = a.snapshotCodec()
		})
	}

	a.logger.LogSnapshot(ctx, "save", path, err)
	a.metrics.RecordSnapshot(time.Since(start), err)

	return err
}

// SaveSnapshotToBlob writes the database state to a named blob. The upload
// counts against the resource controller's background worker budget.
func (a *AnnLite) SaveSnapshotToBlob(ctx context.Context, store blobstore.BlobStore, name string) error {
	start := time.Now()
	err := a.saveSnapshotToBlob(ctx, store, name)

	a.logger.LogSnapshot(ctx, "save", name, err)
	a.metrics.RecordSnapshot(time.Since(start), err)

	return err
}

func (a *AnnLite) saveSnapshotToBlob(ctx context.Context, store blobstore.BlobStore, name string) error {
	rc := a.opts.Resource
	if err := rc.AcquireBackground(ctx); err != nil {
		return err
	}
	defer rc.ReleaseBackground()

	blob, err := store.Create(ctx, name)
	if err != nil {
		return err
	}

	if err := a.saveSnapshot(ctx, blob); err != nil {
		blob.Close()
		return err
	}
	return blob.Close()
}

// LoadSnapshot reconstructs a database from a snapshot stream. Graph
// parameters and the distance space come from the snapshot; the options only
// configure the runtime surface (EFSearch, Logger, Metrics, Codec,
// Compression, Resource).
func LoadSnapshot(ctx context.Context, r io.Reader, optFns ...func(o *Options)) (*AnnLite, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	snap, err := persistence.Read(resource.NewRateLimitedReader(ctx, r, opts.Resource))
	if err != nil {
		return nil, err
	}

	return fromSnapshot(snap, opts)
}

// LoadSnapshotFromFile reconstructs a database from a snapshot file.
func LoadSnapshotFromFile(_ context.Context, path string, optFns ...func(o *Options)) (*AnnLite, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	snap, err := persistence.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	return fromSnapshot(snap, opts)
}

// LoadSnapshotFromBlob reconstructs a database from a named blob.
func LoadSnapshotFromBlob(ctx context.Context, store blobstore.BlobStore, name string, optFns ...func(o *Options)) (*AnnLite, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := opts.Resource.AcquireBackground(ctx); err != nil {
		return nil, err
	}
	defer opts.Resource.ReleaseBackground()

	data, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, err
	}

	snap, err := persistence.Read(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	return fromSnapshot(snap, opts)
}

func fromSnapshot(snap *persistence.Snapshot, opts Options) (*AnnLite, error) {
	a := &AnnLite{
		meta:    metadata.NewStore(),
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if a.logger == nil {
		a.logger = NoopLogger()
	}
	if a.metrics == nil {
		a.metrics = NoopMetricsCollector{}
	}

	switch snap.IndexType {
	case indexTypeHNSW:
		idx, err := hnsw.New()
		if err != nil {
			return nil, err
		}
		if err := idx.GobDecode(snap.Index); err != nil {
			return nil, fmt.Errorf("annlite: decode index: %w", err)
		}
		a.idx, a.indexType = idx, indexTypeHNSW

	case indexTypeFlat:
		idx, err := flat.New()
		if err != nil {
			return nil, err
		}
		if err := idx.GobDecode(snap.Index); err != nil {
			return nil, fmt.Errorf("annlite: decode index: %w", err)
		}
		a.idx, a.indexType = idx, indexTypeFlat

	default:
		return nil, fmt.Errorf("annlite: unknown index type %q", snap.IndexType)
	}

	if len(snap.Metadata) > 0 {
		if err := a.meta.GobDecode(snap.Metadata); err != nil {
			return nil, fmt.Errorf("annlite: decode metadata: %w", err)
		}
	}
	return a, nil
}
