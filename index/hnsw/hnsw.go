// Package hnsw implements the Hierarchical Navigable Small World (HNSW) graph
// for approximate nearest neighbor search.
package hnsw

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/annlite/annlite/index"
	"github.com/annlite/annlite/internal/queue"
	"github.com/annlite/annlite/internal/visited"
	"github.com/annlite/annlite/metric"
)

const (
	// mmax0Multiplier is the default multiplier for the layer-0 connection cap.
	mmax0Multiplier = 2

	// minimumM is the minimum valid value for M.
	// M == 1 would make the layer multiplier 1/ln(1) divide by zero.
	minimumM = 2

	// DefaultM is the default number of bidirectional links per node.
	DefaultM = 16

	// DefaultEFConstruction is the default size of the dynamic candidate
	// list used while building edges during insertion.
	DefaultEFConstruction = 200
)

// Compile-time check
var _ index.Index = (*HNSW)(nil)

// Options represents the options for configuring HNSW.
type Options struct {
	// Dimension is the vector dimensionality. If 0, it is established by the
	// first inserted vector.
	Dimension int

	// M is the number of established connections for every new element
	// during construction. The cap per node is M for layers above 0.
	M int

	// MMax0 is the connection cap at layer 0. If 0, 2*M is used.
	MMax0 int

	// EFConstruction is the size of the dynamic candidate list during
	// insertion. Larger values improve graph quality at build-time cost.
	EFConstruction int

	// Heuristic selects the diversity-aware neighbor selection rule (true)
	// or plain closest-M truncation (false).
	Heuristic bool

	// DistanceType selects the distance metric. Fixed for the lifetime of
	// the index; switching metrics requires rebuilding.
	DistanceType index.DistanceType

	// RandomSeed seeds the level generator for reproducible graphs.
	// If nil, a time-based seed is used.
	RandomSeed *int64
}

// DefaultOptions holds the default configuration.
var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	Heuristic:      true,
	DistanceType:   index.DistanceTypeEuclidean,
}

// HNSW represents the Hierarchical Navigable Small World graph.
//
// The graph is a single-writer structure: Insert must not run concurrently
// with itself or with searches. Searches are read-only and may run
// concurrently with each other; the caller provides the exclusion (the root
// package facade uses an RWMutex).
type HNSW struct {
	dimension int
	mmax      int     // Max connections per node per layer above 0
	mmax0     int     // Max connections per node at layer 0
	ml        float64 // Normalization factor for level generation
	ep        uint32  // Entry point: a node at the current max level
	maxLevel  int

	nodes []*node

	distanceFunc index.DistanceFunc
	rng          *rand.Rand

	opts Options

	minQueuePool sync.Pool
	maxQueuePool sync.Pool
	visitedPool  sync.Pool
}

// New creates a new HNSW instance.
func New(optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.M < minimumM {
		opts.M = minimumM
	}
	if opts.MMax0 <= 0 {
		opts.MMax0 = mmax0Multiplier * opts.M
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = DefaultEFConstruction
	}

	distanceFunc, err := index.NewDistanceFunc(opts.DistanceType)
	if err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if opts.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*opts.RandomSeed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	h := &HNSW{
		dimension:    opts.Dimension,
		mmax:         opts.M,
		mmax0:        opts.MMax0,
		ml:           1 / math.Log(float64(opts.M)),
		distanceFunc: distanceFunc,
		rng:          rng,
		opts:         opts,
	}

	h.minQueuePool.New = func() any { return queue.NewMin(opts.EFConstruction) }
	h.maxQueuePool.New = func() any { return queue.NewMax(opts.EFConstruction) }
	h.visitedPool.New = func() any { return visited.New(1024) }

	return h, nil
}

// assignLevel draws a level from the exponentially decaying distribution
// floor(-ln(u) * mL), so higher layers contain geometrically fewer nodes.
func (h *HNSW) assignLevel() int {
	u := h.rng.Float64()
	if u == 0 {
		u = math.SmallestNonzeroFloat64
	}
	return int(math.Floor(-math.Log(u) * h.ml))
}

// validate checks a vector against the index contract before any mutation.
func (h *HNSW) validate(v []float32) error {
	if len(v) == 0 {
		return index.ErrEmptyVector
	}
	if h.dimension != 0 && len(v) != h.dimension {
		return &index.ErrDimensionMismatch{Expected: h.dimension, Actual: len(v)}
	}
	if h.opts.DistanceType == index.DistanceTypeCosine && metric.Magnitude(v) == 0 {
		return index.ErrZeroVector
	}
	return nil
}

// Insert adds a vector to the graph and returns its assigned ID.
func (h *HNSW) Insert(ctx context.Context, v []float32) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := h.validate(v); err != nil {
		return 0, err
	}
	if h.dimension == 0 {
		h.dimension = len(v)
	}

	// Copy so later changes by the caller don't affect the stored node.
	vec := make([]float32, len(v))
	copy(vec, v)

	id := uint32(len(h.nodes))
	level := h.assignLevel()
	h.nodes = append(h.nodes, newNode(vec, level))

	// First node becomes the entry point.
	if len(h.nodes) == 1 {
		h.ep = id
		h.maxLevel = level
		return id, nil
	}

	// Greedy descent through the layers above the new node's own layers.
	ep := h.ep
	epDist := h.distanceFunc(vec, h.nodes[ep].vector)
	ep, epDist = h.descend(vec, ep, epDist, h.maxLevel, level)

	// Search and link from min(level, maxLevel) down to 0.
	for l := min(level, h.maxLevel); l >= 0; l-- {
		results := h.searchLayer(vec, ep, epDist, l, h.opts.EFConstruction, nil)

		// Seed for the next lower layer.
		if best, ok := results.Min(); ok {
			ep, epDist = best.Node, best.Distance
		}

		neighbors := h.selectNeighbors(results, h.layerCap(l))
		results.Reset()
		h.maxQueuePool.Put(results)

		for _, n := range neighbors {
			h.link(l, id, n.Node)
		}
		// A new edge may have pushed a neighbor over its cap.
		for _, n := range neighbors {
			h.pruneIfOverflow(l, n.Node)
		}
	}

	if level > h.maxLevel {
		h.ep = id
		h.maxLevel = level
	}

	return id, nil
}

// descend runs the ef=1 greedy search from layer `from` down to, but not
// including, layer `to`. Ties are broken toward the smaller node ID so the
// result is deterministic for a fixed graph state.
func (h *HNSW) descend(q []float32, ep uint32, epDist float32, from, to int) (uint32, float32) {
	curr, currDist := ep, epDist

	for level := from; level > to; level-- {
		for changed := true; changed; {
			changed = false

			best, bestDist := curr, currDist
			for _, n := range h.neighbors(curr, level) {
				d := h.distanceFunc(q, h.nodes[n].vector)
				if d < bestDist || (d == bestDist && best != curr && n < best) {
					best, bestDist = n, d
				}
			}

			if best != curr {
				curr, currDist = best, bestDist
				changed = true
			}
		}
	}

	return curr, currDist
}

// searchLayer performs the bounded beam search at a single layer.
//
// It maintains a min-heap of candidates to explore and a max-heap of the best
// ef results found so far, terminating once the nearest unexplored candidate
// is farther than the worst of a full result set.
//
// filter, if not nil, restricts which nodes enter the result set; the graph
// is still traversed through filtered-out nodes so search is not trapped in
// filtered regions. The returned queue comes from the max-queue pool and must
// be returned by the caller.
func (h *HNSW) searchLayer(q []float32, ep uint32, epDist float32, level, ef int, filter func(uint32) bool) *queue.PriorityQueue {
	seen := h.visitedPool.Get().(*visited.Set)
	seen.Reset()
	defer h.visitedPool.Put(seen)

	candidates := h.minQueuePool.Get().(*queue.PriorityQueue)
	candidates.Reset()
	defer func() {
		candidates.Reset()
		h.minQueuePool.Put(candidates)
	}()

	results := h.maxQueuePool.Get().(*queue.PriorityQueue)
	results.Reset()

	seen.Visit(ep)
	candidates.Push(queue.Item{Node: ep, Distance: epDist})
	if filter == nil || filter(ep) {
		results.Push(queue.Item{Node: ep, Distance: epDist})
	}

	for candidates.Len() > 0 {
		curr, _ := candidates.Pop()

		if results.Len() >= ef {
			if worst, ok := results.Top(); ok && curr.Distance > worst.Distance {
				break
			}
		}

		for _, n := range h.neighbors(curr.Node, level) {
			if seen.Visited(n) {
				continue
			}
			seen.Visit(n)

			d := h.distanceFunc(q, h.nodes[n].vector)

			// Skip candidates that cannot improve a full result set. Only
			// without a filter: with filtering, traversal stays permissive.
			if filter == nil && results.Len() >= ef {
				if worst, ok := results.Top(); ok && d > worst.Distance {
					continue
				}
			}

			candidates.Push(queue.Item{Node: n, Distance: d})

			if filter == nil || filter(n) {
				results.Push(queue.Item{Node: n, Distance: d})
				if results.Len() > ef {
					results.Pop()
				}
			}
		}
	}

	return results
}

// selectNeighbors reduces the candidate pool (distances relative to the
// point being linked) to at most m neighbors. It consumes the queue.
func (h *HNSW) selectNeighbors(candidates *queue.PriorityQueue, m int) []queue.Item {
	if h.opts.Heuristic {
		return h.selectNeighborsHeuristic(candidates, m)
	}
	return h.selectNeighborsSimple(candidates, m)
}

// selectNeighborsSimple keeps the m closest candidates, ascending by distance.
func (h *HNSW) selectNeighborsSimple(candidates *queue.PriorityQueue, m int) []queue.Item {
	for candidates.Len() > m {
		candidates.Pop()
	}

	res := make([]queue.Item, candidates.Len())
	for i := len(res) - 1; i >= 0; i-- {
		res[i], _ = candidates.Pop()
	}
	return res
}

// selectNeighborsHeuristic applies the diversity heuristic: scanning
// candidates in ascending order of distance to the query, a candidate is
// admitted only if it is closer to the query than to every already-admitted
// point. If fewer than m candidates are admitted, the closest discarded
// candidates backfill the remainder. This favors angular diversity over raw
// proximity, which improves the long-range navigability of the graph.
func (h *HNSW) selectNeighborsHeuristic(candidates *queue.PriorityQueue, m int) []queue.Item {
	// The pool is a max-heap, so popping yields worst-to-best; fill the
	// slice backwards to get ascending order.
	sorted := make([]queue.Item, candidates.Len())
	for i := len(sorted) - 1; i >= 0; i-- {
		sorted[i], _ = candidates.Pop()
	}

	if len(sorted) <= m {
		return sorted
	}

	result := make([]queue.Item, 0, m)
	var discarded []queue.Item

	for _, cand := range sorted {
		if len(result) >= m {
			break
		}

		admit := true
		for _, r := range result {
			if h.distanceFunc(h.nodes[cand.Node].vector, h.nodes[r.Node].vector) < cand.Distance {
				admit = false
				break
			}
		}

		if admit {
			result = append(result, cand)
		} else {
			discarded = append(discarded, cand)
		}
	}

	for _, cand := range discarded {
		if len(result) >= m {
			break
		}
		result = append(result, cand)
	}

	return result
}

// pruneIfOverflow reduces u's neighbor set at the given layer back to the
// layer cap using the neighbor-selection rule, removing the reverse edges of
// dropped neighbors so edges stay symmetric.
func (h *HNSW) pruneIfOverflow(layer int, u uint32) {
	maxConns := h.layerCap(layer)
	conns := h.nodes[u].connections[layer]
	if len(conns) <= maxConns {
		return
	}

	pool := h.maxQueuePool.Get().(*queue.PriorityQueue)
	pool.Reset()

	uVec := h.nodes[u].vector
	for _, c := range conns {
		pool.Push(queue.Item{Node: c, Distance: h.distanceFunc(uVec, h.nodes[c].vector)})
	}

	kept := h.selectNeighbors(pool, maxConns)
	pool.Reset()
	h.maxQueuePool.Put(pool)

	keep := make(map[uint32]struct{}, len(kept))
	newConns := make([]uint32, len(kept))
	for i, item := range kept {
		keep[item.Node] = struct{}{}
		newConns[i] = item.Node
	}

	for _, c := range conns {
		if _, ok := keep[c]; !ok {
			h.removeConnection(layer, c, u)
		}
	}

	h.nodes[u].connections[layer] = newConns
}

// KNNSearch returns the k approximate nearest neighbors of q, ascending by
// distance. The empty graph yields an empty result.
func (h *HNSW) KNNSearch(ctx context.Context, q []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if len(h.nodes) == 0 {
		return nil, nil
	}
	if err := h.validate(q); err != nil {
		return nil, err
	}

	ef := 0
	var filter func(uint32) bool
	if opts != nil {
		ef = opts.EF
		filter = opts.Filter
	}
	if ef <= 0 {
		ef = max(h.opts.EFConstruction, k)
	}
	if ef < k {
		ef = k
	}

	ep := h.ep
	epDist := h.distanceFunc(q, h.nodes[ep].vector)
	ep, epDist = h.descend(q, ep, epDist, h.maxLevel, 0)

	results := h.searchLayer(q, ep, epDist, 0, ef, filter)
	defer func() {
		results.Reset()
		h.maxQueuePool.Put(results)
	}()

	for results.Len() > k {
		results.Pop()
	}

	res := make([]index.SearchResult, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		item, _ := results.Pop()
		res[i] = index.SearchResult{ID: item.Node, Distance: item.Distance}
	}
	return res, nil
}

// BruteSearch performs an exact linear scan. It serves as the recall
// reference for the approximate search.
func (h *HNSW) BruteSearch(ctx context.Context, q []float32, k int, filter func(id uint32) bool) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if len(h.nodes) == 0 {
		return nil, nil
	}
	if err := h.validate(q); err != nil {
		return nil, err
	}

	top := queue.NewMax(k)
	for id, n := range h.nodes {
		if filter != nil && !filter(uint32(id)) {
			continue
		}

		d := h.distanceFunc(q, n.vector)
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
func (h *HNSW) VectorByID(id uint32) ([]float32, error) {
	if int(id) >= len(h.nodes) {
		return nil, &index.ErrNodeNotFound{ID: id}
	}
	return h.nodes[id].vector, nil
}

// Level returns the layer assigned to the given node.
func (h *HNSW) Level(id uint32) (int, error) {
	if int(id) >= len(h.nodes) {
		return 0, &index.ErrNodeNotFound{ID: id}
	}
	return h.nodes[id].level, nil
}

// VectorCount returns the number of indexed vectors.
func (h *HNSW) VectorCount() int { return len(h.nodes) }

// Dimension returns the established dimensionality, or 0 if no vector has
// been inserted into an auto-dimension index yet.
func (h *HNSW) Dimension() int { return h.dimension }
