package hnsw

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/annlite/annlite/index"
)

// persistedNode is the serialized form of a graph node.
type persistedNode struct {
	Vector      []float32
	Level       int
	Connections [][]uint32
}

// persistedGraph is the serialized form of the whole graph, including the
// construction parameters so a decoded index behaves identically.
type persistedGraph struct {
	Dimension      int
	M              int
	MMax0          int
	EFConstruction int
	Heuristic      bool
	DistanceType   int
	EntryPoint     uint32
	MaxLevel       int
	Nodes          []persistedNode
}

// GobEncode implements gob.GobEncoder.
func (h *HNSW) GobEncode() ([]byte, error) {
	pg := persistedGraph{
		Dimension:      h.dimension,
		M:              h.opts.M,
		MMax0:          h.mmax0,
		EFConstruction: h.opts.EFConstruction,
		Heuristic:      h.opts.Heuristic,
		DistanceType:   int(h.opts.DistanceType),
		EntryPoint:     h.ep,
		MaxLevel:       h.maxLevel,
		Nodes:          make([]persistedNode, len(h.nodes)),
	}

	for i, n := range h.nodes {
		pg.Nodes[i] = persistedNode{
			Vector:      n.vector,
			Level:       n.level,
			Connections: n.connections,
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(pg); err != nil {
		return nil, fmt.Errorf("hnsw: encode graph: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder. The receiver is rebuilt from the
// persisted construction parameters; any options passed to New are replaced.
func (h *HNSW) GobDecode(data []byte) error {
	var pg persistedGraph
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&pg); err != nil {
		return fmt.Errorf("hnsw: decode graph: %w", err)
	}

	seed := h.opts.RandomSeed

	rebuilt, err := New(func(o *Options) {
		o.Dimension = pg.Dimension
		o.M = pg.M
		o.MMax0 = pg.MMax0
		o.EFConstruction = pg.EFConstruction
		o.Heuristic = pg.Heuristic
		o.DistanceType = index.DistanceType(pg.DistanceType)
		o.RandomSeed = seed
	})
	if err != nil {
		return err
	}

	rebuilt.ep = pg.EntryPoint
	rebuilt.maxLevel = pg.MaxLevel
	rebuilt.nodes = make([]*node, len(pg.Nodes))
	for i, pn := range pg.Nodes {
		rebuilt.nodes[i] = &node{
			vector:      pn.Vector,
			level:       pn.Level,
			connections: pn.Connections,
		}
	}

	// Assign field-by-field rather than *h = *rebuilt: HNSW embeds
	// sync.Pools, which must not be copied. rebuilt's pools are fresh and
	// hold nothing, so carrying over just their New funcs is equivalent.
	h.dimension = rebuilt.dimension
	h.mmax = rebuilt.mmax
	h.mmax0 = rebuilt.mmax0
	h.ml = rebuilt.ml
	h.ep = rebuilt.ep
	h.maxLevel = rebuilt.maxLevel
	h.nodes = rebuilt.nodes
	h.distanceFunc = rebuilt.distanceFunc
	h.rng = rebuilt.rng
	h.opts = rebuilt.opts
	h.minQueuePool.New = rebuilt.minQueuePool.New
	h.maxQueuePool.New = rebuilt.maxQueuePool.New
	h.visitedPool.New = rebuilt.visitedPool.New
	return nil
}
