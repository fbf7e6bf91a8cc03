package hnsw

// node is a stored vector plus its layer assignment and per-layer neighbor
// lists. Nodes are owned by the graph; external callers only ever hold IDs.
type node struct {
	// vector is immutable after creation.
	vector []float32

	// level is assigned once at creation and never changes.
	level int

	// connections[l] holds the neighbor IDs at layer l, for l in 0..level.
	// Mutated exclusively through link/prune during later insertions.
	connections [][]uint32
}

func newNode(vector []float32, level int) *node {
	return &node{
		vector:      vector,
		level:       level,
		connections: make([][]uint32, level+1),
	}
}

// neighbors returns the neighbor IDs of id at the given layer, or nil if the
// node has no presence there.
func (h *HNSW) neighbors(id uint32, layer int) []uint32 {
	n := h.nodes[id]
	if layer >= len(n.connections) {
		return nil
	}
	return n.connections[layer]
}

func (h *HNSW) layerCap(layer int) int {
	if layer == 0 {
		return h.mmax0
	}
	return h.mmax
}

// link inserts a bidirectional edge between a and b at the given layer.
// Both sides end in a consistent state; duplicate edges are ignored.
func (h *HNSW) link(layer int, a, b uint32) {
	h.appendConnection(layer, a, b)
	h.appendConnection(layer, b, a)
}

func (h *HNSW) appendConnection(layer int, from, to uint32) {
	conns := h.nodes[from].connections[layer]
	for _, c := range conns {
		if c == to {
			return
		}
	}
	h.nodes[from].connections[layer] = append(conns, to)
}

// removeConnection drops the one-directional edge from -> to at the given
// layer, if present.
func (h *HNSW) removeConnection(layer int, from, to uint32) {
	n := h.nodes[from]
	if layer >= len(n.connections) {
		return
	}
	conns := n.connections[layer]
	for i, c := range conns {
		if c == to {
			n.connections[layer] = append(conns[:i], conns[i+1:]...)
			return
		}
	}
}
