package hnsw

import "github.com/annlite/annlite/index"

// Stats returns a per-layer breakdown of the graph shape. Useful for
// inspecting level distribution and connection saturation.
func (h *HNSW) Stats() index.Stats {
	stats := index.Stats{
		Nodes:    len(h.nodes),
		MaxLevel: h.maxLevel,
		Levels:   make([]index.LevelStats, h.maxLevel+1),
	}

	if len(h.nodes) == 0 {
		stats.Levels = nil
		return stats
	}

	for l := 0; l <= h.maxLevel; l++ {
		stats.Levels[l].Level = l
	}

	for _, n := range h.nodes {
		for l := 0; l <= n.level && l <= h.maxLevel; l++ {
			ls := &stats.Levels[l]
			ls.Nodes++
			if l < len(n.connections) {
				ls.Connections += len(n.connections[l])
			}
		}
	}

	for i := range stats.Levels {
		ls := &stats.Levels[i]
		if ls.Nodes > 0 {
			ls.AvgConnections = ls.Connections / ls.Nodes
		}
	}

	return stats
}
