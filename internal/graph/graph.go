package graph

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Graph
// ---------------------------------------------------------------------------

// Graph is an ordered node set plus the links between them. Node order is
// display order only.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Clone returns a deep copy. Snapshots taken for navigation must never
// alias the live graph.
func (g Graph) Clone() Graph {
	out := Graph{
		Nodes: make([]Node, len(g.Nodes)),
		Links: make([]Link, len(g.Links)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = n.Clone()
	}
	for i, l := range g.Links {
		out.Links[i] = l.Clone()
	}
	return out
}

// NodeByID returns the node with the given id and true, or the zero Node
// and false when absent.
func (g Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// HasNode reports whether a node with the given id exists.
func (g Graph) HasNode(id string) bool {
	_, ok := g.NodeByID(id)
	return ok
}

// nodeIndex returns the slice position of id, or -1.
func (g Graph) nodeIndex(id string) int {
	for i, n := range g.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// IDs returns the node ids in display order.
func (g Graph) IDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	return ids
}

func (g Graph) String() string {
	return fmt.Sprintf("graph(%d nodes, %d links)", len(g.Nodes), len(g.Links))
}

// ============================== DEGREES ===================================

// RecomputeDegrees returns a copy of g with every node's Degree set to the
// number of link endpoints that name it. Endpoints naming absent nodes
// count for nothing.
func RecomputeDegrees(g Graph) Graph {
	counts := make(map[string]int, len(g.Nodes))
	for _, l := range g.Links {
		counts[l.Source]++
		counts[l.Target]++
	}
	out := g.Clone()
	for i := range out.Nodes {
		out.Nodes[i].Degree = counts[out.Nodes[i].ID]
	}
	return out
}

// ============================== PALETTE ===================================

// goldenAngle spreads successive hues around the colour wheel.
const goldenAngle = 137.508

// DistinctColor returns the i-th colour of an open-ended palette whose
// neighbouring entries are visually far apart.
func DistinctColor(i int) string {
	hue := math.Mod(float64(i)*goldenAngle, 360)
	return fmt.Sprintf("hsl(%s 65%% 60%%)", trimFloat(hue))
}

// trimFloat formats f with at most three decimals and no trailing zeros.
func trimFloat(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	for len(s) > 1 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
