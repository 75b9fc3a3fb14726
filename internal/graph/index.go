package graph

import "sort"

// ---------------------------------------------------------------------------
// Index
// ---------------------------------------------------------------------------

// Index is a read-only adjacency view over a Graph. It is built once per
// graph value and never updated, so it is safe for concurrent readers.
type Index struct {
	nodes    map[string]int      // id → position in graph.Nodes
	incident map[string][]int    // id → positions in graph.Links
	adjacent map[string][]string // id → neighbour ids (both directions)
	graph    Graph
}

// NewIndex builds an Index over g. Links naming unknown nodes are ignored.
func NewIndex(g Graph) *Index {
	ix := &Index{
		nodes:    make(map[string]int, len(g.Nodes)),
		incident: make(map[string][]int, len(g.Nodes)),
		adjacent: make(map[string][]string, len(g.Nodes)),
		graph:    g,
	}
	for i, n := range g.Nodes {
		if _, dup := ix.nodes[n.ID]; !dup {
			ix.nodes[n.ID] = i
		}
	}
	for i, l := range g.Links {
		if !ix.Has(l.Source) || !ix.Has(l.Target) {
			continue
		}
		ix.incident[l.Source] = append(ix.incident[l.Source], i)
		ix.adjacent[l.Source] = append(ix.adjacent[l.Source], l.Target)
		if l.Source != l.Target {
			ix.incident[l.Target] = append(ix.incident[l.Target], i)
			ix.adjacent[l.Target] = append(ix.adjacent[l.Target], l.Source)
		}
	}
	return ix
}

// ============================ LOOKUPS ====================================

// Has reports whether id names a node.
func (ix *Index) Has(id string) bool {
	_, ok := ix.nodes[id]
	return ok
}

// Node returns the node with the given ID and true, or the zero Node and
// false if not found.
func (ix *Index) Node(id string) (Node, bool) {
	i, ok := ix.nodes[id]
	if !ok {
		return Node{}, false
	}
	return ix.graph.Nodes[i], true
}

// Incident returns every link touching id, in graph order.
func (ix *Index) Incident(id string) []Link {
	pos := ix.incident[id]
	out := make([]Link, 0, len(pos))
	for _, i := range pos {
		out = append(out, ix.graph.Links[i])
	}
	return out
}

// Connected reports whether a link joins a and b in either direction.
func (ix *Index) Connected(a, b string) bool {
	for _, n := range ix.adjacent[a] {
		if n == b {
			return true
		}
	}
	return false
}

// ======================== TRAVERSAL QUERIES ===============================

// Neighbors returns the distinct ids adjacent to id, sorted.
func (ix *Index) Neighbors(id string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range ix.adjacent[id] {
		if n == id || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Within returns the nodes reachable from id in at most maxDepth hops,
// excluding id itself, in breadth-first order.
func (ix *Index) Within(id string, maxDepth int) []Node {
	if !ix.Has(id) || maxDepth <= 0 {
		return nil
	}
	visited := map[string]bool{id: true}
	frontier := []string{id}
	var out []Node

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			for _, nb := range ix.Neighbors(cur) {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				next = append(next, nb)
				n, _ := ix.Node(nb)
				out = append(out, n)
			}
		}
		frontier = next
	}
	return out
}

// Subgraph returns the nodes named by ids together with every link whose
// endpoints are both among them.
func (ix *Index) Subgraph(ids []string) Graph {
	keep := make(map[string]bool, len(ids))
	var g Graph
	for _, id := range ids {
		if n, ok := ix.Node(id); ok && !keep[id] {
			keep[id] = true
			g.Nodes = append(g.Nodes, n.Clone())
		}
	}
	for _, l := range ix.graph.Links {
		if keep[l.Source] && keep[l.Target] {
			g.Links = append(g.Links, l.Clone())
		}
	}
	return RecomputeDegrees(g)
}
