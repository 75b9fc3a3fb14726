package graph

import "fmt"

// ---------------------------------------------------------------------------
// Direct mutations
//
// Every function here is pure: it returns a new graph with degrees
// recomputed and leaves its argument untouched.
// ---------------------------------------------------------------------------

// AddNode appends n unless a node with the same id already exists. An empty
// id is replaced by a fresh one. The returned node carries the final id.
func AddNode(g Graph, n Node) (Graph, Node, bool) {
	n = n.Clone()
	if n.ID == "" {
		n.ID = NewID()
	}
	if n.Label == "" {
		n.Label = n.DisplayLabel()
	}
	if g.HasNode(n.ID) {
		return g, n, false
	}
	out := g.Clone()
	out.Nodes = append(out.Nodes, n)
	return RecomputeDegrees(out), n, true
}

// AddLink connects source and target. It refuses self-loops, endpoints
// that are not in the graph and links that already exist in either
// direction; in those cases g is returned unchanged with false.
func AddLink(g Graph, source, target string) (Graph, bool) {
	if source == target {
		return g, false
	}
	ix := NewIndex(g)
	if !ix.Has(source) || !ix.Has(target) || ix.Connected(source, target) {
		return g, false
	}
	out := g.Clone()
	out.Links = append(out.Links, NewLink(source, target, ""))
	return RecomputeDegrees(out), true
}

// RemoveNode deletes the node and every link touching it.
func RemoveNode(g Graph, id string) (Graph, bool) {
	if !g.HasNode(id) {
		return g, false
	}
	out := Graph{
		Nodes: make([]Node, 0, len(g.Nodes)-1),
		Links: make([]Link, 0, len(g.Links)),
	}
	for _, n := range g.Nodes {
		if n.ID != id {
			out.Nodes = append(out.Nodes, n.Clone())
		}
	}
	for _, l := range g.Links {
		if !l.Touches(id) {
			out.Links = append(out.Links, l.Clone())
		}
	}
	return RecomputeDegrees(out), true
}

// AddFreeNodeAt creates an unconnected node pinned at (x, y), titled after
// its position in the node list.
func AddFreeNodeAt(g Graph, x, y float64) (Graph, Node) {
	idx := len(g.Nodes)
	label := fmt.Sprintf("Node %d", idx+1)
	n := Node{
		ID:    NewID(),
		Label: label,
		Title: label,
		Color: DistinctColor(idx),
	}
	n.Pin(x, y)
	out, n, _ := AddNode(g, n)
	return out, n
}

// SavePosition records a layout-owned position on the node and pins it
// there.
func SavePosition(g Graph, id string, x, y float64) (Graph, bool) {
	i := g.nodeIndex(id)
	if i < 0 {
		return g, false
	}
	out := g.Clone()
	out.Nodes[i].Pin(x, y)
	return out, true
}

// ExpandNode grows FocusChildren children around the node in place,
// without replacing the rest of the graph. A node already expanded is left
// alone.
func ExpandNode(g Graph, id string) (Graph, bool) {
	i := g.nodeIndex(id)
	if i < 0 || g.Nodes[i].Expanded {
		return g, false
	}
	out := g.Clone()
	parent := &out.Nodes[i]
	parent.Expanded = true

	cx, cy, _ := parent.Position()
	children := ringChildren(*parent, cx, cy, FocusChildren, ExpandRadius)
	for k := range children {
		children[k].Color = DistinctColor(len(out.Nodes) + k)
	}
	links := ringLinks(parent.ID, children)

	out.Nodes = append(out.Nodes, children...)
	out.Links = append(out.Links, links...)
	return RecomputeDegrees(out), true
}
