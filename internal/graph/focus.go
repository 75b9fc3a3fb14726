package graph

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Focused subgraph
// ---------------------------------------------------------------------------

const (
	// FocusChildren is the number of children generated around a
	// drilled-into node.
	FocusChildren = 8

	// FocusRadius is the seed distance of those children from the center.
	FocusRadius = 160.0

	// ExpandRadius is the seed distance used by in-place expansion.
	ExpandRadius = 120.0
)

// Point is a 2D layout coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RadialPositions returns count points evenly spaced on a circle of the
// given radius around (cx, cy), starting at angle zero.
func RadialPositions(cx, cy float64, count int, radius float64) []Point {
	if count <= 0 {
		return nil
	}
	pts := make([]Point, count)
	for i := range pts {
		angle := float64(i) / float64(count) * 2 * math.Pi
		pts[i] = Point{
			X: cx + radius*math.Cos(angle),
			Y: cy + radius*math.Sin(angle),
		}
	}
	return pts
}

// BuildFocusedGraph synthesizes the view shown after drilling into center:
// the center pinned at the origin, FocusChildren children seeded on a ring
// of FocusRadius, a radial link to each child and two cross links between
// children 0-2 and 1-3.
func BuildFocusedGraph(center Node) Graph {
	c := center.Clone()
	if c.ID == "" {
		c.ID = NewID()
	}
	c.Label = center.DisplayLabel()
	if c.Title == "" {
		c.Title = c.Label
	}
	c.Pin(0, 0)

	g := Graph{
		Nodes: make([]Node, 0, FocusChildren+1),
		Links: make([]Link, 0, FocusChildren+2),
	}
	g.Nodes = append(g.Nodes, c)

	children := ringChildren(c, 0, 0, FocusChildren, FocusRadius)
	g.Nodes = append(g.Nodes, children...)
	g.Links = append(g.Links, ringLinks(c.ID, children)...)

	return Normalize(g)
}

// ringChildren creates count children of parent seeded around (cx, cy).
func ringChildren(parent Node, cx, cy float64, count int, radius float64) []Node {
	base := parent.DisplayLabel()
	pts := RadialPositions(cx, cy, count, radius)
	out := make([]Node, count)
	for i, p := range pts {
		label := fmt.Sprintf("%s • %d", base, i+1)
		out[i] = Node{
			ID:    NewID(),
			Label: label,
			Title: label,
			Level: parent.Level + 1,
			X:     Float(p.X),
			Y:     Float(p.Y),
			Color: DistinctColor(i + 1),
		}
	}
	return out
}

// ringLinks links parentID to every child and, when there are more than
// three children, cross-links children 0-2 and 1-3.
func ringLinks(parentID string, children []Node) []Link {
	links := make([]Link, 0, len(children)+2)
	for _, ch := range children {
		links = append(links, NewLink(parentID, ch.ID, ""))
	}
	if len(children) > 3 {
		links = append(links,
			NewLink(children[0].ID, children[2].ID, ""),
			NewLink(children[1].ID, children[3].ID, ""),
		)
	}
	return links
}
