package graph

import (
	"fmt"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Node
// ---------------------------------------------------------------------------

// Node is a vertex of the explored graph. Positions are owned by the
// external layout; the core only seeds X/Y and records pins in Fx/Fy.
type Node struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Title    string   `json:"title,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Level    int      `json:"level,omitempty"`
	Degree   int      `json:"degree"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Fx       *float64 `json:"fx,omitempty"`
	Fy       *float64 `json:"fy,omitempty"`
	Color    string   `json:"color,omitempty"`
	Expanded bool     `json:"expanded,omitempty"`
}

// NewNode creates a Node with the given label.
// If id is empty a new UUID v4 is generated.
func NewNode(id, label string) Node {
	if id == "" {
		id = NewID()
	}
	return Node{ID: id, Label: label, Title: label}
}

// NewID mints a fresh identifier for nodes and links.
func NewID() string {
	return uuid.New().String()
}

// ---------------------------------------------------------------------------
// Helper methods
// ---------------------------------------------------------------------------

// DisplayLabel resolves the label shown for a node: label, then title,
// then id.
func (n Node) DisplayLabel() string {
	if n.Label != "" {
		return n.Label
	}
	if n.Title != "" {
		return n.Title
	}
	return n.ID
}

// Pinned reports whether the layout must leave the node where it is.
func (n Node) Pinned() bool {
	return n.Fx != nil && n.Fy != nil
}

// Position returns the node's last known position and whether it has one.
// A pin wins over a seeded or live position.
func (n Node) Position() (x, y float64, ok bool) {
	if n.Pinned() {
		return *n.Fx, *n.Fy, true
	}
	if n.X != nil && n.Y != nil {
		return *n.X, *n.Y, true
	}
	return 0, 0, false
}

// Pin fixes the node at (x, y) and records the same point as its position.
func (n *Node) Pin(x, y float64) {
	n.X, n.Y = Float(x), Float(y)
	n.Fx, n.Fy = Float(x), Float(y)
}

// Clone returns a copy that shares no pointers with n.
func (n Node) Clone() Node {
	out := n
	out.X = cloneFloat(n.X)
	out.Y = cloneFloat(n.Y)
	out.Fx = cloneFloat(n.Fx)
	out.Fy = cloneFloat(n.Fy)
	return out
}

func (n Node) String() string {
	return fmt.Sprintf("%s(%q)", n.ID, n.DisplayLabel())
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ---------------------------------------------------------------------------
// Source
// ---------------------------------------------------------------------------

// Source is provenance metadata for a node produced from an external
// document. It is keyed by node id but plays no part in graph integrity.
type Source struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}
