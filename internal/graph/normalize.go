package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Normalize
// ---------------------------------------------------------------------------

// Normalize returns the canonical form of g:
//   - nodes with an empty id get a fresh one; repeated ids keep the first
//   - links with a missing or repeated id get a fresh one
//   - links whose source or target is not a node are dropped
//   - degrees are recomputed
//
// Normalize never fails and Normalize(Normalize(g)) equals Normalize(g).
func Normalize(g Graph) Graph {
	out := Graph{
		Nodes: make([]Node, 0, len(g.Nodes)),
		Links: make([]Link, 0, len(g.Links)),
	}

	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		n = n.Clone()
		if n.ID == "" {
			n.ID = NewID()
		}
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out.Nodes = append(out.Nodes, n)
	}

	linkIDs := make(map[string]bool, len(g.Links))
	for _, l := range g.Links {
		if !seen[l.Source] || !seen[l.Target] {
			continue
		}
		l = l.Clone()
		if l.ID == "" || linkIDs[l.ID] {
			l.ID = NewID()
		}
		linkIDs[l.ID] = true
		out.Links = append(out.Links, l)
	}

	return RecomputeDegrees(out)
}

// ---------------------------------------------------------------------------
// Raw (upstream) graph shapes
// ---------------------------------------------------------------------------

// Ref is an identifier as upstream producers send it: a string, a number,
// or an object carrying an "id" field. It always decodes to its canonical
// string form.
type Ref string

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Ref(s)
		return nil
	case '{':
		var obj struct {
			ID Ref `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*r = obj.ID
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("graph: unsupported id %s", data)
		}
		if isInteger(n.String()) {
			*r = Ref(n.String())
			return nil
		}
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("graph: unsupported id %s", data)
		}
		*r = Ref(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
}

// isInteger reports whether s is a plain JSON integer literal. Those keep
// their text so ids beyond float64 precision stay distinct.
func isInteger(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// RawNode is a node as received from a search, an analyzer or a client.
type RawNode struct {
	ID      Ref      `json:"id"`
	Label   string   `json:"label,omitempty"`
	Title   string   `json:"title,omitempty"`
	Summary string   `json:"summary,omitempty"`
	Level   *int     `json:"level,omitempty"`
	X       *float64 `json:"x,omitempty"`
	Y       *float64 `json:"y,omitempty"`
	Fx      *float64 `json:"fx,omitempty"`
	Fy      *float64 `json:"fy,omitempty"`
	Color   string   `json:"color,omitempty"`
}

// RawLink is a link as received from upstream. Endpoints may be bare ids
// or embedded node objects.
type RawLink struct {
	ID     Ref      `json:"id,omitempty"`
	Source Ref      `json:"source"`
	Target Ref      `json:"target"`
	Label  string   `json:"label,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
}

// RawGraph accepts both "links" and "edges"; server payloads use the
// latter.
type RawGraph struct {
	Nodes []RawNode `json:"nodes"`
	Links []RawLink `json:"links,omitempty"`
	Edges []RawLink `json:"edges,omitempty"`
}

// FromRaw converts an upstream fragment into a canonical graph. A node's
// label is the first non-empty of label, title and id. Nodes without a
// colour get one from the palette by position.
func FromRaw(raw RawGraph) Graph {
	g := Graph{
		Nodes: make([]Node, 0, len(raw.Nodes)),
		Links: make([]Link, 0, len(raw.Links)+len(raw.Edges)),
	}
	for i, rn := range raw.Nodes {
		n := Node{
			ID:      string(rn.ID),
			Label:   rn.Label,
			Title:   rn.Title,
			Summary: rn.Summary,
			X:       cloneFloat(rn.X),
			Y:       cloneFloat(rn.Y),
			Fx:      cloneFloat(rn.Fx),
			Fy:      cloneFloat(rn.Fy),
			Color:   rn.Color,
		}
		n.Label = n.DisplayLabel()
		if n.Title == "" {
			n.Title = n.Label
		}
		if rn.Level != nil && *rn.Level > 0 {
			n.Level = *rn.Level
		}
		if n.Color == "" {
			n.Color = DistinctColor(i)
		}
		g.Nodes = append(g.Nodes, n)
	}
	for _, list := range [][]RawLink{raw.Links, raw.Edges} {
		for _, rl := range list {
			g.Links = append(g.Links, Link{
				ID:     string(rl.ID),
				Source: string(rl.Source),
				Target: string(rl.Target),
				Label:  rl.Label,
				Weight: cloneFloat(rl.Weight),
			})
		}
	}
	return Normalize(g)
}

// ToRaw converts a canonical graph back to the upstream shape.
func ToRaw(g Graph) RawGraph {
	raw := RawGraph{
		Nodes: make([]RawNode, 0, len(g.Nodes)),
		Links: make([]RawLink, 0, len(g.Links)),
	}
	for _, n := range g.Nodes {
		level := n.Level
		raw.Nodes = append(raw.Nodes, RawNode{
			ID: Ref(n.ID), Label: n.Label, Title: n.Title, Summary: n.Summary,
			Level: &level, X: cloneFloat(n.X), Y: cloneFloat(n.Y),
			Fx: cloneFloat(n.Fx), Fy: cloneFloat(n.Fy), Color: n.Color,
		})
	}
	for _, l := range g.Links {
		raw.Links = append(raw.Links, RawLink{
			ID: Ref(l.ID), Source: Ref(l.Source), Target: Ref(l.Target),
			Label: l.Label, Weight: cloneFloat(l.Weight),
		})
	}
	return raw
}
