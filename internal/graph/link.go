package graph

// ---------------------------------------------------------------------------
// Link labels
// ---------------------------------------------------------------------------

// Labels attached by the builders in this module. User-created links carry
// no label.
const (
	LabelResult     = "result"
	LabelSameDomain = "same-domain"
	LabelTopic      = "topic"
	LabelSubtopic   = "subtopic"
	LabelDetail     = "detail"
)

// ---------------------------------------------------------------------------
// Link
// ---------------------------------------------------------------------------

// Link is an undirected-for-degree, directed-for-display relationship
// between two nodes of the same graph.
type Link struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Label  string   `json:"label,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
}

// NewLink creates a Link between sourceID and targetID with a fresh id.
func NewLink(sourceID, targetID, label string) Link {
	return Link{
		ID:     NewID(),
		Source: sourceID,
		Target: targetID,
		Label:  label,
	}
}

// Touches reports whether id is one of the link's endpoints.
func (l Link) Touches(id string) bool {
	return l.Source == id || l.Target == id
}

// Joins reports whether the link connects a and b in either direction.
func (l Link) Joins(a, b string) bool {
	return (l.Source == a && l.Target == b) || (l.Source == b && l.Target == a)
}

// linkKey identifies a link for merge de-duplication.
type linkKey struct {
	source, target, label string
}

func (l Link) key() linkKey {
	return linkKey{l.Source, l.Target, l.Label}
}

// Clone returns a copy that shares no pointers with l.
func (l Link) Clone() Link {
	out := l
	out.Weight = cloneFloat(l.Weight)
	return out
}
