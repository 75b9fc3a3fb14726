package session

import (
	"fmt"

	"github.com/vyuha/orbit/internal/graph"
)

// ---------------------------------------------------------------------------
// Modes
// ---------------------------------------------------------------------------

// Mode decides what a click on the surface does.
type Mode string

const (
	ModeDefault Mode = "default" // node click drills in
	ModeConnect Mode = "connect" // two node clicks create a link
	ModeAdd     Mode = "add"     // any click creates a free node
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeDefault, ModeConnect, ModeAdd:
		return m, nil
	}
	return "", fmt.Errorf("session: unknown mode %q", s)
}

// Outcome reports what a surface event did.
type Outcome string

const (
	OutcomeIgnored Outcome = "ignored"
	OutcomeDrilled Outcome = "drilled"
	OutcomePending Outcome = "pending"
	OutcomeLinked  Outcome = "linked"
	OutcomeAdded   Outcome = "added"
	OutcomeMoved   Outcome = "moved"
)

// EventResult is returned by the event entry points.
type EventResult struct {
	Outcome Outcome     `json:"outcome"`
	Node    *graph.Node `json:"node,omitempty"`
}

// ============================== STATE =====================================

// Mode returns the current interaction mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches modes. Any actual change clears the pending connect
// source; setting the current mode again changes nothing.
func (s *Session) SetMode(m Mode) bool {
	return s.commit(func(fx *effects) {
		if m == s.mode {
			return
		}
		s.mode = m
		s.pending = nil
		fx.changed = true
	})
}

// SetPendingSource fills or clears the connect slot directly. A non-nil id
// must name a live node.
func (s *Session) SetPendingSource(id *string) bool {
	return s.commit(func(fx *effects) {
		if id != nil && !s.g.HasNode(*id) {
			return
		}
		s.pending = copyString(id)
		fx.changed = true
	})
}

// ============================== EVENTS ====================================

// ClickNode dispatches a node click by mode. pos is where the surface saw
// the node, if it reported one.
//
//   - default: drill into the node
//   - connect: first click arms the source, a click on another node links
//     the two and disarms; clicking the armed node again does nothing
//   - add: create a free node at the clicked node's position
func (s *Session) ClickNode(id string, pos *graph.Point) EventResult {
	res := EventResult{Outcome: OutcomeIgnored}
	s.commit(func(fx *effects) {
		n, ok := s.g.NodeByID(id)
		if !ok {
			return
		}
		switch s.mode {
		case ModeDefault:
			s.drillLocked(n, fx)
			res.Outcome = OutcomeDrilled

		case ModeConnect:
			switch {
			case s.pending == nil:
				s.pending = &id
				res.Outcome = OutcomePending
				fx.changed = true
			case *s.pending == id:
			default:
				g, linked := graph.AddLink(s.g, *s.pending, id)
				if linked {
					s.g = g
					res.Outcome = OutcomeLinked
				}
				s.pending = nil
				fx.changed = true
			}

		case ModeAdd:
			x, y, _ := n.Position()
			if pos != nil {
				x, y = pos.X, pos.Y
			}
			added := s.addFreeLocked(x, y)
			res = EventResult{Outcome: OutcomeAdded, Node: &added}
			fx.changed = true
		}
	})
	return res
}

// ClickBackground creates a free node at (x, y) in add mode and is ignored
// otherwise.
func (s *Session) ClickBackground(x, y float64) EventResult {
	res := EventResult{Outcome: OutcomeIgnored}
	s.commit(func(fx *effects) {
		if s.mode != ModeAdd {
			return
		}
		added := s.addFreeLocked(x, y)
		res = EventResult{Outcome: OutcomeAdded, Node: &added}
		fx.changed = true
	})
	return res
}

// DragEnd records where the user left a dragged node, in any mode.
func (s *Session) DragEnd(id string, x, y float64) EventResult {
	if s.SavePosition(id, x, y) {
		return EventResult{Outcome: OutcomeMoved}
	}
	return EventResult{Outcome: OutcomeIgnored}
}

func (s *Session) addFreeLocked(x, y float64) graph.Node {
	g, n := graph.AddFreeNodeAt(s.g, x, y)
	s.g = g
	return n
}
