package session

import (
	"log/slog"

	"github.com/vyuha/orbit/internal/graph"
)

// ---------------------------------------------------------------------------
// Snapshot stack
// ---------------------------------------------------------------------------

// Snapshot is a saved view: the graph and the node it was centered on.
type Snapshot struct {
	Graph    graph.Graph `json:"graph"`
	CenterID *string     `json:"center_id"`
}

// Stack is a LIFO of snapshots. Pushed snapshots are deep copies.
type Stack struct {
	items []Snapshot
}

// Push saves a copy of g and centerID.
func (st *Stack) Push(g graph.Graph, centerID *string) {
	st.items = append(st.items, Snapshot{
		Graph:    g.Clone(),
		CenterID: copyString(centerID),
	})
}

// Pop removes and returns the most recent snapshot.
func (st *Stack) Pop() (Snapshot, bool) {
	if len(st.items) == 0 {
		return Snapshot{}, false
	}
	last := st.items[len(st.items)-1]
	st.items[len(st.items)-1] = Snapshot{}
	st.items = st.items[:len(st.items)-1]
	return last, true
}

// Len returns the number of saved snapshots.
func (st *Stack) Len() int {
	return len(st.items)
}

// ---------------------------------------------------------------------------
// Drill-in / back
// ---------------------------------------------------------------------------

// Depth returns how many views can be returned to with Back.
func (s *Session) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Len()
}

// DrillInto saves the current view and replaces it with a focused subgraph
// built around node. The layout is first centered on the node's last known
// position, then given a settle window.
func (s *Session) DrillInto(node graph.Node) {
	s.commit(func(fx *effects) {
		s.drillLocked(node, fx)
	})
}

// DrillByID drills into a node of the live graph. Unknown ids are ignored.
func (s *Session) DrillByID(id string) bool {
	return s.commit(func(fx *effects) {
		n, ok := s.g.NodeByID(id)
		if !ok {
			return
		}
		s.drillLocked(n, fx)
	})
}

func (s *Session) drillLocked(node graph.Node, fx *effects) {
	s.stack.Push(s.g, s.centerID)

	focused := graph.BuildFocusedGraph(node)
	s.setGraphLocked(focused)
	id := focused.Nodes[0].ID
	s.centerID = &id
	gen := s.generation.Add(1)

	x, y, hasPos := node.Position()
	zoom := s.cfg.DrillZoom
	fx.changed = true
	fx.before = func() {
		if hasPos && s.generation.Load() == gen {
			s.layout.CenterAt(x, y, zoom)
		}
	}
	fx.after = func() {
		if !s.settle.start(gen, s.cfg.RelaxTicks, s.cfg.FitDelay, s.cfg.DrillFreezeDelay) {
			slog.Debug("session: drill superseded", "generation", gen)
			return
		}
		s.fireDrill(focused.Nodes[0], Ticket(gen))
	}

	slog.Debug("session: drill in", "node_id", id, "depth", s.stack.Len(), "generation", gen)
}

// Back restores the most recent snapshot. With nothing to go back to it
// does nothing and returns false.
func (s *Session) Back() bool {
	return s.commit(func(fx *effects) {
		snap, ok := s.stack.Pop()
		if !ok {
			return
		}
		s.setGraphLocked(snap.Graph)
		s.centerID = snap.CenterID
		gen := s.generation.Add(1)

		fx.changed = true
		fx.after = func() {
			s.settle.start(gen, s.cfg.RelaxTicks, s.cfg.FitDelay, s.cfg.BackFreezeDelay)
		}

		slog.Debug("session: back", "depth", s.stack.Len(), "generation", gen)
	})
}

func (s *Session) fireDrill(center graph.Node, t Ticket) {
	s.listenerMu.RLock()
	hooks := append([]func(graph.Node, Ticket){}, s.onDrill...)
	s.listenerMu.RUnlock()
	for _, fn := range hooks {
		fn(center, t)
	}
}
