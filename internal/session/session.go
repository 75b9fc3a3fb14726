package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyuha/orbit/internal/graph"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config tunes the navigation settle window and stale-response handling.
type Config struct {
	RelaxTicks       int           `json:"relax_ticks"`
	FitDelay         time.Duration `json:"fit_delay"`
	DrillFreezeDelay time.Duration `json:"drill_freeze_delay"`
	BackFreezeDelay  time.Duration `json:"back_freeze_delay"`
	DrillZoom        float64       `json:"drill_zoom"`
	StalePolicy      StalePolicy   `json:"stale_policy"`
}

// DefaultConfig returns the timings the browser client was tuned for.
func DefaultConfig() Config {
	return Config{
		RelaxTicks:       60,
		FitDelay:         100 * time.Millisecond,
		DrillFreezeDelay: 1200 * time.Millisecond,
		BackFreezeDelay:  800 * time.Millisecond,
		DrillZoom:        12,
		StalePolicy:      StaleDiscard,
	}
}

// ---------------------------------------------------------------------------
// Observable state
// ---------------------------------------------------------------------------

// View is a point-in-time copy of everything a rendering surface observes.
type View struct {
	Graph         graph.Graph    `json:"graph"`
	Mode          Mode           `json:"mode"`
	PendingSource *string        `json:"pending_source"`
	HighlightIDs  []string       `json:"highlight_ids"`
	Sources       []graph.Source `json:"sources"`
	ResetViewKey  int            `json:"reset_view_key"`
	CenterID      *string        `json:"center_id"`
	Depth         int            `json:"depth"`
	Generation    uint64         `json:"generation"`
	// Version increases with every committed change. Listeners may see
	// views out of order and should drop any older than one already seen.
	Version uint64 `json:"version"`
}

// ---------------------------------------------------------------------------
// Session
// ---------------------------------------------------------------------------

// Session owns the live graph and every piece of interaction state around
// it. All public methods are goroutine-safe; listeners run after the lock
// is released, in registration order.
type Session struct {
	cfg    Config
	layout Layout
	settle *settler

	mu        sync.Mutex
	g         graph.Graph
	centerID  *string
	mode      Mode
	pending   *string
	highlight []string
	sources   []graph.Source
	resetKey  int
	stack     Stack
	version   uint64

	generation atomic.Uint64

	listenerMu sync.RWMutex
	onChange   []func(View)
	onDrill    []func(graph.Node, Ticket)
}

// New creates a session seeded with the default root topic. Pass nil for
// layout when no surface is attached.
func New(cfg Config, layout Layout) *Session {
	if layout == nil {
		layout = NopLayout{}
	}
	if cfg.StalePolicy == "" {
		cfg.StalePolicy = StaleDiscard
	}
	s := &Session{
		cfg:    cfg,
		layout: layout,
		mode:   ModeDefault,
		g:      InitialGraph(),
	}
	s.settle = newSettler(layout, s.generation.Load)
	return s
}

// InitialGraph is the single-node graph a new session starts from.
func InitialGraph() graph.Graph {
	return graph.Normalize(graph.Graph{Nodes: []graph.Node{{
		ID:    "root",
		Label: "Your Topic",
		Title: "Your Topic",
		Color: graph.DistinctColor(0),
	}}})
}

// OnChange registers fn to receive the view after every state change.
func (s *Session) OnChange(fn func(View)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// OnDrill registers fn to run after each drill-in with the drilled node and
// the ticket of the new view. It is the hook for follow-up work such as
// fetching results around the new center.
func (s *Session) OnDrill(fn func(graph.Node, Ticket)) {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	s.onDrill = append(s.onDrill, fn)
}

// Close cancels any pending settle steps.
func (s *Session) Close() {
	s.settle.stop()
}

// View returns a copy of the observable state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Graph returns a copy of the live graph.
func (s *Session) Graph() graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.g.Clone()
}

// Node returns a copy of a live node.
func (s *Session) Node(id string) (graph.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.g.NodeByID(id)
	return n.Clone(), ok
}

func (s *Session) viewLocked() View {
	return View{
		Graph:         s.g.Clone(),
		Mode:          s.mode,
		PendingSource: copyString(s.pending),
		HighlightIDs:  append([]string{}, s.highlight...),
		Sources:       append([]graph.Source{}, s.sources...),
		ResetViewKey:  s.resetKey,
		CenterID:      copyString(s.centerID),
		Depth:         s.stack.Len(),
		Generation:    s.generation.Load(),
		Version:       s.version,
	}
}

// ---------------------------------------------------------------------------
// Commit helper
// ---------------------------------------------------------------------------

// effects collects what a locked mutation wants done once the lock is
// released.
type effects struct {
	changed bool
	before  func() // runs before listeners are notified
	after   func() // runs after listeners are notified
}

// commit runs fn under the session lock and then performs its effects.
func (s *Session) commit(fn func(fx *effects)) bool {
	var fx effects

	s.mu.Lock()
	fn(&fx)
	var v View
	if fx.changed {
		s.version++
		v = s.viewLocked()
	}
	s.mu.Unlock()

	if fx.before != nil {
		fx.before()
	}
	if fx.changed {
		s.listenerMu.RLock()
		listeners := append([]func(View){}, s.onChange...)
		s.listenerMu.RUnlock()
		for _, fn := range listeners {
			fn(v)
		}
	}
	if fx.after != nil {
		fx.after()
	}
	return fx.changed
}

// setGraphLocked replaces the live graph and drops interaction state that
// points at nodes which no longer exist.
func (s *Session) setGraphLocked(g graph.Graph) {
	s.g = g
	if s.pending != nil && !g.HasNode(*s.pending) {
		s.pending = nil
	}
	kept := s.highlight[:0]
	for _, id := range s.highlight {
		if g.HasNode(id) {
			kept = append(kept, id)
		}
	}
	s.highlight = kept
}

// ============================ GRAPH STATE =================================

// SetGraph replaces the live graph. Sources are left as they are.
func (s *Session) SetGraph(g graph.Graph) {
	s.commit(func(fx *effects) {
		s.setGraphLocked(graph.Normalize(g))
		fx.changed = true
	})
}

// SetFromResponse replaces the live graph and its sources with a fresh
// provider response.
func (s *Session) SetFromResponse(g graph.Graph, sources []graph.Source) {
	s.commit(func(fx *effects) {
		s.setGraphLocked(graph.Normalize(g))
		s.sources = append([]graph.Source{}, sources...)
		fx.changed = true
	})
}

// MergeGraph folds patch into the live graph. Sources keyed by a renamed
// patch node follow the rename; sources for ids already known are ignored.
func (s *Session) MergeGraph(patch graph.Graph, sources []graph.Source) map[string]string {
	var mapping map[string]string
	s.commit(func(fx *effects) {
		var merged graph.Graph
		merged, mapping = graph.MergeWithMapping(s.g, patch)
		s.setGraphLocked(merged)
		s.sources = mergeSources(s.sources, sources, mapping)
		fx.changed = true
	})
	return mapping
}

func mergeSources(current, incoming []graph.Source, mapping map[string]string) []graph.Source {
	out := append([]graph.Source{}, current...)
	known := make(map[string]bool, len(current))
	for _, src := range current {
		known[src.ID] = true
	}
	for _, src := range incoming {
		if id, ok := mapping[src.ID]; ok {
			src.ID = id
		}
		if known[src.ID] {
			continue
		}
		known[src.ID] = true
		out = append(out, src)
	}
	return out
}

// Sources returns the provenance list.
func (s *Session) Sources() []graph.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]graph.Source{}, s.sources...)
}

// ============================ MUTATIONS ===================================

// AddFreeNodeAt drops an unconnected node pinned at (x, y).
func (s *Session) AddFreeNodeAt(x, y float64) graph.Node {
	var n graph.Node
	s.commit(func(fx *effects) {
		n = s.addFreeLocked(x, y)
		fx.changed = true
	})
	return n
}

// RewireLink connects source and target. Self-loops, duplicates and unknown
// endpoints are ignored.
func (s *Session) RewireLink(source, target string) bool {
	return s.commit(func(fx *effects) {
		g, ok := graph.AddLink(s.g, source, target)
		if ok {
			s.g = g
		}
		fx.changed = ok
	})
}

// ExpandNode grows children around a node without leaving the current view.
func (s *Session) ExpandNode(id string) bool {
	return s.commit(func(fx *effects) {
		g, ok := graph.ExpandNode(s.g, id)
		if ok {
			s.g = g
		}
		fx.changed = ok
	})
}

// SavePosition imports a position reported by the layout and pins the node
// there.
func (s *Session) SavePosition(id string, x, y float64) bool {
	return s.commit(func(fx *effects) {
		g, ok := graph.SavePosition(s.g, id, x, y)
		if ok {
			s.g = g
		}
		fx.changed = ok
	})
}

// RemoveNode deletes a node and its links.
func (s *Session) RemoveNode(id string) bool {
	return s.commit(func(fx *effects) {
		g, ok := graph.RemoveNode(s.g, id)
		if !ok {
			return
		}
		s.setGraphLocked(g)
		fx.changed = true
	})
}

// Highlight replaces the set of emphasised node ids. Unknown ids are kept
// out.
func (s *Session) Highlight(ids []string) {
	s.commit(func(fx *effects) {
		s.highlight = s.highlight[:0]
		for _, id := range ids {
			if s.g.HasNode(id) {
				s.highlight = append(s.highlight, id)
			}
		}
		fx.changed = true
	})
}

// BumpReset asks the surface to reset its viewport and returns the new key.
func (s *Session) BumpReset() int {
	var key int
	s.commit(func(fx *effects) {
		s.resetKey++
		key = s.resetKey
		fx.changed = true
	})
	return key
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
