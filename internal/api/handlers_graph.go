package api

import (
	"net/http"
	"strconv"

	"github.com/vyuha/orbit/internal/graph"
	"github.com/vyuha/orbit/internal/session"
)

// graphPayload is the body accepted by PUT /api/graph and
// POST /api/graph/merge.
type graphPayload struct {
	graph.RawGraph
	Sources []graph.Source `json:"sources,omitempty"`
}

// ---------------------------------------------------------------------------
// GET /api/graph
// ---------------------------------------------------------------------------

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.session.View())
}

// ---------------------------------------------------------------------------
// PUT /api/graph
// ---------------------------------------------------------------------------

func (s *Server) handleReplaceGraph(w http.ResponseWriter, r *http.Request) {
	var req graphPayload
	if !decodeJSON(w, r, &req) {
		return
	}

	g := graph.FromRaw(req.RawGraph)
	if req.Sources != nil {
		s.session.SetFromResponse(g, req.Sources)
	} else {
		s.session.SetGraph(g)
	}
	writeData(w, http.StatusOK, s.session.View())
}

// ---------------------------------------------------------------------------
// POST /api/graph/merge
// ---------------------------------------------------------------------------

func (s *Server) handleMergeGraph(w http.ResponseWriter, r *http.Request) {
	var req graphPayload
	if !decodeJSON(w, r, &req) {
		return
	}

	mapping := s.session.MergeGraph(graph.FromRaw(req.RawGraph), req.Sources)
	writeData(w, http.StatusOK, map[string]interface{}{
		"mapping": mapping,
		"view":    s.session.View(),
	})
}

// ---------------------------------------------------------------------------
// GET /api/graph/sources
// ---------------------------------------------------------------------------

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]interface{}{
		"sources": s.session.Sources(),
	})
}

// ---------------------------------------------------------------------------
// Navigation
// ---------------------------------------------------------------------------

func (s *Server) handleDrill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.session.DrillByID(id) {
		writeError(w, http.StatusNotFound, "NODE_NOT_FOUND",
			"no node with that id in the current view")
		return
	}
	writeData(w, http.StatusOK, s.session.View())
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	moved := s.session.Back()
	writeData(w, http.StatusOK, map[string]interface{}{
		"moved": moved,
		"view":  s.session.View(),
	})
}

func (s *Server) handleResetView(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]int{
		"reset_view_key": s.session.BumpReset(),
	})
}

// ---------------------------------------------------------------------------
// Modes
// ---------------------------------------------------------------------------

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := session.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MODE", err.Error())
		return
	}

	changed := s.session.SetMode(m)
	writeData(w, http.StatusOK, map[string]interface{}{
		"changed": changed,
		"view":    s.session.View(),
	})
}

type pendingSourceRequest struct {
	ID *string `json:"id"`
}

func (s *Server) handleSetPendingSource(w http.ResponseWriter, r *http.Request) {
	var req pendingSourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.session.SetPendingSource(req.ID) {
		writeError(w, http.StatusNotFound, "NODE_NOT_FOUND",
			"pending source must name a node in the current view")
		return
	}
	writeData(w, http.StatusOK, s.session.View())
}

// ---------------------------------------------------------------------------
// Direct mutations
// ---------------------------------------------------------------------------

type pointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n := s.session.AddFreeNodeAt(req.X, req.Y)
	writeData(w, http.StatusCreated, n)
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	if !s.session.RemoveNode(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "NODE_NOT_FOUND", "node not found")
		return
	}
	writeData(w, http.StatusOK, s.session.View())
}

func (s *Server) handleExpandNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.session.Node(id); !ok {
		writeError(w, http.StatusNotFound, "NODE_NOT_FOUND", "node not found")
		return
	}
	if !s.session.ExpandNode(id) {
		writeError(w, http.StatusConflict, "ALREADY_EXPANDED", "node is already expanded")
		return
	}
	writeData(w, http.StatusOK, s.session.View())
}

type linkRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

func (s *Server) handleAddLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Source == "" || req.Target == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ENDPOINT",
			"source and target are required")
		return
	}
	if !s.session.RewireLink(req.Source, req.Target) {
		writeError(w, http.StatusConflict, "LINK_REJECTED",
			"link would be a self-loop, a duplicate, or touch an unknown node")
		return
	}
	writeData(w, http.StatusCreated, s.session.View())
}

type highlightRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.session.Highlight(req.IDs)
	writeData(w, http.StatusOK, map[string]interface{}{
		"highlight_ids": s.session.View().HighlightIDs,
	})
}

// ---------------------------------------------------------------------------
// GET /api/graph/nodes/{id}/neighborhood?depth=N
// ---------------------------------------------------------------------------

func (s *Server) handleNeighborhood(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ix := graph.NewIndex(s.session.Graph())
	if !ix.Has(id) {
		writeError(w, http.StatusNotFound, "NODE_NOT_FOUND", "node not found")
		return
	}

	depth := 1
	if d := r.URL.Query().Get("depth"); d != "" {
		if v, err := strconv.Atoi(d); err == nil && v >= 1 {
			depth = v
		}
	}
	if depth > 5 {
		depth = 5
	}

	nodes := ix.Within(id, depth)
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	writeData(w, http.StatusOK, ix.Subgraph(ids))
}
