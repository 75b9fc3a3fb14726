package api

import (
	"net/http"

	"github.com/vyuha/orbit/internal/graph"
	"github.com/vyuha/orbit/internal/session"
)

// Surface events carry what the browser saw; the session decides what they
// mean in the current mode.

type nodeClickRequest struct {
	ID string   `json:"id"`
	X  *float64 `json:"x,omitempty"`
	Y  *float64 `json:"y,omitempty"`
}

type eventResponse struct {
	session.EventResult
	View session.View `json:"view"`
}

// POST /api/graph/events/node-click
func (s *Server) handleNodeClick(w http.ResponseWriter, r *http.Request) {
	var req nodeClickRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "id is required")
		return
	}

	var pos *graph.Point
	if req.X != nil && req.Y != nil {
		pos = &graph.Point{X: *req.X, Y: *req.Y}
	}
	res := s.session.ClickNode(req.ID, pos)
	writeData(w, http.StatusOK, eventResponse{EventResult: res, View: s.session.View()})
}

// POST /api/graph/events/background-click
func (s *Server) handleBackgroundClick(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res := s.session.ClickBackground(req.X, req.Y)
	writeData(w, http.StatusOK, eventResponse{EventResult: res, View: s.session.View()})
}

type dragEndRequest struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// POST /api/graph/events/node-drag-end
func (s *Server) handleNodeDragEnd(w http.ResponseWriter, r *http.Request) {
	var req dragEndRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res := s.session.DragEnd(req.ID, req.X, req.Y)
	writeData(w, http.StatusOK, res)
}
