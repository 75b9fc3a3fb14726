package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vyuha/orbit/internal/graph"
	"github.com/vyuha/orbit/internal/search"
	"github.com/vyuha/orbit/internal/session"
)

const drillSearchTimeout = 45 * time.Second

// ---------------------------------------------------------------------------
// POST /api/graph/search
// ---------------------------------------------------------------------------

type searchRequest struct {
	Query string `json:"query"`
	Merge bool   `json:"merge"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		writeError(w, http.StatusServiceUnavailable, "SEARCH_NOT_CONFIGURED",
			"no search provider is configured")
		return
	}

	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "MISSING_QUERY",
			"query field is required")
		return
	}

	// Take the ticket before the round trip so a drill or back made while
	// the search is in flight marks this result stale.
	ticket := s.session.Ticket()

	results, err := s.searcher.Search(r.Context(), req.Query, s.numResults)
	if err != nil {
		if errors.Is(err, search.ErrMissingAPIKey) {
			writeError(w, http.StatusServiceUnavailable, "MISSING_API_KEY", err.Error())
			return
		}
		slog.Error("search failed", "query", req.Query, "provider", s.searcher.Name(), "error", err)
		writeError(w, http.StatusBadGateway, "SEARCH_FAILED", "search failed: "+err.Error())
		return
	}

	g, sources := search.GraphFromSummaries(req.Query, results)
	applied := s.session.ApplyResponse(session.Response{
		Ticket:  ticket,
		Graph:   g,
		Sources: sources,
		Merge:   req.Merge,
	})

	writeData(w, http.StatusOK, map[string]interface{}{
		"applied": applied,
		"results": len(results),
		"view":    s.session.View(),
	})
}

// ---------------------------------------------------------------------------
// Search on drill
// ---------------------------------------------------------------------------

// SearchOnDrill searches for the drilled node's label and merges the hits
// around it. It is meant to be registered with Session.OnDrill and runs
// synchronously; callers that must not block should wrap it in a goroutine.
func (s *Server) SearchOnDrill(center graph.Node, t session.Ticket) {
	if s.searcher == nil {
		return
	}
	q := strings.TrimSpace(center.Label)
	if q == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), drillSearchTimeout)
	defer cancel()

	results, err := s.searcher.Search(ctx, q, s.numResults)
	if err != nil {
		slog.Warn("drill search failed", "node", center.ID, "error", err)
		return
	}
	if len(results) == 0 {
		return
	}

	g, sources := search.AttachSummaries(center, results)
	if !s.session.ApplyResponse(session.Response{Ticket: t, Graph: g, Sources: sources, Merge: true}) {
		slog.Debug("drill search result dropped", "node", center.ID)
	}
}
