package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyuha/orbit/internal/graph"
	"github.com/vyuha/orbit/internal/session"
)

// chain is a -> b -> c.
func chain() map[string]interface{} {
	return map[string]interface{}{
		"nodes": []map[string]interface{}{
			{"id": "a", "label": "Alpha"},
			{"id": "b", "label": "Beta"},
			{"id": "c", "label": "Gamma"},
		},
		"edges": []map[string]interface{}{
			{"source": "a", "target": "b"},
			{"source": map[string]string{"id": "b"}, "target": "c"},
		},
	}
}

func loadChain(t *testing.T, s *Server) session.View {
	t.Helper()
	rec := do(t, s, http.MethodPut, "/api/graph", chain())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v session.View
	decodeData(t, rec, &v)
	return v
}

func hasLink(g graph.Graph, source, target string) bool {
	for _, l := range g.Links {
		if l.Source == source && l.Target == target {
			return true
		}
	}
	return false
}

func TestGraphState(t *testing.T) {
	t.Run("new session shows the root topic", func(t *testing.T) {
		s := newTestServer(t, nil, nil)

		rec := do(t, s, http.MethodGet, "/api/graph", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		var v session.View
		decodeData(t, rec, &v)
		assert.Equal(t, []string{"root"}, v.Graph.IDs())
		assert.Equal(t, session.ModeDefault, v.Mode)
		assert.Zero(t, v.Depth)
	})

	t.Run("replace accepts edges and object endpoints", func(t *testing.T) {
		s := newTestServer(t, nil, nil)

		v := loadChain(t, s)

		assert.Equal(t, []string{"a", "b", "c"}, v.Graph.IDs())
		assert.True(t, hasLink(v.Graph, "a", "b"))
		assert.True(t, hasLink(v.Graph, "b", "c"))
	})

	t.Run("replace with sources exposes them", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		body := chain()
		body["sources"] = []graph.Source{{ID: "b", Title: "Beta", URL: "https://beta.example"}}
		require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/api/graph", body).Code)

		rec := do(t, s, http.MethodGet, "/api/graph/sources", nil)

		var out struct {
			Sources []graph.Source `json:"sources"`
		}
		decodeData(t, rec, &out)
		require.Len(t, out.Sources, 1)
		assert.Equal(t, "https://beta.example", out.Sources[0].URL)
	})

	t.Run("merge renames colliding ids", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		loadChain(t, s)

		rec := do(t, s, http.MethodPost, "/api/graph/merge", map[string]interface{}{
			"nodes": []map[string]string{{"id": "a", "label": "Another alpha"}},
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var out struct {
			Mapping map[string]string `json:"mapping"`
			View    session.View      `json:"view"`
		}
		decodeData(t, rec, &out)
		assert.Equal(t, "a_1", out.Mapping["a"])
		assert.Len(t, out.View.Graph.Nodes, 4)
	})
}

func TestNavigation(t *testing.T) {
	t.Run("drill focuses the node and back restores", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		loadChain(t, s)

		rec := do(t, s, http.MethodPost, "/api/graph/drill/a", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var drilled session.View
		decodeData(t, rec, &drilled)
		require.NotNil(t, drilled.CenterID)
		assert.Equal(t, "a", *drilled.CenterID)
		assert.Equal(t, 1, drilled.Depth)
		assert.Len(t, drilled.Graph.Nodes, graph.FocusChildren+1)

		rec = do(t, s, http.MethodPost, "/api/graph/back", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var back struct {
			Moved bool         `json:"moved"`
			View  session.View `json:"view"`
		}
		decodeData(t, rec, &back)
		assert.True(t, back.Moved)
		assert.Zero(t, back.View.Depth)
		assert.Equal(t, []string{"a", "b", "c"}, back.View.Graph.IDs())
	})

	t.Run("back at the top is a no-op", func(t *testing.T) {
		s := newTestServer(t, nil, nil)

		rec := do(t, s, http.MethodPost, "/api/graph/back", nil)

		var back struct {
			Moved bool `json:"moved"`
		}
		decodeData(t, rec, &back)
		assert.False(t, back.Moved)
	})

	t.Run("drill into unknown node is 404", func(t *testing.T) {
		s := newTestServer(t, nil, nil)

		rec := do(t, s, http.MethodPost, "/api/graph/drill/missing", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NODE_NOT_FOUND", errorCode(t, rec))
	})

	t.Run("reset view bumps the key", func(t *testing.T) {
		s := newTestServer(t, nil, nil)

		do(t, s, http.MethodPost, "/api/graph/reset-view", nil)
		rec := do(t, s, http.MethodPost, "/api/graph/reset-view", nil)

		var out map[string]int
		decodeData(t, rec, &out)
		assert.Equal(t, 2, out["reset_view_key"])
	})
}

func TestModes(t *testing.T) {
	t.Run("unknown mode is rejected", func(t *testing.T) {
		s := newTestServer(t, nil, nil)

		rec := do(t, s, http.MethodPut, "/api/graph/mode", map[string]string{"mode": "lasso"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_MODE", errorCode(t, rec))
	})

	t.Run("connect mode links two clicked nodes", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		loadChain(t, s)
		require.Equal(t, http.StatusOK,
			do(t, s, http.MethodPut, "/api/graph/mode", map[string]string{"mode": "connect"}).Code)

		var first eventResponse
		decodeData(t, do(t, s, http.MethodPost, "/api/graph/events/node-click",
			map[string]string{"id": "a"}), &first)
		assert.Equal(t, session.OutcomePending, first.Outcome)
		require.NotNil(t, first.View.PendingSource)
		assert.Equal(t, "a", *first.View.PendingSource)

		var second eventResponse
		decodeData(t, do(t, s, http.MethodPost, "/api/graph/events/node-click",
			map[string]string{"id": "c"}), &second)
		assert.Equal(t, session.OutcomeLinked, second.Outcome)
		assert.Nil(t, second.View.PendingSource)
		assert.True(t, hasLink(second.View.Graph, "a", "c"))
	})

	t.Run("pending source must exist", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		loadChain(t, s)

		rec := do(t, s, http.MethodPut, "/api/graph/pending-source", map[string]string{"id": "zz"})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(t, s, http.MethodPut, "/api/graph/pending-source", map[string]interface{}{"id": nil})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("add mode creates a node on background click", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		loadChain(t, s)
		do(t, s, http.MethodPut, "/api/graph/mode", map[string]string{"mode": "add"})

		var res eventResponse
		decodeData(t, do(t, s, http.MethodPost, "/api/graph/events/background-click",
			map[string]float64{"x": 10, "y": 20}), &res)

		assert.Equal(t, session.OutcomeAdded, res.Outcome)
		require.NotNil(t, res.Node)
		assert.Len(t, res.View.Graph.Nodes, 4)
	})

	t.Run("background click outside add mode is ignored", func(t *testing.T) {
		s := newTestServer(t, nil, nil)

		var res eventResponse
		decodeData(t, do(t, s, http.MethodPost, "/api/graph/events/background-click",
			map[string]float64{"x": 1, "y": 1}), &res)

		assert.Equal(t, session.OutcomeIgnored, res.Outcome)
	})

	t.Run("drag end saves positions of known nodes only", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		loadChain(t, s)

		var moved session.EventResult
		decodeData(t, do(t, s, http.MethodPost, "/api/graph/events/node-drag-end",
			map[string]interface{}{"id": "b", "x": 5, "y": 6}), &moved)
		assert.Equal(t, session.OutcomeMoved, moved.Outcome)

		var ignored session.EventResult
		decodeData(t, do(t, s, http.MethodPost, "/api/graph/events/node-drag-end",
			map[string]interface{}{"id": "zz", "x": 5, "y": 6}), &ignored)
		assert.Equal(t, session.OutcomeIgnored, ignored.Outcome)
	})
}

func TestMutations(t *testing.T) {
	t.Run("add and remove a free node", func(t *testing.T) {
		s := newTestServer(t, nil, nil)

		rec := do(t, s, http.MethodPost, "/api/graph/nodes", map[string]float64{"x": 3, "y": 4})
		require.Equal(t, http.StatusCreated, rec.Code)
		var n graph.Node
		decodeData(t, rec, &n)
		require.NotEmpty(t, n.ID)

		assert.Equal(t, http.StatusOK, do(t, s, http.MethodDelete, "/api/graph/nodes/"+n.ID, nil).Code)
		assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/api/graph/nodes/"+n.ID, nil).Code)
	})

	t.Run("expand grows children once", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		loadChain(t, s)

		rec := do(t, s, http.MethodPost, "/api/graph/nodes/b/expand", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var v session.View
		decodeData(t, rec, &v)
		assert.Len(t, v.Graph.Nodes, 3+graph.FocusChildren)

		rec = do(t, s, http.MethodPost, "/api/graph/nodes/b/expand", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "ALREADY_EXPANDED", errorCode(t, rec))

		rec = do(t, s, http.MethodPost, "/api/graph/nodes/zz/expand", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("links reject duplicates and blanks", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		loadChain(t, s)

		rec := do(t, s, http.MethodPost, "/api/graph/links", map[string]string{"source": "a", "target": "c"})
		assert.Equal(t, http.StatusCreated, rec.Code)

		rec = do(t, s, http.MethodPost, "/api/graph/links", map[string]string{"source": "a", "target": "c"})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "LINK_REJECTED", errorCode(t, rec))

		rec = do(t, s, http.MethodPost, "/api/graph/links", map[string]string{"source": "a"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("highlight keeps known ids", func(t *testing.T) {
		s := newTestServer(t, nil, nil)
		loadChain(t, s)

		rec := do(t, s, http.MethodPut, "/api/graph/highlight", map[string][]string{"ids": {"a", "zz"}})

		var out struct {
			HighlightIDs []string `json:"highlight_ids"`
		}
		decodeData(t, rec, &out)
		assert.Equal(t, []string{"a"}, out.HighlightIDs)
	})
}

func TestNeighborhood(t *testing.T) {
	s := newTestServer(t, nil, nil)
	loadChain(t, s)

	t.Run("one hop by default", func(t *testing.T) {
		var g graph.Graph
		decodeData(t, do(t, s, http.MethodGet, "/api/graph/nodes/a/neighborhood", nil), &g)
		assert.Equal(t, []string{"b"}, g.IDs())
	})

	t.Run("depth widens the walk", func(t *testing.T) {
		var g graph.Graph
		decodeData(t, do(t, s, http.MethodGet, "/api/graph/nodes/a/neighborhood?depth=2", nil), &g)
		assert.Equal(t, []string{"b", "c"}, g.IDs())
		assert.True(t, hasLink(g, "b", "c"))
	})

	t.Run("unknown node is 404", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/graph/nodes/zz/neighborhood", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
