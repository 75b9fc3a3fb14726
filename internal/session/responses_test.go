package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyuha/orbit/internal/graph"
)

func searchResult() (graph.Graph, []graph.Source) {
	g := graph.Graph{
		Nodes: []graph.Node{{ID: "n0", Label: "query"}, {ID: "n1", Label: "hit"}},
		Links: []graph.Link{{Source: "n0", Target: "n1", Label: graph.LabelResult}},
	}
	return g, []graph.Source{{ID: "n1", Title: "hit", URL: "https://example.com"}}
}

func TestApplyResponse(t *testing.T) {
	t.Run("fresh replace swaps graph and sources", func(t *testing.T) {
		s := New(testConfig(), nil)
		defer s.Close()
		g, src := searchResult()

		ok := s.ApplyResponse(Response{Ticket: s.Ticket(), Graph: g, Sources: src})

		require.True(t, ok)
		assert.Equal(t, []string{"n0", "n1"}, s.Graph().IDs())
		assert.Equal(t, src, s.Sources())
	})

	t.Run("stale response is discarded by default", func(t *testing.T) {
		s := New(testConfig(), nil)
		defer s.Close()
		ticket := s.Ticket()
		s.DrillByID("root")
		before := s.Graph()
		g, src := searchResult()

		ok := s.ApplyResponse(Response{Ticket: ticket, Graph: g, Sources: src, Merge: true})

		assert.False(t, ok)
		assert.Equal(t, before, s.Graph())
		assert.Empty(t, s.Sources())
	})

	t.Run("stale response merges under the merge policy", func(t *testing.T) {
		cfg := testConfig()
		cfg.StalePolicy = StaleMerge
		s := New(cfg, nil)
		defer s.Close()
		ticket := s.Ticket()
		s.DrillByID("root")
		g, src := searchResult()

		ok := s.ApplyResponse(Response{Ticket: ticket, Graph: g, Sources: src, Merge: true})

		assert.True(t, ok)
		assert.Len(t, s.Graph().Nodes, 11)
	})

	t.Run("merged sources follow renamed nodes", func(t *testing.T) {
		s := New(testConfig(), nil)
		defer s.Close()
		g, src := searchResult()
		s.SetFromResponse(g, src)

		mapping := s.MergeGraph(g, src)

		assert.Equal(t, "n1_1", mapping["n1"])
		sources := s.Sources()
		require.Len(t, sources, 2)
		assert.Equal(t, "n1", sources[0].ID)
		assert.Equal(t, "n1_1", sources[1].ID)
	})
}

func TestParseStalePolicy(t *testing.T) {
	p, err := ParseStalePolicy("merge")
	require.NoError(t, err)
	assert.Equal(t, StaleMerge, p)

	_, err = ParseStalePolicy("keep")
	assert.Error(t, err)
}
