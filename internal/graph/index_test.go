package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chain() Graph {
	return Normalize(Graph{
		Nodes: []Node{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}},
		Links: []Link{
			{ID: "ab", Source: "a", Target: "b"},
			{ID: "bc", Source: "b", Target: "c"},
			{ID: "cd", Source: "c", Target: "d"},
			{ID: "ba", Source: "b", Target: "a"},
		},
	})
}

func TestIndex(t *testing.T) {
	ix := NewIndex(chain())

	t.Run("lookups", func(t *testing.T) {
		assert.True(t, ix.Has("a"))
		assert.False(t, ix.Has("z"))

		n, ok := ix.Node("c")
		require.True(t, ok)
		assert.Equal(t, "c", n.ID)
	})

	t.Run("connected in either direction", func(t *testing.T) {
		assert.True(t, ix.Connected("a", "b"))
		assert.True(t, ix.Connected("c", "b"))
		assert.False(t, ix.Connected("a", "d"))
	})

	t.Run("incident and neighbours", func(t *testing.T) {
		assert.Len(t, ix.Incident("b"), 3)
		assert.Equal(t, []string{"a", "c"}, ix.Neighbors("b"))
		assert.Empty(t, ix.Neighbors("z"))
	})

	t.Run("breadth-first reach", func(t *testing.T) {
		ids := func(ns []Node) []string {
			out := make([]string, len(ns))
			for i, n := range ns {
				out[i] = n.ID
			}
			return out
		}

		assert.Equal(t, []string{"b"}, ids(ix.Within("a", 1)))
		assert.Equal(t, []string{"b", "c", "d"}, ids(ix.Within("a", 3)))
		assert.Empty(t, ix.Within("a", 0))
	})

	t.Run("subgraph keeps internal links only", func(t *testing.T) {
		sub := ix.Subgraph([]string{"a", "b", "z"})

		assert.Equal(t, []string{"a", "b"}, sub.IDs())
		assert.Len(t, sub.Links, 2)
		degreesMatch(t, sub)
	})
}
