package search

import (
	"fmt"

	"github.com/vyuha/orbit/internal/graph"
)

const (
	maxLabelRunes   = 300
	maxSummaryRunes = 320
	resultRadius    = 220.0
)

// GraphFromSummaries builds a star graph: the query at the center pinned to
// the origin, one node per result on a ring around it, and a same-domain
// link between every pair of results sharing a host.
func GraphFromSummaries(query string, results []Result) (graph.Graph, []graph.Source) {
	center := graph.Node{
		ID:      "n0",
		Label:   query,
		Title:   query,
		Summary: "Search root",
		Color:   graph.DistinctColor(0),
	}
	center.Pin(0, 0)

	ids := make([]string, len(results))
	for i := range results {
		ids[i] = fmt.Sprintf("n%d", i+1)
	}

	g, sources := resultStar(center.ID, 0, 0, ids, results)
	g.Nodes = append([]graph.Node{center}, g.Nodes...)
	return graph.Normalize(g), sources
}

// AttachSummaries builds a patch of result nodes linked to an existing
// center. The center itself is not part of the patch, so merging it into
// a graph that holds the center attaches the results to it.
func AttachSummaries(center graph.Node, results []Result) (graph.Graph, []graph.Source) {
	ids := make([]string, len(results))
	for i := range results {
		ids[i] = graph.NewID()
	}
	cx, cy, _ := center.Position()
	g, sources := resultStar(center.ID, cx, cy, ids, results)
	for i := range g.Nodes {
		g.Nodes[i].Level = center.Level + 1
	}
	return g, sources
}

func resultStar(centerID string, cx, cy float64, ids []string, results []Result) (graph.Graph, []graph.Source) {
	var g graph.Graph
	sources := make([]graph.Source, 0, len(results))
	ring := graph.RadialPositions(cx, cy, len(results), resultRadius)

	for i, r := range results {
		label := truncate(firstNonEmpty(r.Title, r.Domain, "Result"), maxLabelRunes)
		g.Nodes = append(g.Nodes, graph.Node{
			ID:      ids[i],
			Label:   label,
			Title:   label,
			Summary: truncate(r.Summary, maxSummaryRunes),
			Level:   1,
			X:       graph.Float(ring[i].X),
			Y:       graph.Float(ring[i].Y),
			Color:   graph.DistinctColor(i + 1),
		})
		g.Links = append(g.Links, graph.NewLink(centerID, ids[i], graph.LabelResult))
		sources = append(sources, graph.Source{
			ID:    ids[i],
			Title: firstNonEmpty(r.Title, "(untitled)"),
			URL:   r.URL,
		})
	}

	for i := 0; i < len(results); i++ {
		if results[i].Domain == "" {
			continue
		}
		for j := i + 1; j < len(results); j++ {
			if results[j].Domain == results[i].Domain {
				g.Links = append(g.Links, graph.NewLink(ids[i], ids[j], graph.LabelSameDomain))
			}
		}
	}
	return g, sources
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
