package session

import (
	"fmt"
	"log/slog"

	"github.com/vyuha/orbit/internal/graph"
)

// ---------------------------------------------------------------------------
// Async responses
// ---------------------------------------------------------------------------

// Ticket is the view generation captured when an async request starts.
type Ticket uint64

// StalePolicy decides what happens to a response whose ticket no longer
// matches the live view.
type StalePolicy string

const (
	// StaleDiscard drops responses that arrive after a drill-in or back.
	StaleDiscard StalePolicy = "discard"
	// StaleMerge merges late responses into whatever view is live.
	StaleMerge StalePolicy = "merge"
)

// ParseStalePolicy validates a policy name.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch p := StalePolicy(s); p {
	case StaleDiscard, StaleMerge:
		return p, nil
	}
	return "", fmt.Errorf("session: unknown stale policy %q", s)
}

// Ticket returns a ticket for the current view.
func (s *Session) Ticket() Ticket {
	return Ticket(s.generation.Load())
}

// Current reports whether t still matches the live view.
func (s *Session) Current(t Ticket) bool {
	return uint64(t) == s.generation.Load()
}

// Response is a provider result waiting to be applied.
type Response struct {
	Ticket  Ticket
	Graph   graph.Graph
	Sources []graph.Source
	Merge   bool
}

// ApplyResponse applies a provider result, either replacing the live graph
// or merging into it. Under StaleDiscard a response whose ticket has been
// superseded is dropped and false is returned.
func (s *Session) ApplyResponse(r Response) bool {
	applied := true
	s.commit(func(fx *effects) {
		if s.cfg.StalePolicy == StaleDiscard && uint64(r.Ticket) != s.generation.Load() {
			applied = false
			slog.Info("session: discarding stale response",
				"ticket", uint64(r.Ticket),
				"generation", s.generation.Load(),
				"nodes", len(r.Graph.Nodes),
			)
			return
		}
		if r.Merge {
			merged, mapping := graph.MergeWithMapping(s.g, r.Graph)
			s.setGraphLocked(merged)
			s.sources = mergeSources(s.sources, r.Sources, mapping)
		} else {
			s.setGraphLocked(graph.Normalize(r.Graph))
			s.sources = append([]graph.Source{}, r.Sources...)
		}
		fx.changed = true
	})
	return applied
}
