package graph

import "fmt"

// ---------------------------------------------------------------------------
// Merge
// ---------------------------------------------------------------------------

// Merge folds patch into current without losing anything already in
// current. See MergeWithMapping.
func Merge(current, patch Graph) Graph {
	out, _ := MergeWithMapping(current, patch)
	return out
}

// MergeWithMapping folds patch into current and also returns the renames
// applied to patch node ids (old id -> new id).
//
// A patch node whose id is already used by current is renamed to id_k with
// the smallest positive k not used by either graph, and patch links are
// rewritten to follow. Patch link endpoints that name a current node the
// patch does not redefine are left alone, so a patch may attach to existing
// nodes. Patch links duplicating an existing (source, target, label) are
// skipped. Existing nodes and links are never dropped or rewritten.
func MergeWithMapping(current, patch Graph) (Graph, map[string]string) {
	used := make(map[string]bool, len(current.Nodes)+len(patch.Nodes))
	inCurrent := make(map[string]bool, len(current.Nodes))
	for _, n := range current.Nodes {
		used[n.ID] = true
		inCurrent[n.ID] = true
	}
	for _, n := range patch.Nodes {
		used[n.ID] = true
	}

	out := current.Clone()
	mapping := make(map[string]string)
	patchSeen := make(map[string]bool, len(patch.Nodes))

	for _, n := range patch.Nodes {
		if n.ID != "" && patchSeen[n.ID] {
			continue
		}
		patchSeen[n.ID] = true
		n = n.Clone()
		if inCurrent[n.ID] {
			fresh := nextFreeID(n.ID, used)
			used[fresh] = true
			mapping[n.ID] = fresh
			n.ID = fresh
		}
		out.Nodes = append(out.Nodes, n)
	}

	keys := make(map[linkKey]bool, len(out.Links)+len(patch.Links))
	linkIDs := make(map[string]bool, len(out.Links)+len(patch.Links))
	for _, l := range out.Links {
		keys[l.key()] = true
		linkIDs[l.ID] = true
	}
	for _, l := range patch.Links {
		l = l.Clone()
		if id, ok := mapping[l.Source]; ok {
			l.Source = id
		}
		if id, ok := mapping[l.Target]; ok {
			l.Target = id
		}
		k := l.key()
		if keys[k] {
			continue
		}
		keys[k] = true
		if l.ID == "" || linkIDs[l.ID] {
			l.ID = NewID()
		}
		linkIDs[l.ID] = true
		out.Links = append(out.Links, l)
	}

	return Normalize(out), mapping
}

// nextFreeID returns id_k for the smallest positive k not in used.
func nextFreeID(id string, used map[string]bool) string {
	for k := 1; ; k++ {
		candidate := fmt.Sprintf("%s_%d", id, k)
		if !used[candidate] {
			return candidate
		}
	}
}
