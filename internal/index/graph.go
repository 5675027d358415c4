package index

import (
	"sort"

	"github.com/vaultbridge/importengine/internal/model"
)

// node is the transient graph representation used by
// FindExclusiveDependencies: built from the index's current
// maps, mutated in place during the call, and discarded afterward
// (spec §3 Ownership: "transient, built on demand, and discarded
// after the operation").
type node struct {
	id           model.TrackedID
	dependencies map[model.TrackedID]struct{} // nodes this one depends on
	dependentBy  map[model.TrackedID]struct{} // nodes depending on this one
	isRoot       bool                         // true iff nothing depended on it when the graph was built
}

func cloneSet(m map[model.TrackedID]struct{}) map[model.TrackedID]struct{} {
	out := make(map[model.TrackedID]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// buildGraph snapshots the current primary/dependency/dependents maps
// into a mutable node graph. idx.mu must be held (read or write) by
// the caller.
func (idx *Index) buildGraph() map[model.TrackedID]*node {
	nodes := make(map[model.TrackedID]*node, len(idx.primary))
	for id := range idx.primary {
		nodes[id] = &node{
			id:           id,
			dependencies: cloneSet(idx.dependencies[id]),
			dependentBy:  cloneSet(idx.dependents[id]),
		}
	}
	for id, n := range nodes {
		n.isRoot = len(idx.dependents[id]) == 0
		_ = id
	}
	return nodes
}

// FindExclusiveDependencies returns the set safe to delete given a
// requested-to-delete set: the requested set plus any transitive
// dependency that, after the requested ones are removed, has no
// remaining root-reachable dependent (spec §4.C).
//
// The algorithm runs in three conceptual passes — seed, orphan
// propagation, cycle detection — but because marking a node during the
// cycle pass can orphan further nodes that themselves need a fresh
// cycle check, the implementation iterates propagation and cycle
// passes to a fixpoint rather than running each exactly once.
func (idx *Index) FindExclusiveDependencies(toDelete []model.TrackedID) []model.AssetIdentifier {
	idx.mu.RLock()
	nodes := idx.buildGraph()
	snapshot := make(map[model.TrackedID]model.AssetIdentifier, len(idx.primary))
	for id, entry := range idx.primary {
		snapshot[id] = entry.Asset.Identifier
	}
	idx.mu.RUnlock()

	marked := make(map[model.TrackedID]struct{})
	var frontier []model.TrackedID
	pending := make(map[model.TrackedID]struct{})

	mark := func(id model.TrackedID) {
		if _, ok := marked[id]; ok {
			return
		}
		marked[id] = struct{}{}
		frontier = append(frontier, id)
	}

	// Step 1 (seed): requested set is marked unconditionally — the
	// caller's intent wins even if it has live dependents. Detach the
	// requested nodes from the dependencies list of whatever still
	// depends on them; those dependents are not deleted merely
	// because one of their declared dependencies is going away.
	for _, id := range toDelete {
		n, ok := nodes[id]
		if !ok {
			continue
		}
		for dependent := range n.dependentBy {
			if dn, ok := nodes[dependent]; ok {
				delete(dn.dependencies, id)
			}
		}
		mark(id)
	}

	propagateDownward := func() {
		for len(frontier) > 0 {
			id := frontier[0]
			frontier = frontier[1:]
			n, ok := nodes[id]
			if !ok {
				continue
			}
			for dep := range n.dependencies {
				dn, ok := nodes[dep]
				if !ok {
					continue
				}
				delete(dn.dependentBy, id)
				if len(dn.dependentBy) == 0 {
					delete(pending, dep)
					mark(dep)
				} else {
					pending[dep] = struct{}{}
				}
			}
		}
	}

	// rootReachable reports whether a live root (isRoot at graph-build
	// time, and not itself marked for deletion) can be reached by
	// walking upward along dependentBy from start.
	rootReachable := func(start model.TrackedID) bool {
		visited := map[model.TrackedID]struct{}{start: {}}
		queue := []model.TrackedID{start}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			n, ok := nodes[id]
			if !ok {
				continue
			}
			if n.isRoot {
				if _, isMarked := marked[id]; !isMarked {
					return true
				}
			}
			for up := range n.dependentBy {
				if _, seen := visited[up]; seen {
					continue
				}
				visited[up] = struct{}{}
				queue = append(queue, up)
			}
		}
		return false
	}

	for {
		propagateDownward()
		if len(pending) == 0 {
			break
		}
		// Cycle pass: any pending node already marked in a prior
		// round of this loop no longer needs checking.
		candidates := make([]model.TrackedID, 0, len(pending))
		for id := range pending {
			if _, ok := marked[id]; ok {
				continue
			}
			candidates = append(candidates, id)
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].String() < candidates[j].String() })

		progressed := false
		for _, id := range candidates {
			if _, ok := marked[id]; ok {
				delete(pending, id)
				continue
			}
			if !rootReachable(id) {
				delete(pending, id)
				mark(id)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	out := make([]model.AssetIdentifier, 0, len(marked))
	for id := range marked {
		if aid, ok := snapshot[id]; ok {
			out = append(out, aid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
