package resolver

import (
	"sync"

	"github.com/vaultbridge/importengine/internal/model"
)

// nodeState is a traversal node's tri-state (spec §4.E).
type nodeState int32

const (
	stateNotStarted nodeState = iota
	stateInProgress
	stateCompleted
)

type dependencyNode struct {
	state nodeState
	data  model.AssetData
}

// table is the traversal's shared state: one entry per "{projectId}/
// {assetId}" key, guarded by a single mutex. Reads and writes of an
// entry are always taken under the same lock; computation in between
// lock acquisitions is lock-free (spec §5).
type table struct {
	mu      sync.Mutex
	entries map[string]*dependencyNode
}

func newTable() *table {
	return &table{entries: make(map[string]*dependencyNode)}
}

// seed records data as a fresh NotStarted entry, overwriting nothing:
// callers only seed keys known not to exist yet.
func (t *table) seed(key string, data model.AssetData) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = &dependencyNode{state: stateNotStarted, data: data}
}

// beginTraversal marks key InProgress and returns its current data, or
// ok=false if the node is already InProgress or Completed (someone
// else owns it, or already finished).
func (t *table) beginTraversal(key string) (model.AssetData, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, exists := t.entries[key]
	if !exists || n.state != stateNotStarted {
		return model.AssetData{}, false
	}
	n.state = stateInProgress
	return n.data, true
}

// reserveNew reserves empty NotStarted slots for every key in keys
// that is not already present, returning the subset actually
// reserved (to be fetched by the caller).
func (t *table) reserveNew(keys []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var fresh []string
	for _, k := range keys {
		if _, exists := t.entries[k]; exists {
			continue
		}
		t.entries[k] = &dependencyNode{state: stateNotStarted}
		fresh = append(fresh, k)
	}
	return fresh
}

// recordFetched stores a fetched dependency's data under key, merging
// with chooseLatest if the slot already holds data, unless the slot is
// already InProgress (in which case the in-flight traversal owns it
// and the fetch is dropped, per spec step 3.d).
func (t *table) recordFetched(key string, data model.AssetData) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, exists := t.entries[key]
	if !exists {
		t.entries[key] = &dependencyNode{state: stateNotStarted, data: data}
		return
	}
	if n.state == stateInProgress {
		return
	}
	n.data = chooseLatest(n.data, data)
}

// discard removes a reserved slot that a failed fetch never filled,
// so it neither blocks as permanently NotStarted nor surfaces in the
// final gather.
func (t *table) discard(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// complete merges data into key's node and marks it Completed.
func (t *table) complete(key string, data model.AssetData) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.entries[key]
	n.data = chooseLatest(n.data, data)
	n.state = stateCompleted
}

// snapshotCompleted returns the data of every Completed entry.
func (t *table) snapshotCompleted() []model.AssetData {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.AssetData, 0, len(t.entries))
	for _, n := range t.entries {
		if n.state == stateCompleted {
			out = append(out, n.data)
		}
	}
	return out
}

// chooseLatest implements spec §4.E: nulls (zero AssetData, detected
// by a blank identifier) are weaker; then higher SequenceNumber wins;
// ties broken by later Updated; final tie returns a.
func chooseLatest(a, b model.AssetData) model.AssetData {
	aNull := a.Identifier == (model.AssetIdentifier{})
	bNull := b.Identifier == (model.AssetIdentifier{})
	if aNull && bNull {
		return a
	}
	if aNull {
		return b
	}
	if bNull {
		return a
	}
	if a.SequenceNumber != b.SequenceNumber {
		if b.SequenceNumber > a.SequenceNumber {
			return b
		}
		return a
	}
	if b.Updated.After(a.Updated) {
		return b
	}
	return a
}
