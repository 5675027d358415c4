// Package index implements the in-memory imported-asset index (spec
// §3, §4.C): the primary map of tracked identity to ImportedAssetInfo,
// the reverse file-guid map, and the dependency/dependent graph over
// imported assets. Concurrency-safe via one RWMutex guarding all four
// maps, following the teacher's collector.Registry shape (a registry
// of several maps behind a single mutex, read/write always taken
// together).
package index

import (
	"sort"
	"sync"

	"github.com/vaultbridge/importengine/internal/model"
	"go.uber.org/zap"
)

// Index is the in-memory, persisted imported-asset index.
type Index struct {
	mu sync.RWMutex

	// primary holds one entry per tracked identity (invariant 1 of
	// spec §8: at most one entry per (org, project, asset)).
	primary map[model.TrackedID]model.ImportedAssetInfo

	// reverse maps a workspace file guid to every tracked identity
	// whose ImportedFileInfo list references it.
	reverse map[model.FileGUID]map[model.TrackedID]struct{}

	// dependencies[t] is the set of tracked ids t's asset data
	// declares as dependencies AND that are themselves present in
	// primary. dependents is the transpose, rebuilt on every mutation.
	dependencies map[model.TrackedID]map[model.TrackedID]struct{}
	dependents   map[model.TrackedID]map[model.TrackedID]struct{}

	observers []func(model.IndexChangeEvent)
	logger    *zap.Logger
}

// New creates an empty Index.
func New(logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{
		primary:      make(map[model.TrackedID]model.ImportedAssetInfo),
		reverse:      make(map[model.FileGUID]map[model.TrackedID]struct{}),
		dependencies: make(map[model.TrackedID]map[model.TrackedID]struct{}),
		dependents:   make(map[model.TrackedID]map[model.TrackedID]struct{}),
		logger:       logger,
	}
}

// Subscribe registers fn to be called with every non-empty
// IndexChangeEvent, after the triggering mutation is complete. Returns
// an unsubscribe function.
func (idx *Index) Subscribe(fn func(model.IndexChangeEvent)) func() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.observers = append(idx.observers, fn)
	i := len(idx.observers) - 1
	return func() {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		idx.observers[i] = nil
	}
}

func (idx *Index) notify(ev model.IndexChangeEvent) {
	if ev.Empty() {
		return
	}
	for _, fn := range idx.observers {
		if fn != nil {
			fn(ev)
		}
	}
}

// SetAll replaces the whole set of imported assets, emitting a single
// change event diffing against the prior set.
func (idx *Index) SetAll(entries []model.ImportedAssetInfo) model.IndexChangeEvent {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	next := make(map[model.TrackedID]model.ImportedAssetInfo, len(entries))
	for _, e := range entries {
		next[e.Tracked()] = e
	}

	var ev model.IndexChangeEvent
	for id := range idx.primary {
		if _, ok := next[id]; !ok {
			ev.Removed = append(ev.Removed, id)
		}
	}
	for id, e := range next {
		if old, ok := idx.primary[id]; !ok {
			ev.Added = append(ev.Added, id)
		} else if !sameVersion(old, e) {
			ev.Updated = append(ev.Updated, id)
		}
	}

	idx.primary = next
	idx.rebuildReverseLocked()
	idx.rebuildDependencyMapsLocked()
	idx.notify(ev)
	return ev
}

func sameVersion(a, b model.ImportedAssetInfo) bool {
	return a.Asset.Identifier == b.Asset.Identifier
}

// Upsert records one asset as imported, replacing any prior entry for
// the same tracked identity in place (the tracked identity never
// changes, only the version and file list it points at).
func (idx *Index) Upsert(asset model.AssetData, files []model.ImportedFileInfo) model.IndexChangeEvent {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entry := model.NewImportedAssetInfo(asset, files)
	id := entry.Tracked()

	_, existed := idx.primary[id]
	idx.primary[id] = entry
	idx.rebuildReverseLocked()
	idx.rebuildDependencyMapsLocked()

	var ev model.IndexChangeEvent
	if existed {
		ev.Updated = []model.TrackedID{id}
	} else {
		ev.Added = []model.TrackedID{id}
	}
	idx.notify(ev)
	return ev
}

// RemoveFilesByGUID drops each guid from every entry that references
// it; any entry whose file-info list becomes empty is removed
// entirely.
func (idx *Index) RemoveFilesByGUID(guids []model.FileGUID) model.IndexChangeEvent {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	guidSet := make(map[model.FileGUID]struct{}, len(guids))
	for _, g := range guids {
		guidSet[g] = struct{}{}
	}

	var ev model.IndexChangeEvent
	for id, entry := range idx.primary {
		kept := entry.Files[:0:0]
		changed := false
		for _, f := range entry.Files {
			if _, drop := guidSet[f.FileGUID]; drop {
				changed = true
				continue
			}
			kept = append(kept, f)
		}
		if !changed {
			continue
		}
		if len(kept) == 0 {
			delete(idx.primary, id)
			ev.Removed = append(ev.Removed, id)
			continue
		}
		entry.Files = kept
		idx.primary[id] = entry
		ev.Updated = append(ev.Updated, id)
	}

	idx.rebuildReverseLocked()
	idx.rebuildDependencyMapsLocked()
	idx.notify(ev)
	return ev
}

// Remove deletes each identifier by tracked identity.
func (idx *Index) Remove(ids []model.TrackedID) model.IndexChangeEvent {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var ev model.IndexChangeEvent
	for _, id := range ids {
		if _, ok := idx.primary[id]; ok {
			delete(idx.primary, id)
			ev.Removed = append(ev.Removed, id)
		}
	}

	idx.rebuildReverseLocked()
	idx.rebuildDependencyMapsLocked()
	idx.notify(ev)
	return ev
}

// GetByTracked returns the entry for a tracked identity, if any.
func (idx *Index) GetByTracked(id model.TrackedID) (model.ImportedAssetInfo, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.primary[id]
	return e, ok
}

// GetByAssetID looks up by a full AssetIdentifier, using its tracked
// identity (version is not part of the index's primary key).
func (idx *Index) GetByAssetID(id model.AssetIdentifier) (model.ImportedAssetInfo, bool) {
	return idx.GetByTracked(id.Tracked())
}

// GetByFileGUID returns every entry whose file list references guid.
func (idx *Index) GetByFileGUID(guid model.FileGUID) []model.ImportedAssetInfo {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids, ok := idx.reverse[guid]
	if !ok {
		return nil
	}
	out := make([]model.ImportedAssetInfo, 0, len(ids))
	for id := range ids {
		if e, ok := idx.primary[id]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Tracked().String() < out[j].Tracked().String()
	})
	return out
}

// IsImported reports whether an identifier's tracked identity has a
// materialized entry.
func (idx *Index) IsImported(id model.AssetIdentifier) bool {
	_, ok := idx.GetByTracked(id.Tracked())
	return ok
}

// Snapshot returns a point-in-time copy of every entry, for
// persistence (internal/persist).
func (idx *Index) Snapshot() []model.ImportedAssetInfo {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]model.ImportedAssetInfo, 0, len(idx.primary))
	for _, e := range idx.primary {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Tracked().String() < out[j].Tracked().String()
	})
	return out
}

// Dependents returns the tracked ids that depend on id, per the
// dependents map (invariant 4 of spec §8: transpose of dependencies).
func (idx *Index) Dependents(id model.TrackedID) []model.TrackedID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return setKeys(idx.dependents[id])
}

// Dependencies returns the tracked ids id declares as dependencies and
// that are present in the index.
func (idx *Index) Dependencies(id model.TrackedID) []model.TrackedID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return setKeys(idx.dependencies[id])
}

func setKeys(m map[model.TrackedID]struct{}) []model.TrackedID {
	out := make([]model.TrackedID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (idx *Index) rebuildReverseLocked() {
	idx.reverse = make(map[model.FileGUID]map[model.TrackedID]struct{})
	for id, entry := range idx.primary {
		for _, f := range entry.Files {
			set, ok := idx.reverse[f.FileGUID]
			if !ok {
				set = make(map[model.TrackedID]struct{})
				idx.reverse[f.FileGUID] = set
			}
			set[id] = struct{}{}
		}
	}
}

// rebuildDependencyMapsLocked recomputes dependenciesMap by filtering
// each entry's declared dependencies to those present in the primary
// map (dangling references pruned, per spec §3), then rebuilds
// dependentsMap as the transpose. Called after every mutation; idx.mu
// must be held for writing.
func (idx *Index) rebuildDependencyMapsLocked() {
	deps := make(map[model.TrackedID]map[model.TrackedID]struct{}, len(idx.primary))
	dependents := make(map[model.TrackedID]map[model.TrackedID]struct{}, len(idx.primary))

	for id, entry := range idx.primary {
		set := make(map[model.TrackedID]struct{})
		for _, dep := range entry.Asset.Dependencies {
			depID := dep.Tracked()
			if _, present := idx.primary[depID]; present {
				set[depID] = struct{}{}
			}
		}
		deps[id] = set
	}
	for id, set := range deps {
		for dep := range set {
			if dependents[dep] == nil {
				dependents[dep] = make(map[model.TrackedID]struct{})
			}
			dependents[dep][id] = struct{}{}
		}
	}

	idx.dependencies = deps
	idx.dependents = dependents
}
