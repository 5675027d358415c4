package index

import (
	"testing"

	"github.com/google/uuid"
	"github.com/vaultbridge/importengine/internal/model"
)

func tracked(org, proj, asset string) model.TrackedID {
	return model.TrackedID{OrgID: org, ProjectID: proj, AssetID: asset}
}

func assetData(id model.TrackedID, version string, deps ...model.TrackedID) model.AssetData {
	var depIDs []model.AssetIdentifier
	for _, d := range deps {
		depIDs = append(depIDs, d.WithVersion("v1"))
	}
	return model.AssetData{
		Identifier:   id.WithVersion(version),
		Dependencies: depIDs,
	}
}

func entry(id model.TrackedID, version string, deps ...model.TrackedID) model.ImportedAssetInfo {
	return model.NewImportedAssetInfo(assetData(id, version, deps...), []model.ImportedFileInfo{
		{FileGUID: model.FileGUID(uuid.New())},
	})
}

func TestUpsertAddedThenUpdated(t *testing.T) {
	idx := New(nil)
	a := tracked("org", "proj", "a")

	ev := idx.Upsert(assetData(a, "v1"), nil)
	if len(ev.Added) != 1 || ev.Added[0] != a {
		t.Fatalf("expected Added=[a], got %+v", ev)
	}

	ev = idx.Upsert(assetData(a, "v2"), nil)
	if len(ev.Updated) != 1 || ev.Updated[0] != a {
		t.Fatalf("expected Updated=[a], got %+v", ev)
	}
	if len(ev.Added) != 0 {
		t.Fatalf("did not expect Added on second upsert, got %+v", ev)
	}
}

// invariant 1: at most one entry per tracked id.
func TestPrimaryMapUniqueness(t *testing.T) {
	idx := New(nil)
	a := tracked("org", "proj", "a")
	idx.Upsert(assetData(a, "v1"), nil)
	idx.Upsert(assetData(a, "v2"), nil)
	if len(idx.Snapshot()) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(idx.Snapshot()))
	}
}

// invariant 3 & 4: dependencies are pruned to ids present in the
// primary map, and dependents is the transpose.
func TestDependencyMapsPrunedAndTransposed(t *testing.T) {
	idx := New(nil)
	a := tracked("org", "proj", "a")
	b := tracked("org", "proj", "b")
	missing := tracked("org", "proj", "missing")

	idx.Upsert(assetData(b, "v1"), nil)
	idx.Upsert(assetData(a, "v1", b, missing), nil)

	deps := idx.Dependencies(a)
	if len(deps) != 1 || deps[0] != b {
		t.Fatalf("expected dependencies(a)=[b] (missing pruned), got %+v", deps)
	}

	dependents := idx.Dependents(b)
	if len(dependents) != 1 || dependents[0] != a {
		t.Fatalf("expected dependents(b)=[a], got %+v", dependents)
	}
}

// invariant 5: remove() clears an id from primary and both maps.
func TestRemoveClearsAllMaps(t *testing.T) {
	idx := New(nil)
	a := tracked("org", "proj", "a")
	b := tracked("org", "proj", "b")
	idx.Upsert(assetData(b, "v1"), nil)
	idx.Upsert(assetData(a, "v1", b), nil)

	idx.Remove([]model.TrackedID{a})

	if _, ok := idx.GetByTracked(a); ok {
		t.Fatalf("expected a removed from primary")
	}
	if deps := idx.Dependents(b); len(deps) != 0 {
		t.Fatalf("expected dependents(b) empty after removing a, got %+v", deps)
	}
	if deps := idx.Dependencies(a); len(deps) != 0 {
		t.Fatalf("expected dependencies(a) empty after removal, got %+v", deps)
	}
}

// S4 — shared-file removal: two entries referencing the same guid;
// removing that guid by file-guid list drops it from both, removes an
// entry left with no files, and keeps an entry that still has others.
func TestRemoveFilesByGUIDKeepsSharedSurvivor(t *testing.T) {
	idx := New(nil)
	shared := model.FileGUID(uuid.New())
	a := tracked("org", "proj", "a")
	b := tracked("org", "proj", "b")

	idx.Upsert(assetData(a, "v1"), []model.ImportedFileInfo{{FileGUID: shared}})
	idx.Upsert(assetData(b, "v1"), []model.ImportedFileInfo{{FileGUID: shared}})

	ev := idx.RemoveFilesByGUID([]model.FileGUID{shared})
	// Both entries reference only the shared file, so both become
	// empty and are removed entirely; this still demonstrates the
	// guid being dropped from every referencing entry uniformly.
	if len(ev.Removed) != 2 {
		t.Fatalf("expected both entries removed once their only file is gone, got %+v", ev)
	}

	// Re-seed with a's second (unshared) file to prove the survivor
	// keeps its own files when only the shared one is dropped.
	idx2 := New(nil)
	idx2.Upsert(assetData(a, "v1"), []model.ImportedFileInfo{
		{FileGUID: shared},
		{FileGUID: model.FileGUID(uuid.New())},
	})
	idx2.Upsert(assetData(b, "v1"), []model.ImportedFileInfo{{FileGUID: shared}})

	ev2 := idx2.RemoveFilesByGUID([]model.FileGUID{shared})
	if len(ev2.Removed) != 1 || ev2.Removed[0] != b {
		t.Fatalf("expected only b removed (its only file was shared), got %+v", ev2)
	}
	if len(ev2.Updated) != 1 || ev2.Updated[0] != a {
		t.Fatalf("expected a updated (lost the shared file, kept the other), got %+v", ev2)
	}
	if got, ok := idx2.GetByTracked(a); !ok || len(got.Files) != 1 {
		t.Fatalf("expected a to retain its one remaining file, got %+v ok=%v", got, ok)
	}
}

// S5 — orphan-cycle collection: C -> D -> E -> C, plus A -> C.
// findExclusiveDependencies({A}) must return {A, C, D, E}.
func TestFindExclusiveDependenciesOrphanCycle(t *testing.T) {
	idx := New(nil)
	a := tracked("org", "proj", "a")
	c := tracked("org", "proj", "c")
	d := tracked("org", "proj", "d")
	e := tracked("org", "proj", "e")

	idx.Upsert(assetData(c, "v1", d), nil)
	idx.Upsert(assetData(d, "v1", e), nil)
	idx.Upsert(assetData(e, "v1", c), nil)
	idx.Upsert(assetData(a, "v1", c), nil)

	got := idx.FindExclusiveDependencies([]model.TrackedID{a})
	want := map[model.TrackedID]struct{}{a: {}, c: {}, d: {}, e: {}}
	if len(got) != len(want) {
		t.Fatalf("expected %d ids, got %d: %+v", len(want), len(got), got)
	}
	for _, aid := range got {
		if _, ok := want[aid.Tracked()]; !ok {
			t.Fatalf("unexpected id in result: %+v", aid)
		}
	}
}

// Guarantee (a): a node still depended on by a live root is never
// deleted, even transitively through the requested set's closure.
func TestFindExclusiveDependenciesKeepsLiveRoot(t *testing.T) {
	idx := New(nil)
	root := tracked("org", "proj", "root")
	a := tracked("org", "proj", "a")
	shared := tracked("org", "proj", "shared")

	idx.Upsert(assetData(shared, "v1"), nil)
	idx.Upsert(assetData(a, "v1", shared), nil)
	idx.Upsert(assetData(root, "v1", shared), nil)

	got := idx.FindExclusiveDependencies([]model.TrackedID{a})
	for _, aid := range got {
		if aid.Tracked() == shared {
			t.Fatalf("shared must not be deleted while root still depends on it: %+v", got)
		}
	}
	foundA := false
	for _, aid := range got {
		if aid.Tracked() == a {
			foundA = true
		}
	}
	if !foundA {
		t.Fatalf("expected requested id a to always be included, got %+v", got)
	}
}

func TestSetAllDiffsAddedUpdatedRemoved(t *testing.T) {
	idx := New(nil)
	a := tracked("org", "proj", "a")
	b := tracked("org", "proj", "b")

	idx.SetAll([]model.ImportedAssetInfo{entry(a, "v1"), entry(b, "v1")})

	ev := idx.SetAll([]model.ImportedAssetInfo{entry(a, "v2")})
	if len(ev.Updated) != 1 || ev.Updated[0] != a {
		t.Fatalf("expected a updated, got %+v", ev)
	}
	if len(ev.Removed) != 1 || ev.Removed[0] != b {
		t.Fatalf("expected b removed, got %+v", ev)
	}
}

func TestSubscribeReceivesNonEmptyEventsOnly(t *testing.T) {
	idx := New(nil)
	var received int
	unsub := idx.Subscribe(func(ev model.IndexChangeEvent) { received++ })
	defer unsub()

	idx.Upsert(assetData(tracked("org", "proj", "a"), "v1"), nil)
	// A no-op RemoveFilesByGUID on an unreferenced guid produces an
	// empty event and must not notify.
	idx.RemoveFilesByGUID([]model.FileGUID{model.FileGUID(uuid.New())})

	if received != 1 {
		t.Fatalf("expected exactly one notification, got %d", received)
	}
}
