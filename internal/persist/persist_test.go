package persist

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/vaultbridge/importengine/internal/model"
)

func entryFor(org, project, asset, version string) model.ImportedAssetInfo {
	id := model.NewAssetIdentifier(org, project, asset, version)
	return model.NewImportedAssetInfo(
		model.AssetData{Identifier: id, SequenceNumber: 1, Updated: time.Unix(0, 0).UTC()},
		[]model.ImportedFileInfo{{
			DatasetID:    "Source",
			OriginalPath: "a.bin",
			Checksum:     "deadbeef",
			ModifiedAt:   time.Unix(0, 0).UTC(),
		}},
	)
}

// Round-trip: save(index); load() = index, ignoring file ordering
// (testable property 6 of spec §8).
func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	entries := []model.ImportedAssetInfo{
		entryFor("org1", "proj1", "assetA", "v1"),
		entryFor("org1", "proj1", "assetB", "v2"),
		entryFor("org2", "proj2", "assetC", "v1"),
	}
	if err := s.SaveAll(entries); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}

	sort.Slice(got, func(i, j int) bool { return got[i].Tracked().String() < got[j].Tracked().String() })
	sort.Slice(entries, func(i, j int) bool { return entries[i].Tracked().String() < entries[j].Tracked().String() })
	for i := range entries {
		if got[i].Tracked() != entries[i].Tracked() {
			t.Errorf("entry %d: got %v want %v", i, got[i].Tracked(), entries[i].Tracked())
		}
		if got[i].Asset.Identifier.Version != entries[i].Asset.Identifier.Version {
			t.Errorf("entry %d: version mismatch: got %s want %s", i, got[i].Asset.Identifier.Version, entries[i].Asset.Identifier.Version)
		}
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)
	e := entryFor("org1", "proj1", "assetA", "v1")
	if err := s.Save(e); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(e.Tracked()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no entries after delete, got %d", len(got))
	}
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	good := entryFor("org1", "proj1", "assetA", "v1")
	if err := s.Save(good); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Write a malformed sibling entry directly into the same shard.
	bad := entryFor("org1", "proj1", "assetZZZ", "v1")
	badPath := s.pathFor(bad.Tracked())
	if err := os.MkdirAll(filepath.Dir(badPath), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(badPath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load should not abort on malformed entries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 valid entry, got %d", len(got))
	}
}

func TestPruneRemovesStaleEntries(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	keep := entryFor("org1", "proj1", "assetA", "v1")
	stale := entryFor("org1", "proj1", "assetB", "v1")
	if err := s.SaveAll([]model.ImportedAssetInfo{keep, stale}); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	if err := s.Prune([]model.ImportedAssetInfo{keep}); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Tracked() != keep.Tracked() {
		t.Fatalf("expected only %v to remain, got %v", keep.Tracked(), got)
	}
}
