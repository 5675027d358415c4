package resolver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vaultbridge/importengine/internal/catalog"
	"github.com/vaultbridge/importengine/internal/ioport"
	"github.com/vaultbridge/importengine/internal/model"
	"github.com/vaultbridge/importengine/internal/workspace"
)

func TestChooseLatestPrefersHigherSequence(t *testing.T) {
	a := model.AssetData{Identifier: model.NewAssetIdentifier("o", "p", "x", "v1"), SequenceNumber: 1}
	b := model.AssetData{Identifier: model.NewAssetIdentifier("o", "p", "x", "v2"), SequenceNumber: 2}

	if got := chooseLatest(a, b); got.Identifier != b.Identifier {
		t.Fatalf("expected b (higher sequence), got %+v", got)
	}
	if got := chooseLatest(b, a); got.Identifier != b.Identifier {
		t.Fatalf("expected symmetric result, got %+v", got)
	}
}

func TestChooseLatestNullIsWeaker(t *testing.T) {
	real := model.AssetData{Identifier: model.NewAssetIdentifier("o", "p", "x", "v1")}
	null := model.AssetData{}
	if got := chooseLatest(null, real); got.Identifier != real.Identifier {
		t.Fatalf("expected non-null to win over null")
	}
	if got := chooseLatest(real, null); got.Identifier != real.Identifier {
		t.Fatalf("expected non-null to win over null (symmetric)")
	}
}

func TestChooseLatestTiesBreakOnUpdatedThenA(t *testing.T) {
	now := time.Now()
	older := model.AssetData{Identifier: model.NewAssetIdentifier("o", "p", "x", "v1"), SequenceNumber: 1, Updated: now}
	newer := model.AssetData{Identifier: model.NewAssetIdentifier("o", "p", "x", "v2"), SequenceNumber: 1, Updated: now.Add(time.Minute)}
	if got := chooseLatest(older, newer); got.Identifier != newer.Identifier {
		t.Fatalf("expected later Updated to win")
	}

	same := older
	if got := chooseLatest(older, same); got.Identifier != older.Identifier {
		t.Fatalf("expected final tie to return a")
	}
}

// fakeCatalog is an in-memory catalog for resolver tests: GetAsset and
// Search read from a static map; dependencies are fixed at
// construction.
type fakeCatalog struct {
	mu     sync.Mutex
	assets map[string]model.AssetData // keyed by TrackedID.ResolverKey()
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{assets: make(map[string]model.AssetData)}
}

func (f *fakeCatalog) put(a model.AssetData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[a.Identifier.Tracked().ResolverKey()] = a
}

func (f *fakeCatalog) GetAsset(ctx context.Context, id model.AssetIdentifier) (model.AssetData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id.Tracked().ResolverKey()]
	if !ok {
		return model.AssetData{}, errNotFound(id.String())
	}
	return a, nil
}

func (f *fakeCatalog) GetLatestAssetVersion(ctx context.Context, id model.TrackedID) (model.AssetData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id.ResolverKey()]
	if !ok {
		return model.AssetData{}, errNotFound(id.String())
	}
	return a, nil
}

func (f *fakeCatalog) GetLatestAssetVersionLite(ctx context.Context, id model.TrackedID) (string, error) {
	a, err := f.GetLatestAssetVersion(ctx, id)
	return a.Identifier.Version, err
}

func (f *fakeCatalog) ListVersionsDescending(ctx context.Context, id model.TrackedID) <-chan catalog.Result[model.AssetData] {
	ch := make(chan catalog.Result[model.AssetData])
	close(ch)
	return ch
}

func (f *fakeCatalog) Search(ctx context.Context, orgID string, projectIDs []string, filter catalog.SearchFilter, sortField string, order catalog.SortOrder, offset, pageSize int) <-chan catalog.Result[model.AssetData] {
	ch := make(chan catalog.Result[model.AssetData], len(filter.AssetIDs)+len(filter.AssetVersions))
	f.mu.Lock()
	defer f.mu.Unlock()
	defer close(ch)
	for _, a := range f.assets {
		if a.Identifier.OrgID != orgID {
			continue
		}
		match := false
		for _, id := range filter.AssetIDs {
			if id == a.Identifier.AssetID {
				match = true
			}
		}
		for _, v := range filter.AssetVersions {
			if v.Tracked() == a.Identifier.Tracked() {
				match = true
			}
		}
		if match {
			ch <- catalog.Result[model.AssetData]{Value: a}
		}
	}
	return ch
}

func (f *fakeCatalog) ResolveDatasets(ctx context.Context, asset *model.AssetData) error { return nil }
func (f *fakeCatalog) RefreshDependencies(ctx context.Context, asset *model.AssetData) error {
	return nil
}
func (f *fakeCatalog) GatherImportStatuses(ctx context.Context, assets []model.AssetIdentifier) (map[model.TrackedID]model.ImportStatus, error) {
	return nil, nil
}
func (f *fakeCatalog) ListFiles(ctx context.Context, id model.AssetIdentifier, datasetID string, offset, limit int) <-chan catalog.Result[model.AssetDataFile] {
	ch := make(chan catalog.Result[model.AssetDataFile])
	close(ch)
	return ch
}
func (f *fakeCatalog) GetDatasetDownloadURLs(ctx context.Context, id model.AssetIdentifier, datasetID string) (map[string]string, error) {
	return nil, nil
}
func (f *fakeCatalog) GetPreviewURL(ctx context.Context, asset model.AssetData, maxDim int) (string, bool, error) {
	return "", false, nil
}

type notFoundErr struct{ msg string }

func (e notFoundErr) Error() string { return e.msg }

func errNotFound(id string) error { return notFoundErr{msg: "not found: " + id} }

type fakeFS struct{}

func (fakeFS) FileExists(ctx context.Context, path string) (bool, error)      { return false, nil }
func (fakeFS) DirectoryExists(ctx context.Context, path string) (bool, error) { return false, nil }
func (fakeFS) CreateDirectory(ctx context.Context, path string) error         { return nil }
func (fakeFS) DirectoryDelete(ctx context.Context, path string, recursive bool) error {
	return nil
}
func (fakeFS) FileMove(ctx context.Context, src, dst string) error { return nil }
func (fakeFS) DeleteFile(ctx context.Context, path string, removeEmptyParents bool) error {
	return nil
}
func (fakeFS) FileReadAllBytes(ctx context.Context, path string) ([]byte, error) { return nil, nil }
func (fakeFS) FileWriteAllBytes(ctx context.Context, path string, data []byte) error {
	return nil
}
func (fakeFS) GetFileLastWriteTimeUTC(ctx context.Context, path string) (time.Time, error) {
	return time.Time{}, nil
}
func (fakeFS) GetFileLength(ctx context.Context, path string) (int64, error) { return 0, nil }
func (fakeFS) GetOldestFiles(ctx context.Context, dir string) ([]ioport.FileStat, error) {
	return nil, nil
}
func (fakeFS) GetUniqueTempPathInProject(ctx context.Context) (string, error) { return "", nil }
func (fakeFS) Touch(ctx context.Context, path string) error                   { return nil }

type fakeWorkspace struct{}

func (fakeWorkspace) PathToGUID(ctx context.Context, path string) (model.FileGUID, error) {
	return model.FileGUID{}, nil
}
func (fakeWorkspace) GUIDToPath(ctx context.Context, guid model.FileGUID) (string, bool, error) {
	return "", false, nil
}
func (fakeWorkspace) GetDependencies(ctx context.Context, path string, recursive bool) ([]string, error) {
	return nil, nil
}
func (fakeWorkspace) IsDirty(ctx context.Context, path string) (bool, error) { return false, nil }
func (fakeWorkspace) DeleteAssets(ctx context.Context, paths []string, outFailed *[]string) (bool, error) {
	return true, nil
}
func (fakeWorkspace) ImportAsset(ctx context.Context, path string) error { return nil }
func (fakeWorkspace) StartAssetEditing(ctx context.Context) error        { return nil }
func (fakeWorkspace) StopAssetEditing(ctx context.Context) error         { return nil }
func (fakeWorkspace) Refresh(ctx context.Context) error { return nil }
func (fakeWorkspace) Subscribe(fn func(workspace.PostprocessEvent)) func() {
	return func() {}
}

func TestResolveEmptyInputNoCatalogCalls(t *testing.T) {
	cat := newFakeCatalog()
	r := New(cat, nil, nil, nil, 0, nil)
	report, err := r.Resolve(context.Background(), nil, model.ImportExact, model.EffectiveImportSettings{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.DirectAssets) != 0 || len(report.Dependants) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestResolveWithOneDependency(t *testing.T) {
	cat := newFakeCatalog()
	a := model.NewAssetIdentifier("org", "proj", "a", "v1")
	b := model.NewAssetIdentifier("org", "proj", "b", "v2")
	cat.put(model.AssetData{Identifier: a, SequenceNumber: 1, Dependencies: []model.AssetIdentifier{b}})
	cat.put(model.AssetData{Identifier: b, SequenceNumber: 1})

	r := New(cat, fakeFS{}, fakeWorkspace{}, nil, 0, nil)
	report, err := r.Resolve(context.Background(), []model.BaseAssetData{{Identifier: a}}, model.ImportExact, model.EffectiveImportSettings{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.DirectAssets) != 1 || report.DirectAssets[0].Identifier.Tracked() != a.Tracked() {
		t.Fatalf("expected direct=[a], got %+v", report.DirectAssets)
	}
	if len(report.Dependants) != 1 || report.Dependants[0].Identifier.Tracked() != b.Tracked() {
		t.Fatalf("expected dependants=[b], got %+v", report.Dependants)
	}
}

func TestResolveCancelledContextReturnsEmpty(t *testing.T) {
	cat := newFakeCatalog()
	a := model.NewAssetIdentifier("org", "proj", "a", "v1")
	cat.put(model.AssetData{Identifier: a})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(cat, fakeFS{}, fakeWorkspace{}, nil, 0, nil)
	report, err := r.Resolve(ctx, []model.BaseAssetData{{Identifier: a}}, model.ImportExact, model.EffectiveImportSettings{})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if len(report.DirectAssets) != 0 {
		t.Fatalf("expected empty closure on cancellation, got %+v", report)
	}
}
