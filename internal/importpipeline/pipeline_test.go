package importpipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vaultbridge/importengine/internal/catalog"
	"github.com/vaultbridge/importengine/internal/download"
	"github.com/vaultbridge/importengine/internal/index"
	"github.com/vaultbridge/importengine/internal/ioport"
	"github.com/vaultbridge/importengine/internal/model"
	"github.com/vaultbridge/importengine/internal/resolver"
	"github.com/vaultbridge/importengine/internal/workspace"
)

// memFS is a minimal in-memory ioport.FileIO fake, local to this
// package's tests (the cache package's memFS is not exported).
type memFS struct {
	mu     sync.Mutex
	files  map[string][]byte
	dirs   map[string]bool
	tmpSeq int
}

func newMemFS() *memFS {
	return &memFS{files: make(map[string][]byte), dirs: make(map[string]bool)}
}

func (m *memFS) FileExists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}
func (m *memFS) DirectoryExists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[path], nil
}
func (m *memFS) CreateDirectory(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[path] = true
	return nil
}
func (m *memFS) DirectoryDelete(ctx context.Context, path string, recursive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dirs, path)
	return nil
}
func (m *memFS) FileMove(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[src]
	if !ok {
		return fmt.Errorf("no such file %s", src)
	}
	delete(m.files, src)
	m.files[dst] = data
	return nil
}
func (m *memFS) DeleteFile(ctx context.Context, path string, removeEmptyParents bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}
func (m *memFS) FileReadAllBytes(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file %s", path)
	}
	return data, nil
}
func (m *memFS) FileWriteAllBytes(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = data
	return nil
}
func (m *memFS) GetFileLastWriteTimeUTC(ctx context.Context, path string) (time.Time, error) {
	return time.Time{}, nil
}
func (m *memFS) GetFileLength(ctx context.Context, path string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.files[path])), nil
}
func (m *memFS) GetOldestFiles(ctx context.Context, dir string) ([]ioport.FileStat, error) {
	return nil, nil
}
func (m *memFS) GetUniqueTempPathInProject(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tmpSeq++
	return fmt.Sprintf("/staging/%d", m.tmpSeq), nil
}
func (m *memFS) Touch(ctx context.Context, path string) error { return nil }

// memWorkspace is a minimal stateful workspace.AssetDatabase fake:
// ImportAsset and PathToGUID assign a stable, path-keyed guid.
type memWorkspace struct {
	mu     sync.Mutex
	guids  map[string]model.FileGUID
	byGUID map[model.FileGUID]string
	next   int
}

func newMemWorkspace() *memWorkspace {
	return &memWorkspace{guids: make(map[string]model.FileGUID), byGUID: make(map[model.FileGUID]string)}
}

func (w *memWorkspace) PathToGUID(ctx context.Context, path string) (model.FileGUID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if g, ok := w.guids[path]; ok {
		return g, nil
	}
	w.next++
	var g model.FileGUID
	g[0] = byte(w.next)
	w.guids[path] = g
	w.byGUID[g] = path
	return g, nil
}
func (w *memWorkspace) GUIDToPath(ctx context.Context, guid model.FileGUID) (string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.byGUID[guid]
	return p, ok, nil
}
func (w *memWorkspace) GetDependencies(ctx context.Context, path string, recursive bool) ([]string, error) {
	return nil, nil
}
func (w *memWorkspace) IsDirty(ctx context.Context, path string) (bool, error) { return false, nil }
func (w *memWorkspace) DeleteAssets(ctx context.Context, paths []string, outFailed *[]string) (bool, error) {
	return true, nil
}
func (w *memWorkspace) ImportAsset(ctx context.Context, path string) error { return nil }
func (w *memWorkspace) StartAssetEditing(ctx context.Context) error        { return nil }
func (w *memWorkspace) StopAssetEditing(ctx context.Context) error         { return nil }
func (w *memWorkspace) Refresh(ctx context.Context) error                  { return nil }
func (w *memWorkspace) Subscribe(fn func(workspace.PostprocessEvent)) func() {
	return func() {}
}

type pipelineCatalog struct {
	assets map[string]model.AssetData
}

func (c *pipelineCatalog) GetAsset(ctx context.Context, id model.AssetIdentifier) (model.AssetData, error) {
	a, ok := c.assets[id.Tracked().ResolverKey()]
	if !ok {
		return model.AssetData{}, fmt.Errorf("not found")
	}
	return a, nil
}
func (c *pipelineCatalog) GetLatestAssetVersion(ctx context.Context, id model.TrackedID) (model.AssetData, error) {
	return c.assets[id.ResolverKey()], nil
}
func (c *pipelineCatalog) GetLatestAssetVersionLite(ctx context.Context, id model.TrackedID) (string, error) {
	return c.assets[id.ResolverKey()].Identifier.Version, nil
}
func (c *pipelineCatalog) ListVersionsDescending(ctx context.Context, id model.TrackedID) <-chan catalog.Result[model.AssetData] {
	ch := make(chan catalog.Result[model.AssetData])
	close(ch)
	return ch
}
func (c *pipelineCatalog) Search(ctx context.Context, orgID string, projectIDs []string, filter catalog.SearchFilter, sortField string, order catalog.SortOrder, offset, pageSize int) <-chan catalog.Result[model.AssetData] {
	ch := make(chan catalog.Result[model.AssetData], len(filter.AssetVersions)+len(filter.AssetIDs))
	defer close(ch)
	for _, v := range filter.AssetVersions {
		if a, ok := c.assets[v.Tracked().ResolverKey()]; ok {
			ch <- catalog.Result[model.AssetData]{Value: a}
		}
	}
	return ch
}
func (c *pipelineCatalog) ResolveDatasets(ctx context.Context, asset *model.AssetData) error { return nil }
func (c *pipelineCatalog) RefreshDependencies(ctx context.Context, asset *model.AssetData) error {
	return nil
}
func (c *pipelineCatalog) GatherImportStatuses(ctx context.Context, assets []model.AssetIdentifier) (map[model.TrackedID]model.ImportStatus, error) {
	return nil, nil
}
func (c *pipelineCatalog) ListFiles(ctx context.Context, id model.AssetIdentifier, datasetID string, offset, limit int) <-chan catalog.Result[model.AssetDataFile] {
	ch := make(chan catalog.Result[model.AssetDataFile])
	close(ch)
	return ch
}
func (c *pipelineCatalog) GetDatasetDownloadURLs(ctx context.Context, id model.AssetIdentifier, datasetID string) (map[string]string, error) {
	a := c.assets[id.Tracked().ResolverKey()]
	urls := make(map[string]string)
	for _, ds := range a.Datasets {
		if ds.ID != datasetID {
			continue
		}
		for _, f := range ds.Files {
			urls[f.Path] = "https://cdn.example.test/" + f.Path
		}
	}
	return urls, nil
}
func (c *pipelineCatalog) GetPreviewURL(ctx context.Context, asset model.AssetData, maxDim int) (string, bool, error) {
	return "", false, nil
}

// instantHandle finishes on its first poll, so a test drives the
// pipeline's download loop deterministically in a couple of ticks.
type instantHandle struct{}

func (instantHandle) Poll(ctx context.Context) (download.PollResult, error) {
	return download.PollResult{BytesDone: 10, TotalBytes: 10, Done: true}, nil
}
func (instantHandle) Release() {}

type instantTransport struct{ fs *memFS }

func (t *instantTransport) Start(ctx context.Context, req download.Request) (download.Handle, error) {
	_ = t.fs.FileWriteAllBytes(ctx, req.DownloadPath, []byte("payload"))
	return instantHandle{}, nil
}

func TestStartImportMaterializesSingleAsset(t *testing.T) {
	fs := newMemFS()
	ws := newMemWorkspace()
	idx := index.New(nil)
	cat := &pipelineCatalog{assets: map[string]model.AssetData{}}

	a := model.NewAssetIdentifier("org", "proj", "asset-a", "v1")
	cat.assets[a.Tracked().ResolverKey()] = model.AssetData{
		Identifier: a,
		Datasets: []model.Dataset{{
			ID: "source",
			Files: []model.AssetDataFile{
				{Path: "model.fbx", Available: true},
			},
		}},
	}

	res := resolver.New(cat, fs, ws, idx, 0, nil)
	mgr := download.New(&instantTransport{fs: fs}, 10, time.Second, nil)
	p := New(res, cat, fs, ws, idx, mgr, nil, "/workspace", nil)

	settings := model.EffectiveImportSettings{DefaultImportLocation: "/workspace/Assets", IsSubfolderCreationEnabled: true}
	bulk, err := p.StartImport(context.Background(), "test", []model.BaseAssetData{{Identifier: a}}, model.ImportExact, model.ImportOverrides{}, settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bulk.Status() != model.OpSuccess {
		t.Fatalf("expected bulk success, got %v", bulk.Status())
	}

	entry, ok := idx.GetByTracked(a.Tracked())
	if !ok {
		t.Fatalf("expected index entry for %v", a.Tracked())
	}
	if len(entry.Files) != 1 {
		t.Fatalf("expected 1 tracked file, got %d", len(entry.Files))
	}

	dest := "/workspace/Assets/asset-a/model.fbx"
	if exists, _ := fs.FileExists(context.Background(), dest); !exists {
		t.Fatalf("expected file materialized at %s", dest)
	}
}

func TestStartImportRejectsConcurrentCall(t *testing.T) {
	fs := newMemFS()
	ws := newMemWorkspace()
	idx := index.New(nil)
	cat := &pipelineCatalog{assets: map[string]model.AssetData{}}
	res := resolver.New(cat, fs, ws, idx, 0, nil)
	mgr := download.New(&instantTransport{fs: fs}, 10, time.Second, nil)
	p := New(res, cat, fs, ws, idx, mgr, nil, "", nil)

	p.importing = true
	_, err := p.StartImport(context.Background(), "t", []model.BaseAssetData{{Identifier: model.NewAssetIdentifier("o", "p", "a", "v1")}}, model.ImportExact, model.ImportOverrides{}, model.EffectiveImportSettings{})
	if err != ErrOperationInProgress {
		t.Fatalf("expected ErrOperationInProgress, got %v", err)
	}
}

func TestRemoveImportsDropsEntryAndDeletesFiles(t *testing.T) {
	fs := newMemFS()
	ws := newMemWorkspace()
	idx := index.New(nil)
	cat := &pipelineCatalog{assets: map[string]model.AssetData{}}
	res := resolver.New(cat, fs, ws, idx, 0, nil)
	mgr := download.New(&instantTransport{fs: fs}, 10, time.Second, nil)
	p := New(res, cat, fs, ws, idx, mgr, nil, "", nil)

	a := model.NewAssetIdentifier("org", "proj", "asset-a", "v1")
	guid, _ := ws.PathToGUID(context.Background(), "/workspace/Assets/asset-a/model.fbx")
	idx.Upsert(model.AssetData{Identifier: a}, []model.ImportedFileInfo{{FileGUID: guid}})

	failed, err := p.RemoveImports(context.Background(), []model.TrackedID{a.Tracked()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("expected no failed deletions, got %v", failed)
	}
	if _, ok := idx.GetByTracked(a.Tracked()); ok {
		t.Fatalf("expected entry removed from index")
	}
}
