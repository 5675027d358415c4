package importpipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/vaultbridge/importengine/internal/catalog"
	"github.com/vaultbridge/importengine/internal/checksum"
	"github.com/vaultbridge/importengine/internal/decision"
	"github.com/vaultbridge/importengine/internal/download"
	"github.com/vaultbridge/importengine/internal/engineerr"
	"github.com/vaultbridge/importengine/internal/index"
	"github.com/vaultbridge/importengine/internal/ioport"
	"github.com/vaultbridge/importengine/internal/model"
	"github.com/vaultbridge/importengine/internal/resolver"
	"github.com/vaultbridge/importengine/internal/workspace"
	"go.uber.org/zap"
)

// ErrOperationInProgress is returned by StartImport when a bulk import
// is already running; the process-wide gate (spec §4.G) only ever
// allows one at a time.
var ErrOperationInProgress = engineerr.Conflictf("import operation already in progress")

// Pipeline orchestrates a resolve → stage → download → post-process
// cycle, gated so only one bulk import runs at a time. Grounded on the
// teacher's reconciler.Reconcile continue-on-error loop for
// post-processing; batch-start hands every download to the shared
// download manager and drives its Tick, with no worker pool of its own.
type Pipeline struct {
	resolver      *resolver.Resolver
	catalog       catalog.Catalog
	fs            ioport.FileIO
	workspace     workspace.AssetDatabase
	idx           *index.Index
	downloads     *download.Manager
	decisionMaker decision.Maker
	workspaceRoot string
	logger        *zap.Logger

	mu        sync.Mutex
	importing bool
	inflight  map[string]*ImportOperation // assetId -> in-flight ImportOperation, reused across overlapping requests
}

// New constructs a Pipeline. decisionMaker may be nil, defaulting to
// decision.ReplaceAll (spec §4.E "Decision step").
func New(
	res *resolver.Resolver,
	cat catalog.Catalog,
	fs ioport.FileIO,
	ws workspace.AssetDatabase,
	idx *index.Index,
	downloads *download.Manager,
	decisionMaker decision.Maker,
	workspaceRoot string,
	logger *zap.Logger,
) *Pipeline {
	if decisionMaker == nil {
		decisionMaker = decision.ReplaceAll{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		resolver:      res,
		catalog:       cat,
		fs:            fs,
		workspace:     ws,
		idx:           idx,
		downloads:     downloads,
		decisionMaker: decisionMaker,
		workspaceRoot: workspaceRoot,
		logger:        logger,
		inflight:      make(map[string]*ImportOperation),
	}
}

// StartImport runs the full import cycle (spec §4.G). It blocks until
// the bulk operation finishes and only then returns it; a call made
// while another import is running returns ErrOperationInProgress at
// once.
func (p *Pipeline) StartImport(
	ctx context.Context,
	trigger string,
	requested []model.BaseAssetData,
	importType model.ImportType,
	overrides model.ImportOverrides,
	defaults model.EffectiveImportSettings,
) (*BulkImportOperation, error) {
	if !p.beginImporting() {
		return nil, ErrOperationInProgress
	}
	defer p.endImporting()

	settings := ComputeEffectiveSettings(defaults, overrides)
	root := settings.ImportPath
	if root == "" {
		root = settings.DefaultImportLocation
	}
	if p.workspaceRoot != "" && !withinRoot(p.workspaceRoot, root) {
		return nil, engineerr.Preconditionf("destination %q is outside the workspace root", root)
	}

	report, err := p.resolver.Resolve(ctx, requested, importType, settings)
	if err != nil {
		return nil, fmt.Errorf("resolving import set: %w", err)
	}

	decisions, err := p.decisionMaker.ResolveConflicts(ctx, report, settings)
	if err != nil {
		return nil, fmt.Errorf("resolving conflicts: %w", err)
	}

	ops, err := p.buildOperations(ctx, decisions, root, settings)
	if err != nil {
		return nil, err
	}

	bulk := newBulkImportOperation(trigger, ops)
	if err := p.batchStart(ctx, bulk); err != nil {
		return bulk, err
	}

	if err := p.awaitBulkCompletion(ctx, bulk); err != nil {
		return bulk, err
	}

	if err := p.postProcess(ctx, bulk); err != nil {
		p.logger.Error("post-processing import", zap.Error(err))
	}

	if status, _ := bulk.recomputeStatus(); status == model.OpSuccess {
		p.mu.Lock()
		for _, op := range bulk.Ops {
			delete(p.inflight, op.Asset.Identifier.Tracked().String())
		}
		p.mu.Unlock()
	}

	return bulk, nil
}

func (p *Pipeline) beginImporting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.importing {
		return false
	}
	p.importing = true
	return true
}

func (p *Pipeline) endImporting() {
	p.mu.Lock()
	p.importing = false
	p.mu.Unlock()
}

// buildOperations constructs one ImportOperation per decided asset
// (replacing ignored assets with nothing), reusing any already
// in-flight operation for the same assetId (spec §4.G step 5).
func (p *Pipeline) buildOperations(ctx context.Context, decisions []decision.AssetDecision, root string, settings model.EffectiveImportSettings) ([]*ImportOperation, error) {
	var ops []*ImportOperation
	for _, d := range decisions {
		if d.Decision != model.DecisionReplace {
			continue
		}

		assetKey := d.Asset.Identifier.Tracked().String()
		p.mu.Lock()
		if existing, ok := p.inflight[assetKey]; ok {
			p.mu.Unlock()
			ops = append(ops, existing)
			continue
		}
		p.mu.Unlock()

		stagingDir, err := p.fs.GetUniqueTempPathInProject(ctx)
		if err != nil {
			return nil, fmt.Errorf("allocating staging directory: %w", err)
		}

		existingFiles := make(map[string]string)
		requests := make([]download.Request, 0)
		datasetByReqID := make(map[string]string)
		finalPathByReqID := make(map[string]string)
		for _, ds := range d.Asset.Datasets {
			urls, err := p.catalog.GetDatasetDownloadURLs(ctx, d.Asset.Identifier, ds.ID)
			if err != nil {
				return nil, fmt.Errorf("getting download urls for dataset %s: %w", ds.ID, err)
			}
			for _, file := range ds.Files {
				if !file.Available {
					continue
				}
				url, ok := urls[file.Path]
				if !ok {
					continue
				}
				var dest string
				if settings.IsSubfolderCreationEnabled {
					dest = resolver.TargetPath(root, d.Asset, file)
				} else {
					dest = resolver.TargetPath(root, model.AssetData{}, file)
				}
				if exists, _ := p.fs.FileExists(ctx, dest); exists {
					existingFiles[file.Path] = dest
				}
				reqID := assetKey + "/" + ds.ID + "/" + file.Path
				requests = append(requests, download.Request{
					ID:           reqID,
					URL:          url,
					OriginalPath: file.Path,
					DownloadPath: filepath.Join(stagingDir, filepath.ToSlash(file.Path)),
				})
				datasetByReqID[reqID] = ds.ID
				finalPathByReqID[reqID] = dest
			}
		}

		op := newImportOperation(d.Asset, stagingDir, root, existingFiles)
		op.Requests = requests
		op.DatasetByReqID = datasetByReqID
		op.FinalPathByReqID = finalPathByReqID

		p.mu.Lock()
		p.inflight[assetKey] = op
		p.mu.Unlock()
		ops = append(ops, op)
	}
	return ops, nil
}

// batchStart creates each operation's staging directory and enqueues
// its download requests, bounding concurrency through the shared
// download manager rather than a local worker pool (spec §4.G step 7).
func (p *Pipeline) batchStart(ctx context.Context, bulk *BulkImportOperation) error {
	for _, op := range bulk.Ops {
		if op.Status() != model.OpNotStarted {
			continue
		}
		if err := p.fs.CreateDirectory(ctx, op.StagingDir); err != nil {
			op.setStatus(model.OpError, err)
			continue
		}
		op.setStatus(model.OpInProgress, nil)
		for _, req := range op.Requests {
			p.downloads.Enqueue(req)
		}
	}
	return nil
}

// awaitBulkCompletion drives the shared download manager's tick loop
// until every enqueued request for this bulk operation has reached a
// terminal state, then marks each ImportOperation's final status.
func (p *Pipeline) awaitBulkCompletion(ctx context.Context, bulk *BulkImportOperation) error {
	ids := make(map[string]struct{})
	for _, op := range bulk.Ops {
		if op.Status() != model.OpInProgress {
			continue
		}
		for _, req := range op.Requests {
			ids[req.ID] = struct{}{}
		}
	}

	events, err := p.awaitDownloads(ctx, ids)
	if err != nil {
		return err
	}

	for _, op := range bulk.Ops {
		if op.Status() != model.OpInProgress {
			continue
		}
		finalizeOperationStatus(op, events)
	}
	return nil
}

func finalizeOperationStatus(op *ImportOperation, events map[string]download.Event) {
	if len(op.Requests) == 0 {
		op.setStatus(model.OpSuccess, nil)
		return
	}
	status := model.OpSuccess
	var firstErr error
	for _, req := range op.Requests {
		ev, ok := events[req.ID]
		if !ok {
			status = model.OpError
			continue
		}
		switch ev.Status {
		case download.StatusSuccess:
		case download.StatusCancelled:
			status = model.OpCancelled
		default:
			if status != model.OpCancelled {
				status = model.OpError
			}
			if ev.Err != nil && firstErr == nil {
				firstErr = ev.Err
			}
		}
	}
	op.setStatus(status, firstErr)
}

// awaitDownloads ticks the shared download manager until every id in
// ids has reported a terminal event, collecting the final event for
// each.
func (p *Pipeline) awaitDownloads(ctx context.Context, ids map[string]struct{}) (map[string]download.Event, error) {
	results := make(map[string]download.Event, len(ids))
	var mu sync.Mutex

	unsubscribe := p.downloads.Subscribe(func(ev download.Event) {
		if _, tracked := ids[ev.ID]; !tracked || !ev.Done {
			return
		}
		mu.Lock()
		results[ev.ID] = ev
		mu.Unlock()
	})
	defer unsubscribe()

	for {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		mu.Lock()
		remaining := len(ids) - len(results)
		mu.Unlock()
		if remaining <= 0 {
			return results, nil
		}
		if err := p.downloads.Tick(ctx); err != nil {
			return results, err
		}
		mu.Lock()
		remaining = len(ids) - len(results)
		mu.Unlock()
		if remaining <= 0 {
			return results, nil
		}
		time.Sleep(time.Millisecond)
	}
}

// collectChecksums best-effort MD5s every successfully downloaded
// file (spec §4.G post-processing step 1); a read failure just omits
// that entry rather than failing the batch.
func collectChecksums(ctx context.Context, fs ioport.FileIO, bulk *BulkImportOperation) map[string]string {
	sums := make(map[string]string)
	for _, op := range bulk.Ops {
		if op.Status() != model.OpSuccess {
			continue
		}
		for _, req := range op.Requests {
			data, err := fs.FileReadAllBytes(ctx, req.DownloadPath)
			if err != nil {
				continue
			}
			sums[req.DownloadPath] = checksum.Hex(data)
		}
	}
	return sums
}
