package importpipeline

import (
	"sync"

	"github.com/vaultbridge/importengine/internal/download"
	"github.com/vaultbridge/importengine/internal/model"
)

// ImportOperation is the per-asset unit of work: a staging directory,
// the set of files it will fetch, and the files already present at
// the destination (keyed by the file's original catalog path, spec
// §4.G step 5).
type ImportOperation struct {
	Asset           model.AssetData
	StagingDir      string
	DestinationRoot string
	ExistingFiles   map[string]string // original catalog path -> existing workspace path
	Requests        []download.Request
	DatasetByReqID  map[string]string // download.Request.ID -> dataset id, for index bookkeeping
	FinalPathByReqID map[string]string // download.Request.ID -> final workspace destination

	mu     sync.Mutex
	status model.OperationStatus
	err    error
}

func newImportOperation(asset model.AssetData, stagingDir, destRoot string, existing map[string]string) *ImportOperation {
	return &ImportOperation{
		Asset:           asset,
		StagingDir:      stagingDir,
		DestinationRoot: destRoot,
		ExistingFiles:   existing,
		DatasetByReqID:  make(map[string]string),
		FinalPathByReqID: make(map[string]string),
		status:          model.OpNotStarted,
	}
}

// Status returns the operation's current lifecycle state.
func (op *ImportOperation) Status() model.OperationStatus {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.status
}

func (op *ImportOperation) setStatus(s model.OperationStatus, err error) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.status = s
	if err != nil {
		op.err = err
	}
}

// Progress aggregates the operation's download requests with equal
// weight (spec §4.G "per-asset import operation").
func (op *ImportOperation) Progress(completed map[string]download.Event) float64 {
	if len(op.Requests) == 0 {
		return 1
	}
	var sum float64
	for _, req := range op.Requests {
		ev, ok := completed[req.ID]
		if !ok {
			continue
		}
		if ev.TotalBytes > 0 {
			sum += float64(ev.BytesDone) / float64(ev.TotalBytes)
		} else if ev.Done {
			sum += 1
		}
	}
	return sum / float64(len(op.Requests))
}

// BulkImportOperation aggregates every per-asset ImportOperation
// started by one startImport call.
type BulkImportOperation struct {
	Trigger string
	Ops     []*ImportOperation

	mu     sync.Mutex
	status model.OperationStatus
}

func newBulkImportOperation(trigger string, ops []*ImportOperation) *BulkImportOperation {
	return &BulkImportOperation{Trigger: trigger, Ops: ops, status: model.OpNotStarted}
}

// Status returns the bulk operation's current aggregate state.
func (b *BulkImportOperation) Status() model.OperationStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// recomputeStatus applies spec §4.G's aggregation rule: Success iff
// every child is Success; Cancelled if any child is Cancelled;
// otherwise Error (i.e. at least one child errored and none were
// cancelled, while the rest are terminal). Returns false while any
// child is still NotStarted/InProgress.
func (b *BulkImportOperation) recomputeStatus() (model.OperationStatus, bool) {
	allSuccess := true
	anyCancelled := false
	anyError := false
	for _, op := range b.Ops {
		switch op.Status() {
		case model.OpSuccess:
		case model.OpCancelled:
			anyCancelled = true
			allSuccess = false
		case model.OpError:
			anyError = true
			allSuccess = false
		default:
			return "", false
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case allSuccess:
		b.status = model.OpSuccess
	case anyCancelled:
		b.status = model.OpCancelled
	case anyError:
		b.status = model.OpError
	}
	return b.status, true
}
