package importpipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/vaultbridge/importengine/internal/model"
	"go.uber.org/zap"
)

// postProcess implements spec §4.G's post-processing steps: suspend
// the asset database's auto-reimport, move each successful operation's
// downloaded files into place (cleaning up any prior materialization
// first), delete staging directories, resume and refresh the asset
// database, and only then upsert the index.
func (p *Pipeline) postProcess(ctx context.Context, bulk *BulkImportOperation) error {
	checksums := collectChecksums(ctx, p.fs, bulk)

	type movedOp struct {
		op        *ImportOperation
		fileInfos []model.ImportedFileInfo
	}
	var moved []movedOp

	if err := p.workspace.StartAssetEditing(ctx); err != nil {
		p.logger.Warn("suspending asset editing", zap.Error(err))
	}
	defer func() {
		if err := p.workspace.StopAssetEditing(ctx); err != nil {
			p.logger.Warn("resuming asset editing", zap.Error(err))
		}
		if err := p.workspace.Refresh(ctx); err != nil {
			p.logger.Warn("refreshing workspace", zap.Error(err))
		}
		for _, m := range moved {
			p.idx.Upsert(m.op.Asset, m.fileInfos)
		}
	}()

	for _, op := range bulk.Ops {
		if op.Status() != model.OpSuccess {
			continue
		}
		p.cleanupPriorMaterialization(ctx, op)
		moved = append(moved, movedOp{op: op, fileInfos: p.moveAndTrack(ctx, op, checksums)})
	}

	for _, op := range bulk.Ops {
		if err := p.fs.DirectoryDelete(ctx, op.StagingDir, true); err != nil {
			p.logger.Warn("deleting staging directory", zap.String("dir", op.StagingDir), zap.Error(err))
		}
	}
	return nil
}

// cleanupPriorMaterialization deletes whatever the index currently
// associates with op.Asset's tracked identity, before the new files
// land at the same destination (spec §4.G step 2b).
func (p *Pipeline) cleanupPriorMaterialization(ctx context.Context, op *ImportOperation) {
	entry, ok := p.idx.GetByTracked(op.Asset.Identifier.Tracked())
	if !ok {
		return
	}
	files, folders := filesAndLeftoverFolders(ctx, p.workspace, entry)
	var failed []string
	if _, err := p.workspace.DeleteAssets(ctx, files, &failed); err != nil {
		p.logger.Warn("cleaning up prior materialization", zap.Error(err))
	}
	for _, dir := range folders {
		_ = p.fs.DirectoryDelete(ctx, dir, false)
	}
}

// moveAndTrack moves every downloaded file to its final destination,
// explicitly re-importing non-meta files, and returns the
// ImportedFileInfo entries the index should record (spec §4.G steps
// 2c and 5). Files the workspace never tracks (meta sidecars,
// .DS_Store, .gitignore) get no entry.
func (p *Pipeline) moveAndTrack(ctx context.Context, op *ImportOperation, checksums map[string]string) []model.ImportedFileInfo {
	var infos []model.ImportedFileInfo
	now := time.Now().UTC()

	for _, req := range op.Requests {
		dest, ok := op.FinalPathByReqID[req.ID]
		if !ok {
			dest = filepath.Join(op.DestinationRoot, filepath.ToSlash(req.OriginalPath))
		}

		if exists, _ := p.fs.FileExists(ctx, dest); exists {
			if err := p.fs.DeleteFile(ctx, dest, false); err != nil {
				p.logger.Warn("removing existing file before move", zap.String("path", dest), zap.Error(err))
				continue
			}
		}
		if err := p.fs.FileMove(ctx, req.DownloadPath, dest); err != nil {
			p.logger.Warn("moving downloaded file", zap.String("from", req.DownloadPath), zap.String("to", dest), zap.Error(err))
			continue
		}

		if excludedFromTracking(dest) {
			continue
		}
		if err := p.workspace.ImportAsset(ctx, dest); err != nil {
			p.logger.Warn("importing asset into workspace", zap.String("path", dest), zap.Error(err))
		}

		guid, err := p.workspace.PathToGUID(ctx, dest)
		if err != nil {
			p.logger.Warn("resolving file guid", zap.String("path", dest), zap.Error(err))
			continue
		}

		infos = append(infos, model.ImportedFileInfo{
			DatasetID:    op.DatasetByReqID[req.ID],
			FileGUID:     guid,
			OriginalPath: req.OriginalPath,
			Checksum:     checksums[req.DownloadPath],
			ModifiedAt:   now,
		})
	}
	return infos
}
