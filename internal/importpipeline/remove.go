package importpipeline

import (
	"context"

	"github.com/vaultbridge/importengine/internal/model"
)

// RemoveImports drops each tracked identity from the index and
// deletes its materialized files and leftover folders, skipping any
// file still referenced by a different imported asset (spec §4.G
// "Removal flow"). Returns the paths that failed to delete.
func (p *Pipeline) RemoveImports(ctx context.Context, ids []model.TrackedID) ([]string, error) {
	type plan struct {
		id      model.TrackedID
		files   []string
		folders []string
	}

	plans := make([]plan, 0, len(ids))
	for _, id := range ids {
		entry, ok := p.idx.GetByTracked(id)
		if !ok {
			continue
		}
		files, folders := filesAndLeftoverFolders(ctx, p.workspace, entry)
		plans = append(plans, plan{id: id, files: files, folders: folders})
	}

	// Filter out files still referenced by a different tracked asset
	// before dropping the index entries (spec step 2): once Remove
	// runs, the reverse map can no longer answer this question.
	toDelete := make([]string, 0)
	folderSet := make(map[string]struct{})
	for _, pl := range plans {
		for _, path := range pl.files {
			guid, err := p.workspace.PathToGUID(ctx, path)
			if err != nil {
				continue
			}
			sharedElsewhere := false
			for _, owner := range p.idx.GetByFileGUID(guid) {
				if owner.Tracked() != pl.id {
					sharedElsewhere = true
					break
				}
			}
			if !sharedElsewhere {
				toDelete = append(toDelete, path)
			}
		}
		for _, dir := range pl.folders {
			folderSet[dir] = struct{}{}
		}
	}

	p.idx.Remove(ids)

	var failed []string
	if _, err := p.workspace.DeleteAssets(ctx, toDelete, &failed); err != nil {
		return failed, err
	}
	for dir := range folderSet {
		_ = p.fs.DirectoryDelete(ctx, dir, false)
	}
	return failed, nil
}
