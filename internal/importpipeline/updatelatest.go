package importpipeline

import (
	"context"
	"fmt"

	"github.com/vaultbridge/importengine/internal/model"
)

// CheckAndUpdateOutOfDate gathers import status for the given tracked
// set from the catalog and starts an UpdateToLatest import for
// whichever are reported OutOfDate (spec §4.G "Update-to-latest").
// Intended to be called periodically by a poller (internal/scheduler).
func (p *Pipeline) CheckAndUpdateOutOfDate(ctx context.Context, trigger string, tracked []model.TrackedID, defaults model.EffectiveImportSettings) (*BulkImportOperation, error) {
	if len(tracked) == 0 {
		return nil, nil
	}

	versions := make([]model.AssetIdentifier, 0, len(tracked))
	for _, id := range tracked {
		entry, ok := p.idx.GetByTracked(id)
		if !ok {
			continue
		}
		versions = append(versions, entry.Asset.Identifier)
	}
	if len(versions) == 0 {
		return nil, nil
	}

	statuses, err := p.catalog.GatherImportStatuses(ctx, versions)
	if err != nil {
		return nil, fmt.Errorf("gathering import statuses: %w", err)
	}

	var outdated []model.BaseAssetData
	for _, v := range versions {
		if statuses[v.Tracked()] == model.ImportStatusOutOfDate {
			outdated = append(outdated, model.BaseAssetData{Identifier: v})
		}
	}
	if len(outdated) == 0 {
		return nil, nil
	}

	return p.StartImport(ctx, trigger, outdated, model.ImportUpdateToLatest, model.ImportOverrides{}, defaults)
}
