package resolver

import (
	"context"

	"github.com/vaultbridge/importengine/internal/catalog"
	"github.com/vaultbridge/importengine/internal/model"
	"go.uber.org/zap"
)

// fetchUpdated resolves a batch of requested identifiers against the
// catalog, grouped by organization (spec §4.E). Each returned asset
// has already had ResolveDatasets and RefreshDependencies applied.
func (r *Resolver) fetchUpdated(ctx context.Context, ids []model.AssetIdentifier, importType model.ImportType) ([]model.AssetData, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	byOrg := make(map[string][]model.AssetIdentifier)
	var orgOrder []string
	for _, id := range ids {
		if _, seen := byOrg[id.OrgID]; !seen {
			orgOrder = append(orgOrder, id.OrgID)
		}
		byOrg[id.OrgID] = append(byOrg[id.OrgID], id)
	}

	var out []model.AssetData
	for _, org := range orgOrder {
		group := byOrg[org]
		fetched, err := r.fetchGroup(ctx, org, group, importType)
		if err != nil {
			return nil, err
		}
		out = append(out, fetched...)
	}
	return out, nil
}

func (r *Resolver) fetchGroup(ctx context.Context, org string, group []model.AssetIdentifier, importType model.ImportType) ([]model.AssetData, error) {
	if len(group) == 1 {
		asset, err := r.fetchSingle(ctx, group[0], importType)
		if err != nil {
			if degraded(err) {
				r.logger.Debug("dropping unresolvable asset", zap.String("id", group[0].String()), zap.Error(err))
				return nil, nil
			}
			return nil, err
		}
		if err := r.hydrate(ctx, &asset); err != nil {
			return nil, err
		}
		return []model.AssetData{asset}, nil
	}

	wanted := make(map[string]struct{}, len(group))
	projects := make(map[string]struct{}, len(group))
	for _, id := range group {
		wanted[id.AssetID] = struct{}{}
		projects[id.ProjectID] = struct{}{}
	}
	projectIDs := make([]string, 0, len(projects))
	for p := range projects {
		projectIDs = append(projectIDs, p)
	}

	pageSize := r.pageSize
	if pageSize <= 0 {
		pageSize = defaultSearchPageSize
	}

	var out []model.AssetData
	for offset := 0; offset < len(group); offset += pageSize {
		end := offset + pageSize
		if end > len(group) {
			end = len(group)
		}
		chunk := group[offset:end]

		filter := catalog.SearchFilter{}
		if importType == model.ImportExact {
			filter.AssetVersions = chunk
		} else {
			ids := make([]string, len(chunk))
			for i, id := range chunk {
				ids[i] = id.AssetID
			}
			filter.AssetIDs = ids
		}

		results := r.catalog.Search(ctx, org, projectIDs, filter, "updated", catalog.SortDescending, 0, pageSize)
		for res := range results {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if res.Err != nil {
				if degraded(res.Err) {
					continue
				}
				return nil, res.Err
			}
			asset := res.Value
			if _, ok := wanted[asset.Identifier.AssetID]; !ok {
				continue // false positive, not in the requested subset
			}
			if err := r.hydrate(ctx, &asset); err != nil {
				return nil, err
			}
			out = append(out, asset)
		}
	}
	return out, nil
}

func (r *Resolver) fetchSingle(ctx context.Context, id model.AssetIdentifier, importType model.ImportType) (model.AssetData, error) {
	if importType == model.ImportExact {
		return r.catalog.GetAsset(ctx, id)
	}
	return r.catalog.GetLatestAssetVersion(ctx, id.Tracked())
}

func (r *Resolver) hydrate(ctx context.Context, asset *model.AssetData) error {
	if err := r.catalog.ResolveDatasets(ctx, asset); err != nil {
		return err
	}
	return r.catalog.RefreshDependencies(ctx, asset)
}
