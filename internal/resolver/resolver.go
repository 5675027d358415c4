// Package resolver implements the dependency resolver (spec §4.E): a
// concurrent BFS over the catalog's declared asset dependencies,
// followed by conflict detection against the local workspace.
package resolver

import (
	"context"

	"github.com/vaultbridge/importengine/internal/catalog"
	"github.com/vaultbridge/importengine/internal/engineerr"
	"github.com/vaultbridge/importengine/internal/index"
	"github.com/vaultbridge/importengine/internal/ioport"
	"github.com/vaultbridge/importengine/internal/model"
	"github.com/vaultbridge/importengine/internal/workspace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultSearchPageSize = 100

// Resolver traverses the catalog's dependency graph and annotates the
// resulting closure with workspace conflicts.
type Resolver struct {
	catalog   catalog.Catalog
	fs        ioport.FileIO
	workspace workspace.AssetDatabase
	idx       *index.Index // optional: nil disables stored-checksum comparison, fail-safe to Modified=true
	logger    *zap.Logger
	pageSize  int
}

// New constructs a Resolver. pageSize is the catalog's chunked-search
// page size (spec §4.E fetchUpdated); zero uses defaultSearchPageSize.
// idx may be nil, in which case every existing-file conflict is
// reported as modified (fail-safe, per spec §4.E "unknown-checksum").
func New(cat catalog.Catalog, fs ioport.FileIO, ws workspace.AssetDatabase, idx *index.Index, pageSize int, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{catalog: cat, fs: fs, workspace: ws, idx: idx, pageSize: pageSize, logger: logger}
}

// degraded reports whether err is one of the "could not resolve"
// classes the resolver tolerates per-item rather than aborting the
// whole closure (spec §7).
func degraded(err error) bool {
	kind, ok := engineerr.KindOf(err)
	if !ok {
		return false
	}
	return kind == engineerr.KindNotFound || kind == engineerr.KindForbidden
}

// Resolve runs the traversal and conflict detection, returning the
// resolution report. An empty requested set returns an empty report
// without any catalog calls (spec §8 boundary 9). A cancelled context
// returns an empty closure with no side effects (spec §5).
func (r *Resolver) Resolve(ctx context.Context, requested []model.BaseAssetData, importType model.ImportType, settings model.EffectiveImportSettings) (model.UpdatedAssetData, error) {
	if len(requested) == 0 {
		return model.UpdatedAssetData{}, nil
	}
	if err := ctx.Err(); err != nil {
		return model.UpdatedAssetData{}, err
	}

	directIDs := make(map[model.TrackedID]struct{}, len(requested))
	seedIDs := make([]model.AssetIdentifier, 0, len(requested))
	for _, base := range requested {
		directIDs[base.Identifier.Tracked()] = struct{}{}
		seedIDs = append(seedIDs, base.Identifier)
	}

	seeds, err := r.fetchUpdated(ctx, seedIDs, importType)
	if err != nil {
		return model.UpdatedAssetData{}, err
	}

	tbl := newTable()
	seedKeys := make([]string, 0, len(seeds))
	for _, s := range seeds {
		key := s.Identifier.Tracked().ResolverKey()
		tbl.seed(key, s)
		seedKeys = append(seedKeys, key)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range seedKeys {
		key := key
		g.Go(func() error {
			return r.traverse(gctx, g, tbl, key, importType)
		})
	}
	if err := g.Wait(); err != nil {
		return model.UpdatedAssetData{}, err
	}

	if ctx.Err() != nil {
		return model.UpdatedAssetData{}, ctx.Err()
	}

	closure := tbl.snapshotCompleted()

	var report model.UpdatedAssetData
	for _, asset := range closure {
		conflicts := r.detectConflicts(ctx, asset, settings)
		if _, direct := directIDs[asset.Identifier.Tracked()]; direct {
			report.DirectAssets = append(report.DirectAssets, asset)
			report.DirectConflicts = append(report.DirectConflicts, conflicts)
		} else {
			report.Dependants = append(report.Dependants, asset)
			report.DependantConflicts = append(report.DependantConflicts, conflicts)
		}
	}
	return report, nil
}

// traverse implements one node's step of the algorithm in spec §4.E
// (steps 3.a-f): claim the node, fetch its un-reserved dependencies,
// record them, mark itself Completed, and fan out to the newly
// discovered dependencies.
func (r *Resolver) traverse(ctx context.Context, g *errgroup.Group, tbl *table, key string, importType model.ImportType) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	data, ok := tbl.beginTraversal(key)
	if !ok {
		return nil
	}

	depIDs := make([]model.AssetIdentifier, 0, len(data.Dependencies))
	depKeys := make([]string, 0, len(data.Dependencies))
	for _, dep := range data.Dependencies {
		depIDs = append(depIDs, dep)
		depKeys = append(depKeys, dep.Tracked().ResolverKey())
	}

	reservedKeys := tbl.reserveNew(depKeys)
	if len(reservedKeys) > 0 {
		reservedSet := make(map[string]struct{}, len(reservedKeys))
		for _, k := range reservedKeys {
			reservedSet[k] = struct{}{}
		}
		var toFetch []model.AssetIdentifier
		for i, depKey := range depKeys {
			if _, reserved := reservedSet[depKey]; reserved {
				toFetch = append(toFetch, depIDs[i])
			}
		}

		fetched, err := r.fetchUpdated(ctx, toFetch, importType)
		if err != nil {
			for _, k := range reservedKeys {
				tbl.discard(k)
			}
			return err
		}

		fetchedKeys := make(map[string]struct{}, len(fetched))
		for _, dep := range fetched {
			depKey := dep.Identifier.Tracked().ResolverKey()
			fetchedKeys[depKey] = struct{}{}
			tbl.recordFetched(depKey, dep)
		}
		for _, k := range reservedKeys {
			if _, got := fetchedKeys[k]; !got {
				tbl.discard(k)
			}
		}

		for _, k := range reservedKeys {
			if _, got := fetchedKeys[k]; !got {
				continue
			}
			k := k
			g.Go(func() error {
				return r.traverse(ctx, g, tbl, k, importType)
			})
		}
	}

	tbl.complete(key, data)
	return nil
}
