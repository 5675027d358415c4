// Package catalog declares the remote catalog port the resolver and
// pipeline consume (spec §6). Streaming operations return a channel of
// Result[T] rather than a language-level async stream.
package catalog

import (
	"context"

	"github.com/vaultbridge/importengine/internal/model"
)

// Result carries one streamed item or a terminal error.
type Result[T any] struct {
	Value T
	Err   error
}

// SortOrder is the direction for a search's sort field.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// SearchFilter narrows a catalog search, e.g. by asset id or version.
type SearchFilter struct {
	AssetIDs      []string
	AssetVersions []model.AssetIdentifier
}

// Catalog is the remote asset catalog port.
type Catalog interface {
	GetAsset(ctx context.Context, id model.AssetIdentifier) (model.AssetData, error)
	GetLatestAssetVersion(ctx context.Context, id model.TrackedID) (model.AssetData, error)
	GetLatestAssetVersionLite(ctx context.Context, id model.TrackedID) (string, error)
	ListVersionsDescending(ctx context.Context, id model.TrackedID) <-chan Result[model.AssetData]
	Search(ctx context.Context, orgID string, projectIDs []string, filter SearchFilter, sortField string, order SortOrder, offset, pageSize int) <-chan Result[model.AssetData]
	ResolveDatasets(ctx context.Context, asset *model.AssetData) error
	RefreshDependencies(ctx context.Context, asset *model.AssetData) error
	GatherImportStatuses(ctx context.Context, assets []model.AssetIdentifier) (map[model.TrackedID]model.ImportStatus, error)
	ListFiles(ctx context.Context, id model.AssetIdentifier, datasetID string, offset, limit int) <-chan Result[model.AssetDataFile]
	GetDatasetDownloadURLs(ctx context.Context, id model.AssetIdentifier, datasetID string) (map[string]string, error)
	GetPreviewURL(ctx context.Context, asset model.AssetData, maxDim int) (string, bool, error)
}
