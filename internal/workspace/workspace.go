// Package workspace declares the local asset-database port: path <->
// file-guid lookups, dependency enumeration, and the editing-suspend
// lifecycle the import pipeline needs around a bulk move. The source
// system reaches these through reflection into private engine
// internals; per spec §9 this port replaces that with an explicit
// interface the workspace adapter implements.
package workspace

import (
	"context"

	"github.com/vaultbridge/importengine/internal/model"
)

// PostprocessEvent is raised by the workspace after any operation that
// imports, deletes, or moves tracked files.
type PostprocessEvent struct {
	Imported []string
	Deleted  []string
	Moved    []string
	MovedFrom []string
}

// AssetDatabase is the workspace's asset-database port.
type AssetDatabase interface {
	// PathToGUID returns the stable file identifier for a workspace
	// path, assigning one if the path is not yet tracked.
	PathToGUID(ctx context.Context, path string) (model.FileGUID, error)
	// GUIDToPath resolves a file guid back to its current workspace
	// path.
	GUIDToPath(ctx context.Context, guid model.FileGUID) (string, bool, error)
	// GetDependencies returns the paths the workspace asset database
	// considers path to depend on.
	GetDependencies(ctx context.Context, path string, recursive bool) ([]string, error)
	// IsDirty reports whether path has unsaved editor state, which the
	// resolver treats as an automatic modification conflict regardless
	// of checksum.
	IsDirty(ctx context.Context, path string) (bool, error)
	// DeleteAssets removes the given paths; any path that failed to
	// delete is appended to outFailed and the call still returns true
	// if at least one path was removed.
	DeleteAssets(ctx context.Context, paths []string, outFailed *[]string) (bool, error)
	// ImportAsset explicitly (re-)imports a non-meta file that was
	// just moved into place.
	ImportAsset(ctx context.Context, path string) error
	// StartAssetEditing suspends the workspace's automatic
	// re-import-on-change watcher; StopAssetEditing resumes it. Both
	// must always be paired, with StopAssetEditing called on every
	// exit path.
	StartAssetEditing(ctx context.Context) error
	StopAssetEditing(ctx context.Context) error
	// Refresh forces the workspace to pick up files written outside
	// its watcher (e.g. during a suspended-editing window).
	Refresh(ctx context.Context) error
	// Subscribe registers fn to receive postprocess notifications and
	// returns an unsubscribe function.
	Subscribe(fn func(PostprocessEvent)) (unsubscribe func())
}
