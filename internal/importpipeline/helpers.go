package importpipeline

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/vaultbridge/importengine/internal/model"
	"github.com/vaultbridge/importengine/internal/workspace"
)

// withinRoot reports whether path is root itself or a descendant of
// it, after cleaning both (spec §4.G step 1: destination validation).
func withinRoot(root, path string) bool {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	if root == path {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

// excludedFromTracking matches files the asset database never tracks
// (spec §4.G post-processing step 2c): Unity-style meta sidecars and a
// couple of common dotfiles that can ride along in a dataset.
func excludedFromTracking(path string) bool {
	base := filepath.Base(path)
	return filepath.Ext(path) == ".meta" || base == ".DS_Store" || base == ".gitignore"
}

// filesAndLeftoverFolders resolves one imported entry's tracked files
// to their current workspace paths and the distinct parent
// directories they live in, for cleanup before re-materializing an
// asset and for the removal flow (spec §4.G "findAssetsAndLeftoverFolders").
func filesAndLeftoverFolders(ctx context.Context, ws workspace.AssetDatabase, entry model.ImportedAssetInfo) (files []string, folders []string) {
	folderSet := make(map[string]struct{})
	for _, f := range entry.Files {
		path, ok, err := ws.GUIDToPath(ctx, f.FileGUID)
		if err != nil || !ok {
			continue
		}
		files = append(files, path)
		folderSet[filepath.Dir(path)] = struct{}{}
	}
	for dir := range folderSet {
		folders = append(folders, dir)
	}
	return files, folders
}
