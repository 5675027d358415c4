package resolver

import (
	"context"
	"path/filepath"
	"regexp"

	"github.com/vaultbridge/importengine/internal/checksum"
	"github.com/vaultbridge/importengine/internal/model"
)

// storedInfo finds the ImportedFileInfo record for guid among entries
// already materialized by a prior import, if any.
func storedInfo(entries []model.ImportedAssetInfo, guid model.FileGUID) (model.ImportedFileInfo, bool) {
	for _, e := range entries {
		for _, f := range e.Files {
			if f.FileGUID == guid {
				return f, true
			}
		}
	}
	return model.ImportedFileInfo{}, false
}

// invalidFilenameChars matches characters the destination filesystem
// (or the workspace's importer) cannot accept in a path segment.
var invalidFilenameChars = regexp.MustCompile(`[<>:"|?*\x00-\x1f]`)

func sanitizeSegment(s string) string {
	return invalidFilenameChars.ReplaceAllString(s, "_")
}

// TargetPath computes where a catalog file would land in the
// workspace: under a sub-folder named from the asset id, or directly
// under root when asset has no id. Callers pick between the two per
// the subfolder-creation setting (spec §4.E path conflicts). Shared
// with internal/importpipeline so the post-import move destination
// matches exactly what conflict detection checked.
func TargetPath(root string, asset model.AssetData, file model.AssetDataFile) string {
	rel := sanitizeSegment(filepath.ToSlash(file.Path))
	if asset.Identifier.AssetID == "" {
		return filepath.Join(root, rel)
	}
	return filepath.Join(root, sanitizeSegment(asset.Identifier.AssetID), rel)
}

// detectConflicts examines one resolved asset against the current
// workspace state, per spec §4.E.
func (r *Resolver) detectConflicts(ctx context.Context, asset model.AssetData, settings model.EffectiveImportSettings) model.AssetConflicts {
	root := settings.ImportPath
	if root == "" {
		root = settings.DefaultImportLocation
	}

	report := model.AssetConflicts{Asset: asset}
	for _, ds := range asset.Datasets {
		for _, file := range ds.Files {
			var dest string
			if settings.IsSubfolderCreationEnabled {
				dest = TargetPath(root, asset, file)
			} else {
				dest = filepath.Join(root, sanitizeSegment(filepath.ToSlash(file.Path)))
			}

			exists, err := r.fs.FileExists(ctx, dest)
			if err != nil || !exists {
				continue
			}

			report.ExistingFiles = append(report.ExistingFiles, model.FileConflict{
				File:         file,
				ExistingPath: dest,
				Modified:     r.isModified(ctx, dest),
			})
		}
	}
	return report
}

// isModified applies the fail-safe modification check described in
// spec §4.E: dirty editor state always counts as modified; a
// timestamp match against the recorded import is not modified;
// otherwise an MD5 of the current bytes is compared to the stored
// checksum, and an unknown checksum (never imported through this
// index) is treated as modified.
func (r *Resolver) isModified(ctx context.Context, path string) bool {
	dirty, err := r.workspace.IsDirty(ctx, path)
	if err != nil || dirty {
		return true
	}

	if r.idx == nil {
		return true
	}
	guid, err := r.workspace.PathToGUID(ctx, path)
	if err != nil {
		return true
	}
	stored, ok := storedInfo(r.idx.GetByFileGUID(guid), guid)
	if !ok {
		return true
	}

	writeTime, err := r.fs.GetFileLastWriteTimeUTC(ctx, path)
	if err == nil && writeTime.Equal(stored.ModifiedAt) {
		return false
	}

	if stored.Checksum == "" {
		return true
	}
	data, err := r.fs.FileReadAllBytes(ctx, path)
	if err != nil {
		return true
	}
	return checksum.Hex(data) != stored.Checksum
}
