package model

import "time"

// ImportedFileInfo is one locally materialized file belonging to an
// imported asset.
type ImportedFileInfo struct {
	DatasetID        string     `json:"dataset_id"`
	FileGUID         FileGUID   `json:"file_guid"`
	OriginalPath     string     `json:"original_path"`
	Checksum         string     `json:"checksum"` // MD5 of the materialized bytes
	ModifiedAt       time.Time  `json:"modified_at"`
	MetaChecksum     string     `json:"meta_checksum,omitempty"`
	MetaModifiedAt   *time.Time `json:"meta_modified_at,omitempty"`
}

// ImportedAssetInfo is one locally materialized asset: the catalog
// snapshot at import time plus the files it put on disk.
type ImportedAssetInfo struct {
	Asset AssetData          `json:"asset"`
	Files []ImportedFileInfo `json:"files"`
}

// Tracked returns the tracked identity this entry is keyed by in the
// imported-asset index's primary map.
func (i ImportedAssetInfo) Tracked() TrackedID {
	return i.Asset.Identifier.Tracked()
}

// NewImportedAssetInfo builds an entry from a catalog snapshot and the
// files materialized for it.
func NewImportedAssetInfo(asset AssetData, files []ImportedFileInfo) ImportedAssetInfo {
	return ImportedAssetInfo{Asset: asset, Files: files}
}

// ChangeAction describes what kind of mutation the imported-asset
// index performed.
type ChangeAction string

const (
	ChangeActionAdded   ChangeAction = "imported.added"
	ChangeActionUpdated ChangeAction = "imported.updated"
	ChangeActionRemoved ChangeAction = "imported.removed"
)

// IndexChangeEvent is the payload of the index's imported-changed
// notification: the sets of tracked identities added, updated, and
// removed by one mutating call. Emitted once, after every mutation of
// the triggering call has completed.
type IndexChangeEvent struct {
	Added   []TrackedID `json:"added,omitempty"`
	Updated []TrackedID `json:"updated,omitempty"`
	Removed []TrackedID `json:"removed,omitempty"`
}

// Empty reports whether the event carries no changes at all, in which
// case observers should not be notified.
func (e IndexChangeEvent) Empty() bool {
	return len(e.Added) == 0 && len(e.Updated) == 0 && len(e.Removed) == 0
}
