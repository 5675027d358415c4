package model

// FileConflict is one file of a resolved asset that already exists in
// the workspace at its expected destination path.
type FileConflict struct {
	File         AssetDataFile
	ExistingPath string
	// Modified is true when the existing local file differs from what
	// the index has recorded for it (dirty editor state, or a
	// timestamp mismatch followed by a checksum mismatch). An unknown
	// checksum is treated as modified, fail-safe.
	Modified bool
}

// AssetConflicts annotates one resolved asset with the conflicts
// found against the current workspace state.
type AssetConflicts struct {
	Asset         AssetData
	ExistingFiles []FileConflict
}

// UpdatedAssetData is the resolver's report: the closure partitioned
// into directly requested assets and their transitive dependants,
// each annotated with conflicts, handed to the decision port.
type UpdatedAssetData struct {
	DirectAssets   []AssetData
	Dependants     []AssetData
	DirectConflicts []AssetConflicts
	DependantConflicts []AssetConflicts
}

// AllAssets returns direct assets followed by dependants, the full
// closure in report order.
func (u UpdatedAssetData) AllAssets() []AssetData {
	out := make([]AssetData, 0, len(u.DirectAssets)+len(u.Dependants))
	out = append(out, u.DirectAssets...)
	out = append(out, u.Dependants...)
	return out
}
