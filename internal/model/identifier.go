// Package model defines the core domain types for the import engine:
// asset identifiers, catalog snapshots, and the records that describe
// what has been materialized into the local workspace.
package model

import "fmt"

// AssetIdentifier addresses one version of one asset in the remote
// catalog. It is a value type: two identifiers with equal fields are
// interchangeable.
type AssetIdentifier struct {
	OrgID     string `json:"org_id"`
	ProjectID string `json:"project_id"`
	AssetID   string `json:"asset_id"`
	Version   string `json:"version"`
}

// NewAssetIdentifier constructs an AssetIdentifier.
func NewAssetIdentifier(orgID, projectID, assetID, version string) AssetIdentifier {
	return AssetIdentifier{OrgID: orgID, ProjectID: projectID, AssetID: assetID, Version: version}
}

// IsLocal reports whether the identifier refers to a locally authored
// asset rather than one materialized from the remote catalog.
func (id AssetIdentifier) IsLocal() bool {
	return id.OrgID == ""
}

// Equal compares all four fields, including version.
func (id AssetIdentifier) Equal(other AssetIdentifier) bool {
	return id == other
}

// TrackedEqual compares org/project/asset, ignoring version. At most
// one version of a given (org, project, asset) may be materialized
// locally at a time, so this is the identity the index tracks by.
func (id AssetIdentifier) TrackedEqual(other AssetIdentifier) bool {
	return id.Tracked() == other.Tracked()
}

// TrackedID is the version-elided identity used as the primary key of
// the imported-asset index.
type TrackedID struct {
	OrgID     string `json:"org_id"`
	ProjectID string `json:"project_id"`
	AssetID   string `json:"asset_id"`
}

// Tracked elides the version, returning the tracked identity.
func (id AssetIdentifier) Tracked() TrackedID {
	return TrackedID{OrgID: id.OrgID, ProjectID: id.ProjectID, AssetID: id.AssetID}
}

// WithVersion reattaches a version to a tracked identity.
func (t TrackedID) WithVersion(version string) AssetIdentifier {
	return AssetIdentifier{OrgID: t.OrgID, ProjectID: t.ProjectID, AssetID: t.AssetID, Version: version}
}

// String renders a stable, human-readable form, e.g. for log fields.
func (id AssetIdentifier) String() string {
	return fmt.Sprintf("%s/%s/%s@%s", id.OrgID, id.ProjectID, id.AssetID, id.Version)
}

func (t TrackedID) String() string {
	return fmt.Sprintf("%s/%s/%s", t.OrgID, t.ProjectID, t.AssetID)
}

// ResolverKey is the "{projectId}/{assetId}" key the dependency
// resolver's traversal table is keyed by. Version is stripped:
// dependencies are resolved per asset, not per version.
func (t TrackedID) ResolverKey() string {
	return t.ProjectID + "/" + t.AssetID
}
