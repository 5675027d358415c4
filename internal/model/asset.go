// Package model defines the core domain types for the import engine:
// asset identifiers, catalog snapshots, and the records that describe
// what has been materialized into the local workspace.
package model

import (
	"encoding/json"
	"time"
)

// AssetStatus is the catalog lifecycle state of an asset version.
type AssetStatus string

const (
	AssetStatusDraft      AssetStatus = "draft"
	AssetStatusPublished  AssetStatus = "published"
	AssetStatusDeprecated AssetStatus = "deprecated"
)

// ImportType selects how the resolver picks versions for a requested
// asset set.
type ImportType string

const (
	// ImportExact resolves assets at exactly the versions given.
	ImportExact ImportType = "import"
	// ImportUpdateToLatest resolves the latest version of each
	// requested asset, ignoring the version field.
	ImportUpdateToLatest ImportType = "update_to_latest"
)

// ReplaceDecision is the outcome of the decision port for one asset.
type ReplaceDecision string

const (
	DecisionReplace ReplaceDecision = "replace"
	DecisionIgnore  ReplaceDecision = "ignore"
)

// ImportStatus reports whether an imported asset is current with the
// catalog, returned in bulk by gatherImportStatuses.
type ImportStatus string

const (
	ImportStatusUpToDate  ImportStatus = "up_to_date"
	ImportStatusOutOfDate ImportStatus = "out_of_date"
	ImportStatusErrorSync ImportStatus = "error_sync"
	ImportStatusNoImport  ImportStatus = "no_import"
)

// AuthoringInfo records who created and last modified an asset
// version in the catalog.
type AuthoringInfo struct {
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedBy string    `json:"updated_by"`
}

// AssetData is the catalog's view of one asset version: everything
// the resolver and pipeline need without a further round-trip.
type AssetData struct {
	Identifier     AssetIdentifier   `json:"identifier"`
	SequenceNumber int64             `json:"sequence_number"`
	Updated        time.Time         `json:"updated"`
	Name           string            `json:"name"`
	Type           string            `json:"type"`
	Status         AssetStatus       `json:"status"`
	ChangeLog      string            `json:"change_log"`
	Authoring      AuthoringInfo     `json:"authoring"`
	PreviewFile    string            `json:"preview_file,omitempty"`
	Frozen         bool              `json:"frozen"`
	Tags           []string          `json:"tags,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
	LinkedProjects []string          `json:"linked_projects,omitempty"`
	Metadata       json.RawMessage   `json:"metadata,omitempty"`
	Datasets       []Dataset         `json:"datasets"`
	Dependencies   []AssetIdentifier `json:"dependencies,omitempty"`
}

// Dataset is a named group of files within one asset version (e.g.
// "Source", "Preview").
type Dataset struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Files []AssetDataFile `json:"files"`
}

// AssetDataFile is per-file metadata within a dataset.
type AssetDataFile struct {
	Path        string   `json:"path"`
	Extension   string   `json:"extension"`
	Size        int64    `json:"size"`
	Available   bool     `json:"available"`
	Tags        []string `json:"tags,omitempty"`
	Description string   `json:"description,omitempty"`
}

// BaseAssetData is the minimal identity the resolver starts a
// traversal from, before the full AssetData is fetched.
type BaseAssetData struct {
	Identifier AssetIdentifier `json:"identifier"`
}
