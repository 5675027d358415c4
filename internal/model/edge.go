package model

import "github.com/google/uuid"

// FileGUID is the workspace asset-database's stable identifier for a
// materialized file. It is assigned by the workspace, not the engine.
type FileGUID = uuid.UUID

// DependencyEdge is a directed edge in the imported-asset dependency
// graph: From depends on To. Both ends are tracked identities, since
// the graph is maintained over tracked identity, not specific
// versions.
type DependencyEdge struct {
	From TrackedID `json:"from"`
	To   TrackedID `json:"to"`
}

