// Package graphmirror implements an optional Neo4j projection of the
// imported-asset dependency graph computed by internal/index
// (SPEC_FULL.md's DOMAIN STACK): every tracked asset becomes an
// :ImportedAsset node, every dependency edge a :DEPENDS_ON
// relationship, giving operators Cypher-queryable dependency/impact
// traversal the same way the teacher's neo4j.Store offered for
// model.Asset/model.Relationship. This is a read-model projection
// only; internal/index remains authoritative and the mirror is
// best-effort (a write failure here never blocks an import).
// Grounded on the teacher's neo4j.Store: MERGE/DETACH DELETE Cypher
// idiom, explicit New/Connect, a traverseGraph helper for bounded-depth
// walks.
package graphmirror

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/vaultbridge/importengine/internal/model"
)

// Store implements persist.Mirror against Neo4j.
type Store struct {
	driver neo4j.DriverWithContext
}

// New creates a new graph mirror with the given driver.
func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

// Connect creates a new Neo4j driver and returns a Store.
func Connect(ctx context.Context, uri, user, password string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}
	return &Store{driver: driver}, nil
}

// Close shuts down the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Upsert writes entry's node and its declared-dependency edges.
// Dependency edges are only materialized toward ids already mirrored
// (dangling references are pruned the same way internal/index prunes
// them from its own dependency map). An edge toward a dependency that
// is mirrored later is not added when that dependency is upserted; it
// appears on the dependent's next Upsert.
func (s *Store) Upsert(ctx context.Context, entry model.ImportedAssetInfo) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	id := entry.Asset.Identifier
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (a:ImportedAsset {org_id: $org_id, project_id: $project_id, asset_id: $asset_id})
			SET a.version = $version,
			    a.name = $name,
			    a.asset_type = $asset_type,
			    a.status = $status
		`, map[string]any{
			"org_id":     id.OrgID,
			"project_id": id.ProjectID,
			"asset_id":   id.AssetID,
			"version":    id.Version,
			"name":       entry.Asset.Name,
			"asset_type": entry.Asset.Type,
			"status":     string(entry.Asset.Status),
		})
		if err != nil {
			return nil, err
		}

		// Replace this node's outgoing dependency edges wholesale so
		// a re-import with a different dependency list doesn't leave
		// stale edges behind.
		if _, err := tx.Run(ctx, `
			MATCH (a:ImportedAsset {org_id: $org_id, project_id: $project_id, asset_id: $asset_id})-[r:DEPENDS_ON]->()
			DELETE r
		`, map[string]any{"org_id": id.OrgID, "project_id": id.ProjectID, "asset_id": id.AssetID}); err != nil {
			return nil, err
		}

		for _, dep := range entry.Asset.Dependencies {
			depTracked := dep.Tracked()
			if _, err := tx.Run(ctx, `
				MATCH (a:ImportedAsset {org_id: $org_id, project_id: $project_id, asset_id: $asset_id})
				MATCH (b:ImportedAsset {org_id: $dep_org_id, project_id: $dep_project_id, asset_id: $dep_asset_id})
				MERGE (a)-[:DEPENDS_ON]->(b)
			`, map[string]any{
				"org_id": id.OrgID, "project_id": id.ProjectID, "asset_id": id.AssetID,
				"dep_org_id": depTracked.OrgID, "dep_project_id": depTracked.ProjectID, "dep_asset_id": depTracked.AssetID,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("upserting graph mirror node: %w", err)
	}
	return nil
}

// Remove detaches and deletes the node for id.
func (s *Store) Remove(ctx context.Context, id model.TrackedID) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MATCH (a:ImportedAsset {org_id: $org_id, project_id: $project_id, asset_id: $asset_id})
			DETACH DELETE a
		`, map[string]any{"org_id": id.OrgID, "project_id": id.ProjectID, "asset_id": id.AssetID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("deleting graph mirror node: %w", err)
	}
	return nil
}

// Dependents returns the tracked ids of assets that depend on id, up
// to depth hops away (the impact graph the teacher's
// GetImpactGraph exposed, reshaped to tracked identities).
func (s *Store) Dependents(ctx context.Context, id model.TrackedID, depth int) ([]model.TrackedID, error) {
	if depth <= 0 {
		depth = 3
	}
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := fmt.Sprintf(`
			MATCH (b:ImportedAsset)-[:DEPENDS_ON*1..%d]->(a:ImportedAsset {org_id: $org_id, project_id: $project_id, asset_id: $asset_id})
			RETURN DISTINCT b.org_id AS org_id, b.project_id AS project_id, b.asset_id AS asset_id
		`, depth)
		records, err := tx.Run(ctx, query, map[string]any{"org_id": id.OrgID, "project_id": id.ProjectID, "asset_id": id.AssetID})
		if err != nil {
			return nil, err
		}
		var out []model.TrackedID
		for records.Next(ctx) {
			rec := records.Record()
			org, _ := rec.Get("org_id")
			project, _ := rec.Get("project_id")
			asset, _ := rec.Get("asset_id")
			out = append(out, model.TrackedID{
				OrgID:     fmt.Sprint(org),
				ProjectID: fmt.Sprint(project),
				AssetID:   fmt.Sprint(asset),
			})
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("querying graph mirror dependents: %w", err)
	}
	return result.([]model.TrackedID), nil
}
