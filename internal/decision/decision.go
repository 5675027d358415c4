// Package decision declares the resolve-conflicts decision port (spec
// §4.E, §6): given the resolver's conflict report, the UI (or a batch
// policy) decides Replace or Ignore per asset. The core is oblivious
// to how a human answers; this package only defines the seam.
package decision

import (
	"context"

	"github.com/vaultbridge/importengine/internal/model"
)

// AssetDecision pairs one asset with its Replace/Ignore outcome.
type AssetDecision struct {
	Asset    model.AssetData
	Decision model.ReplaceDecision
}

// Maker resolves conflicts in a resolution report into per-asset
// decisions. Absence of a Maker (nil) defaults to Replace-all, per
// spec §4.E "Decision step" (debug/batch mode).
type Maker interface {
	ResolveConflicts(ctx context.Context, report model.UpdatedAssetData, settings model.EffectiveImportSettings) ([]AssetDecision, error)
}

// ReplaceAll is the default Maker used when no UI decision maker is
// registered: every asset in the closure is replaced.
type ReplaceAll struct{}

func (ReplaceAll) ResolveConflicts(_ context.Context, report model.UpdatedAssetData, _ model.EffectiveImportSettings) ([]AssetDecision, error) {
	all := append(append([]model.AssetData{}, report.DirectAssets...), report.Dependants...)
	decisions := make([]AssetDecision, len(all))
	for i, a := range all {
		decisions[i] = AssetDecision{Asset: a, Decision: model.DecisionReplace}
	}
	return decisions, nil
}
