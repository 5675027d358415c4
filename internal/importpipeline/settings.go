// Package importpipeline implements the import engine's orchestration
// layer (spec §4.G): gating concurrent imports, resolving a requested
// set through internal/resolver, staging and downloading files through
// internal/download, and post-processing the result into the
// workspace and the imported-asset index.
package importpipeline

import "github.com/vaultbridge/importengine/internal/model"

// ComputeEffectiveSettings layers per-call overrides on top of the
// user's persisted defaults (spec §4.G step 2).
func ComputeEffectiveSettings(defaults model.EffectiveImportSettings, overrides model.ImportOverrides) model.EffectiveImportSettings {
	eff := defaults
	if overrides.DisableReimportModal != nil {
		eff.IsReimportModalDisabled = *overrides.DisableReimportModal
	}
	if overrides.AvoidRollingBackAssetVersion != nil {
		eff.AvoidRollingBackAssetVersion = *overrides.AvoidRollingBackAssetVersion
	}
	if overrides.ImportPath != nil {
		eff.ImportPath = *overrides.ImportPath
	}
	return eff
}
