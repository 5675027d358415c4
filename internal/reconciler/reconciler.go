// Package reconciler fans imported-asset index mutations out to the
// configured secondary-index mirrors (internal/persist/pgmirror,
// internal/persist/graphmirror). The in-memory index and the
// per-entry flat files in internal/persist remain authoritative; a
// mirror is a best-effort read projection, so a failed mirror write is
// logged and never aborts the batch. Grounded on the teacher's
// Reconciler.Reconcile continue-on-error loop, generalized from
// "match incoming assets, write to pg/neo4j" to "fan one index event
// out to every configured mirror."
package reconciler

import (
	"context"

	"github.com/vaultbridge/importengine/internal/model"
	"github.com/vaultbridge/importengine/internal/persist"
	"go.uber.org/zap"
)

// Reconciler synchronizes index.Index changes into zero or more
// configured persist.Mirror implementations.
type Reconciler struct {
	mirrors []persist.Mirror
	logger  *zap.Logger
}

// New creates a Reconciler fanning out to mirrors. A nil or empty
// mirror list is valid: Sync then does nothing.
func New(logger *zap.Logger, mirrors ...persist.Mirror) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{mirrors: mirrors, logger: logger}
}

// Sync applies one index change event to every mirror: removed ids
// are deleted, added/updated ids are re-upserted from the current
// snapshot. A lookup function supplies the current entry for a
// tracked id (internal/index.Index.GetByTracked), since the event
// itself only carries identities.
func (r *Reconciler) Sync(ctx context.Context, ev model.IndexChangeEvent, lookup func(model.TrackedID) (model.ImportedAssetInfo, bool)) {
	if len(r.mirrors) == 0 {
		return
	}

	for _, id := range ev.Removed {
		r.removeFromAll(ctx, id)
	}
	for _, id := range append(append([]model.TrackedID{}, ev.Added...), ev.Updated...) {
		entry, ok := lookup(id)
		if !ok {
			continue
		}
		r.upsertToAll(ctx, entry)
	}
}

func (r *Reconciler) upsertToAll(ctx context.Context, entry model.ImportedAssetInfo) {
	for _, m := range r.mirrors {
		if err := m.Upsert(ctx, entry); err != nil {
			r.logger.Warn("mirror upsert failed",
				zap.String("tracked", entry.Tracked().String()),
				zap.Error(err),
			)
		}
	}
}

func (r *Reconciler) removeFromAll(ctx context.Context, id model.TrackedID) {
	for _, m := range r.mirrors {
		if err := m.Remove(ctx, id); err != nil {
			r.logger.Warn("mirror remove failed",
				zap.String("tracked", id.String()),
				zap.Error(err),
			)
		}
	}
}
