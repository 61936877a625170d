package reconcile

import (
	"context"
	"fmt"
	"time"

	"wallpaperdb/internal/store"
)

// orphanedIntentsReconciler deletes rows left in `initiated` past the
// threshold: the client never sent the file body, so no object write ever
// started and there's nothing in the object store to reconcile against
// (spec §4.F).
type orphanedIntentsReconciler struct {
	store     store.Store
	threshold time.Duration
	batchSize int
}

func NewOrphanedIntentsReconciler(s store.Store, threshold time.Duration, batchSize int) *orphanedIntentsReconciler {
	return &orphanedIntentsReconciler{store: s, threshold: threshold, batchSize: batchSize}
}

func (r *orphanedIntentsReconciler) name() string { return "orphaned-intents" }

func (r *orphanedIntentsReconciler) run(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.threshold)
	rows, err := r.store.SelectStuck(ctx, store.StateInitiated, cutoff, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to select orphaned intents: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	ids := make([]string, len(rows))
	for i, w := range rows {
		ids[i] = w.ID
	}

	if err := r.store.DeleteByIDs(ctx, ids); err != nil {
		return 0, fmt.Errorf("failed to delete orphaned intents: %w", err)
	}

	return len(ids), nil
}
