package reconcile

import (
	"context"
	"fmt"
	"time"

	"wallpaperdb/internal/eventbus"
	"wallpaperdb/internal/store"
)

// missingEventsReconciler finds rows left in `stored` past the threshold —
// meaning the wallpaper.uploaded publish either never happened or was never
// followed by the `stored → processing` transition — and republishes.
// Republishing is safe because consumers key off `wallpaperId`, not
// `eventId`, so a duplicate event for the same wallpaper is a no-op
// downstream (spec §4.D, §4.F).
type missingEventsReconciler struct {
	store     store.Store
	publisher eventbus.Publisher
	threshold time.Duration
	batchSize int
}

func NewMissingEventsReconciler(s store.Store, publisher eventbus.Publisher, threshold time.Duration, batchSize int) *missingEventsReconciler {
	return &missingEventsReconciler{store: s, publisher: publisher, threshold: threshold, batchSize: batchSize}
}

func (r *missingEventsReconciler) name() string { return "missing-events" }

func (r *missingEventsReconciler) run(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.threshold)
	rows, err := r.store.SelectStuck(ctx, store.StateStored, cutoff, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to select rows with missing events: %w", err)
	}

	claimed := 0
	for _, w := range rows {
		if w.ContentHash == nil || w.StorageKey == nil || w.MimeType == nil || w.Width == nil || w.Height == nil {
			continue
		}

		_, err := r.publisher.PublishUploaded(ctx, eventbus.UploadedPayload{
			WallpaperID: w.ID,
			UserID:      w.UserID,
			StorageKey:  *w.StorageKey,
			MimeType:    *w.MimeType,
			Width:       *w.Width,
			Height:      *w.Height,
			ContentHash: *w.ContentHash,
		})
		if err != nil {
			continue
		}

		ok, err := r.store.UpdateState(ctx, w.ID, store.StateStored, store.StateProcessing, store.StatePatch{})
		if err != nil {
			return claimed, fmt.Errorf("failed to transition %s after republish: %w", w.ID, err)
		}
		if ok {
			claimed++
		}
	}

	return claimed, nil
}
