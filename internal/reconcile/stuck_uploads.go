package reconcile

import (
	"context"
	"fmt"
	"time"

	"wallpaperdb/internal/objectstore"
	"wallpaperdb/internal/store"
)

// stuckUploadsReconciler finds rows left in `uploading` past the threshold
// and resolves them one of two ways: if the object landed in the object
// store anyway (the HTTP response was lost after the write succeeded), it
// records the object's key, bucket, size and content type from a Head call
// and completes the `stored` transition (DESIGN.md Open Question 1);
// otherwise it marks the row `failed`. Image dimensions, file type, aspect
// ratio and content hash are not re-derived from the object's bytes.
type stuckUploadsReconciler struct {
	store         store.Store
	objectStore   objectstore.ObjectStore
	threshold     time.Duration
	batchSize     int
	storageBucket string
}

func NewStuckUploadsReconciler(s store.Store, os objectstore.ObjectStore, threshold time.Duration, batchSize int, storageBucket string) *stuckUploadsReconciler {
	return &stuckUploadsReconciler{store: s, objectStore: os, threshold: threshold, batchSize: batchSize, storageBucket: storageBucket}
}

func (r *stuckUploadsReconciler) name() string { return "stuck-uploads" }

func (r *stuckUploadsReconciler) run(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.threshold)
	rows, err := r.store.SelectStuck(ctx, store.StateUploading, cutoff, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to select stuck uploads: %w", err)
	}

	claimed := 0
	for _, w := range rows {
		// storage_key isn't set on the row until the `stored` transition
		// (spec §4.E step 7), so a still-`uploading` row is probed by the
		// content-addressed prefix rather than an exact key.
		keys, err := r.objectStore.List(ctx, w.ID+"/")
		if err != nil {
			return claimed, fmt.Errorf("failed to probe object landing for %s: %w", w.ID, err)
		}

		if len(keys) == 0 {
			msg := "object never landed in storage within the upload window"
			if _, err := r.store.UpdateState(ctx, w.ID, store.StateUploading, store.StateFailed, store.StatePatch{ProcessingError: &msg}); err != nil {
				return claimed, fmt.Errorf("failed to mark %s failed: %w", w.ID, err)
			}
			claimed++
			continue
		}

		key := keys[0]
		meta, headErr := r.objectStore.Head(ctx, key)
		if headErr != nil {
			return claimed, fmt.Errorf("failed to probe landed object %s: %w", key, headErr)
		}

		sizeBytes := meta.SizeBytes
		mimeType := meta.ContentType
		bucket := r.storageBucket
		patch := store.StatePatch{
			MimeType:      &mimeType,
			FileSizeBytes: &sizeBytes,
			StorageKey:    &key,
			StorageBucket: &bucket,
		}

		ok, err := r.store.UpdateState(ctx, w.ID, store.StateUploading, store.StateStored, patch)
		if err != nil {
			return claimed, fmt.Errorf("failed to resolve stuck upload %s: %w", w.ID, err)
		}
		if ok {
			claimed++
		}
	}

	return claimed, nil
}
