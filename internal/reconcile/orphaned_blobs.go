package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wallpaperdb/internal/objectstore"
	"wallpaperdb/internal/store"
)

// orphanedBlobsReconciler lists every object in the bucket and deletes any
// with no owning row, or whose owning row has landed in `failed`. A row
// owns a key either through its storage_key or, while it is still in
// `uploading` and has no storage_key yet, through the `{wallpaperId}/`
// prefix of the key — the same match stuck-uploads uses to recover such a
// row, so a blob written before the `stored` transition is kept (spec §4.F).
type orphanedBlobsReconciler struct {
	store       store.Store
	objectStore objectstore.ObjectStore
	batchSize   int
}

func NewOrphanedBlobsReconciler(s store.Store, os objectstore.ObjectStore, batchSize int) *orphanedBlobsReconciler {
	return &orphanedBlobsReconciler{store: s, objectStore: os, batchSize: batchSize}
}

func (r *orphanedBlobsReconciler) name() string { return "orphaned-blobs" }

func (r *orphanedBlobsReconciler) run(ctx context.Context) (int, error) {
	keys, err := r.objectStore.List(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to list objects: %w", err)
	}

	claimed := 0
	for _, key := range keys {
		if claimed >= r.batchSize {
			break
		}

		owner, found, err := r.store.FindByStorageKey(ctx, key)
		if err != nil {
			return claimed, fmt.Errorf("failed to check ownership of %s: %w", key, err)
		}
		if !found {
			id, _, _ := strings.Cut(key, "/")
			w, getErr := r.store.Get(ctx, id)
			if getErr == nil {
				owner, found = w, true
			} else if !errors.Is(getErr, store.ErrNotFound) {
				return claimed, fmt.Errorf("failed to check ownership of %s: %w", key, getErr)
			}
		}
		if found && owner.UploadState != store.StateFailed {
			continue
		}

		if err := r.objectStore.Delete(ctx, key); err != nil {
			return claimed, fmt.Errorf("failed to delete orphaned blob %s: %w", key, err)
		}
		claimed++
	}

	return claimed, nil
}
