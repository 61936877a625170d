// Package ingest orchestrates the upload pipeline: rate limit check,
// validation, dedup lookup, intent creation, object write, and the state
// machine transitions between them (spec §4.B, §4.E).
package ingest

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"wallpaperdb/internal/eventbus"
	"wallpaperdb/internal/logging"
	"wallpaperdb/internal/monitoring"
	"wallpaperdb/internal/objectstore"
	"wallpaperdb/internal/problem"
	"wallpaperdb/internal/ratelimit"
	"wallpaperdb/internal/store"
	"wallpaperdb/internal/validation"
)

type Pipeline struct {
	store       store.Store
	objectStore objectstore.ObjectStore
	publisher   eventbus.Publisher
	limiter     *ratelimit.Limiter
	validation  validation.Config
	storageBucket string
	logger      *logging.StructuredLogger
	metrics     monitoring.Metrics
}

func New(
	s store.Store,
	objStore objectstore.ObjectStore,
	publisher eventbus.Publisher,
	limiter *ratelimit.Limiter,
	validationCfg validation.Config,
	storageBucket string,
	logger *logging.StructuredLogger,
	metrics monitoring.Metrics,
) *Pipeline {
	return &Pipeline{
		store:         s,
		objectStore:   objStore,
		publisher:     publisher,
		limiter:       limiter,
		validation:    validationCfg,
		storageBucket: storageBucket,
		logger:        logger,
		metrics:       metrics,
	}
}

// UploadInput is the inbound HTTP multipart form decoded into plain fields.
type UploadInput struct {
	UserID   string
	Filename string
	Data     []byte
}

// UploadOutput mirrors the success response shape of spec §4.A.
type UploadOutput struct {
	WallpaperID string
	UploadState store.UploadState
	Deduplicated bool
}

// Upload runs the full pipeline. Every returned *problem.Problem is ready to
// write straight to the HTTP response via internal/problem. The returned
// ratelimit.Decision is always populated (even on early rejection) so the
// caller can set X-RateLimit-* headers on every response (spec §4.D).
func (p *Pipeline) Upload(ctx context.Context, in UploadInput, instance string) (UploadOutput, ratelimit.Decision, *problem.Problem) {
	decision, err := p.limiter.Allow(ctx, in.UserID)
	if err != nil {
		prob := problem.Internal(instance, "rate limiter failure")
		return UploadOutput{}, ratelimit.Decision{}, &prob
	}
	if !decision.Allowed {
		p.metrics.RateLimitRejections.Inc()
		prob := problem.RateLimitExceeded(instance, decision.RetryAfterSeconds)
		return UploadOutput{}, decision, &prob
	}

	result, prob := validation.Validate(p.validation, in.UserID, in.Filename, in.Data, instance)
	if prob != nil {
		p.metrics.UploadsRejected.WithLabelValues(string(prob.Kind)).Inc()
		return UploadOutput{}, decision, prob
	}

	contentHash := contentHashOf(in.Data)

	if existing, found, err := p.store.FindByUserHash(ctx, in.UserID, contentHash); err != nil {
		prob := problem.Internal(instance, "dedup lookup failed")
		return UploadOutput{}, decision, &prob
	} else if found {
		return UploadOutput{
			WallpaperID:  existing.ID,
			UploadState:  existing.UploadState,
			Deduplicated: true,
		}, decision, nil
	}

	id := "wlpr_" + ulid.Make().String()
	intent, err := p.store.InsertIntent(ctx, store.IntentInput{ID: id, UserID: in.UserID})
	if err != nil {
		prob := problem.Internal(instance, "failed to create upload intent")
		return UploadOutput{}, decision, &prob
	}

	ctx = logging.WithField(ctx, logging.FieldWallpaperID, intent.ID)

	ok, err := p.store.UpdateState(ctx, intent.ID, store.StateInitiated, store.StateUploading, store.StatePatch{})
	if err != nil || !ok {
		prob := problem.Internal(instance, "failed to transition to uploading")
		return UploadOutput{}, decision, &prob
	}

	storageKey := objectKey(intent.ID, result.MimeType)
	if err := p.objectStore.Put(ctx, storageKey, in.Data, result.MimeType); err != nil {
		p.markFailed(ctx, intent.ID, store.StateUploading, err)
		prob := problem.Internal(instance, "failed to persist upload")
		return UploadOutput{}, decision, &prob
	}

	aspectRatio := float64(result.Width) / float64(result.Height)
	sizeBytes := int64(len(in.Data))
	fileType := store.FileTypeImage

	storedPatch := store.StatePatch{
		ContentHash:      &contentHash,
		FileType:         &fileType,
		MimeType:         &result.MimeType,
		FileSizeBytes:    &sizeBytes,
		Width:            &result.Width,
		Height:           &result.Height,
		AspectRatio:      &aspectRatio,
		OriginalFilename: &result.Filename,
		StorageKey:       &storageKey,
		StorageBucket:    &p.storageBucket,
	}

	ok, err = p.store.UpdateState(ctx, intent.ID, store.StateUploading, store.StateStored, storedPatch)
	if err != nil || !ok {
		prob := problem.Internal(instance, "failed to transition to stored")
		return UploadOutput{}, decision, &prob
	}

	p.metrics.UploadsAccepted.Inc()

	eventID, err := p.publisher.PublishUploaded(ctx, eventbus.UploadedPayload{
		WallpaperID: intent.ID,
		UserID:      in.UserID,
		StorageKey:  storageKey,
		MimeType:    result.MimeType,
		Width:       result.Width,
		Height:      result.Height,
		ContentHash: contentHash,
	})
	if err != nil {
		// Publish failure leaves the row in `stored`; the missing-events
		// reconciler will retry the publish later (spec §4.F), so this is
		// not surfaced to the caller as an upload failure.
		p.logger.Warn(ctx, "failed to publish wallpaper.uploaded, deferring to reconciler", map[string]interface{}{
			"error": err.Error(),
		})
		return UploadOutput{WallpaperID: intent.ID, UploadState: store.StateStored}, decision, nil
	}

	ctx = logging.WithField(ctx, logging.FieldEventID, eventID)
	ok, err = p.store.UpdateState(ctx, intent.ID, store.StateStored, store.StateProcessing, store.StatePatch{})
	if err != nil || !ok {
		// The event already went out; leaving the row at `stored` here would
		// make the missing-events reconciler republish a duplicate. Log and
		// let the next sweep reconcile the mismatch instead of failing the
		// request this late in the pipeline.
		p.logger.Warn(ctx, "failed to transition to processing after publish", nil)
	}

	return UploadOutput{WallpaperID: intent.ID, UploadState: store.StateProcessing}, decision, nil
}

func (p *Pipeline) markFailed(ctx context.Context, id string, from store.UploadState, cause error) {
	msg := cause.Error()
	_, err := p.store.UpdateState(ctx, id, from, store.StateFailed, store.StatePatch{ProcessingError: &msg})
	if err != nil {
		p.logger.Error(ctx, "failed to mark upload failed", map[string]interface{}{"error": err.Error()})
	}
}

// extensionByMimeType maps the three accepted formats to the file extension
// used in the content-addressed object key (spec §3 invariant 5, §6).
var extensionByMimeType = map[string]string{
	validation.MimeJPEG: "jpg",
	validation.MimePNG:  "png",
	validation.MimeWebP: "webp",
}

// objectKey builds the single-bucket, content-addressed storage key
// `{wallpaperId}/original.{ext}` (spec §3 invariant 5, §4.E step 6, §6).
func objectKey(wallpaperID, mimeType string) string {
	ext, ok := extensionByMimeType[mimeType]
	if !ok {
		ext = "bin"
	}
	return fmt.Sprintf("%s/original.%s", wallpaperID, ext)
}

func contentHashOf(data []byte) string {
	return sha256Hex(data)
}
