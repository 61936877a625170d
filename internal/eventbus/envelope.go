// Package eventbus wraps NATS JetStream for the two event contracts the
// ingestion core participates in (spec §4.D, §9): it publishes
// wallpaper.uploaded and consumes wallpaper.variant.available.
package eventbus

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Envelope is the outer shape every event on the bus carries, independent of
// its payload schema.
type Envelope struct {
	EventID    string      `json:"eventId"`
	EventType  string      `json:"eventType"`
	OccurredAt time.Time   `json:"occurredAt"`
	Payload    interface{} `json:"payload"`
}

const (
	EventWallpaperUploaded        = "wallpaper.uploaded"
	EventWallpaperVariantReady    = "wallpaper.variant.available"
)

// UploadedPayload is the payload of wallpaper.uploaded (spec §4.D, §9).
type UploadedPayload struct {
	WallpaperID string `json:"wallpaperId"`
	UserID      string `json:"userId"`
	StorageKey  string `json:"storageKey"`
	MimeType    string `json:"mimeType"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ContentHash string `json:"contentHash"`
}

// VariantAvailablePayload is the payload of the consumed-only
// wallpaper.variant.available event, round-tripped for completeness but
// never published by this service (spec §4.D).
type VariantAvailablePayload struct {
	WallpaperID string `json:"wallpaperId"`
	VariantKind string `json:"variantKind"`
	StorageKey  string `json:"storageKey"`
}

func NewEventID() string {
	return ulid.Make().String()
}
