// Package store wraps the relational store: the Wallpaper record and its
// state-machine-respecting mutations (spec §3, §4.B).
package store

import "time"

// UploadState is the wallpaper lifecycle enumeration (spec §3, §4.E).
type UploadState string

const (
	StateInitiated  UploadState = "initiated"
	StateUploading  UploadState = "uploading"
	StateStored     UploadState = "stored"
	StateProcessing UploadState = "processing"
	StateCompleted  UploadState = "completed"
	StateFailed     UploadState = "failed"
)

// FileType classifies the uploaded object.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
)

// Wallpaper is the sole persistent entity of the ingestion core.
type Wallpaper struct {
	ID              string
	UserID          string
	ContentHash     *string
	UploadState     UploadState
	StateChangedAt  time.Time
	UploadAttempts  int
	ProcessingError *string

	FileType         *FileType
	MimeType         *string
	FileSizeBytes    *int64
	Width            *int
	Height           *int
	AspectRatio      *float64
	OriginalFilename *string
	StorageKey       *string
	StorageBucket    *string

	UploadedAt time.Time
	UpdatedAt  time.Time
}

// StatePatch carries the fields an UpdateState call is allowed to set
// alongside the state transition itself.
type StatePatch struct {
	ContentHash      *string
	UploadAttempts   *int
	ProcessingError  *string
	FileType         *FileType
	MimeType         *string
	FileSizeBytes    *int64
	Width            *int
	Height           *int
	AspectRatio      *float64
	OriginalFilename *string
	StorageKey       *string
	StorageBucket    *string
}

// IntentInput is the data needed to create the initial `initiated` row.
type IntentInput struct {
	ID     string
	UserID string
}
