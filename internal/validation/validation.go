// Package validation runs the ordered validation chain an upload must pass
// before an object write is attempted (spec §4.C): presence, MIME sniffing,
// size, and dimension bounds. Each failure maps to a distinct RFC 7807
// problem so callers get the first violated rule, not a generic 400.
package validation

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/image/webp"

	"wallpaperdb/internal/problem"
)

const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeWebP = "image/webp"
)

var acceptedMimeTypes = map[string]bool{
	MimeJPEG: true,
	MimePNG:  true,
	MimeWebP: true,
}

type Config struct {
	MaxFileSizeBytes int64
	MinWidth         int
	MinHeight        int
	MaxWidth         int
	MaxHeight        int
}

// Result is the data extracted from a validated upload, ready to flow into
// the store/object-store write path.
type Result struct {
	MimeType string
	Width    int
	Height   int
	Filename string
}

// Validate runs the full chain against the uploaded bytes. instance is the
// request path used to populate the RFC 7807 `instance` field.
func Validate(cfg Config, userID string, filename string, data []byte, instance string) (Result, *problem.Problem) {
	if userID == "" {
		p := problem.MissingUserID(instance)
		return Result{}, &p
	}
	if len(data) == 0 {
		p := problem.MissingFile(instance)
		return Result{}, &p
	}

	mimeType := sniffMimeType(data)
	if !acceptedMimeTypes[mimeType] {
		p := problem.InvalidFileFormat(instance, mimeType)
		return Result{}, &p
	}

	if int64(len(data)) > cfg.MaxFileSizeBytes {
		p := problem.FileTooLarge(instance, int64(len(data)), cfg.MaxFileSizeBytes, mimeType)
		return Result{}, &p
	}

	width, height, err := decodeDimensions(mimeType, data)
	if err != nil {
		p := problem.InvalidFileFormat(instance, mimeType)
		return Result{}, &p
	}

	if width < cfg.MinWidth || height < cfg.MinHeight || width > cfg.MaxWidth || height > cfg.MaxHeight {
		p := problem.DimensionsOutOfBounds(instance, width, height, cfg.MinWidth, cfg.MinHeight, cfg.MaxWidth, cfg.MaxHeight)
		return Result{}, &p
	}

	return Result{
		MimeType: mimeType,
		Width:    width,
		Height:   height,
		Filename: sanitizeFilename(filename),
	}, nil
}

// sniffMimeType uses net/http's content-sniffing for JPEG/PNG but checks
// the WebP RIFF header explicitly, since http.DetectContentType identifies
// WebP only as "application/octet-stream" in older sniff tables.
func sniffMimeType(data []byte) string {
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return MimeWebP
	}
	return http.DetectContentType(data)
}

func decodeDimensions(mimeType string, data []byte) (int, int, error) {
	if mimeType == MimeWebP {
		cfg, err := webp.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return 0, 0, fmt.Errorf("failed to decode webp config: %w", err)
		}
		return cfg.Width, cfg.Height, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

const maxFilenameBytes = 255

// sanitizeFilename strips directory components, replaces anything outside a
// safe character set with "_", drops leading dots, then caps the result at
// 255 bytes (spec §4.C point 6) before the filename is persisted for
// display. The character set is restricted to ASCII above, so byte-slicing
// never splits a rune.
func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if len(base) > maxFilenameBytes {
		base = base[:maxFilenameBytes]
	}
	return base
}
