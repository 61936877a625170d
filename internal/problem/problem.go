// Package problem renders RFC 7807 application/problem+json error bodies
// and classifies errors into the kinds the ingestion core reasons about:
// validation, rate limiting, not-found, conflict, and the two dependency
// failure modes (transient vs. permanent).
package problem

import (
	"encoding/json"
	"net/http"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindRateLimited         Kind = "rateLimited"
	KindNotFound            Kind = "notFound"
	KindConflict            Kind = "conflict"
	KindTransientDependency Kind = "transientDependency"
	KindPermanentDependency Kind = "permanentDependency"
	KindShuttingDown        Kind = "shuttingDown"
)

const baseTypeURI = "https://wallpaperdb.dev/problems/"

// Problem is an RFC 7807 problem-details document.
type Problem struct {
	Type       string                 `json:"type"`
	Title      string                 `json:"title"`
	Status     int                    `json:"status"`
	Detail     string                 `json:"detail,omitempty"`
	Instance   string                 `json:"instance,omitempty"`
	Kind       Kind                   `json:"-"`
	Extensions map[string]interface{} `json:"-"`
}

// MarshalJSON flattens Extensions alongside the standard RFC 7807 fields.
func (p Problem) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"type":   p.Type,
		"title":  p.Title,
		"status": p.Status,
	}
	if p.Detail != "" {
		out["detail"] = p.Detail
	}
	if p.Instance != "" {
		out["instance"] = p.Instance
	}
	for k, v := range p.Extensions {
		out[k] = v
	}
	return json.Marshal(out)
}

// New builds a Problem for the given reason slug (e.g. "invalid-file-format").
func New(kind Kind, status int, reason, title, detail, instance string, ext map[string]interface{}) Problem {
	return Problem{
		Type:       baseTypeURI + reason,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Kind:       kind,
		Extensions: ext,
	}
}

// Write renders the problem to the response writer with the correct media
// type, per spec §6.
func Write(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// Common constructors used throughout the validation engine and rate limiter.

func MissingUserID(instance string) Problem {
	return New(KindValidation, http.StatusBadRequest, "missing-user-id",
		"Missing User ID", "the userId form field is required", instance, nil)
}

func MissingFile(instance string) Problem {
	return New(KindValidation, http.StatusBadRequest, "missing-file",
		"Missing File", "the file form field is required", instance, nil)
}

func InvalidFileFormat(instance, receivedMimeType string) Problem {
	return New(KindValidation, http.StatusBadRequest, "invalid-file-format",
		"Invalid File Format", "only image/jpeg, image/png, and image/webp are accepted", instance,
		map[string]interface{}{"receivedMimeType": receivedMimeType})
}

func FileTooLarge(instance string, fileSizeBytes, maxFileSizeBytes int64, fileType string) Problem {
	return New(KindValidation, http.StatusRequestEntityTooLarge, "file-too-large",
		"File Too Large", "the uploaded file exceeds the maximum allowed size", instance,
		map[string]interface{}{
			"fileSizeBytes":    fileSizeBytes,
			"maxFileSizeBytes": maxFileSizeBytes,
			"fileType":         fileType,
		})
}

func DimensionsOutOfBounds(instance string, width, height, minWidth, minHeight, maxWidth, maxHeight int) Problem {
	return New(KindValidation, http.StatusBadRequest, "dimensions-out-of-bounds",
		"Dimensions Out Of Bounds", "image dimensions fall outside the accepted range", instance,
		map[string]interface{}{
			"width": width, "height": height,
			"minWidth": minWidth, "minHeight": minHeight,
			"maxWidth": maxWidth, "maxHeight": maxHeight,
		})
}

func RateLimitExceeded(instance string, retryAfterSeconds int64) Problem {
	return New(KindRateLimited, http.StatusTooManyRequests, "rate-limit-exceeded",
		"Rate Limit Exceeded", "too many uploads in the current window", instance,
		map[string]interface{}{"retryAfter": retryAfterSeconds})
}

func ShuttingDown(instance string) Problem {
	return New(KindShuttingDown, http.StatusServiceUnavailable, "shutting-down",
		"Shutting Down", "the service is draining in-flight requests", instance, nil)
}

func Internal(instance, detail string) Problem {
	return New(KindTransientDependency, http.StatusInternalServerError, "internal-error",
		"Internal Error", detail, instance, nil)
}
