// Package httpapi is the ingestion core's HTTP surface: the multipart
// upload endpoint and the health/readiness/liveness group (spec §4.A, §6).
package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"wallpaperdb/internal/ingest"
	"wallpaperdb/internal/logging"
	"wallpaperdb/internal/problem"
	"wallpaperdb/internal/ratelimit"
)

const maxUploadMemory = 32 << 20 // 32 MB held in memory before spilling to temp files

// UploadHandler adapts HTTP multipart requests onto the ingest pipeline.
type UploadHandler struct {
	pipeline *ingest.Pipeline
	logger   *logging.StructuredLogger
}

func NewUploadHandler(pipeline *ingest.Pipeline, logger *logging.StructuredLogger) *UploadHandler {
	return &UploadHandler{pipeline: pipeline, logger: logger}
}

// uploadResponse mirrors the success shape of spec §4.E step 9 / §6: `{id,
// status}`, where status is either the row's uploadState or
// "already_uploaded" for a deduplicated request (spec §4.E step 3).
type uploadResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

const statusAlreadyUploaded = "already_uploaded"

// setRateLimitHeaders reports the decision on every response, per spec
// §4.D, regardless of whether the request was ultimately admitted.
func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d == (ratelimit.Decision{}) {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAtMs, 10))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.FormatInt(d.RetryAfterSeconds, 10))
	}
}

// Upload handles POST /upload.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	instance := r.URL.Path

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		p := problem.New(problem.KindValidation, http.StatusBadRequest, "malformed-multipart-form",
			"Malformed Multipart Form", "failed to parse multipart form", instance, nil)
		problem.Write(w, p)
		return
	}

	userID := r.FormValue("userId")

	file, header, err := r.FormFile("file")
	if err != nil {
		problem.Write(w, problem.MissingFile(instance))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		p := problem.New(problem.KindValidation, http.StatusBadRequest, "unreadable-file",
			"Unreadable File", "failed to read uploaded file", instance, nil)
		problem.Write(w, p)
		return
	}

	out, decision, prob := h.pipeline.Upload(r.Context(), ingest.UploadInput{
		UserID:   userID,
		Filename: header.Filename,
		Data:     data,
	}, instance)
	setRateLimitHeaders(w, decision)
	if prob != nil {
		problem.Write(w, *prob)
		return
	}

	respStatus := string(out.UploadState)
	if out.Deduplicated {
		respStatus = statusAlreadyUploaded
	}

	writeJSON(w, http.StatusOK, uploadResponse{ID: out.WallpaperID, Status: respStatus})
}
