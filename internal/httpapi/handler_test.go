package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"wallpaperdb/internal/eventbus"
	"wallpaperdb/internal/ingest"
	"wallpaperdb/internal/logging"
	"wallpaperdb/internal/monitoring"
	"wallpaperdb/internal/objectstore"
	"wallpaperdb/internal/ratelimit"
	"wallpaperdb/internal/store"
	"wallpaperdb/internal/validation"
)

// mockStore is a minimal store.Store stand-in covering just what the
// upload pipeline exercises through this handler.
type mockStore struct {
	rows map[string]store.Wallpaper
}

func newMockStore() *mockStore { return &mockStore{rows: make(map[string]store.Wallpaper)} }

func (m *mockStore) InsertIntent(ctx context.Context, in store.IntentInput) (store.Wallpaper, error) {
	w := store.Wallpaper{ID: in.ID, UserID: in.UserID, UploadState: store.StateInitiated, StateChangedAt: time.Now()}
	m.rows[w.ID] = w
	return w, nil
}
func (m *mockStore) FindByUserHash(ctx context.Context, userID, contentHash string) (store.Wallpaper, bool, error) {
	return store.Wallpaper{}, false, nil
}
func (m *mockStore) UpdateState(ctx context.Context, id string, from, to store.UploadState, patch store.StatePatch) (bool, error) {
	w, ok := m.rows[id]
	if !ok || w.UploadState != from {
		return false, nil
	}
	w.UploadState = to
	m.rows[id] = w
	return true, nil
}
func (m *mockStore) SelectStuck(ctx context.Context, state store.UploadState, olderThan time.Time, limit int) ([]store.Wallpaper, error) {
	return nil, nil
}
func (m *mockStore) DeleteByIDs(ctx context.Context, ids []string) error { return nil }
func (m *mockStore) Get(ctx context.Context, id string) (store.Wallpaper, error) {
	w, ok := m.rows[id]
	if !ok {
		return store.Wallpaper{}, store.ErrNotFound
	}
	return w, nil
}
func (m *mockStore) FindByStorageKey(ctx context.Context, key string) (store.Wallpaper, bool, error) {
	return store.Wallpaper{}, false, nil
}

type mockObjectStore struct{}

func (mockObjectStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	return nil
}
func (mockObjectStore) Head(ctx context.Context, key string) (objectstore.Metadata, error) {
	return objectstore.Metadata{}, errors.New("not implemented")
}
func (mockObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}
func (mockObjectStore) Delete(ctx context.Context, key string) error           { return nil }
func (mockObjectStore) List(ctx context.Context, prefix string) ([]string, error) { return nil, nil }

type mockPublisher struct{}

func (mockPublisher) PublishUploaded(ctx context.Context, p eventbus.UploadedPayload) (string, error) {
	return eventbus.NewEventID(), nil
}

type fakeKVStore struct{ counts map[string]int64 }

func (f *fakeKVStore) IncrWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}
func (f *fakeKVStore) Ping(ctx context.Context) error { return nil }
func (f *fakeKVStore) Close() error                   { return nil }
func (f *fakeKVStore) Client() *redis.Client          { return nil }

func testLogger() *logging.StructuredLogger {
	return logging.NewStructuredLogger(logging.LoggerConfig{Level: logging.LogLevelError, Service: "test", Environment: "test"})
}

func newTestHandler(t *testing.T) *UploadHandler {
	t.Helper()
	kv := &fakeKVStore{counts: make(map[string]int64)}
	limiter := ratelimit.New(kv, ratelimit.Config{MaxUploads: 100, Window: time.Minute}, testLogger())
	validationCfg := validation.Config{MaxFileSizeBytes: 10 * 1024 * 1024, MinWidth: 100, MinHeight: 100, MaxWidth: 7680, MaxHeight: 4320}
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	pipeline := ingest.New(newMockStore(), mockObjectStore{}, mockPublisher{}, limiter, validationCfg, "wallpapers-bucket", testLogger(), metrics)
	return NewUploadHandler(pipeline, testLogger())
}

func multipartBody(t *testing.T, userID, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if userID != "" {
		if err := w.WriteField("userId", userID); err != nil {
			t.Fatalf("failed to write userId field: %v", err)
		}
	}
	if data != nil {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func validJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestUploadHandler_AcceptsValidUpload(t *testing.T) {
	h := newTestHandler(t)
	body, contentType := multipartBody(t, "user-1", "wallpaper.jpg", validJPEG(t))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.Upload(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp uploadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID == "" {
		t.Error("expected a wallpaper id in the response")
	}
	if resp.Status == statusAlreadyUploaded {
		t.Error("expected a fresh upload not to be reported as already_uploaded")
	}

	for _, h := range []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"} {
		if w.Header().Get(h) == "" {
			t.Errorf("expected %s to be set on the response", h)
		}
	}
}

func TestUploadHandler_RejectsMissingUserID(t *testing.T) {
	h := newTestHandler(t)
	body, contentType := multipartBody(t, "", "wallpaper.jpg", validJPEG(t))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.Upload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d: %s", http.StatusBadRequest, w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected problem+json content type, got %q", ct)
	}
}

func TestUploadHandler_RejectsMissingFile(t *testing.T) {
	h := newTestHandler(t)
	body, contentType := multipartBody(t, "user-1", "", nil)

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()

	h.Upload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d: %s", http.StatusBadRequest, w.Code, w.Body.String())
	}
}

func TestUploadHandler_RejectsMalformedMultipartForm(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewBufferString("not multipart"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w := httptest.NewRecorder()

	h.Upload(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}
