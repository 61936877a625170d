package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"wallpaperdb/internal/monitoring"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	health := monitoring.NewHealthHandler(monitoring.NewHealthMonitor("test", "test"))
	return NewRouter("test", newTestHandler(t), health)
}

func TestRouter_ReadyReportsOKBeforeDrain(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d before draining, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
}

func TestRouter_DrainFlipsReadyToUnavailable(t *testing.T) {
	router := newTestRouter(t)
	router.Drain()

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d after draining, got %d: %s", http.StatusServiceUnavailable, w.Code, w.Body.String())
	}
}

func TestRouter_HealthRoutesAreRegistered(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d for /health/live, got %d", http.StatusOK, w.Code)
	}
}

func TestRouter_UploadRouteIsRegistered(t *testing.T) {
	router := newTestRouter(t)
	body, contentType := multipartBody(t, "user-1", "wallpaper.jpg", validJPEG(t))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
}
