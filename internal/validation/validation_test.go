package validation

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"wallpaperdb/internal/problem"
)

func testConfig() Config {
	return Config{
		MaxFileSizeBytes: 10 * 1024 * 1024,
		MinWidth:         800,
		MinHeight:        600,
		MaxWidth:         7680,
		MaxHeight:        4320,
	}
}

func jpegBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestValidate_MissingUserID(t *testing.T) {
	_, prob := Validate(testConfig(), "", "file.jpg", jpegBytes(t, 1280, 720), "/upload")
	if prob == nil {
		t.Fatal("expected a problem for missing userId")
	}
	if prob.Type != problem.MissingUserID("/upload").Type {
		t.Errorf("unexpected problem type: %s", prob.Type)
	}
}

func TestValidate_MissingFile(t *testing.T) {
	_, prob := Validate(testConfig(), "user-1", "file.jpg", nil, "/upload")
	if prob == nil {
		t.Fatal("expected a problem for an empty file")
	}
	if prob.Type != problem.MissingFile("/upload").Type {
		t.Errorf("unexpected problem type: %s", prob.Type)
	}
}

func TestValidate_InvalidFileFormat(t *testing.T) {
	_, prob := Validate(testConfig(), "user-1", "file.txt", []byte("not an image"), "/upload")
	if prob == nil {
		t.Fatal("expected a problem for a non-image payload")
	}
	if prob.Type != problem.InvalidFileFormat("/upload", "text/plain; charset=utf-8").Type {
		t.Errorf("unexpected problem type: %s", prob.Type)
	}
}

func TestValidate_FileTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFileSizeBytes = 10
	_, prob := Validate(cfg, "user-1", "file.jpg", jpegBytes(t, 1280, 720), "/upload")
	if prob == nil {
		t.Fatal("expected a problem for an oversized file")
	}
	if prob.Type != problem.FileTooLarge("/upload", 0, 0, "").Type {
		t.Errorf("unexpected problem type: %s", prob.Type)
	}
}

func TestValidate_DimensionsOutOfBounds(t *testing.T) {
	_, prob := Validate(testConfig(), "user-1", "file.jpg", jpegBytes(t, 100, 100), "/upload")
	if prob == nil {
		t.Fatal("expected a problem for undersized dimensions")
	}
	if prob.Type != problem.DimensionsOutOfBounds("/upload", 0, 0, 0, 0, 0, 0).Type {
		t.Errorf("unexpected problem type: %s", prob.Type)
	}
}

func TestValidate_AcceptsJPEGWithinBounds(t *testing.T) {
	result, prob := Validate(testConfig(), "user-1", "../../etc/passwd.jpg", jpegBytes(t, 1280, 720), "/upload")
	if prob != nil {
		t.Fatalf("expected no problem, got %+v", prob)
	}
	if result.MimeType != MimeJPEG {
		t.Errorf("expected mime type %s, got %s", MimeJPEG, result.MimeType)
	}
	if result.Width != 1280 || result.Height != 720 {
		t.Errorf("expected 1280x720, got %dx%d", result.Width, result.Height)
	}
	if result.Filename != "passwd.jpg" {
		t.Errorf("expected sanitized filename passwd.jpg, got %q", result.Filename)
	}
}

func TestValidate_AcceptsPNGWithinBounds(t *testing.T) {
	result, prob := Validate(testConfig(), "user-1", "wallpaper.png", pngBytes(t, 1920, 1080), "/upload")
	if prob != nil {
		t.Fatalf("expected no problem, got %+v", prob)
	}
	if result.MimeType != MimePNG {
		t.Errorf("expected mime type %s, got %s", MimePNG, result.MimeType)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd":  "passwd",
		"wallpaper name.jpg": "wallpaper_name.jpg",
		"..hidden.png":       "hidden.png",
		"normal-file_1.webp": "normal-file_1.webp",
	}
	for in, want := range cases {
		got := sanitizeFilename(in)
		if got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeFilename_TruncatesTo255Bytes(t *testing.T) {
	name := strings.Repeat("a", 400) + ".jpg"
	got := sanitizeFilename(name)
	if len(got) != maxFilenameBytes {
		t.Errorf("expected sanitizeFilename to cap at %d bytes, got %d", maxFilenameBytes, len(got))
	}
}
