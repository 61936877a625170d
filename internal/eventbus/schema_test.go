package eventbus

import "testing"

func TestValidateUploaded_AcceptsCompletePayload(t *testing.T) {
	p := UploadedPayload{
		WallpaperID: "wlpr_01H000000000000000000000",
		UserID:      "user-1",
		StorageKey:  "wallpapers/user-1/wlpr_1",
		MimeType:    "image/jpeg",
		Width:       1920,
		Height:      1080,
		ContentHash: "abc123",
	}
	if err := ValidateUploaded(p); err != nil {
		t.Fatalf("expected a complete payload to validate, got %v", err)
	}
}

func TestValidateUploaded_RejectsMissingRequiredField(t *testing.T) {
	p := UploadedPayload{
		UserID:      "user-1",
		StorageKey:  "wallpapers/user-1/wlpr_1",
		MimeType:    "image/jpeg",
		Width:       1920,
		Height:      1080,
		ContentHash: "abc123",
	}
	if err := ValidateUploaded(p); err == nil {
		t.Fatal("expected validation to fail for a missing wallpaperId")
	}
}

func TestValidateUploaded_RejectsNonPositiveDimensions(t *testing.T) {
	p := UploadedPayload{
		WallpaperID: "wlpr_1",
		UserID:      "user-1",
		StorageKey:  "wallpapers/user-1/wlpr_1",
		MimeType:    "image/jpeg",
		Width:       0,
		Height:      1080,
		ContentHash: "abc123",
	}
	if err := ValidateUploaded(p); err == nil {
		t.Fatal("expected validation to fail for a zero width")
	}
}

func TestValidateVariantAvailable_AcceptsCompletePayload(t *testing.T) {
	p := VariantAvailablePayload{
		WallpaperID: "wlpr_1",
		VariantKind: "thumbnail",
		StorageKey:  "variants/wlpr_1/thumbnail",
	}
	if err := ValidateVariantAvailable(p); err != nil {
		t.Fatalf("expected a complete payload to validate, got %v", err)
	}
}

func TestValidateVariantAvailable_RejectsEmptyRequiredString(t *testing.T) {
	p := VariantAvailablePayload{
		WallpaperID: "",
		VariantKind: "thumbnail",
		StorageKey:  "variants/wlpr_1/thumbnail",
	}
	if err := ValidateVariantAvailable(p); err == nil {
		t.Fatal("expected validation to fail for an empty wallpaperId")
	}
}
