package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient_TrueForTransientAdapterError(t *testing.T) {
	err := Transient("insertIntent", errors.New("connection reset"))
	if !IsTransient(err) {
		t.Error("expected a transient-wrapped error to be classified as transient")
	}
}

func TestIsTransient_FalseForPermanentAdapterError(t *testing.T) {
	err := Permanent("insertIntent", errors.New("constraint violation"))
	if IsTransient(err) {
		t.Error("expected a permanent-wrapped error not to be classified as transient")
	}
}

func TestIsTransient_FalseForPlainError(t *testing.T) {
	if IsTransient(errors.New("some unrelated error")) {
		t.Error("expected a plain error to be classified as not transient")
	}
}

func TestIsTransient_UnwrapsThroughFmtErrorf(t *testing.T) {
	base := Transient("put", errors.New("timeout"))
	wrapped := fmt.Errorf("upload failed: %w", base)
	if !IsTransient(wrapped) {
		t.Error("expected IsTransient to see through an additional fmt.Errorf wrap")
	}
}

func TestTransientAndPermanent_NilErrorPassesThrough(t *testing.T) {
	if Transient("op", nil) != nil {
		t.Error("expected Transient(nil) to return nil")
	}
	if Permanent("op", nil) != nil {
		t.Error("expected Permanent(nil) to return nil")
	}
}

func TestAdapterError_ErrorIncludesOpAndUnderlyingMessage(t *testing.T) {
	err := Transient("selectStuck", errors.New("deadlock detected"))
	want := "selectStuck: deadlock detected"
	if err.Error() != want {
		t.Errorf("expected error message %q, got %q", want, err.Error())
	}
}
