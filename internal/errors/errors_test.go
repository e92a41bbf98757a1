package errors

import (
	"fmt"
	"testing"
)

func TestMediaError_Error(t *testing.T) {
	err := &MediaError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "no camera",
	}

	expected := "NotFoundError: no camera"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}

	err.Constraint = "width"
	expected = `NotFoundError: no camera (constraint "width")`
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequest(t *testing.T) {
	err := NewInvalidRequest("audio and/or video is required")

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
}

func TestNewPermissionDenied(t *testing.T) {
	err := NewPermissionDenied("")

	if err.Code != ErrPermissionDenied {
		t.Errorf("Code = %q, want %q", err.Code, ErrPermissionDenied)
	}
	if err.Status != 403 {
		t.Errorf("Status = %d, want 403", err.Status)
	}
	if err.Message == "" {
		t.Error("Message should default to a generic denial")
	}
}

func TestNewNotFound(t *testing.T) {
	t.Run("with constraint", func(t *testing.T) {
		err := NewNotFound("", "deviceId")

		if err.Code != ErrNotFound {
			t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
		}
		if err.Constraint != "deviceId" {
			t.Errorf("Constraint = %q, want %q", err.Constraint, "deviceId")
		}
		if err.Details["constraint"] != "deviceId" {
			t.Errorf("Details[constraint] = %v, want %q", err.Details["constraint"], "deviceId")
		}
	})

	t.Run("without constraint", func(t *testing.T) {
		err := NewNotFound("no devices", "")

		if err.Details != nil {
			t.Errorf("Details = %v, want nil", err.Details)
		}
	})
}

func TestNewSourceUnavailable(t *testing.T) {
	err := NewSourceUnavailable("allocate failed", "Fake Camera")

	if err.Code != ErrSourceUnavailable {
		t.Errorf("Code = %q, want %q", err.Code, ErrSourceUnavailable)
	}
	if err.Details["device"] != "Fake Camera" {
		t.Errorf("Details[device] = %v, want %q", err.Details["device"], "Fake Camera")
	}
}

func TestNewInternal(t *testing.T) {
	if got := NewInternal(fmt.Errorf("in shutdown")).Message; got != "in shutdown" {
		t.Errorf("Message = %q, want %q", got, "in shutdown")
	}
	if got := NewInternal(nil).Message; got != "internal error" {
		t.Errorf("Message = %q, want %q", got, "internal error")
	}
}

func TestFromName(t *testing.T) {
	tests := []struct {
		name     string
		wantCode ErrorCode
		wantMsg  string
	}{
		{"", ErrPermissionDenied, ""},
		{"PermissionDeniedError", ErrPermissionDenied, ""},
		{"NotFoundError", ErrNotFound, ""},
		{"SourceUnavailableError", ErrSourceUnavailable, ""},
		{"InternalError", ErrInternal, ""},
		{"SecurityError", ErrPermissionDenied, "SecurityError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromName(tt.name)
			if err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", err.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
		})
	}
}

func TestIs(t *testing.T) {
	t.Run("matching code", func(t *testing.T) {
		err := NewNotFound("", "")
		if !Is(err, ErrNotFound) {
			t.Error("Is() = false, want true")
		}
	})

	t.Run("non-matching code", func(t *testing.T) {
		err := NewNotFound("", "")
		if Is(err, ErrPermissionDenied) {
			t.Error("Is() = true, want false")
		}
	})

	t.Run("non-MediaError", func(t *testing.T) {
		err := fmt.Errorf("plain error")
		if Is(err, ErrNotFound) {
			t.Error("Is() = true, want false for non-MediaError")
		}
	})

	t.Run("wrapped MediaError", func(t *testing.T) {
		wrapped := fmt.Errorf("video: %w", NewSourceUnavailable("busy", "cam"))
		if !Is(wrapped, ErrSourceUnavailable) {
			t.Error("Is() = false, want true for wrapped MediaError")
		}
		if _, ok := As(wrapped); !ok {
			t.Error("As() = false, want true for wrapped MediaError")
		}
	})
}
