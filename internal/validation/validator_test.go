// MediaRelay - Anonymous Media Exchange Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediarelay

package validation

import (
	"strings"
	"testing"

	"github.com/tomtom215/mediarelay/internal/models"
)

// ===================================================================================================
// Singleton Validator Tests
// ===================================================================================================

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}

	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

// ===================================================================================================
// ValidateStruct Tests
// ===================================================================================================

type testUpload struct {
	UserID string           `validate:"required,platformid"`
	FileID string           `validate:"required,max=256"`
	Type   models.MediaType `validate:"required,mediatype"`
	Size   int64            `validate:"gte=0,lte=1000"`
}

func validUpload() testUpload {
	return testUpload{UserID: "12345", FileID: "AgAD", Type: models.MediaPhoto, Size: 10}
}

func TestValidateStruct_Valid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*testUpload)
	}{
		{"baseline", func(*testUpload) {}},
		{"negative chat id", func(u *testUpload) { u.UserID = "-100123" }},
		{"animation", func(u *testUpload) { u.Type = models.MediaAnimation }},
		{"size at limit", func(u *testUpload) { u.Size = 1000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validUpload()
			tt.mutate(&in)
			if err := ValidateStruct(&in); err != nil {
				t.Errorf("ValidateStruct() returned unexpected error: %v", err)
			}
		})
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*testUpload)
		wantField string
		wantTag   string
	}{
		{"missing user", func(u *testUpload) { u.UserID = "" }, "UserID", "required"},
		{"non-numeric user", func(u *testUpload) { u.UserID = "abc" }, "UserID", "platformid"},
		{"bare minus", func(u *testUpload) { u.UserID = "-" }, "UserID", "platformid"},
		{"missing file", func(u *testUpload) { u.FileID = "" }, "FileID", "required"},
		{"unknown type", func(u *testUpload) { u.Type = "sticker" }, "Type", "mediatype"},
		{"too large", func(u *testUpload) { u.Size = 1001 }, "Size", "lte"},
		{"negative size", func(u *testUpload) { u.Size = -1 }, "Size", "gte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validUpload()
			tt.mutate(&in)
			err := ValidateStruct(&in)
			if err == nil {
				t.Fatal("ValidateStruct() expected error, got nil")
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), err)
			}
			if errs[0].Field() != tt.wantField || errs[0].Tag() != tt.wantTag {
				t.Errorf("got %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.wantField, tt.wantTag)
			}
			if !err.HasTag(tt.wantTag) {
				t.Errorf("HasTag(%q) = false", tt.wantTag)
			}
		})
	}
}

// ===================================================================================================
// Error Message Tests
// ===================================================================================================

func TestErrorMessages(t *testing.T) {
	in := testUpload{UserID: "x", Type: "gif", Size: 5000}
	err := ValidateStruct(&in)
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{
		"UserID must be a numeric platform id",
		"FileID is required",
		"Type must be a supported media type",
		"Size must be less than or equal to 1000",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestValidateStruct_MaxStringLength(t *testing.T) {
	in := validUpload()
	in.FileID = strings.Repeat("a", 257)
	err := ValidateStruct(&in)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Errors()[0].Error(); got != "FileID must be at most 256 characters" {
		t.Errorf("message = %q", got)
	}
}
